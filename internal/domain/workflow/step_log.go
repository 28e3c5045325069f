package workflow

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
)

// StepStatus is the state recorded by a step log entry
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
)

// IsTerminal reports whether the status ends a step attempt
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed
}

// StepLogEntry is one append-only record of a step state transition.
// Sequence is assigned by the log store on append.
type StepLogEntry struct {
	ID          uuid.UUID
	ExecutionID uuid.UUID
	Sequence    int
	StepName    string
	StepType    StepType
	Required    bool
	Status      StepStatus
	Input       json.RawMessage
	Output      json.RawMessage
	Error       string
	ErrorKind   shared.ErrorKind
	DurationMS  int64
	RecordedAt  time.Time
}

func newEntry(executionID uuid.UUID, step StepSpec, status StepStatus, now time.Time) *StepLogEntry {
	return &StepLogEntry{
		ID:          uuid.New(),
		ExecutionID: executionID,
		StepName:    step.Name,
		StepType:    step.Type,
		Required:    step.Required,
		Status:      status,
		RecordedAt:  now,
	}
}

// NewInProgressEntry records that a step has started with the given input snapshot
func NewInProgressEntry(executionID uuid.UUID, step StepSpec, input json.RawMessage, now time.Time) *StepLogEntry {
	entry := newEntry(executionID, step, StepStatusInProgress, now)
	entry.Input = input
	return entry
}

// NewCompletedEntry records a successful step attempt
func NewCompletedEntry(executionID uuid.UUID, step StepSpec, output json.RawMessage, took time.Duration, now time.Time) *StepLogEntry {
	entry := newEntry(executionID, step, StepStatusCompleted, now)
	entry.Output = output
	entry.DurationMS = took.Milliseconds()
	return entry
}

// NewFailedEntry records a failed step attempt
func NewFailedEntry(executionID uuid.UUID, step StepSpec, output json.RawMessage, kind shared.ErrorKind, message string, took time.Duration, now time.Time) *StepLogEntry {
	entry := newEntry(executionID, step, StepStatusFailed, now)
	entry.Output = output
	entry.Error = message
	entry.ErrorKind = kind
	entry.DurationMS = took.Milliseconds()
	return entry
}
