package fulfillment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
)

// ExecutionView is the response form of a workflow execution
type ExecutionView struct {
	ID             uuid.UUID                `json:"id"`
	OrderID        string                   `json:"order_id"`
	WorkflowID     uuid.UUID                `json:"workflow_id"`
	WorkflowType   workflow.WorkflowType    `json:"workflow_type"`
	Status         workflow.ExecutionStatus `json:"status"`
	StartedAt      time.Time                `json:"started_at"`
	EndedAt        *time.Time               `json:"ended_at,omitempty"`
	DurationMS     int64                    `json:"duration_ms"`
	CompletedSteps int                      `json:"completed_steps"`
	TotalSteps     int                      `json:"total_steps"`
	FailedStep     string                   `json:"failed_step,omitempty"`
	ErrorKind      shared.ErrorKind         `json:"error_kind,omitempty"`
	ErrorMessage   string                   `json:"error_message,omitempty"`
}

// NewExecutionView converts an execution
func NewExecutionView(e *workflow.WorkflowExecution) *ExecutionView {
	if e == nil {
		return nil
	}
	return &ExecutionView{
		ID:             e.ID,
		OrderID:        e.OrderID,
		WorkflowID:     e.WorkflowDefinitionID,
		WorkflowType:   e.WorkflowType,
		Status:         e.Status,
		StartedAt:      e.StartedAt,
		EndedAt:        e.EndedAt,
		DurationMS:     e.Duration().Milliseconds(),
		CompletedSteps: e.CompletedSteps,
		TotalSteps:     e.TotalSteps,
		FailedStep:     e.FailedStep,
		ErrorKind:      e.ErrorKind,
		ErrorMessage:   e.ErrorMessage,
	}
}

// StepLogView is the response form of a step log entry
type StepLogView struct {
	ExecutionID uuid.UUID           `json:"execution_id"`
	Sequence    int                 `json:"sequence"`
	StepName    string              `json:"step_name"`
	StepType    workflow.StepType   `json:"step_type"`
	Required    bool                `json:"required"`
	Status      workflow.StepStatus `json:"status"`
	Input       json.RawMessage     `json:"input,omitempty"`
	Output      json.RawMessage     `json:"output,omitempty"`
	Error       string              `json:"error,omitempty"`
	ErrorKind   shared.ErrorKind    `json:"error_kind,omitempty"`
	DurationMS  int64               `json:"duration_ms"`
	RecordedAt  time.Time           `json:"recorded_at"`
}

// NewStepLogViews converts step log entries, keeping their order
func NewStepLogViews(entries []*workflow.StepLogEntry) []StepLogView {
	out := make([]StepLogView, 0, len(entries))
	for _, e := range entries {
		out = append(out, StepLogView{
			ExecutionID: e.ExecutionID,
			Sequence:    e.Sequence,
			StepName:    e.StepName,
			StepType:    e.StepType,
			Required:    e.Required,
			Status:      e.Status,
			Input:       e.Input,
			Output:      e.Output,
			Error:       e.Error,
			ErrorKind:   e.ErrorKind,
			DurationMS:  e.DurationMS,
			RecordedAt:  e.RecordedAt,
		})
	}
	return out
}

// ExecutionResultView is the response form of an ExecutionResult
type ExecutionResultView struct {
	Success        bool                     `json:"success"`
	ExecutionID    uuid.UUID                `json:"execution_id"`
	WorkflowID     uuid.UUID                `json:"workflow_id"`
	WorkflowType   workflow.WorkflowType    `json:"workflow_type"`
	Status         workflow.ExecutionStatus `json:"status"`
	CompletedSteps int                      `json:"completed_steps"`
	TotalSteps     int                      `json:"total_steps"`
	FailedStep     string                   `json:"failed_step,omitempty"`
	ErrorKind      shared.ErrorKind         `json:"error_kind,omitempty"`
	Error          string                   `json:"error,omitempty"`
	Annotations    map[string]string        `json:"annotations,omitempty"`
	Log            []StepLogView            `json:"log"`
}

// NewExecutionResultView converts an ExecutionResult
func NewExecutionResultView(r *ExecutionResult) *ExecutionResultView {
	if r == nil {
		return nil
	}
	return &ExecutionResultView{
		Success:        r.Success,
		ExecutionID:    r.ExecutionID,
		WorkflowID:     r.WorkflowID,
		WorkflowType:   r.WorkflowType,
		Status:         r.Status,
		CompletedSteps: r.CompletedSteps,
		TotalSteps:     r.TotalSteps,
		FailedStep:     r.FailedStep,
		ErrorKind:      r.ErrorKind,
		Error:          r.Error,
		Annotations:    r.Annotations,
		Log:            NewStepLogViews(r.Log),
	}
}
