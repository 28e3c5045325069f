package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
)

// WorkflowDefinitionModel is the persistence model for workflow definitions.
// Steps are stored as a JSON array of tagged step specs.
type WorkflowDefinitionModel struct {
	AggregateModel
	Name         string                `gorm:"type:varchar(200);not null"`
	WorkflowType workflow.WorkflowType `gorm:"type:varchar(32);not null;index:idx_workflow_definitions_type_active,priority:1"`
	Steps        string                `gorm:"type:jsonb;not null"`
	Active       bool                  `gorm:"not null;default:false;index:idx_workflow_definitions_type_active,priority:2"`
}

// TableName returns the table name for GORM
func (WorkflowDefinitionModel) TableName() string {
	return "workflow_definitions"
}

// ToDomain converts the model to a domain WorkflowDefinition
func (m *WorkflowDefinitionModel) ToDomain() (*workflow.WorkflowDefinition, error) {
	var steps []workflow.StepSpec
	if err := json.Unmarshal([]byte(m.Steps), &steps); err != nil {
		return nil, fmt.Errorf("decode steps of workflow %s: %w", m.ID, err)
	}
	return &workflow.WorkflowDefinition{
		BaseAggregateRoot: m.ToAggregateRoot(),
		Name:              m.Name,
		WorkflowType:      m.WorkflowType,
		Steps:             steps,
		Active:            m.Active,
	}, nil
}

// FromDomain populates the model from a domain WorkflowDefinition
func (m *WorkflowDefinitionModel) FromDomain(d *workflow.WorkflowDefinition) error {
	steps, err := json.Marshal(d.Steps)
	if err != nil {
		return fmt.Errorf("encode steps of workflow %s: %w", d.ID, err)
	}
	m.FromDomainAggregateRoot(d.BaseAggregateRoot)
	m.Name = d.Name
	m.WorkflowType = d.WorkflowType
	m.Steps = string(steps)
	m.Active = d.Active
	return nil
}

// WorkflowDefinitionModelFromDomain creates a model from a domain definition
func WorkflowDefinitionModelFromDomain(d *workflow.WorkflowDefinition) (*WorkflowDefinitionModel, error) {
	m := &WorkflowDefinitionModel{}
	if err := m.FromDomain(d); err != nil {
		return nil, err
	}
	return m, nil
}

// WorkflowExecutionModel is the persistence model for execution summaries
type WorkflowExecutionModel struct {
	AggregateModel
	OrderID              string                   `gorm:"type:varchar(100);not null;index:idx_workflow_executions_order,priority:1"`
	WorkflowDefinitionID uuid.UUID                `gorm:"type:uuid;not null;index"`
	WorkflowType         workflow.WorkflowType    `gorm:"type:varchar(32);not null"`
	Status               workflow.ExecutionStatus `gorm:"type:varchar(20);not null;index"`
	StartedAt            time.Time                `gorm:"not null;index:idx_workflow_executions_order,priority:2"`
	EndedAt              *time.Time
	CompletedSteps       int              `gorm:"not null;default:0"`
	TotalSteps           int              `gorm:"not null;default:0"`
	FailedStep           string           `gorm:"type:varchar(100)"`
	ErrorKind            shared.ErrorKind `gorm:"type:varchar(32)"`
	ErrorMessage         string           `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (WorkflowExecutionModel) TableName() string {
	return "workflow_executions"
}

// ToDomain converts the model to a domain WorkflowExecution
func (m *WorkflowExecutionModel) ToDomain() *workflow.WorkflowExecution {
	return &workflow.WorkflowExecution{
		BaseAggregateRoot:    m.ToAggregateRoot(),
		OrderID:              m.OrderID,
		WorkflowDefinitionID: m.WorkflowDefinitionID,
		WorkflowType:         m.WorkflowType,
		Status:               m.Status,
		StartedAt:            m.StartedAt,
		EndedAt:              m.EndedAt,
		CompletedSteps:       m.CompletedSteps,
		TotalSteps:           m.TotalSteps,
		FailedStep:           m.FailedStep,
		ErrorKind:            m.ErrorKind,
		ErrorMessage:         m.ErrorMessage,
	}
}

// FromDomain populates the model from a domain WorkflowExecution
func (m *WorkflowExecutionModel) FromDomain(e *workflow.WorkflowExecution) {
	m.FromDomainAggregateRoot(e.BaseAggregateRoot)
	m.OrderID = e.OrderID
	m.WorkflowDefinitionID = e.WorkflowDefinitionID
	m.WorkflowType = e.WorkflowType
	m.Status = e.Status
	m.StartedAt = e.StartedAt
	m.EndedAt = e.EndedAt
	m.CompletedSteps = e.CompletedSteps
	m.TotalSteps = e.TotalSteps
	m.FailedStep = e.FailedStep
	m.ErrorKind = e.ErrorKind
	m.ErrorMessage = e.ErrorMessage
}

// WorkflowExecutionModelFromDomain creates a model from a domain execution
func WorkflowExecutionModelFromDomain(e *workflow.WorkflowExecution) *WorkflowExecutionModel {
	m := &WorkflowExecutionModel{}
	m.FromDomain(e)
	return m
}

// StepLogEntryModel is the persistence model for the append-only step log
type StepLogEntryModel struct {
	ID          uuid.UUID           `gorm:"type:uuid;primaryKey"`
	ExecutionID uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:uq_step_log_execution_sequence,priority:1"`
	Sequence    int                 `gorm:"not null;uniqueIndex:uq_step_log_execution_sequence,priority:2"`
	StepName    string              `gorm:"type:varchar(100);not null"`
	StepType    workflow.StepType   `gorm:"type:varchar(40);not null"`
	Required    bool                `gorm:"not null"`
	Status      workflow.StepStatus `gorm:"type:varchar(20);not null"`
	Input       string              `gorm:"type:jsonb"`
	Output      string              `gorm:"type:jsonb"`
	Error       string              `gorm:"type:text"`
	ErrorKind   shared.ErrorKind    `gorm:"type:varchar(32)"`
	DurationMS  int64               `gorm:"column:duration_ms;not null;default:0"`
	RecordedAt  time.Time           `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StepLogEntryModel) TableName() string {
	return "step_log_entries"
}

// ToDomain converts the model to a domain StepLogEntry
func (m *StepLogEntryModel) ToDomain() *workflow.StepLogEntry {
	return &workflow.StepLogEntry{
		ID:          m.ID,
		ExecutionID: m.ExecutionID,
		Sequence:    m.Sequence,
		StepName:    m.StepName,
		StepType:    m.StepType,
		Required:    m.Required,
		Status:      m.Status,
		Input:       rawOrNil(m.Input),
		Output:      rawOrNil(m.Output),
		Error:       m.Error,
		ErrorKind:   m.ErrorKind,
		DurationMS:  m.DurationMS,
		RecordedAt:  m.RecordedAt,
	}
}

// StepLogEntryModelFromDomain creates a model from a domain entry
func StepLogEntryModelFromDomain(e *workflow.StepLogEntry) *StepLogEntryModel {
	return &StepLogEntryModel{
		ID:          e.ID,
		ExecutionID: e.ExecutionID,
		Sequence:    e.Sequence,
		StepName:    e.StepName,
		StepType:    e.StepType,
		Required:    e.Required,
		Status:      e.Status,
		Input:       rawString(e.Input),
		Output:      rawString(e.Output),
		Error:       e.Error,
		ErrorKind:   e.ErrorKind,
		DurationMS:  e.DurationMS,
		RecordedAt:  e.RecordedAt,
	}
}
