package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
	"github.com/marketplace/fulfillment/internal/infrastructure/logger"
	"github.com/marketplace/fulfillment/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultStepTimeout applies when neither the step nor the executor sets one
const DefaultStepTimeout = 30 * time.Second

// RunRequest asks for one workflow run against an order
type RunRequest struct {
	OrderID      string
	WorkflowType workflow.WorkflowType
	Order        *workflow.OrderData
}

// ExecutionResult summarises a finished run
type ExecutionResult struct {
	Success        bool
	ExecutionID    uuid.UUID
	WorkflowID     uuid.UUID
	WorkflowType   workflow.WorkflowType
	Status         workflow.ExecutionStatus
	Log            []*workflow.StepLogEntry
	CompletedSteps int
	TotalSteps     int
	FailedStep     string
	ErrorKind      shared.ErrorKind
	Error          string
	Annotations    map[string]string
}

// Executor runs the steps of the active definition of a workflow type
// strictly in order, logging every transition to the step log.
type Executor struct {
	definitions workflow.DefinitionRepository
	executions  workflow.ExecutionRepository
	logs        workflow.StepLogRepository
	handlers    *HandlerRegistry
	publisher   shared.EventPublisher
	metrics     *telemetry.WorkflowMetrics
	logger      *zap.Logger
	stepTimeout time.Duration
	now         func() time.Time
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithStepTimeout sets the timeout of steps whose config sets none
func WithStepTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.stepTimeout = d
		}
	}
}

// WithEventPublisher publishes execution finished events
func WithEventPublisher(p shared.EventPublisher) ExecutorOption {
	return func(e *Executor) {
		e.publisher = p
	}
}

// WithMetrics records executions and steps
func WithMetrics(m *telemetry.WorkflowMetrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor creates an Executor
func NewExecutor(
	definitions workflow.DefinitionRepository,
	executions workflow.ExecutionRepository,
	logs workflow.StepLogRepository,
	handlers *HandlerRegistry,
	log *zap.Logger,
	opts ...ExecutorOption,
) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Executor{
		definitions: definitions,
		executions:  executions,
		logs:        logs,
		handlers:    handlers,
		logger:      log,
		stepTimeout: DefaultStepTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the active workflow of the requested type.
//
// A missing active definition or malformed order fails before an execution
// is created. Once the execution exists, a failed required step ends the run
// with Success false and a nil error; only log store failures are returned
// as errors alongside the partial result.
func (e *Executor) Run(ctx context.Context, req RunRequest) (*ExecutionResult, error) {
	ctx, _ = logger.WithOrderID(ctx, e.logger, req.OrderID)
	ctx, span := telemetry.StartSpan(ctx, "workflow.run",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, req.OrderID),
		telemetry.WithAttribute(telemetry.SpanAttrWorkflowType, string(req.WorkflowType)),
	)
	defer span.End()

	def, err := e.prepare(ctx, req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	exec := workflow.NewWorkflowExecution(req.OrderID, def, e.now())
	if err := e.executions.Create(ctx, exec); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("create execution: %w", err)
	}
	ctx, _ = logger.WithExecutionID(ctx, e.logger, exec.ID.String())
	telemetry.SetAttributes(span,
		telemetry.SpanAttrWorkflowID, def.ID.String(),
		telemetry.SpanAttrExecutionID, exec.ID.String(),
	)
	logger.L(ctx).Info("Workflow started",
		zap.String("workflow_type", string(def.WorkflowType)),
		zap.String("workflow_id", def.ID.String()),
		zap.Int("steps", def.StepCount()),
	)

	run := &run{
		exec:  exec,
		order: req.Order.Clone(),
		state: workflow.NewRunState(),
	}
	runErr := e.runSteps(ctx, def, run)

	if exec.Status == workflow.ExecutionStatusRunning {
		if runErr != nil {
			_ = exec.Fail(run.current, shared.KindComputation, runErr.Error(), e.now())
		} else {
			_ = exec.Complete(e.now())
		}
	}
	if err := e.executions.Update(context.WithoutCancel(ctx), exec); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("update execution: %w", err))
	}
	e.publish(ctx, exec)
	e.metrics.RecordExecution(ctx, string(def.WorkflowType), string(exec.Status))

	result := &ExecutionResult{
		Success:        exec.Status == workflow.ExecutionStatusCompleted,
		ExecutionID:    exec.ID,
		WorkflowID:     def.ID,
		WorkflowType:   def.WorkflowType,
		Status:         exec.Status,
		Log:            run.entries,
		CompletedSteps: exec.CompletedSteps,
		TotalSteps:     exec.TotalSteps,
		FailedStep:     exec.FailedStep,
		ErrorKind:      exec.ErrorKind,
		Error:          exec.ErrorMessage,
		Annotations:    run.order.Annotations,
	}

	fields := []zap.Field{
		zap.String("status", string(exec.Status)),
		zap.Int("completed_steps", exec.CompletedSteps),
		zap.Int("total_steps", exec.TotalSteps),
		zap.Duration("duration", exec.Duration()),
	}
	if result.Success {
		telemetry.SetOK(span)
		logger.L(ctx).Info("Workflow completed", fields...)
	} else {
		telemetry.SetAttribute(span, telemetry.SpanAttrErrorKind, string(exec.ErrorKind))
		telemetry.RecordError(span, errors.New(exec.ErrorMessage))
		logger.L(ctx).Warn("Workflow failed",
			append(fields,
				zap.String("failed_step", exec.FailedStep),
				zap.String("error_kind", string(exec.ErrorKind)),
				zap.String("error", exec.ErrorMessage),
			)...)
	}
	return result, runErr
}

func (e *Executor) prepare(ctx context.Context, req RunRequest) (*workflow.WorkflowDefinition, error) {
	if req.OrderID == "" {
		return nil, shared.NewDomainError(shared.CodeValidation, "order_id is required")
	}
	if !req.WorkflowType.IsValid() {
		return nil, shared.NewDomainError(shared.CodeValidation, fmt.Sprintf("unknown workflow type %q", req.WorkflowType))
	}
	def, err := e.definitions.FindActiveByType(ctx, req.WorkflowType)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.WrapDomainError(shared.CodeConfiguration,
			fmt.Sprintf("no active workflow definition for type %s", req.WorkflowType), shared.ErrNoActiveWorkflow)
	}
	if err != nil {
		return nil, fmt.Errorf("find active workflow: %w", err)
	}
	if req.Order == nil {
		return nil, shared.NewDomainError(shared.CodeValidation, "order data is required")
	}
	if err := req.Order.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

type run struct {
	exec    *workflow.WorkflowExecution
	order   *workflow.OrderData
	state   *workflow.RunState
	entries []*workflow.StepLogEntry
	current string
}

type stepInputSnapshot struct {
	OrderID string              `json:"order_id"`
	Order   *workflow.OrderData `json:"order"`
	Config  json.RawMessage     `json:"config,omitempty"`
}

func (e *Executor) runSteps(ctx context.Context, def *workflow.WorkflowDefinition, r *run) error {
	for _, step := range def.Steps {
		r.current = step.Name
		if err := e.runStep(ctx, step, r); err != nil {
			return err
		}
		if r.exec.Status.IsTerminal() {
			return nil
		}
	}
	return nil
}

func (e *Executor) runStep(ctx context.Context, step workflow.StepSpec, r *run) error {
	ctx, span := telemetry.StartSpan(ctx, "workflow.step",
		telemetry.WithAttribute(telemetry.SpanAttrStepName, step.Name),
		telemetry.WithAttribute(telemetry.SpanAttrStepType, string(step.Type)),
		telemetry.WithAttribute(telemetry.SpanAttrStepRequired, step.Required),
	)
	defer span.End()
	log := logger.L(ctx).With(zap.String("step", step.Name), zap.String("step_type", string(step.Type)))

	if err := e.append(ctx, r, workflow.NewInProgressEntry(r.exec.ID, step, e.snapshot(r, step), e.now())); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	started := e.now()
	res := e.invoke(ctx, step, StepInput{
		OrderID:     r.exec.OrderID,
		ExecutionID: r.exec.ID,
		StepName:    step.Name,
		Order:       r.order.Clone(),
		Config:      step.Config,
		State:       r.state.Snapshot(),
	})
	took := e.now().Sub(started)

	output, err := marshalOutput(res.Output)
	if err != nil && res.Success {
		res = Failed(nil, shared.WrapDomainError(shared.CodeComputation, "encode step output", err))
	}

	if res.Success {
		if err := e.append(ctx, r, workflow.NewCompletedEntry(r.exec.ID, step, output, took, e.now())); err != nil {
			telemetry.RecordError(span, err)
			return err
		}
		r.state.Record(step.Name, res.Output)
		for k, v := range res.Annotations {
			r.order.Annotate(k, v)
		}
		_ = r.exec.RecordStepCompleted()
		e.metrics.RecordStep(ctx, string(step.Type), step.Required, string(workflow.StepStatusCompleted), "", took)
		telemetry.SetOK(span)
		log.Info("Step completed", zap.Duration("took", took))
		return nil
	}

	message := res.Err.Error()
	if err := e.append(ctx, r, workflow.NewFailedEntry(r.exec.ID, step, output, res.ErrorKind, message, took, e.now())); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	e.metrics.RecordStep(ctx, string(step.Type), step.Required, string(workflow.StepStatusFailed), string(res.ErrorKind), took)
	telemetry.SetAttribute(span, telemetry.SpanAttrErrorKind, string(res.ErrorKind))
	telemetry.RecordError(span, res.Err)

	if !step.Required {
		log.Warn("Optional step failed, continuing",
			zap.String("error_kind", string(res.ErrorKind)),
			zap.Error(res.Err),
		)
		return nil
	}
	log.Error("Required step failed, aborting workflow",
		zap.String("error_kind", string(res.ErrorKind)),
		zap.Error(res.Err),
	)
	return r.exec.Fail(step.Name, res.ErrorKind, message, e.now())
}

// invoke runs the handler under the step timeout. The executor stops waiting
// at the deadline even if the handler ignores its context; the abandoned
// handler only holds copies of the order and run state.
func (e *Executor) invoke(ctx context.Context, step workflow.StepSpec, in StepInput) StepResult {
	handler, err := e.handlers.Get(step.Type)
	if err != nil {
		return Failed(nil, err)
	}

	timeout := e.stepTimeout
	if step.Config != nil && step.Config.StepTimeout() > 0 {
		timeout = step.Config.StepTimeout()
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan StepResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- Failed(nil, shared.NewDomainError(shared.CodeComputation, fmt.Sprintf("step handler panicked: %v", p)))
			}
		}()
		done <- handler.Handle(stepCtx, in)
	}()

	select {
	case res := <-done:
		return normalize(res)
	case <-stepCtx.Done():
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return Failed(nil, shared.WrapDomainError(shared.CodeTimedOut,
				fmt.Sprintf("step %s timed out after %s", step.Name, timeout), stepCtx.Err()))
		}
		return Failed(nil, shared.WrapDomainError(shared.CodeComputation,
			fmt.Sprintf("step %s cancelled", step.Name), stepCtx.Err()))
	}
}

func normalize(res StepResult) StepResult {
	if res.Success {
		res.Err = nil
		res.ErrorKind = shared.KindNone
		return res
	}
	if res.Err == nil {
		res.Err = shared.NewDomainError(shared.CodeComputation, "step reported failure without an error")
	}
	if res.ErrorKind == shared.KindNone {
		res.ErrorKind = shared.KindOf(res.Err)
	}
	return res
}

func (e *Executor) append(ctx context.Context, r *run, entry *workflow.StepLogEntry) error {
	if err := e.logs.Append(context.WithoutCancel(ctx), entry); err != nil {
		return fmt.Errorf("append step log entry: %w", err)
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (e *Executor) snapshot(r *run, step workflow.StepSpec) json.RawMessage {
	in := stepInputSnapshot{OrderID: r.exec.OrderID, Order: r.order}
	if step.Config != nil {
		if cfg, err := workflow.EncodeStepConfig(step.Config); err == nil {
			in.Config = cfg
		}
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil
	}
	return body
}

func (e *Executor) publish(ctx context.Context, exec *workflow.WorkflowExecution) {
	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, exec.GetDomainEvents()...); err != nil {
			logger.L(ctx).Warn("failed to publish execution event", zap.Error(err))
		}
	}
	exec.ClearDomainEvents()
}

func marshalOutput(output any) (json.RawMessage, error) {
	if output == nil {
		return nil, nil
	}
	return json.Marshal(output)
}
