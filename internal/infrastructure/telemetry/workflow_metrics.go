package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when no meter is supplied.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// WorkflowMetrics holds the fulfillment instruments: execution outcomes,
// step latency, saga transfers, provider calls, risk tiers and jobs.
type WorkflowMetrics struct {
	logger *zap.Logger

	executionsTotal *Counter
	stepDuration    *Histogram
	stepFailures    *Counter
	transfersTotal  *Counter
	providerCalls   *Counter
	riskAssessments *Counter
	jobsTotal       *Counter

	runningExecutions *Gauge
	inFlightTransfers *Gauge
	reservedStock     *Gauge

	stats       StatsProvider
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
}

// StatsProvider reports point-in-time fulfillment state for the gauges.
type StatsProvider interface {
	CountRunningExecutions(ctx context.Context) (int64, error)
	CountInFlightTransfers(ctx context.Context) (int64, error)
	TotalReservedStock(ctx context.Context) (int64, error)
}

// WorkflowMetricsConfig holds configuration for workflow metrics.
type WorkflowMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
	Stats  StatsProvider
}

// NewWorkflowMetrics creates all instruments on the given meter.
func NewWorkflowMetrics(cfg WorkflowMetricsConfig) (*WorkflowMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	wm := &WorkflowMetrics{
		logger:   logger,
		stats:    cfg.Stats,
		stopChan: make(chan struct{}),
	}

	var err error
	counters := []struct {
		target **Counter
		name   string
		desc   string
		unit   string
	}{
		{&wm.executionsTotal, "fulfillment_executions_total", "Workflow executions by type and terminal status", "{executions}"},
		{&wm.stepFailures, "fulfillment_step_failures_total", "Failed steps by type and error kind", "{steps}"},
		{&wm.transfersTotal, "fulfillment_transfers_total", "Wallet transfers by terminal status", "{transfers}"},
		{&wm.providerCalls, "fulfillment_provider_calls_total", "Provider calls by provider, operation and outcome", "{calls}"},
		{&wm.riskAssessments, "fulfillment_risk_assessments_total", "Risk assessments by tier", "{assessments}"},
		{&wm.jobsTotal, "fulfillment_jobs_total", "Background jobs by kind and terminal status", "{jobs}"},
	}
	for _, c := range counters {
		if *c.target, err = NewCounter(cfg.Meter, c.name, c.desc, c.unit); err != nil {
			return nil, err
		}
	}

	wm.stepDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "fulfillment_step_duration_seconds",
		Description: "Step handler latency",
		Unit:        "s",
		Boundaries:  StepDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	gauges := []struct {
		target **Gauge
		name   string
		desc   string
		unit   string
	}{
		{&wm.runningExecutions, "fulfillment_running_executions", "Executions currently in running status", "{executions}"},
		{&wm.inFlightTransfers, "fulfillment_inflight_transfers", "Transfers in pending or debited status", "{transfers}"},
		{&wm.reservedStock, "fulfillment_reserved_stock", "Units reserved across all products", "{units}"},
	}
	for _, g := range gauges {
		if *g.target, err = NewGauge(cfg.Meter, g.name, g.desc, g.unit); err != nil {
			return nil, err
		}
	}

	return wm, nil
}

// RecordExecution counts a finished execution.
func (wm *WorkflowMetrics) RecordExecution(ctx context.Context, workflowType, status string) {
	if wm == nil {
		return
	}
	wm.executionsTotal.Inc(ctx,
		AttrWorkflowType.String(workflowType),
		AttrStatus.String(status),
	)
}

// RecordStep records step latency; failures are also counted by error kind.
func (wm *WorkflowMetrics) RecordStep(ctx context.Context, stepType string, required bool, status, errorKind string, d time.Duration) {
	if wm == nil {
		return
	}
	wm.stepDuration.RecordDuration(ctx, d,
		AttrStepType.String(stepType),
		AttrStepRequired.Bool(required),
		AttrStatus.String(status),
	)
	if errorKind != "" {
		wm.stepFailures.Inc(ctx,
			AttrStepType.String(stepType),
			AttrErrorKind.String(errorKind),
		)
	}
}

// RecordTransfer counts a transfer reaching a terminal status.
func (wm *WorkflowMetrics) RecordTransfer(ctx context.Context, status string) {
	if wm == nil {
		return
	}
	wm.transfersTotal.Inc(ctx, AttrStatus.String(status))
}

// RecordProviderCall counts a single provider round trip.
func (wm *WorkflowMetrics) RecordProviderCall(ctx context.Context, provider, operation string, success bool) {
	if wm == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	wm.providerCalls.Inc(ctx,
		AttrProvider.String(provider),
		AttrOperation.String(operation),
		AttrStatus.String(status),
	)
}

// RecordRiskAssessment counts an assessment by tier.
func (wm *WorkflowMetrics) RecordRiskAssessment(ctx context.Context, tier string) {
	if wm == nil {
		return
	}
	wm.riskAssessments.Inc(ctx, AttrRiskTier.String(tier))
}

// RecordJob counts a job reaching a terminal status.
func (wm *WorkflowMetrics) RecordJob(ctx context.Context, kind, status string) {
	if wm == nil {
		return
	}
	wm.jobsTotal.Inc(ctx,
		AttrJobKind.String(kind),
		AttrStatus.String(status),
	)
}

// StartPeriodicCollection samples the stats provider every interval until
// Stop is called or ctx is done. Non-blocking; repeated calls are no-ops.
func (wm *WorkflowMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	wm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}
		go wm.runPeriodicCollection(ctx, interval)
	})
}

func (wm *WorkflowMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	wm.Collect(ctx)

	for {
		select {
		case <-wm.stopChan:
			wm.logger.Info("Stopping periodic workflow metrics collection")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			wm.Collect(ctx)
		}
	}
}

// Collect samples every gauge once.
func (wm *WorkflowMetrics) Collect(ctx context.Context) {
	if wm.stats == nil {
		wm.logger.Debug("No stats provider configured, skipping gauge collection")
		return
	}

	sample := func(name string, read func(context.Context) (int64, error), g *Gauge) {
		v, err := read(ctx)
		if err != nil {
			wm.logger.Warn("Failed to sample fulfillment gauge", zap.String("gauge", name), zap.Error(err))
			return
		}
		g.Record(ctx, v)
	}

	sample("running_executions", wm.stats.CountRunningExecutions, wm.runningExecutions)
	sample("inflight_transfers", wm.stats.CountInFlightTransfers, wm.inFlightTransfers)
	sample("reserved_stock", wm.stats.TotalReservedStock, wm.reservedStock)
}

// Stop stops the periodic collection.
func (wm *WorkflowMetrics) Stop() {
	wm.stopOnce.Do(func() {
		close(wm.stopChan)
	})
}
