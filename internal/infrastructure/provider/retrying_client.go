package provider

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	domain "github.com/marketplace/fulfillment/internal/domain/provider"
	"github.com/marketplace/fulfillment/internal/infrastructure/logger"
	"github.com/marketplace/fulfillment/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RetryConfig bounds provider call retries
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	CallTimeout     time.Duration // per attempt; zero means the caller's deadline only
}

// DefaultRetryConfig returns the default retry settings
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		CallTimeout:     5 * time.Second,
	}
}

// RetryingClient retries transport errors and retryable rejections with
// exponential backoff. Non-retryable rejections are returned immediately.
type RetryingClient struct {
	next    domain.Client
	cfg     RetryConfig
	logger  *zap.Logger
	metrics *telemetry.WorkflowMetrics
}

// RetryOption configures a RetryingClient
type RetryOption func(*RetryingClient)

// WithMetrics records every attempt on the workflow metrics.
func WithMetrics(m *telemetry.WorkflowMetrics) RetryOption {
	return func(c *RetryingClient) {
		c.metrics = m
	}
}

// NewRetryingClient wraps next with retries
func NewRetryingClient(next domain.Client, cfg RetryConfig, log *zap.Logger, opts ...RetryOption) *RetryingClient {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &RetryingClient{next: next, cfg: cfg, logger: log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	errRetryableRejection = errors.New("retryable rejection")
	errEmptyResponse      = errors.New("empty provider response")
)

func (c *RetryingClient) newBackOff(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.InitialInterval
	exp.MaxInterval = c.cfg.MaxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.cfg.MaxAttempts-1)), ctx)
}

// Call implements provider.Client. The last response received is returned
// even when unsuccessful; an error means no attempt produced a response.
func (c *RetryingClient) Call(ctx context.Context, req domain.Request) (*domain.Response, error) {
	ctx, span := telemetry.StartSpan(ctx, "provider.call",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrProvider, req.Provider),
		telemetry.WithAttribute(telemetry.SpanAttrOperation, req.Operation),
		telemetry.WithAttribute(telemetry.SpanAttrIdempotencyKey, req.IdempotencyKey),
	)
	defer span.End()

	var (
		last    *domain.Response
		attempt int
	)
	operation := func() error {
		attempt++
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if c.cfg.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		}
		defer cancel()

		resp, err := c.next.Call(callCtx, req)
		c.metrics.RecordProviderCall(ctx, req.Provider, req.Operation, err == nil && resp != nil && resp.Success)
		if err == nil && resp == nil {
			err = errEmptyResponse
		}
		if err != nil {
			last = nil
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		last = resp
		switch {
		case resp.Success:
			return nil
		case resp.Retryable:
			return errRetryableRejection
		default:
			return backoff.Permanent(domain.ResponseError(req, resp))
		}
	}

	notify := func(err error, wait time.Duration) {
		logger.L(ctx).Warn("provider call failed, retrying",
			zap.String("provider", req.Provider),
			zap.String("operation", req.Operation),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		telemetry.AddEvent(span, "retry", telemetry.SpanAttrAttempt, attempt)
	}

	err := backoff.RetryNotify(operation, c.newBackOff(ctx), notify)
	telemetry.SetAttribute(span, telemetry.SpanAttrAttempt, attempt)

	if last != nil {
		if !last.Success {
			telemetry.RecordError(span, domain.ResponseError(req, last))
		}
		return last, nil
	}
	telemetry.RecordError(span, err)
	return nil, err
}
