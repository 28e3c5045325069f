// Package provider contains provider.Client implementations: a deterministic
// in-process fake standing in for payment, courier and notification
// providers, and decorators adding retries and idempotent replay.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/marketplace/fulfillment/internal/domain/provider"
	"github.com/shopspring/decimal"
)

// ErrTransport is returned by the fake for injected transport failures.
var ErrTransport = errors.New("provider transport failure")

type fault struct {
	message   string
	retryable bool
	transport bool
}

// FakeClient is a deterministic provider. Each (provider, account) pair holds
// a balance that debits draw down and credits refill; other operations only
// produce references. Faults can be queued per (provider, operation).
type FakeClient struct {
	mu             sync.Mutex
	openingBalance decimal.Decimal
	balances       map[string]decimal.Decimal
	faults         map[string][]fault
	latency        time.Duration
	calls          []domain.Request
	seq            int
}

// FakeOption configures a FakeClient
type FakeOption func(*FakeClient)

// WithOpeningBalance sets the balance of accounts seen for the first time.
func WithOpeningBalance(amount decimal.Decimal) FakeOption {
	return func(c *FakeClient) {
		c.openingBalance = amount
	}
}

// WithLatency delays every call, honouring context cancellation.
func WithLatency(d time.Duration) FakeOption {
	return func(c *FakeClient) {
		c.latency = d
	}
}

// NewFakeClient creates a fake provider client
func NewFakeClient(opts ...FakeOption) *FakeClient {
	c := &FakeClient{
		openingBalance: decimal.NewFromInt(1_000_000),
		balances:       make(map[string]decimal.Decimal),
		faults:         make(map[string][]fault),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func accountKey(providerName, account string) string {
	return providerName + "/" + account
}

func faultKey(providerName, operation string) string {
	return providerName + ":" + operation
}

// SetBalance overrides an account balance.
func (c *FakeClient) SetBalance(providerName, account string, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[accountKey(providerName, account)] = amount
}

// Balance returns an account balance.
func (c *FakeClient) Balance(providerName, account string) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balanceLocked(providerName, account)
}

func (c *FakeClient) balanceLocked(providerName, account string) decimal.Decimal {
	if b, ok := c.balances[accountKey(providerName, account)]; ok {
		return b
	}
	return c.openingBalance
}

// FailNext makes the next n calls of operation on providerName return an
// unsuccessful response.
func (c *FakeClient) FailNext(providerName, operation string, n int, retryable bool) {
	c.queueFaults(providerName, operation, n, fault{message: "injected failure", retryable: retryable})
}

// FailNextTransport makes the next n calls return ErrTransport.
func (c *FakeClient) FailNextTransport(providerName, operation string, n int) {
	c.queueFaults(providerName, operation, n, fault{transport: true})
}

func (c *FakeClient) queueFaults(providerName, operation string, n int, f fault) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := faultKey(providerName, operation)
	for i := 0; i < n; i++ {
		c.faults[key] = append(c.faults[key], f)
	}
}

// Calls returns every request received, in order.
func (c *FakeClient) Calls() []domain.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Request, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount counts received requests for (provider, operation).
func (c *FakeClient) CallCount(providerName, operation string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.calls {
		if r.Provider == providerName && r.Operation == operation {
			n++
		}
	}
	return n
}

// Call implements provider.Client
func (c *FakeClient) Call(ctx context.Context, req domain.Request) (*domain.Response, error) {
	if c.latency > 0 {
		timer := time.NewTimer(c.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, req)

	key := faultKey(req.Provider, req.Operation)
	if queue := c.faults[key]; len(queue) > 0 {
		f := queue[0]
		c.faults[key] = queue[1:]
		if f.transport {
			return nil, ErrTransport
		}
		return &domain.Response{Error: f.message, Retryable: f.retryable}, nil
	}

	switch req.Operation {
	case domain.OperationDebit:
		if !req.Amount.IsPositive() {
			return &domain.Response{Error: "amount must be positive"}, nil
		}
		balance := c.balanceLocked(req.Provider, req.Account)
		if balance.LessThan(req.Amount) {
			return &domain.Response{Error: "insufficient funds"}, nil
		}
		c.balances[accountKey(req.Provider, req.Account)] = balance.Sub(req.Amount)
	case domain.OperationCredit:
		if !req.Amount.IsPositive() {
			return &domain.Response{Error: "amount must be positive"}, nil
		}
		balance := c.balanceLocked(req.Provider, req.Account)
		c.balances[accountKey(req.Provider, req.Account)] = balance.Add(req.Amount)
	case domain.OperationCharge, domain.OperationNotify, domain.OperationTrack:
	default:
		return &domain.Response{Error: fmt.Sprintf("unsupported operation %q", req.Operation)}, nil
	}

	c.seq++
	return &domain.Response{
		Success:   true,
		Reference: fmt.Sprintf("%s-%s-%06d", req.Provider, req.Operation, c.seq),
	}, nil
}
