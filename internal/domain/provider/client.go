package provider

import (
	"context"
	"fmt"

	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Operations understood by providers
const (
	OperationDebit  = "debit"
	OperationCredit = "credit"
	OperationCharge = "charge"
	OperationNotify = "notify"
	OperationTrack  = "track"
)

// Request is a single call to an external provider
type Request struct {
	Provider       string
	Operation      string
	IdempotencyKey string
	Account        string
	Amount         decimal.Decimal
	Currency       string
	Metadata       map[string]string
}

// Response is the provider's answer. Retryable marks transient failures.
type Response struct {
	Success   bool
	Reference string
	Error     string
	Retryable bool
}

// Client calls payment, courier and notification providers. Calls may fail
// and must be assumed retryable; an error return means the outcome is unknown.
type Client interface {
	Call(ctx context.Context, req Request) (*Response, error)
}

// ResponseError converts an unsuccessful response into an external call failure
func ResponseError(req Request, resp *Response) error {
	if resp == nil {
		return shared.WrapDomainError(shared.CodeExternalCall,
			fmt.Sprintf("%s %s: empty response", req.Provider, req.Operation), shared.ErrExternalCall)
	}
	if resp.Success {
		return nil
	}
	msg := resp.Error
	if msg == "" {
		msg = "call rejected"
	}
	return &CallError{Provider: req.Provider, Operation: req.Operation, Message: msg, Retryable: resp.Retryable}
}

// CallError is a rejected provider call
type CallError struct {
	Provider  string
	Operation string
	Message   string
	Retryable bool
}

// Error implements error
func (e *CallError) Error() string {
	return fmt.Sprintf("%s %s failed: %s", e.Provider, e.Operation, e.Message)
}

// Unwrap classifies the error as an external call failure
func (e *CallError) Unwrap() error {
	return shared.ErrExternalCall
}

// Do calls the client and folds an unsuccessful response into an error
func Do(ctx context.Context, client Client, req Request) (*Response, error) {
	resp, err := client.Call(ctx, req)
	if err != nil {
		return nil, shared.WrapDomainError(shared.CodeExternalCall,
			fmt.Sprintf("%s %s", req.Provider, req.Operation), err)
	}
	if err := ResponseError(req, resp); err != nil {
		return resp, err
	}
	return resp, nil
}
