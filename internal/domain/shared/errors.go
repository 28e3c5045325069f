package shared

import (
	"context"
	"errors"
)

// Error codes used across the fulfillment domain
const (
	CodeConfiguration          = "CONFIGURATION_ERROR"
	CodeValidation             = "VALIDATION_ERROR"
	CodeLimitExceeded          = "LIMIT_EXCEEDED"
	CodeExternalCall           = "EXTERNAL_CALL_FAILURE"
	CodeComputation            = "COMPUTATION_ERROR"
	CodeTimedOut               = "TIMED_OUT"
	CodeRequiresReconciliation = "REQUIRES_MANUAL_RECONCILIATION"
	CodeNotFound               = "NOT_FOUND"
	CodeAlreadyExists          = "ALREADY_EXISTS"
	CodeInvalidState           = "INVALID_STATE"
	CodeConcurrencyConflict    = "CONCURRENCY_CONFLICT"
)

// ErrorKind is the coarse classification recorded on failed steps
type ErrorKind string

const (
	KindNone          ErrorKind = ""
	KindConfiguration ErrorKind = "configuration"
	KindValidation    ErrorKind = "validation"
	KindExternalCall  ErrorKind = "external_call"
	KindComputation   ErrorKind = "computation"
	KindTimedOut      ErrorKind = "timed_out"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches domain errors by code so that wrapped instances compare equal
// to the package sentinels.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Kind maps the error code to its taxonomy kind
func (e *DomainError) Kind() ErrorKind {
	switch e.Code {
	case CodeConfiguration:
		return KindConfiguration
	case CodeValidation, CodeLimitExceeded, CodeNotFound, CodeAlreadyExists, CodeInvalidState:
		return KindValidation
	case CodeExternalCall:
		return KindExternalCall
	case CodeTimedOut:
		return KindTimedOut
	default:
		return KindComputation
	}
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapDomainError creates a domain error carrying an underlying cause
func WrapDomainError(code, message string, cause error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists       = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrInvalidInput        = NewDomainError(CodeValidation, "Invalid input provided")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrNoActiveWorkflow    = NewDomainError(CodeConfiguration, "No active workflow definition")
	ErrLimitExceeded       = NewDomainError(CodeLimitExceeded, "Amount exceeds provider transaction limit")
	ErrExternalCall        = NewDomainError(CodeExternalCall, "External provider call failed")
	ErrTimedOut            = NewDomainError(CodeTimedOut, "Step timed out")
)

// KindOf classifies an arbitrary error into the step failure taxonomy.
// Context deadline errors count as timeouts; anything unrecognised is a
// computation error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimedOut
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Kind()
	}
	return KindComputation
}
