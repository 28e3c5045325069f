package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Input error codes
const (
	ErrCodeValidation    = "ERR_VALIDATION"
	ErrCodeLimitExceeded = "ERR_LIMIT_EXCEEDED"
	ErrCodeBadRequest    = "ERR_BAD_REQUEST"
	ErrCodeInvalidJSON   = "ERR_INVALID_JSON"
	ErrCodeTooLarge      = "ERR_REQUEST_TOO_LARGE"
	ErrCodeRateLimited   = "ERR_RATE_LIMITED"
)

// Workflow failure codes
const (
	// ErrCodeConfiguration is used when no usable workflow or handler exists
	ErrCodeConfiguration = "ERR_CONFIGURATION"
	// ErrCodeStepFailed is used when a required step aborted the workflow
	ErrCodeStepFailed = "ERR_STEP_FAILED"
	// ErrCodeExternalCall is used when a provider call failed
	ErrCodeExternalCall = "ERR_EXTERNAL_CALL"
	// ErrCodeComputation is used for unexpected failures inside a step
	ErrCodeComputation = "ERR_COMPUTATION"
	// ErrCodeTimedOut is used when a step or job ran past its deadline
	ErrCodeTimedOut = "ERR_TIMED_OUT"
	// ErrCodeRequiresReconciliation is used when a transfer needs manual repair
	ErrCodeRequiresReconciliation = "ERR_REQUIRES_RECONCILIATION"
)

// Resource error codes
const (
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeInvalidState        = "ERR_INVALID_STATE"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Input errors -> 400 Bad Request
	ErrCodeValidation:    http.StatusBadRequest,
	ErrCodeLimitExceeded: http.StatusBadRequest,
	ErrCodeBadRequest:    http.StatusBadRequest,
	ErrCodeInvalidJSON:   http.StatusBadRequest,
	ErrCodeTooLarge:      http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:   http.StatusTooManyRequests,

	// Workflow failures
	ErrCodeConfiguration:          http.StatusUnprocessableEntity,
	ErrCodeStepFailed:             http.StatusUnprocessableEntity,
	ErrCodeExternalCall:           http.StatusBadGateway,
	ErrCodeComputation:            http.StatusInternalServerError,
	ErrCodeTimedOut:               http.StatusGatewayTimeout,
	ErrCodeRequiresReconciliation: http.StatusConflict,

	// Resource errors
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeInvalidState:        http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"CONFIGURATION_ERROR":            ErrCodeConfiguration,
	"VALIDATION_ERROR":               ErrCodeValidation,
	"LIMIT_EXCEEDED":                 ErrCodeLimitExceeded,
	"EXTERNAL_CALL_FAILURE":          ErrCodeExternalCall,
	"COMPUTATION_ERROR":              ErrCodeComputation,
	"TIMED_OUT":                      ErrCodeTimedOut,
	"REQUIRES_MANUAL_RECONCILIATION": ErrCodeRequiresReconciliation,
	"NOT_FOUND":                      ErrCodeNotFound,
	"ALREADY_EXISTS":                 ErrCodeAlreadyExists,
	"INVALID_STATE":                  ErrCodeInvalidState,
	"CONCURRENCY_CONFLICT":           ErrCodeConcurrencyConflict,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in the API format or unknown are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
