package types

import "fmt"

// ErrorCode represents a unified error code across the pipeline.
type ErrorCode string

// Request and pipeline error codes
const (
	ErrValidation       ErrorCode = "VALIDATION_ERROR"
	ErrStageProcessor   ErrorCode = "STAGE_PROCESSOR_ERROR"
	ErrExternalAPI      ErrorCode = "EXTERNAL_API_ERROR"
	ErrParse            ErrorCode = "PARSE_ERROR"
	ErrCancelled        ErrorCode = "CANCELLED"
	ErrGateExhausted    ErrorCode = "QUALITY_GATE_EXHAUSTED"
	ErrTooManyWorkflows ErrorCode = "TOO_MANY_WORKFLOWS"
	ErrInternalError    ErrorCode = "INTERNAL_ERROR"
)

// Transport and upstream error codes
const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrForbidden       ErrorCode = "FORBIDDEN"
	ErrNotFound        ErrorCode = "NOT_FOUND"
	ErrRateLimited     ErrorCode = "RATE_LIMITED"
	ErrQuotaExceeded   ErrorCode = "QUOTA_EXCEEDED"
	ErrTimeout         ErrorCode = "TIMEOUT"
	ErrConnection      ErrorCode = "CONNECTION_ERROR"
	ErrUpstreamError   ErrorCode = "UPSTREAM_ERROR"
	ErrModelOverloaded ErrorCode = "MODEL_OVERLOADED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	HTTPStatus  int       `json:"http_status,omitempty"`
	Retryable   bool      `json:"retryable"`
	Details     string    `json:"details,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Cause       error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithDetails attaches free-form detail text.
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// WithSuggestions attaches remediation hints surfaced to the caller.
func (e *Error) WithSuggestions(suggestions ...string) *Error {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// CodeOf extracts the ErrorCode from an error, or ErrInternalError when the
// error is not a *types.Error.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ErrInternalError
}
