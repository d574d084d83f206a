package core

import "fmt"

// ErrorKind tags every engine failure with a stable, machine-checkable
// category. The set is closed; downstream consumers switch on it.
type ErrorKind string

const (
	ErrAuthorization      ErrorKind = "AuthorizationError"
	ErrUnknownTool        ErrorKind = "UnknownTool"
	ErrValidation         ErrorKind = "ValidationError"
	ErrInsufficientPerms  ErrorKind = "InsufficientPermissions"
	ErrRateLimitExceeded  ErrorKind = "RateLimitExceeded"
	ErrConfirmation       ErrorKind = "ConfirmationRequired"
	ErrExecution          ErrorKind = "ExecutionError"
	ErrNotFound           ErrorKind = "NotFound"
	ErrPermissionDenied   ErrorKind = "PermissionDenied"
	ErrNetwork            ErrorKind = "NetworkError"
	ErrDatabase           ErrorKind = "DatabaseError"
	ErrAPI                ErrorKind = "APIError"
	ErrChainValidation    ErrorKind = "ChainValidationError"
	ErrEmptyChain         ErrorKind = "EmptyChain"
	ErrArgumentGeneration ErrorKind = "ArgumentGenerationError"
	ErrChainStepFailed    ErrorKind = "ChainStepFailed"
	ErrChainExecution     ErrorKind = "ChainExecutionError"
)

// Error is the failure payload of a Result. Only Kind and Message are
// always present; the remaining fields qualify the failure when known.
type Error struct {
	Kind       ErrorKind `json:"type"`
	Message    string    `json:"message"`
	Operation  string    `json:"operation,omitempty"`
	Entity     string    `json:"entity,omitempty"`
	ID         string    `json:"id,omitempty"`
	Field      string    `json:"field,omitempty"`
	Code       int       `json:"code,omitempty"`       // HTTP status when the failure came off the wire
	RetryAfter int       `json:"retryAfter,omitempty"` // seconds, set on RateLimitExceeded
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// NewError builds a bare kind+message error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf builds a kind error with a formatted message.
func Errorf(kind ErrorKind, format string, a ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...)}
}

// Result is the discriminated union returned by every dispatch. Exactly
// one of Data and Error is meaningful: Success=true carries Data,
// Success=false carries Error. Engine code never panics or returns Go
// errors across a dispatch boundary; it returns a failed Result.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Ok wraps a payload in a successful Result.
func Ok(data any) Result {
	return Result{Success: true, Data: data}
}

// Fail wraps an Error in a failed Result.
func Fail(err *Error) Result {
	return Result{Success: false, Error: err}
}

// Failf is shorthand for Fail(Errorf(...)).
func Failf(kind ErrorKind, format string, a ...any) Result {
	return Result{Success: false, Error: Errorf(kind, format, a...)}
}

// IsKind reports whether the result failed with the given kind.
func (r Result) IsKind(kind ErrorKind) bool {
	return !r.Success && r.Error != nil && r.Error.Kind == kind
}
