package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorType represents the classification of an error
type ErrorType int

const (
	// ErrorTypeTransient indicates a temporary failure that can be retried
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a permanent failure that should not be retried
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error
	ErrorTypeTimeout
	// ErrorTypeFatal indicates a failure that left state needing operator intervention
	ErrorTypeFatal
)

// Stable error codes returned to callers. UIs switch on these, so they never change.
const (
	CodeSlotUnavailable     = "SLOT_UNAVAILABLE"
	CodeOutsideOpeningHours = "OUTSIDE_OPENING_HOURS"
	CodeDurationOutOfRange  = "DURATION_OUT_OF_RANGE"
	CodeInvalidWindow       = "INVALID_WINDOW"
	CodeStaleVersion        = "STALE_VERSION"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeNotFound            = "NOT_FOUND"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeResourceNotBookable = "RESOURCE_NOT_BOOKABLE"
	CodeIdempotencyReused   = "IDEMPOTENCY_KEY_REUSED"
	CodePrematureCompletion = "PREMATURE_COMPLETION"
	CodeCompensationFailed  = "COMPENSATION_FAILED"
	CodeStorageFailure      = "STORAGE_FAILURE"
	CodeCircuitBreakerOpen  = "CIRCUIT_BREAKER_OPEN"
	CodeStepTimeout         = "STEP_TIMEOUT"
)

// Sentinels for errors.Is comparisons. Matching is by Code, so a wrapped
// error carrying extra detail still matches its sentinel.
var (
	ErrSlotUnavailable     = NewPermanentError(CodeSlotUnavailable, "slot is no longer available", nil)
	ErrOutsideOpeningHours = NewPermanentError(CodeOutsideOpeningHours, "interval is outside opening hours", nil)
	ErrDurationOutOfRange  = NewPermanentError(CodeDurationOutOfRange, "duration is out of the allowed range", nil)
	ErrInvalidWindow       = NewPermanentError(CodeInvalidWindow, "invalid time window", nil)
	ErrStaleVersion        = NewPermanentError(CodeStaleVersion, "entity was modified by someone else", nil)
	ErrInvalidTransition   = NewPermanentError(CodeInvalidTransition, "transition not allowed from current status", nil)
	ErrNotFound            = NewPermanentError(CodeNotFound, "entity not found", nil)
	ErrValidationFailed    = NewPermanentError(CodeValidationFailed, "request validation failed", nil)
	ErrResourceNotBookable = NewPermanentError(CodeResourceNotBookable, "resource is not accepting reservations", nil)
	ErrIdempotencyReused   = NewPermanentError(CodeIdempotencyReused, "idempotency key was used with different arguments", nil)
	ErrPrematureCompletion = NewPermanentError(CodePrematureCompletion, "reservation interval has not started yet", nil)
	ErrCompensationFailed  = NewFatalError(CodeCompensationFailed, "compensation failed, orphaned entities remain", nil)
)

// CustomError is a custom error with classification and context
type CustomError struct {
	Type    ErrorType
	Message string
	Cause   error
	Code    string
}

// NewTransientError creates a new transient error
func NewTransientError(code, message string, cause error) *CustomError {
	return &CustomError{
		Type:    ErrorTypeTransient,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewPermanentError creates a new permanent error
func NewPermanentError(code, message string, cause error) *CustomError {
	return &CustomError{
		Type:    ErrorTypePermanent,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(code, message string) *CustomError {
	return &CustomError{
		Type:    ErrorTypeTimeout,
		Code:    code,
		Message: message,
	}
}

// NewFatalError creates an error that must be surfaced to an operator
func NewFatalError(code, message string, cause error) *CustomError {
	return &CustomError{
		Type:    ErrorTypeFatal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrap returns a copy of the sentinel with a more specific message and cause.
func Wrap(sentinel *CustomError, message string, cause error) *CustomError {
	return &CustomError{
		Type:    sentinel.Type,
		Code:    sentinel.Code,
		Message: message,
		Cause:   cause,
	}
}

// Storage wraps a backing store failure as a transient error
func Storage(op string, cause error) *CustomError {
	return NewTransientError(CodeStorageFailure, op, cause)
}

// Error implements the error interface
func (e *CustomError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CustomError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a CustomError with the same code
func (e *CustomError) Is(target error) bool {
	t, ok := target.(*CustomError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// IsTransient returns true if the error is transient
func (e *CustomError) IsTransient() bool {
	return e.Type == ErrorTypeTransient
}

// IsPermanent returns true if the error is permanent
func (e *CustomError) IsPermanent() bool {
	return e.Type == ErrorTypePermanent
}

// IsTimeout returns true if the error is a timeout
func (e *CustomError) IsTimeout() bool {
	return e.Type == ErrorTypeTimeout
}

// IsFatal returns true if the error requires operator intervention
func (e *CustomError) IsFatal() bool {
	return e.Type == ErrorTypeFatal
}

var grpcCodes = map[string]codes.Code{
	CodeSlotUnavailable:     codes.AlreadyExists,
	CodeOutsideOpeningHours: codes.InvalidArgument,
	CodeDurationOutOfRange:  codes.InvalidArgument,
	CodeInvalidWindow:       codes.InvalidArgument,
	CodeValidationFailed:    codes.InvalidArgument,
	CodeStaleVersion:        codes.Aborted,
	CodeInvalidTransition:   codes.FailedPrecondition,
	CodeResourceNotBookable: codes.FailedPrecondition,
	CodePrematureCompletion: codes.FailedPrecondition,
	CodeIdempotencyReused:   codes.AlreadyExists,
	CodeNotFound:            codes.NotFound,
	CodeCompensationFailed:  codes.DataLoss,
	CodeStorageFailure:      codes.Unavailable,
	CodeCircuitBreakerOpen:  codes.Unavailable,
	CodeStepTimeout:         codes.DeadlineExceeded,
}

// GRPCStatus lets status.FromError translate engine errors for gRPC callers
func (e *CustomError) GRPCStatus() *status.Status {
	code, ok := grpcCodes[e.Code]
	if !ok {
		code = codes.Internal
	}
	return status.New(code, e.Error())
}

// ClassifyError attempts to classify a regular error
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}

	var customErr *CustomError
	if stderrors.As(err, &customErr) {
		return customErr.Type
	}

	// Default to permanent for unknown errors
	return ErrorTypePermanent
}

// CodeOf returns the stable code carried by err, or "" for foreign errors
func CodeOf(err error) string {
	var customErr *CustomError
	if stderrors.As(err, &customErr) {
		return customErr.Code
	}
	return ""
}
