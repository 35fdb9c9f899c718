package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by the core matches exactly one of these
// through errors.Is.
var (
	ErrConfiguration        = errors.New("configuration error")
	ErrValidation           = errors.New("validation error")
	ErrCycleDetected        = errors.New("cycle detected")
	ErrDepthExceeded        = errors.New("depth exceeded")
	ErrNotFound             = errors.New("not found")
	ErrChildExecutionFailed = errors.New("child execution failed")
	ErrResourceProvisioning = errors.New("resource provisioning error")
	ErrToolLoop             = errors.New("tool loop error")
)

// ErrExecutionNotFound is returned by execution stores when an id is unknown.
var ErrExecutionNotFound = fmt.Errorf("execution record %w", ErrNotFound)

// ErrWorkflowNotFound is returned by workflow stores when the workflow does not
// exist or belongs to another owner.
var ErrWorkflowNotFound = fmt.Errorf("workflow %w", ErrNotFound)

// ErrAlreadyTerminal is returned when a status write targets a record that has
// already reached success or error.
var ErrAlreadyTerminal = errors.New("execution record already terminal")

// Error is a classified failure. Kind is one of the Err* sentinels above.
type Error struct {
	Kind    error
	Message string
	Cause   error
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the error kind, so errors.Is(err, ErrCycleDetected) works on any
// wrapped *Error.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithDetail attaches a structured detail.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func ConfigurationError(format string, args ...any) *Error {
	return newError(ErrConfiguration, format, args...)
}

func ValidationError(format string, args ...any) *Error {
	return newError(ErrValidation, format, args...)
}

func NotFoundError(format string, args ...any) *Error {
	return newError(ErrNotFound, format, args...)
}

func ResourceProvisioningError(format string, args ...any) *Error {
	return newError(ErrResourceProvisioning, format, args...)
}

// CycleDetected reports that workflowID is already an ancestor of the invocation.
func CycleDetected(workflowID string) *Error {
	return newError(ErrCycleDetected, "cycle detected: workflow %s is already in the execution path", workflowID).
		WithDetail("workflowId", workflowID)
}

// DepthExceeded reports that the nested invocation chain would exceed limit.
func DepthExceeded(limit int) *Error {
	return newError(ErrDepthExceeded, "maximum workflow nesting depth of %d exceeded", limit).
		WithDetail("limit", limit)
}

// ChildExecutionFailed carries the error message recorded by a failed child run.
func ChildExecutionFailed(message string) *Error {
	return &Error{Kind: ErrChildExecutionFailed, Message: message}
}

// ToolLoopError wraps any failure raised while driving the model/tool loop.
func ToolLoopError(cause error) *Error {
	return &Error{Kind: ErrToolLoop, Message: cause.Error(), Cause: cause}
}

// KindOf returns the sentinel kind for err, or nil when err is unclassified.
func KindOf(err error) error {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	for _, kind := range []error{
		ErrConfiguration, ErrValidation, ErrCycleDetected, ErrDepthExceeded,
		ErrNotFound, ErrChildExecutionFailed, ErrResourceProvisioning, ErrToolLoop,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
