package domain

import (
	"errors"
	"fmt"
)

// Result is the caller-facing outcome of a step. Exactly one of Data (when
// Success) or Error (otherwise) is set; callers branch on Success only.
type Result struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Error   *Failure `json:"error,omitempty"`
}

// Failure describes a failed step. The command fields are only filled for
// direct-command execution.
type Failure struct {
	Message     string `json:"message"`
	Kind        string `json:"kind,omitempty"`
	Command     string `json:"command,omitempty"`
	SandboxType string `json:"sandboxType,omitempty"`
	Stdout      string `json:"stdout,omitempty"`
	Stderr      string `json:"stderr,omitempty"`
	ExitCode    *int   `json:"exitCode,omitempty"`
}

// Succeed builds a success result. Data is usually a JSON object but may be
// any value a parsed model answer produced.
func Succeed(data any) Result {
	if data == nil {
		data = map[string]any{}
	}
	return Result{Success: true, Data: data}
}

// Fail converts err into a failure result, copying command context when err
// carries a *CommandError.
func Fail(err error) Result {
	if err == nil {
		err = errors.New("unknown error")
	}
	f := &Failure{
		Message: err.Error(),
		Kind:    KindName(err),
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		f.Command = ce.Command
		f.SandboxType = ce.SandboxType
		f.Stdout = ce.Stdout
		f.Stderr = ce.Stderr
		f.ExitCode = ce.ExitCode
	}
	return Result{Success: false, Error: f}
}

// KindName returns the taxonomy name of err ("CycleDetected", ...), or "" when
// err is unclassified.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrConfiguration:
		return "ConfigurationError"
	case ErrValidation:
		return "ValidationError"
	case ErrCycleDetected:
		return "CycleDetected"
	case ErrDepthExceeded:
		return "DepthExceeded"
	case ErrNotFound:
		return "NotFoundError"
	case ErrChildExecutionFailed:
		return "ChildExecutionFailed"
	case ErrResourceProvisioning:
		return "ResourceProvisioningError"
	case ErrToolLoop:
		return "ToolLoopError"
	}
	return ""
}

// CommandError is a direct-command failure with its execution context.
type CommandError struct {
	Command     string
	SandboxType string
	Stdout      string
	Stderr      string
	ExitCode    *int
	Err         error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.ExitCode != nil {
		return fmt.Sprintf("command exited with code %d", *e.ExitCode)
	}
	return "command failed"
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
