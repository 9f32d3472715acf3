package types

import (
	"context"
	"errors"
	"fmt"
)

// ValidationError reports a malformed workflow document. It is fatal at load
// time and never reaches execution.
type ValidationError struct {
	Path string
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid workflow: %s", e.Msg)
	}
	return fmt.Sprintf("invalid workflow at %s: %s", e.Path, e.Msg)
}

// NewValidationError creates a validation error anchored at the supplied
// document path (e.g. "sequence[2]").
func NewValidationError(path, format string, args ...interface{}) error {
	return &ValidationError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// ExecutorError wraps a failure reported by (or on behalf of) an executor.
// Transient failures are retried per step policy; permanent ones are not.
type ExecutorError struct {
	State     string
	Executor  string
	Transient bool
	Err       error
}

func (e *ExecutorError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("executor %s failed for state %s (%s): %v", e.Executor, e.State, kind, e.Err)
}

func (e *ExecutorError) Unwrap() error { return e.Err }

// NewTransientError classifies err as retryable.
func NewTransientError(state, executor string, err error) error {
	return &ExecutorError{State: state, Executor: executor, Transient: true, Err: err}
}

// NewPermanentError classifies err as not retryable.
func NewPermanentError(state, executor string, err error) error {
	return &ExecutorError{State: state, Executor: executor, Transient: false, Err: err}
}

// TimeoutError reports an executor call that exceeded its per-call timeout.
// Timeouts are always transient.
type TimeoutError struct {
	State    string
	Executor string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("executor %s timed out for state %s", e.Executor, e.State)
}

// Safety aborts and lookup failures raised by the engine.
var (
	ErrCycleDetected    = errors.New("cycle detected in state progression")
	ErrIterationLimit   = errors.New("iteration limit exceeded")
	ErrHalted           = errors.New("run halted for external intervention")
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrStateNotFound    = errors.New("state not found in workflow")
)

// IsTransient reports whether err should drive a retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	var execErr *ExecutorError
	if errors.As(err, &execErr) {
		return execErr.Transient
	}
	return errors.Is(err, context.DeadlineExceeded)
}
