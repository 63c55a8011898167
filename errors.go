package reactor

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrRegistryClosed is returned by driving-loop operations after Shutdown.
var ErrRegistryClosed = errors.New("registry is closed")

// EvalError wraps a failure inside a compute's evaluation function.
type EvalError struct {
	Type       TypeID
	Cause      error
	Context    string
	StackTrace []byte
}

func (e *EvalError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("eval error in %v during %s: %v", e.Type, e.Context, e.Cause)
	}
	return fmt.Sprintf("eval error in %v: %v", e.Type, e.Cause)
}

func (e *EvalError) Unwrap() error {
	return e.Cause
}

func newEvalError(typ TypeID, cause error, context string) *EvalError {
	return &EvalError{
		Type:       typ,
		Cause:      cause,
		Context:    context,
		StackTrace: debug.Stack(),
	}
}

// SafeTypeAssertion performs safe type assertion with a proper error.
func SafeTypeAssertion[T any](value any) (T, error) {
	if value == nil {
		var zero T
		return zero, nil
	}

	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("type assertion error: expected %T, got %T (value: %v)", zero, value, value)
	}

	return typed, nil
}
