package errors

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic converts a recovered value into an internal error carrying
// the stack. It returns nil for a nil value.
func RecoverPanic(r interface{}) error {
	if r == nil {
		return nil
	}

	var cause error
	switch v := r.(type) {
	case error:
		cause = v
	case string:
		cause = fmt.Errorf("panic: %s", v)
	default:
		cause = fmt.Errorf("panic: %v", v)
	}

	return ErrInternal.
		WithCause(cause).
		WithDetail("panic", true).
		WithDetail("stack_trace", string(debug.Stack()))
}
