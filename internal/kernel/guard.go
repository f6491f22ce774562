package kernel

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
)

// guard runs fn and turns a panic into an error carrying the stack.
func guard(scope string, fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s: panic: %v\n%s", scope, recovered, debug.Stack())
		}
	}()

	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", scope, err)
	}

	return nil
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
