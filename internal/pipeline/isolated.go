package pipeline

import (
	"context"
	"fmt"
	"time"
)

// RunIsolated runs fn in its own goroutine bounded by timeout. If the bound
// expires first the fallback is returned with ErrIsolatedTimeout; fn keeps
// running until it observes its cancelled context.
func RunIsolated[T any](ctx context.Context, timeout time.Duration, fallback T, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return fallback, fmt.Errorf("%w after %s: %v", ErrIsolatedTimeout, timeout, ctx.Err())
	}
}
