package middleware

import (
	"context"
	"time"

	amqp "github.com/cordio/amqp91"
)

// TimeoutMiddleware enforces a maximum duration for each call it wraps.
// If the handler doesn't complete within timeout, it returns an
// *amqp.TimeoutError immediately.
//
//  1. Derive a context with a deadline (ctx.Done() fires when it expires)
//  2. Run the next handler in a goroutine, sending its result back on a
//     buffered channel so that goroutine never leaks even if the timeout
//     fires first
//  3. Select between that channel and ctx.Done()
//
// The handler goroutine is NOT cancelled when the timeout wins the race —
// it keeps running against the underlying channel call, which amqp91's
// future.Future already ties to ctx internally, so the abandoned call
// still unblocks once that ctx is done.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) *Result {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *Result, 1)
			go func() {
				done <- next(ctx, inv)
			}()

			select {
			case res := <-done:
				return res
			case <-ctx.Done():
				return &Result{Err: &amqp.TimeoutError{Message: inv.Method + ": timed out"}}
			}
		}
	}
}
