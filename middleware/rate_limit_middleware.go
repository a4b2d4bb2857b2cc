package middleware

import (
	"context"

	amqp "github.com/cordio/amqp91"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware throttles calls with a token bucket: tokens refill
// at r per second up to burst, and a call with no token available is
// rejected as an *amqp.InvalidArgumentError — a local precondition
// failure caught before any frame reaches the broker, same family as the
// channel package's other locally-detected preconditions (duplicate
// consumer tag, unsupported Basic.Nack).
//
// The limiter is built once in the outer closure, not per call — a
// fresh limiter per call would hand every call a full bucket and rate
// limiting would never trigger.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) *Result {
			if !limiter.Allow() {
				return &Result{Err: &amqp.InvalidArgumentError{Message: inv.Method + ": rate limit exceeded"}}
			}
			return next(ctx, inv)
		}
	}
}
