package middleware

import (
	"context"
	"time"

	amqp "github.com/cordio/amqp91"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// RetryMiddleware retries a call up to maxRetries times with exponential
// backoff, but only when it failed with an *amqp.IoError — a transport
// hiccup, not a protocol violation or a precondition the broker will
// reject again. Any other error is returned immediately.
func RetryMiddleware(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) *Result {
			res := next(ctx, inv)
			for i := 0; i < maxRetries; i++ {
				if res.Err == nil {
					return res
				}
				var ioErr *amqp.IoError
				if !errors.As(res.Err, &ioErr) {
					return res
				}
				logger.Warn("amqp91: retrying after i/o error",
					zap.String("method", inv.Method), zap.Int("attempt", i+1), zap.Error(res.Err))
				time.Sleep(baseDelay * time.Duration(uint(1)<<uint(i)))
				res = next(ctx, inv)
			}
			return res
		}
	}
}
