package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LoggingMiddleware records the method name, duration, and any error for
// each call it wraps, via the same *zap.Logger threaded through
// client.Client, connection.Engine, and channel.Channel.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) *Result {
			start := time.Now()
			res := next(ctx, inv)
			duration := time.Since(start)

			if res.Err != nil {
				logger.Warn("amqp91: method call failed",
					zap.String("method", inv.Method), zap.Duration("duration", duration), zap.Error(res.Err))
			} else {
				logger.Debug("amqp91: method call completed",
					zap.String("method", inv.Method), zap.Duration("duration", duration))
			}
			return res
		}
	}
}
