// Package middleware implements an onion-model call-wrapping chain over
// amqp91's heterogeneous synchronous method calls (Exchange.Declare,
// Queue.Bind, Basic.Get, ...), each with its own argument and return
// shape.
//
// Every middleware wraps a HandlerFunc operating on a type-erased
// Invocation/Result pair, since no single concrete request/response type
// covers every channel method. An Invocation names which channel method
// is being called (for logging and retry classification) and Invoke
// bridges a caller's typed channel.Channel call into the untyped chain
// and back.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Call:     A.before → B.before → C.before → handler
//	Return:   handler → C.after → B.after → A.after
package middleware

import "context"

// Invocation names the channel method being called, for logging and for
// middlewares (retry) that need to know what failed.
type Invocation struct {
	Method string
}

// Result carries a handler's outcome. Value holds whatever the wrapped
// channel call returned, boxed as any; Invoke unboxes it back to the
// caller's concrete type.
type Result struct {
	Value any
	Err   error
}

// HandlerFunc is the function signature every middleware wraps.
type HandlerFunc func(ctx context.Context, inv *Invocation) *Result

// Middleware takes a handler and returns a new handler that wraps it.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes multiple middlewares into one, built right to left so
// the first middleware in the list is the outermost layer (executed
// first on the call, last on the return).
//
// Example:
//
//	chain := Chain(Logging, Timeout, RateLimit)
//	handler := chain(terminal)
//	// Execution: Logging → Timeout → RateLimit → terminal → RateLimit → Timeout → Logging
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Invoke runs fn through mw (the result of Chain, or a single Middleware;
// nil runs fn directly with no wrapping), labeling the call as method for
// logging/retry. It is the seam between amqp91's typed per-method API
// (channel.Channel.QueueDeclare, Basic.Get, ...) and the untyped handler
// chain above, since those methods don't share one request/response type.
func Invoke[T any](mw Middleware, ctx context.Context, method string, fn func(ctx context.Context) (T, error)) (T, error) {
	terminal := func(ctx context.Context, _ *Invocation) *Result {
		v, err := fn(ctx)
		return &Result{Value: v, Err: err}
	}
	handler := HandlerFunc(terminal)
	if mw != nil {
		handler = mw(terminal)
	}
	res := handler(ctx, &Invocation{Method: method})
	if res.Err != nil {
		var zero T
		return zero, res.Err
	}
	v, _ := res.Value.(T)
	return v, nil
}
