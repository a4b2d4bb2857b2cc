// Package future implements the polymorphic completion sink used by the
// channel engine's request trackers: one uniform, type-erased Sink that
// the dispatcher pushes decoded values into, with a typed Future[T]
// wrapper at the call site so callers never handle `any`.
//
// The design is a channel-based single-response slot, as used for RPC
// correlation, extended with a cancellation path and a success/failure
// result instead of a bare channel of one fixed message type.
package future

import (
	"context"
	"sync/atomic"

	amqp "github.com/cordio/amqp91"
)

type result struct {
	value any
	err   error
}

// Sink is the type-erased target a request tracker holds. Complete and
// Fail are mutually exclusive; only the first call among them (or a
// prior Cancel) has effect — later calls are silently dropped, which is
// how a cancelled-but-still-enqueued tracker absorbs a late reply.
type Sink interface {
	Complete(value any)
	Fail(err error)
}

// Future is a single-assignment, typed future over a Sink. T is the
// method's result type as the channel engine uses it: []any (the decoded
// reply arguments) for ordinary synchronous replies, *consumer.Consumer
// for Basic.Consume, and *amqp.GetResult for Basic.Get.
type Future[T any] struct {
	ch   chan result
	done atomic.Bool
}

// New creates an unresolved future with capacity for exactly one result.
func New[T any]() *Future[T] {
	return &Future[T]{ch: make(chan result, 1)}
}

// Complete implements Sink. value must be assertable to T (or nil for a
// zero-value T); a failed assertion yields T's zero value, never a
// panic, since a decode bug should surface as a wrong result, not a
// crashed event loop.
func (f *Future[T]) Complete(value any) {
	if !f.done.CompareAndSwap(false, true) {
		return
	}
	v, _ := value.(T)
	f.ch <- result{value: v}
}

// Fail implements Sink.
func (f *Future[T]) Fail(err error) {
	if !f.done.CompareAndSwap(false, true) {
		return
	}
	f.ch <- result{err: err}
}

// Cancel locally completes the future with amqp.ErrCancelled. The
// in-flight tracker that owns this sink is left registered — if the
// peer's reply still arrives, it is decoded and pushed into this same
// sink, where the done flag makes it a no-op.
func (f *Future[T]) Cancel() {
	f.Fail(amqp.ErrCancelled)
}

// Wait blocks until the future resolves or ctx is done, whichever comes
// first. A context cancellation does not cancel the underlying tracker
// (see Cancel) — it only stops this particular caller from waiting.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case r := <-f.ch:
		if r.err != nil {
			var zero T
			return zero, r.err
		}
		v, _ := r.value.(T)
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
