// Package amqp implements the wire-protocol core of an AMQP 0-9-1 client:
// field/frame codecs, the connection engine, and the channel engine.
package amqp

import "github.com/pkg/errors"

// Error is implemented by the typed errors below, which callers can match
// with errors.As. Not every returned error is one of them: encoding
// failures, out-of-state calls, write failures and context errors are
// returned as plain (wrapped) errors.
type Error interface {
	error
	amqpError()
}

// IoError wraps a transport failure (connection reset, TLS handshake, …).
type IoError struct{ Cause error }

func (e *IoError) Error() string { return "amqp: i/o error: " + e.Cause.Error() }
func (e *IoError) Unwrap() error { return e.Cause }
func (*IoError) amqpError()      {}

// ProtocolError reports a malformed frame, an unexpected frame, or a bad
// end-octet — anything that indicates the peer (or we) violated the wire
// format.
type ProtocolError struct {
	Code    uint16
	Message string
}

func (e *ProtocolError) Error() string { return "amqp: protocol error: " + e.Message }
func (*ProtocolError) amqpError()      {}

// ChannelClosedError is delivered to every future pending on a channel
// when that channel closes, server- or client-initiated.
type ChannelClosedError struct {
	Code      uint16
	ReplyText string
}

func (e *ChannelClosedError) Error() string {
	return "amqp: channel closed: " + e.ReplyText
}
func (*ChannelClosedError) amqpError() {}

// ConnectionClosedError is delivered to every future pending on the
// connection (and, transitively, every channel) when the connection
// closes.
type ConnectionClosedError struct {
	Code      uint16
	ReplyText string
}

func (e *ConnectionClosedError) Error() string {
	return "amqp: connection closed: " + e.ReplyText
}
func (*ConnectionClosedError) amqpError() {}

// TimeoutError is returned by middleware.TimeoutMiddleware when a wrapped
// call outlives its deadline. Protocol calls have no internal timeout, and
// the heartbeat watchdog does not use this type: it reports a trip as a
// ConnectionClosedError with code ReplyMissedHeartbeats.
type TimeoutError struct{ Message string }

func (e *TimeoutError) Error() string { return "amqp: timeout: " + e.Message }
func (*TimeoutError) amqpError()      {}

// InvalidArgumentError reports a local precondition failure detected
// before any bytes were sent to the peer.
type InvalidArgumentError struct{ Message string }

func (e *InvalidArgumentError) Error() string { return "amqp: invalid argument: " + e.Message }
func (*InvalidArgumentError) amqpError()      {}

// CancelledError completes a future whose caller cancelled it locally.
type CancelledError struct{}

func (e *CancelledError) Error() string { return "amqp: cancelled" }
func (*CancelledError) amqpError()      {}

// ErrCancelled is the shared sentinel value for CancelledError.
var ErrCancelled = &CancelledError{}

// Wrap attaches a stack trace to err at the point a protocol violation is
// first detected, so a later "%+v" keeps the originating call site.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, message)
}
