// Package connection implements the connection-level state machine that
// runs on channel 0: protocol handshake, tune negotiation, heartbeat
// watchdog, and close teardown.
package connection

import (
	"context"
	"sync"
	"time"

	amqp "github.com/cordio/amqp91"
	"github.com/cordio/amqp91/auth"
	"github.com/cordio/amqp91/config"
	"github.com/cordio/amqp91/frame"
	"github.com/cordio/amqp91/future"
	"github.com/cordio/amqp91/metrics"
	"github.com/cordio/amqp91/spectable"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FrameWriter is the subset of the client's socket-writing surface the
// engine needs. The client owns the single writer mutex; the engine
// never touches the socket directly.
type FrameWriter interface {
	WriteFrame(f *frame.Frame) error
}

// Engine drives the connection-level handshake and teardown on channel
// 0. One Engine exists per Client.
type Engine struct {
	mu    sync.Mutex
	state State

	writer FrameWriter
	opts   config.Options
	mech   auth.Mechanism
	logger *zap.Logger
	m      *metrics.Metrics

	tuned config.Tuned

	handshakeDone chan error // signaled exactly once, by whichever frame completes or fails the handshake
	closeDone     chan error // signaled when CloseOk completes a locally-initiated close

	lastTraffic time.Time

	heartbeatStop   chan struct{}
	heartbeatDone   chan struct{}
	watchdogStop    chan struct{}
	watchdogDone    chan struct{}

	// onClosed is invoked exactly once when the connection tears down,
	// whether locally or peer initiated, so the client can fail every
	// channel's in-flight trackers.
	onClosed func(err error)
}

// New constructs an Engine. Call Start to run the handshake after the
// transport's 8-byte protocol header has already been written.
func New(writer FrameWriter, opts config.Options, mech auth.Mechanism, logger *zap.Logger, m *metrics.Metrics, onClosed func(err error)) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Noop()
	}
	return &Engine{
		writer:   writer,
		opts:     opts.WithDefaults(),
		mech:     mech,
		logger:   logger,
		m:        m,
		state:    StateClosed,
		onClosed: onClosed,
	}
}

// State returns the engine's current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Tuned returns the negotiated parameters. Valid only once State() is
// StateOpened or later.
func (e *Engine) Tuned() config.Tuned {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tuned
}

// Start begins the handshake (Start/StartOk/Tune/TuneOk/Open/OpenOk) and
// blocks until the connection reaches StateOpened or the handshake
// fails. HandleFrame must be driven concurrently by the caller's read
// pump for this to make progress.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateClosed {
		e.mu.Unlock()
		return errors.New("connection: Start called out of state")
	}
	e.state = StateOpening
	e.handshakeDone = make(chan error, 1)
	e.lastTraffic = time.Now()
	e.mu.Unlock()

	select {
	case err := <-e.handshakeDone:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Touch resets the heartbeat watchdog's last-traffic clock. The client's
// read pump calls this for every frame received on any channel, not
// only channel 0.
func (e *Engine) Touch() {
	e.mu.Lock()
	e.lastTraffic = time.Now()
	e.mu.Unlock()
}

// HandleFrame processes one channel-0 method frame. It is called
// synchronously by the client's read pump.
func (e *Engine) HandleFrame(f *frame.Frame) error {
	if f.Type == frame.TypeHeartbeat {
		return nil
	}
	if f.Type != frame.TypeMethod {
		return e.protocolViolation(errors.Errorf("connection: unexpected frame type %v on channel 0", f.Type))
	}

	spec, ok := spectable.Lookup(f.ClassID, f.MethodID)
	if !ok {
		return e.protocolViolation(errors.Errorf("connection: unknown method %d.%d", f.ClassID, f.MethodID))
	}
	args, err := spectable.DecodeArgs(spec, f.Arguments)
	if err != nil {
		return e.protocolViolation(errors.Wrap(err, "connection: decode arguments"))
	}

	switch f.MethodID {
	case spectable.ConnectionStart:
		return e.handleStart(args)
	case spectable.ConnectionTune:
		return e.handleTune(args)
	case spectable.ConnectionOpenOk:
		return e.handleOpenOk()
	case spectable.ConnectionClose:
		return e.handlePeerClose(args)
	case spectable.ConnectionCloseOk:
		return e.handleCloseOk()
	default:
		e.logger.Warn("connection: dropped unhandled method", zap.Uint16("class_id", f.ClassID), zap.Uint16("method_id", f.MethodID))
		return nil
	}
}

func (e *Engine) handleStart(args []any) error {
	e.mu.Lock()
	if e.state != StateOpening {
		e.mu.Unlock()
		return e.protocolViolation(errors.New("connection: Start received out of state"))
	}
	e.state = StateStarting
	e.mu.Unlock()

	e.logger.Debug("connection: received Start")

	response, err := e.mech.Response(nil)
	if err != nil {
		return e.failHandshake(errors.Wrap(err, "connection: authenticator"))
	}
	clientProps := amqp.Table{}
	if e.opts.ConnectionName != "" {
		clientProps["connection_name"] = e.opts.ConnectionName
	}
	spec, _ := spectable.Lookup(spectable.ClassConnection, spectable.ConnectionStartOk)
	payload, err := spectable.EncodeArgs(spec, []any{
		clientProps,
		e.mech.Name(),
		string(response),
		"en_US",
	})
	if err != nil {
		return e.failHandshake(err)
	}
	return e.send(spec, payload)
}

func (e *Engine) handleTune(args []any) error {
	e.mu.Lock()
	if e.state != StateStarting {
		e.mu.Unlock()
		return e.protocolViolation(errors.New("connection: Tune received out of state"))
	}
	e.state = StateTuning
	e.mu.Unlock()

	serverChannelMax, _ := args[0].(uint16)
	serverFrameMax, _ := args[1].(uint32)
	serverHeartbeat, _ := args[2].(uint16)

	tuned := config.Negotiate(serverChannelMax, serverFrameMax, serverHeartbeat, e.opts)
	e.mu.Lock()
	e.tuned = tuned
	e.mu.Unlock()

	e.logger.Debug("connection: negotiated tune",
		zap.Uint16("channel_max", tuned.ChannelMax),
		zap.Uint32("frame_max", tuned.FrameMax),
		zap.Uint16("heartbeat_sec", tuned.HeartbeatSec))

	tuneOkSpec, _ := spectable.Lookup(spectable.ClassConnection, spectable.ConnectionTuneOk)
	tuneOkPayload, err := spectable.EncodeArgs(tuneOkSpec, []any{tuned.ChannelMax, tuned.FrameMax, tuned.HeartbeatSec})
	if err != nil {
		return e.failHandshake(err)
	}
	if err := e.send(tuneOkSpec, tuneOkPayload); err != nil {
		return e.failHandshake(err)
	}

	openSpec, _ := spectable.Lookup(spectable.ClassConnection, spectable.ConnectionOpen)
	openPayload, err := spectable.EncodeArgs(openSpec, []any{e.opts.Vhost, "", false})
	if err != nil {
		return e.failHandshake(err)
	}
	return e.send(openSpec, openPayload)
}

func (e *Engine) handleOpenOk() error {
	e.mu.Lock()
	if e.state != StateTuning {
		e.mu.Unlock()
		return e.protocolViolation(errors.New("connection: OpenOk received out of state"))
	}
	e.state = StateOpened
	tuned := e.tuned
	e.mu.Unlock()

	e.logger.Debug("connection: opened")

	if tuned.HeartbeatSec > 0 {
		e.startHeartbeat(tuned.HeartbeatSec)
	}

	select {
	case e.handshakeDone <- nil:
	default:
	}
	return nil
}

func (e *Engine) handlePeerClose(args []any) error {
	code, _ := args[0].(uint16)
	text, _ := args[1].(string)

	closeOkSpec, _ := spectable.Lookup(spectable.ClassConnection, spectable.ConnectionCloseOk)
	_ = e.send(closeOkSpec, nil)

	err := &amqp.ConnectionClosedError{Code: code, ReplyText: text}
	e.teardown(err)
	return nil
}

func (e *Engine) handleCloseOk() error {
	e.mu.Lock()
	done := e.closeDone
	e.mu.Unlock()
	if done != nil {
		select {
		case done <- nil:
		default:
		}
	}
	e.teardown(nil)
	return nil
}

// Close initiates a client-side close, sending Connection.Close and
// waiting for the peer's CloseOk.
func (e *Engine) Close(ctx context.Context, code uint16, reason string) error {
	e.mu.Lock()
	if e.state == StateClosed || e.state == StateClosing {
		e.mu.Unlock()
		return nil
	}
	e.state = StateClosing
	e.closeDone = make(chan error, 1)
	e.mu.Unlock()

	spec, _ := spectable.Lookup(spectable.ClassConnection, spectable.ConnectionClose)
	payload, err := spectable.EncodeArgs(spec, []any{code, reason, uint16(0), uint16(0)})
	if err != nil {
		return err
	}
	if err := e.send(spec, payload); err != nil {
		e.teardown(err)
		return err
	}

	select {
	case err := <-e.closeDone:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fail tears the connection down because the client's read pump hit an
// I/O error, with no frame from the peer to attribute the failure to.
func (e *Engine) Fail(err error) {
	e.teardown(err)
}

func (e *Engine) failHandshake(err error) error {
	e.teardown(err)
	return err
}

func (e *Engine) protocolViolation(err error) error {
	wrapped := errors.WithStack(err)
	e.logger.Error("connection: protocol violation", zap.Error(wrapped))
	e.teardown(wrapped)
	return wrapped
}

// teardown stops the heartbeat/watchdog goroutines, transitions to
// Closed exactly once, and notifies the handshake waiter and the
// client's onClosed callback.
func (e *Engine) teardown(err error) {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	e.state = StateClosed
	handshakeDone := e.handshakeDone
	e.mu.Unlock()

	e.stopHeartbeat()

	if handshakeDone != nil {
		select {
		case handshakeDone <- err:
		default:
		}
	}

	if err != nil {
		var merr *multierror.Error
		merr = multierror.Append(merr, err)
		e.logger.Warn("connection: torn down", zap.Error(merr.ErrorOrNil()))
	} else {
		e.logger.Debug("connection: torn down cleanly")
	}

	if e.onClosed != nil {
		e.onClosed(err)
	}
}

func (e *Engine) send(spec spectable.MethodSpec, payload []byte) error {
	f := &frame.Frame{
		Type:      frame.TypeMethod,
		Channel:   0,
		ClassID:   spec.ClassID,
		MethodID:  spec.MethodID,
		Arguments: payload,
	}
	if err := e.writer.WriteFrame(f); err != nil {
		return errors.Wrapf(err, "connection: write %s.%s", spec.ClassName, spec.Name)
	}
	e.m.FramesSent.WithLabelValues(f.Type.String()).Inc()
	return nil
}

func (e *Engine) startHeartbeat(periodSec uint16) {
	period := time.Duration(periodSec) * time.Second / 2
	if period <= 0 {
		return
	}
	e.heartbeatStop = make(chan struct{})
	e.heartbeatDone = make(chan struct{})
	e.watchdogStop = make(chan struct{})
	e.watchdogDone = make(chan struct{})

	go e.heartbeatLoop(period, e.heartbeatStop, e.heartbeatDone)
	go e.watchdogLoop(time.Duration(periodSec)*time.Second*2, e.watchdogStop, e.watchdogDone)
}

func (e *Engine) heartbeatLoop(period time.Duration, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			f := &frame.Frame{Type: frame.TypeHeartbeat, Channel: 0}
			if err := e.writer.WriteFrame(f); err != nil {
				e.logger.Error("connection: heartbeat write failed", zap.Error(errors.WithStack(err)))
				return
			}
			e.m.HeartbeatsSent.Inc()
		}
	}
}

func (e *Engine) watchdogLoop(timeout time.Duration, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(timeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			elapsed := time.Since(e.lastTraffic)
			e.mu.Unlock()
			if elapsed > timeout {
				e.m.HeartbeatsMissed.Inc()
				e.logger.Warn("connection: heartbeat watchdog tripped", zap.Duration("elapsed", elapsed))
				e.teardown(&amqp.ConnectionClosedError{Code: amqp.ReplyMissedHeartbeats, ReplyText: "Missed heartbeats"})
				return
			}
		}
	}
}

func (e *Engine) stopHeartbeat() {
	if e.heartbeatStop != nil {
		close(e.heartbeatStop)
		e.heartbeatStop = nil
	}
	if e.watchdogStop != nil {
		close(e.watchdogStop)
		e.watchdogStop = nil
	}
}
