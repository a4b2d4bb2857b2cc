// Package channel implements the per-channel state machine: method
// correlation, multi-frame content assembly, publishing, and consumer
// dispatch.
package channel

import (
	"bytes"
	"context"
	"sync"

	amqp "github.com/cordio/amqp91"
	"github.com/cordio/amqp91/consumer"
	"github.com/cordio/amqp91/frame"
	"github.com/cordio/amqp91/future"
	"github.com/cordio/amqp91/metrics"
	"github.com/cordio/amqp91/spectable"
	"github.com/cordio/amqp91/wire"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// State is the channel's position in the FSM.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateClosing
)

// FrameWriter is the subset of the client's socket-writing surface a
// channel needs.
type FrameWriter interface {
	WriteFrame(f *frame.Frame) error
}

// Confirmation is one publisher-confirm notification, delivered once
// Confirm.Select has put the channel in confirm mode.
type Confirmation struct {
	DeliveryTag uint64
	Ack         bool
	Multiple    bool
}

// Channel is one AMQP channel multiplexed over a shared connection.
type Channel struct {
	ID uint16

	mu     sync.Mutex
	state  State
	paused bool // Channel.Flow overlay

	writer   FrameWriter
	frameMax uint32
	logger   *zap.Logger
	m        *metrics.Metrics

	trackers    *trackerQueue
	acc         *accumulator
	consumers   *consumer.Registry
	dispatchLim *rate.Limiter // optional consumer-dispatch throttle, nil disables

	confirmMode  bool
	supportsNack bool
	publishSeqNo uint64
	confirms     chan Confirmation
	returns      chan *amqp.Message

	closeDone chan error
	onClosed  func(id uint16, err error)
}

// New constructs a Channel in StateClosed. Open must be called (and its
// OpenOk awaited via HandleFrame) before any other method is used.
func New(id uint16, writer FrameWriter, frameMax uint32, logger *zap.Logger, m *metrics.Metrics, onClosed func(id uint16, err error)) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Noop()
	}
	return &Channel{
		ID:        id,
		writer:    writer,
		frameMax:  frameMax,
		logger:    logger.With(zap.Uint16("channel_id", id)),
		m:         m,
		trackers:  newTrackerQueue(),
		consumers: consumer.NewRegistry(),
		confirms:  make(chan Confirmation, 64),
		returns:   make(chan *amqp.Message, 16),
		onClosed:  onClosed,
	}
}

// State returns the channel's current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetDispatchLimiter installs an optional rate limiter gating how fast
// delivered messages are pushed to consumers — a software analogue of
// Basic.Qos's prefetch throttle, not a protocol requirement.
func (c *Channel) SetDispatchLimiter(l *rate.Limiter) {
	c.mu.Lock()
	c.dispatchLim = l
	c.mu.Unlock()
}

// SetSupportsNack records whether the broker advertised the basic.nack
// capability in Connection.Start's server-properties table. The client
// calls this once, right after the handshake, before any channel method
// that might use Basic.Nack.
func (c *Channel) SetSupportsNack(supported bool) {
	c.mu.Lock()
	c.supportsNack = supported
	c.mu.Unlock()
}

// SupportsNack reports whether the broker advertised basic.nack, gating
// use of that protocol extension.
func (c *Channel) SupportsNack() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.supportsNack
}

// Confirms returns the channel on which publisher-confirm notifications
// arrive once Confirm.Select has completed.
func (c *Channel) Confirms() <-chan Confirmation { return c.confirms }

// Returns returns the channel on which Basic.Return notifications
// arrive for mandatory/immediate publishes the broker could not route.
func (c *Channel) Returns() <-chan *amqp.Message { return c.returns }

// Open sends Channel.Open and blocks for OpenOk.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		return errors.New("channel: Open called out of state")
	}
	c.state = StateOpening
	c.mu.Unlock()

	spec, _ := spectable.Lookup(spectable.ClassChannel, spectable.ChannelOpen)
	payload, err := spectable.EncodeArgs(spec, []any{""})
	if err != nil {
		return err
	}
	fut := future.New[[]any]()
	c.enqueue(spectable.ClassChannel, spectable.ChannelOpenOk, fut)
	if err := c.send(spec.ClassID, spec.MethodID, payload); err != nil {
		return err
	}
	_, err = fut.Wait(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.state = StateOpen
	c.mu.Unlock()
	return nil
}

// Close sends Channel.Close and blocks for CloseOk.
func (c *Channel) Close(ctx context.Context, code uint16, reason string) error {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateClosing {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	c.closeDone = make(chan error, 1)
	c.mu.Unlock()

	spec, _ := spectable.Lookup(spectable.ClassChannel, spectable.ChannelClose)
	payload, err := spectable.EncodeArgs(spec, []any{code, reason, uint16(0), uint16(0)})
	if err != nil {
		return err
	}
	if err := c.send(spec.ClassID, spec.MethodID, payload); err != nil {
		c.teardown(err)
		return err
	}
	select {
	case err := <-c.closeDone:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown tears the channel down because the owning connection closed.
// err is typically an *amqp.ConnectionClosedError, propagated to every
// future still pending on this channel.
func (c *Channel) Shutdown(err error) {
	c.teardown(err)
}

func (c *Channel) teardown(err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.acc = nil
	closeDone := c.closeDone
	c.mu.Unlock()

	failed := c.trackers.failAll(err)
	c.consumers.CancelAll()

	if len(failed) > 0 {
		var merr *multierror.Error
		for _, t := range failed {
			merr = multierror.Append(merr, errors.Errorf("%d.%d: %v", t.key.classID, t.key.methodID, err))
		}
		c.logger.Warn("channel: torn down with pending requests", zap.Error(merr.ErrorOrNil()))
	} else {
		c.logger.Debug("channel: torn down")
	}

	if closeDone != nil {
		select {
		case closeDone <- err:
		default:
		}
	}
	if c.onClosed != nil {
		c.onClosed(c.ID, err)
	}
}

func (c *Channel) enqueue(classID, methodID uint16, sink future.Sink) {
	c.mu.Lock()
	c.trackers.push(&tracker{key: trackerKey{classID, methodID}, sink: sink})
	c.mu.Unlock()
}

func (c *Channel) send(classID, methodID uint16, payload []byte) error {
	f := &frame.Frame{
		Type:      frame.TypeMethod,
		Channel:   c.ID,
		ClassID:   classID,
		MethodID:  methodID,
		Arguments: payload,
	}
	if err := c.writer.WriteFrame(f); err != nil {
		return errors.Wrapf(err, "channel %d: write %d.%d", c.ID, classID, methodID)
	}
	c.m.FramesSent.WithLabelValues(f.Type.String()).Inc()
	return nil
}

// HandleFrame processes one frame addressed to this channel. It is
// called synchronously by the client's read pump.
func (c *Channel) HandleFrame(f *frame.Frame) error {
	switch f.Type {
	case frame.TypeHeader:
		return c.handleHeaderFrame(f)
	case frame.TypeBody:
		return c.handleBodyFrame(f)
	case frame.TypeMethod:
		return c.handleMethodFrame(f)
	default:
		return errors.Errorf("channel %d: unexpected frame type %v", c.ID, f.Type)
	}
}

func (c *Channel) handleHeaderFrame(f *frame.Frame) error {
	c.mu.Lock()
	acc := c.acc
	c.mu.Unlock()
	if acc == nil {
		return errors.Errorf("channel %d: header frame with no pending method", c.ID)
	}
	props, err := wire.DecodeProperties(f.PropertyFlags, bytes.NewReader(f.PropertyBytes))
	if err != nil {
		return errors.Wrap(err, "channel: decode content header")
	}
	if err := acc.applyHeader(f.ContentSize, props); err != nil {
		c.closeLocally(err)
		return err
	}
	if acc.contentSize == 0 {
		c.completeAccumulator()
	}
	return nil
}

func (c *Channel) handleBodyFrame(f *frame.Frame) error {
	c.mu.Lock()
	acc := c.acc
	c.mu.Unlock()
	if acc == nil {
		return errors.Errorf("channel %d: body frame with no pending message", c.ID)
	}
	done, err := acc.appendBody(f.Body)
	if err != nil {
		c.closeLocally(err)
		return err
	}
	if done {
		c.completeAccumulator()
	}
	return nil
}

func (c *Channel) completeAccumulator() {
	c.mu.Lock()
	acc := c.acc
	c.acc = nil
	c.mu.Unlock()
	if acc == nil {
		return
	}
	msg := acc.message()
	if acc.isReturn {
		select {
		case c.returns <- msg:
		default:
			c.logger.Warn("channel: returned-message notification dropped, buffer full")
		}
		return
	}
	if acc.isGet {
		if t, ok := c.popTracker(spectable.ClassBasic, spectable.BasicGet); ok {
			t.sink.Complete(&amqp.GetResult{Message: msg, MessageCount: acc.messageCount})
		}
		c.m.MessagesDelivered.Inc()
		return
	}
	c.throttleDispatch()
	if !c.consumers.Deliver(msg) {
		c.logger.Warn("channel: delivery for unknown consumer tag dropped", zap.String("consumer_tag", msg.ConsumerTag))
		return
	}
	c.m.MessagesDelivered.Inc()
}

// throttleDispatch blocks until the configured dispatch limiter (if any)
// admits one more delivery. A nil limiter never blocks.
func (c *Channel) throttleDispatch() {
	c.mu.Lock()
	lim := c.dispatchLim
	c.mu.Unlock()
	if lim == nil {
		return
	}
	if err := lim.Wait(context.Background()); err != nil {
		c.logger.Warn("channel: dispatch limiter wait failed", zap.Error(err))
	}
}

func (c *Channel) popTracker(classID, methodID uint16) (*tracker, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trackers.pop(trackerKey{classID, methodID})
}

func (c *Channel) closeLocally(err error) {
	code := amqp.ReplyInternalError
	if ce, ok := err.(*amqp.ChannelClosedError); ok {
		code = ce.Code
	}
	reason := err.Error()
	if ce, ok := err.(*amqp.ChannelClosedError); ok {
		reason = ce.ReplyText
	}
	spec, _ := spectable.Lookup(spectable.ClassChannel, spectable.ChannelClose)
	payload, encErr := spectable.EncodeArgs(spec, []any{code, reason, uint16(0), uint16(0)})
	if encErr == nil {
		_ = c.send(spec.ClassID, spec.MethodID, payload)
	}
	c.teardown(err)
}
