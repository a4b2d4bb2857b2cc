// Package consumer implements the tag→consumer registry the channel
// engine consults when assembling a Basic.Deliver message.
package consumer

import (
	"sync"
	"sync/atomic"

	amqp "github.com/cordio/amqp91"
)

// DefaultBufferSize is the delivery channel's capacity when the caller
// does not request a specific one.
const DefaultBufferSize = 256

// Consumer owns a FIFO of delivered messages and a readiness signal (the
// channel itself, which callers range over). It does not own the
// channel it was registered on — the channel engine holds Consumers by
// tag and releases its reference on Cancel.
type Consumer struct {
	Tag string

	deliveries chan *amqp.Message
	closed     atomic.Bool
}

func newConsumer(tag string, bufferSize int) *Consumer {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Consumer{Tag: tag, deliveries: make(chan *amqp.Message, bufferSize)}
}

// Deliveries returns the channel applications range over to receive
// messages. It is closed when the consumer is cancelled.
func (c *Consumer) Deliveries() <-chan *amqp.Message { return c.deliveries }

// deliver enqueues msg. It returns false (and drops the message) if the
// consumer has already been cancelled.
func (c *Consumer) deliver(msg *amqp.Message) bool {
	if c.closed.Load() {
		return false
	}
	c.deliveries <- msg
	return true
}

// Cancel closes the delivery channel. Safe to call more than once.
func (c *Consumer) Cancel() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.deliveries)
	}
}

// Registry maps consumer tags to Consumers for one channel.
type Registry struct {
	mu    sync.Mutex
	byTag map[string]*Consumer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byTag: make(map[string]*Consumer)}
}

// Register creates and stores a new Consumer for tag. It fails if tag is
// already registered on this channel. Channel.Consume calls it once the
// consumer is confirmed (after ConsumeOk, or right after sending a nowait
// Basic.Consume); its own duplicate-tag check runs before any frame is
// sent.
func (r *Registry) Register(tag string, bufferSize int) (*Consumer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byTag[tag]; exists {
		return nil, &amqp.InvalidArgumentError{Message: "duplicate consumer tag: " + tag}
	}
	c := newConsumer(tag, bufferSize)
	r.byTag[tag] = c
	return c, nil
}

// Lookup returns the consumer registered for tag, if any.
func (r *Registry) Lookup(tag string) (*Consumer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byTag[tag]
	return c, ok
}

// Remove cancels and forgets the consumer registered for tag.
func (r *Registry) Remove(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byTag[tag]; ok {
		c.Cancel()
		delete(r.byTag, tag)
	}
}

// Deliver routes msg to the consumer named by msg.ConsumerTag. It
// reports whether a matching, still-registered consumer accepted it.
func (r *Registry) Deliver(msg *amqp.Message) bool {
	r.mu.Lock()
	c, ok := r.byTag[msg.ConsumerTag]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return c.deliver(msg)
}

// CancelAll cancels every registered consumer and empties the registry,
// called when the owning channel closes.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tag, c := range r.byTag {
		c.Cancel()
		delete(r.byTag, tag)
	}
}
