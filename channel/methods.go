package channel

import (
	"context"

	amqp "github.com/cordio/amqp91"
	"github.com/cordio/amqp91/consumer"
	"github.com/cordio/amqp91/frame"
	"github.com/cordio/amqp91/future"
	"github.com/cordio/amqp91/spectable"
	"github.com/cordio/amqp91/wire"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// consumeSink adapts the generic tracker-completion path to
// Basic.Consume: once ConsumeOk carries the (possibly broker-assigned)
// consumer tag, it performs the actual registry.Register and only then
// resolves the typed future the caller is waiting on.
type consumeSink struct {
	registry   *consumer.Registry
	bufferSize int
	fut        *future.Future[*consumer.Consumer]
}

func (s *consumeSink) Complete(value any) {
	args, _ := value.([]any)
	var tag string
	if len(args) > 0 {
		tag, _ = args[0].(string)
	}
	c, err := s.registry.Register(tag, s.bufferSize)
	if err != nil {
		s.fut.Fail(err)
		return
	}
	s.fut.Complete(c)
}

func (s *consumeSink) Fail(err error) { s.fut.Fail(err) }

// callSync sends one method and, unless noWait is true, blocks for the
// reply keyed by (classID, replyMethodID).
func (c *Channel) callSync(ctx context.Context, classID, methodID uint16, values []any, replyMethodID uint16, noWait bool) ([]any, error) {
	spec, ok := spectable.Lookup(classID, methodID)
	if !ok {
		return nil, errors.Errorf("channel: unknown method %d.%d", classID, methodID)
	}
	payload, err := spectable.EncodeArgs(spec, values)
	if err != nil {
		return nil, err
	}

	if noWait {
		if err := c.send(classID, methodID, payload); err != nil {
			return nil, err
		}
		return nil, nil
	}

	fut := future.New[[]any]()
	c.enqueue(classID, replyMethodID, fut)
	if err := c.send(classID, methodID, payload); err != nil {
		return nil, err
	}
	return fut.Wait(ctx)
}

func (c *Channel) handleMethodFrame(f *frame.Frame) error {
	spec, ok := spectable.Lookup(f.ClassID, f.MethodID)
	if !ok {
		return errors.Errorf("channel %d: unknown method %d.%d", c.ID, f.ClassID, f.MethodID)
	}
	args, err := spectable.DecodeArgs(spec, f.Arguments)
	if err != nil {
		return errors.Wrap(err, "channel: decode arguments")
	}

	switch {
	case f.ClassID == spectable.ClassChannel && f.MethodID == spectable.ChannelClose:
		return c.handlePeerClose(args)
	case f.ClassID == spectable.ClassChannel && f.MethodID == spectable.ChannelCloseOk:
		return c.handleCloseOk()
	case f.ClassID == spectable.ClassChannel && f.MethodID == spectable.ChannelFlow:
		return c.handlePeerFlow(args)
	case f.ClassID == spectable.ClassBasic && f.MethodID == spectable.BasicDeliver:
		return c.startDeliverAccumulator(args)
	case f.ClassID == spectable.ClassBasic && f.MethodID == spectable.BasicReturn:
		return c.startReturnAccumulator(args)
	case f.ClassID == spectable.ClassBasic && f.MethodID == spectable.BasicGetOk:
		return c.startGetOkAccumulator(args)
	case f.ClassID == spectable.ClassBasic && f.MethodID == spectable.BasicGetEmpty:
		return c.handleGetEmpty()
	case f.ClassID == spectable.ClassBasic && (f.MethodID == spectable.BasicAck || f.MethodID == spectable.BasicNack):
		return c.handleConfirmNotification(f.MethodID, args)
	case f.ClassID == spectable.ClassBasic && f.MethodID == spectable.BasicCancelOk:
		return c.handleCancelOk(args, spec)
	default:
		return c.completeTracker(spec, args)
	}
}

func (c *Channel) completeTracker(spec spectable.MethodSpec, args []any) error {
	t, ok := c.popTracker(spec.ClassID, spec.MethodID)
	if !ok {
		c.logger.Warn("channel: dropped reply with no matching tracker", zap.String("method", spec.ClassName+"."+spec.Name))
		return nil
	}
	t.sink.Complete(args)
	return nil
}

func (c *Channel) handlePeerClose(args []any) error {
	code, _ := args[0].(uint16)
	text, _ := args[1].(string)
	spec, _ := spectable.Lookup(spectable.ClassChannel, spectable.ChannelCloseOk)
	_ = c.send(spec.ClassID, spec.MethodID, nil)
	c.teardown(&amqp.ChannelClosedError{Code: code, ReplyText: text})
	return nil
}

func (c *Channel) handleCloseOk() error {
	c.teardown(nil)
	return nil
}

func (c *Channel) handlePeerFlow(args []any) error {
	active, _ := args[0].(bool)
	c.mu.Lock()
	c.paused = !active
	c.mu.Unlock()
	spec, _ := spectable.Lookup(spectable.ClassChannel, spectable.ChannelFlowOk)
	payload, err := spectable.EncodeArgs(spec, []any{active})
	if err != nil {
		return err
	}
	return c.send(spec.ClassID, spec.MethodID, payload)
}

func (c *Channel) startDeliverAccumulator(args []any) error {
	tag, _ := args[0].(string)
	dtag, _ := args[1].(uint64)
	redelivered, _ := args[2].(bool)
	exch, _ := args[3].(string)
	rkey, _ := args[4].(string)
	c.mu.Lock()
	c.acc = &accumulator{consumerTag: tag, deliveryTag: dtag, redelivered: redelivered, exchange: exch, routingKey: rkey}
	c.mu.Unlock()
	return nil
}

func (c *Channel) startReturnAccumulator(args []any) error {
	replyCode, _ := args[0].(uint16)
	replyText, _ := args[1].(string)
	exch, _ := args[2].(string)
	rkey, _ := args[3].(string)
	c.mu.Lock()
	c.acc = &accumulator{isReturn: true, replyCode: replyCode, replyText: replyText, exchange: exch, routingKey: rkey}
	c.mu.Unlock()
	return nil
}

func (c *Channel) startGetOkAccumulator(args []any) error {
	dtag, _ := args[0].(uint64)
	redelivered, _ := args[1].(bool)
	exch, _ := args[2].(string)
	rkey, _ := args[3].(string)
	count, _ := args[4].(uint32)
	c.mu.Lock()
	c.acc = &accumulator{isGet: true, deliveryTag: dtag, redelivered: redelivered, exchange: exch, routingKey: rkey, messageCount: count}
	c.mu.Unlock()
	return nil
}

func (c *Channel) handleGetEmpty() error {
	if t, ok := c.popTracker(spectable.ClassBasic, spectable.BasicGet); ok {
		t.sink.Complete(&amqp.GetResult{Empty: true})
	}
	return nil
}

func (c *Channel) handleConfirmNotification(methodID uint16, args []any) error {
	dtag, _ := args[0].(uint64)
	multiple, _ := args[1].(bool)
	ack := methodID == spectable.BasicAck
	select {
	case c.confirms <- Confirmation{DeliveryTag: dtag, Ack: ack, Multiple: multiple}:
	default:
		c.logger.Warn("channel: confirm notification dropped, buffer full")
	}
	return nil
}

func (c *Channel) handleCancelOk(args []any, spec spectable.MethodSpec) error {
	tag, _ := args[0].(string)
	c.consumers.Remove(tag)
	return c.completeTracker(spec, args)
}

// ExchangeDeclare issues Exchange.Declare.
func (c *Channel) ExchangeDeclare(ctx context.Context, name, kind string, passive, durable, autoDelete, internal, noWait bool, arguments amqp.Table) error {
	if arguments == nil {
		arguments = amqp.Table{}
	}
	_, err := c.callSync(ctx, spectable.ClassExchange, spectable.ExchangeDeclare,
		[]any{uint16(0), name, kind, passive, durable, autoDelete, internal, noWait, arguments},
		spectable.ExchangeDeclareOk, noWait)
	return err
}

// ExchangeDelete issues Exchange.Delete.
func (c *Channel) ExchangeDelete(ctx context.Context, name string, ifUnused, noWait bool) error {
	_, err := c.callSync(ctx, spectable.ClassExchange, spectable.ExchangeDelete,
		[]any{uint16(0), name, ifUnused, noWait}, spectable.ExchangeDeleteOk, noWait)
	return err
}

// ExchangeBind issues Exchange.Bind.
func (c *Channel) ExchangeBind(ctx context.Context, destination, source, routingKey string, noWait bool, arguments amqp.Table) error {
	if arguments == nil {
		arguments = amqp.Table{}
	}
	_, err := c.callSync(ctx, spectable.ClassExchange, spectable.ExchangeBind,
		[]any{uint16(0), destination, source, routingKey, noWait, arguments}, spectable.ExchangeBindOk, noWait)
	return err
}

// ExchangeUnbind issues Exchange.Unbind.
func (c *Channel) ExchangeUnbind(ctx context.Context, destination, source, routingKey string, noWait bool, arguments amqp.Table) error {
	if arguments == nil {
		arguments = amqp.Table{}
	}
	_, err := c.callSync(ctx, spectable.ClassExchange, spectable.ExchangeUnbind,
		[]any{uint16(0), destination, source, routingKey, noWait, arguments}, spectable.ExchangeUnbindOk, noWait)
	return err
}

// QueueDeclare issues Queue.Declare.
func (c *Channel) QueueDeclare(ctx context.Context, name string, passive, durable, exclusive, autoDelete, noWait bool, arguments amqp.Table) (string, uint32, uint32, error) {
	if arguments == nil {
		arguments = amqp.Table{}
	}
	args, err := c.callSync(ctx, spectable.ClassQueue, spectable.QueueDeclare,
		[]any{uint16(0), name, passive, durable, exclusive, autoDelete, noWait, arguments}, spectable.QueueDeclareOk, noWait)
	if err != nil {
		return "", 0, 0, err
	}
	if noWait {
		return name, 0, 0, nil
	}
	queue, _ := args[0].(string)
	msgCount, _ := args[1].(uint32)
	consumerCount, _ := args[2].(uint32)
	return queue, msgCount, consumerCount, nil
}

// QueueBind issues Queue.Bind.
func (c *Channel) QueueBind(ctx context.Context, queue, exchange, routingKey string, noWait bool, arguments amqp.Table) error {
	if arguments == nil {
		arguments = amqp.Table{}
	}
	_, err := c.callSync(ctx, spectable.ClassQueue, spectable.QueueBind,
		[]any{uint16(0), queue, exchange, routingKey, noWait, arguments}, spectable.QueueBindOk, noWait)
	return err
}

// QueueUnbind issues Queue.Unbind. The method carries no nowait
// argument in the protocol, so this call always awaits UnbindOk.
func (c *Channel) QueueUnbind(ctx context.Context, queue, exchange, routingKey string, arguments amqp.Table) error {
	if arguments == nil {
		arguments = amqp.Table{}
	}
	_, err := c.callSync(ctx, spectable.ClassQueue, spectable.QueueUnbind,
		[]any{uint16(0), queue, exchange, routingKey, arguments}, spectable.QueueUnbindOk, false)
	return err
}

// QueuePurge issues Queue.Purge.
func (c *Channel) QueuePurge(ctx context.Context, queue string, noWait bool) (uint32, error) {
	args, err := c.callSync(ctx, spectable.ClassQueue, spectable.QueuePurge,
		[]any{uint16(0), queue, noWait}, spectable.QueuePurgeOk, noWait)
	if err != nil {
		return 0, err
	}
	if noWait {
		return 0, nil
	}
	count, _ := args[0].(uint32)
	return count, nil
}

// QueueDelete issues Queue.Delete.
func (c *Channel) QueueDelete(ctx context.Context, queue string, ifUnused, ifEmpty, noWait bool) (uint32, error) {
	args, err := c.callSync(ctx, spectable.ClassQueue, spectable.QueueDelete,
		[]any{uint16(0), queue, ifUnused, ifEmpty, noWait}, spectable.QueueDeleteOk, noWait)
	if err != nil {
		return 0, err
	}
	if noWait {
		return 0, nil
	}
	count, _ := args[0].(uint32)
	return count, nil
}

// Qos issues Basic.Qos.
func (c *Channel) Qos(ctx context.Context, prefetchSize uint32, prefetchCount uint16, global bool) error {
	_, err := c.callSync(ctx, spectable.ClassBasic, spectable.BasicQos,
		[]any{prefetchSize, prefetchCount, global}, spectable.BasicQosOk, false)
	return err
}

// Consume issues Basic.Consume. On success it returns a registered
// Consumer whose Deliveries() channel receives matching Basic.Deliver
// messages.
func (c *Channel) Consume(ctx context.Context, queue, tag string, noLocal, noAck, exclusive, noWait bool, arguments amqp.Table, bufferSize int) (*consumer.Consumer, error) {
	if tag != "" {
		if _, exists := c.consumers.Lookup(tag); exists {
			return nil, &amqp.InvalidArgumentError{Message: "duplicate consumer tag: " + tag}
		}
	}
	if arguments == nil {
		arguments = amqp.Table{}
	}
	spec, _ := spectable.Lookup(spectable.ClassBasic, spectable.BasicConsume)
	payload, err := spectable.EncodeArgs(spec, []any{uint16(0), queue, tag, noLocal, noAck, exclusive, noWait, arguments})
	if err != nil {
		return nil, err
	}

	if noWait {
		if tag == "" {
			return nil, &amqp.InvalidArgumentError{Message: "nowait consume requires an explicit consumer tag"}
		}
		if err := c.send(spec.ClassID, spec.MethodID, payload); err != nil {
			return nil, err
		}
		return c.consumers.Register(tag, bufferSize)
	}

	fut := future.New[*consumer.Consumer]()
	c.enqueue(spectable.ClassBasic, spectable.BasicConsumeOk, &consumeSink{registry: c.consumers, bufferSize: bufferSize, fut: fut})
	if err := c.send(spec.ClassID, spec.MethodID, payload); err != nil {
		return nil, err
	}
	return fut.Wait(ctx)
}

// Cancel issues Basic.Cancel.
func (c *Channel) Cancel(ctx context.Context, tag string, noWait bool) error {
	spec, _ := spectable.Lookup(spectable.ClassBasic, spectable.BasicCancel)
	payload, err := spectable.EncodeArgs(spec, []any{tag, noWait})
	if err != nil {
		return err
	}
	if noWait {
		if err := c.send(spec.ClassID, spec.MethodID, payload); err != nil {
			return err
		}
		c.consumers.Remove(tag)
		return nil
	}
	fut := future.New[[]any]()
	c.enqueue(spec.ClassID, spectable.BasicCancelOk, fut)
	if err := c.send(spec.ClassID, spec.MethodID, payload); err != nil {
		return err
	}
	_, err = fut.Wait(ctx)
	return err
}

// Get issues Basic.Get and blocks for GetOk or GetEmpty.
func (c *Channel) Get(ctx context.Context, queue string, noAck bool) (*amqp.GetResult, error) {
	spec, _ := spectable.Lookup(spectable.ClassBasic, spectable.BasicGet)
	payload, err := spectable.EncodeArgs(spec, []any{uint16(0), queue, noAck})
	if err != nil {
		return nil, err
	}
	fut := future.New[*amqp.GetResult]()
	c.enqueue(spectable.ClassBasic, spectable.BasicGet, fut)
	if err := c.send(spec.ClassID, spec.MethodID, payload); err != nil {
		return nil, err
	}
	return fut.Wait(ctx)
}

// Publish writes Basic.Publish followed by a content header and the
// body split into frames of at most frameMax-8 bytes each. It returns
// the assigned publish-sequence number, nonzero only once Confirm.Select
// has put the channel in confirm mode.
func (c *Channel) Publish(exchange, routingKey string, msg *amqp.Message, opts amqp.PublishOptions) (uint64, error) {
	spec, _ := spectable.Lookup(spectable.ClassBasic, spectable.BasicPublish)
	payload, err := spectable.EncodeArgs(spec, []any{uint16(0), exchange, routingKey, opts.Mandatory, opts.Immediate})
	if err != nil {
		return 0, err
	}
	if err := c.send(spec.ClassID, spec.MethodID, payload); err != nil {
		return 0, err
	}

	flags, propBytes, err := wire.EncodeProperties(msg.Properties)
	if err != nil {
		return 0, err
	}
	header := &frame.Frame{
		Type:          frame.TypeHeader,
		Channel:       c.ID,
		ClassID:       spectable.ClassBasic,
		ContentSize:   uint64(len(msg.Body)),
		PropertyFlags: flags,
		PropertyBytes: propBytes,
	}
	if err := c.writer.WriteFrame(header); err != nil {
		return 0, errors.Wrap(err, "channel: write content header")
	}
	c.m.FramesSent.WithLabelValues(frame.TypeHeader.String()).Inc()

	chunkSize := int(c.frameMax) - 8
	if chunkSize <= 0 {
		chunkSize = len(msg.Body)
		if chunkSize == 0 {
			chunkSize = 1
		}
	}
	body := msg.Body
	for len(body) > 0 {
		n := chunkSize
		if n > len(body) {
			n = len(body)
		}
		bodyFrame := &frame.Frame{Type: frame.TypeBody, Channel: c.ID, Body: body[:n]}
		if err := c.writer.WriteFrame(bodyFrame); err != nil {
			return 0, errors.Wrap(err, "channel: write content body")
		}
		c.m.FramesSent.WithLabelValues(frame.TypeBody.String()).Inc()
		body = body[n:]
	}
	c.m.MessagesPublished.Inc()

	c.mu.Lock()
	var seq uint64
	if c.confirmMode {
		c.publishSeqNo++
		seq = c.publishSeqNo
	}
	c.mu.Unlock()
	return seq, nil
}

// Ack issues Basic.Ack.
func (c *Channel) Ack(deliveryTag uint64, multiple bool) error {
	spec, _ := spectable.Lookup(spectable.ClassBasic, spectable.BasicAck)
	payload, err := spectable.EncodeArgs(spec, []any{deliveryTag, multiple})
	if err != nil {
		return err
	}
	return c.send(spec.ClassID, spec.MethodID, payload)
}

// Nack issues Basic.Nack, a RabbitMQ extension gated behind the
// basic.nack server capability (see SupportsNack).
func (c *Channel) Nack(deliveryTag uint64, multiple, requeue bool) error {
	if !c.SupportsNack() {
		return &amqp.InvalidArgumentError{Message: "broker did not advertise basic.nack"}
	}
	spec, _ := spectable.Lookup(spectable.ClassBasic, spectable.BasicNack)
	payload, err := spectable.EncodeArgs(spec, []any{deliveryTag, multiple, requeue})
	if err != nil {
		return err
	}
	return c.send(spec.ClassID, spec.MethodID, payload)
}

// Reject issues Basic.Reject.
func (c *Channel) Reject(deliveryTag uint64, requeue bool) error {
	spec, _ := spectable.Lookup(spectable.ClassBasic, spectable.BasicReject)
	payload, err := spectable.EncodeArgs(spec, []any{deliveryTag, requeue})
	if err != nil {
		return err
	}
	return c.send(spec.ClassID, spec.MethodID, payload)
}

// RecoverAsync issues Basic.RecoverAsync, which has no reply.
func (c *Channel) RecoverAsync(requeue bool) error {
	spec, _ := spectable.Lookup(spectable.ClassBasic, spectable.BasicRecoverAsync)
	payload, err := spectable.EncodeArgs(spec, []any{requeue})
	if err != nil {
		return err
	}
	return c.send(spec.ClassID, spec.MethodID, payload)
}

// Recover issues Basic.Recover and blocks for RecoverOk.
func (c *Channel) Recover(ctx context.Context, requeue bool) error {
	_, err := c.callSync(ctx, spectable.ClassBasic, spectable.BasicRecover, []any{requeue}, spectable.BasicRecoverOk, false)
	return err
}

// Flow issues Channel.Flow and blocks for FlowOk.
func (c *Channel) Flow(ctx context.Context, active bool) error {
	_, err := c.callSync(ctx, spectable.ClassChannel, spectable.ChannelFlow, []any{active}, spectable.ChannelFlowOk, false)
	return err
}

// Paused reports whether a peer Channel.Flow(active=false) is currently
// in effect.
func (c *Channel) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// ConfirmSelect puts the channel in publisher-confirm mode.
func (c *Channel) ConfirmSelect(ctx context.Context, noWait bool) error {
	spec, _ := spectable.Lookup(spectable.ClassConfirm, spectable.ConfirmSelect)
	payload, err := spectable.EncodeArgs(spec, []any{noWait})
	if err != nil {
		return err
	}
	if noWait {
		if err := c.send(spec.ClassID, spec.MethodID, payload); err != nil {
			return err
		}
		c.mu.Lock()
		c.confirmMode = true
		c.mu.Unlock()
		return nil
	}
	fut := future.New[[]any]()
	c.enqueue(spec.ClassID, spectable.ConfirmSelectOk, fut)
	if err := c.send(spec.ClassID, spec.MethodID, payload); err != nil {
		return err
	}
	if _, err := fut.Wait(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.confirmMode = true
	c.mu.Unlock()
	return nil
}

// TxSelect issues Tx.Select.
func (c *Channel) TxSelect(ctx context.Context) error {
	_, err := c.callSync(ctx, spectable.ClassTx, spectable.TxSelect, nil, spectable.TxSelectOk, false)
	return err
}

// TxCommit issues Tx.Commit.
func (c *Channel) TxCommit(ctx context.Context) error {
	_, err := c.callSync(ctx, spectable.ClassTx, spectable.TxCommit, nil, spectable.TxCommitOk, false)
	return err
}

// TxRollback issues Tx.Rollback.
func (c *Channel) TxRollback(ctx context.Context) error {
	_, err := c.callSync(ctx, spectable.ClassTx, spectable.TxRollback, nil, spectable.TxRollbackOk, false)
	return err
}
