package channel

import amqp "github.com/cordio/amqp91"

// maxContentSize is a safety cap: a declared content_size beyond this
// closes the channel instead of buffering an unbounded payload.
const maxContentSize = 10 * 1024 * 1024

// replyMessageTooLarge is the reply code of the Channel.Close sent when
// a message's content does not fit the declared or capped size.
const replyMessageTooLarge uint16 = 500

// accumulator assembles one in-flight message across a Deliver/GetOk
// method frame, its header frame, and zero or more body frames.
type accumulator struct {
	isGet    bool
	isReturn bool

	replyCode  uint16
	replyText  string

	consumerTag  string
	deliveryTag  uint64
	redelivered  bool
	exchange     string
	routingKey   string
	messageCount uint32

	haveHeader  bool
	contentSize uint64
	properties  amqp.BasicProperties
	payload     []byte
}

func (a *accumulator) applyHeader(contentSize uint64, props amqp.BasicProperties) error {
	if contentSize > maxContentSize {
		return &amqp.ChannelClosedError{Code: replyMessageTooLarge, ReplyText: "Message too large"}
	}
	a.contentSize = contentSize
	a.properties = props
	a.haveHeader = true
	a.payload = make([]byte, 0, contentSize)
	return nil
}

// appendBody adds one body frame's bytes, returning true once the
// accumulator has received exactly contentSize bytes.
func (a *accumulator) appendBody(b []byte) (bool, error) {
	if uint64(len(a.payload)+len(b)) > a.contentSize {
		return false, &amqp.ChannelClosedError{Code: replyMessageTooLarge, ReplyText: "Message too large"}
	}
	a.payload = append(a.payload, b...)
	return uint64(len(a.payload)) == a.contentSize, nil
}

func (a *accumulator) message() *amqp.Message {
	return &amqp.Message{
		Properties:  a.properties,
		Body:        a.payload,
		ConsumerTag: a.consumerTag,
		DeliveryTag: a.deliveryTag,
		Redelivered: a.redelivered,
		Exchange:    a.exchange,
		RoutingKey:  a.routingKey,
	}
}
