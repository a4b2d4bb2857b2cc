package amqp

// Message is the logical AMQP content: one header frame plus zero or more
// body frames, always preceded by the method frame that introduced it
// (Basic.Deliver, Basic.GetOk, or — on the publishing side — Basic.Publish).
type Message struct {
	Properties BasicProperties
	Body       []byte

	// Delivery metadata, populated by the channel engine on inbound
	// messages and ignored on outbound ones.
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
}

// PublishOptions controls Basic.Publish's reserved flags.
type PublishOptions struct {
	Mandatory bool
	Immediate bool
}

// GetResult is the completion value of a Basic.Get call: the message (nil
// if the queue was empty) and the broker's remaining-message count.
type GetResult struct {
	Message      *Message
	MessageCount uint32
	Empty        bool
}
