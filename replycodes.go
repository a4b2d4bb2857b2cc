package amqp

// Reply codes carried in Connection.Close / Channel.Close frames.
const (
	ReplySuccess          uint16 = 200
	ReplyContentTooLarge  uint16 = 311
	ReplyConnectionForced uint16 = 320
	ReplyNotFound         uint16 = 404
	ReplyResourceLocked   uint16 = 405
	ReplyPreconditionFail uint16 = 406
	ReplyFrameError       uint16 = 501
	ReplySyntaxError      uint16 = 502
	ReplyChannelError     uint16 = 504
	ReplyUnexpectedFrame  uint16 = 505
	ReplyNotAllowed       uint16 = 530
	ReplyNotImplemented   uint16 = 540
	ReplyInternalError    uint16 = 541

	// ReplyMissedHeartbeats is the client-local code used when the
	// heartbeat watchdog trips; it is not part of the AMQP 0-9-1 constant
	// table (which has no dedicated code for this), but RabbitMQ and other
	// brokers use 500 for the equivalent condition.
	ReplyMissedHeartbeats uint16 = 500
)
