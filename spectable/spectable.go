// Package spectable holds the static class/method ID tables and
// per-method argument-kind lists that the codec needs to encode and
// decode method-frame argument blocks without per-method hand-written
// marshaling code.
package spectable

import "github.com/cordio/amqp91/wire"

// Class IDs.
const (
	ClassConnection uint16 = 10
	ClassChannel    uint16 = 20
	ClassExchange   uint16 = 40
	ClassQueue      uint16 = 50
	ClassBasic      uint16 = 60
	ClassConfirm    uint16 = 85
	ClassTx         uint16 = 90
)

// Connection method IDs.
const (
	ConnectionStart    uint16 = 10
	ConnectionStartOk  uint16 = 11
	ConnectionSecure   uint16 = 20
	ConnectionSecureOk uint16 = 21
	ConnectionTune     uint16 = 30
	ConnectionTuneOk   uint16 = 31
	ConnectionOpen     uint16 = 40
	ConnectionOpenOk   uint16 = 41
	ConnectionClose    uint16 = 50
	ConnectionCloseOk  uint16 = 51
)

// Channel method IDs.
const (
	ChannelOpen    uint16 = 10
	ChannelOpenOk  uint16 = 11
	ChannelFlow    uint16 = 20
	ChannelFlowOk  uint16 = 21
	ChannelClose   uint16 = 40
	ChannelCloseOk uint16 = 41
)

// Exchange method IDs.
const (
	ExchangeDeclare   uint16 = 10
	ExchangeDeclareOk uint16 = 11
	ExchangeDelete    uint16 = 20
	ExchangeDeleteOk  uint16 = 21
	ExchangeBind      uint16 = 30
	ExchangeBindOk    uint16 = 31
	ExchangeUnbind    uint16 = 40
	ExchangeUnbindOk  uint16 = 51
)

// Queue method IDs.
const (
	QueueDeclare   uint16 = 10
	QueueDeclareOk uint16 = 11
	QueueBind      uint16 = 20
	QueueBindOk    uint16 = 21
	QueuePurge     uint16 = 30
	QueuePurgeOk   uint16 = 31
	QueueDelete    uint16 = 40
	QueueDeleteOk  uint16 = 41
	QueueUnbind    uint16 = 50
	QueueUnbindOk  uint16 = 51
)

// Basic method IDs.
const (
	BasicQos          uint16 = 10
	BasicQosOk        uint16 = 11
	BasicConsume      uint16 = 20
	BasicConsumeOk    uint16 = 21
	BasicCancel       uint16 = 30
	BasicCancelOk     uint16 = 31
	BasicPublish      uint16 = 40
	BasicReturn       uint16 = 50
	BasicDeliver      uint16 = 60
	BasicGet          uint16 = 70
	BasicGetOk        uint16 = 71
	BasicGetEmpty     uint16 = 72
	BasicAck          uint16 = 80
	BasicReject       uint16 = 90
	BasicRecoverAsync uint16 = 100
	BasicRecover      uint16 = 110
	BasicRecoverOk    uint16 = 111
	// BasicNack is a RabbitMQ extension, not core AMQP 0-9-1 (SPEC_FULL.md
	// §9, decision 2): callers must gate its use behind a
	// server-capability check before relying on it.
	BasicNack uint16 = 120
)

// Confirm method IDs (RabbitMQ publisher-confirms extension).
const (
	ConfirmSelect   uint16 = 10
	ConfirmSelectOk uint16 = 11
)

// Tx method IDs.
const (
	TxSelect     uint16 = 10
	TxSelectOk   uint16 = 11
	TxCommit     uint16 = 20
	TxCommitOk   uint16 = 21
	TxRollback   uint16 = 30
	TxRollbackOk uint16 = 31
)

// ArgSpec names one positional argument and its wire kind.
type ArgSpec struct {
	Name string
	Kind wire.Kind
}

// MethodSpec describes one (class_id, method_id) method's argument
// signature and protocol metadata.
type MethodSpec struct {
	ClassID   uint16
	MethodID  uint16
	ClassName string
	Name      string
	Args      []ArgSpec

	// NoWaitArg is the index into Args of a trailing "nowait"/"no-wait"
	// bit argument, or -1 if the method has none. When the caller sets
	// that argument true, no tracker is queued and the expected *-Ok is
	// suppressed.
	NoWaitArg int

	// Content marks methods that are immediately followed by a header
	// frame and zero or more body frames (Basic.Publish, Basic.Deliver,
	// Basic.Return, Basic.GetOk).
	Content bool

	// Extension marks methods that are not part of core AMQP 0-9-1 and
	// must be gated behind a capability check (currently only
	// Basic.Nack and the Confirm class).
	Extension bool
}

func key(classID, methodID uint16) uint32 {
	return uint32(classID)<<16 | uint32(methodID)
}

// reserved is for "ticket" arguments: the only reserved fields that are
// actually short-uint on the wire (default 0).
func reserved(name string) ArgSpec { return ArgSpec{Name: name, Kind: wire.KindShortUint} }

// reservedStr is for reserved fields that are shortstr on the wire
// (Connection.Open's "capabilities", Channel.Open's and
// Basic.GetEmpty's "reserved-1").
func reservedStr(name string) ArgSpec { return ArgSpec{Name: name, Kind: wire.KindShortString} }

func bit(name string) ArgSpec { return ArgSpec{Name: name, Kind: wire.KindBit} }

func short(name string) ArgSpec { return ArgSpec{Name: name, Kind: wire.KindShortString} }

func long(name string) ArgSpec { return ArgSpec{Name: name, Kind: wire.KindLongString} }

func u16(name string) ArgSpec { return ArgSpec{Name: name, Kind: wire.KindShortUint} }

func u32(name string) ArgSpec { return ArgSpec{Name: name, Kind: wire.KindLongUint} }

func u64(name string) ArgSpec { return ArgSpec{Name: name, Kind: wire.KindLongLongUint} }

func table(name string) ArgSpec { return ArgSpec{Name: name, Kind: wire.KindFieldTable} }

// Table maps every (class_id, method_id) pair this client recognizes to
// its MethodSpec.
var Table = buildTable()

func buildTable() map[uint32]MethodSpec {
	t := make(map[uint32]MethodSpec, 48)
	add := func(m MethodSpec) {
		t[key(m.ClassID, m.MethodID)] = m
	}

	add(MethodSpec{ClassID: ClassConnection, MethodID: ConnectionStart, ClassName: "connection", Name: "start", NoWaitArg: -1,
		Args: []ArgSpec{{"version-major", wire.KindShortShortUint}, {"version-minor", wire.KindShortShortUint}, table("server-properties"), long("mechanisms"), long("locales")}})
	add(MethodSpec{ClassID: ClassConnection, MethodID: ConnectionStartOk, ClassName: "connection", Name: "start-ok", NoWaitArg: -1,
		Args: []ArgSpec{table("client-properties"), short("mechanism"), long("response"), short("locale")}})
	add(MethodSpec{ClassID: ClassConnection, MethodID: ConnectionSecure, ClassName: "connection", Name: "secure", NoWaitArg: -1,
		Args: []ArgSpec{long("challenge")}})
	add(MethodSpec{ClassID: ClassConnection, MethodID: ConnectionSecureOk, ClassName: "connection", Name: "secure-ok", NoWaitArg: -1,
		Args: []ArgSpec{long("response")}})
	add(MethodSpec{ClassID: ClassConnection, MethodID: ConnectionTune, ClassName: "connection", Name: "tune", NoWaitArg: -1,
		Args: []ArgSpec{u16("channel-max"), u32("frame-max"), u16("heartbeat")}})
	add(MethodSpec{ClassID: ClassConnection, MethodID: ConnectionTuneOk, ClassName: "connection", Name: "tune-ok", NoWaitArg: -1,
		Args: []ArgSpec{u16("channel-max"), u32("frame-max"), u16("heartbeat")}})
	add(MethodSpec{ClassID: ClassConnection, MethodID: ConnectionOpen, ClassName: "connection", Name: "open", NoWaitArg: -1,
		Args: []ArgSpec{short("virtual-host"), reservedStr("capabilities"), bit("insist")}})
	add(MethodSpec{ClassID: ClassConnection, MethodID: ConnectionOpenOk, ClassName: "connection", Name: "open-ok", NoWaitArg: -1,
		Args: []ArgSpec{short("known-hosts")}})
	add(MethodSpec{ClassID: ClassConnection, MethodID: ConnectionClose, ClassName: "connection", Name: "close", NoWaitArg: -1,
		Args: []ArgSpec{u16("reply-code"), short("reply-text"), u16("class-id"), u16("method-id")}})
	add(MethodSpec{ClassID: ClassConnection, MethodID: ConnectionCloseOk, ClassName: "connection", Name: "close-ok", NoWaitArg: -1})

	add(MethodSpec{ClassID: ClassChannel, MethodID: ChannelOpen, ClassName: "channel", Name: "open", NoWaitArg: -1,
		Args: []ArgSpec{reservedStr("reserved-1")}})
	add(MethodSpec{ClassID: ClassChannel, MethodID: ChannelOpenOk, ClassName: "channel", Name: "open-ok", NoWaitArg: -1,
		Args: []ArgSpec{long("reserved-1")}})
	add(MethodSpec{ClassID: ClassChannel, MethodID: ChannelFlow, ClassName: "channel", Name: "flow", NoWaitArg: -1,
		Args: []ArgSpec{bit("active")}})
	add(MethodSpec{ClassID: ClassChannel, MethodID: ChannelFlowOk, ClassName: "channel", Name: "flow-ok", NoWaitArg: -1,
		Args: []ArgSpec{bit("active")}})
	add(MethodSpec{ClassID: ClassChannel, MethodID: ChannelClose, ClassName: "channel", Name: "close", NoWaitArg: -1,
		Args: []ArgSpec{u16("reply-code"), short("reply-text"), u16("class-id"), u16("method-id")}})
	add(MethodSpec{ClassID: ClassChannel, MethodID: ChannelCloseOk, ClassName: "channel", Name: "close-ok", NoWaitArg: -1})

	add(MethodSpec{ClassID: ClassExchange, MethodID: ExchangeDeclare, ClassName: "exchange", Name: "declare",
		Args: []ArgSpec{reserved("ticket"), short("exchange"), short("type"), bit("passive"), bit("durable"), bit("auto-delete"), bit("internal"), bit("nowait"), table("arguments")}})
	add(MethodSpec{ClassID: ClassExchange, MethodID: ExchangeDeclareOk, ClassName: "exchange", Name: "declare-ok", NoWaitArg: -1})
	add(MethodSpec{ClassID: ClassExchange, MethodID: ExchangeDelete, ClassName: "exchange", Name: "delete",
		Args: []ArgSpec{reserved("ticket"), short("exchange"), bit("if-unused"), bit("nowait")}})
	add(MethodSpec{ClassID: ClassExchange, MethodID: ExchangeDeleteOk, ClassName: "exchange", Name: "delete-ok", NoWaitArg: -1})
	add(MethodSpec{ClassID: ClassExchange, MethodID: ExchangeBind, ClassName: "exchange", Name: "bind",
		Args: []ArgSpec{reserved("ticket"), short("destination"), short("source"), short("routing-key"), bit("nowait"), table("arguments")}})
	add(MethodSpec{ClassID: ClassExchange, MethodID: ExchangeBindOk, ClassName: "exchange", Name: "bind-ok", NoWaitArg: -1})
	add(MethodSpec{ClassID: ClassExchange, MethodID: ExchangeUnbind, ClassName: "exchange", Name: "unbind",
		Args: []ArgSpec{reserved("ticket"), short("destination"), short("source"), short("routing-key"), bit("nowait"), table("arguments")}})
	add(MethodSpec{ClassID: ClassExchange, MethodID: ExchangeUnbindOk, ClassName: "exchange", Name: "unbind-ok", NoWaitArg: -1})

	add(MethodSpec{ClassID: ClassQueue, MethodID: QueueDeclare, ClassName: "queue", Name: "declare",
		Args: []ArgSpec{reserved("ticket"), short("queue"), bit("passive"), bit("durable"), bit("exclusive"), bit("auto-delete"), bit("nowait"), table("arguments")}})
	add(MethodSpec{ClassID: ClassQueue, MethodID: QueueDeclareOk, ClassName: "queue", Name: "declare-ok", NoWaitArg: -1,
		Args: []ArgSpec{short("queue"), u32("message-count"), u32("consumer-count")}})
	add(MethodSpec{ClassID: ClassQueue, MethodID: QueueBind, ClassName: "queue", Name: "bind",
		Args: []ArgSpec{reserved("ticket"), short("queue"), short("exchange"), short("routing-key"), bit("nowait"), table("arguments")}})
	add(MethodSpec{ClassID: ClassQueue, MethodID: QueueBindOk, ClassName: "queue", Name: "bind-ok", NoWaitArg: -1})
	add(MethodSpec{ClassID: ClassQueue, MethodID: QueuePurge, ClassName: "queue", Name: "purge",
		Args: []ArgSpec{reserved("ticket"), short("queue"), bit("nowait")}})
	add(MethodSpec{ClassID: ClassQueue, MethodID: QueuePurgeOk, ClassName: "queue", Name: "purge-ok", NoWaitArg: -1,
		Args: []ArgSpec{u32("message-count")}})
	add(MethodSpec{ClassID: ClassQueue, MethodID: QueueDelete, ClassName: "queue", Name: "delete",
		Args: []ArgSpec{reserved("ticket"), short("queue"), bit("if-unused"), bit("if-empty"), bit("nowait")}})
	add(MethodSpec{ClassID: ClassQueue, MethodID: QueueDeleteOk, ClassName: "queue", Name: "delete-ok", NoWaitArg: -1,
		Args: []ArgSpec{u32("message-count")}})
	add(MethodSpec{ClassID: ClassQueue, MethodID: QueueUnbind, ClassName: "queue", Name: "unbind", NoWaitArg: -1,
		Args: []ArgSpec{reserved("ticket"), short("queue"), short("exchange"), short("routing-key"), table("arguments")}})
	add(MethodSpec{ClassID: ClassQueue, MethodID: QueueUnbindOk, ClassName: "queue", Name: "unbind-ok", NoWaitArg: -1})

	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicQos, ClassName: "basic", Name: "qos", NoWaitArg: -1,
		Args: []ArgSpec{u32("prefetch-size"), u16("prefetch-count"), bit("global")}})
	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicQosOk, ClassName: "basic", Name: "qos-ok", NoWaitArg: -1})
	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicConsume, ClassName: "basic", Name: "consume",
		Args: []ArgSpec{reserved("ticket"), short("queue"), short("consumer-tag"), bit("no-local"), bit("no-ack"), bit("exclusive"), bit("nowait"), table("arguments")}})
	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicConsumeOk, ClassName: "basic", Name: "consume-ok", NoWaitArg: -1,
		Args: []ArgSpec{short("consumer-tag")}})
	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicCancel, ClassName: "basic", Name: "cancel",
		Args: []ArgSpec{short("consumer-tag"), bit("nowait")}})
	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicCancelOk, ClassName: "basic", Name: "cancel-ok", NoWaitArg: -1,
		Args: []ArgSpec{short("consumer-tag")}})
	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicPublish, ClassName: "basic", Name: "publish", NoWaitArg: -1,
		Args: []ArgSpec{reserved("ticket"), short("exchange"), short("routing-key"), bit("mandatory"), bit("immediate")}})
	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicReturn, ClassName: "basic", Name: "return", NoWaitArg: -1, Content: true,
		Args: []ArgSpec{u16("reply-code"), short("reply-text"), short("exchange"), short("routing-key")}})
	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicDeliver, ClassName: "basic", Name: "deliver", NoWaitArg: -1, Content: true,
		Args: []ArgSpec{short("consumer-tag"), u64("delivery-tag"), bit("redelivered"), short("exchange"), short("routing-key")}})
	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicGet, ClassName: "basic", Name: "get", NoWaitArg: -1,
		Args: []ArgSpec{reserved("ticket"), short("queue"), bit("no-ack")}})
	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicGetOk, ClassName: "basic", Name: "get-ok", NoWaitArg: -1, Content: true,
		Args: []ArgSpec{u64("delivery-tag"), bit("redelivered"), short("exchange"), short("routing-key"), u32("message-count")}})
	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicGetEmpty, ClassName: "basic", Name: "get-empty", NoWaitArg: -1,
		Args: []ArgSpec{reservedStr("reserved-1")}})
	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicAck, ClassName: "basic", Name: "ack", NoWaitArg: -1,
		Args: []ArgSpec{u64("delivery-tag"), bit("multiple")}})
	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicReject, ClassName: "basic", Name: "reject", NoWaitArg: -1,
		Args: []ArgSpec{u64("delivery-tag"), bit("requeue")}})
	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicRecoverAsync, ClassName: "basic", Name: "recover-async", NoWaitArg: -1,
		Args: []ArgSpec{bit("requeue")}})
	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicRecover, ClassName: "basic", Name: "recover", NoWaitArg: -1,
		Args: []ArgSpec{bit("requeue")}})
	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicRecoverOk, ClassName: "basic", Name: "recover-ok", NoWaitArg: -1})
	add(MethodSpec{ClassID: ClassBasic, MethodID: BasicNack, ClassName: "basic", Name: "nack", NoWaitArg: -1, Extension: true,
		Args: []ArgSpec{u64("delivery-tag"), bit("multiple"), bit("requeue")}})

	add(MethodSpec{ClassID: ClassConfirm, MethodID: ConfirmSelect, ClassName: "confirm", Name: "select", Extension: true,
		Args: []ArgSpec{bit("nowait")}})
	add(MethodSpec{ClassID: ClassConfirm, MethodID: ConfirmSelectOk, ClassName: "confirm", Name: "select-ok", NoWaitArg: -1, Extension: true})

	add(MethodSpec{ClassID: ClassTx, MethodID: TxSelect, ClassName: "tx", Name: "select", NoWaitArg: -1})
	add(MethodSpec{ClassID: ClassTx, MethodID: TxSelectOk, ClassName: "tx", Name: "select-ok", NoWaitArg: -1})
	add(MethodSpec{ClassID: ClassTx, MethodID: TxCommit, ClassName: "tx", Name: "commit", NoWaitArg: -1})
	add(MethodSpec{ClassID: ClassTx, MethodID: TxCommitOk, ClassName: "tx", Name: "commit-ok", NoWaitArg: -1})
	add(MethodSpec{ClassID: ClassTx, MethodID: TxRollback, ClassName: "tx", Name: "rollback", NoWaitArg: -1})
	add(MethodSpec{ClassID: ClassTx, MethodID: TxRollbackOk, ClassName: "tx", Name: "rollback-ok", NoWaitArg: -1})

	return t
}

func noWaitIndex(args []ArgSpec) int {
	for i, a := range args {
		if a.Name == "nowait" {
			return i
		}
	}
	return -1
}

// Lookup returns the MethodSpec for (classID, methodID), if recognized.
func Lookup(classID, methodID uint16) (MethodSpec, bool) {
	m, ok := Table[key(classID, methodID)]
	return m, ok
}

// Kinds extracts the ordered kind list from a MethodSpec's Args, the
// shape wire.WriteNativeSequence/ReadNativeSequence expect.
func (m MethodSpec) Kinds() []wire.Kind {
	kinds := make([]wire.Kind, len(m.Args))
	for i, a := range m.Args {
		kinds[i] = a.Kind
	}
	return kinds
}

func init() {
	// Fix up NoWaitArg now that Args are populated; done as a second
	// pass so the literal table above can stay declarative.
	for k, m := range Table {
		m.NoWaitArg = noWaitIndex(m.Args)
		Table[k] = m
	}
}
