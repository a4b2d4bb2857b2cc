package spectable

import (
	"testing"

	amqp "github.com/cordio/amqp91"
)

func TestLookupKnownMethods(t *testing.T) {
	cases := []struct {
		classID, methodID uint16
		name              string
	}{
		{ClassConnection, ConnectionStart, "start"},
		{ClassChannel, ChannelOpen, "open"},
		{ClassExchange, ExchangeDeclare, "declare"},
		{ClassQueue, QueueDeclare, "declare"},
		{ClassBasic, BasicPublish, "publish"},
		{ClassBasic, BasicNack, "nack"},
		{ClassConfirm, ConfirmSelect, "select"},
		{ClassTx, TxCommit, "commit"},
	}
	for _, c := range cases {
		spec, ok := Lookup(c.classID, c.methodID)
		if !ok {
			t.Fatalf("Lookup(%d, %d): not found", c.classID, c.methodID)
		}
		if spec.Name != c.name {
			t.Fatalf("Lookup(%d, %d): want name %q, got %q", c.classID, c.methodID, c.name, spec.Name)
		}
	}
}

func TestLookupUnknownMethod(t *testing.T) {
	if _, ok := Lookup(9999, 1); ok {
		t.Fatal("expected unknown class to miss")
	}
}

func TestNoWaitArgIndexesTrailingNoWait(t *testing.T) {
	spec, ok := Lookup(ClassQueue, QueueDeclare)
	if !ok {
		t.Fatal("Queue.Declare not found")
	}
	if spec.NoWaitArg < 0 || spec.Args[spec.NoWaitArg].Name != "nowait" {
		t.Fatalf("expected NoWaitArg to index the nowait argument, got %d", spec.NoWaitArg)
	}
}

func TestNoWaitArgAbsentWhereMethodHasNone(t *testing.T) {
	spec, ok := Lookup(ClassQueue, QueueUnbind)
	if !ok {
		t.Fatal("Queue.Unbind not found")
	}
	if spec.NoWaitArg != -1 {
		t.Fatalf("Queue.Unbind has no nowait argument, expected NoWaitArg -1, got %d", spec.NoWaitArg)
	}
}

func TestBasicNackFlaggedAsExtension(t *testing.T) {
	spec, ok := Lookup(ClassBasic, BasicNack)
	if !ok {
		t.Fatal("Basic.Nack not found")
	}
	if !spec.Extension {
		t.Fatal("Basic.Nack should be flagged as a protocol extension")
	}
}

func TestEncodeDecodeArgsRoundTrip(t *testing.T) {
	spec, ok := Lookup(ClassQueue, QueueDeclare)
	if !ok {
		t.Fatal("Queue.Declare not found")
	}
	values := []any{uint16(0), "my-queue", false, true, false, false, false, amqp.Table{}}
	payload, err := EncodeArgs(spec, values)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeArgs(spec, payload)
	if err != nil {
		t.Fatal(err)
	}
	if got[1] != "my-queue" {
		t.Fatalf("expected queue name my-queue, got %v", got[1])
	}
	if durable, _ := got[3].(bool); !durable {
		t.Fatal("expected durable bit to round trip true")
	}
}

func TestEncodeArgsRejectsWrongArgCount(t *testing.T) {
	spec, ok := Lookup(ClassQueue, QueueDeclare)
	if !ok {
		t.Fatal("Queue.Declare not found")
	}
	if _, err := EncodeArgs(spec, []any{"too", "few"}); err == nil {
		t.Fatal("expected argument count mismatch to fail")
	}
}

func TestEncodeArgsRejectsWrongGoType(t *testing.T) {
	spec, ok := Lookup(ClassBasic, BasicConsume)
	if !ok {
		t.Fatal("Basic.Consume not found")
	}
	values := []any{uint16(0), "q", "tag", false, true, false, false, map[string]any{}}
	if _, err := EncodeArgs(spec, values); err == nil {
		t.Fatal("expected a plain map[string]any to fail: the codec expects amqp.Table specifically")
	}
}
