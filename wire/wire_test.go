package wire

import (
	"bytes"
	"testing"

	amqp "github.com/cordio/amqp91"
)

func TestValueRoundTrip(t *testing.T) {
	cases := []any{
		true,
		int8(-5),
		uint8(200),
		int16(-1000),
		uint16(40000),
		int32(-100000),
		uint32(3000000000),
		int64(-1),
		uint64(1 << 40),
		float32(3.5),
		float64(2.25),
		"short",
		amqp.Timestamp(1690000000),
		amqp.Table{"a": int32(1), "b": "two"},
		amqp.FieldArray{int32(1), "two", true},
	}
	for _, v := range cases {
		var buf bytes.Buffer
		if err := WriteValue(&buf, v); err != nil {
			t.Fatalf("WriteValue(%v): %v", v, err)
		}
		_, got, err := ReadValue(&buf)
		if err != nil {
			t.Fatalf("ReadValue(%v): %v", v, err)
		}
		if table, ok := v.(amqp.Table); ok {
			gotTable, ok := got.(amqp.Table)
			if !ok || len(gotTable) != len(table) {
				t.Fatalf("table round trip mismatch: want %v got %v", v, got)
			}
			continue
		}
		if arr, ok := v.(amqp.FieldArray); ok {
			gotArr, ok := got.(amqp.FieldArray)
			if !ok || len(gotArr) != len(arr) {
				t.Fatalf("array round trip mismatch: want %v got %v", v, got)
			}
			continue
		}
		if got != v {
			t.Fatalf("round trip mismatch: want %#v got %#v", v, got)
		}
	}
}

func TestByteArrayRoundTrip(t *testing.T) {
	want := []byte{0x00, 0x01, 0xff, 0x80, 0x7f}
	var buf bytes.Buffer
	if err := WriteValue(&buf, want); err != nil {
		t.Fatal(err)
	}
	kind, got, err := ReadValue(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if kind != KindByteArray {
		t.Fatalf("expected KindByteArray, got %v", kind)
	}
	gotBytes, ok := got.([]byte)
	if !ok || !bytes.Equal(gotBytes, want) {
		t.Fatalf("byte array round trip mismatch: want %v got %v", want, got)
	}
}

func TestLongStringOver255Bytes(t *testing.T) {
	long := string(bytes.Repeat([]byte{'x'}, 300))
	var buf bytes.Buffer
	if err := WriteValue(&buf, long); err != nil {
		t.Fatal(err)
	}
	_, got, err := ReadValue(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != long {
		t.Fatalf("expected %d-byte string to round trip as long string", len(long))
	}
}

func TestBitPackingCoalescesLowBitFirst(t *testing.T) {
	kinds := []Kind{KindBit, KindBit, KindBit, KindShortUint, KindBit}
	values := []any{true, false, true, uint16(7), true}

	var buf bytes.Buffer
	if err := WriteNativeSequence(&buf, kinds, values); err != nil {
		t.Fatal(err)
	}
	// First octet packs bits 0-2 low-bit-first: 1,0,1 -> 0b101 = 5.
	encoded := buf.Bytes()
	if encoded[0] != 0x05 {
		t.Fatalf("expected first byte 0x05, got 0x%02x", encoded[0])
	}

	got, err := ReadNativeSequence(bytes.NewReader(encoded), kinds)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range values {
		if got[i] != v {
			t.Fatalf("argument %d: want %v got %v", i, v, got[i])
		}
	}
}

func TestBitPackingFlushesAtEightBits(t *testing.T) {
	kinds := make([]Kind, 9)
	values := make([]any, 9)
	for i := range kinds {
		kinds[i] = KindBit
		values[i] = i%2 == 0
	}
	var buf bytes.Buffer
	if err := WriteNativeSequence(&buf, kinds, values); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 2 {
		t.Fatalf("expected 9 bits to occupy 2 octets, got %d", buf.Len())
	}
	got, err := ReadNativeSequence(bytes.NewReader(buf.Bytes()), kinds)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range values {
		if got[i] != v {
			t.Fatalf("argument %d: want %v got %v", i, v, got[i])
		}
	}
}

func TestPropertiesRoundTrip(t *testing.T) {
	p := amqp.BasicProperties{
		ContentType:   "application/json",
		DeliveryMode:  2,
		CorrelationID: "corr-1",
		Headers:       amqp.Table{"x-retry": int32(3)},
	}
	flags, body, err := EncodeProperties(p)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeProperties(flags, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if got.ContentType != p.ContentType || got.DeliveryMode != p.DeliveryMode || got.CorrelationID != p.CorrelationID {
		t.Fatalf("properties round trip mismatch: want %+v got %+v", p, got)
	}
	if got.ReplyTo != "" {
		t.Fatalf("unset property ReplyTo should decode empty, got %q", got.ReplyTo)
	}
}
