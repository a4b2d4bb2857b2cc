package channel

import (
	"bytes"
	"context"
	"testing"
	"time"

	amqp "github.com/cordio/amqp91"
	"github.com/cordio/amqp91/consumer"
	"github.com/cordio/amqp91/frame"
	"github.com/cordio/amqp91/spectable"
	"github.com/cordio/amqp91/wire"
	"golang.org/x/time/rate"
)

type recordingWriter struct {
	frames chan *frame.Frame
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{frames: make(chan *frame.Frame, 32)}
}

func (w *recordingWriter) WriteFrame(f *frame.Frame) error {
	w.frames <- f
	return nil
}

func (w *recordingWriter) next(t *testing.T) *frame.Frame {
	t.Helper()
	select {
	case f := <-w.frames:
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func openedChannel(t *testing.T) (*Channel, *recordingWriter) {
	t.Helper()
	w := newRecordingWriter()
	ch := New(1, w, 4096, nil, nil, nil)

	done := make(chan error, 1)
	go func() { done <- ch.Open(context.Background()) }()

	f := w.next(t)
	if f.ClassID != spectable.ClassChannel || f.MethodID != spectable.ChannelOpen {
		t.Fatalf("expected Channel.Open, got %d.%d", f.ClassID, f.MethodID)
	}
	spec, _ := spectable.Lookup(spectable.ClassChannel, spectable.ChannelOpenOk)
	payload, err := spectable.EncodeArgs(spec, []any{""})
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.HandleFrame(&frame.Frame{Type: frame.TypeMethod, Channel: 1, ClassID: spec.ClassID, MethodID: spec.MethodID, Arguments: payload}); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ch.State() != StateOpen {
		t.Fatalf("expected StateOpen, got %v", ch.State())
	}
	return ch, w
}

func TestChannelOpenClose(t *testing.T) {
	ch, w := openedChannel(t)

	done := make(chan error, 1)
	go func() { done <- ch.Close(context.Background(), 0, "") }()

	f := w.next(t)
	if f.ClassID != spectable.ClassChannel || f.MethodID != spectable.ChannelClose {
		t.Fatalf("expected Channel.Close, got %d.%d", f.ClassID, f.MethodID)
	}
	spec, _ := spectable.Lookup(spectable.ClassChannel, spectable.ChannelCloseOk)
	closeOkPayload, err := spectable.EncodeArgs(spec, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.HandleFrame(&frame.Frame{Type: frame.TypeMethod, Channel: 1, ClassID: spec.ClassID, MethodID: spec.MethodID, Arguments: closeOkPayload}); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ch.State() != StateClosed {
		t.Fatalf("expected StateClosed, got %v", ch.State())
	}
}

func TestQueueDeclareCorrelation(t *testing.T) {
	ch, w := openedChannel(t)

	resultCh := make(chan struct {
		name string
		err  error
	}, 1)
	go func() {
		name, _, _, err := ch.QueueDeclare(context.Background(), "q1", false, true, false, false, false, nil)
		resultCh <- struct {
			name string
			err  error
		}{name, err}
	}()

	f := w.next(t)
	if f.ClassID != spectable.ClassQueue || f.MethodID != spectable.QueueDeclare {
		t.Fatalf("expected Queue.Declare, got %d.%d", f.ClassID, f.MethodID)
	}
	spec, _ := spectable.Lookup(spectable.ClassQueue, spectable.QueueDeclareOk)
	payload, err := spectable.EncodeArgs(spec, []any{"q1", uint32(0), uint32(0)})
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.HandleFrame(&frame.Frame{Type: frame.TypeMethod, Channel: 1, ClassID: spec.ClassID, MethodID: spec.MethodID, Arguments: payload}); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-resultCh:
		if r.err != nil {
			t.Fatalf("QueueDeclare: %v", r.err)
		}
		if r.name != "q1" {
			t.Fatalf("expected queue name q1, got %q", r.name)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for QueueDeclare result")
	}
}

func TestGetEmptyCompletesPendingGet(t *testing.T) {
	ch, w := openedChannel(t)

	resultCh := make(chan *amqp.GetResult, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := ch.Get(context.Background(), "q1", true)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- res
	}()

	f := w.next(t)
	if f.ClassID != spectable.ClassBasic || f.MethodID != spectable.BasicGet {
		t.Fatalf("expected Basic.Get, got %d.%d", f.ClassID, f.MethodID)
	}
	emptySpec, _ := spectable.Lookup(spectable.ClassBasic, spectable.BasicGetEmpty)
	emptyPayload, err := spectable.EncodeArgs(emptySpec, []any{""})
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.HandleFrame(&frame.Frame{Type: frame.TypeMethod, Channel: 1, ClassID: emptySpec.ClassID, MethodID: emptySpec.MethodID, Arguments: emptyPayload}); err != nil {
		t.Fatal(err)
	}

	select {
	case res := <-resultCh:
		if !res.Empty {
			t.Fatal("expected Empty result")
		}
	case err := <-errCh:
		t.Fatalf("Get: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Get result")
	}
}

func TestConsumeDeliversMessage(t *testing.T) {
	ch, w := openedChannel(t)

	consumerCh := make(chan error, 1)
	var cons *consumer.Consumer
	go func() {
		c, err := ch.Consume(context.Background(), "q1", "tag1", false, false, false, false, nil, 4)
		if err != nil {
			consumerCh <- err
			return
		}
		cons = c
		consumerCh <- nil
	}()

	f := w.next(t)
	if f.ClassID != spectable.ClassBasic || f.MethodID != spectable.BasicConsume {
		t.Fatalf("expected Basic.Consume, got %d.%d", f.ClassID, f.MethodID)
	}
	spec, _ := spectable.Lookup(spectable.ClassBasic, spectable.BasicConsumeOk)
	payload, err := spectable.EncodeArgs(spec, []any{"tag1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.HandleFrame(&frame.Frame{Type: frame.TypeMethod, Channel: 1, ClassID: spec.ClassID, MethodID: spec.MethodID, Arguments: payload}); err != nil {
		t.Fatal(err)
	}
	if err := <-consumerCh; err != nil {
		t.Fatalf("Consume: %v", err)
	}

	deliverSpec, _ := spectable.Lookup(spectable.ClassBasic, spectable.BasicDeliver)
	deliverPayload, err := spectable.EncodeArgs(deliverSpec, []any{"tag1", uint64(1), false, "ex", "rk"})
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.HandleFrame(&frame.Frame{Type: frame.TypeMethod, Channel: 1, ClassID: deliverSpec.ClassID, MethodID: deliverSpec.MethodID, Arguments: deliverPayload}); err != nil {
		t.Fatal(err)
	}
	props := amqp.BasicProperties{ContentType: "text/plain"}
	flags, propBytes, err := wire.EncodeProperties(props)
	if err != nil {
		t.Fatal(err)
	}
	body := []byte("hello")
	if err := ch.HandleFrame(&frame.Frame{Type: frame.TypeHeader, Channel: 1, ClassID: spectable.ClassBasic, ContentSize: uint64(len(body)), PropertyFlags: flags, PropertyBytes: propBytes}); err != nil {
		t.Fatal(err)
	}
	if err := ch.HandleFrame(&frame.Frame{Type: frame.TypeBody, Channel: 1, Body: body}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-cons.Deliveries():
		if !bytes.Equal(msg.Body, body) {
			t.Fatalf("expected body %q, got %q", body, msg.Body)
		}
		if msg.DeliveryTag != 1 {
			t.Fatalf("expected delivery tag 1, got %d", msg.DeliveryTag)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestDispatchLimiterThrottlesDeliveries(t *testing.T) {
	ch, w := openedChannel(t)

	const delay = 150 * time.Millisecond
	ch.SetDispatchLimiter(rate.NewLimiter(rate.Every(delay), 1))

	consumerCh := make(chan error, 1)
	var cons *consumer.Consumer
	go func() {
		c, err := ch.Consume(context.Background(), "q1", "tag1", false, false, false, false, nil, 4)
		if err != nil {
			consumerCh <- err
			return
		}
		cons = c
		consumerCh <- nil
	}()

	f := w.next(t)
	if f.ClassID != spectable.ClassBasic || f.MethodID != spectable.BasicConsume {
		t.Fatalf("expected Basic.Consume, got %d.%d", f.ClassID, f.MethodID)
	}
	consumeOkSpec, _ := spectable.Lookup(spectable.ClassBasic, spectable.BasicConsumeOk)
	consumeOkPayload, err := spectable.EncodeArgs(consumeOkSpec, []any{"tag1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.HandleFrame(&frame.Frame{Type: frame.TypeMethod, Channel: 1, ClassID: consumeOkSpec.ClassID, MethodID: consumeOkSpec.MethodID, Arguments: consumeOkPayload}); err != nil {
		t.Fatal(err)
	}
	if err := <-consumerCh; err != nil {
		t.Fatalf("Consume: %v", err)
	}

	deliverOne := func(tag uint64) {
		t.Helper()
		deliverSpec, _ := spectable.Lookup(spectable.ClassBasic, spectable.BasicDeliver)
		deliverPayload, err := spectable.EncodeArgs(deliverSpec, []any{"tag1", tag, false, "ex", "rk"})
		if err != nil {
			t.Fatal(err)
		}
		if err := ch.HandleFrame(&frame.Frame{Type: frame.TypeMethod, Channel: 1, ClassID: deliverSpec.ClassID, MethodID: deliverSpec.MethodID, Arguments: deliverPayload}); err != nil {
			t.Fatal(err)
		}
		props := amqp.BasicProperties{ContentType: "text/plain"}
		flags, propBytes, err := wire.EncodeProperties(props)
		if err != nil {
			t.Fatal(err)
		}
		body := []byte("hello")
		if err := ch.HandleFrame(&frame.Frame{Type: frame.TypeHeader, Channel: 1, ClassID: spectable.ClassBasic, ContentSize: uint64(len(body)), PropertyFlags: flags, PropertyBytes: propBytes}); err != nil {
			t.Fatal(err)
		}
		if err := ch.HandleFrame(&frame.Frame{Type: frame.TypeBody, Channel: 1, Body: body}); err != nil {
			t.Fatal(err)
		}
	}

	deliverOne(1)
	select {
	case <-cons.Deliveries():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first delivery")
	}

	start := time.Now()
	deliverOne(2)
	select {
	case <-cons.Deliveries():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second delivery")
	}
	elapsed := time.Since(start)
	if elapsed < delay/2 {
		t.Fatalf("expected dispatch limiter to delay second delivery by roughly %v, only took %v", delay, elapsed)
	}
}

func TestCloseCancelsPendingFutures(t *testing.T) {
	ch, w := openedChannel(t)

	errCh := make(chan error, 1)
	go func() {
		_, _, _, err := ch.QueueDeclare(context.Background(), "q1", false, true, false, false, false, nil)
		errCh <- err
	}()
	w.next(t)

	ch.teardown(&amqp.ChannelClosedError{Code: 320, ReplyText: "connection closed"})

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected QueueDeclare to fail after teardown")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancellation")
	}
}
