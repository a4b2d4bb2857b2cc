package client

import (
	"context"
	"net"
	"testing"
	"time"

	amqp "github.com/cordio/amqp91"
	"github.com/cordio/amqp91/auth"
	"github.com/cordio/amqp91/channel"
	"github.com/cordio/amqp91/config"
	"github.com/cordio/amqp91/internal/testbroker"
)

// runFakeBroker plays the server side of one handshake, one channel open,
// and one connection close over conn, closely enough to drive the real
// Client end to end.
func runFakeBroker(conn net.Conn) error {
	b := testbroker.New(conn)
	b.ServerProperties = amqp.Table{"capabilities": amqp.Table{"basic.nack": true}}

	if err := b.Handshake(0, 131072, 0); err != nil {
		return err
	}

	channelID, err := b.ExpectChannelOpen()
	if err != nil {
		return err
	}
	if err := b.ChannelOpenOk(channelID); err != nil {
		return err
	}

	if err := b.ExpectConnectionClose(); err != nil {
		return err
	}
	return b.ConnectionCloseOk()
}

func TestDialOpenChannelObservesNackAndCloses(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	serverDone := make(chan error, 1)
	go func() { serverDone <- runFakeBroker(serverConn) }()

	opts := config.Options{
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) { return clientConn, nil },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cl, err := Dial(ctx, "ignored", opts, auth.Plain{Username: "guest", Password: "guest"}, nil, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	ch, err := cl.OpenChannel(ctx)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	if ch.State() != channel.StateOpen {
		t.Fatalf("expected channel StateOpen, got %v", ch.State())
	}
	if !ch.SupportsNack() {
		t.Fatal("expected SupportsNack to be true after observing the broker's basic.nack capability")
	}

	if err := cl.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-serverDone:
		if err != nil {
			t.Fatalf("fake broker: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fake broker")
	}

	select {
	case <-cl.Done():
	case <-time.After(time.Second):
		t.Fatal("expected Done() to be closed after Close")
	}
}

func TestOpenChannelIDSpaceExhausted(t *testing.T) {
	p := channel.NewIDPool(1)
	id, ok := p.Acquire()
	if !ok || id != 1 {
		t.Fatalf("expected first id 1, got %d (ok=%v)", id, ok)
	}
	if _, ok := p.Acquire(); ok {
		t.Fatal("expected pool of size 1 to be exhausted after one Acquire")
	}
	p.Release(id)
	id2, ok := p.Acquire()
	if !ok || id2 != 1 {
		t.Fatalf("expected released id to be reusable, got %d (ok=%v)", id2, ok)
	}
}
