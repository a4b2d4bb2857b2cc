// Package testbroker is a minimal in-process stand-in for an AMQP
// broker's wire behavior, driven entirely by frame.ReadFrame/WriteFrame
// over a caller-supplied net.Conn (typically one end of net.Pipe()). It
// lets client/channel/connection tests exercise a real handshake and
// method exchange without a running broker.
package testbroker

import (
	"bufio"
	"io"
	"net"

	amqp "github.com/cordio/amqp91"
	"github.com/cordio/amqp91/frame"
	"github.com/cordio/amqp91/spectable"
	"github.com/pkg/errors"
)

// Broker plays the server side of the protocol over conn.
type Broker struct {
	conn net.Conn
	r    *bufio.Reader

	// ServerProperties is sent verbatim as Connection.Start's
	// server-properties table. Tests set a "capabilities" sub-table here
	// to exercise channel.Channel.SupportsNack detection.
	ServerProperties amqp.Table
}

// New wraps conn. Callers typically pass one end of a net.Pipe() whose
// other end is handed to client.Dial via a config.Options.Dial hook.
func New(conn net.Conn) *Broker {
	return &Broker{conn: conn, r: bufio.NewReader(conn), ServerProperties: amqp.Table{}}
}

// ReadProtocolHeader consumes the 8-byte preamble the client writes
// before any framed traffic.
func (b *Broker) ReadProtocolHeader() error {
	var hdr [8]byte
	if _, err := io.ReadFull(b.conn, hdr[:]); err != nil {
		return errors.Wrap(err, "testbroker: read protocol header")
	}
	if hdr != frame.ProtocolHeader {
		return errors.Errorf("testbroker: unexpected protocol header %v", hdr)
	}
	return nil
}

// Send encodes and writes one method frame on channelID.
func (b *Broker) Send(channelID, classID, methodID uint16, values []any) error {
	spec, ok := spectable.Lookup(classID, methodID)
	if !ok {
		return errors.Errorf("testbroker: unknown method %d.%d", classID, methodID)
	}
	payload, err := spectable.EncodeArgs(spec, values)
	if err != nil {
		return errors.Wrap(err, "testbroker: encode args")
	}
	return frame.WriteFrame(b.conn, 0, &frame.Frame{
		Type: frame.TypeMethod, Channel: channelID,
		ClassID: classID, MethodID: methodID, Arguments: payload,
	})
}

// Expect reads the next frame and fails unless it is the named method.
func (b *Broker) Expect(classID, methodID uint16) (*frame.Frame, error) {
	f, err := frame.ReadFrame(b.r, 0)
	if err != nil {
		return nil, errors.Wrap(err, "testbroker: read frame")
	}
	if f.ClassID != classID || f.MethodID != methodID {
		return nil, errors.Errorf("testbroker: expected %d.%d, got %d.%d", classID, methodID, f.ClassID, f.MethodID)
	}
	return f, nil
}

// Handshake drives Start/StartOk/Tune/TuneOk/Open/OpenOk to completion,
// consuming the protocol header first. frameMax/channelMax/heartbeat are
// this broker's offered tune values; 0 means "no preference, defer to
// the client's cap" per config.Negotiate.
func (b *Broker) Handshake(channelMax uint16, frameMax uint32, heartbeat uint16) error {
	if err := b.ReadProtocolHeader(); err != nil {
		return err
	}
	if err := b.Send(0, spectable.ClassConnection, spectable.ConnectionStart, []any{
		byte(0), byte(9), b.ServerProperties, "PLAIN AMQPLAIN", "en_US",
	}); err != nil {
		return err
	}
	if _, err := b.Expect(spectable.ClassConnection, spectable.ConnectionStartOk); err != nil {
		return err
	}
	if err := b.Send(0, spectable.ClassConnection, spectable.ConnectionTune, []any{channelMax, frameMax, heartbeat}); err != nil {
		return err
	}
	if _, err := b.Expect(spectable.ClassConnection, spectable.ConnectionTuneOk); err != nil {
		return err
	}
	if _, err := b.Expect(spectable.ClassConnection, spectable.ConnectionOpen); err != nil {
		return err
	}
	return b.Send(0, spectable.ClassConnection, spectable.ConnectionOpenOk, []any{""})
}

// ExpectChannelOpen waits for a Channel.Open and returns its channel ID.
func (b *Broker) ExpectChannelOpen() (uint16, error) {
	f, err := b.Expect(spectable.ClassChannel, spectable.ChannelOpen)
	if err != nil {
		return 0, err
	}
	return f.Channel, nil
}

// ChannelOpenOk replies OpenOk on channelID.
func (b *Broker) ChannelOpenOk(channelID uint16) error {
	return b.Send(channelID, spectable.ClassChannel, spectable.ChannelOpenOk, []any{""})
}

// ExpectConnectionClose waits for a client-initiated Connection.Close.
func (b *Broker) ExpectConnectionClose() error {
	_, err := b.Expect(spectable.ClassConnection, spectable.ConnectionClose)
	return err
}

// ConnectionCloseOk replies CloseOk on channel 0.
func (b *Broker) ConnectionCloseOk() error {
	return b.Send(0, spectable.ClassConnection, spectable.ConnectionCloseOk, nil)
}
