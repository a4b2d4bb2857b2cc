// Package config holds the tunable options recognized by the client:
// frame-size and channel-id caps, the heartbeat interval, and the dial
// hook that supplies the underlying byte stream (TLS or otherwise).
package config

import (
	"context"
	"net"
	"time"
)

const (
	DefaultMaxFrameSizeBytes uint32 = 131072
	DefaultMaxChannelID      uint16 = 2047
	DefaultHeartbeatSeconds  uint16 = 60

	// DefaultPlainPort is the conventional AMQP port.
	DefaultPlainPort = 5672

	// DefaultTLSPort is the IANA-registered AMQPS port, the current
	// RabbitMQ default (some older deployments use 5673 instead).
	DefaultTLSPort = 5671
)

// DialFunc opens the underlying byte stream for a connection. Supplying a
// custom DialFunc is how TLS (or any other transport) is plugged in — the
// engine only ever needs a bidirectional io.ReadWriteCloser.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Options configures a client.Client before it dials.
type Options struct {
	// MaxFrameSizeBytes is this client's cap, offered to the peer during
	// Tune negotiation. Zero selects DefaultMaxFrameSizeBytes.
	MaxFrameSizeBytes uint32
	// MaxChannelID is this client's cap on concurrently open channels.
	// Zero selects DefaultMaxChannelID.
	MaxChannelID uint16
	// HeartbeatSeconds is this client's preferred heartbeat interval.
	// Zero selects DefaultHeartbeatSeconds, so heartbeats cannot be
	// disabled from the client side. Negotiation takes the smaller of this
	// value and the server's offer; a server offer of zero leaves this
	// value in effect.
	HeartbeatSeconds uint16

	// Vhost is the virtual host opened on Connection.Open. Defaults to "/".
	Vhost string

	// Dial opens the transport. Defaults to the DialContext of a
	// net.Dialer with a 10-second timeout.
	Dial DialFunc

	// ConnectionName is an optional client-properties entry advertised
	// during Connection.StartOk, surfaced by brokers in their management
	// UI. client.Dial replaces an empty name with a generated
	// "amqp91-<uuid>" one; an Engine built directly omits an empty name.
	ConnectionName string
}

// WithDefaults returns a copy of o with zero fields replaced by defaults.
func (o Options) WithDefaults() Options {
	if o.MaxFrameSizeBytes == 0 {
		o.MaxFrameSizeBytes = DefaultMaxFrameSizeBytes
	}
	if o.MaxChannelID == 0 {
		o.MaxChannelID = DefaultMaxChannelID
	}
	if o.HeartbeatSeconds == 0 {
		o.HeartbeatSeconds = DefaultHeartbeatSeconds
	}
	if o.Vhost == "" {
		o.Vhost = "/"
	}
	if o.Dial == nil {
		dialer := &net.Dialer{Timeout: 10 * time.Second}
		o.Dial = dialer.DialContext
	}
	return o
}

// Tuned is the effective, post-negotiation parameter set:
// min(server_offered, client_cap), with "0 means unlimited/no
// preference" resolved per field before the min is taken.
type Tuned struct {
	ChannelMax      uint16
	FrameMax        uint32
	HeartbeatSec    uint16
}

// Negotiate computes the element-wise minimum of the server's offered
// Tune values and the client's caps.
func Negotiate(serverChannelMax uint16, serverFrameMax uint32, serverHeartbeat uint16, clientCap Options) Tuned {
	return Tuned{
		ChannelMax:   minU16(serverChannelMax, clientCap.MaxChannelID),
		FrameMax:     minU32(serverFrameMax, clientCap.MaxFrameSizeBytes),
		HeartbeatSec: minU16(serverHeartbeat, clientCap.HeartbeatSeconds),
	}
}

func minU16(server, client uint16) uint16 {
	if server == 0 {
		return client
	}
	if client == 0 {
		return server
	}
	if server < client {
		return server
	}
	return client
}

func minU32(server, client uint32) uint32 {
	if server == 0 {
		return client
	}
	if client == 0 {
		return server
	}
	if server < client {
		return server
	}
	return client
}
