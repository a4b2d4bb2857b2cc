// Package client owns the connection's single net.Conn, runs the
// dedicated read-pump goroutine that feeds frames to either the
// connection engine (channel 0) or the addressed channel engine, and
// allocates channel IDs.
//
// Frame flow:
//
//	Dial                 → net.Dial + write protocol header
//	  → connection.Engine.Start  → handshake, blocks until opened
//	readPump (goroutine) → frame.ReadFrame, one frame at a time
//	  → channel 0         → connection.Engine.HandleFrame
//	  → channel N         → channel.Channel.HandleFrame
//	OpenChannel           → channel.IDPool.Acquire → channel.New → Open
package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"

	amqp "github.com/cordio/amqp91"
	"github.com/cordio/amqp91/amqpurl"
	"github.com/cordio/amqp91/auth"
	"github.com/cordio/amqp91/channel"
	"github.com/cordio/amqp91/config"
	"github.com/cordio/amqp91/connection"
	"github.com/cordio/amqp91/frame"
	"github.com/cordio/amqp91/metrics"
	"github.com/cordio/amqp91/spectable"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// readBufferSlack pads the read buffer beyond the negotiated frame-max so
// a single frame.ReadFrame Peek never trips bufio.ErrBufferFull.
const readBufferSlack = 4096

// Client owns one AMQP connection: the socket, the channel-0 connection
// engine, and every open channel.Channel multiplexed over it.
type Client struct {
	conn      net.Conn
	bufReader *bufio.Reader
	writeMu   sync.Mutex

	opts   config.Options
	logger *zap.Logger
	m      *metrics.Metrics

	engine *connection.Engine

	idPool *channel.IDPool
	chMu   sync.Mutex
	chans  map[uint16]*channel.Channel

	supportsNack atomic.Bool

	closed chan struct{}
}

// Dial opens addr, writes the protocol header, runs the handshake, and
// returns a ready Client. ctx bounds the handshake only; once the
// connection is open the read pump runs for the Client's lifetime.
func Dial(ctx context.Context, addr string, opts config.Options, mech auth.Mechanism, logger *zap.Logger, m *metrics.Metrics) (*Client, error) {
	opts = opts.WithDefaults()
	if opts.ConnectionName == "" {
		opts.ConnectionName = "amqp91-" + uuid.NewString()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Noop()
	}

	conn, err := opts.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "client: dial")
	}
	if _, err := conn.Write(frame.ProtocolHeader[:]); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "client: write protocol header")
	}

	c := &Client{
		conn:      conn,
		bufReader: bufio.NewReaderSize(conn, int(opts.MaxFrameSizeBytes)+readBufferSlack),
		opts:      opts,
		logger:    logger,
		m:         m,
		idPool:    channel.NewIDPool(opts.MaxChannelID),
		chans:     make(map[uint16]*channel.Channel),
		closed:    make(chan struct{}),
	}
	c.engine = connection.New(c, opts, mech, logger, m, c.onConnectionClosed)

	go c.readPump()

	if err := c.engine.Start(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	if cm := c.engine.Tuned().ChannelMax; cm != 0 {
		c.idPool = channel.NewIDPool(cm)
	}
	return c, nil
}

// DialURL parses rawURL (amqp[s]://[user[:pass]@]host[:port][/vhost]) and
// dials it, deriving credentials and vhost from the URL and wrapping the
// dialer with TLS when the scheme is amqps.
func DialURL(ctx context.Context, rawURL string, opts config.Options, logger *zap.Logger, m *metrics.Metrics) (*Client, error) {
	addr, err := amqpurl.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	opts.Vhost = addr.Vhost
	if addr.TLS {
		base := opts.Dial
		if base == nil {
			base = config.Options{}.WithDefaults().Dial
		}
		opts.Dial = func(ctx context.Context, network, a string) (net.Conn, error) {
			conn, err := base(ctx, network, a)
			if err != nil {
				return nil, err
			}
			tlsConn := tls.Client(conn, &tls.Config{ServerName: addr.Host})
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		}
	}
	mech := auth.Plain{Username: addr.Username, Password: addr.Password}
	return Dial(ctx, addr.HostPort(), opts, mech, logger, m)
}

// WriteFrame serializes and writes f under the single write mutex shared
// by the connection engine and every channel, so writes of a single
// frame are always contiguous on the wire.
func (c *Client) WriteFrame(f *frame.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	maxFrameSize := c.opts.MaxFrameSizeBytes
	if tuned := c.engine.Tuned(); tuned.FrameMax != 0 {
		maxFrameSize = tuned.FrameMax
	}
	return frame.WriteFrame(c.conn, maxFrameSize, f)
}

// State returns the underlying connection engine's state.
func (c *Client) State() connection.State { return c.engine.State() }

// Done is closed once the connection has fully torn down, locally or
// peer-initiated.
func (c *Client) Done() <-chan struct{} { return c.closed }

// Close sends Connection.Close and blocks for the peer's CloseOk, which
// tears down every open channel and the socket.
func (c *Client) Close(ctx context.Context) error {
	return c.engine.Close(ctx, amqp.ReplySuccess, "")
}

// OpenChannel allocates a channel ID, sends Channel.Open, and blocks for
// OpenOk.
func (c *Client) OpenChannel(ctx context.Context) (*channel.Channel, error) {
	id, ok := c.idPool.Acquire()
	if !ok {
		return nil, &amqp.InvalidArgumentError{Message: "client: channel id space exhausted"}
	}

	frameMax := c.opts.MaxFrameSizeBytes
	if tuned := c.engine.Tuned(); tuned.FrameMax != 0 {
		frameMax = tuned.FrameMax
	}

	ch := channel.New(id, c, frameMax, c.logger, c.m, c.onChannelClosed)
	ch.SetSupportsNack(c.supportsNack.Load())

	c.chMu.Lock()
	c.chans[id] = ch
	c.chMu.Unlock()
	c.m.OpenChannels.Inc()

	if err := ch.Open(ctx); err != nil {
		c.chMu.Lock()
		delete(c.chans, id)
		c.chMu.Unlock()
		c.idPool.Release(id)
		c.m.OpenChannels.Dec()
		return nil, err
	}
	return ch, nil
}

func (c *Client) lookupChannel(id uint16) *channel.Channel {
	c.chMu.Lock()
	defer c.chMu.Unlock()
	return c.chans[id]
}

func (c *Client) onChannelClosed(id uint16, err error) {
	c.chMu.Lock()
	_, existed := c.chans[id]
	delete(c.chans, id)
	c.chMu.Unlock()
	if existed {
		c.idPool.Release(id)
		c.m.OpenChannels.Dec()
	}
}

// onConnectionClosed runs exactly once (the engine's teardown guard
// ensures that), whether the close was peer-initiated, locally
// requested, or forced by a read-pump I/O failure. It fails every open
// channel's pending trackers with the same error, so a
// ConnectionClosedError is delivered transitively to every channel.
func (c *Client) onConnectionClosed(err error) {
	c.chMu.Lock()
	chans := make([]*channel.Channel, 0, len(c.chans))
	for _, ch := range c.chans {
		chans = append(chans, ch)
	}
	c.chans = make(map[uint16]*channel.Channel)
	c.chMu.Unlock()

	for _, ch := range chans {
		ch.Shutdown(err)
		c.m.OpenChannels.Dec()
	}

	c.conn.Close()
	close(c.closed)
}

// readPump is the connection's single reader: it decodes one frame at a
// time and routes it to the connection engine or the addressed channel,
// never running two HandleFrame calls concurrently.
func (c *Client) readPump() {
	for {
		maxFrameSize := uint32(0)
		if c.engine.State() >= connection.StateOpened {
			maxFrameSize = c.engine.Tuned().FrameMax
		}

		f, err := frame.ReadFrame(c.bufReader, maxFrameSize)
		if err != nil {
			if errors.Is(err, frame.ErrWouldBlock) {
				continue
			}
			c.fail(errors.Wrap(err, "client: read frame"))
			return
		}

		c.m.FramesReceived.WithLabelValues(f.Type.String()).Inc()
		c.engine.Touch()

		if f.Channel == 0 {
			if f.Type == frame.TypeMethod && f.ClassID == spectable.ClassConnection && f.MethodID == spectable.ConnectionStart {
				c.observeServerProperties(f)
			}
			if err := c.engine.HandleFrame(f); err != nil {
				c.logger.Error("client: connection engine error", zap.Error(err))
			}
			continue
		}

		ch := c.lookupChannel(f.Channel)
		if ch == nil {
			c.logger.Warn("client: frame for unknown channel dropped", zap.Uint16("channel", f.Channel))
			continue
		}
		if err := ch.HandleFrame(f); err != nil {
			c.logger.Error("client: channel engine error", zap.Uint16("channel", f.Channel), zap.Error(err))
		}
	}
}

// observeServerProperties inspects Connection.Start's server-properties
// table for the basic.nack capability, ahead of the connection engine's
// own (capability-agnostic) handling of the same frame, so every channel
// opened afterwards starts with the right Channel.SupportsNack value.
func (c *Client) observeServerProperties(f *frame.Frame) {
	spec, ok := spectable.Lookup(f.ClassID, f.MethodID)
	if !ok {
		return
	}
	args, err := spectable.DecodeArgs(spec, f.Arguments)
	if err != nil || len(args) < 3 {
		return
	}
	props, ok := args[2].(amqp.Table)
	if !ok {
		return
	}
	caps, ok := props["capabilities"].(amqp.Table)
	if !ok {
		return
	}
	if nack, ok := caps["basic.nack"].(bool); ok && nack {
		c.supportsNack.Store(true)
	}
}

func (c *Client) fail(err error) {
	if c.engine.State() == connection.StateClosed {
		return
	}
	c.logger.Warn("client: read pump failed", zap.Error(err))
	c.engine.Fail(&amqp.IoError{Cause: err})
}
