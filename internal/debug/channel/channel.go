// Package channel implements the control connection between the debug
// controller and a target runtime.
//
// A Channel listens on a TCP address, accepts exactly one inbound
// connection and then exchanges framed wire messages over it. It is not
// reusable: a new Channel is opened for every debug session.
package channel

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/moaidebug/internal/debug/wire"
)

// DefaultSendTimeout bounds how long Send may block on a slow peer.
const DefaultSendTimeout = 5 * time.Second

// Handlers receives channel notifications. All callbacks are invoked from
// the channel's single receive goroutine, one at a time, in wire order.
type Handlers struct {
	// OnConnected is called once the inbound connection is accepted.
	OnConnected func(remote net.Addr)

	// OnMessage is called for every decoded frame.
	OnMessage func(msg wire.Message)

	// OnError is called for frames that could not be decoded. Unknown
	// message types do not stop the receive loop; protocol violations do.
	OnError func(err error)

	// OnClosed is called once when the connection ends for any reason
	// other than Close. err is nil for a clean end of stream.
	OnClosed func(err error)
}

// Option configures a Channel.
type Option func(*Channel)

// WithSendTimeout sets the write deadline applied to each Send.
func WithSendTimeout(d time.Duration) Option {
	return func(c *Channel) {
		c.sendTimeout = d
	}
}

// WithLogger sets the channel logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// Channel is a one-connection duplex message channel.
type Channel struct {
	listener net.Listener

	connMu sync.Mutex
	conn   net.Conn

	// sendMu serializes frames on the wire.
	sendMu sync.Mutex

	sendTimeout time.Duration
	logger      zerolog.Logger

	served    atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// Open binds a listener on addr ("host:port"; port 0 picks a free port).
func Open(addr string, opts ...Option) (*Channel, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}

	c := &Channel{
		listener:    ln,
		sendTimeout: DefaultSendTimeout,
		logger:      zerolog.Nop(),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Addr returns the bound listening address.
func (c *Channel) Addr() net.Addr {
	return c.listener.Addr()
}

// Connected reports whether the inbound connection has been accepted and
// the channel is still open.
func (c *Channel) Connected() bool {
	if c.closed.Load() {
		return false
	}
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

// Done returns a channel closed when the Channel is closed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Serve starts accepting and receiving in the background. It may be
// called at most once.
func (c *Channel) Serve(h Handlers) error {
	if c.closed.Load() {
		return &ChannelError{Op: "serve", Err: ErrClosed, Dead: true}
	}
	if c.served.Swap(true) {
		return &ChannelError{Op: "serve", Err: ErrAlreadyServing}
	}
	go c.run(h)
	return nil
}

// run accepts one connection and then loops over incoming frames.
func (c *Channel) run(h Handlers) {
	conn, err := c.listener.Accept()
	if err != nil {
		if c.closed.Load() {
			return
		}
		c.finish(h, &ChannelError{Op: "accept", Err: err, Dead: true})
		return
	}

	// Only one peer per channel: stop listening so later dials are refused.
	_ = c.listener.Close()

	c.connMu.Lock()
	if c.closed.Load() {
		c.connMu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.connMu.Unlock()

	c.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("target connected")
	if h.OnConnected != nil {
		h.OnConnected(conn.RemoteAddr())
	}

	reader := bufio.NewReader(conn)
	for {
		body, err := wire.ReadFrame(reader)
		if err != nil {
			if c.closed.Load() {
				return
			}
			if errors.Is(err, io.EOF) {
				c.finish(h, nil)
				return
			}
			if errors.Is(err, wire.ErrProtocolViolation) {
				c.report(h, err)
				c.finish(h, err)
				return
			}
			c.finish(h, &ChannelError{Op: "receive", Err: err, Dead: true})
			return
		}

		msg, err := wire.Decode(body)
		if c.closed.Load() {
			return
		}
		if err != nil {
			c.report(h, err)
			if errors.Is(err, wire.ErrUnknownMessage) {
				continue
			}
			c.finish(h, err)
			return
		}

		if h.OnMessage != nil {
			h.OnMessage(msg)
		}
	}
}

func (c *Channel) report(h Handlers, err error) {
	c.logger.Warn().Err(err).Msg("undecodable frame")
	if h.OnError != nil {
		h.OnError(err)
	}
}

// finish closes the channel after the connection ended on its own and
// reports it, unless the owner already closed the channel.
func (c *Channel) finish(h Handlers, err error) {
	if c.closed.Load() {
		return
	}
	_ = c.Close()
	if h.OnClosed != nil {
		h.OnClosed(err)
	}
}

// Send encodes msg and writes it as one frame. It blocks until the frame
// is written or the send timeout expires.
func (c *Channel) Send(msg wire.Message) error {
	if c.closed.Load() {
		return &ChannelError{Op: "send", Err: ErrClosed, Dead: true}
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return &ChannelError{Op: "send", Err: ErrNotConnected}
	}

	body, err := wire.Encode(msg)
	if err != nil {
		return &ChannelError{Op: "send", Err: err}
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.sendTimeout))
	}
	if err := wire.WriteFrame(conn, body); err != nil {
		if c.closed.Load() {
			return &ChannelError{Op: "send", Err: ErrClosed, Dead: true}
		}
		return &ChannelError{Op: "send", Err: err, Dead: true}
	}

	c.logger.Debug().Str("kind", msg.Kind().String()).Msg("sent")
	return nil
}

// Close releases the listening and connected sockets. It is idempotent.
// Frames read after Close are dropped and OnClosed is not reported.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)

		if lerr := c.listener.Close(); lerr != nil && !errors.Is(lerr, net.ErrClosed) {
			err = lerr
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn != nil {
			if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
				err = cerr
			}
		}
	})
	return err
}
