// Package comm is the session layer of a media player remote control.
// It frames typed records over any duplex byte stream, performs the
// versioned handshake with the player host, and keeps the session alive
// across transient transport failures.
package comm

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/comm/data"
	"github.com/Zereker/comm/serial"
)

// State is the lifecycle state of a Conn.
type State int32

const (
	// StateConnecting is the initial state, until the handshake completes.
	StateConnecting State = iota
	// StateUp means the handshake completed and messages flow.
	StateUp
	// StateDown is terminal. A new Conn is needed to reconnect.
	StateDown
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateUp:
		return "up"
	case StateDown:
		return "down"
	}
	return "unknown"
}

var errAlreadyStarted = errors.New("handshake already started")

// byeWriteTimeout bounds the write of a goodbye message on streams that
// support deadlines.
const byeWriteTimeout = time.Second

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Conn is one session over a duplex byte stream. It is single-use: once
// Down it never comes back up.
//
// Send is safe for concurrent use. Run must be called by one goroutine
// only, after a successful Open or Accept.
type Conn struct {
	stream io.ReadWriteCloser
	reader *bufio.Reader
	frames *FrameReader
	logger Logger

	opts options

	state   atomic.Int32
	started atomic.Bool
	closed  atomic.Bool

	mu    sync.Mutex
	cause error // first reason the connection went down

	closeOnce sync.Once
	closeErr  error

	writeMu sync.Mutex
	encoder serial.Encoder
}

// NewConn creates a connection over stream. The connection is in
// StateConnecting until Open (client side) or Accept (player side) completes
// the handshake.
func NewConn(stream io.ReadWriteCloser, opt ...Option) (*Conn, error) {
	if stream == nil {
		return nil, ErrInvalidStream
	}

	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	reader := bufio.NewReader(stream)
	c := &Conn{
		stream: stream,
		reader: reader,
		frames: NewFrameReader(reader, opts.maxPayloadLength),
		logger: opts.logger,
		opts:   opts,
	}
	c.state.Store(int32(StateConnecting))
	return c, nil
}

// Open performs the client side of the handshake: it waits for the server
// hello, checks the protocol version, sends the client info and reads the
// player's description, which it returns.
//
// Canceling ctx aborts the handshake by closing the stream.
func (c *Conn) Open(ctx context.Context) (*Message, error) {
	if !c.started.CompareAndSwap(false, true) {
		return nil, errAlreadyStarted
	}
	stop := context.AfterFunc(ctx, func() { _ = c.closeStream() })
	defer stop()

	version, err := c.readHello()
	if err != nil {
		return nil, c.fail(err)
	}
	if version != c.opts.version {
		return nil, c.fail(errors.Wrapf(ErrIncompatibleVersion, "server speaks %d, client %d", version, c.opts.version))
	}

	if err := c.send(data.IDConnClientInfo, c.opts.clientInfo); err != nil {
		return nil, c.fail(err)
	}

	peer, err := c.expect(data.IDConnPlayerInfo)
	if err != nil {
		return nil, c.fail(err)
	}

	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateUp)) {
		return nil, c.Cause()
	}
	c.logger.Info("connection established", "addr", c.RemoteAddr(), "version", version)
	return peer, nil
}

// Accept performs the player side of the handshake: it sends the hello,
// reads the client info, which it returns, and answers with info.
func (c *Conn) Accept(ctx context.Context, info serial.Serializable) (*Message, error) {
	if !c.started.CompareAndSwap(false, true) {
		return nil, errAlreadyStarted
	}
	stop := context.AfterFunc(ctx, func() { _ = c.closeStream() })
	defer stop()

	c.writeMu.Lock()
	err := EncodeHello(c.stream, c.opts.version)
	c.writeMu.Unlock()
	if err != nil {
		return nil, c.fail(err)
	}

	var client *Message
	err = c.withHandshakeTimeout(func() error {
		var err error
		client, err = c.expect(data.IDConnClientInfo)
		return err
	})
	if err != nil {
		return nil, c.fail(err)
	}

	if err := c.send(data.IDConnPlayerInfo, info); err != nil {
		return nil, c.fail(err)
	}

	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateUp)) {
		return nil, c.Cause()
	}
	c.logger.Info("client accepted", "addr", c.RemoteAddr())
	return client, nil
}

// readHello waits up to the handshake timeout for the server hello.
func (c *Conn) readHello() (byte, error) {
	var version byte
	err := c.withHandshakeTimeout(func() error {
		var err error
		version, err = DecodeHello(c.reader)
		return err
	})
	if err != nil && !errors.Is(err, ErrHandshakeFailed) {
		err = errors.Wrapf(ErrHandshakeFailed, "no hello within %v: %v", c.opts.handshakeTimeout, err)
	}
	return version, err
}

// withHandshakeTimeout runs fn with a read deadline when the stream supports
// one, and otherwise with a timer that closes the stream.
func (c *Conn) withHandshakeTimeout(fn func() error) error {
	timeout := c.opts.handshakeTimeout
	if d, ok := c.stream.(readDeadliner); ok {
		_ = d.SetReadDeadline(time.Now().Add(timeout))
		defer func() { _ = d.SetReadDeadline(time.Time{}) }()
		return fn()
	}

	timer := time.AfterFunc(timeout, func() { _ = c.closeStream() })
	defer timer.Stop()
	return fn()
}

// expect reads one frame and requires it to carry id.
func (c *Conn) expect(id int32) (*Message, error) {
	msg, err := c.frames.Decode()
	if err != nil {
		return nil, err
	}
	if msg.ID == data.IDConnBye {
		return nil, errors.Wrap(ErrHandshakeFailed, "peer said bye")
	}
	if msg.ID != id {
		return nil, errors.Wrapf(ErrMalformedData, "expected %s, got %s", data.IDName(id), data.IDName(msg.ID))
	}
	if _, err := c.decode(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Send encodes rec as the payload of message id and writes it. rec may be
// nil for signal-only messages. A record that does not match the outbound
// schema of id is rejected without affecting the connection; a write
// failure takes the connection down.
func (c *Conn) Send(id int32, rec serial.Serializable) error {
	if c.State() != StateUp {
		return ErrConnectionClosed
	}
	return c.send(id, rec)
}

func (c *Conn) send(id int32, rec serial.Serializable) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	payload, err := c.encode(id, rec)
	if err != nil {
		return err
	}

	if c.opts.heartbeat > 0 {
		if d, ok := c.stream.(writeDeadliner); ok {
			_ = d.SetWriteDeadline(time.Now().Add(c.opts.heartbeat * 2))
		}
	}
	if err := EncodeFrame(c.stream, id, payload); err != nil {
		c.logger.Debug("write error", "addr", c.RemoteAddr(), "error", err)
		return c.fail(err)
	}
	return nil
}

func (c *Conn) encode(id int32, rec serial.Serializable) ([]byte, error) {
	schema, known := c.opts.registry.Outbound(id)
	if rec == nil {
		if known && len(schema) > 0 {
			return nil, errors.Wrapf(serial.ErrInvalidValue, "%s needs a payload", data.IDName(id))
		}
		return nil, nil
	}

	atoms := rec.Atoms()
	if known {
		if err := schema.Check(atoms); err != nil {
			return nil, errors.Wrapf(err, "encode %s", data.IDName(id))
		}
	}
	return c.encoder.Encode(atoms)
}

// decode fills msg.Atoms from its payload. It reports false for messages
// with a payload but no known schema, which are skipped.
func (c *Conn) decode(msg *Message) (bool, error) {
	schema, known := c.opts.registry.Inbound(msg.ID)
	if !known {
		return len(msg.Payload) == 0, nil
	}
	atoms, err := serial.Decode(msg.Payload, schema)
	if err != nil {
		return false, errors.Wrapf(err, "decode %s", data.IDName(msg.ID))
	}
	msg.Atoms = atoms
	return true, nil
}

// Run reads messages until the connection goes down and hands each to
// onMessage, in wire order, on the calling goroutine. Canceling ctx closes
// the connection.
//
// Run returns the first reason the connection went down: ErrConnectionClosed
// after Close, ErrPeerBye after a goodbye, or the transport or decode error.
func (c *Conn) Run(ctx context.Context, onMessage func(*Message)) error {
	if c.State() != StateUp {
		return c.Cause()
	}

	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(onMessage)
	})

	group.Go(func() error {
		<-child.Done()
		if ctx.Err() != nil {
			_ = c.Close()
		}
		return nil
	})

	_ = group.Wait()

	err := c.Cause()
	if errors.Is(err, ErrConnectionClosed) {
		c.logger.Info("connection closed", "addr", c.RemoteAddr())
	} else {
		c.logger.Info("connection closed with error", "addr", c.RemoteAddr(), "error", err)
	}
	return err
}

// readLoop decodes frames until one fails. Only framing, transport and
// schema errors end it; ignore messages and ids without a schema are
// skipped.
func (c *Conn) readLoop(onMessage func(*Message)) error {
	for {
		if c.opts.heartbeat > 0 {
			if d, ok := c.stream.(readDeadliner); ok {
				_ = d.SetReadDeadline(time.Now().Add(c.opts.heartbeat * 2))
			}
		}

		msg, err := c.frames.Decode()
		if err != nil {
			c.logger.Debug("read error", "addr", c.RemoteAddr(), "error", err)
			return c.fail(err)
		}

		switch msg.ID {
		case data.IDIgnore:
			continue
		case data.IDConnBye:
			c.logger.Info("peer said bye", "addr", c.RemoteAddr())
			return c.fail(ErrPeerBye)
		}

		ok, err := c.decode(msg)
		if err != nil {
			c.logger.Warn("malformed message", "addr", c.RemoteAddr(), "id", data.IDName(msg.ID), "error", err)
			return c.fail(err)
		}
		if !ok {
			c.logger.Debug("skipping message without schema", "id", msg.ID, "length", msg.Length())
			continue
		}

		if c.State() != StateUp {
			return c.Cause()
		}
		onMessage(msg)
	}
}

// fail takes the connection down with err unless it is already down, and
// notifies the owner once. It returns the first failure.
func (c *Conn) fail(err error) error {
	c.mu.Lock()
	if c.cause != nil {
		cause := c.cause
		c.mu.Unlock()
		return cause
	}
	c.cause = err
	wasUp := State(c.state.Swap(int32(StateDown))) == StateUp
	c.mu.Unlock()

	_ = c.closeStream()

	if wasUp && !c.closed.Load() && c.opts.onDisconnect != nil {
		c.opts.onDisconnect(err)
	}
	return err
}

// Close tears the connection down and unblocks any pending read. No
// disconnect notification follows. Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}

	c.mu.Lock()
	if c.cause == nil {
		c.cause = ErrConnectionClosed
	}
	c.state.Store(int32(StateDown))
	c.mu.Unlock()

	return c.closeStream()
}

// Bye tells the peer this side is going away and closes the connection.
func (c *Conn) Bye() error {
	var err error
	if c.State() == StateUp {
		c.writeMu.Lock()
		if d, ok := c.stream.(writeDeadliner); ok {
			_ = d.SetWriteDeadline(time.Now().Add(byeWriteTimeout))
		}
		err = EncodeFrame(c.stream, data.IDConnBye, nil)
		c.writeMu.Unlock()
	}
	if closeErr := c.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (c *Conn) closeStream() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.stream.Close()
	})
	return c.closeErr
}

// State returns the current connection state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// IsClosed returns true if the connection is down.
func (c *Conn) IsClosed() bool {
	return c.State() == StateDown
}

// Cause returns why the connection went down, or nil while it is not down.
func (c *Conn) Cause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// RemoteAddr returns the peer address when the stream knows it.
func (c *Conn) RemoteAddr() string {
	if a, ok := c.stream.(interface{ RemoteAddr() net.Addr }); ok && a.RemoteAddr() != nil {
		return a.RemoteAddr().String()
	}
	return ""
}
