// Package ws carries sessions over WebSocket binary messages, for players
// reachable only through an HTTP endpoint.
package ws

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/Zereker/comm"
)

const (
	defaultHandshakeTimeout = 5 * time.Second
	closeWriteTimeout       = time.Second
)

// Stream exposes a WebSocket connection as a byte stream. Each Write is
// sent as one binary message; reads concatenate incoming binary messages
// and skip text messages.
type Stream struct {
	conn *websocket.Conn

	reader io.Reader // current message

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewStream wraps an established WebSocket connection.
func NewStream(conn *websocket.Conn) *Stream {
	return &Stream{conn: conn}
}

// Read reads from the current binary message, moving on to the next one
// when it is exhausted.
func (s *Stream) Read(p []byte) (int, error) {
	for {
		if s.reader == nil {
			typ, r, err := s.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			s.reader = r
		}

		n, err := s.reader.Read(p)
		if errors.Is(err, io.EOF) {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends p as one binary message.
func (s *Stream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close message and closes the connection.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// SetReadDeadline sets the deadline for the next message read.
func (s *Stream) SetReadDeadline(t time.Time) error { return s.conn.SetReadDeadline(t) }

// SetWriteDeadline sets the deadline for message writes.
func (s *Stream) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }

// RemoteAddr returns the peer's network address.
func (s *Stream) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// Provider dials ws:// and wss:// URLs.
type Provider struct {
	dialer websocket.Dialer
	header http.Header
	logger comm.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// HeaderOption adds request headers to the opening handshake.
func HeaderOption(header http.Header) Option {
	return func(p *Provider) {
		p.header = header
	}
}

// HandshakeTimeoutOption bounds the HTTP upgrade.
func HandshakeTimeoutOption(timeout time.Duration) Option {
	return func(p *Provider) {
		p.dialer.HandshakeTimeout = timeout
	}
}

// LoggerOption sets the logger.
func LoggerOption(logger comm.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// New creates a WebSocket provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Open implements comm.Provider.
func (p *Provider) Open(ctx context.Context, address string) (io.ReadWriteCloser, error) {
	u, err := url.Parse(address)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, errors.Wrapf(comm.ErrFatalTransport, "bad websocket url %q", address)
	}

	conn, resp, err := p.dialer.DialContext(ctx, u.String(), p.header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial %s: %s", u.Redacted(), resp.Status)
		}
		return nil, errors.Wrapf(err, "dial %s", u.Redacted())
	}

	p.logger.Debug("websocket connected", "url", u.Redacted())
	return NewStream(conn), nil
}

// Upgrader accepts WebSocket clients on the player side.
type Upgrader struct {
	upgrader websocket.Upgrader
}

// NewUpgrader creates an Upgrader that accepts any origin.
func NewUpgrader() *Upgrader {
	return &Upgrader{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Upgrade upgrades an HTTP request to a Stream.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Stream, error) {
	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errors.Wrap(err, "upgrade")
	}
	return NewStream(conn), nil
}
