package comm

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/comm/data"
	"github.com/Zereker/comm/serial"
)

// Handler handles a client after the player side of the handshake
// completed. The Host does not touch conn afterwards; the handler owns it
// and should call conn.Run.
type Handler interface {
	Handle(conn *Conn, client *Message)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(conn *Conn, client *Message)

// Handle calls f(conn, client).
func (f HandlerFunc) Handle(conn *Conn, client *Message) { f(conn, client) }

// Host is the player end of the protocol. It accepts TCP clients, greets
// them and answers their client info with a PlayerInfo.
type Host struct {
	listener        *net.TCPListener
	logger          Logger
	shutdownTimeout time.Duration
	playerInfo      serial.Serializable
	connOpts        []Option

	mu          sync.Mutex
	shutdown    bool
	shutdownNow chan struct{} // signals immediate shutdown, bypassing timeout
}

// HostOption configures a Host.
type HostOption func(*Host)

// HostLoggerOption sets the logger for the host.
func HostLoggerOption(logger Logger) HostOption {
	return func(h *Host) {
		h.logger = logger
	}
}

// HostShutdownTimeoutOption sets how long Serve keeps accepting after its
// context is canceled. Default is 0 (immediate shutdown).
func HostShutdownTimeoutOption(timeout time.Duration) HostOption {
	return func(h *Host) {
		h.shutdownTimeout = timeout
	}
}

// PlayerInfoOption sets the description sent to every client.
func PlayerInfoOption(info *data.PlayerInfo) HostOption {
	return func(h *Host) {
		h.playerInfo = info
	}
}

// HostConnOptions sets the options of every accepted connection. The
// registry defaults to the reverse of data.DefaultRegistry.
func HostConnOptions(opts ...Option) HostOption {
	return func(h *Host) {
		h.connOpts = append(h.connOpts, opts...)
	}
}

// NewHost creates a Host bound to addr, such as "127.0.0.1:0".
func NewHost(addr string, opts ...HostOption) (*Host, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(ErrFatalTransport, "resolve %q: %v", addr, err)
	}
	listener, err := net.ListenTCP(tcpAddr.Network(), tcpAddr)
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}

	h := &Host{
		listener:    listener,
		shutdownNow: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.logger == nil {
		h.logger = defaultLogger()
	}
	if h.playerInfo == nil {
		h.playerInfo = &data.PlayerInfo{Name: "player"}
	}
	return h, nil
}

// Serve accepts clients until ctx is canceled or Close is called. Each
// client is greeted on its own goroutine and handed to handler once the
// handshake completed; failed handshakes are logged and dropped.
func (h *Host) Serve(ctx context.Context, handler Handler) error {
	h.logger.Info("host started", "addr", h.listener.Addr())

	// Stop accepting once ctx is canceled.
	go func() {
		<-ctx.Done()

		// Give running handlers the shutdown timeout, unless Close cuts it short
		if h.shutdownTimeout > 0 {
			h.logger.Info("graceful shutdown initiated", "timeout", h.shutdownTimeout)
			select {
			case <-time.After(h.shutdownTimeout):
				// grace period over
			case <-h.shutdownNow:
				h.logger.Debug("shutdown timeout bypassed via Close()")
			}
		}

		h.mu.Lock()
		h.shutdown = true
		h.mu.Unlock()
		// unblock Accept
		_ = h.listener.SetDeadline(time.Now())
	}()

	for {
		tcpConn, err := h.listener.AcceptTCP()
		if err != nil {
			h.mu.Lock()
			isShutdown := h.shutdown
			h.mu.Unlock()

			if isShutdown {
				h.logger.Info("host stopped", "addr", h.listener.Addr())
				return ctx.Err()
			}

			// a timeout alone is not fatal
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			h.logger.Error("accept error", "error", err)
			return err
		}

		h.logger.Debug("accepted connection", "remote_addr", tcpConn.RemoteAddr())
		_ = tcpConn.SetNoDelay(true)
		// The handshake must not hold up the accept loop
		go h.greet(ctx, tcpConn, handler)
	}
}

// greet runs the handshake on an accepted TCP connection and hands the
// result to handler. A client that fails the handshake is dropped; the
// stream is already closed by then.
func (h *Host) greet(ctx context.Context, tcpConn *net.TCPConn, handler Handler) {
	conn, client, err := h.AcceptConn(ctx, tcpConn)
	if err != nil {
		h.logger.Warn("handshake failed", "remote_addr", tcpConn.RemoteAddr(), "error", err)
		return
	}
	handler.Handle(conn, client)
}

// AcceptConn runs the player side of the handshake over stream, which may
// come from any transport. It returns the connection and the client info.
func (h *Host) AcceptConn(ctx context.Context, stream io.ReadWriteCloser) (*Conn, *Message, error) {
	opts := append([]Option{
		LoggerOption(h.logger),
		RegistryOption(data.DefaultRegistry().Reverse()),
	}, h.connOpts...)

	conn, err := NewConn(stream, opts...)
	if err != nil {
		return nil, nil, err
	}
	client, err := conn.Accept(ctx, h.playerInfo)
	if err != nil {
		return nil, nil, err
	}
	return conn, client, nil
}

// Close stops the host by closing the listener, bypassing any pending
// shutdown timeout. Accepted connections stay open.
func (h *Host) Close() error {
	h.mu.Lock()
	h.shutdown = true
	h.mu.Unlock()

	select {
	case h.shutdownNow <- struct{}{}:
	default:
	}

	return h.listener.Close()
}

// Addr returns the listener's network address.
func (h *Host) Addr() net.Addr {
	return h.listener.Addr()
}
