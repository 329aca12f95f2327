package comm

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/comm/data"
	"github.com/Zereker/comm/serial"
)

// SessionState is the state of a Communicator.
type SessionState int32

const (
	// SessionDisconnected means no manager goroutine is running.
	SessionDisconnected SessionState = iota
	// SessionConnecting means a connection attempt is pending or scheduled.
	SessionConnecting
	// SessionConnected means a handshake completed and messages flow.
	SessionConnected
)

func (s SessionState) String() string {
	switch s {
	case SessionDisconnected:
		return "disconnected"
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	}
	return "unknown"
}

// Communicator keeps a session to one player alive. It opens streams
// through a Provider, retries failed attempts and reconnects lost
// connections until Disconnect is called or a fatal error occurs.
type Communicator struct {
	provider Provider
	listener Listener
	logger   Logger

	retryInterval time.Duration
	connOpts      []Option

	// clientInfo is sent on every attempt so the device id stays the same
	// across reconnects. ConnOptions may replace it.
	clientInfo *data.ClientInfo

	state atomic.Int32

	mu      sync.Mutex
	conn    *Conn
	address string
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewCommunicator creates a Communicator. It does nothing until Connect.
func NewCommunicator(provider Provider, listener Listener, opts ...CommunicatorOption) *Communicator {
	c := &Communicator{
		provider:   provider,
		listener:   listener,
		clientInfo: data.NewClientInfo(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.retryInterval <= 0 {
		c.retryInterval = defaultRetryInterval
	}
	if c.logger == nil {
		c.logger = defaultLogger()
	}
	c.state.Store(int32(SessionDisconnected))
	return c
}

// Connect starts the manager goroutine for address and returns at once.
// The first attempt happens immediately. Events are reported to the
// Listener.
func (c *Communicator) Connect(address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		select {
		case <-c.done:
		default:
			return ErrAlreadyRunning
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.address = address
	c.cancel = cancel
	c.done = done
	c.state.Store(int32(SessionConnecting))

	go func() {
		defer close(done)
		c.run(ctx, address)
	}()
	return nil
}

// run is the manager loop. A failed attempt is retried after the retry
// interval, a lost connection at once, and a shut down server after one
// retry interval.
func (c *Communicator) run(ctx context.Context, address string) {
	defer c.state.Store(int32(SessionDisconnected))

	var delay time.Duration
	for {
		if !sleep(ctx, delay) {
			return
		}
		c.state.Store(int32(SessionConnecting))

		conn, peer, err := c.open(ctx, address)
		if ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		if err != nil {
			if reason, fatal := fatalReason(err); fatal {
				c.logger.Error("giving up", "address", address, "error", err)
				c.listener.OnError(reason, err)
				return
			}
			c.logger.Warn("connect failed", "address", address, "retry", c.retryInterval, "error", err)
			c.listener.OnDisconnected(ReasonConnectFailed, err)
			delay = c.retryInterval
			continue
		}

		c.setConn(conn)
		c.state.Store(int32(SessionConnected))
		c.listener.OnConnected(peer)

		err = conn.Run(ctx, c.listener.OnMessage)
		c.setConn(nil)
		if ctx.Err() != nil {
			return
		}
		c.state.Store(int32(SessionConnecting))

		if errors.Is(err, ErrPeerBye) {
			c.listener.OnDisconnected(ReasonServerShutdown, err)
			delay = c.retryInterval
		} else {
			c.listener.OnDisconnected(ReasonConnectionLost, err)
			delay = 0
		}
	}
}

func (c *Communicator) open(ctx context.Context, address string) (*Conn, *Message, error) {
	stream, err := c.provider.Open(ctx, address)
	if err != nil {
		if !errors.Is(err, ErrFatalTransport) {
			err = transportErr("open "+address, err)
		}
		return nil, nil, err
	}

	opts := append([]Option{
		LoggerOption(c.logger),
		ClientInfoOption(c.clientInfo),
	}, c.connOpts...)
	conn, err := NewConn(stream, opts...)
	if err != nil {
		_ = stream.Close()
		return nil, nil, err
	}

	peer, err := conn.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	return conn, peer, nil
}

// fatalReason reports whether err must stop the manager loop.
func fatalReason(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrIncompatibleVersion):
		return ReasonIncompatibleVersion, true
	case errors.Is(err, ErrFatalTransport):
		return ReasonBadAddress, true
	}
	return "", false
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Communicator) setConn(conn *Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Communicator) currentConn() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Disconnect stops the manager goroutine and closes the current
// connection. No Listener callback fires after it returns. It must not be
// called from inside a Listener callback.
func (c *Communicator) Disconnect() {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-done
	c.logger.Info("disconnected", "address", c.Address())
}

// Send sends rec as message id. While not connected the message is
// dropped and Send returns nil.
func (c *Communicator) Send(id int32, rec serial.Serializable) error {
	conn := c.currentConn()
	if conn == nil || c.State() != SessionConnected {
		c.logger.Debug("not connected, dropping message", "id", data.IDName(id))
		return nil
	}

	err := conn.Send(id, rec)
	if errors.Is(err, ErrConnectionClosed) {
		c.logger.Debug("connection gone, dropping message", "id", data.IDName(id))
		return nil
	}
	return err
}

// Sleep asks the player to pause updates, for instance while the client's
// display is off.
func (c *Communicator) Sleep() error {
	return c.Send(data.IDConnSleep, nil)
}

// Wakeup resumes updates paused by Sleep.
func (c *Communicator) Wakeup() error {
	return c.Send(data.IDConnWakeup, nil)
}

// State returns the session state.
func (c *Communicator) State() SessionState {
	return SessionState(c.state.Load())
}

// Address returns the address passed to the last Connect.
func (c *Communicator) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}
