package comm

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Zereker/comm/data"
)

type event struct {
	kind   string
	reason string
	err    error
	msg    *Message
}

// chanListener forwards every callback to a channel.
type chanListener struct {
	events chan event
}

func newChanListener() *chanListener {
	return &chanListener{events: make(chan event, 32)}
}

func (l *chanListener) OnConnected(peer *Message) {
	l.events <- event{kind: "connected", msg: peer}
}

func (l *chanListener) OnDisconnected(reason string, err error) {
	l.events <- event{kind: "disconnected", reason: reason, err: err}
}

func (l *chanListener) OnError(reason string, err error) {
	l.events <- event{kind: "error", reason: reason, err: err}
}

func (l *chanListener) OnMessage(msg *Message) {
	l.events <- event{kind: "message", msg: msg}
}

func (l *chanListener) next(t *testing.T, kind string) event {
	t.Helper()
	select {
	case ev := <-l.events:
		if ev.kind != kind {
			t.Fatalf("got %s event (%s: %v), want %s", ev.kind, ev.reason, ev.err, kind)
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatalf("timeout waiting for %s event", kind)
		return event{}
	}
}

func (l *chanListener) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case ev := <-l.events:
		t.Fatalf("unexpected %s event (%s: %v)", ev.kind, ev.reason, ev.err)
	case <-time.After(d):
	}
}

// startHost serves handler on a loopback Host until the test ends.
func startHost(t *testing.T, handler Handler, opts ...HostOption) *Host {
	t.Helper()

	host, err := NewHost("127.0.0.1:0", append([]HostOption{HostLoggerOption(nopLogger{})}, opts...)...)
	if err != nil {
		t.Fatalf("NewHost failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = host.Serve(ctx, handler) }()
	t.Cleanup(func() {
		cancel()
		_ = host.Close()
	})
	return host
}

func dialProvider() Provider {
	return ProviderFunc(func(ctx context.Context, address string) (io.ReadWriteCloser, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", address)
	})
}

// runHandler keeps accepted connections running.
var runHandler = HandlerFunc(func(conn *Conn, _ *Message) {
	_ = conn.Run(context.Background(), func(*Message) {})
})

func newTestCommunicator(provider Provider, listener Listener, retry time.Duration) *Communicator {
	return NewCommunicator(provider, listener,
		RetryIntervalOption(retry),
		CommunicatorLoggerOption(nopLogger{}),
	)
}

func waitState(t *testing.T, c *Communicator, want SessionState) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for c.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want %v", c.State(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCommunicator_RetriesUntilConnected(t *testing.T) {
	host := startHost(t, runHandler)
	dial := dialProvider()

	var attempts atomic.Int32
	var stamps [4]time.Time
	provider := ProviderFunc(func(ctx context.Context, address string) (io.ReadWriteCloser, error) {
		n := attempts.Add(1)
		stamps[n-1] = time.Now()
		if n <= 3 {
			return nil, errors.New("connection refused")
		}
		return dial.Open(ctx, address)
	})

	listener := newChanListener()
	c := newTestCommunicator(provider, listener, 50*time.Millisecond)
	defer c.Disconnect()

	if err := c.Connect(host.Addr().String()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		ev := listener.next(t, "disconnected")
		if ev.reason != ReasonConnectFailed {
			t.Errorf("reason = %q, want %q", ev.reason, ReasonConnectFailed)
		}
		if !errors.Is(ev.err, ErrTransportFailure) {
			t.Errorf("err = %v, want ErrTransportFailure", ev.err)
		}
	}
	ev := listener.next(t, "connected")

	var info data.PlayerInfo
	if err := ev.msg.Decode(&info); err != nil {
		t.Fatalf("decode peer: %v", err)
	}
	if c.State() != SessionConnected {
		t.Errorf("state = %v, want connected", c.State())
	}

	for i := 1; i < 4; i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < 45*time.Millisecond {
			t.Errorf("attempt %d came %v after the previous one", i+1, gap)
		}
	}
}

func TestCommunicator_IncompatibleVersionStops(t *testing.T) {
	host := startHost(t, runHandler, HostConnOptions(ProtocolVersionOption(ProtocolVersion+1)))

	var attempts atomic.Int32
	dial := dialProvider()
	provider := ProviderFunc(func(ctx context.Context, address string) (io.ReadWriteCloser, error) {
		attempts.Add(1)
		return dial.Open(ctx, address)
	})

	listener := newChanListener()
	c := newTestCommunicator(provider, listener, 20*time.Millisecond)
	defer c.Disconnect()

	_ = c.Connect(host.Addr().String())

	ev := listener.next(t, "error")
	if ev.reason != ReasonIncompatibleVersion || !errors.Is(ev.err, ErrIncompatibleVersion) {
		t.Errorf("got %q / %v", ev.reason, ev.err)
	}
	waitState(t, c, SessionDisconnected)
	listener.quiet(t, 100*time.Millisecond)
	if n := attempts.Load(); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestCommunicator_FatalTransportStops(t *testing.T) {
	provider := ProviderFunc(func(context.Context, string) (io.ReadWriteCloser, error) {
		return nil, errors.Join(ErrFatalTransport, errors.New("bad address"))
	})

	listener := newChanListener()
	c := newTestCommunicator(provider, listener, 20*time.Millisecond)
	defer c.Disconnect()

	_ = c.Connect("nowhere")

	ev := listener.next(t, "error")
	if ev.reason != ReasonBadAddress {
		t.Errorf("reason = %q, want %q", ev.reason, ReasonBadAddress)
	}
	waitState(t, c, SessionDisconnected)

	// a stopped communicator can be started again
	if err := c.Connect("nowhere"); err != nil {
		t.Errorf("Connect after stop failed: %v", err)
	}
	listener.next(t, "error")
}

func TestCommunicator_ReconnectsAfterDrop(t *testing.T) {
	var accepted atomic.Int32
	host := startHost(t, HandlerFunc(func(conn *Conn, client *Message) {
		if accepted.Add(1) == 1 {
			_ = conn.Close()
			return
		}
		runHandler(conn, client)
	}))

	listener := newChanListener()
	// a long interval shows a lost connection is retried at once
	c := newTestCommunicator(dialProvider(), listener, time.Minute)
	defer c.Disconnect()

	_ = c.Connect(host.Addr().String())

	listener.next(t, "connected")
	ev := listener.next(t, "disconnected")
	if ev.reason != ReasonConnectionLost {
		t.Errorf("reason = %q, want %q", ev.reason, ReasonConnectionLost)
	}
	listener.next(t, "connected")
}

func TestCommunicator_ClientIDSurvivesReconnect(t *testing.T) {
	ids := make(chan string, 2)
	var accepted atomic.Int32
	host := startHost(t, HandlerFunc(func(conn *Conn, client *Message) {
		var info data.ClientInfo
		if err := client.Decode(&info); err == nil {
			ids <- info.Extra[data.ExtraClientID]
		}
		if accepted.Add(1) == 1 {
			_ = conn.Close()
			return
		}
		runHandler(conn, client)
	}))

	listener := newChanListener()
	c := newTestCommunicator(dialProvider(), listener, time.Minute)
	defer c.Disconnect()

	_ = c.Connect(host.Addr().String())

	listener.next(t, "connected")
	listener.next(t, "disconnected")
	listener.next(t, "connected")

	first, second := <-ids, <-ids
	if first == "" {
		t.Fatal("client info carried no device id")
	}
	if first != second {
		t.Errorf("device id changed across reconnect: %q then %q", first, second)
	}
}

func TestCommunicator_ServerBye(t *testing.T) {
	var accepted atomic.Int32
	host := startHost(t, HandlerFunc(func(conn *Conn, client *Message) {
		if accepted.Add(1) == 1 {
			_ = conn.Bye()
			return
		}
		runHandler(conn, client)
	}))

	listener := newChanListener()
	c := newTestCommunicator(dialProvider(), listener, 50*time.Millisecond)
	defer c.Disconnect()

	_ = c.Connect(host.Addr().String())

	listener.next(t, "connected")
	ev := listener.next(t, "disconnected")
	if ev.reason != ReasonServerShutdown || !errors.Is(ev.err, ErrPeerBye) {
		t.Errorf("got %q / %v", ev.reason, ev.err)
	}
	listener.next(t, "connected")
}

func TestCommunicator_Messages(t *testing.T) {
	received := make(chan *Message, 4)
	host := startHost(t, HandlerFunc(func(conn *Conn, _ *Message) {
		_ = conn.Send(data.IDSyncState, &data.PlayerState{Playback: data.PlaybackPlay, Volume: 70})
		_ = conn.Run(context.Background(), func(msg *Message) { received <- msg })
	}))

	listener := newChanListener()
	c := newTestCommunicator(dialProvider(), listener, time.Minute)
	defer c.Disconnect()

	if err := c.Send(data.IDCtrlNext, &data.Control{}); err != nil {
		t.Errorf("Send while disconnected = %v, want nil", err)
	}

	_ = c.Connect(host.Addr().String())
	listener.next(t, "connected")

	ev := listener.next(t, "message")
	var state data.PlayerState
	if err := ev.msg.Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Playback != data.PlaybackPlay || state.Volume != 70 {
		t.Errorf("state = %+v", state)
	}

	if err := c.Send(data.IDCtrlVolume, &data.Control{Param: -5}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := c.Sleep(); err != nil {
		t.Fatalf("Sleep failed: %v", err)
	}
	if err := c.Wakeup(); err != nil {
		t.Fatalf("Wakeup failed: %v", err)
	}

	for _, want := range []int32{data.IDCtrlVolume, data.IDConnSleep, data.IDConnWakeup} {
		select {
		case msg := <-received:
			if msg.ID != want {
				t.Errorf("host got %v, want %s", msg, data.IDName(want))
			}
		case <-time.After(3 * time.Second):
			t.Fatal("timeout waiting for host message")
		}
	}
}

func TestCommunicator_DisconnectIsQuiet(t *testing.T) {
	host := startHost(t, runHandler)

	listener := newChanListener()
	c := newTestCommunicator(dialProvider(), listener, 20*time.Millisecond)

	address := host.Addr().String()
	_ = c.Connect(address)
	listener.next(t, "connected")

	if err := c.Connect(address); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Connect = %v, want ErrAlreadyRunning", err)
	}
	if c.Address() != address {
		t.Errorf("Address = %q, want %q", c.Address(), address)
	}

	c.Disconnect()
	if c.State() != SessionDisconnected {
		t.Errorf("state = %v, want disconnected", c.State())
	}
	listener.quiet(t, 100*time.Millisecond)

	// Disconnect twice is harmless
	c.Disconnect()

	// a finished Disconnect leaves the state of a new session alone
	if err := c.Connect(address); err != nil {
		t.Fatalf("Connect after Disconnect = %v", err)
	}
	if c.State() == SessionDisconnected {
		t.Error("state = disconnected right after Connect")
	}
	listener.next(t, "connected")
	c.Disconnect()
}

func TestCommunicator_DisconnectInterruptsRetrySleep(t *testing.T) {
	provider := ProviderFunc(func(context.Context, string) (io.ReadWriteCloser, error) {
		return nil, errors.New("unreachable")
	})

	listener := newChanListener()
	c := newTestCommunicator(provider, listener, time.Minute)

	_ = c.Connect("somewhere")
	listener.next(t, "disconnected")

	start := time.Now()
	c.Disconnect()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Disconnect took %v", elapsed)
	}
	listener.quiet(t, 50*time.Millisecond)
}

func TestCommunicator_DisconnectBeforeConnect(t *testing.T) {
	c := newTestCommunicator(dialProvider(), newChanListener(), time.Second)
	c.Disconnect()
	if c.State() != SessionDisconnected {
		t.Errorf("state = %v, want disconnected", c.State())
	}
}
