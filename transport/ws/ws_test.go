package ws

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/comm"
	"github.com/Zereker/comm/data"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func serve(t *testing.T, handle func(*Stream)) string {
	t.Helper()
	upgrader := NewUpgrader()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stream, err := upgrader.Upgrade(w, r)
		if err != nil {
			return
		}
		handle(stream)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStream_ReadsAcrossMessages(t *testing.T) {
	url := serve(t, func(s *Stream) {
		_ = s.conn.WriteMessage(websocket.BinaryMessage, []byte("hel"))
		_ = s.conn.WriteMessage(websocket.TextMessage, []byte("skipped"))
		_ = s.conn.WriteMessage(websocket.BinaryMessage, []byte("lo"))
		_ = s.Close()
	})

	stream, err := New(LoggerOption(nopLogger{})).Open(context.Background(), url)
	require.NoError(t, err)
	defer stream.Close()

	got, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestStream_WriteIsOneMessage(t *testing.T) {
	got := make(chan []byte, 1)
	url := serve(t, func(s *Stream) {
		_, msg, err := s.conn.ReadMessage()
		if err == nil {
			got <- msg
		}
		_ = s.Close()
	})

	stream, err := New(LoggerOption(nopLogger{})).Open(context.Background(), url)
	require.NoError(t, err)
	defer stream.Close()

	n, err := stream.Write([]byte("frame"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	select {
	case msg := <-got:
		assert.Equal(t, "frame", string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
	}
}

func TestOpen_BadURLIsFatal(t *testing.T) {
	p := New(LoggerOption(nopLogger{}))
	for _, addr := range []string{"", "http://example.com", "ws://", "::"} {
		_, err := p.Open(context.Background(), addr)
		assert.ErrorIs(t, err, comm.ErrFatalTransport, "address %q", addr)
	}
}

func TestOpen_RejectedUpgradeIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(LoggerOption(nopLogger{})).Open(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, comm.ErrFatalTransport)
}

func TestSessionOverWebSocket(t *testing.T) {
	host, err := comm.NewHost("127.0.0.1:0",
		comm.HostLoggerOption(nopLogger{}),
		comm.PlayerInfoOption(&data.PlayerInfo{Name: "web player"}),
	)
	require.NoError(t, err)
	defer host.Close()

	url := serve(t, func(s *Stream) {
		conn, _, err := host.AcceptConn(context.Background(), s)
		if err != nil {
			return
		}
		_ = conn.Send(data.IDSyncProgress, &data.Progress{Progress: 7, Length: 9})
		_ = conn.Run(context.Background(), func(*comm.Message) {})
	})

	client, err := New(LoggerOption(nopLogger{})).Open(context.Background(), url)
	require.NoError(t, err)

	conn, err := comm.NewConn(client, comm.LoggerOption(nopLogger{}))
	require.NoError(t, err)
	defer conn.Close()

	peer, err := conn.Open(context.Background())
	require.NoError(t, err)
	var info data.PlayerInfo
	require.NoError(t, peer.Decode(&info))
	assert.Equal(t, "web player", info.Name)

	got := make(chan data.Progress, 1)
	go func() {
		_ = conn.Run(context.Background(), func(msg *comm.Message) {
			var p data.Progress
			if msg.Decode(&p) == nil {
				got <- p
			}
		})
	}()

	select {
	case p := <-got:
		assert.Equal(t, data.Progress{Progress: 7, Length: 9}, p)
	case <-time.After(2 * time.Second):
		t.Fatal("no progress message")
	}
}
