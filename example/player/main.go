// player is a fake media player speaking the remote control protocol. It
// accepts clients over TCP and WebSocket, announces itself over mDNS, and
// reacts to controls by changing its simulated state.
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/Zereker/comm"
	"github.com/Zereker/comm/data"
	"github.com/Zereker/comm/transport/ws"
)

const (
	tcpAddr     = "0.0.0.0:34271"
	wsAddr      = "0.0.0.0:34272"
	serviceType = "_remuco._tcp"
)

type client struct {
	conn     *comm.Conn
	sleeping atomic.Bool
}

type Player struct {
	connID atomic.Int64

	mu      sync.RWMutex
	clients map[int64]*client
	state   data.PlayerState
	track   int
	elapsed int32
}

func newPlayer() *Player {
	return &Player{
		clients: make(map[int64]*client),
		state:   data.PlayerState{Playback: data.PlaybackPlay, Volume: 50},
	}
}

var tracks = []struct{ id, artist, title string }{
	{"t1", "Miles Davis", "So What"},
	{"t2", "John Coltrane", "Blue Train"},
	{"t3", "Bill Evans", "Peace Piece"},
}

const trackLength = 180

// Handle implements comm.Handler.
func (p *Player) Handle(conn *comm.Conn, _ *comm.Message) {
	connID := p.connID.Add(1)
	c := &client{conn: conn}
	p.addClient(connID, c)
	defer p.deleteClient(connID)

	p.sendAll(c)

	err := conn.Run(context.Background(), func(msg *comm.Message) {
		p.onMessage(c, msg)
	})
	slog.Info("client gone", "connID", connID, "reason", err)
}

func (p *Player) onMessage(c *client, msg *comm.Message) {
	switch msg.ID {
	case data.IDConnSleep:
		c.sleeping.Store(true)
		return
	case data.IDConnWakeup:
		c.sleeping.Store(false)
		p.sendAll(c)
		return
	case data.IDReqPlaylist, data.IDReqQueue:
		p.sendList(c, msg.ID)
		return
	}

	var ctrl data.Control
	if err := msg.Decode(&ctrl); err != nil {
		slog.Debug("ignoring message", "id", msg, "error", err)
		return
	}

	p.mu.Lock()
	switch msg.ID {
	case data.IDCtrlPlayPause:
		if p.state.Playback == data.PlaybackPlay {
			p.state.Playback = data.PlaybackPause
		} else {
			p.state.Playback = data.PlaybackPlay
		}
	case data.IDCtrlNext:
		p.track = (p.track + 1) % len(tracks)
		p.elapsed = 0
	case data.IDCtrlPrev:
		p.track = (p.track + len(tracks) - 1) % len(tracks)
		p.elapsed = 0
	case data.IDCtrlVolume:
		p.state.Volume = min(max(p.state.Volume+ctrl.Param, 0), 100)
	case data.IDCtrlSeek:
		p.elapsed = min(max(p.elapsed+ctrl.Param*5, 0), trackLength)
	case data.IDCtrlRepeat:
		p.state.Repeat = !p.state.Repeat
	case data.IDCtrlShuffle:
		p.state.Shuffle = !p.state.Shuffle
	}
	p.mu.Unlock()

	p.broadcast(func(c *client) { p.sendAll(c) })
}

// sendAll sends the full player state to c.
func (p *Player) sendAll(c *client) {
	p.mu.RLock()
	state := p.state
	state.Position = int32(p.track)
	t := tracks[p.track]
	progress := data.Progress{Progress: p.elapsed, Length: trackLength}
	p.mu.RUnlock()

	id := t.id
	item := data.Item{
		ID:   &id,
		Meta: map[string]string{data.MetaArtist: t.artist, data.MetaTitle: t.title},
	}

	_ = c.conn.Send(data.IDSyncState, &state)
	_ = c.conn.Send(data.IDSyncItem, &item)
	_ = c.conn.Send(data.IDSyncProgress, &progress)
}

func (p *Player) sendList(c *client, id int32) {
	list := data.ItemList{}
	for _, t := range tracks {
		list.IDs = append(list.IDs, t.id)
		list.Names = append(list.Names, t.artist+" - "+t.title)
	}
	if err := c.conn.Send(id, &list); err != nil {
		slog.Warn("send list failed", "error", err)
	}
}

// tick advances the simulated playback once per second.
func (p *Player) tick(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		if p.state.Playback != data.PlaybackPlay {
			p.mu.Unlock()
			continue
		}
		p.elapsed++
		changed := p.elapsed >= trackLength
		if changed {
			p.track = (p.track + 1) % len(tracks)
			p.elapsed = 0
		}
		progress := data.Progress{Progress: p.elapsed, Length: trackLength}
		p.mu.Unlock()

		p.broadcast(func(c *client) {
			if changed {
				p.sendAll(c)
				return
			}
			_ = c.conn.Send(data.IDSyncProgress, &progress)
		})
	}
}

// broadcast calls fn for every awake client.
func (p *Player) broadcast(fn func(*client)) {
	p.mu.RLock()
	clients := make([]*client, 0, len(p.clients))
	for _, c := range p.clients {
		if !c.sleeping.Load() {
			clients = append(clients, c)
		}
	}
	p.mu.RUnlock()

	for _, c := range clients {
		fn(c)
	}
}

// byeAll tells every client the player is shutting down.
func (p *Player) byeAll() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.clients {
		_ = c.conn.Bye()
	}
}

func (p *Player) addClient(connID int64, c *client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slog.Info("add new client", "connID", connID, "addr", c.conn.RemoteAddr())
	p.clients[connID] = c
}

func (p *Player) deleteClient(connID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.clients, connID)
}

// advertise announces the TCP endpoint over mDNS until ctx is done.
func advertise(ctx context.Context, name string, port int) error {
	service, err := mdns.NewMDNSService(name, serviceType, "", "", port, nil, []string{"proto=" + strconv.Itoa(int(comm.ProtocolVersion))})
	if err != nil {
		return err
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown()
	}()
	return nil
}

func main() {
	name, _ := os.Hostname()
	info := &data.PlayerInfo{
		Name:       "Fake Player on " + name,
		Flags:      data.FeaturePlaylist | data.FeatureQueue,
		SearchMask: []string{"artist", "title"},
	}

	host, err := comm.NewHost(tcpAddr, comm.PlayerInfoOption(info))
	if err != nil {
		slog.Error("failed to create host", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down player...")
		cancel()
	}()

	player := newPlayer()
	go player.tick(ctx)

	if err := advertise(ctx, info.Name, host.Addr().(*net.TCPAddr).Port); err != nil {
		slog.Warn("mdns advertisement failed", "error", err)
	}

	upgrader := ws.NewUpgrader()
	httpServer := &http.Server{
		Addr: wsAddr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stream, err := upgrader.Upgrade(w, r)
			if err != nil {
				slog.Warn("websocket upgrade failed", "error", err)
				return
			}
			conn, client, err := host.AcceptConn(r.Context(), stream)
			if err != nil {
				slog.Warn("websocket handshake failed", "error", err)
				return
			}
			player.Handle(conn, client)
		}),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("websocket server error", "error", err)
		}
	}()

	slog.Info("player started", "tcp", host.Addr().String(), "ws", wsAddr)
	if err := host.Serve(ctx, player); err != nil && ctx.Err() == nil {
		slog.Error("host error", "error", err)
	}

	player.byeAll()
	_ = httpServer.Close()
}
