package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/Zereker/comm"
	"github.com/Zereker/comm/data"
)

// printer writes session events as plain text.
type printer struct {
	w io.Writer

	once    sync.Once
	stopped chan struct{}
	err     error
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, stopped: make(chan struct{})}
}

func (p *printer) OnConnected(peer *comm.Message) {
	var info data.PlayerInfo
	if err := peer.Decode(&info); err != nil {
		fmt.Fprintf(p.w, "connected to an unknown player: %v\n", err)
		return
	}
	fmt.Fprintf(p.w, "connected to %s\n", info.Name)
}

func (p *printer) OnDisconnected(reason string, err error) {
	fmt.Fprintf(p.w, "%s (%v)\n", reason, err)
}

// OnError is terminal for the session, so it also stops the command loop.
func (p *printer) OnError(reason string, err error) {
	fmt.Fprintf(p.w, "%s (%v)\n", reason, err)
	p.once.Do(func() {
		p.err = err
		close(p.stopped)
	})
}

func (p *printer) OnMessage(msg *comm.Message) {
	switch msg.ID {
	case data.IDSyncState:
		var s data.PlayerState
		if msg.Decode(&s) == nil {
			fmt.Fprintf(p.w, "%s volume %d%% repeat %t shuffle %t\n", playback(s.Playback), s.Volume, s.Repeat, s.Shuffle)
		}
	case data.IDSyncProgress:
		var pr data.Progress
		if msg.Decode(&pr) == nil {
			fmt.Fprintf(p.w, "%d:%02d / %d:%02d\n", pr.Progress/60, pr.Progress%60, pr.Length/60, pr.Length%60)
		}
	case data.IDSyncItem:
		var it data.Item
		if msg.Decode(&it) == nil {
			if it.ID == nil {
				fmt.Fprintln(p.w, "nothing playing")
				return
			}
			fmt.Fprintf(p.w, "now playing: %s - %s\n", it.Meta[data.MetaArtist], it.Meta[data.MetaTitle])
		}
	case data.IDReqItem:
		var it data.Item
		if msg.Decode(&it) == nil && it.ID != nil {
			fmt.Fprintf(p.w, "%s: %v\n", *it.ID, it.Meta)
		}
	case data.IDReqPlaylist, data.IDReqQueue, data.IDReqMediaLib, data.IDReqFiles, data.IDReqSearch:
		var l data.ItemList
		if msg.Decode(&l) == nil {
			fmt.Fprintf(p.w, "%s page %d/%d\n", data.IDName(msg.ID), l.Page+1, l.PageMax+1)
			for i, name := range l.Names {
				fmt.Fprintf(p.w, "  %3d %s\n", i, name)
			}
		}
	default:
		fmt.Fprintf(p.w, "%s (%d bytes)\n", msg, msg.Length())
	}
}

func playback(b byte) string {
	switch b {
	case data.PlaybackPlay:
		return "playing"
	case data.PlaybackPause:
		return "paused"
	}
	return "stopped"
}
