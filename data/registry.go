package data

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/Zereker/comm/serial"
)

// Registry maps message ids to the schema of their payload, separately for
// each direction: a few ids carry different records on the way in and out.
// A Registry is immutable once built and safe for concurrent use.
type Registry struct {
	in  map[int32]serial.Schema
	out map[int32]serial.Schema
}

// NewRegistry validates and copies the given tables. in holds the schemas
// of messages this side receives, out of those it sends.
func NewRegistry(in, out map[int32]serial.Schema) (*Registry, error) {
	r := &Registry{
		in:  make(map[int32]serial.Schema, len(in)),
		out: make(map[int32]serial.Schema, len(out)),
	}
	for id, s := range in {
		if err := s.Validate(); err != nil {
			return nil, errors.Wrapf(err, "inbound %s", IDName(id))
		}
		r.in[id] = s
	}
	for id, s := range out {
		if err := s.Validate(); err != nil {
			return nil, errors.Wrapf(err, "outbound %s", IDName(id))
		}
		r.out[id] = s
	}
	return r, nil
}

// Inbound returns the schema of a received message id.
func (r *Registry) Inbound(id int32) (serial.Schema, bool) {
	s, ok := r.in[id]
	return s, ok
}

// Outbound returns the schema of a sent message id.
func (r *Registry) Outbound(id int32) (serial.Schema, bool) {
	s, ok := r.out[id]
	return s, ok
}

// Reverse returns the registry as seen from the peer.
func (r *Registry) Reverse() *Registry {
	return &Registry{in: r.out, out: r.in}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// DefaultRegistry returns the client-side registry of the protocol.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		signal := serial.Schema{}

		in := map[int32]serial.Schema{
			IDIgnore:         signal,
			IDConnPlayerInfo: playerInfoSchema,
			IDConnBye:        signal,
			IDSyncState:      playerStateSchema,
			IDSyncProgress:   progressSchema,
			IDSyncItem:       itemSchema,
		}
		out := map[int32]serial.Schema{
			IDIgnore:         signal,
			IDConnClientInfo: clientInfoSchema,
			IDConnSleep:      signal,
			IDConnWakeup:     signal,
			IDConnBye:        signal,
			IDCtrlTag:        tagSchema,
		}
		for id := IDCtrlPlayPause; id <= IDCtrlFullscreen; id++ {
			if id != IDCtrlTag {
				out[id] = controlSchema
			}
		}
		for id := IDActPlaylist; id <= IDActSearch; id++ {
			out[id] = actionSchema
		}
		for id := IDReqItem; id <= IDReqSearch; id++ {
			out[id] = requestSchema
			in[id] = itemListSchema
		}
		in[IDReqItem] = itemSchema

		r, err := NewRegistry(in, out)
		if err != nil {
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}
