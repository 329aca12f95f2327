package data

import (
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Zereker/comm/serial"
)

var (
	clientInfoSchema = serial.MustSchema(
		serial.F(serial.TypeInt),
		serial.F(serial.TypeString),
		serial.F(serial.TypeInt),
		serial.Vectors(2),
	)
	playerInfoSchema = serial.MustSchema(
		serial.F(serial.TypeString),
		serial.F(serial.TypeInt),
		serial.F(serial.TypeInt),
		serial.Vectors(2),
		serial.F(serial.TypeStrings),
	)
	playerStateSchema = serial.MustSchema(
		serial.F(serial.TypeByte),
		serial.F(serial.TypeInt),
		serial.F(serial.TypeBool),
		serial.F(serial.TypeBool),
		serial.F(serial.TypeInt),
		serial.F(serial.TypeBool),
	)
	progressSchema = serial.MustSchema(
		serial.F(serial.TypeInt),
		serial.F(serial.TypeInt),
	)
	itemSchema = serial.MustSchema(
		serial.F(serial.TypeString),
		serial.Vectors(2),
		serial.F(serial.TypeBytes),
	)
	itemListSchema = serial.MustSchema(
		serial.F(serial.TypeStrings),
		serial.Vectors(3),
		serial.F(serial.TypeInt),
		serial.F(serial.TypeInt),
		serial.F(serial.TypeInts),
		serial.F(serial.TypeInts),
	)
	controlSchema = serial.MustSchema(serial.F(serial.TypeInt))
	tagSchema     = serial.MustSchema(
		serial.F(serial.TypeString),
		serial.F(serial.TypeString),
	)
	actionSchema = serial.MustSchema(
		serial.F(serial.TypeInt),
		serial.F(serial.TypeInts),
		serial.F(serial.TypeStrings),
	)
	requestSchema = serial.MustSchema(
		serial.F(serial.TypeString),
		serial.F(serial.TypeStrings),
		serial.F(serial.TypeInt),
	)
)

// ExtraClientID is the ClientInfo extra key holding the client's device id.
const ExtraClientID = "client-id"

// ClientInfo describes the client to the server during the handshake.
type ClientInfo struct {
	ImageSize int32
	ImageType string
	PageSize  int32
	Extra     map[string]string
}

// NewClientInfo returns client info with default image and paging
// preferences and a fresh client id.
func NewClientInfo() *ClientInfo {
	return &ClientInfo{
		ImageSize: 300,
		ImageType: "JPEG",
		PageSize:  50,
		Extra:     map[string]string{ExtraClientID: uuid.NewString()},
	}
}

// Schema implements serial.Serializable.
func (c *ClientInfo) Schema() serial.Schema { return clientInfoSchema }

// Atoms returns the fields of the ClientInfo in wire order.
func (c *ClientInfo) Atoms() []serial.Atom {
	keys, values := split(c.Extra)
	return []serial.Atom{
		serial.Int(c.ImageSize),
		serial.String(c.ImageType),
		serial.Int(c.PageSize),
		serial.StringVectors(keys, values),
	}
}

// SetAtoms fills the ClientInfo from decoded atoms.
func (c *ClientInfo) SetAtoms(atoms []serial.Atom) error {
	if err := clientInfoSchema.Check(atoms); err != nil {
		return err
	}
	extra, err := join(atoms[3].StringVectors())
	if err != nil {
		return errors.Wrap(err, "client info extras")
	}
	c.ImageSize = atoms[0].Int()
	c.ImageType = atoms[1].Str()
	c.PageSize = atoms[2].Int()
	c.Extra = extra
	return nil
}

// Player feature flags carried in PlayerInfo.Flags.
const (
	FeaturePlaylist int32 = 1 << iota
	FeatureQueue
	FeatureMediaLib
	FeatureFiles
	FeatureSearch
	FeatureRate
	FeatureTags
	FeatureFullscreen
	FeatureShutdown
)

// ActionDesc names an action the player offers on items.
type ActionDesc struct {
	Name  string
	Label string
}

// PlayerInfo is the peer description the server sends during the handshake.
type PlayerInfo struct {
	Name        string
	Flags       int32
	MaxRating   int32
	FileActions []ActionDesc
	SearchMask  []string
}

// Has reports whether the player announced feature f.
func (p *PlayerInfo) Has(f int32) bool { return p.Flags&f != 0 }

// Schema implements serial.Serializable.
func (p *PlayerInfo) Schema() serial.Schema { return playerInfoSchema }

// Atoms returns the fields of the PlayerInfo in wire order.
func (p *PlayerInfo) Atoms() []serial.Atom {
	names := make([]string, len(p.FileActions))
	labels := make([]string, len(p.FileActions))
	for i, a := range p.FileActions {
		names[i], labels[i] = a.Name, a.Label
	}
	return []serial.Atom{
		serial.String(p.Name),
		serial.Int(p.Flags),
		serial.Int(p.MaxRating),
		serial.StringVectors(names, labels),
		serial.Strings(p.SearchMask),
	}
}

// SetAtoms fills the PlayerInfo from decoded atoms.
func (p *PlayerInfo) SetAtoms(atoms []serial.Atom) error {
	if err := playerInfoSchema.Check(atoms); err != nil {
		return err
	}
	vs := atoms[3].StringVectors()
	if len(vs[0]) != len(vs[1]) {
		return errors.Wrap(serial.ErrMalformedData, "file action names and labels differ in length")
	}
	p.Name = atoms[0].Str()
	p.Flags = atoms[1].Int()
	p.MaxRating = atoms[2].Int()
	p.FileActions = make([]ActionDesc, len(vs[0]))
	for i := range vs[0] {
		p.FileActions[i] = ActionDesc{Name: vs[0][i], Label: vs[1][i]}
	}
	p.SearchMask = atoms[4].Strings()
	return nil
}

// Playback states.
const (
	PlaybackStop  byte = 0
	PlaybackPause byte = 1
	PlaybackPlay  byte = 2
)

// PlayerState is the player's current playback state.
type PlayerState struct {
	Playback byte
	Volume   int32
	Repeat   bool
	Shuffle  bool
	Position int32
	Queue    bool
}

// Schema implements serial.Serializable.
func (s *PlayerState) Schema() serial.Schema { return playerStateSchema }

// Atoms returns the fields of the PlayerState in wire order.
func (s *PlayerState) Atoms() []serial.Atom {
	return []serial.Atom{
		serial.Byte(s.Playback),
		serial.Int(s.Volume),
		serial.Bool(s.Repeat),
		serial.Bool(s.Shuffle),
		serial.Int(s.Position),
		serial.Bool(s.Queue),
	}
}

// SetAtoms fills the PlayerState from decoded atoms.
func (s *PlayerState) SetAtoms(atoms []serial.Atom) error {
	if err := playerStateSchema.Check(atoms); err != nil {
		return err
	}
	s.Playback = atoms[0].Byte()
	s.Volume = atoms[1].Int()
	s.Repeat = atoms[2].Bool()
	s.Shuffle = atoms[3].Bool()
	s.Position = atoms[4].Int()
	s.Queue = atoms[5].Bool()
	return nil
}

// Progress is the position within the current item, in seconds.
type Progress struct {
	Progress int32
	Length   int32
}

// Schema implements serial.Serializable.
func (p *Progress) Schema() serial.Schema { return progressSchema }

// Atoms returns the fields of the Progress in wire order.
func (p *Progress) Atoms() []serial.Atom {
	return []serial.Atom{serial.Int(p.Progress), serial.Int(p.Length)}
}

// SetAtoms fills the Progress from decoded atoms.
func (p *Progress) SetAtoms(atoms []serial.Atom) error {
	if err := progressSchema.Check(atoms); err != nil {
		return err
	}
	p.Progress = atoms[0].Int()
	p.Length = atoms[1].Int()
	return nil
}

// Common Item meta keys.
const (
	MetaTitle  = "title"
	MetaArtist = "artist"
	MetaAlbum  = "album"
	MetaRating = "rating"
	MetaTags   = "tags"
)

// Item is the currently playing item, or a requested one. A nil ID means
// no item.
type Item struct {
	ID    *string
	Meta  map[string]string
	Image []byte
}

// Schema implements serial.Serializable.
func (it *Item) Schema() serial.Schema { return itemSchema }

// Atoms returns the fields of the Item in wire order.
func (it *Item) Atoms() []serial.Atom {
	keys, values := split(it.Meta)
	return []serial.Atom{
		serial.StringPtr(it.ID),
		serial.StringVectors(keys, values),
		serial.Bytes(it.Image),
	}
}

// SetAtoms fills the Item from decoded atoms.
func (it *Item) SetAtoms(atoms []serial.Atom) error {
	if err := itemSchema.Check(atoms); err != nil {
		return err
	}
	meta, err := join(atoms[1].StringVectors())
	if err != nil {
		return errors.Wrap(err, "item meta")
	}
	it.ID = atoms[0].StrPtr()
	it.Meta = meta
	it.Image = atoms[2].Bytes()
	return nil
}

// ItemList is one page of a playlist, queue, media library, file or search
// listing.
type ItemList struct {
	Path        []string
	Nested      []string
	IDs         []string
	Names       []string
	Page        int32
	PageMax     int32
	ItemActions []int32
	ListActions []int32
}

// Schema implements serial.Serializable.
func (l *ItemList) Schema() serial.Schema { return itemListSchema }

// Atoms returns the fields of the ItemList in wire order.
func (l *ItemList) Atoms() []serial.Atom {
	return []serial.Atom{
		serial.Strings(l.Path),
		serial.StringVectors(l.Nested, l.IDs, l.Names),
		serial.Int(l.Page),
		serial.Int(l.PageMax),
		serial.Ints(l.ItemActions),
		serial.Ints(l.ListActions),
	}
}

// SetAtoms fills the ItemList from decoded atoms.
func (l *ItemList) SetAtoms(atoms []serial.Atom) error {
	if err := itemListSchema.Check(atoms); err != nil {
		return err
	}
	vs := atoms[1].StringVectors()
	if len(vs[1]) != len(vs[2]) {
		return errors.Wrap(serial.ErrMalformedData, "item ids and names differ in length")
	}
	l.Path = atoms[0].Strings()
	l.Nested, l.IDs, l.Names = vs[0], vs[1], vs[2]
	l.Page = atoms[2].Int()
	l.PageMax = atoms[3].Int()
	l.ItemActions = atoms[4].Ints()
	l.ListActions = atoms[5].Ints()
	return nil
}

// Control carries the parameter of a player control, such as the volume
// delta or the seek direction.
type Control struct {
	Param int32
}

// Schema implements serial.Serializable.
func (c *Control) Schema() serial.Schema { return controlSchema }

// Atoms returns the fields of the Control in wire order.
func (c *Control) Atoms() []serial.Atom { return []serial.Atom{serial.Int(c.Param)} }

// SetAtoms fills the Control from decoded atoms.
func (c *Control) SetAtoms(atoms []serial.Atom) error {
	if err := controlSchema.Check(atoms); err != nil {
		return err
	}
	c.Param = atoms[0].Int()
	return nil
}

// Tag sets the tags of an item.
type Tag struct {
	ItemID string
	Tags   string
}

// Schema implements serial.Serializable.
func (t *Tag) Schema() serial.Schema { return tagSchema }

// Atoms returns the fields of the Tag in wire order.
func (t *Tag) Atoms() []serial.Atom {
	return []serial.Atom{serial.String(t.ItemID), serial.String(t.Tags)}
}

// SetAtoms fills the Tag from decoded atoms.
func (t *Tag) SetAtoms(atoms []serial.Atom) error {
	if err := tagSchema.Check(atoms); err != nil {
		return err
	}
	t.ItemID = atoms[0].Str()
	t.Tags = atoms[1].Str()
	return nil
}

// Action applies a player action to selected items of a list.
type Action struct {
	ActionID  int32
	Positions []int32
	ItemIDs   []string
}

// Schema implements serial.Serializable.
func (a *Action) Schema() serial.Schema { return actionSchema }

// Atoms returns the fields of the Action in wire order.
func (a *Action) Atoms() []serial.Atom {
	return []serial.Atom{
		serial.Int(a.ActionID),
		serial.Ints(a.Positions),
		serial.Strings(a.ItemIDs),
	}
}

// SetAtoms fills the Action from decoded atoms.
func (a *Action) SetAtoms(atoms []serial.Atom) error {
	if err := actionSchema.Check(atoms); err != nil {
		return err
	}
	a.ActionID = atoms[0].Int()
	a.Positions = atoms[1].Ints()
	a.ItemIDs = atoms[2].Strings()
	return nil
}

// Request asks for an item or one page of a list.
type Request struct {
	ID   string
	Path []string
	Page int32
}

// Schema implements serial.Serializable.
func (r *Request) Schema() serial.Schema { return requestSchema }

// Atoms returns the fields of the Request in wire order.
func (r *Request) Atoms() []serial.Atom {
	return []serial.Atom{
		serial.String(r.ID),
		serial.Strings(r.Path),
		serial.Int(r.Page),
	}
}

// SetAtoms fills the Request from decoded atoms.
func (r *Request) SetAtoms(atoms []serial.Atom) error {
	if err := requestSchema.Check(atoms); err != nil {
		return err
	}
	r.ID = atoms[0].Str()
	r.Path = atoms[1].Strings()
	r.Page = atoms[2].Int()
	return nil
}

// split flattens m into sorted key and value vectors.
func split(m map[string]string) ([]string, []string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = m[k]
	}
	return keys, values
}

func join(vs [][]string) (map[string]string, error) {
	keys, values := vs[0], vs[1]
	if len(keys) != len(values) {
		return nil, errors.Wrapf(serial.ErrMalformedData, "%d keys, %d values", len(keys), len(values))
	}
	m := make(map[string]string, len(keys))
	for i, k := range keys {
		m[k] = values[i]
	}
	return m, nil
}
