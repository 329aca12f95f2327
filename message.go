package comm

import (
	"github.com/Zereker/comm/data"
	"github.com/Zereker/comm/serial"
)

// Message is one received or sent protocol message.
// Atoms holds the decoded payload for ids with a known schema.
type Message struct {
	ID      int32
	Payload []byte
	Atoms   []serial.Atom
}

// Length returns the length of the encoded payload.
func (m *Message) Length() int { return len(m.Payload) }

// Body returns the encoded payload.
func (m *Message) Body() []byte { return m.Payload }

// Decode fills v from the message's decoded atoms.
func (m *Message) Decode(v serial.Serializable) error {
	return v.SetAtoms(m.Atoms)
}

func (m *Message) String() string {
	return data.IDName(m.ID)
}
