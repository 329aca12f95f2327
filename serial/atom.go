// Package serial implements the typed-atom wire codec used by every
// application message payload.
//
// A record is an ordered list of atoms. Each atom is written as a
// self-describing block: a type tag, an element count, a 4-byte size and
// the payload. Both peers agree on the ordered field types of a record
// (its Schema) per message id; the schema itself never travels on the wire.
package serial

import "fmt"

// Type is the wire tag of an atom.
type Type byte

// Atom types. The numeric values are part of the wire format.
const (
	TypeByte       Type = 1 // Y
	TypeInt        Type = 2 // I
	TypeBool       Type = 3 // B
	TypeString     Type = 4 // S
	TypeBytes      Type = 5 // AY
	TypeBytesArray Type = 6 // AAY
	TypeInts       Type = 7 // AI
	TypeStrings    Type = 8 // AS
	TypeBools      Type = 9 // AB
)

var typeNames = map[Type]string{
	TypeByte:       "Y",
	TypeInt:        "I",
	TypeBool:       "B",
	TypeString:     "S",
	TypeBytes:      "AY",
	TypeBytesArray: "AAY",
	TypeInts:       "AI",
	TypeStrings:    "AS",
	TypeBools:      "AB",
}

// String returns the short signature letter(s) of the type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", byte(t))
}

// Valid reports whether t is a known atom type.
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// Atom is a tagged value. The type of an atom is fixed at construction.
type Atom struct {
	typ   Type
	count int

	y   byte
	i   int32
	b   bool
	s   *string
	ay  []byte
	aay [][]byte
	ai  []int32
	as  [][]string
	ab  []bool
}

// Byte returns a byte atom.
func Byte(v byte) Atom { return Atom{typ: TypeByte, count: 1, y: v} }

// Int returns an int32 atom.
func Int(v int32) Atom { return Atom{typ: TypeInt, count: 1, i: v} }

// Bool returns a bool atom.
func Bool(v bool) Atom { return Atom{typ: TypeBool, count: 1, b: v} }

// String returns a present string atom.
func String(v string) Atom { return Atom{typ: TypeString, count: 1, s: &v} }

// NullString returns an absent string atom.
func NullString() Atom { return Atom{typ: TypeString, count: 1} }

// StringPtr returns a string atom that is absent when v is nil.
func StringPtr(v *string) Atom {
	if v == nil {
		return NullString()
	}
	return String(*v)
}

// Bytes returns a byte array atom. A nil slice encodes as absent.
func Bytes(v []byte) Atom { return Atom{typ: TypeBytes, count: 1, ay: v} }

// BytesArray returns an array-of-byte-arrays atom.
func BytesArray(v [][]byte) Atom { return Atom{typ: TypeBytesArray, count: 1, aay: v} }

// Ints returns an int32 array atom.
func Ints(v []int32) Atom { return Atom{typ: TypeInts, count: 1, ai: v} }

// Bools returns a bool array atom.
func Bools(v []bool) Atom { return Atom{typ: TypeBools, count: 1, ab: v} }

// Strings returns a single string array atom.
func Strings(v []string) Atom { return Atom{typ: TypeStrings, count: 1, as: [][]string{v}} }

// StringVectors returns a string array atom packing several adjacent
// string vectors into one block. Each vector is written self-delimited.
func StringVectors(v ...[]string) Atom {
	return Atom{typ: TypeStrings, count: len(v), as: v}
}

// Type returns the atom's wire type.
func (a Atom) Type() Type { return a.typ }

// Count returns the block element count (1 except for string vectors).
func (a Atom) Count() int { return a.count }

// Field returns the schema field this atom satisfies.
func (a Atom) Field() Field { return Field{Type: a.typ, Count: a.count} }

// Byte returns the value of a byte atom.
func (a Atom) Byte() byte { return a.y }

// Int returns the value of an int atom.
func (a Atom) Int() int32 { return a.i }

// Bool returns the value of a boolean atom.
func (a Atom) Bool() bool { return a.b }

// Str returns the string value, or "" when absent.
func (a Atom) Str() string {
	if a.s == nil {
		return ""
	}
	return *a.s
}

// StrPtr returns the string value, or nil when absent.
func (a Atom) StrPtr() *string { return a.s }

// Bytes returns the value of a byte array atom.
func (a Atom) Bytes() []byte { return a.ay }

// BytesArray returns the arrays of a byte array array atom.
func (a Atom) BytesArray() [][]byte { return a.aay }

// Ints returns the value of an int array atom.
func (a Atom) Ints() []int32 { return a.ai }

// Bools returns the value of a boolean array atom.
func (a Atom) Bools() []bool { return a.ab }

// Strings returns the first string vector.
func (a Atom) Strings() []string {
	if len(a.as) == 0 {
		return nil
	}
	return a.as[0]
}

// StringVectors returns all string vectors of the atom.
func (a Atom) StringVectors() [][]string { return a.as }

// String implements fmt.Stringer for logging.
func (a Atom) String() string {
	switch a.typ {
	case TypeByte:
		return fmt.Sprintf("Y(%d)", a.y)
	case TypeInt:
		return fmt.Sprintf("I(%d)", a.i)
	case TypeBool:
		return fmt.Sprintf("B(%t)", a.b)
	case TypeString:
		if a.s == nil {
			return "S(nil)"
		}
		return fmt.Sprintf("S(%q)", *a.s)
	case TypeBytes:
		return fmt.Sprintf("AY(%d bytes)", len(a.ay))
	case TypeBytesArray:
		return fmt.Sprintf("AAY(%d)", len(a.aay))
	case TypeInts:
		return fmt.Sprintf("AI%v", a.ai)
	case TypeStrings:
		return fmt.Sprintf("AS%v", a.as)
	case TypeBools:
		return fmt.Sprintf("AB%v", a.ab)
	}
	return a.typ.String()
}
