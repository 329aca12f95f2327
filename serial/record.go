package serial

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// maxCount is the largest element count the 1-byte count field can carry.
const maxCount = 255

// Field is one entry of a Schema.
type Field struct {
	Type  Type
	Count int
}

// F returns a single-element field of type t.
func F(t Type) Field { return Field{Type: t, Count: 1} }

// Vectors returns a field packing n adjacent string vectors into one block.
func Vectors(n int) Field { return Field{Type: TypeStrings, Count: n} }

func (f Field) validate() error {
	if !f.Type.Valid() {
		return errors.Wrapf(ErrInvalidValue, "unknown type %d", byte(f.Type))
	}
	if f.Count < 1 || f.Count > maxCount {
		return errors.Wrapf(ErrInvalidValue, "%s count %d out of range", f.Type, f.Count)
	}
	if f.Count > 1 && f.Type != TypeStrings {
		return errors.Wrapf(ErrInvalidValue, "%s cannot carry %d elements", f.Type, f.Count)
	}
	return nil
}

// Schema is the ordered list of field types of one record.
type Schema []Field

// NewSchema validates fields and returns them as a Schema.
func NewSchema(fields ...Field) (Schema, error) {
	s := Schema(fields)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on an invalid field. It is meant
// for static schema tables.
func MustSchema(fields ...Field) Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate reports the first field with an unknown type or a bad count.
func (s Schema) Validate() error {
	for i, f := range s {
		if err := f.validate(); err != nil {
			return errors.Wrapf(err, "field %d", i)
		}
	}
	return nil
}

// Check reports whether atoms can be encoded as a record of this schema.
func (s Schema) Check(atoms []Atom) error {
	if len(atoms) != len(s) {
		return errors.Wrapf(ErrInvalidValue, "record has %d atoms, schema wants %d", len(atoms), len(s))
	}
	for i, a := range atoms {
		if a.Field() != s[i] {
			return errors.Wrapf(ErrInvalidValue, "field %d is %s×%d, schema wants %s×%d",
				i, a.typ, a.count, s[i].Type, s[i].Count)
		}
	}
	return nil
}

// String renders the schema signature, e.g. "I,S,AS×2".
func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.Type.String()
		if f.Count > 1 {
			parts[i] += "×" + strconv.Itoa(f.Count)
		}
	}
	return strings.Join(parts, ",")
}

// Serializable is implemented by records that can expose their fields as an
// ordered atom list and rebuild themselves from one.
type Serializable interface {
	Atoms() []Atom
	SetAtoms(atoms []Atom) error
}

// Encoder serializes atom lists into block sequences. Its scratch buffer is
// reused across calls, so an Encoder must not be used concurrently.
type Encoder struct {
	w Writer
}

// Encode writes each atom as tag, count, size and payload. The returned
// slice is owned by the caller.
func (e *Encoder) Encode(atoms []Atom) ([]byte, error) {
	e.w.Reset()
	for i, a := range atoms {
		if err := checkAtom(a); err != nil {
			return nil, errors.Wrapf(err, "atom %d", i)
		}
		e.w.PutByte(byte(a.typ))
		e.w.PutByte(byte(a.count))
		mark := e.w.reserve()
		putPayload(&e.w, a)
		e.w.patch(mark)
	}
	out := make([]byte, e.w.Len())
	copy(out, e.w.Bytes())
	return out, nil
}

func checkAtom(a Atom) error {
	if err := a.Field().validate(); err != nil {
		return err
	}
	switch a.typ {
	case TypeString:
		if a.s != nil && strings.IndexByte(*a.s, 0) >= 0 {
			return errors.Wrap(ErrInvalidValue, "string contains a zero byte")
		}
	case TypeStrings:
		if len(a.as) != a.count {
			return errors.Wrapf(ErrInvalidValue, "%d string vectors, count %d", len(a.as), a.count)
		}
		for _, sv := range a.as {
			for _, s := range sv {
				if strings.IndexByte(s, 0) >= 0 {
					return errors.Wrap(ErrInvalidValue, "string contains a zero byte")
				}
			}
		}
	}
	return nil
}

func putPayload(w *Writer, a Atom) {
	switch a.typ {
	case TypeByte:
		w.PutByte(a.y)
	case TypeInt:
		w.PutInt32(a.i)
	case TypeBool:
		w.PutBool(a.b)
	case TypeString:
		w.PutString(a.s)
	case TypeBytes:
		w.PutBytes(a.ay)
	case TypeBytesArray:
		w.PutBytesArray(a.aay)
	case TypeInts:
		w.PutInt32s(a.ai)
	case TypeBools:
		w.PutBools(a.ab)
	case TypeStrings:
		if a.count == 1 {
			w.PutStrings(a.as[0], false)
			return
		}
		for _, sv := range a.as {
			w.PutStrings(sv, true)
		}
	}
}

// Decode parses data as a record of the given schema. Every block must
// match its field exactly and the input must be fully consumed.
func Decode(data []byte, schema Schema) ([]Atom, error) {
	r := NewReader(data)
	atoms := make([]Atom, len(schema))
	for i, f := range schema {
		a, err := decodeBlock(r, f)
		if err != nil {
			return nil, errors.Wrapf(err, "field %d (%s)", i, f.Type)
		}
		atoms[i] = a
	}
	if r.Remaining() != 0 {
		return nil, errors.Wrapf(ErrMalformedData, "%d trailing bytes", r.Remaining())
	}
	return atoms, nil
}

func decodeBlock(r *Reader, f Field) (Atom, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return Atom{}, err
	}
	if Type(tag) != f.Type {
		return Atom{}, errors.Wrapf(ErrMalformedData, "type tag %d, expected %d", tag, byte(f.Type))
	}
	count, err := r.ReadByte()
	if err != nil {
		return Atom{}, err
	}
	if int(count) != f.Count {
		return Atom{}, errors.Wrapf(ErrMalformedData, "count %d, expected %d", count, f.Count)
	}
	size, err := r.ReadInt32()
	if err != nil {
		return Atom{}, err
	}
	if size < 0 || int(size) > r.Remaining() {
		return Atom{}, errors.Wrapf(ErrMalformedData, "block size %d, %d bytes left", size, r.Remaining())
	}

	// the payload reader cannot see past the block
	start := r.off
	br := &Reader{data: r.data[:start+int(size)], off: start}
	a := Atom{typ: f.Type, count: f.Count}
	switch f.Type {
	case TypeByte:
		a.y, err = br.ReadByte()
	case TypeInt:
		a.i, err = br.ReadInt32()
	case TypeBool:
		a.b, err = br.ReadBool()
	case TypeString:
		a.s, err = br.ReadString()
	case TypeBytes:
		a.ay, err = br.ReadBytes()
	case TypeBytesArray:
		a.aay, err = br.ReadBytesArray()
	case TypeInts:
		a.ai, err = br.ReadInt32s()
	case TypeBools:
		a.ab, err = br.ReadBools()
	case TypeStrings:
		a.as, err = readVectors(br, f.Count, int(size))
	}
	if err != nil {
		return Atom{}, err
	}
	if consumed := br.off - start; consumed != int(size) {
		return Atom{}, errors.Wrapf(ErrMalformedData, "block consumed %d bytes, declared %d", consumed, size)
	}
	r.off = br.off
	return a, nil
}

func readVectors(r *Reader, count, size int) ([][]string, error) {
	if count == 1 {
		sv, err := r.ReadStrings(size)
		if err != nil {
			return nil, err
		}
		return [][]string{sv}, nil
	}
	vs := make([][]string, count)
	for i := range vs {
		sv, err := r.ReadStrings(0)
		if err != nil {
			return nil, err
		}
		vs[i] = sv
	}
	return vs, nil
}

// Marshal encodes the atoms of v with a fresh Encoder.
func Marshal(v Serializable) ([]byte, error) {
	var e Encoder
	return e.Encode(v.Atoms())
}

// Unmarshal decodes data against schema and hands the atoms to v.
func Unmarshal(data []byte, schema Schema, v Serializable) error {
	atoms, err := Decode(data, schema)
	if err != nil {
		return err
	}
	return v.SetAtoms(atoms)
}
