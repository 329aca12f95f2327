package serial

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allTypes = MustSchema(
	F(TypeByte),
	F(TypeInt),
	F(TypeBool),
	F(TypeString),
	F(TypeString),
	F(TypeBytes),
	F(TypeBytes),
	F(TypeBytesArray),
	F(TypeInts),
	F(TypeStrings),
	Vectors(3),
	F(TypeBools),
)

func allTypesRecord() []Atom {
	return []Atom{
		Byte(0xfe),
		Int(math.MinInt32),
		Bool(true),
		String(""),
		NullString(),
		Bytes([]byte{}),
		Bytes(nil),
		BytesArray([][]byte{{1, 2}, {}}),
		Ints([]int32{-5, 0, math.MaxInt32}),
		Strings([]string{"a", "bc"}),
		StringVectors([]string{"x"}, nil, []string{}),
		Bools([]bool{false, true}),
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	atoms := allTypesRecord()
	require.NoError(t, allTypes.Check(atoms))

	var enc Encoder
	data, err := enc.Encode(atoms)
	require.NoError(t, err)

	got, err := Decode(data, allTypes)
	require.NoError(t, err)
	assert.Equal(t, atoms, got)
}

func TestRecord_BlockLayout(t *testing.T) {
	var enc Encoder
	data, err := enc.Encode([]Atom{Int(7), Bool(true)})
	require.NoError(t, err)
	assert.Equal(t, []byte{
		byte(TypeInt), 1, 0, 0, 0, 4, 0, 0, 0, 7,
		byte(TypeBool), 1, 0, 0, 0, 1, 1,
	}, data)
}

func TestEncoder_ResetsScratch(t *testing.T) {
	var enc Encoder
	first, err := enc.Encode([]Atom{String("long enough to grow the buffer")})
	require.NoError(t, err)
	second, err := enc.Encode([]Atom{Byte(1)})
	require.NoError(t, err)

	assert.Equal(t, []byte{byte(TypeByte), 1, 0, 0, 0, 1, 1}, second)
	// earlier results are not aliased by the scratch buffer
	got, err := Decode(first, MustSchema(F(TypeString)))
	require.NoError(t, err)
	assert.Equal(t, "long enough to grow the buffer", got[0].Str())
}

func TestDecode_SchemaMismatch(t *testing.T) {
	data, err := Marshal(atomList{Int(1), String("x")})
	require.NoError(t, err)

	cases := map[string]Schema{
		"wrong type":  MustSchema(F(TypeInt), F(TypeBytes)),
		"wrong count": MustSchema(F(TypeInt)),
		"extra field": MustSchema(F(TypeInt), F(TypeString), F(TypeByte)),
	}
	for name, schema := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data, schema)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedData) || errors.Is(err, ErrTruncatedData), "got %v", err)
		})
	}
}

func TestDecode_VectorCountMismatch(t *testing.T) {
	data, err := Marshal(atomList{StringVectors([]string{"a"}, []string{"b"})})
	require.NoError(t, err)

	_, err = Decode(data, MustSchema(Vectors(3)))
	assert.True(t, errors.Is(err, ErrMalformedData), "got %v", err)
}

func TestDecode_TrailingBytes(t *testing.T) {
	data, err := Marshal(atomList{Int(1)})
	require.NoError(t, err)

	_, err = Decode(append(data, 0), MustSchema(F(TypeInt)))
	assert.True(t, errors.Is(err, ErrMalformedData), "got %v", err)
}

func TestDecode_SizeMismatch(t *testing.T) {
	data, err := Marshal(atomList{Int(1), Byte(2)})
	require.NoError(t, err)
	schema := MustSchema(F(TypeInt), F(TypeByte))

	// declare 5 bytes for a 4 byte int: the int block swallows the next tag
	bigger := append([]byte(nil), data...)
	bigger[5] = 5
	_, err = Decode(bigger, schema)
	assert.True(t, errors.Is(err, ErrMalformedData), "got %v", err)

	// declare 3 bytes: the int read is cut at the block boundary
	smaller := append([]byte(nil), data...)
	smaller[5] = 3
	_, err = Decode(smaller, schema)
	assert.True(t, errors.Is(err, ErrMalformedData) || errors.Is(err, ErrTruncatedData), "got %v", err)

	// size larger than the input
	huge := append([]byte(nil), data...)
	huge[2] = 0x7f
	_, err = Decode(huge, schema)
	assert.True(t, errors.Is(err, ErrMalformedData), "got %v", err)
}

func TestDecode_Truncated(t *testing.T) {
	data, err := Marshal(atomList(allTypesRecord()))
	require.NoError(t, err)

	for n := 0; n < len(data); n++ {
		require.NotPanics(t, func() {
			_, err := Decode(data[:n], allTypes)
			require.Error(t, err, "prefix of %d bytes", n)
			assert.True(t, errors.Is(err, ErrMalformedData) || errors.Is(err, ErrTruncatedData), "got %v", err)
		})
	}
}

func TestDecode_EmptySchema(t *testing.T) {
	atoms, err := Decode(nil, Schema{})
	require.NoError(t, err)
	assert.Empty(t, atoms)

	_, err = Decode([]byte{1}, Schema{})
	assert.True(t, errors.Is(err, ErrMalformedData))
}

func TestEncode_InvalidAtoms(t *testing.T) {
	var enc Encoder

	_, err := enc.Encode([]Atom{String("a\x00b")})
	assert.True(t, errors.Is(err, ErrInvalidValue), "got %v", err)

	_, err = enc.Encode([]Atom{StringVectors()})
	assert.True(t, errors.Is(err, ErrInvalidValue), "got %v", err)

	_, err = enc.Encode([]Atom{{}})
	assert.True(t, errors.Is(err, ErrInvalidValue), "got %v", err)
}

func TestSchema_Validate(t *testing.T) {
	_, err := NewSchema(Field{Type: TypeInt, Count: 2})
	assert.True(t, errors.Is(err, ErrInvalidValue))

	_, err = NewSchema(Vectors(256))
	assert.True(t, errors.Is(err, ErrInvalidValue))

	_, err = NewSchema(Field{Type: 42, Count: 1})
	assert.True(t, errors.Is(err, ErrInvalidValue))

	assert.Panics(t, func() { MustSchema(Field{}) })
	assert.Equal(t, "I,S,AS×2", MustSchema(F(TypeInt), F(TypeString), Vectors(2)).String())
}

func TestSchema_Check(t *testing.T) {
	schema := MustSchema(F(TypeInt), Vectors(2))
	assert.NoError(t, schema.Check([]Atom{Int(1), StringVectors(nil, nil)}))
	assert.Error(t, schema.Check([]Atom{Int(1)}))
	assert.Error(t, schema.Check([]Atom{Int(1), Strings(nil)}))
}

type pair struct {
	name  string
	count int32
}

func (p *pair) Atoms() []Atom {
	return []Atom{String(p.name), Int(p.count)}
}

func (p *pair) SetAtoms(atoms []Atom) error {
	p.name = atoms[0].Str()
	p.count = atoms[1].Int()
	return nil
}

// atomList is a Serializable over a plain atom slice.
type atomList []Atom

func (l atomList) Atoms() []Atom { return l }

func (l atomList) SetAtoms([]Atom) error { return nil }

func TestMarshalUnmarshal(t *testing.T) {
	in := &pair{name: "volume", count: 42}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out pair
	require.NoError(t, Unmarshal(data, MustSchema(F(TypeString), F(TypeInt)), &out))
	assert.Equal(t, *in, out)

	err = Unmarshal(data, MustSchema(F(TypeInt), F(TypeInt)), &out)
	assert.True(t, errors.Is(err, ErrMalformedData))
}
