package serial

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
)

// Encoding is the charset name written ahead of every string array.
const Encoding = "UTF-8"

const (
	flagNull    byte = 0
	flagPresent byte = 1
)

// Writer appends primitive atoms to a reusable byte buffer.
type Writer struct {
	buf []byte
}

// Reset empties the buffer but keeps its capacity.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// Bytes returns the written data. The slice aliases the internal buffer
// until the next Reset or Put call.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// PutByte appends a single byte.
func (w *Writer) PutByte(v byte) { w.buf = append(w.buf, v) }

// PutBool appends a boolean as one byte.
func (w *Writer) PutBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// PutInt32 writes v as 4 bytes, big-endian, two's complement.
func (w *Writer) PutInt32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

// reserve appends a 4-byte placeholder and returns its offset.
func (w *Writer) reserve() int {
	mark := len(w.buf)
	w.buf = append(w.buf, 0, 0, 0, 0)
	return mark
}

// patch stores the number of bytes written after the placeholder at mark.
func (w *Writer) patch(mark int) {
	binary.BigEndian.PutUint32(w.buf[mark:], uint32(len(w.buf)-mark-4))
}

// PutString writes a null flag, and for a present string the bytes
// followed by a zero terminator.
func (w *Writer) PutString(s *string) {
	if s == nil {
		w.buf = append(w.buf, flagNull)
		return
	}
	w.buf = append(w.buf, flagPresent)
	w.buf = append(w.buf, *s...)
	w.buf = append(w.buf, 0)
}

// PutBytes writes a null flag, and for a non-nil slice its length and data.
func (w *Writer) PutBytes(b []byte) {
	if b == nil {
		w.buf = append(w.buf, flagNull)
		return
	}
	w.buf = append(w.buf, flagPresent)
	w.PutInt32(int32(len(b)))
	w.buf = append(w.buf, b...)
}

// PutBytesArray appends a byte array count followed by each array.
func (w *Writer) PutBytesArray(v [][]byte) {
	if v == nil {
		w.buf = append(w.buf, flagNull)
		return
	}
	w.buf = append(w.buf, flagPresent)
	w.PutInt32(int32(len(v)))
	for _, b := range v {
		w.PutBytes(b)
	}
}

// PutInt32s appends a length-prefixed array of big-endian int32s.
func (w *Writer) PutInt32s(v []int32) {
	if v == nil {
		w.buf = append(w.buf, flagNull)
		return
	}
	w.buf = append(w.buf, flagPresent)
	w.PutInt32(int32(len(v)))
	for _, i := range v {
		w.PutInt32(i)
	}
}

// PutBools appends a length-prefixed array of booleans, one byte each.
func (w *Writer) PutBools(v []bool) {
	if v == nil {
		w.buf = append(w.buf, flagNull)
		return
	}
	w.buf = append(w.buf, flagPresent)
	w.PutInt32(int32(len(v)))
	for _, b := range v {
		w.PutBool(b)
	}
}

// PutStrings writes a string array.
//
// With withLengthPrefix the array is self-delimited: a null flag and a
// 4-byte size covering everything after it. Without it only the encoding
// name and the elements are written, and the enclosing block size is the
// sole length signal; a nil array is then written as an empty one.
func (w *Writer) PutStrings(sv []string, withLengthPrefix bool) {
	enc := Encoding
	if !withLengthPrefix {
		w.PutString(&enc)
		for i := range sv {
			w.PutString(&sv[i])
		}
		return
	}

	if sv == nil {
		w.buf = append(w.buf, flagNull)
		return
	}
	w.buf = append(w.buf, flagPresent)
	mark := w.reserve()
	w.PutString(&enc)
	for i := range sv {
		w.PutString(&sv[i])
	}
	w.patch(mark)
}

// Reader decodes primitive atoms from a byte slice. It never reads past the
// end of the slice.
type Reader struct {
	data []byte
	off  int
}

// NewReader returns a Reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.Remaining() < 1 {
		return 0, errors.Wrapf(ErrTruncatedData, "byte at offset %d", r.off)
	}
	v := r.data[r.off]
	r.off++
	return v, nil
}

// ReadBool reads a boolean byte. Any non-zero value is true.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// ReadInt32 reads a big-endian int32.
func (r *Reader) ReadInt32() (int32, error) {
	if r.Remaining() < 4 {
		return 0, errors.Wrapf(ErrTruncatedData, "int32 at offset %d, %d bytes left", r.off, r.Remaining())
	}
	v := int32(binary.BigEndian.Uint32(r.data[r.off:]))
	r.off += 4
	return v, nil
}

// readLength reads a 4-byte length or count and checks that at least
// n*unit bytes remain.
func (r *Reader) readLength(unit int) (int, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.Wrapf(ErrMalformedData, "negative length %d at offset %d", n, r.off-4)
	}
	if int64(n)*int64(unit) > int64(r.Remaining()) {
		return 0, errors.Wrapf(ErrMalformedData, "length %d exceeds %d remaining bytes", n, r.Remaining())
	}
	return int(n), nil
}

// ReadString returns nil for an absent string.
func (r *Reader) ReadString() (*string, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if flag == flagNull {
		return nil, nil
	}
	end := bytes.IndexByte(r.data[r.off:], 0)
	if end < 0 {
		return nil, errors.Wrapf(ErrMalformedData, "unterminated string at offset %d", r.off)
	}
	s := string(r.data[r.off : r.off+end])
	r.off += end + 1
	return &s, nil
}

// ReadBytes returns nil for an absent array and a non-nil slice otherwise.
func (r *Reader) ReadBytes() ([]byte, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if flag == flagNull {
		return nil, nil
	}
	n, err := r.readLength(1)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:])
	r.off += n
	return b, nil
}

// ReadBytesArray reads what PutBytesArray writes.
func (r *Reader) ReadBytesArray() ([][]byte, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if flag == flagNull {
		return nil, nil
	}
	// every element takes at least its flag byte
	n, err := r.readLength(1)
	if err != nil {
		return nil, err
	}
	v := make([][]byte, n)
	for i := range v {
		if v[i], err = r.ReadBytes(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// ReadInt32s reads what PutInt32s writes.
func (r *Reader) ReadInt32s() ([]int32, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if flag == flagNull {
		return nil, nil
	}
	n, err := r.readLength(4)
	if err != nil {
		return nil, err
	}
	v := make([]int32, n)
	for i := range v {
		v[i] = int32(binary.BigEndian.Uint32(r.data[r.off:]))
		r.off += 4
	}
	return v, nil
}

// ReadBools reads what PutBools writes.
func (r *Reader) ReadBools() ([]bool, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if flag == flagNull {
		return nil, nil
	}
	n, err := r.readLength(1)
	if err != nil {
		return nil, err
	}
	v := make([]bool, n)
	for i := range v {
		v[i] = r.data[r.off] != 0
		r.off++
	}
	return v, nil
}

// ReadStrings reads a string array of declaredSize bytes. A declaredSize
// of 0 means the array is self-delimited and its null flag and size are
// read first. The size covers the encoding name and all elements.
func (r *Reader) ReadStrings(declaredSize int) ([]string, error) {
	if declaredSize == 0 {
		flag, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if flag == flagNull {
			return nil, nil
		}
		if declaredSize, err = r.readLength(1); err != nil {
			return nil, err
		}
	} else if declaredSize < 0 || declaredSize > r.Remaining() {
		return nil, errors.Wrapf(ErrMalformedData, "string array size %d exceeds %d remaining bytes", declaredSize, r.Remaining())
	}

	start := r.off
	enc, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	if enc == nil || !supportedEncoding(*enc) {
		return nil, errors.Wrapf(ErrMalformedData, "unsupported string encoding at offset %d", start)
	}

	sv := []string{}
	for r.off-start < declaredSize {
		s, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		if s == nil {
			sv = append(sv, "")
			continue
		}
		sv = append(sv, *s)
	}
	if r.off-start != declaredSize {
		return nil, errors.Wrapf(ErrMalformedData, "string array consumed %d bytes, declared %d", r.off-start, declaredSize)
	}
	return sv, nil
}

func supportedEncoding(name string) bool {
	return strings.EqualFold(name, "UTF-8") || strings.EqualFold(name, "UTF8")
}
