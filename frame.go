package comm

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/Zereker/comm/data"
)

// Frame layout, all integers big-endian:
//
//	prefix 0xFFFFFFFF | id (4) | length N (4) | payload (N) | suffix 0xFEFEFEFE
//
// The server hello uses the same prefix and suffix around a single
// protocol version byte.
const (
	framePrefix uint32 = 0xFFFFFFFF
	frameSuffix uint32 = 0xFEFEFEFE

	frameOverhead = 16
	helloLength   = 9
)

// flusher is implemented by buffered writers such as *bufio.Writer.
type flusher interface {
	Flush() error
}

// EncodeFrame writes one frame to w in a single Write call.
func EncodeFrame(w io.Writer, id int32, payload []byte) error {
	buf := make([]byte, 0, frameOverhead+len(payload))
	buf = binary.BigEndian.AppendUint32(buf, framePrefix)
	buf = binary.BigEndian.AppendUint32(buf, uint32(id))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	buf = binary.BigEndian.AppendUint32(buf, frameSuffix)

	if _, err := w.Write(buf); err != nil {
		return transportErr("write frame", err)
	}
	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return transportErr("flush frame", err)
		}
	}
	return nil
}

// FrameReader decodes frames from a stream.
type FrameReader struct {
	r          io.Reader
	maxPayload int
	hdr        [8]byte
}

// NewFrameReader returns a FrameReader that accepts payloads up to
// maxPayload bytes. Larger payloads are drained from the stream and
// reported as data.IDIgnore.
func NewFrameReader(r io.Reader, maxPayload int) *FrameReader {
	return &FrameReader{r: r, maxPayload: maxPayload}
}

// Decode reads exactly one frame. A prefix or suffix mismatch returns
// ErrProtocolViolation; the stream position cannot be trusted afterwards.
func (f *FrameReader) Decode() (*Message, error) {
	if err := f.expect(framePrefix, "prefix"); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(f.r, f.hdr[:8]); err != nil {
		return nil, transportErr("read frame header", err)
	}
	id := int32(binary.BigEndian.Uint32(f.hdr[0:4]))
	length := int32(binary.BigEndian.Uint32(f.hdr[4:8]))
	if length < 0 {
		return nil, errors.Wrapf(ErrProtocolViolation, "negative payload length %d", length)
	}

	msg := &Message{ID: id}
	switch {
	case length == 0:
	case int(length) > f.maxPayload:
		if _, err := io.CopyN(io.Discard, f.r, int64(length)); err != nil {
			return nil, transportErr("drain payload", err)
		}
		msg.ID = data.IDIgnore
	default:
		msg.Payload = make([]byte, length)
		if _, err := io.ReadFull(f.r, msg.Payload); err != nil {
			return nil, transportErr("read payload", err)
		}
	}

	if err := f.expect(frameSuffix, "suffix"); err != nil {
		return nil, err
	}
	return msg, nil
}

func (f *FrameReader) expect(magic uint32, what string) error {
	if _, err := io.ReadFull(f.r, f.hdr[:4]); err != nil {
		return transportErr("read frame "+what, err)
	}
	if got := binary.BigEndian.Uint32(f.hdr[:4]); got != magic {
		return errors.Wrapf(ErrProtocolViolation, "frame %s %#08x", what, got)
	}
	return nil
}

// EncodeHello writes the server hello carrying version.
func EncodeHello(w io.Writer, version byte) error {
	buf := make([]byte, 0, helloLength)
	buf = binary.BigEndian.AppendUint32(buf, framePrefix)
	buf = append(buf, version)
	buf = binary.BigEndian.AppendUint32(buf, frameSuffix)
	if _, err := w.Write(buf); err != nil {
		return transportErr("write hello", err)
	}
	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return transportErr("flush hello", err)
		}
	}
	return nil
}

// DecodeHello reads the server hello and returns its version byte.
func DecodeHello(r io.Reader) (byte, error) {
	var buf [helloLength]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, transportErr("read hello", err)
	}
	if binary.BigEndian.Uint32(buf[0:4]) != framePrefix || binary.BigEndian.Uint32(buf[5:9]) != frameSuffix {
		return 0, errors.Wrapf(ErrHandshakeFailed, "malformed hello % x", buf[:])
	}
	return buf[4], nil
}
