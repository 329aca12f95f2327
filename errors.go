package comm

import (
	"github.com/pkg/errors"

	"github.com/Zereker/comm/serial"
)

// Error kinds. Returned errors wrap one of these; test with errors.Is.
var (
	// ErrTruncatedData is returned when a payload ends before a fixed-size field.
	ErrTruncatedData = serial.ErrTruncatedData
	// ErrMalformedData is returned when a payload does not match its schema.
	ErrMalformedData = serial.ErrMalformedData
	// ErrProtocolViolation is returned when a frame's prefix, suffix or length is invalid.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrHandshakeFailed is returned when the server hello is late or malformed.
	ErrHandshakeFailed = errors.New("handshake failed")
	// ErrIncompatibleVersion is returned when the server speaks another protocol version.
	// It is fatal: the Communicator stops retrying.
	ErrIncompatibleVersion = errors.New("incompatible protocol version")
	// ErrTransportFailure marks IO errors of the underlying stream.
	ErrTransportFailure = errors.New("transport failure")
	// ErrFatalTransport is returned by providers for failures that retrying
	// cannot fix, such as a malformed address.
	ErrFatalTransport = errors.New("fatal transport failure")
	// ErrPeerBye is returned when the peer announced its shutdown.
	ErrPeerBye = errors.New("peer said bye")
)

// ErrConnectionClosed is returned when operating on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// ErrAlreadyRunning is returned by Connect while a session is active.
var ErrAlreadyRunning = errors.New("communicator already running")

// ErrInvalidStream is returned when a connection is created without a stream.
var ErrInvalidStream = errors.New("invalid stream")

// transportError wraps an IO error so that it matches both
// ErrTransportFailure and the original cause.
type transportError struct {
	op  string
	err error
}

func (e *transportError) Error() string { return e.op + ": " + e.err.Error() }

func (e *transportError) Unwrap() error { return e.err }

func (e *transportError) Is(target error) bool { return target == ErrTransportFailure }

func transportErr(op string, err error) error {
	if err == nil || errors.Is(err, ErrTransportFailure) {
		return err
	}
	return &transportError{op: op, err: err}
}
