package serial

import "github.com/pkg/errors"

// Decode and encode failures. Returned errors wrap one of these with the
// offset or field that failed; test with errors.Is.
var (
	// ErrTruncatedData is returned when fewer bytes remain than a fixed-size read needs.
	ErrTruncatedData = errors.New("truncated data")
	// ErrMalformedData is returned when the data violates the block or atom structure.
	ErrMalformedData = errors.New("malformed data")
	// ErrInvalidValue is returned when an atom cannot be encoded as given.
	ErrInvalidValue = errors.New("invalid atom value")
)
