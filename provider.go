package comm

import (
	"context"
	"io"
)

// Provider opens the byte stream a session runs over. Implementations live
// under transport/.
//
// Open returns an error wrapping ErrFatalTransport when retrying cannot
// help, such as for a malformed address. Any other error is retried.
type Provider interface {
	Open(ctx context.Context, address string) (io.ReadWriteCloser, error)
}

// ProviderFunc adapts an ordinary function to the Provider interface.
type ProviderFunc func(ctx context.Context, address string) (io.ReadWriteCloser, error)

// Open calls f(ctx, address).
func (f ProviderFunc) Open(ctx context.Context, address string) (io.ReadWriteCloser, error) {
	return f(ctx, address)
}
