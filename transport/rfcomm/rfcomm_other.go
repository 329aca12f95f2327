//go:build !linux

package rfcomm

import (
	"context"
	"io"
	"log/slog"
	"runtime"

	"github.com/pkg/errors"

	"github.com/Zereker/comm"
)

func defaultLogger() comm.Logger { return slog.Default() }

// Open implements comm.Provider. RFCOMM sockets are not available on this
// platform.
func (p *Provider) Open(_ context.Context, address string) (io.ReadWriteCloser, error) {
	if _, err := ParseAddress(address); err != nil {
		return nil, err
	}
	return nil, errors.Wrapf(comm.ErrFatalTransport, "rfcomm is not supported on %s", runtime.GOOS)
}
