//go:build linux

package rfcomm

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/Zereker/comm"
)

// pollInterval is how often a pending connect checks for cancellation.
const pollInterval = 100 * time.Millisecond

func defaultLogger() comm.Logger { return slog.Default() }

// Open implements comm.Provider. The returned stream is an *os.File in
// non-blocking mode, so Close interrupts pending reads and read deadlines
// work.
func (p *Provider) Open(ctx context.Context, address string) (io.ReadWriteCloser, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, socketErr("socket", err)
	}

	if err := connect(ctx, fd, addr); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	p.logger.Debug("rfcomm connected", "addr", addr)
	return os.NewFile(uintptr(fd), "rfcomm:"+addr.String()), nil
}

func connect(ctx context.Context, fd int, addr Address) error {
	sa := &unix.SockaddrRFCOMM{Channel: addr.Channel}
	// the kernel stores device addresses little-endian
	for i := range addr.Device {
		sa.Addr[i] = addr.Device[len(addr.Device)-1-i]
	}

	err := unix.Connect(fd, sa)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EINPROGRESS) {
		return socketErr("connect", err)
	}

	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.Poll(fds, int(pollInterval/time.Millisecond))
		if errors.Is(err, unix.EINTR) || (err == nil && n == 0) {
			continue
		}
		if err != nil {
			return socketErr("poll", err)
		}
		break
	}

	soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return socketErr("getsockopt", err)
	}
	if soErr != 0 {
		return socketErr("connect", unix.Errno(soErr))
	}
	return nil
}

// socketErr marks errors retrying cannot fix as fatal.
func socketErr(op string, err error) error {
	switch {
	case errors.Is(err, unix.EAFNOSUPPORT),
		errors.Is(err, unix.EPROTONOSUPPORT),
		errors.Is(err, unix.EACCES),
		errors.Is(err, unix.EPERM):
		return errors.Wrapf(comm.ErrFatalTransport, "rfcomm %s: %v", op, err)
	}
	return errors.Wrapf(err, "rfcomm %s", op)
}
