// Package rfcomm opens sessions over Bluetooth RFCOMM sockets. Only Linux
// is supported; elsewhere Open fails with comm.ErrFatalTransport.
package rfcomm

import (
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/Zereker/comm"
)

// DefaultChannel is the RFCOMM channel used when the address names none.
const DefaultChannel = 1

const maxChannel = 30

// Address is a parsed device address.
type Address struct {
	// Device is the Bluetooth device address in display order.
	Device  [6]byte
	Channel uint8
}

// ParseAddress parses "AA:BB:CC:DD:EE:FF" or "AA:BB:CC:DD:EE:FF/channel".
// Errors wrap comm.ErrFatalTransport.
func ParseAddress(s string) (Address, error) {
	var addr Address

	device, channel, hasChannel := strings.Cut(s, "/")
	mac, err := net.ParseMAC(device)
	if err != nil || len(mac) != 6 {
		return addr, errors.Wrapf(comm.ErrFatalTransport, "bad device address %q", s)
	}
	copy(addr.Device[:], mac)

	addr.Channel = DefaultChannel
	if hasChannel {
		n, err := strconv.Atoi(channel)
		if err != nil || n < 1 || n > maxChannel {
			return addr, errors.Wrapf(comm.ErrFatalTransport, "bad channel %q", channel)
		}
		addr.Channel = uint8(n)
	}
	return addr, nil
}

func (a Address) String() string {
	return net.HardwareAddr(a.Device[:]).String() + "/" + strconv.Itoa(int(a.Channel))
}

// Provider connects to RFCOMM services.
type Provider struct {
	logger comm.Logger
}

// New creates an RFCOMM provider. A nil logger means slog.Default().
func New(logger comm.Logger) *Provider {
	if logger == nil {
		logger = defaultLogger()
	}
	return &Provider{logger: logger}
}
