// Package tcp opens sessions over TCP. Players on the local network can be
// found through mDNS.
package tcp

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/pkg/errors"

	"github.com/Zereker/comm"
)

// MDNSPrefix marks an address that names an mDNS service instead of a
// host, as in "mdns:_remuco._tcp".
const MDNSPrefix = "mdns:"

const (
	defaultDialTimeout   = 5 * time.Second
	defaultLookupTimeout = 3 * time.Second
)

// Provider dials "host:port" addresses, or resolves "mdns:<service>" to the
// first player that answers.
type Provider struct {
	dialTimeout   time.Duration
	lookupTimeout time.Duration
	logger        comm.Logger

	query func(context.Context, *mdns.QueryParam) error
}

// Option configures a Provider.
type Option func(*Provider)

// DialTimeoutOption bounds each dial attempt.
func DialTimeoutOption(timeout time.Duration) Option {
	return func(p *Provider) {
		p.dialTimeout = timeout
	}
}

// LookupTimeoutOption bounds each mDNS lookup.
func LookupTimeoutOption(timeout time.Duration) Option {
	return func(p *Provider) {
		p.lookupTimeout = timeout
	}
}

// LoggerOption sets the logger.
func LoggerOption(logger comm.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// New creates a TCP provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		dialTimeout:   defaultDialTimeout,
		lookupTimeout: defaultLookupTimeout,
		query:         mdns.QueryContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Open implements comm.Provider.
func (p *Provider) Open(ctx context.Context, address string) (io.ReadWriteCloser, error) {
	if service, ok := strings.CutPrefix(address, MDNSPrefix); ok {
		if service == "" {
			return nil, errors.Wrap(comm.ErrFatalTransport, "empty mdns service name")
		}
		resolved, err := p.resolve(ctx, service)
		if err != nil {
			return nil, err
		}
		address = resolved
	}

	if _, _, err := net.SplitHostPort(address); err != nil {
		return nil, errors.Wrapf(comm.ErrFatalTransport, "address %q: %v", address, err)
	}

	dialer := net.Dialer{Timeout: p.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", address)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
	p.logger.Debug("connected", "addr", conn.RemoteAddr())
	return conn, nil
}

// resolve returns host:port of the first IPv4 instance of service.
func (p *Provider) resolve(ctx context.Context, service string) (string, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	params := mdns.DefaultParams(service)
	params.Entries = entries
	params.Timeout = p.lookupTimeout
	params.DisableIPv6 = true

	done := make(chan error, 1)
	go func() {
		done <- p.query(ctx, params)
		close(entries)
	}()

	var found *mdns.ServiceEntry
	var err error
	for collecting := true; collecting; {
		select {
		case <-ctx.Done():
			// mdns never blocks on Entries, so the query goroutine still exits
			return "", ctx.Err()
		case entry, ok := <-entries:
			if !ok {
				err = <-done
				collecting = false
				break
			}
			if found == nil && entry.AddrV4 != nil && entry.Port > 0 {
				found = entry
			}
		}
	}

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if found == nil {
		if err != nil {
			return "", errors.Wrapf(err, "mdns lookup %s", service)
		}
		return "", errors.Errorf("no player announces %s", service)
	}
	p.logger.Info("player discovered", "name", found.Name, "host", found.AddrV4, "port", found.Port)
	return net.JoinHostPort(found.AddrV4.String(), strconv.Itoa(found.Port)), nil
}
