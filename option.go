package comm

import (
	"time"

	"github.com/Zereker/comm/data"
	"github.com/Zereker/comm/serial"
)

// ProtocolVersion is the protocol version this client speaks.
const ProtocolVersion byte = 0x0A

// Default configuration values.
const (
	// defaultHandshakeTimeout bounds the wait for the server hello.
	defaultHandshakeTimeout = 2 * time.Second
	// defaultMaxPayloadLength is the default maximum size of a single payload (1MB).
	defaultMaxPayloadLength = 1024 * 1024
	// defaultRetryInterval is the delay between connection attempts.
	defaultRetryInterval = 10 * time.Second
)

// options holds the configuration for a connection.
type options struct {
	logger Logger

	version          byte
	handshakeTimeout time.Duration
	heartbeat        time.Duration // read deadline is heartbeat * 2, 0 disables it
	maxPayloadLength int           // larger payloads are drained and ignored

	registry   *data.Registry
	clientInfo serial.Serializable

	// onDisconnect is called at most once, when an established connection
	// goes down for any reason other than Close.
	onDisconnect func(error)
}

// Option is a function that configures connection options.
type Option func(*options)

// ProtocolVersionOption sets the protocol version expected in the server hello.
func ProtocolVersionOption(version byte) Option {
	return func(o *options) {
		o.version = version
	}
}

// HandshakeTimeoutOption sets how long to wait for the server hello.
func HandshakeTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.handshakeTimeout = timeout
	}
}

// HeartbeatOption returns an Option that sets the heartbeat interval.
// When the stream supports deadlines, each frame must arrive within
// heartbeat * 2. The default of 0 waits forever.
func HeartbeatOption(heartbeat time.Duration) Option {
	return func(o *options) {
		o.heartbeat = heartbeat
	}
}

// MessageMaxSize returns an Option that sets the maximum payload size.
// Larger payloads are skipped rather than buffered.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxPayloadLength = size
	}
}

// RegistryOption sets the schema registry used to check outgoing records
// and decode incoming ones.
func RegistryOption(registry *data.Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// ClientInfoOption sets the record sent to the server during the handshake.
func ClientInfoOption(info serial.Serializable) Option {
	return func(o *options) {
		o.clientInfo = info
	}
}

// OnDisconnectOption sets the callback invoked when an established
// connection is lost.
func OnDisconnectOption(cb func(error)) Option {
	return func(o *options) {
		o.onDisconnect = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// checkOptions sets default values for unset connection options.
func checkOptions(opts *options) {
	if opts.version == 0 {
		opts.version = ProtocolVersion
	}

	if opts.handshakeTimeout <= 0 {
		opts.handshakeTimeout = defaultHandshakeTimeout
	}

	if opts.maxPayloadLength <= 0 {
		opts.maxPayloadLength = defaultMaxPayloadLength
	}

	if opts.registry == nil {
		opts.registry = data.DefaultRegistry()
	}

	if opts.clientInfo == nil {
		opts.clientInfo = data.NewClientInfo()
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
}

// CommunicatorOption configures a Communicator.
type CommunicatorOption func(*Communicator)

// RetryIntervalOption sets the delay between connection attempts.
func RetryIntervalOption(interval time.Duration) CommunicatorOption {
	return func(c *Communicator) {
		c.retryInterval = interval
	}
}

// ConnOptions sets the options of every connection the Communicator opens.
func ConnOptions(opts ...Option) CommunicatorOption {
	return func(c *Communicator) {
		c.connOpts = append(c.connOpts, opts...)
	}
}

// CommunicatorLoggerOption sets the logger of the Communicator. Connections
// use the same logger unless ConnOptions sets another one.
func CommunicatorLoggerOption(logger Logger) CommunicatorOption {
	return func(c *Communicator) {
		c.logger = logger
	}
}
