package comm

// Listener receives session events from a Communicator. All callbacks run
// on the Communicator's manager goroutine, one at a time and in order.
// A callback must not call Disconnect synchronously.
type Listener interface {
	// OnConnected is called after a successful handshake with the
	// player's description.
	OnConnected(peer *Message)
	// OnDisconnected is called when a connection attempt failed or an
	// established connection was lost. The Communicator keeps retrying.
	OnDisconnected(reason string, err error)
	// OnError is called for failures that stop the Communicator.
	OnError(reason string, err error)
	// OnMessage is called for each message received while connected.
	OnMessage(msg *Message)
}

// Reasons passed to Listener callbacks.
const (
	ReasonConnectFailed       = "Could not connect to server - retrying"
	ReasonConnectionLost      = "Connection to server lost - reconnecting"
	ReasonServerShutdown      = "Server shut down"
	ReasonIncompatibleVersion = "Server uses an incompatible protocol version"
	ReasonBadAddress          = "Bad device address"
)
