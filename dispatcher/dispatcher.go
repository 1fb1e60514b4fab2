// Package dispatcher defines the narrow contract the core consumes to
// issue commands against one backend connection (or cluster pool): the
// wire protocol and connection management live entirely outside this
// module, behind this interface.
package dispatcher

import "github.com/nearrt-ric/sdl-go/sdlerrors"

// Reply is the opaque result of one command, interpreted by the caller.
type Reply struct {
	Values [][]byte
	Err    error
}

// CompletionFunc is invoked exactly once per submitted command, unless
// the Dispatcher is closed with the command still in flight, in which
// case it is never invoked.
type CompletionFunc func(Reply)

// Command is one command issuance request: an opaque argument vector
// plus an optional routing key used for cluster slot selection.
type Command struct {
	Args []Args
	Key  string // empty when routing doesn't apply
}

// Args is one argument in a command's byte-vector sequence.
type Args = []byte

// Dispatcher issues commands against one logical backend endpoint.
// Disconnection/reconnection is reported out-of-band through a
// Discovery implementation, never through a command's CompletionFunc.
type Dispatcher interface {
	// Submit issues cmd, invoking done with the result exactly once
	// (barring Close racing the in-flight command).
	Submit(cmd Command, done CompletionFunc)
	// Close releases the connection. In-flight commands are dropped
	// silently, per the at-most-once completion guarantee.
	Close() error
}

// CodeToError is a convenience wrapper turning a dispatcher-reported
// error code into the taxonomy sdlerrors defines.
func CodeToError(code sdlerrors.DispatcherCode, detail string) error {
	return sdlerrors.FromDispatcherCode(code, detail)
}
