// Package sdlerrors defines the error taxonomy applications observe from
// the SDL client runtime: a small set of exception Kinds, the mapping
// from dispatcher-level error codes onto them, and a distinct
// ConfigurationError type for failures at resolver init time.
package sdlerrors

import (
	"errors"
	"fmt"
)

// Kind is a user-visible exception category, in the priority order
// the taxonomy below lists them.
type Kind int

const (
	// RejectedBySDL means the request violated a client-side invariant:
	// invalid namespace, readiness timeout, a nil callback posted.
	RejectedBySDL Kind = iota
	// NotConnected means the backend endpoint for the namespace is
	// currently unknown: discovery has not published, or has withdrawn.
	NotConnected
	// OperationInterrupted means the connection dropped mid-command;
	// the outcome is indeterminate but safe to retry for idempotent ops.
	OperationInterrupted
	// RejectedByBackend means the backend returned a protocol-level
	// refusal (bad command, wrong slot, and similar).
	RejectedByBackend
	// BackendError is any other backend-reported failure (I/O, OOM,
	// writing-to-slave).
	BackendError
)

func (k Kind) String() string {
	switch k {
	case RejectedBySDL:
		return "REJECTED_BY_SDL"
	case NotConnected:
		return "NOT_CONNECTED"
	case OperationInterrupted:
		return "OPERATION_INTERRUPTED"
	case RejectedByBackend:
		return "REJECTED_BY_BACKEND"
	case BackendError:
		return "BACKEND_ERROR"
	default:
		return "UNKNOWN_SDL_ERROR"
	}
}

// SDLError is the single exception type applications observe from a
// failed SDL operation, sync or async.
type SDLError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *SDLError) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *SDLError) Unwrap() error { return e.Cause }

// New builds an SDLError of the given kind with a message.
func New(kind Kind, message string) *SDLError {
	return &SDLError{Kind: kind, Message: message}
}

// Wrap builds an SDLError of the given kind, chaining cause.
func Wrap(kind Kind, message string, cause error) *SDLError {
	return &SDLError{Kind: kind, Message: message, Cause: cause}
}

// ConfigurationError reports a fatal failure resolving configuration:
// malformed JSON, a missing or invalid field, an unknown DbType string,
// or an unparseable address. Distinct from SDLError since it is not a
// per-operation failure.
type ConfigurationError struct {
	SourceName string
	Path       string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("configuration error in %s: %s", e.SourceName, e.Reason)
	}
	return fmt.Sprintf("configuration error in %s: %q: %s", e.SourceName, e.Path, e.Reason)
}

// DispatcherCode is the closed enumeration of errors a Dispatcher may
// report on a command completion.
type DispatcherCode int

const (
	Success DispatcherCode = iota
	UnknownError
	ConnectionLost
	ProtocolError
	OutOfMemory
	DatasetLoading
	NotConnectedCode
	IOError
	WritingToSlave
)

// FromDispatcherCode implements the dispatcher-code-to-Kind mapping table.
// Returns nil for Success.
func FromDispatcherCode(code DispatcherCode, detail string) error {
	switch code {
	case Success:
		return nil
	case UnknownError:
		return New(BackendError, detail)
	case ConnectionLost:
		return New(OperationInterrupted, detail)
	case ProtocolError:
		return New(RejectedByBackend, detail)
	case OutOfMemory:
		return New(BackendError, detail)
	case DatasetLoading:
		return New(NotConnected, detail)
	case NotConnectedCode:
		return New(NotConnected, detail)
	case IOError:
		return New(BackendError, detail)
	case WritingToSlave:
		return New(BackendError, detail)
	default:
		return New(BackendError, detail)
	}
}

// AsSDLError reports whether err is (or wraps) an *SDLError, mirroring
// a WrapError/errors.Is-friendly style.
func AsSDLError(err error) (*SDLError, bool) {
	var target *SDLError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
