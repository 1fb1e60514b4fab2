// Package sdllog wires the SDL client runtime's components to a
// github.com/joeycumines/logiface logger fronting github.com/rs/zerolog,
// the same logging stack other components in this module use via its
// logiface-zerolog adapter. Logging is opt-in: every component defaults
// to a disabled logger and callers attach a real sink with WithLogger.
package sdllog

import (
	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Event is the concrete logiface event type used throughout this module.
type Event = izerolog.Event

// Logger is the logger type every SDL component accepts.
type Logger = *logiface.Logger[*Event]

// Disabled returns a logger that discards everything, the default every
// component starts with.
func Disabled() Logger {
	return izerolog.L.New(izerolog.L.WithZerolog(zerolog.Nop()))
}

// New wraps an application-provided zerolog.Logger for use by SDL
// components.
func New(z zerolog.Logger) Logger {
	return izerolog.L.New(izerolog.L.WithZerolog(z))
}

// OrDisabled returns l, or a Disabled logger if l is nil. Components call
// this on the logger they were constructed with so a zero-value option
// never results in a nil-pointer log call.
func OrDisabled(l Logger) Logger {
	if l == nil {
		return Disabled()
	}
	return l
}
