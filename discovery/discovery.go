// Package discovery implements the three backend-discovery variants:
// Direct and Cluster publish a single static DatabaseInfo once, while
// Sentinel runs a subscribe/inquire state machine against a redis
// sentinel to track the current master address.
package discovery

import (
	"sync"

	"github.com/nearrt-ric/sdl-go/internal/engine"
	"github.com/nearrt-ric/sdl-go/sdltypes"
)

// StateChangedFunc receives every DatabaseInfo a Discovery publishes.
// It is always invoked on the engine loop goroutine, never inline from
// SetStateChangedCB.
type StateChangedFunc func(sdltypes.DatabaseInfo)

// Discovery publishes the set of live backend endpoints for one shard.
type Discovery interface {
	// SetStateChangedCB registers cb, scheduling an immediate callback
	// on the engine loop with the current DatabaseInfo if one has
	// already been published.
	SetStateChangedCB(cb StateChangedFunc)
	// ClearStateChangedCB unregisters any callback previously set.
	ClearStateChangedCB()
}

// publisher is the shared plumbing every Discovery implementation
// embeds: a mutex-guarded callback slot plus the last-published value,
// used to implement both "publish current value immediately on
// SetStateChangedCB" and republish suppression.
type publisher struct {
	eng *engine.Engine

	mu      sync.Mutex
	cb      StateChangedFunc
	current sdltypes.DatabaseInfo
	known   bool
}

func newPublisher(eng *engine.Engine) publisher {
	return publisher{eng: eng}
}

// SetStateChangedCB implements Discovery.
func (p *publisher) SetStateChangedCB(cb StateChangedFunc) {
	p.mu.Lock()
	p.cb = cb
	info, known := p.current, p.known
	p.mu.Unlock()

	if cb == nil || !known {
		return
	}
	p.eng.PostCallback(func() { cb(info) })
}

// ClearStateChangedCB implements Discovery.
func (p *publisher) ClearStateChangedCB() {
	p.mu.Lock()
	p.cb = nil
	p.mu.Unlock()
}

// publish records info as the latest snapshot and, unless it is
// identical to the previously published value, schedules the
// registered callback (if any) on the engine loop.
func (p *publisher) publish(info sdltypes.DatabaseInfo) {
	p.mu.Lock()
	suppressed := p.known && p.current.Equal(info)
	p.current = info
	p.known = true
	cb := p.cb
	p.mu.Unlock()

	if suppressed || cb == nil {
		return
	}
	p.eng.PostCallback(func() { cb(info) })
}
