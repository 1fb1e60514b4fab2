package storage

import (
	"sync"

	"github.com/nearrt-ric/sdl-go/discovery"
	"github.com/nearrt-ric/sdl-go/dispatcher"
	"github.com/nearrt-ric/sdl-go/internal/engine"
	"github.com/nearrt-ric/sdl-go/sdltypes"
)

// shardHandle is one discovered backend endpoint: a Discovery tracking
// its live address plus the Dispatcher issuing commands against it.
type shardHandle struct {
	discovery discovery.Discovery
	dispatcher dispatcher.Dispatcher

	mu      sync.Mutex
	ready   bool
	waiters []func()
}

func newShardHandle(eng *engine.Engine, disc discovery.Discovery, disp dispatcher.Dispatcher) *shardHandle {
	sh := &shardHandle{discovery: disc, dispatcher: disp}
	disc.SetStateChangedCB(func(sdltypes.DatabaseInfo) {
		sh.mu.Lock()
		sh.ready = true
		waiters := sh.waiters
		sh.waiters = nil
		sh.mu.Unlock()

		for _, w := range waiters {
			w()
		}
	})
	return sh
}

// whenReady invokes cb (via PostCallback, so it always runs on the
// engine loop) once this shard has a published DatabaseInfo, now or
// later.
func (sh *shardHandle) whenReady(eng *engine.Engine, cb func()) {
	sh.mu.Lock()
	if sh.ready {
		sh.mu.Unlock()
		eng.PostCallback(cb)
		return
	}
	sh.waiters = append(sh.waiters, cb)
	sh.mu.Unlock()
}

// checkReady reports whether the shard is ready. If not, onNotReady is
// scheduled on the engine loop with a not-yet-discovered error and
// checkReady returns false; callers must not proceed with the
// operation in that case.
func (sh *shardHandle) checkReady(eng *engine.Engine, onNotReady func(error)) bool {
	sh.mu.Lock()
	ready := sh.ready
	sh.mu.Unlock()
	if ready {
		return true
	}
	eng.PostCallback(func() { onNotReady(notYetDiscovered()) })
	return false
}
