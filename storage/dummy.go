package storage

import (
	"github.com/nearrt-ric/sdl-go/internal/engine"
	"github.com/nearrt-ric/sdl-go/sdltypes"
)

// dummyHandler backs namespaces the configuration table marks as
// backend-disabled: every operation succeeds trivially without ever
// touching a real endpoint, matching a pure no-op storage handler.
type dummyHandler struct {
	eng *engine.Engine
}

func newDummyHandler(eng *engine.Engine) *dummyHandler {
	return &dummyHandler{eng: eng}
}

func (d *dummyHandler) waitReady(cb WaitReadyFunc) {
	d.eng.PostCallback(func() { cb(nil) })
}

func (d *dummyHandler) set(cb ModifyFunc) {
	d.eng.PostCallback(func() { cb(nil) })
}

func (d *dummyHandler) setIf(cb ModifyIfFunc) {
	d.eng.PostCallback(func() { cb(true, nil) })
}

func (d *dummyHandler) setIfNotExists(cb ModifyIfFunc) {
	d.eng.PostCallback(func() { cb(true, nil) })
}

func (d *dummyHandler) get(cb GetFunc) {
	d.eng.PostCallback(func() { cb(sdltypes.DataMap{}, nil) })
}

func (d *dummyHandler) findKeys(cb FindKeysFunc) {
	d.eng.PostCallback(func() { cb(sdltypes.Keys{}, nil) })
}
