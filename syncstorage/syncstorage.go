// Package syncstorage wraps AsyncStorage in a blocking façade: every
// method drives the engine's own poll loop to completion before
// returning, so callers never see a callback or touch the engine
// directly. Built for request-response call sites that would rather
// block a goroutine than thread a callback through their own code.
package syncstorage

import (
	"fmt"
	"time"

	"github.com/nearrt-ric/sdl-go/internal/sysiface"
	"github.com/nearrt-ric/sdl-go/sdlerrors"
	"github.com/nearrt-ric/sdl-go/sdllog"
	"github.com/nearrt-ric/sdl-go/sdltypes"
	"github.com/nearrt-ric/sdl-go/storage"
)

// SyncStorage is the blocking façade over AsyncStorage.
type SyncStorage struct {
	async *storage.AsyncStorage
	sys   sysiface.System
	log   sdllog.Logger

	timeout time.Duration // 0 disables the readiness bound: WaitReady blocks until ready
}

// New wraps async. sys must be the same System the engine underlying
// async was constructed with, since SyncStorage polls its fd directly.
func New(async *storage.AsyncStorage, sys sysiface.System, opts ...Option) *SyncStorage {
	cfg := resolveOptions(opts)
	return &SyncStorage{
		async: async,
		sys:   sys,
		log:   sdllog.OrDisabled(cfg.logger),
	}
}

// SetOperationTimeout bounds how long the readiness wait every
// operation performs may take before failing with RejectedBySDL. Zero
// disables the bound.
func (s *SyncStorage) SetOperationTimeout(d time.Duration) {
	s.timeout = d
}

func (s *SyncStorage) fdEntry() []sysiface.PollEntry {
	return []sysiface.PollEntry{{FD: s.async.FD(), Events: sysiface.Readable}}
}

// handlePendingEvents drains every already-ready engine event without
// blocking, so an operation never waits on work that already happened.
func (s *SyncStorage) handlePendingEvents() {
	for {
		results, _ := s.sys.Poll(s.fdEntry(), 0)
		if len(results) == 0 {
			return
		}
		s.async.HandleEvents()
	}
}

// pollAndHandleEvents blocks up to timeout for engine activity,
// dispatching it if any arrived. A negative timeout blocks
// indefinitely.
func (s *SyncStorage) pollAndHandleEvents(timeout time.Duration) {
	results, _ := s.sys.Poll(s.fdEntry(), timeout)
	if len(results) > 0 {
		s.async.HandleEvents()
	}
}

// waitForOperationCallback blocks, servicing engine events, until done
// reports the operation's completion callback has fired.
func (s *SyncStorage) waitForOperationCallback(done func() bool) {
	for !done() {
		s.pollAndHandleEvents(-1)
	}
}

// waitSdlToBeReady blocks until ns's backend has been discovered, or
// timeout elapses (checked every timeout/10); timeout of zero blocks
// without a bound. Reports whether readiness was confirmed in time and
// the error the readiness callback itself carried, if any.
func (s *SyncStorage) waitSdlToBeReady(ns string, timeout time.Duration) (acked bool, err error) {
	s.async.WaitReady(ns, func(e error) { acked = true; err = e })

	if timeout == 0 {
		for !acked {
			s.pollAndHandleEvents(-1)
		}
		return true, err
	}

	pollTimeout := timeout / 10
	deadline := s.sys.SteadyNow().Add(timeout)
	for !acked && s.sys.SteadyNow().Before(deadline) {
		s.pollAndHandleEvents(pollTimeout)
	}
	return acked, err
}

// ensureReady drains pending events, then blocks on readiness for ns
// within the configured operation timeout.
func (s *SyncStorage) ensureReady(ns string) error {
	s.handlePendingEvents()
	acked, err := s.waitSdlToBeReady(ns, s.timeout)
	if !acked {
		return sdlerrors.New(sdlerrors.RejectedBySDL, fmt.Sprintf("timeout, SDL service not ready for the %q namespace", ns))
	}
	return err
}

// WaitReady blocks until ns's backend has been discovered, or the
// operation timeout elapses.
func (s *SyncStorage) WaitReady(ns string) error {
	return s.ensureReady(ns)
}

// Set writes every pair in data.
func (s *SyncStorage) Set(ns string, data sdltypes.DataMap) error {
	if err := s.ensureReady(ns); err != nil {
		return err
	}
	synced := false
	var opErr error
	s.async.Set(ns, data, func(err error) { synced = true; opErr = err })
	s.waitForOperationCallback(func() bool { return synced })
	return opErr
}

// SetIf performs a conditional write: succeeds with status=true iff the
// stored value currently equals old.
func (s *SyncStorage) SetIf(ns, key string, old, newValue sdltypes.Data) (bool, error) {
	if err := s.ensureReady(ns); err != nil {
		return false, err
	}
	synced := false
	var status bool
	var opErr error
	s.async.SetIf(ns, key, old, newValue, func(ok bool, err error) { synced = true; status, opErr = ok, err })
	s.waitForOperationCallback(func() bool { return synced })
	return status, opErr
}

// SetIfNotExists sets key to value iff it is currently absent.
func (s *SyncStorage) SetIfNotExists(ns, key string, value sdltypes.Data) (bool, error) {
	if err := s.ensureReady(ns); err != nil {
		return false, err
	}
	synced := false
	var status bool
	var opErr error
	s.async.SetIfNotExists(ns, key, value, func(ok bool, err error) { synced = true; status, opErr = ok, err })
	s.waitForOperationCallback(func() bool { return synced })
	return status, opErr
}

// Get returns a DataMap containing only the keys that exist.
func (s *SyncStorage) Get(ns string, keys sdltypes.Keys) (sdltypes.DataMap, error) {
	if err := s.ensureReady(ns); err != nil {
		return nil, err
	}
	synced := false
	var data sdltypes.DataMap
	var opErr error
	s.async.Get(ns, keys, func(d sdltypes.DataMap, err error) { synced = true; data, opErr = d, err })
	s.waitForOperationCallback(func() bool { return synced })
	return data, opErr
}

// Remove deletes the given keys; missing keys are not an error.
func (s *SyncStorage) Remove(ns string, keys sdltypes.Keys) error {
	if err := s.ensureReady(ns); err != nil {
		return err
	}
	synced := false
	var opErr error
	s.async.Remove(ns, keys, func(err error) { synced = true; opErr = err })
	s.waitForOperationCallback(func() bool { return synced })
	return opErr
}

// RemoveIf conditionally deletes key iff its stored value equals data.
func (s *SyncStorage) RemoveIf(ns, key string, data sdltypes.Data) (bool, error) {
	if err := s.ensureReady(ns); err != nil {
		return false, err
	}
	synced := false
	var status bool
	var opErr error
	s.async.RemoveIf(ns, key, data, func(ok bool, err error) { synced = true; status, opErr = ok, err })
	s.waitForOperationCallback(func() bool { return synced })
	return status, opErr
}

// FindKeys returns every key in ns whose name starts with prefix.
func (s *SyncStorage) FindKeys(ns, prefix string) (sdltypes.Keys, error) {
	if err := s.ensureReady(ns); err != nil {
		return nil, err
	}
	synced := false
	var keys sdltypes.Keys
	var opErr error
	s.async.FindKeys(ns, prefix, func(k sdltypes.Keys, err error) { synced = true; keys, opErr = k, err })
	s.waitForOperationCallback(func() bool { return synced })
	return keys, opErr
}

// ListKeys returns every key in ns matching a glob pattern.
func (s *SyncStorage) ListKeys(ns, pattern string) (sdltypes.Keys, error) {
	if err := s.ensureReady(ns); err != nil {
		return nil, err
	}
	synced := false
	var keys sdltypes.Keys
	var opErr error
	s.async.ListKeys(ns, pattern, func(k sdltypes.Keys, err error) { synced = true; keys, opErr = k, err })
	s.waitForOperationCallback(func() bool { return synced })
	return keys, opErr
}

// RemoveAll deletes every key in ns.
func (s *SyncStorage) RemoveAll(ns string) error {
	if err := s.ensureReady(ns); err != nil {
		return err
	}
	synced := false
	var opErr error
	s.async.RemoveAll(ns, func(err error) { synced = true; opErr = err })
	s.waitForOperationCallback(func() bool { return synced })
	return opErr
}
