// Package storage implements the namespace router: AsyncStorage selects
// a per-namespace backend handler (a live shard, or a no-op dummy when
// the namespace table disables the backend), shards namespaces across
// multiple discovered endpoints by CRC32, and rewrites keys into the
// "{ns},key" form that makes cluster slot hashing namespace-consistent.
package storage

import (
	"fmt"
	"hash/crc32"

	"github.com/nearrt-ric/sdl-go/discovery"
	"github.com/nearrt-ric/sdl-go/dispatcher"
	"github.com/nearrt-ric/sdl-go/internal/engine"
	"github.com/nearrt-ric/sdl-go/nsconfig"
	"github.com/nearrt-ric/sdl-go/sdlerrors"
	"github.com/nearrt-ric/sdl-go/sdllog"
	"github.com/nearrt-ric/sdl-go/sdltypes"
)

// WaitReadyFunc is invoked once wait_ready completes.
type WaitReadyFunc func(error)

// ModifyFunc is invoked once an unconditional write (set, remove,
// remove_all) completes.
type ModifyFunc func(error)

// ModifyIfFunc is invoked once a conditional write (set_if,
// set_if_not_exists, remove_if) completes; status reports whether the
// condition held.
type ModifyIfFunc func(status bool, err error)

// GetFunc is invoked once a get completes.
type GetFunc func(sdltypes.DataMap, error)

// FindKeysFunc is invoked once find_keys or list_keys completes.
type FindKeysFunc func(sdltypes.Keys, error)

// DispatcherFactory constructs a Dispatcher against host. Connection
// management is entirely the factory's concern; AsyncStorage only
// issues commands through the returned interface.
type DispatcherFactory func(host sdltypes.HostAndPort) dispatcher.Dispatcher

// AsyncStorage is the namespace router façade: every operation resolves
// its namespace to either a shard (a discovered backend endpoint) or
// the dummy handler, then issues one command and translates the result.
type AsyncStorage struct {
	eng     *engine.Engine
	log     sdllog.Logger
	nsTable *nsconfig.Table
	dbType  sdltypes.DbType
	shards  []*shardHandle
	dummy   *dummyHandler
}

// New constructs an AsyncStorage, building one shard per host for
// sharded DbTypes and a single shard otherwise, wiring each shard's
// Discovery and Dispatcher according to dbConfig.Type.
func New(eng *engine.Engine, dbConfig sdltypes.DatabaseConfiguration, nsTable *nsconfig.Table, newDispatcher DispatcherFactory, opts ...Option) *AsyncStorage {
	cfg := resolveOptions(opts)
	log := sdllog.OrDisabled(cfg.logger)

	as := &AsyncStorage{
		eng:     eng,
		log:     log,
		nsTable: nsTable,
		dbType:  dbConfig.Type,
		dummy:   newDummyHandler(eng),
	}

	switch {
	case dbConfig.Type.Sharded():
		for i, host := range dbConfig.Hosts {
			as.shards = append(as.shards, as.buildShard(dbConfig, i, host, newDispatcher, log))
		}
	case dbConfig.Type.Sentineled():
		as.shards = []*shardHandle{as.buildShard(dbConfig, 0, sdltypes.HostAndPort{}, newDispatcher, log)}
	case dbConfig.Type == sdltypes.DbCluster:
		disp := newDispatcher(dbConfig.Hosts[0])
		disc := discovery.NewCluster(eng, dbConfig.Hosts, "")
		as.shards = []*shardHandle{newShardHandle(eng, disc, disp)}
	default: // DbStandalone, or DbUnknown treated as a single unreachable shard
		var host sdltypes.HostAndPort
		if len(dbConfig.Hosts) > 0 {
			host = dbConfig.Hosts[0]
		}
		disp := newDispatcher(host)
		disc := discovery.NewDirect(eng, host, "")
		as.shards = []*shardHandle{newShardHandle(eng, disc, disp)}
	}
	return as
}

func (as *AsyncStorage) buildShard(dbConfig sdltypes.DatabaseConfiguration, idx int, host sdltypes.HostAndPort, newDispatcher DispatcherFactory, log sdllog.Logger) *shardHandle {
	if dbConfig.Type.Sentineled() {
		addr, _ := dbConfig.SentinelAddress(idx)
		masterName := dbConfig.SentinelMasterName(idx)
		subscriber := newDispatcher(addr)
		requester := newDispatcher(addr)
		disc := discovery.NewSentinel(as.eng, subscriber, requester, masterName, "", discovery.WithLogger(log))
		return newShardHandle(as.eng, disc, requester)
	}
	disp := newDispatcher(host)
	disc := discovery.NewDirect(as.eng, host, "")
	return newShardHandle(as.eng, disc, disp)
}

// FD returns the OS-visible fd a sync wrapper polls externally to know
// when HandleEvents has work to do.
func (as *AsyncStorage) FD() int { return as.eng.FD() }

// HandleEvents drains whatever engine work is currently ready: due
// timers, the cross-thread inbox, and already-ready monitored fds.
// Intended for a sync wrapper driving its own blocking poll loop.
func (as *AsyncStorage) HandleEvents() { as.eng.HandleEvents() }

// Close clears every shard's discovery callback and closes every
// shard's dispatcher, so a command still in flight at a dispatcher
// never completes after Close returns. Callbacks already queued on the
// engine loop before Close (dummy-handler replies, not-ready and
// invalid-namespace errors, readiness notifications) still run on the
// next drain.
func (as *AsyncStorage) Close() error {
	var firstErr error
	for _, sh := range as.shards {
		sh.discovery.ClearStateChangedCB()
		if err := sh.dispatcher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// shardCount reports how many shards ns could ever route to, for
// shard-index computation.
func (as *AsyncStorage) shardCount() int {
	if len(as.shards) == 0 {
		return 1
	}
	return len(as.shards)
}

// shardFor returns the shard namespace ns routes to: crc32(ns) mod
// shard_count, stable across runs.
func (as *AsyncStorage) shardFor(ns string) *shardHandle {
	idx := int(crc32.ChecksumIEEE([]byte(ns)) % uint32(as.shardCount()))
	return as.shards[idx]
}

// handlerFor implements the dummy_handler/router_handler selection
// rule: the dummy handler is used whenever the namespace table marks
// the backend disabled for ns (or ns matches no entry at all).
func (as *AsyncStorage) handlerFor(ns string) (*shardHandle, bool) {
	entry, ok := as.nsTable.Lookup(ns)
	if !ok || !entry.UseBackend {
		return nil, false
	}
	return as.shardFor(ns), true
}

// checkNamespace gates every operation on namespace syntax: ns must be
// non-empty and free of DisallowedNamespaceChars, since those
// characters would corrupt the "{ns},key" prefix. Invalid namespaces
// never reach the dummy handler or a shard; onInvalid is scheduled on
// the engine loop with a RejectedBySDL error, matching every other
// asynchronous failure path.
func (as *AsyncStorage) checkNamespace(ns string, onInvalid func(error)) bool {
	if sdltypes.ValidNamespaceSyntax(ns) {
		return true
	}
	as.eng.PostCallback(func() { onInvalid(invalidNamespace(ns)) })
	return false
}

// invalidNamespace is returned by any operation issued against a
// namespace that fails sdltypes.ValidNamespaceSyntax.
func invalidNamespace(ns string) error {
	return sdlerrors.New(sdlerrors.RejectedBySDL, fmt.Sprintf("invalid namespace %q", ns))
}

func prefixKey(ns, key string) string {
	return fmt.Sprintf("{%s},%s", ns, key)
}

func prefixPattern(ns, pattern string) string {
	return fmt.Sprintf("{%s},%s", ns, pattern)
}

func stripPrefix(ns string, key []byte) string {
	prefix := fmt.Sprintf("{%s},", ns)
	s := string(key)
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}

// WaitReady completes once the shard handling ns has published a
// DatabaseInfo, or immediately for a namespace routed to the dummy
// handler.
func (as *AsyncStorage) WaitReady(ns string, cb WaitReadyFunc) {
	if !as.checkNamespace(ns, cb) {
		return
	}
	sh, ok := as.handlerFor(ns)
	if !ok {
		as.dummy.waitReady(cb)
		return
	}
	sh.whenReady(as.eng, func() { cb(nil) })
}

// Set writes every pair in data. No atomicity across keys is
// guaranteed.
func (as *AsyncStorage) Set(ns string, data sdltypes.DataMap, cb ModifyFunc) {
	if !as.checkNamespace(ns, cb) {
		return
	}
	sh, ok := as.handlerFor(ns)
	if !ok {
		as.dummy.set(cb)
		return
	}
	if !sh.checkReady(as.eng, func(err error) { cb(err) }) {
		return
	}
	args := make([]dispatcher.Args, 0, 1+2*len(data))
	args = append(args, []byte("MSET"))
	for k, v := range data {
		args = append(args, []byte(prefixKey(ns, k)), v)
	}
	sh.dispatcher.Submit(dispatcher.Command{Args: args, Key: ns}, func(reply dispatcher.Reply) {
		cb(reply.Err)
	})
}

// SetIf performs a conditional write: succeeds with status=true iff the
// stored value currently equals old.
func (as *AsyncStorage) SetIf(ns, key string, old, newValue sdltypes.Data, cb ModifyIfFunc) {
	if !as.checkNamespace(ns, func(err error) { cb(false, err) }) {
		return
	}
	sh, ok := as.handlerFor(ns)
	if !ok {
		as.dummy.setIf(cb)
		return
	}
	if !sh.checkReady(as.eng, func(err error) { cb(false, err) }) {
		return
	}
	args := []dispatcher.Args{[]byte("SETIE"), []byte(prefixKey(ns, key)), newValue, old}
	sh.dispatcher.Submit(dispatcher.Command{Args: args, Key: ns}, func(reply dispatcher.Reply) {
		cb(parseStatus(reply), reply.Err)
	})
}

// SetIfNotExists sets key to value iff it is currently absent.
func (as *AsyncStorage) SetIfNotExists(ns, key string, value sdltypes.Data, cb ModifyIfFunc) {
	if !as.checkNamespace(ns, func(err error) { cb(false, err) }) {
		return
	}
	sh, ok := as.handlerFor(ns)
	if !ok {
		as.dummy.setIfNotExists(cb)
		return
	}
	if !sh.checkReady(as.eng, func(err error) { cb(false, err) }) {
		return
	}
	args := []dispatcher.Args{[]byte("SETNX"), []byte(prefixKey(ns, key)), value}
	sh.dispatcher.Submit(dispatcher.Command{Args: args, Key: ns}, func(reply dispatcher.Reply) {
		cb(parseStatus(reply), reply.Err)
	})
}

// Get returns a DataMap containing only the keys that exist.
func (as *AsyncStorage) Get(ns string, keys sdltypes.Keys, cb GetFunc) {
	if !as.checkNamespace(ns, func(err error) { cb(nil, err) }) {
		return
	}
	sh, ok := as.handlerFor(ns)
	if !ok {
		as.dummy.get(cb)
		return
	}
	if !sh.checkReady(as.eng, func(err error) { cb(nil, err) }) {
		return
	}
	args := make([]dispatcher.Args, 0, 1+len(keys))
	args = append(args, []byte("MGET"))
	for _, k := range keys {
		args = append(args, []byte(prefixKey(ns, k)))
	}
	sh.dispatcher.Submit(dispatcher.Command{Args: args, Key: ns}, func(reply dispatcher.Reply) {
		if reply.Err != nil {
			cb(nil, reply.Err)
			return
		}
		out := make(sdltypes.DataMap, len(keys))
		for i, k := range keys {
			if i >= len(reply.Values) || reply.Values[i] == nil {
				continue
			}
			out[k] = reply.Values[i]
		}
		cb(out, nil)
	})
}

// Remove deletes the given keys; missing keys are not an error.
func (as *AsyncStorage) Remove(ns string, keys sdltypes.Keys, cb ModifyFunc) {
	if !as.checkNamespace(ns, cb) {
		return
	}
	sh, ok := as.handlerFor(ns)
	if !ok {
		as.dummy.set(cb)
		return
	}
	if !sh.checkReady(as.eng, func(err error) { cb(err) }) {
		return
	}
	args := make([]dispatcher.Args, 0, 1+len(keys))
	args = append(args, []byte("DEL"))
	for _, k := range keys {
		args = append(args, []byte(prefixKey(ns, k)))
	}
	sh.dispatcher.Submit(dispatcher.Command{Args: args, Key: ns}, func(reply dispatcher.Reply) {
		cb(reply.Err)
	})
}

// RemoveIf conditionally deletes key iff its stored value equals data.
func (as *AsyncStorage) RemoveIf(ns, key string, data sdltypes.Data, cb ModifyIfFunc) {
	if !as.checkNamespace(ns, func(err error) { cb(false, err) }) {
		return
	}
	sh, ok := as.handlerFor(ns)
	if !ok {
		as.dummy.setIf(cb)
		return
	}
	if !sh.checkReady(as.eng, func(err error) { cb(false, err) }) {
		return
	}
	args := []dispatcher.Args{[]byte("DELIE"), []byte(prefixKey(ns, key)), data}
	sh.dispatcher.Submit(dispatcher.Command{Args: args, Key: ns}, func(reply dispatcher.Reply) {
		cb(parseStatus(reply), reply.Err)
	})
}

// FindKeys returns every key in ns whose name starts with prefix.
func (as *AsyncStorage) FindKeys(ns, prefix string, cb FindKeysFunc) {
	if !as.checkNamespace(ns, func(err error) { cb(nil, err) }) {
		return
	}
	sh, ok := as.handlerFor(ns)
	if !ok {
		as.dummy.findKeys(cb)
		return
	}
	if !sh.checkReady(as.eng, func(err error) { cb(nil, err) }) {
		return
	}
	pattern := prefixPattern(ns, prefix+"*")
	args := []dispatcher.Args{[]byte("KEYS"), []byte(pattern)}
	sh.dispatcher.Submit(dispatcher.Command{Args: args, Key: ns}, func(reply dispatcher.Reply) {
		if reply.Err != nil {
			cb(nil, reply.Err)
			return
		}
		cb(stripAll(ns, reply.Values), nil)
	})
}

// ListKeys returns every key in ns matching a glob pattern.
func (as *AsyncStorage) ListKeys(ns, pattern string, cb FindKeysFunc) {
	if !as.checkNamespace(ns, func(err error) { cb(nil, err) }) {
		return
	}
	sh, ok := as.handlerFor(ns)
	if !ok {
		as.dummy.findKeys(cb)
		return
	}
	if !sh.checkReady(as.eng, func(err error) { cb(nil, err) }) {
		return
	}
	fullPattern := prefixPattern(ns, pattern)
	args := []dispatcher.Args{[]byte("KEYS"), []byte(fullPattern)}
	sh.dispatcher.Submit(dispatcher.Command{Args: args, Key: ns}, func(reply dispatcher.Reply) {
		if reply.Err != nil {
			cb(nil, reply.Err)
			return
		}
		cb(stripAll(ns, reply.Values), nil)
	})
}

// RemoveAll deletes every key in ns.
func (as *AsyncStorage) RemoveAll(ns string, cb ModifyFunc) {
	if !as.checkNamespace(ns, cb) {
		return
	}
	sh, ok := as.handlerFor(ns)
	if !ok {
		as.dummy.set(cb)
		return
	}
	if !sh.checkReady(as.eng, func(err error) { cb(err) }) {
		return
	}
	args := []dispatcher.Args{[]byte("DELALL"), []byte(fmt.Sprintf("{%s},*", ns))}
	sh.dispatcher.Submit(dispatcher.Command{Args: args, Key: ns}, func(reply dispatcher.Reply) {
		cb(reply.Err)
	})
}

func parseStatus(reply dispatcher.Reply) bool {
	if reply.Err != nil || len(reply.Values) == 0 {
		return false
	}
	return len(reply.Values[0]) == 1 && reply.Values[0][0] == '1'
}

func stripAll(ns string, values [][]byte) sdltypes.Keys {
	out := make(sdltypes.Keys, 0, len(values))
	for _, v := range values {
		out = append(out, stripPrefix(ns, v))
	}
	return out
}

// notYetDiscovered is returned by any operation issued against a shard
// that has not yet published a DatabaseInfo.
func notYetDiscovered() error {
	return sdlerrors.New(sdlerrors.NotConnected, "backend not yet discovered")
}
