package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nearrt-ric/sdl-go/dispatcher"
	"github.com/nearrt-ric/sdl-go/internal/engine"
	"github.com/nearrt-ric/sdl-go/internal/sysiface"
	"github.com/nearrt-ric/sdl-go/nsconfig"
	"github.com/nearrt-ric/sdl-go/sdlerrors"
	"github.com/nearrt-ric/sdl-go/sdltypes"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	sys := sysiface.NewFake(time.Unix(0, 0))
	eng, err := engine.New(sys)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

// memoryBackend is a tiny in-memory redis-alike used by fake
// dispatchers to give storage tests real read-your-write semantics.
type memoryBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{data: map[string][]byte{}}
}

func (m *memoryBackend) handle(cmd dispatcher.Command) dispatcher.Reply {
	m.mu.Lock()
	defer m.mu.Unlock()

	op := string(cmd.Args[0])
	switch op {
	case "MSET":
		for i := 1; i+1 < len(cmd.Args); i += 2 {
			m.data[string(cmd.Args[i])] = cmd.Args[i+1]
		}
		return dispatcher.Reply{}
	case "MGET":
		values := make([][]byte, 0, len(cmd.Args)-1)
		for _, k := range cmd.Args[1:] {
			values = append(values, m.data[string(k)])
		}
		return dispatcher.Reply{Values: values}
	case "SETIE":
		key, newVal, old := string(cmd.Args[1]), cmd.Args[2], cmd.Args[3]
		if existing, ok := m.data[key]; ok && string(existing) == string(old) {
			m.data[key] = newVal
			return dispatcher.Reply{Values: [][]byte{[]byte("1")}}
		}
		return dispatcher.Reply{Values: [][]byte{[]byte("0")}}
	case "SETNX":
		key, val := string(cmd.Args[1]), cmd.Args[2]
		if _, exists := m.data[key]; exists {
			return dispatcher.Reply{Values: [][]byte{[]byte("0")}}
		}
		m.data[key] = val
		return dispatcher.Reply{Values: [][]byte{[]byte("1")}}
	case "DEL":
		for _, k := range cmd.Args[1:] {
			delete(m.data, string(k))
		}
		return dispatcher.Reply{}
	case "DELIE":
		key, val := string(cmd.Args[1]), cmd.Args[2]
		if existing, ok := m.data[key]; ok && string(existing) == string(val) {
			delete(m.data, key)
			return dispatcher.Reply{Values: [][]byte{[]byte("1")}}
		}
		return dispatcher.Reply{Values: [][]byte{[]byte("0")}}
	default:
		return dispatcher.Reply{}
	}
}

func newStandaloneStorage(t *testing.T, eng *engine.Engine, backend *memoryBackend) *AsyncStorage {
	t.Helper()
	fake := dispatcher.NewFake()
	fake.Handle = backend.handle

	dbConfig := sdltypes.DatabaseConfiguration{
		Type:  sdltypes.DbStandalone,
		Hosts: []sdltypes.HostAndPort{{Host: "localhost", Port: 6379}},
	}
	nsTable := nsconfig.New([]sdltypes.NamespaceConfigurationEntry{{Prefix: "", UseBackend: true}})

	as := New(eng, dbConfig, nsTable, func(sdltypes.HostAndPort) dispatcher.Dispatcher { return fake })
	eng.HandleEvents() // let Direct discovery's initial publish flip the shard ready
	return as
}

func TestSetGetRoundTrip(t *testing.T) {
	eng := newTestEngine(t)
	as := newStandaloneStorage(t, eng, newMemoryBackend())

	var setErr error
	as.Set("ns1", sdltypes.DataMap{"k": []byte("v")}, func(err error) { setErr = err })
	eng.HandleEvents()
	require.NoError(t, setErr)

	var got sdltypes.DataMap
	var getErr error
	as.Get("ns1", sdltypes.Keys{"k"}, func(data sdltypes.DataMap, err error) { got, getErr = data, err })
	eng.HandleEvents()

	require.NoError(t, getErr)
	require.Equal(t, sdltypes.DataMap{"k": []byte("v")}, got)
}

func TestSetIfMiss(t *testing.T) {
	eng := newTestEngine(t)
	as := newStandaloneStorage(t, eng, newMemoryBackend())

	as.Set("ns1", sdltypes.DataMap{"k": {0xA, 0xB, 0xC}}, func(error) {})
	eng.HandleEvents()

	var status bool
	var ifErr error
	as.SetIf("ns1", "k", []byte{0xA, 0xB}, []byte{0xD}, func(ok bool, err error) { status, ifErr = ok, err })
	eng.HandleEvents()
	require.NoError(t, ifErr)
	require.False(t, status)

	var got sdltypes.DataMap
	as.Get("ns1", sdltypes.Keys{"k"}, func(data sdltypes.DataMap, err error) { got = data })
	eng.HandleEvents()
	require.Equal(t, sdltypes.DataMap{"k": {0xA, 0xB, 0xC}}, got)
}

func TestSetIfNotExistsSecondCallFails(t *testing.T) {
	eng := newTestEngine(t)
	as := newStandaloneStorage(t, eng, newMemoryBackend())

	var first, second bool
	as.SetIfNotExists("ns1", "k", []byte("v"), func(ok bool, err error) { first = ok })
	eng.HandleEvents()
	as.SetIfNotExists("ns1", "k", []byte("v2"), func(ok bool, err error) { second = ok })
	eng.HandleEvents()

	require.True(t, first)
	require.False(t, second)
}

func TestRemoveIfRoundTrip(t *testing.T) {
	eng := newTestEngine(t)
	backend := newMemoryBackend()
	as := newStandaloneStorage(t, eng, backend)

	as.Set("ns1", sdltypes.DataMap{"k": []byte("v")}, func(error) {})
	eng.HandleEvents()

	var first, second bool
	as.RemoveIf("ns1", "k", []byte("v"), func(ok bool, err error) { first = ok })
	eng.HandleEvents()
	as.RemoveIf("ns1", "k", []byte("v"), func(ok bool, err error) { second = ok })
	eng.HandleEvents()

	require.True(t, first)
	require.False(t, second)
}

func TestDummyHandlerForDisabledNamespace(t *testing.T) {
	eng := newTestEngine(t)
	fake := dispatcher.NewFake()
	dbConfig := sdltypes.DatabaseConfiguration{Type: sdltypes.DbStandalone, Hosts: []sdltypes.HostAndPort{{Host: "h", Port: 1}}}
	nsTable := nsconfig.New([]sdltypes.NamespaceConfigurationEntry{{Prefix: "", UseBackend: false}})
	as := New(eng, dbConfig, nsTable, func(sdltypes.HostAndPort) dispatcher.Dispatcher { return fake })
	eng.HandleEvents()

	var setErr error
	as.Set("disabled-ns", sdltypes.DataMap{"k": []byte("v")}, func(err error) { setErr = err })
	eng.HandleEvents()

	require.NoError(t, setErr)
	require.Empty(t, fake.Calls())

	var status bool
	as.SetIfNotExists("disabled-ns", "k", []byte("v"), func(ok bool, err error) { status = ok })
	eng.HandleEvents()
	require.True(t, status)

	var got sdltypes.DataMap
	as.Get("disabled-ns", sdltypes.Keys{"k"}, func(data sdltypes.DataMap, err error) { got = data })
	eng.HandleEvents()
	require.Equal(t, sdltypes.DataMap{}, got)
}

func TestShardRoutingIsStableByCRC32(t *testing.T) {
	eng := newTestEngine(t)
	var fakes [3]*dispatcher.Fake
	dbConfig := sdltypes.DatabaseConfiguration{
		Type: sdltypes.DbStandaloneCluster,
		Hosts: []sdltypes.HostAndPort{
			{Host: "h0", Port: 1}, {Host: "h1", Port: 2}, {Host: "h2", Port: 3},
		},
	}
	nsTable := nsconfig.New([]sdltypes.NamespaceConfigurationEntry{{Prefix: "", UseBackend: true}})

	idx := 0
	as := New(eng, dbConfig, nsTable, func(sdltypes.HostAndPort) dispatcher.Dispatcher {
		f := dispatcher.NewFake()
		fakes[idx] = f
		idx++
		return f
	})
	eng.HandleEvents()

	as.Set("throughput_ue", sdltypes.DataMap{"k": []byte("v")}, func(error) {})
	eng.HandleEvents()

	require.Len(t, fakes[1].Calls(), 1, "throughput_ue must route to shard 1")
	require.Empty(t, fakes[0].Calls())
	require.Empty(t, fakes[2].Calls())
}

func TestWaitReadyCompletesOnceShardDiscovered(t *testing.T) {
	eng := newTestEngine(t)
	fake := dispatcher.NewFake()
	dbConfig := sdltypes.DatabaseConfiguration{Type: sdltypes.DbStandalone, Hosts: []sdltypes.HostAndPort{{Host: "h", Port: 1}}}
	nsTable := nsconfig.New([]sdltypes.NamespaceConfigurationEntry{{Prefix: "", UseBackend: true}})
	as := New(eng, dbConfig, nsTable, func(sdltypes.HostAndPort) dispatcher.Dispatcher { return fake })

	var ready bool
	as.WaitReady("ns1", func(err error) { ready = err == nil })
	require.False(t, ready, "must not complete inline")

	eng.HandleEvents()
	require.True(t, ready)
}

func TestOperationBeforeDiscoveryReturnsNotConnected(t *testing.T) {
	eng := newTestEngine(t)
	fake := dispatcher.NewFake()
	dbConfig := sdltypes.DatabaseConfiguration{Type: sdltypes.DbStandalone, Hosts: []sdltypes.HostAndPort{{Host: "h", Port: 1}}}
	nsTable := nsconfig.New([]sdltypes.NamespaceConfigurationEntry{{Prefix: "", UseBackend: true}})
	as := New(eng, dbConfig, nsTable, func(sdltypes.HostAndPort) dispatcher.Dispatcher { return fake })

	var gotErr error
	as.Set("ns1", sdltypes.DataMap{"k": []byte("v")}, func(err error) { gotErr = err })
	eng.HandleEvents()

	require.Error(t, gotErr)
}

func TestInvalidNamespaceRejectedBeforeReachingHandler(t *testing.T) {
	eng := newTestEngine(t)
	as := newStandaloneStorage(t, eng, newMemoryBackend())

	for _, ns := range []string{"", "ns,1", "{ns1}", "ns}1"} {
		var gotErr error
		as.Set(ns, sdltypes.DataMap{"k": []byte("v")}, func(err error) { gotErr = err })
		eng.HandleEvents()

		require.Error(t, gotErr, "namespace %q must be rejected", ns)
		sdlErr, ok := sdlerrors.AsSDLError(gotErr)
		require.True(t, ok)
		require.Equal(t, sdlerrors.RejectedBySDL, sdlErr.Kind)
	}
}

func TestInvalidNamespaceRejectsEveryOperation(t *testing.T) {
	eng := newTestEngine(t)
	as := newStandaloneStorage(t, eng, newMemoryBackend())
	const ns = "bad,ns"

	var waitErr error
	as.WaitReady(ns, func(err error) { waitErr = err })
	eng.HandleEvents()
	require.Error(t, waitErr)

	var ifErr error
	var status bool
	as.SetIf(ns, "k", []byte("a"), []byte("b"), func(ok bool, err error) { status, ifErr = ok, err })
	eng.HandleEvents()
	require.Error(t, ifErr)
	require.False(t, status)

	var getErr error
	var got sdltypes.DataMap
	as.Get(ns, sdltypes.Keys{"k"}, func(data sdltypes.DataMap, err error) { got, getErr = data, err })
	eng.HandleEvents()
	require.Error(t, getErr)
	require.Nil(t, got)

	var findErr error
	var keys sdltypes.Keys
	as.FindKeys(ns, "k", func(k sdltypes.Keys, err error) { keys, findErr = k, err })
	eng.HandleEvents()
	require.Error(t, findErr)
	require.Nil(t, keys)
}
