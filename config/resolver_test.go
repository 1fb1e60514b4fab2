package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nearrt-ric/sdl-go/internal/sysiface"
	"github.com/nearrt-ric/sdl-go/sdltypes"
)

func newFakeSys() *sysiface.Fake {
	return sysiface.NewFake(time.Unix(0, 0))
}

func TestResolveStandaloneEnv(t *testing.T) {
	sys := newFakeSys()
	sys.SetEnv(envHost, "server.local")

	result, err := Resolve(sys)
	require.NoError(t, err)
	require.Equal(t, sdltypes.DbStandalone, result.Database.Type)
	require.Equal(t, []sdltypes.HostAndPort{{Host: "server.local", Port: 6379}}, result.Database.Hosts)
}

func TestResolveSentinelClusterEnv(t *testing.T) {
	sys := newFakeSys()
	sys.SetEnv(envHost, "a-0")
	sys.SetEnv(envSentinelPort, "2222,2223,2224")
	sys.SetEnv(envMasterName, "m-0,m-1,m-2")
	sys.SetEnv(envClusterAddrs, "a-0,a-1,a-2")

	result, err := Resolve(sys)
	require.NoError(t, err)
	require.Equal(t, sdltypes.DbSentinelCluster, result.Database.Type)
	require.Equal(t, []string{"m-0", "m-1", "m-2"}, result.Database.SentinelMasters)

	want := []struct {
		host string
		port uint16
	}{{"a-0", 2222}, {"a-1", 2223}, {"a-2", 2224}}
	for i, w := range want {
		addr, ok := result.Database.SentinelAddress(i)
		require.True(t, ok)
		require.Equal(t, w.host, addr.Host)
		require.Equal(t, w.port, addr.Port)
	}
}

func TestResolveDefaults(t *testing.T) {
	sys := newFakeSys()
	result, err := Resolve(sys)
	require.NoError(t, err)
	require.Equal(t, sdltypes.DbStandalone, result.Database.Type)
	require.Equal(t, []sdltypes.HostAndPort{{Host: sdltypes.DefaultHost, Port: sdltypes.DefaultPort}}, result.Database.Hosts)
	require.Len(t, result.Namespaces, 1)
	require.Equal(t, "", result.Namespaces[0].Prefix)
	require.True(t, result.Namespaces[0].UseBackend)
}

func TestResolveFromJSONFile(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"database": {"type": "redis-standalone", "servers": [{"address": "db0.local:7000"}]},
		"sharedDataLayer": [
			{"namespacePrefix": "ue", "useDbBackend": true, "enableNotifications": true}
		]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sdl.json"), []byte(content), 0o644))

	sys := newFakeSys()
	result, err := Resolve(sys, WithDirectories(dir))
	require.NoError(t, err)
	require.Equal(t, sdltypes.DbStandalone, result.Database.Type)
	require.Equal(t, []sdltypes.HostAndPort{{Host: "db0.local", Port: 7000}}, result.Database.Hosts)
	require.Len(t, result.Namespaces, 1)
	require.Equal(t, "ue", result.Namespaces[0].Prefix)
}

func TestResolveJSONFileInvalidNotifications(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"sharedDataLayer": [
			{"namespacePrefix": "ue", "useDbBackend": false, "enableNotifications": true}
		]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sdl.json"), []byte(content), 0o644))

	sys := newFakeSys()
	_, err := Resolve(sys, WithDirectories(dir))
	require.Error(t, err)
}

func TestResolveJSONFileUnknownDbType(t *testing.T) {
	dir := t.TempDir()
	content := `{"database": {"type": "nope", "servers": [{"address": "a"}]}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sdl.json"), []byte(content), 0o644))

	sys := newFakeSys()
	_, err := Resolve(sys, WithDirectories(dir))
	require.Error(t, err)
}

func TestResolveJSONFileLastFileWinsDatabase(t *testing.T) {
	dir := t.TempDir()
	first := `{"database": {"type": "redis-standalone", "servers": [{"address": "first.local"}]}}`
	second := `{"database": {"type": "redis-standalone", "servers": [{"address": "second.local"}]}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(first), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(second), 0o644))

	sys := newFakeSys()
	result, err := Resolve(sys, WithDirectories(dir))
	require.NoError(t, err)
	require.Equal(t, "second.local", result.Database.Hosts[0].Host)
}

func TestParseAddressIPv6(t *testing.T) {
	hp, err := parseAddress("[2001::123]:12345", "test")
	require.NoError(t, err)
	require.Equal(t, "2001::123", hp.Host)
	require.Equal(t, uint16(12345), hp.Port)

	hp, err = parseAddress("dummy.local", "test")
	require.NoError(t, err)
	require.Equal(t, "dummy.local", hp.Host)
	require.Equal(t, sdltypes.DefaultPort, hp.Port)
}
