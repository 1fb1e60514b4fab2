package nsconfig

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nearrt-ric/sdl-go/sdltypes"
)

func entry(prefix string) sdltypes.NamespaceConfigurationEntry {
	return sdltypes.NamespaceConfigurationEntry{Prefix: prefix, UseBackend: true}
}

func TestLongestPrefixMatch(t *testing.T) {
	table := New([]sdltypes.NamespaceConfigurationEntry{
		entry("some"),
		entry("someKnownPrefix"),
		entry("someKnownPrefixs"),
	})

	got, ok := table.Lookup("someKnownPrefixValue123")
	require.True(t, ok)
	require.Equal(t, "someKnownPrefix", got.Prefix)
}

func TestLookupNoMatch(t *testing.T) {
	table := New([]sdltypes.NamespaceConfigurationEntry{entry("abc")})
	_, ok := table.Lookup("xyz")
	require.False(t, ok)
}

func TestLookupTiesPreferLaterInsertion(t *testing.T) {
	e1 := sdltypes.NamespaceConfigurationEntry{Prefix: "abc", SourceName: "first"}
	e2 := sdltypes.NamespaceConfigurationEntry{Prefix: "abc", SourceName: "second"}
	table := New([]sdltypes.NamespaceConfigurationEntry{e1, e2})

	got, ok := table.Lookup("abcdef")
	require.True(t, ok)
	require.Equal(t, "second", got.SourceName)
}

func TestAddAfterLookupFails(t *testing.T) {
	table := New([]sdltypes.NamespaceConfigurationEntry{entry("")})
	_, _ = table.Lookup("anything")
	require.ErrorIs(t, table.Add(entry("new")), ErrTableSealed)
}

func TestAddBeforeLookupSucceeds(t *testing.T) {
	table := New(nil)
	require.NoError(t, table.Add(entry("x")))
	got, ok := table.Lookup("xyz")
	require.True(t, ok)
	require.Equal(t, "x", got.Prefix)
}

func TestLookupIsMemoized(t *testing.T) {
	table := New([]sdltypes.NamespaceConfigurationEntry{entry("")})
	got1, ok1 := table.Lookup("ns1")
	got2, ok2 := table.Lookup("ns1")
	require.True(t, ok1)
	require.True(t, ok2)
	require.Equal(t, got1, got2)
}

func TestEmptyPrefixMatchesEverything(t *testing.T) {
	table := New([]sdltypes.NamespaceConfigurationEntry{entry("")})
	got, ok := table.Lookup("anything-at-all")
	require.True(t, ok)
	require.Equal(t, "", got.Prefix)
}
