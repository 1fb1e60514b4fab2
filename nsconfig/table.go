// Package nsconfig implements the namespace configuration lookup table:
// longest-prefix match over the entries a config.Resolve call produced,
// with a memoizing cache so repeated lookups of the same namespace don't
// rescan the entry list.
package nsconfig

import (
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/nearrt-ric/sdl-go/sdltypes"
)

// ErrTableSealed is returned by Add once the table has been consulted by
// Lookup; entries may only be registered before first use.
var ErrTableSealed = errors.New("nsconfig: table sealed after first lookup")

// Table is a longest-prefix-match namespace configuration table. The
// zero value is not usable; construct with New.
type Table struct {
	mu      sync.RWMutex
	entries []sdltypes.NamespaceConfigurationEntry // sorted by (len(prefix) desc, insertion order)
	sealed  bool

	cache sync.Map // namespace string -> sdltypes.NamespaceConfigurationEntry
	group singleflight.Group
}

// New builds a Table from the resolved entries, in insertion order.
// Later entries win ties at equal prefix length, matching the invariant
// that ties go to the later-inserted entry.
func New(entries []sdltypes.NamespaceConfigurationEntry) *Table {
	t := &Table{entries: append([]sdltypes.NamespaceConfigurationEntry(nil), entries...)}
	t.resort()
	return t
}

// resort orders entries by descending prefix length, keeping insertion
// order among equal lengths, so a linear scan meets the longest
// prefixes first; scan itself prefers the later-inserted entry on ties.
func (t *Table) resort() {
	sort.SliceStable(t.entries, func(i, j int) bool {
		return len(t.entries[i].Prefix) > len(t.entries[j].Prefix)
	})
}

// Add registers an additional entry. Only valid before the table's
// first Lookup; returns ErrTableSealed afterward.
func (t *Table) Add(entry sdltypes.NamespaceConfigurationEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return ErrTableSealed
	}
	t.entries = append(t.entries, entry)
	t.resort()
	return nil
}

// Lookup returns the longest-prefix match for ns, sealing the table
// against further Add calls. Concurrent first-lookups of the same
// namespace are collapsed into a single scan via singleflight.
func (t *Table) Lookup(ns string) (sdltypes.NamespaceConfigurationEntry, bool) {
	t.mu.Lock()
	t.sealed = true
	t.mu.Unlock()

	if v, ok := t.cache.Load(ns); ok {
		entry := v.(sdltypes.NamespaceConfigurationEntry)
		return entry, true
	}

	v, err, _ := t.group.Do(ns, func() (any, error) {
		entry, ok := t.scan(ns)
		if !ok {
			return nil, errNoMatch
		}
		t.cache.Store(ns, entry)
		return entry, nil
	})
	if err != nil {
		return sdltypes.NamespaceConfigurationEntry{}, false
	}
	return v.(sdltypes.NamespaceConfigurationEntry), true
}

var errNoMatch = errors.New("nsconfig: no matching entry")

// scan performs the linear longest-prefix scan. entries is pre-sorted by
// descending prefix length with ties broken by later insertion winning
// (stable sort preserves insertion order within equal lengths, and Add
// appends new entries after existing ones of the same length, so the
// first length-matching entry that also matches ns's prefix is, ties
// aside, the longest; ties-broken-by-later-insertion require scanning
// all entries of the winning length and preferring the last match).
func (t *Table) scan(ns string) (sdltypes.NamespaceConfigurationEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best sdltypes.NamespaceConfigurationEntry
	found := false
	bestLen := -1
	for _, e := range t.entries {
		if bestLen >= 0 && len(e.Prefix) < bestLen {
			break
		}
		if !hasPrefix(ns, e.Prefix) {
			continue
		}
		if len(e.Prefix) >= bestLen {
			best = e
			bestLen = len(e.Prefix)
			found = true
		}
	}
	return best, found
}

func hasPrefix(s, prefix string) bool {
	if len(prefix) > len(s) {
		return false
	}
	return s[:len(prefix)] == prefix
}
