package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nearrt-ric/sdl-go/sdlerrors"
	"github.com/nearrt-ric/sdl-go/sdltypes"
)

type jsonDatabaseBlock struct {
	Type    string       `json:"type"`
	Servers []jsonServer `json:"servers"`
}

type jsonServer struct {
	Address string `json:"address"`
}

type jsonNamespaceEntry struct {
	NamespacePrefix     string `json:"namespacePrefix"`
	UseDbBackend        bool   `json:"useDbBackend"`
	EnableNotifications bool   `json:"enableNotifications"`
}

type jsonRoot struct {
	Database        *jsonDatabaseBlock   `json:"database"`
	SharedDataLayer []jsonNamespaceEntry `json:"sharedDataLayer"`
}

// resolveFromFiles walks the configured directories in order, parsing
// every *.json file found (sorted by name within a directory). The
// last file encountered that carries a "database" block wins; namespace
// entries merge across all files keyed by prefix, last write wins.
func resolveFromFiles(directories []string) (*sdltypes.DatabaseConfiguration, []sdltypes.NamespaceConfigurationEntry, error) {
	paths, err := listConfigFiles(directories)
	if err != nil {
		return nil, nil, err
	}

	var db *sdltypes.DatabaseConfiguration
	order := make([]string, 0)
	byPrefix := make(map[string]sdltypes.NamespaceConfigurationEntry)

	for _, path := range paths {
		root, err := parseFile(path)
		if err != nil {
			return nil, nil, err
		}
		if root.Database != nil {
			parsed, err := parseDatabaseBlock(*root.Database, path)
			if err != nil {
				return nil, nil, err
			}
			db = &parsed
		}
		for _, e := range root.SharedDataLayer {
			entry, err := parseNamespaceEntry(e, path)
			if err != nil {
				return nil, nil, err
			}
			if _, exists := byPrefix[entry.Prefix]; !exists {
				order = append(order, entry.Prefix)
			}
			byPrefix[entry.Prefix] = entry
		}
	}

	entries := make([]sdltypes.NamespaceConfigurationEntry, 0, len(order))
	for _, prefix := range order {
		entries = append(entries, byPrefix[prefix])
	}
	return db, entries, nil
}

// resolveNamespacesFromFiles is resolveFromFiles's namespace-only view,
// used when the environment has already claimed database authority but
// namespace entries are still sourced from JSON files.
func resolveNamespacesFromFiles(directories []string) ([]sdltypes.NamespaceConfigurationEntry, error) {
	_, entries, err := resolveFromFiles(directories)
	return entries, err
}

func listConfigFiles(directories []string) ([]string, error) {
	var out []string
	for _, dir := range directories {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("config: reading directory %q: %w", dir, err)
		}
		var names []string
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out, nil
}

func parseFile(path string) (jsonRoot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return jsonRoot{}, fmt.Errorf("config: reading %q: %w", path, err)
	}
	var root jsonRoot
	if err := json.Unmarshal(data, &root); err != nil {
		return jsonRoot{}, &sdlerrors.ConfigurationError{
			SourceName: path,
			Reason:     "malformed JSON: " + err.Error(),
		}
	}
	return root, nil
}

func parseDatabaseBlock(block jsonDatabaseBlock, source string) (sdltypes.DatabaseConfiguration, error) {
	dbType, sentinel, err := parseDbTypeString(block.Type, source)
	if err != nil {
		return sdltypes.DatabaseConfiguration{}, err
	}
	if len(block.Servers) == 0 {
		return sdltypes.DatabaseConfiguration{}, &sdlerrors.ConfigurationError{
			SourceName: source,
			Path:       "database.servers",
			Reason:     "missing \"servers\"",
		}
	}

	db := sdltypes.DatabaseConfiguration{Type: dbType}
	for _, s := range block.Servers {
		hp, err := parseAddress(s.Address, source)
		if err != nil {
			return sdltypes.DatabaseConfiguration{}, err
		}
		db.Hosts = append(db.Hosts, hp)
		if sentinel {
			db.SentinelPorts = append(db.SentinelPorts, hp.Port)
		}
	}
	if sentinel {
		db.SentinelMasters = []string{sdltypes.DefaultSentinelMasterName}
	}
	return db, nil
}

func parseDbTypeString(s, source string) (sdltypes.DbType, bool, error) {
	switch s {
	case "redis-standalone":
		return sdltypes.DbStandalone, false, nil
	case "redis-cluster":
		return sdltypes.DbCluster, false, nil
	case "redis-sentinel":
		return sdltypes.DbSentinel, true, nil
	case "sdl-standalone-cluster":
		return sdltypes.DbStandaloneCluster, false, nil
	case "sdl-sentinel-cluster":
		return sdltypes.DbSentinelCluster, true, nil
	default:
		return sdltypes.DbUnknown, false, &sdlerrors.ConfigurationError{
			SourceName: source,
			Path:       "database.type",
			Reason:     "unknown DbType \"" + s + "\"",
		}
	}
}

// parseAddress parses "host", "host:port", or "[ipv6]:port" (and
// "[ipv6]" with no port), defaulting to DefaultPort when no port is
// given.
func parseAddress(addr, source string) (sdltypes.HostAndPort, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return sdltypes.HostAndPort{}, &sdlerrors.ConfigurationError{
			SourceName: source,
			Path:       "database.servers[].address",
			Reason:     "empty address",
		}
	}

	if strings.HasPrefix(addr, "[") {
		closeIdx := strings.Index(addr, "]")
		if closeIdx < 0 {
			return sdltypes.HostAndPort{}, invalidAddress(addr, source)
		}
		host := addr[1:closeIdx]
		rest := addr[closeIdx+1:]
		if rest == "" {
			return sdltypes.HostAndPort{Host: host, Port: sdltypes.DefaultPort}, nil
		}
		if !strings.HasPrefix(rest, ":") {
			return sdltypes.HostAndPort{}, invalidAddress(addr, source)
		}
		port, err := strconv.ParseUint(rest[1:], 10, 16)
		if err != nil {
			return sdltypes.HostAndPort{}, invalidAddress(addr, source)
		}
		return sdltypes.HostAndPort{Host: host, Port: uint16(port)}, nil
	}

	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return sdltypes.HostAndPort{Host: addr, Port: sdltypes.DefaultPort}, nil
	}
	host, portStr := addr[:idx], addr[idx+1:]
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return sdltypes.HostAndPort{}, invalidAddress(addr, source)
	}
	return sdltypes.HostAndPort{Host: host, Port: uint16(port)}, nil
}

func invalidAddress(addr, source string) error {
	return &sdlerrors.ConfigurationError{
		SourceName: source,
		Path:       "database.servers[].address",
		Reason:     "invalid address \"" + addr + "\"",
	}
}

func parseNamespaceEntry(e jsonNamespaceEntry, source string) (sdltypes.NamespaceConfigurationEntry, error) {
	if strings.ContainsAny(e.NamespacePrefix, sdltypes.DisallowedNamespaceChars) {
		return sdltypes.NamespaceConfigurationEntry{}, &sdlerrors.ConfigurationError{
			SourceName: source,
			Path:       "sharedDataLayer[].namespacePrefix",
			Reason:     fmt.Sprintf("%q contains disallowed characters: %s", e.NamespacePrefix, sdltypes.DisallowedNamespaceChars),
		}
	}
	if e.EnableNotifications && !e.UseDbBackend {
		return sdltypes.NamespaceConfigurationEntry{}, &sdlerrors.ConfigurationError{
			SourceName: source,
			Path:       "sharedDataLayer[].enableNotifications",
			Reason:     "cannot be true when useDbBackend is false",
		}
	}
	return sdltypes.NamespaceConfigurationEntry{
		Prefix:               e.NamespacePrefix,
		UseBackend:           e.UseDbBackend,
		NotificationsEnabled: e.EnableNotifications,
		SourceName:           source,
	}, nil
}
