// Package config resolves the immutable DatabaseConfiguration and
// namespace configuration entries the rest of the SDL client runtime is
// built on, from environment variables, JSON configuration files, and
// baked-in defaults, in that order of precedence.
package config

import (
	"strconv"
	"strings"

	"github.com/nearrt-ric/sdl-go/internal/sysiface"
	"github.com/nearrt-ric/sdl-go/sdlerrors"
	"github.com/nearrt-ric/sdl-go/sdllog"
	"github.com/nearrt-ric/sdl-go/sdltypes"
)

const (
	envHost           = "DBAAS_SERVICE_HOST"
	envPort           = "DBAAS_SERVICE_PORT"
	envSentinelPort   = "DBAAS_SERVICE_SENTINEL_PORT"
	envMasterName     = "DBAAS_MASTER_NAME"
	envClusterAddrs   = "DBAAS_CLUSTER_ADDR_LIST"
	envSourceName     = "environment variables"
	defaultSourceName = "defaults"
)

// Result is everything the resolver produces: the immutable database
// topology plus the ordered namespace configuration entries (the table
// in package nsconfig owns turning these into a lookup structure).
type Result struct {
	Database   sdltypes.DatabaseConfiguration
	Namespaces []sdltypes.NamespaceConfigurationEntry
}

// Resolve runs the full precedence chain: env vars, then JSON files
// found under the configured directories, then built-in defaults.
func Resolve(sys sysiface.System, opts ...Option) (Result, error) {
	cfg := resolveOptions(opts)
	log := sdllog.OrDisabled(cfg.logger)

	if db, ok, err := resolveFromEnv(sys); err != nil {
		return Result{}, err
	} else if ok {
		log.Info().Str("source", envSourceName).Log("config: database topology resolved from environment")
		nsEntries, err := resolveNamespacesFromFiles(cfg.directories)
		if err != nil {
			return Result{}, err
		}
		if len(nsEntries) == 0 {
			nsEntries = defaultNamespaces()
		}
		return Result{Database: db, Namespaces: nsEntries}, nil
	}

	fileDB, nsEntries, err := resolveFromFiles(cfg.directories)
	if err != nil {
		return Result{}, err
	}
	if fileDB != nil {
		log.Info().Str("source", "json file").Log("config: database topology resolved from file")
		if len(nsEntries) == 0 {
			nsEntries = defaultNamespaces()
		}
		return Result{Database: *fileDB, Namespaces: nsEntries}, nil
	}

	log.Info().Str("source", defaultSourceName).Log("config: database topology resolved from defaults")
	if len(nsEntries) == 0 {
		nsEntries = defaultNamespaces()
	}
	return Result{Database: defaultDatabase(), Namespaces: nsEntries}, nil
}

func defaultDatabase() sdltypes.DatabaseConfiguration {
	return sdltypes.DatabaseConfiguration{
		Type:  sdltypes.DbStandalone,
		Hosts: []sdltypes.HostAndPort{{Host: sdltypes.DefaultHost, Port: sdltypes.DefaultPort}},
	}
}

func defaultNamespaces() []sdltypes.NamespaceConfigurationEntry {
	return []sdltypes.NamespaceConfigurationEntry{
		{Prefix: "", UseBackend: true, NotificationsEnabled: false, SourceName: defaultSourceName},
	}
}

// resolveFromEnv is authoritative the moment DBAAS_SERVICE_HOST is set.
// ok is false when the host var is absent, in which case callers fall
// through to the JSON file tier.
func resolveFromEnv(sys sysiface.System) (sdltypes.DatabaseConfiguration, bool, error) {
	host, present := sys.Getenv(envHost)
	if !present || strings.TrimSpace(host) == "" {
		return sdltypes.DatabaseConfiguration{}, false, nil
	}

	portStr, _ := sys.Getenv(envPort)
	sentinelPortStr, hasSentinel := sys.Getenv(envSentinelPort)
	masterNameStr, _ := sys.Getenv(envMasterName)
	clusterAddrStr, hasCluster := sys.Getenv(envClusterAddrs)
	hasCluster = hasCluster && strings.TrimSpace(clusterAddrStr) != ""
	hasSentinel = hasSentinel && strings.TrimSpace(sentinelPortStr) != ""

	var hostNames []string
	if hasCluster {
		hostNames = splitComma(clusterAddrStr)
	} else {
		hostNames = splitComma(host)
	}
	if len(hostNames) == 0 {
		return sdltypes.DatabaseConfiguration{}, false, &sdlerrors.ConfigurationError{
			SourceName: envSourceName,
			Path:       envHost,
			Reason:     "empty host list",
		}
	}

	var dbType sdltypes.DbType
	switch {
	case hasCluster && hasSentinel:
		dbType = sdltypes.DbSentinelCluster
	case hasCluster && !hasSentinel:
		dbType = sdltypes.DbStandaloneCluster
	case !hasCluster && hasSentinel:
		dbType = sdltypes.DbSentinel
	default:
		dbType = sdltypes.DbStandalone
	}

	db := sdltypes.DatabaseConfiguration{Type: dbType}

	if dbType.Sentineled() {
		ports := splitComma(sentinelPortStr)
		sentinelPorts, err := parsePorts(ports, envSentinelPort)
		if err != nil {
			return sdltypes.DatabaseConfiguration{}, false, err
		}
		db.SentinelPorts = sentinelPorts
		db.SentinelMasters = splitComma(masterNameStr)
		if len(db.SentinelMasters) == 0 {
			db.SentinelMasters = []string{sdltypes.DefaultSentinelMasterName}
		}
		for _, h := range hostNames {
			db.Hosts = append(db.Hosts, sdltypes.HostAndPort{Host: stripBrackets(h), Port: sdltypes.DefaultPort})
		}
	} else {
		ports := splitComma(portStr)
		parsedPorts, err := parsePorts(ports, envPort)
		if err != nil {
			return sdltypes.DatabaseConfiguration{}, false, err
		}
		for i, h := range hostNames {
			port := sdltypes.DefaultPort
			if i < len(parsedPorts) {
				port = parsedPorts[i]
			}
			db.Hosts = append(db.Hosts, sdltypes.HostAndPort{Host: stripBrackets(h), Port: port})
		}
	}

	return db, true, nil
}

func splitComma(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePorts(raw []string, sourcePath string) ([]uint16, error) {
	out := make([]uint16, 0, len(raw))
	for _, p := range raw {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return nil, &sdlerrors.ConfigurationError{
				SourceName: envSourceName,
				Path:       sourcePath,
				Reason:     "invalid port \"" + p + "\"",
			}
		}
		out = append(out, uint16(n))
	}
	return out, nil
}

func stripBrackets(host string) string {
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return host[1 : len(host)-1]
	}
	return host
}
