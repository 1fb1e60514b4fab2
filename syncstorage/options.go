package syncstorage

import "github.com/nearrt-ric/sdl-go/sdllog"

// Option configures a SyncStorage at construction.
type Option func(*syncConfig)

type syncConfig struct {
	logger sdllog.Logger
}

// WithLogger attaches a logger to a SyncStorage.
func WithLogger(l sdllog.Logger) Option {
	return func(c *syncConfig) { c.logger = l }
}

func resolveOptions(opts []Option) syncConfig {
	var cfg syncConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
