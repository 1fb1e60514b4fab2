package storage

import "github.com/nearrt-ric/sdl-go/sdllog"

// Option configures an AsyncStorage at construction.
type Option func(*storageConfig)

type storageConfig struct {
	logger sdllog.Logger
}

// WithLogger attaches a logger to an AsyncStorage.
func WithLogger(l sdllog.Logger) Option {
	return func(c *storageConfig) { c.logger = l }
}

func resolveOptions(opts []Option) storageConfig {
	var cfg storageConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
