package engine

import "github.com/nearrt-ric/sdl-go/sdllog"

// Option configures an Engine at construction time.
type Option func(*engineConfig)

type engineConfig struct {
	logger sdllog.Logger
}

// WithLogger attaches a logger. Engine works silently without one.
func WithLogger(l sdllog.Logger) Option {
	return func(c *engineConfig) { c.logger = l }
}

func resolveOptions(opts []Option) engineConfig {
	var cfg engineConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
