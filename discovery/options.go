package discovery

import "github.com/nearrt-ric/sdl-go/sdllog"

// Option configures a Sentinel discovery at construction.
type Option func(*sentinelConfig)

type sentinelConfig struct {
	logger sdllog.Logger
}

// WithLogger attaches a logger to a Sentinel discovery.
func WithLogger(l sdllog.Logger) Option {
	return func(c *sentinelConfig) { c.logger = l }
}

func resolveOptions(opts []Option) sentinelConfig {
	var cfg sentinelConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
