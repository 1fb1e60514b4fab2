package config

import "github.com/nearrt-ric/sdl-go/sdllog"

// Option configures Resolve.
type Option func(*resolveConfig)

type resolveConfig struct {
	directories []string
	logger      sdllog.Logger
}

// WithDirectories sets the ordered list of directories searched for JSON
// configuration files. Later directories, and later files within a
// directory (sorted by name), take precedence for overlapping fields.
func WithDirectories(dirs ...string) Option {
	return func(c *resolveConfig) { c.directories = dirs }
}

// WithLogger attaches a logger for parse diagnostics.
func WithLogger(l sdllog.Logger) Option {
	return func(c *resolveConfig) { c.logger = l }
}

func resolveOptions(opts []Option) resolveConfig {
	var cfg resolveConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
