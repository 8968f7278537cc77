// Package config loads and resolves the proxy configuration.
// The configuration is read once at startup and passed into the proxy at
// construction time; nothing in here is mutated afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"

	"github.com/tapecache/tapecache/pkg/transform"
)

const (
	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "TAPECACHE_CONFIG"
	// DefaultConfigFile is used when EnvConfigPath is not set.
	DefaultConfigFile = "tapecache.yaml"
)

type Config struct {
	// Root directory for cache records. Empty means DefaultCacheDir.
	CacheDir string `koanf:"cache_dir"`
	// Global defaults, overridden per target.
	Defaults *Options `koanf:"defaults"`
	// Upstream targets by name.
	Targets map[string]*Target `koanf:"targets"`
}

// Options are the per-target settings that can also be set globally.
type Options struct {
	// Forward and re-record every request, skipping cache replay.
	SaveOnly *bool `koanf:"save_only"`
	// Request-side transforms, applied before the cache decision.
	Request *transform.Hooks `koanf:"request"`
	// Response-side transforms, applied after hop-by-hop header stripping.
	Response *transform.Hooks `koanf:"response"`
}

type Target struct {
	URL     string `koanf:"url"`
	Options `koanf:",squash"`
}

// Resolved is the effective configuration for one target, with global
// defaults folded in.
type Resolved struct {
	Name     string
	URL      string
	SaveOnly bool
	Request  transform.Hooks
	Response transform.Hooks
}

// Resolve looks up a target by name and merges in the global defaults.
// A target-specific value overrides the global one per option.
func (c *Config) Resolve(name string) (Resolved, bool) {
	target, ok := c.Targets[name]
	if !ok {
		return Resolved{}, false
	}
	defaults := c.Defaults
	if defaults == nil {
		defaults = &Options{}
	}
	resolved := Resolved{Name: name, URL: target.URL}
	if target.SaveOnly != nil {
		resolved.SaveOnly = *target.SaveOnly
	} else if defaults.SaveOnly != nil {
		resolved.SaveOnly = *defaults.SaveOnly
	}
	if target.Request != nil {
		resolved.Request = *target.Request
	} else if defaults.Request != nil {
		resolved.Request = *defaults.Request
	}
	if target.Response != nil {
		resolved.Response = *target.Response
	} else if defaults.Response != nil {
		resolved.Response = *defaults.Response
	}
	return resolved, true
}

// Path returns the config file location from the environment, falling back
// to the default file name in the working directory.
func Path() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	return DefaultConfigFile
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return unmarshal(k)
}

// LoadBytes parses an in-memory YAML document.
func LoadBytes(b []byte) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(b), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return unmarshal(k)
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("config has no targets")
	}
	for name, target := range cfg.Targets {
		if target == nil || target.URL == "" {
			return nil, fmt.Errorf("target %q has no url", name)
		}
	}
	return &cfg, nil
}

// DefaultCacheDir is the record root under the user's cache home.
func DefaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "tapecache")
}
