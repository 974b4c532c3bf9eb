// Package config loads client configuration from YAML and the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"

	"RelayClient/internal/logger"
	"RelayClient/internal/storage"
)

// EnvPrefix prefixes environment overrides, e.g. RELAY_STORAGE__BACKEND.
const EnvPrefix = "RELAY_"

// Transport names.
const (
	TransportQUIC = "quic"
	TransportHTTP = "http"
)

// Defaults.
const (
	DefaultMaxSessions     = 5
	DefaultDispatchTimeout = 10 * time.Second
	DefaultRelayTimeout    = 10 * time.Second
)

// Config is the client configuration.
type Config struct {
	// Dispatchers are the endpoints sessions are requested from.
	Dispatchers []string `koanf:"dispatchers"`

	// Transport is how dispatchers are reached: quic or http.
	Transport string `koanf:"transport"`

	// MaxSessions caps the sessions kept per (credential, chain). 0 is unbounded.
	MaxSessions int `koanf:"max_sessions"`

	// DispatchTimeout bounds one dispatch attempt.
	DispatchTimeout time.Duration `koanf:"dispatch_timeout"`

	// RelayTimeout bounds one relay to a service node.
	RelayTimeout time.Duration `koanf:"relay_timeout"`

	Storage StorageConfig `koanf:"storage"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// StorageConfig selects where the session cache is persisted.
type StorageConfig struct {
	// Backend is empty (no persistence), memory, pebble, redis or pogreb.
	Backend string `koanf:"backend"`

	// Path is the database directory for pebble and pogreb.
	Path string `koanf:"path"`

	// Addr is the redis address.
	Addr string `koanf:"addr"`

	// Key is the store key of the cache blob. Empty uses the default key.
	Key string `koanf:"key"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `koanf:"level"`
}

// MetricsConfig configures prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	return Config{
		Transport:       TransportQUIC,
		MaxSessions:     DefaultMaxSessions,
		DispatchTimeout: DefaultDispatchTimeout,
		RelayTimeout:    DefaultRelayTimeout,
		Log:             LogConfig{Level: "info"},
	}
}

// defaults is Default in koanf key form, loaded before any other source.
func defaults() map[string]any {
	d := Default()

	return map[string]any{
		"transport":        d.Transport,
		"max_sessions":     d.MaxSessions,
		"dispatch_timeout": d.DispatchTimeout.String(),
		"relay_timeout":    d.RelayTimeout.String(),
		"log.level":        d.Log.Level,
	}
}

// ApplyDefaults fills unset fields of a programmatically built Config.
// MaxSessions is left alone since 0 is meaningful.
func (c *Config) ApplyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportQUIC
	}

	if c.DispatchTimeout == 0 {
		c.DispatchTimeout = DefaultDispatchTimeout
	}

	if c.RelayTimeout == 0 {
		c.RelayTimeout = DefaultRelayTimeout
	}
}

// Validate performs config validation.
// An empty dispatcher list is not rejected here; the client reports it.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportQUIC, TransportHTTP:
	default:
		return fmt.Errorf("transport: unknown transport %q", c.Transport)
	}

	if c.MaxSessions < 0 {
		return fmt.Errorf("max_sessions: must not be negative, got %d", c.MaxSessions)
	}

	if c.DispatchTimeout < 0 || c.RelayTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	for i, d := range c.Dispatchers {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("dispatchers[%d]: empty endpoint", i)
		}
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage:\n%w", err)
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log:\n%w", err)
	}

	return nil
}

// Validate checks that the backend has what it needs.
func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case "", storage.BackendMemory:
	case storage.BackendPebble, storage.BackendPogreb:
		if c.Path == "" {
			return fmt.Errorf("%s backend requires path", c.Backend)
		}
	case storage.BackendRedis:
		if c.Addr == "" {
			return fmt.Errorf("redis backend requires addr")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	return nil
}

// StoreConfig converts to the storage package configuration.
func (c *StorageConfig) StoreConfig() storage.Config {
	return storage.Config{Backend: c.Backend, Path: c.Path, Addr: c.Addr}
}

// Load reads the YAML file at path (skipped when empty), applies RELAY_
// environment overrides with `__` as the hierarchy delimiter, and validates.
func Load(path string) (*Config, error) {
	var provider koanf.Provider
	if path != "" {
		provider = file.Provider(path)
	}

	return load(provider)
}

// LoadBytes is Load for an in-memory YAML document.
func LoadBytes(data []byte) (*Config, error) {
	return load(rawbytes.Provider(data))
}

// load merges defaults, the optional YAML source and the environment.
func load(source koanf.Provider) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults:\n%w", err)
	}

	if source != nil {
		if err := k.Load(source, yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config:\n%w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment:\n%w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config:\n%w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}

	return &cfg, nil
}

// envKey maps RELAY_STORAGE__BACKEND to storage.backend.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}
