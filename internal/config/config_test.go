package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte("dispatchers: [\"127.0.0.1:9000\"]\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := Default()
	if cfg.Transport != want.Transport || cfg.MaxSessions != want.MaxSessions {
		t.Errorf("transport=%q max=%d; want %q %d", cfg.Transport, cfg.MaxSessions, want.Transport, want.MaxSessions)
	}

	if cfg.DispatchTimeout != DefaultDispatchTimeout || cfg.RelayTimeout != DefaultRelayTimeout {
		t.Errorf("timeouts = %v %v", cfg.DispatchTimeout, cfg.RelayTimeout)
	}

	if len(cfg.Dispatchers) != 1 || cfg.Dispatchers[0] != "127.0.0.1:9000" {
		t.Errorf("dispatchers = %v", cfg.Dispatchers)
	}
}

func TestLoadFile(t *testing.T) {
	doc := `
dispatchers:
  - http://d1:8080
  - http://d2:8080
transport: http
max_sessions: 0
dispatch_timeout: 2s
relay_timeout: 500ms
storage:
  backend: pebble
  path: /var/lib/relayclient
  key: app/sessions
log:
  level: debug
metrics:
  enabled: true
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Transport != TransportHTTP {
		t.Errorf("transport = %q", cfg.Transport)
	}

	if cfg.MaxSessions != 0 {
		t.Errorf("explicit max_sessions 0 became %d", cfg.MaxSessions)
	}

	if cfg.DispatchTimeout != 2*time.Second || cfg.RelayTimeout != 500*time.Millisecond {
		t.Errorf("timeouts = %v %v", cfg.DispatchTimeout, cfg.RelayTimeout)
	}

	if cfg.Storage.Backend != "pebble" || cfg.Storage.Path != "/var/lib/relayclient" || cfg.Storage.Key != "app/sessions" {
		t.Errorf("storage = %+v", cfg.Storage)
	}

	if cfg.Log.Level != "debug" || !cfg.Metrics.Enabled {
		t.Errorf("log=%+v metrics=%+v", cfg.Log, cfg.Metrics)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RELAY_TRANSPORT", "http")
	t.Setenv("RELAY_MAX_SESSIONS", "9")
	t.Setenv("RELAY_STORAGE__BACKEND", "redis")
	t.Setenv("RELAY_STORAGE__ADDR", "127.0.0.1:6379")

	cfg, err := LoadBytes([]byte("transport: quic\nmax_sessions: 3\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Transport != TransportHTTP || cfg.MaxSessions != 9 {
		t.Errorf("transport=%q max=%d; want env values", cfg.Transport, cfg.MaxSessions)
	}

	if cfg.Storage.Backend != "redis" || cfg.Storage.Addr != "127.0.0.1:6379" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("loaded a missing file")
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Transport != TransportQUIC {
		t.Errorf("transport = %q", cfg.Transport)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"unknown transport", func(c *Config) { c.Transport = "grpc" }, false},
		{"negative max", func(c *Config) { c.MaxSessions = -1 }, false},
		{"negative timeout", func(c *Config) { c.RelayTimeout = -time.Second }, false},
		{"blank dispatcher", func(c *Config) { c.Dispatchers = []string{"a", " "} }, false},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "bolt" }, false},
		{"pebble without path", func(c *Config) { c.Storage.Backend = "pebble" }, false},
		{"pogreb with path", func(c *Config) { c.Storage = StorageConfig{Backend: "pogreb", Path: "/tmp/x"} }, true},
		{"redis without addr", func(c *Config) { c.Storage.Backend = "redis" }, false},
		{"memory", func(c *Config) { c.Storage.Backend = "memory" }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Transport != TransportQUIC || cfg.DispatchTimeout != DefaultDispatchTimeout || cfg.RelayTimeout != DefaultRelayTimeout {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	if cfg.MaxSessions != 0 {
		t.Errorf("max_sessions = %d, want untouched", cfg.MaxSessions)
	}
}
