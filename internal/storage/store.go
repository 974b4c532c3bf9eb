// Package storage provides the key/value backends the session cache persists to.
package storage

import (
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
	BackendRedis  = "redis"
	BackendPogreb = "pogreb"
)

// Store is a byte key/value store.
// Get returns nil, nil when the key does not exist.
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Close() error
}

// Config selects and locates a backend.
type Config struct {
	Backend string // Backend is one of the Backend* names
	Path    string // Path is the directory for pebble and pogreb
	Addr    string // Addr is the redis address
}

// Open opens the configured backend.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemory(), nil

	case BackendPebble:
		if cfg.Path == "" {
			return nil, fmt.Errorf("pebble backend requires a path")
		}
		return NewPebble(cfg.Path)

	case BackendPogreb:
		if cfg.Path == "" {
			return nil, fmt.Errorf("pogreb backend requires a path")
		}
		return NewPogreb(cfg.Path)

	case BackendRedis:
		if cfg.Addr == "" {
			return nil, fmt.Errorf("redis backend requires an address")
		}
		return NewRedis(cfg.Addr)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
