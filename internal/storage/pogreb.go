package storage

import (
	"fmt"

	"github.com/akrylysov/pogreb"
)

// Pogreb is a Store backed by a pogreb database.
type Pogreb struct {
	db *pogreb.DB // db is the underlying database
}

// NewPogreb opens or creates a pogreb database at path.
// Background syncing is disabled; Close flushes.
func NewPogreb(path string) (*Pogreb, error) {
	db, err := pogreb.Open(path, &pogreb.Options{BackgroundSyncInterval: -1})
	if err != nil {
		return nil, fmt.Errorf("open pogreb %s:\n%w", path, err)
	}

	return &Pogreb{db: db}, nil
}

// Get retrieves the value for key. pogreb already returns nil for a missing key.
func (s *Pogreb) Get(key []byte) ([]byte, error) {
	return s.db.Get(key)
}

// Put stores a key-value pair.
func (s *Pogreb) Put(key, value []byte) error {
	return s.db.Put(key, value)
}

// Delete removes key.
func (s *Pogreb) Delete(key []byte) error {
	return s.db.Delete(key)
}

// Close syncs and closes the database.
func (s *Pogreb) Close() error {
	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("sync pogreb:\n%w", err)
	}

	return s.db.Close()
}
