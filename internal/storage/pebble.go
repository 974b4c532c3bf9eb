package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

const (
	// defaultSyncInterval is the default interval between WAL syncs.
	defaultSyncInterval = 100 * time.Millisecond
)

// Pebble is a Store backed by Pebble.
// Writes are non-blocking (NoSync) and a background goroutine
// periodically syncs the WAL to disk for durability.
type Pebble struct {
	db       *pebble.DB     // db is the underlying Pebble database
	stopSync chan struct{}  // stopSync signals the sync goroutine to stop
	wg       sync.WaitGroup // wg waits for the sync goroutine
}

// NewPebble opens or creates a Pebble database at path.
func NewPebble(path string) (*Pebble, error) {
	opts := &pebble.Options{
		Cache:                       pebble.NewCache(8 << 20), // 8 MB cache
		MemTableSize:                4 << 20,                  // 4 MB memtable
		MemTableStopWritesThreshold: 2,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble %s:\n%w", path, err)
	}

	s := &Pebble{
		db:       db,
		stopSync: make(chan struct{}),
	}

	s.startSyncLoop()

	return s, nil
}

// Get retrieves the value for key.
func (s *Pebble) Get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// Copy the value since it's invalid after closer.Close()
	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// Put stores a key-value pair; the background loop syncs it.
func (s *Pebble) Put(key, value []byte) error {
	return s.db.Set(key, value, pebble.NoSync)
}

// Delete removes key; the background loop syncs it.
func (s *Pebble) Delete(key []byte) error {
	return s.db.Delete(key, pebble.NoSync)
}

// Close stops the sync goroutine, syncs once more and closes the database.
func (s *Pebble) Close() error {
	close(s.stopSync)
	s.wg.Wait()

	if err := s.sync(); err != nil {
		return err
	}

	return s.db.Close()
}

// startSyncLoop starts the background goroutine that periodically syncs the WAL.
func (s *Pebble) startSyncLoop() {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(defaultSyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = s.sync()
			case <-s.stopSync:
				return
			}
		}
	}()
}

// sync forces a WAL sync to disk.
func (s *Pebble) sync() error {
	return s.db.LogData(nil, pebble.Sync)
}
