package session

import (
	"errors"
	"fmt"
	"sync"

	"RelayClient/internal/logger"
)

// DefaultCacheKey is the well-known store key the cache blob is saved under.
const DefaultCacheKey = "relayclient/session-cache"

// ErrNoSession is returned when a fingerprint has no cached session.
var ErrNoSession = errors.New("no session cached for fingerprint")

// Store is the key/value contract used to persist the cache.
// Get returns nil, nil for a missing key.
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
}

// Cache maps fingerprints to session queues.
// A single mutex guards the map and every queue; operations are O(maxSessions).
type Cache struct {
	mu     sync.Mutex             // mu protects queues
	queues map[Fingerprint]*Queue // queues holds one queue per fingerprint
	store  Store                  // store persists the cache (nil = memory only)
	key    []byte                 // key is the store key for the blob
}

// NewCache creates an in-memory cache.
func NewCache() *Cache {
	return &Cache{queues: make(map[Fingerprint]*Queue)}
}

// LoadCache creates a cache persisted to store under key, restoring any saved state.
// An empty key selects DefaultCacheKey.
func LoadCache(store Store, key string) (*Cache, error) {
	if key == "" {
		key = DefaultCacheKey
	}

	c := NewCache()
	c.store = store
	c.key = []byte(key)

	data, err := store.Get(c.key)
	if err != nil {
		return nil, fmt.Errorf("read cache blob:\n%w", err)
	}

	if data == nil {
		return c, nil
	}

	entries, err := DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("decode cache blob:\n%w", err)
	}

	for fp, sessions := range entries {
		q := NewQueue()
		for _, s := range sessions {
			q.Push(s, 0)
		}
		c.queues[fp] = q
	}

	logger.Debug("session cache restored", "fingerprints", len(entries))

	return c, nil
}

// Current returns the front session for fp.
// The boolean is false when fp is unknown or its queue is empty.
func (c *Cache) Current(fp Fingerprint) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[fp]
	if !ok {
		return nil, false
	}

	return q.Front()
}

// Save appends s to the queue for fp, creating the queue if needed and
// evicting from the front when it holds maxSessions entries (0 = unbounded).
// It always returns s.
func (c *Cache) Save(fp Fingerprint, s *Session, maxSessions int) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[fp]
	if !ok {
		q = NewQueue()
		c.queues[fp] = q
	}

	if evicted := q.Push(s, maxSessions); len(evicted) > 0 {
		logger.Debug("session evicted", "fingerprint", fp.Short(), "count", len(evicted))
	}

	c.persistLocked()

	return s
}

// DestroyFront removes the current session for fp.
// Returns ErrNoSession if fp is unknown or has no sessions.
func (c *Cache) DestroyFront(fp Fingerprint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[fp]
	if !ok {
		return ErrNoSession
	}

	if _, ok := q.PopFront(); !ok {
		return ErrNoSession
	}

	if q.Len() == 0 {
		delete(c.queues, fp)
	}

	c.persistLocked()

	return nil
}

// Len returns the number of sessions retained for fp.
func (c *Cache) Len(fp Fingerprint) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if q, ok := c.queues[fp]; ok {
		return q.Len()
	}

	return 0
}

// Sessions returns the retained sessions for fp, front first.
func (c *Cache) Sessions(fp Fingerprint) []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if q, ok := c.queues[fp]; ok {
		return q.Sessions()
	}

	return nil
}

// persistLocked writes the whole mapping to the store.
// Failures are logged; the in-memory state stays authoritative.
// Caller must hold c.mu.
func (c *Cache) persistLocked() {
	if c.store == nil {
		return
	}

	entries := make(map[Fingerprint][]*Session, len(c.queues))
	for fp, q := range c.queues {
		entries[fp] = q.Sessions()
	}

	data, err := EncodeSnapshot(entries)
	if err != nil {
		logger.Warn("encode session cache", "error", err)
		return
	}

	if err := c.store.Put(c.key, data); err != nil {
		logger.Warn("persist session cache", "error", err)
	}
}
