package pool

import (
	"math/rand/v2"
	"sync"
)

// Pool is a shared set of dispatcher endpoints.
// All methods are safe for concurrent use.
type Pool struct {
	mu        sync.Mutex     // mu protects endpoints and index
	endpoints []string       // endpoints in insertion order
	index     map[string]int // index maps endpoint to its position in endpoints
}

// New creates a pool from endpoints, dropping empty strings and duplicates.
func New(endpoints []string) *Pool {
	p := &Pool{index: make(map[string]int, len(endpoints))}

	for _, e := range endpoints {
		p.addLocked(e)
	}

	return p
}

// PickRandom returns a uniformly random endpoint.
// The boolean is false when the pool is empty.
func (p *Pool) PickRandom() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 0 {
		return "", false
	}

	return p.endpoints[rand.IntN(len(p.endpoints))], true
}

// Remove deletes endpoint from the pool. Returns false if it was not present.
func (p *Pool) Remove(endpoint string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	i, ok := p.index[endpoint]
	if !ok {
		return false
	}

	// Swap with the last entry to keep removal O(1)
	last := len(p.endpoints) - 1
	if i != last {
		moved := p.endpoints[last]
		p.endpoints[i] = moved
		p.index[moved] = i
	}

	p.endpoints = p.endpoints[:last]
	delete(p.index, endpoint)

	return true
}

// Add inserts endpoint. Returns false if it was empty or already present.
func (p *Pool) Add(endpoint string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.addLocked(endpoint)
}

// addLocked inserts endpoint. Caller must hold p.mu.
func (p *Pool) addLocked(endpoint string) bool {
	if endpoint == "" {
		return false
	}

	if _, ok := p.index[endpoint]; ok {
		return false
	}

	p.index[endpoint] = len(p.endpoints)
	p.endpoints = append(p.endpoints, endpoint)

	return true
}

// Count returns the number of endpoints.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.endpoints)
}

// Endpoints returns a copy of the current endpoints.
func (p *Pool) Endpoints() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, len(p.endpoints))
	copy(out, p.endpoints)

	return out
}
