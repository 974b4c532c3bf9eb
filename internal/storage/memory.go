package storage

import "sync"

// Memory is a process-local Store.
type Memory struct {
	mu   sync.RWMutex      // mu protects data
	data map[string][]byte // data holds copies of stored values
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get retrieves a copy of the value for key.
func (m *Memory) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[string(key)]
	if !ok {
		return nil, nil
	}

	return append([]byte(nil), value...), nil
}

// Put stores a copy of value.
func (m *Memory) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[string(key)] = append([]byte(nil), value...)

	return nil
}

// Delete removes key.
func (m *Memory) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, string(key))

	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
