package statestore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory state store for testing and development.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryStore creates a new in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, sessionID string, cp *Checkpoint) error {
	data, err := cp.Marshal()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	// Copy to avoid retaining the caller's buffer.
	stored := make([]byte, len(data))
	copy(stored, data)
	m.data[sessionID] = stored
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, sessionID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	data, ok := m.data[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return Unmarshal(data)
}

// Exists implements Store.
func (m *MemoryStore) Exists(_ context.Context, sessionID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, ErrStoreClosed
	}
	_, ok := m.data[sessionID]
	return ok, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, sessionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	if _, ok := m.data[sessionID]; !ok {
		return 0, nil
	}
	delete(m.data, sessionID)
	return 1, nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, f Filter) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	infos := make([]Info, 0, len(m.data))
	for id, data := range m.data {
		if f.Prefix != "" && !strings.HasPrefix(id, f.Prefix) {
			continue
		}
		cp, err := Unmarshal(data)
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			SessionID: id,
			Sequence:  cp.Sequence,
			WrittenAt: cp.WrittenAt,
			Size:      int64(len(data)),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].WrittenAt.After(infos[j].WrittenAt)
	})
	if f.Limit > 0 && len(infos) > f.Limit {
		infos = infos[:f.Limit]
	}
	return infos, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len returns the number of stored sessions. Intended for tests.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
