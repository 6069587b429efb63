package kvstore

import (
	"context"
	"sync"
)

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	data     map[string]map[string][]byte
	applyErr error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

// FailApply makes every following Apply return err. Pass nil to recover.
func (m *MemoryStore) FailApply(err error) {
	m.mu.Lock()
	m.applyErr = err
	m.mu.Unlock()
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, ns, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[ns][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Apply implements Store.
func (m *MemoryStore) Apply(_ context.Context, ns string, sets map[string][]byte, deletes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applyErr != nil {
		return m.applyErr
	}
	bucket := m.data[ns]
	if bucket == nil {
		bucket = make(map[string][]byte)
		m.data[ns] = bucket
	}
	for k, v := range sets {
		bucket[k] = append([]byte(nil), v...)
	}
	for _, k := range deletes {
		delete(bucket, k)
	}
	return nil
}
