// Package kvstore is the persistent settings store.
//
// Values live under a namespace and a key. Writes are staged on a
// Namespace handle and become visible together when Commit succeeds,
// mirroring the set-then-commit discipline of flash key-value stores.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when a key has never been committed.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a persistence backend.
type Store interface {
	// Get returns the committed value of ns/key or ErrNotFound.
	Get(ctx context.Context, ns, key string) ([]byte, error)

	// Apply writes sets and deletes for ns atomically.
	Apply(ctx context.Context, ns string, sets map[string][]byte, deletes []string) error
}

// Namespace stages writes for one namespace of a Store.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Namespace struct {
	store Store
	name  string

	mu     sync.Mutex
	staged map[string][]byte // nil value marks a delete
}

// Open returns a handle on namespace name of store.
func Open(store Store, name string) *Namespace {
	return &Namespace{store: store, name: name, staged: make(map[string][]byte)}
}

// Name returns the namespace name.
func (n *Namespace) Name() string { return n.name }

// Get returns the committed value of key. Staged writes are not visible.
func (n *Namespace) Get(ctx context.Context, key string) ([]byte, error) {
	return n.store.Get(ctx, n.name, key)
}

// Set stages value under key.
func (n *Namespace) Set(key string, value []byte) {
	if value == nil {
		value = []byte{}
	}
	n.mu.Lock()
	n.staged[key] = append([]byte(nil), value...)
	n.mu.Unlock()
}

// Delete stages removal of key.
func (n *Namespace) Delete(key string) {
	n.mu.Lock()
	n.staged[key] = nil
	n.mu.Unlock()
}

// GetJSON decodes the committed value of key into v.
func (n *Namespace) GetJSON(ctx context.Context, key string, v any) error {
	raw, err := n.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding %s/%s: %w", n.name, key, err)
	}
	return nil
}

// SetJSON stages the JSON encoding of v under key.
func (n *Namespace) SetJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", n.name, key, err)
	}
	n.Set(key, raw)
	return nil
}

// Commit applies all staged writes atomically. On failure the staged
// writes are kept so the caller may retry or Discard them.
func (n *Namespace) Commit(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.staged) == 0 {
		return nil
	}

	sets := make(map[string][]byte, len(n.staged))
	var deletes []string
	for k, v := range n.staged {
		if v == nil {
			deletes = append(deletes, k)
		} else {
			sets[k] = v
		}
	}
	sort.Strings(deletes)

	if err := n.store.Apply(ctx, n.name, sets, deletes); err != nil {
		return fmt.Errorf("committing namespace %s: %w", n.name, err)
	}
	clear(n.staged)
	return nil
}

// Discard drops staged writes.
func (n *Namespace) Discard() {
	n.mu.Lock()
	clear(n.staged)
	n.mu.Unlock()
}

// Pending returns the number of staged writes.
func (n *Namespace) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.staged)
}
