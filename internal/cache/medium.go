package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotFound is returned by a Medium when a key has no value.
	ErrNotFound = errors.New("cache: key not found")

	// ErrQuotaExceeded is returned by a Medium that refuses a write because
	// its hard capacity would be exceeded.
	ErrQuotaExceeded = errors.New("cache: storage quota exceeded")
)

// Medium is the durable key/value storage the Store sits on.
//
// Every method is a single atomic key operation. A Medium may hold keys
// that do not belong to any Store namespace; Keys filters by prefix so a
// Store only ever enumerates its own entries.
type Medium interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// MemoryMedium is an in-process Medium with an optional byte quota.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryMedium struct {
	mu    sync.RWMutex
	data  map[string]string
	quota int64 // 0 = unlimited
}

// NewMemoryMedium creates an empty medium. quota <= 0 disables the limit.
func NewMemoryMedium(quota int64) *MemoryMedium {
	return &MemoryMedium{
		data:  make(map[string]string),
		quota: quota,
	}
}

// Get implements Medium.
func (m *MemoryMedium) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Put implements Medium.
func (m *MemoryMedium) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quota > 0 {
		var used int64
		for k, v := range m.data {
			if k != key {
				used += int64(len(v))
			}
		}
		if used+int64(len(value)) > m.quota {
			return ErrQuotaExceeded
		}
	}

	m.data[key] = value
	return nil
}

// Delete implements Medium. Deleting a missing key is not an error.
func (m *MemoryMedium) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Keys implements Medium. Keys are returned in lexical order.
func (m *MemoryMedium) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored keys across all namespaces.
func (m *MemoryMedium) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
