package storage

import (
	"sort"
	"strings"
	"sync"

	"github.com/hpungsan/draftkeep/internal/errors"
)

// Memory is an in-process medium. It is safe for concurrent use.
// A non-zero quota caps the total bytes of all stored values.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
	used   int
	quota  int
}

// NewMemory creates an empty in-memory medium. quota <= 0 means unlimited.
func NewMemory(quota int) *Memory {
	return &Memory{
		values: make(map[string]string),
		quota:  quota,
	}
}

// Get implements Storage.
func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements Storage. Returns ErrQuotaExceeded without modifying
// anything if the new value would push usage over the quota.
func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.used - len(m.values[key]) + len(value)
	if m.quota > 0 && next > m.quota {
		return errors.NewQuotaExceeded(m.quota, next)
	}
	m.values[key] = value
	m.used = next
	return nil
}

// Delete implements Storage.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.used -= len(m.values[key])
	delete(m.values, key)
	return nil
}

// Keys implements Lister.
func (m *Memory) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.values)
}

// Used returns the total bytes of stored values.
func (m *Memory) Used() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.used
}
