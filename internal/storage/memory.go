package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStorage implements Storage in memory. It backs dry runs and tests.
type MemoryStorage struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryStorage creates an empty MemoryStorage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{files: make(map[string][]byte)}
}

func (m *MemoryStorage) Read(_ context.Context, p string) ([]byte, error) {
	key, err := cleanKey(p)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStorage) Write(_ context.Context, p string, data []byte) error {
	key, err := cleanKey(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, p string) error {
	key, err := cleanKey(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[key]; !ok {
		return fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	delete(m.files, key)
	return nil
}

func (m *MemoryStorage) List(_ context.Context, prefix string) ([]string, error) {
	dir := strings.Trim(prefix, "/")
	if dir != "" {
		dir += "/"
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k := range m.files {
		if strings.HasPrefix(k, dir) && !strings.Contains(k[len(dir):], "/") {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStorage) Exists(_ context.Context, p string) (bool, error) {
	key, err := cleanKey(p)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[key]
	return ok, nil
}
