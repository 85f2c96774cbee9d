package admin

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemorySettingsStore is an in-memory settings store for demo/development mode.
type MemorySettingsStore struct {
	settings map[string]*Setting
	mu       sync.RWMutex
}

// NewMemorySettingsStore creates a new in-memory settings store.
func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{settings: make(map[string]*Setting)}
}

func (m *MemorySettingsStore) Get(ctx context.Context, key string) (*Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.settings[key]
	if !ok {
		return nil, ErrSettingNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemorySettingsStore) List(ctx context.Context) ([]*Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Setting
	for _, s := range m.settings {
		cp := *s
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func (m *MemorySettingsStore) Put(ctx context.Context, key, value string) (*Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	m.settings[key] = s
	cp := *s
	return &cp, nil
}
