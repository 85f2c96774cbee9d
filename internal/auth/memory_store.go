package auth

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory principal store for demo/development mode.
type MemoryStore struct {
	byHash map[string]*Principal
	byID   map[string]*Principal
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory auth store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byHash: make(map[string]*Principal),
		byID:   make(map[string]*Principal),
	}
}

func (m *MemoryStore) Create(ctx context.Context, p *Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.byHash[p.Hash] = &cp
	m.byID[p.ID] = &cp
	return nil
}

func (m *MemoryStore) GetByHash(ctx context.Context, hash string) (*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.byHash[hash]
	if !ok {
		return nil, ErrKeyNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) GetByAgent(ctx context.Context, agentID string) ([]*Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Principal
	for _, p := range m.byID {
		if p.AgentID == agentID {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) Update(ctx context.Context, p *Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byID[p.ID]
	if !ok {
		return ErrKeyNotFound
	}
	*existing = *p
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.byID[id]
	if !ok {
		return ErrKeyNotFound
	}
	delete(m.byHash, p.Hash)
	delete(m.byID, id)
	return nil
}
