package topup

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory top-up store for demo/development mode.
type MemoryStore struct {
	requests map[string]*Request
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory top-up store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*Request)}
}

func (m *MemoryStore) Create(ctx context.Context, r *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) List(ctx context.Context, agentID string, status Status, limit int) ([]*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Request
	for _, r := range m.requests {
		if agentID != "" && r.AgentID != agentID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].RequestedAt.After(result[j].RequestedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) Transition(ctx context.Context, id string, from Status, rev Review) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != from {
		return nil, ErrAlreadyReviewed
	}

	r.Status = rev.Status
	r.ReviewedBy = rev.ReviewedBy
	r.ReviewNotes = rev.ReviewNotes
	if rev.Status == StatusPending {
		r.ReviewedAt = nil
		r.ReviewedBy = ""
	} else {
		at := rev.ReviewedAt
		r.ReviewedAt = &at
	}

	cp := *r
	return &cp, nil
}

func (m *MemoryStore) SetTransactionID(ctx context.Context, id, txnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	r.TransactionID = txnID
	return nil
}
