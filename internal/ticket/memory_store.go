package ticket

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory ticket store for demo/development mode.
type MemoryStore struct {
	tickets map[string]*Ticket
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory ticket store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: make(map[string]*Ticket)}
}

func (m *MemoryStore) CreateBatch(ctx context.Context, tickets []*Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range tickets {
		cp := *t
		m.tickets[t.ID] = &cp
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) List(ctx context.Context, agentID string, status Status, limit int) ([]*Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Ticket
	for _, t := range m.tickets {
		if agentID != "" && t.AgentID != agentID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListIssuedInWindow(ctx context.Context, agentID string, start, end time.Time) ([]*Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Ticket
	for _, t := range m.tickets {
		if t.AgentID != agentID || t.Status != StatusIssued || t.IssuedAt == nil {
			continue
		}
		if t.IssuedAt.Before(start) || t.IssuedAt.After(end) {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].IssuedAt.Before(*result[j].IssuedAt)
	})
	return result, nil
}

func (m *MemoryStore) Transition(ctx context.Context, id string, from, to Status, change StateChange) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status != from {
		return nil, ErrInvalidTicketState
	}

	t.Status = to
	t.VoidDate = change.VoidDate
	t.RefundDate = change.RefundDate
	t.RefundAmount = change.RefundAmount

	cp := *t
	return &cp, nil
}
