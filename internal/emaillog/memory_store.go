package emaillog

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory email log store for demo/development mode.
type MemoryStore struct {
	logs []*EmailLog
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory email log store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Create(ctx context.Context, e *EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	m.logs = append(m.logs, &cp)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, invoiceID string, limit int) ([]*EmailLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*EmailLog
	for _, e := range m.logs {
		if invoiceID != "" && e.InvoiceID != invoiceID {
			continue
		}
		cp := *e
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
