package invoice

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skyfare/skyfare/internal/money"
)

// MemoryStore is an in-memory invoice store for demo/development mode. It
// enforces the same uniqueness rules as the Postgres schema: one invoice per
// agent and period, one line per ticket.
type MemoryStore struct {
	invoices     map[string]*Invoice
	byTicket     map[string]string // ticket id -> invoice id
	periodClaims map[string]bool   // agent|start|end
	mu           sync.RWMutex
}

// NewMemoryStore creates a new in-memory invoice store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invoices:     make(map[string]*Invoice),
		byTicket:     make(map[string]string),
		periodClaims: make(map[string]bool),
	}
}

func periodKey(agentID string, start, end time.Time) string {
	return agentID + "|" + start.UTC().Format(time.RFC3339Nano) + "|" + end.UTC().Format(time.RFC3339Nano)
}

func (m *MemoryStore) Create(ctx context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := periodKey(inv.AgentID, inv.PeriodStart, inv.PeriodEnd)
	if m.periodClaims[key] {
		return ErrDuplicateInvoicePeriod
	}
	for _, l := range inv.Lines {
		if _, ok := m.byTicket[l.TicketID]; ok {
			return ErrTicketAlreadyInvoiced
		}
	}

	m.periodClaims[key] = true
	cp := copyInvoice(inv)
	m.invoices[inv.ID] = cp
	for _, l := range cp.Lines {
		m.byTicket[l.TicketID] = inv.ID
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyInvoice(inv), nil
}

func (m *MemoryStore) GetByTicket(ctx context.Context, ticketID string) (*Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byTicket[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyInvoice(m.invoices[id]), nil
}

func (m *MemoryStore) List(ctx context.Context, agentID string, status Status, limit int) ([]*Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Invoice
	for _, inv := range m.invoices {
		if agentID != "" && inv.AgentID != agentID {
			continue
		}
		if status != "" && inv.Status != status {
			continue
		}
		result = append(result, copyInvoice(inv))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) Save(ctx context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.invoices[inv.ID]; !ok {
		return ErrNotFound
	}
	m.invoices[inv.ID] = copyInvoice(inv)
	return nil
}

func (m *MemoryStore) FilterUninvoiced(ctx context.Context, ticketIDs []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []string
	for _, id := range ticketIDs {
		if _, ok := m.byTicket[id]; !ok {
			result = append(result, id)
		}
	}
	return result, nil
}

func (m *MemoryStore) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, inv := range m.invoices {
		if inv.Status == StatusPaid || inv.Status == StatusOverdue {
			continue
		}
		if now.After(inv.DueDate) {
			inv.Status = StatusOverdue
			inv.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) OutstandingTotal(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := money.Zero
	for _, inv := range m.invoices {
		due, err := inv.Outstanding()
		if err != nil {
			return "", err
		}
		total, err = money.Add(total, due)
		if err != nil {
			return "", err
		}
	}
	return total, nil
}

func copyInvoice(inv *Invoice) *Invoice {
	cp := *inv
	cp.Lines = make([]*Line, len(inv.Lines))
	for i, l := range inv.Lines {
		lc := *l
		cp.Lines[i] = &lc
	}
	return &cp
}
