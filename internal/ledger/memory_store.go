package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skyfare/skyfare/internal/idgen"
	"github.com/skyfare/skyfare/internal/money"
)

// MemoryStore is an in-memory ledger store for demo/development mode.
type MemoryStore struct {
	accounts map[string]*Account
	txns     map[string][]*Transaction
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		txns:     make(map[string][]*Transaction),
	}
}

func (m *MemoryStore) CreateAccount(ctx context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[a.ID]; ok {
		return ErrAgentExists
	}
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, agentID string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[agentID]
	if !ok {
		return nil, ErrAgentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) ListAccounts(ctx context.Context, activeOnly bool) ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Account
	for _, a := range m.accounts {
		if activeOnly && !a.IsActive {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) UpdateAccount(ctx context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.accounts[a.ID]
	if !ok {
		return ErrAgentNotFound
	}
	*existing = *a
	return nil
}

func (m *MemoryStore) Debit(ctx context.Context, agentID, amount, description, reference string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[agentID]
	if !ok {
		return nil, ErrAgentNotFound
	}

	newUsed, err := money.Add(a.CreditUsed, amount)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	cmp, err := money.Cmp(newUsed, a.CreditLimit)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if cmp > 0 {
		return nil, ErrInsufficientCredit
	}

	a.CreditUsed = newUsed
	a.UpdatedAt = time.Now()
	return m.append(agentID, TxnDebit, amount, newUsed, description, reference), nil
}

func (m *MemoryStore) Credit(ctx context.Context, agentID, amount string, typ TxnType, description, reference string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[agentID]
	if !ok {
		return nil, ErrAgentNotFound
	}

	// Sub floors at zero; the transaction keeps the full requested amount.
	newUsed, err := money.Sub(a.CreditUsed, amount)
	if err != nil {
		return nil, ErrInvalidAmount
	}

	a.CreditUsed = newUsed
	a.UpdatedAt = time.Now()
	return m.append(agentID, typ, amount, newUsed, description, reference), nil
}

func (m *MemoryStore) History(ctx context.Context, agentID string, limit int) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.txns[agentID]
	var result []*Transaction
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		cp := *all[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) append(agentID string, typ TxnType, amount, balanceAfter, description, reference string) *Transaction {
	txn := &Transaction{
		ID:           idgen.WithPrefix("txn_"),
		AgentID:      agentID,
		Type:         typ,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Status:       "COMPLETED",
		Description:  description,
		Reference:    reference,
		CreatedAt:    time.Now(),
	}
	m.txns[agentID] = append(m.txns[agentID], txn)
	cp := *txn
	return &cp
}
