// Package ledger tracks each agent's revolving credit account.
//
// Flow:
//  1. Admin registers an agent with a credit limit
//  2. Ticket issuance debits the account (draws against the limit)
//  3. Approved top-ups and payments credit the account (release drawn credit)
//  4. Every mutation appends exactly one immutable transaction row
//
// Invariant: 0 <= creditUsed <= creditLimit after every committed operation.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/skyfare/skyfare/internal/idgen"
	"github.com/skyfare/skyfare/internal/money"
	"github.com/skyfare/skyfare/internal/retry"
	"github.com/skyfare/skyfare/internal/syncutil"
)

var (
	ErrAgentNotFound      = errors.New("agent not found")
	ErrAgentExists        = errors.New("agent already exists")
	ErrAgentInactive      = errors.New("agent account is not active")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrInvalidAmount      = errors.New("invalid amount")
)

// TxnType classifies a ledger transaction.
type TxnType string

const (
	TxnDebit  TxnType = "DEBIT"
	TxnCredit TxnType = "CREDIT"
	TxnTopup  TxnType = "TOPUP"
)

// Account is an agent's credit account.
type Account struct {
	ID          string    `json:"agentId"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	CreditLimit string    `json:"creditLimit"`
	CreditUsed  string    `json:"currentCredit"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Transaction is an append-only ledger entry. BalanceAfter records the
// account's creditUsed immediately after this transaction committed.
type Transaction struct {
	ID           string    `json:"transactionId"`
	AgentID      string    `json:"agentId"`
	Type         TxnType   `json:"type"`
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance"`
	Status       string    `json:"status"`
	Description  string    `json:"description"`
	Reference    string    `json:"reference,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Balance is the view returned to the agent portal.
type Balance struct {
	AgentID   string `json:"agentId"`
	Limit     string `json:"creditLimit"`
	Used      string `json:"currentCredit"`
	Available string `json:"availableCredit"`
}

// Store persists accounts and transactions. Debit and Credit must commit the
// balance change and the transaction row atomically, or not at all.
type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, agentID string) (*Account, error)
	ListAccounts(ctx context.Context, activeOnly bool) ([]*Account, error)
	UpdateAccount(ctx context.Context, a *Account) error
	Debit(ctx context.Context, agentID, amount, description, reference string) (*Transaction, error)
	Credit(ctx context.Context, agentID, amount string, typ TxnType, description, reference string) (*Transaction, error)
	History(ctx context.Context, agentID string, limit int) ([]*Transaction, error)
}

// Ledger provides credit account business logic. All mutations for one agent
// are serialized through a keyed mutex; transient store conflicts are retried
// a bounded number of times.
type Ledger struct {
	store Store
	locks *syncutil.KeyMutex
}

// New creates a new ledger over the given store.
func New(store Store) *Ledger {
	return &Ledger{store: store, locks: syncutil.NewKeyMutex()}
}

// CreateAccount registers a new agent credit account.
func (l *Ledger) CreateAccount(ctx context.Context, name, email, creditLimit string) (*Account, error) {
	limit, err := money.Canonical(creditLimit)
	if err != nil {
		return nil, ErrInvalidAmount
	}

	now := time.Now()
	a := &Account{
		ID:          idgen.WithPrefix("agt_"),
		Name:        name,
		Email:       email,
		CreditLimit: limit,
		CreditUsed:  money.Zero,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// GetAccount returns an agent account by id.
func (l *Ledger) GetAccount(ctx context.Context, agentID string) (*Account, error) {
	return l.store.GetAccount(ctx, agentID)
}

// ListAccounts returns agent accounts, optionally only active ones.
func (l *Ledger) ListAccounts(ctx context.Context, activeOnly bool) ([]*Account, error) {
	return l.store.ListAccounts(ctx, activeOnly)
}

// SetCreditLimit adjusts an agent's credit limit. The new limit must cover
// the credit currently drawn, otherwise the account invariant would break.
func (l *Ledger) SetCreditLimit(ctx context.Context, agentID, limit string) (*Account, error) {
	newLimit, err := money.Canonical(limit)
	if err != nil {
		return nil, ErrInvalidAmount
	}

	unlock, err := l.locks.Lock(ctx, agentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := l.store.GetAccount(ctx, agentID)
	if err != nil {
		return nil, err
	}

	cmp, err := money.Cmp(newLimit, a.CreditUsed)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if cmp < 0 {
		return nil, ErrInsufficientCredit
	}

	a.CreditLimit = newLimit
	a.UpdatedAt = time.Now()
	if err := l.store.UpdateAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// SetActive toggles an agent account.
func (l *Ledger) SetActive(ctx context.Context, agentID string, active bool) (*Account, error) {
	unlock, err := l.locks.Lock(ctx, agentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := l.store.GetAccount(ctx, agentID)
	if err != nil {
		return nil, err
	}
	a.IsActive = active
	a.UpdatedAt = time.Now()
	if err := l.store.UpdateAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Debit draws amount against the agent's credit limit. Fails with
// ErrInsufficientCredit when the draw would exceed the limit.
func (l *Ledger) Debit(ctx context.Context, agentID, amount, description, reference string) (*Transaction, error) {
	amt, err := money.Canonical(amount)
	if err != nil || !money.IsPositive(amt) {
		return nil, ErrInvalidAmount
	}

	unlock, err := l.locks.Lock(ctx, agentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := l.store.GetAccount(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !a.IsActive {
		return nil, ErrAgentInactive
	}

	var txn *Transaction
	err = retry.Do(ctx, 3, 25*time.Millisecond, func() error {
		var err error
		txn, err = l.store.Debit(ctx, agentID, amt, description, reference)
		if err != nil && !IsTransient(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Credit releases drawn credit, floored at zero: the transaction records the
// full requested amount, balanceAfter reflects the floored balance.
func (l *Ledger) Credit(ctx context.Context, agentID, amount string, typ TxnType, description, reference string) (*Transaction, error) {
	if typ != TxnCredit && typ != TxnTopup {
		return nil, ErrInvalidAmount
	}
	amt, err := money.Canonical(amount)
	if err != nil || !money.IsPositive(amt) {
		return nil, ErrInvalidAmount
	}

	unlock, err := l.locks.Lock(ctx, agentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := l.store.GetAccount(ctx, agentID); err != nil {
		return nil, err
	}

	var txn *Transaction
	err = retry.Do(ctx, 3, 25*time.Millisecond, func() error {
		var err error
		txn, err = l.store.Credit(ctx, agentID, amt, typ, description, reference)
		if err != nil && !IsTransient(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Balance returns an agent's limit, drawn credit, and available headroom.
func (l *Ledger) Balance(ctx context.Context, agentID string) (*Balance, error) {
	a, err := l.store.GetAccount(ctx, agentID)
	if err != nil {
		return nil, err
	}

	avail, err := money.Sub(a.CreditLimit, a.CreditUsed)
	if err != nil {
		return nil, err
	}
	return &Balance{
		AgentID:   a.ID,
		Limit:     a.CreditLimit,
		Used:      a.CreditUsed,
		Available: avail,
	}, nil
}

// History returns the agent's ledger transactions, newest first.
func (l *Ledger) History(ctx context.Context, agentID string, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.History(ctx, agentID, limit)
}

// IsTransient reports whether a store error is worth retrying: Postgres
// serialization failures and deadlocks under concurrent mutations.
func IsTransient(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
