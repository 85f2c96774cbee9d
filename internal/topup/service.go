package topup

import (
	"context"
	"fmt"
	"time"

	"github.com/skyfare/skyfare/internal/idgen"
	"github.com/skyfare/skyfare/internal/ledger"
	"github.com/skyfare/skyfare/internal/logging"
	"github.com/skyfare/skyfare/internal/money"
	"github.com/skyfare/skyfare/internal/syncutil"
)

// CreditLedger is the slice of the ledger the workflow needs.
type CreditLedger interface {
	GetAccount(ctx context.Context, agentID string) (*ledger.Account, error)
	Credit(ctx context.Context, agentID, amount string, typ ledger.TxnType, description, reference string) (*ledger.Transaction, error)
}

// Service implements the top-up request and review operations.
type Service struct {
	store     Store
	ledger    CreditLedger
	maxAmount string
	locks     *syncutil.KeyMutex
}

// NewService creates a top-up service. maxAmount caps a single request; an
// empty string means no cap.
func NewService(store Store, l CreditLedger, maxAmount string) *Service {
	return &Service{
		store:     store,
		ledger:    l,
		maxAmount: maxAmount,
		locks:     syncutil.NewKeyMutex(),
	}
}

// Request files a new top-up request for the agent. The request is PENDING
// until an admin reviews it; no money moves here.
func (s *Service) Request(ctx context.Context, agentID, amount, notes string) (*Request, error) {
	amt, err := money.Canonical(amount)
	if err != nil || !money.IsPositive(amt) {
		return nil, ErrInvalidAmount
	}
	if s.maxAmount != "" {
		cmp, err := money.Cmp(amt, s.maxAmount)
		if err != nil {
			return nil, ErrInvalidAmount
		}
		if cmp > 0 {
			return nil, ErrAmountTooLarge
		}
	}

	if _, err := s.ledger.GetAccount(ctx, agentID); err != nil {
		return nil, err
	}

	r := &Request{
		ID:           idgen.WithPrefix("top_"),
		AgentID:      agentID,
		Amount:       amt,
		Status:       StatusPending,
		RequestNotes: notes,
		RequestedAt:  time.Now(),
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}

	logging.L(ctx).Info("top-up requested",
		"topup_id", r.ID, "agent_id", agentID, "amount", amt)
	return r, nil
}

// Get returns a top-up request by id.
func (s *Service) Get(ctx context.Context, id string) (*Request, error) {
	return s.store.Get(ctx, id)
}

// List returns top-up requests filtered by agent and/or status.
func (s *Service) List(ctx context.Context, agentID string, status Status, limit int) ([]*Request, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.List(ctx, agentID, status, limit)
}

// Approve moves a PENDING request to APPROVED and credits the agent's ledger
// with a TOPUP transaction. The compare-and-set transition claims the request
// before any money moves, so a request is credited at most once; if the ledger
// credit then fails, the claim is rolled back to PENDING for a later retry.
func (s *Service) Approve(ctx context.Context, id, reviewedBy, reviewNotes string) (*Request, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := time.Now()
	r, err := s.store.Transition(ctx, id, StatusPending, Review{
		Status:      StatusApproved,
		ReviewedBy:  reviewedBy,
		ReviewNotes: reviewNotes,
		ReviewedAt:  now,
	})
	if err != nil {
		return nil, err
	}

	txn, err := s.ledger.Credit(ctx, r.AgentID, r.Amount, ledger.TxnTopup,
		"top-up approved", r.ID)
	if err != nil {
		if _, revertErr := s.store.Transition(ctx, id, StatusApproved, Review{
			Status:     StatusPending,
			ReviewedAt: now,
		}); revertErr != nil {
			logging.L(ctx).Error("top-up approval stuck: credit failed and revert failed",
				"topup_id", id, "credit_error", err, "revert_error", revertErr)
		}
		return nil, fmt.Errorf("credit ledger for top-up %s: %w", id, err)
	}

	r.TransactionID = txn.ID
	if err := s.store.SetTransactionID(ctx, id, txn.ID); err != nil {
		logging.L(ctx).Error("failed to record top-up transaction id",
			"topup_id", id, "transaction_id", txn.ID, "error", err)
	}

	logging.L(ctx).Info("top-up approved",
		"topup_id", id, "agent_id", r.AgentID, "amount", r.Amount, "reviewed_by", reviewedBy)
	return r, nil
}

// Reject moves a PENDING request to REJECTED. No money moves.
func (s *Service) Reject(ctx context.Context, id, reviewedBy, reviewNotes string) (*Request, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r, err := s.store.Transition(ctx, id, StatusPending, Review{
		Status:      StatusRejected,
		ReviewedBy:  reviewedBy,
		ReviewNotes: reviewNotes,
		ReviewedAt:  time.Now(),
	})
	if err != nil {
		return nil, err
	}

	logging.L(ctx).Info("top-up rejected",
		"topup_id", id, "agent_id", r.AgentID, "reviewed_by", reviewedBy)
	return r, nil
}
