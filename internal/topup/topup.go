// Package topup implements the agent top-up approval workflow.
//
// An agent requests a top-up against credit they have drawn; the request sits
// PENDING until an admin approves or rejects it. Approval credits the agent's
// ledger account exactly once: the status transition is a compare-and-set on
// PENDING, so concurrent reviewers cannot both win.
package topup

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("top-up request not found")
	ErrAlreadyReviewed = errors.New("top-up request already reviewed")
	ErrInvalidAmount   = errors.New("invalid top-up amount")
	ErrAmountTooLarge  = errors.New("top-up amount exceeds the allowed maximum")
)

// Status is the review state of a top-up request.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Request is an agent's top-up request and its review outcome.
type Request struct {
	ID            string     `json:"topupId"`
	AgentID       string     `json:"agentId"`
	Amount        string     `json:"amount"`
	Status        Status     `json:"status"`
	RequestNotes  string     `json:"requestNotes,omitempty"`
	ReviewNotes   string     `json:"reviewNotes,omitempty"`
	ReviewedBy    string     `json:"reviewedBy,omitempty"`
	TransactionID string     `json:"transactionId,omitempty"`
	RequestedAt   time.Time  `json:"requestedAt"`
	ReviewedAt    *time.Time `json:"reviewedAt,omitempty"`
}

// Review carries the fields set when a request leaves PENDING.
type Review struct {
	Status        Status
	ReviewedBy    string
	ReviewNotes   string
	TransactionID string
	ReviewedAt    time.Time
}

// Store persists top-up requests. Transition must atomically move a request
// from the expected status to the review outcome, returning ErrAlreadyReviewed
// when the request is not in the expected status.
type Store interface {
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	List(ctx context.Context, agentID string, status Status, limit int) ([]*Request, error)
	Transition(ctx context.Context, id string, from Status, rev Review) (*Request, error)
	SetTransactionID(ctx context.Context, id, txnID string) error
}
