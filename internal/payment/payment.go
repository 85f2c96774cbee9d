// Package payment applies agent payments to invoices. Allocation across
// invoice lines, overpayment rejection, and status recomputation live in the
// invoice package; this package owns the payment records, the ledger credit
// for CREDIT payments, and card verification for CARD payments.
package payment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("payment not found")
	ErrInvalidMethod = errors.New("unsupported payment method")
	ErrPaymentFailed = errors.New("payment could not be processed")
)

// Method is how the agent settles an invoice.
type Method string

const (
	MethodCredit       Method = "CREDIT"
	MethodCard         Method = "CARD"
	MethodBankTransfer Method = "BANK_TRANSFER"
)

// Status is the processing outcome of a payment.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Payment is one settlement attempt against an invoice.
type Payment struct {
	ID            string    `json:"paymentId"`
	InvoiceID     string    `json:"invoiceId"`
	AgentID       string    `json:"agentId"`
	Amount        string    `json:"amount"`
	Method        Method    `json:"paymentMethod"`
	TransactionID string    `json:"transactionId,omitempty"`
	Status        Status    `json:"status"`
	FailureReason string    `json:"failureReason,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Store persists payment records.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	List(ctx context.Context, agentID, invoiceID string, limit int) ([]*Payment, error)
}

// CardVerifier checks an external card transaction before the payment is
// applied. Implementations verify the referenced charge succeeded and covers
// the amount being applied.
type CardVerifier interface {
	Verify(ctx context.Context, transactionID, amount, currency string) error
}

func validMethod(m Method) bool {
	switch m {
	case MethodCredit, MethodCard, MethodBankTransfer:
		return true
	}
	return false
}
