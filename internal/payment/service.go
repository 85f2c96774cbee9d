package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/skyfare/skyfare/internal/idgen"
	"github.com/skyfare/skyfare/internal/invoice"
	"github.com/skyfare/skyfare/internal/ledger"
	"github.com/skyfare/skyfare/internal/logging"
	"github.com/skyfare/skyfare/internal/metrics"
	"github.com/skyfare/skyfare/internal/money"
)

// InvoiceApplier is the slice of the invoice service payments need.
type InvoiceApplier interface {
	Get(ctx context.Context, id string) (*invoice.Invoice, error)
	ApplyPayment(ctx context.Context, invoiceID, amount string) (*invoice.Invoice, error)
}

// CreditLedger is the slice of the ledger payments need.
type CreditLedger interface {
	Credit(ctx context.Context, agentID, amount string, typ ledger.TxnType, description, reference string) (*ledger.Transaction, error)
}

// Service processes invoice payments.
type Service struct {
	store    Store
	invoices InvoiceApplier
	ledger   CreditLedger
	cards    CardVerifier
	currency string
}

// NewService creates a payment service. cards may be nil, in which case CARD
// payments are accepted without external verification.
func NewService(store Store, invoices InvoiceApplier, l CreditLedger, cards CardVerifier, currency string) *Service {
	return &Service{
		store:    store,
		invoices: invoices,
		ledger:   l,
		cards:    cards,
		currency: currency,
	}
}

// Pay applies amount to the invoice. The invoice side allocates across lines
// oldest first and rejects overpayment; a CREDIT payment additionally
// releases the same amount of drawn credit on the agent's ledger. The
// returned payment is COMPLETED only when the whole application committed.
func (s *Service) Pay(ctx context.Context, agentID, invoiceID, amount string, method Method, transactionID string) (*Payment, error) {
	if !validMethod(method) {
		return nil, ErrInvalidMethod
	}
	amt, err := money.Canonical(amount)
	if err != nil || !money.IsPositive(amt) {
		return nil, invoice.ErrInvalidAmount
	}

	inv, err := s.invoices.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if agentID != "" && inv.AgentID != agentID {
		return nil, invoice.ErrNotFound
	}

	p := &Payment{
		ID:            idgen.WithPrefix("pay_"),
		InvoiceID:     invoiceID,
		AgentID:       inv.AgentID,
		Amount:        amt,
		Method:        method,
		TransactionID: transactionID,
		CreatedAt:     time.Now(),
	}

	if method == MethodCard && s.cards != nil {
		if err := s.cards.Verify(ctx, transactionID, amt, s.currency); err != nil {
			s.recordFailure(ctx, p, err)
			return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
	}

	if _, err := s.invoices.ApplyPayment(ctx, invoiceID, amt); err != nil {
		s.recordFailure(ctx, p, err)
		return nil, err
	}

	if method == MethodCredit {
		if _, err := s.ledger.Credit(ctx, inv.AgentID, amt, ledger.TxnCredit,
			fmt.Sprintf("payment against invoice %s", inv.InvoiceNumber), p.ID); err != nil {
			// The invoice accepted the money; a failed credit release is an
			// inconsistency to surface loudly, not to hide by failing the
			// whole payment.
			logging.L(ctx).Error("ledger credit failed after invoice payment",
				"payment_id", p.ID, "invoice_id", invoiceID, "error", err)
		}
	}

	p.Status = StatusCompleted
	if err := s.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}

	logging.L(ctx).Info("payment applied",
		"payment_id", p.ID, "invoice_id", invoiceID, "agent_id", inv.AgentID,
		"amount", amt, "method", method)
	metrics.PaymentsTotal.WithLabelValues(string(StatusCompleted)).Inc()

	return p, nil
}

// Get returns a payment by id.
func (s *Service) Get(ctx context.Context, id string) (*Payment, error) {
	return s.store.Get(ctx, id)
}

// List returns payments filtered by agent and/or invoice.
func (s *Service) List(ctx context.Context, agentID, invoiceID string, limit int) ([]*Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.List(ctx, agentID, invoiceID, limit)
}

// recordFailure keeps an audit row for a rejected payment attempt. The
// invoice and ledger are untouched.
func (s *Service) recordFailure(ctx context.Context, p *Payment, cause error) {
	p.Status = StatusFailed
	p.FailureReason = cause.Error()
	if err := s.store.Create(ctx, p); err != nil {
		logging.L(ctx).Error("failed to record payment failure",
			"payment_id", p.ID, "error", err)
	}
	metrics.PaymentsTotal.WithLabelValues(string(StatusFailed)).Inc()
}
