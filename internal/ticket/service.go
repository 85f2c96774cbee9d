package ticket

import (
	"context"
	"fmt"
	"time"

	"github.com/skyfare/skyfare/internal/booking"
	"github.com/skyfare/skyfare/internal/idgen"
	"github.com/skyfare/skyfare/internal/ledger"
	"github.com/skyfare/skyfare/internal/logging"
	"github.com/skyfare/skyfare/internal/metrics"
	"github.com/skyfare/skyfare/internal/money"
	"github.com/skyfare/skyfare/internal/syncutil"
)

// CreditLedger is the slice of the ledger the lifecycle needs.
type CreditLedger interface {
	Debit(ctx context.Context, agentID, amount, description, reference string) (*ledger.Transaction, error)
	Credit(ctx context.Context, agentID, amount string, typ ledger.TxnType, description, reference string) (*ledger.Transaction, error)
}

// InvoiceAdjuster reconciles invoice lines when a ticket is voided or
// refunded. settled reports that the ticket's line sits on an already-PAID
// invoice and was deliberately left untouched; a ticket that has not been
// invoiced yet is a no-op with settled false.
type InvoiceAdjuster interface {
	AdjustForTicket(ctx context.Context, ticketID, newAmount string) (settled bool, err error)
}

// Service implements ticket issuance, void, and refund.
type Service struct {
	store    Store
	bookings booking.Store
	ledger   CreditLedger
	invoices InvoiceAdjuster
	locks    *syncutil.KeyMutex
}

// NewService creates a ticket service. adjuster may be nil during wiring;
// use SetInvoiceAdjuster before serving traffic.
func NewService(store Store, bookings booking.Store, l CreditLedger) *Service {
	return &Service{
		store:    store,
		bookings: bookings,
		ledger:   l,
		locks:    syncutil.NewKeyMutex(),
	}
}

// SetInvoiceAdjuster wires the invoice reconciliation collaborator. The
// invoice service consumes issued tickets, so the two are built in sequence
// and connected here.
func (s *Service) SetInvoiceAdjuster(a InvoiceAdjuster) {
	s.invoices = a
}

// Issue tickets every passenger on a CONFIRMED booking. A single ledger debit
// for the booking total makes issuance all-or-nothing: either every passenger
// gets an ISSUED ticket and the booking moves to TICKETED, or nothing changes.
func (s *Service) Issue(ctx context.Context, agentID, bookingID string) ([]*Ticket, error) {
	unlock, err := s.locks.Lock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.AgentID != agentID {
		return nil, booking.ErrNotFound
	}
	if b.Status != booking.StatusConfirmed {
		return nil, ErrInvalidBookingState
	}
	if len(b.Passengers) == 0 {
		return nil, booking.ErrNoPassengers
	}

	now := time.Now()
	tickets := make([]*Ticket, 0, len(b.Passengers))
	for _, pax := range b.Passengers {
		total, err := money.Add(pax.FareAmount, pax.TaxAmount)
		if err != nil {
			return nil, fmt.Errorf("passenger %s fare: %w", pax.ID, err)
		}
		issuedAt := now
		tickets = append(tickets, &Ticket{
			ID:            idgen.WithPrefix("tkt_"),
			TicketNumber:  ticketNumber(),
			BookingID:     b.ID,
			PNR:           b.PNR,
			AgentID:       b.AgentID,
			PassengerID:   pax.ID,
			PassengerName: pax.FirstName + " " + pax.LastName,
			Status:        StatusIssued,
			FareAmount:    pax.FareAmount,
			TaxAmount:     pax.TaxAmount,
			TotalAmount:   total,
			Currency:      b.Currency,
			IssuedAt:      &issuedAt,
			CreatedAt:     now,
		})
	}

	debit, err := s.ledger.Debit(ctx, b.AgentID, b.TotalFare,
		fmt.Sprintf("tickets issued for PNR %s", b.PNR), b.ID)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateBatch(ctx, tickets); err != nil {
		s.compensate(ctx, b.AgentID, b.TotalFare, b.ID, "ticket issuance failed")
		return nil, fmt.Errorf("persist tickets for booking %s: %w", bookingID, err)
	}

	if err := s.bookings.UpdateStatus(ctx, bookingID, booking.StatusConfirmed, booking.StatusTicketed); err != nil {
		logging.L(ctx).Error("booking not marked TICKETED after issuance",
			"booking_id", bookingID, "error", err)
	}

	logging.L(ctx).Info("tickets issued",
		"booking_id", bookingID, "agent_id", b.AgentID,
		"tickets", len(tickets), "amount", b.TotalFare, "transaction_id", debit.ID)
	metrics.TicketsTotal.WithLabelValues(string(StatusIssued)).Add(float64(len(tickets)))
	metrics.LedgerOpsTotal.WithLabelValues("ticket_debit").Inc()

	return tickets, nil
}

// Void cancels an ISSUED ticket and credits the full ticket amount back to
// the agent's ledger.
func (s *Service) Void(ctx context.Context, id string) (*Ticket, error) {
	return s.release(ctx, id, StatusVoided, "")
}

// Refund refunds an ISSUED ticket. amount defaults to the ticket total when
// empty and may not exceed it.
func (s *Service) Refund(ctx context.Context, id, amount string) (*Ticket, error) {
	return s.release(ctx, id, StatusRefunded, amount)
}

// release is the shared void/refund path. The status transition is claimed
// first so a ticket releases money at most once; the ledger credit failing
// rolls the claim back.
func (s *Service) release(ctx context.Context, id string, to Status, amount string) (*Ticket, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusIssued {
		return nil, ErrInvalidTicketState
	}

	creditAmount := t.TotalAmount
	if to == StatusRefunded {
		if amount == "" {
			amount = t.TotalAmount
		}
		amt, err := money.Canonical(amount)
		if err != nil || !money.IsPositive(amt) {
			return nil, ErrInvalidAmount
		}
		if cmp, err := money.Cmp(amt, t.TotalAmount); err != nil || cmp > 0 {
			return nil, ErrInvalidAmount
		}
		creditAmount = amt
	}

	now := time.Now()
	change := StateChange{}
	action := "ticket voided"
	if to == StatusVoided {
		change.VoidDate = &now
	} else {
		change.RefundDate = &now
		change.RefundAmount = creditAmount
		action = "ticket refunded"
	}

	updated, err := s.store.Transition(ctx, id, StatusIssued, to, change)
	if err != nil {
		return nil, err
	}

	// What the ticket still owes the invoice after this release.
	remaining, err := money.Sub(t.TotalAmount, creditAmount)
	if err != nil {
		remaining = money.Zero
	}

	settled := false
	adjusted := false
	if s.invoices != nil {
		settled, err = s.invoices.AdjustForTicket(ctx, id, remaining)
		if err != nil {
			logging.L(ctx).Error("invoice adjustment failed",
				"ticket_id", id, "error", err)
		}
		adjusted = err == nil && !settled
	}

	description := fmt.Sprintf("%s %s", action, t.TicketNumber)
	if settled {
		description += " (reconciliation: invoice already paid)"
	}

	if _, err := s.ledger.Credit(ctx, t.AgentID, creditAmount, ledger.TxnCredit, description, id); err != nil {
		// The ticket stays ISSUED, so its invoice line must carry the full
		// amount again.
		if adjusted {
			if _, restoreErr := s.invoices.AdjustForTicket(ctx, id, t.TotalAmount); restoreErr != nil {
				logging.L(ctx).Error("invoice line restore failed after credit failure",
					"ticket_id", id, "credit_error", err, "restore_error", restoreErr)
			}
		}
		if _, revertErr := s.store.Transition(ctx, id, to, StatusIssued, StateChange{}); revertErr != nil {
			logging.L(ctx).Error("ticket release stuck: credit failed and revert failed",
				"ticket_id", id, "credit_error", err, "revert_error", revertErr)
		}
		return nil, fmt.Errorf("credit ledger for ticket %s: %w", id, err)
	}

	logging.L(ctx).Info(action,
		"ticket_id", id, "agent_id", t.AgentID, "amount", creditAmount, "invoice_settled", settled)
	metrics.TicketsTotal.WithLabelValues(string(to)).Inc()

	return updated, nil
}

// Get returns a ticket by id.
func (s *Service) Get(ctx context.Context, id string) (*Ticket, error) {
	return s.store.Get(ctx, id)
}

// List returns an agent's tickets, optionally filtered by status.
func (s *Service) List(ctx context.Context, agentID string, status Status, limit int) ([]*Ticket, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.List(ctx, agentID, status, limit)
}

// compensate credits back a debit whose follow-up work failed.
func (s *Service) compensate(ctx context.Context, agentID, amount, reference, reason string) {
	if _, err := s.ledger.Credit(ctx, agentID, amount, ledger.TxnCredit,
		"reversal: "+reason, reference); err != nil {
		logging.L(ctx).Error("compensating credit failed",
			"agent_id", agentID, "amount", amount, "reference", reference, "error", err)
	}
}
