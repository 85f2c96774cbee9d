// Package invoice materializes bi-monthly invoices from issued tickets and
// keeps invoice and line payment state consistent as payments and ticket
// reconciliations arrive.
package invoice

import (
	"context"
	"errors"
	"time"

	"github.com/skyfare/skyfare/internal/money"
)

var (
	ErrNotFound               = errors.New("invoice not found")
	ErrDuplicateInvoicePeriod = errors.New("invoice already exists for this agent and period")
	ErrTicketAlreadyInvoiced  = errors.New("ticket is already attached to an invoice")
	ErrInvoiceSettled         = errors.New("invoice is already paid")
	ErrInvalidAmount          = errors.New("invalid payment amount")
	ErrOverpayment            = errors.New("payment exceeds the outstanding invoice amount")
	ErrInvalidPeriod          = errors.New("invalid invoice period")
)

// Status is the payment state of an invoice.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
	StatusOverdue       Status = "OVERDUE"
)

// LineStatus is the payment state of a single invoice line.
type LineStatus string

const (
	LinePending       LineStatus = "PENDING"
	LinePartiallyPaid LineStatus = "PARTIALLY_PAID"
	LinePaid          LineStatus = "PAID"
)

// Line is one ticket's charge on an invoice.
type Line struct {
	ID         string     `json:"lineId"`
	InvoiceID  string     `json:"invoiceId"`
	TicketID   string     `json:"ticketId"`
	Amount     string     `json:"amount"`
	PaidAmount string     `json:"paidAmount"`
	Status     LineStatus `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Invoice is one agent's bill for one bi-monthly period.
type Invoice struct {
	ID            string    `json:"invoiceId"`
	InvoiceNumber string    `json:"invoiceNumber"`
	AgentID       string    `json:"agentId"`
	PeriodStart   time.Time `json:"periodStart"`
	PeriodEnd     time.Time `json:"periodEnd"`
	TotalAmount   string    `json:"totalAmount"`
	PaidAmount    string    `json:"paidAmount"`
	Status        Status    `json:"status"`
	DueDate       time.Time `json:"dueDate"`
	Lines         []*Line   `json:"lines,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Outstanding returns the unpaid remainder of the invoice.
func (inv *Invoice) Outstanding() (string, error) {
	return money.Sub(inv.TotalAmount, inv.PaidAmount)
}

// Store persists invoices and their lines. Create must commit the invoice
// and all lines atomically, mapping uniqueness conflicts on (agent, period)
// to ErrDuplicateInvoicePeriod and on ticket to ErrTicketAlreadyInvoiced.
// Save must persist amount and status changes to the invoice and every
// carried line in one transaction.
type Store interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	GetByTicket(ctx context.Context, ticketID string) (*Invoice, error)
	List(ctx context.Context, agentID string, status Status, limit int) ([]*Invoice, error)
	Save(ctx context.Context, inv *Invoice) error
	FilterUninvoiced(ctx context.Context, ticketIDs []string) ([]string, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
	OutstandingTotal(ctx context.Context) (string, error)
}

// Period returns the bi-monthly billing period containing ref: days 1-15 map
// to [1st, 15th] and the rest of the month maps to [16th, end of month].
// Bounds are inclusive; the end carries 23:59:59.999999999 so timestamp
// comparisons cover the whole closing day.
func Period(ref time.Time) (start, end time.Time) {
	y, m, d := ref.Date()
	loc := ref.Location()
	if d <= 15 {
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		end = time.Date(y, m, 15, 23, 59, 59, 999999999, loc)
		return start, end
	}
	start = time.Date(y, m, 16, 0, 0, 0, 0, loc)
	// Day 0 of the next month normalizes to the last day of this month.
	eom := time.Date(y, m+1, 0, 23, 59, 59, 999999999, loc)
	return start, eom
}

// PreviousPeriod returns the period that closed immediately before the one
// containing ref. The cycle timer uses it on the 1st and the 16th to bill
// the cycle that just ended.
func PreviousPeriod(ref time.Time) (start, end time.Time) {
	s, _ := Period(ref)
	return Period(s.Add(-time.Nanosecond))
}

// deriveStatus computes the invoice status from its amounts and due date.
func deriveStatus(total, paid string, dueDate, now time.Time) (Status, error) {
	cmp, err := money.Cmp(paid, total)
	if err != nil {
		return "", err
	}
	if cmp >= 0 {
		return StatusPaid, nil
	}
	if now.After(dueDate) {
		return StatusOverdue, nil
	}
	if money.IsPositive(paid) {
		return StatusPartiallyPaid, nil
	}
	return StatusPending, nil
}

// deriveLineStatus computes a line's status from its amounts.
func deriveLineStatus(amount, paid string) (LineStatus, error) {
	cmp, err := money.Cmp(paid, amount)
	if err != nil {
		return "", err
	}
	if cmp >= 0 {
		return LinePaid, nil
	}
	if money.IsPositive(paid) {
		return LinePartiallyPaid, nil
	}
	return LinePending, nil
}
