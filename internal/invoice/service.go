package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skyfare/skyfare/internal/idgen"
	"github.com/skyfare/skyfare/internal/ledger"
	"github.com/skyfare/skyfare/internal/logging"
	"github.com/skyfare/skyfare/internal/metrics"
	"github.com/skyfare/skyfare/internal/money"
	"github.com/skyfare/skyfare/internal/syncutil"
	"github.com/skyfare/skyfare/internal/ticket"
)

// TicketSource supplies the issued tickets a cycle bills for.
type TicketSource interface {
	ListIssuedInWindow(ctx context.Context, agentID string, start, end time.Time) ([]*ticket.Ticket, error)
}

// AgentSource supplies the agent accounts a cycle run iterates.
type AgentSource interface {
	GetAccount(ctx context.Context, agentID string) (*ledger.Account, error)
	ListAccounts(ctx context.Context, activeOnly bool) ([]*ledger.Account, error)
}

// Mailer is notified after an invoice is materialized. Implementations must
// not block generation on delivery.
type Mailer interface {
	InvoiceGenerated(ctx context.Context, inv *Invoice)
}

// CycleResult summarizes one cycle generation run.
type CycleResult struct {
	PeriodStart time.Time  `json:"periodStart"`
	PeriodEnd   time.Time  `json:"periodEnd"`
	Generated   int        `json:"generated"`
	Skipped     int        `json:"skipped"`
	Invoices    []*Invoice `json:"invoices"`
}

// Service implements invoice generation, payment application, and ticket
// reconciliation. Per-invoice mutations are serialized through a keyed mutex.
type Service struct {
	store     Store
	tickets   TicketSource
	agents    AgentSource
	renderer  Renderer
	mailer    Mailer
	graceDays int
	locks     *syncutil.KeyMutex
}

// NewService creates an invoice service. graceDays is added to the period end
// to produce the due date.
func NewService(store Store, tickets TicketSource, agents AgentSource, renderer Renderer, graceDays int) *Service {
	if renderer == nil {
		renderer = NewPDFRenderer()
	}
	return &Service{
		store:     store,
		tickets:   tickets,
		agents:    agents,
		renderer:  renderer,
		graceDays: graceDays,
		locks:     syncutil.NewKeyMutex(),
	}
}

// SetMailer wires the invoice notification collaborator.
func (s *Service) SetMailer(m Mailer) {
	s.mailer = m
}

// GenerateForAgent materializes the agent's invoice for one period. Returns
// nil with no error when the agent has no eligible tickets in the window.
// An invoice already covering this agent and period surfaces as
// ErrDuplicateInvoicePeriod.
func (s *Service) GenerateForAgent(ctx context.Context, agentID string, start, end time.Time) (*Invoice, error) {
	if !start.Before(end) {
		return nil, ErrInvalidPeriod
	}
	if _, err := s.agents.GetAccount(ctx, agentID); err != nil {
		return nil, err
	}

	issued, err := s.tickets.ListIssuedInWindow(ctx, agentID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list issued tickets: %w", err)
	}
	if len(issued) == 0 {
		return nil, nil
	}

	ids := make([]string, len(issued))
	byID := make(map[string]*ticket.Ticket, len(issued))
	for i, t := range issued {
		ids[i] = t.ID
		byID[t.ID] = t
	}
	eligible, err := s.store.FilterUninvoiced(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("filter invoiced tickets: %w", err)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	now := time.Now()
	inv := &Invoice{
		ID:            idgen.WithPrefix("inv_"),
		InvoiceNumber: invoiceNumber(end),
		AgentID:       agentID,
		PeriodStart:   start,
		PeriodEnd:     end,
		PaidAmount:    money.Zero,
		Status:        StatusPending,
		DueDate:       end.AddDate(0, 0, s.graceDays),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	total := money.Zero
	for i, id := range eligible {
		t := byID[id]
		inv.Lines = append(inv.Lines, &Line{
			ID:         idgen.WithPrefix("lin_"),
			InvoiceID:  inv.ID,
			TicketID:   t.ID,
			Amount:     t.TotalAmount,
			PaidAmount: money.Zero,
			Status:     LinePending,
			// Strictly increasing timestamps keep allocation order stable
			// when lines are reloaded ordered by created_at.
			CreatedAt: now.Add(time.Duration(i)),
		})
		total, err = money.Add(total, t.TotalAmount)
		if err != nil {
			return nil, fmt.Errorf("sum ticket %s: %w", t.ID, err)
		}
	}
	inv.TotalAmount = total

	if err := s.store.Create(ctx, inv); err != nil {
		return nil, err
	}

	logging.L(ctx).Info("invoice generated",
		"invoice_id", inv.ID, "invoice_number", inv.InvoiceNumber,
		"agent_id", agentID, "lines", len(inv.Lines), "total", inv.TotalAmount)
	metrics.InvoicesGeneratedTotal.Inc()

	if s.mailer != nil {
		s.mailer.InvoiceGenerated(ctx, inv)
	}
	return inv, nil
}

// GenerateForCycle materializes invoices for every active agent for the
// period containing ref. Agents whose invoice already exists, or who have no
// eligible tickets, are skipped; the run is safe to repeat.
func (s *Service) GenerateForCycle(ctx context.Context, ref time.Time) (*CycleResult, error) {
	start, end := Period(ref)
	res := &CycleResult{PeriodStart: start, PeriodEnd: end}

	accounts, err := s.agents.ListAccounts(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list active agents: %w", err)
	}

	for _, a := range accounts {
		inv, err := s.GenerateForAgent(ctx, a.ID, start, end)
		switch {
		case errors.Is(err, ErrDuplicateInvoicePeriod):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("generate invoice for agent %s: %w", a.ID, err)
		case inv == nil:
			res.Skipped++
		default:
			res.Generated++
			res.Invoices = append(res.Invoices, inv)
		}
	}

	logging.L(ctx).Info("invoice cycle complete",
		"period_start", start.Format("2006-01-02"), "period_end", end.Format("2006-01-02"),
		"generated", res.Generated, "skipped", res.Skipped)
	return res, nil
}

// Get returns an invoice with lines, deriving OVERDUE on read so a stale
// stored status never hides a missed due date.
func (s *Service) Get(ctx context.Context, id string) (*Invoice, error) {
	inv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refreshStatus(inv, time.Now())
	return inv, nil
}

// List returns invoices, optionally filtered by agent and status.
func (s *Service) List(ctx context.Context, agentID string, status Status, limit int) ([]*Invoice, error) {
	if limit <= 0 {
		limit = 50
	}
	invoices, err := s.store.List(ctx, agentID, status, limit)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for _, inv := range invoices {
		s.refreshStatus(inv, now)
	}
	return invoices, nil
}

// Download renders an invoice document for the agent.
func (s *Service) Download(ctx context.Context, id string) ([]byte, string, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	acct, err := s.agents.GetAccount(ctx, inv.AgentID)
	if err != nil {
		return nil, "", err
	}
	return s.renderer.Render(inv, acct)
}

// ApplyPayment allocates amount across the invoice's unpaid lines oldest
// first and recomputes line and invoice status. ErrOverpayment when amount
// exceeds the outstanding balance; nothing is mutated on any failure.
func (s *Service) ApplyPayment(ctx context.Context, invoiceID, amount string) (*Invoice, error) {
	amt, err := money.Canonical(amount)
	if err != nil || !money.IsPositive(amt) {
		return nil, ErrInvalidAmount
	}

	unlock, err := s.locks.Lock(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	inv, err := s.store.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	outstanding, err := inv.Outstanding()
	if err != nil {
		return nil, err
	}
	if cmp, err := money.Cmp(amt, outstanding); err != nil || cmp > 0 {
		if err != nil {
			return nil, err
		}
		return nil, ErrOverpayment
	}

	// Lines are stored in creation order; fill the oldest shortfall first.
	remaining := amt
	for _, line := range inv.Lines {
		if !money.IsPositive(remaining) {
			break
		}
		lineDue, err := money.Sub(line.Amount, line.PaidAmount)
		if err != nil {
			return nil, err
		}
		take, err := money.Min(remaining, lineDue)
		if err != nil {
			return nil, err
		}
		if !money.IsPositive(take) {
			continue
		}
		line.PaidAmount, err = money.Add(line.PaidAmount, take)
		if err != nil {
			return nil, err
		}
		line.Status, err = deriveLineStatus(line.Amount, line.PaidAmount)
		if err != nil {
			return nil, err
		}
		remaining, err = money.Sub(remaining, take)
		if err != nil {
			return nil, err
		}
	}

	inv.PaidAmount, err = money.Add(inv.PaidAmount, amt)
	if err != nil {
		return nil, err
	}
	inv.Status, err = deriveStatus(inv.TotalAmount, inv.PaidAmount, inv.DueDate, time.Now())
	if err != nil {
		return nil, err
	}
	inv.UpdatedAt = time.Now()

	if err := s.store.Save(ctx, inv); err != nil {
		return nil, fmt.Errorf("save invoice %s: %w", invoiceID, err)
	}
	return inv, nil
}

// AdjustForTicket rewrites the ticket's invoice line after a void or refund.
// newAmount is what the ticket still owes; the line never drops below what
// was already paid against it. A line on a PAID invoice is left untouched and
// reported settled; a ticket with no line yet is a no-op.
func (s *Service) AdjustForTicket(ctx context.Context, ticketID, newAmount string) (bool, error) {
	inv, err := s.store.GetByTicket(ctx, ticketID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	unlock, err := s.locks.Lock(ctx, inv.ID)
	if err != nil {
		return false, err
	}
	defer unlock()

	// Reload under the lock; a payment may have landed meanwhile.
	inv, err = s.store.Get(ctx, inv.ID)
	if err != nil {
		return false, err
	}
	if inv.Status == StatusPaid {
		return true, nil
	}

	amt, err := money.Canonical(newAmount)
	if err != nil {
		return false, ErrInvalidAmount
	}

	var line *Line
	for _, l := range inv.Lines {
		if l.TicketID == ticketID {
			line = l
			break
		}
	}
	if line == nil {
		return false, nil
	}

	// Floor at the amount already paid against the line.
	floored, err := money.Cmp(amt, line.PaidAmount)
	if err != nil {
		return false, err
	}
	if floored < 0 {
		amt = line.PaidAmount
	}
	line.Amount = amt
	line.Status, err = deriveLineStatus(line.Amount, line.PaidAmount)
	if err != nil {
		return false, err
	}

	total := money.Zero
	for _, l := range inv.Lines {
		total, err = money.Add(total, l.Amount)
		if err != nil {
			return false, err
		}
	}
	inv.TotalAmount = total
	inv.Status, err = deriveStatus(inv.TotalAmount, inv.PaidAmount, inv.DueDate, time.Now())
	if err != nil {
		return false, err
	}
	inv.UpdatedAt = time.Now()

	if err := s.store.Save(ctx, inv); err != nil {
		return false, fmt.Errorf("save invoice %s: %w", inv.ID, err)
	}

	logging.L(ctx).Info("invoice line adjusted",
		"invoice_id", inv.ID, "ticket_id", ticketID, "line_amount", line.Amount)
	return false, nil
}

// SweepOverdue persists OVERDUE on every unpaid invoice past its due date.
func (s *Service) SweepOverdue(ctx context.Context) (int64, error) {
	return s.store.MarkOverdue(ctx, time.Now())
}

// refreshStatus re-derives a loaded invoice's status against now.
func (s *Service) refreshStatus(inv *Invoice, now time.Time) {
	if st, err := deriveStatus(inv.TotalAmount, inv.PaidAmount, inv.DueDate, now); err == nil {
		inv.Status = st
	}
}

// invoiceNumber builds a human-readable invoice number from the period end.
func invoiceNumber(periodEnd time.Time) string {
	suffix := strings.ToUpper(idgen.WithPrefix("")[:6])
	return fmt.Sprintf("INV-%s-%s", periodEnd.Format("20060102"), suffix)
}
