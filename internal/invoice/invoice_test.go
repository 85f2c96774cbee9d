package invoice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfare/skyfare/internal/ledger"
	"github.com/skyfare/skyfare/internal/ticket"
)

func TestPeriodFirstHalf(t *testing.T) {
	ref := time.Date(2026, time.March, 8, 14, 30, 0, 0, time.UTC)
	start, end := Period(ref)
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 15, end.Day())
	assert.Equal(t, time.March, end.Month())
}

func TestPeriodSecondHalfMonthEnd(t *testing.T) {
	// 31-day month
	start, end := Period(time.Date(2026, time.January, 20, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 16, start.Day())
	assert.Equal(t, 31, end.Day())

	// 30-day month
	_, end = Period(time.Date(2026, time.April, 25, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 30, end.Day())

	// February, leap year
	_, end = Period(time.Date(2028, time.February, 16, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 29, end.Day())

	// February, non-leap year
	_, end = Period(time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 28, end.Day())
}

func TestPeriodBoundaryDays(t *testing.T) {
	// The 15th belongs to the first half, the 16th to the second.
	_, end := Period(time.Date(2026, time.May, 15, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, 15, end.Day())

	start, _ := Period(time.Date(2026, time.May, 16, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 16, start.Day())
}

func TestPreviousPeriod(t *testing.T) {
	// On the 16th the just-closed cycle is [1st, 15th].
	start, end := PreviousPeriod(time.Date(2026, time.June, 16, 3, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, start.Day())
	assert.Equal(t, 15, end.Day())
	assert.Equal(t, time.June, start.Month())

	// On the 1st it is the second half of the previous month.
	start, end = PreviousPeriod(time.Date(2026, time.July, 1, 3, 0, 0, 0, time.UTC))
	assert.Equal(t, 16, start.Day())
	assert.Equal(t, time.June, start.Month())
	assert.Equal(t, 30, end.Day())
}

type fixture struct {
	svc     *Service
	ledger  *ledger.Ledger
	tickets *ticket.MemoryStore
	agent   *ledger.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := ledger.New(ledger.NewMemoryStore())
	a, err := l.CreateAccount(context.Background(), "Orbit Travel", "billing@orbit.test", "10000.00")
	require.NoError(t, err)

	tickets := ticket.NewMemoryStore()
	svc := NewService(NewMemoryStore(), tickets, l, nil, 7)
	return &fixture{svc: svc, ledger: l, tickets: tickets, agent: a}
}

func (f *fixture) issuedTicket(t *testing.T, amount string, issuedAt time.Time) *ticket.Ticket {
	t.Helper()
	tk := &ticket.Ticket{
		ID:          "tkt_" + issuedAt.Format("20060102150405.000000000"),
		BookingID:   "bkg_1",
		AgentID:     f.agent.ID,
		Status:      ticket.StatusIssued,
		TotalAmount: amount,
		FareAmount:  amount,
		TaxAmount:   "0.00",
		Currency:    "USD",
		IssuedAt:    &issuedAt,
		CreatedAt:   issuedAt,
	}
	require.NoError(t, f.tickets.CreateBatch(context.Background(), []*ticket.Ticket{tk}))
	return tk
}

func TestGenerateForAgent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	start, end := Period(time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC))
	f.issuedTicket(t, "400.00", start.Add(24*time.Hour))
	f.issuedTicket(t, "250.00", start.Add(48*time.Hour))
	// Outside the window: must not be billed.
	f.issuedTicket(t, "999.00", end.Add(time.Hour))

	inv, err := f.svc.GenerateForAgent(ctx, f.agent.ID, start, end)
	require.NoError(t, err)
	require.NotNil(t, inv)

	assert.Equal(t, "650.00", inv.TotalAmount)
	assert.Equal(t, "0.00", inv.PaidAmount)
	assert.Equal(t, StatusPending, inv.Status)
	assert.Len(t, inv.Lines, 2)
	assert.Equal(t, end.AddDate(0, 0, 7), inv.DueDate)
	assert.NotEmpty(t, inv.InvoiceNumber)
}

func TestGenerateForAgentNoTickets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	start, end := Period(time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC))
	inv, err := f.svc.GenerateForAgent(ctx, f.agent.ID, start, end)
	require.NoError(t, err)
	assert.Nil(t, inv)
}

func TestGenerateForAgentDuplicatePeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	start, end := Period(time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC))
	f.issuedTicket(t, "400.00", start.Add(24*time.Hour))

	_, err := f.svc.GenerateForAgent(ctx, f.agent.ID, start, end)
	require.NoError(t, err)

	// Same period again: the ticket is already invoiced, so there is nothing
	// eligible and no duplicate invoice is created.
	inv, err := f.svc.GenerateForAgent(ctx, f.agent.ID, start, end)
	require.NoError(t, err)
	assert.Nil(t, inv)
}

func TestGenerateForCycleIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ref := time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC)
	start, _ := Period(ref)
	f.issuedTicket(t, "400.00", start.Add(24*time.Hour))

	res, err := f.svc.GenerateForCycle(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Generated)
	assert.Equal(t, 0, res.Skipped)

	res, err = f.svc.GenerateForCycle(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Generated)
	assert.Equal(t, 1, res.Skipped)

	invoices, err := f.svc.List(ctx, f.agent.ID, "", 10)
	require.NoError(t, err)
	assert.Len(t, invoices, 1)
}

func TestApplyPaymentAllocatesOldestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// The current period, so the due date is still ahead and the derived
	// status reflects payment progress rather than lateness.
	start, end := Period(time.Now())
	f.issuedTicket(t, "300.00", start.Add(1*time.Hour))
	f.issuedTicket(t, "200.00", start.Add(2*time.Hour))
	f.issuedTicket(t, "100.00", start.Add(3*time.Hour))

	inv, err := f.svc.GenerateForAgent(ctx, f.agent.ID, start, end)
	require.NoError(t, err)

	// 350 covers the first line and half of the second.
	updated, err := f.svc.ApplyPayment(ctx, inv.ID, "350.00")
	require.NoError(t, err)

	assert.Equal(t, "350.00", updated.PaidAmount)
	assert.Equal(t, StatusPartiallyPaid, updated.Status)
	assert.Equal(t, LinePaid, updated.Lines[0].Status)
	assert.Equal(t, "300.00", updated.Lines[0].PaidAmount)
	assert.Equal(t, LinePartiallyPaid, updated.Lines[1].Status)
	assert.Equal(t, "50.00", updated.Lines[1].PaidAmount)
	assert.Equal(t, LinePending, updated.Lines[2].Status)

	// Paying the rest settles the invoice.
	updated, err = f.svc.ApplyPayment(ctx, inv.ID, "250.00")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, updated.Status)
	for _, l := range updated.Lines {
		assert.Equal(t, LinePaid, l.Status)
	}
}

func TestApplyPaymentRejectsOverpayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	start, end := Period(time.Now())
	f.issuedTicket(t, "300.00", start.Add(time.Hour))

	inv, err := f.svc.GenerateForAgent(ctx, f.agent.ID, start, end)
	require.NoError(t, err)

	_, err = f.svc.ApplyPayment(ctx, inv.ID, "300.01")
	assert.ErrorIs(t, err, ErrOverpayment)

	_, err = f.svc.ApplyPayment(ctx, inv.ID, "0.00")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// Nothing was mutated by the rejected attempts.
	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", got.PaidAmount)
	assert.Equal(t, StatusPending, got.Status)
}

func TestAdjustForTicketOnUnpaidInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	start, end := Period(time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC))
	tk := f.issuedTicket(t, "300.00", start.Add(time.Hour))
	f.issuedTicket(t, "200.00", start.Add(2*time.Hour))

	inv, err := f.svc.GenerateForAgent(ctx, f.agent.ID, start, end)
	require.NoError(t, err)

	// Ticket voided: its line drops to zero and the invoice total follows.
	settled, err := f.svc.AdjustForTicket(ctx, tk.ID, "0.00")
	require.NoError(t, err)
	assert.False(t, settled)

	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "200.00", got.TotalAmount)
	assert.Equal(t, "0.00", got.Lines[0].Amount)
}

func TestAdjustForTicketFloorsAtPaidAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	start, end := Period(time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC))
	tk := f.issuedTicket(t, "300.00", start.Add(time.Hour))

	inv, err := f.svc.GenerateForAgent(ctx, f.agent.ID, start, end)
	require.NoError(t, err)

	_, err = f.svc.ApplyPayment(ctx, inv.ID, "120.00")
	require.NoError(t, err)

	// The refund would drop the line to 50.00, below the 120.00 already
	// paid against it; the line floors at the paid amount.
	settled, err := f.svc.AdjustForTicket(ctx, tk.ID, "50.00")
	require.NoError(t, err)
	assert.False(t, settled)

	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "120.00", got.Lines[0].Amount)
	assert.Equal(t, "120.00", got.TotalAmount)
	assert.Equal(t, StatusPaid, got.Status)
}

func TestAdjustForTicketPaidInvoiceUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	start, end := Period(time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC))
	tk := f.issuedTicket(t, "300.00", start.Add(time.Hour))

	inv, err := f.svc.GenerateForAgent(ctx, f.agent.ID, start, end)
	require.NoError(t, err)

	_, err = f.svc.ApplyPayment(ctx, inv.ID, "300.00")
	require.NoError(t, err)

	settled, err := f.svc.AdjustForTicket(ctx, tk.ID, "0.00")
	require.NoError(t, err)
	assert.True(t, settled)

	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "300.00", got.TotalAmount)
	assert.Equal(t, StatusPaid, got.Status)
}

func TestAdjustForTicketNotInvoiced(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	settled, err := f.svc.AdjustForTicket(ctx, "tkt_never_invoiced", "0.00")
	require.NoError(t, err)
	assert.False(t, settled)
}

func TestOverdueDerivedOnRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// A period well in the past, so the due date has long gone by.
	start, end := Period(time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC))
	f.issuedTicket(t, "300.00", start.Add(time.Hour))

	inv, err := f.svc.GenerateForAgent(ctx, f.agent.ID, start, end)
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, got.Status)

	n, err := f.svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTimerGeneratesOnBoundaryDaysOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Tickets issued in the first half of August.
	start, _ := Period(time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC))
	f.issuedTicket(t, "400.00", start.Add(24*time.Hour))

	timer := NewTimer(f.svc, time.Hour)

	// Mid-period tick: nothing generated.
	timer.Tick(ctx, time.Date(2026, time.August, 10, 6, 0, 0, 0, time.UTC))
	invoices, err := f.svc.List(ctx, f.agent.ID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, invoices)

	// The 16th: the just-closed [Aug 1, Aug 15] cycle is billed.
	timer.Tick(ctx, time.Date(2026, time.August, 16, 6, 0, 0, 0, time.UTC))
	invoices, err = f.svc.List(ctx, f.agent.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "400.00", invoices[0].TotalAmount)

	// Same day again: deduplicated.
	timer.Tick(ctx, time.Date(2026, time.August, 16, 7, 0, 0, 0, time.UTC))
	invoices, err = f.svc.List(ctx, f.agent.ID, "", 10)
	require.NoError(t, err)
	assert.Len(t, invoices, 1)
}

func TestDownloadRendersPDF(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	start, end := Period(time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC))
	f.issuedTicket(t, "300.00", start.Add(time.Hour))

	inv, err := f.svc.GenerateForAgent(ctx, f.agent.ID, start, end)
	require.NoError(t, err)

	doc, contentType, err := f.svc.Download(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.True(t, len(doc) > 100)
	assert.Equal(t, "%PDF", string(doc[:4]))
}
