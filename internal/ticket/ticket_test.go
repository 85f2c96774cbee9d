package ticket

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfare/skyfare/internal/booking"
	"github.com/skyfare/skyfare/internal/ledger"
)

type fakeAdjuster struct {
	calls   []string
	amounts []string
	settled bool
}

func (f *fakeAdjuster) AdjustForTicket(ctx context.Context, ticketID, newAmount string) (bool, error) {
	f.calls = append(f.calls, ticketID)
	f.amounts = append(f.amounts, newAmount)
	return f.settled, nil
}

type fixture struct {
	svc      *Service
	ledger   *ledger.Ledger
	bookings booking.Store
	agent    *ledger.Account
	adjuster *fakeAdjuster
}

func newFixture(t *testing.T, creditLimit string) *fixture {
	t.Helper()
	l := ledger.New(ledger.NewMemoryStore())
	a, err := l.CreateAccount(context.Background(), "Orbit Travel", "billing@orbit.test", creditLimit)
	require.NoError(t, err)

	bookings := booking.NewMemoryStore()
	adj := &fakeAdjuster{}
	svc := NewService(NewMemoryStore(), bookings, l)
	svc.SetInvoiceAdjuster(adj)

	return &fixture{svc: svc, ledger: l, bookings: bookings, agent: a, adjuster: adj}
}

func (f *fixture) confirmedBooking(t *testing.T, fares ...string) *booking.Booking {
	t.Helper()
	passengers := make([]booking.Passenger, len(fares))
	for i, fare := range fares {
		passengers[i] = booking.Passenger{
			FirstName: "Pax", LastName: "Traveller",
			FareAmount: fare, TaxAmount: "0.00",
		}
	}
	b, err := booking.NewBooking(f.agent.ID, "PNR001", "LHR", "JFK", "USD", passengers)
	require.NoError(t, err)
	require.NoError(t, f.bookings.Create(context.Background(), b))
	return b
}

func TestIssueDebitsBookingTotal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1000.00")
	b := f.confirmedBooking(t, "250.00", "150.00")

	tickets, err := f.svc.Issue(ctx, f.agent.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 2)

	for _, tk := range tickets {
		assert.Equal(t, StatusIssued, tk.Status)
		assert.NotEmpty(t, tk.TicketNumber)
		require.NotNil(t, tk.IssuedAt)
	}

	bal, err := f.ledger.Balance(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "400.00", bal.Used)

	got, err := f.bookings.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusTicketed, got.Status)
}

func TestIssueAllOrNothingOnInsufficientCredit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "300.00")
	b := f.confirmedBooking(t, "250.00", "150.00")

	_, err := f.svc.Issue(ctx, f.agent.ID, b.ID)
	assert.ErrorIs(t, err, ledger.ErrInsufficientCredit)

	// Nothing moved: no tickets, no debit, booking still CONFIRMED.
	tickets, err := f.svc.List(ctx, f.agent.ID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, tickets)

	bal, err := f.ledger.Balance(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", bal.Used)

	got, err := f.bookings.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, got.Status)
}

func TestIssueRequiresConfirmedBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1000.00")
	b := f.confirmedBooking(t, "100.00")

	require.NoError(t, f.bookings.UpdateStatus(ctx, b.ID, booking.StatusConfirmed, booking.StatusCancelled))

	_, err := f.svc.Issue(ctx, f.agent.ID, b.ID)
	assert.ErrorIs(t, err, ErrInvalidBookingState)
}

func TestIssueTwiceRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1000.00")
	b := f.confirmedBooking(t, "100.00")

	_, err := f.svc.Issue(ctx, f.agent.ID, b.ID)
	require.NoError(t, err)

	_, err = f.svc.Issue(ctx, f.agent.ID, b.ID)
	assert.ErrorIs(t, err, ErrInvalidBookingState)

	bal, err := f.ledger.Balance(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", bal.Used)
}

func TestVoidCreditsFullAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1000.00")
	b := f.confirmedBooking(t, "400.00")

	tickets, err := f.svc.Issue(ctx, f.agent.ID, b.ID)
	require.NoError(t, err)

	voided, err := f.svc.Void(ctx, tickets[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVoided, voided.Status)
	require.NotNil(t, voided.VoidDate)

	bal, err := f.ledger.Balance(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", bal.Used)

	// The invoice adjuster saw the ticket with nothing left owing.
	require.Len(t, f.adjuster.calls, 1)
	assert.Equal(t, tickets[0].ID, f.adjuster.calls[0])
	assert.Equal(t, "0.00", f.adjuster.amounts[0])
}

func TestPartialRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1000.00")
	b := f.confirmedBooking(t, "400.00")

	tickets, err := f.svc.Issue(ctx, f.agent.ID, b.ID)
	require.NoError(t, err)

	refunded, err := f.svc.Refund(ctx, tickets[0].ID, "150.00")
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, refunded.Status)
	assert.Equal(t, "150.00", refunded.RefundAmount)
	require.NotNil(t, refunded.RefundDate)

	bal, err := f.ledger.Balance(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "250.00", bal.Used)

	// Adjuster saw the remaining ticket value.
	require.Len(t, f.adjuster.amounts, 1)
	assert.Equal(t, "250.00", f.adjuster.amounts[0])
}

func TestRefundDefaultsToFullAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1000.00")
	b := f.confirmedBooking(t, "400.00")

	tickets, err := f.svc.Issue(ctx, f.agent.ID, b.ID)
	require.NoError(t, err)

	refunded, err := f.svc.Refund(ctx, tickets[0].ID, "")
	require.NoError(t, err)
	assert.Equal(t, "400.00", refunded.RefundAmount)

	bal, err := f.ledger.Balance(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", bal.Used)
}

func TestRefundRejectsExcessAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1000.00")
	b := f.confirmedBooking(t, "400.00")

	tickets, err := f.svc.Issue(ctx, f.agent.ID, b.ID)
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, tickets[0].ID, "400.01")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.svc.Refund(ctx, tickets[0].ID, "-1.00")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

// faultyLedger lets a test fail the credit leg on demand.
type faultyLedger struct {
	inner      *ledger.Ledger
	failCredit bool
}

func (f *faultyLedger) Debit(ctx context.Context, agentID, amount, description, reference string) (*ledger.Transaction, error) {
	return f.inner.Debit(ctx, agentID, amount, description, reference)
}

func (f *faultyLedger) Credit(ctx context.Context, agentID, amount string, typ ledger.TxnType, description, reference string) (*ledger.Transaction, error) {
	if f.failCredit {
		return nil, errors.New("ledger unavailable")
	}
	return f.inner.Credit(ctx, agentID, amount, typ, description, reference)
}

func TestVoidRestoresInvoiceLineWhenCreditFails(t *testing.T) {
	ctx := context.Background()

	l := ledger.New(ledger.NewMemoryStore())
	a, err := l.CreateAccount(ctx, "Orbit Travel", "billing@orbit.test", "1000.00")
	require.NoError(t, err)

	fl := &faultyLedger{inner: l}
	bookings := booking.NewMemoryStore()
	adj := &fakeAdjuster{}
	svc := NewService(NewMemoryStore(), bookings, fl)
	svc.SetInvoiceAdjuster(adj)

	passengers := []booking.Passenger{{
		FirstName: "Pax", LastName: "Traveller",
		FareAmount: "400.00", TaxAmount: "0.00",
	}}
	b, err := booking.NewBooking(a.ID, "PNR001", "LHR", "JFK", "USD", passengers)
	require.NoError(t, err)
	require.NoError(t, bookings.Create(ctx, b))

	tickets, err := svc.Issue(ctx, a.ID, b.ID)
	require.NoError(t, err)
	tk := tickets[0]

	fl.failCredit = true
	_, err = svc.Void(ctx, tk.ID)
	require.Error(t, err)

	// The void did not take: the ticket is still ISSUED, the line was zeroed
	// and then put back at the full ticket amount, and no credit landed.
	got, err := svc.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, got.Status)
	assert.Equal(t, []string{"0.00", "400.00"}, adj.amounts)

	bal, err := l.Balance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "400.00", bal.Used)

	// With the ledger back, the same void goes through.
	fl.failCredit = false
	voided, err := svc.Void(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVoided, voided.Status)

	bal, err = l.Balance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", bal.Used)
}

func TestReleaseOnlyFromIssued(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1000.00")
	b := f.confirmedBooking(t, "400.00")

	tickets, err := f.svc.Issue(ctx, f.agent.ID, b.ID)
	require.NoError(t, err)

	_, err = f.svc.Void(ctx, tickets[0].ID)
	require.NoError(t, err)

	_, err = f.svc.Void(ctx, tickets[0].ID)
	assert.ErrorIs(t, err, ErrInvalidTicketState)

	_, err = f.svc.Refund(ctx, tickets[0].ID, "")
	assert.ErrorIs(t, err, ErrInvalidTicketState)

	// Money released exactly once.
	bal, err := f.ledger.Balance(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", bal.Used)
}
