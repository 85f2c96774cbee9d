package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfare/skyfare/internal/invoice"
	"github.com/skyfare/skyfare/internal/ledger"
	"github.com/skyfare/skyfare/internal/ticket"
)

type rejectingVerifier struct{ err error }

func (v *rejectingVerifier) Verify(ctx context.Context, transactionID, amount, currency string) error {
	return v.err
}

type fixture struct {
	svc     *Service
	ledger  *ledger.Ledger
	agent   *ledger.Account
	invoice *invoice.Invoice
}

// newFixture builds an agent with drawn credit and one open invoice with
// lines of 300.00 and 200.00.
func newFixture(t *testing.T, verifier CardVerifier) *fixture {
	t.Helper()
	ctx := context.Background()

	l := ledger.New(ledger.NewMemoryStore())
	a, err := l.CreateAccount(ctx, "Orbit Travel", "billing@orbit.test", "10000.00")
	require.NoError(t, err)
	_, err = l.Debit(ctx, a.ID, "500.00", "tickets", "")
	require.NoError(t, err)

	tickets := ticket.NewMemoryStore()
	start, end := invoice.Period(time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC))
	for i, amount := range []string{"300.00", "200.00"} {
		issuedAt := start.Add(time.Duration(i+1) * time.Hour)
		require.NoError(t, tickets.CreateBatch(ctx, []*ticket.Ticket{{
			ID: "tkt_" + amount, AgentID: a.ID, Status: ticket.StatusIssued,
			TotalAmount: amount, FareAmount: amount, TaxAmount: "0.00",
			Currency: "USD", IssuedAt: &issuedAt, CreatedAt: issuedAt,
		}}))
	}

	invSvc := invoice.NewService(invoice.NewMemoryStore(), tickets, l, nil, 7)
	inv, err := invSvc.GenerateForAgent(ctx, a.ID, start, end)
	require.NoError(t, err)
	require.NotNil(t, inv)

	svc := NewService(NewMemoryStore(), invSvc, l, verifier, "USD")
	return &fixture{svc: svc, ledger: l, agent: a, invoice: inv}
}

func TestCreditPaymentReleasesLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	p, err := f.svc.Pay(ctx, f.agent.ID, f.invoice.ID, "500.00", MethodCredit, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, p.Status)

	// The full 500.00 drawn credit was released.
	bal, err := f.ledger.Balance(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", bal.Used)
}

func TestPartialPaymentsSettleInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.svc.Pay(ctx, f.agent.ID, f.invoice.ID, "350.00", MethodBankTransfer, "wire-001")
	require.NoError(t, err)

	_, err = f.svc.Pay(ctx, f.agent.ID, f.invoice.ID, "150.00", MethodBankTransfer, "wire-002")
	require.NoError(t, err)

	payments, err := f.svc.List(ctx, f.agent.ID, f.invoice.ID, 10)
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	// Bank transfers settle the invoice without touching the ledger.
	bal, err := f.ledger.Balance(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "500.00", bal.Used)
}

func TestOverpaymentRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.svc.Pay(ctx, f.agent.ID, f.invoice.ID, "500.01", MethodCredit, "")
	assert.ErrorIs(t, err, invoice.ErrOverpayment)

	// A FAILED audit row exists; the ledger is untouched.
	payments, err := f.svc.List(ctx, f.agent.ID, f.invoice.ID, 10)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, StatusFailed, payments[0].Status)
	assert.NotEmpty(t, payments[0].FailureReason)

	bal, err := f.ledger.Balance(ctx, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "500.00", bal.Used)
}

func TestInvalidAmountAndMethod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.svc.Pay(ctx, f.agent.ID, f.invoice.ID, "0.00", MethodCredit, "")
	assert.ErrorIs(t, err, invoice.ErrInvalidAmount)

	_, err = f.svc.Pay(ctx, f.agent.ID, f.invoice.ID, "-10.00", MethodCredit, "")
	assert.ErrorIs(t, err, invoice.ErrInvalidAmount)

	_, err = f.svc.Pay(ctx, f.agent.ID, f.invoice.ID, "10.00", Method("CRYPTO"), "")
	assert.ErrorIs(t, err, ErrInvalidMethod)
}

func TestCardVerificationFailureBlocksPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &rejectingVerifier{err: errors.New("payment intent not succeeded")})

	_, err := f.svc.Pay(ctx, f.agent.ID, f.invoice.ID, "100.00", MethodCard, "pi_123")
	assert.ErrorIs(t, err, ErrPaymentFailed)

	payments, err := f.svc.List(ctx, f.agent.ID, f.invoice.ID, 10)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, StatusFailed, payments[0].Status)
}

func TestPayForeignInvoiceHidden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.svc.Pay(ctx, "agt_other", f.invoice.ID, "100.00", MethodCredit, "")
	assert.ErrorIs(t, err, invoice.ErrNotFound)
}
