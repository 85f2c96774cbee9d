package emaillog

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

type fakeGateway struct {
	sent []Email
	err  error
}

func (g *fakeGateway) Send(ctx context.Context, e Email) error {
	g.sent = append(g.sent, e)
	return g.err
}

func newTestNotifier(t *testing.T, gw MailGateway) (*Notifier, *invoice.Invoice) {
	t.Helper()
	ctx := context.Background()

	l := ledger.New(ledger.NewMemoryStore())
	a, err := l.CreateAccount(ctx, "Orbit Travel", "billing@orbit.test", "10000.00")
	require.NoError(t, err)

	tickets := ticket.NewMemoryStore()
	start, end := invoice.Period(time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC))
	issuedAt := start.Add(time.Hour)
	require.NoError(t, tickets.CreateBatch(ctx, []*ticket.Ticket{{
		ID: "tkt_1", AgentID: a.ID, Status: ticket.StatusIssued,
		TotalAmount: "300.00", FareAmount: "300.00", TaxAmount: "0.00",
		Currency: "USD", IssuedAt: &issuedAt, CreatedAt: issuedAt,
	}}))

	invSvc := invoice.NewService(invoice.NewMemoryStore(), tickets, l, nil, 7)
	inv, err := invSvc.GenerateForAgent(ctx, a.ID, start, end)
	require.NoError(t, err)

	return NewNotifier(NewMemoryStore(), gw, l, invSvc, "billing@skyfare.test"), inv
}

func TestResendRecordsSentLog(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	n, inv := newTestNotifier(t, gw)

	entry, err := n.Resend(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, entry.Status)
	assert.Equal(t, TriggerManual, entry.TriggerSource)
	assert.Equal(t, "billing@orbit.test", entry.RecipientEmail)

	require.Len(t, gw.sent, 1)
	assert.Equal(t, "billing@orbit.test", gw.sent[0].To)
	assert.Contains(t, gw.sent[0].Subject, inv.InvoiceNumber)
}

func TestFailedDeliveryStillLogged(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{err: errors.New("gateway timeout")}
	n, inv := newTestNotifier(t, gw)

	entry, err := n.Resend(ctx, inv.ID)
	require.Error(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, StatusFailed, entry.Status)
	assert.Contains(t, entry.Message, "gateway timeout")

	logs, err := n.List(ctx, inv.ID, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestRepeatedResendsAppendRows(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{}
	n, inv := newTestNotifier(t, gw)

	for i := 0; i < 3; i++ {
		_, err := n.Resend(ctx, inv.ID)
		require.NoError(t, err)
	}

	logs, err := n.List(ctx, inv.ID, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}

func TestResendUnknownInvoice(t *testing.T) {
	ctx := context.Background()
	n, _ := newTestNotifier(t, &fakeGateway{})

	_, err := n.Resend(ctx, "inv_missing")
	assert.ErrorIs(t, err, invoice.ErrNotFound)
}
