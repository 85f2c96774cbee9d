package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfare/skyfare/internal/invoice"
	"github.com/skyfare/skyfare/internal/ledger"
	"github.com/skyfare/skyfare/internal/topup"
)

func TestDashboardAggregates(t *testing.T) {
	ctx := context.Background()

	l := ledger.New(ledger.NewMemoryStore())
	a1, err := l.CreateAccount(ctx, "Orbit Travel", "orbit@test", "1000.00")
	require.NoError(t, err)
	a2, err := l.CreateAccount(ctx, "Zenith Tours", "zenith@test", "3000.00")
	require.NoError(t, err)

	_, err = l.Debit(ctx, a1.ID, "500.00", "tickets", "")
	require.NoError(t, err)
	_, err = l.SetActive(ctx, a2.ID, false)
	require.NoError(t, err)

	topups := topup.NewService(topup.NewMemoryStore(), l, "")
	_, err = topups.Request(ctx, a1.ID, "100.00", "")
	require.NoError(t, err)

	svc := NewService(l, topups, invoice.NewMemoryStore(), NewMemorySettingsStore())

	d, err := svc.Dashboard(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, d.TotalAgents)
	assert.Equal(t, 1, d.ActiveAgents)
	assert.Equal(t, 1, d.PendingTopups)
	assert.Equal(t, "4000.00", d.TotalCreditLimit)
	assert.Equal(t, "500.00", d.TotalCreditUsed)
	// 500 of 4000 = 12.50%
	assert.Equal(t, "12.50", d.CreditUtilization)
	assert.Equal(t, "0.00", d.OutstandingInvoice)
}

func TestUtilizationZeroLimit(t *testing.T) {
	assert.Equal(t, "0.00", utilization("0.00", "0.00"))
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySettingsStore()
	svc := NewService(nil, nil, nil, store)

	_, err := store.Get(ctx, "invoice.grace_days")
	assert.ErrorIs(t, err, ErrSettingNotFound)

	s, err := svc.PutSetting(ctx, "invoice.grace_days", "7")
	require.NoError(t, err)
	assert.Equal(t, "7", s.Value)

	s, err = svc.PutSetting(ctx, "invoice.grace_days", "10")
	require.NoError(t, err)
	assert.Equal(t, "10", s.Value)

	all, err := svc.Settings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "10", all[0].Value)
}
