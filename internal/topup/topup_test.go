package topup

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfare/skyfare/internal/ledger"
)

func newTestService(t *testing.T, maxAmount string) (*Service, *ledger.Ledger, *ledger.Account) {
	t.Helper()
	l := ledger.New(ledger.NewMemoryStore())
	a, err := l.CreateAccount(context.Background(), "Orbit Travel", "billing@orbit.test", "5000.00")
	require.NoError(t, err)

	// Draw some credit so an approved top-up has something to release.
	_, err = l.Debit(context.Background(), a.ID, "2000.00", "tickets", "")
	require.NoError(t, err)

	return NewService(NewMemoryStore(), l, maxAmount), l, a
}

func TestRequestAndApprove(t *testing.T) {
	ctx := context.Background()
	svc, l, a := newTestService(t, "")

	r, err := svc.Request(ctx, a.ID, "800.00", "monthly settlement")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, "800.00", r.Amount)

	approved, err := svc.Approve(ctx, r.ID, "admin_1", "verified wire transfer")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	assert.Equal(t, "admin_1", approved.ReviewedBy)
	assert.NotEmpty(t, approved.TransactionID)
	require.NotNil(t, approved.ReviewedAt)

	bal, err := l.Balance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "1200.00", bal.Used)

	txns, err := l.History(ctx, a.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, ledger.TxnTopup, txns[0].Type)
	assert.Equal(t, r.ID, txns[0].Reference)
}

func TestRejectDoesNotMoveMoney(t *testing.T) {
	ctx := context.Background()
	svc, l, a := newTestService(t, "")

	r, err := svc.Request(ctx, a.ID, "800.00", "")
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, r.ID, "admin_1", "no payment received")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, "no payment received", rejected.ReviewNotes)

	bal, err := l.Balance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "2000.00", bal.Used)
}

func TestReviewIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	svc, l, a := newTestService(t, "")

	r, err := svc.Request(ctx, a.ID, "500.00", "")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, r.ID, "admin_1", "")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, r.ID, "admin_2", "")
	assert.ErrorIs(t, err, ErrAlreadyReviewed)

	_, err = svc.Reject(ctx, r.ID, "admin_2", "")
	assert.ErrorIs(t, err, ErrAlreadyReviewed)

	// The ledger must have been credited exactly once.
	bal, err := l.Balance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "1500.00", bal.Used)
}

func TestConcurrentApprovalsCreditOnce(t *testing.T) {
	ctx := context.Background()
	svc, l, a := newTestService(t, "")

	r, err := svc.Request(ctx, a.ID, "500.00", "")
	require.NoError(t, err)

	const reviewers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Approve(ctx, r.ID, "admin", ""); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)

	bal, err := l.Balance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "1500.00", bal.Used)
}

func TestRequestValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, a := newTestService(t, "1000.00")

	_, err := svc.Request(ctx, a.ID, "-5.00", "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Request(ctx, a.ID, "0.00", "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Request(ctx, a.ID, "1000.01", "")
	assert.ErrorIs(t, err, ErrAmountTooLarge)

	_, err = svc.Request(ctx, "agt_missing", "100.00", "")
	assert.ErrorIs(t, err, ledger.ErrAgentNotFound)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	svc, _, a := newTestService(t, "")

	r1, err := svc.Request(ctx, a.ID, "100.00", "")
	require.NoError(t, err)
	_, err = svc.Request(ctx, a.ID, "200.00", "")
	require.NoError(t, err)

	_, err = svc.Approve(ctx, r1.ID, "admin_1", "")
	require.NoError(t, err)

	pending, err := svc.List(ctx, a.ID, StatusPending, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, "200.00", pending[0].Amount)

	all, err := svc.List(ctx, a.ID, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
