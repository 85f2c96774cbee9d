package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfare/skyfare/internal/idgen"
	"github.com/skyfare/skyfare/internal/ledger"
	"github.com/skyfare/skyfare/internal/testutil"
)

// Exercises the real schema: the CHECK constraint is the last line of
// defense against overdrawing the credit line, and Debit/Credit must commit
// the balance change and the transaction row atomically.
func TestPostgresStoreCreditLine(t *testing.T) {
	db := testutil.StartPostgres(t)
	ctx := context.Background()

	store := ledger.NewPostgresStore(db)
	require.NoError(t, store.Migrate(ctx))

	l := ledger.New(store)

	acct, err := l.CreateAccount(ctx, "Orbit Travel", idgen.New()+"@test", "1000.00")
	require.NoError(t, err)

	txn, err := l.Debit(ctx, acct.ID, "400.00", "ticket issuance", "bkg_1")
	require.NoError(t, err)
	assert.Equal(t, "400.00", txn.BalanceAfter)

	// Exceeding the limit is rejected by the database constraint and the
	// balance stays where it was.
	_, err = l.Debit(ctx, acct.ID, "700.00", "ticket issuance", "bkg_2")
	assert.ErrorIs(t, err, ledger.ErrInsufficientCredit)

	bal, err := l.Balance(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "400.00", bal.Used)
	assert.Equal(t, "600.00", bal.Available)

	// Credits floor at zero.
	_, err = l.Credit(ctx, acct.ID, "500.00", ledger.TxnCredit, "refund", "tkt_1")
	require.NoError(t, err)

	bal, err = l.Balance(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", bal.Used)

	history, err := l.History(ctx, acct.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ledger.TxnCredit, history[0].Type)
	assert.Equal(t, ledger.TxnDebit, history[1].Type)
}

func TestPostgresStoreDuplicateEmail(t *testing.T) {
	db := testutil.StartPostgres(t)
	ctx := context.Background()

	store := ledger.NewPostgresStore(db)
	require.NoError(t, store.Migrate(ctx))

	l := ledger.New(store)
	email := idgen.New() + "@test"

	_, err := l.CreateAccount(ctx, "Zenith Tours", email, "500.00")
	require.NoError(t, err)

	_, err = l.CreateAccount(ctx, "Zenith Tours Again", email, "500.00")
	assert.ErrorIs(t, err, ledger.ErrAgentExists)
}
