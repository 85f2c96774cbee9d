package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/skyfare/skyfare/internal/idgen"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL. Balance mutations run
// in serializable transactions; the credit invariant is also enforced by a
// CHECK constraint so a bug in the service layer cannot corrupt an account.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the agents and credit_transactions tables if they don't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS agents (
			id            VARCHAR(36) PRIMARY KEY,
			name          VARCHAR(255) NOT NULL,
			email         VARCHAR(255) NOT NULL UNIQUE,
			credit_limit  NUMERIC(20, 2) NOT NULL DEFAULT 0,
			credit_used   NUMERIC(20, 2) NOT NULL DEFAULT 0,
			is_active     BOOLEAN NOT NULL DEFAULT TRUE,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT agents_credit_range CHECK (credit_used >= 0 AND credit_used <= credit_limit)
		);
		CREATE TABLE IF NOT EXISTS credit_transactions (
			id             VARCHAR(36) PRIMARY KEY,
			agent_id       VARCHAR(36) NOT NULL REFERENCES agents(id),
			type           VARCHAR(16) NOT NULL,
			amount         NUMERIC(20, 2) NOT NULL,
			balance_after  NUMERIC(20, 2) NOT NULL,
			status         VARCHAR(16) NOT NULL DEFAULT 'COMPLETED',
			description    TEXT NOT NULL DEFAULT '',
			reference      VARCHAR(64),
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_credit_txns_agent ON credit_transactions(agent_id, created_at DESC);
	`)
	return err
}

func (p *PostgresStore) CreateAccount(ctx context.Context, a *Account) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, email, credit_limit, credit_used, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.Name, a.Email, a.CreditLimit, a.CreditUsed, a.IsActive, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAgentExists
		}
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetAccount(ctx context.Context, agentID string) (*Account, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, email, credit_limit, credit_used, is_active, created_at, updated_at
		FROM agents WHERE id = $1
	`, agentID)
	return scanAccount(row)
}

func (p *PostgresStore) ListAccounts(ctx context.Context, activeOnly bool) ([]*Account, error) {
	query := `
		SELECT id, name, email, credit_limit, credit_used, is_active, created_at, updated_at
		FROM agents`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY created_at`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (p *PostgresStore) UpdateAccount(ctx context.Context, a *Account) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE agents SET name = $2, email = $3, credit_limit = $4, is_active = $5, updated_at = $6
		WHERE id = $1
	`, a.ID, a.Name, a.Email, a.CreditLimit, a.IsActive, a.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23514" {
			return ErrInsufficientCredit
		}
		return fmt.Errorf("update agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAgentNotFound
	}
	return nil
}

func (p *PostgresStore) Debit(ctx context.Context, agentID, amount, description, reference string) (*Transaction, error) {
	return p.apply(ctx, agentID, TxnDebit, amount, description, reference, `
		UPDATE agents
		SET credit_used = credit_used + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING credit_used::TEXT
	`)
}

func (p *PostgresStore) Credit(ctx context.Context, agentID, amount string, typ TxnType, description, reference string) (*Transaction, error) {
	// GREATEST floors the balance at zero when the credited amount exceeds
	// the credit currently drawn.
	return p.apply(ctx, agentID, typ, amount, description, reference, `
		UPDATE agents
		SET credit_used = GREATEST(credit_used - $2, 0), updated_at = NOW()
		WHERE id = $1
		RETURNING credit_used::TEXT
	`)
}

func (p *PostgresStore) apply(ctx context.Context, agentID string, typ TxnType, amount, description, reference, update string) (*Transaction, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var balanceAfter string
	err = tx.QueryRowContext(ctx, update, agentID, amount).Scan(&balanceAfter)
	if err == sql.ErrNoRows {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23514" {
			return nil, ErrInsufficientCredit
		}
		return nil, fmt.Errorf("update balance: %w", err)
	}

	txn := &Transaction{
		ID:           idgen.WithPrefix("txn_"),
		AgentID:      agentID,
		Type:         typ,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Status:       "COMPLETED",
		Description:  description,
		Reference:    reference,
		CreatedAt:    time.Now(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, agent_id, type, amount, balance_after, status, description, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, txn.ID, txn.AgentID, string(txn.Type), txn.Amount, txn.BalanceAfter,
		txn.Status, txn.Description, nullString(txn.Reference), txn.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return txn, nil
}

func (p *PostgresStore) History(ctx context.Context, agentID string, limit int) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, agent_id, type, amount::TEXT, balance_after::TEXT, status, description, reference, created_at
		FROM credit_transactions
		WHERE agent_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Transaction
	for rows.Next() {
		var txn Transaction
		var typ string
		var reference sql.NullString
		err := rows.Scan(&txn.ID, &txn.AgentID, &typ, &txn.Amount, &txn.BalanceAfter,
			&txn.Status, &txn.Description, &reference, &txn.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txn.Type = TxnType(typ)
		if reference.Valid {
			txn.Reference = reference.String
		}
		result = append(result, &txn)
	}
	return result, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row scannable) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.CreditLimit, &a.CreditUsed,
		&a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	return &a, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
