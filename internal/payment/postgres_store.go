package payment

import (
	"context"
	"database/sql"
	"fmt"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed payment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the payments table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			id             VARCHAR(36) PRIMARY KEY,
			invoice_id     VARCHAR(36) NOT NULL REFERENCES invoices(id),
			agent_id       VARCHAR(36) NOT NULL REFERENCES agents(id),
			amount         NUMERIC(20, 2) NOT NULL CHECK (amount > 0),
			method         VARCHAR(16) NOT NULL,
			transaction_id VARCHAR(64),
			status         VARCHAR(16) NOT NULL,
			failure_reason TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_payments_invoice ON payments(invoice_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_payments_agent ON payments(agent_id, created_at DESC);
	`)
	return err
}

const paymentColumns = `id, invoice_id, agent_id, amount::TEXT, method, transaction_id, status, failure_reason, created_at`

func (p *PostgresStore) Create(ctx context.Context, pay *Payment) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payments (id, invoice_id, agent_id, amount, method, transaction_id, status, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
	`, pay.ID, pay.InvoiceID, pay.AgentID, pay.Amount, string(pay.Method),
		pay.TransactionID, string(pay.Status), pay.FailureReason, pay.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Payment, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

func (p *PostgresStore) List(ctx context.Context, agentID, invoiceID string, limit int) ([]*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1=1`
	args := []interface{}{}
	if agentID != "" {
		args = append(args, agentID)
		query += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if invoiceID != "" {
		args = append(args, invoiceID)
		query += fmt.Sprintf(" AND invoice_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Payment
	for rows.Next() {
		pay, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, pay)
	}
	return result, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row scannable) (*Payment, error) {
	var pay Payment
	var method, status string
	var txnID sql.NullString

	err := row.Scan(&pay.ID, &pay.InvoiceID, &pay.AgentID, &pay.Amount,
		&method, &txnID, &status, &pay.FailureReason, &pay.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	pay.Method = Method(method)
	pay.Status = Status(status)
	if txnID.Valid {
		pay.TransactionID = txnID.String
	}
	return &pay, nil
}
