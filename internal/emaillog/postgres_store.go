package emaillog

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

// NewPostgresStore creates a new PostgreSQL-backed email log store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the email_logs table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS email_logs (
			id              VARCHAR(36) PRIMARY KEY,
			invoice_id      VARCHAR(36) NOT NULL REFERENCES invoices(id),
			recipient_email VARCHAR(255) NOT NULL,
			status          VARCHAR(16) NOT NULL,
			trigger_source  VARCHAR(16) NOT NULL,
			message         TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_email_logs_invoice ON email_logs(invoice_id, created_at DESC);
	`)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, e *EmailLog) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO email_logs (id, invoice_id, recipient_email, status, trigger_source, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.InvoiceID, e.RecipientEmail, string(e.Status), string(e.TriggerSource), e.Message, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, invoiceID string, limit int) ([]*EmailLog, error) {
	query := `SELECT id, invoice_id, recipient_email, status, trigger_source, message, created_at FROM email_logs`
	args := []interface{}{}
	if invoiceID != "" {
		args = append(args, invoiceID)
		query += " WHERE invoice_id = $1"
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*EmailLog
	for rows.Next() {
		var e EmailLog
		var status, trigger string
		if err := rows.Scan(&e.ID, &e.InvoiceID, &e.RecipientEmail, &status, &trigger, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		e.Status = Status(status)
		e.TriggerSource = Trigger(trigger)
		result = append(result, &e)
	}
	return result, rows.Err()
}
