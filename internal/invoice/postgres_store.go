package invoice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/skyfare/skyfare/internal/money"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL. Idempotency of cycle
// generation rests on UNIQUE(agent_id, period_start, period_end) and the
// UNIQUE ticket_id on invoice_lines.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed invoice store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the invoices and invoice_lines tables if they don't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS invoices (
			id             VARCHAR(36) PRIMARY KEY,
			invoice_number VARCHAR(32) NOT NULL UNIQUE,
			agent_id       VARCHAR(36) NOT NULL REFERENCES agents(id),
			period_start   TIMESTAMPTZ NOT NULL,
			period_end     TIMESTAMPTZ NOT NULL,
			total_amount   NUMERIC(20, 2) NOT NULL,
			paid_amount    NUMERIC(20, 2) NOT NULL DEFAULT 0,
			status         VARCHAR(16) NOT NULL DEFAULT 'PENDING',
			due_date       TIMESTAMPTZ NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT invoices_agent_period UNIQUE (agent_id, period_start, period_end),
			CONSTRAINT invoices_paid_range CHECK (paid_amount >= 0 AND paid_amount <= total_amount)
		);
		CREATE TABLE IF NOT EXISTS invoice_lines (
			id          VARCHAR(36) PRIMARY KEY,
			invoice_id  VARCHAR(36) NOT NULL REFERENCES invoices(id),
			ticket_id   VARCHAR(36) NOT NULL UNIQUE REFERENCES tickets(id),
			amount      NUMERIC(20, 2) NOT NULL,
			paid_amount NUMERIC(20, 2) NOT NULL DEFAULT 0,
			status      VARCHAR(16) NOT NULL DEFAULT 'PENDING',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_invoices_agent ON invoices(agent_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_invoices_due ON invoices(status, due_date);
		CREATE INDEX IF NOT EXISTS idx_invoice_lines_invoice ON invoice_lines(invoice_id, created_at);
	`)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, inv *Invoice) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (id, invoice_number, agent_id, period_start, period_end,
			total_amount, paid_amount, status, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, inv.ID, inv.InvoiceNumber, inv.AgentID, inv.PeriodStart, inv.PeriodEnd,
		inv.TotalAmount, inv.PaidAmount, string(inv.Status), inv.DueDate, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return mapUniqueViolation(err, "insert invoice")
	}

	for _, l := range inv.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO invoice_lines (id, invoice_id, ticket_id, amount, paid_amount, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, l.ID, l.InvoiceID, l.TicketID, l.Amount, l.PaidAmount, string(l.Status), l.CreatedAt)
		if err != nil {
			return mapUniqueViolation(err, "insert invoice line")
		}
	}
	return tx.Commit()
}

const invoiceColumns = `id, invoice_number, agent_id, period_start, period_end,
	total_amount::TEXT, paid_amount::TEXT, status, due_date, created_at, updated_at`

func (p *PostgresStore) Get(ctx context.Context, id string) (*Invoice, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		return nil, err
	}
	if err := p.loadLines(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (p *PostgresStore) GetByTicket(ctx context.Context, ticketID string) (*Invoice, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE id = (SELECT invoice_id FROM invoice_lines WHERE ticket_id = $1)
	`, ticketID)
	inv, err := scanInvoice(row)
	if err != nil {
		return nil, err
	}
	if err := p.loadLines(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (p *PostgresStore) List(ctx context.Context, agentID string, status Status, limit int) ([]*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE 1=1`
	args := []interface{}{}
	if agentID != "" {
		args = append(args, agentID)
		query += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if status != "" {
		args = append(args, string(status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, inv := range result {
		if err := p.loadLines(ctx, inv); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (p *PostgresStore) Save(ctx context.Context, inv *Invoice) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE invoices SET total_amount = $2, paid_amount = $3, status = $4, updated_at = $5
		WHERE id = $1
	`, inv.ID, inv.TotalAmount, inv.PaidAmount, string(inv.Status), inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	for _, l := range inv.Lines {
		_, err = tx.ExecContext(ctx, `
			UPDATE invoice_lines SET amount = $2, paid_amount = $3, status = $4 WHERE id = $1
		`, l.ID, l.Amount, l.PaidAmount, string(l.Status))
		if err != nil {
			return fmt.Errorf("update invoice line %s: %w", l.ID, err)
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) FilterUninvoiced(ctx context.Context, ticketIDs []string) ([]string, error) {
	if len(ticketIDs) == 0 {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT t.id FROM UNNEST($1::VARCHAR[]) AS t(id)
		WHERE NOT EXISTS (SELECT 1 FROM invoice_lines il WHERE il.ticket_id = t.id)
	`, pq.Array(ticketIDs))
	if err != nil {
		return nil, fmt.Errorf("filter uninvoiced tickets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// Preserve the caller's (issuance) order.
	keep := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ticket id: %w", err)
		}
		keep[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var result []string
	for _, id := range ticketIDs {
		if keep[id] {
			result = append(result, id)
		}
	}
	return result, nil
}

func (p *PostgresStore) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE invoices SET status = 'OVERDUE', updated_at = $1
		WHERE status IN ('PENDING', 'PARTIALLY_PAID') AND due_date < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("mark overdue: %w", err)
	}
	return res.RowsAffected()
}

func (p *PostgresStore) OutstandingTotal(ctx context.Context) (string, error) {
	var total sql.NullString
	err := p.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_amount - paid_amount), 0)::TEXT FROM invoices`).Scan(&total)
	if err != nil {
		return "", fmt.Errorf("sum outstanding: %w", err)
	}
	if !total.Valid {
		return money.Zero, nil
	}
	return money.Canonical(total.String)
}

func (p *PostgresStore) loadLines(ctx context.Context, inv *Invoice) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, invoice_id, ticket_id, amount::TEXT, paid_amount::TEXT, status, created_at
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY created_at, id
	`, inv.ID)
	if err != nil {
		return fmt.Errorf("list invoice lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var l Line
		var status string
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.TicketID, &l.Amount, &l.PaidAmount, &status, &l.CreatedAt); err != nil {
			return fmt.Errorf("scan invoice line: %w", err)
		}
		l.Status = LineStatus(status)
		inv.Lines = append(inv.Lines, &l)
	}
	return rows.Err()
}

func mapUniqueViolation(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		if strings.Contains(pqErr.Constraint, "ticket") {
			return ErrTicketAlreadyInvoiced
		}
		return ErrDuplicateInvoicePeriod
	}
	return fmt.Errorf("%s: %w", op, err)
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanInvoice(row scannable) (*Invoice, error) {
	var inv Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.InvoiceNumber, &inv.AgentID, &inv.PeriodStart,
		&inv.PeriodEnd, &inv.TotalAmount, &inv.PaidAmount, &status, &inv.DueDate,
		&inv.CreatedAt, &inv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan invoice: %w", err)
	}
	inv.Status = Status(status)
	return &inv, nil
}
