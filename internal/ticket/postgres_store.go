package ticket

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ticket store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tickets table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tickets (
			id             VARCHAR(36) PRIMARY KEY,
			ticket_number  VARCHAR(20) NOT NULL UNIQUE,
			booking_id     VARCHAR(36) NOT NULL REFERENCES bookings(id),
			pnr            VARCHAR(16) NOT NULL,
			agent_id       VARCHAR(36) NOT NULL REFERENCES agents(id),
			passenger_id   VARCHAR(36) NOT NULL,
			passenger_name VARCHAR(255) NOT NULL,
			status         VARCHAR(16) NOT NULL,
			fare_amount    NUMERIC(20, 2) NOT NULL,
			tax_amount     NUMERIC(20, 2) NOT NULL,
			total_amount   NUMERIC(20, 2) NOT NULL,
			currency       VARCHAR(3) NOT NULL DEFAULT 'USD',
			issued_at      TIMESTAMPTZ,
			void_date      TIMESTAMPTZ,
			refund_date    TIMESTAMPTZ,
			refund_amount  NUMERIC(20, 2),
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_tickets_agent ON tickets(agent_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_tickets_issued ON tickets(agent_id, status, issued_at);
	`)
	return err
}

const ticketColumns = `id, ticket_number, booking_id, pnr, agent_id, passenger_id, passenger_name,
	status, fare_amount::TEXT, tax_amount::TEXT, total_amount::TEXT, currency,
	issued_at, void_date, refund_date, refund_amount::TEXT, created_at`

func (p *PostgresStore) CreateBatch(ctx context.Context, tickets []*Ticket) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range tickets {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tickets (id, ticket_number, booking_id, pnr, agent_id, passenger_id, passenger_name,
				status, fare_amount, tax_amount, total_amount, currency, issued_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, t.ID, t.TicketNumber, t.BookingID, t.PNR, t.AgentID, t.PassengerID, t.PassengerName,
			string(t.Status), t.FareAmount, t.TaxAmount, t.TotalAmount, t.Currency, t.IssuedAt, t.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert ticket %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Ticket, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	return scanTicket(row)
}

func (p *PostgresStore) List(ctx context.Context, agentID string, status Status, limit int) ([]*Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1=1`
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

	return p.queryTickets(ctx, query, args...)
}

func (p *PostgresStore) ListIssuedInWindow(ctx context.Context, agentID string, start, end time.Time) ([]*Ticket, error) {
	return p.queryTickets(ctx, `
		SELECT `+ticketColumns+` FROM tickets
		WHERE agent_id = $1 AND status = 'ISSUED' AND issued_at >= $2 AND issued_at <= $3
		ORDER BY issued_at
	`, agentID, start, end)
}

func (p *PostgresStore) Transition(ctx context.Context, id string, from, to Status, change StateChange) (*Ticket, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE tickets
		SET status = $3, void_date = $4, refund_date = $5, refund_amount = NULLIF($6, '')::NUMERIC
		WHERE id = $1 AND status = $2
		RETURNING `+ticketColumns,
		id, string(from), string(to), change.VoidDate, change.RefundDate, change.RefundAmount)

	t, err := scanTicket(row)
	if err == ErrNotFound {
		if _, getErr := p.Get(ctx, id); getErr == nil {
			return nil, ErrInvalidTicketState
		}
		return nil, ErrNotFound
	}
	return t, err
}

func (p *PostgresStore) queryTickets(ctx context.Context, query string, args ...interface{}) ([]*Ticket, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanTicket(row scannable) (*Ticket, error) {
	var t Ticket
	var status string
	var issuedAt, voidDate, refundDate sql.NullTime
	var refundAmount sql.NullString

	err := row.Scan(&t.ID, &t.TicketNumber, &t.BookingID, &t.PNR, &t.AgentID,
		&t.PassengerID, &t.PassengerName, &status, &t.FareAmount, &t.TaxAmount,
		&t.TotalAmount, &t.Currency, &issuedAt, &voidDate, &refundDate,
		&refundAmount, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ticket: %w", err)
	}

	t.Status = Status(status)
	if issuedAt.Valid {
		at := issuedAt.Time
		t.IssuedAt = &at
	}
	if voidDate.Valid {
		at := voidDate.Time
		t.VoidDate = &at
	}
	if refundDate.Valid {
		at := refundDate.Time
		t.RefundDate = &at
	}
	if refundAmount.Valid {
		t.RefundAmount = refundAmount.String
	}
	return &t, nil
}
