package booking

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

// NewPostgresStore creates a new PostgreSQL-backed booking store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the bookings and passengers tables if they don't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bookings (
			id          VARCHAR(36) PRIMARY KEY,
			pnr         VARCHAR(16) NOT NULL,
			agent_id    VARCHAR(36) NOT NULL REFERENCES agents(id),
			status      VARCHAR(16) NOT NULL,
			origin      VARCHAR(8) NOT NULL DEFAULT '',
			destination VARCHAR(8) NOT NULL DEFAULT '',
			total_fare  NUMERIC(20, 2) NOT NULL,
			currency    VARCHAR(3) NOT NULL DEFAULT 'USD',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS passengers (
			id           VARCHAR(36) PRIMARY KEY,
			booking_id   VARCHAR(36) NOT NULL REFERENCES bookings(id),
			first_name   VARCHAR(128) NOT NULL,
			last_name    VARCHAR(128) NOT NULL,
			fare_amount  NUMERIC(20, 2) NOT NULL,
			tax_amount   NUMERIC(20, 2) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_bookings_agent ON bookings(agent_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_passengers_booking ON passengers(booking_id);
	`)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, b *Booking) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (id, pnr, agent_id, status, origin, destination, total_fare, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, b.ID, b.PNR, b.AgentID, string(b.Status), b.Origin, b.Dest, b.TotalFare, b.Currency, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	for _, pax := range b.Passengers {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO passengers (id, booking_id, first_name, last_name, fare_amount, tax_amount)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, pax.ID, b.ID, pax.FirstName, pax.LastName, pax.FareAmount, pax.TaxAmount)
		if err != nil {
			return fmt.Errorf("insert passenger: %w", err)
		}
	}

	return tx.Commit()
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Booking, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, pnr, agent_id, status, origin, destination, total_fare::TEXT, currency, created_at, updated_at
		FROM bookings WHERE id = $1
	`, id)

	b, err := scanBooking(row)
	if err != nil {
		return nil, err
	}
	if err := p.loadPassengers(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (p *PostgresStore) ListByAgent(ctx context.Context, agentID string, limit int) ([]*Booking, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, pnr, agent_id, status, origin, destination, total_fare::TEXT, currency, created_at, updated_at
		FROM bookings WHERE agent_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, b := range result {
		if err := p.loadPassengers(ctx, b); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE bookings SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := p.Get(ctx, id); err != nil {
			return ErrNotFound
		}
		return ErrInvalidState
	}
	return nil
}

func (p *PostgresStore) loadPassengers(ctx context.Context, b *Booking) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, fare_amount::TEXT, tax_amount::TEXT
		FROM passengers WHERE booking_id = $1 ORDER BY id
	`, b.ID)
	if err != nil {
		return fmt.Errorf("list passengers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var pax Passenger
		if err := rows.Scan(&pax.ID, &pax.FirstName, &pax.LastName, &pax.FareAmount, &pax.TaxAmount); err != nil {
			return fmt.Errorf("scan passenger: %w", err)
		}
		b.Passengers = append(b.Passengers, pax)
	}
	return rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row scannable) (*Booking, error) {
	var b Booking
	var status string
	err := row.Scan(&b.ID, &b.PNR, &b.AgentID, &status, &b.Origin, &b.Dest,
		&b.TotalFare, &b.Currency, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	b.Status = Status(status)
	return &b, nil
}
