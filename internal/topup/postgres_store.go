package topup

import (
	"context"
	"database/sql"
	"fmt"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL. The review transition
// is a single conditional UPDATE, so exactly one reviewer wins a race.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed top-up store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the topup_requests table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS topup_requests (
			id              VARCHAR(36) PRIMARY KEY,
			agent_id        VARCHAR(36) NOT NULL REFERENCES agents(id),
			amount          NUMERIC(20, 2) NOT NULL CHECK (amount > 0),
			status          VARCHAR(16) NOT NULL DEFAULT 'PENDING',
			request_notes   TEXT NOT NULL DEFAULT '',
			review_notes    TEXT NOT NULL DEFAULT '',
			reviewed_by     VARCHAR(36),
			transaction_id  VARCHAR(36),
			requested_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			reviewed_at     TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_topups_agent ON topup_requests(agent_id, requested_at DESC);
		CREATE INDEX IF NOT EXISTS idx_topups_status ON topup_requests(status);
	`)
	return err
}

const topupColumns = `id, agent_id, amount::TEXT, status, request_notes, review_notes, reviewed_by, transaction_id, requested_at, reviewed_at`

func (p *PostgresStore) Create(ctx context.Context, r *Request) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO topup_requests (id, agent_id, amount, status, request_notes, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.AgentID, r.Amount, string(r.Status), r.RequestNotes, r.RequestedAt)
	if err != nil {
		return fmt.Errorf("insert topup request: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Request, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+topupColumns+` FROM topup_requests WHERE id = $1`, id)
	return scanRequest(row)
}

func (p *PostgresStore) List(ctx context.Context, agentID string, status Status, limit int) ([]*Request, error) {
	query := `SELECT ` + topupColumns + ` FROM topup_requests WHERE 1=1`
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
	query += fmt.Sprintf(" ORDER BY requested_at DESC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list topup requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (p *PostgresStore) Transition(ctx context.Context, id string, from Status, rev Review) (*Request, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE topup_requests
		SET status = $3, reviewed_by = NULLIF($4, ''), review_notes = $5,
		    reviewed_at = CASE WHEN $3 = 'PENDING' THEN NULL ELSE $6::TIMESTAMPTZ END
		WHERE id = $1 AND status = $2
		RETURNING `+topupColumns,
		id, string(from), string(rev.Status), rev.ReviewedBy, rev.ReviewNotes, rev.ReviewedAt)

	r, err := scanRequest(row)
	if err == ErrNotFound {
		// Row exists but was not in the expected status, or does not exist.
		if _, getErr := p.Get(ctx, id); getErr == nil {
			return nil, ErrAlreadyReviewed
		}
		return nil, ErrNotFound
	}
	return r, err
}

func (p *PostgresStore) SetTransactionID(ctx context.Context, id, txnID string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE topup_requests SET transaction_id = $2 WHERE id = $1`, id, txnID)
	if err != nil {
		return fmt.Errorf("set topup transaction id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row scannable) (*Request, error) {
	var r Request
	var status string
	var reviewedBy, txnID sql.NullString
	var reviewedAt sql.NullTime

	err := row.Scan(&r.ID, &r.AgentID, &r.Amount, &status, &r.RequestNotes,
		&r.ReviewNotes, &reviewedBy, &txnID, &r.RequestedAt, &reviewedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan topup request: %w", err)
	}

	r.Status = Status(status)
	if reviewedBy.Valid {
		r.ReviewedBy = reviewedBy.String
	}
	if txnID.Valid {
		r.TransactionID = txnID.String
	}
	if reviewedAt.Valid {
		at := reviewedAt.Time
		r.ReviewedAt = &at
	}
	return &r, nil
}
