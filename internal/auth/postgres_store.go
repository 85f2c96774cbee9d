package auth

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

// NewPostgresStore creates a new PostgreSQL-backed auth store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the api_keys table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS api_keys (
			id          VARCHAR(36) PRIMARY KEY,
			key_hash    VARCHAR(64) NOT NULL UNIQUE,
			role        VARCHAR(16) NOT NULL,
			agent_id    VARCHAR(36),
			name        VARCHAR(255) NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_used   TIMESTAMPTZ,
			expires_at  TIMESTAMPTZ,
			revoked     BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS idx_api_keys_agent ON api_keys(agent_id);
	`)
	return err
}

func (p *PostgresStore) Create(ctx context.Context, pr *Principal) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, key_hash, role, agent_id, name, created_at, last_used, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, pr.ID, pr.Hash, string(pr.Role), nullString(pr.AgentID), pr.Name,
		pr.CreatedAt, nullTime(pr.LastUsed), pr.ExpiresAt, pr.Revoked)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetByHash(ctx context.Context, hash string) (*Principal, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, key_hash, role, agent_id, name, created_at, last_used, expires_at, revoked
		FROM api_keys WHERE key_hash = $1
	`, hash)
	return scanPrincipal(row)
}

func (p *PostgresStore) GetByAgent(ctx context.Context, agentID string) ([]*Principal, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, key_hash, role, agent_id, name, created_at, last_used, expires_at, revoked
		FROM api_keys WHERE agent_id = $1 ORDER BY created_at DESC
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Principal
	for rows.Next() {
		pr, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, pr)
	}
	return result, rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, pr *Principal) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE api_keys SET last_used = $2, expires_at = $3, revoked = $4 WHERE id = $1
	`, pr.ID, nullTime(pr.LastUsed), pr.ExpiresAt, pr.Revoked)
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrKeyNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanPrincipal(row scannable) (*Principal, error) {
	var pr Principal
	var role string
	var agentID sql.NullString
	var lastUsed sql.NullTime

	err := row.Scan(&pr.ID, &pr.Hash, &role, &agentID, &pr.Name,
		&pr.CreatedAt, &lastUsed, &pr.ExpiresAt, &pr.Revoked)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan api key: %w", err)
	}

	pr.Role = Role(role)
	if agentID.Valid {
		pr.AgentID = agentID.String
	}
	if lastUsed.Valid {
		pr.LastUsed = lastUsed.Time
	}
	return &pr, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
