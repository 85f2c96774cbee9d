package admin

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Compile-time check that PostgresSettingsStore implements SettingsStore.
var _ SettingsStore = (*PostgresSettingsStore)(nil)

// PostgresSettingsStore implements SettingsStore backed by PostgreSQL.
type PostgresSettingsStore struct {
	db *sql.DB
}

// NewPostgresSettingsStore creates a new PostgreSQL-backed settings store.
func NewPostgresSettingsStore(db *sql.DB) *PostgresSettingsStore {
	return &PostgresSettingsStore{db: db}
}

// Migrate creates the system_settings table if it doesn't exist.
func (p *PostgresSettingsStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS system_settings (
			key        VARCHAR(64) PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (p *PostgresSettingsStore) Get(ctx context.Context, key string) (*Setting, error) {
	var s Setting
	err := p.db.QueryRowContext(ctx,
		`SELECT key, value, updated_at FROM system_settings WHERE key = $1`, key).
		Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSettingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get setting: %w", err)
	}
	return &s, nil
}

func (p *PostgresSettingsStore) List(ctx context.Context) ([]*Setting, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT key, value, updated_at FROM system_settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		result = append(result, &s)
	}
	return result, rows.Err()
}

func (p *PostgresSettingsStore) Put(ctx context.Context, key, value string) (*Setting, error) {
	now := time.Now()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO system_settings (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, value, now)
	if err != nil {
		return nil, fmt.Errorf("put setting: %w", err)
	}
	return &Setting{Key: key, Value: value, UpdatedAt: now}, nil
}
