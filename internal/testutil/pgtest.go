// Package testutil provides shared test infrastructure.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartPostgres returns an open connection pool against a disposable
// PostgreSQL instance. POSTGRES_URL short-circuits the container for CI
// environments that provide a database; otherwise a container is started,
// and the test is skipped when Docker is unavailable.
func StartPostgres(t *testing.T) *sql.DB {
	t.Helper()

	if url := os.Getenv("POSTGRES_URL"); url != "" {
		db, err := sql.Open("postgres", url)
		if err != nil {
			t.Fatalf("open POSTGRES_URL: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		return db
	}

	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	ctr, err := runPostgresContainer(ctx)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// runPostgresContainer starts a disposable postgres instance. testcontainers
// panics, rather than returning an error, when no Docker host can be
// resolved; recover so the caller can skip instead of crashing the run.
func runPostgresContainer(ctx context.Context) (ctr *tcpostgres.PostgresContainer, err error) {
	defer recoverToError(&err)

	return tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("skyfare_test"),
		tcpostgres.WithUsername("skyfare"),
		tcpostgres.WithPassword("skyfare"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
}

// recoverToError converts a panic in the deferring function into an error.
func recoverToError(errp *error) {
	if r := recover(); r != nil {
		*errp = fmt.Errorf("container runtime: %v", r)
	}
}
