// Package testutil starts the containers backing storage, cache and broker
// tests. Each fixture is created once per package in TestMain.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/zhejian/url-shortener/shortlink/internal/migrations"
)

// TestDB is a migrated PostgreSQL container
type TestDB struct {
	Pool       *pgxpool.Pool
	ConnString string
	container  *postgres.PostgresContainer
}

// SetupTestDB starts PostgreSQL and applies the embedded schema, the same
// migrations the server runs at boot.
func SetupTestDB(ctx context.Context) (*TestDB, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("shortlink_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}

	db := &TestDB{container: container}
	db.ConnString, err = container.ConnectionString(ctx, "sslmode=disable")
	if err == nil {
		err = migrations.Run(db.ConnString, DiscardLogger())
	}
	if err == nil {
		db.Pool, err = pgxpool.New(ctx, db.ConnString)
	}
	if err != nil {
		if terr := container.Terminate(ctx); terr != nil {
			err = terr
		}
		return nil, err
	}
	return db, nil
}

// Cleanup empties both tables and resets the click event sequence
func (t *TestDB) Cleanup(ctx context.Context) {
	if t == nil || t.Pool == nil {
		return
	}
	_, _ = t.Pool.Exec(ctx, "TRUNCATE TABLE click_events, links RESTART IDENTITY")
}

// Teardown closes the pool and terminates the container
func (t *TestDB) Teardown(ctx context.Context) {
	if t.Pool != nil {
		t.Pool.Close()
	}
	if t.container != nil {
		_ = t.container.Terminate(ctx)
	}
}

// DiscardLogger returns a logger that drops everything, for tests that
// need a *slog.Logger but not its output.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
