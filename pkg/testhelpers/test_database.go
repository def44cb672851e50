package testhelpers

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tclog "github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type TestDatabase struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// NewTestDatabase starts a Postgres container, applies the goose migrations
// found in migrationsPath and returns a connected pool.
func NewTestDatabase(t *testing.T, migrationsPath string) *TestDatabase {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(tclog.TestLogger(t)),
	)
	require.NoError(t, err, "failed to start postgres container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err, "failed to connect to database")
	require.NoError(t, pool.Ping(ctx), "failed to ping database")

	// goose needs a database/sql handle
	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err, "failed to open sql db for migrations")
	defer db.Close()

	require.NoError(t, goose.SetDialect("postgres"))

	absPath, err := filepath.Abs(migrationsPath)
	require.NoError(t, err, "failed to resolve migrations path")
	require.NoError(t, goose.Up(db, absPath), "failed to run migrations")

	return &TestDatabase{
		Container: pgContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
}

func (td *TestDatabase) Close() {
	ctx := context.Background()
	td.Pool.Close()
	_ = td.Container.Terminate(ctx)
}

// CleanDatabase truncates the market tables so a container can be reused between subtests
func CleanDatabase(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		"TRUNCATE TABLE transactions, offers, items, outbox_events RESTART IDENTITY CASCADE")
	require.NoError(t, err, "failed to truncate tables")
}
