//nolint:errcheck // testsetup
package tcpostgres

import (
	"context"
	"os"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mpapenbr/telemetry-merger/pkg/db/migrate"
	database "github.com/mpapenbr/telemetry-merger/pkg/db/postgres"
)

// SetupTestDb starts (or reuses) the postgres test container, applies the
// migrations and returns a pool connected to it.
func SetupTestDb(ctx context.Context) (*pgxpool.Pool, error) {
	port, err := nat.NewPort("tcp", "5432")
	if err != nil {
		return nil, err
	}
	container, err := SetupPostgres(ctx,
		WithPort(port.Port()),
		WithInitialDatabase("postgres", "password", "postgres"),
		WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
		WithName("telemetry-merger-test"),
	)
	if err != nil {
		return nil, err
	}
	dbURL, err := container.ConnectionURL(ctx, port)
	if err != nil {
		return nil, err
	}
	return setup(ctx, dbURL)
}

// SetupExternalTestDb uses the database referenced by TESTDB_URL
func SetupExternalTestDb(ctx context.Context) (*pgxpool.Pool, error) {
	return setup(ctx, os.Getenv("TESTDB_URL"))
}

func setup(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	if err := migrate.MigrateDb(dbURL); err != nil {
		return nil, err
	}
	return database.InitWithURL(ctx, dbURL)
}

func ClearMergedRowsTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from merged_rows")
}

func ClearRunsTable(pool *pgxpool.Pool) {
	pool.Exec(context.Background(), "delete from runs")
}

func ClearAllTables(pool *pgxpool.Pool) {
	ClearMergedRowsTable(pool)
	ClearRunsTable(pool)
}
