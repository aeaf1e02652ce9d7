package testdb

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"

	tcpg "github.com/mpapenbr/telemetry-merger/testsupport/tcpostgres"
)

// InitTestDb returns a pool to an empty, migrated test database. The test is
// skipped if neither TESTDB_URL is set nor a container provider is available.
func InitTestDb(t *testing.T) *pgxpool.Pool {
	t.Helper()
	var (
		pool *pgxpool.Pool
		err  error
	)
	ctx := context.Background()
	if os.Getenv("TESTDB_URL") != "" {
		pool, err = tcpg.SetupExternalTestDb(ctx)
	} else {
		testcontainers.SkipIfProviderIsNotHealthy(t)
		pool, err = tcpg.SetupTestDb(ctx)
	}
	if err != nil {
		t.Fatalf("initTestDb: %v", err)
	}
	tcpg.ClearAllTables(pool)
	t.Cleanup(pool.Close)
	return pool
}
