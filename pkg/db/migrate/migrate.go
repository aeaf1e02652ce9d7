package migrate

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// MigrateDb applies the postgres migrations to the database at dbURI
// (postgresql:// or postgres:// URL).
func MigrateDb(dbURI string) error {
	return up("migrations/postgres", PgxURL(dbURI))
}

// MigrateSQLite applies the sqlite migrations to the database file at path
func MigrateSQLite(path string) error {
	return up("migrations/sqlite", "sqlite://"+path)
}

// PgxURL rewrites a postgres URL to the scheme of the pgx/v5 migrate driver
func PgxURL(dbURI string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dbURI, prefix) {
			return "pgx5://" + strings.TrimPrefix(dbURI, prefix)
		}
	}
	return dbURI
}

func up(dir, dbURL string) error {
	source, err := iofs.New(migrations, dir)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return fmt.Errorf("create migration: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
