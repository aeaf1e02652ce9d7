package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/cmd/cmdutil"
	"github.com/mpapenbr/telemetry-merger/pkg/config"
	"github.com/mpapenbr/telemetry-merger/pkg/db/migrate"
)

var sqlitePath string

func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "performs database migration",
		Long: `Applies the embedded schema migrations to the postgres database given by --db.
With --sqlite the migrations for a sqlite output file are applied instead.`,
		RunE: cmdutil.Run(startMigration),
	}
	cmd.Flags().StringVar(&sqlitePath,
		"sqlite",
		"",
		"migrate this sqlite file instead of the postgres database")
	return cmd
}

func startMigration(ctx context.Context) error {
	if sqlitePath != "" {
		log.Info("Migrating sqlite database", log.String("path", sqlitePath))
		return migrate.MigrateSQLite(sqlitePath)
	}
	if err := cmdutil.WaitForDB(config.DB); err != nil {
		return err
	}
	log.Info("Using dbUrl", log.String("url", redact(config.DB)))
	if err := migrate.MigrateDb(prepareURLForDB(config.DB)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("Migration done")
	return nil
}

// redact hides the password of a connection url
func redact(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 {
		return url
	}
	userInfo := url[scheme+3 : at]
	if user, _, ok := strings.Cut(userInfo, ":"); ok {
		return url[:scheme+3] + user + ":***" + url[at:]
	}
	return url
}

func prepareURLForDB(url string) string {
	options := "sslmode=disable"
	if strings.Contains(url, "sslmode=") {
		return url
	}
	if strings.Contains(url, "?") {
		return fmt.Sprintf("%s&%s", url, options)
	} else {
		return fmt.Sprintf("%s?%s", url, options)
	}
}
