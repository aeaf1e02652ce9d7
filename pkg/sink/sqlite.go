package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/db/migrate"
	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

const runsTable = "runs"

type sqliteSink struct {
	db  *sql.DB
	cfg *config
}

func newSQLiteSink(ctx context.Context, path string, cfg *config) (*sqliteSink, error) {
	if err := migrate.MigrateSQLite(path); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteSink{db: db, cfg: cfg}, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func sqliteType(k model.CellKind) string {
	switch k {
	case model.CellStr:
		return "TEXT"
	case model.CellFlag:
		return "INTEGER"
	default:
		return "REAL"
	}
}

func (l *layout) createTable(name string) string {
	defs := []string{
		ColSeason + " INTEGER NOT NULL",
		ColRound + " INTEGER NOT NULL",
		ColSessionType + " TEXT NOT NULL",
		ColEntity + " TEXT NOT NULL",
	}
	for _, c := range l.columns {
		defs = append(defs, quoteIdent(c.Name)+" "+sqliteType(c.Kind))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
}

func (l *layout) insert(name string) string {
	cols := l.header()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(name),
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
}

func sessionList(keys []model.SessionKey) []string {
	ret := make([]string, len(keys))
	for i, k := range keys {
		ret[i] = k.String()
	}
	return ret
}

// Write replaces the table named like tbl and records the run
func (s *sqliteSink) Write(ctx context.Context, tbl *model.Table) (err error) {
	if strings.EqualFold(tbl.Name, runsTable) {
		return fmt.Errorf("table name %q is reserved", tbl.Name)
	}
	lay, err := newLayout(tbl)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(tbl.Name)); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, lay.createTable(tbl.Name)); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, lay.insert(tbl.Name))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range tbl.Rows {
		if _, err = stmt.ExecContext(ctx, lay.values(r)...); err != nil {
			return fmt.Errorf("insert into %s: %w", tbl.Name, err)
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, table_name, created_at, sessions, row_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id, table_name) DO UPDATE
		SET created_at = excluded.created_at, row_count = excluded.row_count`,
		s.cfg.runID.String(),
		tbl.Name,
		time.Now().UTC().Format(time.RFC3339Nano),
		strings.Join(sessionList(s.cfg.sessions), ","),
		tbl.Len())
	if err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	s.cfg.l.Info("table written",
		log.String("format", FormatSQLite),
		log.String("table", tbl.Name),
		log.Stringer("run", s.cfg.runID),
		log.Int("rows", tbl.Len()))
	return nil
}

func (s *sqliteSink) Close() error {
	return s.db.Close()
}
