package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/db/migrate"
	"github.com/mpapenbr/telemetry-merger/pkg/db/postgres"
	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

// postgresSink stores rows as jsonb documents below a run
type postgresSink struct {
	pool     *pgxpool.Pool
	ownsPool bool
	cfg      *config
}

//nolint:whitespace // can't make both editor and linter happy
func newPostgresSink(
	ctx context.Context, url string, cfg *config,
) (*postgresSink, error) {
	if err := migrate.MigrateDb(url); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	pool, err := postgres.InitWithURL(ctx, url,
		postgres.WithTracer(cfg.l.Named("sql"), log.DebugLevel),
		postgres.WithOtlpTracer())
	if err != nil {
		return nil, err
	}
	return &postgresSink{pool: pool, ownsPool: true, cfg: cfg}, nil
}

// NewPostgres creates a sink on an existing pool. The schema must be migrated.
func NewPostgres(pool *pgxpool.Pool, opts ...Option) (Sink, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	return &postgresSink{pool: pool, cfg: cfg}, nil
}

var mergedRowColumns = []string{
	"run_id", "table_name", "season", "round", "session_type", "entity", "seq", "data",
}

func (s *postgresSink) Write(ctx context.Context, tbl *model.Table) error {
	lay, err := newLayout(tbl)
	if err != nil {
		return err
	}
	var copied int64
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			"insert into runs (id, sessions) values ($1, $2) on conflict (id) do nothing",
			s.cfg.runID, sessionList(s.cfg.sessions)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			"delete from merged_rows where run_id=$1 and table_name=$2",
			s.cfg.runID, tbl.Name); err != nil {
			return err
		}
		rows := make([][]any, len(tbl.Rows))
		for i, r := range tbl.Rows {
			rows[i] = []any{
				s.cfg.runID, tbl.Name,
				r.Session.Season, r.Session.Round, string(r.Session.SessionType),
				r.Entity, i, lay.record(r),
			}
		}
		n, err := tx.CopyFrom(ctx,
			pgx.Identifier{"merged_rows"},
			mergedRowColumns,
			pgx.CopyFromRows(rows))
		copied = n
		return err
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", tbl.Name, err)
	}
	s.cfg.l.Info("table written",
		log.String("format", FormatPostgres),
		log.String("table", tbl.Name),
		log.Stringer("run", s.cfg.runID),
		log.Int64("rows", copied))
	return nil
}

func (s *postgresSink) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}
