// Package sink persists merged tables. File based sinks write one file per
// table into a directory, database sinks one table (or row set) per table.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

const (
	FormatParquet  = "parquet"
	FormatCSV      = "csv"
	FormatSQLite   = "sqlite"
	FormatPostgres = "postgres"
)

var ErrUnknownFormat = errors.New("unknown output format")

type (
	Sink interface {
		Write(ctx context.Context, tbl *model.Table) error
		Close() error
	}
	Option func(*config)
	config struct {
		runID    uuid.UUID
		sessions []model.SessionKey
		l        *log.Logger
	}
)

// WithRunID tags persisted data with the id of the producing run. A v7 id
// is generated if not set.
func WithRunID(id uuid.UUID) Option {
	return func(c *config) {
		c.runID = id
	}
}

func WithSessions(keys []model.SessionKey) Option {
	return func(c *config) {
		c.sessions = keys
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *config) {
		c.l = l
	}
}

func newConfig(opts ...Option) (*config, error) {
	c := &config{l: log.Default().Named("sink")}
	for _, opt := range opts {
		opt(c)
	}
	if c.runID.IsNil() {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("create run id: %w", err)
		}
		c.runID = id
	}
	return c, nil
}

// Formats lists the supported values for New
func Formats() []string {
	return []string{FormatParquet, FormatCSV, FormatSQLite, FormatPostgres}
}

// New creates the sink for format. target is a directory for file formats,
// a database file for sqlite and a connection URL for postgres.
//
//nolint:whitespace // can't make both editor and linter happy
func New(
	ctx context.Context, format, target string, opts ...Option,
) (Sink, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatParquet:
		return newParquetSink(target, cfg)
	case FormatCSV:
		return newCSVSink(target, cfg)
	case FormatSQLite:
		return newSQLiteSink(ctx, target, cfg)
	case FormatPostgres:
		return newPostgresSink(ctx, target, cfg)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}
