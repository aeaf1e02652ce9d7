package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

type csvSink struct {
	dir string
	cfg *config
}

func newCSVSink(dir string, cfg *config) (*csvSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &csvSink{dir: dir, cfg: cfg}, nil
}

func (s *csvSink) path(tbl *model.Table) string {
	return filepath.Join(s.dir, tbl.Name+".csv")
}

func (s *csvSink) Write(ctx context.Context, tbl *model.Table) error {
	lay, err := newLayout(tbl)
	if err != nil {
		return err
	}
	path := s.path(tbl)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(lay.header()); err != nil {
		return err
	}
	for _, r := range tbl.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		vals := lay.values(r)
		rec := make([]string, len(vals))
		for i, v := range vals {
			rec[i] = text(v)
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	s.cfg.l.Info("table written",
		log.String("format", FormatCSV),
		log.String("path", path),
		log.Int("rows", tbl.Len()))
	return nil
}

func (s *csvSink) Close() error {
	return nil
}
