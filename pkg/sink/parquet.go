package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ohler55/ojg/oj"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

const parquetParallel = 4

type parquetSink struct {
	dir string
	cfg *config
}

func newParquetSink(dir string, cfg *config) (*parquetSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &parquetSink{dir: dir, cfg: cfg}, nil
}

var tagReplacer = strings.NewReplacer(",", "_", "=", "_", " ", "_")

// parquetSchema builds the json schema of the dynamic writer. Fields are
// addressed by generated names, K* for keys and V* for values.
func (l *layout) parquetSchema() string {
	fields := []any{
		map[string]any{"Tag": "name=" + ColSeason + ", inname=K0, type=INT32, repetitiontype=REQUIRED"},
		map[string]any{"Tag": "name=" + ColRound + ", inname=K1, type=INT32, repetitiontype=REQUIRED"},
		map[string]any{"Tag": "name=" + ColSessionType +
			", inname=K2, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED"},
		map[string]any{"Tag": "name=" + ColEntity +
			", inname=K3, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED"},
	}
	for i, c := range l.columns {
		var typ string
		switch c.Kind {
		case model.CellStr:
			typ = "type=BYTE_ARRAY, convertedtype=UTF8"
		case model.CellFlag:
			typ = "type=BOOLEAN"
		default:
			typ = "type=DOUBLE"
		}
		fields = append(fields, map[string]any{
			"Tag": fmt.Sprintf("name=%s, inname=V%d, %s, repetitiontype=OPTIONAL",
				tagReplacer.Replace(c.Name), i, typ),
		})
	}
	return oj.JSON(map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	})
}

func (l *layout) parquetRecord(r *model.Row) string {
	rec := map[string]any{
		"K0": r.Session.Season,
		"K1": r.Session.Round,
		"K2": string(r.Session.SessionType),
		"K3": r.Entity,
	}
	for i, c := range l.columns {
		if v := value(r, c); v != nil {
			rec[fmt.Sprintf("V%d", i)] = v
		}
	}
	return oj.JSON(rec)
}

func (s *parquetSink) Write(ctx context.Context, tbl *model.Table) error {
	lay, err := newLayout(tbl)
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, tbl.Name+".parquet")
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	pw, err := writer.NewJSONWriter(lay.parquetSchema(), fw, parquetParallel)
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range tbl.Rows {
		if err := ctx.Err(); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return err
		}
		if err := pw.Write(lay.parquetRecord(r)); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return err
	}
	if err := fw.Close(); err != nil {
		return err
	}
	s.cfg.l.Info("table written",
		log.String("format", FormatParquet),
		log.String("path", path),
		log.Int("rows", tbl.Len()))
	return nil
}

func (s *parquetSink) Close() error {
	return nil
}
