package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/model"
	"github.com/mpapenbr/telemetry-merger/pkg/utils/cache"
	"github.com/mpapenbr/telemetry-merger/pkg/utils/cache/loadercache"
)

var tableNames = []string{TableLaps, TableWeather, TableGaps, TableCarData, TablePosData}

type (
	CSVOption func(*CSVSource)
	// CSVSource reads <root>/<season>/<round>/<session>/<table>.csv files.
	// A session exists if its laps file exists. All other tables are optional.
	CSVSource struct {
		root       string
		expiration time.Duration
		l          *log.Logger
		cache      cache.Cache[model.SessionKey, Session]
	}
)

func WithCacheExpiration(d time.Duration) CSVOption {
	return func(s *CSVSource) {
		s.expiration = d
	}
}

func WithLogger(l *log.Logger) CSVOption {
	return func(s *CSVSource) {
		s.l = l
	}
}

func NewCSV(root string, opts ...CSVOption) *CSVSource {
	ret := &CSVSource{
		root: root,
		l:    log.Default().Named("source"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.cache = loadercache.New(
		loadercache.WithLoader[model.SessionKey, Session](ret.load),
		loadercache.WithExpiration[model.SessionKey, Session](ret.expiration),
		loadercache.WithLogger[model.SessionKey, Session](ret.l.Named("cache")),
	)
	return ret
}

func (s *CSVSource) Open(ctx context.Context) error {
	fi, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("open data dir: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", s.root)
	}
	return nil
}

func (s *CSVSource) Fetch(ctx context.Context, key model.SessionKey) (*Session, error) {
	return s.cache.Get(ctx, key)
}

func (s *CSVSource) Close() error {
	s.cache.InvalidateAll(context.Background())
	return nil
}

// SessionDir returns the directory holding the files of key
func (s *CSVSource) SessionDir(key model.SessionKey) string {
	return filepath.Join(s.root,
		strconv.Itoa(key.Season),
		strconv.Itoa(key.Round),
		string(key.SessionType))
}

func (s *CSVSource) load(ctx context.Context, key model.SessionKey) (*Session, error) {
	dir := s.SessionDir(key)
	ret := &Session{Key: key}
	for _, name := range tableNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, err := ReadCSVFile(filepath.Join(dir, name+".csv"), name, key)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				if name == TableLaps {
					return nil, fmt.Errorf("%s: %w", key, ErrSessionNotFound)
				}
				s.l.Debug("table not present",
					log.String("session", key.String()), log.String("table", name))
				continue
			}
			return nil, err
		}
		s.l.Debug("table loaded",
			log.String("session", key.String()),
			log.String("table", name),
			log.Int("records", t.Len()))
		ret.setTable(name, t)
	}
	return ret, nil
}

func ReadCSVFile(path, name string, key model.SessionKey) (*model.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ReadCSV(f, name, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// ReadCSV reads a headed CSV document. Records may have varying length, a
// leading unnamed index column (as written by pandas) is kept as is.
func ReadCSV(r io.Reader, name string, key model.SessionKey) (*model.RawTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &model.RawTable{Name: name, Session: key}, nil
		}
		return nil, err
	}
	if len(header) > 0 {
		// strip UTF-8 BOM
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	return &model.RawTable{
		Name:    name,
		Session: key,
		Header:  header,
		Records: records,
	}, nil
}
