package sink

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	gotest "gotest.tools/v3/assert"

	"github.com/mpapenbr/telemetry-merger/pkg/model"
	"github.com/mpapenbr/telemetry-merger/testsupport/basedata"
)

const wantCSV = `session_season,session_round,session_type,entity,AirTemp,Compound,Driver,LapNumber,LapStartTime,LapTime,Rainfall
2023,6,R,1,21.5,SOFT,VER,1,100,90.5,false
2023,6,R,1,,,VER,2,190,91.25,
2023,6,R,44,21.5,MEDIUM,HAM,1,101,92,true
`

func TestNewUnknownFormat(t *testing.T) {
	_, err := New(context.Background(), "xlsx", t.TempDir())
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestLayout(t *testing.T) {
	tbl := basedata.SampleMergedTable()
	row := tbl.Rows[0].Clone()
	row.Str["Entity"] = row.Str[model.ColDriver]
	tbl.Rows = append(tbl.Rows, row)

	lay, err := newLayout(tbl)
	require.NoError(t, err)
	assert.Equal(t, []string{
		ColSeason, ColRound, ColSessionType, ColEntity,
		"AirTemp", "Compound", "Driver", "LapNumber", "LapStartTime", "LapTime", "Rainfall",
	}, lay.header(), "columns colliding with key columns are dropped")

	rec := lay.record(tbl.Rows[1])
	assert.NotContains(t, rec, model.ColAirTemp)
	assert.Equal(t, 190.0, rec[model.ColLapStartTime])
}

func TestLayoutSchemaConflict(t *testing.T) {
	tbl := basedata.SampleMergedTable()
	tbl.Rows[1].Str[model.ColLapTime] = tbl.Rows[1].Str[model.ColDriver]
	_, err := newLayout(tbl)
	assert.ErrorIs(t, err, model.ErrSchemaConflict)
}

func TestCSVSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s, err := New(context.Background(), FormatCSV, dir)
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), basedata.SampleMergedTable()))
	require.NoError(t, s.Close())

	got, err := os.ReadFile(filepath.Join(dir, "merged.csv"))
	require.NoError(t, err)
	gotest.Equal(t, wantCSV, string(got))
}

func TestParquetSink(t *testing.T) {
	dir := t.TempDir()
	s, err := New(context.Background(), FormatParquet, dir)
	require.NoError(t, err)
	tbl := basedata.SampleMergedTable()
	require.NoError(t, s.Write(context.Background(), tbl))
	require.NoError(t, s.Close())

	fr, err := local.NewLocalFileReader(filepath.Join(dir, "merged.parquet"))
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, nil, 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	assert.Equal(t, int64(3), pr.GetNumRows())
	// root element, 4 key columns and 7 value columns
	assert.Len(t, pr.Footer.Schema, 12)
}

func TestSQLiteSink(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "merged.db")
	runID := uuid.Must(uuid.NewV7())
	s, err := New(ctx, FormatSQLite, path,
		WithRunID(runID),
		WithSessions([]model.SessionKey{basedata.SampleSession()}))
	require.NoError(t, err)
	tbl := basedata.SampleMergedTable()
	require.NoError(t, s.Write(ctx, tbl))
	// writing again replaces the table
	require.NoError(t, s.Write(ctx, tbl))
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `select count(*) from "merged"`).Scan(&count))
	assert.Equal(t, 3, count)

	var (
		airTemp  sql.NullFloat64
		compound sql.NullString
		lapStart float64
	)
	require.NoError(t, db.QueryRowContext(ctx,
		`select AirTemp, Compound, LapStartTime from "merged" where LapNumber=2`).
		Scan(&airTemp, &compound, &lapStart))
	assert.False(t, airTemp.Valid)
	assert.False(t, compound.Valid)
	assert.Equal(t, 190.0, lapStart)

	var (
		sessions string
		rows     int
	)
	require.NoError(t, db.QueryRowContext(ctx,
		"select sessions, row_count from runs where id=? and table_name=?",
		runID.String(), "merged").Scan(&sessions, &rows))
	assert.Equal(t, "2023/6/R", sessions)
	assert.Equal(t, 3, rows)
}

func TestSQLiteSinkReservedName(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, FormatSQLite, filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	defer s.Close()
	tbl := basedata.SampleMergedTable()
	tbl.Name = "RUNS"
	assert.Error(t, s.Write(ctx, tbl))
}
