// Package pipeline runs the merge of laps, weather, gaps and optionally
// high frequency telemetry for a set of sessions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/clean"
	"github.com/mpapenbr/telemetry-merger/pkg/grouper"
	"github.com/mpapenbr/telemetry-merger/pkg/model"
	"github.com/mpapenbr/telemetry-merger/pkg/normalize"
	"github.com/mpapenbr/telemetry-merger/pkg/source"
	"github.com/mpapenbr/telemetry-merger/pkg/store"
	"github.com/mpapenbr/telemetry-merger/pkg/tagging"
)

const DefaultGapTolerance = 5 * time.Second

type (
	// Options controls a pipeline run. A tolerance <= 0 means unlimited.
	Options struct {
		Sessions         []model.SessionKey
		Manifests        model.ManifestSet
		Workers          int
		WeatherTolerance time.Duration
		GapTolerance     time.Duration
		LappedGap        float64
		// GapDriverColumn names the lap column matching the gap feed's driver.
		// Empty joins on the lap entity (DriverNumber).
		GapDriverColumn  string
		AccurateOnly     bool
		Telemetry        bool
		Logger           *log.Logger
	}
	StageReport struct {
		Failures []grouper.GroupFailure
		Warnings []grouper.EmptyGroupWarning
		Rows     int
		Skipped  bool
	}
	Report struct {
		Sessions  []model.SessionKey // sessions that delivered laps
		Missing   []model.SessionKey
		Normalize []*normalize.Report
		Weather   StageReport
		Gaps      StageReport
		Clean     *clean.Report
		Telemetry StageReport
		Coverage  float64 // share of telemetry samples assigned to a lap
	}
	Output struct {
		Merged    *model.Table
		Telemetry *model.Table
		Report    *Report
	}
)

func DefaultOptions() Options {
	return Options{
		Manifests:    model.DefaultManifests(),
		GapTolerance: DefaultGapTolerance,
		LappedGap:    normalize.DefaultLappedGap,
	}
}

func (s *StageReport) fill(res *grouper.Result) {
	if res == nil {
		return
	}
	s.Failures = res.Failures
	s.Warnings = res.Warnings
	s.Rows = res.NumRows()
}

type runner struct {
	opts   Options
	l      *log.Logger
	report *Report
	tracer trace.Tracer
}

// raw tables of all fetched sessions, normalized and concatenated by name
type tables map[string]*model.Table

// Run fetches and merges the requested sessions. Sessions unknown to the
// source are logged and skipped. If no group produces rows the returned
// error wraps grouper.ErrBatchEmpty and the output must not be persisted.
//
//nolint:funlen // sequential stages
func Run(ctx context.Context, src source.Source, opts Options) (*Output, error) {
	r := &runner{
		opts:   opts,
		l:      opts.Logger,
		report: &Report{},
		tracer: otel.Tracer("tmg.pipeline"),
	}
	if r.l == nil {
		r.l = log.Default().Named("pipeline")
	}
	if r.opts.Manifests == nil {
		r.opts.Manifests = model.DefaultManifests()
	}
	if r.opts.LappedGap == 0 {
		r.opts.LappedGap = normalize.DefaultLappedGap
	}
	ctx, span := r.tracer.Start(ctx, "run",
		trace.WithAttributes(attribute.Int("sessions", len(opts.Sessions))))
	defer span.End()

	data, err := r.load(ctx, src)
	if err != nil {
		return nil, err
	}
	laps := data[source.TableLaps]
	if laps == nil || laps.Len() == 0 {
		return &Output{Report: r.report}, fmt.Errorf("no lap data: %w", grouper.ErrBatchEmpty)
	}

	merged, err := r.mergeWeather(ctx, laps, data[source.TableWeather])
	if err != nil {
		return &Output{Report: r.report}, err
	}
	merged, err = r.mergeGaps(ctx, merged, data[source.TableGaps])
	if err != nil {
		return &Output{Report: r.report}, err
	}

	filter := clean.New(
		clean.WithAccurate(opts.AccurateOnly),
		clean.WithLogger(r.l.Named("clean")))
	cleaned, cleanReport := filter.Apply(ctx, merged)
	r.report.Clean = cleanReport
	r.l.Info("cleaning done",
		log.Int("before", cleanReport.Before()),
		log.Int("after", cleanReport.After()))

	out := &Output{Merged: cleaned, Report: r.report}
	if opts.Telemetry {
		out.Telemetry, err = r.telemetry(ctx, cleaned, data)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (r *runner) load(ctx context.Context, src source.Source) (tables, error) {
	names := []string{source.TableLaps, source.TableWeather, source.TableGaps}
	if r.opts.Telemetry {
		names = append(names, source.TableCarData, source.TablePosData)
	}
	collected := map[string][]*model.Table{}
	for _, key := range r.opts.Sessions {
		s, err := src.Fetch(ctx, key)
		if err != nil {
			if errors.Is(err, source.ErrSessionNotFound) {
				r.l.Warn("session not available, skipping", log.Stringer("session", key))
				r.report.Missing = append(r.report.Missing, key)
				continue
			}
			return nil, fmt.Errorf("fetch %s: %w", key, err)
		}
		if s.Laps == nil {
			r.l.Warn("session without laps, skipping", log.Stringer("session", key))
			r.report.Missing = append(r.report.Missing, key)
			continue
		}
		r.report.Sessions = append(r.report.Sessions, key)
		for _, name := range names {
			raw := s.Table(name)
			if raw == nil {
				continue
			}
			if raw.Session == (model.SessionKey{}) {
				cp := *raw
				cp.Session = key
				raw = &cp
			}
			m, ok := r.opts.Manifests[name]
			if !ok {
				return nil, fmt.Errorf("no manifest for table %s", name)
			}
			tbl, rep := normalize.Normalize(raw, m,
				normalize.WithLappedGap(r.opts.LappedGap),
				normalize.WithLogger(r.l.Named("normalize")))
			r.report.Normalize = append(r.report.Normalize, rep)
			collected[name] = append(collected[name], tbl)
		}
		r.l.Info("session loaded", log.Stringer("session", key))
	}
	ret := tables{}
	for name, list := range collected {
		ret[name] = model.Concat(name, list...)
	}
	return ret, nil
}

func (r *runner) grouperOpts(name string, tolerance time.Duration) []grouper.Option {
	ret := []grouper.Option{
		grouper.WithName(name),
		grouper.WithLogger(r.l.Named("grouper")),
	}
	if r.opts.Workers > 0 {
		ret = append(ret, grouper.WithWorkers(r.opts.Workers))
	}
	if tolerance > 0 {
		ret = append(ret, grouper.WithTolerance(tolerance))
	}
	return ret
}

//nolint:whitespace // can't make both editor and linter happy
func (r *runner) mergeWeather(
	ctx context.Context, laps, weather *model.Table,
) (*model.Table, error) {
	if weather == nil || weather.Len() == 0 {
		r.l.Info("no weather data, skipping weather merge")
		r.report.Weather.Skipped = true
		return laps, nil
	}
	left := store.FromTable(laps, store.ByEntity(true), store.WithName(source.TableLaps))
	right := store.FromTable(weather, store.WithName(source.TableWeather))
	g := grouper.New(r.grouperOpts(source.TableWeather, r.opts.WeatherTolerance)...)
	res, err := g.Merge(ctx, left, right)
	r.report.Weather.fill(res)
	if err != nil {
		return nil, fmt.Errorf("weather merge: %w", err)
	}
	return res.Table(laps), nil
}

// mergeGaps joins the gap samples per driver. The gap feed identifies drivers
// by number; with GapDriverColumn set the lap rows are re-keyed for the join.
//
//nolint:whitespace // can't make both editor and linter happy
func (r *runner) mergeGaps(
	ctx context.Context, laps, gaps *model.Table,
) (*model.Table, error) {
	if gaps == nil || gaps.Len() == 0 {
		r.l.Info("no gap data, skipping gap merge")
		r.report.Gaps.Skipped = true
		return laps, nil
	}
	rekeyed, restore := rekey(laps, r.opts.GapDriverColumn)
	left := store.FromTable(rekeyed, store.ByEntity(true), store.WithName(source.TableLaps))
	right := store.FromTable(gaps, store.ByEntity(true), store.WithName(source.TableGaps))
	opts := append(r.grouperOpts(source.TableGaps, r.opts.GapTolerance),
		grouper.WithByEntity(true),
		grouper.WithRightColumns(model.ColGapToLeader, model.ColInterval))
	res, err := grouper.New(opts...).Merge(ctx, left, right)
	r.report.Gaps.fill(res)
	if err != nil {
		return nil, fmt.Errorf("gap merge: %w", err)
	}
	ret := res.Table(laps)
	restore(ret.Rows)
	return ret, nil
}

// rekey returns a copy of tbl whose row entities are taken from col and a
// function that sets the original entities on rows derived from the copy.
func rekey(tbl *model.Table, col string) (*model.Table, func([]*model.Row)) {
	if col == "" || col == tbl.EntityColumn {
		return tbl, func([]*model.Row) {}
	}
	type alias struct {
		session model.SessionKey
		entity  string
	}
	original := map[alias]string{}
	ret := &model.Table{
		Name:         tbl.Name,
		EntityColumn: col,
		TimeColumn:   tbl.TimeColumn,
		Rows:         make([]*model.Row, len(tbl.Rows)),
	}
	for i, row := range tbl.Rows {
		c := row.Clone()
		if e, ok := row.Text(col); ok && e != "" {
			c.Entity = e
			original[alias{c.Session, c.Entity}] = row.Entity
		}
		ret.Rows[i] = c
	}
	return ret, func(rows []*model.Row) {
		for _, row := range rows {
			if e, ok := original[alias{row.Session, row.Entity}]; ok {
				row.Entity = e
			}
		}
	}
}

// telemetry merges car and position samples per driver and tags them with
// the lap they belong to. An empty telemetry batch is logged, not an error.
//
//nolint:whitespace // can't make both editor and linter happy
func (r *runner) telemetry(
	ctx context.Context, laps *model.Table, data tables,
) (*model.Table, error) {
	car := data[source.TableCarData]
	if car == nil || car.Len() == 0 {
		r.l.Warn("telemetry requested but no car data available")
		r.report.Telemetry.Skipped = true
		return nil, nil
	}
	samples := car
	if pos := data[source.TablePosData]; pos != nil && pos.Len() > 0 {
		left := store.FromTable(car, store.ByEntity(true), store.WithName(source.TableCarData))
		right := store.FromTable(pos, store.ByEntity(true), store.WithName(source.TablePosData))
		opts := append(r.grouperOpts("telemetry", 0), grouper.WithByEntity(true))
		res, err := grouper.New(opts...).Merge(ctx, left, right)
		r.report.Telemetry.fill(res)
		if err != nil {
			if errors.Is(err, grouper.ErrBatchEmpty) {
				r.l.Warn("telemetry merge produced no rows")
				return nil, nil
			}
			return nil, fmt.Errorf("telemetry merge: %w", err)
		}
		samples = res.Table(car)
	}

	intervals := tagging.IntervalsFromLaps(laps,
		model.ColLapNumber, model.ColLapStartTime, model.ColLapEndTime)
	sampleStore := store.FromTable(samples, store.ByEntity(true))
	tagged := tagging.TagStore(sampleStore, intervals, model.ColLapNumber)
	r.report.Coverage = tagging.Coverage(tagged, model.ColLapNumber)
	attached, err := tagging.AttachLapData(tagged, laps, model.ColLapNumber,
		model.ColLapStartTime, model.ColLapEndTime)
	if err != nil {
		return nil, fmt.Errorf("attach lap data: %w", err)
	}
	r.report.Telemetry.Rows = len(attached)
	r.l.Info("telemetry tagged",
		log.Int("samples", len(attached)),
		log.Int("laps", len(intervals)),
		log.Float64("coverage", r.report.Coverage))
	return &model.Table{
		Name:         "telemetry",
		EntityColumn: samples.EntityColumn,
		TimeColumn:   samples.TimeColumn,
		Rows:         attached,
	}, nil
}
