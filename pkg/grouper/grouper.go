package grouper

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/join"
	"github.com/mpapenbr/telemetry-merger/pkg/model"
	"github.com/mpapenbr/telemetry-merger/pkg/store"
)

var (
	ErrBatchEmpty     = errors.New("no group produced any rows")
	ErrMalformedGroup = errors.New("malformed group")
	ErrPartitioning   = errors.New("store partitioning does not match grouper")
)

type (
	Option  func(*Grouper)
	Grouper struct {
		name         string
		workers      int
		byEntity     bool
		tolerance    *time.Duration
		rightColumns []string
		distance     string
		l            *log.Logger
		rowCounter   metric.Int64Counter
		failCounter  metric.Int64Counter
		tracer       trace.Tracer
	}
	GroupResult struct {
		Key  model.GroupKey
		Rows []*model.Row
	}
	// GroupFailure is a group excluded from the result
	GroupFailure struct {
		Key model.GroupKey
		Err error
	}
	// EmptyGroupWarning reports a group without right rows. Its left rows
	// are part of the result with null right fields.
	EmptyGroupWarning struct {
		Key model.GroupKey
	}
	Result struct {
		Successes []GroupResult
		Failures  []GroupFailure
		Warnings  []EmptyGroupWarning
	}
)

func (f GroupFailure) Error() string {
	return fmt.Sprintf("group %s: %v", f.Key, f.Err)
}

func (f GroupFailure) Unwrap() error {
	return f.Err
}

func (w EmptyGroupWarning) String() string {
	return fmt.Sprintf("group %s has no right rows", w.Key)
}

// WithName is used in log and metric attributes, e.g. "weather"
func WithName(name string) Option {
	return func(g *Grouper) {
		g.name = name
	}
}

func WithWorkers(n int) Option {
	return func(g *Grouper) {
		g.workers = n
	}
}

// WithByEntity joins per (session, entity) instead of per session
func WithByEntity(arg bool) Option {
	return func(g *Grouper) {
		g.byEntity = arg
	}
}

func WithTolerance(d time.Duration) Option {
	return func(g *Grouper) {
		g.tolerance = &d
	}
}

// WithRightColumns restricts the fields taken from the right side by name
func WithRightColumns(names ...string) Option {
	return func(g *Grouper) {
		g.rightColumns = names
	}
}

func WithDistanceColumn(name string) Option {
	return func(g *Grouper) {
		g.distance = name
	}
}

func WithLogger(l *log.Logger) Option {
	return func(g *Grouper) {
		g.l = l
	}
}

func New(opts ...Option) *Grouper {
	ret := &Grouper{
		workers: runtime.NumCPU(),
		l:       log.Default().Named("grouper"),
		tracer:  otel.Tracer("tmg.grouper"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.workers < 1 {
		ret.workers = 1
	}
	ret.setupMetrics()
	return ret
}

func (g *Grouper) setupMetrics() {
	meter := otel.GetMeterProvider().Meter("tmg.grouper")
	var err error
	if g.rowCounter, err = meter.Int64Counter("tmg.group.rows",
		metric.WithDescription("Number of merged rows"),
		metric.WithUnit("{row}")); err != nil {
		g.l.Error("failed to register metric", log.ErrorField(err))
	}
	if g.failCounter, err = meter.Int64Counter("tmg.group.failures",
		metric.WithDescription("Number of failed groups"),
		metric.WithUnit("{group}")); err != nil {
		g.l.Error("failed to register metric", log.ErrorField(err))
	}
}

// Rows concatenates the successful groups in group key order
func (r *Result) Rows() []*model.Row {
	ret := make([]*model.Row, 0)
	for _, s := range r.Successes {
		ret = append(ret, s.Rows...)
	}
	return ret
}

func (r *Result) NumRows() int {
	return lo.SumBy(r.Successes, func(s GroupResult) int { return len(s.Rows) })
}

// Table returns the concatenated rows as table named like the left store
func (r *Result) Table(proto *model.Table) *model.Table {
	return &model.Table{
		Name:         proto.Name,
		EntityColumn: proto.EntityColumn,
		TimeColumn:   proto.TimeColumn,
		Rows:         r.Rows(),
	}
}

// Merge joins every left group with its right counterpart. Groups are
// processed concurrently; the result lists groups in sorted key order.
// A failing group is logged and reported in Result.Failures.
// ErrBatchEmpty is returned together with the result if no rows were produced.
//
//nolint:funlen // readability
func (g *Grouper) Merge(ctx context.Context, left, right *store.Store) (*Result, error) {
	if g.byEntity && (!left.ByEntity() || !right.ByEntity()) {
		return nil, fmt.Errorf("%w: entity join needs entity partitioned stores", ErrPartitioning)
	}
	if !g.byEntity && right.ByEntity() {
		return nil, fmt.Errorf("%w: session join needs a session partitioned right store",
			ErrPartitioning)
	}
	ctx, span := g.tracer.Start(ctx, "merge",
		trace.WithAttributes(attribute.String("name", g.name)))
	defer span.End()

	fallback := right.Schema()
	keys := left.Keys()
	type outcome struct {
		rows  []*model.Row
		err   error
		empty bool
	}
	outcomes := make([]outcome, len(keys))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, key := range keys {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			rightKey := key
			if !g.byEntity {
				rightKey = model.GroupKey{Session: key.Session}
			}
			rightRows := right.Series(rightKey)
			rows, err := g.mergeGroup(egCtx, key, left.Series(key), rightRows, fallback)
			outcomes[i] = outcome{rows: rows, err: err, empty: len(rightRows) == 0}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	ret := &Result{}
	attrs := metric.WithAttributes(attribute.String("name", g.name))
	for i, key := range keys {
		o := outcomes[i]
		if o.err != nil {
			g.l.Error("group join failed, excluding group",
				log.String("name", g.name),
				log.Stringer("group", key),
				log.ErrorField(o.err))
			ret.Failures = append(ret.Failures, GroupFailure{Key: key, Err: o.err})
			if g.failCounter != nil {
				g.failCounter.Add(ctx, 1, attrs)
			}
			continue
		}
		if o.empty {
			g.l.Warn("no right rows for group, right fields are null",
				log.String("name", g.name),
				log.Stringer("group", key))
			ret.Warnings = append(ret.Warnings, EmptyGroupWarning{Key: key})
		}
		ret.Successes = append(ret.Successes, GroupResult{Key: key, Rows: o.rows})
		if g.rowCounter != nil {
			g.rowCounter.Add(ctx, int64(len(o.rows)), attrs)
		}
	}
	g.l.Info("merge done",
		log.String("name", g.name),
		log.Int("groups", len(keys)),
		log.Int("failed", len(ret.Failures)),
		log.Int("emptyRight", len(ret.Warnings)),
		log.Int("rows", ret.NumRows()))
	if ret.NumRows() == 0 {
		return ret, ErrBatchEmpty
	}
	return ret, nil
}

//nolint:whitespace // can't make both editor and linter happy
func (g *Grouper) mergeGroup(
	ctx context.Context,
	key model.GroupKey,
	left, right []*model.Row,
	fallback []model.Column,
) (rows []*model.Row, err error) {
	_, span := g.tracer.Start(ctx, "group",
		trace.WithAttributes(attribute.String("group", key.String())))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: recovered from panic: %v", ErrMalformedGroup, r)
		}
	}()
	if err = validate(key, g.byEntity, left, right); err != nil {
		return nil, err
	}
	rightCols, err := g.groupColumns(left, right, fallback)
	if err != nil {
		return nil, err
	}
	opts := []join.Option{join.WithRightColumns(rightCols...)}
	if g.tolerance != nil {
		opts = append(opts, join.WithTolerance(*g.tolerance))
	}
	if g.distance != "" {
		opts = append(opts, join.WithDistanceColumn(g.distance))
	}
	return join.Nearest(left, right, opts...)
}

// validate rejects rows that do not belong to the group
func validate(key model.GroupKey, byEntity bool, left, right []*model.Row) error {
	check := func(side string, rows []*model.Row, withEntity bool) error {
		for _, r := range rows {
			if r.Session != key.Session {
				return fmt.Errorf("%w: %s row of session %s", ErrMalformedGroup, side, r.Session)
			}
			if withEntity && r.Entity != key.Entity {
				return fmt.Errorf("%w: %s row of entity %q", ErrMalformedGroup, side, r.Entity)
			}
		}
		return nil
	}
	if err := check("left", left, key.Entity != ""); err != nil {
		return err
	}
	return check("right", right, byEntity)
}

// groupColumns derives the right columns from the rows of the group. An empty
// right group takes the store wide columns that are not already on the left.
func (g *Grouper) groupColumns(left, right []*model.Row, fallback []model.Column) (
	[]model.Column, error,
) {
	var schema []model.Column
	if len(right) > 0 {
		var err error
		if schema, err = model.SchemaOf(right); err != nil {
			return nil, fmt.Errorf("%w: right rows: %w", ErrMalformedGroup, err)
		}
	} else {
		leftCols, err := model.SchemaOf(left)
		if err != nil {
			return nil, fmt.Errorf("%w: left rows: %w", ErrMalformedGroup, err)
		}
		onLeft := lo.SliceToMap(leftCols, func(c model.Column) (string, bool) { return c.Name, true })
		schema = lo.Filter(fallback, func(c model.Column, _ int) bool { return !onLeft[c.Name] })
	}
	if g.rightColumns == nil {
		return schema, nil
	}
	byName := lo.KeyBy(schema, func(c model.Column) string { return c.Name })
	ret := make([]model.Column, 0, len(g.rightColumns))
	for _, name := range g.rightColumns {
		if c, ok := byName[name]; ok {
			ret = append(ret, c)
		} else {
			g.l.Debug("requested right column not present",
				log.String("name", g.name), log.String("column", name))
		}
	}
	return ret, nil
}
