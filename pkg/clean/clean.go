package clean

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

type Stage string

const (
	StageLapTime  Stage = "lap_time"  // null or non-positive primary duration
	StageTyreLife Stage = "tyre_life" // tyre age equals zero
	StageDeleted  Stage = "deleted"   // lap flagged as deleted
	StageAccurate Stage = "accurate"  // timing flagged as not accurate
)

type (
	Option func(*Filter)
	Filter struct {
		accurate    bool
		durationCol string
		lifeCol     string
		deletedCol  string
		accurateCol string
		l           *log.Logger
		counter     metric.Int64Counter
	}
	StageCount struct {
		Stage   Stage
		Before  int
		After   int
		Skipped bool // column not present in table
	}
	Report struct {
		Stages []StageCount
	}
)

// WithAccurate enables the additional IsAccurate stage
func WithAccurate(arg bool) Option {
	return func(f *Filter) {
		f.accurate = arg
	}
}

func WithDurationColumn(name string) Option {
	return func(f *Filter) {
		f.durationCol = name
	}
}

func WithLifeColumn(name string) Option {
	return func(f *Filter) {
		f.lifeCol = name
	}
}

func WithDeletedColumn(name string) Option {
	return func(f *Filter) {
		f.deletedCol = name
	}
}

func WithLogger(l *log.Logger) Option {
	return func(f *Filter) {
		f.l = l
	}
}

func New(opts ...Option) *Filter {
	ret := &Filter{
		durationCol: model.ColLapTime,
		lifeCol:     model.ColTyreLife,
		deletedCol:  model.ColDeleted,
		accurateCol: model.ColIsAccurate,
		l:           log.Default().Named("clean"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	meter := otel.GetMeterProvider().Meter("tmg.clean")
	var err error
	if ret.counter, err = meter.Int64Counter("tmg.clean.rows",
		metric.WithDescription("Number of rows before and after a cleaning stage"),
		metric.WithUnit("{row}")); err != nil {
		ret.l.Error("failed to register metric", log.ErrorField(err))
	}
	return ret
}

func (r *Report) Before() int {
	if len(r.Stages) == 0 {
		return 0
	}
	return r.Stages[0].Before
}

func (r *Report) After() int {
	if len(r.Stages) == 0 {
		return 0
	}
	return r.Stages[len(r.Stages)-1].After
}

type stage struct {
	name   Stage
	column string
	drop   func(*model.Row) bool
}

func (f *Filter) stages() []stage {
	ret := []stage{
		{StageLapTime, f.durationCol, func(r *model.Row) bool {
			v, ok := r.Float(f.durationCol)
			return !ok || v <= 0
		}},
		{StageTyreLife, f.lifeCol, func(r *model.Row) bool {
			v, ok := r.Float(f.lifeCol)
			return ok && v == 0
		}},
		{StageDeleted, f.deletedCol, func(r *model.Row) bool {
			v, ok := r.Flag(f.deletedCol)
			return ok && v
		}},
	}
	if f.accurate {
		ret = append(ret, stage{StageAccurate, f.accurateCol, func(r *model.Row) bool {
			v, ok := r.Flag(f.accurateCol)
			return ok && !v
		}})
	}
	return ret
}

// Apply runs the stages in fixed order. Stages whose column is not present
// in any row are skipped. The input table is not modified; an empty result
// is valid.
func (f *Filter) Apply(ctx context.Context, tbl *model.Table) (*model.Table, *Report) {
	report := &Report{}
	rows := tbl.Rows
	for _, st := range f.stages() {
		sc := StageCount{Stage: st.name, Before: len(rows)}
		if !present(rows, st.column) {
			sc.Skipped = true
			sc.After = len(rows)
			report.Stages = append(report.Stages, sc)
			f.l.Debug("stage skipped, column not present",
				log.String("stage", string(st.name)), log.String("column", st.column))
			continue
		}
		kept := make([]*model.Row, 0, len(rows))
		for _, r := range rows {
			if !st.drop(r) {
				kept = append(kept, r)
			}
		}
		rows = kept
		sc.After = len(rows)
		report.Stages = append(report.Stages, sc)
		f.l.Info("cleaning stage",
			log.String("table", tbl.Name),
			log.String("stage", string(st.name)),
			log.Int("before", sc.Before),
			log.Int("after", sc.After))
		f.record(ctx, sc)
	}
	return &model.Table{
		Name:         tbl.Name,
		EntityColumn: tbl.EntityColumn,
		TimeColumn:   tbl.TimeColumn,
		Rows:         rows,
	}, report
}

func (f *Filter) record(ctx context.Context, sc StageCount) {
	if f.counter == nil {
		return
	}
	for phase, v := range map[string]int{"before": sc.Before, "after": sc.After} {
		f.counter.Add(ctx, int64(v), metric.WithAttributes(
			attribute.String("stage", string(sc.Stage)),
			attribute.String("phase", phase)))
	}
}

func present(rows []*model.Row, col string) bool {
	for _, r := range rows {
		if r.Has(col) {
			return true
		}
	}
	return false
}
