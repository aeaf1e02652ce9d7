package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/cmd/cmdutil"
	"github.com/mpapenbr/telemetry-merger/pkg/config"
	"github.com/mpapenbr/telemetry-merger/pkg/grouper"
	"github.com/mpapenbr/telemetry-merger/pkg/model"
	"github.com/mpapenbr/telemetry-merger/pkg/notify"
	"github.com/mpapenbr/telemetry-merger/pkg/pipeline"
	"github.com/mpapenbr/telemetry-merger/pkg/sink"
)

func NewMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "merges laps with weather and gap data",
		Long: `Loads laps, weather and gaps of the given sessions, aligns weather and gap
samples to each lap by nearest time, cleans the result and writes the merged table.`,
		RunE: cmdutil.Run(func(ctx context.Context) error {
			return runMerge(ctx, false)
		}),
	}
	cmdutil.AddSourceFlags(cmd)
	cmdutil.AddOutputFlags(cmd)
	return cmd
}

func NewTelemetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telemetry",
		Short: "merges car and position samples and tags them with laps",
		Long: `Runs the lap merge and additionally joins car and position telemetry per
driver. Every sample is tagged with the lap it was recorded in. Both the merged
laps and the telemetry table are written.`,
		RunE: cmdutil.Run(func(ctx context.Context) error {
			return runMerge(ctx, true)
		}),
	}
	cmdutil.AddSourceFlags(cmd)
	cmdutil.AddOutputFlags(cmd)
	return cmd
}

func runMerge(ctx context.Context, telemetry bool) error {
	out, err := cmdutil.RunPipeline(ctx, telemetry)
	if out != nil && out.Report != nil {
		logReport(out.Report)
	}
	if err != nil {
		if errors.Is(err, grouper.ErrBatchEmpty) {
			log.Error("No rows produced, nothing is written", log.ErrorField(err))
		}
		return err
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return err
	}
	s, err := cmdutil.OpenSink(ctx,
		sink.WithRunID(runID),
		sink.WithSessions(out.Report.Sessions))
	if err != nil {
		return err
	}
	written := []*model.Table{out.Merged}
	if out.Telemetry != nil {
		written = append(written, out.Telemetry)
	}
	for _, tbl := range written {
		if err := s.Write(ctx, tbl); err != nil {
			s.Close()
			return fmt.Errorf("write %s: %w", tbl.Name, err)
		}
	}
	if err := s.Close(); err != nil {
		return err
	}

	summary := buildSummary(runID, out, written)
	pub := cmdutil.Publisher()
	defer pub.Close()
	if err := pub.Publish(ctx, summary); err != nil {
		log.Warn("Could not publish run summary", log.ErrorField(err))
	}
	log.Info("Merge done",
		log.Stringer("run", runID),
		log.String("format", config.Format),
		log.String("target", cmdutil.SinkTarget()))
	return nil
}

func buildSummary(runID uuid.UUID, out *pipeline.Output, written []*model.Table) *notify.Summary {
	r := out.Report
	ret := &notify.Summary{
		RunID:    runID,
		Created:  time.Now().UTC(),
		Format:   config.Format,
		Target:   cmdutil.SinkTarget(),
		Sessions: notify.SessionNames(r.Sessions),
		Missing:  notify.SessionNames(r.Missing),
	}
	if config.Format == sink.FormatPostgres {
		// connection urls may carry credentials
		ret.Target = ""
	}
	for _, tbl := range written {
		ret.Tables = append(ret.Tables, notify.TableSummary{Name: tbl.Name, Rows: tbl.Len()})
	}
	for _, st := range []pipeline.StageReport{r.Weather, r.Gaps, r.Telemetry} {
		ret.Failures += len(st.Failures)
		ret.Warnings += len(st.Warnings)
	}
	return ret
}

func logReport(r *pipeline.Report) {
	for _, n := range r.Normalize {
		if n.Total() > 0 {
			log.Warn("Values could not be parsed",
				log.String("table", n.Table),
				log.Int("count", n.Total()))
		}
	}
	stages := map[string]pipeline.StageReport{
		"weather":   r.Weather,
		"gaps":      r.Gaps,
		"telemetry": r.Telemetry,
	}
	for name, st := range stages {
		for _, f := range st.Failures {
			log.Warn("Group failed",
				log.String("stage", name),
				log.Stringer("group", f.Key),
				log.ErrorField(f.Err))
		}
		if len(st.Warnings) > 0 {
			log.Info("Groups without right data",
				log.String("stage", name),
				log.Int("count", len(st.Warnings)))
		}
	}
	if r.Clean != nil {
		log.Info("Rows after cleaning",
			log.Int("before", r.Clean.Before()),
			log.Int("after", r.Clean.After()))
	}
}
