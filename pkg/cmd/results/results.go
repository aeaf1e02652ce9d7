package results

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/cmd/cmdutil"
	"github.com/mpapenbr/telemetry-merger/pkg/config"
	"github.com/mpapenbr/telemetry-merger/pkg/model"
	"github.com/mpapenbr/telemetry-merger/pkg/normalize"
	"github.com/mpapenbr/telemetry-merger/pkg/notify"
	"github.com/mpapenbr/telemetry-merger/pkg/sink"
	"github.com/mpapenbr/telemetry-merger/pkg/source"
)

func NewResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "converts race result json files into a table",
		Long: `Flattens the race result documents found in --results-dir into one row per
driver and race and writes them as table race_results.`,
		RunE: cmdutil.Run(runResults),
	}
	cmd.Flags().StringVar(&config.ResultsDir,
		"results-dir",
		"results",
		"directory with race result json files")
	cmd.Flags().StringVar(&config.ManifestFile,
		"manifest",
		"",
		"yaml file with additional or replacing table manifests")
	cmdutil.AddOutputFlags(cmd)
	return cmd
}

// loadResults reads and normalizes all result documents of dir
func loadResults(dir string, manifests model.ManifestSet) (*model.Table, *normalize.Report, error) {
	m, ok := manifests[source.TableRaceResults]
	if !ok {
		return nil, nil, fmt.Errorf("no manifest for %s", source.TableRaceResults)
	}
	raw, err := source.LoadResultsDir(dir)
	if err != nil {
		return nil, nil, err
	}
	if raw.Len() == 0 {
		return nil, nil, fmt.Errorf("no race results found in %s", dir)
	}
	tbl, report := normalize.Normalize(raw, m,
		normalize.WithLogger(log.Default().Named("normalize")))
	return tbl, report, nil
}

func runResults(ctx context.Context) error {
	manifests, err := cmdutil.Manifests()
	if err != nil {
		return err
	}
	tbl, report, err := loadResults(config.ResultsDir, manifests)
	if err != nil {
		return err
	}
	if report.Total() > 0 {
		log.Warn("Values could not be parsed",
			log.String("table", report.Table),
			log.Int("count", report.Total()))
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return err
	}
	sessions := tbl.Sessions()
	s, err := cmdutil.OpenSink(ctx, sink.WithRunID(runID), sink.WithSessions(sessions))
	if err != nil {
		return err
	}
	if err := s.Write(ctx, tbl); err != nil {
		s.Close()
		return fmt.Errorf("write %s: %w", tbl.Name, err)
	}
	if err := s.Close(); err != nil {
		return err
	}

	pub := cmdutil.Publisher()
	defer pub.Close()
	summary := &notify.Summary{
		RunID:    runID,
		Created:  time.Now().UTC(),
		Format:   config.Format,
		Sessions: notify.SessionNames(sessions),
		Tables:   []notify.TableSummary{{Name: tbl.Name, Rows: tbl.Len()}},
	}
	if err := pub.Publish(ctx, summary); err != nil {
		log.Warn("Could not publish run summary", log.ErrorField(err))
	}
	log.Info("Race results written",
		log.Stringer("run", runID),
		log.Int("rows", tbl.Len()),
		log.Int("sessions", len(sessions)))
	return nil
}
