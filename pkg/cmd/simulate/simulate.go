package simulate

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/cmd/cmdutil"
	"github.com/mpapenbr/telemetry-merger/pkg/config"
	"github.com/mpapenbr/telemetry-merger/pkg/model"
	"github.com/mpapenbr/telemetry-merger/pkg/strategy"
	"github.com/mpapenbr/telemetry-merger/pkg/tyre"
)

type simConfig struct {
	modelFile string
	laps      int
	compounds []string
	minStint  int
	pitLoss   time.Duration
	top       int
	driver    string
	weather   strategy.Weather
	startLap  int
	length    int
	compound  string
}

var (
	cfg    simConfig
	stdout io.Writer = os.Stdout
)

func addModelFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&cfg.modelFile,
		"model",
		"m",
		"tyre_model.json",
		"trained tyre model (plain or clustered)")
	cmd.Flags().Float64Var(&cfg.weather.TrackTemp, "track-temp", 35, "track temperature")
	cmd.Flags().Float64Var(&cfg.weather.AirTemp, "air-temp", 25, "air temperature")
	cmd.Flags().Float64Var(&cfg.weather.Pressure, "pressure", 1010, "air pressure")
	cmd.Flags().Float64Var(&cfg.weather.Rainfall, "rainfall", 0, "rain intensity")
}

func NewSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "ranks two stint strategies with a tyre model",
		Long: `Generates all two stint strategies for the race distance and predicts their
race time. With --sessions the strategies are compared with the laps actually
driven, using the median weather of those laps.`,
		RunE: cmdutil.Run(func(ctx context.Context) error {
			return runSimulate(ctx, cfg)
		}),
	}
	addModelFlags(cmd)
	cmdutil.AddSourceFlags(cmd)
	cmd.Flags().IntVar(&cfg.laps, "laps", 78, "race distance in laps")
	cmd.Flags().StringSliceVar(&cfg.compounds,
		"compounds",
		[]string{"SOFT", "MEDIUM", "HARD"},
		"available compounds")
	cmd.Flags().IntVar(&cfg.minStint, "min-stint", 5, "minimum stint length")
	cmd.Flags().DurationVar(&cfg.pitLoss, "pit-loss", strategy.DefaultPitLoss, "time lost per pit stop")
	cmd.Flags().IntVar(&cfg.top, "top", 10, "number of strategies shown")
	cmd.Flags().StringVar(&cfg.driver,
		"driver",
		"",
		"compare with the laps of this driver (number or abbreviation)")
	return cmd
}

func NewAdviseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advise",
		Short: "runs a stint lap by lap and recommends a pit stop",
		RunE: cmdutil.Run(func(ctx context.Context) error {
			return runAdvise(cfg)
		}),
	}
	addModelFlags(cmd)
	cmd.Flags().IntVar(&cfg.startLap, "start-lap", 1, "first lap of the stint")
	cmd.Flags().IntVar(&cfg.length, "length", 30, "planned stint length")
	cmd.Flags().StringVar(&cfg.compound, "compound", "SOFT", "tyre compound")
	return cmd
}

// driverLaps keeps the rows of driver, matched by entity or Driver column
func driverLaps(tbl *model.Table, driver string) *model.Table {
	ret := &model.Table{Name: tbl.Name, EntityColumn: tbl.EntityColumn, TimeColumn: tbl.TimeColumn}
	for _, r := range tbl.Rows {
		d, _ := r.Text(model.ColDriver)
		if r.Entity == driver || strings.EqualFold(d, driver) {
			ret.Rows = append(ret.Rows, r)
		}
	}
	return ret
}

func runSimulate(ctx context.Context, c simConfig) error {
	predictor, err := tyre.LoadPredictor(c.modelFile)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	strategies := strategy.Generate(c.laps, c.compounds, c.minStint)
	if len(strategies) == 0 {
		return fmt.Errorf("%w: no strategies for %d laps with min stint %d",
			strategy.ErrInvalidStrategy, c.laps, c.minStint)
	}
	var actual *model.Table
	if len(config.Sessions) > 0 {
		out, err := cmdutil.RunPipeline(ctx, false)
		if err != nil {
			return err
		}
		actual = out.Merged
		if c.driver != "" {
			actual = driverLaps(actual, c.driver)
		}
	}
	var cmp *strategy.Comparison
	if actual != nil && actual.Len() > 0 {
		if cmp, err = strategy.Compare(actual, strategies, predictor, c.pitLoss); err != nil {
			return err
		}
	} else {
		cmp = &strategy.Comparison{Weather: c.weather}
		if cmp.Results, err = strategy.Rank(strategies, predictor, c.weather, c.pitLoss); err != nil {
			return err
		}
	}
	log.Info("Strategies simulated",
		log.Int("count", len(cmp.Results)),
		log.Float64("trackTemp", cmp.Weather.TrackTemp),
		log.Float64("airTemp", cmp.Weather.AirTemp))
	return printComparison(stdout, cmp, c.top)
}

func printComparison(w io.Writer, cmp *strategy.Comparison, top int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tstrategy\ttotal\tdelta")
	var best time.Duration
	for i, r := range cmp.Results {
		if i >= top {
			break
		}
		if i == 0 {
			best = r.Total
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t+%s\n", i+1, r.Strategy, r.Total.Round(time.Millisecond),
			(r.Total - best).Round(time.Millisecond))
	}
	if cmp.RealTime > 0 {
		fmt.Fprintf(tw, "-\tactual (%d stints)\t%s\t\n", cmp.Stints, cmp.RealTime.Round(time.Millisecond))
	}
	return tw.Flush()
}

func runAdvise(c simConfig) error {
	predictor, err := tyre.LoadPredictor(c.modelFile)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	advice, err := strategy.AdviseStint(&strategy.StintParams{
		StartLap:  c.startLap,
		Length:    c.length,
		Compound:  c.compound,
		Weather:   c.weather,
		Predictor: predictor,
	})
	if err != nil {
		return err
	}
	return printAdvice(stdout, c, advice)
}

func printAdvice(w io.Writer, c simConfig, a *strategy.Advice) error {
	for i, t := range a.LapTimes {
		if _, err := fmt.Fprintf(w, "Lap %d: %.2f sec\n", c.startLap+i, t); err != nil {
			return err
		}
	}
	var err error
	switch {
	case a.Reason != strategy.NoPit:
		_, err = fmt.Fprintf(w, "Pit stop recommended on lap %d (%s, %+.2fs)\n", a.PitLap, a.Reason, a.Delta)
	case strategy.CrossoverToInters(c.weather.TrackTemp, c.weather.Rainfall):
		_, err = fmt.Fprintln(w, "Stint complete, crossover to intermediates")
	case !strategy.StayOutOnSofts(c.weather.Rainfall):
		_, err = fmt.Fprintln(w, "Stint complete, rain too heavy to stay out on slicks")
	default:
		_, err = fmt.Fprintln(w, "Stint complete")
	}
	return err
}
