// Package cmdutil holds the setup steps shared by the commands.
package cmdutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/config"
	"github.com/mpapenbr/telemetry-merger/pkg/model"
	"github.com/mpapenbr/telemetry-merger/pkg/notify"
	"github.com/mpapenbr/telemetry-merger/pkg/pipeline"
	"github.com/mpapenbr/telemetry-merger/pkg/sink"
	"github.com/mpapenbr/telemetry-merger/pkg/source"
	"github.com/mpapenbr/telemetry-merger/pkg/utils"
)

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// SetupLogger creates the default logger from the log flags
func SetupLogger() *log.Logger {
	opts := []log.Option{log.WithCaller(true), log.AddCallerSkip(1)}
	if config.LogFilter != "" {
		opts = append(opts, log.WithFilter(config.LogFilter))
	}
	var logger *log.Logger
	switch config.LogFormat {
	case "json":
		logger = log.New(os.Stderr, parseLogLevel(config.LogLevel, log.InfoLevel), opts...)
	default:
		logger = log.DevLogger(os.Stderr, parseLogLevel(config.LogLevel, log.InfoLevel), opts...)
	}
	log.ResetDefault(logger)
	return logger
}

// SetupTelemetry returns nil if telemetry is disabled or could not be set up
func SetupTelemetry(ctx context.Context) *config.Telemetry {
	if !config.EnableTelemetry {
		return nil
	}
	log.Info("Enabling telemetry", log.String("endpoint", config.TelemetryEndpoint))
	t, err := config.SetupTelemetry(ctx)
	if err != nil {
		log.Warn("Could not setup telemetry", log.ErrorField(err))
		return nil
	}
	return t
}

// Run wraps a command body with logger and telemetry setup
func Run(fn func(ctx context.Context) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		SetupLogger()
		defer func() { _ = log.Sync() }()
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if t := SetupTelemetry(ctx); t != nil {
			defer t.Shutdown()
		}
		return fn(ctx)
	}
}

func Sessions() ([]model.SessionKey, error) {
	ret, err := model.ParseSessionKeys(strings.Join(config.Sessions, ","))
	if err != nil {
		return nil, err
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("no sessions given, use --sessions 2023/6/R")
	}
	return ret, nil
}

// Manifests returns the built-in manifests, overridden by --manifest
func Manifests() (model.ManifestSet, error) {
	ret := model.DefaultManifests()
	if config.ManifestFile == "" {
		return ret, nil
	}
	extra, err := model.LoadManifestFile(config.ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", config.ManifestFile, err)
	}
	return ret.Merge(extra), nil
}

// ParseTolerance treats an empty value as unlimited
func ParseTolerance(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// PipelineOptions collects the merge settings from the flags
func PipelineOptions() (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()
	var err error
	if opts.Sessions, err = Sessions(); err != nil {
		return opts, err
	}
	if opts.Manifests, err = Manifests(); err != nil {
		return opts, err
	}
	if opts.GapTolerance, err = ParseTolerance(config.GapTolerance); err != nil {
		return opts, fmt.Errorf("gap-tolerance: %w", err)
	}
	if opts.WeatherTolerance, err = ParseTolerance(config.WeatherTolerance); err != nil {
		return opts, fmt.Errorf("weather-tolerance: %w", err)
	}
	opts.Workers = config.Workers
	opts.AccurateOnly = config.AccurateOnly
	opts.GapDriverColumn = config.GapDriverColumn
	if config.LappedGap > 0 {
		opts.LappedGap = config.LappedGap
	}
	opts.Logger = log.Default().Named("pipeline")
	return opts, nil
}

// RunPipeline opens the CSV source and merges the requested sessions
func RunPipeline(ctx context.Context, telemetry bool) (*pipeline.Output, error) {
	opts, err := PipelineOptions()
	if err != nil {
		return nil, err
	}
	opts.Telemetry = telemetry
	src := source.NewCSV(config.DataDir, source.WithLogger(log.Default().Named("source")))
	if err := src.Open(ctx); err != nil {
		return nil, err
	}
	defer src.Close()
	return pipeline.Run(ctx, src, opts)
}

func waitTimeout() time.Duration {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}
	return timeout
}

// WaitForDB blocks until the postgres server of url accepts connections
func WaitForDB(url string) error {
	addr := utils.ExtractFromDBURL(url)
	if addr == "" {
		return nil
	}
	if err := utils.WaitForTCP(addr, waitTimeout()); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	return nil
}

// SinkTarget returns the output location for the configured format
func SinkTarget() string {
	if config.Format == sink.FormatPostgres && !strings.Contains(config.Output, "://") {
		return config.DB
	}
	return config.Output
}

// OpenSink creates the sink for --format
func OpenSink(ctx context.Context, opts ...sink.Option) (sink.Sink, error) {
	target := SinkTarget()
	if config.Format == sink.FormatPostgres {
		if err := WaitForDB(target); err != nil {
			return nil, err
		}
	}
	opts = append(opts, sink.WithLogger(log.Default().Named("sink")))
	return sink.New(ctx, config.Format, target, opts...)
}

// Publisher connects to --nats-url, a no-op publisher is used without url
func Publisher() notify.Publisher {
	if config.NatsURL == "" {
		return notify.Nop()
	}
	p, err := notify.Connect(config.NatsURL,
		notify.WithSubject(config.NatsSubject),
		notify.WithLogger(log.Default().Named("notify")))
	if err != nil {
		log.Warn("Could not connect to NATS, run summaries are not published",
			log.ErrorField(err))
		return notify.Nop()
	}
	return p
}

// AddSourceFlags registers the flags selecting and merging sessions
func AddSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&config.DataDir,
		"data-dir",
		"data",
		"root directory of the session tables (<season>/<round>/<session>/*.csv)")
	cmd.Flags().StringSliceVar(&config.Sessions,
		"sessions",
		[]string{},
		"sessions to process, e.g. 2023/6/R,2023/6/Q")
	cmd.Flags().StringVar(&config.ManifestFile,
		"manifest",
		"",
		"yaml file with additional or replacing table manifests")
	cmd.Flags().StringVar(&config.GapTolerance,
		"gap-tolerance",
		pipeline.DefaultGapTolerance.String(),
		"max time distance between a lap and its gap sample (empty: unlimited)")
	cmd.Flags().StringVar(&config.WeatherTolerance,
		"weather-tolerance",
		"",
		"max time distance between a lap and its weather sample (empty: unlimited)")
	cmd.Flags().Float64Var(&config.LappedGap,
		"lapped-gap",
		0,
		"seconds used for lapped cars in gap columns (0: built-in default)")
	cmd.Flags().IntVar(&config.Workers,
		"workers",
		0,
		"number of concurrent group workers (0: number of CPUs)")
	cmd.Flags().StringVar(&config.GapDriverColumn,
		"gap-driver-column",
		"",
		"lap column matching the driver of the gap feed, e.g. Driver (empty: driver number)")
	cmd.Flags().BoolVar(&config.AccurateOnly,
		"accurate-only",
		false,
		"keep only laps flagged as accurate")
}

// AddOutputFlags registers the sink and notification flags
func AddOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&config.Output,
		"output",
		"o",
		"out",
		"output directory (parquet, csv), file (sqlite) or connection url (postgres, default --db)")
	cmd.Flags().StringVarP(&config.Format,
		"format",
		"f",
		sink.FormatParquet,
		fmt.Sprintf("output format (%s)", strings.Join(sink.Formats(), ", ")))
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		"",
		"publish run summaries to this NATS server")
	cmd.Flags().StringVar(&config.NatsSubject,
		"nats-subject",
		notify.DefaultSubject,
		"subject for run summaries")
}
