package train

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/cmd/cmdutil"
	"github.com/mpapenbr/telemetry-merger/pkg/model"
	"github.com/mpapenbr/telemetry-merger/pkg/tyre"
)

type trainConfig struct {
	modelFile    string
	traffic      bool
	sessionTypes []string
	beforeSeason int
	testFraction float64
	seed         uint64
	clusters     int
	lambda       float64
}

var cfg trainConfig

func NewTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "trains a tyre lap time model on merged laps",
		Long: `Merges the given sessions and fits a degree 2 polynomial model of the lap time
over tyre life, weather and compound. With --clusters a model per racing
situation is trained in addition to a model over all laps.`,
		RunE: cmdutil.Run(runTrain),
	}
	cmdutil.AddSourceFlags(cmd)
	cmd.Flags().StringVarP(&cfg.modelFile,
		"model",
		"m",
		"tyre_model.json",
		"file the trained model is written to")
	cmd.Flags().BoolVar(&cfg.traffic,
		"traffic",
		false,
		"use gap to leader and interval as additional features")
	cmd.Flags().StringSliceVar(&cfg.sessionTypes,
		"session-types",
		[]string{},
		"restrict training to these session types, e.g. R,Q")
	cmd.Flags().IntVar(&cfg.beforeSeason,
		"before-season",
		0,
		"use only sessions of seasons before this one (0: all)")
	cmd.Flags().Float64Var(&cfg.testFraction,
		"test-fraction",
		0.2,
		"share of laps held back for scoring")
	cmd.Flags().Uint64Var(&cfg.seed,
		"seed",
		42,
		"seed for the train/test split and the clustering")
	cmd.Flags().IntVar(&cfg.clusters,
		"clusters",
		0,
		"number of racing situation clusters (0: single model)")
	cmd.Flags().Float64Var(&cfg.lambda,
		"lambda",
		1e-4,
		"ridge penalty of the regression")
	return cmd
}

func selection(c *trainConfig) (tyre.Selection, error) {
	ret := tyre.Selection{BeforeSeason: c.beforeSeason}
	for _, s := range c.sessionTypes {
		st, err := model.ParseSessionType(s)
		if err != nil {
			return ret, err
		}
		ret.SessionTypes = append(ret.SessionTypes, st)
	}
	if c.traffic {
		ret.Numeric = slices.Concat(tyre.BaseFeatures, tyre.TrafficFeatures)
	}
	return ret, nil
}

func runTrain(ctx context.Context) error {
	sel, err := selection(&cfg)
	if err != nil {
		return err
	}
	out, err := cmdutil.RunPipeline(ctx, false)
	if err != nil {
		return err
	}
	l := log.Default().Named("train")
	opts := []tyre.FitOption{tyre.WithLambda(cfg.lambda), tyre.WithLogger(l)}

	if cfg.clusters > 0 {
		cm, err := tyre.FitClustered(out.Merged, sel, cfg.clusters, cfg.seed, opts...)
		if err != nil {
			return err
		}
		l.Info("Clustered model trained",
			log.Int("clusters", cfg.clusters),
			log.Int("models", len(cm.Models)),
			log.Float64("r2", cm.Fallback.Extra.Score))
		return cm.SaveFile(cfg.modelFile)
	}

	ds, err := tyre.BuildDataset(out.Merged, sel)
	if err != nil {
		return err
	}
	train, test := ds.Split(cfg.testFraction, cfg.seed)
	if train.Len() == 0 {
		return fmt.Errorf("%w: no laps left for training", tyre.ErrNoData)
	}
	m, err := tyre.Fit(train, opts...)
	if err != nil {
		return err
	}
	fields := []log.Field{
		log.Int("train", train.Len()),
		log.Int("test", test.Len()),
		log.Strings("features", m.Features),
		log.Float64("r2Train", m.Extra.Score),
	}
	if test.Len() > 0 {
		score, err := m.Score(test)
		if err != nil {
			return err
		}
		fields = append(fields, log.Float64("r2Test", score))
	}
	l.Info("Model trained", fields...)
	if err := m.SaveFile(cfg.modelFile); err != nil {
		return err
	}
	l.Info("Model saved", log.String("file", cfg.modelFile))
	return nil
}
