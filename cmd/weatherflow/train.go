package main

import (
	"context"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tigerroll/weatherflow/internal/app"
	"github.com/tigerroll/weatherflow/internal/train"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

func newExtractCmd(opts *rootOptions) *cobra.Command {
	var runDate string
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Write the daily summaries of the training period to CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, c *app.Components) error {
				d, err := opts.runDate(c.Config, runDate)
				if err != nil {
					return err
				}
				ec := c.Config.Train.Extract
				return c.Conn.WithSession(ctx, func(session *gorm.DB) error {
					_, err := train.Extract(ctx, c.Repo, session, d, ec.Days, ec.OutputPath)
					return err
				})
			})
		},
	}
	addRunDateFlag(cmd, &runDate)
	return cmd
}

func newSplitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "split",
		Short: "Split the extracted CSV into training and test sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			sc := cfg.Train.Split
			return train.Split(cfg.Train.Extract.OutputPath, sc.TestSize, sc.TrainOutputPath, sc.TestOutputPath)
		},
	}
}

func newTrainCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Grid-search the estimators and save the best model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			result, err := train.Train(cfg.Train, opts.now())
			if err != nil {
				return err
			}
			logger.Infof("Best estimator %s with MAPE %.4f, params %v.", result.Estimator, result.BestScore, result.BestParams)
			return nil
		},
	}
}

func newEvaluateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Score the saved model on the test set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			m, err := train.Evaluate(cfg.Train)
			if err != nil {
				return err
			}
			logger.Infof("Evaluation: MAPE %.4f, MAE %.4f, MSE %.4f.", m.MAPE, m.MAE, m.MSE)
			return nil
		},
	}
}
