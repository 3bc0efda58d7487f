package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/tigerroll/weatherflow/internal/app"
	"github.com/tigerroll/weatherflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

func newDataCmd(opts *rootOptions) *cobra.Command {
	var (
		runDate  string
		forecast bool
		monitor  bool
	)
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Run ingestion then daily preparation; optionally forecast and monitor afterwards",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, c *app.Components) error {
				d, err := opts.runDate(c.Config, runDate)
				if err != nil {
					return err
				}
				return c.Pipeline.Run(ctx, d, forecast, monitor)
			})
		},
	}
	addRunDateFlag(cmd, &runDate)
	cmd.Flags().BoolVar(&forecast, "forecast", false, "run the forecast unit when the data is ready")
	cmd.Flags().BoolVar(&monitor, "monitor", false, "run the monitoring unit when the data is ready")
	return cmd
}

// newUnitCmd builds a command running a single unit for one date.
func newUnitCmd(opts *rootOptions, use, short string, run func(ctx context.Context, c *app.Components, d time.Time) (*model.UnitExecution, error)) *cobra.Command {
	var runDate string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, c *app.Components) error {
				d, err := opts.runDate(c.Config, runDate)
				if err != nil {
					return err
				}
				exec, err := run(ctx, c, d)
				if exec != nil {
					logger.Infof("%s for %s finished: %s/%s, %d rows.", exec.UnitName, d.Format(time.DateOnly), exec.Status, exec.ExitStatus, exec.RowsWritten)
				}
				return err
			})
		},
	}
	addRunDateFlag(cmd, &runDate)
	return cmd
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	return newUnitCmd(opts, "ingest", "Fetch one day of hourly readings and store them", func(ctx context.Context, c *app.Components, d time.Time) (*model.UnitExecution, error) {
		return c.Ingestion.Run(ctx, d)
	})
}

func newPrepareCmd(opts *rootOptions) *cobra.Command {
	var runDate string
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Aggregate the stored hourly readings of one day into daily means",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, c *app.Components) error {
				d, err := opts.runDate(c.Config, runDate)
				if err != nil {
					return err
				}
				ready, err := c.DailyPrep.Run(ctx, d)
				if err != nil {
					return err
				}
				if !ready {
					return exception.NewDailyPrepFailure(d.Format(time.DateOnly))
				}
				return nil
			})
		},
	}
	addRunDateFlag(cmd, &runDate)
	return cmd
}

func newForecastCmd(opts *rootOptions) *cobra.Command {
	return newUnitCmd(opts, "forecast", "Forecast the next days from the daily history", func(ctx context.Context, c *app.Components, d time.Time) (*model.UnitExecution, error) {
		return c.Forecast.Run(ctx, d)
	})
}

func newMonitorCmd(opts *rootOptions) *cobra.Command {
	return newUnitCmd(opts, "monitor", "Score past forecasts against the observed daily means", func(ctx context.Context, c *app.Components, d time.Time) (*model.UnitExecution, error) {
		return c.Monitor.Run(ctx, d)
	})
}
