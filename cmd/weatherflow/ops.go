package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tigerroll/weatherflow/internal/app"
	"github.com/tigerroll/weatherflow/internal/schema"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		runDate string
		days    int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Archive daily and hourly readings as Parquet in object storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, c *app.Components) error {
				d, err := opts.runDate(c.Config, runDate)
				if err != nil {
					return err
				}
				return c.Conn.WithSession(ctx, func(session *gorm.DB) error {
					_, err := c.Exporter.Export(ctx, session, d, days)
					return err
				})
			})
		},
	}
	addRunDateFlag(cmd, &runDate)
	cmd.Flags().IntVar(&days, "days", 0, "number of days ending at the run date (default: export.days)")
	return cmd
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, c *app.Components) error {
				if err := schema.Migrate(ctx, c.Conn); err != nil {
					return err
				}
				version, dirty, err := schema.Version(ctx, c.Conn)
				if err != nil {
					return err
				}
				logger.Infof("Schema at version %d (dirty=%t).", version, dirty)
				return nil
			})
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var withSchedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard query API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, c *app.Components) error {
				g, ctx := errgroup.WithContext(ctx)
				g.Go(func() error { return c.Dashboard.Run(ctx) })
				if withSchedule {
					g.Go(func() error { return c.Scheduler.Run(ctx) })
				}
				return g.Wait()
			})
		},
	}
	cmd.Flags().BoolVar(&withSchedule, "schedule", false, "also run the daily scheduler")
	return cmd
}

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline every day until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, c *app.Components) error {
				return c.Scheduler.Run(ctx)
			})
		},
	}
}
