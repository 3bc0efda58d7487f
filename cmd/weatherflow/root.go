package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/tigerroll/weatherflow/internal/app"
	"github.com/tigerroll/weatherflow/internal/config"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	confFile string
	envFile  string
	logLevel string
	// now is replaced in tests.
	now func() time.Time
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{now: time.Now}
	root := &cobra.Command{
		Use:           "weatherflow",
		Short:         "Incremental weather ingestion, forecasting and monitoring pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.confFile, "conf", "", "YAML file layered over the embedded configuration")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", ".env file loaded before the configuration")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (DEBUG, INFO, WARN, ERROR)")

	root.AddCommand(
		newDataCmd(opts),
		newIngestCmd(opts),
		newPrepareCmd(opts),
		newForecastCmd(opts),
		newMonitorCmd(opts),
		newExtractCmd(opts),
		newSplitCmd(opts),
		newTrainCmd(opts),
		newEvaluateCmd(opts),
		newExportCmd(opts),
		newMigrateCmd(opts),
		newServeCmd(opts),
		newScheduleCmd(opts),
	)
	return root
}

// loadConfig reads the configuration and applies the logging settings.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		EnvFilePath: o.envFile,
		Embedded:    embeddedConfig,
		ConfigFile:  o.confFile,
	})
	if err != nil {
		return nil, err
	}
	level := cfg.System.Logging.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger.SetLogLevel(level)
	logger.SetFormat(cfg.System.Logging.Format)
	return cfg, nil
}

// runDate resolves --running_date against the configured timezone and lag.
func (o *rootOptions) runDate(cfg *config.Config, value string) (time.Time, error) {
	now := o.now()
	if loc, err := time.LoadLocation(cfg.System.Timezone); err == nil {
		now = now.In(loc)
	}
	return config.ParseRunDate(value, now, cfg.Schedule.LagDays)
}

// withApp loads the configuration and runs fn inside the application graph.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, c *app.Components) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	return app.Run(cmd.Context(), cfg, fn)
}

func addRunDateFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "running_date", "", "run date YYYY-MM-DD (default: today minus schedule.lag_days)")
}
