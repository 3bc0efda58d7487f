package app

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/weatherflow/internal/config"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// Run starts the graph for cfg, calls fn with the populated components and stops the graph afterwards.
func Run(ctx context.Context, cfg *config.Config, fn func(ctx context.Context, c *Components) error, extra ...fx.Option) error {
	module, err := Module(cfg)
	if err != nil {
		return err
	}
	var c Components
	app := fx.New(append([]fx.Option{module, fx.Populate(&c)}, extra...)...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			logger.Warnf("Application shutdown failed: %v", err)
		}
	}()

	return fn(ctx, &c)
}
