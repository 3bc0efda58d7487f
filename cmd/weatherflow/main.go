// Command weatherflow runs the weather ingestion, forecasting and monitoring pipeline.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

// embeddedConfig is the default configuration compiled into the binary.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
