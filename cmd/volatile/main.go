package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/eust-w/volatile/internal/app"
	"github.com/eust-w/volatile/internal/config"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Configure logging
	app.ConfigureLogging(cfg)
	logrus.Info(cfg.String())

	volatile, err := app.New(cfg)
	if err != nil {
		logrus.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := volatile.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logrus.Info("Interrupted, shutting down")
			return
		}
		logrus.Fatalf("%v", err)
	}
}
