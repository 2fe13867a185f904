package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/eust-w/volatile/internal/app"
	"github.com/eust-w/volatile/internal/config"
	"github.com/eust-w/volatile/internal/metrics"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.LoadConfig()

	// Lambda logs are easier to query as JSON
	cfg.LogFormat = "json"
	app.ConfigureLogging(cfg)

	volatile, err := app.New(cfg)
	if err != nil {
		logrus.Fatalf("%v", err)
	}

	if cfg.PrometheusGateway == "" {
		logrus.Warn("VOLATILE_PROMETHEUS_GATEWAY is not set, metrics of the pass will be lost")
	}

	lambda.Start(func(ctx context.Context, event events.CloudWatchEvent) (map[string]int, error) {
		return handleRequest(ctx, volatile, event)
	})
}

// handleRequest runs one pass for a scheduled EventBridge event
func handleRequest(ctx context.Context, volatile *app.App, event events.CloudWatchEvent) (map[string]int, error) {
	logrus.WithFields(logrus.Fields{
		"id":     event.ID,
		"source": event.Source,
		"time":   event.Time,
	}).Info("Received scheduled event")

	summary, err := volatile.RunPass(ctx)
	if err != nil {
		logrus.Errorf("Pass failed: %v", err)
		return nil, fmt.Errorf("pass failed: %w", err)
	}

	result := make(map[string]int, len(metrics.Outcomes))
	for _, outcome := range metrics.Outcomes {
		result[string(outcome)] = summary[outcome]
	}
	return result, nil
}
