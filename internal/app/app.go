// Package app wires configuration, forge client, metrics and bot together and
// drives the passes for the command line and Lambda entrypoints.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/eust-w/volatile/internal/bot"
	"github.com/eust-w/volatile/internal/config"
	"github.com/eust-w/volatile/internal/git"
	"github.com/eust-w/volatile/internal/metrics"
	"github.com/sirupsen/logrus"
)

// ConfigureLogging applies the log format and level of cfg
func ConfigureLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.Warnf("Unknown log level %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// App runs synchronisation passes and exports their metrics
type App struct {
	config  *config.Config
	bot     *bot.Bot
	metrics *metrics.Metrics
}

// New validates cfg and builds the platform client, metrics and bot
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	template, err := bot.LoadTemplate(cfg.TemplatePath)
	if err != nil {
		return nil, err
	}

	platform, err := git.NewFactory(cfg).CreatePlatform()
	if err != nil {
		return nil, fmt.Errorf("failed to create git platform client: %w", err)
	}

	return NewWithPlatform(cfg, platform, template)
}

// NewWithPlatform builds an App around an existing platform client
func NewWithPlatform(cfg *config.Config, platform git.Platform, template *bot.Template) (*App, error) {
	m := metrics.New(metrics.Labels{
		Template:      cfg.TemplatePath,
		Search:        cfg.GitlabSearch,
		SearchInGroup: cfg.GitlabSearchInGroup,
	})

	b, err := bot.NewBot(cfg, platform, m, template)
	if err != nil {
		return nil, err
	}

	return &App{config: cfg, bot: b, metrics: m}, nil
}

// Metrics exposes the gauges of the app
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// RunPass runs one pass and pushes the metrics when a gateway is configured
func (a *App) RunPass(ctx context.Context) (bot.Summary, error) {
	summary, err := a.bot.Run(ctx)
	if err != nil {
		return summary, err
	}

	if a.config.PrometheusGateway != "" {
		if err := a.metrics.Push(ctx, a.config.PrometheusGateway); err != nil {
			return summary, err
		}
	}

	return summary, nil
}

// Run serves the metrics when no gateway is configured, then runs passes until
// a single pass is done or, with an interval, until ctx is cancelled. With an
// interval a failed pass is logged and the next one still runs.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.config.PrometheusGateway == "" {
		addr := fmt.Sprintf(":%d", a.config.PrometheusPort)
		go func() {
			if err := a.metrics.Serve(ctx, addr); err != nil {
				logrus.Errorf("%v", err)
			}
		}()
	}

	for {
		if _, err := a.RunPass(ctx); err != nil {
			if a.config.Interval <= 0 || ctx.Err() != nil {
				return err
			}
			logrus.Errorf("Pass failed: %v", err)
		}

		if a.config.Interval <= 0 {
			if a.config.PrometheusGateway == "" {
				logrus.Debug("waiting the scraper")
				return sleep(ctx, a.config.ScrapeWait)
			}
			return nil
		}

		logrus.Infof("Next pass in %s", a.config.Interval)
		if err := sleep(ctx, a.config.Interval); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
