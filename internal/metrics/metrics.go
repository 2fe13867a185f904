// Package metrics holds the gauges describing a synchronisation pass and
// exports them by scrape or through a Prometheus Pushgateway.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/sirupsen/logrus"
)

// Job is the Pushgateway job name
const Job = "batch-volatile"

// Outcome identifies one gauge
type Outcome string

const (
	Total    Outcome = "total"
	Done     Outcome = "done"
	Refused  Outcome = "refused"
	Waiting  Outcome = "waiting"
	Missing  Outcome = "missing"
	Excluded Outcome = "excluded"
	Pushed   Outcome = "pushed"
	Failed   Outcome = "failed"
)

// Outcomes lists every gauge in registration order
var Outcomes = []Outcome{Total, Done, Refused, Waiting, Missing, Excluded, Pushed, Failed}

var labelNames = []string{"template", "gitlab_search", "gitlab_search_in_group"}

// Labels are the constant label values of a run
type Labels struct {
	Template      string
	Search        string
	SearchInGroup string
}

// Metrics owns a private registry with one gauge vector per outcome
type Metrics struct {
	registry *prometheus.Registry
	gauges   map[Outcome]*prometheus.GaugeVec
	labels   prometheus.Labels
}

// New registers the gauges
func New(labels Labels) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gauges:   make(map[Outcome]*prometheus.GaugeVec, len(Outcomes)),
		labels: prometheus.Labels{
			"template":               labels.Template,
			"gitlab_search":          labels.Search,
			"gitlab_search_in_group": labels.SearchInGroup,
		},
	}

	for _, outcome := range Outcomes {
		gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "volatile",
			Subsystem: "projects",
			Name:      string(outcome),
			Help:      fmt.Sprintf("Number of projects %s during the last pass.", outcome),
		}, labelNames)
		m.registry.MustRegister(gauge)
		m.gauges[outcome] = gauge
	}

	return m
}

// Inc increments the gauge of outcome
func (m *Metrics) Inc(outcome Outcome) {
	m.gauges[outcome].With(m.labels).Inc()
}

// Set sets the gauge of outcome
func (m *Metrics) Set(outcome Outcome, value float64) {
	m.gauges[outcome].With(m.labels).Set(value)
}

// Reset zeroes every gauge before a new pass
func (m *Metrics) Reset() {
	for _, gauge := range m.gauges {
		gauge.Reset()
		gauge.With(m.labels).Set(0)
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the gauges in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logrus.Warnf("Error shutting down metrics server: %v", err)
		}
	}()

	logrus.Infof("Serving metrics on %s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}

// Push sends the gauges to the Pushgateway at url
func (m *Metrics) Push(ctx context.Context, url string) error {
	logrus.Infof("push metrics via gateway :: %s", url)
	if err := push.New(url, Job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	logrus.Info("push metrics via gateway :: done")
	return nil
}
