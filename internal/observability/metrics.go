// Package observability holds the scraper's Prometheus metrics. Jobs are
// short-lived, so metrics go out through the Pushgateway rather than a
// scrape endpoint.
package observability

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"swvanews/internal/config"
	"swvanews/internal/logger"
)

const defaultJobName = "swvanews_scraper"

const labelEnvPrefix = "METRICS_LABEL_"

// Label set kept small to avoid cardinality explosions.
var (
	baseLabels   = []string{"publication", "proxy"}
	actionLabels = []string{"action", "publication", "proxy"}
)

// Metrics bundles the scraper counters and histograms on one registry.
type Metrics struct {
	registry *prometheus.Registry
	pushURL  string
	job      string
	grouping map[string]string

	LoginAttempts  *prometheus.CounterVec
	LoginSuccess   *prometheus.CounterVec
	LoginFailures  *prometheus.CounterVec
	VerifySuccess  *prometheus.CounterVec
	VerifyFailures *prometheus.CounterVec
	DiscoverRuns   *prometheus.CounterVec

	DiscoverPagesFound *prometheus.HistogramVec
	ActionSeconds      *prometheus.HistogramVec
}

// New builds the registry and registers all collectors.
func New(cfg config.Metrics) *Metrics {
	job := cfg.JobName
	if job == "" {
		job = defaultJobName
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		pushURL:  cfg.PushgatewayURL,
		job:      job,
		grouping: GroupingLabels(cfg.LabelsJSON, os.Environ()),
	}

	counter := func(name, help string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, baseLabels)
		registry.MustRegister(c)
		return c
	}
	m.LoginAttempts = counter("scraper_login_attempts_total", "Login attempts")
	m.LoginSuccess = counter("scraper_login_success_total", "Login successes")
	m.LoginFailures = counter("scraper_login_failures_total", "Login failures")
	m.VerifySuccess = counter("scraper_session_verify_success_total", "Session verify success")
	m.VerifyFailures = counter("scraper_session_verify_failures_total", "Session verify failures")
	m.DiscoverRuns = counter("scraper_discover_runs_total", "Edition discovery runs")

	m.DiscoverPagesFound = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scraper_discover_pages_found",
		Help:    "Pages found per run",
		Buckets: []float64{0, 1, 5, 10, 20, 40, 80, 160},
	}, baseLabels)
	registry.MustRegister(m.DiscoverPagesFound)

	m.ActionSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scraper_action_seconds",
		Help:    "Duration of key scraper actions",
		Buckets: []float64{0.2, 0.5, 1, 2, 3, 5, 8, 13, 21},
	}, actionLabels)
	registry.MustRegister(m.ActionSeconds)

	return m
}

// GroupingLabels merges pushgateway grouping labels from the configured JSON
// blob and any METRICS_LABEL_* environment variables. The env form exists so
// deployments can inject labels through the downward API.
func GroupingLabels(labelsJSON string, environ []string) map[string]string {
	grouping := make(map[string]string)
	if labelsJSON != "" {
		if err := json.Unmarshal([]byte(labelsJSON), &grouping); err != nil {
			logger.Warn("Ignoring malformed METRICS_LABELS_JSON", "error", err)
			grouping = make(map[string]string)
		}
	}
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, labelEnvPrefix) {
			continue
		}
		label := strings.ToLower(strings.TrimPrefix(key, labelEnvPrefix))
		if label != "" && value != "" {
			grouping[label] = value
		}
	}
	return grouping
}

// labelValues normalizes empty labels to their placeholder values.
func labelValues(publication, proxy string) (string, string) {
	if publication == "" {
		publication = "unknown"
	}
	if proxy == "" {
		proxy = "direct"
	}
	return publication, proxy
}

func (m *Metrics) IncLoginAttempt(publication, proxy string) {
	pub, prox := labelValues(publication, proxy)
	m.LoginAttempts.WithLabelValues(pub, prox).Inc()
}

func (m *Metrics) IncLoginSuccess(publication, proxy string) {
	pub, prox := labelValues(publication, proxy)
	m.LoginSuccess.WithLabelValues(pub, prox).Inc()
}

func (m *Metrics) IncLoginFailure(publication, proxy string) {
	pub, prox := labelValues(publication, proxy)
	m.LoginFailures.WithLabelValues(pub, prox).Inc()
}

func (m *Metrics) IncVerifySuccess(publication, proxy string) {
	pub, prox := labelValues(publication, proxy)
	m.VerifySuccess.WithLabelValues(pub, prox).Inc()
}

func (m *Metrics) IncVerifyFailure(publication, proxy string) {
	pub, prox := labelValues(publication, proxy)
	m.VerifyFailures.WithLabelValues(pub, prox).Inc()
}

func (m *Metrics) IncDiscoverRun(publication, proxy string) {
	pub, prox := labelValues(publication, proxy)
	m.DiscoverRuns.WithLabelValues(pub, prox).Inc()
}

func (m *Metrics) ObservePagesFound(pages int, publication, proxy string) {
	pub, prox := labelValues(publication, proxy)
	m.DiscoverPagesFound.WithLabelValues(pub, prox).Observe(float64(pages))
}

func (m *Metrics) ObserveAction(action string, seconds float64, publication, proxy string) {
	pub, prox := labelValues(publication, proxy)
	m.ActionSeconds.WithLabelValues(action, pub, prox).Observe(seconds)
}

// Timer returns a stop function that records the elapsed time as one
// action observation.
func (m *Metrics) Timer(action, publication, proxy string) func() {
	start := time.Now()
	return func() {
		m.ObserveAction(action, time.Since(start).Seconds(), publication, proxy)
	}
}

// Registry exposes the underlying registry for tests and local scraping.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Push ships the registry to the Pushgateway. A missing pushgateway URL is
// not an error; metrics are best effort.
func (m *Metrics) Push() error {
	if m.pushURL == "" {
		return nil
	}
	pusher := push.New(m.pushURL, m.job).Gatherer(m.registry)
	for key, value := range m.grouping {
		pusher = pusher.Grouping(key, value)
	}
	if err := pusher.Push(); err != nil {
		logger.Warn("Pushgateway push failed", "error", err)
		return err
	}
	return nil
}
