package outputs

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"synthmon/internal/config"
	"synthmon/internal/models"
)

// PrometheusOutput exposes metrics via HTTP endpoint
type PrometheusOutput struct {
	config *config.PrometheusConfig
	server *http.Server

	// Metrics
	checkTotal             *prometheus.CounterVec
	checkDurationMs        *prometheus.GaugeVec
	checkDurationHistogram *prometheus.HistogramVec
	lastSuccessTimestamp   *prometheus.GaugeVec
	ttfbMs                 *prometheus.GaugeVec
	domContentLoadedMs     *prometheus.GaugeVec
	pageLoadMs             *prometheus.GaugeVec
	traceFailuresTotal     prometheus.Counter
}

// NewPrometheusOutput creates a new Prometheus exporter
func NewPrometheusOutput(cfg *config.PrometheusConfig) (*PrometheusOutput, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	p := &PrometheusOutput{
		config: cfg,
	}

	// Register metrics
	p.checkTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synthmon_check_total",
			Help: "Total number of checks performed",
		},
		[]string{"monitor", "status"},
	)

	p.checkDurationMs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "synthmon_check_duration_ms",
			Help: "Duration of the most recent check in milliseconds",
		},
		[]string{"monitor"},
	)

	// Use configured buckets or default
	buckets := cfg.LatencyBuckets
	if len(buckets) == 0 {
		buckets = []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
	}

	p.checkDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synthmon_check_duration_histogram_ms",
			Help:    "Histogram of check durations in milliseconds",
			Buckets: buckets,
		},
		[]string{"monitor"},
	)

	p.lastSuccessTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "synthmon_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful check",
		},
		[]string{"monitor"},
	)

	// Navigation timing metrics
	p.ttfbMs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "synthmon_ttfb_ms",
			Help: "Time to first byte of the most recent check in milliseconds",
		},
		[]string{"monitor"},
	)

	p.domContentLoadedMs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "synthmon_dom_content_loaded_ms",
			Help: "DOMContentLoaded time of the most recent check in milliseconds",
		},
		[]string{"monitor"},
	)

	p.pageLoadMs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "synthmon_page_load_time_ms",
			Help: "Page load time of the most recent check in milliseconds",
		},
		[]string{"monitor"},
	)

	p.traceFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "synthmon_trace_failures_total",
			Help: "Total number of checks whose network trace could not be captured",
		},
	)

	// Register all metrics
	prometheus.MustRegister(p.checkTotal)
	prometheus.MustRegister(p.checkDurationMs)
	prometheus.MustRegister(p.checkDurationHistogram)
	prometheus.MustRegister(p.lastSuccessTimestamp)
	prometheus.MustRegister(p.ttfbMs)
	prometheus.MustRegister(p.domContentLoadedMs)
	prometheus.MustRegister(p.pageLoadMs)
	prometheus.MustRegister(p.traceFailuresTotal)

	// Create HTTP server
	mux := http.NewServeMux()

	// Register Prometheus handler
	if cfg.IncludeGoMetrics {
		mux.Handle(cfg.Path, promhttp.Handler())
	} else {
		// Create a custom registry without Go metrics
		registry := prometheus.NewRegistry()
		registry.MustRegister(p.checkTotal)
		registry.MustRegister(p.checkDurationMs)
		registry.MustRegister(p.checkDurationHistogram)
		registry.MustRegister(p.lastSuccessTimestamp)
		registry.MustRegister(p.ttfbMs)
		registry.MustRegister(p.domContentLoadedMs)
		registry.MustRegister(p.pageLoadMs)
		registry.MustRegister(p.traceFailuresTotal)
		mux.Handle(cfg.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	addr := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.Port)
	p.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Start HTTP server in goroutine
	go func() {
		log.Printf("Starting Prometheus exporter on %s%s", addr, cfg.Path)
		if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Prometheus server error: %v", err)
		}
	}()

	return p, nil
}

// Write updates Prometheus metrics with the check result
func (p *PrometheusOutput) Write(event *models.CheckEvent) error {
	if p == nil {
		return nil
	}

	res := event.Result
	monitorName := event.Monitor.Name
	if monitorName == "" {
		monitorName = event.Monitor.URL
	}

	// Increment check counter
	p.checkTotal.WithLabelValues(monitorName, string(res.Status)).Inc()

	// Update duration metrics
	durationMs := float64(res.Duration().Milliseconds())
	p.checkDurationMs.WithLabelValues(monitorName).Set(durationMs)
	p.checkDurationHistogram.WithLabelValues(monitorName).Observe(durationMs)

	// Update last success timestamp if successful
	if res.Status == models.StatusSuccess {
		p.lastSuccessTimestamp.WithLabelValues(monitorName).Set(float64(res.CompletedAt.Unix()))
	}

	// Update navigation timing metrics; nil means the browser did not
	// expose the value for this check
	if res.TTFBMs != nil {
		p.ttfbMs.WithLabelValues(monitorName).Set(*res.TTFBMs)
	}
	if res.DOMContentLoadedMs != nil {
		p.domContentLoadedMs.WithLabelValues(monitorName).Set(*res.DOMContentLoadedMs)
	}
	if res.PageLoadMs != nil {
		p.pageLoadMs.WithLabelValues(monitorName).Set(*res.PageLoadMs)
	}

	return nil
}

// IncTraceFailure counts a failed trace capture. The checker calls this
// through its trace-error hook.
func (p *PrometheusOutput) IncTraceFailure() {
	if p == nil {
		return
	}
	p.traceFailuresTotal.Inc()
}

// Name returns the output module name
func (p *PrometheusOutput) Name() string {
	return "prometheus"
}

// Close shuts down the HTTP server
func (p *PrometheusOutput) Close() error {
	if p == nil || p.server == nil {
		return nil
	}

	log.Println("Shutting down Prometheus exporter...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return p.server.Shutdown(ctx)
}
