// Package exporter mirrors run metrics into Prometheus, either scraped from
// /metrics while the run is live or pushed to a Pushgateway at teardown.
package exporter

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	log "github.com/sirupsen/logrus"

	"github.com/wesleyorama2/brxload/internal/performance/engine"
	"github.com/wesleyorama2/brxload/internal/performance/gateway"
	"github.com/wesleyorama2/brxload/internal/performance/metrics"
)

const namespace = "brxload"

// Config configures an Exporter. Both Listen and PushURL are optional; with
// neither set the exporter only collects.
type Config struct {
	// Listen is the address to serve /metrics on, e.g. ":9100"
	Listen string

	// PushURL is the Pushgateway base URL
	PushURL string

	// Job is the Pushgateway job name
	Job string

	// Metrics supplies the active VU count
	Metrics *metrics.Engine

	Logger log.FieldLogger
}

// Exporter implements gateway.Observer and engine.Hook.
type Exporter struct {
	cfg      Config
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	cacheHits  *prometheus.CounterVec
	errors     *prometheus.CounterVec
	thresholds *prometheus.GaugeVec

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

var (
	_ gateway.Observer = (*Exporter)(nil)
	_ engine.Hook      = (*Exporter)(nil)
)

// New creates an exporter with its own registry.
func New(cfg Config) *Exporter {
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}

	reg := prometheus.NewRegistry()
	e := &Exporter{
		cfg:      cfg,
		registry: reg,
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of gateway queries",
			},
			[]string{"scenario", "status"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_ms",
				Help:      "Gateway query latency in milliseconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 16), // 1ms to ~32s
			},
			[]string{"scenario"},
		),
		cacheHits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Queries answered from the gateway cache",
			},
			[]string{"scenario"},
		),
		errors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Queries that failed classification",
			},
			[]string{"scenario"},
		),
		thresholds: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "threshold_passed",
				Help:      "1 if the threshold passed at the end of the run, 0 otherwise",
			},
			[]string{"metric", "expression"},
		),
	}

	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_vus",
			Help:      "Number of running virtual users",
		},
		func() float64 {
			if cfg.Metrics == nil {
				return 0
			}
			return float64(cfg.Metrics.GetActiveVUs())
		},
	)

	return e
}

// Registry exposes the collectors, mainly for tests.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// ObserveQuery records one classified query.
func (e *Exporter) ObserveQuery(scenario string, result gateway.ExecutionResult) {
	e.requests.WithLabelValues(scenario, statusLabel(result.StatusCode)).Inc()
	e.duration.WithLabelValues(scenario).Observe(float64(result.Duration) / float64(time.Millisecond))

	if result.CacheHit {
		e.cacheHits.WithLabelValues(scenario).Inc()
	}
	if !result.Success {
		e.errors.WithLabelValues(scenario).Inc()
	}
}

func statusLabel(code int) string {
	if code == 0 {
		return "error"
	}
	return strconv.Itoa(code)
}

// Setup starts the /metrics server when an address is configured.
func (e *Exporter) Setup(_ context.Context, data *engine.SetupData) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.Listen == "" {
		return nil
	}

	ln, err := net.Listen("tcp", e.cfg.Listen)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", e.cfg.Listen)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))

	e.listener = ln
	e.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.cfg.Logger.WithError(err).Error("Prometheus server failed")
		}
	}(e.server)

	e.cfg.Logger.WithField("run_id", data.RunID).Infof("Serving Prometheus metrics on http://%s/metrics", ln.Addr())
	return nil
}

// Addr returns the bound /metrics address, or "" when not serving.
func (e *Exporter) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

// Teardown records threshold outcomes, pushes to the Pushgateway and stops
// the /metrics server.
func (e *Exporter) Teardown(ctx context.Context, result *engine.TestResult) error {
	for _, tr := range result.Thresholds {
		v := 0.0
		if tr.Passed {
			v = 1
		}
		e.thresholds.WithLabelValues(tr.Metric, tr.Expression).Set(v)
	}

	var pushErr error
	if e.cfg.PushURL != "" {
		pushErr = push.New(e.cfg.PushURL, e.cfg.Job).
			Gatherer(e.registry).
			Grouping("run_id", result.RunID).
			PushContext(ctx)
		if pushErr != nil {
			pushErr = errors.Wrapf(pushErr, "pushing metrics to %s", e.cfg.PushURL)
		} else {
			e.cfg.Logger.WithField("job", e.cfg.Job).Infof("Pushed metrics to %s", e.cfg.PushURL)
		}
	}

	e.mu.Lock()
	srv := e.server
	e.server = nil
	e.listener = nil
	e.mu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil && pushErr == nil {
			return errors.Wrap(err, "stopping metrics server")
		}
	}

	return pushErr
}
