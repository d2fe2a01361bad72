package exporter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/brxload/internal/performance/engine"
	"github.com/wesleyorama2/brxload/internal/performance/gateway"
	"github.com/wesleyorama2/brxload/internal/performance/metrics"
)

func TestExporter_ObserveQuery(t *testing.T) {
	exp := New(Config{})

	exp.ObserveQuery("lesson_plans", gateway.ExecutionResult{Success: true, Duration: 12 * time.Millisecond, CacheHit: true, StatusCode: 200})
	exp.ObserveQuery("lesson_plans", gateway.ExecutionResult{Success: true, Duration: 30 * time.Millisecond, StatusCode: 200})
	exp.ObserveQuery("lesson_plans", gateway.ExecutionResult{Success: false, Duration: time.Second, StatusCode: 500})
	exp.ObserveQuery("rosters", gateway.ExecutionResult{Success: false, Duration: 5 * time.Second})

	assert.Equal(t, 2.0, testutil.ToFloat64(exp.requests.WithLabelValues("lesson_plans", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(exp.requests.WithLabelValues("lesson_plans", "500")))
	assert.Equal(t, 1.0, testutil.ToFloat64(exp.requests.WithLabelValues("rosters", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(exp.cacheHits.WithLabelValues("lesson_plans")))
	assert.Equal(t, 1.0, testutil.ToFloat64(exp.errors.WithLabelValues("lesson_plans")))
	assert.Equal(t, 1.0, testutil.ToFloat64(exp.errors.WithLabelValues("rosters")))
	assert.Equal(t, 2, testutil.CollectAndCount(exp.duration))
}

func TestExporter_ActiveVUs(t *testing.T) {
	m := metrics.NewEngine()
	defer m.Stop()
	m.SetActiveVUs(7)

	exp := New(Config{Metrics: m})

	families, err := exp.Registry().Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() == "brxload_active_vus" {
			found = true
			assert.Equal(t, 7.0, mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found)
}

func TestExporter_ServesMetricsDuringRun(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	exp := New(Config{Listen: "127.0.0.1:0", Logger: logger})

	require.NoError(t, exp.Setup(context.Background(), &engine.SetupData{RunID: "run-1"}))
	addr := exp.Addr()
	require.NotEmpty(t, addr)

	exp.ObserveQuery("rosters", gateway.ExecutionResult{Success: true, Duration: time.Millisecond, StatusCode: 200})

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `brxload_requests_total{scenario="rosters",status="200"} 1`)

	require.NoError(t, exp.Teardown(context.Background(), &engine.TestResult{RunID: "run-1"}))
	assert.Empty(t, exp.Addr())

	_, err = http.Get("http://" + addr + "/metrics")
	assert.Error(t, err, "server should be closed after teardown")
}

func TestExporter_SetupListenError(t *testing.T) {
	exp := New(Config{Listen: "not-an-address"})
	err := exp.Setup(context.Background(), &engine.SetupData{RunID: "r"})
	assert.Error(t, err)
}

func TestExporter_TeardownPushes(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
	)
	pushgateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method, path = r.Method, r.URL.Path
		mu.Unlock()
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer pushgateway.Close()

	logger, _ := logtest.NewNullLogger()
	exp := New(Config{PushURL: pushgateway.URL, Job: "brxload", Logger: logger})
	exp.ObserveQuery("rosters", gateway.ExecutionResult{Success: true, Duration: time.Millisecond, StatusCode: 200})

	result := &engine.TestResult{
		RunID: "abc-123",
		Thresholds: []engine.ThresholdResult{
			{Metric: "http_req_failed", Expression: "rate<0.05", Passed: true},
			{Metric: "cache_hit_rate", Expression: "rate>0.5", Passed: false},
		},
	}
	require.NoError(t, exp.Teardown(context.Background(), result))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/brxload/run_id/abc-123", path)

	assert.Equal(t, 1.0, testutil.ToFloat64(exp.thresholds.WithLabelValues("http_req_failed", "rate<0.05")))
	assert.Equal(t, 0.0, testutil.ToFloat64(exp.thresholds.WithLabelValues("cache_hit_rate", "rate>0.5")))
}

func TestExporter_TeardownPushError(t *testing.T) {
	pushgateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer pushgateway.Close()

	logger, _ := logtest.NewNullLogger()
	exp := New(Config{PushURL: pushgateway.URL, Job: "brxload", Logger: logger})

	err := exp.Teardown(context.Background(), &engine.TestResult{RunID: "r"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), pushgateway.URL))
}
