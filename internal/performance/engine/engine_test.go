package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/brxload/internal/performance"
	"github.com/wesleyorama2/brxload/internal/performance/config"
	"github.com/wesleyorama2/brxload/internal/performance/metrics"
)

// recordingHook remembers what the engine handed it.
type recordingHook struct {
	setup    *SetupData
	result   *TestResult
	setupErr error
}

func (h *recordingHook) Setup(_ context.Context, data *SetupData) error {
	h.setup = data
	return h.setupErr
}

func (h *recordingHook) Teardown(_ context.Context, result *TestResult) error {
	h.result = result
	return errors.New("push failed")
}

func newGateway(t *testing.T, healthStatus int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == HealthPath {
			w.WriteHeader(healthStatus)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func smokeConfig() *config.TestConfig {
	cfg := config.DefaultSmokeConfig()
	cfg.Executor.Iterations = 3
	cfg.Executor.Pacing = &config.PacingConfig{Type: "none"}
	return cfg
}

// latencyWorkload records a fixed latency per iteration.
func latencyWorkload(d time.Duration, success bool, calls *atomic.Int64) performance.Workload {
	return performance.WorkloadFunc(func(ctx context.Context, it *performance.Iteration) error {
		calls.Add(1)
		it.Metrics.RecordLatency(d, "q", success, 0)
		return nil
	})
}

func TestNew_Validation(t *testing.T) {
	var calls atomic.Int64
	m := metrics.NewEngine()
	defer m.Stop()

	_, err := New(Options{Config: smokeConfig(), Metrics: m})
	assert.Error(t, err, "workload required")

	cfg := smokeConfig()
	cfg.Thresholds["http_req_duration"] = []string{"p95 fast"}
	_, err = New(Options{Config: cfg, Workload: latencyWorkload(0, true, &calls), Metrics: m})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thresholds.http_req_duration[0]")

	cfg = smokeConfig()
	cfg.Executor.Executor = "shared-iterations"
	_, err = New(Options{Config: cfg, Workload: latencyWorkload(0, true, &calls), Metrics: m})
	assert.Error(t, err)
}

func TestEngine_RunPassing(t *testing.T) {
	gateway := newGateway(t, http.StatusOK)
	logger, logs := logtest.NewNullLogger()

	var calls atomic.Int64
	m := metrics.NewEngine()
	hook := &recordingHook{}

	eng, err := New(Options{
		Config:        smokeConfig(),
		Env:           config.Environment{GatewayURL: gateway.URL, DashboardURL: "http://dash:3000"},
		Workload:      latencyWorkload(50*time.Millisecond, true, &calls),
		Metrics:       m,
		Seed:          42,
		ScenarioCount: 1,
		Hooks:         []Hook{hook},
		Logger:        logger,
	})
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, int64(3), result.Iterations)
	assert.Equal(t, int64(3), result.Metrics.TotalRequests)
	assert.Equal(t, "per-vu-iterations", result.Executor)
	assert.Len(t, result.Thresholds, 2)
	assert.Empty(t, result.Error)

	require.NotNil(t, hook.setup)
	assert.True(t, hook.setup.Healthy)
	assert.Equal(t, gateway.URL, hook.setup.GatewayURL)
	assert.NotEmpty(t, hook.setup.RunID)
	assert.Equal(t, hook.setup.RunID, result.RunID)
	assert.Same(t, result, hook.result)

	assert.Equal(t, metrics.PhaseDone, m.GetPhase())
	assert.False(t, eng.IsRunning())

	var sawDashboard, sawHookWarning bool
	for _, entry := range logs.AllEntries() {
		if entry.Message == "View aggregated metrics at http://dash:3000" {
			sawDashboard = true
		}
		if entry.Level == logrus.WarnLevel && entry.Message == "Teardown hook failed" {
			sawHookWarning = true
		}
	}
	assert.True(t, sawDashboard)
	assert.True(t, sawHookWarning)
}

func TestEngine_RunFailingThreshold(t *testing.T) {
	gateway := newGateway(t, http.StatusOK)
	logger, _ := logtest.NewNullLogger()

	var calls atomic.Int64
	m := metrics.NewEngine()

	eng, err := New(Options{
		Config:   smokeConfig(),
		Env:      config.Environment{GatewayURL: gateway.URL},
		Workload: latencyWorkload(10*time.Millisecond, false, &calls),
		Metrics:  m,
		Logger:   logger,
	})
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Passed)
	var failed []string
	for _, tr := range result.Thresholds {
		if !tr.Passed {
			failed = append(failed, tr.Metric)
		}
	}
	assert.Equal(t, []string{metrics.HTTPReqFailed}, failed)
}

func TestEngine_UnhealthyGatewayWarns(t *testing.T) {
	gateway := newGateway(t, http.StatusServiceUnavailable)
	logger, logs := logtest.NewNullLogger()

	var calls atomic.Int64
	m := metrics.NewEngine()
	hook := &recordingHook{}

	eng, err := New(Options{
		Config:   smokeConfig(),
		Env:      config.Environment{GatewayURL: gateway.URL},
		Workload: latencyWorkload(time.Millisecond, true, &calls),
		Metrics:  m,
		Hooks:    []Hook{hook},
		Logger:   logger,
	})
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, hook.setup.Healthy)
	assert.Equal(t, int64(3), calls.Load(), "run continues after a failed health check")

	var warned bool
	for _, entry := range logs.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "Gateway health check failed, continuing anyway" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestEngine_SetupHookErrorAborts(t *testing.T) {
	gateway := newGateway(t, http.StatusOK)
	logger, _ := logtest.NewNullLogger()

	var calls atomic.Int64
	m := metrics.NewEngine()

	eng, err := New(Options{
		Config:   smokeConfig(),
		Env:      config.Environment{GatewayURL: gateway.URL},
		Workload: latencyWorkload(time.Millisecond, true, &calls),
		Metrics:  m,
		Hooks:    []Hook{&recordingHook{setupErr: errors.New("listen: address in use")}},
		Logger:   logger,
	})
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup failed")
	assert.Zero(t, calls.Load())
}

func TestEngine_StopEndsRun(t *testing.T) {
	gateway := newGateway(t, http.StatusOK)
	logger, _ := logtest.NewNullLogger()

	cfg := config.DefaultLoadConfig()
	cfg.Executor.Stages = []config.StageConfig{{Duration: "200ms", Target: 2}, {Duration: "1h", Target: 2}}
	cfg.Executor.Pacing = &config.PacingConfig{Type: "constant", Duration: "10ms"}

	var calls atomic.Int64
	m := metrics.NewEngine()

	eng, err := New(Options{
		Config:   cfg,
		Env:      config.Environment{GatewayURL: gateway.URL},
		Workload: latencyWorkload(time.Millisecond, true, &calls),
		Metrics:  m,
		Logger:   logger,
	})
	require.NoError(t, err)

	done := make(chan *TestResult, 1)
	go func() {
		result, _ := eng.Run(context.Background())
		done <- result
	}()

	require.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, eng.Stop(ctx))

	select {
	case result := <-done:
		require.NotNil(t, result)
		assert.Positive(t, result.Metrics.TotalRequests)
		assert.Less(t, eng.GetProgress(), 1.01)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestEngine_StopDuringSetupSkipsLoad(t *testing.T) {
	probing := make(chan struct{})
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == HealthPath {
			close(probing)
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	logger, logs := logtest.NewNullLogger()

	cfg := config.DefaultLoadConfig()
	cfg.Executor.Stages = []config.StageConfig{{Duration: "1h", Target: 2}}
	cfg.Executor.Pacing = &config.PacingConfig{Type: "none"}

	var calls atomic.Int64
	m := metrics.NewEngine()
	hook := &recordingHook{}

	eng, err := New(Options{
		Config:   cfg,
		Env:      config.Environment{GatewayURL: gateway.URL},
		Workload: latencyWorkload(time.Millisecond, true, &calls),
		Metrics:  m,
		Hooks:    []Hook{hook},
		Logger:   logger,
	})
	require.NoError(t, err)

	done := make(chan *TestResult, 1)
	go func() {
		result, _ := eng.Run(context.Background())
		done <- result
	}()

	select {
	case <-probing:
	case <-time.After(2 * time.Second):
		t.Fatal("health probe never arrived")
	}
	require.NoError(t, eng.Stop(context.Background()))

	select {
	case result := <-done:
		require.NotNil(t, result)
		assert.Zero(t, calls.Load(), "no iteration starts after a stop during setup")
		assert.Zero(t, result.Iterations)
		assert.Same(t, result, hook.result, "teardown hooks still run")
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Stop during setup")
	}

	var skipped bool
	for _, entry := range logs.AllEntries() {
		if entry.Message == "Stopped during setup, skipping the load phase" {
			skipped = true
		}
	}
	assert.True(t, skipped)
}
