// Package engine orchestrates a run: setup, executor, thresholds, teardown.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wesleyorama2/brxload/internal/performance"
	"github.com/wesleyorama2/brxload/internal/performance/config"
	"github.com/wesleyorama2/brxload/internal/performance/executor"
	"github.com/wesleyorama2/brxload/internal/performance/metrics"
)

// Engine runs one workload under one executor.
//
// Example usage:
//
//	eng, _ := engine.New(engine.Options{Config: cfg, Env: env, Workload: w, Metrics: m})
//	result, _ := eng.Run(context.Background())
//	fmt.Printf("Run passed: %v\n", result.Passed)
type Engine struct {
	config        *config.TestConfig
	env           config.Environment
	workload      performance.Workload
	metricsEngine *metrics.Engine
	httpConfig    performance.HTTPClientConfig
	seed          int64
	scenarioCount int
	hooks         []Hook
	logger        log.FieldLogger

	thresholds      []*Threshold
	execConfig      *executor.Config
	exec            executor.Executor
	setupTimeout    time.Duration
	teardownTimeout time.Duration

	mu        sync.RWMutex
	running   bool
	startTime time.Time

	// stopRequested is set by Stop; a stop during setup skips the executor
	stopRequested bool
	cancelProbe   context.CancelFunc
}

// Options configure a new Engine.
type Options struct {
	Config   *config.TestConfig
	Env      config.Environment
	Workload performance.Workload

	// Metrics is shared with the workload, which registers its own metrics
	Metrics *metrics.Engine

	// Seed for VU randomness; 0 means time based
	Seed int64

	// ScenarioCount is reported in the setup banner
	ScenarioCount int

	Hooks  []Hook
	Logger log.FieldLogger
}

// TestResult contains the complete run results.
type TestResult struct {
	Name      string        `json:"name"`
	RunID     string        `json:"runId"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	Executor   string `json:"executor"`
	Iterations int64  `json:"iterations"`

	Metrics      *metrics.Snapshot               `json:"metrics"`
	RequestStats map[string]metrics.LatencyStats `json:"requestStats,omitempty"`
	Phases       []metrics.PhaseChange           `json:"phases,omitempty"`

	Passed     bool              `json:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`

	// Error is set when the executor did not stop cleanly
	Error string `json:"error,omitempty"`
}

// ThresholdResult contains the result of a threshold evaluation.
type ThresholdResult struct {
	Metric     string  `json:"metric"`
	Expression string  `json:"expression"`
	Passed     bool    `json:"passed"`
	Value      string  `json:"value"`
	Actual     float64 `json:"actual"`
	Message    string  `json:"message,omitempty"`
}

// New validates the configuration and prepares the executor.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil || opts.Workload == nil || opts.Metrics == nil {
		return nil, errors.New("engine requires a config, a workload and a metrics engine")
	}

	cfg := opts.Config
	if err := cfg.Validate(CheckThreshold); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	config.ApplyDefaults(cfg)

	thresholds, err := ParseThresholds(cfg.Thresholds)
	if err != nil {
		return nil, err
	}

	setupTimeout, teardownTimeout, err := cfg.Options.Timeouts()
	if err != nil {
		return nil, err
	}

	exec, execConfig, err := executor.CreateExecutorFromScenarioConfig(context.Background(), cfg.Name, cfg.Executor)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	httpConfig := performance.DefaultHTTPClientConfig()
	httpConfig.Timeout = time.Duration(cfg.Settings.Timeout)
	httpConfig.MaxIdleConnsPerHost = cfg.Settings.MaxIdleConnsPerHost
	httpConfig.MaxConnsPerHost = cfg.Settings.MaxConnectionsPerHost
	httpConfig.InsecureSkipVerify = cfg.Settings.InsecureSkipVerify
	httpConfig.UseSharedClient = !cfg.Options.NoVUConnectionReuse

	return &Engine{
		config:          cfg,
		env:             opts.Env,
		workload:        opts.Workload,
		metricsEngine:   opts.Metrics,
		httpConfig:      httpConfig,
		seed:            opts.Seed,
		scenarioCount:   opts.ScenarioCount,
		hooks:           opts.Hooks,
		logger:          logger,
		thresholds:      thresholds,
		execConfig:      execConfig,
		exec:            exec,
		setupTimeout:    setupTimeout,
		teardownTimeout: teardownTimeout,
	}, nil
}

// Run executes setup, the executor and teardown, then evaluates thresholds.
//
// An error is returned only when the run could not start (a setup hook
// failed). A run that ends with breached thresholds returns a result with
// Passed false and no error.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, errors.New("engine is already running")
	}
	e.running = true
	e.stopRequested = false
	e.startTime = time.Now()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.metricsEngine.SetPhase(metrics.PhaseInit)

	scheduler := performance.NewVUScheduler(e.workload, e.metricsEngine, e.httpConfig, e.seed)

	setupCtx, cancelSetup := context.WithTimeout(ctx, e.setupTimeout)
	probeCtx, cancelProbe := context.WithCancel(setupCtx)
	e.mu.Lock()
	e.cancelProbe = cancelProbe
	e.mu.Unlock()

	data := e.setup(probeCtx, scheduler.Client())

	e.mu.Lock()
	e.cancelProbe = nil
	e.mu.Unlock()
	cancelProbe()

	for _, h := range e.hooks {
		if err := h.Setup(setupCtx, data); err != nil {
			cancelSetup()
			scheduler.Shutdown(0)
			return nil, errors.Wrap(err, "setup failed")
		}
	}
	cancelSetup()

	var runErr error
	if e.isStopRequested() {
		e.logger.Warn("Stopped during setup, skipping the load phase")
	} else {
		e.metricsEngine.Start()
		runErr = e.exec.Run(ctx, scheduler, e.metricsEngine)
		if runErr != nil {
			e.logger.WithError(runErr).Warn("Executor did not stop cleanly")
		}
	}

	// VUs have already stopped; this releases pooled connections
	scheduler.Shutdown(time.Second)
	e.metricsEngine.SetPhase(metrics.PhaseTeardown)
	e.metricsEngine.Stop()

	result := e.buildResult(data, runErr)

	// The run context may already be cancelled (SIGINT); teardown still runs
	teardownCtx, cancelTeardown := context.WithTimeout(context.Background(), e.teardownTimeout)
	defer cancelTeardown()

	e.teardown(result)
	for _, h := range e.hooks {
		if err := h.Teardown(teardownCtx, result); err != nil {
			e.logger.WithError(err).Warn("Teardown hook failed")
		}
	}

	e.metricsEngine.SetPhase(metrics.PhaseDone)
	return result, nil
}

func (e *Engine) buildResult(data *SetupData, runErr error) *TestResult {
	endTime := time.Now()
	result := &TestResult{
		Name:         e.config.Name,
		RunID:        data.RunID,
		StartTime:    data.StartTime,
		EndTime:      endTime,
		Duration:     endTime.Sub(data.StartTime),
		Executor:     string(e.exec.Type()),
		Iterations:   e.exec.GetStats().Iterations,
		Metrics:      e.metricsEngine.GetSnapshot(),
		RequestStats: e.metricsEngine.GetRequestStats(),
		Phases:       e.metricsEngine.GetPhaseHistory(),
		Passed:       true,
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}

	for _, t := range e.thresholds {
		tr := t.Evaluate(e.metricsEngine)
		if !tr.Passed {
			result.Passed = false
		}
		result.Thresholds = append(result.Thresholds, tr)
	}

	return result
}

func (e *Engine) isStopRequested() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stopRequested
}

// Stop ends the run early. In-flight iterations get the graceful stop
// period to finish. A stop during setup cancels the health probe and the
// run goes straight to teardown.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.stopRequested = true
	cancelProbe := e.cancelProbe
	e.mu.Unlock()

	if cancelProbe != nil {
		cancelProbe()
	}
	return e.exec.Stop(ctx)
}

// IsRunning returns true if the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// GetProgress returns the executor's progress (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	return e.exec.GetProgress()
}

// GetStats returns the executor's live statistics.
func (e *Engine) GetStats() *executor.Stats {
	return e.exec.GetStats()
}

// GetMetrics returns the current metrics snapshot.
func (e *Engine) GetMetrics() *metrics.Snapshot {
	return e.metricsEngine.GetSnapshot()
}

// ExecutorConfig returns the parsed executor configuration.
func (e *Engine) ExecutorConfig() *executor.Config {
	return e.execConfig
}

// Name returns the configured run name.
func (e *Engine) Name() string {
	return e.config.Name
}
