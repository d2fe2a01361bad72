package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Built-in metric names, following k6.
const (
	HTTPReqDuration = "http_req_duration"
	HTTPReqFailed   = "http_req_failed"
	HTTPReqs        = "http_reqs"
)

// Engine collects and aggregates performance metrics using HDR histograms.
//
// The built-in HTTP metrics live in the same Registry as custom metrics, so
// thresholds can address both by name.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Counters use atomic operations and
// histograms use mutex protection.
type Engine struct {
	registry *Registry

	// Built-in metrics, also reachable through the registry
	reqDuration *Trend
	reqFailed   *Rate
	reqs        *Counter

	// Per-request-name histograms, keyed by scenario name
	requestHists   map[string]*hdrhistogram.Histogram
	requestHistsMu sync.RWMutex

	// Atomic counters for lock-free updates
	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	totalBytes      atomic.Int64

	activeVUs atomic.Int32

	// Phase tracking
	currentPhase Phase
	phaseMu      sync.RWMutex
	phaseHistory []PhaseChange

	startMu   sync.RWMutex
	startTime time.Time
	endTime   time.Time

	config EngineConfig
}

// NewEngine creates a new metrics engine with default configuration.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a new metrics engine with custom configuration.
func NewEngineWithConfig(config EngineConfig) *Engine {
	registry := NewRegistry(config)

	return &Engine{
		registry:     registry,
		reqDuration:  registry.Trend(HTTPReqDuration),
		reqFailed:    registry.Rate(HTTPReqFailed),
		reqs:         registry.Counter(HTTPReqs),
		requestHists: make(map[string]*hdrhistogram.Histogram),
		currentPhase: PhaseInit,
		phaseHistory: make([]PhaseChange, 0),
		startTime:    time.Now(),
		config:       config,
	}
}

// Registry returns the custom metric registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// RecordLatency records a request latency.
//
// This is the primary method for recording request timing. It updates the
// built-in http_req_* metrics, the per-request histogram and the counters.
//
// Parameters:
//   - duration: The request latency
//   - requestName: Optional name for per-request breakdown (empty string to skip)
//   - success: Whether the request succeeded
//   - bytes: Number of bytes received
func (e *Engine) RecordLatency(duration time.Duration, requestName string, success bool, bytes int64) {
	e.reqDuration.AddDuration(duration)
	e.reqFailed.Add(!success)
	e.reqs.Add(1)

	if requestName != "" {
		e.recordRequestHistogram(requestName, e.clamp(duration.Microseconds()))
	}

	e.totalRequests.Add(1)
	e.totalBytes.Add(bytes)

	if success {
		e.successRequests.Add(1)
	} else {
		e.failedRequests.Add(1)
	}
}

func (e *Engine) clamp(micros int64) int64 {
	if micros < e.config.HistogramMin {
		return e.config.HistogramMin
	}
	if micros > e.config.HistogramMax {
		return e.config.HistogramMax
	}
	return micros
}

// recordRequestHistogram records a latency in a per-request histogram.
// NOTE: HDR histogram RecordValue is NOT thread-safe, so we must hold a lock.
func (e *Engine) recordRequestHistogram(name string, latencyMicros int64) {
	e.requestHistsMu.Lock()
	defer e.requestHistsMu.Unlock()

	hist, exists := e.requestHists[name]
	if !exists {
		hist = hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs)
		e.requestHists[name] = hist
	}

	_ = hist.RecordValue(latencyMicros)
}

// SetPhase updates the current test phase.
//
// This is called by executors and the run engine to mark phase transitions.
func (e *Engine) SetPhase(phase Phase) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.currentPhase == phase {
		return // No change
	}

	e.currentPhase = phase
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:     phase,
		Timestamp: time.Now(),
		Requests:  e.totalRequests.Load(),
	})
}

// GetPhase returns the current test phase.
func (e *Engine) GetPhase() Phase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.currentPhase
}

// SetActiveVUs updates the active VU count.
func (e *Engine) SetActiveVUs(count int) {
	e.activeVUs.Store(int32(count))
}

// GetActiveVUs returns the current active VU count.
func (e *Engine) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

// Elapsed returns the time since the engine started, frozen once Stop is called.
func (e *Engine) Elapsed() time.Duration {
	e.startMu.RLock()
	defer e.startMu.RUnlock()

	if !e.endTime.IsZero() {
		return e.endTime.Sub(e.startTime)
	}
	return time.Since(e.startTime)
}

// GetSnapshot returns a point-in-time snapshot of all metrics.
func (e *Engine) GetSnapshot() *Snapshot {
	elapsed := e.Elapsed()
	totalReqs := e.totalRequests.Load()
	failedReqs := e.failedRequests.Load()

	rps := 0.0
	if elapsed.Seconds() > 0 {
		rps = float64(totalReqs) / elapsed.Seconds()
	}

	errorRate := 0.0
	if totalReqs > 0 {
		errorRate = float64(failedReqs) / float64(totalReqs)
	}

	e.startMu.RLock()
	startTime := e.startTime
	e.startMu.RUnlock()

	return &Snapshot{
		TotalRequests:   totalReqs,
		SuccessRequests: e.successRequests.Load(),
		FailedRequests:  failedReqs,
		TotalBytes:      e.totalBytes.Load(),
		Latency:         e.reqDuration.Stats(),
		RPS:             rps,
		ErrorRate:       errorRate,
		ActiveVUs:       e.GetActiveVUs(),
		CurrentPhase:    e.GetPhase(),
		Elapsed:         elapsed,
		StartTime:       startTime,
		Timestamp:       time.Now(),
		Custom:          e.registry.Summaries(elapsed),
	}
}

// Value returns one statistic of a named metric, evaluated at the current
// elapsed time. It is the lookup used by threshold evaluation.
func (e *Engine) Value(metric, stat string) (float64, bool, error) {
	m, ok := e.registry.Get(metric)
	if !ok {
		return 0, false, nil
	}
	v, err := m.Value(stat, e.Elapsed())
	return v, true, err
}

// GetPhaseHistory returns the history of phase changes.
func (e *Engine) GetPhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	result := make([]PhaseChange, len(e.phaseHistory))
	copy(result, e.phaseHistory)
	return result
}

// GetRequestStats returns per-request statistics.
func (e *Engine) GetRequestStats() map[string]LatencyStats {
	e.requestHistsMu.RLock()
	defer e.requestHistsMu.RUnlock()

	result := make(map[string]LatencyStats)

	for name, hist := range e.requestHists {
		result[name] = LatencyStats{
			Min:    time.Duration(hist.Min()) * time.Microsecond,
			Max:    time.Duration(hist.Max()) * time.Microsecond,
			Mean:   time.Duration(hist.Mean()) * time.Microsecond,
			StdDev: time.Duration(hist.StdDev()) * time.Microsecond,
			P50:    time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond,
			P90:    time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond,
			P95:    time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond,
			P99:    time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond,
			Count:  hist.TotalCount(),
		}
	}

	return result
}

// Start restarts the elapsed clock, so time spent before the first VU
// starts does not dilute rates.
func (e *Engine) Start() {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	e.startTime = time.Now()
	e.endTime = time.Time{}
}

// Stop freezes the elapsed clock. Recording after Stop is still accepted.
func (e *Engine) Stop() {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if e.endTime.IsZero() {
		e.endTime = time.Now()
	}
}

// Reset resets all metrics to initial state.
func (e *Engine) Reset() {
	e.registry.reset()

	e.requestHistsMu.Lock()
	e.requestHists = make(map[string]*hdrhistogram.Histogram)
	e.requestHistsMu.Unlock()

	e.totalRequests.Store(0)
	e.successRequests.Store(0)
	e.failedRequests.Store(0)
	e.totalBytes.Store(0)
	e.activeVUs.Store(0)

	e.phaseMu.Lock()
	e.currentPhase = PhaseInit
	e.phaseHistory = make([]PhaseChange, 0)
	e.phaseMu.Unlock()

	e.startMu.Lock()
	e.startTime = time.Now()
	e.endTime = time.Time{}
	e.startMu.Unlock()
}
