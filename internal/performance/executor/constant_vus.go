package executor

import (
	"context"
	"time"

	"github.com/wesleyorama2/brxload/internal/performance"
	"github.com/wesleyorama2/brxload/internal/performance/metrics"
)

// ConstantVUs runs a fixed number of VUs for a duration.
//
// Each VU loops its workload until the duration elapses. Throughput depends
// on the gateway's response time: faster responses mean more iterations.
type ConstantVUs struct {
	base
}

// NewConstantVUs creates a new constant VUs executor.
func NewConstantVUs() *ConstantVUs {
	return &ConstantVUs{}
}

// Type returns the executor type.
func (e *ConstantVUs) Type() Type {
	return TypeConstantVUs
}

// Init initializes the executor with configuration.
func (e *ConstantVUs) Init(ctx context.Context, config *Config) error {
	return e.init(TypeConstantVUs, config)
}

// Run starts all VUs at once and blocks until the duration has elapsed and
// the VUs have stopped.
func (e *ConstantVUs) Run(ctx context.Context, scheduler *performance.VUScheduler, metricsEngine *metrics.Engine) error {
	stopCtx, iterCtx := e.start(ctx, scheduler, metricsEngine, e.config.Duration)
	defer e.finish()

	metricsEngine.SetPhase(metrics.PhaseSteady)

	for i := 0; i < e.config.VUs; i++ {
		e.spawn(stopCtx, iterCtx, 0)
	}

	<-stopCtx.Done()
	return e.gracefulShutdown()
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *ConstantVUs) GetProgress() float64 {
	if e.config == nil || e.started().IsZero() {
		return 0.0
	}
	if !e.running.Load() || e.config.Duration == 0 {
		return 1.0
	}

	progress := float64(e.elapsed()) / float64(e.config.Duration)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetStats returns executor statistics.
func (e *ConstantVUs) GetStats() *Stats {
	return &Stats{
		StartTime:     e.started(),
		CurrentTime:   time.Now(),
		Elapsed:       e.elapsed(),
		TotalDuration: e.config.Duration,
		ActiveVUs:     e.GetActiveVUs(),
		TargetVUs:     e.config.VUs,
		Iterations:    e.iterations.Load(),
	}
}

var _ Executor = (*ConstantVUs)(nil)
