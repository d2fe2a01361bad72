package executor

import (
	"context"
	"time"

	"github.com/wesleyorama2/brxload/internal/performance"
	"github.com/wesleyorama2/brxload/internal/performance/metrics"
)

// PerVUIterations runs a fixed number of iterations on each VU.
//
// The run ends when every VU has completed its iterations or when
// MaxDuration elapses, whichever comes first. Smoke tests use this with a
// single VU.
type PerVUIterations struct {
	base
}

// NewPerVUIterations creates a new per-vu-iterations executor.
func NewPerVUIterations() *PerVUIterations {
	return &PerVUIterations{}
}

// Type returns the executor type.
func (e *PerVUIterations) Type() Type {
	return TypePerVUIterations
}

// Init initializes the executor with configuration.
func (e *PerVUIterations) Init(ctx context.Context, config *Config) error {
	return e.init(TypePerVUIterations, config)
}

// Run starts all VUs and blocks until they finish their iterations or the
// max duration is reached.
func (e *PerVUIterations) Run(ctx context.Context, scheduler *performance.VUScheduler, metricsEngine *metrics.Engine) error {
	stopCtx, iterCtx := e.start(ctx, scheduler, metricsEngine, e.config.TotalDuration())
	defer e.finish()

	metricsEngine.SetPhase(metrics.PhaseSteady)

	for i := 0; i < e.config.VUs; i++ {
		e.spawn(stopCtx, iterCtx, e.config.Iterations)
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-stopCtx.Done():
	}

	return e.gracefulShutdown()
}

func (e *PerVUIterations) totalIterations() int64 {
	return int64(e.config.VUs) * e.config.Iterations
}

// GetProgress returns the fraction of planned iterations completed.
func (e *PerVUIterations) GetProgress() float64 {
	if e.config == nil || e.started().IsZero() {
		return 0.0
	}
	if !e.running.Load() {
		return 1.0
	}

	total := e.totalIterations()
	if total == 0 {
		return 1.0
	}

	progress := float64(e.iterations.Load()) / float64(total)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetStats returns executor statistics.
func (e *PerVUIterations) GetStats() *Stats {
	return &Stats{
		StartTime:       e.started(),
		CurrentTime:     time.Now(),
		Elapsed:         e.elapsed(),
		TotalDuration:   e.config.TotalDuration(),
		ActiveVUs:       e.GetActiveVUs(),
		TargetVUs:       e.config.VUs,
		Iterations:      e.iterations.Load(),
		TotalIterations: e.totalIterations(),
	}
}

var _ Executor = (*PerVUIterations)(nil)
