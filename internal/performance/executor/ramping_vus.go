package executor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/brxload/internal/performance"
	"github.com/wesleyorama2/brxload/internal/performance/metrics"
)

// controllerInterval is how often the VU target is recomputed.
const controllerInterval = 100 * time.Millisecond

// RampingVUs ramps VU count up and down according to stages.
//
// This executor smoothly interpolates VU counts between stages,
// avoiding step-wise VU changes that cause jarring throughput variations.
//
// Example stages (the default load profile):
//
//	stages:
//	  - duration: 30s
//	    target: 5      # Ramp from 0 to 5 VUs over 30s
//	  - duration: 1m
//	    target: 10     # Ramp to 10 VUs
//	  - duration: 30s
//	    target: 20     # Ramp to 20 VUs
//	  - duration: 2m
//	    target: 20     # Hold 20 VUs
//	  - duration: 30s
//	    target: 0      # Ramp down to 0 VUs
type RampingVUs struct {
	base

	targetVUs    atomic.Int32
	currentStage atomic.Int32
}

// NewRampingVUs creates a new ramping VUs executor.
func NewRampingVUs() *RampingVUs {
	return &RampingVUs{}
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return TypeRampingVUs
}

// Init initializes the executor with configuration.
func (e *RampingVUs) Init(ctx context.Context, config *Config) error {
	return e.init(TypeRampingVUs, config)
}

// Run starts the executor and blocks until all stages have elapsed and the
// VUs have stopped.
func (e *RampingVUs) Run(ctx context.Context, scheduler *performance.VUScheduler, metricsEngine *metrics.Engine) error {
	stopCtx, iterCtx := e.start(ctx, scheduler, metricsEngine, e.config.TotalDuration())
	defer e.finish()

	// Apply the first target immediately instead of after the first tick
	e.tick(stopCtx, iterCtx)

	ticker := time.NewTicker(controllerInterval)
	defer ticker.Stop()

	for running := true; running; {
		select {
		case <-stopCtx.Done():
			running = false
		case <-ticker.C:
			e.tick(stopCtx, iterCtx)
		}
	}

	return e.gracefulShutdown()
}

func (e *RampingVUs) tick(stopCtx, iterCtx context.Context) {
	target := e.calculateTargetVUs(e.elapsed())
	e.targetVUs.Store(int32(target))
	e.adjustVUs(stopCtx, iterCtx, target)
	e.updatePhase()
}

// calculateTargetVUs calculates the target VU count at the given elapsed time.
func (e *RampingVUs) calculateTargetVUs(elapsed time.Duration) int {
	var stageStart time.Duration
	prevTarget := 0

	for i, stage := range e.config.Stages {
		stageEnd := stageStart + stage.Duration

		if elapsed < stageEnd {
			e.currentStage.Store(int32(i))

			// Calculate progress within this stage (0.0 to 1.0)
			stageProgress := float64(elapsed-stageStart) / float64(stage.Duration)
			if stageProgress < 0 {
				stageProgress = 0
			}
			if stageProgress > 1 {
				stageProgress = 1
			}

			// Linear interpolation between previous and current target
			targetVUs := float64(prevTarget) + float64(stage.Target-prevTarget)*stageProgress
			return int(targetVUs + 0.5) // Round to nearest
		}

		prevTarget = stage.Target
		stageStart = stageEnd
	}

	// Past all stages - return last target
	if len(e.config.Stages) > 0 {
		return e.config.Stages[len(e.config.Stages)-1].Target
	}
	return 0
}

// adjustVUs adjusts the VU count to match the target.
func (e *RampingVUs) adjustVUs(stopCtx, iterCtx context.Context, targetVUs int) {
	e.vusMu.Lock()
	currentVUs := len(e.vus)

	if targetVUs < currentVUs {
		// Stop excess VUs, newest first; they finish their current iteration
		for i := currentVUs - 1; i >= targetVUs; i-- {
			e.vus[i].RequestStop()
		}
		e.vus = e.vus[:targetVUs]
	}
	e.vusMu.Unlock()

	for i := currentVUs; i < targetVUs; i++ {
		e.spawn(stopCtx, iterCtx, 0)
	}
}

// updatePhase updates the metrics phase based on current stage.
func (e *RampingVUs) updatePhase() {
	stageIdx := int(e.currentStage.Load())
	if stageIdx >= len(e.config.Stages) {
		return
	}

	stage := e.config.Stages[stageIdx]
	prevTarget := 0
	if stageIdx > 0 {
		prevTarget = e.config.Stages[stageIdx-1].Target
	}

	switch {
	case stage.Target == prevTarget:
		e.metrics.SetPhase(metrics.PhaseSteady)
	case stage.Target > prevTarget:
		e.metrics.SetPhase(metrics.PhaseRampUp)
	default:
		e.metrics.SetPhase(metrics.PhaseRampDown)
	}
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *RampingVUs) GetProgress() float64 {
	if e.config == nil || e.started().IsZero() {
		return 0.0
	}
	if !e.running.Load() {
		return 1.0
	}

	totalDuration := e.config.TotalDuration()
	if totalDuration == 0 {
		return 1.0
	}

	progress := float64(e.elapsed()) / float64(totalDuration)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetStats returns executor statistics.
func (e *RampingVUs) GetStats() *Stats {
	stageIdx := int(e.currentStage.Load())
	stageName := ""
	if stageIdx < len(e.config.Stages) {
		stageName = e.config.Stages[stageIdx].Name
	}

	return &Stats{
		StartTime:        e.started(),
		CurrentTime:      time.Now(),
		Elapsed:          e.elapsed(),
		TotalDuration:    e.config.TotalDuration(),
		ActiveVUs:        e.GetActiveVUs(),
		TargetVUs:        int(e.targetVUs.Load()),
		Iterations:       e.iterations.Load(),
		CurrentStage:     stageIdx,
		CurrentStageName: stageName,
		TotalStages:      len(e.config.Stages),
	}
}

// Ensure RampingVUs implements Executor
var _ Executor = (*RampingVUs)(nil)
