package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wesleyorama2/brxload/internal/performance"
	"github.com/wesleyorama2/brxload/internal/performance/metrics"
)

// base holds the VU bookkeeping shared by all executors.
//
// Two contexts drive a run: stopCtx ends when no new iterations may start
// (duration elapsed, Stop called), and iterCtx ends when in-flight
// iterations are abandoned (graceful stop elapsed).
type base struct {
	config    *Config
	scheduler *performance.VUScheduler
	metrics   *metrics.Engine

	startTime time.Time
	endTime   time.Time
	timeMu    sync.RWMutex

	activeVUs  atomic.Int32
	iterations atomic.Int64
	running    atomic.Bool

	stopCancel context.CancelFunc
	iterCancel context.CancelFunc
	cancelMu   sync.Mutex

	// stopRequested remembers a Stop that arrived before start
	stopRequested bool

	wg sync.WaitGroup

	vus   []*performance.VirtualUser
	vusMu sync.Mutex
}

func (b *base) init(expected Type, config *Config) error {
	if config.Type != expected {
		return errors.Errorf("invalid config type: expected %s, got %s", expected, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	b.config = config
	return nil
}

// start records the run start and derives the stop and iteration contexts.
// A zero limit leaves stopCtx without a deadline.
func (b *base) start(ctx context.Context, scheduler *performance.VUScheduler, metricsEngine *metrics.Engine, limit time.Duration) (stopCtx, iterCtx context.Context) {
	b.scheduler = scheduler
	b.metrics = metricsEngine

	b.timeMu.Lock()
	b.startTime = time.Now()
	b.endTime = time.Time{}
	b.timeMu.Unlock()
	b.running.Store(true)

	iterCtx, iterCancel := context.WithCancel(ctx)

	var stopCancel context.CancelFunc
	if limit > 0 {
		stopCtx, stopCancel = context.WithTimeout(iterCtx, limit)
	} else {
		stopCtx, stopCancel = context.WithCancel(iterCtx)
	}

	b.cancelMu.Lock()
	b.stopCancel = stopCancel
	b.iterCancel = iterCancel
	if b.stopRequested {
		stopCancel()
	}
	b.cancelMu.Unlock()

	return stopCtx, iterCtx
}

func (b *base) finish() {
	b.cancelMu.Lock()
	if b.stopCancel != nil {
		b.stopCancel()
	}
	if b.iterCancel != nil {
		b.iterCancel()
	}
	b.cancelMu.Unlock()

	b.timeMu.Lock()
	b.endTime = time.Now()
	b.timeMu.Unlock()
	b.running.Store(false)
}

// spawn starts a new VU goroutine running at most maxIterations iterations
// (0 means unlimited).
func (b *base) spawn(stopCtx, iterCtx context.Context, maxIterations int64) *performance.VirtualUser {
	vu := b.scheduler.SpawnVU()

	b.vusMu.Lock()
	b.vus = append(b.vus, vu)
	b.vusMu.Unlock()

	b.wg.Add(1)
	go b.runVU(stopCtx, iterCtx, vu, maxIterations)
	return vu
}

// runVU runs iterations until the VU is stopped, stopCtx ends, or the
// iteration budget is spent.
func (b *base) runVU(stopCtx, iterCtx context.Context, vu *performance.VirtualUser, maxIterations int64) {
	defer b.wg.Done()
	defer vu.MarkStopped()

	b.metrics.SetActiveVUs(int(b.activeVUs.Add(1)))
	defer func() {
		b.metrics.SetActiveVUs(int(b.activeVUs.Add(-1)))
	}()

	for done := int64(0); maxIterations == 0 || done < maxIterations; done++ {
		if stopCtx.Err() != nil {
			return
		}

		// Check if VU was stopped
		state := vu.GetState()
		if state == performance.VUStateStopping || state == performance.VUStateStopped {
			return
		}

		if err := vu.RunIteration(iterCtx); err != nil {
			if iterCtx.Err() != nil || errors.Is(err, performance.ErrVUStopped) {
				return
			}
			log.WithError(err).WithField("vu", vu.ID).Debug("iteration failed")
		}

		b.iterations.Add(1)

		// No think time after the final iteration
		if maxIterations > 0 && done+1 >= maxIterations {
			return
		}

		if !b.config.Pacing.wait(stopCtx, vu) {
			return
		}
	}
}

// gracefulShutdown stops every VU, lets in-flight iterations finish within
// the graceful stop period, then abandons whatever is left.
func (b *base) gracefulShutdown() error {
	b.vusMu.Lock()
	for _, vu := range b.vus {
		vu.RequestStop()
	}
	b.vusMu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	graceful := b.config.gracefulStop()
	timer := time.NewTimer(graceful)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
	}

	b.cancelMu.Lock()
	if b.iterCancel != nil {
		b.iterCancel()
	}
	b.cancelMu.Unlock()

	<-done
	return errors.Errorf("graceful stop timeout after %v, in-flight iterations interrupted", graceful)
}

func (b *base) elapsed() time.Duration {
	b.timeMu.RLock()
	defer b.timeMu.RUnlock()

	switch {
	case b.startTime.IsZero():
		return 0
	case !b.endTime.IsZero():
		return b.endTime.Sub(b.startTime)
	default:
		return time.Since(b.startTime)
	}
}

func (b *base) started() time.Time {
	b.timeMu.RLock()
	defer b.timeMu.RUnlock()
	return b.startTime
}

// GetActiveVUs returns current active VU count.
func (b *base) GetActiveVUs() int {
	return int(b.activeVUs.Load())
}

// Stop ends the run early: no new iterations start, and in-flight ones
// get the graceful stop period to finish. A Stop before Run makes Run end
// as soon as it starts.
func (b *base) Stop(ctx context.Context) error {
	b.cancelMu.Lock()
	b.stopRequested = true
	if b.stopCancel != nil {
		b.stopCancel()
	}
	b.cancelMu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
