// Package performance provides the virtual-user runtime of the load engine.
package performance

import (
	"context"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/wesleyorama2/brxload/internal/performance/metrics"
)

// ErrVUStopped is returned by RunIteration once the VU has been asked to stop.
var ErrVUStopped = errors.New("VU is stopping or stopped")

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is ready but not currently running.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is actively running an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU has been requested to stop.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Workload is the unit of work a VU performs once per iteration.
//
// Iterate must record its own outcome in it.Metrics. A returned error is
// logged by the executor and never stops the VU.
type Workload interface {
	Iterate(ctx context.Context, it *Iteration) error
}

// WorkloadFunc adapts a function to the Workload interface.
type WorkloadFunc func(ctx context.Context, it *Iteration) error

// Iterate calls f(ctx, it).
func (f WorkloadFunc) Iterate(ctx context.Context, it *Iteration) error {
	return f(ctx, it)
}

// Iteration carries the identity and resources of one VU iteration.
type Iteration struct {
	// VUID is the 1-based id of the VU
	VUID int

	// Number is the 0-based iteration counter of the VU
	Number int64

	// Start is the wall-clock time the iteration began
	Start time.Time

	// Rand is private to the VU; it must not be shared across goroutines
	Rand *rand.Rand

	Client  *http.Client
	Metrics *metrics.Engine
}

// VirtualUser represents a single simulated user executing iterations.
//
// Each VU has its own:
// - random source (seeded from the run seed plus the VU id)
// - iteration counter
// - lifecycle state
//
// The HTTP client and the metrics engine are shared across VUs.
type VirtualUser struct {
	// Unique identifier for this VU
	ID int

	Workload   Workload
	HTTPClient *http.Client
	Metrics    *metrics.Engine

	rand *rand.Rand

	// Lifecycle state (atomic for lock-free reads)
	state atomic.Int32

	// Stop signal
	stopCh chan struct{}

	// Done signal (closed when VU fully stops)
	doneCh chan struct{}

	iteration atomic.Int64
}

// NewVirtualUser creates a new Virtual User whose random source is seeded
// with seed.
func NewVirtualUser(id int, workload Workload, httpClient *http.Client, metricsEngine *metrics.Engine, seed int64) *VirtualUser {
	return &VirtualUser{
		ID:         id,
		Workload:   workload,
		HTTPClient: httpClient,
		Metrics:    metricsEngine,
		rand:       rand.New(rand.NewSource(seed)),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of iterations started so far.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// RunIteration executes a single iteration of the workload.
//
// Returns:
//   - nil if the iteration completed
//   - an error if the VU is stopping, or the workload failed
func (vu *VirtualUser) RunIteration(ctx context.Context) error {
	currentState := vu.GetState()
	if currentState == VUStateStopping || currentState == VUStateStopped {
		return errors.Wrapf(ErrVUStopped, "VU %d", vu.ID)
	}

	vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning))

	it := &Iteration{
		VUID:    vu.ID,
		Number:  vu.iteration.Add(1) - 1,
		Start:   time.Now(),
		Rand:    vu.rand,
		Client:  vu.HTTPClient,
		Metrics: vu.Metrics,
	}

	err := vu.Workload.Iterate(ctx, it)

	// A stop requested mid-iteration must not be overwritten
	vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))
	return err
}

// Rand returns the VU's private random source.
func (vu *VirtualUser) Rand() *rand.Rand {
	return vu.rand
}

// Pause waits for d, or until the context is cancelled or the VU is asked
// to stop. It reports whether the full duration elapsed.
func (vu *VirtualUser) Pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-vu.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// Stopping returns a channel closed when the VU is asked to stop.
func (vu *VirtualUser) Stopping() <-chan struct{} {
	return vu.stopCh
}

// RequestStop signals the VU to stop after completing the current iteration.
func (vu *VirtualUser) RequestStop() {
	currentState := VUState(vu.state.Load())
	if currentState == VUStateStopped {
		return
	}

	// Try to transition to stopping state
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping)) {
		close(vu.stopCh)
	}
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	select {
	case <-vu.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// MarkStopped marks the VU as fully stopped.
// Should be called by the executor when the VU goroutine exits.
func (vu *VirtualUser) MarkStopped() {
	// Close stopCh too, so a VU that exits on its own still unblocks Pause callers
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping)) {
		close(vu.stopCh)
	}
	vu.state.Store(int32(VUStateStopped))

	select {
	case <-vu.doneCh:
		// Already closed
	default:
		close(vu.doneCh)
	}
}
