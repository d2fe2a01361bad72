package executor

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/brxload/internal/performance"
	"github.com/wesleyorama2/brxload/internal/performance/metrics"
)

// recordingWorkload counts iterations and remembers which (vu, iteration)
// pairs it saw.
type recordingWorkload struct {
	delay time.Duration

	count atomic.Int64
	mu    sync.Mutex
	seen  map[int][]int64
}

func (w *recordingWorkload) Iterate(ctx context.Context, it *performance.Iteration) error {
	if w.delay > 0 {
		select {
		case <-time.After(w.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	w.count.Add(1)
	w.mu.Lock()
	if w.seen == nil {
		w.seen = make(map[int][]int64)
	}
	w.seen[it.VUID] = append(w.seen[it.VUID], it.Number)
	w.mu.Unlock()
	return nil
}

func newTestRun(w performance.Workload) (*performance.VUScheduler, *metrics.Engine) {
	engine := metrics.NewEngine()
	return performance.NewVUScheduler(w, engine, performance.DefaultHTTPClientConfig(), 1), engine
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"constant ok", Config{Type: TypeConstantVUs, VUs: 1, Duration: time.Second}, false},
		{"constant no vus", Config{Type: TypeConstantVUs, Duration: time.Second}, true},
		{"constant no duration", Config{Type: TypeConstantVUs, VUs: 1}, true},
		{"ramping ok", Config{Type: TypeRampingVUs, Stages: []Stage{{Duration: time.Second, Target: 1}}}, false},
		{"ramping no stages", Config{Type: TypeRampingVUs}, true},
		{"ramping zero stage", Config{Type: TypeRampingVUs, Stages: []Stage{{Target: 1}}}, true},
		{"per-vu ok", Config{Type: TypePerVUIterations, VUs: 1, Iterations: 5}, false},
		{"per-vu no iterations", Config{Type: TypePerVUIterations, VUs: 1}, true},
		{"unknown type", Config{Type: "shared-iterations"}, true},
		{"missing type", Config{}, true},
		{"negative graceful", Config{Type: TypeConstantVUs, VUs: 1, Duration: time.Second, GracefulStop: -1}, true},
		{"bad pacing", Config{Type: TypeConstantVUs, VUs: 1, Duration: time.Second, Pacing: RandomPacing(2*time.Second, time.Second)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInit_RejectsOtherExecutorType(t *testing.T) {
	err := NewConstantVUs().Init(context.Background(), &Config{
		Type:   TypeRampingVUs,
		Stages: []Stage{{Duration: time.Second, Target: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config type: expected constant-vus, got ramping-vus")
}

func TestConfig_TotalDurationAndMaxVUs(t *testing.T) {
	ramping := Config{Type: TypeRampingVUs, Stages: []Stage{
		{Duration: 30 * time.Second, Target: 5},
		{Duration: time.Minute, Target: 10},
		{Duration: 30 * time.Second, Target: 20},
		{Duration: 2 * time.Minute, Target: 20},
		{Duration: 30 * time.Second, Target: 0},
	}}
	assert.Equal(t, 4*time.Minute+30*time.Second, ramping.TotalDuration())
	assert.Equal(t, 20, ramping.MaxVUs())

	perVU := Config{Type: TypePerVUIterations, VUs: 3, Iterations: 5}
	assert.Equal(t, DefaultMaxDuration, perVU.TotalDuration())
	assert.Equal(t, 3, perVU.MaxVUs())

	perVU.MaxDuration = time.Minute
	assert.Equal(t, time.Minute, perVU.TotalDuration())

	assert.Equal(t, DefaultGracefulStop, perVU.gracefulStop())
	perVU.GracefulStop = time.Second
	assert.Equal(t, time.Second, perVU.gracefulStop())
}

func TestPacing_Next(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	var none *PacingConfig
	assert.Zero(t, none.Next(r))
	assert.Zero(t, (&PacingConfig{Type: PacingNone}).Next(r))
	assert.Equal(t, time.Second, ConstantPacing(time.Second).Next(r))
	assert.Equal(t, time.Second, RandomPacing(time.Second, time.Second).Next(r))

	random := RandomPacing(time.Second, 4*time.Second)
	for i := 0; i < 1000; i++ {
		d := random.Next(r)
		if d < time.Second || d >= 4*time.Second {
			t.Fatalf("Next() = %v, want within [1s, 4s)", d)
		}
	}
}

func TestRampingVUs_CalculateTargetVUs(t *testing.T) {
	e := NewRampingVUs()
	require.NoError(t, e.Init(context.Background(), &Config{
		Type: TypeRampingVUs,
		Stages: []Stage{
			{Duration: 30 * time.Second, Target: 5},
			{Duration: time.Minute, Target: 10},
			{Duration: 30 * time.Second, Target: 20},
			{Duration: 2 * time.Minute, Target: 20},
			{Duration: 30 * time.Second, Target: 0},
		},
	}))

	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 0},
		{15 * time.Second, 3}, // 2.5 rounds up
		{30 * time.Second, 5},
		{60 * time.Second, 8}, // 7.5 rounds up
		{90 * time.Second, 10},
		{105 * time.Second, 15},
		{3 * time.Minute, 20},
		{4*time.Minute + 15*time.Second, 10},
		{4*time.Minute + 30*time.Second, 0},
		{4*time.Minute + 45*time.Second, 0},
		{10 * time.Minute, 0},
	}

	for _, tt := range tests {
		if got := e.calculateTargetVUs(tt.elapsed); got != tt.want {
			t.Errorf("calculateTargetVUs(%v) = %d, want %d", tt.elapsed, got, tt.want)
		}
	}
}

func TestRampingVUs_Phases(t *testing.T) {
	engine := metrics.NewEngine()
	defer engine.Stop()

	e := NewRampingVUs()
	require.NoError(t, e.Init(context.Background(), &Config{
		Type: TypeRampingVUs,
		Stages: []Stage{
			{Duration: time.Second, Target: 2},
			{Duration: time.Second, Target: 2},
			{Duration: time.Second, Target: 0},
		},
	}))
	e.metrics = engine

	for _, tt := range []struct {
		elapsed time.Duration
		phase   metrics.Phase
	}{
		{500 * time.Millisecond, metrics.PhaseRampUp},
		{1500 * time.Millisecond, metrics.PhaseSteady},
		{2500 * time.Millisecond, metrics.PhaseRampDown},
	} {
		e.calculateTargetVUs(tt.elapsed)
		e.updatePhase()
		assert.Equal(t, tt.phase, engine.GetPhase(), tt.elapsed.String())
	}
}

func TestRampingVUs_Run(t *testing.T) {
	w := &recordingWorkload{delay: 10 * time.Millisecond}
	scheduler, engine := newTestRun(w)
	defer engine.Stop()

	e := NewRampingVUs()
	require.NoError(t, e.Init(context.Background(), &Config{
		Type: TypeRampingVUs,
		Stages: []Stage{
			{Duration: 300 * time.Millisecond, Target: 3},
			{Duration: 300 * time.Millisecond, Target: 0},
		},
		GracefulStop: time.Second,
	}))

	start := time.Now()
	require.NoError(t, e.Run(context.Background(), scheduler, engine))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Positive(t, w.count.Load())
	assert.Equal(t, 0, e.GetActiveVUs())
	assert.Equal(t, 1.0, e.GetProgress())

	stats := e.GetStats()
	assert.Equal(t, 2, stats.TotalStages)
	assert.Equal(t, w.count.Load(), stats.Iterations)
}

func TestConstantVUs_Run(t *testing.T) {
	w := &recordingWorkload{delay: 5 * time.Millisecond}
	scheduler, engine := newTestRun(w)
	defer engine.Stop()

	e := NewConstantVUs()
	require.NoError(t, e.Init(context.Background(), &Config{
		Type:     TypeConstantVUs,
		VUs:      4,
		Duration: 200 * time.Millisecond,
		Pacing:   ConstantPacing(10 * time.Millisecond),
	}))

	require.NoError(t, e.Run(context.Background(), scheduler, engine))

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Len(t, w.seen, 4)
	for vu, iterations := range w.seen {
		for i, n := range iterations {
			assert.Equal(t, int64(i), n, "vu %d iterations are numbered from zero", vu)
		}
	}
	assert.Equal(t, 4, e.GetStats().TargetVUs)
}

func TestPerVUIterations_Run(t *testing.T) {
	w := &recordingWorkload{}
	scheduler, engine := newTestRun(w)
	defer engine.Stop()

	e := NewPerVUIterations()
	require.NoError(t, e.Init(context.Background(), &Config{
		Type:       TypePerVUIterations,
		VUs:        2,
		Iterations: 5,
		Pacing:     ConstantPacing(5 * time.Millisecond),
	}))

	start := time.Now()
	require.NoError(t, e.Run(context.Background(), scheduler, engine))

	// 4 pauses per VU; no pause after the last iteration
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(10), w.count.Load())

	w.mu.Lock()
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, w.seen[1])
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, w.seen[2])
	w.mu.Unlock()

	stats := e.GetStats()
	assert.Equal(t, int64(10), stats.TotalIterations)
	assert.Equal(t, int64(10), stats.Iterations)
}

func TestPerVUIterations_MaxDuration(t *testing.T) {
	w := &recordingWorkload{}
	scheduler, engine := newTestRun(w)
	defer engine.Stop()

	e := NewPerVUIterations()
	require.NoError(t, e.Init(context.Background(), &Config{
		Type:        TypePerVUIterations,
		VUs:         1,
		Iterations:  100,
		MaxDuration: 100 * time.Millisecond,
		Pacing:      ConstantPacing(time.Hour),
	}))

	start := time.Now()
	require.NoError(t, e.Run(context.Background(), scheduler, engine))

	assert.Less(t, time.Since(start), time.Second, "pause is cut short at maxDuration")
	assert.Equal(t, int64(1), w.count.Load())
}

func TestGracefulStop_LetsIterationFinish(t *testing.T) {
	w := &recordingWorkload{delay: 300 * time.Millisecond}
	scheduler, engine := newTestRun(w)
	defer engine.Stop()

	e := NewConstantVUs()
	require.NoError(t, e.Init(context.Background(), &Config{
		Type:         TypeConstantVUs,
		VUs:          1,
		Duration:     50 * time.Millisecond,
		GracefulStop: 2 * time.Second,
	}))

	require.NoError(t, e.Run(context.Background(), scheduler, engine))
	assert.Equal(t, int64(1), w.count.Load(), "in-flight iteration completes after the duration ends")
}

func TestGracefulStop_Timeout(t *testing.T) {
	w := &recordingWorkload{delay: 5 * time.Second}
	scheduler, engine := newTestRun(w)
	defer engine.Stop()

	e := NewConstantVUs()
	require.NoError(t, e.Init(context.Background(), &Config{
		Type:         TypeConstantVUs,
		VUs:          2,
		Duration:     50 * time.Millisecond,
		GracefulStop: 100 * time.Millisecond,
	}))

	start := time.Now()
	err := e.Run(context.Background(), scheduler, engine)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "graceful stop timeout")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Zero(t, w.count.Load(), "interrupted iterations are abandoned")
}

func TestStop_EndsRunEarly(t *testing.T) {
	w := &recordingWorkload{delay: 5 * time.Millisecond}
	scheduler, engine := newTestRun(w)
	defer engine.Stop()

	e := NewConstantVUs()
	require.NoError(t, e.Init(context.Background(), &Config{
		Type:     TypeConstantVUs,
		VUs:      2,
		Duration: time.Hour,
	}))

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), scheduler, engine) }()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestStop_BeforeRun(t *testing.T) {
	w := &recordingWorkload{}
	scheduler, engine := newTestRun(w)
	defer engine.Stop()

	e := NewConstantVUs()
	require.NoError(t, e.Init(context.Background(), &Config{
		Type:     TypeConstantVUs,
		VUs:      2,
		Duration: time.Hour,
		Pacing:   ConstantPacing(time.Hour),
	}))

	require.NoError(t, e.Stop(context.Background()))

	start := time.Now()
	require.NoError(t, e.Run(context.Background(), scheduler, engine))
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, w.count.Load())
}

func TestRun_ParentCancel(t *testing.T) {
	w := &recordingWorkload{delay: 5 * time.Millisecond}
	scheduler, engine := newTestRun(w)
	defer engine.Stop()

	e := NewRampingVUs()
	require.NoError(t, e.Init(context.Background(), &Config{
		Type:   TypeRampingVUs,
		Stages: []Stage{{Duration: time.Hour, Target: 2}},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_ = e.Run(ctx, scheduler, engine)
	assert.Less(t, time.Since(start), 2*time.Second)
}
