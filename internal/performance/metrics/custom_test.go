package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	r := NewRegistry(DefaultEngineConfig())
	c := r.Counter("total_requests")

	c.Add(1)
	c.Add(4)

	assert.Equal(t, int64(5), c.Count())

	v, err := c.Value("rate", 5*time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 1e-9)

	v, err = c.Value("rate", 0)
	require.NoError(t, err)
	assert.Zero(t, v)

	_, err = c.Value("p(95)", time.Second)
	assert.Error(t, err)
}

func TestRate(t *testing.T) {
	r := NewRegistry(DefaultEngineConfig())
	rate := r.Rate("cache_hit_rate")

	assert.Zero(t, rate.Fraction(), "empty rate")

	rate.Add(true)
	rate.Add(true)
	rate.Add(false)
	rate.Add(true)

	assert.InDelta(t, 0.75, rate.Fraction(), 1e-9)

	s := rate.Summary(0)
	assert.Equal(t, KindRate, s.Kind)
	assert.Equal(t, int64(4), s.Count)
	assert.Equal(t, int64(3), s.Passes)
	assert.Equal(t, int64(1), s.Fails)
}

func TestTrend(t *testing.T) {
	r := NewRegistry(DefaultEngineConfig())
	trend := r.Trend("query_duration")

	for _, ms := range []float64{100, 200, 300, 400, 500} {
		trend.Add(ms)
	}

	tests := []struct {
		stat string
		want float64
	}{
		{"min", 100},
		{"max", 500},
		{"avg", 300},
		{"med", 300},
		{"p(95)", 500},
		{"p95", 500},
		{"count", 5},
	}

	for _, tt := range tests {
		t.Run(tt.stat, func(t *testing.T) {
			got, err := trend.Value(tt.stat, 0)
			require.NoError(t, err)
			assert.InEpsilon(t, tt.want, got, 0.01)
		})
	}

	_, err := trend.Value("rate", 0)
	assert.Error(t, err)
}

func TestParsePercentile(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"p(95)", 95, true},
		{"p(99.9)", 99.9, true},
		{"p90", 90, true},
		{"p(101)", 0, false},
		{"avg", 0, false},
		{"p()", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParsePercentile(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry(DefaultEngineConfig())

	a := r.Counter("total_requests")
	b := r.Counter("total_requests")
	assert.Same(t, a, b)

	assert.Panics(t, func() { r.Rate("total_requests") })

	r.Rate("error_rate")
	r.Trend("query_duration")
	assert.Equal(t, []string{"error_rate", "query_duration", "total_requests"}, r.Names())
}

func TestRegistry_ConcurrentUpdates(t *testing.T) {
	r := NewRegistry(DefaultEngineConfig())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Counter("total_requests").Add(1)
				r.Rate("error_rate").Add(j%4 == 0)
				r.Trend("query_duration").Add(float64(j))
			}
		}(i)
	}
	wg.Wait()

	summaries := r.Summaries(time.Second)
	assert.Equal(t, int64(2000), summaries["total_requests"].Count)
	assert.InDelta(t, 0.25, summaries["error_rate"].Rate, 1e-9)
	assert.Equal(t, int64(2000), summaries["query_duration"].Count)
}
