package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/pkg/errors"
)

// Kind identifies the aggregation a custom metric performs.
type Kind string

const (
	// KindCounter sums added values.
	KindCounter Kind = "counter"

	// KindTrend keeps a distribution of added values (milliseconds).
	KindTrend Kind = "trend"

	// KindRate tracks the fraction of added values that are true.
	KindRate Kind = "rate"
)

// Metric is a named, concurrently updatable aggregation.
type Metric interface {
	Name() string
	Kind() Kind

	// Value returns one statistic of the metric, e.g. "count", "rate",
	// "avg", "p(95)". Durations are reported in milliseconds.
	Value(stat string, elapsed time.Duration) (float64, error)

	// Summary returns all statistics of the metric.
	Summary(elapsed time.Duration) Summary
}

// Summary is the aggregated view of a single custom metric.
type Summary struct {
	Kind Kind `json:"kind"`

	// Counter and Rate
	Count int64   `json:"count"`
	Rate  float64 `json:"rate"`

	// Rate only
	Passes int64 `json:"passes,omitempty"`
	Fails  int64 `json:"fails,omitempty"`

	// Trend only, in milliseconds
	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`
	Avg float64 `json:"avg,omitempty"`
	Med float64 `json:"med,omitempty"`
	P90 float64 `json:"p90,omitempty"`
	P95 float64 `json:"p95,omitempty"`
	P99 float64 `json:"p99,omitempty"`
}

// Counter is a monotonically increasing sum.
type Counter struct {
	name  string
	value atomic.Int64
}

// Name returns the metric name.
func (c *Counter) Name() string { return c.name }

// Kind returns KindCounter.
func (c *Counter) Kind() Kind { return KindCounter }

// Add adds n to the counter.
func (c *Counter) Add(n int64) {
	c.value.Add(n)
}

// Count returns the current sum.
func (c *Counter) Count() int64 {
	return c.value.Load()
}

// Value supports "count" and "rate" (per second over elapsed).
func (c *Counter) Value(stat string, elapsed time.Duration) (float64, error) {
	switch stat {
	case "count":
		return float64(c.Count()), nil
	case "rate":
		if elapsed <= 0 {
			return 0, nil
		}
		return float64(c.Count()) / elapsed.Seconds(), nil
	default:
		return 0, errors.Errorf("counter %s does not support %q", c.name, stat)
	}
}

// Summary returns the counter summary.
func (c *Counter) Summary(elapsed time.Duration) Summary {
	rate, _ := c.Value("rate", elapsed)
	return Summary{Kind: KindCounter, Count: c.Count(), Rate: rate}
}

// Rate tracks how often an added value is true.
type Rate struct {
	name   string
	trues  atomic.Int64
	totals atomic.Int64
}

// Name returns the metric name.
func (r *Rate) Name() string { return r.name }

// Kind returns KindRate.
func (r *Rate) Kind() Kind { return KindRate }

// Add records one boolean sample.
func (r *Rate) Add(v bool) {
	if v {
		r.trues.Add(1)
	}
	r.totals.Add(1)
}

// Fraction returns trues/total, or 0 when nothing was recorded.
func (r *Rate) Fraction() float64 {
	total := r.totals.Load()
	if total == 0 {
		return 0
	}
	return float64(r.trues.Load()) / float64(total)
}

// Value supports "rate" and "count".
func (r *Rate) Value(stat string, _ time.Duration) (float64, error) {
	switch stat {
	case "rate":
		return r.Fraction(), nil
	case "count":
		return float64(r.totals.Load()), nil
	default:
		return 0, errors.Errorf("rate %s does not support %q", r.name, stat)
	}
}

// Summary returns the rate summary.
func (r *Rate) Summary(time.Duration) Summary {
	trues := r.trues.Load()
	total := r.totals.Load()
	return Summary{
		Kind:   KindRate,
		Count:  total,
		Rate:   r.Fraction(),
		Passes: trues,
		Fails:  total - trues,
	}
}

// Trend keeps a latency-style distribution backed by an HDR histogram.
// Values are stored in microseconds and reported in milliseconds.
//
// NOTE: HDR histogram RecordValue is NOT thread-safe, so every access holds mu.
type Trend struct {
	name   string
	config EngineConfig
	mu     sync.Mutex
	hist   *hdrhistogram.Histogram
}

func newTrend(name string, config EngineConfig) *Trend {
	return &Trend{
		name:   name,
		config: config,
		hist:   hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
	}
}

// Name returns the metric name.
func (t *Trend) Name() string { return t.name }

// Kind returns KindTrend.
func (t *Trend) Kind() Kind { return KindTrend }

// AddDuration records one duration sample.
func (t *Trend) AddDuration(d time.Duration) {
	micros := d.Microseconds()

	// Clamp to valid range
	if micros < t.config.HistogramMin {
		micros = t.config.HistogramMin
	}
	if micros > t.config.HistogramMax {
		micros = t.config.HistogramMax
	}

	t.mu.Lock()
	_ = t.hist.RecordValue(micros)
	t.mu.Unlock()
}

// Add records one sample expressed in milliseconds.
func (t *Trend) Add(ms float64) {
	t.AddDuration(time.Duration(ms * float64(time.Millisecond)))
}

// Percentile returns the value at quantile q (0-100).
func (t *Trend) Percentile(q float64) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(t.hist.ValueAtQuantile(q)) * time.Microsecond
}

// Stats returns the distribution as LatencyStats.
func (t *Trend) Stats() LatencyStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return LatencyStats{
		Min:    time.Duration(t.hist.Min()) * time.Microsecond,
		Max:    time.Duration(t.hist.Max()) * time.Microsecond,
		Mean:   time.Duration(t.hist.Mean()) * time.Microsecond,
		StdDev: time.Duration(t.hist.StdDev()) * time.Microsecond,
		P50:    time.Duration(t.hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(t.hist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(t.hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(t.hist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  t.hist.TotalCount(),
	}
}

// Value supports "min", "max", "avg", "med", "count", and percentiles
// written as "p(95)", "p(99.9)" or "p95".
func (t *Trend) Value(stat string, _ time.Duration) (float64, error) {
	switch stat {
	case "count":
		return float64(t.Stats().Count), nil
	case "min":
		return toMillis(t.Stats().Min), nil
	case "max":
		return toMillis(t.Stats().Max), nil
	case "avg":
		return toMillis(t.Stats().Mean), nil
	case "med":
		return toMillis(t.Percentile(50)), nil
	}

	q, ok := ParsePercentile(stat)
	if !ok {
		return 0, errors.Errorf("trend %s does not support %q", t.name, stat)
	}
	return toMillis(t.Percentile(q)), nil
}

// Summary returns the trend summary.
func (t *Trend) Summary(time.Duration) Summary {
	s := t.Stats()
	return Summary{
		Kind:  KindTrend,
		Count: s.Count,
		Min:   toMillis(s.Min),
		Max:   toMillis(s.Max),
		Avg:   toMillis(s.Mean),
		Med:   toMillis(s.P50),
		P90:   toMillis(s.P90),
		P95:   toMillis(s.P95),
		P99:   toMillis(s.P99),
	}
}

func (t *Trend) reset() {
	t.mu.Lock()
	t.hist.Reset()
	t.mu.Unlock()
}

// ParsePercentile parses "p(95)", "p(99.9)" or "p95" into a quantile.
func ParsePercentile(stat string) (float64, bool) {
	if !strings.HasPrefix(stat, "p") {
		return 0, false
	}
	raw := strings.TrimPrefix(stat, "p")
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		raw = raw[1 : len(raw)-1]
	}
	q, err := strconv.ParseFloat(raw, 64)
	if err != nil || q < 0 || q > 100 {
		return 0, false
	}
	return q, true
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Registry holds the named custom metrics of a run.
//
// The accessor methods get-or-create: asking twice for the same name returns
// the same metric. Asking for an existing name with a different kind panics,
// as that is a programming error.
type Registry struct {
	config  EngineConfig
	mu      sync.RWMutex
	metrics map[string]Metric
}

// NewRegistry creates an empty registry.
func NewRegistry(config EngineConfig) *Registry {
	return &Registry{
		config:  config,
		metrics: make(map[string]Metric),
	}
}

// Counter returns the counter registered under name.
func (r *Registry) Counter(name string) *Counter {
	m := r.getOrCreate(name, KindCounter, func() Metric { return &Counter{name: name} })
	return m.(*Counter)
}

// Rate returns the rate registered under name.
func (r *Registry) Rate(name string) *Rate {
	m := r.getOrCreate(name, KindRate, func() Metric { return &Rate{name: name} })
	return m.(*Rate)
}

// Trend returns the trend registered under name.
func (r *Registry) Trend(name string) *Trend {
	m := r.getOrCreate(name, KindTrend, func() Metric { return newTrend(name, r.config) })
	return m.(*Trend)
}

func (r *Registry) getOrCreate(name string, kind Kind, create func() Metric) Metric {
	r.mu.RLock()
	m, exists := r.metrics[name]
	r.mu.RUnlock()

	if !exists {
		r.mu.Lock()
		m, exists = r.metrics[name]
		if !exists {
			m = create()
			r.metrics[name] = m
		}
		r.mu.Unlock()
	}

	if m.Kind() != kind {
		panic(fmt.Sprintf("metric %s already registered as %s, not %s", name, m.Kind(), kind))
	}
	return m
}

// Get returns the metric registered under name.
func (r *Registry) Get(name string) (Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[name]
	return m, ok
}

// Names returns all registered metric names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summaries returns the summary of every registered metric.
func (r *Registry) Summaries(elapsed time.Duration) map[string]Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]Summary, len(r.metrics))
	for name, m := range r.metrics {
		result[name] = m.Summary(elapsed)
	}
	return result
}

func (r *Registry) reset() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.metrics {
		switch v := m.(type) {
		case *Trend:
			v.reset()
		case *Counter:
			v.value.Store(0)
		case *Rate:
			v.trues.Store(0)
			v.totals.Store(0)
		}
	}
}
