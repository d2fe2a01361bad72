package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/wesleyorama2/brxload/internal/performance/metrics"
)

// thresholdPattern matches "p(95)<2000", "p95 < 2s", "rate<0.05", "avg <= 300ms".
var thresholdPattern = regexp.MustCompile(`^(p\(\d+(?:\.\d+)?\)|p\d+(?:\.\d+)?|avg|min|max|med|count|rate)\s*(<=|>=|==|!=|<|>)\s*(\S+)$`)

// Threshold is one parsed pass/fail expression on a metric.
type Threshold struct {
	Metric     string
	Expression string

	Stat  string
	Op    string
	Value float64

	// HasUnit is true when Value came from a duration literal and is in ms
	HasUnit bool
}

// ParseThreshold parses a k6 style expression for metric. Duration
// literals ("2s", "500ms") are converted to milliseconds; bare numbers are
// taken as they are, which is milliseconds for trend metrics.
func ParseThreshold(metric, expr string) (*Threshold, error) {
	if strings.TrimSpace(metric) == "" {
		return nil, errors.New("threshold metric name is empty")
	}

	m := thresholdPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return nil, errors.Errorf("invalid threshold expression %q: expected <stat> <op> <value>, e.g. p(95)<2000", expr)
	}

	t := &Threshold{
		Metric:     metric,
		Expression: expr,
		Stat:       m[1],
		Op:         m[2],
	}

	if _, ok := metrics.ParsePercentile(t.Stat); strings.HasPrefix(t.Stat, "p") && !ok {
		return nil, errors.Errorf("invalid percentile %q in %q", t.Stat, expr)
	}

	if v, err := strconv.ParseFloat(m[3], 64); err == nil {
		t.Value = v
		return t, nil
	}

	d, err := time.ParseDuration(m[3])
	if err != nil {
		return nil, errors.Errorf("invalid threshold value %q in %q", m[3], expr)
	}
	t.Value = float64(d) / float64(time.Millisecond)
	t.HasUnit = true
	return t, nil
}

// CheckThreshold validates an expression without keeping the result.
func CheckThreshold(metric, expr string) error {
	_, err := ParseThreshold(metric, expr)
	return err
}

// ParseThresholds parses a metric -> expressions map into a stable order
// (by metric name, then declaration order).
func ParseThresholds(defs map[string][]string) ([]*Threshold, error) {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []*Threshold
	for _, name := range names {
		for _, expr := range defs[name] {
			t, err := ParseThreshold(name, expr)
			if err != nil {
				return nil, errors.Wrapf(err, "threshold on %s", name)
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// Evaluate checks the threshold against the current metric values.
//
// A rate or trend with no samples passes: there is nothing to breach. A
// counter is always evaluated since zero is a real count. An unknown metric
// fails, since it usually means a typo in the metric name.
func (t *Threshold) Evaluate(engine *metrics.Engine) ThresholdResult {
	result := ThresholdResult{
		Metric:     t.Metric,
		Expression: t.Expression,
	}

	m, ok := engine.Registry().Get(t.Metric)
	if !ok {
		result.Message = fmt.Sprintf("unknown metric %q", t.Metric)
		return result
	}

	if t.HasUnit && m.Kind() != metrics.KindTrend {
		result.Message = fmt.Sprintf("%s is a %s metric; duration values only apply to trends", t.Metric, m.Kind())
		return result
	}

	if count, err := m.Value("count", engine.Elapsed()); m.Kind() != metrics.KindCounter && err == nil && count == 0 {
		result.Passed = true
		result.Value = "n/a"
		result.Message = "no samples"
		return result
	}

	actual, err := m.Value(t.Stat, engine.Elapsed())
	if err != nil {
		result.Message = err.Error()
		return result
	}

	result.Actual = actual
	result.Value = formatValue(m.Kind(), t.Stat, actual)
	result.Passed = compareValues(actual, t.Op, t.Value)

	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", t.Stat, result.Value, t.Op, formatValue(m.Kind(), t.Stat, t.Value))
	}

	return result
}

func formatValue(kind metrics.Kind, stat string, v float64) string {
	switch {
	case kind == metrics.KindTrend && stat != "count":
		return fmt.Sprintf("%.2fms", v)
	case kind == metrics.KindRate && stat == "rate":
		return fmt.Sprintf("%.4f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// compareValues compares two values using the given operator.
func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==":
		return actual == threshold
	case "!=":
		return actual != threshold
	default:
		return false
	}
}
