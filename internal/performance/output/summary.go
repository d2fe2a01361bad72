package output

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/wesleyorama2/brxload/internal/performance/engine"
	"github.com/wesleyorama2/brxload/internal/performance/metrics"
)

// PrintSummary prints the final run summary.
func (c *Console) PrintSummary(result *engine.TestResult) {
	p := c.palette

	if result == nil {
		c.writeln("No results available")
		return
	}

	if c.quiet {
		if result.Passed {
			c.writeln(p.Good.Sprint("PASSED"))
		} else {
			c.writeln(p.Bad.Sprint("FAILED"))
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isTTY {
		c.clearLive()
	}

	line := strings.Repeat(boxHorizontal, 56)
	status := p.Good.Sprint("Completed ✓")
	if !result.Passed {
		status = p.Bad.Sprint("Failed ✗")
	}

	c.writeln("")
	c.writeln(p.Rule.Sprint(line))
	c.writeln(fmt.Sprintf("%s - %s", p.Title.Sprint(result.Name), status))
	c.writeln(p.Rule.Sprint(line))
	c.writeln("")

	c.writeln(fmt.Sprintf("Run ID:        %s", result.RunID))
	c.writeln(fmt.Sprintf("Executor:      %s", result.Executor))
	c.writeln(fmt.Sprintf("Duration:      %s", p.Value.Sprint(formatDuration(result.Duration))))
	c.writeln(fmt.Sprintf("Iterations:    %s", p.Value.Sprint(formatNumber(result.Iterations))))

	if m := result.Metrics; m != nil {
		c.writeln(fmt.Sprintf("Total Reqs:    %s", p.Value.Sprint(formatNumber(m.TotalRequests))))

		successRate := 1.0
		if m.TotalRequests > 0 {
			successRate = 1.0 - m.ErrorRate
		}
		c.writeln(fmt.Sprintf("Success Rate:  %s", c.rateColor(1-successRate, 0.01, 0.05).Sprintf("%.1f%%", successRate*100)))
		c.writeln(fmt.Sprintf("Throughput:    %.2f req/s", m.RPS))
		c.writeln(fmt.Sprintf("Data Received: %s", formatBytes(m.TotalBytes)))
		c.writeln("")

		c.writeln(p.Title.Sprint("Latency Distribution:"))
		c.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(m.Latency.Min)))
		c.writeln(fmt.Sprintf("  Avg:       %s", formatDurationShort(m.Latency.Mean)))
		c.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(m.Latency.P50)))
		c.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(m.Latency.P90)))
		c.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(m.Latency.P95)))
		c.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(m.Latency.P99)))
		c.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(m.Latency.Max)))
		c.writeln("")
	}

	c.printRequestStats(result.RequestStats)
	if result.Metrics != nil {
		c.printCustomMetrics(result.Metrics.Custom)
	}

	if len(result.Thresholds) > 0 {
		c.writeln(p.Title.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			mark := p.Good.Sprint("✓")
			if !t.Passed {
				mark = p.Bad.Sprint("✗")
			}
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", mark, t.Metric, t.Expression, t.Value))
			if !t.Passed && t.Message != "" {
				c.writeln(p.Dim.Sprintf("      %s", t.Message))
			}
		}
		c.writeln("")
	}

	if result.Error != "" {
		c.writeln(p.Warn.Sprintf("Warning: %s", result.Error))
		c.writeln("")
	}
}

// printRequestStats prints per scenario latency, sorted by name.
func (c *Console) printRequestStats(stats map[string]metrics.LatencyStats) {
	if len(stats) == 0 {
		return
	}

	names := make([]string, 0, len(stats))
	width := 0
	for name := range stats {
		names = append(names, name)
		if len(name) > width {
			width = len(name)
		}
	}
	sort.Strings(names)

	c.writeln(c.palette.Title.Sprint("Scenarios:"))
	for _, name := range names {
		s := stats[name]
		c.writeln(fmt.Sprintf("  %-*s  count=%-6d avg=%-8s p95=%-8s max=%s",
			width, name, s.Count,
			formatDurationShort(s.Mean),
			formatDurationShort(s.P95),
			formatDurationShort(s.Max)))
	}
	c.writeln("")
}

// printCustomMetrics prints every registered metric in k6 summary style.
func (c *Console) printCustomMetrics(custom map[string]metrics.Summary) {
	if len(custom) == 0 {
		return
	}

	names := make([]string, 0, len(custom))
	width := 0
	for name := range custom {
		names = append(names, name)
		if len(name) > width {
			width = len(name)
		}
	}
	sort.Strings(names)

	c.writeln(c.palette.Title.Sprint("Metrics:"))
	for _, name := range names {
		label := name + strings.Repeat(".", width-len(name)+3)
		c.writeln(fmt.Sprintf("  %s %s", c.palette.Dim.Sprint(label), FormatSummary(custom[name])))
	}
	c.writeln("")
}

// FormatSummary renders one metric summary on a single line.
func FormatSummary(s metrics.Summary) string {
	switch s.Kind {
	case metrics.KindCounter:
		return fmt.Sprintf("%d  %.2f/s", s.Count, s.Rate)
	case metrics.KindRate:
		return fmt.Sprintf("%.2f%%  ✓ %d  ✗ %d", s.Rate*100, s.Passes, s.Fails)
	case metrics.KindTrend:
		return fmt.Sprintf("avg=%s min=%s med=%s max=%s p(90)=%s p(95)=%s",
			formatMillis(s.Avg), formatMillis(s.Min), formatMillis(s.Med),
			formatMillis(s.Max), formatMillis(s.P90), formatMillis(s.P95))
	default:
		return fmt.Sprintf("count=%d", s.Count)
	}
}

func formatMillis(ms float64) string {
	return formatDurationShort(time.Duration(ms * float64(time.Millisecond)))
}

// WriteSummaryJSON writes the result as indented JSON to path.
func WriteSummaryJSON(result *engine.TestResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling result")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing summary to %s", path)
	}
	return nil
}
