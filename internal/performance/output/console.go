// Package output renders live progress and the final run summary.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/wesleyorama2/brxload/internal/performance/executor"
	"github.com/wesleyorama2/brxload/internal/performance/metrics"
)

// Cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"
)

const (
	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	progressFilled = "█"
	progressEmpty  = "░"

	boxWidth = 55
)

// Palette holds the colors used by the console.
type Palette struct {
	Title   *color.Color
	Rule    *color.Color
	Dim     *color.Color
	Value   *color.Color
	Latency *color.Color
	Stage   *color.Color
	Good    *color.Color
	Warn    *color.Color
	Bad     *color.Color
}

// DefaultPalette returns the default colors.
func DefaultPalette() *Palette {
	return &Palette{
		Title:   color.New(color.Bold),
		Rule:    color.New(color.FgCyan),
		Dim:     color.New(color.Faint),
		Value:   color.New(color.FgCyan),
		Latency: color.New(color.FgBlue),
		Stage:   color.New(color.FgMagenta),
		Good:    color.New(color.FgGreen),
		Warn:    color.New(color.FgYellow),
		Bad:     color.New(color.FgRed),
	}
}

func (p *Palette) each(fn func(*color.Color)) {
	for _, c := range []*color.Color{p.Title, p.Rule, p.Dim, p.Value, p.Latency, p.Stage, p.Good, p.Warn, p.Bad} {
		fn(c)
	}
}

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	Progress  float64
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveVUs int
	TargetVUs int

	CurrentRPS    float64
	TotalRequests int64
	Errors        int64
	ErrorRate     float64

	LatencyP95 time.Duration
	LatencyAvg time.Duration

	CurrentPhase string
	StageName    string
	CurrentStage int // 1-indexed
	TotalStages  int
}

// Console manages live console output during a run.
type Console struct {
	testName     string
	executorType string
	writer       io.Writer
	isTTY        bool
	quiet        bool
	palette      *Palette

	mu          sync.Mutex
	linesOutput int
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	TestName     string
	ExecutorType string
	Writer       io.Writer
	Quiet        bool

	// NoColor disables colors even on a terminal
	NoColor     bool
	ForceColors bool
	ForceTTY    bool
}

// NewConsole creates a console writer. The in-place display is used only
// when the writer is a terminal.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	isTTY := config.ForceTTY || isTerminal(config.Writer)

	palette := DefaultPalette()
	switch {
	case config.NoColor:
		palette.each((*color.Color).DisableColor)
	case config.ForceColors:
		palette.each((*color.Color).EnableColor)
	case !isTTY || os.Getenv("NO_COLOR") != "":
		palette.each((*color.Color).DisableColor)
	}

	return &Console{
		testName:     config.TestName,
		executorType: config.ExecutorType,
		writer:       config.Writer,
		isTTY:        isTTY,
		quiet:        config.Quiet,
		palette:      palette,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run header.
func (c *Console) PrintHeader() {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, 56)
	executorInfo := ""
	if c.executorType != "" {
		executorInfo = fmt.Sprintf(" [%s]", c.executorType)
	}

	c.writeln(c.palette.Rule.Sprint(line))
	c.writeln(c.palette.Title.Sprintf("%s - Running%s", c.testName, executorInfo))
	c.writeln(c.palette.Rule.Sprint(line))
	c.writeln("")
}

// Report shows stats the way the output supports: redrawn in place on a
// terminal, one line per call otherwise.
func (c *Console) Report(stats *LiveStats) {
	if c.quiet {
		return
	}
	if c.isTTY {
		c.Update(stats)
		return
	}
	c.PrintNonInteractiveUpdate(stats)
}

// Update redraws the live display.
func (c *Console) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()

	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// clearLive erases the previous live display. Callers hold c.mu.
func (c *Console) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

func (c *Console) renderLiveStats(stats *LiveStats) []string {
	p := c.palette
	var lines []string

	progressBar := renderProgressBar(stats.Progress, 40)
	timeInfo := fmt.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))
	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		p.Good.Sprint(progressBar),
		p.Title.Sprintf("%.0f%%", stats.Progress*100),
		p.Dim.Sprint(timeInfo)))

	lines = append(lines, fmt.Sprintf("Stage:    %s", p.Stage.Sprint(stageLabel(stats))))
	lines = append(lines, "")

	lines = append(lines, p.Dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	vusStr := fmt.Sprintf("VUs:     %s / %d", p.Value.Sprintf("%d", stats.ActiveVUs), stats.TargetVUs)
	reqsStr := fmt.Sprintf("Requests:    %s", p.Value.Sprint(formatNumber(stats.TotalRequests)))
	lines = append(lines, c.formatBoxRow(vusStr, reqsStr))

	errColor := c.rateColor(stats.ErrorRate, 0.01, 0.05)
	rpsStr := fmt.Sprintf("RPS:     %s", p.Good.Sprintf("%.1f", stats.CurrentRPS))
	errStr := fmt.Sprintf("Errors:      %s (%s)",
		errColor.Sprintf("%d", stats.Errors),
		errColor.Sprintf("%.1f%%", stats.ErrorRate*100))
	lines = append(lines, c.formatBoxRow(rpsStr, errStr))

	p95Str := fmt.Sprintf("P95:     %s", p.Latency.Sprint(formatDurationShort(stats.LatencyP95)))
	avgStr := fmt.Sprintf("Avg:         %s", p.Latency.Sprint(formatDurationShort(stats.LatencyAvg)))
	lines = append(lines, c.formatBoxRow(p95Str, avgStr))

	lines = append(lines, p.Dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))

	return lines
}

func stageLabel(stats *LiveStats) string {
	label := stats.CurrentPhase
	if stats.StageName != "" {
		label = fmt.Sprintf("%s, %s", stats.StageName, stats.CurrentPhase)
	}
	if stats.TotalStages > 0 {
		label = fmt.Sprintf("%s (%d/%d)", label, stats.CurrentStage, stats.TotalStages)
	}
	return label
}

// rateColor picks green, yellow or red for an error rate.
func (c *Console) rateColor(rate, warn, bad float64) *color.Color {
	switch {
	case rate > bad:
		return c.palette.Bad
	case rate > warn:
		return c.palette.Warn
	default:
		return c.palette.Good
	}
}

// formatBoxRow formats a row inside the stats box with two columns.
func (c *Console) formatBoxRow(left, right string) string {
	colWidth := (boxWidth - 4) / 2

	leftPadding := colWidth - visibleLen(left)
	if leftPadding < 0 {
		leftPadding = 0
	}
	rightPadding := colWidth - visibleLen(right)
	if rightPadding < 0 {
		rightPadding = 0
	}

	bar := c.palette.Dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s%s %s%s %s",
		bar, left, strings.Repeat(" ", leftPadding),
		bar, right, strings.Repeat(" ", rightPadding),
		bar)
}

func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

// PrintNonInteractiveUpdate prints a one-line status, for CI logs and pipes.
func (c *Console) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] Progress: %.0f%% | Stage: %s | VUs: %d/%d | Reqs: %d | RPS: %.1f | Errors: %d (%.1f%%) | P95: %s",
		formatDuration(stats.Elapsed),
		stats.Progress*100,
		stageLabel(stats),
		stats.ActiveVUs,
		stats.TargetVUs,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.Errors,
		stats.ErrorRate*100,
		formatDurationShort(stats.LatencyP95)))
}

func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// StatsFromEngine builds LiveStats from a metrics snapshot and the
// executor's live stats. Either may be nil.
func StatsFromEngine(snapshot *metrics.Snapshot, exec *executor.Stats, progress float64) *LiveStats {
	stats := &LiveStats{
		Progress:     progress,
		CurrentPhase: "initializing",
	}

	if exec != nil {
		stats.TargetVUs = exec.TargetVUs
		stats.ActiveVUs = exec.ActiveVUs
		stats.StageName = exec.CurrentStageName
		stats.TotalStages = exec.TotalStages
		if exec.TotalStages > 0 {
			stats.CurrentStage = exec.CurrentStage + 1
			if stats.CurrentStage > exec.TotalStages {
				stats.CurrentStage = exec.TotalStages
			}
		}
	}

	if snapshot == nil {
		return stats
	}

	var total time.Duration
	if exec != nil {
		total = exec.TotalDuration
	}

	elapsed := snapshot.Elapsed
	remaining := time.Duration(0)
	if progress > 0 && progress < 1 {
		remaining = time.Duration(float64(elapsed) * (1 - progress) / progress)
	} else if total > elapsed {
		remaining = total - elapsed
	}

	stats.Elapsed = elapsed
	stats.Remaining = remaining
	stats.ActiveVUs = snapshot.ActiveVUs
	stats.CurrentRPS = snapshot.RPS
	stats.TotalRequests = snapshot.TotalRequests
	stats.Errors = snapshot.FailedRequests
	stats.ErrorRate = snapshot.ErrorRate
	stats.LatencyP95 = snapshot.Latency.P95
	stats.LatencyAvg = snapshot.Latency.Mean
	stats.CurrentPhase = string(snapshot.CurrentPhase)

	return stats
}
