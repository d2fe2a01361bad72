package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/brxload/internal/performance"
	"github.com/wesleyorama2/brxload/internal/performance/config"
	"github.com/wesleyorama2/brxload/internal/performance/engine"
	"github.com/wesleyorama2/brxload/internal/performance/executor"
	"github.com/wesleyorama2/brxload/internal/performance/exporter"
	"github.com/wesleyorama2/brxload/internal/performance/metrics"
	"github.com/wesleyorama2/brxload/internal/performance/output"
)

// runOptions are the flags shared by load and smoke.
type runOptions struct {
	configPath    string
	summaryExport string
	seed          int64
	quiet         bool

	// load
	scenariosPath string
	stages        string

	// smoke
	schemaPath string
	vus        int
	iterations int64
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML or JSON file overriding the built-in profile")
	flags.StringVar(&opts.summaryExport, "summary-export", "", "Write the run result as JSON to this file")
	flags.Int64Var(&opts.seed, "seed", 0, "Seed for scenario selection and pacing (0 = time based)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Disable live progress, print only PASSED or FAILED")
}

// workloadBuilder creates the workload for a run and reports how many query
// scenarios it draws from.
type workloadBuilder func(cfg *config.TestConfig, m *metrics.Engine, exp *exporter.Exporter) (performance.Workload, int, error)

// prepareConfig loads the config file on top of base and applies flag
// overrides.
func (a *app) prepareConfig(cmd *cobra.Command, base *config.TestConfig, opts *runOptions) (*config.TestConfig, error) {
	cfg := base
	if opts.configPath != "" {
		loaded, err := config.LoadConfig(opts.configPath, base)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cfg.Executor == nil {
		return nil, errors.New("configuration has no executor")
	}

	if opts.stages != "" {
		if cfg.Executor.Executor != string(executor.TypeRampingVUs) {
			return nil, errors.Errorf("--stages requires the %s executor, config uses %s", executor.TypeRampingVUs, cfg.Executor.Executor)
		}
		stages, err := config.ParseStages(opts.stages)
		if err != nil {
			return nil, err
		}
		cfg.Executor.Stages = stages
	}
	if opts.vus > 0 {
		cfg.Executor.VUs = opts.vus
	}
	if opts.iterations > 0 {
		cfg.Executor.Iterations = opts.iterations
	}

	// A gateway named in the config file applies unless the flag or the
	// environment names one.
	if cfg.Settings.BaseURL != "" && !cmd.Flags().Changed("url") {
		if _, ok := os.LookupEnv(config.EnvGatewayURL); !ok {
			a.env.GatewayURL = cfg.Settings.BaseURL
		}
	}
	cfg.Settings.BaseURL = a.env.GatewayURL

	config.ApplyDefaults(cfg)
	return cfg, nil
}

// runTest executes one run end to end and maps its outcome to an error.
func (a *app) runTest(cmd *cobra.Command, base *config.TestConfig, opts *runOptions, build workloadBuilder) error {
	cfg, err := a.prepareConfig(cmd, base, opts)
	if err != nil {
		return errors.Wrap(err, "loading configuration")
	}

	m := metrics.NewEngine()
	exp := exporter.New(exporter.Config{
		Listen:  a.env.MetricsListen,
		PushURL: a.env.MetricsURL,
		Job:     a.env.MetricsDB,
		Metrics: m,
		Logger:  a.logger,
	})

	workload, scenarioCount, err := build(cfg, m, exp)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Options{
		Config:        cfg,
		Env:           a.env,
		Workload:      workload,
		Metrics:       m,
		Seed:          opts.seed,
		ScenarioCount: scenarioCount,
		Hooks:         []engine.Hook{exp},
		Logger:        a.logger,
	})
	if err != nil {
		return err
	}

	console := output.NewConsole(output.ConsoleConfig{
		TestName:     eng.Name(),
		ExecutorType: string(eng.ExecutorConfig().Type),
		Writer:       a.stdout,
		Quiet:        opts.quiet,
		NoColor:      a.noColor,
	})
	console.PrintHeader()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	stopSignals := a.handleSignals(ctx, cancel, eng)
	defer stopSignals()

	result, err := a.execute(ctx, eng, console)
	if err != nil {
		return errors.Wrap(err, "run failed")
	}

	console.PrintSummary(result)

	if opts.summaryExport != "" {
		if err := output.WriteSummaryJSON(result, opts.summaryExport); err != nil {
			return err
		}
		a.logger.Infof("Summary written to %s", opts.summaryExport)
	}

	if !result.Passed {
		return &ExitError{Code: ExitThresholdsFailed, Err: errors.New("one or more thresholds failed")}
	}
	return nil
}

// execute runs the engine and reports progress until it returns.
func (a *app) execute(ctx context.Context, eng *engine.Engine, console *output.Console) (*engine.TestResult, error) {
	type outcome struct {
		result *engine.TestResult
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		result, err := eng.Run(ctx)
		done <- outcome{result, err}
	}()

	ticker := time.NewTicker(a.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case out := <-done:
			return out.result, out.err
		case <-ticker.C:
			if eng.IsRunning() {
				console.Report(output.StatsFromEngine(eng.GetMetrics(), eng.GetStats(), eng.GetProgress()))
			}
		}
	}
}

// handleSignals stops the run gracefully on the first interrupt and
// abandons in-flight iterations on the second. The returned func releases
// the handler.
func (a *app) handleSignals(ctx context.Context, cancel context.CancelFunc, eng *engine.Engine) func() {
	sigCh := a.signals
	release := func() {}
	if sigCh == nil {
		sigCh = make(chan os.Signal, 2)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		release = func() { signal.Stop(sigCh) }
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
		case <-done:
			return
		}

		a.logger.Warn("Interrupted, stopping gracefully (interrupt again to abort)")
		go func() {
			if err := eng.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.WithError(err).Warn("Graceful stop did not complete")
			}
		}()

		select {
		case <-sigCh:
			a.logger.Warn("Aborting in-flight iterations")
			cancel()
		case <-done:
		}
	}()

	return func() {
		close(done)
		release()
	}
}
