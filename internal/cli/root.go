package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wesleyorama2/brxload/internal/logging"
	"github.com/wesleyorama2/brxload/internal/performance/config"
)

// Process exit codes.
const (
	ExitOK               = 0
	ExitFailure          = 1
	ExitThresholdsFailed = 99
)

// ExitError carries a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// app holds what the commands share. Tests build their own.
type app struct {
	v      *viper.Viper
	logger *log.Logger
	stdout io.Writer
	stderr io.Writer

	// signals replaces SIGINT/SIGTERM delivery when set
	signals chan os.Signal

	updateInterval time.Duration

	env     config.Environment
	noColor bool
}

func newApp() *app {
	return &app{
		v:              viper.New(),
		logger:         log.StandardLogger(),
		stdout:         os.Stdout,
		stderr:         os.Stderr,
		updateInterval: time.Second,
	}
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(newApp())
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "brxload",
		Short: "Load and smoke tests for the AirBrx query gateway",
		Long: `brxload drives simulated users against the AirBrx gateway, records
latency, error and cache metrics, and checks them against thresholds.

Environment:
  AIRBRX_URL       gateway base URL (default http://localhost:8080)
  METRICS_URL      Pushgateway URL; results are pushed at the end of a run
  METRICS_DB       Pushgateway job name (default brxload)
  METRICS_LISTEN   serve /metrics on this address during the run
  DASHBOARD_URL    printed at the end of a run
  DEBUG            log every query, not only failures

A run whose thresholds fail exits with status 99.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.env = config.LoadEnvironment(a.v)
			return logging.Configure(a.logger, a.env.LogLevel, a.env.LogFormat, a.env.Debug, a.stderr)
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.String("url", "", "Gateway base URL (env AIRBRX_URL)")
	flags.String("metrics-url", "", "Pushgateway URL (env METRICS_URL)")
	flags.String("metrics-db", "", "Pushgateway job name (env METRICS_DB)")
	flags.String("metrics-listen", "", "Serve Prometheus metrics on this address during the run (env METRICS_LISTEN)")
	flags.String("dashboard-url", "", "Dashboard URL printed at the end of a run (env DASHBOARD_URL)")
	flags.Bool("debug", false, "Log every query and check (env DEBUG)")
	flags.String("log-level", "", "Log level: debug, info, warn, error (env LOG_LEVEL)")
	flags.String("log-format", "", "Log format: text or json (env LOG_FORMAT)")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	config.BindEnvironment(a.v)
	for key, flag := range map[string]string{
		config.KeyGatewayURL:    "url",
		config.KeyMetricsURL:    "metrics-url",
		config.KeyMetricsDB:     "metrics-db",
		config.KeyMetricsListen: "metrics-listen",
		config.KeyDashboardURL:  "dashboard-url",
		config.KeyDebug:         "debug",
		config.KeyLogLevel:      "log-level",
		config.KeyLogFormat:     "log-format",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(newLoadCommand(a))
	root.AddCommand(newSmokeCommand(a))
	root.AddCommand(newScenariosCommand(a))
	root.AddCommand(newVersionCommand())

	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	return run(NewRootCommand(), os.Stderr)
}

func run(cmd *cobra.Command, stderr io.Writer) int {
	err := cmd.Execute()
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(stderr, exitErr.Err)
		return exitErr.Code
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitFailure
}
