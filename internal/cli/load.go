package cli

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/brxload/internal/performance"
	"github.com/wesleyorama2/brxload/internal/performance/config"
	"github.com/wesleyorama2/brxload/internal/performance/exporter"
	"github.com/wesleyorama2/brxload/internal/performance/gateway"
	"github.com/wesleyorama2/brxload/internal/performance/metrics"
	"github.com/wesleyorama2/brxload/internal/performance/selector"
)

func newLoadCommand(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Run the weighted query load profile",
		Long: `Ramp virtual users through the load stages. Each iteration draws one
query scenario by weight, posts it to the gateway and sleeps 1-4s.

Default stages: 30s to 5 VUs, 1m to 10, 30s to 20, 2m at 20, 30s to 0.

Examples:
  brxload load
  brxload load --url https://airbrx.example.com --stages "30s:10,5m:10,30s:0"
  brxload load --config nightly.yaml --summary-export summary.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTest(cmd, config.DefaultLoadConfig(), opts, a.buildQueryWorkload(opts))
		},
	}

	addRunFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.scenariosPath, "scenarios", "", "YAML or JSON file with the weighted query table")
	cmd.Flags().StringVar(&opts.stages, "stages", "", `Stages as "duration:target,...", e.g. "30s:5,1m:10,30s:0"`)

	return cmd
}

func (a *app) buildQueryWorkload(opts *runOptions) workloadBuilder {
	return func(cfg *config.TestConfig, m *metrics.Engine, exp *exporter.Exporter) (performance.Workload, int, error) {
		scenarios, err := resolveScenarios(opts.scenariosPath, cfg)
		if err != nil {
			return nil, 0, err
		}

		sel, err := selector.New(scenarios)
		if err != nil {
			return nil, 0, errors.Wrap(err, "invalid scenario table")
		}

		workload := gateway.NewQueryWorkload(gateway.QueryConfig{
			BaseURL:   cfg.Settings.BaseURL,
			Path:      cfg.Settings.QueryPath,
			Origin:    cfg.Settings.Origin,
			UserAgent: cfg.Settings.UserAgent,
			Debug:     a.env.Debug,
			Logger:    a.logger,
			Observer:  exp,
		}, sel, m)

		return workload, len(scenarios), nil
	}
}

// resolveScenarios picks the query table: a scenarios file, then the
// config's queries, then the built-in table.
func resolveScenarios(path string, cfg *config.TestConfig) ([]selector.Scenario, error) {
	switch {
	case path != "":
		return config.LoadScenarios(path)
	case cfg != nil && len(cfg.Queries) > 0:
		return cfg.Queries, nil
	default:
		return gateway.DefaultScenarios(), nil
	}
}
