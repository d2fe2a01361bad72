package cli

import (
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/brxload/internal/performance"
	"github.com/wesleyorama2/brxload/internal/performance/config"
	"github.com/wesleyorama2/brxload/internal/performance/exporter"
	"github.com/wesleyorama2/brxload/internal/performance/gateway"
	"github.com/wesleyorama2/brxload/internal/performance/metrics"
	"github.com/wesleyorama2/brxload/pkg/jsonschema"
)

func newSmokeCommand(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Check that the gateway answers a fixed query",
		Long: `Post one fixed query per iteration (1 VU x 5 iterations, 1s apart by
default) and check that every response is a 200 with a body.

Examples:
  brxload smoke
  brxload smoke --url https://airbrx.example.com --iterations 20
  brxload smoke --schema response.schema.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTest(cmd, config.DefaultSmokeConfig(), opts, a.buildSmokeWorkload(opts))
		},
	}

	addRunFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.schemaPath, "schema", "", "JSON Schema file every response body must match")
	cmd.Flags().IntVar(&opts.vus, "vus", 0, "Number of virtual users (default 1)")
	cmd.Flags().Int64Var(&opts.iterations, "iterations", 0, "Iterations per virtual user (default 5)")

	return cmd
}

func (a *app) buildSmokeWorkload(opts *runOptions) workloadBuilder {
	return func(cfg *config.TestConfig, m *metrics.Engine, _ *exporter.Exporter) (performance.Workload, int, error) {
		smoke := config.SmokeSettings{}
		if cfg.Smoke != nil {
			smoke = *cfg.Smoke
		}

		schemaPath := smoke.ResponseSchema
		if opts.schemaPath != "" {
			schemaPath = opts.schemaPath
		}

		var schema *jsonschema.Schema
		if schemaPath != "" {
			compiled, err := jsonschema.CompileFile(schemaPath)
			if err != nil {
				return nil, 0, err
			}
			schema = compiled
		}

		workload := gateway.NewSmokeWorkload(gateway.SmokeConfig{
			BaseURL:        cfg.Settings.BaseURL,
			Path:           smoke.Path,
			SQL:            smoke.SQL,
			Database:       smoke.Database,
			Schema:         smoke.Schema,
			UserAgent:      cfg.Settings.UserAgent,
			ResponseSchema: schema,
			Debug:          a.env.Debug,
			Logger:         a.logger,
		}, m)

		return workload, 1, nil
	}
}
