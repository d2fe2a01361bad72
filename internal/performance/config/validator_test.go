package config

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/brxload/internal/performance/selector"
)

func TestValidate_Defaults(t *testing.T) {
	if err := DefaultLoadConfig().Validate(nil); err != nil {
		t.Errorf("DefaultLoadConfig().Validate() = %v", err)
	}
	if err := DefaultSmokeConfig().Validate(nil); err != nil {
		t.Errorf("DefaultSmokeConfig().Validate() = %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TestConfig)
		field  string
	}{
		{"missing executor", func(c *TestConfig) { c.Executor = nil }, "executor"},
		{"unknown executor", func(c *TestConfig) { c.Executor.Executor = "constant-arrival-rate" }, "executor.executor"},
		{"no stages", func(c *TestConfig) { c.Executor.Stages = nil }, "executor.stages"},
		{"bad stage duration", func(c *TestConfig) { c.Executor.Stages[0].Duration = "soon" }, "executor.stages[0].duration"},
		{"zero stage duration", func(c *TestConfig) { c.Executor.Stages[0].Duration = "0s" }, "executor.stages[0].duration"},
		{"negative target", func(c *TestConfig) { c.Executor.Stages[1].Target = -1 }, "executor.stages[1].target"},
		{"pacing min > max", func(c *TestConfig) { c.Executor.Pacing.Min = "5s" }, "executor.pacing"},
		{"pacing type", func(c *TestConfig) { c.Executor.Pacing.Type = "poisson" }, "executor.pacing.type"},
		{"bad url", func(c *TestConfig) { c.Settings.BaseURL = "ftp://gateway" }, "settings.baseUrl"},
		{"bad gracefulStop", func(c *TestConfig) { c.Executor.GracefulStop = "later" }, "executor.gracefulStop"},
		{"bad setup timeout", func(c *TestConfig) { c.Options = &ExecutionOptions{SetupTimeout: "x"} }, "options"},
		{"zero weights", func(c *TestConfig) {
			c.Queries = []selector.Scenario{{Name: "a", Query: "SELECT 1", Weight: 0}}
		}, "queries"},
		{"duplicate query", func(c *TestConfig) {
			c.Queries = []selector.Scenario{{Name: "a", Query: "SELECT 1", Weight: 1}, {Name: "a", Query: "SELECT 2", Weight: 1}}
		}, "queries[1].name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLoadConfig()
			tt.mutate(cfg)

			err := cfg.Validate(nil)
			require.Error(t, err)

			var verrs *ValidationErrors
			require.True(t, errors.As(err, &verrs))

			fields := make([]string, 0, len(verrs.Errors))
			for _, e := range verrs.Errors {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidate_PerVUIterations(t *testing.T) {
	cfg := DefaultSmokeConfig()
	cfg.Executor.VUs = 0
	cfg.Executor.Iterations = 0

	err := cfg.Validate(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 validation errors")
}

func TestValidate_Thresholds(t *testing.T) {
	cfg := DefaultLoadConfig()
	cfg.Thresholds["checks"] = []string{"bogus"}

	var calls int
	check := func(metric, expr string) error {
		calls++
		if strings.HasPrefix(expr, "bogus") {
			return errors.New("unparseable")
		}
		return nil
	}

	err := cfg.Validate(check)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thresholds.checks[0]")
	assert.Equal(t, 4, calls)
}
