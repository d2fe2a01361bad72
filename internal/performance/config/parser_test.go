package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDurationString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "standard seconds", input: "30s", expected: 30 * time.Second},
		{name: "standard minutes", input: "2m", expected: 2 * time.Minute},
		{name: "milliseconds", input: "500ms", expected: 500 * time.Millisecond},
		{name: "combined duration", input: "1h30m", expected: 90 * time.Minute},
		{name: "integer as seconds", input: "30", expected: 30 * time.Second},
		{name: "surrounding space", input: " 4s ", expected: 4 * time.Second},
		{name: "empty string", input: "", expected: 0},
		{name: "invalid format", input: "abc", wantErr: true},
		{name: "trailing garbage", input: "30x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDurationString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDurationString(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.expected {
				t.Errorf("ParseDurationString(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseConfig_YAMLOverlaysDefaults(t *testing.T) {
	data := []byte(`
name: nightly
settings:
  baseUrl: https://gateway.example.com
  timeout: 10s
executor:
  stages:
    - duration: 10s
      target: 2
thresholds:
  http_req_duration: ["p(95)<1500"]
`)

	cfg, err := ParseConfig(data, "run.yaml", DefaultLoadConfig())
	require.NoError(t, err)

	assert.Equal(t, "nightly", cfg.Name)
	assert.Equal(t, "https://gateway.example.com", cfg.Settings.BaseURL)
	assert.Equal(t, 10*time.Second, time.Duration(cfg.Settings.Timeout))

	require.NotNil(t, cfg.Executor)
	assert.Equal(t, "ramping-vus", cfg.Executor.Executor, "executor type kept from defaults")
	assert.Equal(t, []StageConfig{{Duration: "10s", Target: 2}}, cfg.Executor.Stages)
	require.NotNil(t, cfg.Executor.Pacing, "pacing kept from defaults")
	assert.Equal(t, "random", cfg.Executor.Pacing.Type)

	assert.Equal(t, []string{"p(95)<1500"}, cfg.Thresholds["http_req_duration"])
	assert.Equal(t, []string{"rate>0.5"}, cfg.Thresholds["cache_hit_rate"], "unmentioned thresholds kept")
}

func TestParseConfig_JSON(t *testing.T) {
	data := []byte(`{
		"executor": {"executor": "per-vu-iterations", "vus": 2, "iterations": 3},
		"settings": {"timeout": "5s"},
		"queries": [{"name": "q", "query": "SELECT 1", "weight": 1}]
	}`)

	cfg, err := ParseConfig(data, "run.json", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Executor.VUs)
	assert.Equal(t, int64(3), cfg.Executor.Iterations)
	assert.Equal(t, 5*time.Second, time.Duration(cfg.Settings.Timeout))
	require.Len(t, cfg.Queries, 1)
	assert.Equal(t, "SELECT 1", cfg.Queries[0].Query)
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := ParseConfig([]byte("executor: [unclosed"), "bad.yaml", nil)
	assert.Error(t, err)

	_, err = ParseConfig([]byte("{"), "bad.json", nil)
	assert.Error(t, err)
}

func TestLoadConfig_NotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadScenarios(t *testing.T) {
	dir := t.TempDir()

	list := filepath.Join(dir, "list.yaml")
	require.NoError(t, os.WriteFile(list, []byte(`
- name: a
  query: SELECT 1
  weight: 3
- name: b
  query: SELECT 2
  weight: 1
`), 0o644))

	doc := filepath.Join(dir, "doc.json")
	require.NoError(t, os.WriteFile(doc, []byte(`{"scenarios":[{"name":"c","query":"SELECT 3","weight":2}]}`), 0o644))

	scenarios, err := LoadScenarios(list)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "a", scenarios[0].Name)
	assert.Equal(t, 3, scenarios[0].Weight)

	scenarios, err = LoadScenarios(doc)
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	assert.Equal(t, "c", scenarios[0].Name)

	_, err = LoadScenarios(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestParseStages(t *testing.T) {
	stages, err := ParseStages("30s:5, 1m:10,30s:0")
	require.NoError(t, err)
	assert.Equal(t, []StageConfig{
		{Duration: "30s", Target: 5},
		{Duration: "1m", Target: 10},
		{Duration: "30s", Target: 0},
	}, stages)

	for _, bad := range []string{"", "30s", "xx:5", "30s:many"} {
		_, err := ParseStages(bad)
		assert.Error(t, err, bad)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := DefaultSmokeConfig()
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultTimeout, time.Duration(cfg.Settings.Timeout))
	assert.Equal(t, DefaultMaxConnsPerHost, cfg.Settings.MaxConnectionsPerHost)
	assert.Equal(t, DefaultUserAgent, cfg.Settings.UserAgent)

	setup, teardown, err := cfg.Options.Timeouts()
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, setup)
	assert.Equal(t, 60*time.Second, teardown)
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, time.Duration(d))

	require.NoError(t, d.UnmarshalJSON([]byte(`null`)))
	assert.Zero(t, d)

	assert.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))

	out, err := Duration(2 * time.Second).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
}

func TestLoadEnvironment(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		v := viper.New()
		BindEnvironment(v)
		env := LoadEnvironment(v)

		assert.Equal(t, DefaultGatewayURL, env.GatewayURL)
		assert.Equal(t, DefaultMetricsDB, env.MetricsDB)
		assert.Equal(t, DefaultDashboardURL, env.DashboardURL)
		assert.Empty(t, env.MetricsURL)
		assert.False(t, env.Debug)
	})

	t.Run("from environment", func(t *testing.T) {
		t.Setenv("AIRBRX_URL", "https://gw.example.com/")
		t.Setenv("METRICS_URL", "http://push:9091")
		t.Setenv("METRICS_DB", "k6")
		t.Setenv("DEBUG", "true")

		v := viper.New()
		BindEnvironment(v)
		env := LoadEnvironment(v)

		assert.Equal(t, "https://gw.example.com", env.GatewayURL, "trailing slash trimmed")
		assert.Equal(t, "http://push:9091", env.MetricsURL)
		assert.Equal(t, "k6", env.MetricsDB)
		assert.True(t, env.Debug)
	})

	t.Run("debug toggle", func(t *testing.T) {
		for value, want := range map[string]bool{"1": true, "yes": true, "on": true, "false": false, "0": false, "  ": false} {
			t.Setenv("DEBUG", value)

			v := viper.New()
			BindEnvironment(v)
			assert.Equal(t, want, LoadEnvironment(v).Debug, "DEBUG=%q", value)
		}
	})

	t.Run("influx aliases", func(t *testing.T) {
		t.Setenv("INFLUXDB_URL", "http://influx:8086")
		t.Setenv("INFLUXDB_DB", "legacy")

		v := viper.New()
		BindEnvironment(v)
		env := LoadEnvironment(v)

		assert.Equal(t, "http://influx:8086", env.MetricsURL)
		assert.Equal(t, "legacy", env.MetricsDB)
	})
}
