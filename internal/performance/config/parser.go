package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/brxload/internal/performance/selector"
)

// Defaults shared by load and smoke runs.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultMaxConnsPerHost  = 100
	DefaultUserAgent        = "brxload/1.0"
	DefaultSetupTimeout     = 60 * time.Second
	DefaultTeardownTimeout  = 60 * time.Second
	DefaultLoadName         = "airbrx-load"
	DefaultSmokeName        = "airbrx-smoke"
	DefaultSmokeVUs         = 1
	DefaultSmokeIterations  = 5
	DefaultSmokeMaxDuration = "10m"
)

// DefaultLoadConfig returns the standard load profile: a 4m30s ramp to
// 20 VUs and back, with 1-4s of random think time.
func DefaultLoadConfig() *TestConfig {
	return &TestConfig{
		Name: DefaultLoadName,
		Executor: &ScenarioConfig{
			Executor: "ramping-vus",
			Stages: []StageConfig{
				{Duration: "30s", Target: 5, Name: "warm-up"},
				{Duration: "1m", Target: 10, Name: "ramp"},
				{Duration: "30s", Target: 20, Name: "peak"},
				{Duration: "2m", Target: 20, Name: "sustain"},
				{Duration: "30s", Target: 0, Name: "ramp-down"},
			},
			Pacing: &PacingConfig{Type: "random", Min: "1s", Max: "4s"},
		},
		Thresholds: map[string][]string{
			"http_req_duration": {"p(95)<2000"},
			"http_req_failed":   {"rate<0.05"},
			"cache_hit_rate":    {"rate>0.5"},
		},
	}
}

// DefaultSmokeConfig returns the smoke profile: one VU, five iterations,
// one second apart.
func DefaultSmokeConfig() *TestConfig {
	return &TestConfig{
		Name: DefaultSmokeName,
		Executor: &ScenarioConfig{
			Executor:    "per-vu-iterations",
			VUs:         DefaultSmokeVUs,
			Iterations:  DefaultSmokeIterations,
			MaxDuration: DefaultSmokeMaxDuration,
			Pacing:      &PacingConfig{Type: "constant", Duration: "1s"},
		},
		Smoke: &SmokeSettings{},
		Thresholds: map[string][]string{
			"http_req_duration": {"p(95)<5000"},
			"http_req_failed":   {"rate<0.1"},
		},
	}
}

// LoadConfig reads a config file and decodes it on top of base. A nil base
// decodes into an empty config.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string, base *TestConfig) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	return ParseConfig(data, path, base)
}

// ParseConfig decodes configuration data on top of base. Fields absent from
// data keep their base values; thresholds are merged per metric.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string, base *TestConfig) (*TestConfig, error) {
	config := base
	if config == nil {
		config = &TestConfig{}
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, config); err != nil {
			return nil, errors.Wrap(err, "failed to parse JSON config")
		}
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.Wrap(err, "failed to parse YAML config")
		}
	}

	return config, nil
}

// scenarioFile is the document form of a scenario file. A bare list is
// accepted as well.
type scenarioFile struct {
	Scenarios []selector.Scenario `json:"scenarios" yaml:"scenarios"`
}

// LoadScenarios reads a weighted query table from a YAML or JSON file.
func LoadScenarios(path string) ([]selector.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scenario file")
	}

	scenarios, err := ParseScenarios(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse scenario file %s", path)
	}
	return scenarios, nil
}

// ParseScenarios decodes a scenario table. YAML is a superset of JSON, so
// both formats go through the YAML decoder.
func ParseScenarios(data []byte) ([]selector.Scenario, error) {
	var list []selector.Scenario
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc scenarioFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Scenarios, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, errors.Errorf("invalid duration format: %s", s)
}

// ApplyDefaults fills the HTTP settings and options left empty.
func ApplyDefaults(config *TestConfig) {
	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = Duration(DefaultTimeout)
	}
	if config.Settings.MaxConnectionsPerHost == 0 {
		config.Settings.MaxConnectionsPerHost = DefaultMaxConnsPerHost
	}
	if config.Settings.MaxIdleConnsPerHost == 0 {
		config.Settings.MaxIdleConnsPerHost = DefaultMaxConnsPerHost
	}
	if config.Settings.UserAgent == "" {
		config.Settings.UserAgent = DefaultUserAgent
	}

	if config.Options == nil {
		config.Options = &ExecutionOptions{}
	}
	if config.Options.SetupTimeout == "" {
		config.Options.SetupTimeout = DefaultSetupTimeout.String()
	}
	if config.Options.TeardownTimeout == "" {
		config.Options.TeardownTimeout = DefaultTeardownTimeout.String()
	}
}

// Timeouts returns the parsed setup and teardown timeouts.
func (o *ExecutionOptions) Timeouts() (setup, teardown time.Duration, err error) {
	setup, teardown = DefaultSetupTimeout, DefaultTeardownTimeout
	if o == nil {
		return setup, teardown, nil
	}

	if o.SetupTimeout != "" {
		if setup, err = ParseDurationString(o.SetupTimeout); err != nil {
			return 0, 0, errors.Wrap(err, "invalid setupTimeout")
		}
	}
	if o.TeardownTimeout != "" {
		if teardown, err = ParseDurationString(o.TeardownTimeout); err != nil {
			return 0, 0, errors.Wrap(err, "invalid teardownTimeout")
		}
	}
	return setup, teardown, nil
}

// ParseStages parses the --stages flag form: "30s:5,1m:10,30s:0".
func ParseStages(s string) ([]StageConfig, error) {
	var stages []StageConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		dur, target, ok := strings.Cut(part, ":")
		if !ok {
			return nil, errors.Errorf("invalid stage %q: expected duration:target", part)
		}
		if _, err := ParseDurationString(dur); err != nil {
			return nil, errors.Wrapf(err, "invalid stage %q", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(target))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid stage %q", part)
		}

		stages = append(stages, StageConfig{Duration: strings.TrimSpace(dur), Target: n})
	}

	if len(stages) == 0 {
		return nil, errors.New("no stages given")
	}
	return stages, nil
}
