// Package config provides configuration parsing and validation for load and
// smoke runs against the gateway.
package config

import (
	"strconv"
	"time"

	"github.com/wesleyorama2/brxload/internal/performance/selector"
)

// TestConfig is the root configuration for a run.
//
// Example YAML:
//
//	name: "nightly load"
//	settings:
//	  baseUrl: "https://airbrx.example.com"
//	  timeout: 30s
//	executor:
//	  executor: ramping-vus
//	  stages:
//	    - duration: 30s
//	      target: 5
//	    - duration: 2m
//	      target: 20
//	  pacing:
//	    type: random
//	    min: 1s
//	    max: 4s
//	thresholds:
//	  http_req_duration: ["p(95)<2000"]
//	  cache_hit_rate: ["rate>0.5"]
type TestConfig struct {
	// Name of the run (for reporting)
	Name string `json:"name" yaml:"name"`

	// Settings contains HTTP settings for every request
	Settings GlobalSettings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Executor defines the load profile
	Executor *ScenarioConfig `json:"executor" yaml:"executor"`

	// Queries overrides the weighted query table (load runs only)
	Queries []selector.Scenario `json:"queries,omitempty" yaml:"queries,omitempty"`

	// Smoke overrides the smoke request (smoke runs only)
	Smoke *SmokeSettings `json:"smoke,omitempty" yaml:"smoke,omitempty"`

	// Thresholds map a metric name to its pass/fail expressions
	Thresholds map[string][]string `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Options for run execution
	Options *ExecutionOptions `json:"options,omitempty" yaml:"options,omitempty"`
}

// GlobalSettings contains HTTP settings.
type GlobalSettings struct {
	// BaseURL is the gateway base URL
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// QueryPath is the gateway's query endpoint path
	QueryPath string `json:"queryPath,omitempty" yaml:"queryPath,omitempty"`

	// Origin is sent as metadata.origin in the request body
	Origin string `json:"origin,omitempty" yaml:"origin,omitempty"`

	// Timeout is the HTTP request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	MaxConnectionsPerHost int  `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`
	MaxIdleConnsPerHost   int  `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`
	InsecureSkipVerify    bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// UserAgent is the User-Agent header
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
}

// ScenarioConfig defines the executor for a run.
type ScenarioConfig struct {
	// Executor specifies the load generation strategy
	// Options: "constant-vus", "ramping-vus", "per-vu-iterations"
	Executor string `json:"executor" yaml:"executor"`

	// VUs is the number of virtual users (constant-vus, per-vu-iterations)
	VUs int `json:"vus,omitempty" yaml:"vus,omitempty"`

	// Duration is how long to run (e.g., "30s", "2m", "1h")
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Iterations per VU (per-vu-iterations)
	Iterations int64 `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	// MaxDuration bounds a per-vu-iterations run
	MaxDuration string `json:"maxDuration,omitempty" yaml:"maxDuration,omitempty"`

	// Stages defines ramping stages (ramping-vus)
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	// GracefulStop is how long to wait for iterations to finish
	GracefulStop string `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// Pacing controls time between iterations
	Pacing *PacingConfig `json:"pacing,omitempty" yaml:"pacing,omitempty"`
}

// StageConfig defines a single stage in a ramping executor.
type StageConfig struct {
	// Duration of this stage (e.g., "30s", "2m")
	Duration string `json:"duration" yaml:"duration"`

	// Target VU count
	Target int `json:"target" yaml:"target"`

	// Name is an optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// PacingConfig controls pacing between iterations.
type PacingConfig struct {
	// Type is the pacing strategy: "none", "constant", "random"
	Type string `json:"type" yaml:"type"`

	// Duration is the wait time for constant pacing
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min is the minimum wait time for random pacing
	Min string `json:"min,omitempty" yaml:"min,omitempty"`

	// Max is the maximum wait time for random pacing
	Max string `json:"max,omitempty" yaml:"max,omitempty"`
}

// SmokeSettings describes the single query a smoke run sends.
type SmokeSettings struct {
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	SQL      string `json:"sql,omitempty" yaml:"sql,omitempty"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
	Schema   string `json:"schema,omitempty" yaml:"schema,omitempty"`

	// ResponseSchema is a JSON Schema file the response body must match
	ResponseSchema string `json:"responseSchema,omitempty" yaml:"responseSchema,omitempty"`
}

// ExecutionOptions controls run execution behavior.
type ExecutionOptions struct {
	// SetupTimeout is the maximum time for setup operations
	SetupTimeout string `json:"setupTimeout,omitempty" yaml:"setupTimeout,omitempty"`

	// TeardownTimeout is the maximum time for teardown operations
	TeardownTimeout string `json:"teardownTimeout,omitempty" yaml:"teardownTimeout,omitempty"`

	// NoVUConnectionReuse gives every VU its own HTTP client
	NoVUConnectionReuse bool `json:"noVUConnectionReuse,omitempty" yaml:"noVUConnectionReuse,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Duration(d).String())), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
