package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// ThresholdChecker validates a single threshold expression. The engine
// package supplies its parser so expressions are validated by the same code
// that evaluates them.
type ThresholdChecker func(metric, expr string) error

// Validate validates the entire configuration, reporting every problem at
// once. checkThreshold may be nil to skip threshold validation.
func (c *TestConfig) Validate(checkThreshold ThresholdChecker) error {
	errs := &ValidationErrors{}

	validateSettings(&c.Settings, errs)

	if c.Executor == nil {
		errs.Add("executor", "executor is required")
	} else {
		validateScenario("executor", c.Executor, errs)
	}

	validateQueries(c, errs)

	if checkThreshold != nil {
		for metric, exprs := range c.Thresholds {
			for i, expr := range exprs {
				if err := checkThreshold(metric, expr); err != nil {
					errs.Add(fmt.Sprintf("thresholds.%s[%d]", metric, i), err.Error())
				}
			}
		}
	}

	if c.Options != nil {
		if _, _, err := c.Options.Timeouts(); err != nil {
			errs.Add("options", err.Error())
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateScenario validates the executor configuration.
func validateScenario(prefix string, sc *ScenarioConfig, errs *ValidationErrors) {
	validExecutors := map[string]bool{
		"constant-vus":      true,
		"ramping-vus":       true,
		"per-vu-iterations": true,
	}

	if sc.Executor == "" {
		errs.Add(prefix+".executor", "executor type is required")
	} else if !validExecutors[sc.Executor] {
		errs.Add(prefix+".executor", fmt.Sprintf("unknown executor type: %s", sc.Executor))
	}

	switch sc.Executor {
	case "constant-vus":
		if sc.VUs <= 0 {
			errs.Add(prefix+".vus", "vus must be greater than 0")
		}
		if sc.Duration == "" {
			errs.Add(prefix+".duration", "duration is required for constant-vus executor")
		} else {
			validateDuration(prefix+".duration", sc.Duration, errs)
		}

	case "ramping-vus":
		if len(sc.Stages) == 0 {
			errs.Add(prefix+".stages", "at least one stage is required for ramping-vus executor")
		}

	case "per-vu-iterations":
		if sc.VUs <= 0 {
			errs.Add(prefix+".vus", "vus must be greater than 0")
		}
		if sc.Iterations <= 0 {
			errs.Add(prefix+".iterations", "iterations must be greater than 0")
		}
		validateDuration(prefix+".maxDuration", sc.MaxDuration, errs)
	}

	validateDuration(prefix+".gracefulStop", sc.GracefulStop, errs)

	if sc.Pacing != nil {
		validatePacing(prefix+".pacing", sc.Pacing, errs)
	}

	for i, stage := range sc.Stages {
		validateStage(fmt.Sprintf("%s.stages[%d]", prefix, i), &stage, errs)
	}
}

func validateDuration(field, value string, errs *ValidationErrors) {
	if value == "" {
		return
	}
	d, err := ParseDurationString(value)
	if err != nil {
		errs.Add(field, fmt.Sprintf("invalid duration: %v", err))
		return
	}
	if d < 0 {
		errs.Add(field, "duration cannot be negative")
	}
}

// validatePacing validates pacing configuration.
func validatePacing(prefix string, pacing *PacingConfig, errs *ValidationErrors) {
	switch pacing.Type {
	case "none":
	case "constant":
		if pacing.Duration == "" {
			errs.Add(prefix+".duration", "duration is required for constant pacing")
		} else {
			validateDuration(prefix+".duration", pacing.Duration, errs)
		}

	case "random":
		if pacing.Min == "" {
			errs.Add(prefix+".min", "min is required for random pacing")
		}
		if pacing.Max == "" {
			errs.Add(prefix+".max", "max is required for random pacing")
		}

		minDur, minErr := ParseDurationString(pacing.Min)
		if minErr != nil {
			errs.Add(prefix+".min", fmt.Sprintf("invalid min: %v", minErr))
		}
		maxDur, maxErr := ParseDurationString(pacing.Max)
		if maxErr != nil {
			errs.Add(prefix+".max", fmt.Sprintf("invalid max: %v", maxErr))
		}

		if minErr == nil && maxErr == nil && minDur > maxDur {
			errs.Add(prefix, "min must be less than or equal to max")
		}

	default:
		errs.Add(prefix+".type", fmt.Sprintf("invalid pacing type: %s", pacing.Type))
	}
}

// validateStage validates a single stage configuration.
func validateStage(prefix string, stage *StageConfig, errs *ValidationErrors) {
	if stage.Duration == "" {
		errs.Add(prefix+".duration", "duration is required")
	} else if d, err := ParseDurationString(stage.Duration); err != nil {
		errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
	} else if d <= 0 {
		errs.Add(prefix+".duration", "duration must be greater than 0")
	}

	if stage.Target < 0 {
		errs.Add(prefix+".target", "target cannot be negative")
	}
}

// validateQueries checks the weighted query table, when one is configured.
func validateQueries(c *TestConfig, errs *ValidationErrors) {
	if len(c.Queries) == 0 {
		return
	}

	total := 0
	seen := make(map[string]bool, len(c.Queries))
	for i, q := range c.Queries {
		prefix := fmt.Sprintf("queries[%d]", i)
		if q.Name == "" {
			errs.Add(prefix+".name", "name is required")
		} else if seen[q.Name] {
			errs.Add(prefix+".name", fmt.Sprintf("duplicate scenario name: %s", q.Name))
		}
		seen[q.Name] = true

		if strings.TrimSpace(q.Query) == "" {
			errs.Add(prefix+".query", "query is required")
		}
		if q.Weight < 0 {
			errs.Add(prefix+".weight", "weight cannot be negative")
		}
		total += q.Weight
	}

	if total <= 0 {
		errs.Add("queries", "weights must sum to a positive total")
	}
}

// validateSettings validates global settings.
func validateSettings(s *GlobalSettings, errs *ValidationErrors) {
	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		if err != nil {
			errs.Add("settings.baseUrl", fmt.Sprintf("invalid URL: %v", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs.Add("settings.baseUrl", fmt.Sprintf("unsupported scheme %q: use http or https", u.Scheme))
		}
	}

	if s.MaxConnectionsPerHost < 0 {
		errs.Add("settings.maxConnectionsPerHost", "cannot be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "cannot be negative")
	}
}
