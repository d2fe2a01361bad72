package executor

import (
	"context"

	"github.com/pkg/errors"

	"github.com/wesleyorama2/brxload/internal/performance/config"
)

// NewExecutor creates a new executor of the specified type.
//
// Supported types:
//   - "constant-vus" - Fixed number of VUs for a duration
//   - "ramping-vus" - VU count ramps up/down according to stages
//   - "per-vu-iterations" - Each VU runs a fixed number of iterations
//
// Returns an uninitialized executor. Call Init() before Run().
func NewExecutor(executorType Type) (Executor, error) {
	switch executorType {
	case TypeConstantVUs:
		return NewConstantVUs(), nil
	case TypeRampingVUs:
		return NewRampingVUs(), nil
	case TypePerVUIterations:
		return NewPerVUIterations(), nil
	default:
		return nil, errors.Errorf("unknown executor type: %s", executorType)
	}
}

// CreateAndInitExecutor creates and initializes an executor with the given config.
func CreateAndInitExecutor(ctx context.Context, cfg *Config) (Executor, error) {
	exec, err := NewExecutor(cfg.Type)
	if err != nil {
		return nil, err
	}

	if err := exec.Init(ctx, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to initialize executor")
	}

	return exec, nil
}

// CreateExecutorFromScenarioConfig creates and initializes an executor from
// its file form.
func CreateExecutorFromScenarioConfig(ctx context.Context, name string, sc *config.ScenarioConfig) (Executor, *Config, error) {
	execConfig, err := ConvertScenarioConfig(name, sc)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to convert executor config")
	}

	exec, err := CreateAndInitExecutor(ctx, execConfig)
	if err != nil {
		return nil, nil, err
	}

	return exec, execConfig, nil
}

// ConvertScenarioConfig parses the string durations of sc into a Config.
func ConvertScenarioConfig(name string, sc *config.ScenarioConfig) (*Config, error) {
	cfg := &Config{
		Name:       name,
		Type:       Type(sc.Executor),
		VUs:        sc.VUs,
		Iterations: sc.Iterations,
	}

	var err error
	if cfg.Duration, err = config.ParseDurationString(sc.Duration); err != nil {
		return nil, errors.Wrap(err, "invalid duration")
	}
	if cfg.MaxDuration, err = config.ParseDurationString(sc.MaxDuration); err != nil {
		return nil, errors.Wrap(err, "invalid maxDuration")
	}
	if cfg.GracefulStop, err = config.ParseDurationString(sc.GracefulStop); err != nil {
		return nil, errors.Wrap(err, "invalid gracefulStop")
	}

	for _, stage := range sc.Stages {
		stageDur, err := config.ParseDurationString(stage.Duration)
		if err != nil {
			return nil, errors.Wrap(err, "invalid stage duration")
		}
		cfg.Stages = append(cfg.Stages, Stage{
			Duration: stageDur,
			Target:   stage.Target,
			Name:     stage.Name,
		})
	}

	if sc.Pacing != nil {
		cfg.Pacing = &PacingConfig{Type: PacingType(sc.Pacing.Type)}
		if cfg.Pacing.Duration, err = config.ParseDurationString(sc.Pacing.Duration); err != nil {
			return nil, errors.Wrap(err, "invalid pacing duration")
		}
		if cfg.Pacing.Min, err = config.ParseDurationString(sc.Pacing.Min); err != nil {
			return nil, errors.Wrap(err, "invalid pacing min")
		}
		if cfg.Pacing.Max, err = config.ParseDurationString(sc.Pacing.Max); err != nil {
			return nil, errors.Wrap(err, "invalid pacing max")
		}
	}

	return cfg, nil
}

// IsValidExecutorType returns true if the type is a valid executor type.
func IsValidExecutorType(executorType string) bool {
	switch Type(executorType) {
	case TypeConstantVUs, TypeRampingVUs, TypePerVUIterations:
		return true
	default:
		return false
	}
}

// GetSupportedExecutors returns a list of all supported executor types.
func GetSupportedExecutors() []Type {
	return []Type{
		TypeConstantVUs,
		TypeRampingVUs,
		TypePerVUIterations,
	}
}

// ExecutorDescription provides documentation for an executor type.
type ExecutorDescription struct {
	Type        Type
	Name        string
	Description string
	UseCases    []string
}

// GetExecutorDescription returns documentation for an executor type.
func GetExecutorDescription(executorType Type) *ExecutorDescription {
	switch executorType {
	case TypeConstantVUs:
		return &ExecutorDescription{
			Type:        TypeConstantVUs,
			Name:        "Constant VUs",
			Description: "Runs a fixed number of VUs for a specified duration. Each VU loops as fast as its think time allows.",
			UseCases: []string{
				"Soak testing the gateway cache",
				"Measuring latency for N concurrent analysts",
			},
		}
	case TypeRampingVUs:
		return &ExecutorDescription{
			Type:        TypeRampingVUs,
			Name:        "Ramping VUs",
			Description: "Ramps VU count up and down according to stages. Smoothly interpolates between stage targets.",
			UseCases: []string{
				"The standard load profile",
				"Finding the concurrency at which the gateway degrades",
			},
		}
	case TypePerVUIterations:
		return &ExecutorDescription{
			Type:        TypePerVUIterations,
			Name:        "Per-VU Iterations",
			Description: "Each VU runs an exact number of iterations, bounded by maxDuration.",
			UseCases: []string{
				"Smoke testing a deployment",
				"Reproducing a fixed request sequence",
			},
		}
	default:
		return nil
	}
}
