package executor

import (
	"context"
	"math/rand"
	"time"

	"github.com/wesleyorama2/brxload/internal/performance"
)

// PacingType identifies the type of pacing.
type PacingType string

const (
	PacingNone     PacingType = "none"
	PacingConstant PacingType = "constant"
	PacingRandom   PacingType = "random"
)

// PacingConfig controls the think time between iterations.
type PacingConfig struct {
	// Type of pacing: "none", "constant", "random"
	Type PacingType `json:"type" yaml:"type"`

	// Duration for constant pacing
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min duration for random pacing (inclusive)
	Min time.Duration `json:"min,omitempty" yaml:"min,omitempty"`

	// Max duration for random pacing (exclusive)
	Max time.Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// ConstantPacing pauses d after every iteration.
func ConstantPacing(d time.Duration) *PacingConfig {
	return &PacingConfig{Type: PacingConstant, Duration: d}
}

// RandomPacing pauses a uniform duration in [min, max) after every iteration.
func RandomPacing(min, max time.Duration) *PacingConfig {
	return &PacingConfig{Type: PacingRandom, Min: min, Max: max}
}

// Validate checks the pacing bounds.
func (p *PacingConfig) Validate() error {
	switch p.Type {
	case PacingNone, "":
	case PacingConstant:
		if p.Duration < 0 {
			return &ValidationError{Field: "pacing.duration", Message: "duration must be >= 0"}
		}
	case PacingRandom:
		if p.Min < 0 {
			return &ValidationError{Field: "pacing.min", Message: "min must be >= 0"}
		}
		if p.Max < p.Min {
			return &ValidationError{Field: "pacing.max", Message: "max must be >= min"}
		}
	default:
		return &ValidationError{Field: "pacing.type", Message: "unknown pacing type: " + string(p.Type)}
	}
	return nil
}

// Next returns the next think time, drawing from r for random pacing.
func (p *PacingConfig) Next(r *rand.Rand) time.Duration {
	if p == nil {
		return 0
	}

	switch p.Type {
	case PacingConstant:
		return p.Duration
	case PacingRandom:
		diff := p.Max - p.Min
		if diff > 0 {
			return p.Min + time.Duration(r.Int63n(int64(diff)))
		}
		return p.Min
	default:
		return 0
	}
}

// wait pauses the VU for its next think time. It reports false when the
// pause was cut short by ctx or a stop request.
func (p *PacingConfig) wait(ctx context.Context, vu *performance.VirtualUser) bool {
	return vu.Pause(ctx, p.Next(vu.Rand()))
}
