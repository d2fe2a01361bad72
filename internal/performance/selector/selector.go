// Package selector picks query scenarios at random, proportionally to their
// configured weights.
package selector

import "github.com/pkg/errors"

// Scenario is one named query in the weighted pool.
type Scenario struct {
	Name   string `yaml:"name" json:"name"`
	Query  string `yaml:"query" json:"query"`
	Weight int    `yaml:"weight" json:"weight"`
}

// Rand is the source of randomness used by the selector and by role
// assignment. *math/rand.Rand satisfies it.
type Rand interface {
	// Float64 returns a number in [0.0, 1.0).
	Float64() float64

	// Intn returns a number in [0, n).
	Intn(n int) int
}

// Selector draws scenarios from an immutable weighted table.
//
// A Selector holds no mutable state and is safe for concurrent use as long
// as each caller supplies its own Rand.
type Selector struct {
	scenarios []Scenario
	total     int
}

// New validates the table and returns a Selector over a copy of it.
// Weights must be non-negative and sum to a positive total.
func New(scenarios []Scenario) (*Selector, error) {
	if len(scenarios) == 0 {
		return nil, errors.New("scenario table is empty")
	}

	total := 0
	for i, s := range scenarios {
		if s.Weight < 0 {
			return nil, errors.Errorf("scenario %d (%s): weight must be non-negative, got %d", i, s.Name, s.Weight)
		}
		total += s.Weight
	}
	if total <= 0 {
		return nil, errors.Errorf("scenario weights must sum to a positive total, got %d", total)
	}

	table := make([]Scenario, len(scenarios))
	copy(table, scenarios)

	return &Selector{scenarios: table, total: total}, nil
}

// Select draws one scenario.
//
// A uniform draw u*total is walked through the table in order, subtracting
// each weight, and the first scenario that brings the remainder to <= 0 is
// returned. Zero-weight scenarios are skipped. A draw outside [0, total)
// falls back to the first scenario.
func (s *Selector) Select(r Rand) Scenario {
	draw := r.Float64() * float64(s.total)
	if draw < 0 || draw >= float64(s.total) {
		return s.scenarios[0]
	}

	remaining := draw
	for _, sc := range s.scenarios {
		if sc.Weight == 0 {
			continue
		}
		remaining -= float64(sc.Weight)
		if remaining <= 0 {
			return sc
		}
	}

	return s.scenarios[0]
}

// Scenarios returns a copy of the table in order.
func (s *Selector) Scenarios() []Scenario {
	out := make([]Scenario, len(s.scenarios))
	copy(out, s.scenarios)
	return out
}

// Total returns the sum of all weights.
func (s *Selector) Total() int {
	return s.total
}

// Probability returns the selection probability of the scenario at index i.
func (s *Selector) Probability(i int) float64 {
	return float64(s.scenarios[i].Weight) / float64(s.total)
}
