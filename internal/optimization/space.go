// Package optimization expands strategy variables into a grid of concrete
// parameter assignments, dispatches them to a backtest evaluator, and ranks
// the returned metrics.
package optimization

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sort"
	"strings"

	"github.com/ajitpratap0/stratforge/internal/variables"
)

// ErrNotOptimizable is returned when a search space names a variable that is
// disabled or has no range
var ErrNotOptimizable = errors.New("variable is not optimizable")

// Assignment binds variable ids to one concrete point of the search space
type Assignment map[string]float64

// Clone returns an independent copy
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// String renders the assignment with sorted keys, e.g. "var_1=10, var_2=0.5"
func (a Assignment) String() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + variables.FormatNumber(a[k])
	}
	return strings.Join(parts, ", ")
}

// VariableRange is one dimension of the search space
type VariableRange struct {
	VariableID string  `json:"variable_id" yaml:"variable_id"`
	Name       string  `json:"name,omitempty" yaml:"name,omitempty"`
	Min        float64 `json:"min" yaml:"min"`
	Max        float64 `json:"max" yaml:"max"`
	Step       float64 `json:"step" yaml:"step"`
}

// Range converts the dimension to a variables.Range
func (r VariableRange) Range() variables.Range {
	return variables.Range{Min: r.Min, Max: r.Max, Step: r.Step}
}

// Steps returns the number of points in the dimension
func (r VariableRange) Steps() uint64 {
	return r.Range().Steps()
}

// Values materializes the dimension's points
func (r VariableRange) Values() []float64 {
	return r.Range().Values()
}

// Config describes a grid search. Variables are enumerated in order, the
// first varying slowest. MaxCombinations <= 0 means no cap.
type Config struct {
	Variables       []VariableRange `json:"variables" yaml:"variables"`
	MaxCombinations int             `json:"max_combinations,omitempty" yaml:"max_combinations,omitempty"`
}

// Validate checks each dimension's range and id uniqueness
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Variables))
	for i, v := range c.Variables {
		if v.VariableID == "" {
			return fmt.Errorf("variables[%d]: variable_id is required", i)
		}
		if _, dup := seen[v.VariableID]; dup {
			return fmt.Errorf("variables[%d]: %w: %s", i, variables.ErrDuplicateID, v.VariableID)
		}
		seen[v.VariableID] = struct{}{}
		if err := v.Range().Validate(); err != nil {
			return fmt.Errorf("variables[%d] (%s): %w", i, v.VariableID, err)
		}
	}
	if c.MaxCombinations < 0 {
		return fmt.Errorf("max_combinations must not be negative, got %d", c.MaxCombinations)
	}
	return nil
}

// WithCap returns a copy of the config with a different combination cap
func (c Config) WithCap(maxCombinations int) Config {
	c.Variables = append([]VariableRange(nil), c.Variables...)
	c.MaxCombinations = maxCombinations
	return c
}

// StepCount returns floor((max-min)/step)+1, tolerant of float error.
// min == max gives 1; an invalid range gives 0.
func StepCount(min, max, step float64) uint64 {
	return variables.Range{Min: min, Max: max, Step: step}.Steps()
}

// CountCombinations returns the product of every dimension's step count
// without enumerating anything. The product saturates at math.MaxUint64.
func CountCombinations(cfg Config) uint64 {
	total := uint64(1)
	for _, v := range cfg.Variables {
		steps := v.Steps()
		if steps == 0 {
			return 0
		}
		hi, lo := bits.Mul64(total, steps)
		if hi != 0 {
			total = math.MaxUint64
			continue
		}
		total = lo
	}
	return total
}

// VariableLister is satisfied by variables.Registry and variables.Snapshot
type VariableLister interface {
	List() []variables.Variable
}

// VariableResolver is satisfied by variables.Registry and variables.Snapshot
type VariableResolver interface {
	Variable(id string) (variables.Variable, bool)
}

// CheckEligible reports the first dimension whose variable is unknown to vars
// or not optimizable
func (c Config) CheckEligible(vars VariableResolver) error {
	for i, d := range c.Variables {
		v, ok := vars.Variable(d.VariableID)
		if !ok {
			return fmt.Errorf("variables[%d]: %w: %s", i, variables.ErrVariableNotFound, d.VariableID)
		}
		if !v.Optimizable() {
			return fmt.Errorf("variables[%d]: %w: %s (%s)", i, ErrNotOptimizable, v.ID, v.Name)
		}
	}
	return nil
}

// ConfigFromRegistry builds a config from the enabled, ranged variables of
// vars in registry order
func ConfigFromRegistry(vars VariableLister, maxCombinations int) Config {
	cfg := Config{MaxCombinations: maxCombinations}
	for _, v := range vars.List() {
		if !v.Optimizable() {
			continue
		}
		cfg.Variables = append(cfg.Variables, VariableRange{
			VariableID: v.ID,
			Name:       v.Name,
			Min:        v.Range.Min,
			Max:        v.Range.Max,
			Step:       v.Range.Step,
		})
	}
	return cfg
}
