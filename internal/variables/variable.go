// Package variables implements strategy-scoped named variables, the Value
// union that lets any numeric parameter point at one, and resolution of those
// references against a registry snapshot.
package variables

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// stepEpsilon absorbs float error in (max-min)/step, e.g. (0.3-0.1)/0.1 = 1.9999999999999998
const stepEpsilon = 1e-9

// maxDecimals bounds the rounding precision derived from min/step
const maxDecimals = 10

// Range is the optimization sweep of a variable
type Range struct {
	Min  float64 `json:"min" yaml:"min"`
	Max  float64 `json:"max" yaml:"max"`
	Step float64 `json:"step" yaml:"step"`
}

// DefaultRange is applied to newly created variables
var DefaultRange = Range{Min: 1, Max: 100, Step: 1}

// Validate checks min <= max and step > 0
func (r Range) Validate() error {
	switch {
	case math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsNaN(r.Step):
		return &RangeError{Range: r, Reason: "values must be numbers"}
	case math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) || math.IsInf(r.Step, 0):
		return &RangeError{Range: r, Reason: "values must be finite"}
	case r.Min > r.Max:
		return &RangeError{Range: r, Reason: "min must be less than or equal to max"}
	case r.Step <= 0:
		return &RangeError{Range: r, Reason: "step must be greater than zero"}
	}
	return nil
}

// Steps returns floor((max-min)/step) + 1. A collapsed range (min == max)
// has exactly one step regardless of step size. Invalid ranges have zero.
// Counts beyond uint64 saturate at math.MaxUint64.
func (r Range) Steps() uint64 {
	if r.Validate() != nil {
		return 0
	}
	if r.Min == r.Max {
		return 1
	}
	n := math.Floor((r.Max-r.Min)/r.Step+stepEpsilon) + 1
	if n >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(n)
}

// ValueAt returns the i-th point of the range, computed as min + i*step and
// rounded to the precision of min and step so repeated stepping never drifts.
func (r Range) ValueAt(i uint64) float64 {
	v := r.Min + float64(i)*r.Step
	d := decimals(r.Step)
	if md := decimals(r.Min); md > d {
		d = md
	}
	p := math.Pow10(d)
	return math.Round(v*p) / p
}

// Values materializes every point of the range
func (r Range) Values() []float64 {
	n := r.Steps()
	out := make([]float64, n)
	for i := range n {
		out[i] = r.ValueAt(i)
	}
	return out
}

func decimals(f float64) int {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	idx := strings.IndexByte(s, '.')
	if idx < 0 {
		return 0
	}
	d := len(s) - idx - 1
	if d > maxDecimals {
		return maxDecimals
	}
	return d
}

// Variable is a named numeric slot owned by one strategy
type Variable struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	CurrentValue float64 `json:"current_value" yaml:"current_value"`
	Range        *Range  `json:"range,omitempty" yaml:"range,omitempty"`
	Enabled      bool    `json:"enabled" yaml:"enabled"`
}

// Optimizable reports whether the variable takes part in optimization
func (v Variable) Optimizable() bool {
	return v.Enabled && v.Range != nil
}

// Clone returns a copy that shares no memory with v
func (v Variable) Clone() Variable {
	if v.Range != nil {
		r := *v.Range
		v.Range = &r
	}
	return v
}

// Validate checks the structural invariants of a single variable
func (v Variable) Validate() error {
	if strings.TrimSpace(v.ID) == "" {
		return fmt.Errorf("variable id is required")
	}
	if strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("variable %s: name is required", v.ID)
	}
	if v.Range != nil {
		if err := v.Range.Validate(); err != nil {
			return err
		}
	}
	return nil
}
