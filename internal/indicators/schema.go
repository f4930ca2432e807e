package indicators

import (
	"fmt"

	"github.com/ajitpratap0/stratforge/internal/variables"
)

// ParameterType distinguishes numeric inputs from option lists
type ParameterType string

const (
	ParameterNumber ParameterType = "number"
	ParameterSelect ParameterType = "select"
)

// ParameterSpec describes one user-editable parameter
type ParameterSpec struct {
	Name    string        `json:"name"`
	Label   string        `json:"label"`
	Type    ParameterType `json:"type"`
	Min     float64       `json:"min,omitempty"`
	Max     float64       `json:"max,omitempty"`
	Step    float64       `json:"step,omitempty"`
	Options []string      `json:"options,omitempty"`
}

func number(name, label string, lo, hi, step float64) ParameterSpec {
	return ParameterSpec{Name: name, Label: label, Type: ParameterNumber, Min: lo, Max: hi, Step: step}
}

func sourceSpec() ParameterSpec {
	options := make([]string, len(PriceSources))
	for i, s := range PriceSources {
		options[i] = string(s)
	}
	return ParameterSpec{Name: "source", Label: "Source", Type: ParameterSelect, Options: options}
}

// Schema returns the editable parameters of kind. Unknown kinds expose a
// single period input.
func Schema(kind Kind) []ParameterSpec {
	switch kind {
	case KindRSI:
		return []ParameterSpec{number("period", "Period", 2, 100, 1), sourceSpec()}
	case KindMACD:
		return []ParameterSpec{
			number("fast", "Fast Period", 2, 50, 1),
			number("slow", "Slow Period", 5, 100, 1),
			number("signal", "Signal Period", 2, 50, 1),
			sourceSpec(),
		}
	case KindBollinger:
		return []ParameterSpec{
			number("period", "Period", 5, 100, 1),
			number("std_dev", "Std Dev", 0.5, 5, 0.1),
			sourceSpec(),
		}
	case KindSMA, KindEMA:
		return []ParameterSpec{number("period", "Period", 1, 500, 1), sourceSpec()}
	case KindADX, KindATR:
		return []ParameterSpec{number("period", "Period", 2, 100, 1)}
	case KindStochastic:
		return []ParameterSpec{
			number("k", "%K Period", 1, 100, 1),
			number("d", "%D Period", 1, 50, 1),
			number("smooth", "Smoothing", 1, 50, 1),
		}
	case KindPrice:
		return []ParameterSpec{sourceSpec()}
	case KindVolume:
		return nil
	default:
		return []ParameterSpec{number("period", "Period", 1, 500, 1)}
	}
}

// ValidateParameters checks scalar parameters against the schema bounds of
// their kind. References are checked when resolved, not here.
func ValidateParameters(params Parameters) []error {
	specs := make(map[string]ParameterSpec)
	for _, spec := range Schema(params.Kind()) {
		specs[spec.Name] = spec
	}

	var errs []error
	for _, f := range params.Fields() {
		spec, ok := specs[f.Name]
		if !ok || spec.Type != ParameterNumber {
			continue
		}
		n, scalar := f.Value.Float()
		if !scalar {
			continue
		}
		if n < spec.Min || n > spec.Max {
			errs = append(errs, fmt.Errorf("%s %s must be between %s and %s, got %s",
				params.Kind(), f.Name,
				variables.FormatNumber(spec.Min), variables.FormatNumber(spec.Max), variables.FormatNumber(n)))
		}
	}

	if s, ok := params.(Sourced); ok && !s.PriceSource().Valid() {
		errs = append(errs, fmt.Errorf("%s source %q is not a valid price source", params.Kind(), s.PriceSource()))
	}
	if m, ok := params.(*MACDParams); ok {
		fast, fastScalar := m.Fast.Float()
		slow, slowScalar := m.Slow.Float()
		if fastScalar && slowScalar && fast >= slow {
			errs = append(errs, fmt.Errorf("macd fast period (%s) must be less than slow period (%s)",
				variables.FormatNumber(fast), variables.FormatNumber(slow)))
		}
	}
	return errs
}
