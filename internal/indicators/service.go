package indicators

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/variables"
)

// Result is the latest output of an indicator evaluated over a series
type Result struct {
	Kind       Kind                `json:"kind"`
	Label      string              `json:"label"`
	Parameters map[string]float64  `json:"parameters"`
	Values     map[string]float64  `json:"values"`
	Signal     string              `json:"signal,omitempty"`
	Warnings   []variables.Warning `json:"warnings,omitempty"`
}

// Service evaluates configured indicators for previews
type Service struct{}

// NewService creates a new indicator service
func NewService() *Service {
	log.Info().Msg("Indicator service initialized")
	return &Service{}
}

// Compute resolves the indicator's parameters against lookup and evaluates it
// over series. Dangling references resolve to 0 and are reported in
// Result.Warnings; a period that resolves to 0 then fails validation.
func (s *Service) Compute(ctx context.Context, ci ConfiguredIndicator, lookup variables.Lookup, series Series) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params := ci.Parameters
	if params == nil {
		params = DefaultParameters(ci.Kind)
	}
	if !IsKnown(ci.Kind) {
		noteUnknown(ci.Kind, "compute")
		return nil, fmt.Errorf("cannot compute unknown indicator kind %q", ci.Kind)
	}

	resolver := variables.NewResolver(lookup)
	resolved := make(map[string]float64)
	for _, f := range params.Fields() {
		resolved[f.Name] = resolver.Resolve("parameters."+f.Name, *f.Value)
	}

	result := &Result{
		Kind:       ci.Kind,
		Label:      GenerateLabel(ci.Kind, params, lookup),
		Parameters: resolved,
		Values:     make(map[string]float64),
	}

	var source PriceSource
	if sourced, ok := params.(Sourced); ok {
		source = sourced.PriceSource()
	}

	if err := s.evaluate(ci.Kind, resolved, source, series, result); err != nil {
		return nil, err
	}
	result.Warnings = resolver.Warnings()

	log.Debug().
		Str("kind", string(ci.Kind)).
		Str("label", result.Label).
		Int("bars", series.Len()).
		Msg("Indicator computed")

	return result, nil
}

func (s *Service) evaluate(kind Kind, p map[string]float64, source PriceSource, series Series, out *Result) error {
	prices, err := series.Source(source)
	if err != nil {
		return err
	}

	switch kind {
	case KindRSI:
		period, err := intParam(p, "period")
		if err != nil {
			return err
		}
		r, err := CalculateRSI(prices, period)
		if err != nil {
			return err
		}
		out.Values["rsi"] = r.Value
		out.Signal = r.Signal

	case KindMACD:
		fast, err := intParam(p, "fast")
		if err != nil {
			return err
		}
		slow, err := intParam(p, "slow")
		if err != nil {
			return err
		}
		signal, err := intParam(p, "signal")
		if err != nil {
			return err
		}
		r, err := CalculateMACD(prices, fast, slow, signal)
		if err != nil {
			return err
		}
		out.Values["macd"] = r.MACD
		out.Values["signal"] = r.Signal
		out.Values["histogram"] = r.Histogram
		out.Signal = r.Crossover

	case KindBollinger:
		period, err := intParam(p, "period")
		if err != nil {
			return err
		}
		r, err := CalculateBollingerBands(prices, period, p["std_dev"])
		if err != nil {
			return err
		}
		out.Values["upper"] = r.Upper
		out.Values["middle"] = r.Middle
		out.Values["lower"] = r.Lower
		out.Values["width"] = r.Width
		out.Signal = r.Signal

	case KindSMA, KindEMA:
		period, err := intParam(p, "period")
		if err != nil {
			return err
		}
		calc := CalculateSMA
		if kind == KindEMA {
			calc = CalculateEMA
		}
		r, err := calc(prices, period)
		if err != nil {
			return err
		}
		out.Values[string(kind)] = r.Value
		out.Signal = r.Trend

	case KindADX:
		period, err := intParam(p, "period")
		if err != nil {
			return err
		}
		r, err := CalculateADX(series.High, series.Low, series.Close, period)
		if err != nil {
			return err
		}
		out.Values["adx"] = r.Value
		out.Signal = r.Strength

	case KindATR:
		period, err := intParam(p, "period")
		if err != nil {
			return err
		}
		r, err := CalculateATR(series.High, series.Low, series.Close, period)
		if err != nil {
			return err
		}
		out.Values["atr"] = r.Value
		out.Values["percent"] = r.Percent

	case KindStochastic:
		k, err := intParam(p, "k")
		if err != nil {
			return err
		}
		d, err := intParam(p, "d")
		if err != nil {
			return err
		}
		smooth, err := intParam(p, "smooth")
		if err != nil {
			return err
		}
		r, err := CalculateStochastic(series.High, series.Low, series.Close, k, d, smooth)
		if err != nil {
			return err
		}
		out.Values["k"] = r.K
		out.Values["d"] = r.D
		out.Signal = r.Signal

	case KindPrice:
		out.Values["price"] = prices[len(prices)-1]

	case KindVolume:
		if len(series.Volume) == 0 {
			return fmt.Errorf("volume series is required")
		}
		out.Values["volume"] = series.Volume[len(series.Volume)-1]
	}

	return nil
}

// intParam reads a whole-number period
func intParam(p map[string]float64, name string) (int, error) {
	v := p[name]
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%s must be a whole number, got %g", name, v)
	}
	if v < 1 {
		return 0, fmt.Errorf("%s must be at least 1, got %g", name, v)
	}
	return int(v), nil
}
