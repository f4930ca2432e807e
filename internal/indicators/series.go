package indicators

import "fmt"

// Series is an OHLCV price history, oldest first
type Series struct {
	Open   []float64 `json:"open,omitempty"`
	High   []float64 `json:"high,omitempty"`
	Low    []float64 `json:"low,omitempty"`
	Close  []float64 `json:"close"`
	Volume []float64 `json:"volume,omitempty"`
}

// Len returns the number of bars, taken from the close series
func (s Series) Len() int { return len(s.Close) }

// Source derives the price series selected by src
func (s Series) Source(src PriceSource) ([]float64, error) {
	if len(s.Close) == 0 {
		return nil, fmt.Errorf("close prices are required")
	}

	switch src {
	case "", SourceClose:
		return s.Close, nil
	case SourceOpen:
		return s.require("open", s.Open)
	case SourceHigh:
		return s.require("high", s.High)
	case SourceLow:
		return s.require("low", s.Low)
	case SourceHL2:
		if err := s.requireAll("high", s.High, "low", s.Low); err != nil {
			return nil, err
		}
		return s.combine(func(i int) float64 { return (s.High[i] + s.Low[i]) / 2 }), nil
	case SourceHLC3:
		if err := s.requireAll("high", s.High, "low", s.Low); err != nil {
			return nil, err
		}
		return s.combine(func(i int) float64 { return (s.High[i] + s.Low[i] + s.Close[i]) / 3 }), nil
	case SourceOHLC4:
		if err := s.requireAll("open", s.Open, "high", s.High, "low", s.Low); err != nil {
			return nil, err
		}
		return s.combine(func(i int) float64 { return (s.Open[i] + s.High[i] + s.Low[i] + s.Close[i]) / 4 }), nil
	default:
		return nil, fmt.Errorf("unknown price source %q", src)
	}
}

func (s Series) require(name string, values []float64) ([]float64, error) {
	if len(values) != len(s.Close) {
		return nil, fmt.Errorf("%s prices must have the same length as close prices", name)
	}
	return values, nil
}

// requireAll takes name/values pairs
func (s Series) requireAll(pairs ...interface{}) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if _, err := s.require(pairs[i].(string), pairs[i+1].([]float64)); err != nil {
			return err
		}
	}
	return nil
}

func (s Series) combine(f func(i int) float64) []float64 {
	out := make([]float64, len(s.Close))
	for i := range out {
		out[i] = f(i)
	}
	return out
}

// toChan feeds a slice into the channel form the indicator library consumes
func toChan(values []float64) <-chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

func collect(ch <-chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}
