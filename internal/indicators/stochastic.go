package indicators

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// StochasticResult holds the latest %K and %D lines
type StochasticResult struct {
	K      float64 `json:"k"`
	D      float64 `json:"d"`
	Signal string  `json:"signal"` // "oversold", "overbought", "neutral"
}

// CalculateStochastic computes the slow stochastic oscillator: raw %K over
// kPeriod bars, smoothed over smooth bars, and %D as the average of %K over
// dPeriod bars
func CalculateStochastic(high, low, closePrices []float64, kPeriod, dPeriod, smooth int) (*StochasticResult, error) {
	if err := checkOHLC(high, low, closePrices); err != nil {
		return nil, err
	}
	if kPeriod < 1 || dPeriod < 1 || smooth < 1 {
		return nil, fmt.Errorf("invalid periods: k=%d, d=%d, smooth=%d", kPeriod, dPeriod, smooth)
	}
	minRequired := kPeriod + smooth + dPeriod - 2
	if len(closePrices) < minRequired {
		return nil, fmt.Errorf("insufficient data: need at least %d prices, got %d", minRequired, len(closePrices))
	}

	log.Debug().
		Int("prices_count", len(closePrices)).
		Int("k", kPeriod).
		Int("d", dPeriod).
		Int("smooth", smooth).
		Msg("Calculating Stochastic")

	raw := make([]float64, 0, len(closePrices)-kPeriod+1)
	for i := kPeriod - 1; i < len(closePrices); i++ {
		highest, lowest := high[i], low[i]
		for j := i - kPeriod + 1; j < i; j++ {
			if high[j] > highest {
				highest = high[j]
			}
			if low[j] < lowest {
				lowest = low[j]
			}
		}
		value := 50.0
		if highest != lowest {
			value = 100 * (closePrices[i] - lowest) / (highest - lowest)
		}
		raw = append(raw, value)
	}

	k := rollingMean(raw, smooth)
	d := rollingMean(k, dPeriod)
	if len(d) == 0 {
		return nil, fmt.Errorf("no Stochastic values calculated")
	}

	currentK := k[len(k)-1]
	currentD := d[len(d)-1]

	signal := "neutral"
	if currentK < 20 {
		signal = "oversold"
	} else if currentK > 80 {
		signal = "overbought"
	}

	return &StochasticResult{K: currentK, D: currentD, Signal: signal}, nil
}

// rollingMean returns the trailing average of every full window
func rollingMean(values []float64, window int) []float64 {
	if window < 1 || len(values) < window {
		return nil
	}
	out := make([]float64, 0, len(values)-window+1)
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out = append(out, sum/float64(window))
		}
	}
	return out
}
