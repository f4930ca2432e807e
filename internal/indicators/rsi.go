package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/rs/zerolog/log"
)

// RSIResult represents the RSI calculation result
type RSIResult struct {
	Value  float64 `json:"value"`
	Signal string  `json:"signal"` // "oversold", "overbought", "neutral"
}

// CalculateRSI calculates the Relative Strength Index
func CalculateRSI(prices []float64, period int) (*RSIResult, error) {
	if len(prices) == 0 {
		return nil, fmt.Errorf("prices array is empty")
	}
	if period < 1 || period > len(prices) {
		return nil, fmt.Errorf("invalid period: %d (must be between 1 and %d)", period, len(prices))
	}

	log.Debug().
		Int("prices_count", len(prices)).
		Int("period", period).
		Msg("Calculating RSI")

	rsiValues := collect(momentum.NewRsiWithPeriod[float64](period).Compute(toChan(prices)))
	if len(rsiValues) == 0 {
		return nil, fmt.Errorf("no RSI values calculated")
	}

	currentRSI := rsiValues[len(rsiValues)-1]

	signal := "neutral"
	if currentRSI < 30 {
		signal = "oversold"
	} else if currentRSI > 70 {
		signal = "overbought"
	}

	return &RSIResult{Value: currentRSI, Signal: signal}, nil
}
