package indicators

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/volatility"
	"github.com/rs/zerolog/log"
)

// bandMultiplier is the fixed standard deviation multiplier of the library's bands
const bandMultiplier = 2.0

// BollingerBandsResult represents the Bollinger Bands calculation result
type BollingerBandsResult struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
	Width  float64 `json:"width"`  // band width as a percentage of the middle band
	Signal string  `json:"signal"` // "buy", "sell", "neutral"
}

// CalculateBollingerBands calculates Bollinger Bands with stdDev multiplier
func CalculateBollingerBands(prices []float64, period int, stdDev float64) (*BollingerBandsResult, error) {
	if period < 2 || period > len(prices) {
		return nil, fmt.Errorf("invalid period: %d (must be between 2 and %d)", period, len(prices))
	}
	if stdDev <= 0 {
		return nil, fmt.Errorf("invalid std_dev: %g (must be > 0)", stdDev)
	}

	log.Debug().
		Int("prices_count", len(prices)).
		Int("period", period).
		Float64("std_dev", stdDev).
		Msg("Calculating Bollinger Bands")

	bandA, middleChan, bandB := volatility.NewBollingerBandsWithPeriod[float64](period).Compute(toChan(prices))

	// the outer bands are symmetric, so one of them fixes the half-width
	var aValues, middleValues []float64
	for {
		a, aok := <-bandA
		m, mok := <-middleChan
		_, bok := <-bandB
		if !aok || !mok || !bok {
			break
		}
		aValues = append(aValues, a)
		middleValues = append(middleValues, m)
	}

	if len(middleValues) == 0 {
		return nil, fmt.Errorf("no Bollinger Bands values calculated")
	}

	last := len(middleValues) - 1
	middle := middleValues[last]
	halfWidth := math.Abs(aValues[last]-middle) * stdDev / bandMultiplier
	upper := middle + halfWidth
	lower := middle - halfWidth
	currentPrice := prices[len(prices)-1]

	width := 0.0
	if middle != 0 {
		width = ((upper - lower) / middle) * 100
	}

	signal := "neutral"
	if currentPrice <= lower {
		signal = "buy"
	} else if currentPrice >= upper {
		signal = "sell"
	}

	return &BollingerBandsResult{
		Upper:  upper,
		Middle: middle,
		Lower:  lower,
		Width:  width,
		Signal: signal,
	}, nil
}
