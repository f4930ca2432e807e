package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/trend"
	"github.com/rs/zerolog/log"
)

// MACDResult represents the MACD calculation result
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
	Crossover string  `json:"crossover"` // "bullish", "bearish", "none"
}

// CalculateMACD calculates the Moving Average Convergence Divergence
func CalculateMACD(prices []float64, fastPeriod, slowPeriod, signalPeriod int) (*MACDResult, error) {
	if fastPeriod < 1 || slowPeriod < 1 || signalPeriod < 1 {
		return nil, fmt.Errorf("invalid periods: fast=%d, slow=%d, signal=%d", fastPeriod, slowPeriod, signalPeriod)
	}
	if fastPeriod >= slowPeriod {
		return nil, fmt.Errorf("fast period (%d) must be less than slow period (%d)", fastPeriod, slowPeriod)
	}
	minRequired := slowPeriod + signalPeriod
	if len(prices) < minRequired {
		return nil, fmt.Errorf("insufficient data: need at least %d prices, got %d", minRequired, len(prices))
	}

	log.Debug().
		Int("prices_count", len(prices)).
		Int("fast", fastPeriod).
		Int("slow", slowPeriod).
		Int("signal", signalPeriod).
		Msg("Calculating MACD")

	macdChan, signalChan := trend.NewMacdWithPeriod[float64](fastPeriod, slowPeriod, signalPeriod).Compute(toChan(prices))

	var macdValues, signalValues []float64
	for {
		m, mok := <-macdChan
		s, sok := <-signalChan
		if !mok || !sok {
			break
		}
		macdValues = append(macdValues, m)
		signalValues = append(signalValues, s)
	}

	if len(macdValues) == 0 {
		return nil, fmt.Errorf("no MACD values calculated")
	}

	currentMACD := macdValues[len(macdValues)-1]
	currentSignal := signalValues[len(signalValues)-1]
	currentHistogram := currentMACD - currentSignal

	crossover := "none"
	if len(macdValues) >= 2 {
		prevHistogram := macdValues[len(macdValues)-2] - signalValues[len(signalValues)-2]
		if prevHistogram <= 0 && currentHistogram > 0 {
			crossover = "bullish"
		}
		if prevHistogram >= 0 && currentHistogram < 0 {
			crossover = "bearish"
		}
	}

	return &MACDResult{
		MACD:      currentMACD,
		Signal:    currentSignal,
		Histogram: currentHistogram,
		Crossover: crossover,
	}, nil
}
