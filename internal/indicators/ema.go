package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/trend"
	"github.com/rs/zerolog/log"
)

// MovingAverageResult is the latest average and the price's position against it
type MovingAverageResult struct {
	Value float64 `json:"value"`
	Trend string  `json:"trend"` // "bullish", "bearish", "neutral"
}

// CalculateEMA calculates the Exponential Moving Average
func CalculateEMA(prices []float64, period int) (*MovingAverageResult, error) {
	if err := checkAveragePeriod(prices, period); err != nil {
		return nil, err
	}
	log.Debug().Int("prices_count", len(prices)).Int("period", period).Msg("Calculating EMA")

	values := collect(trend.NewEmaWithPeriod[float64](period).Compute(toChan(prices)))
	return averageResult("EMA", prices, values)
}

// CalculateSMA calculates the Simple Moving Average
func CalculateSMA(prices []float64, period int) (*MovingAverageResult, error) {
	if err := checkAveragePeriod(prices, period); err != nil {
		return nil, err
	}
	log.Debug().Int("prices_count", len(prices)).Int("period", period).Msg("Calculating SMA")

	values := collect(trend.NewSmaWithPeriod[float64](period).Compute(toChan(prices)))
	return averageResult("SMA", prices, values)
}

func checkAveragePeriod(prices []float64, period int) error {
	if len(prices) == 0 {
		return fmt.Errorf("prices array is empty")
	}
	if period < 1 || period > len(prices) {
		return fmt.Errorf("invalid period: %d (must be between 1 and %d)", period, len(prices))
	}
	return nil
}

func averageResult(name string, prices, values []float64) (*MovingAverageResult, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("no %s values calculated", name)
	}

	current := values[len(values)-1]
	currentPrice := prices[len(prices)-1]

	trendSignal := "neutral"
	if currentPrice > current {
		trendSignal = "bullish"
	} else if currentPrice < current {
		trendSignal = "bearish"
	}

	return &MovingAverageResult{Value: current, Trend: trendSignal}, nil
}
