package indicators

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
)

// ATRResult is the latest Average True Range
type ATRResult struct {
	Value   float64 `json:"value"`
	Percent float64 `json:"percent"` // ATR as a percentage of the last close
}

// CalculateATR calculates the Average True Range with Wilder smoothing
func CalculateATR(high, low, closePrices []float64, period int) (*ATRResult, error) {
	if err := checkOHLC(high, low, closePrices); err != nil {
		return nil, err
	}
	if period < 1 {
		return nil, fmt.Errorf("invalid period: %d (must be >= 1)", period)
	}
	if len(closePrices) < period+1 {
		return nil, fmt.Errorf("insufficient data: need at least %d prices, got %d", period+1, len(closePrices))
	}

	log.Debug().
		Int("prices_count", len(closePrices)).
		Int("period", period).
		Msg("Calculating ATR")

	n := len(closePrices)
	// the first bar has no previous close, so true range starts at index 1
	tr := make([]float64, n-1)
	for i := 1; i < n; i++ {
		tr[i-1] = math.Max(high[i]-low[i],
			math.Max(math.Abs(high[i]-closePrices[i-1]),
				math.Abs(low[i]-closePrices[i-1])))
	}

	smoothed := smoothWilder(tr, period)
	atr := smoothed[len(smoothed)-1]

	percent := 0.0
	if last := closePrices[n-1]; last != 0 {
		percent = atr / last * 100
	}

	return &ATRResult{Value: atr, Percent: percent}, nil
}
