package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateADX(t *testing.T) {
	bars := trendingBars(50)

	for _, period := range []int{14, 10} {
		result, err := CalculateADX(bars.High, bars.Low, bars.Close, period)
		require.NoError(t, err)
		assert.Greater(t, result.Value, 0.0)
		assert.LessOrEqual(t, result.Value, 100.0)
		assert.Contains(t, []string{"weak", "strong", "very_strong"}, result.Strength)
	}
}

func TestCalculateADX_Validation(t *testing.T) {
	bars := trendingBars(50)

	_, err := CalculateADX(bars.High[:40], bars.Low, bars.Close, 14)
	assert.ErrorContains(t, err, "same length")

	_, err = CalculateADX(bars.High, bars.Low, bars.Close, 0)
	assert.Error(t, err)

	short := trendingBars(20)
	_, err = CalculateADX(short.High, short.Low, short.Close, 14)
	assert.ErrorContains(t, err, "insufficient data")
}

func TestCalculateATR(t *testing.T) {
	bars := trendingBars(30)

	result, err := CalculateATR(bars.High, bars.Low, bars.Close, 14)
	require.NoError(t, err)

	// every bar spans exactly 4 points and never gaps past the previous close
	assert.InDelta(t, 4.0, result.Value, 1e-9)
	assert.InDelta(t, 4.0/bars.Close[29]*100, result.Percent, 1e-9)

	_, err = CalculateATR(bars.High[:14], bars.Low[:14], bars.Close[:14], 14)
	assert.ErrorContains(t, err, "insufficient data")
}

func TestCalculateStochastic(t *testing.T) {
	bars := trendingBars(40)

	result, err := CalculateStochastic(bars.High, bars.Low, bars.Close, 14, 3, 3)
	require.NoError(t, err)

	// close sits 8.5 points above the window low in a 10.5 point range
	assert.InDelta(t, 100*8.5/10.5, result.K, 1e-9)
	assert.InDelta(t, result.K, result.D, 1e-9)
	assert.Equal(t, "overbought", result.Signal)

	_, err = CalculateStochastic(bars.High, bars.Low, bars.Close, 0, 3, 3)
	assert.Error(t, err)

	_, err = CalculateStochastic(bars.High[:10], bars.Low[:10], bars.Close[:10], 14, 3, 3)
	assert.ErrorContains(t, err, "insufficient data")
}
