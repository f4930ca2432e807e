package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateRSI(t *testing.T) {
	prices := []float64{
		44.0, 44.5, 45.0, 45.5, 46.0,
		46.5, 47.0, 47.5, 48.0, 48.5,
		49.0, 49.5, 50.0, 50.5, 51.0,
		51.5, 52.0, 52.5, 53.0, 53.5,
	}

	tests := []struct {
		name      string
		prices    []float64
		period    int
		wantError bool
	}{
		{"default period", prices, 14, false},
		{"custom period", prices, 10, false},
		{"period too large", prices, len(prices) + 1, true},
		{"period zero", prices, 0, true},
		{"empty prices", nil, 14, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CalculateRSI(tt.prices, tt.period)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.GreaterOrEqual(t, result.Value, 0.0)
			assert.LessOrEqual(t, result.Value, 100.0)
		})
	}
}

func TestRSISignals(t *testing.T) {
	tests := []struct {
		name           string
		prices         []float64
		expectedSignal string
	}{
		{
			name: "strongly bullish trend",
			prices: []float64{
				10.0, 12.0, 14.0, 16.0, 18.0, 20.0, 22.0, 24.0,
				26.0, 28.0, 30.0, 32.0, 34.0, 36.0, 38.0, 40.0,
			},
			expectedSignal: "overbought",
		},
		{
			name: "strongly bearish trend",
			prices: []float64{
				40.0, 38.0, 36.0, 34.0, 32.0, 30.0, 28.0, 26.0,
				24.0, 22.0, 20.0, 18.0, 16.0, 14.0, 12.0, 10.0,
			},
			expectedSignal: "oversold",
		},
		{
			name: "sideways market",
			prices: []float64{
				20.0, 21.0, 20.5, 20.0, 21.0, 20.5, 20.0, 21.0,
				20.5, 20.0, 21.0, 20.5, 20.0, 21.0, 20.5, 20.0,
			},
			expectedSignal: "neutral",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CalculateRSI(tt.prices, 14)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedSignal, result.Signal, "RSI %.2f", result.Value)
		})
	}
}
