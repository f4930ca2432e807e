package indicators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratforge/internal/variables"
)

func TestService_ComputeResolvesReferences(t *testing.T) {
	svc := NewService()
	reg, err := variables.NewRegistry(5, variables.Variable{ID: "var1", Name: "Len", CurrentValue: 5})
	require.NoError(t, err)

	ci := NewWithParameters(&SMAParams{Period: variables.Ref("var1", ""), Source: SourceClose}, reg)
	result, err := svc.Compute(context.Background(), ci, reg, Series{Close: sequence(1, 10)})
	require.NoError(t, err)

	assert.Equal(t, "SMA(Len)", result.Label)
	assert.Equal(t, 5.0, result.Parameters["period"])
	assert.InDelta(t, 8.0, result.Values["sma"], 1e-9)
	assert.Empty(t, result.Warnings)
}

func TestService_ComputeEveryKind(t *testing.T) {
	svc := NewService()
	bars := trendingBars(80)

	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			result, err := svc.Compute(context.Background(), New(kind), nil, bars)
			require.NoError(t, err)
			assert.NotEmpty(t, result.Values)
			assert.Equal(t, GenerateLabel(kind, nil, nil), result.Label)
		})
	}
}

func TestService_ComputeDanglingPeriodFails(t *testing.T) {
	svc := NewService()
	ci := NewWithParameters(&RSIParams{Period: variables.Ref("gone", "P"), Source: SourceClose}, nil)

	_, err := svc.Compute(context.Background(), ci, nil, trendingBars(40))
	assert.ErrorContains(t, err, "period must be at least 1")
}

func TestService_ComputeFractionalPeriod(t *testing.T) {
	svc := NewService()
	ci := NewWithParameters(&EMAParams{Period: variables.Scalar(2.5), Source: SourceClose}, nil)

	_, err := svc.Compute(context.Background(), ci, nil, trendingBars(40))
	assert.ErrorContains(t, err, "whole number")
}

func TestService_ComputeUnknownKind(t *testing.T) {
	svc := NewService()

	_, err := svc.Compute(context.Background(), New(Kind("mystery")), nil, trendingBars(40))
	assert.ErrorContains(t, err, "unknown indicator kind")
}

func TestService_ComputeCancelled(t *testing.T) {
	svc := NewService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Compute(ctx, New(KindRSI), nil, trendingBars(40))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSeries_Source(t *testing.T) {
	s := Series{
		Open:  []float64{1, 2},
		High:  []float64{4, 6},
		Low:   []float64{2, 2},
		Close: []float64{3, 4},
	}

	hl2, err := s.Source(SourceHL2)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, hl2)

	ohlc4, err := s.Source(SourceOHLC4)
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5, 3.5}, ohlc4)

	_, err = Series{Close: []float64{1}}.Source(SourceHigh)
	assert.Error(t, err)

	_, err = Series{}.Source(SourceClose)
	assert.Error(t, err)
}
