package variables

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRange_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rng     Range
		wantErr bool
	}{
		{"default", DefaultRange, false},
		{"collapsed", Range{Min: 5, Max: 5, Step: 1}, false},
		{"fractional", Range{Min: 0.1, Max: 0.3, Step: 0.1}, false},
		{"min above max", Range{Min: 10, Max: 1, Step: 1}, true},
		{"zero step", Range{Min: 1, Max: 10, Step: 0}, true},
		{"negative step", Range{Min: 1, Max: 10, Step: -1}, true},
		{"nan", Range{Min: math.NaN(), Max: 10, Step: 1}, true},
		{"infinite", Range{Min: 1, Max: math.Inf(1), Step: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rng.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidRange))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRange_Steps(t *testing.T) {
	tests := []struct {
		name string
		rng  Range
		want uint64
	}{
		{"rsi period sweep", Range{Min: 10, Max: 20, Step: 2}, 6},
		{"default", DefaultRange, 100},
		{"collapsed ignores step", Range{Min: 7, Max: 7, Step: 1000}, 1},
		{"step larger than span", Range{Min: 1, Max: 2, Step: 5}, 1},
		{"partial last step dropped", Range{Min: 0, Max: 10, Step: 3}, 4},
		{"float tolerant", Range{Min: 0.1, Max: 0.3, Step: 0.1}, 3},
		{"invalid has none", Range{Min: 3, Max: 1, Step: 1}, 0},
		{"beyond int32", Range{Min: 0, Max: 1e10, Step: 1}, 10_000_000_001},
		{"saturates", Range{Min: 0, Max: 1e300, Step: 1e-10}, math.MaxUint64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rng.Steps())
		})
	}
}

func TestRange_ValuesDoNotDrift(t *testing.T) {
	r := Range{Min: 0.1, Max: 1.0, Step: 0.1}

	values := r.Values()

	require.Len(t, values, 10)
	assert.Equal(t, 0.1, values[0])
	assert.Equal(t, 0.3, values[2])
	assert.Equal(t, 0.7, values[6])
	assert.Equal(t, 1.0, values[9])
}

func TestVariable_CloneIsIndependent(t *testing.T) {
	v := Variable{ID: "var_1", Name: "Var1", CurrentValue: 1, Range: &Range{Min: 1, Max: 10, Step: 1}}

	c := v.Clone()
	c.Range.Max = 99

	assert.Equal(t, 10.0, v.Range.Max)
}

func TestVariable_Optimizable(t *testing.T) {
	rng := DefaultRange
	assert.True(t, Variable{Enabled: true, Range: &rng}.Optimizable())
	assert.False(t, Variable{Enabled: false, Range: &rng}.Optimizable())
	assert.False(t, Variable{Enabled: true}.Optimizable())
}
