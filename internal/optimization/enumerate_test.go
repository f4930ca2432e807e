package optimization

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratforge/internal/variables"
)

func twoByFour() Config {
	return Config{Variables: []VariableRange{
		{VariableID: "a", Min: 1, Max: 3, Step: 1},
		{VariableID: "b", Min: 0.1, Max: 0.4, Step: 0.1},
	}}
}

func TestStepCount(t *testing.T) {
	tests := []struct {
		name           string
		min, max, step float64
		want           uint64
	}{
		{"rsi period", 10, 20, 2, 6},
		{"collapsed", 5, 5, 3, 1},
		{"step larger than span", 1, 2, 5, 1},
		{"float error", 0.1, 0.3, 0.1, 3},
		{"uneven end", 1, 10, 4, 3},
		{"zero step", 1, 10, 0, 0},
		{"inverted", 10, 1, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StepCount(tt.min, tt.max, tt.step))
		})
	}
}

func TestCountCombinations_SingleVariable(t *testing.T) {
	cfg := Config{Variables: []VariableRange{{VariableID: "var1", Name: "RSI_Period", Min: 10, Max: 20, Step: 2}}}
	assert.Equal(t, uint64(6), CountCombinations(cfg))

	space := Generate(cfg)
	values := make([]float64, len(space.Assignments))
	for i, a := range space.Assignments {
		values[i] = a["var1"]
	}
	assert.Equal(t, []float64{10, 12, 14, 16, 18, 20}, values)
}

func TestCountCombinations_Saturates(t *testing.T) {
	cfg := Config{}
	for i := 0; i < 8; i++ {
		cfg.Variables = append(cfg.Variables, VariableRange{VariableID: string(rune('a' + i)), Min: 0, Max: 1e6, Step: 1})
	}
	assert.Equal(t, uint64(math.MaxUint64), CountCombinations(cfg))
}

func TestCountCombinations_WideRange(t *testing.T) {
	cfg := Config{Variables: []VariableRange{{VariableID: "a", Min: 0, Max: 1e10, Step: 1}}}
	assert.Equal(t, uint64(10_000_000_001), CountCombinations(cfg))

	e := NewEnumerator(cfg.WithCap(5))
	assert.Equal(t, uint64(10_000_000_001), e.Total())
	assert.True(t, e.Truncated())
	require.ErrorIs(t, e.Warning(), ErrSearchSpaceTruncated)
	assert.Contains(t, e.Warning().Error(), "evaluating 5 of 10000000001 combinations")

	var last Assignment
	for _, a := range All(cfg.WithCap(5)) {
		last = a
	}
	assert.Equal(t, 4.0, last["a"])

	cfg.Variables = append(cfg.Variables, VariableRange{VariableID: "b", Min: 1, Max: 3, Step: 1})
	assert.Equal(t, uint64(30_000_000_003), CountCombinations(cfg))
}

func TestGenerate_FirstVariableVariesSlowest(t *testing.T) {
	space := Generate(twoByFour())

	assert.Equal(t, uint64(12), space.Total)
	assert.False(t, space.Truncated)
	assert.NoError(t, space.Warning())
	require.Len(t, space.Assignments, 12)

	// first variable slowest
	assert.Equal(t, Assignment{"a": 1, "b": 0.1}, space.Assignments[0])
	assert.Equal(t, Assignment{"a": 1, "b": 0.2}, space.Assignments[1])
	assert.Equal(t, Assignment{"a": 1, "b": 0.4}, space.Assignments[3])
	assert.Equal(t, Assignment{"a": 2, "b": 0.1}, space.Assignments[4])
	assert.Equal(t, Assignment{"a": 3, "b": 0.4}, space.Assignments[11])

	seen := make(map[string]bool)
	for _, a := range space.Assignments {
		seen[a.String()] = true
	}
	assert.Len(t, seen, 12, "assignments are distinct")
}

func TestGenerate_TruncatesToPrefix(t *testing.T) {
	full := Generate(twoByFour())
	capped := Generate(twoByFour().WithCap(5))

	assert.Equal(t, uint64(12), capped.Total)
	assert.True(t, capped.Truncated)
	require.Len(t, capped.Assignments, 5)
	assert.Equal(t, full.Assignments[:5], capped.Assignments)

	err := capped.Warning()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSearchSpaceTruncated))
	assert.Contains(t, err.Error(), "5 of 12")
}

func TestGenerate_CapAtExactSize(t *testing.T) {
	space := Generate(twoByFour().WithCap(12))
	assert.False(t, space.Truncated)
	assert.Len(t, space.Assignments, 12)
}

func TestGenerate_NoVariables(t *testing.T) {
	space := Generate(Config{})
	assert.Equal(t, uint64(1), space.Total)
	require.Len(t, space.Assignments, 1)
	assert.Empty(t, space.Assignments[0])
}

func TestGenerate_CollapsedRange(t *testing.T) {
	space := Generate(Config{Variables: []VariableRange{
		{VariableID: "a", Min: 7, Max: 7, Step: 1},
		{VariableID: "b", Min: 1, Max: 2, Step: 1},
	}})
	require.Len(t, space.Assignments, 2)
	assert.Equal(t, 7.0, space.Assignments[1]["a"])
}

func TestGenerate_NoFloatDrift(t *testing.T) {
	space := Generate(Config{Variables: []VariableRange{{VariableID: "x", Min: 0, Max: 1, Step: 0.1}}})
	require.Len(t, space.Assignments, 11)
	assert.Equal(t, 0.3, space.Assignments[3]["x"])
	assert.Equal(t, 0.7, space.Assignments[7]["x"])
	assert.Equal(t, 1.0, space.Assignments[10]["x"])
}

func TestEnumerator_StopsAtCapWithoutBuildingMore(t *testing.T) {
	cfg := Config{
		Variables: []VariableRange{
			{VariableID: "a", Min: 0, Max: 1e6, Step: 1},
			{VariableID: "b", Min: 0, Max: 1e6, Step: 1},
			{VariableID: "c", Min: 0, Max: 1e6, Step: 1},
		},
		MaxCombinations: 3,
	}
	e := NewEnumerator(cfg)
	assert.True(t, e.Truncated())
	assert.Equal(t, uint64(3), e.Len())

	var got []Assignment
	for {
		a, ok := e.Next()
		if !ok {
			break
		}
		got = append(got, a)
	}
	require.Len(t, got, 3)
	assert.Equal(t, Assignment{"a": 0, "b": 0, "c": 2}, got[2])

	_, ok := e.Next()
	assert.False(t, ok, "exhausted enumerators stay exhausted")
}

func TestEnumerator_InvalidRangeYieldsNothing(t *testing.T) {
	e := NewEnumerator(Config{Variables: []VariableRange{{VariableID: "a", Min: 2, Max: 1, Step: 1}}})
	_, ok := e.Next()
	assert.False(t, ok)
	assert.Equal(t, uint64(0), e.Total())
}

func TestAll(t *testing.T) {
	var indexes []int
	var last Assignment
	for i, a := range All(twoByFour().WithCap(6)) {
		indexes = append(indexes, i)
		last = a
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, indexes)
	assert.Equal(t, Assignment{"a": 2, "b": 0.2}, last)

	count := 0
	for range All(twoByFour()) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, twoByFour().Validate())

	dup := Config{Variables: []VariableRange{
		{VariableID: "a", Min: 1, Max: 2, Step: 1},
		{VariableID: "a", Min: 1, Max: 2, Step: 1},
	}}
	assert.ErrorIs(t, dup.Validate(), variables.ErrDuplicateID)

	bad := Config{Variables: []VariableRange{{VariableID: "a", Min: 1, Max: 2, Step: 0}}}
	assert.ErrorIs(t, bad.Validate(), variables.ErrInvalidRange)

	missing := Config{Variables: []VariableRange{{Min: 1, Max: 2, Step: 1}}}
	assert.Error(t, missing.Validate())

	assert.Error(t, Config{MaxCombinations: -1}.Validate())
}

func TestConfigFromRegistry(t *testing.T) {
	reg, err := variables.NewRegistry(10,
		variables.Variable{ID: "var_1", Name: "Period", CurrentValue: 14, Enabled: true, Range: &variables.Range{Min: 10, Max: 20, Step: 2}},
		variables.Variable{ID: "var_2", Name: "Off", CurrentValue: 1, Enabled: false, Range: &variables.Range{Min: 1, Max: 5, Step: 1}},
		variables.Variable{ID: "var_3", Name: "Fixed", CurrentValue: 3, Enabled: true},
		variables.Variable{ID: "var_4", Name: "Stop", CurrentValue: 2, Enabled: true, Range: &variables.Range{Min: 1, Max: 3, Step: 1}},
	)
	require.NoError(t, err)

	cfg := ConfigFromRegistry(reg, 100)
	assert.Equal(t, 100, cfg.MaxCombinations)
	require.Len(t, cfg.Variables, 2)
	assert.Equal(t, "var_1", cfg.Variables[0].VariableID)
	assert.Equal(t, "Period", cfg.Variables[0].Name)
	assert.Equal(t, "var_4", cfg.Variables[1].VariableID)
	assert.Equal(t, uint64(18), CountCombinations(cfg))

	assert.Equal(t, cfg, ConfigFromRegistry(reg.Snapshot(), 100))
}

func TestAssignment_String(t *testing.T) {
	a := Assignment{"var_2": 0.5, "var_1": 10}
	assert.Equal(t, "var_1=10, var_2=0.5", a.String())

	c := a.Clone()
	c["var_1"] = 1
	assert.Equal(t, 10.0, a["var_1"])
}
