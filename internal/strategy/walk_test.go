package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratforge/internal/indicators"
	"github.com/ajitpratap0/stratforge/internal/variables"
)

func TestStrategy_WalkVisitsEveryValue(t *testing.T) {
	s := newTestStrategy(t)
	s.ExitRules.Conditions[0].Right = Indicator(indicators.New(indicators.KindBollinger))

	var paths []string
	s.Walk(func(path string, _ *variables.Value) {
		paths = append(paths, path)
	})

	assert.Equal(t, []string{
		"entry_rules.conditions[0].left.parameters.period",
		"entry_rules.conditions[0].right.value",
		"exit_rules.conditions[0].left.parameters.period",
		"exit_rules.conditions[0].right.indicator.parameters.period",
		"exit_rules.conditions[0].right.indicator.parameters.std_dev",
		"risk.stop_loss.value",
		"risk.take_profit.value",
		"risk.trailing_stop.distance",
		"risk.trailing_stop.step",
		"risk.breakeven.trigger",
		"risk.breakeven.offset",
		"risk.position_sizing.value",
	}, paths)
}

func TestStrategy_WalkLeavesNilParametersUnset(t *testing.T) {
	s := NewDefaultStrategy("Bare")
	s.EntryRules.Conditions[0].Left = indicators.ConfiguredIndicator{Kind: indicators.KindRSI}

	var paths []string
	s.Walk(func(path string, _ *variables.Value) {
		paths = append(paths, path)
	})
	assert.Contains(t, paths, "entry_rules.conditions[0].left.parameters.period")
	assert.Empty(t, s.References())
	assert.True(t, s.IsConcrete())

	assert.Nil(t, s.EntryRules.Conditions[0].Left.Parameters)
}

func TestStrategy_WalkCanReplaceValues(t *testing.T) {
	s := NewDefaultStrategy("Replace")
	s.Walk(func(_ string, v *variables.Value) {
		*v = variables.Scalar(3)
	})

	n, _ := rsiPeriod(t, s.ExitRules.Conditions[0].Left).Float()
	assert.Equal(t, 3.0, n)
	n, _ = s.Risk.PositionSizing.Value.Float()
	assert.Equal(t, 3.0, n)
}

func TestStrategy_References(t *testing.T) {
	s := newTestStrategy(t)

	refs := s.References()
	assert.Equal(t, []ReferenceSite{
		{Path: "entry_rules.conditions[0].left.parameters.period", VariableID: "var_1", VariableName: "RSIPeriod"},
		{Path: "risk.stop_loss.value", VariableID: "var_2", VariableName: "StopLoss"},
	}, refs)

	s.Risk.TakeProfit.Value = variables.Ref("var_1", "RSIPeriod")
	assert.Equal(t, []string{"var_1", "var_2"}, s.ReferencedVariables())
	assert.False(t, s.IsConcrete())
}

func TestStrategy_ResolveAll(t *testing.T) {
	s := newTestStrategy(t)

	resolved, warnings := s.ResolveAll(nil)
	require.NotNil(t, resolved)
	assert.Empty(t, warnings)

	assert.True(t, resolved.Strategy.IsConcrete())
	assert.Equal(t, 14.0, resolved.Values["entry_rules.conditions[0].left.parameters.period"])
	assert.Equal(t, 2.0, resolved.Values["risk.stop_loss.value"])
	assert.Equal(t, 5.0, resolved.Values["risk.take_profit.value"])
	assert.Equal(t, "RSI(14)", resolved.Strategy.EntryRules.Conditions[0].Left.Label)

	// receiver untouched
	assert.False(t, s.IsConcrete())
	assert.Equal(t, "RSI(RSIPeriod)", s.EntryRules.Conditions[0].Left.Label)
}

func TestStrategy_ResolveAllAgainstExternalLookup(t *testing.T) {
	s := newTestStrategy(t)
	lookup := variables.NewSnapshot([]variables.Variable{
		{ID: "var_1", Name: "RSIPeriod", CurrentValue: 21},
		{ID: "var_2", Name: "StopLoss", CurrentValue: 1.5},
	})

	resolved, warnings := s.ResolveAll(lookup)
	assert.Empty(t, warnings)
	assert.Equal(t, 21.0, resolved.Values["entry_rules.conditions[0].left.parameters.period"])
	assert.Equal(t, 1.5, resolved.Values["risk.stop_loss.value"])
}

// A stop loss bound to a variable that is later deleted still evaluates: it
// resolves to 0 and exactly one warning names the stop loss path.
func TestStrategy_ResolveAll_DeletedVariable(t *testing.T) {
	s := newTestStrategy(t)
	require.NoError(t, s.RemoveVariable("var_2"))

	assert.NoError(t, s.Validate(), "dangling references are not validation errors")
	require.Len(t, s.Warnings(), 1)
	assert.Equal(t, "risk.stop_loss.value", s.Warnings()[0].Path)

	resolved, warnings := s.ResolveAll(nil)
	require.Len(t, warnings, 1)
	assert.Equal(t, "risk.stop_loss.value", warnings[0].Path)
	assert.Equal(t, "var_2", warnings[0].VariableID)
	assert.Equal(t, "StopLoss", warnings[0].VariableName)

	n, ok := resolved.Strategy.Risk.StopLoss.Value.Float()
	require.True(t, ok)
	assert.Equal(t, 0.0, n)
	assert.Equal(t, 14.0, resolved.Values["entry_rules.conditions[0].left.parameters.period"])
}

func TestStrategy_RemoveVariableUnknown(t *testing.T) {
	s := newTestStrategy(t)
	assert.ErrorIs(t, s.RemoveVariable("var_404"), variables.ErrVariableNotFound)
	assert.Len(t, s.Variables, 2)
}

func TestStrategy_DanglingReferences(t *testing.T) {
	s := newTestStrategy(t)
	assert.Empty(t, s.DanglingReferences(nil))

	only := variables.NewSnapshot([]variables.Variable{{ID: "var_1", Name: "RSIPeriod", CurrentValue: 14}})
	dangling := s.DanglingReferences(only)
	require.Len(t, dangling, 1)
	assert.Equal(t, "var_2", dangling[0].VariableID)
}

func TestStrategy_Substitute(t *testing.T) {
	s := newTestStrategy(t)

	sub, err := s.Substitute(map[string]float64{"var_1": 16})
	require.NoError(t, err)

	period := rsiPeriod(t, sub.EntryRules.Conditions[0].Left)
	n, ok := period.Float()
	require.True(t, ok)
	assert.Equal(t, 16.0, n)
	assert.Equal(t, "RSI(16)", sub.EntryRules.Conditions[0].Left.Label)
	assert.Equal(t, 16.0, sub.Variables[0].CurrentValue)

	// unassigned reference kept
	assert.Equal(t, "var_2", sub.Risk.StopLoss.Value.VariableID())

	// no residual references to assigned ids
	for _, site := range sub.References() {
		assert.NotEqual(t, "var_1", site.VariableID)
	}

	// original untouched
	assert.True(t, rsiPeriod(t, s.EntryRules.Conditions[0].Left).IsReference())
	assert.Equal(t, 14.0, s.Variables[0].CurrentValue)
}

func TestStrategy_SubstituteComparisonVariable(t *testing.T) {
	s := newTestStrategy(t)
	threshold := variables.Variable{ID: "var_3", Name: "Oversold", CurrentValue: 30}
	s.Variables = append(s.Variables, threshold)
	s.EntryRules.Conditions[0].Right = Variable(threshold)

	sub, err := s.Substitute(map[string]float64{"var_3": 25})
	require.NoError(t, err)

	right := sub.EntryRules.Conditions[0].Right
	assert.Equal(t, CompareNumber, right.Kind)
	n, ok := right.Value.Float()
	require.True(t, ok)
	assert.Equal(t, 25.0, n)
	assert.Equal(t, CompareVariable, s.EntryRules.Conditions[0].Right.Kind)
}

func TestStrategy_SubstituteErrors(t *testing.T) {
	s := newTestStrategy(t)

	_, err := s.Substitute(map[string]float64{"var_9": 1})
	assert.ErrorIs(t, err, variables.ErrVariableNotFound)

	_, err = s.Substitute(map[string]float64{"var_1": math.Inf(1)})
	assert.Error(t, err)
}

func TestStrategy_SubstituteEmptyAssignment(t *testing.T) {
	s := newTestStrategy(t)

	sub, err := s.Substitute(nil)
	require.NoError(t, err)
	assert.Equal(t, s.References(), sub.References())
}

func TestStrategy_Concretize(t *testing.T) {
	s := newTestStrategy(t)

	concrete, warnings, err := s.Concretize(map[string]float64{"var_1": 12})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.True(t, concrete.IsConcrete())

	n, _ := rsiPeriod(t, concrete.EntryRules.Conditions[0].Left).Float()
	assert.Equal(t, 12.0, n)
	n, _ = concrete.Risk.StopLoss.Value.Float()
	assert.Equal(t, 2.0, n, "unassigned references take the current value")
}

func TestStrategy_ConcretizeDangling(t *testing.T) {
	s := newTestStrategy(t)
	s.Risk.TakeProfit.Value = variables.Ref("var_gone", "Target")

	concrete, warnings, err := s.Concretize(map[string]float64{"var_1": 10})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "risk.take_profit.value", warnings[0].Path)
	assert.True(t, concrete.IsConcrete())
}

func TestStrategy_SyncReferenceNames(t *testing.T) {
	s := newTestStrategy(t)
	s.Variables[1].Name = "Stop"

	updated := s.SyncReferenceNames(s.Lookup())
	assert.Equal(t, 1, updated)

	ref, ok := s.Risk.StopLoss.Value.Reference()
	require.True(t, ok)
	assert.Equal(t, "Stop", ref.DisplayName)

	assert.Equal(t, 0, s.SyncReferenceNames(s.Lookup()))
}

func TestStrategy_RefreshLabels(t *testing.T) {
	s := newTestStrategy(t)
	s.ExitRules.Conditions[0].Right = Indicator(indicators.New(indicators.KindSMA))
	s.Variables[0].Name = "Length"

	s.RefreshLabels(s.Lookup())
	assert.Equal(t, "RSI(Length)", s.EntryRules.Conditions[0].Left.Label)
	assert.Equal(t, "SMA(20)", s.ExitRules.Conditions[0].Right.Indicator.Label)
}
