package strategy

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratforge/internal/indicators"
	"github.com/ajitpratap0/stratforge/internal/variables"
)

const legacyYAML = `
metadata:
  schema_version: "1.0"
  name: Legacy RSI
variables:
  - id: var_1
    name: Period
    current_value: 14
    enabled: true
    range: {min: 10, max: 20, step: 2}
entry_rules:
  logic: and
  conditions:
    - left:
        kind: RSI
        parameters:
          period: {type: variable, variable_id: var_1, variable_name: OldName}
      operator: "<"
      right: {kind: number, value: 30}
exit_rules:
  logic: or
  conditions: []
risk:
  stop_loss: {enabled: true, type: percent, value: 2}
  take_profit: {enabled: false, type: percent, value: 0}
`

func TestExport_YAML(t *testing.T) {
	s := newTestStrategy(t)

	data, err := Export(s, DefaultExportOptions())
	require.NoError(t, err)

	out := string(data)
	assert.True(t, strings.HasPrefix(out, "# Stratforge Strategy"))
	assert.Contains(t, out, "schema_version: \"1.1\"")
	assert.Contains(t, out, "variable_id: var_2")
	assert.Contains(t, out, "label: RSI(RSIPeriod)")
}

func TestExport_JSON(t *testing.T) {
	s := newTestStrategy(t)

	data, err := Export(s, ExportOptions{Format: FormatJSON, IncludeMetadata: true})
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	risk := raw["risk"].(map[string]interface{})
	stop := risk["stop_loss"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{
		"type":          "variable",
		"variable_id":   "var_2",
		"variable_name": "StopLoss",
	}, stop["value"])

	takeProfit := risk["take_profit"].(map[string]interface{})
	assert.Equal(t, 5.0, takeProfit["value"])
}

func TestExport_Errors(t *testing.T) {
	_, err := Export(nil, DefaultExportOptions())
	assert.Error(t, err)

	_, err = Export(NewDefaultStrategy("x"), ExportOptions{Format: "toml"})
	assert.Error(t, err)
}

func TestExport_DoesNotModifyOriginal(t *testing.T) {
	s := newTestStrategy(t)
	s.Variables[0].Name = "Renamed"
	before := s.EntryRules.Conditions[0].Left.Label

	_, err := Export(s, DefaultExportOptions())
	require.NoError(t, err)
	assert.Equal(t, before, s.EntryRules.Conditions[0].Left.Label)
}

func TestRoundTrip_YAML(t *testing.T) {
	s := newTestStrategy(t)
	s.ExitRules.Conditions[0].Right = Indicator(indicators.New(indicators.KindEMA))

	data, err := Export(s, DefaultExportOptions())
	require.NoError(t, err)

	imported, err := Import(data, ImportOptions{ValidateStrict: true})
	require.NoError(t, err)

	assert.Equal(t, s.Metadata.ID, imported.Metadata.ID)
	assert.Equal(t, s.Variables, imported.Variables)
	assert.Equal(t, s.References(), imported.References())
	assert.Equal(t, "RSI(RSIPeriod)", imported.EntryRules.Conditions[0].Left.Label)
	require.NotNil(t, imported.ExitRules.Conditions[0].Right.Indicator)
	assert.Equal(t, indicators.KindEMA, imported.ExitRules.Conditions[0].Right.Indicator.Kind)
}

func TestRoundTrip_JSON(t *testing.T) {
	s := newTestStrategy(t)
	threshold := variables.Variable{ID: "var_3", Name: "Oversold", CurrentValue: 30}
	s.Variables = append(s.Variables, threshold)
	s.EntryRules.Conditions[0].Right = Variable(threshold)

	data, err := Export(s, ExportOptions{Format: FormatJSON})
	require.NoError(t, err)

	imported, err := Import(data, DefaultImportOptions())
	require.NoError(t, err)

	assert.NotEqual(t, s.Metadata.ID, imported.Metadata.ID, "import generates a new id")
	right := imported.EntryRules.Conditions[0].Right
	assert.Equal(t, CompareVariable, right.Kind)
	assert.Equal(t, "var_3", right.Value.VariableID())
	assert.Equal(t, s.References(), imported.References())
}

func TestImport_LegacyDocumentIsMigrated(t *testing.T) {
	s, err := Import([]byte(legacyYAML), DefaultImportOptions())
	require.NoError(t, err)

	assert.Equal(t, SchemaVersion, s.Metadata.SchemaVersion)
	assert.Equal(t, "import", s.Metadata.Source)
	assert.Equal(t, SizingPercentEquity, s.Risk.PositionSizing.Method)

	left := s.EntryRules.Conditions[0].Left
	assert.Equal(t, indicators.KindRSI, left.Kind)
	assert.Equal(t, "RSI(Period)", left.Label)
	ref, ok := rsiPeriod(t, left).Reference()
	require.True(t, ok)
	assert.Equal(t, "Period", ref.DisplayName)

	params := left.Parameters.(*indicators.RSIParams)
	assert.Equal(t, indicators.SourceClose, params.Source)
}

func TestImport_InvalidData(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"malformed json", `{"metadata": `},
		{"malformed yaml", "metadata: [unclosed"},
		{"unknown indicator parameter", `{"metadata":{"schema_version":"1.1","name":"x"},"entry_rules":{"logic":"and","conditions":[{"left":{"kind":"rsi","parameters":{"length":3}},"operator":"<","right":{"kind":"number","value":1}}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import([]byte(tt.data), DefaultImportOptions())
			assert.Error(t, err)
		})
	}
}

func TestImport_ValidationFailure(t *testing.T) {
	s := NewDefaultStrategy("Bad")
	s.Risk.PositionSizing.Method = "all_in"
	data, err := Export(s, ExportOptions{Format: FormatJSON})
	require.NoError(t, err)

	_, err = Import(data, DefaultImportOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk.position_sizing.method")

	quick, err := Import(data, ImportOptions{ValidateStrict: false})
	require.NoError(t, err)
	assert.Equal(t, "Bad", quick.Metadata.Name)
}

func TestImport_OverrideMetadata(t *testing.T) {
	data, err := Export(NewDefaultStrategy("Original"), DefaultExportOptions())
	require.NoError(t, err)

	s, err := Import(data, ImportOptions{
		ValidateStrict:   true,
		OverrideMetadata: &Metadata{Name: "Renamed", Tags: []string{"shared"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", s.Metadata.Name)
	assert.Equal(t, []string{"shared"}, s.Metadata.Tags)
}

func TestExportImportFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "strategy.json")

	s := newTestStrategy(t)
	require.NoError(t, ExportToFile(s, path, ExportOptions{}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data), "extension selects JSON")

	imported, err := ImportFromFile(path, DefaultImportOptions())
	require.NoError(t, err)
	assert.Equal(t, s.Metadata.Name, imported.Metadata.Name)

	_, err = ImportFromFile(filepath.Join(dir, "missing.yaml"), DefaultImportOptions())
	assert.Error(t, err)
}

func TestImportFromReader(t *testing.T) {
	s, err := ImportFromReader(strings.NewReader(legacyYAML), DefaultImportOptions())
	require.NoError(t, err)
	assert.Equal(t, "Legacy RSI", s.Metadata.Name)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFromPath("a/b.json"))
	assert.Equal(t, FormatYAML, FormatFromPath("a/b.yml"))
	assert.Equal(t, FormatYAML, FormatFromPath("a/b"))
}

func TestClone(t *testing.T) {
	s := newTestStrategy(t)

	c, err := Clone(s)
	require.NoError(t, err)
	assert.NotEqual(t, s.Metadata.ID, c.Metadata.ID)
	assert.Equal(t, "clone", c.Metadata.Source)
	assert.Equal(t, s.References(), c.References())

	_, err = Clone(nil)
	assert.Error(t, err)
}
