package variables

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestValue_Discriminant(t *testing.T) {
	assert.False(t, IsReference(Scalar(14)))
	assert.False(t, IsReference(Value{}))
	assert.True(t, IsReference(Ref("var1", "RSI_Period")))

	n, ok := Scalar(14).Float()
	assert.True(t, ok)
	assert.Equal(t, 14.0, n)

	_, ok = Ref("var1", "").Float()
	assert.False(t, ok)
}

func TestValue_EqualIgnoresDisplayName(t *testing.T) {
	assert.True(t, Ref("var1", "RSI_Period").Equal(Ref("var1", "Old Name")))
	assert.False(t, Ref("var1", "X").Equal(Ref("var2", "X")))
	assert.False(t, Ref("var1", "").Equal(Scalar(0)))
	assert.True(t, Scalar(2.5).Equal(Scalar(2.5)))
}

func TestValue_WithDisplayName(t *testing.T) {
	v := Ref("var1", "Old").WithDisplayName("New")
	ref, ok := v.Reference()
	require.True(t, ok)
	assert.Equal(t, "New", ref.DisplayName)

	assert.Equal(t, Scalar(3), Scalar(3).WithDisplayName("ignored"))
}

func TestValue_String(t *testing.T) {
	assert.Equal(t, "14", Scalar(14).String())
	assert.Equal(t, "0.25", Scalar(0.25).String())
	assert.Equal(t, "RSI_Period", Ref("var1", "RSI_Period").String())
	assert.Equal(t, "var1", Ref("var1", "").String())
}

func TestValue_JSON(t *testing.T) {
	data, err := json.Marshal(Scalar(2.5))
	require.NoError(t, err)
	assert.JSONEq(t, `2.5`, string(data))

	data, err = json.Marshal(Ref("var1", "RSI_Period"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"variable","variable_id":"var1","variable_name":"RSI_Period"}`, string(data))

	var v Value
	require.NoError(t, json.Unmarshal([]byte(` 14 `), &v))
	assert.Equal(t, Scalar(14), v)

	require.NoError(t, json.Unmarshal([]byte(`{"type":"variable","variable_id":"var1","variable_name":"RSI_Period"}`), &v))
	assert.True(t, v.Equal(Ref("var1", "")))
	assert.Equal(t, "RSI_Period", v.String())
}

func TestValue_JSONAcceptsCamelCase(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte(`{"type":"variable","variableId":"var9","variableName":"Fast"}`), &v))

	ref, ok := v.Reference()
	require.True(t, ok)
	assert.Equal(t, "var9", ref.VariableID)
	assert.Equal(t, "Fast", ref.DisplayName)
}

func TestValue_JSONRejectsMalformed(t *testing.T) {
	tests := []string{
		`"fourteen"`,
		`{"type":"indicator","variable_id":"var1"}`,
		`{"type":"variable"}`,
		`[1,2]`,
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			var v Value
			assert.Error(t, json.Unmarshal([]byte(input), &v))
		})
	}
}

func TestValue_InsideStruct(t *testing.T) {
	type stopLoss struct {
		Type  string `json:"type" yaml:"type"`
		Value Value  `json:"value" yaml:"value"`
	}

	in := stopLoss{Type: "percent", Value: Ref("var1", "SL")}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out stopLoss
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, out.Value.Equal(in.Value))

	yml, err := yaml.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(yml), "variable_id: var1")

	var fromYAML stopLoss
	require.NoError(t, yaml.Unmarshal(yml, &fromYAML))
	assert.True(t, fromYAML.Value.Equal(in.Value))
	assert.Equal(t, "SL", fromYAML.Value.String())
}

func TestValue_YAMLScalar(t *testing.T) {
	var out struct {
		Period Value `yaml:"period"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("period: 21\n"), &out))
	assert.Equal(t, Scalar(21), out.Period)

	assert.Error(t, yaml.Unmarshal([]byte("period: fast\n"), &out))
}
