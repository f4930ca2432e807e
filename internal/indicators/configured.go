package indicators

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/stratforge/internal/variables"
)

// ConfiguredIndicator is an indicator kind with concrete parameters and the
// label derived from them. Label is only written by this package.
type ConfiguredIndicator struct {
	Kind       Kind
	Parameters Parameters
	Label      string
}

// New returns an indicator of kind with default parameters and a fresh label
func New(kind Kind) ConfiguredIndicator {
	params := DefaultParameters(kind)
	return ConfiguredIndicator{
		Kind:       kind,
		Parameters: params,
		Label:      GenerateLabel(kind, params, nil),
	}
}

// NewWithParameters returns an indicator with the given parameters and label
func NewWithParameters(params Parameters, names variables.Lookup) ConfiguredIndicator {
	return ConfiguredIndicator{
		Kind:       params.Kind(),
		Parameters: params,
		Label:      GenerateLabel(params.Kind(), params, names),
	}
}

// SetParameters replaces the parameters and regenerates the label
func (c *ConfiguredIndicator) SetParameters(params Parameters, names variables.Lookup) error {
	if params.Kind() != c.Kind {
		return fmt.Errorf("parameters for %s cannot configure %s", params.Kind(), c.Kind)
	}
	c.Parameters = params
	c.RefreshLabel(names)
	return nil
}

// SetParameter sets one numeric parameter by name and regenerates the label
func (c *ConfiguredIndicator) SetParameter(name string, v variables.Value, names variables.Lookup) error {
	for _, f := range c.params().Fields() {
		if f.Name == name {
			*f.Value = v
			c.RefreshLabel(names)
			return nil
		}
	}
	return fmt.Errorf("%s has no parameter %q", c.Kind, name)
}

// RefreshLabel recomputes the label from the current parameters
func (c *ConfiguredIndicator) RefreshLabel(names variables.Lookup) {
	c.Label = GenerateLabel(c.Kind, c.params(), names)
}

// Clone returns an independent copy
func (c ConfiguredIndicator) Clone() ConfiguredIndicator {
	c.Parameters = c.params().Clone()
	return c
}

func (c *ConfiguredIndicator) params() Parameters {
	if c.Parameters == nil {
		c.Parameters = DefaultParameters(c.Kind)
	}
	return c.Parameters
}

type configuredWire struct {
	Kind       Kind            `json:"kind"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Label      string          `json:"label,omitempty"`
}

// MarshalJSON writes {kind, parameters, label}
func (c ConfiguredIndicator) MarshalJSON() ([]byte, error) {
	params := c.Parameters
	if params == nil {
		params = DefaultParameters(c.Kind)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(configuredWire{Kind: c.Kind, Parameters: raw, Label: c.Label})
}

// UnmarshalJSON decodes parameters into the record type of kind. The stored
// label is kept as read; callers refresh it against their registry.
func (c *ConfiguredIndicator) UnmarshalJSON(data []byte) error {
	var w configuredWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind := Normalize(string(w.Kind))
	if kind == "" {
		return fmt.Errorf("indicator kind is required")
	}
	params, err := DecodeParameters(kind, w.Parameters)
	if err != nil {
		return err
	}
	c.Kind = kind
	c.Parameters = params
	c.Label = w.Label
	if c.Label == "" {
		c.Label = GenerateLabel(kind, params, nil)
	}
	return nil
}

type configuredYAML struct {
	Kind       Kind       `yaml:"kind"`
	Parameters *yaml.Node `yaml:"parameters,omitempty"`
	Label      string     `yaml:"label,omitempty"`
}

// MarshalYAML mirrors MarshalJSON
func (c ConfiguredIndicator) MarshalYAML() (interface{}, error) {
	params := c.Parameters
	if params == nil {
		params = DefaultParameters(c.Kind)
	}
	var node yaml.Node
	if err := node.Encode(params); err != nil {
		return nil, err
	}
	return configuredYAML{Kind: c.Kind, Parameters: &node, Label: c.Label}, nil
}

// UnmarshalYAML mirrors UnmarshalJSON
func (c *ConfiguredIndicator) UnmarshalYAML(node *yaml.Node) error {
	var w configuredYAML
	if err := node.Decode(&w); err != nil {
		return err
	}
	kind := Normalize(string(w.Kind))
	if kind == "" {
		return fmt.Errorf("indicator kind is required")
	}
	params, err := DecodeParametersYAML(kind, w.Parameters)
	if err != nil {
		return err
	}
	c.Kind = kind
	c.Parameters = params
	c.Label = w.Label
	if c.Label == "" {
		c.Label = GenerateLabel(kind, params, nil)
	}
	return nil
}
