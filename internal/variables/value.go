package variables

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// referenceType is the wire discriminant of a reference object
const referenceType = "variable"

// Reference points at a variable by id. DisplayName is a cached hint for
// rendering; it never takes part in resolution or equality.
type Reference struct {
	VariableID  string
	DisplayName string
}

// Value is either a literal number or a Reference. The zero Value is Scalar(0).
type Value struct {
	ref    *Reference
	scalar float64
}

// Scalar returns a literal Value
func Scalar(n float64) Value {
	return Value{scalar: n}
}

// Ref returns a Value referencing the variable with the given id
func Ref(variableID, displayName string) Value {
	return Value{ref: &Reference{VariableID: variableID, DisplayName: displayName}}
}

// RefTo returns a reference to v carrying v's current name
func RefTo(v Variable) Value {
	return Ref(v.ID, v.Name)
}

// IsReference is the discriminant test
func IsReference(v Value) bool {
	return v.ref != nil
}

// IsReference reports whether v points at a variable
func (v Value) IsReference() bool {
	return v.ref != nil
}

// Float returns the literal number and true for scalars
func (v Value) Float() (float64, bool) {
	if v.ref != nil {
		return 0, false
	}
	return v.scalar, true
}

// Reference returns the reference and true for references
func (v Value) Reference() (Reference, bool) {
	if v.ref == nil {
		return Reference{}, false
	}
	return *v.ref, true
}

// VariableID returns the referenced id, or "" for scalars
func (v Value) VariableID() string {
	if v.ref == nil {
		return ""
	}
	return v.ref.VariableID
}

// WithDisplayName returns a copy of a reference with a refreshed name hint.
// Scalars are returned unchanged.
func (v Value) WithDisplayName(name string) Value {
	if v.ref == nil {
		return v
	}
	return Ref(v.ref.VariableID, name)
}

// Equal compares scalars by value and references by variable id only
func (v Value) Equal(other Value) bool {
	if v.IsReference() != other.IsReference() {
		return false
	}
	if v.ref != nil {
		return v.ref.VariableID == other.ref.VariableID
	}
	return v.scalar == other.scalar
}

// String renders scalars as numbers and references as their cached name
func (v Value) String() string {
	if v.ref != nil {
		if v.ref.DisplayName != "" {
			return v.ref.DisplayName
		}
		return v.ref.VariableID
	}
	return FormatNumber(v.scalar)
}

// FormatNumber renders n without trailing zeros
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// referenceWire is the serialized shape of a reference. The camelCase keys are
// accepted on input for documents written by the web builder.
type referenceWire struct {
	Type              string `json:"type" yaml:"type"`
	VariableID        string `json:"variable_id" yaml:"variable_id"`
	VariableName      string `json:"variable_name,omitempty" yaml:"variable_name,omitempty"`
	LegacyVariableID  string `json:"variableId,omitempty" yaml:"variableId,omitempty"`
	LegacyDisplayName string `json:"variableName,omitempty" yaml:"variableName,omitempty"`
}

func (w referenceWire) toValue() (Value, error) {
	if w.Type != "" && w.Type != referenceType {
		return Value{}, fmt.Errorf("unsupported value type %q", w.Type)
	}
	id := w.VariableID
	if id == "" {
		id = w.LegacyVariableID
	}
	if id == "" {
		return Value{}, fmt.Errorf("variable reference is missing variable_id")
	}
	name := w.VariableName
	if name == "" {
		name = w.LegacyDisplayName
	}
	return Ref(id, name), nil
}

// MarshalJSON encodes scalars as bare numbers and references as objects
func (v Value) MarshalJSON() ([]byte, error) {
	if v.ref == nil {
		return json.Marshal(v.scalar)
	}
	return json.Marshal(referenceWire{
		Type:         referenceType,
		VariableID:   v.ref.VariableID,
		VariableName: v.ref.DisplayName,
	})
}

// UnmarshalJSON accepts a number or a reference object
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var w referenceWire
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return fmt.Errorf("invalid variable reference: %w", err)
		}
		parsed, err := w.toValue()
		if err != nil {
			return err
		}
		*v = parsed
		return nil
	}

	var n float64
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("value must be a number or a variable reference: %w", err)
	}
	*v = Scalar(n)
	return nil
}

// MarshalYAML mirrors MarshalJSON
func (v Value) MarshalYAML() (interface{}, error) {
	if v.ref == nil {
		return v.scalar, nil
	}
	return referenceWire{
		Type:         referenceType,
		VariableID:   v.ref.VariableID,
		VariableName: v.ref.DisplayName,
	}, nil
}

// UnmarshalYAML accepts a scalar node or a reference mapping
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		var w referenceWire
		if err := node.Decode(&w); err != nil {
			return fmt.Errorf("invalid variable reference: %w", err)
		}
		parsed, err := w.toValue()
		if err != nil {
			return err
		}
		*v = parsed
		return nil
	}

	var n float64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("value must be a number or a variable reference: %w", err)
	}
	*v = Scalar(n)
	return nil
}
