package indicators

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/stratforge/internal/variables"
)

// PriceSource selects which price an indicator is computed over
type PriceSource string

const (
	SourceClose PriceSource = "close"
	SourceOpen  PriceSource = "open"
	SourceHigh  PriceSource = "high"
	SourceLow   PriceSource = "low"
	SourceHL2   PriceSource = "hl2"
	SourceHLC3  PriceSource = "hlc3"
	SourceOHLC4 PriceSource = "ohlc4"
)

// PriceSources lists the accepted sources in display order
var PriceSources = []PriceSource{SourceClose, SourceOpen, SourceHigh, SourceLow, SourceHL2, SourceHLC3, SourceOHLC4}

// Valid reports whether s is one of PriceSources
func (s PriceSource) Valid() bool {
	for _, candidate := range PriceSources {
		if s == candidate {
			return true
		}
	}
	return false
}

// UnmarshalText normalizes case and rejects unknown sources
func (s *PriceSource) UnmarshalText(text []byte) error {
	parsed := PriceSource(strings.ToLower(strings.TrimSpace(string(text))))
	if !parsed.Valid() {
		return fmt.Errorf("unknown price source %q", string(text))
	}
	*s = parsed
	return nil
}

// Field is a named numeric parameter. Value points into the owning record so
// walkers can rewrite it in place.
type Field struct {
	Name  string
	Value *variables.Value
}

// Parameters is the closed set of per-kind parameter records. Every
// implementation is a pointer to one of the *Params types in this file.
type Parameters interface {
	// Kind is the indicator kind the record belongs to
	Kind() Kind
	// Fields returns the numeric parameters in label order
	Fields() []Field
	// Clone returns an independent copy
	Clone() Parameters
}

// Sourced is implemented by records that carry a price source
type Sourced interface {
	PriceSource() PriceSource
}

// RSIParams configures the Relative Strength Index
type RSIParams struct {
	Period variables.Value `json:"period" yaml:"period"`
	Source PriceSource     `json:"source" yaml:"source"`
}

func (p *RSIParams) Kind() Kind               { return KindRSI }
func (p *RSIParams) Fields() []Field          { return []Field{{"period", &p.Period}} }
func (p *RSIParams) Clone() Parameters        { c := *p; return &c }
func (p *RSIParams) PriceSource() PriceSource { return p.Source }

// MACDParams configures Moving Average Convergence Divergence
type MACDParams struct {
	Fast   variables.Value `json:"fast" yaml:"fast"`
	Slow   variables.Value `json:"slow" yaml:"slow"`
	Signal variables.Value `json:"signal" yaml:"signal"`
	Source PriceSource     `json:"source" yaml:"source"`
}

func (p *MACDParams) Kind() Kind { return KindMACD }
func (p *MACDParams) Fields() []Field {
	return []Field{{"fast", &p.Fast}, {"slow", &p.Slow}, {"signal", &p.Signal}}
}
func (p *MACDParams) Clone() Parameters        { c := *p; return &c }
func (p *MACDParams) PriceSource() PriceSource { return p.Source }

// BollingerParams configures Bollinger Bands
type BollingerParams struct {
	Period variables.Value `json:"period" yaml:"period"`
	StdDev variables.Value `json:"std_dev" yaml:"std_dev"`
	Source PriceSource     `json:"source" yaml:"source"`
}

func (p *BollingerParams) Kind() Kind { return KindBollinger }
func (p *BollingerParams) Fields() []Field {
	return []Field{{"period", &p.Period}, {"std_dev", &p.StdDev}}
}
func (p *BollingerParams) Clone() Parameters        { c := *p; return &c }
func (p *BollingerParams) PriceSource() PriceSource { return p.Source }

// SMAParams configures a simple moving average
type SMAParams struct {
	Period variables.Value `json:"period" yaml:"period"`
	Source PriceSource     `json:"source" yaml:"source"`
}

func (p *SMAParams) Kind() Kind               { return KindSMA }
func (p *SMAParams) Fields() []Field          { return []Field{{"period", &p.Period}} }
func (p *SMAParams) Clone() Parameters        { c := *p; return &c }
func (p *SMAParams) PriceSource() PriceSource { return p.Source }

// EMAParams configures an exponential moving average
type EMAParams struct {
	Period variables.Value `json:"period" yaml:"period"`
	Source PriceSource     `json:"source" yaml:"source"`
}

func (p *EMAParams) Kind() Kind               { return KindEMA }
func (p *EMAParams) Fields() []Field          { return []Field{{"period", &p.Period}} }
func (p *EMAParams) Clone() Parameters        { c := *p; return &c }
func (p *EMAParams) PriceSource() PriceSource { return p.Source }

// ADXParams configures the Average Directional Index
type ADXParams struct {
	Period variables.Value `json:"period" yaml:"period"`
}

func (p *ADXParams) Kind() Kind        { return KindADX }
func (p *ADXParams) Fields() []Field   { return []Field{{"period", &p.Period}} }
func (p *ADXParams) Clone() Parameters { c := *p; return &c }

// ATRParams configures the Average True Range
type ATRParams struct {
	Period variables.Value `json:"period" yaml:"period"`
}

func (p *ATRParams) Kind() Kind        { return KindATR }
func (p *ATRParams) Fields() []Field   { return []Field{{"period", &p.Period}} }
func (p *ATRParams) Clone() Parameters { c := *p; return &c }

// StochasticParams configures the stochastic oscillator
type StochasticParams struct {
	K      variables.Value `json:"k" yaml:"k"`
	D      variables.Value `json:"d" yaml:"d"`
	Smooth variables.Value `json:"smooth" yaml:"smooth"`
}

func (p *StochasticParams) Kind() Kind { return KindStochastic }
func (p *StochasticParams) Fields() []Field {
	return []Field{{"k", &p.K}, {"d", &p.D}, {"smooth", &p.Smooth}}
}
func (p *StochasticParams) Clone() Parameters { c := *p; return &c }

// PriceParams selects a raw price series
type PriceParams struct {
	Source PriceSource `json:"source" yaml:"source"`
}

func (p *PriceParams) Kind() Kind               { return KindPrice }
func (p *PriceParams) Fields() []Field          { return nil }
func (p *PriceParams) Clone() Parameters        { c := *p; return &c }
func (p *PriceParams) PriceSource() PriceSource { return p.Source }

// VolumeParams has no parameters
type VolumeParams struct{}

func (p *VolumeParams) Kind() Kind        { return KindVolume }
func (p *VolumeParams) Fields() []Field   { return nil }
func (p *VolumeParams) Clone() Parameters { return &VolumeParams{} }

// GenericParam is one entry of an unknown kind's parameters. An entry with a
// non-empty Option is a string setting such as a price source; it carries no
// Value and is not exposed as a field.
type GenericParam struct {
	Name   string
	Value  variables.Value
	Option string
}

// IsOption reports whether the entry is a string setting
func (g GenericParam) IsOption() bool { return g.Option != "" }

// GenericParams holds the parameters of a kind outside the built-in catalog,
// in document order
type GenericParams struct {
	kind   Kind
	Params []GenericParam
}

// NewGenericParams returns the fallback shape {period: 14} for kind
func NewGenericParams(kind Kind) *GenericParams {
	return &GenericParams{
		kind:   kind,
		Params: []GenericParam{{Name: "period", Value: variables.Scalar(14)}},
	}
}

func (p *GenericParams) Kind() Kind { return p.kind }

func (p *GenericParams) Fields() []Field {
	out := make([]Field, 0, len(p.Params))
	for i := range p.Params {
		if p.Params[i].IsOption() {
			continue
		}
		out = append(out, Field{Name: p.Params[i].Name, Value: &p.Params[i].Value})
	}
	return out
}

// Options returns the string settings by name
func (p *GenericParams) Options() map[string]string {
	out := make(map[string]string)
	for _, param := range p.Params {
		if param.IsOption() {
			out[param.Name] = param.Option
		}
	}
	return out
}

func (p *GenericParams) Clone() Parameters {
	c := &GenericParams{kind: p.kind, Params: make([]GenericParam, len(p.Params))}
	copy(c.Params, p.Params)
	return c
}

// MarshalJSON writes the parameters as an object preserving order
func (p *GenericParams) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, param := range p.Params {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(param.Name)
		if err != nil {
			return nil, err
		}
		var val []byte
		if param.IsOption() {
			val, err = json.Marshal(param.Option)
		} else {
			val, err = json.Marshal(param.Value)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of numbers, references and string options,
// keeping order
func (p *GenericParams) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("parameters must be an object")
	}

	params := make([]GenericParam, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("parameter %s: %w", name, err)
		}
		param, err := genericFromJSON(name, raw)
		if err != nil {
			return err
		}
		params = append(params, param)
	}
	p.Params = params
	return nil
}

func genericFromJSON(name string, raw json.RawMessage) (GenericParam, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var option string
		if err := json.Unmarshal(trimmed, &option); err != nil {
			return GenericParam{}, fmt.Errorf("parameter %s: %w", name, err)
		}
		if option == "" {
			return GenericParam{}, fmt.Errorf("parameter %s: option must not be empty", name)
		}
		return GenericParam{Name: name, Option: option}, nil
	}
	var v variables.Value
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return GenericParam{}, fmt.Errorf("parameter %s: %w", name, err)
	}
	return GenericParam{Name: name, Value: v}, nil
}

// MarshalYAML writes an ordered mapping
func (p *GenericParams) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, param := range p.Params {
		var val yaml.Node
		if param.IsOption() {
			val = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: param.Option}
		} else if err := val.Encode(param.Value); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: param.Name},
			&val,
		)
	}
	return node, nil
}

// UnmarshalYAML reads an ordered mapping
func (p *GenericParams) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("parameters must be a mapping")
	}
	params := make([]GenericParam, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		value := node.Content[i+1]
		if value.Kind == yaml.ScalarNode && value.ShortTag() == "!!str" {
			if value.Value == "" {
				return fmt.Errorf("parameter %s: option must not be empty", name)
			}
			params = append(params, GenericParam{Name: name, Option: value.Value})
			continue
		}
		var v variables.Value
		if err := value.Decode(&v); err != nil {
			return fmt.Errorf("parameter %s: %w", name, err)
		}
		params = append(params, GenericParam{Name: name, Value: v})
	}
	p.Params = params
	return nil
}

// DefaultParameters returns the first-time configuration for kind. Unknown
// kinds get the generic {period: 14} shape.
func DefaultParameters(kind Kind) Parameters {
	switch kind {
	case KindRSI:
		return &RSIParams{Period: variables.Scalar(14), Source: SourceClose}
	case KindMACD:
		return &MACDParams{
			Fast:   variables.Scalar(12),
			Slow:   variables.Scalar(26),
			Signal: variables.Scalar(9),
			Source: SourceClose,
		}
	case KindBollinger:
		return &BollingerParams{Period: variables.Scalar(20), StdDev: variables.Scalar(2), Source: SourceClose}
	case KindSMA:
		return &SMAParams{Period: variables.Scalar(20), Source: SourceClose}
	case KindEMA:
		return &EMAParams{Period: variables.Scalar(20), Source: SourceClose}
	case KindADX:
		return &ADXParams{Period: variables.Scalar(14)}
	case KindATR:
		return &ATRParams{Period: variables.Scalar(14)}
	case KindStochastic:
		return &StochasticParams{K: variables.Scalar(14), D: variables.Scalar(3), Smooth: variables.Scalar(3)}
	case KindPrice:
		return &PriceParams{Source: SourceClose}
	case KindVolume:
		return &VolumeParams{}
	default:
		noteUnknown(kind, "defaults")
		return NewGenericParams(kind)
	}
}

func isNull(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// DecodeParameters parses a JSON parameter object for kind. Fields absent
// from data keep their defaults; unknown keys are rejected for built-in kinds.
func DecodeParameters(kind Kind, data []byte) (Parameters, error) {
	p := DefaultParameters(kind)
	if isNull(data) {
		return p, nil
	}

	if _, generic := p.(*GenericParams); generic {
		if err := json.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("invalid %s parameters: %w", kind, err)
		}
		return p, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("invalid %s parameters: %w", kind, err)
	}
	return p, nil
}

// DecodeParametersYAML is the YAML counterpart of DecodeParameters
func DecodeParametersYAML(kind Kind, node *yaml.Node) (Parameters, error) {
	p := DefaultParameters(kind)
	if node == nil || node.Kind == 0 || node.Tag == "!!null" {
		return p, nil
	}

	if _, generic := p.(*GenericParams); generic {
		if err := node.Decode(p); err != nil {
			return nil, fmt.Errorf("invalid %s parameters: %w", kind, err)
		}
		return p, nil
	}

	raw, err := yaml.Marshal(node)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("invalid %s parameters: %w", kind, err)
	}
	return p, nil
}

// ParameterValues returns the named numeric values of p in label order
func ParameterValues(p Parameters) map[string]variables.Value {
	fields := p.Fields()
	out := make(map[string]variables.Value, len(fields))
	for _, f := range fields {
		out[f.Name] = *f.Value
	}
	return out
}
