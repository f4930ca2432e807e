package strategy

import (
	"fmt"

	"github.com/ajitpratap0/stratforge/internal/indicators"
	"github.com/ajitpratap0/stratforge/internal/variables"
)

// Logic combines the conditions of a rule group
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Operator compares the left indicator with the right-hand value
type Operator string

const (
	OpGreaterThan  Operator = ">"
	OpLessThan     Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpCrossesAbove Operator = "crosses_above"
	OpCrossesBelow Operator = "crosses_below"
)

var operators = []Operator{
	OpGreaterThan, OpLessThan, OpGreaterEqual, OpLessEqual, OpEqual,
	OpCrossesAbove, OpCrossesBelow,
}

// Operators returns every supported comparison operator
func Operators() []Operator {
	out := make([]Operator, len(operators))
	copy(out, operators)
	return out
}

// Valid reports whether op is supported
func (op Operator) Valid() bool {
	for _, o := range operators {
		if o == op {
			return true
		}
	}
	return false
}

// Action is what a satisfied condition triggers
type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionClose Action = "close"
)

// Valid reports whether a is a known action. The empty action inherits the
// rule group's default (buy for entries, close for exits).
func (a Action) Valid() bool {
	switch a {
	case "", ActionBuy, ActionSell, ActionClose:
		return true
	}
	return false
}

// ComparisonKind tags the right-hand side of a condition
type ComparisonKind string

const (
	CompareNumber    ComparisonKind = "number"
	CompareVariable  ComparisonKind = "variable"
	CompareIndicator ComparisonKind = "indicator"
)

// ComparisonValue is the right-hand side of a condition: a number, a
// variable reference, or another indicator. Value is set for the first two
// kinds and Indicator for the third.
type ComparisonValue struct {
	Kind      ComparisonKind                  `yaml:"kind" json:"kind"`
	Value     *variables.Value                `yaml:"value,omitempty" json:"value,omitempty"`
	Indicator *indicators.ConfiguredIndicator `yaml:"indicator,omitempty" json:"indicator,omitempty"`
}

// Number returns a literal comparison value
func Number(n float64) ComparisonValue {
	v := variables.Scalar(n)
	return ComparisonValue{Kind: CompareNumber, Value: &v}
}

// Variable returns a comparison against a variable
func Variable(v variables.Variable) ComparisonValue {
	ref := variables.RefTo(v)
	return ComparisonValue{Kind: CompareVariable, Value: &ref}
}

// Indicator returns a comparison against another indicator
func Indicator(ci indicators.ConfiguredIndicator) ComparisonValue {
	return ComparisonValue{Kind: CompareIndicator, Indicator: &ci}
}

// validate checks that the payload matches the kind
func (c ComparisonValue) validate() error {
	switch c.Kind {
	case CompareNumber:
		if c.Value == nil || c.Value.IsReference() {
			return fmt.Errorf("number comparison requires a literal value")
		}
	case CompareVariable:
		if c.Value == nil || !c.Value.IsReference() {
			return fmt.Errorf("variable comparison requires a variable reference")
		}
	case CompareIndicator:
		if c.Indicator == nil {
			return fmt.Errorf("indicator comparison requires an indicator")
		}
	default:
		return fmt.Errorf("unknown comparison kind %q", c.Kind)
	}
	return nil
}

// normalize keeps Kind in step with Value after substitution
func (c *ComparisonValue) normalize() {
	if c.Value == nil {
		return
	}
	switch {
	case c.Kind == CompareVariable && !c.Value.IsReference():
		c.Kind = CompareNumber
	case c.Kind == CompareNumber && c.Value.IsReference():
		c.Kind = CompareVariable
	}
}

func (c ComparisonValue) clone() ComparisonValue {
	if c.Value != nil {
		v := *c.Value
		c.Value = &v
	}
	if c.Indicator != nil {
		ci := c.Indicator.Clone()
		c.Indicator = &ci
	}
	return c
}

// Condition is one comparison inside a rule group
type Condition struct {
	ID       string                         `yaml:"id,omitempty" json:"id,omitempty"`
	Left     indicators.ConfiguredIndicator `yaml:"left" json:"left"`
	Operator Operator                       `yaml:"operator" json:"operator"`
	Right    ComparisonValue                `yaml:"right" json:"right"`
	Action   Action                         `yaml:"action,omitempty" json:"action,omitempty"`
}

func (c Condition) clone() Condition {
	c.Left = c.Left.Clone()
	c.Right = c.Right.clone()
	return c
}

// RuleGroup is a set of conditions combined with and/or
type RuleGroup struct {
	Logic      Logic       `yaml:"logic" json:"logic"`
	Conditions []Condition `yaml:"conditions" json:"conditions"`
}

func (g RuleGroup) clone() RuleGroup {
	if g.Conditions == nil {
		return g
	}
	conds := make([]Condition, len(g.Conditions))
	for i, c := range g.Conditions {
		conds[i] = c.clone()
	}
	g.Conditions = conds
	return g
}
