// Package strategy defines the strategy document edited by the builder:
// metadata, the strategy's variables, entry and exit rule groups, and risk
// settings. Every number in the document is a variables.Value, so any of them
// can be bound to a variable and swept during optimization.
package strategy

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/stratforge/internal/indicators"
	"github.com/ajitpratap0/stratforge/internal/variables"
)

// SchemaVersion is the current strategy schema version
const SchemaVersion = "1.1"

// ErrStrategyNotFound is returned by strategy stores for unknown ids
var ErrStrategyNotFound = errors.New("strategy not found")

// Strategy is an editable trading strategy
type Strategy struct {
	Metadata   Metadata             `yaml:"metadata" json:"metadata"`
	Variables  []variables.Variable `yaml:"variables" json:"variables"`
	EntryRules RuleGroup            `yaml:"entry_rules" json:"entry_rules"`
	ExitRules  RuleGroup            `yaml:"exit_rules" json:"exit_rules"`
	Risk       RiskSettings         `yaml:"risk" json:"risk"`
}

// Metadata contains strategy identification and description
type Metadata struct {
	// Schema version for compatibility
	SchemaVersion string `yaml:"schema_version" json:"schema_version"`

	// Unique identifier (generated on create and import)
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string   `yaml:"author,omitempty" json:"author,omitempty"`
	Version     string   `yaml:"version,omitempty" json:"version,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	CreatedAt time.Time `yaml:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`

	// Source (e.g., "user", "import", "clone", "optimization")
	Source string `yaml:"source,omitempty" json:"source,omitempty"`
}

// NewDefaultStrategy creates a strategy with an RSI mean-reversion template:
// enter when RSI(14) < 30, exit when RSI(14) > 70, 2% stop, 5% target.
func NewDefaultStrategy(name string) *Strategy {
	now := time.Now()
	return &Strategy{
		Metadata: Metadata{
			SchemaVersion: SchemaVersion,
			ID:            uuid.New().String(),
			Name:          name,
			CreatedAt:     now,
			UpdatedAt:     now,
			Source:        "user",
		},
		Variables: []variables.Variable{},
		EntryRules: RuleGroup{
			Logic: LogicAnd,
			Conditions: []Condition{{
				Left:     indicators.New(indicators.KindRSI),
				Operator: OpLessThan,
				Right:    Number(30),
				Action:   ActionBuy,
			}},
		},
		ExitRules: RuleGroup{
			Logic: LogicOr,
			Conditions: []Condition{{
				Left:     indicators.New(indicators.KindRSI),
				Operator: OpGreaterThan,
				Right:    Number(70),
				Action:   ActionClose,
			}},
		},
		Risk: DefaultRiskSettings(),
	}
}

// Registry builds an editing registry over the strategy's variables.
// Use SetVariables to write the registry's state back after mutation.
func (s *Strategy) Registry(maxVariables int) (*variables.Registry, error) {
	return variables.NewRegistry(maxVariables, s.Variables...)
}

// SetVariables replaces the variable list, propagates renamed variables into
// reference display names and regenerates indicator labels
func (s *Strategy) SetVariables(vars []variables.Variable) {
	s.Variables = make([]variables.Variable, len(vars))
	for i, v := range vars {
		s.Variables[i] = v.Clone()
	}
	lookup := s.Lookup()
	s.SyncReferenceNames(lookup)
	s.RefreshLabels(lookup)
	s.Metadata.UpdatedAt = time.Now()
}

// Lookup returns a read-only view of the strategy's own variables
func (s *Strategy) Lookup() variables.Snapshot {
	return variables.NewSnapshot(s.Variables)
}

// DeepCopy creates a complete independent copy of the strategy. Parameter
// records and variable ranges are cloned; Values are immutable and shared.
func (s *Strategy) DeepCopy() *Strategy {
	if s == nil {
		return nil
	}

	c := *s
	if s.Metadata.Tags != nil {
		c.Metadata.Tags = append([]string(nil), s.Metadata.Tags...)
	}
	if s.Variables != nil {
		c.Variables = make([]variables.Variable, len(s.Variables))
		for i, v := range s.Variables {
			c.Variables[i] = v.Clone()
		}
	}
	c.EntryRules = s.EntryRules.clone()
	c.ExitRules = s.ExitRules.clone()
	return &c
}
