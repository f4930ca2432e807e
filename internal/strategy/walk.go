package strategy

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/indicators"
	"github.com/ajitpratap0/stratforge/internal/metrics"
	"github.com/ajitpratap0/stratforge/internal/variables"
)

// ReferenceSite is one place in the document that points at a variable
type ReferenceSite struct {
	Path         string `json:"path"`
	VariableID   string `json:"variable_id"`
	VariableName string `json:"variable_name,omitempty"`
}

// ResolvedStrategy is a strategy with every Value replaced by its number
type ResolvedStrategy struct {
	Strategy *Strategy          `json:"strategy"`
	Values   map[string]float64 `json:"values"`
}

// Walk calls fn for every Value in the document in a stable order: entry
// rules, exit rules, then risk settings. fn may replace *v.
func (s *Strategy) Walk(fn func(path string, v *variables.Value)) {
	walkGroup("entry_rules", &s.EntryRules, fn)
	walkGroup("exit_rules", &s.ExitRules, fn)
	for _, f := range s.Risk.fields() {
		fn(f.path, f.value)
	}
}

func walkGroup(prefix string, g *RuleGroup, fn func(string, *variables.Value)) {
	for i := range g.Conditions {
		c := &g.Conditions[i]
		base := fmt.Sprintf("%s.conditions[%d]", prefix, i)
		walkIndicator(base+".left", &c.Left, fn)
		if c.Right.Value != nil {
			fn(base+".right.value", c.Right.Value)
		}
		if c.Right.Indicator != nil {
			walkIndicator(base+".right.indicator", c.Right.Indicator, fn)
		}
	}
}

// walkIndicator visits a nil parameter set as the kind's defaults without
// storing them on the indicator. Defaults hold no references.
func walkIndicator(prefix string, ci *indicators.ConfiguredIndicator, fn func(string, *variables.Value)) {
	params := ci.Parameters
	if params == nil {
		params = indicators.DefaultParameters(ci.Kind)
	}
	for _, f := range params.Fields() {
		fn(prefix+".parameters."+f.Name, f.Value)
	}
}

// indicatorsInDocument returns every configured indicator, left sides first
func (s *Strategy) indicatorsInDocument() []*indicators.ConfiguredIndicator {
	var out []*indicators.ConfiguredIndicator
	for _, g := range []*RuleGroup{&s.EntryRules, &s.ExitRules} {
		for i := range g.Conditions {
			c := &g.Conditions[i]
			out = append(out, &c.Left)
			if c.Right.Indicator != nil {
				out = append(out, c.Right.Indicator)
			}
		}
	}
	return out
}

// References lists every variable reference in the document
func (s *Strategy) References() []ReferenceSite {
	var sites []ReferenceSite
	s.Walk(func(path string, v *variables.Value) {
		if ref, ok := v.Reference(); ok {
			sites = append(sites, ReferenceSite{
				Path:         path,
				VariableID:   ref.VariableID,
				VariableName: ref.DisplayName,
			})
		}
	})
	return sites
}

// ReferencedVariables returns the distinct referenced ids, sorted
func (s *Strategy) ReferencedVariables() []string {
	seen := make(map[string]struct{})
	for _, site := range s.References() {
		seen[site.VariableID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DanglingReferences lists references whose variable is missing from lookup.
// A nil lookup checks against the strategy's own variables.
func (s *Strategy) DanglingReferences(lookup variables.Lookup) []ReferenceSite {
	if lookup == nil {
		lookup = s.Lookup()
	}
	var dangling []ReferenceSite
	for _, site := range s.References() {
		if _, ok := lookup.Variable(site.VariableID); !ok {
			dangling = append(dangling, site)
		}
	}
	return dangling
}

// IsConcrete reports whether the document contains no references
func (s *Strategy) IsConcrete() bool {
	concrete := true
	s.Walk(func(_ string, v *variables.Value) {
		if v.IsReference() {
			concrete = false
		}
	})
	return concrete
}

// ResolveAll returns a copy of the strategy with every Value replaced by its
// number. Dangling references become 0 and are returned as warnings; they
// never fail resolution. A nil lookup resolves against the strategy's own
// variables. The receiver is not modified.
func (s *Strategy) ResolveAll(lookup variables.Lookup) (*ResolvedStrategy, []variables.Warning) {
	if lookup == nil {
		lookup = s.Lookup()
	}

	out := s.DeepCopy()
	resolver := variables.NewResolver(lookup)
	values := make(map[string]float64)
	out.Walk(func(path string, v *variables.Value) {
		n := resolver.Resolve(path, *v)
		values[path] = n
		*v = variables.Scalar(n)
	})
	out.normalizeComparisons()
	out.RefreshLabels(lookup)

	return &ResolvedStrategy{Strategy: out, Values: values}, resolver.Warnings()
}

// Substitute returns a copy in which every reference to an assigned variable
// is replaced by the assigned number. The copy's variables take the assigned
// values as their current values and its labels are regenerated. References
// to unassigned variables are kept. Assigning an id the strategy does not
// define is an error.
func (s *Strategy) Substitute(assignment map[string]float64) (*Strategy, error) {
	lookup := s.Lookup()
	for id, n := range assignment {
		if _, ok := lookup.Variable(id); !ok {
			return nil, fmt.Errorf("cannot substitute %s: %w", id, variables.ErrVariableNotFound)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("cannot substitute %s: value must be finite, got %g", id, n)
		}
	}

	out := s.DeepCopy()
	for i := range out.Variables {
		if n, ok := assignment[out.Variables[i].ID]; ok {
			out.Variables[i].CurrentValue = n
		}
	}

	replaced := 0
	out.Walk(func(_ string, v *variables.Value) {
		if n, ok := assignment[v.VariableID()]; ok {
			*v = variables.Scalar(n)
			replaced++
		}
	})
	out.normalizeComparisons()

	outLookup := out.Lookup()
	out.SyncReferenceNames(outLookup)
	out.RefreshLabels(outLookup)

	log.Debug().
		Str("strategy_id", s.Metadata.ID).
		Int("assigned", len(assignment)).
		Int("replaced", replaced).
		Msg("Strategy substituted")

	return out, nil
}

// Concretize substitutes the assignment and then resolves every remaining
// reference to its variable's current value, producing a fully scalar
// document ready for a backtest engine
func (s *Strategy) Concretize(assignment map[string]float64) (*Strategy, []variables.Warning, error) {
	sub, err := s.Substitute(assignment)
	if err != nil {
		metrics.RecordStrategyOperation("concretize", false)
		return nil, nil, err
	}
	resolved, warnings := sub.ResolveAll(nil)
	metrics.RecordStrategyOperation("concretize", true)
	return resolved.Strategy, warnings, nil
}

// RefreshLabels regenerates every indicator label against lookup
func (s *Strategy) RefreshLabels(lookup variables.Lookup) {
	for _, ci := range s.indicatorsInDocument() {
		ci.RefreshLabel(lookup)
	}
}

// SyncReferenceNames rewrites cached display names of references that
// resolve in lookup, so renamed variables show their new name. Dangling
// references keep their last known name. Returns the number of references
// updated.
func (s *Strategy) SyncReferenceNames(lookup variables.Lookup) int {
	updated := 0
	s.Walk(func(_ string, v *variables.Value) {
		ref, ok := v.Reference()
		if !ok {
			return
		}
		variable, found := lookup.Variable(ref.VariableID)
		if !found || variable.Name == ref.DisplayName {
			return
		}
		*v = v.WithDisplayName(variable.Name)
		updated++
	})
	return updated
}

// RemoveVariable drops a variable from the document. References to it are
// left in place and resolve to 0 with a warning until rebound.
func (s *Strategy) RemoveVariable(id string) error {
	for i, v := range s.Variables {
		if v.ID == id {
			s.Variables = append(s.Variables[:i:i], s.Variables[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", variables.ErrVariableNotFound, id)
}

func (s *Strategy) normalizeComparisons() {
	for _, g := range []*RuleGroup{&s.EntryRules, &s.ExitRules} {
		for i := range g.Conditions {
			g.Conditions[i].Right.normalize()
		}
	}
}
