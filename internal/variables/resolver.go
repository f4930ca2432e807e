package variables

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/metrics"
)

// Resolve turns v into a number. Scalars are returned unchanged; references
// return the variable's current value. A reference whose id is missing from
// lookup resolves to 0 with a *DanglingReferenceError, which callers treat as
// a warning: evaluation continues.
//
// Resolve never mutates lookup and is safe to call concurrently with other
// readers of the same snapshot.
func Resolve(v Value, lookup Lookup) (float64, error) {
	ref, ok := v.Reference()
	if !ok {
		return v.scalar, nil
	}
	if lookup != nil {
		if variable, found := lookup.Variable(ref.VariableID); found {
			return variable.CurrentValue, nil
		}
	}
	return 0, &DanglingReferenceError{VariableID: ref.VariableID, VariableName: ref.DisplayName}
}

// DisplayName returns what a UI should show for v: the live variable name for
// references that resolve, the cached hint for dangling ones, and the number
// itself for scalars.
func DisplayName(v Value, lookup Lookup) string {
	ref, ok := v.Reference()
	if !ok {
		return FormatNumber(v.scalar)
	}
	if lookup != nil {
		if variable, found := lookup.Variable(ref.VariableID); found {
			return variable.Name
		}
	}
	if ref.DisplayName != "" {
		return ref.DisplayName
	}
	return ref.VariableID
}

// Warning is a non-fatal problem found while resolving a strategy
type Warning struct {
	Path         string `json:"path"`
	VariableID   string `json:"variable_id"`
	VariableName string `json:"variable_name,omitempty"`
	Message      string `json:"message"`
}

// Resolver resolves many values in one evaluation pass and collects dangling
// reference warnings instead of failing. A Resolver belongs to one pass.
type Resolver struct {
	lookup   Lookup
	warnings []Warning
}

// NewResolver creates a resolver reading from lookup
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve resolves v; path identifies where v lives in the strategy document
func (r *Resolver) Resolve(path string, v Value) float64 {
	n, err := Resolve(v, r.lookup)
	if err == nil {
		return n
	}

	var dangling *DanglingReferenceError
	if errors.As(err, &dangling) {
		r.warnings = append(r.warnings, Warning{
			Path:         path,
			VariableID:   dangling.VariableID,
			VariableName: dangling.VariableName,
			Message:      err.Error(),
		})
		metrics.RecordDanglingReference()
		log.Warn().
			Str("path", path).
			Str("variable_id", dangling.VariableID).
			Msg("Dangling variable reference resolved to 0")
	}
	return n
}

// Name returns the display name of v using the resolver's lookup
func (r *Resolver) Name(v Value) string {
	return DisplayName(v, r.lookup)
}

// Warnings returns the warnings collected so far
func (r *Resolver) Warnings() []Warning {
	out := make([]Warning, len(r.warnings))
	copy(out, r.warnings)
	return out
}
