package variables

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/metrics"
)

// DefaultMaxVariables is the per-strategy cap used when none is configured
const DefaultMaxVariables = 10

const (
	idPrefix   = "var_"
	namePrefix = "Var"
)

// Lookup resolves a variable id to its current definition
type Lookup interface {
	Variable(id string) (Variable, bool)
}

// Patch is a partial update. Nil fields are left unchanged; ids are immutable.
type Patch struct {
	Name         *string  `json:"name,omitempty"`
	CurrentValue *float64 `json:"current_value,omitempty"`
	Range        *Range   `json:"range,omitempty"`
	ClearRange   bool     `json:"clear_range,omitempty"`
	Enabled      *bool    `json:"enabled,omitempty"`
}

// Registry holds the variables of one strategy editing session.
// It is not safe for concurrent mutation; use Snapshot for concurrent readers.
type Registry struct {
	max  int
	vars []Variable
	seq  int
}

// NewRegistry creates a registry capped at maxVariables (DefaultMaxVariables
// when <= 0), seeded with vars. Seeds must satisfy every registry invariant.
func NewRegistry(maxVariables int, vars ...Variable) (*Registry, error) {
	if maxVariables <= 0 {
		maxVariables = DefaultMaxVariables
	}
	if len(vars) > maxVariables {
		return nil, fmt.Errorf("%w: %d variables exceed limit of %d", ErrCapacityExceeded, len(vars), maxVariables)
	}

	r := &Registry{
		max:  maxVariables,
		vars: make([]Variable, 0, len(vars)),
	}

	for _, v := range vars {
		if err := v.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.index(v.ID); exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, v.ID)
		}
		if r.nameTaken(v.Name, "") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, v.Name)
		}
		r.vars = append(r.vars, v.Clone())
		r.bumpSequence(v)
	}

	return r, nil
}

// Add appends a variable with a generated id and name, default range and
// enabled=false. Fails with ErrCapacityExceeded when the registry is full.
func (r *Registry) Add() (Variable, error) {
	if len(r.vars) >= r.max {
		metrics.RecordVariableMutation("add", false)
		return Variable{}, fmt.Errorf("%w: limit is %d variables", ErrCapacityExceeded, r.max)
	}

	var id, name string
	for {
		r.seq++
		id = idPrefix + strconv.Itoa(r.seq)
		name = namePrefix + strconv.Itoa(r.seq)
		if _, exists := r.index(id); !exists && !r.nameTaken(name, "") {
			break
		}
	}

	rng := DefaultRange
	v := Variable{
		ID:           id,
		Name:         name,
		CurrentValue: rng.Min,
		Range:        &rng,
		Enabled:      false,
	}
	r.vars = append(r.vars, v)

	metrics.RecordVariableMutation("add", true)
	log.Debug().Str("variable_id", id).Str("variable_name", name).Msg("Variable added")

	return v.Clone(), nil
}

// Update applies patch to the variable with the given id. On any error the
// registry is left unchanged.
func (r *Registry) Update(id string, patch Patch) (Variable, error) {
	idx, ok := r.index(id)
	if !ok {
		metrics.RecordVariableMutation("update", false)
		return Variable{}, fmt.Errorf("%w: %s", ErrVariableNotFound, id)
	}

	updated := r.vars[idx].Clone()

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			metrics.RecordVariableMutation("update", false)
			return Variable{}, fmt.Errorf("variable %s: name is required", id)
		}
		if r.nameTaken(name, id) {
			metrics.RecordVariableMutation("update", false)
			return Variable{}, fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
		updated.Name = name
	}
	if patch.CurrentValue != nil {
		updated.CurrentValue = *patch.CurrentValue
	}
	if patch.ClearRange {
		updated.Range = nil
	}
	if patch.Range != nil {
		if err := patch.Range.Validate(); err != nil {
			metrics.RecordVariableMutation("update", false)
			return Variable{}, err
		}
		rng := *patch.Range
		updated.Range = &rng
	}
	if patch.Enabled != nil {
		updated.Enabled = *patch.Enabled
	}

	r.vars[idx] = updated
	metrics.RecordVariableMutation("update", true)

	return updated.Clone(), nil
}

// Remove deletes the variable. References to it elsewhere in the strategy are
// left in place and resolve as dangling.
func (r *Registry) Remove(id string) error {
	idx, ok := r.index(id)
	if !ok {
		metrics.RecordVariableMutation("remove", false)
		return fmt.Errorf("%w: %s", ErrVariableNotFound, id)
	}

	r.vars = append(r.vars[:idx:idx], r.vars[idx+1:]...)
	metrics.RecordVariableMutation("remove", true)
	log.Debug().Str("variable_id", id).Msg("Variable removed")

	return nil
}

// Variable implements Lookup
func (r *Registry) Variable(id string) (Variable, bool) {
	idx, ok := r.index(id)
	if !ok {
		return Variable{}, false
	}
	return r.vars[idx].Clone(), true
}

// List returns a copy of all variables in insertion order
func (r *Registry) List() []Variable {
	out := make([]Variable, len(r.vars))
	for i, v := range r.vars {
		out[i] = v.Clone()
	}
	return out
}

// Len returns the number of variables
func (r *Registry) Len() int { return len(r.vars) }

// Cap returns the configured maximum
func (r *Registry) Cap() int { return r.max }

// Snapshot returns an immutable view safe for concurrent readers
func (r *Registry) Snapshot() Snapshot {
	return NewSnapshot(r.vars)
}

func (r *Registry) index(id string) (int, bool) {
	for i := range r.vars {
		if r.vars[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func (r *Registry) nameTaken(name, exceptID string) bool {
	for i := range r.vars {
		if r.vars[i].ID != exceptID && strings.EqualFold(r.vars[i].Name, name) {
			return true
		}
	}
	return false
}

// bumpSequence keeps generated ids ahead of seeded ones
func (r *Registry) bumpSequence(v Variable) {
	for _, candidate := range []string{
		strings.TrimPrefix(v.ID, idPrefix),
		strings.TrimPrefix(v.Name, namePrefix),
	} {
		if n, err := strconv.Atoi(candidate); err == nil && n > r.seq {
			r.seq = n
		}
	}
}

// Snapshot is a read-only registry view
type Snapshot struct {
	byID  map[string]Variable
	order []string
}

// NewSnapshot builds a snapshot from vars; later duplicates of an id are ignored
func NewSnapshot(vars []Variable) Snapshot {
	s := Snapshot{
		byID:  make(map[string]Variable, len(vars)),
		order: make([]string, 0, len(vars)),
	}
	for _, v := range vars {
		if _, exists := s.byID[v.ID]; exists {
			continue
		}
		s.byID[v.ID] = v.Clone()
		s.order = append(s.order, v.ID)
	}
	return s
}

// Variable implements Lookup
func (s Snapshot) Variable(id string) (Variable, bool) {
	v, ok := s.byID[id]
	if !ok {
		return Variable{}, false
	}
	return v.Clone(), true
}

// List returns the variables in registry order
func (s Snapshot) List() []Variable {
	out := make([]Variable, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// Len returns the number of variables in the snapshot
func (s Snapshot) Len() int { return len(s.order) }
