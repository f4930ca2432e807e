package optimization

import (
	"errors"
	"fmt"
	"iter"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stratforge/internal/metrics"
)

// ErrSearchSpaceTruncated is informational: the enumeration stopped at the
// configured cap before covering the full grid
var ErrSearchSpaceTruncated = errors.New("search space truncated")

// Enumerator walks the grid as an odometer: the first variable varies
// slowest and the last fastest. Points are built on demand, so a capped
// enumeration never constructs anything past the cap.
type Enumerator struct {
	dims    []VariableRange
	steps   []uint64
	counter []uint64
	total   uint64
	limit   uint64
	emitted uint64
	done    bool
}

// NewEnumerator prepares a lazy enumeration of cfg
func NewEnumerator(cfg Config) *Enumerator {
	e := &Enumerator{
		dims:    append([]VariableRange(nil), cfg.Variables...),
		steps:   make([]uint64, len(cfg.Variables)),
		counter: make([]uint64, len(cfg.Variables)),
		total:   CountCombinations(cfg),
	}
	if cfg.MaxCombinations > 0 {
		e.limit = uint64(cfg.MaxCombinations)
	}
	for i, d := range e.dims {
		e.steps[i] = d.Steps()
	}
	if e.total == 0 {
		e.done = true
	}
	return e
}

// Next returns the next assignment, or false once the grid or the cap is
// exhausted
func (e *Enumerator) Next() (Assignment, bool) {
	if e.done {
		return nil, false
	}
	if e.limit > 0 && e.emitted >= e.limit {
		e.done = true
		return nil, false
	}

	a := make(Assignment, len(e.dims))
	for i, d := range e.dims {
		a[d.VariableID] = d.Range().ValueAt(e.counter[i])
	}
	e.emitted++

	i := len(e.counter) - 1
	for ; i >= 0; i-- {
		e.counter[i]++
		if e.counter[i] < e.steps[i] {
			break
		}
		e.counter[i] = 0
	}
	if i < 0 {
		e.done = true
	}
	return a, true
}

// Index is the zero-based enumeration index of the next assignment
func (e *Enumerator) Index() int {
	return int(e.emitted)
}

// Total is the size of the full grid
func (e *Enumerator) Total() uint64 {
	return e.total
}

// Len is the number of assignments the enumeration yields in total
func (e *Enumerator) Len() uint64 {
	if e.Truncated() {
		return e.limit
	}
	return e.total
}

// Truncated reports whether the cap cuts the grid short
func (e *Enumerator) Truncated() bool {
	return e.limit > 0 && e.total > e.limit
}

// Warning returns an error wrapping ErrSearchSpaceTruncated when the cap
// cuts the enumeration short, nil otherwise
func (e *Enumerator) Warning() error {
	if !e.Truncated() {
		return nil
	}
	return truncationWarning(e.Len(), e.total)
}

func truncationWarning(evaluated, total uint64) error {
	return fmt.Errorf("%w: evaluating %d of %d combinations", ErrSearchSpaceTruncated, evaluated, total)
}

// All yields (index, assignment) pairs for range-over-func callers
func All(cfg Config) iter.Seq2[int, Assignment] {
	return func(yield func(int, Assignment) bool) {
		e := NewEnumerator(cfg)
		for {
			idx := e.Index()
			a, ok := e.Next()
			if !ok || !yield(idx, a) {
				return
			}
		}
	}
}

// preallocLimit bounds the up-front allocation of Generate
const preallocLimit = 1 << 16

// Space is a fully materialized enumeration
type Space struct {
	Assignments []Assignment `json:"assignments"`
	Total       uint64       `json:"total"`
	Truncated   bool         `json:"truncated"`
}

// Warning returns an error wrapping ErrSearchSpaceTruncated when the space
// was cut short, nil otherwise
func (s Space) Warning() error {
	if !s.Truncated {
		return nil
	}
	return truncationWarning(uint64(len(s.Assignments)), s.Total)
}

// Generate materializes the enumeration of cfg
func Generate(cfg Config) Space {
	e := NewEnumerator(cfg)
	space := Space{
		Assignments: make([]Assignment, 0, min(e.Len(), preallocLimit)),
		Total:       e.Total(),
		Truncated:   e.Truncated(),
	}
	for {
		a, ok := e.Next()
		if !ok {
			break
		}
		space.Assignments = append(space.Assignments, a)
	}

	metrics.RecordSearchSpace(space.Total, space.Truncated)
	if space.Truncated {
		log.Warn().
			Uint64("total", space.Total).
			Int("evaluated", len(space.Assignments)).
			Msg("Search space truncated")
	}
	return space
}
