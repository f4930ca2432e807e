package variables

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded is returned when adding a variable to a full registry
	ErrCapacityExceeded = errors.New("variable capacity exceeded")

	// ErrInvalidRange is returned when a range violates min <= max or step > 0
	ErrInvalidRange = errors.New("invalid variable range")

	// ErrVariableNotFound is returned when an id is not present in the registry
	ErrVariableNotFound = errors.New("variable not found")

	// ErrDuplicateID is returned when two variables share an id
	ErrDuplicateID = errors.New("duplicate variable id")

	// ErrDuplicateName is returned when two variables share a display name
	ErrDuplicateName = errors.New("duplicate variable name")

	// ErrDanglingReference marks a reference to a variable that no longer exists.
	// It is never fatal: the reference resolves to 0.
	ErrDanglingReference = errors.New("dangling variable reference")
)

// RangeError describes which part of a range is invalid
type RangeError struct {
	Range  Range
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: %s (min=%g max=%g step=%g)", ErrInvalidRange, e.Reason, e.Range.Min, e.Range.Max, e.Range.Step)
}

func (e *RangeError) Unwrap() error {
	return ErrInvalidRange
}

// DanglingReferenceError carries the stale reference so the caller can re-bind or remove it
type DanglingReferenceError struct {
	VariableID   string
	VariableName string
}

func (e *DanglingReferenceError) Error() string {
	if e.VariableName != "" {
		return fmt.Sprintf("%s: %s (%s)", ErrDanglingReference, e.VariableID, e.VariableName)
	}
	return fmt.Sprintf("%s: %s", ErrDanglingReference, e.VariableID)
}

func (e *DanglingReferenceError) Unwrap() error {
	return ErrDanglingReference
}
