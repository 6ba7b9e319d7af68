package veil

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common failure classes.
var (
	// ErrDuplicateSchema is returned when registering a schema under a name
	// that is already active in the registry.
	ErrDuplicateSchema = errors.New("veil: schema already registered")

	// ErrUnknownSchema is returned when a rule references a schema name
	// that is not present in the registry at resolution time.
	ErrUnknownSchema = errors.New("veil: schema not registered")

	// ErrCircularProp is returned when a prop reads itself, directly or
	// transitively, before its own computation completes.
	ErrCircularProp = errors.New("veil: circular prop dependency")
)

// DuplicateSchemaError is returned by registration when the schema name is
// already taken within the current registry lifetime.
type DuplicateSchemaError struct {
	Name string
}

// Error returns the error string.
func (e *DuplicateSchemaError) Error() string {
	return fmt.Sprintf("veil: schema %q already registered", e.Name)
}

// Is reports whether the target error matches DuplicateSchemaError.
// This allows errors.Is(err, ErrDuplicateSchema) to return true.
func (e *DuplicateSchemaError) Is(err error) bool {
	return err == ErrDuplicateSchema
}

// NewDuplicateSchemaError returns a new DuplicateSchemaError for the given
// schema name.
func NewDuplicateSchemaError(name string) *DuplicateSchemaError {
	return &DuplicateSchemaError{Name: name}
}

// IsDuplicateSchema returns true if the error is a DuplicateSchemaError.
func IsDuplicateSchema(err error) bool {
	if err == nil {
		return false
	}
	var e *DuplicateSchemaError
	return errors.As(err, &e) || errors.Is(err, ErrDuplicateSchema)
}

// UnknownSchemaError is returned when a nested-type rule names a schema that
// was never registered by the time the field is accessed.
type UnknownSchemaError struct {
	Name  string // The schema name that failed to resolve.
	Field string // Optional: the field whose rule referenced it.
}

// Error returns the error string.
func (e *UnknownSchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("veil: schema %q referenced by field %q is not registered", e.Name, e.Field)
	}
	return fmt.Sprintf("veil: schema %q is not registered", e.Name)
}

// Is reports whether the target error matches UnknownSchemaError.
// This allows errors.Is(err, ErrUnknownSchema) to return true.
func (e *UnknownSchemaError) Is(err error) bool {
	return err == ErrUnknownSchema
}

// NewUnknownSchemaError returns a new UnknownSchemaError for the given
// schema name.
func NewUnknownSchemaError(name string) *UnknownSchemaError {
	return &UnknownSchemaError{Name: name}
}

// IsUnknownSchema returns true if the error is an UnknownSchemaError.
func IsUnknownSchema(err error) bool {
	if err == nil {
		return false
	}
	var e *UnknownSchemaError
	return errors.As(err, &e) || errors.Is(err, ErrUnknownSchema)
}

// CircularPropError is returned when resolving a prop re-enters a prop that
// is still being computed in the same resolution chain.
type CircularPropError struct {
	Schema string   // Schema name of the instance being resolved.
	Path   []string // Prop names in resolution order; the last repeats an earlier entry.
}

// Error returns the error string.
func (e *CircularPropError) Error() string {
	return fmt.Sprintf("veil: circular prop dependency on %s: %s", e.Schema, strings.Join(e.Path, " -> "))
}

// Is reports whether the target error matches CircularPropError.
// This allows errors.Is(err, ErrCircularProp) to return true.
func (e *CircularPropError) Is(err error) bool {
	return err == ErrCircularProp
}

// IsCircularProp returns true if the error is a CircularPropError.
func IsCircularProp(err error) bool {
	if err == nil {
		return false
	}
	var e *CircularPropError
	return errors.As(err, &e) || errors.Is(err, ErrCircularProp)
}
