// Package schema defines entity types and the registry that resolves names
// to them.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownEntity is returned when a name cannot be resolved to a
// registered entity type.
var ErrUnknownEntity = errors.New("unknown entity")

// Record is a row of a dynamic entity.
type Record map[string]interface{}

// Field is one typed field of an entity.
type Field struct {
	Name string
	Type string // integer, float, string, boolean, datetime
}

// Errors maps field names to validation failure reasons.
type Errors map[string]string

// ValidationError is the structured result of a failed changeset validation.
type ValidationError struct {
	Entity string
	Errors Errors
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for f := range e.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + " " + e.Errors[f]
	}
	return fmt.Sprintf("%s is invalid: %s", e.Entity, strings.Join(parts, ", "))
}

// ValidateFunc checks a record against the entity's constraints. A nil or
// empty result means the record is valid.
type ValidateFunc func(Record) Errors

// Assoc describes an implicit association used by join shorthand: rows of
// Target whose ForeignKey column references this entity's primary key.
type Assoc struct {
	Target     string // entity name
	ForeignKey string // column on the target table
}

// EntityType is the capability set of a registered entity: its table, typed
// fields, primary key and change-validation function.
type EntityType struct {
	Name       string
	Table      string
	Fields     []Field
	PrimaryKey []string
	Assocs     map[string]Assoc
	Validate   ValidateFunc
}

// PK returns the primary key fields, defaulting to ["id"].
func (e *EntityType) PK() []string {
	if len(e.PrimaryKey) == 0 {
		return []string{"id"}
	}
	return e.PrimaryKey
}

// HasField reports whether the entity declares the named field.
func (e *EntityType) HasField(name string) bool {
	for _, f := range e.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// FieldNames returns the declared field names in order.
func (e *EntityType) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// New constructs a fresh instance of the entity: every declared field
// present with a nil value, overlaid with the given params. Unknown params
// are ignored. Storage is never touched.
func (e *EntityType) New(params Record) Record {
	rec := make(Record, len(e.Fields))
	for _, f := range e.Fields {
		rec[f.Name] = nil
	}
	for k, v := range params {
		if e.HasField(k) {
			rec[k] = v
		}
	}
	return rec
}

// Changeset validates a record, returning a structured error result rather
// than raising.
func (e *EntityType) Changeset(rec Record) *ValidationError {
	if e.Validate == nil {
		return nil
	}
	errs := e.Validate(rec)
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Entity: e.Name, Errors: errs}
}

// ResolveOptions carries resolution overrides.
type ResolveOptions struct {
	Namespace string      // explicit namespace override
	Type      *EntityType // explicit type override, wins outright
}

// Registry resolves names to entity types. Entities are registered
// explicitly at startup; there is no namespace guessing.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*EntityType
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: map[string]*EntityType{}}
}

// Register adds an entity type. Re-registering a name replaces it.
func (r *Registry) Register(e *EntityType) {
	if e.Table == "" {
		e.Table = strings.ToLower(e.Name) + "s"
	}
	r.mu.Lock()
	r.entities[e.Name] = e
	r.mu.Unlock()
}

// Resolve returns the entity type for a name, honoring explicit overrides.
func (r *Registry) Resolve(name string, opts ResolveOptions) (*EntityType, error) {
	if opts.Type != nil {
		return opts.Type, nil
	}
	key := name
	if opts.Namespace != "" {
		key = opts.Namespace + "." + name
	}
	r.mu.RLock()
	e, ok := r.entities[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, key)
	}
	return e, nil
}

// defaultRegistry backs the package-level convenience functions.
var defaultRegistry = NewRegistry()

// Register adds an entity type to the default registry.
func Register(e *EntityType) { defaultRegistry.Register(e) }

// Resolve resolves a name against the default registry.
func Resolve(name string, opts ResolveOptions) (*EntityType, error) {
	return defaultRegistry.Resolve(name, opts)
}

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry { return defaultRegistry }
