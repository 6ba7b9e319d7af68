// Package registry provides the process-scoped schema registry: named
// schema registration with duplicate detection, lazy by-name resolution of
// nested type references, process-wide rule defaults, and reset.
//
// A registry is explicit state created with [New]; hosts that prefer the
// global registration style can use the package-level functions, which
// operate on a shared default registry.
//
// The registry is populated during an initialization phase and read-only
// thereafter: registrations and lookups are individually safe for
// concurrent use, but a host must not register schemas concurrently with
// instance construction over the same registry.
package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/syssam/veil"
	"github.com/syssam/veil/model"
	"github.com/syssam/veil/schema"
	"github.com/syssam/veil/schema/rule"
)

// Defaults holds the process-wide rule defaults consulted when a rule in
// config form omits the corresponding field. The zero value means
// allow-all reads and a nil readFail value.
type Defaults struct {
	// Read gates fields whose rules set no explicit gate. nil allows all.
	Read veil.Predicate

	// ReadFail produces the value of denied fields whose rules set no
	// explicit readFail. nil yields a nil value.
	ReadFail *rule.ReadFail
}

// Option configures a registry.
type Option func(*Registry)

// WithLogger sets the logger for registration and denial audit events.
// The default is a nop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDefaults sets the initial process-wide rule defaults. Reset restores
// these, not the zero defaults.
func WithDefaults(d Defaults) Option {
	return func(r *Registry) {
		r.initial = d
	}
}

// Registry maps schema names to compiled schemas and carries the
// process-wide rule defaults.
type Registry struct {
	logger  *zap.Logger
	initial Defaults

	mu       sync.RWMutex
	schemas  map[string]*Schema
	defaults Defaults
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		logger:  zap.NewNop(),
		schemas: make(map[string]*Schema),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.defaults = r.initial
	return r
}

// Register compiles the definition and registers it under its name,
// returning the constructible schema handle. Registering a name that is
// already active fails with a DuplicateSchemaError; the name becomes
// available again only after Reset.
//
// The definition's base and interfaces are compiled as part of the
// registration but are not themselves registered. Nested type references
// inside rules are stored as names and resolved lazily at access time, so
// mutually referencing schemas register in any order.
func (r *Registry) Register(def *schema.Definition) (*Schema, error) {
	compiled, err := schema.Compile(def)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schemas[def.Name]; ok {
		return nil, veil.NewDuplicateSchemaError(def.Name)
	}
	s := &Schema{compiled: compiled, reg: r}
	r.schemas[def.Name] = s
	r.logger.Debug("veil: schema registered",
		zap.String("schema", def.Name),
		zap.Strings("fields", compiled.Fields()),
	)
	return s, nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(def *schema.Definition) *Schema {
	s, err := r.Register(def)
	if err != nil {
		panic(err)
	}
	return s
}

// Schema returns the registered schema handle for the name, if any.
func (r *Registry) Schema(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// Schemas returns all registered schema handles sorted by name.
func (r *Registry) Schemas() []*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Schema, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Lookup implements schema.Resolver: it returns the compiled schema
// registered under name, or an UnknownSchemaError.
func (r *Registry) Lookup(name string) (*schema.Compiled, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	if !ok {
		return nil, veil.NewUnknownSchemaError(name)
	}
	return s.compiled, nil
}

// SetDefaults replaces the process-wide rule defaults. The new defaults
// apply to subsequent rule evaluations; they are consulted at access time,
// not captured at registration.
func (r *Registry) SetDefaults(d Defaults) {
	r.mu.Lock()
	r.defaults = d
	r.mu.Unlock()
}

// Defaults returns the current process-wide rule defaults.
func (r *Registry) Defaults() Defaults {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults
}

// Reset clears all registered schemas and restores the registry's initial
// defaults. Primarily an initialization and test affordance; instances
// constructed before the reset keep their compiled schemas but nested
// lookups resolve against the cleared registry.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.schemas = make(map[string]*Schema)
	r.defaults = r.initial
	r.mu.Unlock()
}

// DefaultRead implements model.Env.
func (r *Registry) DefaultRead() veil.Predicate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults.Read
}

// DefaultReadFail implements model.Env.
func (r *Registry) DefaultReadFail() *rule.ReadFail {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults.ReadFail
}

// Logger implements model.Env.
func (r *Registry) Logger() *zap.Logger {
	return r.logger
}

var _ model.Env = (*Registry)(nil)
var _ schema.Resolver = (*Registry)(nil)

// Schema is a constructible handle over a registered, compiled schema.
type Schema struct {
	compiled *schema.Compiled
	reg      *Registry
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.compiled.Name }

// Compiled returns the compiled schema view.
func (s *Schema) Compiled() *schema.Compiled { return s.compiled }

// New constructs a top-most model instance over the raw record and opaque
// caller context. The context reference is shared by every instance in the
// constructed tree.
func (s *Schema) New(data map[string]veil.Value, ctx veil.Value) *model.Instance {
	return model.New(s.compiled, s.reg, data, ctx)
}

// defaultRegistry backs the package-level convenience functions.
var defaultRegistry = New()

// Default returns the shared default registry.
func Default() *Registry { return defaultRegistry }

// Register registers the definition on the default registry.
func Register(def *schema.Definition) (*Schema, error) {
	return defaultRegistry.Register(def)
}

// MustRegister is like Register but panics on error.
func MustRegister(def *schema.Definition) *Schema {
	return defaultRegistry.MustRegister(def)
}

// Lookup resolves a compiled schema on the default registry.
func Lookup(name string) (*schema.Compiled, error) {
	return defaultRegistry.Lookup(name)
}

// SetDefaults replaces the default registry's rule defaults.
func SetDefaults(d Defaults) {
	defaultRegistry.SetDefaults(d)
}

// Reset clears the default registry and restores its defaults.
func Reset() {
	defaultRegistry.Reset()
}
