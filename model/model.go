// Package model implements the veil runtime: per-instance field access
// through compiled rules, memoized prop resolution, and lazy construction
// of nested model instances with parent/root back-references.
//
// Instances are created through the handle returned by schema registration
// (see the registry package) and are safe for concurrent use: a cached
// field or prop computes at most once per instance, concurrent readers of
// the same slot wait for the single in-flight computation.
package model

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/syssam/veil"
	"github.com/syssam/veil/schema"
	"github.com/syssam/veil/schema/rule"
)

// Env is the registry-side environment an instance evaluates against:
// nested-schema resolution, process-wide rule defaults, and the audit
// logger. The registry package implements it.
type Env interface {
	schema.Resolver

	// DefaultRead returns the process-wide read default consulted when a
	// rule has no explicit gate. nil means allow-all.
	DefaultRead() veil.Predicate

	// DefaultReadFail returns the process-wide readFail default consulted
	// when a rule sets none. nil means the denied field yields nil.
	DefaultReadFail() *rule.ReadFail

	// Logger returns the logger for registration/denial audit events.
	// Never nil; a nop logger disables output.
	Logger() *zap.Logger
}

// Instance is a constructed model: a raw record viewed through a compiled
// schema, with per-field and per-prop caches and a back-reference to the
// constructing parent.
type Instance struct {
	schema *schema.Compiled
	env    Env
	data   map[string]veil.Value
	ctx    veil.Value
	parent *Instance

	mu     sync.Mutex
	fields map[string]veil.Value
	props  map[string]veil.Value
	flight singleflight.Group
}

// New constructs a top-most instance of the compiled schema over the raw
// record and opaque caller context. The record and context are referenced,
// not copied; the engine never mutates the record.
func New(sch *schema.Compiled, env Env, data map[string]veil.Value, ctx veil.Value) *Instance {
	return &Instance{schema: sch, env: env, data: data, ctx: ctx}
}

func newChild(sch *schema.Compiled, parent *Instance, data map[string]veil.Value) *Instance {
	return &Instance{schema: sch, env: parent.env, data: data, ctx: parent.ctx, parent: parent}
}

// SchemaName returns the most-derived schema name of the instance.
func (m *Instance) SchemaName() string { return m.schema.Name }

// Schema returns the instance's compiled schema.
func (m *Instance) Schema() *schema.Compiled { return m.schema }

// Data returns the raw backing record. Treat it as read-only.
func (m *Instance) Data() map[string]veil.Value { return m.data }

// Context returns the opaque caller context shared by the whole tree.
func (m *Instance) Context() veil.Value { return m.ctx }

// Get reads a field through its compiled rule.
//
// ok is false, with a nil error, when the schema declares no rule for the
// field; the raw record is never consulted in that case. A denied field is
// not an error either: it yields the resolved readFail value with ok true.
// Errors returned by host predicates and readFail functions propagate
// unmodified.
//
// Unless the rule disables caching, the computed value is cached on the
// instance and the computation runs at most once, concurrent readers
// included.
func (m *Instance) Get(field string) (veil.Value, bool, error) {
	desc, ok := m.schema.Rule(field)
	if !ok {
		return nil, false, nil
	}
	if desc.NoCache {
		v, err := m.resolveField(field, desc)
		return v, true, err
	}
	if v, hit := m.cachedField(field); hit {
		return v, true, nil
	}
	v, err, _ := m.flight.Do("f:"+field, func() (any, error) {
		if v, hit := m.cachedField(field); hit {
			return v, nil
		}
		v, err := m.resolveField(field, desc)
		if err != nil {
			return nil, err
		}
		m.storeField(field, v)
		return v, nil
	})
	if err != nil {
		return nil, true, err
	}
	return v, true, nil
}

// MustGet is like Get but panics on error. It returns nil for fields that
// are not exposed.
func (m *Instance) MustGet(field string) veil.Value {
	v, _, err := m.Get(field)
	if err != nil {
		panic(err)
	}
	return v
}

// Set overwrites the field's cache slot with value, bypassing rule
// evaluation. The raw record is not touched. A later Get returns value
// until the slot is invalidated, regardless of the rule's outcome.
func (m *Instance) Set(field string, value veil.Value) {
	m.storeField(field, value)
}

// Invalidate clears the field's cache slot, forcing recomputation on the
// next Get. The raw record is not touched.
func (m *Instance) Invalidate(field string) {
	m.mu.Lock()
	delete(m.fields, field)
	m.mu.Unlock()
}

// resolveField evaluates the read gate and produces the field value:
// the raw (or nested) value when allowed, the resolved readFail otherwise.
func (m *Instance) resolveField(field string, desc *rule.Descriptor) (veil.Value, error) {
	allowed, err := m.evalGate(desc)
	if err != nil {
		return nil, err
	}
	if !allowed {
		m.env.Logger().Debug("veil: field denied",
			zap.String("schema", m.schema.Name),
			zap.String("field", field),
		)
		return m.resolveReadFail(desc)
	}
	if desc.Type != "" {
		return m.buildNested(field, desc)
	}
	return m.data[field], nil
}

func (m *Instance) evalGate(desc *rule.Descriptor) (bool, error) {
	pred := desc.Predicate
	switch desc.Gate {
	case rule.GateAllow:
		return true, nil
	case rule.GateDeny:
		return false, nil
	case rule.GateDefault:
		pred = m.env.DefaultRead()
		if pred == nil {
			return true, nil
		}
	}
	v, err := pred(m.bundle(nil))
	if err != nil {
		return false, err
	}
	return veil.Truthy(v), nil
}

func (m *Instance) resolveReadFail(desc *rule.Descriptor) (veil.Value, error) {
	rf := desc.ReadFail
	if rf == nil {
		rf = m.env.DefaultReadFail()
	}
	if rf == nil {
		return nil, nil
	}
	if rf.Fn != nil {
		return rf.Fn(m.bundle(nil))
	}
	return rf.Value, nil
}

func (m *Instance) cachedField(field string) (veil.Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.fields[field]
	return v, ok
}

func (m *Instance) storeField(field string, v veil.Value) {
	m.mu.Lock()
	if m.fields == nil {
		m.fields = make(map[string]veil.Value)
	}
	m.fields[field] = v
	m.mu.Unlock()
}

// bundle builds the context bundle passed to predicates, readFail
// functions, and prop functions. chain carries the prop names currently
// being resolved, for cycle detection.
func (m *Instance) bundle(chain []string) *veil.Bundle {
	return &veil.Bundle{
		Data:    m.data,
		Context: m.ctx,
		Props:   propsAccessor{m: m, chain: chain},
		Root:    m.Root(),
	}
}

var _ veil.Model = (*Instance)(nil)
