// Package rule provides builders for declaring field access rules in veil
// schemas.
//
// A rule decides, per field read, whether the raw value is exposed. The
// shorthand constructors cover the common cases:
//
//	rule.Allow()            // always expose the raw value
//	rule.Deny()             // always deny; yields the readFail value
//	rule.Read(pred)         // gate on a predicate's truthiness
//
// The full config form chains builder methods:
//
//	rule.New().
//	    Read(isOwner).
//	    ReadFail(ErrHidden).
//	    NoCache().
//	    Type("Post").
//	    List()
//
// A rule with no explicit gate falls back to the registry's process-wide
// read default (itself defaulting to allow-all); likewise an unset readFail
// falls back to the registry default (itself defaulting to a nil value).
package rule

import (
	"github.com/syssam/veil"
)

// Gate enumerates the read-gate variants of a rule. Dynamic shorthand forms
// are normalized into this tagged variant at build time, so field access
// never inspects value shapes.
type Gate int8

const (
	// GateDefault defers to the registry's process-wide read default.
	GateDefault Gate = iota
	// GateAllow always exposes the raw value.
	GateAllow
	// GateDeny always denies; the field yields its readFail value.
	GateDeny
	// GatePredicate gates on the truthiness of a predicate result.
	GatePredicate
)

// String returns the gate name.
func (g Gate) String() string {
	switch g {
	case GateAllow:
		return "allow"
	case GateDeny:
		return "deny"
	case GatePredicate:
		return "predicate"
	default:
		return "default"
	}
}

// ReadFail describes how a denied field produces its value. When Fn is
// non-nil it is invoked with the context bundle and its result becomes the
// field value (an error propagates to the caller); otherwise Value is used
// literally, so a prebuilt error value is returned as data, not raised.
type ReadFail struct {
	Fn    veil.FailFunc
	Value veil.Value
}

// Descriptor is the normalized, immutable form of a rule consumed by the
// schema compiler and the field access engine.
type Descriptor struct {
	Gate      Gate           // Read-gate variant.
	Predicate veil.Predicate // Gate predicate; set iff Gate == GatePredicate.
	ReadFail  *ReadFail      // nil means "use the registry default".
	NoCache   bool           // Caching is on unless explicitly disabled.
	Type      string         // Nested schema name; empty for plain values.
	List      bool           // Nested list; meaningful only with Type.
}

// Rule is the builder for field access rules.
type Rule struct {
	desc *Descriptor
}

// New returns a rule in the config form: gate and readFail default to the
// registry's process-wide defaults, caching is enabled.
func New() *Rule {
	return &Rule{desc: &Descriptor{}}
}

// Allow returns a rule that always exposes the raw value.
func Allow() *Rule {
	return &Rule{desc: &Descriptor{Gate: GateAllow}}
}

// Deny returns a rule that always denies and yields the readFail value.
func Deny() *Rule {
	return &Rule{desc: &Descriptor{Gate: GateDeny}}
}

// Read returns a rule gated on the truthiness of p's result. It is the
// shorthand-function form of the config field of the same name.
func Read(p veil.Predicate) *Rule {
	return New().Read(p)
}

// Read sets the rule's gate predicate.
func (r *Rule) Read(p veil.Predicate) *Rule {
	r.desc.Gate = GatePredicate
	r.desc.Predicate = p
	return r
}

// ReadFail sets the literal value the field yields when denied. The value
// is returned as data even when it is an error value.
func (r *Rule) ReadFail(v veil.Value) *Rule {
	r.desc.ReadFail = &ReadFail{Value: v}
	return r
}

// ReadFailFunc sets a function producing the field's value when denied.
func (r *Rule) ReadFailFunc(fn veil.FailFunc) *Rule {
	r.desc.ReadFail = &ReadFail{Fn: fn}
	return r
}

// NoCache disables per-instance caching for the field: the gate (and
// readFail resolution) runs on every read.
func (r *Rule) NoCache() *Rule {
	r.desc.NoCache = true
	return r
}

// Cache sets the caching behavior explicitly. Caching is on by default.
func (r *Rule) Cache(enabled bool) *Rule {
	r.desc.NoCache = !enabled
	return r
}

// Type declares the field as a nested object of the named schema. The name
// is resolved against the registry lazily at access time, so schemas may
// reference each other regardless of registration order.
func (r *Rule) Type(name string) *Rule {
	r.desc.Type = name
	return r
}

// List declares the field as an ordered list of nested objects. It is
// meaningful only together with Type.
func (r *Rule) List() *Rule {
	r.desc.List = true
	return r
}

// Descriptor returns the rule descriptor. The returned value is shared with
// the builder and must not be modified after registration.
func (r *Rule) Descriptor() *Descriptor {
	return r.desc
}
