// Package veil is a field-level access-control and derived-attribute engine
// for tree-shaped data.
//
// A schema declares, per field, a rule deciding whether the raw value is
// exposed to the caller, and a set of derived attributes ("props") computed
// lazily from the caller context. Fields whose rules name another schema are
// resolved into typed model instances on first read, wiring parent and root
// back-references through the whole constructed tree.
//
// Schemas are registered on a [registry.Registry] and instantiated through
// the handle it returns:
//
//	reg := registry.New()
//	user := reg.MustRegister(&schema.Definition{
//	    Name: "User",
//	    Rules: map[string]*rule.Rule{
//	        "id":    rule.Allow(),
//	        "email": rule.Read(func(b *veil.Bundle) (veil.Value, error) {
//	            return b.Props.Prop("isSelf")
//	        }),
//	        "posts": rule.New().Type("Post").List(),
//	    },
//	    Props: map[string]veil.PropFunc{
//	        "isSelf": func(b *veil.Bundle) (veil.Value, error) {
//	            return b.Data["id"] == b.Context, nil
//	        },
//	    },
//	})
//
//	m := user.New(record, callerID)
//	email, ok, err := m.Get("email")
//
// The engine itself performs no I/O: raw records and the caller context are
// supplied by the host, and transport of exposed values is the host's
// responsibility.
package veil

// Value is the dynamic value type flowing through the engine: raw record
// values, rule predicate results, prop results, and readFail values.
type Value = any

// Bundle is the argument passed to every rule predicate, readFail function,
// and prop function. It carries the instance's raw record, the opaque caller
// context shared by the whole constructed tree, a lazy accessor over the
// instance's props, and the top-most ancestor of the tree.
type Bundle struct {
	// Data is the instance's raw backing record. It is shared with the
	// instance and must be treated as read-only.
	Data map[string]Value

	// Context is the opaque caller context. Every instance in one
	// constructed tree holds the identical reference.
	Context Value

	// Props resolves the instance's props lazily. A prop function may read
	// any other prop through it, regardless of declaration order; each prop
	// is computed at most once per instance.
	Props PropReader

	// Root is the top-most ancestor of the instance's tree. For the
	// top-most instance it is the instance itself.
	Root Model
}

// PropReader is the lazy props accessor exposed on a [Bundle].
type PropReader interface {
	// Prop returns the named prop, computing and memoizing it on first
	// touch. An unknown name yields (nil, nil). Reading a prop that is
	// still being computed in the current resolution chain returns a
	// [CircularPropError].
	Prop(name string) (Value, error)
}

// Predicate is a host-supplied read gate. Its result is coerced to a
// boolean with [Truthy]; a returned error aborts the field read and
// propagates unmodified to the caller.
type Predicate func(*Bundle) (Value, error)

// PropFunc computes a derived attribute from the context bundle. Results
// are always memoized per instance.
type PropFunc func(*Bundle) (Value, error)

// FailFunc produces a field's value when its read gate denies access. A
// returned error propagates unmodified to the caller.
type FailFunc func(*Bundle) (Value, error)

// Model is the read surface of a constructed instance, as visible from a
// [Bundle]. The concrete implementation lives in the model package.
type Model interface {
	// Get reads a declared field through its rule. ok is false when the
	// compiled schema has no rule for the field; this is distinct from a
	// denial, which yields the resolved readFail value with ok true.
	Get(field string) (Value, bool, error)

	// Prop resolves a prop by name, memoizing the result.
	Prop(name string) (Value, error)

	// Data returns the raw backing record.
	Data() map[string]Value

	// Context returns the opaque caller context.
	Context() Value

	// Parent returns the constructing parent instance, or nil for the
	// top-most instance of a tree.
	Parent() Model

	// Root returns the top-most ancestor, walking parent references. The
	// root of a top-most instance is itself.
	Root() Model

	// SchemaName returns the most-derived schema name of the instance.
	SchemaName() string

	// ParentOfType returns the nearest strict ancestor whose most-derived
	// schema name equals name, or nil if no ancestor matches. The instance
	// itself is never considered.
	ParentOfType(name string) Model

	// Implements reports whether the instance's compiled schema carries the
	// named interface, including interfaces contributed through its base
	// chain.
	Implements(name string) bool
}

// Truthy coerces a dynamic value to a boolean the way rule gates interpret
// predicate results: nil, false, numeric zero, and the empty string are
// false; everything else, including negative numbers and empty non-nil
// composites, is true.
func Truthy(v Value) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int8:
		return v != 0
	case int16:
		return v != 0
	case int32:
		return v != 0
	case int64:
		return v != 0
	case uint:
		return v != 0
	case uint8:
		return v != 0
	case uint16:
		return v != 0
	case uint32:
		return v != 0
	case uint64:
		return v != 0
	case uintptr:
		return v != 0
	case float32:
		return v != 0
	case float64:
		return v != 0
	case complex64:
		return v != 0
	case complex128:
		return v != 0
	default:
		return true
	}
}
