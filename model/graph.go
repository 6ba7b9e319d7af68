package model

import (
	"github.com/syssam/veil"
	"github.com/syssam/veil/schema/rule"
)

// buildNested constructs the value of a granted field whose rule names a
// nested schema: one child instance for the single case, an ordered slice
// of child instances for the list case. Children share the owner's context
// reference and point back to it as their parent. The result is cached by
// Get under the field's own cache setting, so repeated reads of a cached
// field return identical instances.
func (m *Instance) buildNested(field string, desc *rule.Descriptor) (veil.Value, error) {
	sch, err := m.env.Lookup(desc.Type)
	if err != nil {
		if u, ok := err.(*veil.UnknownSchemaError); ok && u.Field == "" {
			u.Field = field
		}
		return nil, err
	}
	if !desc.List {
		return newChild(sch, m, record(m.data[field])), nil
	}
	raw := elements(m.data[field])
	items := make([]*Instance, len(raw))
	for i, el := range raw {
		items[i] = newChild(sch, m, record(el))
	}
	return items, nil
}

// Parent returns the constructing parent, or nil for a top-most instance.
func (m *Instance) Parent() veil.Model {
	if m.parent == nil {
		return nil
	}
	return m.parent
}

// Root returns the top-most ancestor, walking parent references. The walk
// is proportional to tree depth and is recomputed on each access; the root
// of a top-most instance is itself.
func (m *Instance) Root() veil.Model {
	root := m
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// ParentOfType walks strictly upward from the immediate parent and returns
// the first ancestor whose most-derived schema name equals name, or nil if
// the walk reaches the top without a match. The instance itself is never
// considered.
func (m *Instance) ParentOfType(name string) veil.Model {
	for p := m.parent; p != nil; p = p.parent {
		if p.schema.Name == name {
			return p
		}
	}
	return nil
}

// Implements reports whether the instance's compiled schema carries the
// named interface, including interfaces contributed through its base chain.
func (m *Instance) Implements(name string) bool {
	return m.schema.Implements(name)
}

// record coerces a raw nested value to a record map. Non-map values,
// including nil, construct a child over a nil record: access rules still
// apply, raw reads yield nil.
func record(v veil.Value) map[string]veil.Value {
	r, _ := v.(map[string]veil.Value)
	return r
}

// elements coerces a raw list value to its elements, preserving order.
func elements(v veil.Value) []veil.Value {
	switch l := v.(type) {
	case []veil.Value:
		return l
	case []map[string]veil.Value:
		out := make([]veil.Value, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out
	default:
		return nil
	}
}
