package model

import (
	"github.com/syssam/veil"
)

// propsAccessor is the lazy props view handed out on bundles. It carries
// the chain of prop names currently being resolved on the instance, so a
// prop reading another prop extends the chain and re-entry is detected as
// a cycle instead of exhausting the stack.
type propsAccessor struct {
	m     *Instance
	chain []string
}

// Prop implements veil.PropReader.
func (p propsAccessor) Prop(name string) (veil.Value, error) {
	return p.m.prop(name, p.chain)
}

// Prop resolves a prop by name, computing and memoizing it on first touch.
// An unknown name yields (nil, nil). Prop functions receive a bundle whose
// Props accessor is backed by this same mechanism, so props may read each
// other in any declaration order; a prop that reads itself, directly or
// transitively, before completing returns a CircularPropError. Errors from
// host prop functions propagate unmodified and are not memoized.
func (m *Instance) Prop(name string) (veil.Value, error) {
	return m.prop(name, nil)
}

// MustProp is like Prop but panics on error.
func (m *Instance) MustProp(name string) veil.Value {
	v, err := m.Prop(name)
	if err != nil {
		panic(err)
	}
	return v
}

func (m *Instance) prop(name string, chain []string) (veil.Value, error) {
	fn, ok := m.schema.Prop(name)
	if !ok {
		return nil, nil
	}
	if v, hit := m.cachedProp(name); hit {
		return v, nil
	}
	for _, seen := range chain {
		if seen == name {
			path := make([]string, 0, len(chain)+1)
			path = append(path, chain...)
			path = append(path, name)
			return nil, &veil.CircularPropError{Schema: m.schema.Name, Path: path}
		}
	}
	// Full-slice expression: concurrent sibling resolutions must not share
	// the chain's backing array.
	chain = append(chain[:len(chain):len(chain)], name)
	v, err, _ := m.flight.Do("p:"+name, func() (any, error) {
		if v, hit := m.cachedProp(name); hit {
			return v, nil
		}
		v, err := fn(m.bundle(chain))
		if err != nil {
			return nil, err
		}
		m.storeProp(name, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (m *Instance) cachedProp(name string) (veil.Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.props[name]
	return v, ok
}

func (m *Instance) storeProp(name string, v veil.Value) {
	m.mu.Lock()
	if m.props == nil {
		m.props = make(map[string]veil.Value)
	}
	m.props[name] = v
	m.mu.Unlock()
}
