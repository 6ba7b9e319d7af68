// Package schema defines veil schema declarations and their compiled form.
//
// A [Definition] declares a schema's own rules and props, an optional single
// base schema, and an optional ordered list of interface schemas. Compiling
// a definition flattens the hierarchy into a single rule map and prop map
// with merge precedence, low to high:
//
//	base < interfaces in listed order < own declarations
//
// The merge is recursive: a base or interface is itself fully compiled
// (its own base and interfaces resolved) before being merged into the
// descendant. Nested-type references inside rules are plain names resolved
// against a [Resolver] lazily at access time, so mutually referencing
// schemas compile in any registration order.
package schema

import (
	"fmt"
	"sort"

	"github.com/syssam/veil"
	"github.com/syssam/veil/schema/rule"
)

// Definition declares a schema. Definitions are plain data: they carry no
// registry state and may be shared across registries. A definition must not
// be modified after registration.
type Definition struct {
	// Name is the unique registry key. Required.
	Name string

	// Base is the optional single base schema. Its rules and props are
	// merged in at the lowest precedence.
	Base *Definition

	// Interfaces are merged in listed order above the base; a later
	// interface overrides an earlier one on key collision. The schema's
	// own declarations override both.
	Interfaces []*Definition

	// Rules maps field names to their access rules.
	Rules map[string]*rule.Rule

	// Props maps prop names to their compute functions.
	Props map[string]veil.PropFunc
}

// Resolver resolves schema names to compiled schemas. It is implemented by
// the registry and consumed by the field access engine when a rule names a
// nested schema.
type Resolver interface {
	// Lookup returns the compiled schema registered under name, or an
	// UnknownSchemaError if the name is absent.
	Lookup(name string) (*Compiled, error)
}

// Compiled is the flattened, immutable view of a definition: the rule and
// prop maps after the base/interface/own merge, plus the set of interface
// names the schema carries.
type Compiled struct {
	Name string

	rules      map[string]*rule.Descriptor
	props      map[string]veil.PropFunc
	interfaces map[string]struct{}
}

// Rule returns the compiled rule for the field, if any.
func (c *Compiled) Rule(field string) (*rule.Descriptor, bool) {
	d, ok := c.rules[field]
	return d, ok
}

// Prop returns the compiled prop function for the name, if any.
func (c *Compiled) Prop(name string) (veil.PropFunc, bool) {
	fn, ok := c.props[name]
	return fn, ok
}

// Fields returns the declared field names in sorted order.
func (c *Compiled) Fields() []string {
	names := make([]string, 0, len(c.rules))
	for name := range c.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PropNames returns the declared prop names in sorted order.
func (c *Compiled) PropNames() []string {
	names := make([]string, 0, len(c.props))
	for name := range c.props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Implements reports whether the schema carries the named interface,
// including interfaces contributed by its base chain and by interfaces of
// interfaces.
func (c *Compiled) Implements(name string) bool {
	_, ok := c.interfaces[name]
	return ok
}

// Interfaces returns the carried interface names in sorted order.
func (c *Compiled) Interfaces() []string {
	names := make([]string, 0, len(c.interfaces))
	for name := range c.interfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile flattens the definition and its whole base/interface hierarchy.
// It is deterministic for a given definition; callers that require the
// at-most-once guarantee (the registry) cache the result per name.
func Compile(def *Definition) (*Compiled, error) {
	return compile(def, make(map[*Definition]bool))
}

func compile(def *Definition, active map[*Definition]bool) (*Compiled, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("veil/schema: definition has no name")
	}
	if active[def] {
		return nil, fmt.Errorf("veil/schema: inheritance cycle through %q", def.Name)
	}
	active[def] = true
	defer delete(active, def)

	c := &Compiled{
		Name:       def.Name,
		rules:      make(map[string]*rule.Descriptor),
		props:      make(map[string]veil.PropFunc),
		interfaces: make(map[string]struct{}),
	}
	if def.Base != nil {
		base, err := compile(def.Base, active)
		if err != nil {
			return nil, err
		}
		c.merge(base)
	}
	for _, iface := range def.Interfaces {
		ic, err := compile(iface, active)
		if err != nil {
			return nil, err
		}
		c.merge(ic)
		c.interfaces[ic.Name] = struct{}{}
	}
	for field, r := range def.Rules {
		if r == nil {
			return nil, fmt.Errorf("veil/schema: %s: nil rule for field %q", def.Name, field)
		}
		c.rules[field] = r.Descriptor()
	}
	for name, fn := range def.Props {
		if fn == nil {
			return nil, fmt.Errorf("veil/schema: %s: nil prop %q", def.Name, name)
		}
		c.props[name] = fn
	}
	return c, nil
}

// merge copies the lower-precedence schema's rules, props, and interface
// set into c, overwriting existing keys. Callers order merges low to high.
func (c *Compiled) merge(lower *Compiled) {
	for field, d := range lower.rules {
		c.rules[field] = d
	}
	for name, fn := range lower.props {
		c.props[name] = fn
	}
	for name := range lower.interfaces {
		c.interfaces[name] = struct{}{}
	}
}
