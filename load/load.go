// Package load reads veil schema declarations from YAML policy documents.
//
// Policy files carry the declarative part of a schema: rule gates, readFail
// configuration, caching, nested types, and interface composition. Host
// code cannot live in YAML, so predicates, props, and readFail functions
// are referenced by name and resolved against a host-supplied [FuncMap].
//
// A minimal document:
//
//	defaults:
//	  read: isLoggedIn
//	schemas:
//	  - name: Post
//	    rules:
//	      title: true
//	      draft: isAuthor
//	  - name: User
//	    rules:
//	      id: true
//	      secret: false
//	      email: {read: isSelf, cache: false}
//	      posts: {type: Post, list: true}
//	    props:
//	      isSelf: userIsSelf
//
// Rules accept three forms, normalized into the same descriptor the Go
// builders produce: a boolean (allow/deny), a bare function name
// (predicate shorthand), or a config mapping with the keys read, readFail,
// readFailFunc, cache, type, and list.
package load

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/syssam/veil"
	"github.com/syssam/veil/registry"
	"github.com/syssam/veil/schema"
	"github.com/syssam/veil/schema/rule"
)

// FuncMap resolves the function names referenced by a policy document.
// The same table serves read predicates, readFail functions, and props.
type FuncMap map[string]func(*veil.Bundle) (veil.Value, error)

// File is a parsed policy document.
type File struct {
	Defaults *DefaultsSpec `yaml:"defaults"`
	Schemas  []*SchemaSpec `yaml:"schemas"`
}

// DefaultsSpec declares the process-wide rule defaults.
type DefaultsSpec struct {
	Read         string    `yaml:"read"`         // Read-gate function name; empty means allow-all.
	ReadFail     yaml.Node `yaml:"readFail"`     // Literal denied value.
	ReadFailFunc string    `yaml:"readFailFunc"` // Denied-value function name; wins over ReadFail.
}

// SchemaSpec declares one schema. Base and interface references name other
// schemas declared earlier in the same document.
type SchemaSpec struct {
	Name       string               `yaml:"name"`
	Base       string               `yaml:"base"`
	Interfaces []string             `yaml:"interfaces"`
	Rules      map[string]*RuleSpec `yaml:"rules"`
	Props      map[string]string    `yaml:"props"`
}

// RuleSpec is one rule in any of its three YAML forms.
type RuleSpec struct {
	allow, deny bool
	predicate   string // Bare-function shorthand.

	config *ruleConfig
}

type ruleConfig struct {
	Read         string     `yaml:"read"`
	ReadFail     *yaml.Node `yaml:"readFail"`
	ReadFailFunc string     `yaml:"readFailFunc"`
	Cache        *bool      `yaml:"cache"`
	Type         string     `yaml:"type"`
	List         bool       `yaml:"list"`
}

// UnmarshalYAML implements yaml.Unmarshaler, accepting the boolean,
// bare-function, and config mapping forms.
func (r *RuleSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!bool" {
			var b bool
			if err := node.Decode(&b); err != nil {
				return err
			}
			r.allow, r.deny = b, !b
			return nil
		}
		var name string
		if err := node.Decode(&name); err != nil {
			return err
		}
		if name == "" {
			return fmt.Errorf("veil/load: line %d: empty rule function name", node.Line)
		}
		r.predicate = name
		return nil
	case yaml.MappingNode:
		r.config = &ruleConfig{}
		return node.Decode(r.config)
	default:
		return fmt.Errorf("veil/load: line %d: rule must be a boolean, function name, or mapping", node.Line)
	}
}

// build normalizes the spec into a rule builder, resolving function names.
func (r *RuleSpec) build(funcs FuncMap) (*rule.Rule, error) {
	switch {
	case r.allow:
		return rule.Allow(), nil
	case r.deny:
		return rule.Deny(), nil
	case r.predicate != "":
		fn, err := lookupFunc(funcs, r.predicate)
		if err != nil {
			return nil, err
		}
		return rule.Read(veil.Predicate(fn)), nil
	}
	b := rule.New()
	cfg := r.config
	if cfg == nil {
		return b, nil
	}
	if cfg.Read != "" {
		fn, err := lookupFunc(funcs, cfg.Read)
		if err != nil {
			return nil, err
		}
		b.Read(veil.Predicate(fn))
	}
	switch {
	case cfg.ReadFailFunc != "":
		fn, err := lookupFunc(funcs, cfg.ReadFailFunc)
		if err != nil {
			return nil, err
		}
		b.ReadFailFunc(veil.FailFunc(fn))
	case cfg.ReadFail != nil:
		var v veil.Value
		if err := cfg.ReadFail.Decode(&v); err != nil {
			return nil, err
		}
		b.ReadFail(v)
	}
	if cfg.Cache != nil {
		b.Cache(*cfg.Cache)
	}
	if cfg.Type != "" {
		b.Type(cfg.Type)
	}
	if cfg.List {
		b.List()
	}
	return b, nil
}

func lookupFunc(funcs FuncMap, name string) (func(*veil.Bundle) (veil.Value, error), error) {
	fn, ok := funcs[name]
	if !ok {
		return nil, fmt.Errorf("veil/load: function %q is not in the function table", name)
	}
	return fn, nil
}

// Parse decodes a policy document.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	f := &File{}
	if err := dec.Decode(f); err != nil {
		return nil, fmt.Errorf("veil/load: decode policy: %w", err)
	}
	return f, nil
}

// Apply registers the document's schemas on the registry in declaration
// order and applies its defaults. Base and interface references must name
// schemas declared earlier in the document.
func (f *File) Apply(reg *registry.Registry, funcs FuncMap) error {
	if f.Defaults != nil {
		d, err := f.Defaults.build(funcs)
		if err != nil {
			return err
		}
		reg.SetDefaults(d)
	}
	defs := make(map[string]*schema.Definition, len(f.Schemas))
	for _, spec := range f.Schemas {
		def, err := spec.build(funcs, defs)
		if err != nil {
			return err
		}
		if _, err := reg.Register(def); err != nil {
			return err
		}
		defs[def.Name] = def
	}
	return nil
}

func (d *DefaultsSpec) build(funcs FuncMap) (registry.Defaults, error) {
	var out registry.Defaults
	if d.Read != "" {
		fn, err := lookupFunc(funcs, d.Read)
		if err != nil {
			return out, err
		}
		out.Read = veil.Predicate(fn)
	}
	switch {
	case d.ReadFailFunc != "":
		fn, err := lookupFunc(funcs, d.ReadFailFunc)
		if err != nil {
			return out, err
		}
		out.ReadFail = &rule.ReadFail{Fn: veil.FailFunc(fn)}
	case !d.ReadFail.IsZero():
		var v veil.Value
		if err := d.ReadFail.Decode(&v); err != nil {
			return out, err
		}
		out.ReadFail = &rule.ReadFail{Value: v}
	}
	return out, nil
}

func (s *SchemaSpec) build(funcs FuncMap, defs map[string]*schema.Definition) (*schema.Definition, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("veil/load: schema with no name")
	}
	def := &schema.Definition{Name: s.Name}
	if s.Base != "" {
		base, ok := defs[s.Base]
		if !ok {
			return nil, fmt.Errorf("veil/load: %s: base %q is not declared earlier in the document", s.Name, s.Base)
		}
		def.Base = base
	}
	for _, name := range s.Interfaces {
		iface, ok := defs[name]
		if !ok {
			return nil, fmt.Errorf("veil/load: %s: interface %q is not declared earlier in the document", s.Name, name)
		}
		def.Interfaces = append(def.Interfaces, iface)
	}
	if len(s.Rules) > 0 {
		def.Rules = make(map[string]*rule.Rule, len(s.Rules))
		for field, spec := range s.Rules {
			r, err := spec.build(funcs)
			if err != nil {
				return nil, fmt.Errorf("veil/load: %s.%s: %w", s.Name, field, err)
			}
			def.Rules[field] = r
		}
	}
	if len(s.Props) > 0 {
		def.Props = make(map[string]veil.PropFunc, len(s.Props))
		for name, fname := range s.Props {
			fn, err := lookupFunc(funcs, fname)
			if err != nil {
				return nil, fmt.Errorf("veil/load: %s prop %s: %w", s.Name, name, err)
			}
			def.Props[name] = veil.PropFunc(fn)
		}
	}
	return def, nil
}

// LoadFile parses the policy file at path and applies it to the registry.
func LoadFile(path string, reg *registry.Registry, funcs FuncMap) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("veil/load: open policy: %w", err)
	}
	defer f.Close()
	doc, err := Parse(f)
	if err != nil {
		return err
	}
	return doc.Apply(reg, funcs)
}
