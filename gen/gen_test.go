package gen_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veil"
	"github.com/syssam/veil/gen"
	"github.com/syssam/veil/registry"
	"github.com/syssam/veil/schema"
	"github.com/syssam/veil/schema/rule"
)

func blogRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	reg.MustRegister(&schema.Definition{
		Name: "Post",
		Rules: map[string]*rule.Rule{
			"title": rule.Allow(),
		},
	})
	reg.MustRegister(&schema.Definition{
		Name: "User",
		Rules: map[string]*rule.Rule{
			"id":         rule.Allow(),
			"email":      rule.Deny(),
			"posts":      rule.New().Type("Post").List(),
			"best_post":  rule.New().Type("Post"),
			"dangling":   rule.New().Type("Unregistered"),
			"created_at": rule.Allow(),
		},
		Props: map[string]veil.PropFunc{
			"isSelf": func(*veil.Bundle) (veil.Value, error) { return true, nil },
		},
	})
	return reg
}

// TestNames tests file and type name derivation.
func TestNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "user_veil.go", gen.FileName("User"))
	assert.Equal(t, "order_item_veil.go", gen.FileName("OrderItem"))
	assert.Equal(t, "OrderItem", gen.TypeName("OrderItem"))
	assert.Equal(t, "OrderItem", gen.TypeName("order_item"))
}

// TestSource tests the rendered wrapper for one schema.
func TestSource(t *testing.T) {
	t.Parallel()

	reg := blogRegistry(t)
	g := gen.New(reg, "blogmodel", t.TempDir())
	user, ok := reg.Schema("User")
	require.True(t, ok)

	src, err := g.Source(user.Compiled())
	require.NoError(t, err)
	out := string(src)

	assert.Contains(t, out, "package blogmodel")
	assert.Contains(t, out, "Code generated by veil gen. DO NOT EDIT.")
	assert.Contains(t, out, "type User struct")
	assert.Contains(t, out, "func NewUser(inst *model.Instance) User")

	// Plain field: untyped getter plus setter and invalidator.
	assert.Contains(t, out, "func (m User) Email() (veil.Value, bool, error)")
	assert.Contains(t, out, "func (m User) SetEmail(v veil.Value)")
	assert.Contains(t, out, "func (m User) InvalidateEmail()")

	// Snake-case fields camelize.
	assert.Contains(t, out, "func (m User) CreatedAt() (veil.Value, bool, error)")

	// Nested fields get typed wrappers when the target is registered.
	assert.Contains(t, out, "func (m User) Posts() ([]Post, bool, error)")
	assert.Contains(t, out, "func (m User) BestPost() (Post, bool, error)")

	// An unregistered target falls back to the untyped getter.
	assert.Contains(t, out, "func (m User) Dangling() (veil.Value, bool, error)")

	// Props resolve through the instance.
	assert.Contains(t, out, "func (m User) IsSelf() (veil.Value, error)")
	assert.Contains(t, out, `m.inst.Prop("isSelf")`)
}

// TestSourceDeterministic tests that repeated renders are byte-identical.
func TestSourceDeterministic(t *testing.T) {
	t.Parallel()

	reg := blogRegistry(t)
	g := gen.New(reg, "blogmodel", t.TempDir())
	user, _ := reg.Schema("User")

	a, err := g.Source(user.Compiled())
	require.NoError(t, err)
	b, err := g.Source(user.Compiled())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

// TestGenerate tests the parallel file writer.
func TestGenerate(t *testing.T) {
	t.Parallel()

	reg := blogRegistry(t)
	dir := t.TempDir()
	g := gen.New(reg, "blogmodel", dir).WithWorkers(2)
	require.NoError(t, g.Generate(context.Background()))

	for _, name := range []string{"post_veil.go", "user_veil.go"} {
		src, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Contains(t, string(src), "package blogmodel")
	}
}

// TestMethodCollisions tests that colliding names stay unique.
func TestMethodCollisions(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	s := reg.MustRegister(&schema.Definition{
		Name: "Odd",
		Rules: map[string]*rule.Rule{
			// Camelizes to Instance, which the wrapper already uses.
			"instance": rule.Allow(),
		},
		Props: map[string]veil.PropFunc{
			// Collides with the field method.
			"Instance": func(*veil.Bundle) (veil.Value, error) { return nil, nil },
		},
	})
	g := gen.New(reg, "oddmodel", t.TempDir())

	src, err := g.Source(s.Compiled())
	require.NoError(t, err)
	out := string(src)
	assert.Contains(t, out, "func (m Odd) Instance_()")
	assert.Contains(t, out, "func (m Odd) Instance__()")
}
