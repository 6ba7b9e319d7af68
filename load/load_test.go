package load_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veil"
	"github.com/syssam/veil/load"
	"github.com/syssam/veil/model"
	"github.com/syssam/veil/registry"
	"github.com/syssam/veil/schema/rule"
)

const blogPolicy = `
defaults:
  readFail: "<redacted>"
schemas:
  - name: Post
    rules:
      title: true
      draft: isAuthor
  - name: Named
    rules:
      name: true
  - name: User
    base: Named
    interfaces: [Post]
    rules:
      id: true
      secret: false
      email: {read: isSelf, cache: false}
      posts: {type: Post, list: true}
    props:
      isSelf: userIsSelf
`

func testFuncs() load.FuncMap {
	return load.FuncMap{
		"isAuthor": func(b *veil.Bundle) (veil.Value, error) {
			return b.Context == "author", nil
		},
		"isSelf": func(b *veil.Bundle) (veil.Value, error) {
			return b.Props.Prop("isSelf")
		},
		"userIsSelf": func(b *veil.Bundle) (veil.Value, error) {
			return b.Data["id"] == b.Context, nil
		},
	}
}

// TestParseForms tests the three rule declaration forms.
func TestParseForms(t *testing.T) {
	t.Parallel()

	f, err := load.Parse(strings.NewReader(blogPolicy))
	require.NoError(t, err)
	require.Len(t, f.Schemas, 3)

	reg := registry.New()
	require.NoError(t, f.Apply(reg, testFuncs()))

	user, err := reg.Lookup("User")
	require.NoError(t, err)

	// Boolean shorthands.
	d, ok := user.Rule("id")
	require.True(t, ok)
	assert.Equal(t, rule.GateAllow, d.Gate)
	d, _ = user.Rule("secret")
	assert.Equal(t, rule.GateDeny, d.Gate)

	// Config form with cache toggle.
	d, _ = user.Rule("email")
	assert.Equal(t, rule.GatePredicate, d.Gate)
	assert.True(t, d.NoCache)

	// Nested list rule.
	d, _ = user.Rule("posts")
	assert.Equal(t, "Post", d.Type)
	assert.True(t, d.List)

	// Bare-function shorthand on the Post schema.
	post, err := reg.Lookup("Post")
	require.NoError(t, err)
	d, _ = post.Rule("draft")
	assert.Equal(t, rule.GatePredicate, d.Gate)

	// Base and interface composition.
	_, ok = user.Rule("name")
	assert.True(t, ok)
	assert.True(t, user.Implements("Post"))
}

// TestLoadedPolicyBehaves exercises a loaded registry end to end.
func TestLoadedPolicyBehaves(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	f, err := load.Parse(strings.NewReader(blogPolicy))
	require.NoError(t, err)
	require.NoError(t, f.Apply(reg, testFuncs()))

	user, ok := reg.Schema("User")
	require.True(t, ok)

	record := map[string]veil.Value{
		"id":     "u1",
		"email":  "ada@example.com",
		"secret": "hunter2",
		"posts": []veil.Value{
			map[string]veil.Value{"title": "hello"},
		},
	}

	self := user.New(record, "u1")
	v, _, err := self.Get("email")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", v)

	// The document's default readFail applies to the denied boolean rule.
	v, _, err = self.Get("secret")
	require.NoError(t, err)
	assert.Equal(t, "<redacted>", v)

	other := user.New(record, "u2")
	v, _, err = other.Get("email")
	require.NoError(t, err)
	assert.Equal(t, "<redacted>", v)

	posts := self.MustGet("posts").([]*model.Instance)
	require.Len(t, posts, 1)
	assert.Equal(t, "hello", posts[0].MustGet("title"))
}

// TestParseErrors tests rejection of malformed documents.
func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "unknown_field",
			doc:     "schemata: []",
			wantErr: "decode policy",
		},
		{
			name: "bad_rule_kind",
			doc: `
schemas:
  - name: X
    rules:
      f: [1, 2]
`,
			wantErr: "boolean, function name, or mapping",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load.Parse(strings.NewReader(tt.doc))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

// TestApplyErrors tests resolution failures while applying a document.
func TestApplyErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name: "unknown_function",
			doc: `
schemas:
  - name: X
    rules:
      f: missingFn
`,
			wantErr: `function "missingFn"`,
		},
		{
			name: "forward_base_reference",
			doc: `
schemas:
  - name: X
    base: Later
  - name: Later
`,
			wantErr: `base "Later"`,
		},
		{
			name: "forward_interface_reference",
			doc: `
schemas:
  - name: X
    interfaces: [Later]
  - name: Later
`,
			wantErr: `interface "Later"`,
		},
		{
			name: "nameless_schema",
			doc: `
schemas:
  - rules:
      f: true
`,
			wantErr: "schema with no name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := load.Parse(strings.NewReader(tt.doc))
			require.NoError(t, err)
			err = f.Apply(registry.New(), testFuncs())
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

// TestLoadFile tests loading from disk.
func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(blogPolicy), 0o644))

	reg := registry.New()
	require.NoError(t, load.LoadFile(path, reg, testFuncs()))
	_, err := reg.Lookup("User")
	assert.NoError(t, err)

	assert.Error(t, load.LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), reg, nil))
}

// TestWatch tests initial load and reload on change.
func TestWatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(blogPolicy), 0o644))

	loaded := make(chan *registry.Registry, 4)
	w, err := load.Watch(path, testFuncs(), func(reg *registry.Registry, err error) {
		if err == nil {
			loaded <- reg
		}
	})
	require.NoError(t, err)
	defer w.Close()

	// Initial load is synchronous.
	first := <-loaded
	_, err = first.Lookup("User")
	require.NoError(t, err)

	// A rewrite delivers a fresh registry. Filesystem notifications may
	// arrive more than once per write; wait for the one that carries the
	// new schema.
	next := strings.Replace(blogPolicy, "name: User", "name: Member", 1)
	require.NoError(t, os.WriteFile(path, []byte(next), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case reg := <-loaded:
			if _, err := reg.Lookup("Member"); err == nil {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for policy reload")
		}
	}
}
