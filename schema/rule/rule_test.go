package rule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/veil"
	"github.com/syssam/veil/schema/rule"
)

// TestShorthands tests the Allow/Deny/Read constructor forms.
func TestShorthands(t *testing.T) {
	t.Parallel()

	t.Run("allow", func(t *testing.T) {
		d := rule.Allow().Descriptor()
		assert.Equal(t, rule.GateAllow, d.Gate)
		assert.False(t, d.NoCache)
		assert.Nil(t, d.ReadFail)
	})

	t.Run("deny", func(t *testing.T) {
		d := rule.Deny().Descriptor()
		assert.Equal(t, rule.GateDeny, d.Gate)
	})

	t.Run("predicate", func(t *testing.T) {
		pred := func(*veil.Bundle) (veil.Value, error) { return true, nil }
		d := rule.Read(pred).Descriptor()
		assert.Equal(t, rule.GatePredicate, d.Gate)
		require.NotNil(t, d.Predicate)
	})
}

// TestConfigForm tests the builder chain of the full config form.
func TestConfigForm(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		d := rule.New().Descriptor()
		assert.Equal(t, rule.GateDefault, d.Gate)
		assert.Nil(t, d.Predicate)
		assert.Nil(t, d.ReadFail)
		assert.False(t, d.NoCache)
		assert.Empty(t, d.Type)
		assert.False(t, d.List)
	})

	t.Run("read_fail_literal", func(t *testing.T) {
		d := rule.Deny().ReadFail("hidden").Descriptor()
		require.NotNil(t, d.ReadFail)
		assert.Nil(t, d.ReadFail.Fn)
		assert.Equal(t, "hidden", d.ReadFail.Value)
	})

	t.Run("read_fail_explicit_nil", func(t *testing.T) {
		// Setting a nil literal is distinct from leaving readFail unset.
		d := rule.Deny().ReadFail(nil).Descriptor()
		require.NotNil(t, d.ReadFail)
		assert.Nil(t, d.ReadFail.Value)
	})

	t.Run("read_fail_func", func(t *testing.T) {
		fn := func(*veil.Bundle) (veil.Value, error) { return "denied", nil }
		d := rule.Deny().ReadFailFunc(fn).Descriptor()
		require.NotNil(t, d.ReadFail)
		require.NotNil(t, d.ReadFail.Fn)
	})

	t.Run("cache_toggle", func(t *testing.T) {
		assert.True(t, rule.New().NoCache().Descriptor().NoCache)
		assert.True(t, rule.New().Cache(false).Descriptor().NoCache)
		assert.False(t, rule.New().Cache(true).Descriptor().NoCache)
	})

	t.Run("nested_type", func(t *testing.T) {
		d := rule.New().Type("Post").List().Descriptor()
		assert.Equal(t, "Post", d.Type)
		assert.True(t, d.List)
	})
}

// TestGateString tests the gate names.
func TestGateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "default", rule.GateDefault.String())
	assert.Equal(t, "allow", rule.GateAllow.String())
	assert.Equal(t, "deny", rule.GateDeny.String())
	assert.Equal(t, "predicate", rule.GatePredicate.String())
}
