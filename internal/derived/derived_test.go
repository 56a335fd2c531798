package derived

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenenazirov/config-overlay/internal/settings"
)

func TestSocialLoginsFollowsProviderToggles(t *testing.T) {
	t.Parallel()

	reg := Default()
	tree := settings.Tree{}
	require.NoError(t, settings.SocialLoginEnabledFor("saml").Set(tree, true))
	require.NoError(t, settings.SocialLoginEnabledFor("github").Set(tree, true))
	require.NoError(t, settings.SocialLoginEnabledFor("google").Set(tree, false))

	derived, err := reg.Apply(tree, "socialLoginConfig.google.enabled")
	require.NoError(t, err)
	assert.Equal(t, []string{"socialLogins"}, derived)

	got, ok := settings.SocialLogins.Get(tree)
	require.True(t, ok)
	assert.Equal(t, []string{"github", "saml"}, got)
}

func TestAncestorWriteTriggersRule(t *testing.T) {
	t.Parallel()

	reg := Default()
	tree := settings.Tree{}
	require.NoError(t, settings.SocialLoginConfig.Set(tree, settings.Tree{
		"discord": settings.Object(settings.Tree{"enabled": settings.Bool(true)}),
	}))

	derived, err := reg.Apply(tree, "socialLoginConfig")
	require.NoError(t, err)
	assert.Equal(t, []string{"socialLogins"}, derived)

	got, _ := settings.SocialLogins.Get(tree)
	assert.Equal(t, []string{"discord"}, got)
}

func TestUnrelatedWriteDerivesNothing(t *testing.T) {
	t.Parallel()

	reg := Default()
	tree := settings.Tree{}

	derived, err := reg.Apply(tree, "appTitle", "socialLoginConfigX")
	require.NoError(t, err)
	assert.Empty(t, derived)
	assert.Empty(t, tree)
}

func TestAllProvidersDisabledYieldsEmptyList(t *testing.T) {
	t.Parallel()

	tree := settings.Tree{}
	require.NoError(t, settings.SocialLoginEnabledFor("github").Set(tree, false))

	_, err := Default().Apply(tree, "socialLoginConfig.github.enabled")
	require.NoError(t, err)

	got, ok := settings.SocialLogins.Get(tree)
	require.True(t, ok)
	assert.Empty(t, got)
}

func TestDerivedValueIsCoerced(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(Rule{
		Target:   "balance.startBalance",
		Kind:     settings.KindNumber,
		Triggers: []string{"appTitle"},
		Compute:  func(settings.Tree) settings.Value { return settings.String("100") },
	})
	tree := settings.Tree{}

	_, err := reg.Apply(tree, "appTitle")
	require.NoError(t, err)
	n, ok := settings.BalanceStartBalance.Get(tree)
	require.True(t, ok)
	assert.InDelta(t, 100, n, 0)

	bad := NewRegistry(Rule{
		Target:   "balance.startBalance",
		Kind:     settings.KindNumber,
		Triggers: []string{"appTitle"},
		Compute:  func(settings.Tree) settings.Value { return settings.Bool(true) },
	})
	_, err = bad.Apply(settings.Tree{}, "appTitle")
	assert.ErrorIs(t, err, settings.ErrInvalidValue)
}
