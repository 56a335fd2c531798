package resolve

import "github.com/eugenenazirov/config-overlay/internal/settings"

// Defaults returns the built-in values used when no other tier defines a setting.
func Defaults() settings.Tree {
	t := settings.Tree{}
	_ = settings.AppTitle.Set(t, "LibreChat")
	_ = settings.HelpAndFaqURL.Set(t, "https://librechat.ai")
	_ = settings.EmailLoginEnabled.Set(t, true)
	_ = settings.RegistrationEnabled.Set(t, false)
	_ = settings.SocialLoginEnabled.Set(t, false)
	_ = settings.PasswordResetEnabled.Set(t, false)
	_ = settings.SocialLogins.Set(t, settings.SocialProviders)

	for _, k := range []settings.BoolKey{
		settings.InterfaceModelSelect,
		settings.InterfaceParameters,
		settings.InterfaceSidePanel,
		settings.InterfacePresets,
		settings.InterfacePrompts,
		settings.InterfaceMemories,
		settings.InterfaceBookmarks,
		settings.InterfaceMultiConvo,
		settings.InterfaceAgents,
		settings.InterfaceEndpointsMenu,
	} {
		_ = k.Set(t, true)
	}
	return t
}
