package resolve

import (
	"strings"

	"github.com/eugenenazirov/config-overlay/internal/settings"
)

// EnvBinding reads a setting from the environment.
type EnvBinding func(lookup LookupEnv) (settings.Value, bool)

// DefaultBindings returns the recognized environment variables per override path.
func DefaultBindings() map[string]EnvBinding {
	return map[string]EnvBinding{
		settings.AppTitle.Path():             nonEmpty("APP_TITLE"),
		settings.HelpAndFaqURL.Path():        nonEmpty("HELP_AND_FAQ_URL"),
		settings.CustomFooter.Path():         present("CUSTOM_FOOTER"),
		settings.RegistrationEnabled.Path():  flag("ALLOW_REGISTRATION"),
		settings.SocialLoginEnabled.Path():   flag("ALLOW_SOCIAL_LOGIN"),
		settings.EmailLoginEnabled.Path():    flag("ALLOW_EMAIL_LOGIN"),
		settings.PasswordResetEnabled.Path(): flag("ALLOW_PASSWORD_RESET"),
	}
}

// IsEnabled reports whether an environment value means true.
func IsEnabled(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), "true")
}

func nonEmpty(name string) EnvBinding {
	return func(lookup LookupEnv) (settings.Value, bool) {
		v, ok := lookup(name)
		if !ok || v == "" {
			return settings.Null(), false
		}
		return settings.String(v), true
	}
}

func present(name string) EnvBinding {
	return func(lookup LookupEnv) (settings.Value, bool) {
		v, ok := lookup(name)
		if !ok {
			return settings.Null(), false
		}
		return settings.String(v), true
	}
}

func flag(name string) EnvBinding {
	return func(lookup LookupEnv) (settings.Value, bool) {
		v, ok := lookup(name)
		if !ok {
			return settings.Null(), false
		}
		return settings.Bool(IsEnabled(v)), true
	}
}

// Providers lists what the environment configures on its own.
type Providers struct {
	Models []string `json:"models"`
	Social []string `json:"social"`
}

// HasSocial reports whether provider has login credentials in the environment.
func (p Providers) HasSocial(provider string) bool {
	for _, s := range p.Social {
		if s == provider {
			return true
		}
	}
	return false
}

// EnvProviders inspects credentials in the environment.
func EnvProviders(lookup LookupEnv) Providers {
	set := func(name string) bool {
		v, ok := lookup(name)
		return ok && v != ""
	}
	all := func(names ...string) bool {
		for _, n := range names {
			if !set(n) {
				return false
			}
		}
		return true
	}

	var p Providers
	models := []struct {
		name string
		ok   bool
	}{
		{"openai", set("OPENAI_API_KEY") || set("AZURE_OPENAI_API_KEY")},
		{"google", set("GOOGLE_KEY") || set("GOOGLE_SERVICE_KEY")},
		{"anthropic", set("ANTHROPIC_API_KEY")},
		{"bedrock", all("AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY")},
		{"azure", set("AZURE_OPENAI_API_KEY")},
	}
	for _, m := range models {
		if m.ok {
			p.Models = append(p.Models, m.name)
		}
	}

	openid := all("OPENID_CLIENT_ID", "OPENID_CLIENT_SECRET", "OPENID_ISSUER", "OPENID_SESSION_SECRET")
	social := map[string]bool{
		"github":   all("GITHUB_CLIENT_ID", "GITHUB_CLIENT_SECRET"),
		"google":   all("GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET"),
		"discord":  all("DISCORD_CLIENT_ID", "DISCORD_CLIENT_SECRET"),
		"openid":   openid,
		"facebook": all("FACEBOOK_CLIENT_ID", "FACEBOOK_CLIENT_SECRET"),
		"apple":    all("APPLE_CLIENT_ID", "APPLE_TEAM_ID", "APPLE_KEY_ID", "APPLE_PRIVATE_KEY_PATH"),
		// openid takes priority over saml
		"saml": !openid && all("SAML_ENTRY_POINT", "SAML_ISSUER", "SAML_CERT", "SAML_SESSION_SECRET"),
	}
	for _, provider := range settings.SocialProviders {
		if social[provider] {
			p.Social = append(p.Social, provider)
		}
	}
	return p
}
