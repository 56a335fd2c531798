package settings

// Key is implemented by every typed key declaration.
type Key interface {
	Entry() Entry
}

type key struct {
	entry Entry
}

func (k key) Path() string { return k.entry.Path }

func (k key) Kind() Kind { return k.entry.Kind }

func (k key) Entry() Entry { return k.entry }

// Unset removes the override so lower tiers apply again.
func (k key) Unset(t Tree) error { return t.Delete(k.entry.Path) }

// BoolKey reads and writes a boolean override.
type BoolKey struct{ key }

func (k BoolKey) Get(t Tree) (bool, bool) {
	v, ok := t.Get(k.entry.Path)
	if !ok {
		return false, false
	}
	return v.AsBool()
}

func (k BoolKey) Set(t Tree, b bool) error { return t.Set(k.entry.Path, Bool(b)) }

// StringKey reads and writes a string override.
type StringKey struct{ key }

func (k StringKey) Get(t Tree) (string, bool) {
	v, ok := t.Get(k.entry.Path)
	if !ok {
		return "", false
	}
	return v.AsString()
}

func (k StringKey) Set(t Tree, s string) error { return t.Set(k.entry.Path, String(s)) }

// NumberKey reads and writes a numeric override.
type NumberKey struct{ key }

func (k NumberKey) Get(t Tree) (float64, bool) {
	v, ok := t.Get(k.entry.Path)
	if !ok {
		return 0, false
	}
	return v.AsNumber()
}

func (k NumberKey) Set(t Tree, n int64) error { return t.Set(k.entry.Path, Int(n)) }

// StringArrayKey reads and writes a list-of-strings override.
type StringArrayKey struct{ key }

func (k StringArrayKey) Get(t Tree) ([]string, bool) {
	v, ok := t.Get(k.entry.Path)
	if !ok {
		return nil, false
	}
	return v.AsStringArray()
}

func (k StringArrayKey) Set(t Tree, items []string) error {
	return t.Set(k.entry.Path, StringArray(items...))
}

// ObjectKey reads and writes a nested object override.
type ObjectKey struct{ key }

func (k ObjectKey) Get(t Tree) (Tree, bool) {
	v, ok := t.Get(k.entry.Path)
	if !ok {
		return nil, false
	}
	obj, ok := v.AsObject()
	if !ok {
		return nil, false
	}
	return obj.Clone(), true
}

func (k ObjectKey) Set(t Tree, obj Tree) error { return t.Set(k.entry.Path, Object(obj.Clone())) }

// Key groups used by admin UIs.
const (
	GroupInterface    = "interface"
	GroupBranding     = "branding"
	GroupLegal        = "legal"
	GroupModels       = "models"
	GroupRegistration = "registration"
	GroupConversation = "conversation"
	GroupEndpoints    = "endpoints"
	GroupBalance      = "balance"
)

func boolKey(path, group string) BoolKey {
	return BoolKey{key{Entry{Path: path, Kind: KindBool, Group: group}}}
}

func restartBoolKey(path, group string) BoolKey {
	k := boolKey(path, group)
	k.entry.RestartRequired = true
	return k
}

func stringKey(path, group string) StringKey {
	return StringKey{key{Entry{Path: path, Kind: KindString, Group: group}}}
}

func objectKey(path, group string, restart bool) ObjectKey {
	return ObjectKey{key{Entry{Path: path, Kind: KindObject, Group: group, RestartRequired: restart}}}
}

// Interface toggles.
var (
	InterfaceCustomWelcome = stringKey("interface.customWelcome", GroupInterface)
	InterfaceModelSelect   = boolKey("interface.modelSelect", GroupInterface)
	InterfaceParameters    = boolKey("interface.parameters", GroupInterface)
	InterfaceSidePanel     = boolKey("interface.sidePanel", GroupInterface)
	InterfacePresets       = boolKey("interface.presets", GroupInterface)
	InterfacePrompts       = boolKey("interface.prompts", GroupInterface)
	InterfaceMemories      = boolKey("interface.memories", GroupInterface)
	InterfaceBookmarks     = boolKey("interface.bookmarks", GroupInterface)
	InterfaceMultiConvo    = boolKey("interface.multiConvo", GroupInterface)
	InterfaceAgents        = boolKey("interface.agents", GroupInterface)
	InterfaceEndpointsMenu = boolKey("interface.endpointsMenu", GroupInterface)
)

// Branding.
var (
	AppTitle           = stringKey("appTitle", GroupBranding)
	HelpAndFaqURL      = stringKey("helpAndFaqURL", GroupBranding)
	CustomFooter       = stringKey("customFooter", GroupBranding)
	LogoURL            = stringKey("logoUrl", GroupBranding)
	FaviconURL         = stringKey("faviconUrl", GroupBranding)
	BackgroundImageURL = stringKey("backgroundImageUrl", GroupBranding)
	PrimaryColor       = stringKey("primaryColor", GroupBranding)
)

// Legal.
var (
	PrivacyPolicy  = objectKey("privacyPolicy", GroupLegal, false)
	TermsOfService = objectKey("termsOfService", GroupLegal, false)
)

// Model access.
var (
	HideNoConfigModels = BoolKey{key{Entry{Path: "hideNoConfigModels", Kind: KindBool, Group: GroupModels, Inverted: true}}}
	Plugins            = boolKey("plugins", GroupModels)
	WebSearch          = boolKey("webSearch", GroupModels)
	RunCode            = boolKey("runCode", GroupModels)
	FileSearch         = boolKey("fileSearch", GroupModels)
	ModelProviderKeys  = objectKey("modelProviderKeys", GroupModels, true)
)

// Registration and login.
var (
	RegistrationEnabled  = restartBoolKey("registrationEnabled", GroupRegistration)
	SocialLoginEnabled   = restartBoolKey("socialLoginEnabled", GroupRegistration)
	EmailLoginEnabled    = restartBoolKey("emailLoginEnabled", GroupRegistration)
	PasswordResetEnabled = restartBoolKey("passwordResetEnabled", GroupRegistration)
	SocialLogins         = StringArrayKey{key{Entry{Path: "socialLogins", Kind: KindStringArray, Group: GroupRegistration, RestartRequired: true}}}
	AllowedDomains       = StringArrayKey{key{Entry{Path: "allowedDomains", Kind: KindStringArray, Group: GroupRegistration, RestartRequired: true}}}
	SocialLoginConfig    = objectKey("socialLoginConfig", GroupRegistration, true)
)

// Conversation and features.
var (
	TemporaryChat = boolKey("temporaryChat", GroupConversation)
	BetaFeatures  = boolKey("betaFeatures", GroupConversation)
)

// Endpoint limits and balance.
var (
	AgentsRecursionLimit    = NumberKey{key{Entry{Path: "endpoints.agents.recursionLimit", Kind: KindNumber, Group: GroupEndpoints, RestartRequired: true}}}
	AgentsMaxRecursionLimit = NumberKey{key{Entry{Path: "endpoints.agents.maxRecursionLimit", Kind: KindNumber, Group: GroupEndpoints, RestartRequired: true}}}
	BalanceStartBalance     = NumberKey{key{Entry{Path: "balance.startBalance", Kind: KindNumber, Group: GroupBalance, RestartRequired: true}}}
)

// SocialProviders lists login providers in display order.
var SocialProviders = []string{"github", "google", "discord", "openid", "facebook", "apple", "saml"}

// SocialLoginEnabledFor returns the per-provider enable toggle.
func SocialLoginEnabledFor(provider string) BoolKey {
	return restartBoolKey("socialLoginConfig."+provider+".enabled", GroupRegistration)
}

var builtinKeys = func() []Key {
	keys := []Key{
		InterfaceCustomWelcome, InterfaceModelSelect, InterfaceParameters, InterfaceSidePanel,
		InterfacePresets, InterfacePrompts, InterfaceMemories, InterfaceBookmarks,
		InterfaceMultiConvo, InterfaceAgents, InterfaceEndpointsMenu,
		AppTitle, HelpAndFaqURL, CustomFooter, LogoURL, FaviconURL, BackgroundImageURL, PrimaryColor,
		PrivacyPolicy, TermsOfService,
		HideNoConfigModels, Plugins, WebSearch, RunCode, FileSearch,
		RegistrationEnabled, SocialLoginEnabled, EmailLoginEnabled, PasswordResetEnabled,
		SocialLogins, AllowedDomains,
		TemporaryChat, BetaFeatures,
	}
	for _, p := range SocialProviders {
		keys = append(keys, SocialLoginEnabledFor(p))
	}
	return append(keys,
		SocialLoginConfig, ModelProviderKeys,
		AgentsRecursionLimit, AgentsMaxRecursionLimit, BalanceStartBalance,
	)
}()
