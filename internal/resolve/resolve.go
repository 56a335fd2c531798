// Package resolve computes the effective value of a setting by walking the
// precedence tiers: administrator override, environment, base configuration file,
// then the built-in default. The first defined, non-null value wins.
package resolve

import (
	"os"

	"github.com/eugenenazirov/config-overlay/internal/settings"
)

// Source names the tier a value came from.
type Source string

const (
	SourceOverride Source = "override"
	SourceEnv      Source = "env"
	SourceBase     Source = "base"
	SourceDefault  Source = "default"
)

// Resolution is the effective value of one path.
type Resolution struct {
	Path   string         `json:"path"`
	Value  settings.Value `json:"value"`
	Source Source         `json:"source"`
}

// Tier is one tier's view of a path, as reported by Explain.
type Tier struct {
	Source  Source         `json:"source"`
	Value   settings.Value `json:"value"`
	Defined bool           `json:"defined"`
}

// LookupEnv matches os.LookupEnv.
type LookupEnv func(key string) (string, bool)

// Resolver resolves paths against one snapshot of overrides and base configuration.
type Resolver struct {
	overrides settings.Tree
	base      settings.Tree
	env       LookupEnv
	bindings  map[string]EnvBinding
	defaults  settings.Tree
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithEnv replaces the environment lookup, primarily for tests.
func WithEnv(lookup LookupEnv) Option {
	return func(r *Resolver) {
		r.env = lookup
	}
}

// WithDefaults replaces the built-in defaults.
func WithDefaults(defaults settings.Tree) Option {
	return func(r *Resolver) {
		r.defaults = defaults
	}
}

// New returns a resolver over the given snapshot. Nil trees are treated as empty.
func New(overrides, base settings.Tree, opts ...Option) *Resolver {
	r := &Resolver{
		overrides: overrides,
		base:      base,
		env:       os.LookupEnv,
		bindings:  DefaultBindings(),
		defaults:  Defaults(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the effective value of path, or false if no tier defines it.
func (r *Resolver) Resolve(path string) (Resolution, bool) {
	for _, tier := range r.Explain(path) {
		if tier.Defined {
			return Resolution{Path: path, Value: tier.Value, Source: tier.Source}, true
		}
	}
	return Resolution{Path: path}, false
}

// Explain reports every tier's value for path in precedence order.
func (r *Resolver) Explain(path string) []Tier {
	tiers := make([]Tier, 0, 4)

	v, ok := r.overrides.Get(path)
	tiers = append(tiers, Tier{Source: SourceOverride, Value: v, Defined: ok})

	v, ok = r.fromEnv(path)
	tiers = append(tiers, Tier{Source: SourceEnv, Value: v, Defined: ok})

	v, ok = r.fromBase(path)
	tiers = append(tiers, Tier{Source: SourceBase, Value: v, Defined: ok})

	v, ok = r.defaults.Get(path)
	tiers = append(tiers, Tier{Source: SourceDefault, Value: v, Defined: ok})

	return tiers
}

// Overridden reports whether an administrator override is in effect for path.
func (r *Resolver) Overridden(path string) bool {
	_, ok := r.overrides.Get(path)
	return ok
}

// EnvConfigured reports whether the environment defines path.
func (r *Resolver) EnvConfigured(path string) bool {
	_, ok := r.fromEnv(path)
	return ok
}

// Effective resolves every entry and returns the results as a tree. Paths no tier
// defines are omitted.
func (r *Resolver) Effective(entries []settings.Entry) settings.Tree {
	out := settings.Tree{}
	for _, e := range entries {
		res, ok := r.Resolve(e.Path)
		if !ok {
			continue
		}
		_ = out.Set(e.Path, res.Value.Clone())
	}
	return out
}

func (r *Resolver) fromEnv(path string) (settings.Value, bool) {
	b, ok := r.bindings[path]
	if !ok {
		return settings.Null(), false
	}
	v, ok := b(r.env)
	if !ok || v.IsNull() {
		return settings.Null(), false
	}
	return v, true
}

func (r *Resolver) fromBase(path string) (settings.Value, bool) {
	if v, ok := r.base.Get(path); ok {
		return v, true
	}
	for _, alias := range baseAliases[path] {
		if v, ok := r.base.Get(alias); ok {
			return v, true
		}
	}
	return settings.Null(), false
}

// baseAliases lists where the base configuration file keeps settings whose override
// path differs from the file layout.
var baseAliases = map[string][]string{
	"socialLogins":       {"registration.socialLogins"},
	"allowedDomains":     {"registration.allowedDomains"},
	"privacyPolicy":      {"interface.privacyPolicy"},
	"termsOfService":     {"interface.termsOfService"},
	"hideNoConfigModels": {"interface.hideNoConfigModels"},
	"plugins":            {"interface.plugins"},
	"webSearch":          {"interface.webSearch"},
	"runCode":            {"interface.runCode"},
	"fileSearch":         {"interface.fileSearch"},
	"temporaryChat":      {"interface.temporaryChat"},
	"betaFeatures":       {"interface.betaFeatures"},
}
