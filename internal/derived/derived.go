// Package derived recomputes system-generated override keys from the keys an
// administrator writes. Rules form a small static graph: trigger paths map to one
// target path whose value is a pure function of the override tree.
package derived

import (
	"fmt"
	"strings"

	"github.com/eugenenazirov/config-overlay/internal/settings"
)

// Rule recomputes Target whenever one of Triggers is written.
type Rule struct {
	Target   string
	Kind     settings.Kind
	Triggers []string
	Compute  func(settings.Tree) settings.Value
}

// Registry holds the derivation rules.
type Registry struct {
	rules []Rule
}

// NewRegistry returns a registry with the given rules.
func NewRegistry(rules ...Rule) *Registry {
	return &Registry{rules: rules}
}

// Default returns the built-in rules.
func Default() *Registry {
	return NewRegistry(SocialLoginsRule())
}

// SocialLoginsRule keeps socialLogins in sync with the per-provider enable toggles.
func SocialLoginsRule() Rule {
	triggers := make([]string, 0, len(settings.SocialProviders))
	for _, p := range settings.SocialProviders {
		triggers = append(triggers, settings.SocialLoginEnabledFor(p).Path())
	}
	return Rule{
		Target:   settings.SocialLogins.Path(),
		Kind:     settings.KindStringArray,
		Triggers: triggers,
		Compute:  enabledProviders,
	}
}

func enabledProviders(tree settings.Tree) settings.Value {
	enabled := make([]string, 0, len(settings.SocialProviders))
	for _, p := range settings.SocialProviders {
		if on, ok := settings.SocialLoginEnabledFor(p).Get(tree); ok && on {
			enabled = append(enabled, p)
		}
	}
	return settings.StringArray(enabled...)
}

// Matching returns the rules triggered by a write to path. A write to an ancestor or
// a descendant of a trigger counts as a write to the trigger.
func (r *Registry) Matching(path string) []Rule {
	var out []Rule
	for _, rule := range r.rules {
		for _, trigger := range rule.Triggers {
			if related(path, trigger) {
				out = append(out, rule)
				break
			}
		}
	}
	return out
}

// Apply recomputes every rule triggered by the written paths and stores the results
// in tree. It returns the derived paths that were set.
func (r *Registry) Apply(tree settings.Tree, written ...string) ([]string, error) {
	seen := make(map[string]bool)
	var derived []string
	for _, path := range written {
		for _, rule := range r.Matching(path) {
			if seen[rule.Target] {
				continue
			}
			seen[rule.Target] = true

			v, err := settings.Coerce(rule.Kind, rule.Compute(tree))
			if err != nil {
				return nil, fmt.Errorf("derive %s: %w", rule.Target, err)
			}
			if err := tree.Set(rule.Target, v); err != nil {
				return nil, fmt.Errorf("derive %s: %w", rule.Target, err)
			}
			derived = append(derived, rule.Target)
		}
	}
	return derived, nil
}

func related(a, b string) bool {
	return a == b || strings.HasPrefix(a, b+".") || strings.HasPrefix(b, a+".")
}
