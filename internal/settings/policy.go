package settings

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrKeyRequired is returned when a write does not name a key.
	ErrKeyRequired = errors.New("key is required")
	// ErrKeyNotAllowed is returned for keys outside the allow-list.
	ErrKeyNotAllowed = errors.New("key not allowed")
)

// Entry describes one allow-listed override key.
type Entry struct {
	Path            string `json:"path"`
	Kind            Kind   `json:"kind"`
	Inverted        bool   `json:"inverted,omitempty"`
	RestartRequired bool   `json:"restartRequired"`
	Group           string `json:"group"`
}

// Policy is the allow-list of writable override keys.
type Policy struct {
	entries []Entry
	byPath  map[string]Entry
}

// NewPolicy builds a policy from the given entries. Paths must be valid and unique.
func NewPolicy(entries ...Entry) (*Policy, error) {
	p := &Policy{
		entries: make([]Entry, 0, len(entries)),
		byPath:  make(map[string]Entry, len(entries)),
	}
	for _, e := range entries {
		if _, err := SplitPath(e.Path); err != nil {
			return nil, err
		}
		if _, dup := p.byPath[e.Path]; dup {
			return nil, fmt.Errorf("duplicate policy entry %q", e.Path)
		}
		p.entries = append(p.entries, e)
		p.byPath[e.Path] = e
	}
	return p, nil
}

// DefaultPolicy returns the built-in allow-list.
func DefaultPolicy() *Policy {
	entries := make([]Entry, 0, len(builtinKeys))
	for _, k := range builtinKeys {
		entries = append(entries, k.Entry())
	}
	p, err := NewPolicy(entries...)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate checks that path is allow-listed and returns its entry.
func (p *Policy) Validate(path string) (Entry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Entry{}, ErrKeyRequired
	}
	e, ok := p.byPath[path]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrKeyNotAllowed, path)
	}
	return e, nil
}

// Lookup returns the entry for path without producing an error.
func (p *Policy) Lookup(path string) (Entry, bool) {
	e, ok := p.byPath[path]
	return e, ok
}

// Entries returns the allow-list in declaration order.
func (p *Policy) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// CoerceFor validates path and coerces raw to the entry's kind.
func (p *Policy) CoerceFor(path string, raw Value) (Entry, Value, error) {
	e, err := p.Validate(path)
	if err != nil {
		return Entry{}, Null(), err
	}
	v, err := Coerce(e.Kind, raw)
	if err != nil {
		return e, Null(), fmt.Errorf("%s: %w", e.Path, err)
	}
	return e, v, nil
}

// RestartRequired reports whether any of the given paths only take effect on restart.
func (p *Policy) RestartRequired(paths ...string) bool {
	for _, path := range paths {
		if e, ok := p.byPath[path]; ok && e.RestartRequired {
			return true
		}
	}
	return false
}
