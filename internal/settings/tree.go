package settings

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is returned for empty paths or paths with empty segments.
var ErrInvalidPath = errors.New("invalid key path")

// Tree is a nested string-keyed object. Paths address nested entries with dots,
// e.g. "interface.sidePanel".
type Tree map[string]Value

// SplitPath validates and splits a dot-separated path.
func SplitPath(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	parts := strings.Split(path, ".")
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return parts, nil
}

// Get returns the value at path. Null leaves are reported as absent.
func (t Tree) Get(path string) (Value, bool) {
	parts, err := SplitPath(path)
	if err != nil {
		return Null(), false
	}

	node := t
	for i, part := range parts {
		val, ok := node[part]
		if !ok {
			return Null(), false
		}
		if i == len(parts)-1 {
			if val.IsNull() {
				return Null(), false
			}
			return val, true
		}
		next, ok := val.AsObject()
		if !ok {
			return Null(), false
		}
		node = next
	}
	return Null(), false
}

// Set stores v at path, creating intermediate objects and replacing non-object
// intermediates. Setting null removes the path.
func (t Tree) Set(path string, v Value) error {
	if v.IsNull() {
		return t.Delete(path)
	}
	parts, err := SplitPath(path)
	if err != nil {
		return err
	}

	node := t
	for _, part := range parts[:len(parts)-1] {
		next, ok := node[part].AsObject()
		if !ok {
			next = Tree{}
			node[part] = Object(next)
		}
		node = next
	}
	node[parts[len(parts)-1]] = v
	return nil
}

// Delete removes the value at path. Missing paths are not an error.
func (t Tree) Delete(path string) error {
	parts, err := SplitPath(path)
	if err != nil {
		return err
	}

	node := t
	for _, part := range parts[:len(parts)-1] {
		next, ok := node[part].AsObject()
		if !ok {
			return nil
		}
		node = next
	}
	delete(node, parts[len(parts)-1])
	return nil
}

// Clone returns a deep copy of the tree.
func (t Tree) Clone() Tree {
	if t == nil {
		return Tree{}
	}
	out := make(Tree, len(t))
	for k, v := range t {
		out[k] = v.Clone()
	}
	return out
}

// Equal reports deep equality; nil and empty trees are equal.
func (t Tree) Equal(other Tree) bool {
	if len(t) != len(other) {
		return false
	}
	for k, v := range t {
		ov, ok := other[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// ToMap converts the tree into plain Go maps.
func (t Tree) ToMap() map[string]any {
	out := make(map[string]any, len(t))
	for k, v := range t {
		out[k] = v.ToAny()
	}
	return out
}

// Paths lists every leaf path in lexical order. Empty objects count as leaves.
func (t Tree) Paths() []string {
	var out []string
	t.walk("", func(path string, _ Value) {
		out = append(out, path)
	})
	return out
}

func (t Tree) walk(prefix string, fn func(path string, v Value)) {
	for _, k := range sortedKeys(t) {
		v := t[k]
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if obj, ok := v.AsObject(); ok && len(obj) > 0 {
			obj.walk(path, fn)
			continue
		}
		fn(path, v)
	}
}

// TreeFromMap converts a decoded document into a Tree.
func TreeFromMap(raw map[string]any) (Tree, error) {
	if raw == nil {
		return Tree{}, nil
	}
	val, err := FromAny(raw)
	if err != nil {
		return nil, err
	}
	obj, _ := val.AsObject()
	return obj, nil
}
