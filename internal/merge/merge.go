// Package merge layers administrator overrides onto the static base configuration
// and writes the merged artifact.
package merge

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/config-overlay/internal/settings"
)

// Merge returns base with overrides applied. Objects merge key by key, arrays and
// scalars are replaced wholesale, and null overrides keep the base value. Neither
// input is modified.
func Merge(base, overrides settings.Tree) settings.Tree {
	out := base.Clone()
	for k, ov := range overrides {
		if ov.IsNull() {
			continue
		}
		ovObj, ovIsObj := ov.AsObject()
		baseObj, baseIsObj := out[k].AsObject()
		if ovIsObj && baseIsObj {
			out[k] = settings.Object(Merge(baseObj, ovObj))
			continue
		}
		if ovIsObj {
			// drop nested nulls so they never reach the artifact
			out[k] = settings.Object(Merge(nil, ovObj))
			continue
		}
		out[k] = ov.Clone()
	}
	return out
}

// LoadBase reads a YAML configuration file. A missing or empty file is an empty tree.
func LoadBase(path string) (settings.Tree, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return settings.Tree{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read base config: %w", err)
	}

	var tree settings.Tree
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse base config %s: %w", path, err)
	}
	if tree == nil {
		tree = settings.Tree{}
	}
	return tree, nil
}

// Encode renders a tree as YAML.
func Encode(tree settings.Tree) ([]byte, error) {
	if tree == nil {
		tree = settings.Tree{}
	}
	return yaml.Marshal(tree.ToMap())
}
