// Package store persists the singleton override document.
//
// OverrideStore implements the read-modify-write protocol on top of a Backend.
// Backends only know how to load the most recently updated document, insert a new
// one, upsert one and delete stale duplicates; they are available for in-memory use,
// SurrealDB and PostgreSQL.
package store

import (
	"errors"
	"time"

	"github.com/eugenenazirov/config-overlay/internal/settings"
)

const (
	// DocumentID is the fixed identity of the override document.
	DocumentID = "admin-config"

	// CurrentVersion is the override document schema version written by this build.
	CurrentVersion = 2
)

var (
	// ErrNotFound is returned by backends when no document exists.
	ErrNotFound = errors.New("override document not found")
	// ErrDuplicate is returned by Backend.Insert when the document already exists.
	ErrDuplicate = errors.New("override document already exists")
	// ErrUnavailable wraps storage failures.
	ErrUnavailable = errors.New("override storage unavailable")
)

// Document is the persisted override state.
type Document struct {
	ID         string        `json:"id"`
	Version    int           `json:"version"`
	Generation uint64        `json:"generation"`
	Overrides  settings.Tree `json:"overrides"`
	UpdatedBy  string        `json:"updatedBy,omitempty"`
	UpdatedAt  time.Time     `json:"updatedAt"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := d
	out.Overrides = d.Overrides.Clone()
	return out
}

// legacyInterfaceKeys were stored at the top level before version 2.
var legacyInterfaceKeys = []string{
	"customWelcome", "modelSelect", "parameters", "sidePanel", "presets", "prompts",
	"memories", "bookmarks", "multiConvo", "agents", "endpointsMenu",
}

// migrate upgrades a document read from storage to CurrentVersion in place.
// The upgraded form is persisted by the next save.
func migrate(doc *Document) {
	if doc.Overrides == nil {
		doc.Overrides = settings.Tree{}
	}
	if doc.Version >= CurrentVersion {
		return
	}

	for _, name := range legacyInterfaceKeys {
		v, ok := doc.Overrides[name]
		if !ok {
			continue
		}
		delete(doc.Overrides, name)
		path := "interface." + name
		if _, exists := doc.Overrides.Get(path); exists || v.IsNull() {
			continue
		}
		_ = doc.Overrides.Set(path, v)
	}
	doc.Version = CurrentVersion
}
