// Package cache coordinates the caches that hold derived configuration. Entries are
// stamped with the override document generation they were computed from; a lookup is
// a hit only when the stamp matches the current generation.
package cache

import (
	"context"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// Supported cache drivers.
const (
	DriverLocal = "local"
	DriverRedis = "redis"
)

// Named cache keys.
const (
	KeyAdminConfig     = "admin-config"
	KeyStartupConfig   = "startupConfig"
	KeyEndpointsConfig = "endpointsConfig"
	KeyModelsConfig    = "modelsConfig"
	KeyOverrideConfig  = "overrideConfig"
)

// AllKeys returns every key that derives from the override document.
func AllKeys() mapset.Set[string] {
	return mapset.NewSet(
		KeyAdminConfig,
		KeyStartupConfig,
		KeyEndpointsConfig,
		KeyModelsConfig,
		KeyOverrideConfig,
	)
}

// Entry is a cached payload and the generation it was computed from.
type Entry struct {
	Generation uint64 `json:"generation"`
	Payload    []byte `json:"payload"`
}

// Cache is a key/value store for entries.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
