package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Local is an in-process cache with per-entry expiry.
type Local struct {
	cache *ttlcache.Cache[string, Entry]
}

// NewLocal starts a local cache. defaultTTL applies when Set is given a zero ttl.
func NewLocal(defaultTTL time.Duration) *Local {
	c := ttlcache.New(
		ttlcache.WithTTL[string, Entry](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, Entry](),
	)
	go c.Start()
	return &Local{cache: c}
}

func (l *Local) Get(_ context.Context, key string) (Entry, bool, error) {
	item := l.cache.Get(key)
	if item == nil {
		return Entry{}, false, nil
	}
	return item.Value(), true, nil
}

func (l *Local) Set(_ context.Context, key string, entry Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	l.cache.Set(key, entry, ttl)
	return nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	l.cache.Delete(key)
	return nil
}

// Close stops the expiry loop.
func (l *Local) Close() error {
	l.cache.Stop()
	return nil
}
