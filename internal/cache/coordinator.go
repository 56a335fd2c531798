package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Lookup outcomes reported to a Recorder.
const (
	ResultHit   = "hit"
	ResultStale = "stale"
	ResultMiss  = "miss"
	ResultError = "error"
)

// Recorder receives cache lookup outcomes.
type Recorder interface {
	ObserveCacheLookup(key, result string)
}

// Loader computes a payload on a cache miss.
type Loader func(ctx context.Context) ([]byte, error)

// Coordinator invalidates and repopulates cache entries. Cache failures never fail
// a caller: they are logged and treated as misses.
type Coordinator struct {
	cache    Cache
	logger   *zap.Logger
	grace    time.Duration
	recorder Recorder
	sleep    func(ctx context.Context, d time.Duration)

	group singleflight.Group
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithGraceInterval sets how long Invalidate waits after deleting keys, giving
// shared caches time to propagate deletes to other readers.
func WithGraceInterval(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.grace = d
	}
}

// WithRecorder attaches a lookup recorder.
func WithRecorder(r Recorder) CoordinatorOption {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// NewCoordinator returns a coordinator over cache.
func NewCoordinator(cache Cache, logger *zap.Logger, opts ...CoordinatorOption) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		cache:  cache,
		logger: logger,
		grace:  50 * time.Millisecond,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invalidate deletes keys concurrently, logs any failures and waits the grace
// interval. It never returns an error.
func (c *Coordinator) Invalidate(ctx context.Context, keys mapset.Set[string]) {
	if keys == nil || keys.Cardinality() == 0 {
		return
	}

	var (
		mu   sync.Mutex
		errs *multierror.Error
		g    errgroup.Group
	)
	for _, key := range keys.ToSlice() {
		g.Go(func() error {
			if err := c.cache.Delete(ctx, key); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("delete %s: %w", key, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := errs.ErrorOrNil(); err != nil {
		c.logger.Warn("cache invalidation incomplete", zap.Error(err))
	}
	if c.grace > 0 {
		c.sleep(ctx, c.grace)
	}
}

// Load returns the cached payload for key if it was computed at generation.
// Otherwise it calls loader, caches the result with ttl and returns it. Concurrent
// misses for the same key and generation share one loader call, which is not
// cancelled when the caller that started it goes away.
func (c *Coordinator) Load(ctx context.Context, key string, generation uint64, ttl time.Duration, loader Loader) ([]byte, error) {
	entry, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		c.record(key, ResultError)
	case ok && entry.Generation == generation:
		c.record(key, ResultHit)
		return entry.Payload, nil
	case ok:
		c.record(key, ResultStale)
	default:
		c.record(key, ResultMiss)
	}

	// the shared load outlives any single caller's cancellation
	shared := context.WithoutCancel(ctx)
	flightKey := key + "@" + strconv.FormatUint(generation, 10)
	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		payload, err := loader(shared)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(shared, key, Entry{Generation: generation, Payload: payload}, ttl); err != nil {
			c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
		return payload, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (c *Coordinator) record(key, result string) {
	if c.recorder != nil {
		c.recorder.ObserveCacheLookup(key, result)
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
