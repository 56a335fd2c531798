// Package overrides orchestrates administrator writes and effective-config reads.
//
// A write runs validate, coerce, cache clear, persist (with derived fields in the
// same save), cache clear, then artifact regeneration from the just-written
// overrides. Validation failures happen before any side effect. An artifact failure
// is reported but the persisted document is kept; the engine is then marked stale
// and regeneration is retried on the next read or write.
package overrides

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/config-overlay/internal/cache"
	"github.com/eugenenazirov/config-overlay/internal/derived"
	"github.com/eugenenazirov/config-overlay/internal/merge"
	"github.com/eugenenazirov/config-overlay/internal/resolve"
	"github.com/eugenenazirov/config-overlay/internal/settings"
	"github.com/eugenenazirov/config-overlay/internal/store"
)

// ErrArtifact is returned when the document was saved but the merged artifact
// could not be regenerated.
var ErrArtifact = errors.New("merged configuration not regenerated")

// Recorder receives write outcomes.
type Recorder interface {
	ObserveWrite(operation string, err error)
	SetGeneration(gen uint64)
}

// Signaler requests a process restart.
type Signaler interface {
	Touch(ctx context.Context) error
}

// Generator regenerates the merged artifact.
type Generator interface {
	Generate(ctx context.Context, overrides *settings.Tree) (settings.Tree, error)
	GenerateDocument(ctx context.Context, doc store.Document) (settings.Tree, error)
	EnsureFresh(ctx context.Context) error
}

// Service is the entry point for reading and writing overrides.
type Service struct {
	store    store.Store
	policy   *settings.Policy
	derived  *derived.Registry
	cache    *cache.Coordinator
	engine   Generator
	signaler Signaler
	logger   *zap.Logger

	basePath string
	env      resolve.LookupEnv
	ttl      time.Duration
	recorder Recorder
}

// Deps are the collaborators a Service needs.
type Deps struct {
	Store    store.Store
	Cache    *cache.Coordinator
	Engine   Generator
	Signaler Signaler
	Logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy replaces the default allow-list.
func WithPolicy(p *settings.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithDerived replaces the default derivation rules.
func WithDerived(r *derived.Registry) Option {
	return func(s *Service) {
		s.derived = r
	}
}

// WithBasePath sets the base configuration file consulted by the resolver.
func WithBasePath(path string) Option {
	return func(s *Service) {
		s.basePath = path
	}
}

// WithEnv replaces the environment lookup, primarily for tests.
func WithEnv(lookup resolve.LookupEnv) Option {
	return func(s *Service) {
		s.env = lookup
	}
}

// WithCacheTTL sets how long computed configuration stays cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

// WithRecorder attaches a write recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// New returns a Service.
func New(deps Deps, opts ...Option) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:    deps.Store,
		cache:    deps.Cache,
		engine:   deps.Engine,
		signaler: deps.Signaler,
		logger:   logger,
		policy:   settings.DefaultPolicy(),
		derived:  derived.Default(),
		env:      os.LookupEnv,
		ttl:      5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the allow-list in use.
func (s *Service) Policy() *settings.Policy {
	return s.policy
}

// Get returns the current override document.
func (s *Service) Get(ctx context.Context) (store.Document, error) {
	s.retryArtifact(ctx)
	return s.store.GetDocument(ctx)
}

// SetResult describes an accepted write.
type SetResult struct {
	Document        store.Document
	Derived         []string
	RestartRequired bool
}

// Set validates, coerces and persists one override. A null value removes it.
func (s *Service) Set(ctx context.Context, key string, raw settings.Value, actor string) (SetResult, error) {
	return s.write(ctx, "set", map[string]settings.Value{key: raw}, actor)
}

// SetMany persists several overrides in one save. Every key is validated and
// coerced first; if any is rejected nothing is written.
func (s *Service) SetMany(ctx context.Context, values map[string]settings.Value, actor string) (SetResult, error) {
	if len(values) == 0 {
		err := fmt.Errorf("%w: no overrides supplied", settings.ErrKeyRequired)
		s.observe("set_many", err)
		return SetResult{}, err
	}
	return s.write(ctx, "set_many", values, actor)
}

type coerced struct {
	entry settings.Entry
	value settings.Value
}

func (s *Service) write(ctx context.Context, op string, values map[string]settings.Value, actor string) (SetResult, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	writes := make([]coerced, 0, len(keys))
	for _, key := range keys {
		entry, value, err := s.policy.CoerceFor(key, values[key])
		if err != nil {
			s.observe(op, err)
			return SetResult{}, err
		}
		writes = append(writes, coerced{entry: entry, value: value})
	}

	s.retryArtifact(ctx)
	s.cache.Invalidate(ctx, cache.AllKeys())

	written := make([]string, len(writes))
	restart := false
	for i, w := range writes {
		written[i] = w.entry.Path
		restart = restart || w.entry.RestartRequired
	}

	var derivedPaths []string
	doc, err := s.store.Update(ctx, actor, func(tree settings.Tree) error {
		for _, w := range writes {
			if err := tree.Set(w.entry.Path, w.value); err != nil {
				return err
			}
		}
		paths, err := s.derived.Apply(tree, written...)
		if err != nil {
			return err
		}
		derivedPaths = paths
		return nil
	})
	if err != nil {
		s.observe(op, err)
		return SetResult{}, err
	}

	s.logger.Info("overrides updated",
		zap.Strings("keys", written),
		zap.Strings("derived", derivedPaths),
		zap.String("actor", actor),
		zap.Uint64("generation", doc.Generation),
	)

	res := SetResult{
		Document:        doc,
		Derived:         derivedPaths,
		RestartRequired: restart || s.policy.RestartRequired(derivedPaths...),
	}
	err = s.afterPersist(ctx, doc)
	s.observe(op, err)
	return res, err
}

// Reset clears every override.
func (s *Service) Reset(ctx context.Context, actor string) (store.Document, error) {
	s.cache.Invalidate(ctx, cache.AllKeys())

	doc, err := s.store.ResetAll(ctx, actor)
	if err != nil {
		s.observe("reset", err)
		return store.Document{}, err
	}
	s.logger.Info("overrides reset", zap.String("actor", actor), zap.Uint64("generation", doc.Generation))

	err = s.afterPersist(ctx, doc)
	s.observe("reset", err)
	return doc, err
}

// Apply requests a restart so restart-only settings take effect.
func (s *Service) Apply(ctx context.Context) error {
	if s.signaler == nil {
		return errors.New("restart signal not configured")
	}
	return s.signaler.Touch(ctx)
}

func (s *Service) afterPersist(ctx context.Context, doc store.Document) error {
	if s.recorder != nil {
		s.recorder.SetGeneration(doc.Generation)
	}
	s.cache.Invalidate(ctx, cache.AllKeys())

	if _, err := s.engine.GenerateDocument(ctx, doc); err != nil {
		s.logger.Error("merged configuration regeneration failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrArtifact, err)
	}
	return nil
}

func (s *Service) retryArtifact(ctx context.Context) {
	if err := s.engine.EnsureFresh(ctx); err != nil {
		s.logger.Warn("merged configuration still stale", zap.Error(err))
	}
}

func (s *Service) observe(op string, err error) {
	if s.recorder != nil {
		s.recorder.ObserveWrite(op, err)
	}
}

// Effective returns the effective startup configuration as JSON. It is served from
// cache while the document generation is unchanged.
func (s *Service) Effective(ctx context.Context) (json.RawMessage, error) {
	s.retryArtifact(ctx)

	gen, err := s.store.Generation(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := s.cache.Load(ctx, cache.KeyStartupConfig, gen, s.ttl, s.computeEffective)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(payload), nil
}

func (s *Service) computeEffective(ctx context.Context) ([]byte, error) {
	r, _, err := s.resolver(ctx)
	if err != nil {
		return nil, err
	}
	tree := r.Effective(s.policy.Entries())
	providers := resolve.EnvProviders(s.env)

	out := tree.ToMap()
	out["providers"] = providers
	return json.Marshal(out)
}

func (s *Service) resolver(ctx context.Context) (*resolve.Resolver, store.Document, error) {
	doc, err := s.store.GetDocument(ctx)
	if err != nil {
		return nil, store.Document{}, err
	}
	base := settings.Tree{}
	if s.basePath != "" {
		base, err = merge.LoadBase(s.basePath)
		if err != nil {
			return nil, store.Document{}, err
		}
	}
	return resolve.New(doc.Overrides, base, resolve.WithEnv(s.env)), doc, nil
}

// SchemaEntry describes one allow-listed key for admin UIs.
type SchemaEntry struct {
	settings.Entry
	EnvConfigured bool           `json:"envConfigured"`
	Overridden    bool           `json:"overridden"`
	Value         settings.Value `json:"value"`
	Source        resolve.Source `json:"source,omitempty"`
}

// Schema describes every allow-listed key with its current effective value.
func (s *Service) Schema(ctx context.Context) ([]SchemaEntry, error) {
	r, _, err := s.resolver(ctx)
	if err != nil {
		return nil, err
	}
	providers := resolve.EnvProviders(s.env)

	entries := s.policy.Entries()
	out := make([]SchemaEntry, 0, len(entries))
	for _, e := range entries {
		item := SchemaEntry{
			Entry:         e,
			EnvConfigured: r.EnvConfigured(e.Path) || envProviderConfigured(e.Path, providers),
			Overridden:    r.Overridden(e.Path),
		}
		if res, ok := r.Resolve(e.Path); ok {
			item.Value = res.Value
			item.Source = res.Source
		}
		out = append(out, item)
	}
	return out, nil
}

func envProviderConfigured(path string, p resolve.Providers) bool {
	for _, provider := range settings.SocialProviders {
		if path == settings.SocialLoginEnabledFor(provider).Path() {
			return p.HasSocial(provider)
		}
	}
	if path == settings.ModelProviderKeys.Path() {
		return len(p.Models) > 0
	}
	return false
}

// Bootstrap prepares storage and writes the merged artifact from the stored
// document. It is run once at process start.
func (s *Service) Bootstrap(ctx context.Context, pruneStale bool) error {
	if pruneStale {
		n, err := s.store.PruneStale(ctx)
		if err != nil {
			return fmt.Errorf("prune stale documents: %w", err)
		}
		if n > 0 {
			s.logger.Info("removed stale override documents", zap.Int("count", n))
		}
	}

	doc, err := s.store.GetDocument(ctx)
	if err != nil {
		return err
	}
	if s.recorder != nil {
		s.recorder.SetGeneration(doc.Generation)
	}
	if _, err := s.engine.Generate(ctx, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrArtifact, err)
	}
	return nil
}
