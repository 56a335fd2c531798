package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/config-overlay/internal/settings"
)

// Backend is the persistence contract implemented by each storage driver.
type Backend interface {
	// Latest returns the most recently updated document, or ErrNotFound.
	Latest(ctx context.Context) (Document, error)
	// Insert creates doc, returning ErrDuplicate if its ID already exists.
	Insert(ctx context.Context, doc Document) error
	// Save creates or replaces doc.
	Save(ctx context.Context, doc Document) error
	// DeleteStale removes every document whose ID differs from keepID.
	DeleteStale(ctx context.Context, keepID string) (int, error)
	Close() error
}

// Store is the override document API used by the rest of the service.
type Store interface {
	GetDocument(ctx context.Context) (Document, error)
	SetPath(ctx context.Context, path string, value settings.Value, actor string) (Document, error)
	Update(ctx context.Context, actor string, fn func(settings.Tree) error) (Document, error)
	ResetAll(ctx context.Context, actor string) (Document, error)
	Generation(ctx context.Context) (uint64, error)
	PruneStale(ctx context.Context) (int, error)
}

// OverrideStore implements Store over a Backend.
type OverrideStore struct {
	backend Backend
	logger  *zap.Logger
	clock   func() time.Time

	// serializes read-modify-write cycles within this process
	mu sync.Mutex
}

// Option configures an OverrideStore.
type Option func(*OverrideStore)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *OverrideStore) {
		s.clock = clock
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *OverrideStore) {
		s.logger = logger
	}
}

// New returns an OverrideStore backed by backend.
func New(backend Backend, opts ...Option) *OverrideStore {
	s := &OverrideStore{
		backend: backend,
		logger:  zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetDocument returns the authoritative document, creating an empty one if none exists.
func (s *OverrideStore) GetDocument(ctx context.Context) (Document, error) {
	doc, err := s.backend.Latest(ctx)
	if err == nil {
		migrate(&doc)
		return doc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Document{}, unavailable(err)
	}

	now := s.clock()
	doc = Document{
		ID:        DocumentID,
		Version:   CurrentVersion,
		Overrides: settings.Tree{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.backend.Insert(ctx, doc)
	switch {
	case err == nil:
		s.logger.Info("created override document", zap.String("id", doc.ID))
		return doc, nil
	case errors.Is(err, ErrDuplicate):
		// another writer created it first
		doc, err = s.backend.Latest(ctx)
		if err != nil {
			return Document{}, unavailable(err)
		}
		migrate(&doc)
		return doc, nil
	default:
		return Document{}, unavailable(err)
	}
}

// SetPath stores value at path. A null value removes the override.
func (s *OverrideStore) SetPath(ctx context.Context, path string, value settings.Value, actor string) (Document, error) {
	return s.Update(ctx, actor, func(tree settings.Tree) error {
		return tree.Set(path, value)
	})
}

// Update applies fn to a copy of the current overrides and saves the result as the
// authoritative document. If fn fails nothing is written.
func (s *OverrideStore) Update(ctx context.Context, actor string, fn func(settings.Tree) error) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.GetDocument(ctx)
	if err != nil {
		return Document{}, err
	}

	tree := doc.Overrides.Clone()
	if err := fn(tree); err != nil {
		return Document{}, err
	}

	return s.save(ctx, doc, tree, actor)
}

// ResetAll clears every override. The document itself is kept.
func (s *OverrideStore) ResetAll(ctx context.Context, actor string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.GetDocument(ctx)
	if err != nil {
		return Document{}, err
	}
	return s.save(ctx, doc, settings.Tree{}, actor)
}

func (s *OverrideStore) save(ctx context.Context, doc Document, tree settings.Tree, actor string) (Document, error) {
	if doc.ID != DocumentID {
		s.logger.Warn("adopting legacy override document", zap.String("legacy_id", doc.ID))
		doc.ID = DocumentID
	}
	doc.Version = CurrentVersion
	doc.Overrides = tree
	doc.Generation++
	doc.UpdatedBy = actor
	doc.UpdatedAt = s.clock()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}

	if err := s.backend.Save(ctx, doc); err != nil {
		return Document{}, unavailable(err)
	}
	return doc, nil
}

// Generation returns the coherence token of the current document. It is zero when no
// document has been created yet.
func (s *OverrideStore) Generation(ctx context.Context) (uint64, error) {
	doc, err := s.backend.Latest(ctx)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable(err)
	}
	return doc.Generation, nil
}

// PruneStale deletes every document other than the authoritative one.
func (s *OverrideStore) PruneStale(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.GetDocument(ctx)
	if err != nil {
		return 0, err
	}
	if doc.ID != DocumentID {
		// the newest document is a legacy one; keep its content under the fixed id
		if _, err := s.save(ctx, doc, doc.Overrides, doc.UpdatedBy); err != nil {
			return 0, err
		}
	}

	n, err := s.backend.DeleteStale(ctx, DocumentID)
	if err != nil {
		return 0, unavailable(err)
	}
	if n > 0 {
		s.logger.Info("pruned stale override documents", zap.Int("count", n))
	}
	return n, nil
}

// Close releases the backend.
func (s *OverrideStore) Close() error {
	return s.backend.Close()
}

func unavailable(err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
