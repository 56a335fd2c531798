package store

import (
	"context"
	"sync"
)

// MemoryBackend keeps documents in process memory. It is intended for development
// and tests, and accepts seeded duplicates to mimic legacy deployments.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryBackend returns a backend seeded with docs.
func NewMemoryBackend(docs ...Document) *MemoryBackend {
	b := &MemoryBackend{docs: make(map[string]Document, len(docs))}
	for _, doc := range docs {
		b.docs[doc.ID] = doc.Clone()
	}
	return b
}

func (b *MemoryBackend) Latest(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	var (
		latest Document
		found  bool
	)
	for _, doc := range b.docs {
		if !found || newer(doc, latest) {
			latest = doc
			found = true
		}
	}
	if !found {
		return Document{}, ErrNotFound
	}
	return latest.Clone(), nil
}

func (b *MemoryBackend) Insert(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.docs[doc.ID]; exists {
		return ErrDuplicate
	}
	b.docs[doc.ID] = doc.Clone()
	return nil
}

func (b *MemoryBackend) Save(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.docs[doc.ID] = doc.Clone()
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) DeleteStale(ctx context.Context, keepID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for id := range b.docs {
		if id != keepID {
			delete(b.docs, id)
			n++
		}
	}
	return n, nil
}

// Len reports how many documents are stored.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.docs)
}

func (b *MemoryBackend) Close() error { return nil }

// newer orders documents by update time; ties favour the fixed document id.
func newer(a, b Document) bool {
	if a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.ID == DocumentID && b.ID != DocumentID
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}
