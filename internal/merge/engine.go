package merge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/config-overlay/internal/fsutil"
	"github.com/eugenenazirov/config-overlay/internal/settings"
	"github.com/eugenenazirov/config-overlay/internal/store"
)

// DocumentSource loads the current override document.
type DocumentSource interface {
	GetDocument(ctx context.Context) (store.Document, error)
}

// Recorder receives regeneration outcomes.
type Recorder interface {
	ObserveRegeneration(elapsed time.Duration, err error)
}

// Paths locates the files the engine reads and writes.
type Paths struct {
	Base    string
	Output  string
	Overlay string
}

// Engine regenerates the merged artifact. Generate calls are serialized, and a
// document older than the newest generation already seen is never written.
type Engine struct {
	paths    Paths
	source   DocumentSource
	logger   *zap.Logger
	recorder Recorder

	mu         sync.Mutex
	generation uint64
	stale      atomic.Bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRecorder attaches a regeneration recorder.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// NewEngine returns an engine reading overrides from source when none are supplied.
func NewEngine(paths Paths, source DocumentSource, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		paths:  paths,
		source: source,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate merges the base configuration with overrides and writes the artifact.
// When overrides is nil the current document is loaded from the source.
func (e *Engine) Generate(ctx context.Context, overrides *settings.Tree) (settings.Tree, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.run(func() (settings.Tree, error) {
		if overrides != nil {
			return *overrides, nil
		}
		if e.source == nil {
			return nil, fmt.Errorf("no overrides supplied and no document source configured")
		}
		doc, err := e.source.GetDocument(ctx)
		if err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}
		e.generation = max(e.generation, doc.Generation)
		return doc.Overrides, nil
	})
}

// GenerateDocument writes the artifact for a document the caller just saved. If a
// newer generation has already been seen the call is a no-op and returns a nil tree.
func (e *Engine) GenerateDocument(ctx context.Context, doc store.Document) (settings.Tree, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if doc.Generation < e.generation {
		e.logger.Debug("skipping superseded overrides",
			zap.Uint64("generation", doc.Generation),
			zap.Uint64("latest", e.generation),
		)
		return nil, nil
	}
	return e.run(func() (settings.Tree, error) {
		e.generation = doc.Generation
		return doc.Overrides, nil
	})
}

// Generation returns the newest document generation the engine has seen.
func (e *Engine) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

func (e *Engine) run(load func() (settings.Tree, error)) (merged settings.Tree, err error) {
	start := time.Now()
	defer func() {
		e.stale.Store(err != nil)
		if e.recorder != nil {
			e.recorder.ObserveRegeneration(time.Since(start), err)
		}
	}()

	tree, err := load()
	if err != nil {
		return nil, err
	}

	base, err := LoadBase(e.paths.Base)
	if err != nil {
		return nil, err
	}
	merged = Merge(base, tree)

	if err := e.write(e.paths.Output, merged); err != nil {
		return nil, err
	}
	if e.paths.Overlay != "" {
		if err := e.write(e.paths.Overlay, tree); err != nil {
			return nil, err
		}
	}

	e.logger.Info("merged configuration written",
		zap.String("path", e.paths.Output),
		zap.Int("override_paths", len(tree.Paths())),
	)
	return merged, nil
}

// Stale reports whether the last regeneration failed.
func (e *Engine) Stale() bool {
	return e.stale.Load()
}

// EnsureFresh retries regeneration from storage if the previous attempt failed.
func (e *Engine) EnsureFresh(ctx context.Context) error {
	if !e.Stale() {
		return nil
	}
	e.logger.Warn("retrying stale merged configuration")
	_, err := e.Generate(ctx, nil)
	return err
}

func (e *Engine) write(path string, tree settings.Tree) error {
	data, err := Encode(tree)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return err
	}
	return nil
}
