// Package restart signals an external supervisor that the application process must
// be restarted, and implements the supervisor side used by the reloader command.
package restart

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eugenenazirov/config-overlay/internal/fsutil"
)

// Recorder receives restart signal outcomes.
type Recorder interface {
	ObserveRestartSignal(err error)
}

// Signaler writes restart markers.
type Signaler struct {
	paths    []string
	logger   *zap.Logger
	clock    func() time.Time
	recorder Recorder
}

// SignalerOption configures a Signaler.
type SignalerOption func(*Signaler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) SignalerOption {
	return func(s *Signaler) {
		s.clock = clock
	}
}

// WithRecorder attaches an outcome recorder.
func WithRecorder(r Recorder) SignalerOption {
	return func(s *Signaler) {
		s.recorder = r
	}
}

// NewSignaler returns a signaler writing to every path in paths.
func NewSignaler(paths []string, logger *zap.Logger, opts ...SignalerOption) *Signaler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Signaler{
		paths:  paths,
		logger: logger,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Touch writes the current Unix millisecond timestamp to every marker. It only
// records intent and returns once the markers are written.
func (s *Signaler) Touch(ctx context.Context) error {
	payload := []byte(strconv.FormatInt(s.clock().UnixMilli(), 10))

	var (
		mu   sync.Mutex
		errs *multierror.Error
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, path := range s.paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fsutil.WriteFileAtomic(path, payload, 0o644); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("marker %s: %w", path, err))
				mu.Unlock()
			}
			return nil
		})
	}
	waitErr := g.Wait()

	err := errs.ErrorOrNil()
	if err == nil {
		err = waitErr
	}
	if s.recorder != nil {
		s.recorder.ObserveRestartSignal(err)
	}
	if err != nil {
		s.logger.Error("restart marker write failed", zap.Error(err))
		return err
	}
	s.logger.Info("restart requested", zap.Strings("markers", s.paths))
	return nil
}

// Paths returns the marker locations.
func (s *Signaler) Paths() []string {
	out := make([]string, len(s.paths))
	copy(out, s.paths)
	return out
}
