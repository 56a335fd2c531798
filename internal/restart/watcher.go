package restart

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Action performs the restart.
type Action func(ctx context.Context) error

// CommandAction runs argv, e.g. ["docker", "restart", "librechat_api"].
func CommandAction(argv []string, logger *zap.Logger) Action {
	return func(ctx context.Context) error {
		if len(argv) == 0 {
			return errors.New("empty restart command")
		}
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		out, err := cmd.CombinedOutput()
		if len(out) > 0 {
			logger.Info("restart command output", zap.ByteString("output", out))
		}
		if err != nil {
			return fmt.Errorf("run %v: %w", argv, err)
		}
		return nil
	}
}

// Watcher watches restart markers and runs an action once changes settle.
type Watcher struct {
	markers  map[string]struct{}
	debounce time.Duration
	action   Action
	logger   *zap.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]struct{}
	ctx     context.Context
}

// NewWatcher returns a watcher for the given marker files.
func NewWatcher(markers []string, debounce time.Duration, action Action, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Watcher{
		markers:  make(map[string]struct{}, len(markers)),
		debounce: debounce,
		action:   action,
		logger:   logger,
		pending:  make(map[string]struct{}),
	}
	for _, m := range markers {
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, fmt.Errorf("resolve marker %s: %w", m, err)
		}
		w.markers[abs] = struct{}{}
	}
	return w, nil
}

// Run watches until ctx is cancelled. Missing markers are created first. The
// containing directories are watched because markers are replaced by rename.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	dirs := make(map[string]struct{})
	for marker := range w.markers {
		if err := ensureMarker(marker); err != nil {
			return err
		}
		dirs[filepath.Dir(marker)] = struct{}{}
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.logger.Info("watching for restart markers", zap.String("dir", dir))
	}

	for {
		select {
		case <-ctx.Done():
			w.stop()
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.Changed(ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", zap.Error(err))
		}
	}
}

// Changed records a change to path. Changes to files that are not markers are ignored.
func (w *Watcher) Changed(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	if _, ok := w.markers[abs]; !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[abs] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.timer = nil
	ctx := w.ctx
	w.mu.Unlock()

	if len(paths) == 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	w.logger.Info("restart marker changed, restarting", zap.Strings("markers", paths))
	if err := w.action(ctx); err != nil {
		w.logger.Error("restart failed", zap.Error(err))
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
}

func ensureMarker(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat marker %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create marker dir: %w", err)
	}
	payload := []byte(strconv.FormatInt(time.Now().UnixMilli(), 10))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("create marker %s: %w", path, err)
	}
	return nil
}
