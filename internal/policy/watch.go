package policy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDelay batches the burst of events an editor produces on save.
const DefaultReloadDelay = 500 * time.Millisecond

// Watcher recompiles the policies under a path whenever a .rego file changes
// and hands each compiled engine to onReload. A policy that fails to compile
// is logged and the previous engine stays in use.
type Watcher struct {
	cfg      EngineConfig
	onReload func(*Engine)
	delay    time.Duration
	watcher  *fsnotify.Watcher
	root     string
	file     string // set when cfg.Path names a single file
}

// NewWatcher starts watching cfg.Path, which must exist on the OS filesystem.
func NewWatcher(cfg EngineConfig, onReload func(*Engine)) (*Watcher, error) {
	info, err := os.Stat(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("stat policies path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w := &Watcher{cfg: cfg, onReload: onReload, delay: DefaultReloadDelay, watcher: fw, root: cfg.Path}
	if !info.IsDir() {
		// Editors replace files on save, so watch the parent directory.
		w.root = filepath.Dir(cfg.Path)
		w.file = filepath.Clean(cfg.Path)
		err = fw.Add(w.root)
	} else {
		err = w.addRecursive(w.root)
	}
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch policies: %w", err)
	}
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.watcher.Add(path)
	})
}

// Run processes events until ctx is done. It always returns nil after
// closing the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("policy watch error", "error", err)

		case <-fire:
			fire = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if w.file != "" {
		return filepath.Clean(ev.Name) == w.file
	}
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				slog.Warn("watch new policy directory", "path", ev.Name, "error", err)
			}
			return false
		}
	}
	return strings.HasSuffix(ev.Name, ".rego")
}

func (w *Watcher) reload(ctx context.Context) {
	engine, err := NewEngine(ctx, w.cfg)
	if err != nil {
		slog.Error("policy reload failed, keeping previous policies", "path", w.cfg.Path, "error", err)
		return
	}
	slog.Info("continuation policies reloaded", "path", w.cfg.Path, "count", engine.PolicyCount())
	w.onReload(engine)
}
