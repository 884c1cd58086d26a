// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package plugins

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/oops"
)

// DefaultDebounce is how long a unit must stay unchanged before a reload is
// requested for it. Editors often write a file several times per save.
const DefaultDebounce = 300 * time.Millisecond

// UnitResolver maps source files to units.
type UnitResolver interface {
	Root() string
	UnitForFile(file string) (Unit, bool)
}

// Watcher reports plugin units whose source changed on disk. It only
// requests reloads; the caller performs them between events so that loading
// never overlaps dispatch.
type Watcher struct {
	resolver UnitResolver
	fsw      *fsnotify.Watcher
	reloads  chan string
	debounce time.Duration
	logger   *slog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithWatchLogger sets the watcher's logger.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = l
	}
}

// NewWatcher watches the resolver's root directory tree.
func NewWatcher(resolver UnitResolver, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, oops.In("plugin").Hint("failed to create file watcher").Wrap(err)
	}
	w := &Watcher{
		resolver: resolver,
		fsw:      fsw,
		reloads:  make(chan string),
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.addTree(resolver.Root()); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Reloads delivers the dotted path of each unit to reload.
func (w *Watcher) Reloads() <-chan string { return w.reloads }

// Run forwards debounced changes until ctx is cancelled, then closes the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.logger.WarnContext(ctx, "failed to close file watcher", "error", err)
		}
	}()

	ticker := time.NewTicker(max(w.debounce/2, 10*time.Millisecond))
	defer ticker.Stop()

	pending := make(map[string]time.Time)
	var ready []string

	for {
		var out chan string
		var next string
		if len(ready) > 0 {
			out = w.reloads
			next = ready[0]
		}

		select {
		case <-ctx.Done():
			return nil

		case out <- next:
			ready = ready[1:]

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if path, ok := w.handle(ctx, ev); ok {
				pending[path] = time.Now()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "file watcher error", "error", err)

		case now := <-ticker.C:
			for path, changed := range pending {
				if now.Sub(changed) >= w.debounce {
					delete(pending, path)
					if !slices.Contains(ready, path) {
						ready = append(ready, path)
					}
				}
			}
		}
	}
}

// handle returns the unit path affected by ev, if any. New directories are
// added to the watch.
func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) (string, bool) {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return "", false
	}
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.WarnContext(ctx, "failed to watch directory", "dir", ev.Name, "error", err)
			}
			return "", false
		}
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return "", false
	}
	unit, ok := w.resolver.UnitForFile(ev.Name)
	if !ok {
		return "", false
	}
	w.logger.DebugContext(ctx, "plugin unit changed", "unit", unit.Path)
	return unit.Path, true
}

func (w *Watcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
	if err != nil {
		return oops.In("plugin").With("dir", root).Hint("failed to watch plugin directory").Wrap(err)
	}
	return nil
}
