// Package watch rebuilds when the files behind a definition change.
package watch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/goliatone/go-urlform/pkg/document"
)

// DefaultDebounce is the quiet period before a batch of events is reported.
const DefaultDebounce = 200 * time.Millisecond

// ChangeFunc receives the sorted, de-duplicated paths of one batch.
type ChangeFunc func(ctx context.Context, changed []string) error

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithFilter replaces the default filter, which accepts JSON, YAML and TOML
// documents and skips editor swap files.
func WithFilter(fn func(path string) bool) Option {
	return func(w *Watcher) {
		if fn != nil {
			w.filter = fn
		}
	}
}

// WithLogger routes watcher diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Watcher reports changes below a set of files or directories. A file is
// watched through its parent directory so editors that replace files on save
// keep being seen.
type Watcher struct {
	paths    []string
	debounce time.Duration
	filter   func(string) bool
	logger   *slog.Logger
}

// New returns a watcher for paths.
func New(paths []string, opts ...Option) *Watcher {
	w := &Watcher{
		paths:    append([]string(nil), paths...),
		debounce: DefaultDebounce,
		filter:   IsDocument,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// IsDocument reports whether path names a definition document rather than
// an editor artifact.
func IsDocument(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".#") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") {
		return false
	}
	_, err := document.FormatFromPath(base)
	return err == nil
}

// Run blocks until ctx ends, calling onChange once per debounced batch.
// Errors from onChange are logged and watching continues.
func (w *Watcher) Run(ctx context.Context, onChange ChangeFunc) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()

	dirs, err := w.directories()
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch: add %s: %w", dir, err)
		}
		w.logger.Debug("watching", "dir", dir)
	}

	pending := map[string]struct{}{}
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod || !w.filter(event.Name) {
				continue
			}
			w.logger.Debug("file event", "path", event.Name, "op", event.Op.String())
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			sort.Strings(changed)
			pending = map[string]struct{}{}
			if len(changed) == 0 {
				continue
			}
			if err := onChange(ctx, changed); err != nil {
				w.logger.Warn("rebuild failed", "error", err)
			}
		}
	}
}

func (w *Watcher) directories() ([]string, error) {
	seen := map[string]struct{}{}
	var dirs []string
	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("watch: %w", err)
		}
		dir := path
		if !info.IsDir() {
			dir = filepath.Dir(path)
		}
		dir = filepath.Clean(dir)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("watch: no paths to watch")
	}
	return dirs, nil
}
