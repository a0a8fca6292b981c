// Package watch regenerates listing caches when files under the content
// root change.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dfryer1193/publog/blog/domain"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const DefaultDebounce = 500 * time.Millisecond

// Regenerator rebuilds a group's listing unless another caller already is.
type Regenerator interface {
	RegenerateIfNotInProgress(ctx context.Context, group string) error
}

// Watcher batches changes per group and regenerates each touched group
// once the tree has been quiet for the debounce window.
type Watcher struct {
	root     string
	cache    Regenerator
	debounce time.Duration
	watcher  *fsnotify.Watcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(root string, cache Regenerator, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{root: filepath.Clean(root), cache: cache, debounce: debounce, watcher: w}, nil
}

// Start watches root and every directory below it until ctx ends or Close
// is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Go(w.loop)
	return nil
}

func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && ignored(d.Name()) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// ignored skips dot entries and in-flight atomic-write temp files.
func ignored(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp")
}

// group returns the group a changed path belongs to.
func (w *Watcher) group(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, p := range parts {
		if ignored(p) {
			return "", false
		}
	}
	return parts[0], true
}

func (w *Watcher) loop() {
	pending := map[string]bool{}
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			group, ok := w.group(ev.Name)
			if !ok {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						log.Warn().Err(err).Str("path", ev.Name).Msg("Failed to watch new directory")
					}
				}
			}
			// A new top-level file is not a group.
			if filepath.Dir(ev.Name) == w.root && !isDir(ev.Name) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			pending[group] = true
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Content watcher error")

		case <-timer.C:
			for group := range pending {
				w.regenerate(group)
			}
			clear(pending)
		}
	}
}

func (w *Watcher) regenerate(group string) {
	err := w.cache.RegenerateIfNotInProgress(w.ctx, group)
	switch {
	case err == nil:
		log.Debug().Str("group", group).Msg("Regenerated listing after content change")
	case errors.Is(err, domain.ErrAlreadyInProgress):
	case errors.Is(err, domain.ErrGroupNotFound):
		log.Debug().Str("group", group).Msg("Ignoring change outside configured groups")
	default:
		log.Error().Err(err).Str("group", group).Msg("Failed to regenerate listing after content change")
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
