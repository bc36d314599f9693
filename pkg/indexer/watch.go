package indexer

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"agentflow/pkg/workspace"
)

// DefaultDebounce batches bursts of filesystem events into one rebuild.
const DefaultDebounce = 500 * time.Millisecond

// Watch rebuilds the index of base whenever files change, until ctx ends.
// onRebuild, when set, is called after every rebuild attempt.
func (ix *Indexer) Watch(ctx context.Context, base string, debounce time.Duration, onRebuild func(error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addTree(w, base); err != nil {
		return err
	}
	ix.logger.Info("watching %s", base)

	out := workspace.IndexPath(base)
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ignored(base, ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				// New directories must be watched too.
				_ = addTree(w, ev.Name)
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			pending = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			ix.logger.Warn("watch error: %v", err)

		case <-pending:
			pending = nil
			err := ix.Regenerate(ctx, base, out)
			if err != nil {
				ix.logger.Warn("rebuild failed: %v", err)
			}
			if onRebuild != nil {
				onRebuild(err)
			}
		}
	}
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

// ignored reports events inside skipped directories, including the index
// directory the rebuild itself writes to.
func ignored(base, name string) bool {
	rel, err := filepath.Rel(base, name)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if skipDirs[part] {
			return true
		}
	}
	return false
}
