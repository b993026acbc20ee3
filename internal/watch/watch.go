// Package watch implements the best-effort fsnotify watcher that keeps the
// index current between scans. It recursively registers one watch per
// directory (fsnotify has no native recursion), debounces create/write
// events, and dispatches removes immediately.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/irvingoujAtDevolution/source-fast/internal/text"
)

const (
	debounceInterval = 500 * time.Millisecond
	indexDirName     = ".source_fast"
	gitDirName       = ".git"
)

// Writer is the subset of the writer actor's API the watcher drives.
type Writer interface {
	Upsert(ctx context.Context, path string, mtime int64, trigrams []text.Trigram) error
	Remove(ctx context.Context, path string) error
}

// Watcher subscribes recursively to a root directory and keeps the index
// reconciled with filesystem change events.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	indexDir string
	gitDir   string
	writer   Writer
	log      zerolog.Logger

	mu             sync.Mutex
	pendingUpserts map[string]struct{}
	timer          *time.Timer
}

// New creates a watcher rooted at root. Call Run to start it; Run registers
// the initial watch tree itself.
func New(root string, w Writer, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsw:            fsw,
		root:           root,
		indexDir:       filepath.Join(root, indexDirName),
		gitDir:         filepath.Join(root, gitDirName),
		writer:         w,
		log:            log,
		pendingUpserts: make(map[string]struct{}),
	}, nil
}

// Run registers watches for every directory under root and processes events
// until ctx is cancelled or the underlying watcher closes.
func (wt *Watcher) Run(ctx context.Context) error {
	defer wt.fsw.Close()

	if err := wt.addWatches(wt.root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-wt.fsw.Events:
			if !ok {
				return nil
			}
			wt.handleEvent(ctx, event)
		case err, ok := <-wt.fsw.Errors:
			if !ok {
				return nil
			}
			wt.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

// addWatches walks root, registering a watch on every directory while
// guarding against symlink cycles via a visited-realpath set.
func (wt *Watcher) addWatches(root string) error {
	visited := make(map[string]bool)

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if path == wt.indexDir || path == wt.gitDir {
			return filepath.SkipDir
		}

		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true

		if err := wt.fsw.Add(path); err != nil {
			wt.log.Warn().Err(err).Str("path", path).Msg("failed to add watch")
		}
		return nil
	})
}

func (wt *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	path := event.Name
	if strings.HasPrefix(path, wt.indexDir+string(filepath.Separator)) {
		return
	}
	if strings.HasPrefix(path, wt.gitDir+string(filepath.Separator)) {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			wt.dispatchRemove(ctx, path)
		}
		return
	}

	if info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			if err := wt.fsw.Add(path); err != nil {
				wt.log.Warn().Err(err).Str("path", path).Msg("failed to add watch for new directory")
			}
		}
		return
	}

	switch {
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		wt.scheduleUpsert(ctx, path)
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		wt.dispatchRemove(ctx, path)
	}
}

func (wt *Watcher) scheduleUpsert(ctx context.Context, path string) {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	wt.pendingUpserts[path] = struct{}{}
	if wt.timer != nil {
		wt.timer.Stop()
	}
	wt.timer = time.AfterFunc(debounceInterval, func() { wt.flushUpserts(ctx) })
}

func (wt *Watcher) flushUpserts(ctx context.Context) {
	wt.mu.Lock()
	paths := wt.pendingUpserts
	wt.pendingUpserts = make(map[string]struct{})
	wt.mu.Unlock()

	for path := range paths {
		path := path
		go wt.applyUpsert(ctx, path)
	}
}

func (wt *Watcher) applyUpsert(ctx context.Context, path string) {
	canonical, err := text.Canonicalize(path)
	if err != nil {
		return
	}

	info, err := os.Stat(canonical)
	if err != nil || !info.Mode().IsRegular() {
		if err := wt.writer.Remove(ctx, canonical); err != nil {
			wt.log.Warn().Err(err).Str("path", canonical).Msg("watcher remove failed")
		}
		return
	}

	data, ok, err := text.ReadText(canonical)
	if err != nil {
		return
	}
	var trigrams []text.Trigram
	if ok {
		trigrams = text.ExtractTrigrams(data)
	}

	if err := wt.writer.Upsert(ctx, canonical, info.ModTime().Unix(), trigrams); err != nil {
		wt.log.Warn().Err(err).Str("path", canonical).Msg("watcher upsert failed")
	}
}

func (wt *Watcher) dispatchRemove(ctx context.Context, path string) {
	go func() {
		canonical, err := text.Canonicalize(path)
		if err != nil {
			return
		}
		if err := wt.writer.Remove(ctx, canonical); err != nil {
			wt.log.Warn().Err(err).Str("path", canonical).Msg("watcher remove failed")
		}
	}()
}
