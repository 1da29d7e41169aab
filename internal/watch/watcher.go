// Package watch re-runs sync for a collection whenever its files change.
//
// The watcher:
//  1. Syncs every collection once
//  2. Watches each collection folder for YAML, CSS and HTML changes
//  3. Debounces bursts of events per collection
//  4. Syncs only the collections that changed
//
// Writes made by sync itself (id back-fill in notes.yaml) queue one more
// pass, which finds every fingerprint unchanged and pushes nothing.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	ankisync "github.com/hieucao/anki-vibe/internal/sync"
)

// DefaultDebounce is how long a collection must stay quiet before it is
// synced.
const DefaultDebounce = 500 * time.Millisecond

// Syncer runs sync passes.
type Syncer interface {
	Sync(ctx context.Context, collections []ankisync.Collection) (*ankisync.Result, error)
	SyncCollection(ctx context.Context, c ankisync.Collection) (ankisync.CollectionResult, error)
}

// Config holds watcher settings.
type Config struct {
	// Debounce batches rapid writes to the same collection.
	Debounce time.Duration

	// OnSync, if set, is called after each triggered collection sync.
	OnSync func(ankisync.CollectionResult)
}

// Watcher watches collection folders and syncs them on change.
type Watcher struct {
	syncer      Syncer
	collections []ankisync.Collection
	byDir       map[string]ankisync.Collection
	config      Config
	logger      zerolog.Logger

	fsw     *fsnotify.Watcher
	queue   map[string]time.Time // collection dir -> last event
	queueMu gosync.Mutex
	now     func() time.Time
}

// New creates a Watcher for collections.
func New(syncer Syncer, collections []ankisync.Collection, logger zerolog.Logger, config Config) (*Watcher, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if len(collections) == 0 {
		return nil, fmt.Errorf("no collections to watch")
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}

	byDir := make(map[string]ankisync.Collection, len(collections))
	for _, c := range collections {
		dir, err := filepath.Abs(c.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", c.Dir, err)
		}
		byDir[dir] = c
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		syncer:      syncer,
		collections: collections,
		byDir:       byDir,
		config:      config,
		logger:      logger.With().Str("component", "watch").Logger(),
		fsw:         fsw,
		queue:       make(map[string]time.Time),
		now:         time.Now,
	}, nil
}

// Run syncs everything once, then processes file changes until ctx is
// cancelled. A state store failure stops the watcher and is returned.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	if _, err := w.syncer.Sync(ctx, w.collections); err != nil {
		return fmt.Errorf("initial sync failed: %w", err)
	}

	for dir := range w.byDir {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		w.logger.Debug().Str("dir", dir).Msg("watching")
	}
	w.logger.Info().Int("collections", len(w.byDir)).Msg("watching for changes")

	ticker := time.NewTicker(w.config.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("watcher stopped")
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watcher error")

		case <-ticker.C:
			if err := w.processPending(ctx); err != nil {
				return err
			}
		}
	}
}

// handle queues the collection an event belongs to.
func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	if !Relevant(event.Name) {
		return
	}
	dir, err := filepath.Abs(filepath.Dir(event.Name))
	if err != nil {
		return
	}
	if _, ok := w.byDir[dir]; !ok {
		return
	}
	w.logger.Debug().Str("op", event.Op.String()).Str("file", event.Name).Msg("file event")
	w.queueChange(dir)
}

func (w *Watcher) queueChange(dir string) {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()
	w.queue[dir] = w.now()
}

// processPending syncs collections that have been quiet for the debounce
// interval.
func (w *Watcher) processPending(ctx context.Context) error {
	w.queueMu.Lock()
	var ready []string
	now := w.now()
	for dir, queuedAt := range w.queue {
		if now.Sub(queuedAt) < w.config.Debounce {
			continue
		}
		ready = append(ready, dir)
		delete(w.queue, dir)
	}
	w.queueMu.Unlock()

	for _, dir := range ready {
		c := w.byDir[dir]
		w.logger.Info().Str("collection", c.Name).Msg("change detected, syncing")
		cr, err := w.syncer.SyncCollection(ctx, c)
		if errors.Is(err, ankisync.ErrState) {
			return err
		}
		if err != nil {
			w.logger.Warn().Err(err).Str("collection", c.Name).Msg("sync failed")
		}
		if w.config.OnSync != nil {
			w.config.OnSync(cr)
		}
	}
	return nil
}

// Relevant reports whether a file name is one a collection is built from.
func Relevant(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".yaml", ".yml", ".css", ".html":
		return true
	}
	return false
}
