// Package filesystem ingests report files dropped into a local inbox
// directory and keeps the index in step as they change or disappear.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driving"
	"github.com/custodia-labs/finrag/internal/logger"
)

// DefaultDebounce is how long a file must be quiet before it is ingested.
// Copies arrive as a burst of write events.
const DefaultDebounce = 500 * time.Millisecond

// ChangeType describes what happened to a watched file.
type ChangeType string

// Change types.
const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// Change is a file event that affects the index.
type Change struct {
	Type ChangeType
	Path string
}

// Watcher ingests files from a directory. Subdirectories are not watched.
type Watcher struct {
	dir      string
	index    driving.IndexService
	docs     driving.DocumentService
	supports func(string) bool
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDocuments lets the watcher re-process changed files in place and
// remove documents whose files are deleted. Without it every change is
// ingested as a new document and deletions are ignored.
func WithDocuments(docs driving.DocumentService) Option {
	return func(w *Watcher) { w.docs = docs }
}

// WithSupports restricts ingestion to files the predicate accepts.
func WithSupports(fn func(filename string) bool) Option {
	return func(w *Watcher) { w.supports = fn }
}

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher creates a watcher over dir.
func NewWatcher(dir string, index driving.IndexService, opts ...Option) *Watcher {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	w := &Watcher{
		dir:      dir,
		index:    index,
		debounce: DefaultDebounce,
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Scan ingests files already in the directory. Files whose document is
// completed and newer than the file are skipped. It returns the number
// of files ingested.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", w.dir, err)
	}

	known, err := w.documentsByPath(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		path := filepath.Join(w.dir, entry.Name())
		if entry.IsDir() || !w.accepts(path) {
			continue
		}
		if doc, ok := known[path]; ok && upToDate(doc, entry) {
			continue
		}
		if err := w.ingest(ctx, path, known[path]); err != nil {
			logger.Warn("Ingesting %s failed: %v", entry.Name(), err)
			continue
		}
		count++
	}
	return count, nil
}

// Run scans the directory and then ingests changes until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return fmt.Errorf("creating %s: %w", w.dir, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	if n, err := w.Scan(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("Initial scan of %s: %v", w.dir, err)
	} else if n > 0 {
		logger.Info("Ingested %d file(s) from %s", n, w.dir)
	}

	logger.Info("Watching %s for new reports", w.dir)
	defer w.drain()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if change := w.handleFsEvent(event); change != nil {
				w.schedule(ctx, *change)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error: %v", err)
		}
	}
}

// handleFsEvent maps a raw event to a change, or nil when it is irrelevant.
func (w *Watcher) handleFsEvent(event fsnotify.Event) *Change {
	if !w.accepts(event.Name) {
		return nil
	}

	switch {
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		return &Change{Type: ChangeDeleted, Path: event.Name}
	case event.Op.Has(fsnotify.Create), event.Op.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil || info.IsDir() {
			return nil
		}
		if event.Op.Has(fsnotify.Create) {
			return &Change{Type: ChangeCreated, Path: event.Name}
		}
		return &Change{Type: ChangeUpdated, Path: event.Name}
	default:
		return nil
	}
}

// schedule applies a change once the path has been quiet for the debounce window.
func (w *Watcher) schedule(ctx context.Context, change Change) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[change.Path]; ok && t.Stop() {
		w.wg.Done()
	}

	w.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()

		w.mu.Lock()
		if w.pending[change.Path] == timer {
			delete(w.pending, change.Path)
		}
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if err := w.apply(ctx, change); err != nil {
			logger.Warn("Applying %s change to %s: %v", change.Type, filepath.Base(change.Path), err)
		}
	})
	w.pending[change.Path] = timer
}

// drain stops pending timers and waits for running ingestions.
func (w *Watcher) drain() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) apply(ctx context.Context, change Change) error {
	known, err := w.documentsByPath(ctx)
	if err != nil {
		return err
	}
	existing := known[change.Path]

	if change.Type == ChangeDeleted {
		if existing == nil {
			return nil
		}
		logger.Info("Removing %s; its file was deleted", existing.Filename)
		return w.docs.Remove(ctx, existing.ID)
	}
	return w.ingest(ctx, change.Path, existing)
}

// ingest re-processes an existing document or registers a new one.
func (w *Watcher) ingest(ctx context.Context, path string, existing *domain.Document) error {
	var (
		doc *domain.Document
		err error
	)
	if existing != nil {
		doc, err = w.index.Process(ctx, existing.ID)
	} else {
		doc, err = w.index.IngestFile(ctx, path)
	}
	if err != nil {
		return err
	}
	logger.Info("Indexed %s: %d pages, %d chunks", doc.Filename, doc.PageCount, doc.ChunkCount)
	return nil
}

func (w *Watcher) documentsByPath(ctx context.Context) (map[string]*domain.Document, error) {
	if w.docs == nil {
		return nil, nil
	}
	docs, err := w.docs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	byPath := make(map[string]*domain.Document, len(docs))
	for i := range docs {
		if docs[i].Path != "" {
			byPath[docs[i].Path] = &docs[i]
		}
	}
	return byPath, nil
}

func (w *Watcher) accepts(path string) bool {
	if isHidden(filepath.Base(path)) {
		return false
	}
	return w.supports == nil || w.supports(path)
}

func upToDate(doc *domain.Document, entry os.DirEntry) bool {
	if doc.Status != domain.DocumentStatusCompleted {
		return false
	}
	info, err := entry.Info()
	if err != nil {
		return false
	}
	return !info.ModTime().After(doc.UpdatedAt)
}

// isHidden reports whether name starts with a dot. Editors and
// downloaders use such names for partial files.
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
