package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driving"
)

// fakeIndex records ingestions and keeps the resulting documents so the
// fakeDocuments view can list them.
type fakeIndex struct {
	mu        sync.Mutex
	docs      map[string]*domain.Document
	ingested  []string
	processed []string
	events    chan string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[string]*domain.Document), events: make(chan string, 16)}
}

func (f *fakeIndex) IndexDocument(context.Context, string, []domain.TextBlock) (*driving.IndexResult, error) {
	return &driving.IndexResult{}, nil
}

func (f *fakeIndex) Register(context.Context, string, string, int64) (*domain.Document, error) {
	return nil, domain.ErrInvalidInput
}

func (f *fakeIndex) Process(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, id)
	doc := f.docs[id]
	doc.UpdatedAt = time.Now()
	f.events <- "process:" + id
	return doc, nil
}

func (f *fakeIndex) IngestFile(_ context.Context, path string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, path)
	id := "doc-" + filepath.Base(path)
	doc := &domain.Document{
		ID:        id,
		Filename:  filepath.Base(path),
		Path:      path,
		Status:    domain.DocumentStatusCompleted,
		UpdatedAt: time.Now(),
	}
	f.docs[id] = doc
	f.events <- "ingest:" + filepath.Base(path)
	return doc, nil
}

type fakeDocuments struct {
	index   *fakeIndex
	removed chan string
}

func (f *fakeDocuments) List(context.Context) ([]domain.Document, error) {
	f.index.mu.Lock()
	defer f.index.mu.Unlock()
	out := make([]domain.Document, 0, len(f.index.docs))
	for _, d := range f.index.docs {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeDocuments) Get(_ context.Context, id string) (*domain.Document, error) {
	f.index.mu.Lock()
	defer f.index.mu.Unlock()
	if d, ok := f.index.docs[id]; ok {
		return d, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDocuments) Remove(_ context.Context, id string) error {
	f.index.mu.Lock()
	delete(f.index.docs, id)
	f.index.mu.Unlock()
	f.removed <- id
	return nil
}

func pdfOnly(name string) bool {
	return strings.HasSuffix(name, ".pdf")
}

func waitFor(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for watcher")
		return ""
	}
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{".hidden.pdf", true},
		{".~lock.rapor.pdf", true},
		{"rapor.pdf", false},
		{"file.hidden", false},
		{".", false},
		{"..", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isHidden(tt.name))
		})
	}
}

func TestHandleFsEvent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "rapor.pdf")
	require.NoError(t, os.WriteFile(file, []byte("%PDF"), 0o600))
	sub := filepath.Join(dir, "arsiv.pdf")
	require.NoError(t, os.Mkdir(sub, 0o750))
	hidden := filepath.Join(dir, ".rapor.pdf")
	require.NoError(t, os.WriteFile(hidden, []byte("%PDF"), 0o600))
	other := filepath.Join(dir, "notes.docx")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))

	w := NewWatcher(dir, newFakeIndex(), WithSupports(pdfOnly))

	tests := []struct {
		name     string
		path     string
		op       fsnotify.Op
		expected ChangeType
	}{
		{"create", file, fsnotify.Create, ChangeCreated},
		{"write", file, fsnotify.Write, ChangeUpdated},
		{"write with chmod", file, fsnotify.Write | fsnotify.Chmod, ChangeUpdated},
		{"remove", filepath.Join(dir, "gone.pdf"), fsnotify.Remove, ChangeDeleted},
		{"rename", filepath.Join(dir, "moved.pdf"), fsnotify.Rename, ChangeDeleted},
		{"chmod only", file, fsnotify.Chmod, ""},
		{"directory", sub, fsnotify.Create, ""},
		{"hidden", hidden, fsnotify.Create, ""},
		{"unsupported", other, fsnotify.Create, ""},
		{"create of vanished file", filepath.Join(dir, "tmp.pdf"), fsnotify.Create, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change := w.handleFsEvent(fsnotify.Event{Name: tt.path, Op: tt.op})
			if tt.expected == "" {
				assert.Nil(t, change)
				return
			}
			require.NotNil(t, change)
			assert.Equal(t, tt.expected, change.Type)
			assert.Equal(t, tt.path, change.Path)
		})
	}
}

func TestWatcher_Scan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("%PDF"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.pdf"), []byte("%PDF"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".c.pdf"), []byte("%PDF"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.txt"), []byte("x"), 0o600))

	index := newFakeIndex()
	w := NewWatcher(dir, index, WithSupports(pdfOnly), WithDocuments(&fakeDocuments{index: index}))

	n, err := w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Completed documents newer than their files are not ingested again.
	n, err = w.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, index.ingested, 2)
}

func TestWatcher_Scan_ReprocessesChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF"), 0o600))

	index := newFakeIndex()
	w := NewWatcher(dir, index, WithDocuments(&fakeDocuments{index: index}))

	_, err := w.Scan(context.Background())
	require.NoError(t, err)

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	n, err := w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, index.ingested, 1)
	assert.Equal(t, []string{"doc-a.pdf"}, index.processed)
}

func TestWatcher_Scan_MissingDir(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "missing"), newFakeIndex())

	_, err := w.Scan(context.Background())
	assert.Error(t, err)
}

func TestWatcher_Run(t *testing.T) {
	dir := t.TempDir()
	index := newFakeIndex()
	docs := &fakeDocuments{index: index, removed: make(chan string, 4)}
	w := NewWatcher(dir, index,
		WithSupports(pdfOnly),
		WithDocuments(docs),
		WithDebounce(20*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "enflasyon.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o600))
	assert.Equal(t, "ingest:enflasyon.pdf", waitFor(t, index.events))

	require.NoError(t, os.Remove(path))
	assert.Equal(t, "doc-enflasyon.pdf", waitFor(t, docs.removed))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_Run_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	w := NewWatcher(dir, newFakeIndex())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, w.Run(ctx))
	assert.DirExists(t, dir)
}
