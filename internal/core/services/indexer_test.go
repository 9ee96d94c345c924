package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finrag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
	"github.com/custodia-labs/finrag/internal/extractors"
	"github.com/custodia-labs/finrag/internal/extractors/plaintext"
	"github.com/custodia-labs/finrag/internal/postprocessors/chunker"
)

// fakeExtractor returns fixed blocks for .pdf files. hook, when set, runs
// at the start of every extraction.
type fakeExtractor struct {
	blocks []domain.TextBlock
	pages  int
	err    error
	hook   func()
}

func (f *fakeExtractor) Extensions() []string { return []string{".pdf"} }

func (f *fakeExtractor) Extract(_ context.Context, documentID, _ string) (*driven.Extraction, error) {
	if f.hook != nil {
		f.hook()
	}
	if f.err != nil {
		return nil, f.err
	}
	blocks := make([]domain.TextBlock, len(f.blocks))
	for i, b := range f.blocks {
		b.DocumentID = documentID
		blocks[i] = b
	}
	return &driven.Extraction{Blocks: blocks, PageCount: f.pages}, nil
}

// fiftyRunes chunks into exactly five chunks of ten runes.
func fiftyRunes() []domain.TextBlock {
	return []domain.TextBlock{{Page: 1, Text: strings.Repeat("a", 50), Type: domain.BlockTypeParagraph}}
}

type indexFixture struct {
	svc      *IndexService
	embedder *mockEmbedder
	index    driven.VectorIndex
	docs     *memory.DocumentStore
}

func newIndexFixture(t *testing.T, ext driven.Extractor, opts ...IndexOption) *indexFixture {
	t.Helper()
	f := &indexFixture{
		embedder: newMockEmbedder(),
		index:    newIndex(t),
		docs:     memory.NewDocumentStore(),
	}
	registry := extractors.NewRegistry(plaintext.New())
	if ext != nil {
		registry.Register(ext)
	}
	base := []IndexOption{
		WithIndexPolicy(fastPolicy(3)),
		WithEmbeddingSettings(domain.EmbeddingSettings{BatchSize: 2, Concurrency: 1}),
	}
	f.svc = NewIndexService(
		chunker.New(chunker.WithChunkSize(10), chunker.WithOverlap(0)),
		f.embedder, f.index, f.docs, registry,
		append(base, opts...)...,
	)
	return f
}

func TestIndexDocument_Batches(t *testing.T) {
	f := newIndexFixture(t, nil)

	res, err := f.svc.IndexDocument(context.Background(), "doc-a", fiftyRunes())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Chunks)
	assert.Zero(t, res.Replaced)
	assert.Empty(t, res.Warning)
	assert.Equal(t, []int{2, 2, 1}, f.embedder.batchSizes)
	assert.Equal(t, 5, f.index.Len())
}

func TestIndexDocument_IsIdempotent(t *testing.T) {
	f := newIndexFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.IndexDocument(ctx, "doc-a", fiftyRunes())
	require.NoError(t, err)
	res, err := f.svc.IndexDocument(ctx, "doc-a", fiftyRunes())
	require.NoError(t, err)

	assert.Equal(t, 5, res.Replaced)
	assert.Equal(t, 5, f.index.Len())
	assert.Equal(t, map[string]int{"doc-a": 5}, f.index.Documents())
}

func TestIndexDocument_ConcurrentCallsConverge(t *testing.T) {
	f := newIndexFixture(t, nil, WithEmbeddingSettings(domain.EmbeddingSettings{BatchSize: 2, Concurrency: 3}))

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.IndexDocument(context.Background(), "doc-a", fiftyRunes())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, map[string]int{"doc-a": 5}, f.index.Documents())
}

func TestIndexDocument_EmptyExtraction(t *testing.T) {
	f := newIndexFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.IndexDocument(ctx, "doc-a", fiftyRunes())
	require.NoError(t, err)

	res, err := f.svc.IndexDocument(ctx, "doc-a", []domain.TextBlock{{Page: 1, Text: "   "}})
	require.NoError(t, err)
	assert.Equal(t, domain.KindExtractionEmpty, res.Warning)
	assert.Zero(t, res.Chunks)
	assert.Equal(t, 5, res.Replaced)
	assert.Zero(t, f.index.Len())
}

func TestIndexDocument_EmbeddingFailureLeavesIndexUntouched(t *testing.T) {
	f := newIndexFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.IndexDocument(ctx, "doc-a", fiftyRunes())
	require.NoError(t, err)

	unavailable := &domain.ProviderError{Provider: "mock", StatusCode: 503}
	f.embedder.errs = []error{unavailable, unavailable, unavailable}

	_, err = f.svc.IndexDocument(ctx, "doc-a", []domain.TextBlock{{Page: 1, Text: "yeni içerik"}})
	var pe *domain.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, domain.KindEmbeddingFailure, pe.Kind)
	assert.Equal(t, 3, pe.Attempts)
	assert.True(t, pe.Retryable)
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailure)
	assert.Equal(t, 5, f.index.Len())
}

func TestIndexDocument_DimensionMismatchIsFinal(t *testing.T) {
	f := newIndexFixture(t, nil)
	f.embedder.wrongDim = true

	_, err := f.svc.IndexDocument(context.Background(), "doc-a", fiftyRunes())
	var pe *domain.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, domain.KindEmbeddingFailure, pe.Kind)
	assert.Equal(t, 1, pe.Attempts)
	assert.False(t, pe.Retryable)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Zero(t, f.index.Len())
}

func TestIndexDocument_RequiresID(t *testing.T) {
	f := newIndexFixture(t, nil)
	_, err := f.svc.IndexDocument(context.Background(), " ", fiftyRunes())
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}

func TestIndexService_RegisterAndProcess(t *testing.T) {
	ext := &fakeExtractor{blocks: fiftyRunes(), pages: 12}
	f := newIndexFixture(t, ext)
	ctx := context.Background()

	doc, err := f.svc.Register(ctx, "rapor.pdf", "/data/rapor.pdf", 1024)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusUploaded, doc.Status)
	assert.NotEmpty(t, doc.ID)

	done, err := f.svc.Process(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusCompleted, done.Status)
	assert.Equal(t, 5, done.ChunkCount)
	assert.Equal(t, 12, done.PageCount)

	stored, err := f.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusCompleted, stored.Status)
	assert.Equal(t, 5, f.index.Documents()[doc.ID])
}

func TestIndexService_ProcessImageOnlyPDF(t *testing.T) {
	f := newIndexFixture(t, &fakeExtractor{pages: 3})
	ctx := context.Background()

	doc, err := f.svc.Register(ctx, "grafik.pdf", "/data/grafik.pdf", 10)
	require.NoError(t, err)
	done, err := f.svc.Process(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusCompleted, done.Status)
	assert.Zero(t, done.ChunkCount)
	assert.Equal(t, emptyExtractionWarning, done.Warning)
}

func TestIndexService_ProcessRecordsFailure(t *testing.T) {
	f := newIndexFixture(t, &fakeExtractor{err: errors.New("bozuk dosya")})
	ctx := context.Background()

	doc, err := f.svc.Register(ctx, "bozuk.pdf", "/data/bozuk.pdf", 10)
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, doc.ID)
	require.Error(t, err)

	stored, err := f.docs.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "bozuk dosya")
}

func TestIndexService_ProcessUnknownDocument(t *testing.T) {
	f := newIndexFixture(t, nil)
	_, err := f.svc.Process(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIndexService_RemoveWaitsForProcess(t *testing.T) {
	started, release := make(chan struct{}), make(chan struct{})
	ext := &fakeExtractor{blocks: fiftyRunes(), pages: 1, hook: func() {
		close(started)
		<-release
	}}
	locks := NewDocumentLocks()
	f := newIndexFixture(t, ext, WithDocumentLocks(locks))
	documents := NewDocumentService(f.docs, f.index)
	documents.ShareLocks(locks)
	ctx := context.Background()

	doc, err := f.svc.Register(ctx, "rapor.pdf", "/data/rapor.pdf", 10)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Process(ctx, doc.ID)
		done <- err
	}()
	<-started

	err = documents.Remove(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrIndexingInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 5, f.index.Documents()[doc.ID])

	require.NoError(t, documents.Remove(ctx, doc.ID))
	assert.Zero(t, f.index.Documents()[doc.ID])
	_, err = f.docs.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIndexService_ProcessDoesNotResurrectDeletedRecord(t *testing.T) {
	ext := &fakeExtractor{blocks: fiftyRunes(), pages: 1}
	f := newIndexFixture(t, ext)
	ctx := context.Background()

	doc, err := f.svc.Register(ctx, "rapor.pdf", "/data/rapor.pdf", 10)
	require.NoError(t, err)

	// Deleted behind the service's back, as another finrag process would.
	ext.hook = func() { _ = f.docs.DeleteDocument(ctx, doc.ID) }

	_, err = f.svc.Process(ctx, doc.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.docs.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, f.index.Len())
}

func TestIndexService_RegisterRejectsUnsupportedType(t *testing.T) {
	f := newIndexFixture(t, nil)

	_, err := f.svc.Register(context.Background(), "tablo.xlsx", "/data/tablo.xlsx", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestIndexService_IngestFile(t *testing.T) {
	f := newIndexFixture(t, nil)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "bulten.txt")
	require.NoError(t, os.WriteFile(path, []byte("Haftalık bülten.\fİkinci sayfa metni."), 0o600))

	doc, err := f.svc.IngestFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "bulten.txt", doc.Filename)
	assert.Equal(t, domain.DocumentStatusCompleted, doc.Status)
	assert.Equal(t, 2, doc.PageCount)
	assert.Positive(t, doc.ChunkCount)
}

func TestIndexService_IngestFileErrors(t *testing.T) {
	f := newIndexFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.IngestFile(ctx, filepath.Join(t.TempDir(), "yok.txt"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.IngestFile(ctx, t.TempDir())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
