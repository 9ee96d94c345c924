package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
	"github.com/custodia-labs/finrag/internal/core/ports/driving"
	"github.com/custodia-labs/finrag/internal/logger"
	"github.com/custodia-labs/finrag/internal/retry"
)

// Ensure IndexService implements the interface.
var _ driving.IndexService = (*IndexService)(nil)

const emptyExtractionWarning = "no extractable text; the file may contain only images"

var errDocumentRemoved = errors.New("document was removed during processing")

// IndexService chunks, embeds and indexes documents.
type IndexService struct {
	chunker     driven.Chunker
	embedder    driven.EmbeddingService
	vectorIndex driven.VectorIndex
	docStore    driven.DocumentStore
	extractors  driven.ExtractorRegistry

	policy      retry.Policy
	batchSize   int
	concurrency int
	callTimeout time.Duration

	group singleflight.Group
	locks *DocumentLocks
	newID func() string
	now   func() time.Time
}

// IndexOption configures an IndexService.
type IndexOption func(*IndexService)

// WithEmbeddingSettings sets batch size and batch concurrency.
func WithEmbeddingSettings(s domain.EmbeddingSettings) IndexOption {
	return func(svc *IndexService) {
		if s.BatchSize > 0 {
			svc.batchSize = s.BatchSize
		}
		if s.Concurrency > 0 {
			svc.concurrency = s.Concurrency
		}
	}
}

// WithIndexPolicy sets the retry policy for embedding batches.
func WithIndexPolicy(p retry.Policy) IndexOption {
	return func(svc *IndexService) { svc.policy = p }
}

// WithBatchTimeout bounds each embedding batch call.
func WithBatchTimeout(d time.Duration) IndexOption {
	return func(svc *IndexService) { svc.callTimeout = d }
}

// WithDocumentLocks shares per-document locks with a DocumentService.
func WithDocumentLocks(l *DocumentLocks) IndexOption {
	return func(svc *IndexService) {
		if l != nil {
			svc.locks = l
		}
	}
}

// NewIndexService creates an index service. docStore and extractors are
// only needed for Register, Process and IngestFile.
func NewIndexService(
	chunker driven.Chunker,
	embedder driven.EmbeddingService,
	vectorIndex driven.VectorIndex,
	docStore driven.DocumentStore,
	extractors driven.ExtractorRegistry,
	opts ...IndexOption,
) *IndexService {
	s := &IndexService{
		chunker:     chunker,
		embedder:    embedder,
		vectorIndex: vectorIndex,
		docStore:    docStore,
		extractors:  extractors,
		policy:      retry.DefaultPolicy(),
		batchSize:   domain.DefaultEmbedBatchSize,
		concurrency: domain.DefaultEmbedConcurrency,
		callTimeout: domain.DefaultCallTimeout,
		locks:       NewDocumentLocks(),
		newID:       uuid.NewString,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IndexDocument replaces the document's chunks with ones built from
// blocks. Concurrent calls for the same document share one run.
func (s *IndexService) IndexDocument(
	ctx context.Context, documentID string, blocks []domain.TextBlock,
) (*driving.IndexResult, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, &domain.PipelineError{Kind: domain.KindInvalidInput, Message: "document id is required"}
	}

	v, err, shared := s.group.Do("index:"+documentID, func() (any, error) {
		unlock, err := s.locks.Lock(ctx, documentID)
		if err != nil {
			return nil, contextError(err, "", 0, err)
		}
		defer unlock()
		return s.indexDocument(ctx, documentID, blocks, nil)
	})
	if shared {
		logger.Debug("Joined in-flight indexing of %s", documentID)
	}
	if err != nil {
		return nil, domain.AsPipelineError(err)
	}
	return v.(*driving.IndexResult), nil
}

// indexDocument runs with the document's lock held. A non-nil guard is
// checked right before the index is written; its error aborts the run.
func (s *IndexService) indexDocument(
	ctx context.Context, documentID string, blocks []domain.TextBlock, guard func(context.Context) error,
) (*driving.IndexResult, error) {
	logger.Section("Indexing " + documentID)
	start := s.now()

	if s.vectorIndex == nil || s.embedder == nil {
		return nil, &domain.PipelineError{
			Kind:    domain.KindEmbeddingFailure,
			Message: "indexing is not configured",
			Err:     domain.ErrEmbeddingUnavailable,
		}
	}

	chunks := s.chunker.Chunk(documentID, blocks)
	logger.Debug("Chunked %d blocks into %d chunks", len(blocks), len(chunks))
	previous := s.vectorIndex.Documents()[documentID]

	result := &driving.IndexResult{DocumentID: documentID, Replaced: previous}
	if len(chunks) == 0 {
		result.Warning = domain.KindExtractionEmpty
	} else if err := s.embed(ctx, chunks); err != nil {
		return nil, err
	}

	if guard != nil {
		if err := guard(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.vectorIndex.ReplaceDocument(ctx, documentID, chunks); err != nil {
		return nil, s.writeError(ctx, "write index", err)
	}
	if err := s.vectorIndex.Save(ctx); err != nil {
		return nil, s.writeError(ctx, "save index", err)
	}

	result.Chunks = len(chunks)
	result.Elapsed = s.now().Sub(start)
	logger.Info("Indexed %s: %d chunks (replaced %d) in %s", documentID, result.Chunks, previous, result.Elapsed)
	return result, nil
}

// embed fills chunk embeddings in batches, running up to concurrency
// batches at once. The first failing batch cancels the rest.
func (s *IndexService) embed(ctx context.Context, chunks []domain.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	var mu sync.Mutex
	var failed retry.Result

	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))
		batch := chunks[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i := range batch {
				texts[i] = batch[i].Text
			}

			var vecs [][]float32
			res, err := s.policy.Do(gctx, func(ctx context.Context) error {
				out, err := callWithTimeout(ctx, s.callTimeout, s.embedder.ModelName(),
					func(ctx context.Context) ([][]float32, error) {
						return s.embedder.EmbedBatch(ctx, texts)
					})
				if err != nil {
					return err
				}
				if err := s.checkVectors(out, len(texts)); err != nil {
					return err
				}
				vecs = out
				return nil
			})
			if err != nil {
				mu.Lock()
				if failed.Attempts == 0 {
					failed = res
				}
				mu.Unlock()
				return err
			}

			// Batches cover disjoint ranges of chunks.
			for i := range batch {
				batch[i].Embedding = vecs[i]
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Warn("Embedding failed after %d attempt(s): %v", failed.Attempts, err)
		return collaboratorError(ctx, domain.KindEmbeddingFailure, "", failed, err, "embedder")
	}
	return nil
}

func (s *IndexService) checkVectors(vecs [][]float32, want int) error {
	if len(vecs) != want {
		return fmt.Errorf("%w: embedder returned %d vectors for %d texts", domain.ErrInvalidInput, len(vecs), want)
	}
	dim := s.vectorIndex.Dimensions()
	for _, v := range vecs {
		if dim > 0 && len(v) != dim {
			return fmt.Errorf("%w: got %d values, index expects %d", domain.ErrDimensionMismatch, len(v), dim)
		}
	}
	return nil
}

func (s *IndexService) writeError(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil {
		return contextError(ctx.Err(), "", 0, err)
	}
	return &domain.PipelineError{Kind: domain.KindInternal, Message: what, Err: err}
}

// Register records a stored file as an uploaded document.
func (s *IndexService) Register(ctx context.Context, filename, path string, size int64) (*domain.Document, error) {
	if filename == "" || path == "" {
		return nil, fmt.Errorf("%w: filename and path are required", domain.ErrInvalidInput)
	}
	if s.extractors != nil {
		if _, err := s.extractors.Get(filename); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, filename, err)
		}
	}

	now := s.now()
	doc := &domain.Document{
		ID:         s.newID(),
		Filename:   filename,
		Path:       path,
		Size:       size,
		Status:     domain.DocumentStatusUploaded,
		UploadedAt: now,
		UpdatedAt:  now,
	}
	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	logger.Debug("Registered %s as %s", filename, doc.ID)
	return doc, nil
}

// Process extracts and indexes a registered document. The document ends
// completed or failed; failures are also returned.
func (s *IndexService) Process(ctx context.Context, documentID string) (*domain.Document, error) {
	v, err, _ := s.group.Do("process:"+documentID, func() (any, error) {
		unlock, err := s.locks.Lock(ctx, documentID)
		if err != nil {
			return nil, fmt.Errorf("process %s: %w", documentID, err)
		}
		defer unlock()
		return s.process(ctx, documentID)
	})
	if v == nil {
		return nil, err
	}
	return v.(*domain.Document), err
}

func (s *IndexService) process(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := s.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	// Status writes outlive a canceled caller so the record never sticks in processing.
	persist := context.WithoutCancel(ctx)

	doc.Status = domain.DocumentStatusProcessing
	doc.Error, doc.Warning = "", ""
	doc.UpdatedAt = s.now()
	if err := s.docStore.SaveDocument(persist, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	fail := func(err error) (*domain.Document, error) {
		pe := domain.AsPipelineError(err)
		if gone := s.exists(persist, documentID); errors.Is(gone, errDocumentRemoved) {
			return nil, gone
		}
		doc.Status = domain.DocumentStatusFailed
		doc.Error = pe.Error()
		doc.UpdatedAt = s.now()
		if serr := s.docStore.SaveDocument(persist, doc); serr != nil {
			logger.Error(serr, "Could not record failure for %s", documentID)
		}
		logger.Warn("Processing %s failed: %v", doc.Filename, pe)
		return doc, pe
	}

	if s.extractors == nil {
		return fail(fmt.Errorf("%w: no extractors configured", domain.ErrUnsupportedType))
	}
	extractor, err := s.extractors.Get(doc.Filename)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", domain.ErrInvalidInput, err))
	}
	extraction, err := extractor.Extract(ctx, documentID, doc.Path)
	if err != nil {
		return fail(fmt.Errorf("extract %s: %w", doc.Filename, err))
	}
	doc.PageCount = extraction.PageCount

	res, err := s.indexDocument(ctx, documentID, extraction.Blocks, func(ctx context.Context) error {
		return s.exists(context.WithoutCancel(ctx), documentID)
	})
	if errors.Is(err, errDocumentRemoved) {
		return nil, err
	}
	if err != nil {
		return fail(err)
	}

	// The record may have been deleted by another process while the
	// chunks were written; take them back out rather than resurrect it.
	if err := s.exists(persist, documentID); errors.Is(err, errDocumentRemoved) {
		if _, rerr := s.vectorIndex.RemoveDocument(persist, documentID); rerr != nil {
			logger.Error(rerr, "Could not drop chunks of removed document %s", documentID)
		} else if rerr := s.vectorIndex.Save(persist); rerr != nil {
			logger.Error(rerr, "Could not save index after dropping %s", documentID)
		}
		return nil, err
	}

	doc.Status = domain.DocumentStatusCompleted
	doc.ChunkCount = res.Chunks
	if res.Warning == domain.KindExtractionEmpty {
		doc.Warning = emptyExtractionWarning
		logger.Warn("%s: %s", doc.Filename, emptyExtractionWarning)
	}
	doc.UpdatedAt = s.now()
	if err := s.docStore.SaveDocument(persist, doc); err != nil {
		return doc, fmt.Errorf("save document: %w", err)
	}
	return doc, nil
}

// exists returns an error wrapping errDocumentRemoved and
// domain.ErrNotFound once the document record is gone.
func (s *IndexService) exists(ctx context.Context, documentID string) error {
	if _, err := s.docStore.GetDocument(ctx, documentID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%s: %w: %w", documentID, errDocumentRemoved, err)
		}
		return fmt.Errorf("get document: %w", err)
	}
	return nil
}

// IngestFile registers and processes a local file in one step.
func (s *IndexService) IngestFile(ctx context.Context, path string) (*domain.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrInvalidInput, path)
	}

	doc, err := s.Register(ctx, filepath.Base(abs), abs, info.Size())
	if err != nil {
		return nil, err
	}
	return s.Process(ctx, doc.ID)
}
