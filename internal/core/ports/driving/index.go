package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

// IndexService builds and maintains the chunk index.
type IndexService interface {
	// IndexDocument chunks, embeds and indexes blocks for documentID,
	// replacing any previous chunks for it. Repeating the call with the
	// same input yields the same index. Failures are *domain.PipelineError.
	IndexDocument(ctx context.Context, documentID string, blocks []domain.TextBlock) (*IndexResult, error)

	// Register records a stored file as an uploaded document.
	Register(ctx context.Context, filename, path string, size int64) (*domain.Document, error)

	// Process extracts and indexes a registered document, updating its status.
	// Concurrent calls for the same document share one run.
	Process(ctx context.Context, documentID string) (*domain.Document, error)

	// IngestFile registers and processes a local file in one step.
	IngestFile(ctx context.Context, path string) (*domain.Document, error)
}

// IndexResult summarises one IndexDocument call.
type IndexResult struct {
	// DocumentID is the indexed document.
	DocumentID string

	// Chunks is the number of chunks now indexed for the document.
	Chunks int

	// Replaced is the number of chunks that were removed first.
	Replaced int

	// Warning is set for non-fatal outcomes such as extraction_empty.
	Warning domain.ErrorKind

	// Elapsed is the wall-clock indexing time.
	Elapsed time.Duration
}
