package driven

import (
	"context"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

// DocumentStore keeps one record per uploaded report with its status and
// counts. Chunks and vectors live in the VectorIndex.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument returns domain.ErrNotFound for unknown IDs.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// ListDocuments orders by upload time, newest first.
	ListDocuments(ctx context.Context) ([]domain.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	Close() error
}
