package driving

import (
	"context"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

// DocumentService manages uploaded documents.
type DocumentService interface {
	// List returns all documents, newest first.
	List(ctx context.Context) ([]domain.Document, error)

	// Get retrieves a document by ID.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	// Remove deletes a document and cascades removal of its chunks
	// from the index.
	Remove(ctx context.Context, documentID string) error
}
