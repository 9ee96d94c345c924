package driving

import (
	"context"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

// QueryService answers questions against the indexed documents.
type QueryService interface {
	// Query retrieves relevant chunks and synthesizes an answer.
	// Failures are always *domain.PipelineError.
	Query(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error)

	// Stats returns aggregate query statistics since start.
	Stats() domain.QueryStats

	// History returns up to limit of the most recent answered queries,
	// oldest first.
	History(limit int) []domain.QueryRecord
}
