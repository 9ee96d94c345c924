package driven

import "github.com/custodia-labs/finrag/internal/core/domain"

// Chunker splits a document's extracted blocks into retrieval chunks.
// Output must be deterministic for identical input, and every chunk's
// text must be recoverable from the normalized blocks at its offsets.
type Chunker interface {
	// Chunk returns chunks without embeddings. Zero text yields zero chunks.
	Chunk(documentID string, blocks []domain.TextBlock) []domain.Chunk
}
