package driven

import (
	"context"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

// VectorIndex stores chunk vectors together with their metadata and
// answers similarity queries. Vectors and metadata live in one record so
// they can never diverge.
//
// Scores are cosine similarity in [-1, 1]. Results are ordered by
// domain.RankBefore, which makes the order total. Any implementation,
// exact or approximate, must keep that signature and score range.
//
// Searches may run concurrently with each other and with writes. A search
// observes the index either entirely before or entirely after a write.
type VectorIndex interface {
	// Add inserts or replaces chunks by ID. Every chunk must carry an
	// embedding of Dimensions() length.
	Add(ctx context.Context, chunks []domain.Chunk) error

	// ReplaceDocument removes all chunks of documentID and adds chunks in
	// a single atomic write.
	ReplaceDocument(ctx context.Context, documentID string, chunks []domain.Chunk) error

	// RemoveDocument removes all chunks belonging to documentID and
	// returns how many were removed.
	RemoveDocument(ctx context.Context, documentID string) (int, error)

	// Search returns up to k chunks most similar to query.
	Search(ctx context.Context, query []float32, k int, filter domain.SearchFilter) ([]domain.ScoredChunk, error)

	// Len returns the number of chunks in the index.
	Len() int

	// Dimensions returns the configured vector length.
	Dimensions() int

	// Documents returns the chunk count per document ID.
	Documents() map[string]int

	// Save persists vectors and metadata as a unit.
	Save(ctx context.Context) error

	// Load replaces the in-memory state with the persisted one. A missing
	// store yields an empty index and no error. A corrupt store yields an
	// empty index and an error wrapping domain.ErrIndexCorrupt.
	Load(ctx context.Context) error

	// Close releases resources.
	Close() error
}
