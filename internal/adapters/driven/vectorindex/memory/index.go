// Package memory provides an exact, in-memory vector index persisted to a
// single file.
//
// Readers search an immutable snapshot loaded through an atomic pointer.
// Writers are serialized, build a new snapshot and swap it in, so a search
// sees the index entirely before or entirely after any write.
package memory

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Index is an exact brute-force cosine index.
type Index struct {
	path  string
	dim   int
	model string

	mu     sync.Mutex // serializes writers
	saveMu sync.Mutex // serializes file writes
	snap   atomic.Pointer[snapshot]
}

type record struct {
	chunk domain.Chunk
	norm  float64
}

// snapshot is never mutated after it is published.
type snapshot struct {
	records []record
	docs    map[string]int
}

var emptySnapshot = &snapshot{docs: map[string]int{}}

// Option configures an Index.
type Option func(*Index)

// WithPath sets the file used by Save and Load. Without a path the index
// is ephemeral and Save is a no-op.
func WithPath(path string) Option {
	return func(idx *Index) {
		idx.path = path
	}
}

// WithModel records the embedding model the vectors come from. A stored
// index built with another model is rejected on Load.
func WithModel(model string) Option {
	return func(idx *Index) {
		idx.model = model
	}
}

// New creates an empty index for vectors of the given dimension.
func New(dimensions int, opts ...Option) *Index {
	if dimensions <= 0 {
		dimensions = domain.DefaultEmbeddingDimensions
	}
	idx := &Index{dim: dimensions}
	for _, opt := range opts {
		opt(idx)
	}
	idx.snap.Store(emptySnapshot)
	return idx
}

// Path returns the persistence file path.
func (idx *Index) Path() string {
	return idx.path
}

// Model returns the embedding model the index is bound to.
func (idx *Index) Model() string {
	return idx.model
}

// Add inserts or replaces chunks by ID.
func (idx *Index) Add(ctx context.Context, chunks []domain.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recs, err := idx.prepare(chunks)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur := idx.snap.Load()
	replaced := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		replaced[r.chunk.ID] = struct{}{}
	}
	next := make([]record, 0, len(cur.records)+len(recs))
	for _, r := range cur.records {
		if _, ok := replaced[r.chunk.ID]; !ok {
			next = append(next, r)
		}
	}
	next = append(next, recs...)
	idx.snap.Store(newSnapshot(next))
	return nil
}

// ReplaceDocument swaps all chunks of documentID for chunks in one write.
func (idx *Index) ReplaceDocument(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, c := range chunks {
		if c.DocumentID != documentID {
			return fmt.Errorf("%w: chunk %s belongs to %q, not %q", domain.ErrInvalidInput, c.ID, c.DocumentID, documentID)
		}
	}
	recs, err := idx.prepare(chunks)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur := idx.snap.Load()
	next := make([]record, 0, len(cur.records)+len(recs))
	for _, r := range cur.records {
		if r.chunk.DocumentID != documentID {
			next = append(next, r)
		}
	}
	next = append(next, recs...)
	idx.snap.Store(newSnapshot(next))
	return nil
}

// RemoveDocument deletes every chunk of documentID.
func (idx *Index) RemoveDocument(ctx context.Context, documentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur := idx.snap.Load()
	removed := cur.docs[documentID]
	if removed == 0 {
		return 0, nil
	}
	next := make([]record, 0, len(cur.records)-removed)
	for _, r := range cur.records {
		if r.chunk.DocumentID != documentID {
			next = append(next, r)
		}
	}
	idx.snap.Store(newSnapshot(next))
	return removed, nil
}

// Search scores every chunk against query and returns the best k.
func (idx *Index) Search(ctx context.Context, query []float32, k int, filter domain.SearchFilter) ([]domain.ScoredChunk, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", domain.ErrDimensionMismatch, len(query), idx.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	snap := idx.snap.Load()
	qnorm := norm(query)
	hits := make([]domain.ScoredChunk, 0, min(len(snap.records), k*4))

	for i, r := range snap.records {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if filter.DocumentID != "" && r.chunk.DocumentID != filter.DocumentID {
			continue
		}
		hits = append(hits, domain.ScoredChunk{
			Chunk: r.chunk,
			Score: cosine(query, qnorm, r.chunk.Embedding, r.norm),
		})
	}

	domain.SortRanked(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of chunks.
func (idx *Index) Len() int {
	return len(idx.snap.Load().records)
}

// Dimensions returns the vector length.
func (idx *Index) Dimensions() int {
	return idx.dim
}

// Documents returns the chunk count per document.
func (idx *Index) Documents() map[string]int {
	docs := idx.snap.Load().docs
	out := make(map[string]int, len(docs))
	for id, n := range docs {
		out[id] = n
	}
	return out
}

// Close releases resources.
func (idx *Index) Close() error {
	return nil
}

func (idx *Index) prepare(chunks []domain.Chunk) ([]record, error) {
	recs := make([]record, 0, len(chunks))
	seen := make(map[string]int, len(chunks))
	for _, c := range chunks {
		if c.ID == "" || c.DocumentID == "" {
			return nil, fmt.Errorf("%w: chunk needs an id and a document id", domain.ErrInvalidInput)
		}
		if len(c.Embedding) != idx.dim {
			return nil, fmt.Errorf("%w: chunk %s has %d dimensions, index has %d",
				domain.ErrDimensionMismatch, c.ID, len(c.Embedding), idx.dim)
		}
		emb := make([]float32, len(c.Embedding))
		copy(emb, c.Embedding)
		c.Embedding = emb

		r := record{chunk: c, norm: norm(emb)}
		if i, dup := seen[c.ID]; dup {
			recs[i] = r
			continue
		}
		seen[c.ID] = len(recs)
		recs = append(recs, r)
	}
	return recs, nil
}

func newSnapshot(recs []record) *snapshot {
	s := &snapshot{records: recs, docs: make(map[string]int)}
	for _, r := range recs {
		s.docs[r.chunk.DocumentID]++
	}
	return s
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns the cosine similarity clamped to [-1, 1]. A zero vector
// is orthogonal to everything.
func cosine(a []float32, anorm float64, b []float32, bnorm float64) float64 {
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	s := dot / (anorm * bnorm)
	return math.Max(-1, math.Min(1, s))
}
