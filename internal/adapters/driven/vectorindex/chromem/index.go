// Package chromem provides a VectorIndex backed by chromem-go.
//
// chromem persists each write to its directory as it happens, so Save is a
// no-op. Writes hold an exclusive lock and searches a shared one, which
// keeps a multi-step document replacement invisible to concurrent searches.
package chromem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
	"github.com/custodia-labs/finrag/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

const (
	collectionName = "chunks"
	manifestFile   = "finrag-manifest.json"

	metaDocumentID = "document_id"
	metaSeq        = "seq"
	metaPage       = "page"
	metaEndPage    = "end_page"
	metaStart      = "start"
	metaEnd        = "end"
	metaPageOffset = "page_offset"
)

var errPrecomputed = errors.New("chromem index only accepts precomputed embeddings")

// manifest binds the stored collection to an embedding space.
type manifest struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// Index stores chunks in a single chromem collection.
type Index struct {
	dir   string
	dim   int
	model string

	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	owners     map[string]string // chunk ID -> document ID
}

// New opens or creates a chromem database. An empty dir keeps everything
// in memory.
func New(dir string, dimensions int, model string) (*Index, error) {
	if dimensions <= 0 {
		dimensions = domain.DefaultEmbeddingDimensions
	}
	idx := &Index{dir: dir, dim: dimensions, model: model, owners: map[string]string{}}
	if err := idx.open(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) open() error {
	if idx.dir == "" {
		idx.db = chromem.NewDB()
	} else {
		db, err := chromem.NewPersistentDB(idx.dir, false)
		if err != nil {
			return fmt.Errorf("open chromem db: %w", err)
		}
		idx.db = db
	}
	c, err := idx.db.GetOrCreateCollection(collectionName, nil, refuseEmbedding)
	if err != nil {
		return fmt.Errorf("open collection: %w", err)
	}
	idx.collection = c
	return nil
}

func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, errPrecomputed
}

// Add inserts or replaces chunks by ID.
func (idx *Index) Add(ctx context.Context, chunks []domain.Chunk) error {
	docs, err := idx.toDocuments(chunks)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add chunks: %w", err)
	}
	for _, c := range chunks {
		idx.owners[c.ID] = c.DocumentID
	}
	return nil
}

// ReplaceDocument removes the document's chunks and adds the new ones
// under a single exclusive lock.
func (idx *Index) ReplaceDocument(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	for _, c := range chunks {
		if c.DocumentID != documentID {
			return fmt.Errorf("%w: chunk %s belongs to %q, not %q", domain.ErrInvalidInput, c.ID, c.DocumentID, documentID)
		}
	}
	docs, err := idx.toDocuments(chunks)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, err := idx.removeLocked(ctx, documentID); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	if err := idx.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add chunks: %w", err)
	}
	for _, c := range chunks {
		idx.owners[c.ID] = c.DocumentID
	}
	return nil
}

// RemoveDocument deletes every chunk of documentID.
func (idx *Index) RemoveDocument(ctx context.Context, documentID string) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.removeLocked(ctx, documentID)
}

func (idx *Index) removeLocked(ctx context.Context, documentID string) (int, error) {
	var ids []string
	for id, doc := range idx.owners {
		if doc == documentID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := idx.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	for _, id := range ids {
		delete(idx.owners, id)
	}
	return len(ids), nil
}

// Search returns up to k chunks ranked by cosine similarity.
func (idx *Index) Search(ctx context.Context, query []float32, k int, filter domain.SearchFilter) ([]domain.ScoredChunk, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", domain.ErrDimensionMismatch, len(query), idx.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var where map[string]string
	available := len(idx.owners)
	if filter.DocumentID != "" {
		where = map[string]string{metaDocumentID: filter.DocumentID}
		available = 0
		for _, doc := range idx.owners {
			if doc == filter.DocumentID {
				available++
			}
		}
	}
	// chromem rejects nResults larger than the matching set or zero.
	if available == 0 {
		return nil, nil
	}

	// The whole matching set is ranked here: chromem's parallel scan picks
	// an arbitrary subset among tied scores, which would skip the tie-break
	// at the k cutoff.
	results, err := idx.collection.QueryEmbedding(ctx, query, available, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	hits := make([]domain.ScoredChunk, 0, len(results))
	for _, r := range results {
		hits = append(hits, domain.ScoredChunk{
			Chunk: fromResult(r),
			Score: clampScore(float64(r.Similarity)),
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
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.owners)
}

// Dimensions returns the vector length.
func (idx *Index) Dimensions() int {
	return idx.dim
}

// Documents returns the chunk count per document.
func (idx *Index) Documents() map[string]int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string]int)
	for _, doc := range idx.owners {
		out[doc]++
	}
	return out
}

// Save records which embedding space the collection belongs to. Chunk data
// is already on disk.
func (idx *Index) Save(_ context.Context) error {
	if idx.dir == "" {
		return nil
	}
	data, err := json.Marshal(manifest{Model: idx.model, Dimensions: idx.dim})
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.MkdirAll(idx.dir, 0o700); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	tmp := filepath.Join(idx.dir, manifestFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return os.Rename(tmp, filepath.Join(idx.dir, manifestFile))
}

// Load rebuilds the chunk ownership table from the collection. A manifest
// naming another model or dimension empties the collection and returns an
// error wrapping domain.ErrIndexCorrupt.
func (idx *Index) Load(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.dir == "" {
		return nil
	}
	idx.owners = map[string]string{}

	if err := idx.checkManifest(); err != nil {
		err = fmt.Errorf("%w: %s: %v", domain.ErrIndexCorrupt, idx.dir, err)
		logger.Error(err, "discarding stored index, starting empty")
		if rerr := idx.resetLocked(); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}

	count := idx.collection.Count()
	if count == 0 {
		return nil
	}
	unit := make([]float32, idx.dim)
	unit[0] = 1
	results, err := idx.collection.QueryEmbedding(ctx, unit, count, nil, nil)
	if err != nil {
		err = fmt.Errorf("%w: enumerate collection: %v", domain.ErrIndexCorrupt, err)
		logger.Error(err, "discarding stored index, starting empty")
		if rerr := idx.resetLocked(); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	for _, r := range results {
		idx.owners[r.ID] = r.Metadata[metaDocumentID]
	}
	logger.Debug("loaded %d chunks from %s", len(idx.owners), idx.dir)
	return nil
}

func (idx *Index) checkManifest() error {
	data, err := os.ReadFile(filepath.Join(idx.dir, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		if idx.collection.Count() > 0 {
			return errors.New("collection has chunks but no manifest")
		}
		return nil
	}
	if err != nil {
		return err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	if m.Dimensions != idx.dim {
		return fmt.Errorf("stored dimension %d, configured %d", m.Dimensions, idx.dim)
	}
	if idx.model != "" && m.Model != idx.model {
		return fmt.Errorf("built with model %q, configured %q", m.Model, idx.model)
	}
	return nil
}

func (idx *Index) resetLocked() error {
	if err := idx.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	c, err := idx.db.GetOrCreateCollection(collectionName, nil, refuseEmbedding)
	if err != nil {
		return fmt.Errorf("recreate collection: %w", err)
	}
	idx.collection = c
	idx.owners = map[string]string{}
	return nil
}

// Close releases resources.
func (idx *Index) Close() error {
	return nil
}

func (idx *Index) toDocuments(chunks []domain.Chunk) ([]chromem.Document, error) {
	docs := make([]chromem.Document, 0, len(chunks))
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
		docs = append(docs, chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Embedding: emb,
			Metadata: map[string]string{
				metaDocumentID: c.DocumentID,
				metaSeq:        strconv.Itoa(c.Seq),
				metaPage:       strconv.Itoa(c.Page),
				metaEndPage:    strconv.Itoa(c.EndPage),
				metaStart:      strconv.Itoa(c.Start),
				metaEnd:        strconv.Itoa(c.End),
				metaPageOffset: strconv.Itoa(c.PageOffset),
			},
		})
	}
	return docs, nil
}

func fromResult(r chromem.Result) domain.Chunk {
	atoi := func(key string) int {
		n, _ := strconv.Atoi(r.Metadata[key])
		return n
	}
	return domain.Chunk{
		ID:         r.ID,
		DocumentID: r.Metadata[metaDocumentID],
		Seq:        atoi(metaSeq),
		Page:       atoi(metaPage),
		EndPage:    atoi(metaEndPage),
		Start:      atoi(metaStart),
		End:        atoi(metaEnd),
		PageOffset: atoi(metaPageOffset),
		Text:       r.Content,
	}
}

func clampScore(s float64) float64 {
	if math.IsNaN(s) {
		return 0
	}
	return math.Max(-1, math.Min(1, s))
}
