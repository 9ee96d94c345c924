package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

func chunk(doc string, seq int, emb ...float32) domain.Chunk {
	return domain.Chunk{
		ID:         domain.ChunkID(doc, seq),
		DocumentID: doc,
		Seq:        seq,
		Page:       seq + 1,
		Start:      seq * 800,
		End:        seq*800 + 1000,
		Text:       fmt.Sprintf("%s chunk %d", doc, seq),
		Embedding:  emb,
	}
}

func ids(hits []domain.ScoredChunk) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk.ID
	}
	return out
}

func TestIndex_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := New(3)

	require.NoError(t, idx.Add(ctx, []domain.Chunk{
		chunk("a", 0, 1, 0, 0),
		chunk("a", 1, 0, 1, 0),
		chunk("b", 0, 0.9, 0.1, 0),
	}))

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2, domain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, []string{"a#00000", "b#00000"}, ids(hits))
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestIndex_SearchTieBreak(t *testing.T) {
	ctx := context.Background()
	idx := New(2)

	// identical vectors, so identical scores
	require.NoError(t, idx.Add(ctx, []domain.Chunk{
		chunk("zeta", 0, 1, 1),
		chunk("alpha", 2, 1, 1),
		chunk("alpha", 1, 1, 1),
		chunk("beta", 0, 1, 1),
	}))

	hits, err := idx.Search(ctx, []float32{1, 1}, 10, domain.SearchFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha#00001", "alpha#00002", "beta#00000", "zeta#00000"}, ids(hits))

	again, err := idx.Search(ctx, []float32{1, 1}, 10, domain.SearchFilter{})
	require.NoError(t, err)
	assert.Equal(t, ids(hits), ids(again))
}

func TestIndex_SearchScoreRange(t *testing.T) {
	ctx := context.Background()
	idx := New(2)
	require.NoError(t, idx.Add(ctx, []domain.Chunk{
		chunk("a", 0, -1, 0),
		chunk("a", 1, 0, 0),
		chunk("a", 2, 3, 4),
	}))

	hits, err := idx.Search(ctx, []float32{1, 0}, 3, domain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Score, -1.0)
		assert.LessOrEqual(t, h.Score, 1.0)
	}
	assert.InDelta(t, 0.6, hits[0].Score, 1e-6)
	assert.InDelta(t, -1.0, hits[2].Score, 1e-6)
}

func TestIndex_SearchFilterAndLimits(t *testing.T) {
	ctx := context.Background()
	idx := New(2)
	require.NoError(t, idx.Add(ctx, []domain.Chunk{
		chunk("a", 0, 1, 0),
		chunk("b", 0, 1, 0),
		chunk("b", 1, 0, 1),
	}))

	hits, err := idx.Search(ctx, []float32{1, 0}, 10, domain.SearchFilter{DocumentID: "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b#00000", "b#00001"}, ids(hits))

	hits, err = idx.Search(ctx, []float32{1, 0}, 0, domain.SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = idx.Search(ctx, []float32{1, 0, 0}, 1, domain.SearchFilter{})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestIndex_EmptySearch(t *testing.T) {
	hits, err := New(4).Search(context.Background(), []float32{1, 2, 3, 4}, 5, domain.SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_AddValidates(t *testing.T) {
	ctx := context.Background()
	idx := New(3)

	err := idx.Add(ctx, []domain.Chunk{chunk("a", 0, 1, 2)})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	err = idx.Add(ctx, []domain.Chunk{{ID: "", DocumentID: "a", Embedding: []float32{1, 2, 3}}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Equal(t, 0, idx.Len())
}

func TestIndex_AddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := New(2)
	chunks := []domain.Chunk{chunk("a", 0, 1, 0), chunk("a", 1, 0, 1)}

	require.NoError(t, idx.Add(ctx, chunks))
	require.NoError(t, idx.Add(ctx, chunks))

	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, map[string]int{"a": 2}, idx.Documents())
}

func TestIndex_AddCopiesEmbedding(t *testing.T) {
	ctx := context.Background()
	idx := New(2)
	c := chunk("a", 0, 1, 0)
	require.NoError(t, idx.Add(ctx, []domain.Chunk{c}))

	c.Embedding[0] = -1

	hits, err := idx.Search(ctx, []float32{1, 0}, 1, domain.SearchFilter{})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestIndex_AddRemoveSymmetry(t *testing.T) {
	ctx := context.Background()
	idx := New(2)
	require.NoError(t, idx.Add(ctx, []domain.Chunk{chunk("keep", 0, 1, 0), chunk("keep", 1, 0.5, 0.5)}))

	query := []float32{1, 0.2}
	before, err := idx.Search(ctx, query, 10, domain.SearchFilter{})
	require.NoError(t, err)

	require.NoError(t, idx.Add(ctx, []domain.Chunk{chunk("tmp", 0, 1, 0.2), chunk("tmp", 1, 0, 1)}))
	n, err := idx.RemoveDocument(ctx, "tmp")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	after, err := idx.Search(ctx, query, 10, domain.SearchFilter{})
	require.NoError(t, err)
	assert.Equal(t, before, after)

	n, err = idx.RemoveDocument(ctx, "tmp")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIndex_ReplaceDocument(t *testing.T) {
	ctx := context.Background()
	idx := New(2)
	require.NoError(t, idx.Add(ctx, []domain.Chunk{
		chunk("a", 0, 1, 0), chunk("a", 1, 1, 0), chunk("a", 2, 1, 0),
		chunk("b", 0, 0, 1),
	}))

	require.NoError(t, idx.ReplaceDocument(ctx, "a", []domain.Chunk{chunk("a", 0, 0, 1)}))
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, idx.Documents())

	err := idx.ReplaceDocument(ctx, "a", []domain.Chunk{chunk("b", 5, 0, 1)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 2, idx.Len())
}

func TestIndex_ConcurrentSearchDuringWrites(t *testing.T) {
	ctx := context.Background()
	idx := New(2)
	require.NoError(t, idx.Add(ctx, []domain.Chunk{chunk("base", 0, 1, 0)}))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			doc := fmt.Sprintf("doc%d", w)
			for i := 0; i < 50; i++ {
				_ = idx.ReplaceDocument(ctx, doc, []domain.Chunk{chunk(doc, 0, 1, 1), chunk(doc, 1, 0, 1)})
				_, _ = idx.RemoveDocument(ctx, doc)
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				hits, err := idx.Search(ctx, []float32{1, 0}, 100, domain.SearchFilter{})
				if err != nil {
					t.Error(err)
					return
				}
				// each doc is written as a pair and removed as a pair
				perDoc := map[string]int{}
				for _, h := range hits {
					perDoc[h.Chunk.DocumentID]++
				}
				for doc, n := range perDoc {
					if doc != "base" && n != 2 {
						t.Errorf("observed partial write: %s has %d chunks", doc, n)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, map[string]int{"base": 1}, idx.Documents())
}

func TestIndex_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.frix")

	idx := New(3, WithPath(path), WithModel("paraphrase-multilingual"))
	require.NoError(t, idx.Add(ctx, []domain.Chunk{
		chunk("rapor", 0, 0.1, 0.2, 0.3),
		chunk("rapor", 1, -0.5, 0.25, 1),
		chunk("bülten", 0, 1, 0, 0),
	}))
	require.NoError(t, idx.Save(ctx))

	loaded := New(3, WithPath(path), WithModel("paraphrase-multilingual"))
	require.NoError(t, loaded.Load(ctx))

	assert.Equal(t, idx.Documents(), loaded.Documents())
	query := []float32{0.3, 0.1, 0.9}
	want, err := idx.Search(ctx, query, 10, domain.SearchFilter{})
	require.NoError(t, err)
	got, err := loaded.Search(ctx, query, 10, domain.SearchFilter{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestIndex_LoadMissingFile(t *testing.T) {
	idx := New(3, WithPath(filepath.Join(t.TempDir(), "absent.frix")))
	require.NoError(t, idx.Load(context.Background()))
	assert.Equal(t, 0, idx.Len())
}

func TestIndex_LoadCorrupt(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(t *testing.T, path string)
		load   *Index
	}{
		{
			name: "flipped byte",
			mutate: func(t *testing.T, path string) {
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				data[len(data)/2] ^= 0xff
				require.NoError(t, os.WriteFile(path, data, 0o600))
			},
		},
		{
			name: "truncated",
			mutate: func(t *testing.T, path string) {
				data, err := os.ReadFile(path)
				require.NoError(t, err)
				require.NoError(t, os.WriteFile(path, data[:len(data)-9], 0o600))
			},
		},
		{
			name: "garbage",
			mutate: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte("not an index"), 0o600))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "index.frix")
			idx := New(2, WithPath(path), WithModel("m"))
			require.NoError(t, idx.Add(ctx, []domain.Chunk{chunk("a", 0, 1, 0), chunk("a", 1, 0, 1)}))
			require.NoError(t, idx.Save(ctx))
			tt.mutate(t, path)

			loaded := New(2, WithPath(path), WithModel("m"))
			require.NoError(t, loaded.Add(ctx, []domain.Chunk{chunk("stale", 0, 1, 1)}))

			err := loaded.Load(ctx)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrIndexCorrupt))
			assert.Equal(t, 0, loaded.Len())
		})
	}
}

func TestIndex_LoadRejectsOtherModelOrDimension(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.frix")
	idx := New(2, WithPath(path), WithModel("nomic-embed-text"))
	require.NoError(t, idx.Add(ctx, []domain.Chunk{chunk("a", 0, 1, 0)}))
	require.NoError(t, idx.Save(ctx))

	other := New(2, WithPath(path), WithModel("paraphrase-multilingual"))
	assert.ErrorIs(t, other.Load(ctx), domain.ErrIndexCorrupt)
	assert.Equal(t, 0, other.Len())

	wider := New(3, WithPath(path), WithModel("nomic-embed-text"))
	assert.ErrorIs(t, wider.Load(ctx), domain.ErrIndexCorrupt)
}

func TestIndex_SaveWithoutPath(t *testing.T) {
	idx := New(2)
	require.NoError(t, idx.Save(context.Background()))
	require.NoError(t, idx.Load(context.Background()))
}

func TestIndex_SaveLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx := New(2, WithPath(filepath.Join(dir, "index.frix")))
	require.NoError(t, idx.Add(ctx, []domain.Chunk{chunk("a", 0, 1, 0)}))
	require.NoError(t, idx.Save(ctx))
	require.NoError(t, idx.Save(ctx))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "index.frix", entries[0].Name())
}
