// Package cache provides a bounded LRU decorator for embedding services.
// Only single-text Embed calls are cached; batches used while indexing go
// straight to the wrapped service.
package cache

import (
	"context"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/custodia-labs/finrag/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// EmbeddingService caches query embeddings keyed by model and text.
type EmbeddingService struct {
	next  driven.EmbeddingService
	items *lru.Cache[string, []float32]

	mu     sync.Mutex
	hits   int
	misses int
}

// New wraps next with an LRU of the given size. A size below one returns
// next unchanged.
func New(next driven.EmbeddingService, size int) driven.EmbeddingService {
	if size < 1 {
		return next
	}
	items, err := lru.New[string, []float32](size)
	if err != nil {
		return next
	}
	return &EmbeddingService{next: next, items: items}
}

// Embed returns a cached vector or asks the wrapped service.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	key := s.next.ModelName() + "\x00" + text

	vec, ok := s.items.Get(key)
	s.count(ok)
	if ok {
		return slices.Clone(vec), nil
	}

	vec, err := s.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	s.items.Add(key, slices.Clone(vec))
	return vec, nil
}

func (s *EmbeddingService) count(hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hit {
		s.hits++
	} else {
		s.misses++
	}
}

// EmbedBatch is not cached.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return s.next.EmbedBatch(ctx, texts)
}

// Dimensions returns the wrapped service's vector size.
func (s *EmbeddingService) Dimensions() int { return s.next.Dimensions() }

// ModelName returns the wrapped service's model.
func (s *EmbeddingService) ModelName() string { return s.next.ModelName() }

// Ping checks the wrapped service.
func (s *EmbeddingService) Ping(ctx context.Context) error { return s.next.Ping(ctx) }

// Close closes the wrapped service.
func (s *EmbeddingService) Close() error { return s.next.Close() }

// Stats returns cache hits and misses.
func (s *EmbeddingService) Stats() (hits, misses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, s.misses
}

// Len returns the number of cached vectors.
func (s *EmbeddingService) Len() int { return s.items.Len() }
