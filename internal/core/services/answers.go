package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
)

// answerCache keeps recent answers. Any write to the index bumps the
// generation and empties the cache; an answer computed under an older
// generation is never stored.
type answerCache struct {
	mu  sync.Mutex
	gen uint64
	lru *expirable.LRU[string, domain.Answer]
}

func newAnswerCache(size int, ttl time.Duration) *answerCache {
	return &answerCache{lru: expirable.NewLRU[string, domain.Answer](size, nil, ttl)}
}

// answerKey identifies a query by its normalized question and everything
// else that changes the answer.
func answerKey(question, lang, documentID string, topK int) string {
	norm := strings.Join(strings.Fields(turkishLower(question)), " ")
	return fmt.Sprintf("%s\x00%s\x00%s\x00%d", norm, lang, documentID, topK)
}

// get returns a copy of the cached answer marked Cached, plus the current
// generation for a later put.
func (c *answerCache) get(key string) (*domain.Answer, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.lru.Get(key)
	if !ok {
		return nil, c.gen, false
	}
	a.Sources = slices.Clone(a.Sources)
	a.Stages = slices.Clone(a.Stages)
	a.Cached = true
	return &a, c.gen, true
}

func (c *answerCache) put(key string, gen uint64, a *domain.Answer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	stored := *a
	stored.Sources = slices.Clone(a.Sources)
	stored.Stages = slices.Clone(a.Stages)
	c.lru.Add(key, stored)
}

func (c *answerCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.lru.Purge()
}

// queryHistory keeps the most recent answered queries, oldest first.
type queryHistory struct {
	mu      sync.Mutex
	size    int
	records []domain.QueryRecord
}

func newQueryHistory(size int) *queryHistory {
	return &queryHistory{size: size, records: make([]domain.QueryRecord, 0, size)}
}

func (h *queryHistory) add(r domain.QueryRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) == h.size {
		h.records = slices.Delete(h.records, 0, 1)
	}
	h.records = append(h.records, r)
}

// last returns up to limit of the newest records, oldest first.
func (h *queryHistory) last(limit int) []domain.QueryRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	start := 0
	if limit > 0 && limit < len(h.records) {
		start = len(h.records) - limit
	}
	return slices.Clone(h.records[start:])
}

// WatchIndex returns idx with onWrite called after every write or reload,
// failed ones included. A QueryService uses it to drop cached answers
// whenever the indexed content changes.
func WatchIndex(idx driven.VectorIndex, onWrite func()) driven.VectorIndex {
	if idx == nil || onWrite == nil {
		return idx
	}
	return &watchedIndex{VectorIndex: idx, onWrite: onWrite}
}

type watchedIndex struct {
	driven.VectorIndex
	onWrite func()
}

func (w *watchedIndex) Add(ctx context.Context, chunks []domain.Chunk) error {
	return w.notify(w.VectorIndex.Add(ctx, chunks))
}

func (w *watchedIndex) ReplaceDocument(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	return w.notify(w.VectorIndex.ReplaceDocument(ctx, documentID, chunks))
}

func (w *watchedIndex) RemoveDocument(ctx context.Context, documentID string) (int, error) {
	n, err := w.VectorIndex.RemoveDocument(ctx, documentID)
	return n, w.notify(err)
}

func (w *watchedIndex) Load(ctx context.Context) error {
	return w.notify(w.VectorIndex.Load(ctx))
}

func (w *watchedIndex) notify(err error) error {
	w.onWrite()
	return err
}
