package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
	"github.com/custodia-labs/finrag/internal/logger"
	"github.com/custodia-labs/finrag/internal/retry"
)

// Retriever embeds a question and ranks the closest chunks.
type Retriever struct {
	embedder    driven.EmbeddingService
	index       driven.VectorIndex
	policy      retry.Policy
	settings    domain.RetrievalSettings
	callTimeout time.Duration
	now         func() time.Time
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithRetrievalSettings sets top-k, the similarity threshold and the
// confidence blend.
func WithRetrievalSettings(s domain.RetrievalSettings) RetrieverOption {
	return func(r *Retriever) {
		if s.TopK > 0 {
			r.settings.TopK = s.TopK
		}
		r.settings.MinSimilarity = s.MinSimilarity
		if s.TopWeight >= 0 && s.TopWeight <= 1 {
			r.settings.TopWeight = s.TopWeight
		}
	}
}

// WithRetrieverPolicy sets the retry policy for query embedding.
func WithRetrieverPolicy(p retry.Policy) RetrieverOption {
	return func(r *Retriever) { r.policy = p }
}

// WithEmbedTimeout bounds each embedder call.
func WithEmbedTimeout(d time.Duration) RetrieverOption {
	return func(r *Retriever) { r.callTimeout = d }
}

// NewRetriever creates a retriever over the given embedder and index.
func NewRetriever(embedder driven.EmbeddingService, index driven.VectorIndex, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedder: embedder,
		index:    index,
		policy:   retry.DefaultPolicy(),
		settings: domain.RetrievalSettings{
			TopK:          domain.DefaultTopK,
			MinSimilarity: domain.DefaultMinSimilarity,
			TopWeight:     domain.DefaultTopWeight,
		},
		callTimeout: domain.DefaultCallTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Index returns the vector index the retriever searches.
func (r *Retriever) Index() driven.VectorIndex {
	return r.index
}

// Retrieve returns the chunks most similar to query that pass the
// similarity threshold. An empty index is not an error. Failures are
// *domain.PipelineError.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts domain.RetrieveOptions) (*domain.QueryResult, error) {
	res, err := r.retrieve(ctx, query, opts, nil)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// retrieve advances trace through embedding, searching and ranking when
// trace is non-nil.
func (r *Retriever) retrieve(
	ctx context.Context, query string, opts domain.RetrieveOptions, trace *domain.Trace,
) (*domain.QueryResult, *domain.PipelineError) {
	start := r.now()

	if strings.TrimSpace(query) == "" {
		return nil, &domain.PipelineError{
			Kind:    domain.KindInvalidInput,
			Stage:   stageOf(trace),
			Message: "question is empty",
		}
	}
	if r.embedder == nil || r.index == nil {
		return nil, &domain.PipelineError{
			Kind:    domain.KindRetrievalUnavailable,
			Stage:   stageOf(trace),
			Message: "retrieval is not configured",
			Err:     domain.ErrEmbeddingUnavailable,
		}
	}

	k := opts.TopK
	if k <= 0 {
		k = r.settings.TopK
	}

	if pe := advance(trace, domain.StageEmbedding); pe != nil {
		return nil, pe
	}
	var vec []float32
	res, err := r.policy.Do(ctx, func(ctx context.Context) error {
		v, err := callWithTimeout(ctx, r.callTimeout, r.embedder.ModelName(),
			func(ctx context.Context) ([]float32, error) {
				return r.embedder.Embed(ctx, query)
			})
		if err != nil {
			return err
		}
		if dim := r.index.Dimensions(); dim > 0 && len(v) != dim {
			return fmt.Errorf("%w: query vector has %d values, index expects %d",
				domain.ErrDimensionMismatch, len(v), dim)
		}
		vec = v
		return nil
	})
	if err != nil {
		logger.Warn("Query embedding failed after %d attempt(s): %v", res.Attempts, err)
		return nil, collaboratorError(ctx, domain.KindRetrievalUnavailable, domain.StageEmbedding, res, err, "embedder")
	}

	if pe := advance(trace, domain.StageSearching); pe != nil {
		return nil, pe
	}
	hits, err := r.index.Search(ctx, vec, k, domain.SearchFilter{DocumentID: opts.DocumentID})
	if err != nil {
		if ctx.Err() != nil {
			return nil, contextError(ctx.Err(), domain.StageSearching, 1, err)
		}
		return nil, &domain.PipelineError{
			Kind:      domain.KindRetrievalUnavailable,
			Stage:     domain.StageSearching,
			Attempts:  1,
			Retryable: true,
			Message:   "vector search failed",
			Err:       err,
		}
	}

	if pe := advance(trace, domain.StageRanking); pe != nil {
		return nil, pe
	}
	kept := hits[:0:0]
	for _, h := range hits {
		if h.Score >= r.settings.MinSimilarity {
			kept = append(kept, h)
		}
	}
	domain.SortRanked(kept)
	if len(kept) > k {
		kept = kept[:k]
	}
	logger.Debug("Retrieved %d of %d hits (k=%d, min=%.2f)", len(kept), len(hits), k, r.settings.MinSimilarity)

	return &domain.QueryResult{
		Hits:       kept,
		Confidence: RetrievalConfidence(kept, r.settings.TopWeight),
		Elapsed:    r.now().Sub(start),
	}, nil
}

// RetrievalConfidence blends the top score with the mean score of all
// hits. Negative scores count as zero. It never decreases when the top
// score rises and is zero for no hits.
func RetrievalConfidence(hits []domain.ScoredChunk, topWeight float64) float64 {
	if len(hits) == 0 {
		return 0
	}
	top := 0.0
	sum := 0.0
	for _, h := range hits {
		s := max(h.Score, 0)
		top = max(top, s)
		sum += s
	}
	mean := sum / float64(len(hits))
	return clamp01(topWeight*top + (1-topWeight)*mean)
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

func stageOf(trace *domain.Trace) domain.Stage {
	if trace == nil {
		return ""
	}
	return trace.Current()
}

func advance(trace *domain.Trace, next domain.Stage) *domain.PipelineError {
	if trace == nil {
		return nil
	}
	if err := trace.Advance(next); err != nil {
		return &domain.PipelineError{
			Kind:    domain.KindInternal,
			Stage:   trace.Current(),
			Message: "pipeline out of order",
			Err:     err,
		}
	}
	logger.Debug("Stage: %s", next)
	return nil
}
