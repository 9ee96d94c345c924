// Package ai builds the provider adapters and the vector index from
// settings and wraps them with rate limiting and the embedding cache.
package ai

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/custodia-labs/finrag/internal/adapters/driven/embedding/cache"
	ollamaembed "github.com/custodia-labs/finrag/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/finrag/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/finrag/internal/adapters/driven/llm/anthropic"
	groqllm "github.com/custodia-labs/finrag/internal/adapters/driven/llm/groq"
	ollamallm "github.com/custodia-labs/finrag/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/finrag/internal/adapters/driven/llm/openai"
	chromemindex "github.com/custodia-labs/finrag/internal/adapters/driven/vectorindex/chromem"
	memoryindex "github.com/custodia-labs/finrag/internal/adapters/driven/vectorindex/memory"
	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
	"github.com/custodia-labs/finrag/internal/logger"
)

// pingTimeout bounds each reachability check.
const pingTimeout = 5 * time.Second

const fixHint = "run 'finrag settings wizard' to fix"

// InitResult holds the services Initialise built. LLMService is nil when no
// completion provider is configured.
type InitResult struct {
	EmbeddingService driven.EmbeddingService
	LLMService       driven.LLMService
	VectorIndex      driven.VectorIndex
	Warnings         []string
}

// Close releases every service that was built.
func (r *InitResult) Close() {
	for _, c := range []interface{ Close() error }{r.EmbeddingService, r.VectorIndex, r.LLMService} {
		if c != nil {
			_ = c.Close()
		}
	}
}

type Options struct {
	// DataDir holds the index when IndexSettings.Path is empty.
	DataDir string

	// Validate pings each provider before returning it.
	Validate bool
}

// Initialise builds the embedder, the LLM and the vector index described
// by settings. Both providers share one rate limiter. A corrupt stored index
// becomes a warning and an empty index so the service still starts.
func Initialise(ctx context.Context, settings *domain.AppSettings, opts Options) (*InitResult, error) {
	limiter := NewRateLimiter(settings.RateLimit)
	result := &InitResult{}

	embedder, err := CreateEmbeddingService(&settings.Embedding)
	if err == nil && embedder != nil && opts.Validate {
		err = ping(ctx, embedder)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w; %s", domain.ErrEmbeddingUnavailable, err, fixHint)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured; %s", domain.ErrEmbeddingUnavailable, fixHint)
	}
	result.EmbeddingService = cache.New(WithEmbeddingLimit(embedder, limiter), settings.Embedding.CacheSize)

	llm, err := CreateLLMService(&settings.LLM)
	if err == nil && llm != nil && opts.Validate {
		err = ping(ctx, llm)
	}
	switch {
	case err != nil:
		result.Close()
		return nil, fmt.Errorf("%w: %w; %s", domain.ErrLLMUnavailable, err, fixHint)
	case llm == nil:
		result.Warnings = append(result.Warnings, "no LLM provider configured; queries return retrieved context only")
	default:
		result.LLMService = WithLLMLimit(llm, limiter)
	}

	index, err := CreateVectorIndex(settings.Index, opts.DataDir, embedder.Dimensions(), embedder.ModelName())
	if err != nil {
		result.Close()
		return nil, err
	}
	result.VectorIndex = index

	if err := index.Load(ctx); err != nil {
		if !errors.Is(err, domain.ErrIndexCorrupt) {
			result.Close()
			return nil, fmt.Errorf("load index: %w", err)
		}
		logger.Warn("starting with an empty index: %v", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("stored index unusable, starting empty: %v", err))
	}
	return result, nil
}

// OpenIndex opens and loads the configured index without building any
// provider, so documents stay removable while a provider is misconfigured.
// The embedding space comes from settings. Unlike Initialise, a stored index
// that does not load is an error.
func OpenIndex(ctx context.Context, settings *domain.AppSettings, dataDir string) (driven.VectorIndex, error) {
	model, dims := embeddingSpace(&settings.Embedding)
	index, err := CreateVectorIndex(settings.Index, dataDir, dims, model)
	if err != nil {
		return nil, err
	}
	if err := index.Load(ctx); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("load index: %w", err)
	}
	return index, nil
}

// embeddingSpace resolves the model and vector length the embedding
// adapters would settle on for settings.
func embeddingSpace(settings *domain.EmbeddingSettings) (string, int) {
	model, dims := settings.Model, embeddingDimensions(settings)
	switch settings.Provider {
	case domain.AIProviderOllama:
		model = cmp.Or(model, ollamaembed.DefaultModel)
		dims = cmp.Or(dims, ollamaembed.DefaultDimensions)
	case domain.AIProviderOpenAI:
		model = cmp.Or(model, openaiembed.DefaultModel)
		dims = cmp.Or(dims, domain.EmbeddingDimensions()[model], openaiembed.DefaultDimensions)
	}
	return model, dims
}

// ping checks svc within pingTimeout and closes it on failure.
func ping(ctx context.Context, svc interface {
	Ping(context.Context) error
	Close() error
}) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := svc.Ping(ctx); err != nil {
		_ = svc.Close()
		return fmt.Errorf("service unreachable: %w", err)
	}
	return nil
}

// IndexPath resolves where the index lives: the configured path, or a
// backend-specific name under dataDir.
func IndexPath(settings domain.IndexSettings, dataDir string) string {
	switch {
	case settings.Path != "":
		return settings.Path
	case settings.Backend == domain.IndexBackendChromem:
		return filepath.Join(dataDir, "chromem")
	default:
		return filepath.Join(dataDir, "index.frix")
	}
}

// CreateVectorIndex opens the configured backend bound to one embedding
// model and vector length.
func CreateVectorIndex(settings domain.IndexSettings, dataDir string, dimensions int, model string) (driven.VectorIndex, error) {
	path := IndexPath(settings, dataDir)
	switch settings.Backend {
	case domain.IndexBackendMemory, "":
		return memoryindex.New(dimensions, memoryindex.WithPath(path), memoryindex.WithModel(model)), nil
	case domain.IndexBackendChromem:
		idx, err := chromemindex.New(path, dimensions, model)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
		}
		return idx, nil
	}
	return nil, fmt.Errorf("%w: unknown index backend %q", domain.ErrInvalidInput, settings.Backend)
}

// CreateEmbeddingService returns nil, nil when no provider is configured.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil {
		return nil, nil
	}
	if p := settings.Provider; p == domain.AIProviderAnthropic || p == domain.AIProviderGroq {
		return nil, fmt.Errorf("%s does not support embeddings, use ollama or openai", p)
	}
	if !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return createOllamaEmbedding(settings), nil
	case domain.AIProviderOpenAI:
		return createOpenAIEmbedding(settings)
	}
	return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
}

// CreateLLMService returns nil, nil when no provider is configured.
func CreateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return createOllamaLLM(settings), nil
	case domain.AIProviderOpenAI:
		return createOpenAILLM(settings)
	case domain.AIProviderAnthropic:
		return createAnthropicLLM(settings)
	case domain.AIProviderGroq:
		return createGroqLLM(settings)
	}
	return nil, fmt.Errorf("unsupported LLM provider: %s", settings.Provider)
}

func embeddingDimensions(settings *domain.EmbeddingSettings) int {
	if settings.Dimensions > 0 {
		return settings.Dimensions
	}
	return domain.EmbeddingDimensions()[settings.Model]
}

func createOllamaEmbedding(settings *domain.EmbeddingSettings) driven.EmbeddingService {
	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: embeddingDimensions(settings),
	})
}

func createOpenAIEmbedding(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	return openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:     settings.APIKey,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: embeddingDimensions(settings),
	})
}

func createOllamaLLM(settings *domain.LLMSettings) driven.LLMService {
	return ollamallm.NewLLMService(ollamallm.LLMConfig{
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
	})
}

func createOpenAILLM(settings *domain.LLMSettings) (driven.LLMService, error) {
	return openaillm.NewLLMService(openaillm.LLMConfig{
		APIKey:  settings.APIKey,
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
	})
}

func createAnthropicLLM(settings *domain.LLMSettings) (driven.LLMService, error) {
	return anthropicllm.NewLLMService(anthropicllm.Config{
		APIKey:  settings.APIKey,
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
	})
}

func createGroqLLM(settings *domain.LLMSettings) (driven.LLMService, error) {
	return groqllm.NewLLMService(groqllm.Config{
		APIKey:  settings.APIKey,
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
	})
}
