package domain

import (
	"fmt"
	"time"
)

// IndexBackend selects the vector index implementation.
type IndexBackend string

// Available index backends.
const (
	// IndexBackendMemory is exact brute-force search over an in-memory snapshot.
	IndexBackendMemory IndexBackend = "memory"

	// IndexBackendChromem stores vectors in a chromem-go database.
	IndexBackendChromem IndexBackend = "chromem"
)

// IsValid returns true if the backend is recognised.
func (b IndexBackend) IsValid() bool {
	return b == IndexBackendMemory || b == IndexBackendChromem
}

// Defaults for every tunable setting.
const (
	DefaultChunkSize           = 1000
	DefaultChunkOverlap        = 200
	DefaultTopK                = 5
	DefaultMinSimilarity       = 0.5
	DefaultTopWeight           = 0.6
	DefaultLanguage            = "tr"
	DefaultFallbackConfidence  = 0.2
	MaxFallbackConfidence      = 0.3
	DefaultLengthWeight        = 0.2
	DefaultMaxContextRunes     = 4000
	DefaultMaxTokens           = 1000
	DefaultTemperature         = 0.1
	DefaultQueryTimeout        = 60 * time.Second
	DefaultCallTimeout         = 30 * time.Second
	DefaultRetryAttempts       = 3
	DefaultRetryBaseDelay      = 200 * time.Millisecond
	DefaultRetryMaxDelay       = 2 * time.Second
	DefaultEmbedBatchSize      = 32
	DefaultEmbedConcurrency    = 4
	DefaultEmbedCacheSize      = 512
	DefaultRequestsPerSecond   = 5.0
	DefaultRateBurst           = 5
	DefaultEmbeddingDimensions = 768
	DefaultServerAddr          = "127.0.0.1:8000"
	DefaultLocalBaseURL        = "http://localhost:11434"
	DefaultMaxUploadBytes      = 50 << 20
	DefaultAnswerCacheSize     = 100
	DefaultAnswerCacheTTL      = time.Hour
	DefaultHistorySize         = 200
	DefaultHistoryLimit        = 50
)

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions is the vector length produced by Model.
	Dimensions int

	// BatchSize is the number of texts per embed_batch call during indexing.
	BatchSize int

	// Concurrency bounds parallel batches during indexing.
	Concurrency int

	// CacheSize is the number of query embeddings kept in memory. Zero disables it.
	CacheSize int
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.CanEmbed() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key.
	APIKey string

	// MaxTokens bounds the completion length.
	MaxTokens int

	// Temperature is the sampling temperature.
	Temperature float64
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// ChunkerSettings holds chunking parameters, measured in characters.
type ChunkerSettings struct {
	Size    int
	Overlap int
}

// RetrievalSettings holds retriever parameters.
type RetrievalSettings struct {
	// TopK is the default number of hits.
	TopK int

	// MinSimilarity drops hits scoring below it.
	MinSimilarity float64

	// TopWeight blends the top score against the mean of all hits.
	TopWeight float64
}

// AnswerSettings holds answer synthesis parameters.
type AnswerSettings struct {
	// Language is the default answer language.
	Language string

	// FallbackConfidence is reported for answers without sources.
	// It is capped at MaxFallbackConfidence.
	FallbackConfidence float64

	// LengthWeight is how much a short answer may reduce confidence.
	LengthWeight float64

	// MaxContextRunes caps the retrieved context placed in the prompt.
	MaxContextRunes int

	// Timeout bounds a whole query when the caller sets no deadline.
	Timeout time.Duration

	// CallTimeout bounds each collaborator call.
	CallTimeout time.Duration

	// CacheSize caps the answer cache; zero turns it off.
	CacheSize int

	// CacheTTL is how long a cached answer stays valid.
	CacheTTL time.Duration

	// HistorySize is how many answered queries are kept; zero keeps none.
	HistorySize int
}

// RetrySettings holds the bounded retry policy for collaborator calls.
type RetrySettings struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RateLimitSettings throttles outbound provider requests.
type RateLimitSettings struct {
	RequestsPerSecond float64
	Burst             int
}

// IndexSettings selects and locates the vector index.
type IndexSettings struct {
	Backend IndexBackend

	// Path is the index file (memory) or directory (chromem).
	// Empty means ~/.finrag/index.
	Path string
}

// ServerSettings holds HTTP API configuration.
type ServerSettings struct {
	Addr           string
	UploadDir      string
	WatchDir       string
	MaxUploadBytes int64
}

// AppSettings holds all application settings.
type AppSettings struct {
	Embedding EmbeddingSettings
	LLM       LLMSettings
	Chunker   ChunkerSettings
	Retrieval RetrievalSettings
	Answer    AnswerSettings
	Retry     RetrySettings
	RateLimit RateLimitSettings
	Index     IndexSettings
	Server    ServerSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// API keys are left empty; they come from the config file or environment.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: EmbeddingSettings{
			Provider:    AIProviderOllama,
			Model:       DefaultEmbeddingModels()[AIProviderOllama],
			BaseURL:     DefaultLocalBaseURL,
			Dimensions:  DefaultEmbeddingDimensions,
			BatchSize:   DefaultEmbedBatchSize,
			Concurrency: DefaultEmbedConcurrency,
			CacheSize:   DefaultEmbedCacheSize,
		},
		LLM: LLMSettings{
			Provider:    AIProviderGroq,
			Model:       DefaultLLMModels()[AIProviderGroq],
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
		},
		Chunker: ChunkerSettings{
			Size:    DefaultChunkSize,
			Overlap: DefaultChunkOverlap,
		},
		Retrieval: RetrievalSettings{
			TopK:          DefaultTopK,
			MinSimilarity: DefaultMinSimilarity,
			TopWeight:     DefaultTopWeight,
		},
		Answer: AnswerSettings{
			Language:           DefaultLanguage,
			FallbackConfidence: DefaultFallbackConfidence,
			LengthWeight:       DefaultLengthWeight,
			MaxContextRunes:    DefaultMaxContextRunes,
			Timeout:            DefaultQueryTimeout,
			CallTimeout:        DefaultCallTimeout,
			CacheSize:          DefaultAnswerCacheSize,
			CacheTTL:           DefaultAnswerCacheTTL,
			HistorySize:        DefaultHistorySize,
		},
		Retry: RetrySettings{
			MaxAttempts: DefaultRetryAttempts,
			BaseDelay:   DefaultRetryBaseDelay,
			MaxDelay:    DefaultRetryMaxDelay,
		},
		RateLimit: RateLimitSettings{
			RequestsPerSecond: DefaultRequestsPerSecond,
			Burst:             DefaultRateBurst,
		},
		Index: IndexSettings{
			Backend: IndexBackendMemory,
		},
		Server: ServerSettings{
			Addr:           DefaultServerAddr,
			MaxUploadBytes: DefaultMaxUploadBytes,
		},
	}
}

// Validate checks settings that would make the pipeline misbehave.
func (s AppSettings) Validate() error {
	switch {
	case s.Chunker.Size <= 0:
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidInput)
	case s.Chunker.Overlap < 0 || s.Chunker.Overlap >= s.Chunker.Size:
		return fmt.Errorf("%w: chunk overlap must be in [0, size)", ErrInvalidInput)
	case s.Retrieval.TopK <= 0:
		return fmt.Errorf("%w: top_k must be positive", ErrInvalidInput)
	case s.Retrieval.MinSimilarity < -1 || s.Retrieval.MinSimilarity > 1:
		return fmt.Errorf("%w: min_similarity must be in [-1, 1]", ErrInvalidInput)
	case s.Retrieval.TopWeight < 0 || s.Retrieval.TopWeight > 1:
		return fmt.Errorf("%w: top_weight must be in [0, 1]", ErrInvalidInput)
	case s.Answer.FallbackConfidence < 0 || s.Answer.FallbackConfidence > MaxFallbackConfidence:
		return fmt.Errorf("%w: fallback_confidence must be in [0, %.1f]", ErrInvalidInput, MaxFallbackConfidence)
	case s.Answer.LengthWeight < 0 || s.Answer.LengthWeight > 1:
		return fmt.Errorf("%w: length_weight must be in [0, 1]", ErrInvalidInput)
	case s.Answer.CacheSize < 0 || s.Answer.HistorySize < 0:
		return fmt.Errorf("%w: cache_size and history_size must not be negative", ErrInvalidInput)
	case s.Retry.MaxAttempts < 1:
		return fmt.Errorf("%w: retry max_attempts must be at least 1", ErrInvalidInput)
	case !s.Index.Backend.IsValid():
		return fmt.Errorf("%w: unknown index backend %q", ErrInvalidInput, s.Index.Backend)
	}
	return nil
}
