package driven

import "context"

// LLMService turns an assembled prompt into answer text. Provider failures
// come back as *domain.ProviderError so the retry policy can tell a bad key
// from a 429.
type LLMService interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	ModelName() string

	// Ping checks reachability and credentials without generating.
	Ping(ctx context.Context) error
	Close() error
}

// GenerateOptions bounds one completion. Zero MaxTokens leaves the provider
// default in place.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	StopWords   []string
}
