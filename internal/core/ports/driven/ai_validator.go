package driven

import "github.com/custodia-labs/finrag/internal/core/domain"

// AIConfigValidator checks provider settings against the live services
// before they are saved. Settings that name no provider validate as nil.
type AIConfigValidator interface {
	ValidateEmbedding(config *domain.EmbeddingSettings) error
	ValidateLLM(config *domain.LLMSettings) error
}
