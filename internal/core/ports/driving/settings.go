package driving

import "github.com/custodia-labs/finrag/internal/core/domain"

// SettingsService reads and changes finrag's configuration. Keys are the
// dotted names from the config file, such as "retrieval.top_k".
type SettingsService interface {
	Get() (*domain.AppSettings, error)
	Save(settings *domain.AppSettings) error
	GetDefaults() domain.AppSettings

	// Set parses value for key and persists it.
	Set(key, value string) error
	Keys() []string

	// SetEmbeddingProvider and SetLLMProvider switch provider and model
	// together. An empty apiKey falls back to the provider's environment variable.
	SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error
	SetLLMProvider(provider domain.AIProvider, model, apiKey string) error

	// Validate checks the stored settings without network calls.
	Validate() error

	// ValidateEmbeddingConfig and ValidateLLMConfig contact the providers.
	ValidateEmbeddingConfig() error
	ValidateLLMConfig() error
}
