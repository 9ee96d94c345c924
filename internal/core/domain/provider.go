package domain

import (
	"maps"
	"slices"
)

// AIProvider names a model host. The same host can serve embeddings, the
// answer LLM, or both.
type AIProvider string

const (
	AIProviderOllama    AIProvider = "ollama"
	AIProviderOpenAI    AIProvider = "openai"
	AIProviderAnthropic AIProvider = "anthropic"
	AIProviderGroq      AIProvider = "groq"
)

const unknownDescription = "Unknown"

// providerInfo is what finrag knows about a host. An empty embedModel means
// the host cannot embed.
type providerInfo struct {
	description string
	local       bool
	embedModel  string
	llmModel    string
}

// providerOrder is the order providers are offered in; the first LLM host
// is the default.
var providerOrder = []AIProvider{AIProviderGroq, AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic}

var providerCatalogue = map[AIProvider]providerInfo{
	AIProviderGroq:      {"Groq (cloud)", false, "", "llama-3.1-8b-instant"},
	AIProviderOllama:    {"Ollama (local)", true, "paraphrase-multilingual", "llama3.2"},
	AIProviderOpenAI:    {"OpenAI (cloud)", false, "text-embedding-3-small", "gpt-4o-mini"},
	AIProviderAnthropic: {"Anthropic (cloud)", false, "", "claude-3-5-haiku-latest"},
}

// embeddingDimensions lists the vector length of known embedding models.
var embeddingDimensions = map[string]int{
	"paraphrase-multilingual": 768,
	"nomic-embed-text":        768,
	"mxbai-embed-large":       1024,
	"bge-m3":                  1024,
	"all-minilm":              384,
	"text-embedding-3-small":  1536,
	"text-embedding-3-large":  3072,
	"text-embedding-ada-002":  1536,
}

func (p AIProvider) IsValid() bool {
	_, ok := providerCatalogue[p]
	return ok
}

// RequiresAPIKey is true for every hosted provider.
func (p AIProvider) RequiresAPIKey() bool {
	info, ok := providerCatalogue[p]
	return ok && !info.local
}

func (p AIProvider) IsLocal() bool { return providerCatalogue[p].local }

// CanEmbed reports whether p serves embedding models.
func (p AIProvider) CanEmbed() bool { return providerCatalogue[p].embedModel != "" }

func (p AIProvider) String() string { return string(p) }

// Description is the label shown in settings screens.
func (p AIProvider) Description() string {
	if info, ok := providerCatalogue[p]; ok {
		return info.description
	}
	return unknownDescription
}

// AllEmbeddingProviders returns the providers that can embed, in menu order.
func AllEmbeddingProviders() []AIProvider {
	var out []AIProvider
	for _, p := range providerOrder {
		if p.CanEmbed() {
			out = append(out, p)
		}
	}
	return out
}

// AllLLMProviders returns every provider in menu order.
func AllLLMProviders() []AIProvider { return slices.Clone(providerOrder) }

// DefaultEmbeddingModels maps each embedding provider to its default model.
func DefaultEmbeddingModels() map[AIProvider]string {
	out := map[AIProvider]string{}
	for p, info := range providerCatalogue {
		if info.embedModel != "" {
			out[p] = info.embedModel
		}
	}
	return out
}

// DefaultLLMModels maps each provider to its default answer model.
func DefaultLLMModels() map[AIProvider]string {
	out := make(map[AIProvider]string, len(providerCatalogue))
	for p, info := range providerCatalogue {
		out[p] = info.llmModel
	}
	return out
}

// EmbeddingDimensions returns a copy of the known model dimensions.
func EmbeddingDimensions() map[string]int { return maps.Clone(embeddingDimensions) }
