package services

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
	"github.com/custodia-labs/finrag/internal/core/ports/driving"
)

var _ driving.SettingsService = (*SettingsService)(nil)

// readMode says how a stored value is read back.
type readMode int

const (
	// unsetIfZero: an empty or zero value keeps the default.
	unsetIfZero readMode = iota
	// literal: whatever is stored wins, including "" and 0.
	literal
	// secret is literal but never written by Save; API keys are saved only
	// when they differ from the environment.
	secret
)

// setting binds one dotted config key to a field of domain.AppSettings.
// field returns a pointer to one of string, int, int64, float64,
// time.Duration, domain.AIProvider or domain.IndexBackend.
type setting struct {
	key   string
	field func(*domain.AppSettings) any
	mode  readMode
}

//nolint:gosec // G101: key names, not credentials.
var settingTable = []setting{
	{"embedding.provider", func(a *domain.AppSettings) any { return &a.Embedding.Provider }, unsetIfZero},
	{"embedding.model", func(a *domain.AppSettings) any { return &a.Embedding.Model }, unsetIfZero},
	{"embedding.base_url", func(a *domain.AppSettings) any { return &a.Embedding.BaseURL }, literal},
	{"embedding.api_key", func(a *domain.AppSettings) any { return &a.Embedding.APIKey }, secret},
	{"embedding.dimensions", func(a *domain.AppSettings) any { return &a.Embedding.Dimensions }, unsetIfZero},
	{"embedding.batch_size", func(a *domain.AppSettings) any { return &a.Embedding.BatchSize }, unsetIfZero},
	{"embedding.concurrency", func(a *domain.AppSettings) any { return &a.Embedding.Concurrency }, unsetIfZero},
	{"embedding.cache_size", func(a *domain.AppSettings) any { return &a.Embedding.CacheSize }, literal},

	{"llm.provider", func(a *domain.AppSettings) any { return &a.LLM.Provider }, unsetIfZero},
	{"llm.model", func(a *domain.AppSettings) any { return &a.LLM.Model }, unsetIfZero},
	{"llm.base_url", func(a *domain.AppSettings) any { return &a.LLM.BaseURL }, literal},
	{"llm.api_key", func(a *domain.AppSettings) any { return &a.LLM.APIKey }, secret},
	{"llm.max_tokens", func(a *domain.AppSettings) any { return &a.LLM.MaxTokens }, unsetIfZero},
	{"llm.temperature", func(a *domain.AppSettings) any { return &a.LLM.Temperature }, literal},

	{"chunker.size", func(a *domain.AppSettings) any { return &a.Chunker.Size }, unsetIfZero},
	{"chunker.overlap", func(a *domain.AppSettings) any { return &a.Chunker.Overlap }, literal},

	{"retrieval.top_k", func(a *domain.AppSettings) any { return &a.Retrieval.TopK }, unsetIfZero},
	{"retrieval.min_similarity", func(a *domain.AppSettings) any { return &a.Retrieval.MinSimilarity }, literal},
	{"retrieval.top_weight", func(a *domain.AppSettings) any { return &a.Retrieval.TopWeight }, literal},

	{"answer.language", func(a *domain.AppSettings) any { return &a.Answer.Language }, unsetIfZero},
	{"answer.fallback_confidence", func(a *domain.AppSettings) any { return &a.Answer.FallbackConfidence }, literal},
	{"answer.length_weight", func(a *domain.AppSettings) any { return &a.Answer.LengthWeight }, literal},
	{"answer.max_context_chars", func(a *domain.AppSettings) any { return &a.Answer.MaxContextRunes }, unsetIfZero},
	{"answer.timeout", func(a *domain.AppSettings) any { return &a.Answer.Timeout }, unsetIfZero},
	{"answer.call_timeout", func(a *domain.AppSettings) any { return &a.Answer.CallTimeout }, unsetIfZero},
	{"answer.cache_size", func(a *domain.AppSettings) any { return &a.Answer.CacheSize }, literal},
	{"answer.cache_ttl", func(a *domain.AppSettings) any { return &a.Answer.CacheTTL }, unsetIfZero},
	{"answer.history_size", func(a *domain.AppSettings) any { return &a.Answer.HistorySize }, literal},

	{"retry.max_attempts", func(a *domain.AppSettings) any { return &a.Retry.MaxAttempts }, unsetIfZero},
	{"retry.base_delay", func(a *domain.AppSettings) any { return &a.Retry.BaseDelay }, unsetIfZero},
	{"retry.max_delay", func(a *domain.AppSettings) any { return &a.Retry.MaxDelay }, unsetIfZero},

	{"ratelimit.requests_per_second", func(a *domain.AppSettings) any { return &a.RateLimit.RequestsPerSecond }, literal},
	{"ratelimit.burst", func(a *domain.AppSettings) any { return &a.RateLimit.Burst }, unsetIfZero},

	{"index.backend", func(a *domain.AppSettings) any { return &a.Index.Backend }, unsetIfZero},
	{"index.path", func(a *domain.AppSettings) any { return &a.Index.Path }, literal},

	{"server.addr", func(a *domain.AppSettings) any { return &a.Server.Addr }, unsetIfZero},
	{"server.upload_dir", func(a *domain.AppSettings) any { return &a.Server.UploadDir }, literal},
	{"server.watch_dir", func(a *domain.AppSettings) any { return &a.Server.WatchDir }, literal},
	{"server.max_upload_bytes", func(a *domain.AppSettings) any { return &a.Server.MaxUploadBytes }, unsetIfZero},
}

// providerKeyEnv names the conventional API key variable per provider,
// consulted when no key is configured.
var providerKeyEnv = map[domain.AIProvider]string{
	domain.AIProviderGroq:      "GROQ_API_KEY",
	domain.AIProviderOpenAI:    "OPENAI_API_KEY",
	domain.AIProviderAnthropic: "ANTHROPIC_API_KEY",
}

// SettingsService reads and writes domain.AppSettings through a
// driven.ConfigStore. Values that are missing or unparsable fall back to
// domain.DefaultAppSettings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	lookupEnv   func(string) (string, bool)
}

func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		lookupEnv:   os.LookupEnv,
	}
}

func (s *SettingsService) Get() (*domain.AppSettings, error) {
	settings := domain.DefaultAppSettings()
	for _, f := range settingTable {
		s.read(f, f.field(&settings))
	}

	if settings.Embedding.BaseURL == "" && settings.Embedding.Provider.IsLocal() {
		settings.Embedding.BaseURL = domain.DefaultLocalBaseURL
	}
	if settings.Embedding.APIKey == "" {
		settings.Embedding.APIKey = s.envAPIKey(settings.Embedding.Provider)
	}
	if settings.LLM.APIKey == "" {
		settings.LLM.APIKey = s.envAPIKey(settings.LLM.Provider)
	}
	return &settings, nil
}

// read overwrites the default behind ptr with the stored value for f.
func (s *SettingsService) read(f setting, ptr any) {
	_, present := s.configStore.Get(f.key)
	if f.mode == unsetIfZero && !present {
		return
	}
	str := s.configStore.GetString(f.key)

	switch p := ptr.(type) {
	case *string:
		if str != "" || f.mode != unsetIfZero {
			*p = str
		}
	case *int:
		if n := s.configStore.GetInt(f.key); n != 0 || (present && f.mode != unsetIfZero) {
			*p = n
		}
	case *int64:
		if n := s.configStore.GetInt(f.key); n != 0 {
			*p = int64(n)
		}
	case *float64:
		if present {
			*p = s.configStore.GetFloat(f.key)
		}
	case *time.Duration:
		if d, err := time.ParseDuration(str); err == nil && d >= 0 {
			*p = d
		}
	case *domain.AIProvider:
		if v := domain.AIProvider(str); v.IsValid() {
			*p = v
		}
	case *domain.IndexBackend:
		if v := domain.IndexBackend(str); v.IsValid() {
			*p = v
		}
	}
}

// Save writes every setting. API keys are written only when they did not
// come from the environment.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	for _, f := range settingTable {
		value := stored(f.field(settings))
		if f.mode == secret {
			key, _ := value.(string)
			if key == "" || key == s.envAPIKey(providerFor(settings, f.key)) {
				continue
			}
		}
		if err := s.configStore.Set(f.key, value); err != nil {
			return fmt.Errorf("save %s: %w", f.key, err)
		}
	}
	return nil
}

// stored converts a field to the form kept in the config file: durations
// as "30s", named string types as plain strings.
func stored(ptr any) any {
	switch p := ptr.(type) {
	case *string:
		return *p
	case *int:
		return *p
	case *int64:
		return int(*p)
	case *float64:
		return *p
	case *time.Duration:
		return p.String()
	case *domain.AIProvider:
		return p.String()
	case *domain.IndexBackend:
		return string(*p)
	}
	return nil
}

func providerFor(settings *domain.AppSettings, key string) domain.AIProvider {
	if key == "embedding.api_key" {
		return settings.Embedding.Provider
	}
	return settings.LLM.Provider
}

// Set parses value for key, validates the result and saves it.
func (s *SettingsService) Set(key, value string) error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := applySetting(settings, key, value); err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	return s.Save(settings)
}

func applySetting(settings *domain.AppSettings, key, value string) error {
	i := slices.IndexFunc(settingTable, func(f setting) bool { return f.key == key })
	if i < 0 {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	var err error
	switch p := settingTable[i].field(settings).(type) {
	case *string:
		*p = value
	case *int:
		*p, err = parseInt(key, value)
	case *int64:
		var n int
		n, err = parseInt(key, value)
		*p = int64(n)
	case *float64:
		*p, err = parseFloat(key, value)
	case *time.Duration:
		*p, err = parseDuration(key, value)
	case *domain.AIProvider:
		*p, err = parseProvider(value)
	case *domain.IndexBackend:
		if b := domain.IndexBackend(value); b.IsValid() {
			*p = b
		} else {
			err = fmt.Errorf("%w: unknown index backend %q", domain.ErrInvalidInput, value)
		}
	}
	return err
}

// SettingKeys lists every key accepted by Set, in display order.
func SettingKeys() []string {
	keys := make([]string, len(settingTable))
	for i, f := range settingTable {
		keys[i] = f.key
	}
	return keys
}

func (s *SettingsService) Keys() []string { return SettingKeys() }

// providerSlot points at the provider fields shared by the embedding and
// LLM sections.
type providerSlot struct {
	provider               *domain.AIProvider
	model, baseURL, apiKey *string
}

func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid embedding provider: %s", provider)
	}
	if !provider.CanEmbed() {
		return fmt.Errorf("provider %s does not support embeddings", provider)
	}
	return s.switchProvider(provider, model, apiKey, domain.DefaultEmbeddingModels(),
		func(st *domain.AppSettings) providerSlot {
			e := &st.Embedding
			return providerSlot{&e.Provider, &e.Model, &e.BaseURL, &e.APIKey}
		},
		func(st *domain.AppSettings) {
			// Another model is another vector space.
			if d, ok := domain.EmbeddingDimensions()[st.Embedding.Model]; ok {
				st.Embedding.Dimensions = d
			}
		})
}

func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid LLM provider: %s", provider)
	}
	return s.switchProvider(provider, model, apiKey, domain.DefaultLLMModels(),
		func(st *domain.AppSettings) providerSlot {
			l := &st.LLM
			return providerSlot{&l.Provider, &l.Model, &l.BaseURL, &l.APIKey}
		}, nil)
}

// switchProvider points one section at provider. An empty model picks the
// provider default and an empty key falls back to the environment. Local
// providers keep or get a base URL; cloud providers use their SDK default.
func (s *SettingsService) switchProvider(
	provider domain.AIProvider,
	model, apiKey string,
	defaultModels map[domain.AIProvider]string,
	slot func(*domain.AppSettings) providerSlot,
	after func(*domain.AppSettings),
) error {
	if apiKey == "" {
		apiKey = s.envAPIKey(provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}
	sl := slot(settings)
	*sl.provider = provider
	switch {
	case model != "":
		*sl.model = model
	case defaultModels[provider] != "":
		*sl.model = defaultModels[provider]
	}
	switch {
	case !provider.IsLocal():
		*sl.baseURL = ""
	case *sl.baseURL == "":
		*sl.baseURL = domain.DefaultLocalBaseURL
	}
	*sl.apiKey = apiKey
	if after != nil {
		after(settings)
	}
	return s.Save(settings)
}

// Validate checks the stored settings and that an embedder is usable.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if !settings.Embedding.IsConfigured() {
		return fmt.Errorf("embedding provider %q is not configured", settings.Embedding.Provider)
	}
	return nil
}

func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig pings the configured embedding provider. Without
// a validator it reports success.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

func (s *SettingsService) envAPIKey(provider domain.AIProvider) string {
	name, ok := providerKeyEnv[provider]
	if !ok || s.lookupEnv == nil {
		return ""
	}
	v, _ := s.lookupEnv(name)
	return v
}

func parseProvider(v string) (domain.AIProvider, error) {
	p := domain.AIProvider(v)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidInput, v)
	}
	return p, nil
}

func parseInt(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidInput, key)
	}
	return n, nil
}

func parseFloat(key, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", domain.ErrInvalidInput, key)
	}
	return f, nil
}

func parseDuration(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %s must be a duration such as 30s", domain.ErrInvalidInput, key)
	}
	return d, nil
}
