package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
)

var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// sampleText is embedded once during validation to confirm the configured
// vector length. The index rejects vectors of any other length.
const sampleText = "Yıllık enflasyon beklentisi"

// ConfigValidator checks provider settings against the live services.
type ConfigValidator struct {
	timeout time.Duration
}

// NewConfigValidator returns a validator that gives each provider
// pingTimeout to answer.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{timeout: pingTimeout}
}

// ValidateEmbedding pings the embedding provider and, when Dimensions is
// set, embeds a sample sentence to confirm the model's vector length.
// Unconfigured settings are not an error.
func (v *ConfigValidator) ValidateEmbedding(config *domain.EmbeddingSettings) error {
	svc, err := CreateEmbeddingService(config)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		return err
	}
	if config.Dimensions <= 0 {
		return nil
	}

	if _, err := svc.Embed(ctx, sampleText); err != nil {
		if errors.Is(err, domain.ErrDimensionMismatch) {
			return fmt.Errorf("%w: check embedding.dimensions for model %s", err, config.Model)
		}
		return fmt.Errorf("sample embedding: %w", err)
	}
	return nil
}

// ValidateLLM pings the completion provider.
func (v *ConfigValidator) ValidateLLM(config *domain.LLMSettings) error {
	svc, err := CreateLLMService(config)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()
	return svc.Ping(ctx)
}
