// Package anthropic writes answers with Claude models through the official
// Anthropic SDK.
package anthropic

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/custodia-labs/finrag/internal/adapters/driven/httperr"
	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
)

var _ driven.LLMService = (*LLMService)(nil)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-3-5-haiku-latest"
	DefaultTimeout = 120 * time.Second

	// The Messages API has no server-side default for max_tokens.
	fallbackMaxTokens = 1024
)

// Config selects the model. APIKey is required; the rest default.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type LLMService struct {
	client anthropic.Client
	model  string
}

// NewLLMService builds the SDK client with its own retries turned off, so
// attempts are counted only by the pipeline's retry policy.
func NewLLMService(cfg Config) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	baseURL := cmp.Or(cfg.BaseURL, DefaultBaseURL)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LLMService{
		client: anthropic.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(baseURL),
			option.WithRequestTimeout(timeout),
			option.WithMaxRetries(0),
		),
		model: cmp.Or(cfg.Model, DefaultModel),
	}, nil
}

// Generate sends prompt as a single user turn and joins the text blocks of
// the reply.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	limit := int64(opts.MaxTokens)
	if limit <= 0 {
		limit = fallbackMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(s.model),
		MaxTokens:     limit,
		Temperature:   anthropic.Float(opts.Temperature),
		StopSequences: opts.StopWords,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	msg, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return "", providerError(err)
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("anthropic: model %s returned no text (stop reason %q)", s.model, msg.StopReason)
	}
	return strings.Join(parts, ""), nil
}

func (s *LLMService) ModelName() string { return s.model }

// Ping lists models, which checks the key without spending tokens.
func (s *LLMService) Ping(ctx context.Context) error {
	_, err := s.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return providerError(err)
	}
	return nil
}

func (s *LLMService) Close() error { return nil }

// providerError maps SDK failures onto *domain.ProviderError. Context
// errors pass through so cancellation is not mistaken for an outage.
func providerError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return httperr.FromTransport("anthropic", err)
	}
	pe := &domain.ProviderError{
		Provider:   "anthropic",
		StatusCode: apiErr.StatusCode,
		Message:    apiErr.Error(),
	}
	if apiErr.Response != nil {
		pe.RetryAfter = httperr.RetryAfter(apiErr.Response.Header.Get("Retry-After"))
	}
	return pe
}
