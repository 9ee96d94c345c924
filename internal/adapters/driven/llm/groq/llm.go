// Package groq provides an LLM service adapter for the Groq cloud API.
// Groq speaks the OpenAI chat protocol, so requests go through the
// langchaingo OpenAI client pointed at the Groq endpoint.
package groq

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/custodia-labs/finrag/internal/adapters/driven/httperr"
	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
)

// Ensure LLMService implements the interface.
var _ driven.LLMService = (*LLMService)(nil)

const providerName = "groq"

// Default configuration values.
const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.1-8b-instant"
)

// statusPattern pulls the HTTP status out of langchaingo client errors,
// which carry it only in the message text.
var statusPattern = regexp.MustCompile(`status code: (\d{3})`)

// Config holds configuration for the Groq LLM service.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// LLMService provides LLM operations using Groq.
type LLMService struct {
	llm   *openai.LLM
	model string
}

// NewLLMService creates a new Groq LLM service.
func NewLLMService(cfg Config) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("groq: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	llm, err := openai.New(
		openai.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
		openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("groq: create client: %w", err)
	}

	return &LLMService{llm: llm, model: cfg.Model}, nil
}

// Generate produces text completion from a prompt.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	if len(opts.StopWords) > 0 {
		callOpts = append(callOpts, llms.WithStopWords(opts.StopWords))
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, s.llm, prompt, callOpts...)
	if err != nil {
		return "", classify(err)
	}
	return out, nil
}

// ModelName returns the name of the LLM model being used.
func (s *LLMService) ModelName() string {
	return s.model
}

// Ping sends a one-token completion to validate the key and model.
func (s *LLMService) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err := llms.GenerateFromSinglePrompt(ctx, s.llm, "ping", llms.WithMaxTokens(1))
	if err != nil {
		return classify(err)
	}
	return nil
}

// Close releases resources.
func (s *LLMService) Close() error {
	return nil
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	m := statusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return httperr.FromTransport(providerName, err)
	}
	code, _ := strconv.Atoi(m[1])
	msg := err.Error()
	if i := strings.Index(msg, m[0]); i >= 0 {
		msg = strings.TrimLeft(msg[i+len(m[0]):], ": ")
	}
	if msg == "" {
		msg = "status " + m[1]
	}
	return &domain.ProviderError{
		Provider:   providerName,
		StatusCode: code,
		Message:    msg,
		Err:        err,
	}
}
