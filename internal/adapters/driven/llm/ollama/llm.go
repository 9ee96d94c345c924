// Package ollama generates answers with a local Ollama model.
package ollama

import (
	"context"
	"time"

	"github.com/custodia-labs/finrag/internal/adapters/driven/httperr"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
)

var _ driven.LLMService = (*LLMService)(nil)

const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultLLMModel   = "llama3.2"
	DefaultLLMTimeout = 120 * time.Second

	// DefaultContextWindow fits five retrieved chunks plus the template.
	// Ollama's own default of 2048 tokens silently cuts the prompt head.
	DefaultContextWindow = 8192
)

// LLMConfig configures the generator. Zero values take the defaults above.
type LLMConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration

	// ContextWindow is sent as num_ctx.
	ContextWindow int
}

// LLMService calls POST /api/generate without streaming.
type LLMService struct {
	api    *httperr.Client
	model  string
	numCtx int
}

type generateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *options `json:"options,omitempty"`
}

type options struct {
	NumPredict  int      `json:"num_predict,omitempty"`
	NumCtx      int      `json:"num_ctx,omitempty"`
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop,omitempty"`
}

type generateResponse struct {
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
}

// NewLLMService returns a generator for cfg.
func NewLLMService(cfg LLMConfig) *LLMService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultLLMTimeout
	}
	if cfg.ContextWindow == 0 {
		cfg.ContextWindow = DefaultContextWindow
	}
	return &LLMService{
		api:    httperr.NewClient("ollama", cfg.BaseURL, "", cfg.Timeout),
		model:  cfg.Model,
		numCtx: cfg.ContextWindow,
	}
}

// Generate returns the full completion for prompt.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	req := generateRequest{
		Model:  s.model,
		Prompt: prompt,
		Options: &options{
			NumPredict:  opts.MaxTokens,
			NumCtx:      s.numCtx,
			Temperature: opts.Temperature,
			Stop:        opts.StopWords,
		},
	}
	var resp generateResponse
	if err := s.api.PostJSON(ctx, "/api/generate", req, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

func (s *LLMService) ModelName() string { return s.model }

// Ping lists local models, which needs no inference.
func (s *LLMService) Ping(ctx context.Context) error {
	return s.api.Reach(ctx, "/api/tags")
}

func (s *LLMService) Close() error { return nil }
