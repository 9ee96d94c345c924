package ai

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driven"
)

// defaultBackoff is used when a 429 carries no Retry-After.
const defaultBackoff = time.Second

// RateLimiter throttles provider requests with a token bucket and honours
// the backoff a provider asks for after a 429.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// NewRateLimiter creates a limiter from settings. A non-positive rate
// returns nil, which disables throttling.
func NewRateLimiter(cfg domain.RateLimitSettings) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
	}
}

// Wait blocks until a request can be made without exceeding the rate limit.
// It also respects any backoff period set by RecordRateLimitError.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if wait := time.Until(retryAt); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return r.limiter.Wait(ctx)
}

// RecordRateLimitError pushes the next allowed request back by retryAfter.
func (r *RateLimiter) RecordRateLimitError(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = defaultBackoff
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if at := time.Now().Add(retryAfter); at.After(r.retryAt) {
		r.retryAt = at
	}
}

// Allow reports whether a request can be made immediately.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if time.Now().Before(retryAt) {
		return false
	}
	return r.limiter.Allow()
}

func (r *RateLimiter) observe(err error) {
	var pe *domain.ProviderError
	if errors.As(err, &pe) && pe.StatusCode == 429 {
		r.RecordRateLimitError(pe.RetryAfter)
	}
}

// WithEmbeddingLimit wraps svc so every call waits on limiter.
// A nil limiter returns svc unchanged.
func WithEmbeddingLimit(svc driven.EmbeddingService, limiter *RateLimiter) driven.EmbeddingService {
	if limiter == nil || svc == nil {
		return svc
	}
	return &limitedEmbedding{EmbeddingService: svc, limiter: limiter}
}

// WithLLMLimit wraps svc so every call waits on limiter.
// A nil limiter returns svc unchanged.
func WithLLMLimit(svc driven.LLMService, limiter *RateLimiter) driven.LLMService {
	if limiter == nil || svc == nil {
		return svc
	}
	return &limitedLLM{LLMService: svc, limiter: limiter}
}

type limitedEmbedding struct {
	driven.EmbeddingService
	limiter *RateLimiter
}

func (s *limitedEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	v, err := s.EmbeddingService.Embed(ctx, text)
	s.limiter.observe(err)
	return v, err
}

func (s *limitedEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	v, err := s.EmbeddingService.EmbedBatch(ctx, texts)
	s.limiter.observe(err)
	return v, err
}

type limitedLLM struct {
	driven.LLMService
	limiter *RateLimiter
}

func (s *limitedLLM) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	out, err := s.LLMService.Generate(ctx, prompt, opts)
	s.limiter.observe(err)
	return out, err
}
