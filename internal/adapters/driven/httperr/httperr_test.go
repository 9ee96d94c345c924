package httperr

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

func response(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: header}
}

func TestFromResponse(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		sentinel  error
		retryable bool
	}{
		{"unauthorized", 401, `{"error":{"message":"Invalid API Key"}}`, domain.ErrAuthInvalid, false},
		{"forbidden", 403, `{"error":"forbidden"}`, domain.ErrAuthInvalid, false},
		{"rate limited", 429, `{"error":{"message":"slow down"}}`, domain.ErrRateLimited, true},
		{"server error", 503, `upstream unavailable`, domain.ErrProviderUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromResponse("groq", response(tt.status, tt.body, nil))
			assert.True(t, errors.Is(err, tt.sentinel))
			assert.Equal(t, tt.retryable, err.Retryable())
			assert.Equal(t, tt.status, err.StatusCode)
		})
	}
}

func TestFromResponse_Message(t *testing.T) {
	err := FromResponse("openai", response(401, `{"error":{"message":"Invalid API Key"}}`, nil))
	assert.Equal(t, "Invalid API Key", err.Message)

	err = FromResponse("ollama", response(500, `{"error":"model not found"}`, nil))
	assert.Equal(t, "model not found", err.Message)

	err = FromResponse("ollama", response(502, "", nil))
	assert.Equal(t, "empty response body", err.Message)
}

func TestFromResponse_RetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "2")
	err := FromResponse("groq", response(429, "", h))
	assert.Equal(t, 2*time.Second, err.RetryAfter)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), RetryAfter(""))
	assert.Equal(t, 1500*time.Millisecond, RetryAfter("1.5"))
	assert.Equal(t, time.Duration(0), RetryAfter("soon"))

	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	d := RetryAfter(future)
	assert.Greater(t, d, 50*time.Second)
	assert.LessOrEqual(t, d, time.Minute)
}

func TestFromTransport(t *testing.T) {
	err := FromTransport("ollama", errors.New("connection refused"))
	assert.True(t, errors.Is(err, domain.ErrProviderUnavailable))
	assert.True(t, err.Retryable())
	assert.Contains(t, err.Error(), "connection refused")
}
