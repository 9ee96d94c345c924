// Package httperr classifies failed HTTP calls to AI providers into
// *domain.ProviderError values.
package httperr

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

const maxBody = 4 << 10

// FromResponse builds a ProviderError for a non-2xx response. The body is
// read (bounded) to extract the provider's message.
func FromResponse(provider string, resp *http.Response) *domain.ProviderError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	return &domain.ProviderError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    Message(body),
		RetryAfter: RetryAfter(resp.Header.Get("Retry-After")),
	}
}

// FromTransport wraps a network-level failure.
func FromTransport(provider string, err error) *domain.ProviderError {
	return &domain.ProviderError{Provider: provider, Err: err}
}

// Message extracts an error message from common provider payload shapes,
// falling back to the trimmed body.
func Message(body []byte) string {
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && len(payload.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var plain string
		if json.Unmarshal(payload.Error, &plain) == nil && plain != "" {
			return plain
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response body"
	}
	return msg
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP date.
func RetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
