// Package embedding holds helpers shared by the embedding provider adapters.
package embedding

import (
	"fmt"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

// Float32 narrows a provider vector and checks it against the configured
// dimension count.
func Float32(provider string, raw []float64, dims int) ([]float32, error) {
	if len(raw) != dims {
		return nil, fmt.Errorf("%w: %s returned %d dimensions, expected %d",
			domain.ErrDimensionMismatch, provider, len(raw), dims)
	}
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(v)
	}
	return out, nil
}
