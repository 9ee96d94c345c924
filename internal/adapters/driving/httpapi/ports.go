package httpapi

import (
	"errors"

	"github.com/custodia-labs/finrag/internal/core/ports/driving"
)

// ErrMissingQueryService is returned when the server is built without a query service.
var ErrMissingQueryService = errors.New("query service is required")

// Ports holds the services the HTTP API drives.
type Ports struct {
	Query    driving.QueryService
	Index    driving.IndexService
	Document driving.DocumentService
}

// Validate checks that the required ports are set.
// Index and Document are optional; their routes answer 503 without them.
func (p *Ports) Validate() error {
	if p == nil || p.Query == nil {
		return ErrMissingQueryService
	}
	return nil
}
