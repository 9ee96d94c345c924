package mcp

import (
	"github.com/custodia-labs/finrag/internal/core/ports/driving"
)

// Ports are the services the MCP tools and resources call.
type Ports struct {
	// Query answers questions.
	Query driving.QueryService

	// Index ingests local files. Optional; index_file is unavailable without it.
	Index driving.IndexService

	// Document lists and removes documents. Optional.
	Document driving.DocumentService

	// ReadOnly drops the tools that change the index.
	ReadOnly bool
}

// Validate requires the query service; everything else is optional.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	return nil
}
