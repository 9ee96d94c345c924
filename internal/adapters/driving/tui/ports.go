// Package tui provides an interactive terminal interface for asking
// questions about indexed financial reports.
// It implements a driving adapter following hexagonal architecture principles.
package tui

import (
	"github.com/custodia-labs/finrag/internal/core/ports/driving"
)

// Ports aggregates the driving ports used by the TUI.
type Ports struct {
	// Query answers questions. Required.
	Query driving.QueryService

	// Document lists and removes documents. Optional; the documents
	// view reports that it is unavailable without it.
	Document driving.DocumentService

	// Settings shows and changes provider configuration. Optional.
	Settings driving.SettingsService
}

// Validate ensures the required ports are set.
func (p *Ports) Validate() error {
	if p == nil {
		return ErrInvalidPorts
	}
	if p.Query == nil {
		return ErrMissingQueryService
	}
	return nil
}
