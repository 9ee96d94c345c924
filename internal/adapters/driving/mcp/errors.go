// Package mcp provides an MCP (Model Context Protocol) server adapter for finrag.
// It lets AI assistants ask questions about indexed financial reports and
// manage the document collection.
package mcp

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("mcp: query service is required")
