package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

const (
	uriScheme    = "finrag://"
	jsonMIMEType = "application/json"

	documentURIPrefix = uriScheme + "documents/"
)

// registerResources exposes read-only views of the index. The document
// resources need the document port.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI: uriScheme + "stats", Name: "stats", MIMEType: jsonMIMEType,
		Description: "Question counters, confidence buckets and index size",
	}, s.handleStatsResource)

	if s.ports.Document == nil {
		return
	}
	s.server.AddResource(&mcp.Resource{
		URI: uriScheme + "documents", Name: "documents", MIMEType: jsonMIMEType,
		Description: "Every registered report with its processing status",
	}, s.handleDocumentsResource)
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: documentURIPrefix + "{documentId}", Name: "document", MIMEType: jsonMIMEType,
		Description: "One report: status, pages, chunks and any warning",
	}, s.handleDocumentResource)
}

func (s *Server) handleStatsResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(req.Params.URI, statsOutput(s.ports.Query.Stats()))
}

func (s *Server) handleDocumentsResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	docs, err := s.ports.Document.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	out := make([]DocumentOutput, 0, len(docs))
	for i := range docs {
		out = append(out, documentOutput(&docs[i]))
	}
	return jsonResource(req.Params.URI, out)
}

func (s *Server) handleDocumentResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	id := extractDocumentID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	doc, err := s.ports.Document.Get(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	case err != nil:
		return nil, fmt.Errorf("getting document %s: %w", id, err)
	}
	return jsonResource(req.Params.URI, documentOutput(doc))
}

// StatsOutput is the body of finrag://stats.
type StatsOutput struct {
	TotalQueries      int            `json:"total_queries"`
	FailedQueries     int            `json:"failed_queries"`
	AverageTimeMS     int64          `json:"average_time_ms"`
	AverageConfidence float64        `json:"average_confidence"`
	QueryTypes        map[string]int `json:"query_types"`
	ConfidenceHigh    int            `json:"confidence_high"`
	ConfidenceMedium  int            `json:"confidence_medium"`
	ConfidenceLow     int            `json:"confidence_low"`
	IndexedDocuments  int            `json:"indexed_documents"`
	IndexedChunks     int            `json:"indexed_chunks"`
	CacheHits         int            `json:"cache_hits"`
	CacheMisses       int            `json:"cache_misses"`
}

func statsOutput(st domain.QueryStats) StatsOutput {
	types := make(map[string]int, len(st.QueryTypes))
	for kind, n := range maps.All(st.QueryTypes) {
		types[string(kind)] = n
	}
	return StatsOutput{
		TotalQueries:      st.TotalQueries,
		FailedQueries:     st.FailedQueries,
		AverageTimeMS:     st.AverageTime.Milliseconds(),
		AverageConfidence: st.AverageConfidence,
		QueryTypes:        types,
		ConfidenceHigh:    st.ConfidenceHigh,
		ConfidenceMedium:  st.ConfidenceMedium,
		ConfidenceLow:     st.ConfidenceLow,
		IndexedDocuments:  st.IndexedDocuments,
		IndexedChunks:     st.IndexedChunks,
		CacheHits:         st.CacheHits,
		CacheMisses:       st.CacheMisses,
	}
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{URI: uri, MIMEType: jsonMIMEType, Text: string(data)},
	}}, nil
}

// extractDocumentID returns the id in finrag://documents/{id}, or "" for any
// other URI.
func extractDocumentID(uri string) string {
	id, ok := strings.CutPrefix(uri, documentURIPrefix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
