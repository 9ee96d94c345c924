package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

// QueryInput is the input schema for the query tool.
type QueryInput struct {
	Question   string `json:"question" jsonschema:"the question about the indexed financial reports"`
	DocumentID string `json:"document_id,omitempty" jsonschema:"restrict retrieval to one document"`
	TopK       int    `json:"top_k,omitempty" jsonschema:"number of passages to retrieve (default 5)"`
	Language   string `json:"language,omitempty" jsonschema:"answer language code such as tr or en (default tr)"`
}

// QueryOutput is the output schema for the query tool.
type QueryOutput struct {
	Answer     string         `json:"answer"`
	Confidence float64        `json:"confidence"`
	Grounded   bool           `json:"grounded"`
	QueryType  string         `json:"query_type"`
	ElapsedMS  int64          `json:"elapsed_ms"`
	Sources    []SourceOutput `json:"sources"`
}

// SourceOutput is one citation.
type SourceOutput struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename,omitempty"`
	Page       int     `json:"page"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
}

// IndexFileInput is the input schema for the index_file tool.
type IndexFileInput struct {
	Path string `json:"path" jsonschema:"absolute path of a local PDF or text file"`
}

// DocumentOutput describes one document.
type DocumentOutput struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Pages      int    `json:"pages"`
	Chunks     int    `json:"chunks"`
	Warning    string `json:"warning,omitempty"`
	Error      string `json:"error,omitempty"`
	UploadedAt string `json:"uploaded_at"`
}

// RemoveDocumentInput is the input schema for the remove_document tool.
type RemoveDocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"ID of the document to remove"`
}

// RemoveDocumentOutput confirms a removal.
type RemoveDocumentOutput struct {
	Removed string `json:"removed"`
}

// ListDocumentsInput is empty; the tool takes no arguments.
type ListDocumentsInput struct{}

// ListDocumentsOutput lists documents.
type ListDocumentsOutput struct {
	Documents []DocumentOutput `json:"documents"`
	Count     int              `json:"count"`
}

var errServiceUnavailable = errors.New("service not configured")

// registerTools adds the tools the configured ports can serve.
func (s *Server) registerTools() {
	addTool(s, &mcp.Tool{
		Name:        "query",
		Description: "Answer a question from the indexed Turkish financial reports, with cited pages",
	}, s.handleQuery)

	if s.ports.Index != nil && !s.ports.ReadOnly {
		addTool(s, &mcp.Tool{
			Name:        "index_file",
			Description: "Extract and index a local PDF or text file",
		}, s.handleIndexFile)
	}

	if s.ports.Document == nil {
		return
	}
	addTool(s, &mcp.Tool{
		Name:        "list_documents",
		Description: "List indexed documents and their processing status",
	}, s.handleListDocuments)

	if !s.ports.ReadOnly {
		addTool(s, &mcp.Tool{
			Name:        "remove_document",
			Description: "Remove a document and its passages from the index",
		}, s.handleRemoveDocument)
	}
}

func (s *Server) handleQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	answer, err := s.ports.Query.Query(ctx, domain.QueryRequest{
		Question:   input.Question,
		DocumentID: input.DocumentID,
		TopK:       input.TopK,
		Language:   input.Language,
	})
	if err != nil {
		return nil, QueryOutput{}, toolError(err)
	}

	output := QueryOutput{
		Answer:     answer.Text,
		Confidence: answer.Confidence,
		Grounded:   answer.Grounded,
		QueryType:  string(answer.QueryType),
		ElapsedMS:  answer.Elapsed.Milliseconds(),
		Sources:    make([]SourceOutput, len(answer.Sources)),
	}
	for i, src := range answer.Sources {
		output.Sources[i] = SourceOutput{
			DocumentID: src.DocumentID,
			Filename:   src.Filename,
			Page:       src.Page,
			Score:      src.Score,
			Snippet:    src.Snippet,
		}
	}

	return nil, output, nil
}

func (s *Server) handleIndexFile(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IndexFileInput,
) (*mcp.CallToolResult, DocumentOutput, error) {
	if s.ports.Index == nil {
		return nil, DocumentOutput{}, errServiceUnavailable
	}
	doc, err := s.ports.Index.IngestFile(ctx, input.Path)
	if err != nil {
		return nil, DocumentOutput{}, toolError(err)
	}
	return nil, documentOutput(doc), nil
}

func (s *Server) handleListDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	if s.ports.Document == nil {
		return nil, ListDocumentsOutput{}, errServiceUnavailable
	}
	docs, err := s.ports.Document.List(ctx)
	if err != nil {
		return nil, ListDocumentsOutput{}, toolError(err)
	}

	output := ListDocumentsOutput{
		Documents: make([]DocumentOutput, len(docs)),
		Count:     len(docs),
	}
	for i := range docs {
		output.Documents[i] = documentOutput(&docs[i])
	}
	return nil, output, nil
}

func (s *Server) handleRemoveDocument(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RemoveDocumentInput,
) (*mcp.CallToolResult, RemoveDocumentOutput, error) {
	if s.ports.Document == nil {
		return nil, RemoveDocumentOutput{}, errServiceUnavailable
	}
	if err := s.ports.Document.Remove(ctx, input.DocumentID); err != nil {
		return nil, RemoveDocumentOutput{}, toolError(err)
	}
	return nil, RemoveDocumentOutput{Removed: input.DocumentID}, nil
}

func documentOutput(doc *domain.Document) DocumentOutput {
	return DocumentOutput{
		ID:         doc.ID,
		Filename:   doc.Filename,
		Status:     string(doc.Status),
		Pages:      doc.PageCount,
		Chunks:     doc.ChunkCount,
		Warning:    doc.Warning,
		Error:      doc.Error,
		UploadedAt: doc.UploadedAt.Format(time.RFC3339),
	}
}

// toolError renders a failure as the JSON error report so clients can
// read the kind and whether a retry makes sense.
func toolError(err error) error {
	return &reportError{report: domain.ReportOf(err), err: err}
}

type reportError struct {
	report domain.ErrorReport
	err    error
}

func (e *reportError) Error() string {
	data, err := json.Marshal(e.report)
	if err != nil {
		return e.err.Error()
	}
	return string(data)
}

func (e *reportError) Unwrap() error { return e.err }
