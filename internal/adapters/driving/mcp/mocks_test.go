package mcp

import (
	"context"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driving"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	answer  *domain.Answer
	err     error
	stats   domain.QueryStats
	lastReq domain.QueryRequest
}

func (m *mockQueryService) Query(_ context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	m.lastReq = req
	return m.answer, m.err
}

func (m *mockQueryService) Stats() domain.QueryStats {
	return m.stats
}

func (m *mockQueryService) History(int) []domain.QueryRecord {
	return nil
}

// mockIndexService is a mock implementation of driving.IndexService.
type mockIndexService struct {
	document *domain.Document
	err      error
	paths    []string
}

func (m *mockIndexService) IndexDocument(
	_ context.Context, id string, _ []domain.TextBlock,
) (*driving.IndexResult, error) {
	return &driving.IndexResult{DocumentID: id}, m.err
}

func (m *mockIndexService) Register(_ context.Context, _, _ string, _ int64) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockIndexService) Process(_ context.Context, _ string) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockIndexService) IngestFile(_ context.Context, path string) (*domain.Document, error) {
	m.paths = append(m.paths, path)
	return m.document, m.err
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	documents []domain.Document
	document  *domain.Document
	err       error
	removed   []string
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) Get(_ context.Context, _ string) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockDocumentService) Remove(_ context.Context, id string) error {
	if m.err == nil {
		m.removed = append(m.removed, id)
	}
	return m.err
}
