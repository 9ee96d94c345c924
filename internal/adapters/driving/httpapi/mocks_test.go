package httpapi

import (
	"context"
	"sync"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driving"
)

type mockQueryService struct {
	answer  *domain.Answer
	err     error
	stats   domain.QueryStats
	lastReq domain.QueryRequest
	history []domain.QueryRecord
	limit   int
}

func (m *mockQueryService) Query(_ context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	m.lastReq = req
	return m.answer, m.err
}

func (m *mockQueryService) Stats() domain.QueryStats {
	return m.stats
}

func (m *mockQueryService) History(limit int) []domain.QueryRecord {
	m.limit = limit
	return m.history
}

// mockIndexService records registrations and signals each Process call.
type mockIndexService struct {
	mu          sync.Mutex
	registerErr error
	registered  []string
	processed   chan string
}

func newMockIndexService() *mockIndexService {
	return &mockIndexService{processed: make(chan string, 4)}
}

func (m *mockIndexService) IndexDocument(
	_ context.Context, id string, _ []domain.TextBlock,
) (*driving.IndexResult, error) {
	return &driving.IndexResult{DocumentID: id}, nil
}

func (m *mockIndexService) Register(_ context.Context, filename, path string, size int64) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	m.registered = append(m.registered, path)
	return &domain.Document{
		ID:       "doc-1",
		Filename: filename,
		Path:     path,
		Size:     size,
		Status:   domain.DocumentStatusUploaded,
	}, nil
}

func (m *mockIndexService) Process(_ context.Context, id string) (*domain.Document, error) {
	m.processed <- id
	return &domain.Document{ID: id, Status: domain.DocumentStatusCompleted}, nil
}

func (m *mockIndexService) IngestFile(_ context.Context, path string) (*domain.Document, error) {
	return &domain.Document{ID: "doc-1", Path: path}, nil
}

type mockDocumentService struct {
	documents []domain.Document
	err       error
	removed   []string
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) Get(_ context.Context, id string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.documents {
		if m.documents[i].ID == id {
			return &m.documents[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) Remove(_ context.Context, id string) error {
	if m.err != nil {
		return m.err
	}
	m.removed = append(m.removed, id)
	return nil
}
