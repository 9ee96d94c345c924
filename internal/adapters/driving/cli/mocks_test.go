package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driving"
)

// mockQueryService implements driving.QueryService for testing.
type mockQueryService struct {
	QueryFunc func(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error)
	requests  []domain.QueryRequest
	stats     domain.QueryStats
	history   []domain.QueryRecord
	limit     int
}

func (m *mockQueryService) Query(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	m.requests = append(m.requests, req)
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, req)
	}
	return &domain.Answer{
		Question:   req.Question,
		Text:       "Enflasyon beklentisi yüzde 38 olarak açıklanmıştır.",
		Confidence: 0.82,
		Grounded:   true,
		QueryType:  domain.QueryTypeStatistical,
		Elapsed:    1200 * time.Millisecond,
		Sources: []domain.Source{
			{DocumentID: "doc-1", Filename: "enflasyon-raporu.pdf", ChunkID: "doc-1_3", Page: 12, Score: 0.873},
		},
	}, nil
}

func (m *mockQueryService) Stats() domain.QueryStats {
	return m.stats
}

func (m *mockQueryService) History(limit int) []domain.QueryRecord {
	m.limit = limit
	return m.history
}

// mockIndexService implements driving.IndexService for testing.
type mockIndexService struct {
	IngestFunc func(ctx context.Context, path string) (*domain.Document, error)
	ingested   []string
}

func (m *mockIndexService) IndexDocument(
	_ context.Context, documentID string, blocks []domain.TextBlock,
) (*driving.IndexResult, error) {
	return &driving.IndexResult{DocumentID: documentID, Chunks: len(blocks)}, nil
}

func (m *mockIndexService) Register(_ context.Context, filename, path string, size int64) (*domain.Document, error) {
	return &domain.Document{ID: "doc-new", Filename: filename, Path: path, Size: size, Status: domain.DocumentStatusUploaded}, nil
}

func (m *mockIndexService) Process(_ context.Context, documentID string) (*domain.Document, error) {
	return &domain.Document{ID: documentID, Status: domain.DocumentStatusCompleted}, nil
}

func (m *mockIndexService) IngestFile(ctx context.Context, path string) (*domain.Document, error) {
	m.ingested = append(m.ingested, path)
	if m.IngestFunc != nil {
		return m.IngestFunc(ctx, path)
	}
	return &domain.Document{
		ID:         "doc-" + strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Filename:   filepath.Base(path),
		Path:       path,
		Status:     domain.DocumentStatusCompleted,
		PageCount:  4,
		ChunkCount: 17,
	}, nil
}

// mockDocumentService implements driving.DocumentService for testing.
type mockDocumentService struct {
	docs      []domain.Document
	removeErr error
	removed   []string
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.Document, error) {
	return m.docs, nil
}

func (m *mockDocumentService) Get(_ context.Context, documentID string) (*domain.Document, error) {
	for i := range m.docs {
		if m.docs[i].ID == documentID {
			return &m.docs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) Remove(_ context.Context, documentID string) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removed = append(m.removed, documentID)
	return nil
}

func testDocuments() []domain.Document {
	uploaded := time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC)
	return []domain.Document{
		{
			ID: "doc-1", Filename: "enflasyon-raporu.pdf", Path: "/data/uploads/doc-1.pdf", Size: 482113,
			Status: domain.DocumentStatusCompleted, PageCount: 42, ChunkCount: 180, UploadedAt: uploaded,
		},
		{
			ID: "doc-2", Filename: "taranmis.pdf", Size: 91022,
			Status: domain.DocumentStatusCompleted, PageCount: 3, Warning: "extraction_empty", UploadedAt: uploaded,
		},
	}
}

// testServices holds the mocks installed by setupTestServices.
type testServices struct {
	query    *mockQueryService
	index    *mockIndexService
	document *mockDocumentService
}

// setupTestServices installs mock services and returns the mocks and a
// cleanup func restoring the previous ones.
func setupTestServices() (*testServices, func()) {
	oldQuery, oldIndex, oldDocument, oldSettings := queryService, indexService, documentService, settingsService
	oldSupports, oldUploadDir := supportsFile, uploadDir

	ts := &testServices{
		query:    &mockQueryService{},
		index:    &mockIndexService{},
		document: &mockDocumentService{docs: testDocuments()},
	}
	SetServices(Services{
		Query:    ts.query,
		Index:    ts.index,
		Document: ts.document,
		Supports: func(name string) bool {
			ext := strings.ToLower(filepath.Ext(name))
			return ext == ".pdf" || ext == ".txt"
		},
	})

	return ts, func() {
		queryService, indexService, documentService, settingsService = oldQuery, oldIndex, oldDocument, oldSettings
		supportsFile, uploadDir = oldSupports, oldUploadDir
	}
}

// execute runs the root command with args and returns everything it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}
