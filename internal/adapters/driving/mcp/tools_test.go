package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

func TestServer_handleQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("returns answer with sources", func(t *testing.T) {
		mockQuery := &mockQueryService{
			answer: &domain.Answer{
				Text:       "Enflasyon yüzde 45 oldu.",
				Confidence: 0.82,
				Grounded:   true,
				QueryType:  domain.QueryTypeStatistical,
				Elapsed:    1500 * time.Millisecond,
				Sources: []domain.Source{
					{DocumentID: "doc-1", Filename: "rapor.pdf", Page: 4, Score: 0.91, Snippet: "TÜFE yıllık"},
				},
			},
		}
		server, err := NewServer(&Ports{Query: mockQuery})
		require.NoError(t, err)

		_, output, err := server.handleQuery(ctx, nil, QueryInput{Question: "Enflasyon kaç?", TopK: 3, Language: "tr"})
		require.NoError(t, err)
		assert.Equal(t, "Enflasyon yüzde 45 oldu.", output.Answer)
		assert.Equal(t, "statistical", output.QueryType)
		assert.Equal(t, int64(1500), output.ElapsedMS)
		require.Len(t, output.Sources, 1)
		assert.Equal(t, 4, output.Sources[0].Page)
		assert.Equal(t, "rapor.pdf", output.Sources[0].Filename)
		assert.Equal(t, 3, mockQuery.lastReq.TopK)
	})

	t.Run("reports pipeline errors as JSON", func(t *testing.T) {
		mockQuery := &mockQueryService{err: &domain.PipelineError{
			Kind:      domain.KindCompletionUnavailable,
			Stage:     domain.StageCompleting,
			Attempts:  3,
			Retryable: true,
		}}
		server, err := NewServer(&Ports{Query: mockQuery})
		require.NoError(t, err)

		_, _, err = server.handleQuery(ctx, nil, QueryInput{Question: "soru"})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrCompletionUnavailable)

		var report domain.ErrorReport
		require.NoError(t, json.Unmarshal([]byte(err.Error()), &report))
		assert.Equal(t, domain.KindCompletionUnavailable, report.Kind)
		assert.Equal(t, 3, report.Attempts)
		assert.True(t, report.Retryable)
	})
}

func TestServer_handleIndexFile(t *testing.T) {
	ctx := context.Background()
	index := &mockIndexService{document: &domain.Document{
		ID: "doc-1", Filename: "rapor.pdf", Status: domain.DocumentStatusCompleted, ChunkCount: 12,
	}}
	server, err := NewServer(&Ports{Query: &mockQueryService{}, Index: index})
	require.NoError(t, err)

	_, output, err := server.handleIndexFile(ctx, nil, IndexFileInput{Path: "/data/rapor.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "doc-1", output.ID)
	assert.Equal(t, "completed", output.Status)
	assert.Equal(t, 12, output.Chunks)
	assert.Equal(t, []string{"/data/rapor.pdf"}, index.paths)
}

func TestServer_handleIndexFile_NotConfigured(t *testing.T) {
	server, err := NewServer(&Ports{Query: &mockQueryService{}})
	require.NoError(t, err)

	_, _, err = server.handleIndexFile(context.Background(), nil, IndexFileInput{Path: "/x.pdf"})
	assert.ErrorIs(t, err, errServiceUnavailable)
}

func TestServer_handleListDocuments(t *testing.T) {
	docs := &mockDocumentService{documents: []domain.Document{
		{ID: "doc-1", Filename: "a.pdf", Status: domain.DocumentStatusCompleted},
		{ID: "doc-2", Filename: "b.pdf", Status: domain.DocumentStatusFailed, Error: "bozuk"},
	}}
	server, err := NewServer(&Ports{Query: &mockQueryService{}, Document: docs})
	require.NoError(t, err)

	_, output, err := server.handleListDocuments(context.Background(), nil, ListDocumentsInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, output.Count)
	assert.Equal(t, "bozuk", output.Documents[1].Error)
}

func TestServer_handleRemoveDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("removes", func(t *testing.T) {
		docs := &mockDocumentService{}
		server, err := NewServer(&Ports{Query: &mockQueryService{}, Document: docs})
		require.NoError(t, err)

		_, output, err := server.handleRemoveDocument(ctx, nil, RemoveDocumentInput{DocumentID: "doc-1"})
		require.NoError(t, err)
		assert.Equal(t, "doc-1", output.Removed)
		assert.Equal(t, []string{"doc-1"}, docs.removed)
	})

	t.Run("in progress", func(t *testing.T) {
		docs := &mockDocumentService{err: domain.ErrIndexingInProgress}
		server, err := NewServer(&Ports{Query: &mockQueryService{}, Document: docs})
		require.NoError(t, err)

		_, _, err = server.handleRemoveDocument(ctx, nil, RemoveDocumentInput{DocumentID: "doc-1"})
		assert.ErrorIs(t, err, domain.ErrIndexingInProgress)
		assert.Contains(t, err.Error(), `"kind":"in_progress"`)
	})
}
