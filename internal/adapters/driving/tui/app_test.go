package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/finrag/internal/core/domain"
)

// MockQueryService implements driving.QueryService for testing.
type MockQueryService struct {
	QueryFunc func(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error)
	stats     domain.QueryStats
}

func (m *MockQueryService) Query(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, req)
	}
	return &domain.Answer{Question: req.Question, Text: "Yanıt.", Confidence: 0.7}, nil
}

func (m *MockQueryService) Stats() domain.QueryStats {
	return m.stats
}

func (m *MockQueryService) History(int) []domain.QueryRecord {
	return nil
}

// MockDocumentService implements driving.DocumentService for testing.
type MockDocumentService struct {
	docs []domain.Document
}

func (m *MockDocumentService) List(_ context.Context) ([]domain.Document, error) {
	return m.docs, nil
}

func (m *MockDocumentService) Get(_ context.Context, documentID string) (*domain.Document, error) {
	for i := range m.docs {
		if m.docs[i].ID == documentID {
			return &m.docs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockDocumentService) Remove(_ context.Context, _ string) error {
	return nil
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	app, err := NewApp(&Ports{
		Query: &MockQueryService{stats: domain.QueryStats{IndexedDocuments: 2, IndexedChunks: 95}},
		Document: &MockDocumentService{docs: []domain.Document{
			{ID: "doc-1", Filename: "enflasyon-raporu.pdf", Status: domain.DocumentStatusCompleted},
		}},
	})
	require.NoError(t, err)
	app.SetDimensions(120, 40)
	return app
}

func update(t *testing.T, app *App, msg tea.Msg) tea.Cmd {
	t.Helper()
	model, cmd := app.Update(msg)
	require.Same(t, app, model)
	return cmd
}

func TestNewApp(t *testing.T) {
	app, err := NewApp(&Ports{Query: &MockQueryService{}})

	require.NoError(t, err)
	assert.Equal(t, messages.ViewMenu, app.CurrentView())
	assert.False(t, app.Ready())
	assert.Equal(t, "Initialising...", app.View())
}

func TestNewApp_InvalidPorts(t *testing.T) {
	_, err := NewApp(nil)
	assert.ErrorIs(t, err, ErrInvalidPorts)

	_, err = NewApp(&Ports{})
	assert.ErrorIs(t, err, ErrMissingQueryService)
}

func TestApp_InitShowsIndexSummary(t *testing.T) {
	app := newTestApp(t)

	assert.NotNil(t, app.Init())
	assert.Contains(t, app.View(), "2 documents, 95 chunks indexed")
}

func TestApp_WindowSize(t *testing.T) {
	app, err := NewApp(&Ports{Query: &MockQueryService{}})
	require.NoError(t, err)

	cmd := update(t, app, tea.WindowSizeMsg{Width: 90, Height: 30})

	assert.Nil(t, cmd)
	assert.True(t, app.Ready())
	assert.Equal(t, 90, app.width)
}

func TestApp_CtrlCQuits(t *testing.T) {
	app := newTestApp(t)

	cmd := update(t, app, tea.KeyMsg{Type: tea.KeyCtrlC})

	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestApp_ViewChanged(t *testing.T) {
	tests := []struct {
		view messages.ViewType
		want string
	}{
		{messages.ViewAsk, "Ask"},
		{messages.ViewHelp, "Help"},
		{messages.ViewSettings, "Settings"},
	}

	for _, tt := range tests {
		t.Run(tt.view.String(), func(t *testing.T) {
			app := newTestApp(t)

			update(t, app, messages.ViewChanged{View: tt.view})

			assert.Equal(t, tt.view, app.CurrentView())
			assert.Contains(t, app.View(), tt.want)
		})
	}
}

func TestApp_DocumentsViewLoads(t *testing.T) {
	app := newTestApp(t)

	cmd := update(t, app, messages.ViewChanged{View: messages.ViewDocuments})
	require.NotNil(t, cmd)
	update(t, app, cmd())

	assert.Equal(t, messages.ViewDocuments, app.CurrentView())
	assert.Contains(t, app.View(), "enflasyon-raporu.pdf")
}

func TestApp_AskRoundTrip(t *testing.T) {
	app := newTestApp(t)
	update(t, app, messages.ViewChanged{View: messages.ViewAsk})

	for _, r := range "Enflasyon ne?" {
		update(t, app, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	cmd := update(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	msg := cmd()
	received, ok := msg.(messages.AnswerReceived)
	require.True(t, ok)
	assert.Equal(t, "Enflasyon ne?", received.Question)

	update(t, app, msg)

	require.NotNil(t, app.Answer())
	assert.Equal(t, "Yanıt.", app.Answer().Text)
	assert.NoError(t, app.Err())
}

func TestApp_ScopeSelectedOpensAsk(t *testing.T) {
	app := newTestApp(t)
	update(t, app, messages.ViewChanged{View: messages.ViewDocuments})

	update(t, app, messages.ScopeSelected{DocumentID: "doc-1", Filename: "enflasyon-raporu.pdf"})

	assert.Equal(t, messages.ViewAsk, app.CurrentView())
	assert.Equal(t, "doc-1", app.askView.Scope())
	assert.Contains(t, app.View(), "enflasyon-raporu.pdf")
}

func TestApp_Scope(t *testing.T) {
	app := newTestApp(t)

	app.Scope("doc-1", "enflasyon-raporu.pdf")

	assert.Equal(t, messages.ViewAsk, app.CurrentView())
	assert.Equal(t, "doc-1", app.askView.Scope())
}

func TestApp_RemovedDocumentClearsScope(t *testing.T) {
	app := newTestApp(t)
	update(t, app, messages.ScopeSelected{DocumentID: "doc-1", Filename: "enflasyon-raporu.pdf"})
	update(t, app, messages.ViewChanged{View: messages.ViewDocuments})

	update(t, app, messages.DocumentRemoved{DocumentID: "doc-1"})

	assert.Empty(t, app.askView.Scope())
}

func TestApp_HelpEscReturnsToMenu(t *testing.T) {
	app := newTestApp(t)
	update(t, app, messages.ViewChanged{View: messages.ViewHelp})

	update(t, app, tea.KeyMsg{Type: tea.KeyEsc})

	assert.Equal(t, messages.ViewMenu, app.CurrentView())
}

func TestApp_ErrorOccurredRecorded(t *testing.T) {
	app := newTestApp(t)
	update(t, app, messages.ViewChanged{View: messages.ViewAsk})

	update(t, app, messages.ErrorOccurred{Err: domain.ErrNotFound})

	assert.ErrorIs(t, app.Err(), domain.ErrNotFound)
}

func TestApp_QuitMessage(t *testing.T) {
	app := newTestApp(t)

	cmd := update(t, app, messages.Quit{})

	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
