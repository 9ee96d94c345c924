package ask

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/finrag/internal/core/domain"
)

// MockQueryService implements driving.QueryService for testing.
type MockQueryService struct {
	QueryFunc func(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error)
	requests  []domain.QueryRequest
}

func (m *MockQueryService) Query(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	m.requests = append(m.requests, req)
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, req)
	}
	return testAnswer(req.Question), nil
}

func (m *MockQueryService) Stats() domain.QueryStats {
	return domain.QueryStats{}
}

func (m *MockQueryService) History(int) []domain.QueryRecord {
	return nil
}

func testAnswer(question string) *domain.Answer {
	return &domain.Answer{
		Question:   question,
		Text:       "Yıllık enflasyon %44,38 olarak gerçekleşmiştir.",
		Confidence: 0.86,
		Grounded:   true,
		Sources: []domain.Source{
			{DocumentID: "doc-1", Filename: "enflasyon.pdf", Page: 3, Score: 0.91, Snippet: "Yıllık enflasyon"},
			{DocumentID: "doc-1", Filename: "enflasyon.pdf", Page: 5, Score: 0.80, Snippet: "Çekirdek göstergeler"},
		},
		Elapsed: 1200 * time.Millisecond,
	}
}

func newReadyView(svc *MockQueryService) *View {
	v := NewView(styles.DefaultStyles(), keymap.DefaultKeyMap(), svc)
	v.SetDimensions(120, 40)
	return v
}

func typeText(v *View, text string) *View {
	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return v
}

// ask types a question, presses enter and feeds the command result back.
func ask(t *testing.T, v *View, question string) *View {
	t.Helper()
	v = typeText(v, question)
	v, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	v, _ = v.Update(cmd())
	return v
}

func TestNewView(t *testing.T) {
	view := NewView(nil, nil, nil)

	require.NotNil(t, view)
	assert.NotNil(t, view.styles)
	assert.NotNil(t, view.keymap)
	assert.False(t, view.Ready())
	assert.True(t, view.InputFocused())
	assert.NotNil(t, view.Init())
	assert.Equal(t, "Initialising...", view.View())
}

func TestView_WithContext(t *testing.T) {
	view := NewView(nil, nil, nil)
	type contextKey string
	ctx := context.WithValue(context.Background(), contextKey("key"), "value")

	assert.Equal(t, view, view.WithContext(ctx))
	assert.Equal(t, ctx, view.ctx)
}

func TestView_WindowSize(t *testing.T) {
	view := NewView(nil, nil, nil)

	view, cmd := view.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	assert.Nil(t, cmd)
	assert.True(t, view.Ready())
	assert.Equal(t, 100, view.Width())
	assert.Equal(t, 30, view.Height())
}

func TestView_AskShowsAnswerAndSources(t *testing.T) {
	svc := &MockQueryService{}
	view := newReadyView(svc)

	view = ask(t, view, "2024 enflasyon beklentisi nedir?")

	require.NotNil(t, view.Answer())
	assert.False(t, view.Pending())
	assert.False(t, view.InputFocused())
	require.Len(t, svc.requests, 1)
	assert.Equal(t, "2024 enflasyon beklentisi nedir?", svc.requests[0].Question)
	assert.Empty(t, svc.requests[0].DocumentID)

	out := view.View()
	assert.Contains(t, out, "%44,38")
	assert.Contains(t, out, "[1] enflasyon.pdf, page 3")
	assert.Contains(t, out, "86%")
	assert.Contains(t, out, "Güven: 0.86")
	assert.Contains(t, out, "2 sources")
}

func TestView_BlankQuestionIgnored(t *testing.T) {
	svc := &MockQueryService{}
	view := newReadyView(svc)

	view = typeText(view, "   ")
	view, cmd := view.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.True(t, view.InputFocused())
	assert.Empty(t, svc.requests)
}

func TestView_SubmitWhilePendingIgnored(t *testing.T) {
	view := newReadyView(&MockQueryService{})

	view = typeText(view, "soru")
	view, first := view.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, first)
	assert.True(t, view.Pending())
	assert.Contains(t, view.View(), "Asking: soru")

	view.focusInput = true
	_, second := view.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, second)
}

func TestView_QueryError(t *testing.T) {
	svc := &MockQueryService{
		QueryFunc: func(context.Context, domain.QueryRequest) (*domain.Answer, error) {
			return nil, &domain.PipelineError{
				Kind:      domain.KindCompletionUnavailable,
				Stage:     domain.StageCompleting,
				Message:   "model returned 503",
				Retryable: true,
				Attempts:  3,
			}
		},
	}
	view := newReadyView(svc)

	view = ask(t, view, "bütçe açığı?")

	require.Error(t, view.Err())
	assert.Nil(t, view.Answer())
	out := view.View()
	assert.Contains(t, out, "model returned 503")
	assert.Contains(t, out, "try again")
	assert.Contains(t, out, "completion_unavailable")
}

func TestView_NoSourcesAnswer(t *testing.T) {
	svc := &MockQueryService{
		QueryFunc: func(_ context.Context, req domain.QueryRequest) (*domain.Answer, error) {
			return &domain.Answer{Question: req.Question, Text: "Bilgi bulunamadı.", Confidence: 0.3, NoSources: true}, nil
		},
	}
	view := newReadyView(svc)

	view = ask(t, view, "altın rezervleri?")

	out := view.View()
	assert.Contains(t, out, "No sources")
	assert.Contains(t, out, "no matching passages")
}

func TestView_NilQueryService(t *testing.T) {
	view := NewView(nil, nil, nil)
	view.SetDimensions(120, 40)

	view = typeText(view, "soru")
	view, cmd := view.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	msg := cmd()
	errMsg, ok := msg.(messages.ErrorOccurred)
	require.True(t, ok)
	assert.ErrorIs(t, errMsg.Err, ErrNoQueryService)

	view, _ = view.Update(msg)
	assert.False(t, view.Pending())
	assert.Equal(t, ErrNoQueryService, view.Err())
}

func TestView_ScopeRestrictsQuery(t *testing.T) {
	svc := &MockQueryService{}
	view := newReadyView(svc)

	view, _ = view.Update(messages.ScopeSelected{DocumentID: "doc-7", Filename: "butce.pdf"})
	assert.Equal(t, "doc-7", view.Scope())
	assert.Contains(t, view.View(), "butce.pdf")

	view = ask(t, view, "gelirler?")
	require.Len(t, svc.requests, 1)
	assert.Equal(t, "doc-7", svc.requests[0].DocumentID)

	// x lifts the restriction once an answer is shown.
	view, _ = view.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	assert.Empty(t, view.Scope())
}

func TestView_SourceNavigationAndNewQuestion(t *testing.T) {
	view := newReadyView(&MockQueryService{})
	view = ask(t, view, "soru")

	view, _ = view.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	require.NotNil(t, view.SelectedSource())
	assert.Equal(t, 5, view.SelectedSource().Page)

	view, _ = view.Update(tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 3, view.SelectedSource().Page)

	view, cmd := view.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})
	assert.NotNil(t, cmd)
	assert.True(t, view.InputFocused())
	assert.Equal(t, "", view.Question())
	// The previous answer stays visible until the next one arrives.
	assert.NotNil(t, view.Answer())
}

func TestView_EscGoesToMenu(t *testing.T) {
	view := newReadyView(&MockQueryService{})

	_, cmd := view.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)

	assert.Equal(t, messages.ViewChanged{View: messages.ViewMenu}, cmd())
}

func TestView_Reset(t *testing.T) {
	view := newReadyView(&MockQueryService{})
	view.SetScope("doc-1", "")
	view = ask(t, view, "soru")

	view.Reset()

	assert.True(t, view.InputFocused())
	assert.Nil(t, view.Answer())
	assert.Nil(t, view.Err())
	assert.Equal(t, "", view.Question())
	assert.Equal(t, "doc-1", view.Scope())
}
