// Package ask provides the question and answer view for the TUI.
package ask

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/components/input"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/components/list"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driving"
)

// View is the ask view: question input, answer text, sources and status bar.
type View struct {
	styles    *styles.Styles
	keymap    *keymap.KeyMap
	input     *input.QuestionInput
	sources   *list.SourceList
	statusbar *status.Bar

	queryService driving.QueryService
	ctx          context.Context

	// scopeID restricts questions to one document when set.
	scopeID string

	question   string
	answer     *domain.Answer
	width      int
	height     int
	ready      bool
	err        error
	pending    bool
	focusInput bool
}

// NewView creates a new ask view.
func NewView(s *styles.Styles, km *keymap.KeyMap, queryService driving.QueryService) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	return &View{
		styles:       s,
		keymap:       km,
		input:        input.NewQuestionInput(s),
		sources:      list.NewSourceList(s),
		statusbar:    status.NewBar(s, km),
		queryService: queryService,
		ctx:          context.Background(),
		width:        80,
		height:       24,
		focusInput:   true,
	}
}

// WithContext sets the context queries run under.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	return v.input.Init()
}

// Update handles messages for the ask view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.AnswerReceived:
		v.handleAnswer(msg)
		return v, nil

	case messages.ScopeSelected:
		v.SetScope(msg.DocumentID, msg.Filename)
		return v, nil

	case messages.ErrorOccurred:
		v.pending = false
		v.err = msg.Err
		v.statusbar.Failed(msg.Err.Error())
		return v, nil
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	if msg.Type == tea.KeyEsc {
		return v, func() tea.Msg {
			return messages.ViewChanged{View: messages.ViewMenu}
		}
	}

	if v.focusInput {
		if msg.Type == tea.KeyEnter {
			return v, v.submit()
		}
		var cmd tea.Cmd
		v.input, cmd = v.input.Update(msg)
		return v, cmd
	}

	switch {
	case keymap.Matches(msg.String(), v.keymap.Up):
		v.sources.MoveUp()
	case keymap.Matches(msg.String(), v.keymap.Down):
		v.sources.MoveDown()
	case keymap.Matches(msg.String(), v.keymap.NewQuestion):
		v.focusInput = true
		v.input.SetValue("")
		return v, v.input.Focus()
	case keymap.Matches(msg.String(), v.keymap.ClearScope):
		v.SetScope("", "")
	}
	return v, nil
}

// submit starts a query for the typed question. Blank questions and
// submissions while a query is in flight are ignored.
func (v *View) submit() tea.Cmd {
	question := strings.TrimSpace(v.input.Value())
	if question == "" || v.pending {
		return nil
	}

	v.pending = true
	v.question = question
	v.err = nil
	v.focusInput = false
	v.input.Blur()
	v.statusbar.Asking()
	return v.performQuery(question, v.scopeID)
}

func (v *View) performQuery(question, documentID string) tea.Cmd {
	svc := v.queryService
	ctx := v.ctx
	return func() tea.Msg {
		if svc == nil {
			return messages.ErrorOccurred{Err: ErrNoQueryService}
		}
		answer, err := svc.Query(ctx, domain.QueryRequest{
			Question:   question,
			DocumentID: documentID,
		})
		return messages.AnswerReceived{Question: question, Answer: answer, Err: err}
	}
}

func (v *View) handleAnswer(msg messages.AnswerReceived) {
	v.pending = false
	if msg.Err == nil && msg.Answer == nil {
		v.statusbar.Clear()
		return
	}

	if msg.Err != nil {
		report := domain.ReportOf(msg.Err)
		v.err = msg.Err
		v.answer = nil
		v.sources.SetSources(nil)
		v.statusbar.Failed(string(report.Kind))
		return
	}

	v.err = nil
	v.answer = msg.Answer
	v.sources.SetSources(msg.Answer.Sources)
	outcome := status.Outcome{
		Sources:    len(msg.Answer.Sources),
		Confidence: msg.Answer.Confidence,
		Elapsed:    msg.Answer.Elapsed,
	}
	if msg.Answer.NoSources {
		outcome.Note = "no matching passages"
	}
	v.statusbar.Answered(outcome)
}

// View renders the ask view.
func (v *View) View() string {
	if !v.ready {
		return "Initialising..."
	}

	sections := make([]string, 0, 12)
	sections = append(sections, v.styles.Title.Render("finrag"), "", v.input.View(), "")

	if v.err != nil {
		report := domain.ReportOf(v.err)
		line := "Error: " + report.Message
		if report.Retryable {
			line += " - try again"
		}
		sections = append(sections, v.styles.Error.Render(line), "")
	}

	if v.pending {
		sections = append(sections, v.styles.Muted.Render("Asking: "+v.question), "")
	}

	if v.answer != nil {
		sections = append(sections, v.renderAnswer(), "", v.sources.View())
	}

	sections = append(sections, "", v.statusbar.View())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (v *View) renderAnswer() string {
	width := v.width - 4
	if width < 20 {
		width = 20
	}
	header := v.styles.Subtitle.Render(v.answer.Question) + "  " + v.styles.ConfidenceBadge(v.answer.Confidence)
	body := v.styles.Answer.Width(width).Render(v.answer.Text)
	return header + "\n" + body
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true

	v.input.SetWidth(width)
	// Half the height goes to the answer, the rest to sources.
	v.sources.SetDimensions(width, (height-8)/2)
	v.statusbar.SetWidth(width)
}

// SetScope restricts questions to one document. An empty id clears it.
func (v *View) SetScope(documentID, filename string) {
	v.scopeID = documentID
	if documentID == "" {
		v.input.SetScope("")
	} else if filename != "" {
		v.input.SetScope(filename)
	} else {
		v.input.SetScope(documentID)
	}
	v.input.SetWidth(v.width)
}

// Scope returns the document questions are restricted to, if any.
func (v *View) Scope() string {
	return v.scopeID
}

// Width returns the current width.
func (v *View) Width() int {
	return v.width
}

// Height returns the current height.
func (v *View) Height() int {
	return v.height
}

// Ready returns whether the view is ready to render.
func (v *View) Ready() bool {
	return v.ready
}

// Question returns the text in the question input.
func (v *View) Question() string {
	return v.input.Value()
}

// SetQuestion sets the text in the question input.
func (v *View) SetQuestion(q string) {
	v.input.SetValue(q)
}

// Answer returns the last answer, or nil.
func (v *View) Answer() *domain.Answer {
	return v.answer
}

// SelectedSource returns the highlighted citation, or nil.
func (v *View) SelectedSource() *domain.Source {
	return v.sources.SelectedSource()
}

// Pending reports whether a query is in flight.
func (v *View) Pending() bool {
	return v.pending
}

// Err returns the current error, if any.
func (v *View) Err() error {
	return v.err
}

// Reset returns the view to input mode and clears the last answer.
// The document scope is kept.
func (v *View) Reset() {
	v.focusInput = true
	v.input.Focus()
	v.input.SetValue("")
	v.sources.SetSources(nil)
	v.answer = nil
	v.question = ""
	v.err = nil
	v.pending = false
	v.statusbar.Clear()
}

// InputFocused returns whether the input has focus.
func (v *View) InputFocused() bool {
	return v.focusInput
}
