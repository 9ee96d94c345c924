// Package messages holds the tea.Msg values passed between the TUI views
// and the App.
package messages

import "github.com/custodia-labs/finrag/internal/core/domain"

// ViewType selects the screen the App renders. The zero value is the menu.
type ViewType int

const (
	ViewMenu ViewType = iota
	ViewAsk
	ViewDocuments
	ViewSettings
	ViewHelp
)

var viewNames = [...]string{"menu", "ask", "documents", "settings", "help"}

func (v ViewType) String() string {
	if v < 0 || int(v) >= len(viewNames) {
		return "unknown"
	}
	return viewNames[v]
}

// ViewChanged asks the App to switch screens.
type ViewChanged struct{ View ViewType }

// AnswerReceived is the result of one question. Exactly one of Answer and
// Err is set.
type AnswerReceived struct {
	Question string
	Answer   *domain.Answer
	Err      error
}

// DocumentsLoaded carries the document list for the documents view.
type DocumentsLoaded struct {
	Documents []domain.Document
	Err       error
}

// DocumentRemoved reports the outcome of removing a report and its chunks.
type DocumentRemoved struct {
	DocumentID string
	Err        error
}

// ScopeSelected limits later questions to one report. An empty DocumentID
// searches every report again.
type ScopeSelected struct {
	DocumentID string
	Filename   string
}

type SettingsLoaded struct {
	Settings *domain.AppSettings
	Err      error
}

type SettingsSaved struct{ Err error }

// ErrorOccurred is shown by whichever view is active.
type ErrorOccurred struct{ Err error }

type Quit struct{}
