package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/views/ask"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/views/documents"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/views/menu"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/views/settings"
	"github.com/custodia-labs/finrag/internal/core/domain"
)

var _ tea.Model = (*App)(nil)

// App is the root bubbletea model. It owns one model per screen and routes
// messages to the screen they belong to.
type App struct {
	ports  *Ports
	ctx    context.Context
	styles *styles.Styles
	keymap *keymap.KeyMap

	menuView      *menu.View
	askView       *ask.View
	documentsView *documents.View
	settingsView  *settings.View

	currentView messages.ViewType
	err         error

	width, height int
	ready         bool
}

// NewApp returns an App on the menu screen.
func NewApp(ports *Ports) (*App, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("creating app: %w", err)
	}
	st, km := styles.DefaultStyles(), keymap.DefaultKeyMap()
	return &App{
		ports:         ports,
		ctx:           context.Background(),
		styles:        st,
		keymap:        km,
		menuView:      menu.NewView(st, km),
		askView:       ask.NewView(st, km, ports.Query),
		documentsView: documents.NewView(st, km, ports.Document),
		settingsView:  settings.NewView(st, ports.Settings),
		currentView:   messages.ViewMenu,
	}, nil
}

// WithContext sets the context queries and document calls run under.
func (a *App) WithContext(ctx context.Context) *App {
	a.ctx = ctx
	a.askView.WithContext(ctx)
	a.documentsView.WithContext(ctx)
	return a
}

// Scope opens the ask screen with questions limited to one document.
func (a *App) Scope(documentID, filename string) {
	a.Update(messages.ScopeSelected{DocumentID: documentID, Filename: filename})
}

func (a *App) Init() tea.Cmd {
	a.showIndexSize()
	return tea.Batch(tea.EnterAltScreen, tea.SetWindowTitle("finrag"))
}

func (a *App) showIndexSize() {
	st := a.ports.Query.Stats()
	a.menuView.SetSummary(fmt.Sprintf("%d documents, %d chunks indexed", st.IndexedDocuments, st.IndexedChunks))
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.SetDimensions(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.currentView == messages.ViewHelp {
			if keymap.Matches(msg.String(), a.keymap.Back) {
				a.currentView = messages.ViewMenu
			}
			return a, nil
		}

	case messages.ViewChanged:
		return a, a.open(msg.View)

	case messages.AnswerReceived:
		cmd := a.deliver(messages.ViewAsk, msg)
		a.err = a.askView.Err()
		return a, cmd

	case messages.ScopeSelected:
		a.deliver(messages.ViewAsk, msg)
		a.askView.Reset()
		a.currentView = messages.ViewAsk
		return a, a.askView.Init()

	case messages.DocumentsLoaded:
		return a, a.deliver(messages.ViewDocuments, msg)

	case messages.DocumentRemoved:
		cmd := a.deliver(messages.ViewDocuments, msg)
		if msg.Err == nil {
			if a.askView.Scope() == msg.DocumentID {
				a.askView.SetScope("", "")
			}
			a.showIndexSize()
		}
		return a, cmd

	case messages.SettingsLoaded, messages.SettingsSaved:
		return a, a.deliver(messages.ViewSettings, msg)

	case messages.ErrorOccurred:
		a.err = msg.Err
		if a.currentView == messages.ViewAsk || a.currentView == messages.ViewDocuments {
			return a, a.deliver(a.currentView, msg)
		}
		return a, nil

	case messages.Quit:
		return a, tea.Quit
	}

	// Keys and ticks such as cursor blinks go to the visible screen.
	return a, a.deliver(a.currentView, msg)
}

// deliver hands msg to the model behind view.
func (a *App) deliver(view messages.ViewType, msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch view {
	case messages.ViewMenu:
		a.menuView, cmd = a.menuView.Update(msg)
	case messages.ViewAsk:
		a.askView, cmd = a.askView.Update(msg)
	case messages.ViewDocuments:
		a.documentsView, cmd = a.documentsView.Update(msg)
	case messages.ViewSettings:
		a.settingsView, cmd = a.settingsView.Update(msg)
	case messages.ViewHelp:
	}
	return cmd
}

// open makes view visible and returns its load command.
func (a *App) open(view messages.ViewType) tea.Cmd {
	a.currentView = view
	switch view {
	case messages.ViewAsk:
		a.askView.Reset()
		return a.askView.Init()
	case messages.ViewDocuments:
		return a.documentsView.Init()
	case messages.ViewSettings:
		a.settingsView.Reset()
		return a.settingsView.Init()
	case messages.ViewMenu:
		a.showIndexSize()
	case messages.ViewHelp:
	}
	return nil
}

func (a *App) View() string {
	if !a.ready {
		return "Initialising..."
	}
	switch a.currentView {
	case messages.ViewAsk:
		return a.askView.View()
	case messages.ViewDocuments:
		return a.documentsView.View()
	case messages.ViewSettings:
		return a.settingsView.View()
	case messages.ViewHelp:
		return a.helpScreen()
	case messages.ViewMenu:
	}
	return a.menuView.View()
}

const helpFooter = "Answers cite the report file and page for each passage used.\n" +
	"Questions about a single report: pick it under Documents and press s."

func (a *App) helpScreen() string {
	lines := []string{a.styles.Title.Render("Help"), ""}
	for _, group := range a.keymap.FullHelp() {
		for _, b := range group {
			lines = append(lines, fmt.Sprintf("  %-10s %s", b.Help().Key, b.Help().Desc))
		}
		lines = append(lines, "")
	}
	lines = append(lines,
		a.styles.Muted.Render(helpFooter),
		"",
		a.styles.Help.Render("[esc] back to menu"))
	return strings.Join(lines, "\n")
}

// Run blocks until the user quits or the context ends.
func (a *App) Run() error {
	_, err := tea.NewProgram(a, tea.WithAltScreen(), tea.WithContext(a.ctx)).Run()
	return err
}

// Answer is the answer currently on the ask screen.
func (a *App) Answer() *domain.Answer { return a.askView.Answer() }

func (a *App) CurrentView() messages.ViewType { return a.currentView }

// Err is the last error any screen reported.
func (a *App) Err() error { return a.err }

// Ready reports whether the terminal size is known.
func (a *App) Ready() bool { return a.ready }

func (a *App) SetDimensions(width, height int) {
	a.width, a.height = width, height
	a.ready = true
	a.menuView.SetDimensions(width, height)
	a.askView.SetDimensions(width, height)
	a.documentsView.SetDimensions(width, height)
	a.settingsView.SetDimensions(width, height)
}
