// Package menu is the TUI start screen.
package menu

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/styles"
)

// Item is one menu entry. An item with Quit set exits instead of switching views.
type Item struct {
	Label string
	Hint  string
	View  messages.ViewType
	Quit  bool
}

func defaultItems() []Item {
	return []Item{
		{Label: "Ask", Hint: "question the indexed reports", View: messages.ViewAsk},
		{Label: "Documents", Hint: "list, scope or remove reports", View: messages.ViewDocuments},
		{Label: "Settings", Hint: "embedding and LLM providers", View: messages.ViewSettings},
		{Label: "Help", View: messages.ViewHelp},
		{Label: "Quit", Quit: true},
	}
}

type View struct {
	styles   *styles.Styles
	keymap   *keymap.KeyMap
	items    []Item
	selected int
	summary  string

	width, height int
	ready         bool
}

func NewView(s *styles.Styles, km *keymap.KeyMap) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}
	return &View{styles: s, keymap: km, items: defaultItems(), width: 80, height: 24}
}

func (v *View) Init() tea.Cmd { return nil }

// Update moves the cursor and turns a selection into ViewChanged or
// tea.Quit. Digits 1-9 select and activate an item directly.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
	case tea.KeyMsg:
		k := msg.String()
		switch {
		case keymap.Matches(k, v.keymap.Up):
			v.selected = max(0, v.selected-1)
		case keymap.Matches(k, v.keymap.Down):
			v.selected = min(len(v.items)-1, v.selected+1)
		case keymap.Matches(k, v.keymap.Select):
			return v, v.activate()
		case k == "q":
			return v, tea.Quit
		case len(k) == 1 && k[0] >= '1' && int(k[0]-'0') <= len(v.items):
			v.selected = int(k[0] - '1')
			return v, v.activate()
		}
	}
	return v, nil
}

func (v *View) activate() tea.Cmd {
	item := v.items[v.selected]
	if item.Quit {
		return tea.Quit
	}
	return func() tea.Msg { return messages.ViewChanged{View: item.View} }
}

func (v *View) View() string {
	if !v.ready {
		return "Initialising..."
	}

	lines := []string{
		v.styles.Title.Render("finrag"),
		v.styles.Muted.Render("Türkçe finansal rapor asistanı"),
	}
	if v.summary != "" {
		lines = append(lines, v.styles.Subtitle.Render(v.summary))
	}
	lines = append(lines, "")

	for i, item := range v.items {
		label := fmt.Sprintf("  %s", item.Label)
		style := v.styles.Normal
		if i == v.selected {
			label, style = "> "+item.Label, v.styles.Selected
		}
		line := style.Render(label)
		if item.Hint != "" {
			line += v.styles.Muted.Render("  " + item.Hint)
		}
		lines = append(lines, line)
	}

	lines = append(lines, "", v.styles.Help.Render("[j/k] Navigate  [1-5/Enter] Select  [q] Quit"))
	return strings.Join(lines, "\n")
}

// SetSummary sets the line under the subtitle, typically the index size.
func (v *View) SetSummary(s string) { v.summary = s }

func (v *View) SetDimensions(width, height int) {
	v.width, v.height = width, height
	v.ready = true
}

func (v *View) Selected() int { return v.selected }
