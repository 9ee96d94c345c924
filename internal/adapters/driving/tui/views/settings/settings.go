// Package settings is the TUI view for choosing embedding and LLM providers.
package settings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/finrag/internal/core/domain"
	"github.com/custodia-labs/finrag/internal/core/ports/driving"
)

// Section is the part of the view that has focus.
type Section int

const (
	SectionOverview Section = iota
	SectionEmbedding
	SectionLLM
)

var errNoService = errors.New("settings service not available")

// picker selects one provider and, for cloud providers, its API key.
type picker struct {
	title     string
	providers []domain.AIProvider
	models    map[domain.AIProvider]string
	current   func(*domain.AppSettings) domain.AIProvider
	save      func(svc driving.SettingsService, p domain.AIProvider, model, key string) error
	key       textinput.Model
}

func newPicker(title string, providers []domain.AIProvider, models map[domain.AIProvider]string) *picker {
	key := textinput.New()
	key.Placeholder = "Enter API key"
	key.EchoMode = textinput.EchoPassword
	key.CharLimit = 256
	return &picker{title: title, providers: providers, models: models, key: key}
}

func (p *picker) needsKey(i int) bool {
	return i >= 0 && i < len(p.providers) && p.providers[i].RequiresAPIKey()
}

func (p *picker) clear() {
	p.key.SetValue("")
	p.key.Blur()
}

// View is the settings view.
type View struct {
	styles  *styles.Styles
	service driving.SettingsService

	settings *domain.AppSettings
	err      error

	section      Section
	selected     int
	focusedField int // 1 while the API key input has focus

	pickers map[Section]*picker

	width  int
	height int
	ready  bool
}

// NewView creates the settings view. service may be nil; loading then
// reports an error instead of settings.
func NewView(s *styles.Styles, service driving.SettingsService) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}

	embedding := newPicker("Select Embedding Provider", domain.AllEmbeddingProviders(), domain.DefaultEmbeddingModels())
	embedding.current = func(st *domain.AppSettings) domain.AIProvider { return st.Embedding.Provider }
	embedding.save = func(svc driving.SettingsService, p domain.AIProvider, model, key string) error {
		return svc.SetEmbeddingProvider(p, model, key)
	}

	llm := newPicker("Select LLM Provider", domain.AllLLMProviders(), domain.DefaultLLMModels())
	llm.current = func(st *domain.AppSettings) domain.AIProvider { return st.LLM.Provider }
	llm.save = func(svc driving.SettingsService, p domain.AIProvider, model, key string) error {
		return svc.SetLLMProvider(p, model, key)
	}

	return &View{
		styles:  s,
		service: service,
		section: SectionOverview,
		pickers: map[Section]*picker{SectionEmbedding: embedding, SectionLLM: llm},
	}
}

// Init loads the current settings.
func (v *View) Init() tea.Cmd {
	return v.load()
}

func (v *View) load() tea.Cmd {
	return func() tea.Msg {
		if v.service == nil {
			return messages.SettingsLoaded{Err: errNoService}
		}
		st, err := v.service.Get()
		return messages.SettingsLoaded{Settings: st, Err: err}
	}
}

// Update handles messages for the settings view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)

	case messages.SettingsLoaded:
		v.err = msg.Err
		if msg.Err == nil {
			v.settings = msg.Settings
		}

	case messages.SettingsSaved:
		v.err = msg.Err
		if msg.Err == nil {
			return v, v.load()
		}

	case tea.KeyMsg:
		return v.handleKey(msg)
	}
	return v, nil
}

func (v *View) handleKey(msg tea.KeyMsg) (*View, tea.Cmd) {
	if msg.String() == "esc" {
		if v.section == SectionOverview {
			return v, func() tea.Msg { return messages.ViewChanged{View: messages.ViewMenu} }
		}
		v.pickers[v.section].clear()
		v.section, v.selected, v.focusedField = SectionOverview, 0, 0
		return v, nil
	}

	if v.section == SectionOverview {
		return v.handleOverviewKey(msg), nil
	}
	return v, v.handlePickerKey(v.pickers[v.section], msg)
}

func (v *View) handleOverviewKey(msg tea.KeyMsg) *View {
	switch msg.String() {
	case "up", "k":
		v.selected = max(v.selected-1, 0)
	case "down", "j":
		v.selected = min(v.selected+1, 1)
	case "enter":
		v.section = SectionEmbedding
		if v.selected == 1 {
			v.section = SectionLLM
		}
		v.selected = v.currentIndex(v.pickers[v.section])
	}
	return v
}

func (v *View) handlePickerKey(p *picker, msg tea.KeyMsg) tea.Cmd {
	k := msg.String()

	if v.focusedField == 1 {
		switch k {
		case "tab", "shift+tab":
			v.focusedField = 0
			p.key.Blur()
			return nil
		case "enter":
			return v.save(p, p.providers[v.selected], p.key.Value())
		}
		var cmd tea.Cmd
		p.key, cmd = p.key.Update(msg)
		return cmd
	}

	switch k {
	case "up", "k":
		v.selected = max(v.selected-1, 0)
	case "down", "j":
		v.selected = min(v.selected+1, len(p.providers)-1)
	case "tab", "enter":
		if p.needsKey(v.selected) {
			v.focusedField = 1
			return p.key.Focus()
		}
		if k == "enter" {
			return v.save(p, p.providers[v.selected], "")
		}
	}
	return nil
}

// save stores the provider with its default model. On success the view
// returns to the overview before the reload arrives.
func (v *View) save(p *picker, provider domain.AIProvider, key string) tea.Cmd {
	return func() tea.Msg {
		if v.service == nil {
			return messages.SettingsSaved{Err: errNoService}
		}
		err := p.save(v.service, provider, p.models[provider], key)
		if err == nil {
			p.clear()
			v.section, v.selected, v.focusedField = SectionOverview, 0, 0
		}
		return messages.SettingsSaved{Err: err}
	}
}

func (v *View) currentIndex(p *picker) int {
	if v.settings == nil {
		return 0
	}
	cur := p.current(v.settings)
	for i, provider := range p.providers {
		if provider == cur {
			return i
		}
	}
	return 0
}

// View renders the settings view.
func (v *View) View() string {
	var b strings.Builder

	b.WriteString(v.styles.Title.Render("Settings"))
	b.WriteString("\n\n")

	if v.err != nil {
		b.WriteString(v.styles.Error.Render("Error: " + v.err.Error()))
		b.WriteString("\n\n")
	}
	if v.settings == nil {
		b.WriteString(v.styles.Muted.Render("Loading settings..."))
		return b.String()
	}

	if v.section == SectionOverview {
		b.WriteString(v.renderOverview())
	} else {
		b.WriteString(v.renderPicker(v.pickers[v.section]))
	}
	b.WriteString("\n")
	b.WriteString(v.renderHelp())
	return b.String()
}

func (v *View) renderOverview() string {
	var b strings.Builder

	rows := []struct {
		label      string
		provider   domain.AIProvider
		model      string
		configured bool
	}{
		{"Embedding Provider", v.settings.Embedding.Provider, v.settings.Embedding.Model, v.settings.Embedding.IsConfigured()},
		{"LLM Provider", v.settings.LLM.Provider, v.settings.LLM.Model, v.settings.LLM.IsConfigured()},
	}
	for i, row := range rows {
		value := "Not Set"
		if row.provider != "" {
			value = fmt.Sprintf("%s (%s)", row.provider.Description(), row.model)
		}
		status := v.styles.Warning.Render("[needs API key]")
		if row.configured {
			status = v.styles.Success.Render("[configured]")
		}

		if i == v.selected {
			b.WriteString(v.styles.Selected.Render(fmt.Sprintf("> %s: %s", row.label, value)))
		} else {
			b.WriteString(v.styles.Normal.Render(fmt.Sprintf("  %s: %s", row.label, value)))
		}
		b.WriteString(" " + status + "\n")
	}

	b.WriteString("\n")
	st := v.settings
	for _, l := range []string{
		fmt.Sprintf("Chunks: %d chars, %d overlap", st.Chunker.Size, st.Chunker.Overlap),
		fmt.Sprintf("Retrieval: top %d, min similarity %.2f", st.Retrieval.TopK, st.Retrieval.MinSimilarity),
		fmt.Sprintf("Answers: language %s, timeout %s", st.Answer.Language, st.Answer.Timeout),
		fmt.Sprintf("Index: %s", st.Index.Backend),
	} {
		b.WriteString(v.styles.Muted.Render("  " + l))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if v.service != nil {
		if err := v.service.Validate(); err != nil {
			b.WriteString(v.styles.Warning.Render("Warning: " + err.Error()))
		} else {
			b.WriteString(v.styles.Success.Render("Configuration is valid"))
		}
	}
	return b.String()
}

func (v *View) renderPicker(p *picker) string {
	var b strings.Builder

	b.WriteString(v.styles.Subtitle.Render(p.title))
	b.WriteString("\n\n")

	var cur domain.AIProvider
	if v.settings != nil {
		cur = p.current(v.settings)
	}
	for i, provider := range p.providers {
		line := "  " + provider.Description()
		if provider == cur {
			line += v.styles.Success.Render(" (current)")
		}
		if i == v.selected && v.focusedField == 0 {
			b.WriteString(v.styles.Selected.Render("> " + line[2:]))
		} else {
			b.WriteString(v.styles.Normal.Render(line))
		}
		b.WriteString("\n")
		if model, ok := p.models[provider]; ok {
			b.WriteString(v.styles.Muted.Render("    Model: " + model))
			b.WriteString("\n")
		}
	}

	if p.needsKey(v.selected) {
		b.WriteString("\n")
		b.WriteString(v.styles.Normal.Render("API Key:"))
		b.WriteString("\n")
		b.WriteString(p.key.View())
		b.WriteString("\n")
	}
	return b.String()
}

func (v *View) renderHelp() string {
	switch {
	case v.section == SectionOverview:
		return v.styles.Help.Render("[j/k] navigate  [enter] edit  [esc] back")
	case v.focusedField == 1:
		return v.styles.Help.Render("[tab] back to list  [enter] save  [esc] back")
	default:
		return v.styles.Help.Render("[j/k] navigate  [tab] API key  [enter] select  [esc] back")
	}
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true
}

// Reset returns to the overview and clears any typed key.
func (v *View) Reset() {
	v.section, v.selected, v.focusedField = SectionOverview, 0, 0
	v.err = nil
	for _, p := range v.pickers {
		p.clear()
	}
}
