// Package styles holds the TUI palette and the lipgloss styles built from it.
package styles

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/finrag/internal/core/domain"
)

// Theme is the colour palette.
type Theme struct {
	Primary   lipgloss.Color // titles, selection
	Secondary lipgloss.Color // subtitles, answer rule
	Surface   lipgloss.Color // status bar background
	Text      lipgloss.Color
	Muted     lipgloss.Color
	Border    lipgloss.Color

	// Confidence bands, also used for success, warning and error messages.
	High   lipgloss.Color
	Medium lipgloss.Color
	Low    lipgloss.Color
}

// DefaultTheme is a dark navy palette with a teal accent.
func DefaultTheme() *Theme {
	return &Theme{
		Primary:   lipgloss.Color("#2DD4BF"),
		Secondary: lipgloss.Color("#60A5FA"),
		Surface:   lipgloss.Color("#0F172A"),
		Text:      lipgloss.Color("#E2E8F0"),
		Muted:     lipgloss.Color("#64748B"),
		Border:    lipgloss.Color("#334155"),
		High:      lipgloss.Color("#4ADE80"),
		Medium:    lipgloss.Color("#FBBF24"),
		Low:       lipgloss.Color("#F87171"),
	}
}

// Styles are the rendered styles every view shares.
type Styles struct {
	theme *Theme

	Title      lipgloss.Style
	Subtitle   lipgloss.Style
	Normal     lipgloss.Style
	Muted      lipgloss.Style
	Selected   lipgloss.Style
	Success    lipgloss.Style
	Warning    lipgloss.Style
	Error      lipgloss.Style
	InputField lipgloss.Style
	StatusBar  lipgloss.Style
	Help       lipgloss.Style
	Border     lipgloss.Style

	// Answer frames the synthesized answer with a rule on its left edge.
	Answer lipgloss.Style
}

// NewStyles builds styles from theme, or from DefaultTheme when nil.
func NewStyles(theme *Theme) *Styles {
	if theme == nil {
		theme = DefaultTheme()
	}
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	rounded := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.Border)

	return &Styles{
		theme:      theme,
		Title:      fg(theme.Primary).Bold(true),
		Subtitle:   fg(theme.Secondary).Bold(true),
		Normal:     fg(theme.Text),
		Muted:      fg(theme.Muted),
		Selected:   fg(theme.Surface).Background(theme.Primary).Bold(true),
		Success:    fg(theme.High),
		Warning:    fg(theme.Medium),
		Error:      fg(theme.Low),
		InputField: rounded.Padding(0, 1),
		StatusBar:  fg(theme.Muted).Background(theme.Surface).Padding(0, 1),
		Help:       fg(theme.Muted).Italic(true),
		Border:     rounded,
		Answer: fg(theme.Text).
			BorderStyle(lipgloss.ThickBorder()).
			BorderLeft(true).
			BorderForeground(theme.Secondary).
			PaddingLeft(1),
	}
}

// DefaultStyles returns NewStyles(DefaultTheme()).
func DefaultStyles() *Styles {
	return NewStyles(DefaultTheme())
}

// Confidence picks the band style for a score, using the same thresholds
// as the query statistics.
func (s *Styles) Confidence(c float64) lipgloss.Style {
	switch {
	case c >= domain.ConfidenceHighThreshold:
		return s.Success
	case c >= domain.ConfidenceMediumThreshold:
		return s.Warning
	default:
		return s.Error
	}
}

// ConfidenceBadge renders a score as "Güven: 0.82" in its band colour.
func (s *Styles) ConfidenceBadge(c float64) string {
	return s.Confidence(c).Render(fmt.Sprintf("Güven: %.2f", c))
}

// Theme returns the palette the styles were built from.
func (s *Styles) Theme() *Theme {
	return s.theme
}
