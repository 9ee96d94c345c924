// Package status renders the one-line bar under the ask view.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/styles"
)

type State string

const (
	StateReady    State = "ready"
	StateAsking   State = "asking"
	StateError    State = "error"
	StateAnswered State = "answered"
)

// Outcome is what the bar shows about a finished answer.
type Outcome struct {
	Sources    int
	Confidence float64
	Elapsed    time.Duration
	Note       string
}

// Bar shows the query state on the left and key hints on the right.
type Bar struct {
	styles  *styles.Styles
	keymap  *keymap.KeyMap
	state   State
	message string
	outcome Outcome
	width   int
}

func NewBar(s *styles.Styles, km *keymap.KeyMap) *Bar {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}
	return &Bar{styles: s, keymap: km, state: StateReady, width: 80}
}

// Asking marks a query in flight.
func (b *Bar) Asking() {
	b.Clear()
	b.state = StateAsking
}

// Failed shows kind, usually a domain.ErrorKind, as the error text.
func (b *Bar) Failed(kind string) {
	b.Clear()
	b.state = StateError
	b.message = kind
}

func (b *Bar) Answered(o Outcome) {
	b.state = StateAnswered
	b.message = o.Note
	b.outcome = o
}

// Clear returns the bar to the ready state.
func (b *Bar) Clear() {
	b.state = StateReady
	b.message = ""
	b.outcome = Outcome{}
}

func (b *Bar) State() State { return b.state }
func (b *Bar) Message() string { return b.message }
func (b *Bar) Outcome() Outcome { return b.outcome }
func (b *Bar) Width() int { return b.width }
func (b *Bar) SetWidth(w int) { b.width = w }

func (b *Bar) View() string {
	left, right := b.left(), b.hints()
	gap := max(1, b.width-lipgloss.Width(left)-lipgloss.Width(right))
	return b.styles.StatusBar.Width(b.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (b *Bar) left() string {
	switch b.state {
	case StateAsking:
		return b.styles.Muted.Render("Searching reports...")
	case StateError:
		if b.message == "" {
			return b.styles.Error.Render("Error")
		}
		return b.styles.Error.Render("Error: " + b.message)
	case StateAnswered:
		o := b.outcome
		pct := b.styles.Confidence(o.Confidence).Render(fmt.Sprintf("%.0f%%", o.Confidence*100))
		parts := []string{fmt.Sprintf("%d sources", o.Sources), o.Elapsed.Round(time.Millisecond).String()}
		if o.Note != "" {
			parts = append(parts, o.Note)
		}
		return pct + b.styles.Normal.Render(" "+strings.Join(parts, " | "))
	case StateReady:
	}
	return b.styles.Muted.Render("Ready")
}

func (b *Bar) hints() string {
	bindings := b.keymap.ShortHelp()
	if b.state == StateAnswered {
		bindings = b.keymap.AnswerHelp()
	}
	out := make([]string, len(bindings))
	for i, k := range bindings {
		h := k.Help()
		out[i] = h.Key + ": " + h.Desc
	}
	return b.styles.Muted.Render(strings.Join(out, " | "))
}
