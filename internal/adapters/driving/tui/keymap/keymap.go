// Package keymap holds the TUI key bindings.
package keymap

import (
	"slices"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap is shared by every screen. Screens only read it.
type KeyMap struct {
	Quit, Help, Back key.Binding

	// Ask submits the typed question.
	Ask key.Binding

	Up, Down, Select key.Binding

	// NewQuestion returns focus to the question input.
	NewQuestion key.Binding

	// Scope and ClearScope restrict questions to one document and lift
	// the restriction.
	Scope, ClearScope key.Binding

	Remove, Reload key.Binding
}

func bind(help, desc string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(help, desc))
}

func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Quit:        bind("q", "quit", "q", "ctrl+c"),
		Help:        bind("?", "help", "?"),
		Back:        bind("esc", "back", "esc"),
		Ask:         bind("enter", "ask", "enter"),
		Up:          bind("↑/k", "up", "up", "k"),
		Down:        bind("↓/j", "down", "down", "j"),
		Select:      bind("enter", "select", "enter"),
		NewQuestion: bind("n", "new question", "n"),
		Scope:       bind("s", "ask this document", "s"),
		ClearScope:  bind("x", "ask all documents", "x"),
		Remove:      bind("d", "remove", "d"),
		Reload:      bind("r", "reload", "r"),
	}
}

// ShortHelp is shown while a question is being typed.
func (k *KeyMap) ShortHelp() []key.Binding { return []key.Binding{k.Ask, k.Back} }

// AnswerHelp is shown under an answer.
func (k *KeyMap) AnswerHelp() []key.Binding {
	return []key.Binding{k.NewQuestion, k.Up, k.Down, k.Back}
}

// FullHelp groups every binding for the help screen.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select},
		{k.Ask, k.NewQuestion, k.Back},
		{k.Scope, k.ClearScope, k.Remove, k.Reload},
		{k.Help, k.Quit},
	}
}

// Matches reports whether the key named by s triggers b.
func Matches(s string, b key.Binding) bool {
	return slices.Contains(b.Keys(), s)
}
