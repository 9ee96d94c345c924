package input

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finrag/internal/adapters/driving/tui/styles"
)

func TestNewQuestionInput(t *testing.T) {
	input := NewQuestionInput(styles.DefaultStyles())

	require.NotNil(t, input)
	assert.Equal(t, "", input.Value())
	assert.True(t, input.Focused())
}

func TestNewQuestionInput_NilStyles(t *testing.T) {
	input := NewQuestionInput(nil)

	require.NotNil(t, input)
	assert.NotNil(t, input.styles)
}

func TestQuestionInput_Init(t *testing.T) {
	assert.NotNil(t, NewQuestionInput(nil).Init())
}

func TestQuestionInput_Update(t *testing.T) {
	input := NewQuestionInput(nil)

	for _, r := range "enflasyon" {
		input, _ = input.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}

	assert.Equal(t, "enflasyon", input.Value())
}

func TestQuestionInput_AcceptsTurkishRunes(t *testing.T) {
	input := NewQuestionInput(nil)

	input, _ = input.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("büyüme ğ ş ı")})

	assert.Equal(t, "büyüme ğ ş ı", input.Value())
}

func TestQuestionInput_CharLimit(t *testing.T) {
	input := NewQuestionInput(nil)

	input.SetValue(strings.Repeat("a", MaxQuestionLength+50))

	assert.Len(t, input.Value(), MaxQuestionLength)
}

func TestQuestionInput_View(t *testing.T) {
	input := NewQuestionInput(nil)

	assert.Contains(t, input.View(), "Ask")

	input.SetScope("butce.pdf")
	assert.Contains(t, input.View(), "butce.pdf")
	assert.Equal(t, "butce.pdf", input.Scope())

	input.SetScope("")
	assert.NotContains(t, input.View(), "butce.pdf")
}

func TestQuestionInput_FocusBlur(t *testing.T) {
	input := NewQuestionInput(nil)

	input.Blur()
	assert.False(t, input.Focused())

	input.Focus()
	assert.True(t, input.Focused())
}

func TestQuestionInput_SetWidth(t *testing.T) {
	input := NewQuestionInput(nil)

	input.SetWidth(100)
	assert.Equal(t, 100, input.Width())
	assert.Equal(t, 90, input.textinput.Width)

	input.SetWidth(15)
	assert.Equal(t, 20, input.textinput.Width)
}

func TestQuestionInput_Reset(t *testing.T) {
	input := NewQuestionInput(nil)
	input.SetValue("soru")

	input.Reset()

	assert.Equal(t, "", input.Value())
}
