package driven

// PromptStore serves the answer templates by name. Stores backed by files
// cache them until Reload.
type PromptStore interface {
	Load(name string) (string, error)
	Reload()
}

// Template names and the fmt verbs each one takes.
const (
	// PromptSystem frames the model as a Turkish financial analyst. No verbs.
	PromptSystem = "system"

	// PromptGrounded takes type-specific instructions, the glossary section,
	// the numbered context, the question and the answer language, all %s.
	PromptGrounded = "grounded"

	// PromptFallback is used when no passage cleared the threshold. It takes
	// the question and the answer language.
	PromptFallback = "fallback"
)
