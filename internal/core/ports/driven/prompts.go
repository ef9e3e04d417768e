package driven

// PromptStore provides access to LLM prompt templates.
type PromptStore interface {
	// Load returns the prompt for name, falling back to the built-in default
	// when the user has not customised it.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names.
const (
	// PromptAnswerSystem is the system prompt sent with every answer request.
	// It has no format placeholders.
	PromptAnswerSystem = "answer_system"
)

// PromptStoreAware is implemented by services whose prompts can be
// customised after construction.
type PromptStoreAware interface {
	// SetPromptStore sets the prompt source. Without one the built-in
	// defaults are used.
	SetPromptStore(store PromptStore)
}
