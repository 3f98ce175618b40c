package tokens

// DefaultMaxAvailableTokens is the prompt budget used when neither an explicit
// budget nor a context window is configured.
const DefaultMaxAvailableTokens = 2560

// DefaultContextWindow is the context size assumed for unknown models.
const DefaultContextWindow = 4096

// Budget splits a model context window between the prompt and the completion.
type Budget struct {
	// ContextWindow is the model's total context size (n_ctx).
	ContextWindow int

	// Reserved is the number of tokens kept free for generation.
	Reserved int
}

// NewBudget creates a budget for a context window with reserved completion tokens.
// Negative values are clamped to zero.
func NewBudget(contextWindow, reserved int) Budget {
	return Budget{
		ContextWindow: max(contextWindow, 0),
		Reserved:      max(reserved, 0),
	}
}

// NewBudgetForModel creates a budget using the known context window for model.
func NewBudgetForModel(model string, reserved int) Budget {
	return NewBudget(GetContextWindow(model), reserved)
}

// Available returns the tokens left for the prompt.
func (b Budget) Available() int {
	return max(b.ContextWindow-b.Reserved, 0)
}

// Fits reports whether a prompt of n tokens fits the budget.
func (b Budget) Fits(n int) bool {
	return n <= b.Available()
}

// Remaining returns the prompt tokens left after used, never below zero.
func (b Budget) Remaining(used int) int {
	return max(b.Available()-used, 0)
}
