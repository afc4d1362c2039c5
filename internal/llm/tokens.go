package llm

// EstimateBudgetChars converts a token budget to a character limit using the
// usual approximation of four characters per token.
func EstimateBudgetChars(tokens int) int {
	return tokens * 4
}
