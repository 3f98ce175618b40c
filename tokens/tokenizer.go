package tokens

// Tokenizer is the model tokenizer capability.
// Implementations must be safe for concurrent read use.
type Tokenizer interface {
	// Tokenize returns the token ids text occupies.
	Tokenize(text string) ([]int, error)

	// Encode returns at most maxTokens ids from the start of text.
	// Longer input is silently truncated rather than rejected.
	Encode(text string, maxTokens int) ([]int, error)

	// Decode reconstructs text from token ids.
	Decode(ids []int) (string, error)

	// BOS returns the beginning-of-sequence marker as it appears in rendered
	// prompts, or "" if the tokenizer has none.
	BOS() string
}

// Count returns the number of tokens text occupies under tok.
func Count(tok Tokenizer, text string) (int, error) {
	ids, err := tok.Tokenize(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// FitsInLimit reports whether text occupies at most limit tokens.
func FitsInLimit(tok Tokenizer, text string, limit int) (bool, error) {
	n, err := Count(tok, text)
	if err != nil {
		return false, err
	}
	return n <= limit, nil
}
