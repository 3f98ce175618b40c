// Package tokens defines the tokenizer capability used for prompt budgeting.
//
// Token budgets are measured with the same tokenizer the model uses, so this
// package does not estimate: it delegates to a Tokenizer. Two implementations
// ship here; the local sidecar client provides a third backed by the model's
// own tokenizer.
//
// # Tokenizer
//
// A Tokenizer turns text into token ids and back:
//
//	tok := tokens.NewWordTokenizer()
//	ids, _ := tok.Tokenize("Hello brave new world")   // 4 ids
//	head, _ := tok.Encode("Hello brave new world", 2) // first 2 ids
//	text, _ := tok.Decode(head)                        // "Hello brave"
//
// For one-off counting:
//
//	n, err := tokens.Count(tok, "Hello, world!")
//
// WordTokenizer counts one token per whitespace-separated word and is fully
// deterministic, which makes it the tokenizer of choice for tests.
// TiktokenTokenizer wraps a BPE encoding such as cl100k_base.
//
// # Budget
//
// Budget derives the number of prompt tokens available from a model context
// window and the tokens reserved for the completion:
//
//	b := tokens.NewBudget(tokens.GetContextWindow("phi-3-mini-4k-instruct"), 512)
//	b.Available() // 3584
package tokens
