// Package truncate cuts text to a token limit measured by a model tokenizer.
//
// Lengths are counted with a tokens.Tokenizer, so a limit of 100 means 100
// model tokens, not characters. Every truncated result re-tokenizes to at most
// the requested limit: after decoding the kept ids, the result is counted
// again and the kept window shrinks until it fits, which covers tokenizers
// whose decode/encode round trip is not exact.
//
// # Strategies
//
//   - FromEnd: keep the beginning of the text (default)
//   - FromMiddle: keep the beginning and the end around a marker
//   - FromStart: keep the end of the text
//
// # Usage
//
//	tr := truncate.NewFromEnd(tok)
//	result, truncated, err := tr.Truncate(longText, 100)
//
// An optional marker shows where content was removed. Its tokens count
// against the limit:
//
//	tr := truncate.NewFromStart(tok).WithMarker("... ")
//
// For one-off prefix truncation:
//
//	result, err := truncate.ToTokens(tok, text, 100)
package truncate
