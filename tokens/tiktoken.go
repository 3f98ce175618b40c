package tokens

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// TiktokenTokenizer wraps a tiktoken BPE encoding.
// It approximates model tokenizers that are not available locally.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
	bos string
}

// NewTiktokenTokenizer loads the named encoding (e.g. "cl100k_base").
// An empty name selects DefaultEncoding. bos is reported by BOS and may be "".
func NewTiktokenTokenizer(encoding, bos string) (*TiktokenTokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tiktoken: get encoding %q: %w", encoding, err)
	}
	return &TiktokenTokenizer{enc: enc, bos: bos}, nil
}

// Tokenize implements Tokenizer. Special tokens in text are encoded as plain text.
func (t *TiktokenTokenizer) Tokenize(text string) ([]int, error) {
	return t.enc.Encode(text, nil, nil), nil
}

// Encode implements Tokenizer.
func (t *TiktokenTokenizer) Encode(text string, maxTokens int) ([]int, error) {
	if maxTokens <= 0 {
		return nil, nil
	}
	ids := t.enc.Encode(text, nil, nil)
	if len(ids) > maxTokens {
		ids = ids[:maxTokens]
	}
	return ids, nil
}

// Decode implements Tokenizer.
func (t *TiktokenTokenizer) Decode(ids []int) (string, error) {
	return t.enc.Decode(ids), nil
}

// BOS implements Tokenizer.
func (t *TiktokenTokenizer) BOS() string {
	return t.bos
}
