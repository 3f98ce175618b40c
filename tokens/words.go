package tokens

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultBOS is the beginning-of-sequence marker used by Llama-family and
// Phi-3 chat templates.
const DefaultBOS = "<s>"

// WordTokenizer treats every whitespace-separated word as one token.
// Ids are assigned on first sight, so the same word always maps to the same id
// for the lifetime of the tokenizer. Decode joins words with single spaces.
type WordTokenizer struct {
	bos string

	mu    sync.RWMutex
	ids   map[string]int
	words []string
}

// NewWordTokenizer creates a word tokenizer with the DefaultBOS marker.
func NewWordTokenizer() *WordTokenizer {
	return NewWordTokenizerWithBOS(DefaultBOS)
}

// NewWordTokenizerWithBOS creates a word tokenizer with a custom BOS marker.
func NewWordTokenizerWithBOS(bos string) *WordTokenizer {
	return &WordTokenizer{
		bos: bos,
		ids: make(map[string]int),
	}
}

// Tokenize implements Tokenizer.
func (w *WordTokenizer) Tokenize(text string) ([]int, error) {
	fields := strings.Fields(text)
	ids := make([]int, len(fields))
	for i, f := range fields {
		ids[i] = w.idFor(f)
	}
	return ids, nil
}

// Encode implements Tokenizer.
func (w *WordTokenizer) Encode(text string, maxTokens int) ([]int, error) {
	if maxTokens <= 0 {
		return nil, nil
	}
	ids, err := w.Tokenize(text)
	if err != nil {
		return nil, err
	}
	if len(ids) > maxTokens {
		ids = ids[:maxTokens]
	}
	return ids, nil
}

// Decode implements Tokenizer.
func (w *WordTokenizer) Decode(ids []int) (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	words := make([]string, len(ids))
	for i, id := range ids {
		if id < 0 || id >= len(w.words) {
			return "", fmt.Errorf("unknown token id %d", id)
		}
		words[i] = w.words[id]
	}
	return strings.Join(words, " "), nil
}

// BOS implements Tokenizer.
func (w *WordTokenizer) BOS() string {
	return w.bos
}

// VocabSize returns the number of distinct words seen so far.
func (w *WordTokenizer) VocabSize() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.words)
}

func (w *WordTokenizer) idFor(word string) int {
	w.mu.RLock()
	id, ok := w.ids[word]
	w.mu.RUnlock()
	if ok {
		return id
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if id, ok := w.ids[word]; ok {
		return id
	}
	id = len(w.words)
	w.ids[word] = id
	w.words = append(w.words, word)
	return id
}
