package tokens

import (
	"strings"
	"sync"
	"testing"
)

func TestWordTokenizer_Tokenize(t *testing.T) {
	tok := NewWordTokenizer()

	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{name: "empty string", text: "", expected: 0},
		{name: "only whitespace", text: " \n\t ", expected: 0},
		{name: "single word", text: "hello", expected: 1},
		{name: "several words", text: "hello brave new world", expected: 4},
		{name: "irregular spacing", text: "  a\n\nb\tc  ", expected: 3},
		{name: "punctuation sticks to words", text: "Hello, world!", expected: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := tok.Tokenize(tt.text)
			if err != nil {
				t.Fatalf("Tokenize(%q) error = %v", tt.text, err)
			}
			if len(ids) != tt.expected {
				t.Errorf("Tokenize(%q) = %d tokens, expected %d", tt.text, len(ids), tt.expected)
			}
		})
	}
}

func TestWordTokenizer_StableIDs(t *testing.T) {
	tok := NewWordTokenizer()

	first, _ := tok.Tokenize("alpha beta alpha")
	if first[0] != first[2] {
		t.Errorf("same word got different ids: %v", first)
	}
	second, _ := tok.Tokenize("beta")
	if second[0] != first[1] {
		t.Errorf("id for beta changed: %d vs %d", second[0], first[1])
	}
	if tok.VocabSize() != 2 {
		t.Errorf("VocabSize() = %d, expected 2", tok.VocabSize())
	}
}

func TestWordTokenizer_EncodeBounded(t *testing.T) {
	tok := NewWordTokenizer()

	tests := []struct {
		name      string
		maxTokens int
		expected  string
	}{
		{name: "under limit", maxTokens: 10, expected: "one two three four"},
		{name: "exact limit", maxTokens: 4, expected: "one two three four"},
		{name: "truncated", maxTokens: 2, expected: "one two"},
		{name: "zero limit", maxTokens: 0, expected: ""},
		{name: "negative limit", maxTokens: -3, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := tok.Encode("one two three four", tt.maxTokens)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := tok.Decode(ids)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("Decode(Encode()) = %q, expected %q", got, tt.expected)
			}
		})
	}
}

func TestWordTokenizer_DecodeUnknownID(t *testing.T) {
	tok := NewWordTokenizer()
	if _, err := tok.Decode([]int{42}); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestWordTokenizer_BOS(t *testing.T) {
	if got := NewWordTokenizer().BOS(); got != DefaultBOS {
		t.Errorf("BOS() = %q, expected %q", got, DefaultBOS)
	}
	if got := NewWordTokenizerWithBOS("").BOS(); got != "" {
		t.Errorf("BOS() = %q, expected empty", got)
	}
}

func TestWordTokenizer_Concurrent(t *testing.T) {
	tok := NewWordTokenizer()
	text := strings.Repeat("w1 w2 w3 w4 w5 ", 20)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, _ := tok.Tokenize(text)
			if len(ids) != 100 {
				t.Errorf("expected 100 ids, got %d", len(ids))
			}
		}()
	}
	wg.Wait()

	if tok.VocabSize() != 5 {
		t.Errorf("VocabSize() = %d, expected 5", tok.VocabSize())
	}
}

func TestCount(t *testing.T) {
	tok := NewWordTokenizer()

	n, err := Count(tok, "a b c")
	if err != nil || n != 3 {
		t.Errorf("Count() = %d, %v; expected 3, nil", n, err)
	}

	fits, err := FitsInLimit(tok, "a b c", 3)
	if err != nil || !fits {
		t.Errorf("FitsInLimit(3) = %v, %v; expected true", fits, err)
	}
	fits, _ = FitsInLimit(tok, "a b c", 2)
	if fits {
		t.Error("FitsInLimit(2) = true, expected false")
	}
}

func TestCounter_Interface(t *testing.T) {
	var _ Tokenizer = (*WordTokenizer)(nil)
	var _ Tokenizer = (*TiktokenTokenizer)(nil)
}

func BenchmarkWordTokenizer_Tokenize(b *testing.B) {
	tok := NewWordTokenizer()
	text := strings.Repeat("Hello World ", 100)

	b.ResetTimer()
	for range b.N {
		_, _ = tok.Tokenize(text)
	}
}
