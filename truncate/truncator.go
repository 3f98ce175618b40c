package truncate

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/promptctx/tokens"
)

// Strategy defines which part of the text survives truncation.
type Strategy int

const (
	// FromEnd removes content from the end, keeping the prefix (default).
	FromEnd Strategy = iota

	// FromMiddle removes content from the middle, keeping start and end.
	FromMiddle

	// FromStart removes content from the start, keeping the suffix.
	FromStart
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case FromEnd:
		return "end"
	case FromMiddle:
		return "middle"
	case FromStart:
		return "start"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy parses "end", "start" or "middle".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "end":
		return FromEnd, nil
	case "start":
		return FromStart, nil
	case "middle":
		return FromMiddle, nil
	default:
		return FromEnd, fmt.Errorf("unknown truncation strategy %q (want end, start or middle)", s)
	}
}

// DefaultMiddleMarker separates head and tail for FromMiddle truncation.
const DefaultMiddleMarker = "\n...\n"

// Truncator cuts text down to a token limit measured by a model tokenizer.
type Truncator struct {
	tok      tokens.Tokenizer
	strategy Strategy
	marker   string
}

// New creates a truncator with the given strategy.
// FromEnd and FromStart add no marker; FromMiddle uses DefaultMiddleMarker.
func New(tok tokens.Tokenizer, strategy Strategy) *Truncator {
	var marker string
	if strategy == FromMiddle {
		marker = DefaultMiddleMarker
	}
	return &Truncator{
		tok:      tok,
		strategy: strategy,
		marker:   marker,
	}
}

// NewFromEnd creates a truncator that keeps the beginning of the text.
func NewFromEnd(tok tokens.Tokenizer) *Truncator {
	return New(tok, FromEnd)
}

// NewFromMiddle creates a truncator that keeps the beginning and the end.
func NewFromMiddle(tok tokens.Tokenizer) *Truncator {
	return New(tok, FromMiddle)
}

// NewFromStart creates a truncator that keeps the end of the text.
func NewFromStart(tok tokens.Tokenizer) *Truncator {
	return New(tok, FromStart)
}

// WithMarker sets the text inserted where content was removed.
// The marker's tokens count against the limit.
func (t *Truncator) WithMarker(marker string) *Truncator {
	t.marker = marker
	return t
}

// Strategy returns the truncator's strategy.
func (t *Truncator) Strategy() Strategy {
	return t.strategy
}

// Marker returns the truncator's marker.
func (t *Truncator) Marker() string {
	return t.marker
}

// Truncate reduces text to at most maxTokens tokens.
// Returns the text unchanged, and false, when it already fits.
// A truncated result always re-tokenizes to at most maxTokens tokens.
func (t *Truncator) Truncate(text string, maxTokens int) (string, bool, error) {
	ids, err := t.tok.Tokenize(text)
	if err != nil {
		return "", false, fmt.Errorf("truncate: tokenize: %w", err)
	}
	if len(ids) <= maxTokens {
		return text, false, nil
	}
	if maxTokens <= 0 {
		return "", true, nil
	}

	markerTokens, err := tokens.Count(t.tok, t.marker)
	if err != nil {
		return "", false, fmt.Errorf("truncate: tokenize marker: %w", err)
	}
	target := maxTokens - markerTokens
	if target <= 0 {
		return "", true, nil
	}

	var result string
	switch t.strategy {
	case FromMiddle:
		result, err = t.truncateMiddle(ids, target, maxTokens)
	case FromStart:
		result, err = t.truncateStart(ids, target, maxTokens)
	default:
		result, err = t.truncateEnd(text, target, maxTokens)
	}
	if err != nil {
		return "", false, fmt.Errorf("truncate %s: %w", t.strategy, err)
	}
	return result, true, nil
}

// ToTokens keeps the prefix of text that fits in maxTokens tokens.
func ToTokens(tok tokens.Tokenizer, text string, maxTokens int) (string, error) {
	result, _, err := NewFromEnd(tok).Truncate(text, maxTokens)
	return result, err
}
