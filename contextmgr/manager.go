package contextmgr

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/randalmurphal/promptctx/provider"
	"github.com/randalmurphal/promptctx/template"
	"github.com/randalmurphal/promptctx/tokens"
	"github.com/randalmurphal/promptctx/truncate"
)

// ErrTokenize wraps every tokenizer failure surfaced by a Manager.
var ErrTokenize = errors.New("tokenize")

// mergeSeparator joins consecutive same-role messages.
const mergeSeparator = "\n\n"

// Policy selects which end of a conversation survives when it is over budget.
type Policy int

const (
	// KeepOldest walks oldest to newest and cuts the tail of the conversation.
	KeepOldest Policy = iota

	// KeepNewest walks newest to oldest and cuts the head of the conversation.
	KeepNewest
)

// String returns the policy name accepted by ParsePolicy.
func (p Policy) String() string {
	switch p {
	case KeepOldest:
		return "oldest"
	case KeepNewest:
		return "newest"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses "oldest" or "newest". The empty string is KeepOldest.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "oldest", "keep-oldest":
		return KeepOldest, nil
	case "newest", "keep-newest":
		return KeepNewest, nil
	default:
		return KeepOldest, fmt.Errorf("unknown selection policy %q (want oldest or newest)", s)
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithPolicy sets the selection policy.
func WithPolicy(p Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithLogger sets the logger used for selection reports.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithBoundaryCut replaces the policy's cut for the message that reaches the
// budget. A non-empty marker is inserted where content was removed and counts
// against the budget; FromMiddle without one uses truncate.DefaultMiddleMarker.
func WithBoundaryCut(s truncate.Strategy, marker string) Option {
	return func(m *Manager) {
		t := truncate.New(m.tok, s)
		if marker != "" {
			t.WithMarker(marker)
		}
		m.boundary = t
	}
}

// Manager selects and renders conversations under a fixed token budget.
type Manager struct {
	tok      tokens.Tokenizer
	renderer template.Renderer
	budget   int
	policy   Policy
	logger   *slog.Logger

	keepTail *truncate.Truncator
	boundary *truncate.Truncator // nil follows the policy
}

// New creates a Manager. maxAvailableTokens is the budget shared by the
// system message and the selected history.
func New(tok tokens.Tokenizer, renderer template.Renderer, maxAvailableTokens int, opts ...Option) *Manager {
	m := &Manager{
		tok:      tok,
		renderer: renderer,
		budget:   maxAvailableTokens,
		policy:   KeepOldest,
		logger:   slog.Default(),
		keepTail: truncate.NewFromStart(tok),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Budget returns the maximum number of tokens a selection may use.
func (m *Manager) Budget() int {
	return m.budget
}

// Policy returns the selection policy.
func (m *Manager) Policy() Policy {
	return m.policy
}

// Tokenizer returns the tokenizer the Manager counts with.
func (m *Manager) Tokenizer() tokens.Tokenizer {
	return m.tok
}

// CountTokens returns the number of tokens text occupies.
func (m *Manager) CountTokens(text string) (int, error) {
	n, err := tokens.Count(m.tok, text)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTokenize, err)
	}
	return n, nil
}

// TruncateToTokens returns the prefix of text reconstructed from its first
// limit tokens. Text that already fits is returned unchanged.
func (m *Manager) TruncateToTokens(text string, limit int) (string, error) {
	if limit <= 0 {
		return "", nil
	}
	out, err := truncate.ToTokens(m.tok, text, limit)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenize, err)
	}
	return out, nil
}

// truncateKeepingEnd is TruncateToTokens for the suffix of text.
func (m *Manager) truncateKeepingEnd(text string, limit int) (string, error) {
	if limit <= 0 {
		return "", nil
	}
	out, _, err := m.keepTail.Truncate(text, limit)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenize, err)
	}
	return out, nil
}

// boundaryCut returns the configured boundary cut, or policyCut when none is set.
func (m *Manager) boundaryCut(policyCut func(string, int) (string, error)) func(string, int) (string, error) {
	if m.boundary == nil {
		return policyCut
	}
	return func(text string, limit int) (string, error) {
		out, _, err := m.boundary.Truncate(text, limit)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrTokenize, err)
		}
		return out, nil
	}
}

// Render formats a conversation with the chat template, without selection.
func (m *Manager) Render(conversation []provider.Message) (string, error) {
	out, err := m.renderer.Render(conversation)
	if err != nil {
		return "", fmt.Errorf("render conversation: %w", err)
	}
	return out, nil
}

// BuildPrompt selects the budget-fitting part of conversation and renders it.
func (m *Manager) BuildPrompt(conversation []provider.Message) (string, error) {
	selected, err := m.Select(conversation)
	if err != nil {
		return "", err
	}
	return m.Render(selected)
}

// StripBOS removes one leading occurrence of marker from prompt.
// Backends add their own BOS token, so a rendered prompt must not carry one.
func StripBOS(prompt, marker string) string {
	if marker == "" {
		return prompt
	}
	return strings.TrimPrefix(prompt, marker)
}

// mergeInto appends msg to the last entry when the roles match, or as a new
// entry otherwise. It reports whether a merge happened.
func mergeInto(kept []provider.Message, msg provider.Message, prepend bool) ([]provider.Message, bool) {
	n := len(kept)
	if n == 0 || kept[n-1].Role != msg.Role {
		return append(kept, msg), false
	}
	if prepend {
		kept[n-1].Content = msg.Content + mergeSeparator + kept[n-1].Content
	} else {
		kept[n-1].Content += mergeSeparator + msg.Content
	}
	return kept, true
}

// reversed returns a reversed copy of msgs.
func reversed(msgs []provider.Message) []provider.Message {
	out := slices.Clone(msgs)
	slices.Reverse(out)
	return out
}
