package provider

import "time"

// Role identifies the message sender.
type Role string

// Standard conversation roles. Any other value is carried through untouched.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
}

// NewTextMessage creates a message with the given role and content.
func NewTextMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// System creates a system message.
func System(content string) Message { return NewTextMessage(RoleSystem, content) }

// User creates a user message.
func User(content string) Message { return NewTextMessage(RoleUser, content) }

// Assistant creates an assistant message.
func Assistant(content string) Message { return NewTextMessage(RoleAssistant, content) }

// IsSystem reports whether the message carries the system role.
func (m Message) IsSystem() bool {
	return m.Role == RoleSystem
}

// Request is a raw-prompt generation call.
// Prompt is already rendered through a chat template and stripped of any
// leading beginning-of-sequence marker.
type Request struct {
	// ID correlates log records and sidecar traffic for one generation.
	ID string `json:"id,omitempty"`

	// Prompt is the fully rendered model input.
	Prompt string `json:"prompt"`

	// Model overrides the backend's configured model.
	Model string `json:"model,omitempty"`

	// MaxTokens limits the completion length. Zero uses the backend default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls sampling randomness.
	Temperature float64 `json:"temperature,omitempty"`

	// Stop lists sequences that end generation.
	Stop []string `json:"stop,omitempty"`

	// Options are backend sampling flags passed through without interpretation
	// (top_p, top_k, repeat_penalty, ...).
	Options map[string]any `json:"options,omitempty"`
}

// Response is the output of a completion call.
type Response struct {
	// Content is the generated text.
	Content string `json:"content"`

	// Usage tracks token consumption for this request.
	Usage TokenUsage `json:"usage"`

	// Model is the model that served the request.
	Model string `json:"model"`

	// FinishReason indicates why generation stopped ("stop", "length").
	FinishReason string `json:"finish_reason"`

	// Duration is the wall time spent in the backend.
	Duration time.Duration `json:"duration"`

	// RequestID echoes Request.ID.
	RequestID string `json:"request_id,omitempty"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add combines token usage from another TokenUsage.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// StreamChunk is one fragment of a streaming completion.
type StreamChunk struct {
	// Content is the text in this fragment. It may be empty.
	Content string `json:"content,omitempty"`

	// Usage is set on the final chunk when the backend reports it.
	Usage *TokenUsage `json:"usage,omitempty"`

	// Done marks the final chunk.
	Done bool `json:"done"`

	// Error is non-nil if streaming failed. It is always the last chunk.
	Error error `json:"-"`
}
