package provider

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockClient is a test double for Client.
// It supports fixed responses, sequential responses, and custom handlers.
type MockClient struct {
	mu           sync.Mutex
	responses    []string
	responseIdx  int
	fragments    []string
	err          error
	completeFunc func(ctx context.Context, req Request) (*Response, error)

	// Calls tracks all requests for assertions.
	Calls []Request
}

// NewMockClient creates a mock that returns a fixed response.
func NewMockClient(response string) *MockClient {
	return &MockClient{responses: []string{response}}
}

// WithResponses configures sequential responses.
// Cycles back to the beginning after exhausting all responses.
func (m *MockClient) WithResponses(responses ...string) *MockClient {
	m.responses = responses
	return m
}

// WithFragments configures the exact fragments Stream emits.
// Without it, Stream splits the next response after each space.
func (m *MockClient) WithFragments(fragments ...string) *MockClient {
	m.fragments = fragments
	return m
}

// WithError configures the mock to always return an error.
func (m *MockClient) WithError(err error) *MockClient {
	m.err = err
	return m
}

// WithCompleteFunc sets a custom handler for Complete calls.
func (m *MockClient) WithCompleteFunc(fn func(ctx context.Context, req Request) (*Response, error)) *MockClient {
	m.completeFunc = fn
	return m
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	fn := m.completeFunc
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	if m.err != nil {
		return nil, m.err
	}

	content := m.next()
	return &Response{
		Content:      content,
		Model:        "mock",
		FinishReason: "stop",
		RequestID:    req.ID,
		Duration:     time.Millisecond,
		Usage: TokenUsage{
			InputTokens:  len(strings.Fields(req.Prompt)),
			OutputTokens: len(strings.Fields(content)),
			TotalTokens:  len(strings.Fields(req.Prompt)) + len(strings.Fields(content)),
		},
	}, nil
}

// Stream implements Client.
func (m *MockClient) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}

	fragments := m.fragments
	if fragments == nil {
		fragments = splitAfterSpaces(m.next())
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		for _, f := range fragments {
			select {
			case <-ctx.Done():
				ch <- StreamChunk{Error: ctx.Err()}
				return
			case ch <- StreamChunk{Content: f}:
			}
		}
		ch <- StreamChunk{Done: true, Usage: &TokenUsage{OutputTokens: len(fragments)}}
	}()
	return ch, nil
}

// Provider implements Client.
func (m *MockClient) Provider() string {
	return "mock"
}

// Capabilities implements Client.
func (m *MockClient) Capabilities() Capabilities {
	return Capabilities{Streaming: true}
}

// Close implements Client.
func (m *MockClient) Close() error {
	return nil
}

// LastCall returns the most recent request, or the zero Request.
func (m *MockClient) LastCall() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return Request{}
	}
	return m.Calls[len(m.Calls)-1]
}

func (m *MockClient) next() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		return ""
	}
	r := m.responses[m.responseIdx%len(m.responses)]
	m.responseIdx++
	return r
}

func splitAfterSpaces(s string) []string {
	if s == "" {
		return nil
	}
	return strings.SplitAfter(s, " ")
}
