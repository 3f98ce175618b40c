// Package provider defines the boundary between prompt construction and the
// model backend that turns a rendered prompt into text.
//
// A backend receives a single prompt string plus free-form generation
// parameters and returns either one completion or a stream of text fragments.
// Backends register a factory under a name and are created through the
// registry:
//
//	client, err := provider.New("local", provider.Config{
//	    Model: "phi-3-mini-4k-instruct.Q8_0.gguf",
//	    Options: map[string]any{
//	        "backend":      "llama.cpp",
//	        "sidecar_path": "/opt/promptctx/sidecar.py",
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
// # Streaming
//
// Stream returns a receive-only channel. It is single-pass: each fragment is
// delivered once, the channel is closed after a chunk with Done or Error set,
// and a finished stream cannot be restarted.
package provider

import "context"

// Client is the interface every generation backend implements.
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete generates the full completion for req.Prompt.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream generates the completion incrementally.
	// Errors during streaming are returned via chunk.Error.
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)

	// Provider returns the registered provider name.
	Provider() string

	// Capabilities returns what this backend supports.
	Capabilities() Capabilities

	// Close releases any resources held by the client.
	Close() error
}

// Capabilities describes what a backend supports.
type Capabilities struct {
	// Streaming indicates incremental fragment delivery.
	Streaming bool `json:"streaming"`

	// Tokenize indicates the client also exposes the model tokenizer.
	Tokenize bool `json:"tokenize"`

	// ChatTemplate indicates the backend can render chat templates itself.
	ChatTemplate bool `json:"chat_template"`
}

// LocalCapabilities describes the sidecar-backed local provider.
var LocalCapabilities = Capabilities{
	Streaming:    true,
	Tokenize:     true,
	ChatTemplate: false,
}
