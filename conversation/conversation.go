// Package conversation reads chat histories from disk.
//
// A conversation file holds either a JSON array of messages or one message
// object per line (JSONL):
//
//	[
//	  // comments and trailing commas are accepted
//	  {"role": "system", "content": "You are terse."},
//	  {"role": "user", "content": "Hi"},
//	]
//
//	{"role": "system", "content": "You are terse."}
//	{"role": "user", "content": "Hi"}
//
// Watch follows a file and re-reads it whenever it changes, which lets a
// prompt be re-rendered while the conversation is edited.
package conversation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/randalmurphal/promptctx/provider"
)

// ErrInvalidMessage indicates a message without a role.
var ErrInvalidMessage = errors.New("invalid message")

// Parse decodes a conversation from a JSON array or JSONL.
// Empty input yields an empty conversation.
func Parse(data []byte) ([]provider.Message, error) {
	clean := jsonc.ToJSON(data)
	trimmed := bytes.TrimSpace(clean)
	if len(trimmed) == 0 {
		return []provider.Message{}, nil
	}

	var messages []provider.Message
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &messages); err != nil {
			return nil, fmt.Errorf("parse conversation: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		for {
			var msg provider.Message
			err := dec.Decode(&msg)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("parse conversation: message %d: %w", len(messages), err)
			}
			messages = append(messages, msg)
		}
	}

	for i, msg := range messages {
		if msg.Role == "" {
			return nil, fmt.Errorf("%w: message %d has no role", ErrInvalidMessage, i)
		}
	}
	if messages == nil {
		messages = []provider.Message{}
	}
	return messages, nil
}

// Read decodes a conversation from r.
func Read(r io.Reader) ([]provider.Message, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}
	return Parse(data)
}

// Load reads and parses the conversation file at path.
func Load(path string) ([]provider.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	msgs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return msgs, nil
}

// Save writes messages to path as an indented JSON array.
func Save(path string, messages []provider.Message) error {
	if messages == nil {
		messages = []provider.Message{}
	}
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}
