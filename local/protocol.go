package local

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// JSON-RPC 2.0 protocol types for sidecar communication.

const jsonrpcVersion = "2.0"

// RPC method and notification names.
const (
	MethodInit     = "init"
	MethodGenerate = "generate"
	MethodTokenize = "tokenize"
	MethodEncode   = "encode"
	MethodDecode   = "decode"
	MethodShutdown = "shutdown"

	NotifyStreamStart  = "stream.start"
	NotifyStreamCancel = "stream.cancel"
	NotifyStreamChunk  = "stream.chunk"
	NotifyStreamDone   = "stream.done"
	NotifyStreamError  = "stream.error"
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int64  `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

// Notification is a JSON-RPC 2.0 notification (no ID, no response expected).
// Params stays raw on the way in so each method decodes its own payload.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// outgoingNotification is a Notification whose params are not yet encoded.
type outgoingNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("RPC error %d: %s (data: %s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application-specific error codes (range -32000 to -32099).
const (
	CodeBackendError    = -32000 // engine raised during generation
	CodeModelNotFound   = -32001 // model file or id could not be loaded
	CodeStreamError     = -32002 // streaming failed mid-way
	CodeConnectionError = -32003 // ollama or vllm server unreachable
	CodeContextOverflow = -32004 // prompt longer than the context window
)

// GenerateParams are the parameters for "generate" and "stream.start".
// Prompt is the rendered conversation without a leading BOS marker.
type GenerateParams struct {
	RequestID   string         `json:"request_id,omitempty"`
	Prompt      string         `json:"prompt"`
	Model       string         `json:"model,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
	Stop        []string       `json:"stop,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

// GenerateResult is the result of a "generate" RPC call.
type GenerateResult struct {
	Text         string      `json:"text"`
	Model        string      `json:"model,omitempty"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        UsageResult `json:"usage"`
}

// UsageResult tracks token usage.
type UsageResult struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// StreamChunkParams are the parameters for stream.chunk notifications.
type StreamChunkParams struct {
	RequestID string `json:"request_id,omitempty"`
	Content   string `json:"content"`
}

// StreamDoneParams are the parameters for stream.done notifications.
type StreamDoneParams struct {
	RequestID    string      `json:"request_id,omitempty"`
	Usage        UsageResult `json:"usage"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Model        string      `json:"model,omitempty"`
}

// StreamErrorParams are the parameters for stream.error notifications.
type StreamErrorParams struct {
	RequestID string `json:"request_id,omitempty"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
}

// TokenizeParams are the parameters for the "tokenize" RPC method.
// Special tokens are never added.
type TokenizeParams struct {
	Text string `json:"text"`
}

// EncodeParams are the parameters for the "encode" RPC method.
// The sidecar truncates to MaxTokens instead of failing.
type EncodeParams struct {
	Text      string `json:"text"`
	MaxTokens int    `json:"max_tokens"`
}

// IDsResult is the result of "tokenize" and "encode".
type IDsResult struct {
	IDs []int `json:"ids"`
}

// DecodeParams are the parameters for the "decode" RPC method.
type DecodeParams struct {
	IDs []int `json:"ids"`
}

// DecodeResult is the result of a "decode" RPC call.
type DecodeResult struct {
	Text string `json:"text"`
}

// InitParams are the parameters for the "init" RPC method.
type InitParams struct {
	Backend   string         `json:"backend"`
	Model     string         `json:"model"`
	Tokenizer string         `json:"tokenizer,omitempty"`
	Host      string         `json:"host,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// InitResult is the result of an "init" RPC call.
type InitResult struct {
	Ready         bool   `json:"ready"`
	Version       string `json:"version,omitempty"`
	Message       string `json:"message,omitempty"`
	BOSToken      string `json:"bos_token,omitempty"`
	EOSToken      string `json:"eos_token,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`
}

// ShutdownResult is the result of a "shutdown" RPC call.
type ShutdownResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Protocol handles JSON-RPC encoding/decoding over stdio.
type Protocol struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex // Protects writer
	readMu  sync.Mutex // Protects reader for concurrent reads
	nextID  int64
}

// maxLineSize bounds a single protocol line; long prompts and completions
// travel as one JSON line.
const maxLineSize = 16 << 20

// NewProtocol creates a new JSON-RPC protocol handler.
func NewProtocol(r io.Reader, w io.Writer) *Protocol {
	return &Protocol{
		reader: bufio.NewReaderSize(r, 64*1024),
		writer: w,
	}
}

// Call sends a request and waits for its response, skipping notifications
// and responses to other ids. The result is unmarshaled into result.
// Concurrent callers are serialized on the reader.
func (p *Protocol) Call(method string, params, result any) error {
	id := atomic.AddInt64(&p.nextID, 1)

	req := Request{
		JSONRPC: jsonrpcVersion,
		Method:  method,
		Params:  params,
		ID:      id,
	}
	if err := p.send(req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	p.readMu.Lock()
	defer p.readMu.Unlock()

	for {
		line, err := p.readLine()
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		var msg struct {
			ID *int64 `json:"id"`
		}
		if err := json.Unmarshal(line, &msg); err != nil {
			return fmt.Errorf("parse message: %w", err)
		}
		if msg.ID == nil || *msg.ID != id {
			continue
		}

		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	}
}

// Notify sends a notification (no response expected).
func (p *Protocol) Notify(method string, params any) error {
	return p.send(outgoingNotification{
		JSONRPC: jsonrpcVersion,
		Method:  method,
		Params:  params,
	})
}

// send marshals and writes one newline-terminated message.
func (p *Protocol) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err = p.writer.Write(data)
	return err
}

// ReadMessage reads a single message (response or notification).
// Returns the raw JSON for further processing.
// This method is safe for concurrent use.
func (p *Protocol) ReadMessage() ([]byte, error) {
	p.readMu.Lock()
	defer p.readMu.Unlock()
	return p.readLine()
}

func (p *Protocol) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := p.reader.ReadLine()
		if err != nil {
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > maxLineSize {
			return nil, fmt.Errorf("message exceeds %d bytes", maxLineSize)
		}
		if !isPrefix {
			return line, nil
		}
	}
}

// ParseNotification attempts to parse a message as a notification.
// Returns nil, nil if the message is a response.
func ParseNotification(data []byte) (*Notification, error) {
	var msg struct {
		ID *int64 `json:"id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID != nil {
		return nil, nil
	}

	var notif Notification
	if err := json.Unmarshal(data, &notif); err != nil {
		return nil, err
	}
	return &notif, nil
}

// IsNotification checks if a message is a notification (no ID).
func IsNotification(data []byte) bool {
	var msg struct {
		ID *int64 `json:"id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return false
	}
	return msg.ID == nil
}
