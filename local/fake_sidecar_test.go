package local

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/randalmurphal/promptctx/tokens"
)

// fakeSidecar speaks the sidecar protocol over in-memory pipes.
type fakeSidecar struct {
	t     *testing.T
	vocab *tokens.WordTokenizer

	writeMu sync.Mutex
	out     io.Writer

	mu       sync.Mutex
	methods  []string
	requests map[string][]json.RawMessage

	// generate answers "generate"; nil echoes the prompt.
	generate func(p GenerateParams) (any, *RPCError)

	// stream drives "stream.start"; nil emits "Hello", " world" and done.
	stream func(p GenerateParams, emit func(method string, params any), cancelled <-chan struct{})

	cancelled chan struct{}
}

func newFakeSidecar(t *testing.T) (*fakeSidecar, *Protocol) {
	t.Helper()

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	f := &fakeSidecar{
		t:         t,
		vocab:     tokens.NewWordTokenizer(),
		out:       respW,
		requests:  make(map[string][]json.RawMessage),
		cancelled: make(chan struct{}),
	}
	go f.serve(reqR)

	t.Cleanup(func() {
		_ = reqW.Close()
		_ = respW.Close()
	})
	return f, NewProtocol(respR, reqW)
}

// attach points c at the fake instead of a real process.
func (f *fakeSidecar) attach(c *Client, proto *Protocol) {
	c.connect = func(context.Context) (*Protocol, InitResult, error) {
		f.record(MethodInit, nil)
		return proto, InitResult{Ready: true, BOSToken: "<s>", ContextLength: 4096}, nil
	}
}

func (f *fakeSidecar) record(method string, params json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, method)
	f.requests[method] = append(f.requests[method], params)
}

func (f *fakeSidecar) calls(method string) []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[method]
}

func (f *fakeSidecar) serve(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		var msg struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
			ID     *int64          `json:"id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			f.t.Errorf("fake sidecar: bad message: %v", err)
			return
		}
		f.record(msg.Method, msg.Params)

		switch msg.Method {
		case NotifyStreamStart:
			var p GenerateParams
			_ = json.Unmarshal(msg.Params, &p)
			go f.runStream(p)
		case NotifyStreamCancel:
			close(f.cancelled)
		default:
			result, rpcErr := f.handle(msg.Method, msg.Params)
			f.send(map[string]any{"jsonrpc": "2.0", "id": *msg.ID, "result": result, "error": rpcErr})
		}
	}
}

func (f *fakeSidecar) handle(method string, raw json.RawMessage) (any, *RPCError) {
	switch method {
	case MethodGenerate:
		var p GenerateParams
		_ = json.Unmarshal(raw, &p)
		if f.generate != nil {
			return f.generate(p)
		}
		return GenerateResult{
			Text:         "echo: " + p.Prompt,
			Model:        p.Model,
			FinishReason: "stop",
			Usage:        UsageResult{InputTokens: 3, OutputTokens: 4, TotalTokens: 7},
		}, nil

	case MethodTokenize:
		var p TokenizeParams
		_ = json.Unmarshal(raw, &p)
		ids, _ := f.vocab.Tokenize(p.Text)
		return IDsResult{IDs: ids}, nil

	case MethodEncode:
		var p EncodeParams
		_ = json.Unmarshal(raw, &p)
		ids, _ := f.vocab.Encode(p.Text, p.MaxTokens)
		return IDsResult{IDs: ids}, nil

	case MethodDecode:
		var p DecodeParams
		_ = json.Unmarshal(raw, &p)
		text, err := f.vocab.Decode(p.IDs)
		if err != nil {
			return nil, &RPCError{Code: CodeInvalidParams, Message: err.Error()}
		}
		return DecodeResult{Text: text}, nil

	case MethodShutdown:
		return ShutdownResult{Success: true}, nil

	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + method}
	}
}

func (f *fakeSidecar) runStream(p GenerateParams) {
	emit := func(method string, params any) {
		f.send(map[string]any{"jsonrpc": "2.0", "method": method, "params": params})
	}
	if f.stream != nil {
		f.stream(p, emit, f.cancelled)
		return
	}
	for _, word := range []string{"Hello", " world"} {
		emit(NotifyStreamChunk, StreamChunkParams{RequestID: p.RequestID, Content: word})
	}
	emit(NotifyStreamDone, StreamDoneParams{
		RequestID:    p.RequestID,
		FinishReason: "stop",
		Usage:        UsageResult{InputTokens: len(strings.Fields(p.Prompt)), OutputTokens: 2, TotalTokens: len(strings.Fields(p.Prompt)) + 2},
	})
}

func (f *fakeSidecar) send(msg map[string]any) {
	if msg["error"] == (*RPCError)(nil) {
		delete(msg, "error")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		f.t.Errorf("fake sidecar: marshal: %v", err)
		return
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_, _ = f.out.Write(append(data, '\n'))
}
