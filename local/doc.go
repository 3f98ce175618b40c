// Package local runs local models through a Python sidecar process.
//
// The sidecar hosts the inference engine and the model tokenizer; this
// package drives it with JSON-RPC 2.0 over stdio:
//
//	Go Client <--JSON-RPC/stdio--> Python Sidecar <--> llama.cpp / transformers / ollama / vllm
//
// The sidecar starts lazily on the first request, loads the model once, and
// is restarted automatically if it crashes. Everything it writes to stderr is
// logged at debug level.
//
// # Supported Backends
//
//   - llama.cpp: GGUF model loaded in-process (default)
//   - transformers: Hugging Face model loaded in-process
//   - ollama: Ollama API server (default host: localhost:11434)
//   - vllm: vLLM server (default host: localhost:8000)
//
// llama.cpp models start with n_ctx=4096, n_gpu_layers=-1, n_threads=8 and
// seed=1337 unless configured otherwise.
//
// # Protocol
//
// Messages are newline-delimited JSON.
//
// Request (client -> sidecar):
//
//	{"jsonrpc": "2.0", "method": "generate", "params": {"prompt": "..."}, "id": 1}
//
// Response (sidecar -> client):
//
//	{"jsonrpc": "2.0", "result": {"text": "..."}, "id": 1}
//
// Methods: init, generate, tokenize, encode, decode, shutdown.
//
// Streaming starts with a stream.start notification carrying the same
// parameters as generate. The sidecar answers with stream.chunk
// notifications and ends with exactly one stream.done or stream.error.
// A stream.cancel notification asks it to stop early.
//
// # Tokenizer
//
// Client also implements tokens.Tokenizer, so the model's own tokenizer can
// drive context selection:
//
//	client := local.NewClient(
//	    local.WithSidecarPath("/opt/promptctx/sidecar.py"),
//	    local.WithModel("./model/Phi-3-mini-4k-instruct-q4.gguf"),
//	    local.WithTokenizer("microsoft/Phi-3-mini-4k-instruct"),
//	)
//	defer client.Close()
//
//	mgr := contextmgr.New(client, tmpl, 2560)
//
// # Concurrency
//
// The sidecar processes one request at a time. Client is safe for concurrent
// use; calls queue for the sidecar, and an open stream holds it until its
// final chunk is delivered or its context is cancelled.
package local
