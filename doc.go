// Package promptctx drives a local language model from a chat history.
//
// The module is split into small packages that can be used on their own:
//
//   - tokens: the Tokenizer capability, word and tiktoken tokenizers, budgets
//   - truncate: token-exact truncation that keeps the start, end or both ends
//   - template: chat templates that turn messages into one prompt string
//   - contextmgr: selection of the history that fits a token budget
//   - provider: the backend interface, errors and registry
//   - local: a backend that talks JSON-RPC to a Python inference sidecar
//   - conversation: loading and watching conversation files
//   - llm: select, render, strip BOS and generate in one call
//
// # Quick Start
//
// Selecting and rendering a conversation:
//
//	tmpl, _ := template.Lookup(template.Phi3)
//	mgr := contextmgr.New(tokens.NewWordTokenizer(), tmpl, 2560)
//	prompt, err := mgr.BuildPrompt(messages)
//
// Generating against the local sidecar:
//
//	import _ "github.com/randalmurphal/promptctx/providers"
//
//	cfg, _ := llm.Load("promptctx.yaml")
//	client, err := llm.Open(ctx, cfg)
//	resp, err := client.Complete(ctx, messages, llm.WithMaxTokens(256))
package promptctx
