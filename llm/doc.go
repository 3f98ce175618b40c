// Package llm turns a conversation into a completion.
//
// A Client selects the part of the history that fits the token budget,
// renders it through the chat template, strips the tokenizer's
// beginning-of-sequence marker and hands the prompt to a backend:
//
//	cfg, err := llm.Load("promptctx.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := llm.Open(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	chunks, err := client.Stream(ctx, messages, llm.WithMaxTokens(256))
//	for chunk := range llm.ByWord(chunks) {
//	    fmt.Print(chunk.Content)
//	}
//
// The backend must be registered with the provider package; importing
// github.com/randalmurphal/promptctx/providers registers the built-in ones.
// The core never retries. Cancellation is left to ctx and the backend.
package llm
