// Package contextmgr fits a conversation into a model's token budget and
// renders it into a prompt.
//
// A Manager owns three collaborators: the model tokenizer, a chat-template
// renderer and a fixed budget of available tokens. Selection keeps a leading
// system message unconditionally, then walks the rest of the conversation
// accumulating token counts. Consecutive messages from the same role are
// merged with a blank line between them. The message that would reach the
// budget is truncated to whatever room is left and the walk stops there.
//
//	tok := tokens.NewWordTokenizer()
//	tmpl, _ := template.Lookup("phi3")
//	m := contextmgr.New(tok, tmpl, 2560)
//
//	prompt, err := m.BuildPrompt(messages)
//	prompt = contextmgr.StripBOS(prompt, tok.BOS())
//
// # Policies
//
// KeepOldest (the default) walks from the oldest message forward, so the
// start of a long conversation wins over its end. KeepNewest walks backward
// from the latest message and truncates the boundary message from its start,
// keeping the most recent context. Both emit messages in chronological order.
// WithBoundaryCut overrides which part of the boundary message survives, for
// example its head and tail around a marker.
//
// A Manager holds no per-call state and is safe for concurrent use as long as
// its tokenizer and renderer are.
package contextmgr
