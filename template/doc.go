// Package template renders conversations into model prompt strings.
//
// A ChatTemplate describes how a model expects a conversation to be laid
// out: role markers, turn separators, the beginning-of-sequence marker and
// whether the prompt ends with an open assistant turn. Templates are written
// in Go template syntax or a Handlebars-like subset that is converted before
// parsing:
//
//	{{bos}}{{#each messages}}<|{{.Role}}|>
//	{{.Content}}<|end|>
//	{{/each}}
//
// Built-in templates cover the Phi-3, ChatML, Llama 2, Llama 3 and Zephyr
// formats:
//
//	tmpl, err := template.Lookup("phi3")
//	prompt, err := tmpl.Render(messages)
//
// Custom templates are loaded with FromFile and must iterate messages (or
// turns). Compiled templates are cached per source, so rendering the same
// template repeatedly parses it once.
//
// # Helpers
//
//   - json(v any) string - compact JSON
//   - upper, lower, trim - string case and whitespace
//   - replace(s, old, new string) string
//   - contains, hasPrefix, hasSuffix - string predicates
//   - default(val, defaultVal any) any - default for nil or ""
//   - last(i, n int) bool - whether i is the final index of n items
package template
