package template

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/randalmurphal/promptctx/provider"
)

// Renderer turns an ordered conversation into one prompt string.
type Renderer interface {
	Render(messages []provider.Message) (string, error)
}

// ChatTemplate is a model's conversation format.
//
// Templates see these variables:
//
//	messages               every message, in order
//	system                 content of a leading system message, or ""
//	turns                  messages after the leading system message
//	bos, eos               the BOS and EOS markers below
//	add_generation_prompt  AddGenerationPrompt
//
// Inside {{#each}} the dot is a provider.Message ({{.Role}}, {{.Content}}).
// Shorthand names such as {{eos}} always refer to the variables above.
type ChatTemplate struct {
	Name   string `json:"name" yaml:"name" toml:"name"`
	Source string `json:"source" yaml:"source" toml:"source"`
	BOS    string `json:"bos" yaml:"bos" toml:"bos"`
	EOS    string `json:"eos" yaml:"eos" toml:"eos"`

	// AddGenerationPrompt opens an assistant turn at the end of the prompt for
	// templates that support it.
	AddGenerationPrompt bool `json:"add_generation_prompt" yaml:"add_generation_prompt" toml:"add_generation_prompt"`
}

// Render implements Renderer.
func (c ChatTemplate) Render(messages []provider.Message) (string, error) {
	var system string
	turns := messages
	if len(messages) > 0 && messages[0].IsSystem() {
		system = messages[0].Content
		turns = messages[1:]
	}

	out, err := defaultEngine.Render(c.Source, map[string]any{
		"messages":              messages,
		"system":                system,
		"turns":                 turns,
		"bos":                   c.BOS,
		"eos":                   c.EOS,
		"add_generation_prompt": c.AddGenerationPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("render %s: %w", c.displayName(), err)
	}
	return out, nil
}

// Validate checks that the template parses and iterates the conversation.
func (c ChatTemplate) Validate() error {
	vars, err := defaultEngine.Parse(c.Source)
	if err != nil {
		return fmt.Errorf("chat template %s: %w", c.displayName(), err)
	}
	if !slices.Contains(vars, "messages") && !slices.Contains(vars, "turns") {
		return fmt.Errorf("chat template %s: %w: never references messages", c.displayName(), ErrParse)
	}
	return nil
}

func (c ChatTemplate) displayName() string {
	if c.Name == "" {
		return "(unnamed)"
	}
	return c.Name
}

// Built-in template names.
const (
	Phi3   = "phi3"
	ChatML = "chatml"
	Llama2 = "llama2"
	Llama3 = "llama3"
	Zephyr = "zephyr"
)

var builtins = map[string]ChatTemplate{
	// Phi-3 instruct opens the assistant turn after every user message.
	Phi3: {
		Name: Phi3,
		BOS:  "<s>",
		EOS:  "<|endoftext|>",
		Source: "{{bos}}{{#each messages}}" +
			`{{if eq .Role "user"}}<|user|>` + "\n{{.Content}}<|end|>\n<|assistant|>\n" +
			`{{else if eq .Role "assistant"}}{{.Content}}<|end|>` + "\n" +
			"{{else}}<|{{.Role}}|>\n{{.Content}}<|end|>\n{{end}}" +
			"{{/each}}",
	},
	ChatML: {
		Name: ChatML,
		EOS:  "<|im_end|>",
		Source: "{{#each messages}}<|im_start|>{{.Role}}\n{{.Content}}<|im_end|>\n{{/each}}" +
			"{{#if add_generation_prompt}}<|im_start|>assistant\n{{/if}}",
	},
	Llama2: {
		Name: Llama2,
		BOS:  "<s>",
		EOS:  "</s>",
		Source: `{{range $i, $m := .turns}}{{if eq $m.Role "user"}}{{$.bos}}[INST] ` +
			"{{if and (eq $i 0) $.system}}<<SYS>>\n{{$.system}}\n<</SYS>>\n\n{{end}}" +
			"{{trim $m.Content}} [/INST]{{else}} {{trim $m.Content}} {{$.eos}}{{end}}{{end}}",
	},
	Llama3: {
		Name: Llama3,
		BOS:  "<|begin_of_text|>",
		EOS:  "<|eot_id|>",
		Source: "{{bos}}{{#each messages}}<|start_header_id|>{{.Role}}<|end_header_id|>\n\n{{trim .Content}}<|eot_id|>{{/each}}" +
			"{{#if add_generation_prompt}}<|start_header_id|>assistant<|end_header_id|>\n\n{{/if}}",
	},
	Zephyr: {
		Name: Zephyr,
		EOS:  "</s>",
		Source: "{{#each messages}}<|{{.Role}}|>\n{{.Content}}{{$.eos}}\n{{/each}}" +
			"{{#if add_generation_prompt}}<|assistant|>\n{{/if}}",
	},
}

var aliases = map[string]string{
	"phi-3":   Phi3,
	"fietje":  Phi3,
	"qwen":    ChatML,
	"mistral": Llama2,
	"llama-2": Llama2,
	"llama-3": Llama3,
}

// Lookup returns the built-in template registered under name.
// Names are case-insensitive and accept aliases such as "phi-3" and "fietje".
func Lookup(name string) (ChatTemplate, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	tmpl, ok := builtins[key]
	if !ok {
		return ChatTemplate{}, fmt.Errorf("%w: %q (available: %v)", ErrUnknownTemplate, name, Names())
	}
	return tmpl, nil
}

// Names returns the sorted names of the built-in templates.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ForModel guesses the built-in template from a model name or GGUF path,
// falling back to Phi3.
func ForModel(model string) ChatTemplate {
	base := strings.ToLower(filepath.Base(model))

	// Longest alias first so "llama-3" never loses to a shorter prefix.
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int { return len(b) - len(a) })

	for _, k := range keys {
		if strings.Contains(base, k) {
			return builtins[aliases[k]]
		}
	}
	for _, name := range Names() {
		if strings.Contains(base, name) {
			return builtins[name]
		}
	}
	return builtins[Phi3]
}

// FromFile loads a custom template from path. The template is named after
// the file and validated before it is returned.
func FromFile(path string) (ChatTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ChatTemplate{}, fmt.Errorf("read chat template: %w", err)
	}
	tmpl := ChatTemplate{
		Name:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Source: string(data),
	}
	if err := tmpl.Validate(); err != nil {
		return ChatTemplate{}, err
	}
	return tmpl, nil
}
