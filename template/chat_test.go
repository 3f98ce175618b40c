package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/promptctx/provider"
)

var conversation = []provider.Message{
	provider.System("You are terse."),
	provider.User("Hi"),
	provider.Assistant("Hello."),
	provider.User("Bye"),
}

func TestChatTemplate_Render(t *testing.T) {
	tests := []struct {
		name      string
		template  string
		genPrompt bool
		messages  []provider.Message
		want      string
	}{
		{
			name:     "phi3",
			template: Phi3,
			messages: conversation,
			want: "<s><|system|>\nYou are terse.<|end|>\n" +
				"<|user|>\nHi<|end|>\n<|assistant|>\n" +
				"Hello.<|end|>\n" +
				"<|user|>\nBye<|end|>\n<|assistant|>\n",
		},
		{
			name:     "phi3 empty conversation",
			template: Phi3,
			want:     "<s>",
		},
		{
			name:      "chatml with generation prompt",
			template:  ChatML,
			genPrompt: true,
			messages:  conversation[1:2],
			want:      "<|im_start|>user\nHi<|im_end|>\n<|im_start|>assistant\n",
		},
		{
			name:     "chatml without generation prompt",
			template: ChatML,
			messages: conversation[1:2],
			want:     "<|im_start|>user\nHi<|im_end|>\n",
		},
		{
			name:     "llama2 folds system into first instruction",
			template: Llama2,
			messages: conversation,
			want: "<s>[INST] <<SYS>>\nYou are terse.\n<</SYS>>\n\nHi [/INST] Hello. </s>" +
				"<s>[INST] Bye [/INST]",
		},
		{
			name:     "llama2 without system",
			template: Llama2,
			messages: conversation[1:2],
			want:     "<s>[INST] Hi [/INST]",
		},
		{
			name:      "llama3",
			template:  Llama3,
			genPrompt: true,
			messages:  conversation[:2],
			want: "<|begin_of_text|>" +
				"<|start_header_id|>system<|end_header_id|>\n\nYou are terse.<|eot_id|>" +
				"<|start_header_id|>user<|end_header_id|>\n\nHi<|eot_id|>" +
				"<|start_header_id|>assistant<|end_header_id|>\n\n",
		},
		{
			name:     "zephyr",
			template: Zephyr,
			messages: conversation[1:3],
			want:     "<|user|>\nHi</s>\n<|assistant|>\nHello.</s>\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Lookup(tt.template)
			require.NoError(t, err)
			tmpl.AddGenerationPrompt = tt.genPrompt

			got, err := tmpl.Render(tt.messages)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChatTemplate_RenderError(t *testing.T) {
	tmpl := ChatTemplate{Name: "broken", Source: "{{#each messages}}{{index .Content 99}}{{/each}}"}

	_, err := tmpl.Render(conversation)
	require.ErrorIs(t, err, ErrExecute)
	assert.Contains(t, err.Error(), "broken")
}

func TestBuiltins_Validate(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			tmpl, err := Lookup(name)
			require.NoError(t, err)
			assert.NoError(t, tmpl.Validate())
		})
	}
}

func TestChatTemplate_Validate(t *testing.T) {
	assert.ErrorIs(t, ChatTemplate{}.Validate(), ErrEmpty)
	assert.ErrorIs(t, ChatTemplate{Source: "{{#if x}}"}.Validate(), ErrParse)
	assert.ErrorIs(t, ChatTemplate{Source: "{{bos}} static"}.Validate(), ErrParse)
	assert.NoError(t, ChatTemplate{Source: "{{#each messages}}{{.Content}}{{/each}}"}.Validate())
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "phi3", want: Phi3},
		{name: "PHI3", want: Phi3},
		{name: " phi-3 ", want: Phi3},
		{name: "fietje", want: Phi3},
		{name: "qwen", want: ChatML},
		{name: "mistral", want: Llama2},
		{name: "llama-3", want: Llama3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Lookup(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tmpl.Name)
		})
	}

	_, err := Lookup("nope")
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{ChatML, Llama2, Llama3, Phi3, Zephyr}, Names())
}

func TestForModel(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{model: "./model/Phi-3-mini-4k-instruct.Q8_0.gguf", want: Phi3},
		{model: "./model/fietje-3-mini-4k-instruct-Q5_K_M.gguf", want: Phi3},
		{model: "meta-llama/Meta-Llama-3-8B-Instruct", want: Llama3},
		{model: "llama-2-7b-chat.Q4_0.gguf", want: Llama2},
		{model: "Qwen2.5-7B-Instruct", want: ChatML},
		{model: "zephyr-7b-beta", want: Zephyr},
		{model: "unknown.gguf", want: Phi3},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, ForModel(tt.model).Name)
		})
	}
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "mine.tmpl")
	require.NoError(t, os.WriteFile(good, []byte("{{#each messages}}{{.Role}}: {{.Content}}\n{{/each}}"), 0o600))

	tmpl, err := FromFile(good)
	require.NoError(t, err)
	assert.Equal(t, "mine", tmpl.Name)

	got, err := tmpl.Render(conversation[1:3])
	require.NoError(t, err)
	assert.Equal(t, "user: Hi\nassistant: Hello.\n", got)

	bad := filepath.Join(dir, "static.tmpl")
	require.NoError(t, os.WriteFile(bad, []byte("no messages here"), 0o600))
	_, err = FromFile(bad)
	assert.ErrorIs(t, err, ErrParse)

	_, err = FromFile(filepath.Join(dir, "missing.tmpl"))
	assert.Error(t, err)
}
