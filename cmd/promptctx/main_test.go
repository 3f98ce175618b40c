package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chat = `[
  // persona
  {"role": "system", "content": "s1 s2 s3 s4"},
  {"role": "user", "content": "w1 w2 w3 w4 w5 w6 w7 w8 w9 w10"},
]`

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRun_Prompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(chat), 0o644))

	out, _, err := runCLI(t, "", "--tokenizer", "words", "--budget", "10", "--template", "phi3", "prompt", path)
	require.NoError(t, err)
	assert.Equal(t, "<|system|>\ns1 s2 s3 s4<|end|>\n<|user|>\nw1 w2 w3 w4 w5 w6<|end|>\n<|assistant|>\n", out)
}

func TestRun_TemplateNameIgnoresLocalFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chatml"), []byte("{{#each messages}}{{.Content}}{{/each}}"), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	out, _, err := runCLI(t, chat, "--tokenizer=words", "--budget=10", "--template=chatml", "prompt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<|im_start|>system\n"), "got %q", out)
}

func TestRun_TemplateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("{{#each messages}}{{.Role}}: {{.Content}}\n{{/each}}"), 0o644))

	out, _, err := runCLI(t, chat, "--tokenizer=words", "--budget=10", "--template-file", path, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "system: s1 s2 s3 s4\nuser: w1 w2 w3 w4 w5 w6\n", out)
}

func TestRun_MiddleCut(t *testing.T) {
	out, _, err := runCLI(t, chat, "--tokenizer=words", "--budget=10", "--template=chatml", "--cut=middle", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "<|im_start|>system\ns1 s2 s3 s4<|im_end|>\n<|im_start|>user\nw1 w2 w3\n...\nw9 w10<|im_end|>\n", out)
}

func TestRun_PromptFromStdin(t *testing.T) {
	out, _, err := runCLI(t, chat, "--tokenizer=words", "--budget=10", "--template=chatml", "prompt", "-")
	require.NoError(t, err)
	assert.Equal(t, "<|im_start|>system\ns1 s2 s3 s4<|im_end|>\n<|im_start|>user\nw1 w2 w3 w4 w5 w6<|im_end|>\n", out)
}

func TestRun_Select(t *testing.T) {
	out, stderr, err := runCLI(t, chat, "--tokenizer", "words", "--budget", "10", "--log-level", "debug", "select")
	require.NoError(t, err)

	var result struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Report struct {
			Budget     int  `json:"budget"`
			UsedTokens int  `json:"used_tokens"`
			Truncated  bool `json:"truncated"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))

	require.Len(t, result.Messages, 2)
	assert.Equal(t, "w1 w2 w3 w4 w5 w6", result.Messages[1].Content)
	assert.Equal(t, 10, result.Report.Budget)
	assert.Equal(t, 10, result.Report.UsedTokens)
	assert.True(t, result.Report.Truncated)
	assert.Contains(t, stderr, "context selected")
}

func TestRun_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "promptctx.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
max_available_tokens = 5
chat_template = "zephyr"
policy = "newest"

[tokenizer]
kind = "words"
`), 0o644))

	out, _, err := runCLI(t, chat, "--config", cfgPath, "prompt")
	require.NoError(t, err)
	assert.Equal(t, "<|system|>\ns1 s2 s3 s4</s>\n<|user|>\nw10</s>\n", out)
}

func TestRun_Schema(t *testing.T) {
	out, _, err := runCLI(t, "", "schema")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))
	assert.Contains(t, out, "max_available_tokens")
}

func TestRun_Help(t *testing.T) {
	out, _, err := runCLI(t, "", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "--budget")
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing command", args: nil, wantErr: "missing command"},
		{name: "unknown command", args: []string{"--tokenizer", "words", "explain"}, wantErr: `unknown command "explain"`},
		{name: "bad log level", args: []string{"--log-level", "loud", "select"}, wantErr: "--log-level"},
		{name: "bad policy", args: []string{"--policy", "middle", "select"}, wantErr: "unknown selection policy"},
		{name: "watch needs a file", args: []string{"--tokenizer", "words", "watch"}, wantErr: "conversation file is required"},
		{name: "too many files", args: []string{"prompt", "a.json", "b.json"}, wantErr: "at most one conversation file"},
		{name: "unknown flag", args: []string{"--nope"}, wantErr: "unknown flag"},
		{name: "bad cut", args: []string{"--cut", "sideways", "select"}, wantErr: "unknown truncation strategy"},
		{name: "both template flags", args: []string{"--template", "phi3", "--template-file", "t.tmpl", "select"}, wantErr: "mutually exclusive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCLI(t, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
