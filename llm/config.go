package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/invopop/jsonschema"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/promptctx/contextmgr"
	"github.com/randalmurphal/promptctx/provider"
	"github.com/randalmurphal/promptctx/template"
	"github.com/randalmurphal/promptctx/tokens"
	"github.com/randalmurphal/promptctx/truncate"
)

// TokenizerKind selects where token counts come from.
type TokenizerKind string

// Supported tokenizers.
const (
	// TokenizerSidecar uses the backend's own tokenizer. The backend client
	// must implement tokens.Tokenizer.
	TokenizerSidecar TokenizerKind = "sidecar"

	// TokenizerTiktoken uses a BPE encoding from tiktoken-go.
	TokenizerTiktoken TokenizerKind = "tiktoken"

	// TokenizerWords counts whitespace-separated words.
	TokenizerWords TokenizerKind = "words"
)

// TokenizerConfig configures the tokenizer used for budgeting.
type TokenizerConfig struct {
	Kind TokenizerKind `json:"kind" yaml:"kind" toml:"kind" jsonschema:"enum=sidecar,enum=tiktoken,enum=words"`

	// Encoding is the tiktoken encoding name. Default: cl100k_base.
	Encoding string `json:"encoding,omitempty" yaml:"encoding,omitempty" toml:"encoding,omitempty"`

	// BOS is the beginning-of-sequence marker stripped from rendered prompts.
	// Ignored for the sidecar tokenizer, which reports its own.
	BOS string `json:"bos,omitempty" yaml:"bos,omitempty" toml:"bos,omitempty"`
}

// BoundaryConfig controls how the message that reaches the budget is cut.
type BoundaryConfig struct {
	// Cut is "end", "start" or "middle". Empty follows the policy: oldest
	// keeps the beginning of the message, newest keeps its end.
	Cut string `json:"cut,omitempty" yaml:"cut,omitempty" toml:"cut,omitempty" jsonschema:"enum=end,enum=start,enum=middle"`

	// Marker is inserted where content was removed.
	Marker string `json:"marker,omitempty" yaml:"marker,omitempty" toml:"marker,omitempty"`
}

// GenerationConfig holds per-request defaults. Call options override them.
type GenerationConfig struct {
	MaxTokens   int            `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" toml:"max_tokens,omitempty"`
	Temperature float64        `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature,omitempty"`
	Stop        []string       `json:"stop,omitempty" yaml:"stop,omitempty" toml:"stop,omitempty"`
	Options     map[string]any `json:"options,omitempty" yaml:"options,omitempty" toml:"options,omitempty"`
}

// Config wires a tokenizer, a chat template, a selection policy and a backend.
type Config struct {
	// MaxAvailableTokens is the token budget for the selected conversation.
	// Zero derives it from the context window and Generation.MaxTokens.
	MaxAvailableTokens int `json:"max_available_tokens" yaml:"max_available_tokens" toml:"max_available_tokens"`

	// ChatTemplate names a built-in template. Empty picks one from the model name.
	ChatTemplate string `json:"chat_template,omitempty" yaml:"chat_template,omitempty" toml:"chat_template,omitempty"`

	// ChatTemplateFile loads a template from disk; it wins over ChatTemplate.
	ChatTemplateFile string `json:"chat_template_file,omitempty" yaml:"chat_template_file,omitempty" toml:"chat_template_file,omitempty"`

	// AddGenerationPrompt opens an assistant turn at the end of the prompt
	// for templates that support it.
	AddGenerationPrompt bool `json:"add_generation_prompt,omitempty" yaml:"add_generation_prompt,omitempty" toml:"add_generation_prompt,omitempty"`

	// Policy decides which end of the history survives: "oldest" or "newest".
	Policy string `json:"policy,omitempty" yaml:"policy,omitempty" toml:"policy,omitempty" jsonschema:"enum=oldest,enum=newest"`

	Boundary   BoundaryConfig   `json:"boundary" yaml:"boundary" toml:"boundary"`
	Tokenizer  TokenizerConfig  `json:"tokenizer" yaml:"tokenizer" toml:"tokenizer"`
	Generation GenerationConfig `json:"generation" yaml:"generation" toml:"generation"`
	Backend    provider.Config  `json:"backend" yaml:"backend" toml:"backend"`
}

// DefaultConfig returns a Config for the local sidecar backend.
func DefaultConfig() Config {
	return Config{
		Policy:    contextmgr.KeepOldest.String(),
		Tokenizer: TokenizerConfig{Kind: TokenizerSidecar},
		Backend:   provider.DefaultConfig(),
	}
}

// WithDefaults returns a copy of the config with defaults applied for unset fields.
func (c Config) WithDefaults() Config {
	if c.Backend.Provider == "" {
		c.Backend.Provider = provider.DefaultConfig().Provider
	}
	if c.Policy == "" {
		c.Policy = contextmgr.KeepOldest.String()
	}
	if c.Tokenizer.Kind == "" {
		c.Tokenizer.Kind = TokenizerSidecar
	}
	if c.Tokenizer.Kind == TokenizerTiktoken && c.Tokenizer.Encoding == "" {
		c.Tokenizer.Encoding = tokens.DefaultEncoding
	}
	if c.ChatTemplate == "" && c.ChatTemplateFile == "" {
		c.ChatTemplate = template.ForModel(c.Backend.Model).Name
	}
	if c.MaxAvailableTokens == 0 {
		c.MaxAvailableTokens = c.defaultBudget()
	}
	return c
}

// defaultBudget reserves Generation.MaxTokens of the context window for the
// completion. Without a completion limit the fixed default applies.
func (c Config) defaultBudget() int {
	if c.Generation.MaxTokens <= 0 {
		return tokens.DefaultMaxAvailableTokens
	}
	window := c.Backend.GetIntOption("n_ctx", 0)
	if window <= 0 {
		window = tokens.GetContextWindow(c.Backend.Model)
	}
	if avail := tokens.NewBudget(window, c.Generation.MaxTokens).Available(); avail > 0 {
		return avail
	}
	return tokens.DefaultMaxAvailableTokens
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.MaxAvailableTokens < 0 {
		return fmt.Errorf("max_available_tokens must be >= 0, got %d", c.MaxAvailableTokens)
	}
	if _, err := contextmgr.ParsePolicy(c.Policy); err != nil {
		return err
	}
	if c.Boundary.Cut != "" {
		if _, err := truncate.ParseStrategy(c.Boundary.Cut); err != nil {
			return fmt.Errorf("boundary: %w", err)
		}
	}

	switch c.Tokenizer.Kind {
	case "", TokenizerSidecar, TokenizerTiktoken, TokenizerWords:
	default:
		return fmt.Errorf("unknown tokenizer %q, expected one of: sidecar, tiktoken, words", c.Tokenizer.Kind)
	}

	if c.ChatTemplateFile == "" && c.ChatTemplate != "" {
		if _, err := template.Lookup(c.ChatTemplate); err != nil {
			return err
		}
	}
	if c.Generation.MaxTokens < 0 {
		return fmt.Errorf("generation.max_tokens must be >= 0, got %d", c.Generation.MaxTokens)
	}
	if c.Generation.Temperature < 0 {
		return fmt.Errorf("generation.temperature must be >= 0, got %v", c.Generation.Temperature)
	}
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	return nil
}

// LoadFromEnv populates config fields from environment variables.
// Variables take precedence over existing values.
//
// Supported variables:
//   - PROMPTCTX_MAX_AVAILABLE_TOKENS
//   - PROMPTCTX_CHAT_TEMPLATE
//   - PROMPTCTX_CHAT_TEMPLATE_FILE
//   - PROMPTCTX_POLICY
//   - PROMPTCTX_BOUNDARY_CUT
//   - PROMPTCTX_BOUNDARY_MARKER
//   - PROMPTCTX_TOKENIZER
//   - PROMPTCTX_MAX_TOKENS
//   - every backend variable read by provider.Config.LoadFromEnv
func (c *Config) LoadFromEnv() {
	env := func(name string) string { return os.Getenv(provider.EnvPrefix + name) }

	if v := env("MAX_AVAILABLE_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxAvailableTokens = n
		}
	}
	if v := env("CHAT_TEMPLATE"); v != "" {
		c.ChatTemplate = v
	}
	if v := env("CHAT_TEMPLATE_FILE"); v != "" {
		c.ChatTemplateFile = v
	}
	if v := env("POLICY"); v != "" {
		c.Policy = v
	}
	if v := env("BOUNDARY_CUT"); v != "" {
		c.Boundary.Cut = v
	}
	if v := env("BOUNDARY_MARKER"); v != "" {
		c.Boundary.Marker = v
	}
	if v := env("TOKENIZER"); v != "" {
		c.Tokenizer.Kind = TokenizerKind(v)
	}
	if v := env("MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Generation.MaxTokens = n
		}
	}
	c.Backend.LoadFromEnv()
}

// Load reads a config file, choosing the decoder from the extension:
// .yaml/.yml, .toml, or .json/.jsonc. Fields absent from the file keep
// their DefaultConfig values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	default:
		return Config{}, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Schema returns the JSON Schema describing Config.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		FieldNameTag:   "json",
		ExpandedStruct: true,
	}
	s := r.Reflect(&Config{})
	s.Title = "promptctx configuration"
	return json.MarshalIndent(s, "", "  ")
}
