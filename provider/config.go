package provider

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "PROMPTCTX_"

// Config holds configuration for creating a backend client.
// Common fields apply to all providers; Options carries provider-specific settings.
type Config struct {
	// Provider is the registered provider name. Required.
	Provider string `json:"provider" yaml:"provider" toml:"provider" jsonschema:"description=Registered backend name,example=local"`

	// Model is the backend model identifier (a GGUF path, an Ollama tag, ...).
	Model string `json:"model" yaml:"model" toml:"model"`

	// Timeout bounds a single generation request. Zero uses the provider default.
	Timeout time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`

	// WorkDir is the working directory for backend processes.
	WorkDir string `json:"work_dir" yaml:"work_dir" toml:"work_dir"`

	// Env provides additional environment variables for backend processes.
	Env map[string]string `json:"env" yaml:"env" toml:"env"`

	// Options holds provider-specific configuration.
	//
	// Local:
	//   - "backend": "llama.cpp" | "transformers" | "ollama" | "vllm"
	//   - "sidecar_path": string
	//   - "python_path": string
	//   - "host": string
	//   - "tokenizer": string (tokenizer name or path, e.g. "microsoft/Phi-3-mini-4k-instruct")
	//   - "startup_timeout": duration string
	//   - "n_ctx", "n_gpu_layers", "n_threads", "seed": int
	Options map[string]any `json:"options" yaml:"options" toml:"options"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider: "local",
		Timeout:  5 * time.Minute,
	}
}

// LoadFromEnv populates config fields from environment variables.
// Variables take precedence over existing values.
//
// Supported variables:
//   - PROMPTCTX_PROVIDER
//   - PROMPTCTX_MODEL
//   - PROMPTCTX_TIMEOUT (e.g. "5m")
//   - PROMPTCTX_WORK_DIR
//   - PROMPTCTX_OPT_<NAME>: sets Options["<name>"] (lower-cased)
func (c *Config) LoadFromEnv() {
	if v := os.Getenv(EnvPrefix + "PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv(EnvPrefix + "MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv(EnvPrefix + "TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Timeout = d
		}
	}
	if v := os.Getenv(EnvPrefix + "WORK_DIR"); v != "" {
		c.WorkDir = v
	}

	optPrefix := EnvPrefix + "OPT_"
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, optPrefix) || value == "" {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, optPrefix))
		if c.Options == nil {
			c.Options = make(map[string]any)
		}
		if n, err := strconv.Atoi(value); err == nil {
			c.Options[name] = n
		} else {
			c.Options[name] = value
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}
	return nil
}

// WithOption returns a copy of the config with the specified option set.
func (c Config) WithOption(key string, value any) Config {
	opts := make(map[string]any, len(c.Options)+1)
	for k, v := range c.Options {
		opts[k] = v
	}
	opts[key] = value
	c.Options = opts
	return c
}

// GetStringOption retrieves a string option, returning defaultVal if not set.
func (c Config) GetStringOption(key, defaultVal string) string {
	if v, ok := c.Options[key].(string); ok {
		return v
	}
	return defaultVal
}

// GetIntOption retrieves an int option, returning defaultVal if not set.
// Accepts the numeric types produced by the JSON, YAML and TOML decoders.
func (c Config) GetIntOption(key string, defaultVal int) int {
	switch v := c.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// GetDurationOption retrieves a duration option given as a Go duration string
// or as integer seconds.
func (c Config) GetDurationOption(key string, defaultVal time.Duration) time.Duration {
	switch v := c.Options[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return defaultVal
}
