package local

import (
	"fmt"
	"time"
)

// Backend identifies the inference engine hosted by the sidecar.
type Backend string

// Supported backends.
const (
	BackendLlamaCpp     Backend = "llama.cpp"
	BackendTransformers Backend = "transformers"
	BackendOllama       Backend = "ollama"
	BackendVLLM         Backend = "vllm"
)

// Generation defaults for in-process llama.cpp models.
const (
	DefaultContextLength = 4096
	DefaultGPULayers     = -1 // offload every layer
	DefaultThreads       = 8
	DefaultSeed          = 1337
)

// Config holds local provider configuration.
type Config struct {
	// Backend selects the inference engine. Default: llama.cpp.
	Backend Backend `json:"backend" yaml:"backend" toml:"backend"`

	// SidecarPath is the path to the Python sidecar script. Required.
	SidecarPath string `json:"sidecar_path" yaml:"sidecar_path" toml:"sidecar_path"`

	// Model is a GGUF path for llama.cpp, a Hugging Face id for transformers,
	// or a served model name for ollama and vllm. Required.
	Model string `json:"model" yaml:"model" toml:"model"`

	// Tokenizer names the tokenizer the sidecar loads for tokenize, encode and
	// decode (e.g. "microsoft/Phi-3-mini-4k-instruct"). Empty uses the
	// model's own tokenizer.
	Tokenizer string `json:"tokenizer" yaml:"tokenizer" toml:"tokenizer"`

	// BOS overrides the beginning-of-sequence marker reported by the sidecar.
	BOS string `json:"bos" yaml:"bos" toml:"bos"`

	// Host is the API server address for ollama and vllm.
	// Default: "localhost:11434" for Ollama, "localhost:8000" for vLLM.
	Host string `json:"host" yaml:"host" toml:"host"`

	// PythonPath is the path to the Python interpreter. Default: "python3".
	PythonPath string `json:"python_path" yaml:"python_path" toml:"python_path"`

	// ContextLength is the model context window (llama.cpp n_ctx).
	ContextLength int `json:"n_ctx" yaml:"n_ctx" toml:"n_ctx"`

	// GPULayers is the number of layers offloaded to the GPU; -1 means all.
	GPULayers int `json:"n_gpu_layers" yaml:"n_gpu_layers" toml:"n_gpu_layers"`

	// Threads is the number of CPU threads used for generation.
	Threads int `json:"n_threads" yaml:"n_threads" toml:"n_threads"`

	// Seed fixes the sampling seed.
	Seed int `json:"seed" yaml:"seed" toml:"seed"`

	// StartupTimeout bounds process start plus model load. Default: 2 minutes.
	StartupTimeout time.Duration `json:"startup_timeout" yaml:"startup_timeout" toml:"startup_timeout"`

	// RequestTimeout bounds one RPC or stream. Default: 5 minutes.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`

	// WorkDir is the working directory for the sidecar process.
	WorkDir string `json:"work_dir" yaml:"work_dir" toml:"work_dir"`

	// Env provides additional environment variables for the sidecar.
	Env map[string]string `json:"env" yaml:"env" toml:"env"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendLlamaCpp,
		PythonPath:     "python3",
		ContextLength:  DefaultContextLength,
		GPULayers:      DefaultGPULayers,
		Threads:        DefaultThreads,
		Seed:           DefaultSeed,
		StartupTimeout: 2 * time.Minute,
		RequestTimeout: 5 * time.Minute,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Backend == "" {
		return fmt.Errorf("backend is required")
	}

	switch c.Backend {
	case BackendLlamaCpp, BackendTransformers, BackendOllama, BackendVLLM:
	default:
		return fmt.Errorf("unknown backend %q, expected one of: llama.cpp, transformers, ollama, vllm", c.Backend)
	}

	if c.SidecarPath == "" {
		return fmt.Errorf("sidecar_path is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.ContextLength < 0 {
		return fmt.Errorf("n_ctx must be >= 0, got %d", c.ContextLength)
	}
	if c.Threads < 0 {
		return fmt.Errorf("n_threads must be >= 0, got %d", c.Threads)
	}
	if c.StartupTimeout < 0 {
		return fmt.Errorf("startup_timeout must be >= 0")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must be >= 0")
	}
	return nil
}

// WithDefaults returns a copy of the config with defaults applied for unset fields.
// GPULayers and Seed are left alone because zero is meaningful for both.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.Backend == "" {
		c.Backend = defaults.Backend
	}
	if c.PythonPath == "" {
		c.PythonPath = defaults.PythonPath
	}
	if c.ContextLength == 0 {
		c.ContextLength = defaults.ContextLength
	}
	if c.Threads == 0 {
		c.Threads = defaults.Threads
	}
	if c.StartupTimeout == 0 {
		c.StartupTimeout = defaults.StartupTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.Host == "" {
		switch c.Backend {
		case BackendOllama:
			c.Host = "localhost:11434"
		case BackendVLLM:
			c.Host = "localhost:8000"
		}
	}
	return c
}

// initOptions returns the engine options forwarded with the init call.
func (c Config) initOptions() map[string]any {
	return map[string]any{
		"n_ctx":        c.ContextLength,
		"n_gpu_layers": c.GPULayers,
		"n_threads":    c.Threads,
		"seed":         c.Seed,
	}
}

// Option configures a local Client.
type Option func(*Client)

// WithBackend sets the backend type.
func WithBackend(backend Backend) Option {
	return func(c *Client) { c.cfg.Backend = backend }
}

// WithSidecarPath sets the path to the sidecar script.
func WithSidecarPath(path string) Option {
	return func(c *Client) { c.cfg.SidecarPath = path }
}

// WithModel sets the model name or path.
func WithModel(model string) Option {
	return func(c *Client) { c.cfg.Model = model }
}

// WithTokenizer sets the tokenizer the sidecar loads.
func WithTokenizer(name string) Option {
	return func(c *Client) { c.cfg.Tokenizer = name }
}

// WithHost sets the backend API server address.
func WithHost(host string) Option {
	return func(c *Client) { c.cfg.Host = host }
}

// WithPythonPath sets the Python interpreter path.
func WithPythonPath(path string) Option {
	return func(c *Client) { c.cfg.PythonPath = path }
}

// WithStartupTimeout sets the sidecar startup timeout.
func WithStartupTimeout(d time.Duration) Option {
	return func(c *Client) { c.cfg.StartupTimeout = d }
}

// WithRequestTimeout sets the default request timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.cfg.RequestTimeout = d }
}

// WithWorkDir sets the working directory for the sidecar.
func WithWorkDir(dir string) Option {
	return func(c *Client) { c.cfg.WorkDir = dir }
}

// WithEnv adds environment variables for the sidecar process.
func WithEnv(env map[string]string) Option {
	return func(c *Client) {
		if c.cfg.Env == nil {
			c.cfg.Env = make(map[string]string)
		}
		for k, v := range env {
			c.cfg.Env[k] = v
		}
	}
}
