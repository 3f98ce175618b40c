package local

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/promptctx/provider"
)

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.SidecarPath = "/opt/sidecar.py"
		cfg.Model = "model.gguf"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing backend", mutate: func(c *Config) { c.Backend = "" }, wantErr: "backend is required"},
		{name: "unknown backend", mutate: func(c *Config) { c.Backend = "onnx" }, wantErr: `unknown backend "onnx"`},
		{name: "missing sidecar", mutate: func(c *Config) { c.SidecarPath = "" }, wantErr: "sidecar_path is required"},
		{name: "missing model", mutate: func(c *Config) { c.Model = "" }, wantErr: "model is required"},
		{name: "negative n_ctx", mutate: func(c *Config) { c.ContextLength = -1 }, wantErr: "n_ctx must be >= 0"},
		{name: "negative threads", mutate: func(c *Config) { c.Threads = -2 }, wantErr: "n_threads must be >= 0"},
		{name: "negative request timeout", mutate: func(c *Config) { c.RequestTimeout = -time.Second }, wantErr: "request_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantHost string
	}{
		{name: "llama.cpp has no host", cfg: Config{Backend: BackendLlamaCpp}},
		{name: "empty backend", cfg: Config{}},
		{name: "ollama", cfg: Config{Backend: BackendOllama}, wantHost: "localhost:11434"},
		{name: "vllm", cfg: Config{Backend: BackendVLLM}, wantHost: "localhost:8000"},
		{name: "explicit host kept", cfg: Config{Backend: BackendOllama, Host: "gpu:11434"}, wantHost: "gpu:11434"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.WithDefaults()
			assert.Equal(t, tt.wantHost, got.Host)
			assert.NotEmpty(t, got.Backend)
			assert.Equal(t, "python3", got.PythonPath)
			assert.Equal(t, DefaultContextLength, got.ContextLength)
			assert.Equal(t, 2*time.Minute, got.StartupTimeout)
			assert.Equal(t, 5*time.Minute, got.RequestTimeout)
		})
	}
}

func TestConfigFromProvider(t *testing.T) {
	cfg := provider.Config{
		Provider: ProviderName,
		Model:    "phi-3-mini-4k-instruct.Q8_0.gguf",
		Timeout:  30 * time.Second,
		WorkDir:  "/srv/models",
		Options: map[string]any{
			"backend":         "transformers",
			"sidecar_path":    "/opt/sidecar.py",
			"tokenizer":       "microsoft/Phi-3-mini-4k-instruct",
			"bos":             "<s>",
			"startup_timeout": "45s",
			"n_ctx":           float64(8192),
			"n_gpu_layers":    int64(0),
			"seed":            "7",
		},
	}

	got := configFromProvider(cfg)

	assert.Equal(t, BackendTransformers, got.Backend)
	assert.Equal(t, "/opt/sidecar.py", got.SidecarPath)
	assert.Equal(t, "phi-3-mini-4k-instruct.Q8_0.gguf", got.Model)
	assert.Equal(t, "microsoft/Phi-3-mini-4k-instruct", got.Tokenizer)
	assert.Equal(t, "<s>", got.BOS)
	assert.Equal(t, "/srv/models", got.WorkDir)
	assert.Equal(t, 30*time.Second, got.RequestTimeout)
	assert.Equal(t, 45*time.Second, got.StartupTimeout)
	assert.Equal(t, 8192, got.ContextLength)
	assert.Equal(t, 0, got.GPULayers)
	assert.Equal(t, DefaultThreads, got.Threads)
	assert.Equal(t, 7, got.Seed)
	assert.Equal(t, "python3", got.PythonPath)
}

func TestRegistry_CreatesLocalClient(t *testing.T) {
	require.True(t, provider.IsRegistered(ProviderName))

	client, err := provider.New(ProviderName, provider.Config{
		Model:   "model.gguf",
		Options: map[string]any{"sidecar_path": "/opt/sidecar.py"},
	})
	require.NoError(t, err)
	defer client.Close()

	local, ok := client.(*Client)
	require.True(t, ok)
	assert.Equal(t, "model.gguf", local.Config().Model)
	assert.Equal(t, BackendLlamaCpp, local.Config().Backend)

	_, err = provider.New(ProviderName, provider.Config{Timeout: -time.Second})
	assert.Error(t, err)
}
