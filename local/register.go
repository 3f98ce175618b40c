package local

import (
	"github.com/randalmurphal/promptctx/provider"
)

func init() {
	provider.Register(ProviderName, newFromProviderConfig)
}

// newFromProviderConfig creates a local Client from a provider.Config.
// This is the factory function registered with the provider registry.
func newFromProviderConfig(cfg provider.Config) (provider.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewClientWithConfig(configFromProvider(cfg)), nil
}

// configFromProvider maps common fields and "local" options onto a Config.
// Unset options keep their defaults.
func configFromProvider(cfg provider.Config) Config {
	c := DefaultConfig()
	c.Model = cfg.Model
	c.WorkDir = cfg.WorkDir
	c.Env = cfg.Env
	if cfg.Timeout > 0 {
		c.RequestTimeout = cfg.Timeout
	}

	c.Backend = Backend(cfg.GetStringOption("backend", string(c.Backend)))
	c.SidecarPath = cfg.GetStringOption("sidecar_path", c.SidecarPath)
	c.PythonPath = cfg.GetStringOption("python_path", c.PythonPath)
	c.Host = cfg.GetStringOption("host", c.Host)
	c.Tokenizer = cfg.GetStringOption("tokenizer", c.Tokenizer)
	c.BOS = cfg.GetStringOption("bos", c.BOS)
	c.StartupTimeout = cfg.GetDurationOption("startup_timeout", c.StartupTimeout)
	c.ContextLength = cfg.GetIntOption("n_ctx", c.ContextLength)
	c.GPULayers = cfg.GetIntOption("n_gpu_layers", c.GPULayers)
	c.Threads = cfg.GetIntOption("n_threads", c.Threads)
	c.Seed = cfg.GetIntOption("seed", c.Seed)
	return c
}
