package llm

import "github.com/randalmurphal/promptctx/provider"

// GenerateOption overrides a generation parameter for one call.
type GenerateOption func(*provider.Request)

// WithMaxTokens limits the completion length.
func WithMaxTokens(n int) GenerateOption {
	return func(r *provider.Request) { r.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GenerateOption {
	return func(r *provider.Request) { r.Temperature = t }
}

// WithStop replaces the stop sequences.
func WithStop(stop ...string) GenerateOption {
	return func(r *provider.Request) { r.Stop = stop }
}

// WithModel overrides the backend's configured model.
func WithModel(model string) GenerateOption {
	return func(r *provider.Request) { r.Model = model }
}

// WithOption sets a backend sampling flag such as top_p or repeat_penalty.
func WithOption(key string, value any) GenerateOption {
	return func(r *provider.Request) {
		if r.Options == nil {
			r.Options = make(map[string]any)
		}
		r.Options[key] = value
	}
}
