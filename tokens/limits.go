package tokens

import (
	"path/filepath"
	"strings"
)

// ContextWindows maps model names to their context sizes.
// Keys are lower-case; GGUF file names are matched by prefix after stripping
// the directory and quantization suffix.
var ContextWindows = map[string]int{
	"phi-3-mini-4k-instruct":    4096,
	"phi-3-mini-128k-instruct":  131072,
	"phi-3-medium-4k-instruct":  4096,
	"phi-3.5-mini-instruct":     131072,
	"fietje-3-mini-4k-instruct": 4096,
	"llama-2-7b-chat":           4096,
	"llama-3-8b-instruct":       8192,
	"llama-3.1-8b-instruct":     131072,
	"llama-3.2-3b-instruct":     131072,
	"mistral-7b-instruct":       32768,
	"qwen2.5-7b-instruct":       32768,
	"zephyr-7b-beta":            32768,

	"default": DefaultContextWindow,
}

// GetContextWindow returns the context size for model, or the default entry.
// It accepts bare names, Hugging Face ids ("microsoft/Phi-3-mini-4k-instruct")
// and GGUF paths ("./model/phi-3-mini-4k-instruct.Q8_0.gguf").
func GetContextWindow(model string) int {
	name := strings.ToLower(filepath.Base(model))
	name = strings.TrimSuffix(name, ".gguf")

	if n, ok := ContextWindows[name]; ok {
		return n
	}

	best, bestLen := 0, 0
	for key, n := range ContextWindows {
		if key == "default" {
			continue
		}
		if strings.HasPrefix(name, key) && len(key) > bestLen {
			best, bestLen = n, len(key)
		}
	}
	if bestLen > 0 {
		return best
	}
	return ContextWindows["default"]
}
