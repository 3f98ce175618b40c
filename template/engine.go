package template

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Engine compiles templates written in Go template syntax or the
// Handlebars-like subset, caching each compiled template by source.
// An Engine is safe for concurrent use.
type Engine struct {
	mu    sync.RWMutex
	funcs template.FuncMap
	cache map[string]*template.Template
}

// NewEngine creates a new template engine with default helper functions.
func NewEngine() *Engine {
	return &Engine{
		funcs: defaultFuncs(),
		cache: make(map[string]*template.Template),
	}
}

var defaultEngine = NewEngine()

// Compile converts and parses templateStr, returning the cached result when
// the same source was compiled before.
func (e *Engine) Compile(templateStr string) (*template.Template, error) {
	if templateStr == "" {
		return nil, ErrEmpty
	}

	e.mu.RLock()
	tmpl, ok := e.cache[templateStr]
	e.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if tmpl, ok := e.cache[templateStr]; ok {
		return tmpl, nil
	}

	tmpl, err := template.New("chat").Funcs(e.funcs).Parse(convertSyntax(templateStr))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	e.cache[templateStr] = tmpl
	return tmpl, nil
}

// Render executes the template with the given data.
func (e *Engine) Render(templateStr string, data any) (string, error) {
	tmpl, err := e.Compile(templateStr)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrExecute, err)
	}
	return buf.String(), nil
}

// Parse validates the template and returns the top-level variable names it
// references, in order of first appearance.
func (e *Engine) Parse(templateStr string) ([]string, error) {
	if _, err := e.Compile(templateStr); err != nil {
		return nil, err
	}
	return extractVariables(templateStr), nil
}

// AddFunc adds a custom template function and drops previously compiled
// templates so they pick it up.
func (e *Engine) AddFunc(name string, fn any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.funcs[name] = fn
	clear(e.cache)
}
