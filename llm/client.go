package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/promptctx/contextmgr"
	"github.com/randalmurphal/promptctx/provider"
	"github.com/randalmurphal/promptctx/template"
	"github.com/randalmurphal/promptctx/tokens"
	"github.com/randalmurphal/promptctx/truncate"
)

// Client builds prompts from conversations and sends them to a backend.
// It is safe for concurrent use when the backend is.
type Client struct {
	backend provider.Client
	manager *contextmgr.Manager
	gen     GenerationConfig
	logger  *slog.Logger
	newID   func() string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for request records.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRequestIDs replaces the request id generator.
func WithRequestIDs(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// New creates a Client from parts that are already built.
// Only cfg.Generation is read.
func New(cfg Config, backend provider.Client, manager *contextmgr.Manager, opts ...Option) *Client {
	c := &Client{
		backend: backend,
		manager: manager,
		gen:     cfg.Generation,
		logger:  slog.Default(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// starter is implemented by backends that can be brought up ahead of the
// first request.
type starter interface {
	Start(ctx context.Context) error
}

// Open builds the backend, tokenizer, template and context manager described
// by cfg. Backends that support it are started before Open returns, bounded
// by ctx.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	backend, err := provider.New(cfg.Backend.Provider, cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}

	c, err := assemble(ctx, cfg, backend, opts)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return c, nil
}

func assemble(ctx context.Context, cfg Config, backend provider.Client, opts []Option) (*Client, error) {
	if s, ok := backend.(starter); ok {
		if err := s.Start(ctx); err != nil {
			return nil, fmt.Errorf("start backend: %w", err)
		}
	}

	c := New(cfg, backend, nil, opts...)
	manager, err := NewManager(cfg, backend, contextmgr.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}
	c.manager = manager
	return c, nil
}

// NewManager builds the context manager described by cfg without generating
// anything. backend is consulted only for the sidecar tokenizer and may be
// nil otherwise.
func NewManager(cfg Config, backend provider.Client, opts ...contextmgr.Option) (*contextmgr.Manager, error) {
	cfg = cfg.WithDefaults()

	tok, err := newTokenizer(cfg.Tokenizer, backend)
	if err != nil {
		return nil, err
	}
	tmpl, err := chatTemplate(cfg)
	if err != nil {
		return nil, err
	}
	policy, err := contextmgr.ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}

	cut, customCut, err := boundaryCut(cfg.Boundary, policy)
	if err != nil {
		return nil, err
	}

	base := []contextmgr.Option{contextmgr.WithPolicy(policy)}
	if customCut {
		base = append(base, contextmgr.WithBoundaryCut(cut, cfg.Boundary.Marker))
	}
	return contextmgr.New(tok, tmpl, cfg.MaxAvailableTokens, append(base, opts...)...), nil
}

// boundaryCut reports the configured boundary strategy. A marker without a
// cut keeps the policy's side of the message.
func boundaryCut(cfg BoundaryConfig, policy contextmgr.Policy) (truncate.Strategy, bool, error) {
	switch {
	case cfg.Cut != "":
		s, err := truncate.ParseStrategy(cfg.Cut)
		if err != nil {
			return 0, false, err
		}
		return s, true, nil
	case cfg.Marker == "":
		return 0, false, nil
	case policy == contextmgr.KeepNewest:
		return truncate.FromStart, true, nil
	default:
		return truncate.FromEnd, true, nil
	}
}

func newTokenizer(cfg TokenizerConfig, backend provider.Client) (tokens.Tokenizer, error) {
	switch cfg.Kind {
	case TokenizerTiktoken:
		tok, err := tokens.NewTiktokenTokenizer(cfg.Encoding, cfg.BOS)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer: %w", err)
		}
		return tok, nil
	case TokenizerWords:
		if cfg.BOS == "" {
			return tokens.NewWordTokenizer(), nil
		}
		return tokens.NewWordTokenizerWithBOS(cfg.BOS), nil
	default:
		if backend == nil {
			return nil, errors.New("sidecar tokenizer requires a backend")
		}
		tok, ok := backend.(tokens.Tokenizer)
		if !ok {
			return nil, fmt.Errorf("backend %q does not expose a tokenizer", backend.Provider())
		}
		return tok, nil
	}
}

func chatTemplate(cfg Config) (template.ChatTemplate, error) {
	var (
		tmpl template.ChatTemplate
		err  error
	)
	if cfg.ChatTemplateFile != "" {
		tmpl, err = template.FromFile(cfg.ChatTemplateFile)
	} else {
		tmpl, err = template.Lookup(cfg.ChatTemplate)
	}
	if err != nil {
		return template.ChatTemplate{}, fmt.Errorf("load chat template: %w", err)
	}
	if cfg.AddGenerationPrompt {
		tmpl.AddGenerationPrompt = true
	}
	return tmpl, nil
}

// Manager returns the context manager used to build prompts.
func (c *Client) Manager() *contextmgr.Manager {
	return c.manager
}

// Backend returns the generation backend.
func (c *Client) Backend() provider.Client {
	return c.backend
}

// Prompt selects, renders and strips the BOS marker from messages.
// The result is exactly what the backend receives.
func (c *Client) Prompt(messages []provider.Message) (string, error) {
	prompt, err := c.manager.BuildPrompt(messages)
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}
	return contextmgr.StripBOS(prompt, c.manager.Tokenizer().BOS()), nil
}

// Complete generates a full completion for messages.
func (c *Client) Complete(ctx context.Context, messages []provider.Message, opts ...GenerateOption) (*provider.Response, error) {
	req, err := c.request(messages, opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.backend.Complete(ctx, req)
	if err != nil {
		c.logger.Debug("completion failed", slog.String("request_id", req.ID), slog.Any("error", err))
		return nil, err
	}
	c.logger.Debug("completion finished",
		slog.String("request_id", req.ID),
		slog.Int("output_tokens", resp.Usage.OutputTokens),
		slog.Duration("elapsed", time.Since(start)))
	return resp, nil
}

// Stream generates a completion for messages incrementally.
// See provider.Client for the channel contract.
func (c *Client) Stream(ctx context.Context, messages []provider.Message, opts ...GenerateOption) (<-chan provider.StreamChunk, error) {
	req, err := c.request(messages, opts)
	if err != nil {
		return nil, err
	}
	return c.backend.Stream(ctx, req)
}

// Close releases the backend.
func (c *Client) Close() error {
	return c.backend.Close()
}

// request builds a backend request with config defaults under opts.
func (c *Client) request(messages []provider.Message, opts []GenerateOption) (provider.Request, error) {
	prompt, err := c.Prompt(messages)
	if err != nil {
		return provider.Request{}, err
	}

	req := provider.Request{
		ID:          c.newID(),
		Prompt:      prompt,
		MaxTokens:   c.gen.MaxTokens,
		Temperature: c.gen.Temperature,
		Stop:        append([]string(nil), c.gen.Stop...),
		Options:     maps.Clone(c.gen.Options),
	}
	for _, opt := range opts {
		opt(&req)
	}

	c.logger.Debug("request built",
		slog.String("request_id", req.ID),
		slog.Int("prompt_chars", len(req.Prompt)),
		slog.Int("max_tokens", req.MaxTokens))
	return req, nil
}
