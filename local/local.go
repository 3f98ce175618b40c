package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/promptctx/provider"
	"github.com/randalmurphal/promptctx/tokens"
)

// ProviderName is the name the local client registers under.
const ProviderName = "local"

var (
	_ provider.Client  = (*Client)(nil)
	_ tokens.Tokenizer = (*Client)(nil)
)

// Client implements provider.Client and tokens.Tokenizer on top of a Python
// sidecar. The sidecar handles one request at a time, so every RPC and every
// stream holds the client's slot until it completes.
type Client struct {
	cfg    Config
	logger *slog.Logger

	// slot serializes sidecar traffic. A stream keeps it until its final chunk.
	slot chan struct{}

	mu      sync.Mutex // Protects sidecar lifecycle
	sidecar *Sidecar
	proto   *Protocol
	info    InitResult

	// connect brings up a transport; tests replace it with an in-memory sidecar.
	connect func(ctx context.Context) (*Protocol, InitResult, error)
}

// WithLogger sets the logger for sidecar lifecycle and stderr records.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a new local model client.
// The sidecar process is not started until the first request.
func NewClient(opts ...Option) *Client {
	c := newClient(DefaultConfig())
	for _, opt := range opts {
		opt(c)
	}
	c.cfg = c.cfg.WithDefaults()
	return c
}

// NewClientWithConfig creates a new local model client from a Config.
func NewClientWithConfig(cfg Config, opts ...Option) *Client {
	c := newClient(cfg.WithDefaults())
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newClient(cfg Config) *Client {
	c := &Client{
		cfg:    cfg,
		logger: slog.Default(),
		slot:   make(chan struct{}, 1),
	}
	c.connect = c.startSidecar
	return c
}

// Config returns the client's effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Complete implements provider.Client.
// Starts the sidecar if not already running.
func (c *Client) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	var result GenerateResult
	if err := c.call(ctx, "complete", MethodGenerate, c.generateParams(req), &result); err != nil {
		return nil, err
	}

	return &provider.Response{
		Content:      result.Text,
		Model:        result.Model,
		FinishReason: result.FinishReason,
		Duration:     time.Since(start),
		RequestID:    req.ID,
		Usage: provider.TokenUsage{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
			TotalTokens:  result.Usage.TotalTokens,
		},
	}, nil
}

// Stream implements provider.Client.
// Starts the sidecar if not already running. The returned channel delivers
// fragments in generation order and closes after a Done or Error chunk.
// Cancelling ctx asks the sidecar to stop generating.
func (c *Client) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamChunk, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, provider.NewError(ProviderName, "stream", err, isRetryableError(err))
	}

	proto, err := c.ensureStarted(ctx)
	if err != nil {
		c.release()
		return nil, provider.NewError(ProviderName, "stream", err, false)
	}

	if err := proto.Notify(NotifyStreamStart, c.generateParams(req)); err != nil {
		c.release()
		return nil, provider.NewError(ProviderName, "stream", fmt.Errorf("send stream request: %w", err), false)
	}

	// One slot of buffer holds the final chunk for a consumer that cancelled.
	ch := make(chan provider.StreamChunk, 1)
	go c.pumpStream(ctx, proto, req.ID, ch)
	return ch, nil
}

// Provider implements provider.Client.
func (c *Client) Provider() string {
	return ProviderName
}

// Capabilities implements provider.Client.
func (c *Client) Capabilities() provider.Capabilities {
	return provider.LocalCapabilities
}

// Close implements provider.Client.
// Stops the sidecar process if running.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.proto = nil
	if c.sidecar == nil {
		return nil
	}
	err := c.sidecar.Stop()
	c.sidecar = nil
	return err
}

// Start launches the sidecar now instead of on the first request.
func (c *Client) Start(ctx context.Context) error {
	_, err := c.Info(ctx)
	return err
}

// Info returns what the sidecar reported at startup, starting it if needed.
// A running sidecar answers from the cached result without taking the slot.
func (c *Client) Info(ctx context.Context) (InitResult, error) {
	if info, ok := c.startedInfo(); ok {
		return info, nil
	}
	if err := c.acquire(ctx); err != nil {
		return InitResult{}, err
	}
	defer c.release()

	if _, err := c.ensureStarted(ctx); err != nil {
		return InitResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info, nil
}

func (c *Client) startedInfo() (InitResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proto == nil {
		return InitResult{}, false
	}
	return c.info, true
}

func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	<-c.slot
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// call performs one RPC while holding the slot. If ctx ends first the call
// returns immediately; the slot is released once the sidecar answers.
func (c *Client) call(ctx context.Context, op, method string, params, result any) error {
	if err := ctx.Err(); err != nil {
		return provider.NewError(ProviderName, op, err, isRetryableError(err))
	}
	if err := c.acquire(ctx); err != nil {
		return provider.NewError(ProviderName, op, err, isRetryableError(err))
	}

	proto, err := c.ensureStarted(ctx)
	if err != nil {
		c.release()
		return provider.NewError(ProviderName, op, err, false)
	}

	errCh := make(chan error, 1)
	go func() {
		defer c.release()
		errCh <- proto.Call(method, params, result)
	}()

	select {
	case <-ctx.Done():
		return provider.NewError(ProviderName, op, ctx.Err(), isRetryableError(ctx.Err()))
	case err := <-errCh:
		if err != nil {
			return provider.NewError(ProviderName, op, classifyRPCError(err), isRetryableRPCError(err))
		}
		return nil
	}
}

// ensureStarted returns a live protocol, starting or restarting the sidecar.
// Callers hold the slot.
func (c *Client) ensureStarted(ctx context.Context) (*Protocol, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proto != nil && (c.sidecar == nil || c.sidecar.IsRunning()) {
		return c.proto, nil
	}

	if c.sidecar != nil {
		if exitErr := c.sidecar.ExitError(); exitErr != nil {
			c.logger.Warn("sidecar crashed, attempting restart",
				slog.Any("exit_error", exitErr))
		}
		_ = c.sidecar.Stop()
		c.sidecar = nil
		c.proto = nil
	}

	proto, info, err := c.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrUnavailable, err)
	}
	c.proto = proto
	c.info = info
	return proto, nil
}

// startSidecar launches the Python process. Called with c.mu held.
func (c *Client) startSidecar(ctx context.Context) (*Protocol, InitResult, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, InitResult{}, fmt.Errorf("invalid config: %w", err)
	}

	sc := NewSidecar(c.cfg, c.logger)
	if err := sc.Start(ctx); err != nil {
		return nil, InitResult{}, err
	}
	c.sidecar = sc
	return sc.Protocol(), sc.Info(), nil
}

// killSidecar terminates an unresponsive sidecar; the next call restarts it.
func (c *Client) killSidecar() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sidecar == nil {
		return false
	}
	c.sidecar.kill()
	return true
}

// generateParams converts a provider.Request to RPC GenerateParams.
func (c *Client) generateParams(req provider.Request) GenerateParams {
	params := GenerateParams{
		RequestID:   req.ID,
		Prompt:      req.Prompt,
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
		Options:     req.Options,
	}
	if params.Model == "" {
		params.Model = c.cfg.Model
	}
	return params
}

// classifyRPCError attaches the matching provider sentinel to an RPC error.
func classifyRPCError(err error) error {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}
	switch rpcErr.Code {
	case CodeContextOverflow:
		return fmt.Errorf("%w: %w", provider.ErrContextTooLong, err)
	case CodeInvalidParams, CodeInvalidRequest:
		return fmt.Errorf("%w: %w", provider.ErrInvalidRequest, err)
	case CodeConnectionError:
		return fmt.Errorf("%w: %w", provider.ErrUnavailable, err)
	default:
		return err
	}
}

// isRetryableError checks if a standard error is retryable.
func isRetryableError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// isRetryableRPCError checks if an RPC error is retryable.
func isRetryableRPCError(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == CodeConnectionError
	}
	return false
}
