package local

import (
	"context"
	"log/slog"
)

// Tokenize implements tokens.Tokenizer using the sidecar's tokenizer.
// No special tokens are added.
func (c *Client) Tokenize(text string) ([]int, error) {
	if text == "" {
		return []int{}, nil
	}
	ctx, cancel := c.withTimeout(context.Background())
	defer cancel()

	var result IDsResult
	if err := c.call(ctx, "tokenize", MethodTokenize, TokenizeParams{Text: text}, &result); err != nil {
		return nil, err
	}
	return result.IDs, nil
}

// Encode implements tokens.Tokenizer. The sidecar truncates to maxTokens.
func (c *Client) Encode(text string, maxTokens int) ([]int, error) {
	if maxTokens <= 0 || text == "" {
		return []int{}, nil
	}
	ctx, cancel := c.withTimeout(context.Background())
	defer cancel()

	var result IDsResult
	params := EncodeParams{Text: text, MaxTokens: maxTokens}
	if err := c.call(ctx, "encode", MethodEncode, params, &result); err != nil {
		return nil, err
	}
	if len(result.IDs) > maxTokens {
		result.IDs = result.IDs[:maxTokens]
	}
	return result.IDs, nil
}

// Decode implements tokens.Tokenizer.
func (c *Client) Decode(ids []int) (string, error) {
	if len(ids) == 0 {
		return "", nil
	}
	ctx, cancel := c.withTimeout(context.Background())
	defer cancel()

	var result DecodeResult
	if err := c.call(ctx, "decode", MethodDecode, DecodeParams{IDs: ids}, &result); err != nil {
		return "", err
	}
	return result.Text, nil
}

// BOS implements tokens.Tokenizer. It returns Config.BOS when set, otherwise
// the marker reported by the sidecar, starting it if needed. Once started the
// marker is cached, so BOS does not wait behind an open stream. A sidecar that
// cannot start reports no marker.
func (c *Client) BOS() string {
	if c.cfg.BOS != "" {
		return c.cfg.BOS
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StartupTimeout)
	defer cancel()

	info, err := c.Info(ctx)
	if err != nil {
		c.logger.Warn("sidecar unavailable, assuming no BOS marker", slog.Any("error", err))
		return ""
	}
	return info.BOSToken
}
