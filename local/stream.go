package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/promptctx/provider"
)

// streamEvent is one decoded stream notification.
type streamEvent struct {
	chunk    provider.StreamChunk
	terminal bool
}

// pumpStream forwards stream notifications to ch and releases the slot once
// the sidecar has finished with the stream.
func (c *Client) pumpStream(ctx context.Context, proto *Protocol, requestID string, ch chan<- provider.StreamChunk) {
	defer close(ch)

	streamCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	released := false
	release := func() {
		if !released {
			released = true
			c.release()
		}
	}
	defer release()

	events := make(chan streamEvent)
	go readStream(proto, events)

	abort := func() {
		err := streamCtx.Err()
		if nerr := proto.Notify(NotifyStreamCancel, map[string]string{"request_id": requestID}); nerr != nil {
			c.logger.Debug("send stream cancel", slog.Any("error", nerr))
		}
		c.drain(events)
		release()
		finish(streamCtx, ch, provider.StreamChunk{Error: provider.NewError(ProviderName, "stream", err, isRetryableError(err))})
	}

	for {
		select {
		case <-streamCtx.Done():
			abort()
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.terminal {
				release()
				finish(streamCtx, ch, ev.chunk)
				return
			}
			select {
			case ch <- ev.chunk:
			case <-streamCtx.Done():
				abort()
				return
			}
		}
	}
}

// finish delivers the final chunk. Once ctx is done the consumer may have
// stopped reading, so the chunk is only kept if the buffer has room for it.
func finish(ctx context.Context, ch chan<- provider.StreamChunk, chunk provider.StreamChunk) {
	select {
	case ch <- chunk:
	case <-ctx.Done():
		select {
		case ch <- chunk:
		default:
		}
	}
}

// drain consumes the rest of a cancelled stream. A sidecar that keeps
// generating past stopGrace is killed.
func (c *Client) drain(events <-chan streamEvent) {
	timer := time.NewTimer(stopGrace)
	defer timer.Stop()

	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-timer.C:
			if c.killSidecar() {
				c.logger.Warn("sidecar ignored stream cancel, killed it")
			}
		}
	}
}

// readStream decodes notifications until the stream ends, then closes events.
func readStream(proto *Protocol, events chan<- streamEvent) {
	defer close(events)

	fail := func(err error) {
		events <- streamEvent{
			chunk:    provider.StreamChunk{Error: provider.NewError(ProviderName, "stream", err, false)},
			terminal: true,
		}
	}

	for {
		data, err := proto.ReadMessage()
		if err != nil {
			fail(fmt.Errorf("%w: read message: %w", provider.ErrUnavailable, err))
			return
		}

		notif, err := ParseNotification(data)
		if err != nil {
			fail(fmt.Errorf("parse notification: %w", err))
			return
		}
		if notif == nil {
			continue
		}

		switch notif.Method {
		case NotifyStreamChunk:
			var p StreamChunkParams
			if err := json.Unmarshal(notif.Params, &p); err != nil {
				fail(fmt.Errorf("parse chunk: %w", err))
				return
			}
			events <- streamEvent{chunk: provider.StreamChunk{Content: p.Content}}

		case NotifyStreamDone:
			var p StreamDoneParams
			if err := json.Unmarshal(notif.Params, &p); err != nil {
				fail(fmt.Errorf("parse done: %w", err))
				return
			}
			events <- streamEvent{
				chunk: provider.StreamChunk{
					Done: true,
					Usage: &provider.TokenUsage{
						InputTokens:  p.Usage.InputTokens,
						OutputTokens: p.Usage.OutputTokens,
						TotalTokens:  p.Usage.TotalTokens,
					},
				},
				terminal: true,
			}
			return

		case NotifyStreamError:
			var p StreamErrorParams
			if err := json.Unmarshal(notif.Params, &p); err != nil {
				fail(fmt.Errorf("parse stream error: %w", err))
				return
			}
			fail(classifyRPCError(&RPCError{Code: p.Code, Message: p.Message}))
			return
		}
	}
}
