package conversation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/promptctx/provider"
)

// waitFor reads updates until one satisfies match.
func waitFor(t *testing.T, ch <-chan Update, match func(Update) bool) Update {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			require.True(t, ok, "watch channel closed early")
			if match(u) {
				return u
			}
		case <-timeout:
			t.Fatal("timed out waiting for update")
		}
	}
}

func hasMessages(n int) func(Update) bool {
	return func(u Update) bool { return u.Err == nil && len(u.Messages) == n }
}

func TestWatch(t *testing.T) {
	modes := []struct {
		name string
		opts []WatchOption
	}{
		{name: "notify"},
		{name: "polling", opts: []WatchOption{WithPolling(10 * time.Millisecond)}},
	}

	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "chat.jsonl")
			require.NoError(t, os.WriteFile(path, []byte(`{"role":"user","content":"one"}`+"\n"), 0o644))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			ch := Watch(ctx, path, mode.opts...)

			first := waitFor(t, ch, func(Update) bool { return true })
			require.NoError(t, first.Err)
			assert.Equal(t, []provider.Message{provider.User("one")}, first.Messages)

			// Let the poller record the initial state before the file changes.
			time.Sleep(50 * time.Millisecond)
			require.NoError(t, os.WriteFile(path, []byte(
				`{"role":"user","content":"one"}`+"\n"+`{"role":"assistant","content":"two"}`+"\n"), 0o644))

			u := waitFor(t, ch, hasMessages(2))
			assert.Equal(t, provider.Assistant("two"), u.Messages[1])

			cancel()
			for range ch {
			}
		})
	}
}

func TestWatch_ReportsErrorsAndRecovers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"role":"user","content":"ok"}]`), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := Watch(ctx, path, WithPolling(10*time.Millisecond))

	waitFor(t, ch, hasMessages(1))
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`[{"content":"no role, longer"}]`), 0o644))
	bad := waitFor(t, ch, func(u Update) bool { return u.Err != nil })
	assert.ErrorIs(t, bad.Err, ErrInvalidMessage)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`[{"role":"user","content":"a"},{"role":"assistant","content":"b"}]`), 0o644))
	waitFor(t, ch, hasMessages(2))
}

func TestWatch_MissingFile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := Watch(ctx, filepath.Join(t.TempDir(), "absent.json"))

	u := waitFor(t, ch, func(Update) bool { return true })
	assert.ErrorIs(t, u.Err, os.ErrNotExist)

	cancel()
	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
