package conversation

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/randalmurphal/promptctx/provider"
)

// DefaultPollInterval is how often the polling watcher checks the file.
const DefaultPollInterval = 250 * time.Millisecond

// Update is one re-read of a watched conversation.
type Update struct {
	Messages []provider.Message
	Err      error
}

// WatchOption configures Watch.
type WatchOption func(*watcher)

// WithPolling forces stat polling at the given interval instead of
// filesystem notifications.
func WithPolling(interval time.Duration) WatchOption {
	return func(w *watcher) {
		w.poll = true
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithWatchLogger sets the logger for watch events.
func WithWatchLogger(l *slog.Logger) WatchOption {
	return func(w *watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

type watcher struct {
	path     string
	poll     bool
	interval time.Duration
	logger   *slog.Logger
}

// Watch emits the current contents of path and then a fresh Update after each
// change. A file that disappears or fails to parse yields an Update with Err
// set; watching continues. The channel closes when ctx is done.
func Watch(ctx context.Context, path string, opts ...WatchOption) <-chan Update {
	w := &watcher{
		path:     path,
		interval: DefaultPollInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	ch := make(chan Update)
	go func() {
		defer close(ch)

		if !w.emit(ctx, ch) {
			return
		}

		if w.poll {
			w.watchPolling(ctx, ch)
			return
		}

		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			w.logger.Debug("fsnotify unavailable, polling", slog.Any("error", err))
			w.watchPolling(ctx, ch)
			return
		}
		defer fsw.Close()

		// Watch the directory; editors replace files by rename.
		if err := fsw.Add(filepath.Dir(w.path)); err != nil {
			w.logger.Debug("watch directory failed, polling", slog.Any("error", err))
			w.watchPolling(ctx, ch)
			return
		}
		w.watchEvents(ctx, ch, fsw)
	}()
	return ch
}

func (w *watcher) watchEvents(ctx context.Context, ch chan<- Update, fsw *fsnotify.Watcher) {
	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			w.logger.Debug("conversation changed", slog.String("path", w.path), slog.String("op", event.Op.String()))
			if !w.emit(ctx, ch) {
				return
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("path", w.path), slog.Any("error", err))
		}
	}
}

func (w *watcher) watchPolling(ctx context.Context, ch chan<- Update) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	last := w.stat()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := w.stat()
			if cur == last {
				continue
			}
			last = cur
			w.logger.Debug("conversation changed", slog.String("path", w.path))
			if !w.emit(ctx, ch) {
				return
			}
		}
	}
}

// fileState identifies a version of the watched file.
type fileState struct {
	exists  bool
	size    int64
	modTime int64
}

func (w *watcher) stat() fileState {
	info, err := os.Stat(w.path)
	if err != nil {
		return fileState{}
	}
	return fileState{exists: true, size: info.Size(), modTime: info.ModTime().UnixNano()}
}

// emit loads the file and delivers the result. It reports false once ctx is done.
func (w *watcher) emit(ctx context.Context, ch chan<- Update) bool {
	msgs, err := Load(w.path)
	select {
	case ch <- Update{Messages: msgs, Err: err}:
		return true
	case <-ctx.Done():
		return false
	}
}
