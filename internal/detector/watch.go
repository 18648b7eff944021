package detector

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of file events into one poll.
const DefaultDebounce = 200 * time.Millisecond

// KeyMapper reports whether a file path maps to a document key.
type KeyMapper interface {
	KeyFor(path string) (string, bool)
}

// Watch triggers loop whenever a vault file matched by keys is created,
// written, removed or renamed, debounced by debounce. It returns when ctx
// is done. Polling keeps running regardless, so a failed watcher only
// delays detection.
func Watch(ctx context.Context, root string, keys KeyMapper, loop *Loop, debounce time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			fire = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			loop.Trigger()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			key, ok := keys.KeyFor(ev.Name)
			if !ok {
				continue
			}
			logger.Debug("watcher: event", slog.String("date", key), slog.String("op", ev.Op.String()))
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
