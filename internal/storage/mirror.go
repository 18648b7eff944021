package storage

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/Traejpg/mission-control-sub000/internal/docstore"
)

// Mirror is a store listener that writes client-originated mutations
// through to a Provider. Mutations ingested from the provider itself are
// skipped.
type Mirror struct {
	provider Provider
	logger   *slog.Logger
}

// NewMirror creates a write-through listener for provider.
func NewMirror(provider Provider, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{provider: provider, logger: logger}
}

// DocumentChanged implements docstore.Listener. Failures are logged; the
// in-memory write stands.
func (m *Mirror) DocumentChanged(_ context.Context, ev docstore.Event) {
	if ev.Source != docstore.SourceClient {
		return
	}
	key := ev.Document.Key
	var err error
	if ev.Kind == docstore.Deleted {
		err = m.provider.Delete(key)
		if errors.Is(err, fs.ErrNotExist) {
			err = nil
		}
	} else {
		err = m.provider.Write(key, []byte(ev.Document.Content))
	}
	if err != nil {
		m.logger.Warn("storage: mirror failed",
			slog.String("date", key),
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()))
	}
}
