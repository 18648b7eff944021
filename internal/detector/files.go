package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Traejpg/mission-control-sub000/internal/apperr"
	"github.com/Traejpg/mission-control-sub000/internal/checksum"
	"github.com/Traejpg/mission-control-sub000/internal/models"
	"github.com/Traejpg/mission-control-sub000/internal/storage"
)

// Ingester receives documents observed in the vault.
type Ingester interface {
	Ingest(ctx context.Context, key, content string, observedAt int64) (models.Document, bool, error)
	Forget(ctx context.Context, key string) error
	// Confirm records the vault checksum of a document that was not read.
	Confirm(key, sum string) bool
}

// ChecksumLookup reports the checksum of the indexed version of key, or ""
// when key is not indexed.
type ChecksumLookup interface {
	GetChecksum(key string) (string, error)
}

// FileSource reconciles vault files into the document store.
type FileSource struct {
	provider storage.Provider
	store    Ingester
	index    ChecksumLookup
	logger   *slog.Logger

	// known holds the keys seen in the last applied snapshot. Only Poll
	// touches it, and polls are serialized by the loop.
	known map[string]struct{}
}

// NewFileSource creates the vault source. index may be nil; when set,
// files whose checksum matches the index are not read.
func NewFileSource(provider storage.Provider, store Ingester, index ChecksumLookup, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		provider: provider,
		store:    store,
		index:    index,
		logger:   logger,
		known:    make(map[string]struct{}),
	}
}

func (s *FileSource) Name() string { return "files" }

// Snapshot lists the vault and fingerprints every key with its checksum.
func (s *FileSource) Snapshot(_ context.Context) (Snapshot, error) {
	entries, err := s.provider.List()
	if err != nil {
		return Snapshot{}, fmt.Errorf("files: list: %w", err)
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		// An unreadable file keeps a fixed marker, so repairing it changes
		// the fingerprint.
		if e.Err != nil {
			parts[i] = e.Key + ":!"
			continue
		}
		parts[i] = e.Key + ":" + e.Checksum
	}
	return Snapshot{
		Fingerprint: checksum.Fingerprint(parts),
		Apply:       func(ctx context.Context) error { return s.apply(ctx, entries) },
	}, nil
}

// apply reconciles the store with entries. Every entry is attempted; the
// returned error joins the failures so the loop retries the snapshot.
// Unreadable entries are logged and keep their stored document.
func (s *FileSource) apply(ctx context.Context, entries []models.SourceEntry) error {
	var errs []error
	current := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		current[e.Key] = struct{}{}
		if e.Err != nil {
			s.logger.Warn("detector: unreadable file", slog.String("date", e.Key), slog.String("error", e.Err.Error()))
			continue
		}
		// The index can outlive the store (a file DSN across restarts), so
		// the store has to confirm it holds the same content.
		if s.indexed(e) && s.store.Confirm(e.Key, e.Checksum) {
			continue
		}
		data, err := s.provider.Read(e.Key)
		if err != nil {
			errs = append(errs, fmt.Errorf("files: read %s: %w", e.Key, err))
			continue
		}
		_, changed, err := s.store.Ingest(ctx, e.Key, string(data), e.ModTime)
		if err != nil {
			errs = append(errs, fmt.Errorf("files: ingest %s: %w", e.Key, err))
			continue
		}
		if changed {
			s.logger.Debug("detector: ingested", slog.String("date", e.Key))
		}
	}

	for key := range s.known {
		if _, ok := current[key]; ok {
			continue
		}
		if err := s.store.Forget(ctx, key); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			errs = append(errs, fmt.Errorf("files: forget %s: %w", key, err))
			// Still known, so the next apply retries the removal.
			current[key] = struct{}{}
			continue
		}
		s.logger.Debug("detector: removed", slog.String("date", key))
	}
	s.known = current
	return errors.Join(errs...)
}

func (s *FileSource) indexed(e models.SourceEntry) bool {
	if s.index == nil {
		return false
	}
	cs, err := s.index.GetChecksum(e.Key)
	return err == nil && cs != "" && cs == e.Checksum
}
