package index

import (
	"context"
	"log/slog"

	"github.com/Traejpg/mission-control-sub000/internal/checksum"
	"github.com/Traejpg/mission-control-sub000/internal/docstore"
	"github.com/Traejpg/mission-control-sub000/internal/parser"
)

// Updater keeps the index in step with the document store.
type Updater struct {
	db     DocumentIndex
	logger *slog.Logger
}

// NewUpdater returns a store listener that indexes every mutation.
func NewUpdater(db DocumentIndex, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{db: db, logger: logger}
}

// DocumentChanged implements docstore.Listener. Index failures are logged
// and never fail the write.
func (u *Updater) DocumentChanged(_ context.Context, ev docstore.Event) {
	key := ev.Document.Key
	if ev.Kind == docstore.Deleted {
		if err := u.db.DeleteDocument(key); err != nil {
			u.logger.Warn("index: delete failed", slog.String("date", key), slog.String("error", err.Error()))
		}
		return
	}

	data := []byte(ev.Document.Content)
	res, err := parser.Parse(key, data)
	if err != nil {
		u.logger.Warn("index: parse failed", slog.String("date", key), slog.String("error", err.Error()))
		return
	}
	open := 0
	for _, t := range res.Tasks {
		if !t.Done {
			open++
		}
	}
	row := DocumentRow{
		Key:         key,
		Title:       res.Title,
		Checksum:    checksum.Sum(data),
		Tags:        res.Tags,
		MemoryCount: len(res.Memories),
		OpenTasks:   open,
		UpdatedAt:   ev.Document.LastModified,
	}
	if err := u.db.UpsertDocument(row, res.Body); err != nil {
		u.logger.Warn("index: upsert failed", slog.String("date", key), slog.String("error", err.Error()))
		return
	}
	u.logger.Debug("index: indexed", slog.String("date", key), slog.String("kind", string(ev.Kind)))
}
