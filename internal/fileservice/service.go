// Package fileservice combines the document store, the parser and the search
// index into the file, task and memory views served to clients.
package fileservice

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/Traejpg/mission-control-sub000/internal/apperr"
	"github.com/Traejpg/mission-control-sub000/internal/index"
	"github.com/Traejpg/mission-control-sub000/internal/models"
	"github.com/Traejpg/mission-control-sub000/internal/parser"
)

// DateLayout is the key format accepted for client writes.
const DateLayout = "2006-01-02"

// DocumentStore is the subset of the document store used by the service.
type DocumentStore interface {
	Get(key string) (models.Document, error)
	List() []models.Document
	Len() int
	Put(ctx context.Context, key, content string) (models.Document, error)
	Delete(ctx context.Context, key string) error
}

// Searcher runs full-text queries over documents.
type Searcher interface {
	Search(query string, limit int) ([]index.SearchResult, error)
}

// Service coordinates store, parser and index operations.
type Service struct {
	store    DocumentStore
	searcher Searcher
}

// NewService creates a new file service. searcher may be nil, in which case
// Search falls back to scanning documents in memory.
func NewService(store DocumentStore, searcher Searcher) *Service {
	return &Service{store: store, searcher: searcher}
}

// ValidateDate checks that date is a YYYY-MM-DD calendar date.
func ValidateDate(date string) error {
	err := validation.Validate(date,
		validation.Required,
		validation.Date(DateLayout),
	)
	if err != nil {
		return fmt.Errorf("%w: date %s", apperr.ErrInvalidKey, err.Error())
	}
	return nil
}

// View derives the presentation form of doc.
func View(doc models.Document) models.File {
	f := models.File{
		Date:         doc.Key,
		Content:      doc.Content,
		LastModified: doc.LastModified,
		Tasks:        []models.Task{},
		Memories:     []models.Memory{},
	}
	res, err := parser.Parse(doc.Key, []byte(doc.Content))
	if err != nil {
		return f
	}
	f.Title = res.Title
	f.Tasks = res.Tasks
	f.Memories = res.Memories
	return f
}

// GetFile returns one file by date.
func (s *Service) GetFile(_ context.Context, date string) (*models.File, error) {
	doc, err := s.store.Get(date)
	if err != nil {
		return nil, err
	}
	f := View(doc)
	return &f, nil
}

// ListFiles returns every file, most recent date first.
func (s *Service) ListFiles(_ context.Context) []models.File {
	docs := s.store.List()
	out := make([]models.File, len(docs))
	for i, d := range docs {
		out[i] = View(d)
	}
	return out
}

// WriteFile validates date and replaces the file content. The store
// broadcasts the change before this returns.
func (s *Service) WriteFile(ctx context.Context, date, content string) (*models.File, error) {
	if err := ValidateDate(date); err != nil {
		return nil, err
	}
	doc, err := s.store.Put(ctx, date, content)
	if err != nil {
		return nil, err
	}
	f := View(doc)
	return &f, nil
}

// DeleteFile removes a file.
func (s *Service) DeleteFile(ctx context.Context, date string) error {
	return s.store.Delete(ctx, date)
}

// Tasks returns the tasks of every file, most recent date first.
func (s *Service) Tasks(ctx context.Context) []models.Task {
	out := []models.Task{}
	for _, f := range s.ListFiles(ctx) {
		out = append(out, f.Tasks...)
	}
	return out
}

// Memories returns the memories of every file, most recent date first.
func (s *Service) Memories(ctx context.Context) []models.Memory {
	out := []models.Memory{}
	for _, f := range s.ListFiles(ctx) {
		out = append(out, f.Memories...)
	}
	return out
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if s.searcher == nil {
		return s.scan(query, limit), nil
	}
	return s.searcher.Search(query, limit)
}

// Count returns the number of stored files.
func (s *Service) Count() int {
	return s.store.Len()
}

func (s *Service) scan(query string, limit int) []index.SearchResult {
	if limit <= 0 {
		limit = 20
	}
	out := []index.SearchResult{}
	for _, d := range s.store.List() {
		if len(out) >= limit {
			break
		}
		if query == "" || !containsFold(d.Content, query) {
			continue
		}
		f := View(d)
		out = append(out, index.SearchResult{Date: d.Key, Title: f.Title, Snippet: snippet(d.Content)})
	}
	return out
}
