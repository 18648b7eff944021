// Package docstore implements the authoritative in-memory document store.
//
// Writers to the same key are serialized by a per-key mutex; readers take a
// short read lock on the map and copy the document value, so a reader sees
// either the fully-old or the fully-new document. Every accepted mutation is
// handed to the listener synchronously, while the writer still holds the key
// lock, so listeners observe mutations of one key in the order they were
// applied.
package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Traejpg/mission-control-sub000/internal/apperr"
	"github.com/Traejpg/mission-control-sub000/internal/checksum"
	"github.com/Traejpg/mission-control-sub000/internal/models"
)

// Store is an in-memory map of documents keyed by date string.
type Store struct {
	mu   sync.RWMutex
	docs map[string]models.Document
	// synced holds the keys whose stored content is known to match the
	// external copy. A client write clears it until the copy catches up.
	synced map[string]bool

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	listener Listener
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithListener sets the listener notified of every mutation.
func WithListener(l Listener) Option {
	return func(s *Store) { s.listener = l }
}

// WithClock overrides the wall clock used for lastModified.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		docs:   make(map[string]models.Document),
		synced: make(map[string]bool),
		locks:  make(map[string]*sync.Mutex),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetListener replaces the mutation listener. It must be called before the
// store is shared between goroutines.
func (s *Store) SetListener(l Listener) {
	s.listener = l
}

// Get returns the document for key.
func (s *Store) Get(key string) (models.Document, error) {
	s.mu.RLock()
	doc, ok := s.docs[key]
	s.mu.RUnlock()
	if !ok {
		return models.Document{}, apperr.ErrNotFound
	}
	return doc, nil
}

// List returns all documents ordered by key descending (most recent date first).
func (s *Store) List() []models.Document {
	s.mu.RLock()
	out := make([]models.Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	return out
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Put replaces the content of key and returns the resulting document.
// The listener has been notified by the time Put returns.
func (s *Store) Put(ctx context.Context, key, content string) (models.Document, error) {
	if key == "" {
		return models.Document{}, apperr.ErrInvalidKey
	}
	unlock := s.lockKey(key)
	defer unlock()

	doc, created := s.apply(key, content, 0, false)
	s.notify(ctx, Event{Kind: kindFor(created), Source: SourceClient, Document: doc, Origin: OriginFrom(ctx)})
	return doc, nil
}

// Ingest applies an externally observed version of key. It reports whether
// the document changed.
//
// When the stored content already matches the external copy, any different
// external content is a newer edit and is applied regardless of
// observedAt, since copies that preserve or coarsen mtimes are common.
// While a client write has not reached the external copy yet, the edit is
// applied only if observedAt (epoch ms) is after the stored lastModified, so
// a stale external snapshot never overwrites a newer client write.
func (s *Store) Ingest(ctx context.Context, key, content string, observedAt int64) (models.Document, bool, error) {
	if key == "" {
		return models.Document{}, false, apperr.ErrInvalidKey
	}
	unlock := s.lockKey(key)
	defer unlock()

	s.mu.Lock()
	cur, exists := s.docs[key]
	synced := s.synced[key]
	if exists && cur.Content == content {
		s.synced[key] = true
	}
	s.mu.Unlock()
	if exists && (cur.Content == content || (!synced && cur.LastModified >= observedAt)) {
		return cur, false, nil
	}

	doc, created := s.apply(key, content, observedAt, true)
	s.notify(ctx, Event{Kind: kindFor(created), Source: SourceExternal, Document: doc})
	return doc, true, nil
}

// Confirm records that the external copy of key has checksum sum. If it
// matches the stored content the document counts as synced, exactly as if
// Ingest had observed the same content. It reports whether it matched.
func (s *Store) Confirm(key, sum string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.docs[key]
	if !ok || checksum.Sum([]byte(cur.Content)) != sum {
		return false
	}
	s.synced[key] = true
	return true
}

// Delete removes key and emits a deletion event.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.delete(ctx, key, SourceClient)
}

// Forget removes key because it vanished from an external source.
func (s *Store) Forget(ctx context.Context, key string) error {
	return s.delete(ctx, key, SourceExternal)
}

func (s *Store) delete(ctx context.Context, key string, src Source) error {
	unlock := s.lockKey(key)
	defer unlock()

	s.mu.Lock()
	doc, ok := s.docs[key]
	if ok {
		delete(s.docs, key)
		delete(s.synced, key)
	}
	s.mu.Unlock()
	if !ok {
		return apperr.ErrNotFound
	}

	s.notify(ctx, Event{Kind: Deleted, Source: src, Document: doc, Origin: OriginFrom(ctx)})
	return nil
}

// apply stores content under key. The caller must hold the key lock.
// lastModified is max(now, floor) and strictly greater than the previous value.
func (s *Store) apply(key, content string, floor int64, synced bool) (models.Document, bool) {
	ts := s.now().UnixMilli()
	if ts < floor {
		ts = floor
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.docs[key]
	if exists && ts <= prev.LastModified {
		ts = prev.LastModified + 1
	}
	doc := models.Document{Key: key, Content: content, LastModified: ts}
	s.docs[key] = doc
	s.synced[key] = synced
	return doc, !exists
}

func (s *Store) notify(ctx context.Context, ev Event) {
	if s.listener != nil {
		s.listener.DocumentChanged(ctx, ev)
	}
}

// lockKey acquires the writer mutex for key and returns its release func.
// Key mutexes are kept for the store lifetime, matching document lifetime.
func (s *Store) lockKey(key string) func() {
	s.locksMu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}

func kindFor(created bool) Kind {
	if created {
		return Added
	}
	return Changed
}
