package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Traejpg/mission-control-sub000/internal/apperr"
	"github.com/Traejpg/mission-control-sub000/internal/checksum"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) DocumentChanged(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestPutThenGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	doc, err := s.Put(ctx, "2026-02-21", "## Note\nhello")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get("2026-02-21")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != "## Note\nhello" {
		t.Errorf("content = %q", got.Content)
	}
	if got.LastModified != doc.LastModified {
		t.Errorf("lastModified = %d, want %d", got.LastModified, doc.LastModified)
	}
}

func TestGetMissing(t *testing.T) {
	s := New()
	if _, err := s.Get("nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPutEmptyKey(t *testing.T) {
	s := New()
	if _, err := s.Put(context.Background(), "", "x"); !errors.Is(err, apperr.ErrInvalidKey) {
		t.Errorf("err = %v, want ErrInvalidKey", err)
	}
}

func TestListOrderedDescending(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, k := range []string{"2026-01-02", "2026-01-03", "2026-01-01"} {
		if _, err := s.Put(ctx, k, k); err != nil {
			t.Fatal(err)
		}
	}
	docs := s.List()
	if len(docs) != 3 {
		t.Fatalf("len = %d", len(docs))
	}
	want := []string{"2026-01-03", "2026-01-02", "2026-01-01"}
	for i, d := range docs {
		if d.Key != want[i] {
			t.Errorf("docs[%d] = %s, want %s", i, d.Key, want[i])
		}
	}
}

func TestLastModifiedStrictlyIncreases(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	s := New(WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	var prev int64
	for i := 0; i < 5; i++ {
		doc, err := s.Put(ctx, "k", fmt.Sprintf("v%d", i))
		if err != nil {
			t.Fatal(err)
		}
		if doc.LastModified <= prev {
			t.Fatalf("lastModified %d not greater than %d", doc.LastModified, prev)
		}
		prev = doc.LastModified
	}
}

func TestPutNotifiesExactlyOnce(t *testing.T) {
	rec := &recorder{}
	s := New(WithListener(rec))
	ctx := WithOrigin(context.Background(), "conn-1")

	if _, err := s.Put(ctx, "k", "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(ctx, "k", "b"); err != nil {
		t.Fatal(err)
	}

	evs := rec.all()
	if len(evs) != 2 {
		t.Fatalf("events = %d, want 2", len(evs))
	}
	if evs[0].Kind != Added || evs[1].Kind != Changed {
		t.Errorf("kinds = %s, %s", evs[0].Kind, evs[1].Kind)
	}
	if evs[1].Origin != "conn-1" || evs[1].Source != SourceClient {
		t.Errorf("origin/source = %q/%q", evs[1].Origin, evs[1].Source)
	}
}

func TestConcurrentPutsSameKeyNeverTear(t *testing.T) {
	rec := &recorder{}
	s := New(WithListener(rec))
	ctx := context.Background()

	a := strings.Repeat("a", 4096)
	b := strings.Repeat("b", 4096)

	var wg sync.WaitGroup
	results := make([]int64, 2)
	for i, c := range []string{a, b} {
		wg.Add(1)
		go func(i int, c string) {
			defer wg.Done()
			doc, err := s.Put(ctx, "k", c)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = doc.LastModified
		}(i, c)
	}

	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if doc, err := s.Get("k"); err == nil {
				if doc.Content != a && doc.Content != b {
					t.Error("observed torn write")
					return
				}
			}
		}
	}()
	wg.Wait()
	close(stop)
	<-readerDone

	final, err := s.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	want := a
	if results[1] > results[0] {
		want = b
	}
	if final.Content != want {
		t.Errorf("final content is not the write with the greater lastModified")
	}

	evs := rec.all()
	if len(evs) != 2 || evs[0].Document.LastModified >= evs[1].Document.LastModified {
		t.Errorf("listener saw events out of serialized order")
	}
}

func TestIngestSkipsStaleAndEqual(t *testing.T) {
	rec := &recorder{}
	s := New(WithListener(rec))
	ctx := context.Background()

	doc, _ := s.Put(ctx, "k", "client")

	if _, changed, _ := s.Ingest(ctx, "k", "disk", doc.LastModified-1); changed {
		t.Error("stale external version overwrote client write")
	}
	if _, changed, _ := s.Ingest(ctx, "k", "client", doc.LastModified+10); changed {
		t.Error("identical content should not be re-applied")
	}
	got, changed, err := s.Ingest(ctx, "k", "disk", doc.LastModified+10)
	if err != nil || !changed {
		t.Fatalf("newer external version not applied: %v", err)
	}
	if got.Content != "disk" || got.LastModified < doc.LastModified+10 {
		t.Errorf("doc = %+v", got)
	}

	evs := rec.all()
	if len(evs) != 2 || evs[1].Source != SourceExternal {
		t.Errorf("events = %+v", evs)
	}
}

func TestIngestAppliesSyncedEditWithOlderMtime(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, changed, err := s.Ingest(ctx, "k", "v1", 1_000)
	if err != nil || !changed {
		t.Fatalf("initial ingest = %v, %v", changed, err)
	}

	// An edit copied in with its original timestamp preserved.
	got, changed, err := s.Ingest(ctx, "k", "v2", 500)
	if err != nil || !changed {
		t.Fatalf("edit with preserved mtime dropped: changed=%v err=%v", changed, err)
	}
	if got.Content != "v2" || got.LastModified <= first.LastModified {
		t.Errorf("doc = %+v", got)
	}
}

func TestIngestAfterClientWriteReachesCopy(t *testing.T) {
	s := New()
	ctx := context.Background()

	doc, _ := s.Put(ctx, "k", "client")

	// The external copy catches up with the client write.
	if _, changed, _ := s.Ingest(ctx, "k", "client", doc.LastModified-5); changed {
		t.Fatal("identical content should not be re-applied")
	}
	// From here on an external edit wins even with an older mtime.
	got, changed, err := s.Ingest(ctx, "k", "edited", doc.LastModified-5)
	if err != nil || !changed || got.Content != "edited" {
		t.Errorf("edit after sync = %+v, %v, %v", got, changed, err)
	}

	// A new client write is unsynced again, so an older snapshot loses.
	doc, _ = s.Put(ctx, "k", "client2")
	if _, changed, _ := s.Ingest(ctx, "k", "edited", doc.LastModified-1); changed {
		t.Error("stale copy overwrote a client write")
	}
}

func TestConfirmMarksSynced(t *testing.T) {
	s := New()
	ctx := context.Background()

	doc, _ := s.Put(ctx, "k", "client")
	if s.Confirm("k", checksum.Sum([]byte("other"))) {
		t.Fatal("Confirm matched a different checksum")
	}
	if _, changed, _ := s.Ingest(ctx, "k", "disk", doc.LastModified-1); changed {
		t.Fatal("unconfirmed client write was overwritten")
	}

	if !s.Confirm("k", checksum.Sum([]byte("client"))) {
		t.Fatal("Confirm did not match the stored content")
	}
	if _, changed, _ := s.Ingest(ctx, "k", "disk", doc.LastModified-1); !changed {
		t.Error("edit after Confirm was dropped")
	}
	if s.Confirm("missing", "x") {
		t.Error("Confirm on a missing key reported a match")
	}
}

func TestDeleteEmitsEvent(t *testing.T) {
	rec := &recorder{}
	s := New(WithListener(rec))
	ctx := context.Background()

	_, _ = s.Put(ctx, "k", "x")
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get("k"); !errors.Is(err, apperr.ErrNotFound) {
		t.Error("document still present after delete")
	}
	if err := s.Delete(ctx, "k"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
	evs := rec.all()
	if len(evs) != 2 || evs[1].Kind != Deleted || evs[1].Document.Key != "k" {
		t.Errorf("events = %+v", evs)
	}
}

func TestListenersFanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	s := New(WithListener(Listeners{a, b}))
	_, _ = s.Put(context.Background(), "k", "x")
	if len(a.all()) != 1 || len(b.all()) != 1 {
		t.Errorf("fan-out counts = %d, %d", len(a.all()), len(b.all()))
	}
}
