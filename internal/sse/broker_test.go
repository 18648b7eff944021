package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Traejpg/mission-control-sub000/internal/docstore"
	"github.com/Traejpg/mission-control-sub000/internal/models"
	"github.com/Traejpg/mission-control-sub000/internal/testutil"
)

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	f := NewFeed(100 * time.Millisecond)
	defer f.Close()
	if f.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers")
	}
	ch := f.Subscribe()
	if f.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber")
	}
	f.Unsubscribe(ch)
	if f.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe")
	}
}

func TestStoreMutationsBecomeFrames(t *testing.T) {
	f := NewFeed(time.Hour)
	defer f.Close()
	ch := f.Subscribe()
	defer f.Unsubscribe(ch)

	store := docstore.New(docstore.WithListener(f))
	ctx := context.Background()
	if _, err := store.Put(ctx, "2026-02-21", "## Note\nhello"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Put(ctx, "2026-02-21", "## Note\nbye"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "2026-02-21"); err != nil {
		t.Fatal(err)
	}

	var frames []string
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		frames = append(frames, drain(ch)...)
		return len(frames) >= 4
	}, "expected three file frames and one records hint")

	want := []string{"event: file.added", "event: records.updated", "event: file.changed", "event: file.deleted"}
	for i, prefix := range want {
		if !strings.HasPrefix(frames[i], prefix) {
			t.Errorf("frame %d = %q, want prefix %q", i, frames[i], prefix)
		}
	}
	if !strings.Contains(frames[0], `"date":"2026-02-21"`) || !strings.Contains(frames[0], `"source":"client"`) {
		t.Errorf("file.added data = %q", frames[0])
	}
}

func TestRecordsHintThrottled(t *testing.T) {
	f := NewFeed(time.Hour)
	defer f.Close()
	ch := f.Subscribe()
	defer f.Unsubscribe(ch)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.DocumentChanged(ctx, docstore.Event{Kind: docstore.Added, Source: docstore.SourceExternal})
	}

	var frames []string
	testutil.Eventually(t, time.Second, 10*time.Millisecond, func() bool {
		frames = append(frames, drain(ch)...)
		return len(frames) >= 4
	}, "expected frames")

	hints := 0
	for _, s := range frames {
		if strings.Contains(s, "records.updated") {
			hints++
		}
	}
	if hints != 1 {
		t.Errorf("records.updated frames = %d, want 1", hints)
	}
}

func TestTrailingHintAfterSuppressedBurst(t *testing.T) {
	f := NewFeed(50 * time.Millisecond)
	defer f.Close()
	ch := f.Subscribe()
	defer f.Unsubscribe(ch)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.DocumentChanged(ctx, docstore.Event{Kind: docstore.Changed, Source: docstore.SourceExternal})
	}

	var frames []string
	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		frames = append(frames, drain(ch)...)
		return len(frames) >= 5
	}, "expected a trailing records.updated after the burst")

	hints := 0
	for _, s := range frames {
		if strings.HasPrefix(s, "event: records.updated") {
			hints++
		}
	}
	if hints != 2 {
		t.Errorf("records.updated frames = %d, want leading and trailing", hints)
	}
	if last := frames[len(frames)-1]; !strings.HasPrefix(last, "event: records.updated") {
		t.Errorf("last frame = %q, want the trailing hint", last)
	}

	// Nothing else is pending once the trailing hint went out.
	time.Sleep(120 * time.Millisecond)
	if extra := drain(ch); len(extra) != 0 {
		t.Errorf("unexpected frames after trailing hint: %q", extra)
	}
}

func TestServeHTTPStreamsUntilDisconnect(t *testing.T) {
	f := NewFeed(100 * time.Millisecond)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		f.ServeHTTP(w, req)
		close(done)
	}()

	testutil.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return f.Subscribers() == 1
	}, "handler never subscribed")

	f.DocumentChanged(ctx, docstore.Event{
		Kind:     docstore.Changed,
		Source:   docstore.SourceExternal,
		Document: models.Document{Key: "2026-02-21", LastModified: 42},
	})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	want := "event: file.changed\ndata: {\"date\":\"2026-02-21\",\"lastModified\":42,\"source\":\"external\"}"
	if body := w.Body.String(); !strings.Contains(body, want) {
		t.Errorf("handler output missing frame: %q", body)
	}

	testutil.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return f.Subscribers() == 0
	}, "subscriber not cleaned up after disconnect")
}

func TestDocumentChangedNeverBlocks(t *testing.T) {
	f := NewFeed(time.Second)
	defer f.Close()
	ch := f.Subscribe()
	defer f.Unsubscribe(ch)

	for i := 0; i < 1000; i++ {
		f.DocumentChanged(context.Background(), docstore.Event{Kind: docstore.Changed})
	}
}

func TestCloseEndsStreams(t *testing.T) {
	f := NewFeed(100 * time.Millisecond)
	ch := f.Subscribe()
	if f.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber")
	}

	f.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if f.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers after close")
	}

	f.DocumentChanged(context.Background(), docstore.Event{Kind: docstore.Deleted})
}
