package logbuf

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestHandler_RetainsAndForwards(t *testing.T) {
	var out bytes.Buffer
	buf := NewBuffer(10)
	logger := slog.New(buf.Handler(slog.NewJSONHandler(&out, nil)))

	logger.Info("hub: client connected", slog.String("client_id", "c1"))

	entries := buf.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Message != "hub: client connected" || entries[0].Level != "INFO" {
		t.Errorf("entry = %+v", entries[0])
	}
	if entries[0].Attrs["client_id"] != "c1" {
		t.Errorf("attrs = %v", entries[0].Attrs)
	}
	if !strings.Contains(out.String(), "client connected") {
		t.Errorf("record not passed to next handler: %q", out.String())
	}
}

func TestHandler_RespectsLevel(t *testing.T) {
	var out bytes.Buffer
	buf := NewBuffer(10)
	logger := slog.New(buf.Handler(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelWarn})))

	logger.Info("dropped")
	logger.Warn("kept")

	entries := buf.Entries()
	if len(entries) != 1 || entries[0].Message != "kept" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestBuffer_RingOverwritesOldest(t *testing.T) {
	var out bytes.Buffer
	buf := NewBuffer(3)
	logger := slog.New(buf.Handler(slog.NewJSONHandler(&out, nil)))

	for _, m := range []string{"a", "b", "c", "d", "e"} {
		logger.Info(m)
	}
	entries := buf.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries = %d", len(entries))
	}
	got := entries[0].Message + entries[1].Message + entries[2].Message
	if got != "cde" {
		t.Errorf("ring order = %q, want cde", got)
	}
}

func TestBuffer_SinkReceivesEntries(t *testing.T) {
	var out bytes.Buffer
	buf := NewBuffer(5)

	var mu sync.Mutex
	var seen []string
	buf.SetSink(func(e Entry) {
		mu.Lock()
		seen = append(seen, e.Message)
		mu.Unlock()
	})

	logger := slog.New(buf.Handler(slog.NewJSONHandler(&out, nil))).With(slog.String("component", "detector"))
	logger.WithGroup("poll").Info("tick", slog.Int("n", 1))

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "tick" {
		t.Fatalf("sink saw %v", seen)
	}
	e := buf.Entries()[0]
	if e.Attrs["component"] != "detector" || e.Attrs["poll.n"] != "1" {
		t.Errorf("attrs = %v", e.Attrs)
	}
}
