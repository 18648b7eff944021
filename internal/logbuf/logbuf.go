// Package logbuf keeps recent log records in memory and forwards each record
// to a sink, backing the "logs" channel.
package logbuf

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Entry is one retained log record.
type Entry struct {
	Timestamp int64             `json:"timestamp"`
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Sink receives every entry as it is recorded. It must not block.
type Sink func(Entry)

// Buffer is a fixed-size ring of recent entries.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool

	sink atomic.Pointer[Sink]
}

// NewBuffer creates a ring holding up to size entries.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = 200
	}
	return &Buffer{entries: make([]Entry, size)}
}

// SetSink installs the forwarder for new entries. A nil sink disables forwarding.
func (b *Buffer) SetSink(s Sink) {
	if s == nil {
		b.sink.Store(nil)
		return
	}
	b.sink.Store(&s)
}

// Entries returns retained entries, oldest first.
func (b *Buffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		return append([]Entry{}, b.entries[:b.next]...)
	}
	out := make([]Entry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	return append(out, b.entries[:b.next]...)
}

func (b *Buffer) add(e Entry) {
	b.mu.Lock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
	b.mu.Unlock()

	if s := b.sink.Load(); s != nil {
		(*s)(e)
	}
}

// Handler wraps next so that every record it handles is also retained.
func (b *Buffer) Handler(next slog.Handler) slog.Handler {
	return &handler{next: next, buf: b}
}

type handler struct {
	next   slog.Handler
	buf    *Buffer
	attrs  []slog.Attr
	prefix string
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	e := Entry{
		Timestamp: r.Time.UnixMilli(),
		Level:     r.Level.String(),
		Message:   r.Message,
	}
	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		e.Attrs = make(map[string]string, len(h.attrs)+r.NumAttrs())
		for _, a := range h.attrs {
			e.Attrs[a.Key] = a.Value.String()
		}
		r.Attrs(func(a slog.Attr) bool {
			e.Attrs[h.prefix+a.Key] = a.Value.Resolve().String()
			return true
		})
	}
	h.buf.add(e)
	return h.next.Handle(ctx, r)
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		merged = append(merged, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return &handler{next: h.next.WithAttrs(attrs), buf: h.buf, attrs: merged, prefix: h.prefix}
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &handler{next: h.next.WithGroup(name), buf: h.buf, attrs: h.attrs, prefix: h.prefix + name + "."}
}
