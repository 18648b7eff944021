// Package sse streams document mutations as Server-Sent Events for clients
// that only need a read-only change feed (GET /api/events).
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Traejpg/mission-control-sub000/internal/docstore"
)

// Event is one frame on the stream.
type Event struct {
	Name string
	Data any
}

// FileEvent is the data of file.* frames.
type FileEvent struct {
	Date         string `json:"date"`
	LastModified int64  `json:"lastModified"`
	Source       string `json:"source"`
}

// Feed fans document events out to SSE subscribers.
//
// A single loop owns the subscriber set; slow subscribers drop frames
// rather than stall the loop. Derived-record hints (records.updated) are
// coalesced to at most one per throttle interval, and a burst that was
// suppressed gets one trailing hint when the interval ends.
type Feed struct {
	throttle time.Duration

	joinCh  chan chan []byte
	leaveCh chan chan []byte
	docCh   chan docstore.Event
	countCh chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewFeed starts a feed. throttle bounds the records.updated rate.
func NewFeed(throttle time.Duration) *Feed {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	f := &Feed{
		throttle: throttle,
		joinCh:   make(chan chan []byte),
		leaveCh:  make(chan chan []byte),
		docCh:    make(chan docstore.Event, 256),
		countCh:  make(chan chan int),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	go f.run()
	return f
}

func frame(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Name, data)), nil
}

func (f *Feed) run() {
	defer close(f.stopped)

	subs := make(map[chan []byte]struct{})
	var (
		lastHint time.Time
		trailing *time.Timer
		// trailingC is nil unless a suppressed hint is pending.
		trailingC <-chan time.Time
	)

	send := func(ev Event) {
		raw, err := frame(ev)
		if err != nil {
			return
		}
		for ch := range subs {
			select {
			case ch <- raw:
			default:
			}
		}
	}
	hint := func(now time.Time) {
		lastHint = now
		send(Event{Name: "records.updated", Data: map[string]string{}})
	}

	for {
		select {
		case <-f.stopCh:
			if trailing != nil {
				trailing.Stop()
			}
			for ch := range subs {
				close(ch)
			}
			return

		case ch := <-f.joinCh:
			subs[ch] = struct{}{}

		case ch := <-f.leaveCh:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case ev := <-f.docCh:
			send(Event{
				Name: "file." + string(ev.Kind),
				Data: FileEvent{
					Date:         ev.Document.Key,
					LastModified: ev.Document.LastModified,
					Source:       string(ev.Source),
				},
			})

			now := time.Now()
			switch {
			case now.Sub(lastHint) >= f.throttle:
				if trailing != nil {
					trailing.Stop()
					trailingC = nil
				}
				hint(now)
			case trailingC == nil:
				trailing = time.NewTimer(f.throttle - now.Sub(lastHint))
				trailingC = trailing.C
			}

		case <-trailingC:
			trailingC = nil
			hint(time.Now())

		case resp := <-f.countCh:
			resp <- len(subs)
		}
	}
}

// DocumentChanged queues ev for subscribers. It drops the event when the
// feed is saturated so store writers never wait on SSE clients.
func (f *Feed) DocumentChanged(_ context.Context, ev docstore.Event) {
	if f.closed.Load() {
		return
	}
	select {
	case f.docCh <- ev:
	default:
	}
}

// Subscribe registers a new subscriber channel.
func (f *Feed) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if f.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case f.joinCh <- ch:
	case <-f.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes ch and closes it.
func (f *Feed) Unsubscribe(ch chan []byte) {
	if f.closed.Load() {
		return
	}
	select {
	case f.leaveCh <- ch:
	case <-f.stopped:
	}
}

// Subscribers returns the number of attached streams.
func (f *Feed) Subscribers() int {
	if f.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case f.countCh <- resp:
	case <-f.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-f.stopped:
		return 0
	}
}

// Close stops the loop and ends every stream.
func (f *Feed) Close() {
	if f.closed.CompareAndSwap(false, true) {
		close(f.stopCh)
	}
	<-f.stopped
}

// ServeHTTP streams frames until the client goes away or the feed closes.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := f.Subscribe()
	defer f.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
