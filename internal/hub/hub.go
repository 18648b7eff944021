// Package hub implements the real-time sync endpoint: the set of live
// connections, their channel subscriptions and the broadcast engine.
//
// Concurrency model: a single internal loop goroutine owns the connection
// set and the subscription registry. Public methods talk to the loop through
// channels, so no mutexes guard that state. Every connection adds a reader
// goroutine (Serve) and a writer goroutine draining its bounded queue.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Traejpg/mission-control-sub000/internal/apperr"
	"github.com/Traejpg/mission-control-sub000/internal/docstore"
	"github.com/Traejpg/mission-control-sub000/internal/fileservice"
	"github.com/Traejpg/mission-control-sub000/internal/index"
	"github.com/Traejpg/mission-control-sub000/internal/logbuf"
	"github.com/Traejpg/mission-control-sub000/internal/models"
)

// Defaults for zero-valued options.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultSendTimeout       = 10 * time.Second
	DefaultQueueSize         = 256
	defaultSearchLimit       = 20
)

// Files supplies document views and performs client writes.
type Files interface {
	ListFiles(ctx context.Context) []models.File
	Tasks(ctx context.Context) []models.Task
	Memories(ctx context.Context) []models.Memory
	Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error)
	Count() int
	WriteFile(ctx context.Context, date, content string) (*models.File, error)
	DeleteFile(ctx context.Context, date string) error
}

type command struct {
	c   *client
	msg Inbound
}

type publication struct {
	channel string
	data    []byte
}

type direct struct {
	c    *client
	data []byte
}

// Hub tracks connections and fans messages out to channel subscribers.
type Hub struct {
	files    Files
	logger   *slog.Logger
	sessions func() []models.Session
	logs     func() []logbuf.Entry
	stats    func() any
	streams  func() int
	now      func() time.Time

	heartbeat       time.Duration
	sendTimeout     time.Duration
	queueSize       int
	maxMessageBytes int64
	startedAt       time.Time
	upgrader        websocket.Upgrader

	// Owned by the loop goroutine.
	clients map[string]*client
	reg     *Registry

	registerCh   chan *client
	unregisterCh chan *client
	commandCh    chan command
	publishCh    chan publication
	directCh     chan direct
	mutationCh   chan docstore.Event
	sweepCh      chan chan struct{}
	statusCh     chan chan Status
	countReqCh   chan chan int

	writers      sync.WaitGroup
	writeCtx     context.Context
	cancelWrites context.CancelFunc

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// New creates a hub and starts its loop.
func New(files Files, opts ...Option) *Hub {
	h := &Hub{
		files:        files,
		logger:       slog.Default(),
		now:          time.Now,
		heartbeat:    DefaultHeartbeatInterval,
		sendTimeout:  DefaultSendTimeout,
		queueSize:    DefaultQueueSize,
		clients:      make(map[string]*client),
		reg:          NewRegistry(),
		registerCh:   make(chan *client),
		unregisterCh: make(chan *client),
		commandCh:    make(chan command, 64),
		publishCh:    make(chan publication, 256),
		directCh:     make(chan direct, 64),
		mutationCh:   make(chan docstore.Event, 256),
		sweepCh:      make(chan chan struct{}),
		statusCh:     make(chan chan Status),
		countReqCh:   make(chan chan int),
		stopCh:       make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.startedAt = h.now()
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// Clients are not authenticated; any origin may connect.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	h.writeCtx, h.cancelWrites = context.WithCancel(context.Background())

	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.stopped)

	for {
		select {
		case <-h.stopCh:
			h.drain()
			for id, c := range h.clients {
				delete(h.clients, id)
				close(c.send)
			}
			return

		case c := <-h.registerCh:
			h.clients[c.id] = c
			h.enqueue(c, TypeConnected, ConnectedPayload{ClientID: c.id})
			h.logger.Info("hub: client connected", slog.String("client", c.id))

		case c := <-h.unregisterCh:
			if cur, ok := h.clients[c.id]; ok && cur == c {
				h.remove(c, "connection closed")
			}

		case cmd := <-h.commandCh:
			if cur, ok := h.clients[cmd.c.id]; ok && cur == cmd.c {
				h.handleCommand(cmd.c, cmd.msg)
			}

		case p := <-h.publishCh:
			h.broadcast(p.channel, p.data)

		case d := <-h.directCh:
			if cur, ok := h.clients[d.c.id]; ok && cur == d.c {
				h.deliver(d.c, d.data)
			}

		case ev := <-h.mutationCh:
			h.applyMutation(ev)

		case done := <-h.sweepCh:
			h.sweep()
			close(done)

		case resp := <-h.statusCh:
			resp <- h.status()

		case resp := <-h.countReqCh:
			resp <- len(h.clients)
		}
	}
}

// drain applies publications and mutations that were queued before stop.
func (h *Hub) drain() {
	for {
		select {
		case p := <-h.publishCh:
			h.broadcast(p.channel, p.data)
		case ev := <-h.mutationCh:
			h.applyMutation(ev)
		default:
			return
		}
	}
}

// remove drops c from the live set and the registry in one step and closes
// its transport. Nothing is sent to c afterwards.
func (h *Hub) remove(c *client, reason string) {
	delete(h.clients, c.id)
	h.reg.Remove(c.id)
	c.evicted.Store(true)
	close(c.send)
	_ = c.conn.Close()
	h.logger.Info("hub: client removed", slog.String("client", c.id), slog.String("reason", reason))
}

func (h *Hub) deliver(c *client, data []byte) {
	if c.evicted.Load() {
		return
	}
	select {
	case c.send <- data:
	default:
		h.remove(c, "send queue full")
	}
}

func (h *Hub) enqueue(c *client, typ string, payload any) {
	data, err := encode(typ, payload, h.now().UnixMilli())
	if err != nil {
		h.logger.Error("hub: encode failed", slog.String("type", typ), slog.Any("error", err))
		return
	}
	h.deliver(c, data)
}

func (h *Hub) broadcast(channel string, data []byte) {
	for _, id := range h.reg.Subscribers(channel) {
		if c, ok := h.clients[id]; ok {
			h.deliver(c, data)
		}
	}
}

func (h *Hub) publishLocal(channel, typ string, payload any) {
	if h.reg.Count(channel) == 0 {
		return
	}
	data, err := encode(typ, payload, h.now().UnixMilli())
	if err != nil {
		h.logger.Error("hub: encode failed", slog.String("type", typ), slog.Any("error", err))
		return
	}
	h.broadcast(channel, data)
}

func (h *Hub) handleCommand(c *client, msg Inbound) {
	switch msg.Type {
	case TypeSubscribe:
		var p ChannelsPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			h.enqueue(c, TypeError, ErrorPayload{Message: err.Error()})
			return
		}
		added := h.reg.Subscribe(c.id, p.Channels)
		h.enqueue(c, TypeSubscribed, ChannelsPayload{Channels: h.reg.ChannelsOf(c.id)})
		for _, ch := range added {
			if !hasSnapshot(ch) {
				continue
			}
			typ, payload, err := h.snapshot(ch, RequestPayload{})
			if err != nil {
				h.logger.Warn("hub: snapshot failed", slog.String("channel", ch), slog.Any("error", err))
				continue
			}
			h.enqueue(c, typ, payload)
		}

	case TypeUnsubscribe:
		var p ChannelsPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			h.enqueue(c, TypeError, ErrorPayload{Message: err.Error()})
			return
		}
		h.reg.Unsubscribe(c.id, p.Channels)
		h.enqueue(c, TypeUnsubscribed, ChannelsPayload{Channels: h.reg.ChannelsOf(c.id)})

	case TypeRequest:
		var p RequestPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			h.enqueue(c, TypeError, ErrorPayload{Message: err.Error()})
			return
		}
		typ, payload, err := h.snapshot(p.Resource, p)
		if err != nil {
			h.enqueue(c, TypeError, ErrorPayload{Message: err.Error()})
			return
		}
		h.enqueue(c, typ, payload)

	case TypePing:
		h.enqueue(c, TypePong, struct{}{})
	}
}

func hasSnapshot(channel string) bool {
	switch channel {
	case ChannelFiles, ChannelTasks, ChannelMemories, ChannelSessions, ChannelLogs:
		return true
	}
	return false
}

// snapshot computes the current state of resource. It runs on the loop
// goroutine and must not call back into the hub.
func (h *Hub) snapshot(resource string, req RequestPayload) (string, any, error) {
	ctx := context.Background()
	switch resource {
	case ResourceFiles:
		return TypeFiles, FilesPayload{Files: h.files.ListFiles(ctx)}, nil
	case ResourceTasks:
		return TypeTasks, TasksPayload{Tasks: h.files.Tasks(ctx)}, nil
	case ResourceMemories:
		return TypeMemories, MemoriesPayload{Memories: h.files.Memories(ctx)}, nil
	case ResourceSessions:
		sessions := []models.Session{}
		if h.sessions != nil {
			sessions = h.sessions()
		}
		return TypeSessions, SessionsPayload{Sessions: sessions}, nil
	case ResourceLogs:
		entries := []logbuf.Entry{}
		if h.logs != nil {
			entries = h.logs()
		}
		return TypeLogs, LogsPayload{Entries: entries}, nil
	case ResourceStatus:
		return TypeStatus, h.status(), nil
	case ResourceSearch:
		limit := req.Limit
		if limit <= 0 {
			limit = defaultSearchLimit
		}
		results, err := h.files.Search(ctx, req.Query, limit)
		if err != nil {
			return "", nil, fmt.Errorf("search: %w", err)
		}
		if results == nil {
			results = []index.SearchResult{}
		}
		return TypeSearch, SearchPayload{Query: req.Query, Results: results}, nil
	}
	return "", nil, fmt.Errorf("%w: %s", apperr.ErrUnknownResource, resource)
}

// applyMutation acks the originating connection first, then publishes the
// change to the files channel and refreshed aggregates to tasks and memories.
func (h *Hub) applyMutation(ev docstore.Event) {
	doc := ev.Document
	origin := h.clients[ev.Origin]

	if ev.Kind == docstore.Deleted {
		if origin != nil {
			h.enqueue(origin, TypeDeleteComplete, DateRef{Date: doc.Key})
		}
		h.publishLocal(ChannelFiles, TypeFileDelete, DateRef{Date: doc.Key})
	} else {
		if origin != nil {
			h.enqueue(origin, TypeWriteComplete, WriteCompletePayload{Date: doc.Key, LastModified: doc.LastModified})
		}
		typ := TypeFileChange
		if ev.Kind == docstore.Added {
			typ = TypeFileAdd
		}
		h.publishLocal(ChannelFiles, typ, FilePayload{File: fileservice.View(doc)})
	}

	ctx := context.Background()
	if h.reg.Count(ChannelTasks) > 0 {
		h.publishLocal(ChannelTasks, TypeTasks, TasksPayload{Tasks: h.files.Tasks(ctx)})
	}
	if h.reg.Count(ChannelMemories) > 0 {
		h.publishLocal(ChannelMemories, TypeMemories, MemoriesPayload{Memories: h.files.Memories(ctx)})
	}
}

// sweep evicts connections that missed the previous challenge and
// challenges the rest.
func (h *Hub) sweep() {
	for _, c := range h.clients {
		if !c.alive.Load() {
			h.remove(c, "heartbeat timeout")
			continue
		}
		c.alive.Store(false)
		select {
		case c.ping <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) status() Status {
	st := Status{
		ConnectedClients: len(h.clients),
		Files:            h.files.Count(),
		UptimeSeconds:    int64(h.now().Sub(h.startedAt) / time.Second),
		StartedAt:        h.startedAt.UnixMilli(),
	}
	if h.stats != nil {
		st.Detector = h.stats()
	}
	if h.streams != nil {
		st.EventStreams = h.streams()
	}
	return st
}

// Serve runs one connection until its transport fails or the hub closes.
func (h *Hub) Serve(ctx context.Context, conn Transport) {
	c := newClient(uuid.NewString(), conn, h.queueSize)
	conn.OnPong(c.markAlive)

	h.writers.Add(1)
	if !h.register(c) {
		h.writers.Done()
		_ = conn.Close()
		return
	}
	go func() {
		defer h.writers.Done()
		c.writeLoop(h.writeCtx, h.sendTimeout, h.logger)
	}()
	defer h.unregister(c)

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			h.logger.Debug("hub: read ended", slog.String("client", c.id), slog.Any("error", err))
			return
		}
		h.handle(ctx, c, data)
	}
}

func (h *Hub) handle(ctx context.Context, c *client, data []byte) {
	msg, err := decodeInbound(data)
	if err != nil {
		h.replyError(c, err)
		return
	}

	switch msg.Type {
	case TypePing:
		c.markAlive()
		h.command(c, msg)
	case TypePong:
		c.markAlive()
	case TypeSubscribe, TypeUnsubscribe, TypeRequest:
		h.command(c, msg)
	case TypeWriteFile:
		h.writeFile(ctx, c, msg.Payload)
	case TypeDeleteFile:
		h.deleteFile(ctx, c, msg.Payload)
	default:
		h.replyError(c, fmt.Errorf("%w: %s", apperr.ErrUnknownType, msg.Type))
	}
}

// writeFile runs on the connection's reader goroutine. The store notifies
// the hub synchronously, so write_complete is queued before Put returns.
func (h *Hub) writeFile(ctx context.Context, c *client, raw []byte) {
	var p WriteFilePayload
	if err := decodePayload(raw, &p); err != nil {
		h.replyError(c, err)
		return
	}
	if err := p.Validate(); err != nil {
		h.replyError(c, fmt.Errorf("invalid write_file: %w", err))
		return
	}
	if _, err := h.files.WriteFile(docstore.WithOrigin(ctx, c.id), p.Date, p.Content); err != nil {
		h.replyError(c, fmt.Errorf("write_file: %w", err))
	}
}

func (h *Hub) deleteFile(ctx context.Context, c *client, raw []byte) {
	var p DateRef
	if err := decodePayload(raw, &p); err != nil {
		h.replyError(c, err)
		return
	}
	if err := p.Validate(); err != nil {
		h.replyError(c, fmt.Errorf("invalid delete_file: %w", err))
		return
	}
	err := h.files.DeleteFile(docstore.WithOrigin(ctx, c.id), p.Date)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		h.replyError(c, fmt.Errorf("delete_file: %s: %w", p.Date, err))
	case err != nil:
		h.replyError(c, fmt.Errorf("delete_file: %w", err))
	}
}

func (h *Hub) command(c *client, msg Inbound) {
	select {
	case h.commandCh <- command{c: c, msg: msg}:
	case <-h.stopped:
	}
}

func (h *Hub) replyError(c *client, err error) {
	data, encErr := encode(TypeError, ErrorPayload{Message: err.Error()}, h.now().UnixMilli())
	if encErr != nil {
		return
	}
	select {
	case h.directCh <- direct{c: c, data: data}:
	case <-h.stopped:
	}
}

func (h *Hub) register(c *client) bool {
	if h.closed.Load() {
		return false
	}
	select {
	case h.registerCh <- c:
		return true
	case <-h.stopped:
		return false
	}
}

func (h *Hub) unregister(c *client) {
	select {
	case h.unregisterCh <- c:
	case <-h.stopped:
	}
}

// Publish delivers payload as a typ message to every subscriber of channel.
func (h *Hub) Publish(channel, typ string, payload any) {
	if h.closed.Load() {
		return
	}
	data, err := encode(typ, payload, h.now().UnixMilli())
	if err != nil {
		h.logger.Error("hub: encode failed", slog.String("type", typ), slog.Any("error", err))
		return
	}
	select {
	case h.publishCh <- publication{channel: channel, data: data}:
	case <-h.stopped:
	}
}

// TryPublish is Publish without blocking. It reports whether the message
// was queued.
func (h *Hub) TryPublish(channel, typ string, payload any) bool {
	if h.closed.Load() {
		return false
	}
	data, err := encode(typ, payload, h.now().UnixMilli())
	if err != nil {
		return false
	}
	select {
	case h.publishCh <- publication{channel: channel, data: data}:
		return true
	default:
		return false
	}
}

// DocumentChanged implements docstore.Listener.
func (h *Hub) DocumentChanged(_ context.Context, ev docstore.Event) {
	if h.closed.Load() {
		return
	}
	select {
	case h.mutationCh <- ev:
	case <-h.stopped:
	}
}

// Sweep runs one heartbeat cycle and returns once it has been applied.
func (h *Hub) Sweep() {
	if h.closed.Load() {
		return
	}
	done := make(chan struct{})
	select {
	case h.sweepCh <- done:
	case <-h.stopped:
		return
	}
	select {
	case <-done:
	case <-h.stopped:
	}
}

// Run sweeps connections every heartbeat interval until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// Status returns the current server status.
func (h *Hub) Status() Status {
	if h.closed.Load() {
		return Status{StartedAt: h.startedAt.UnixMilli()}
	}
	resp := make(chan Status, 1)
	select {
	case h.statusCh <- resp:
	case <-h.stopped:
		return Status{StartedAt: h.startedAt.UnixMilli()}
	}
	return <-resp
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	if h.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case h.countReqCh <- resp:
	case <-h.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-h.stopped:
		return 0
	}
}

// Shutdown stops the loop, lets every connection flush its queue and send
// a close frame, and waits for the writers until ctx is done.
func (h *Hub) Shutdown(ctx context.Context) error {
	if h.closed.CompareAndSwap(false, true) {
		close(h.stopCh)
	}
	<-h.stopped

	done := make(chan struct{})
	go func() {
		h.writers.Wait()
		close(done)
	}()
	defer h.cancelWrites()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the hub down without a deadline.
func (h *Hub) Close() {
	_ = h.Shutdown(context.Background())
}
