package hub

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Transport is a message-oriented, bidirectional connection to one client.
// Read is called from a single goroutine, and so are Write, Ping and
// WriteClose. Close may be called concurrently with any of them.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Ping(ctx context.Context) error
	WriteClose(ctx context.Context) error
	Close() error
	// OnPong registers the callback run for every transport-level pong.
	OnPong(func())
}

type client struct {
	id   string
	conn Transport

	// send is written and closed only by the hub loop.
	send chan []byte
	ping chan struct{}

	alive   atomic.Bool
	evicted atomic.Bool
}

func newClient(id string, conn Transport, queue int) *client {
	c := &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, queue),
		ping: make(chan struct{}, 1),
	}
	c.alive.Store(true)
	return c
}

func (c *client) markAlive() { c.alive.Store(true) }

// writeLoop drains the outbound queue until it is closed. A closed queue
// on a client that was not evicted means a graceful close: everything
// queued is flushed and a close frame is sent.
func (c *client) writeLoop(ctx context.Context, timeout time.Duration, logger *slog.Logger) {
	defer c.conn.Close()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				if !c.evicted.Load() {
					wctx, cancel := context.WithTimeout(ctx, timeout)
					_ = c.conn.WriteClose(wctx)
					cancel()
				}
				return
			}
			if c.evicted.Load() {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, timeout)
			err := c.conn.Write(wctx, data)
			cancel()
			if err != nil {
				logger.Debug("hub: write failed", slog.String("client", c.id), slog.Any("error", err))
				return
			}

		case <-c.ping:
			if c.evicted.Load() {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, timeout)
			err := c.conn.Ping(wctx)
			cancel()
			if err != nil {
				logger.Debug("hub: ping failed", slog.String("client", c.id), slog.Any("error", err))
				return
			}
		}
	}
}
