package hub

import (
	"log/slog"
	"time"

	"github.com/Traejpg/mission-control-sub000/internal/logbuf"
	"github.com/Traejpg/mission-control-sub000/internal/models"
)

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithHeartbeatInterval sets the time between liveness sweeps.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// WithSendTimeout bounds each write to a connection.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.sendTimeout = d
		}
	}
}

// WithQueueSize sets the per-connection outbound queue capacity.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithMaxMessageBytes bounds inbound WebSocket frames.
func WithMaxMessageBytes(n int64) Option {
	return func(h *Hub) { h.maxMessageBytes = n }
}

// WithSessions supplies the sessions snapshot.
func WithSessions(f func() []models.Session) Option {
	return func(h *Hub) { h.sessions = f }
}

// WithLogs supplies the logs snapshot.
func WithLogs(f func() []logbuf.Entry) Option {
	return func(h *Hub) { h.logs = f }
}

// WithDetectorStats supplies the detector section of status.
func WithDetectorStats(f func() any) Option {
	return func(h *Hub) { h.stats = f }
}

// WithEventStreams supplies the SSE subscriber count of status. f must not
// call back into the hub.
func WithEventStreams(f func() int) Option {
	return func(h *Hub) { h.streams = f }
}

// WithClock overrides the clock used for timestamps and uptime.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}
