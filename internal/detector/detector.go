// Package detector polls external state, fingerprints each snapshot and
// applies it only when the fingerprint changed.
//
// Polling is the fallback path for sources that cannot push. The vault also
// pushes through fsnotify (see Watch), which only triggers an early poll;
// the gateway has no push channel, so its loop is the sole source of
// session updates.
package detector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Snapshot is one observation of an external source. Apply is run only
// when Fingerprint differs from the last applied one, and must be safe to
// run again for the same snapshot after it returned an error.
type Snapshot struct {
	Fingerprint string
	Apply       func(ctx context.Context) error
}

// Source observes one kind of external state.
type Source interface {
	Name() string
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Stats counts loop activity; it is embedded in status snapshots.
type Stats struct {
	Name       string `json:"name"`
	Interval   string `json:"interval"`
	Polls      uint64 `json:"polls"`
	Changes    uint64 `json:"changes"`
	Failures   uint64 `json:"failures"`
	LastPoll   int64  `json:"lastPoll,omitempty"`
	LastChange int64  `json:"lastChange,omitempty"`
	LastError  string `json:"lastError,omitempty"`
}

// Loop polls a Source on an interval and on demand.
type Loop struct {
	src      Source
	interval time.Duration
	logger   *slog.Logger
	trigger  chan struct{}

	// pollMu serializes polls. statsMu is held only briefly so Stats never
	// waits on a poll that is applying changes.
	pollMu      sync.Mutex
	fingerprint string

	statsMu sync.Mutex
	stats   Stats
}

// NewLoop creates a loop polling src every interval.
func NewLoop(src Source, interval time.Duration, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		src:      src,
		interval: interval,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		stats:    Stats{Name: src.Name(), Interval: interval.String()},
	}
}

// Poll takes one snapshot and applies it if it changed. A failed snapshot
// or a failed apply keeps the last good fingerprint, so the next poll
// retries. It reports whether the snapshot was applied.
func (l *Loop) Poll(ctx context.Context) (bool, error) {
	l.pollMu.Lock()
	defer l.pollMu.Unlock()

	l.record(func(s *Stats) {
		s.Polls++
		s.LastPoll = time.Now().UnixMilli()
	})

	snap, err := l.src.Snapshot(ctx)
	if err != nil {
		l.fail("snapshot", err)
		return false, err
	}
	if snap.Fingerprint == l.fingerprint {
		l.record(func(s *Stats) { s.LastError = "" })
		return false, nil
	}

	if snap.Apply != nil {
		if err := snap.Apply(ctx); err != nil {
			l.fail("apply", err)
			return false, err
		}
	}
	l.fingerprint = snap.Fingerprint
	l.record(func(s *Stats) {
		s.Changes++
		s.LastChange = time.Now().UnixMilli()
		s.LastError = ""
	})
	l.logger.Debug("detector: change applied", slog.String("source", l.src.Name()))
	return true, nil
}

func (l *Loop) fail(stage string, err error) {
	l.record(func(s *Stats) {
		s.Failures++
		s.LastError = err.Error()
	})
	l.logger.Warn("detector: "+stage+" failed",
		slog.String("source", l.src.Name()),
		slog.String("error", err.Error()))
}

func (l *Loop) record(f func(*Stats)) {
	l.statsMu.Lock()
	f(&l.stats)
	l.statsMu.Unlock()
}

// Trigger requests an immediate poll without blocking.
func (l *Loop) Trigger() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

// Stats returns a copy of the loop counters.
func (l *Loop) Stats() Stats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

// Run polls until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("detector: loop started",
		slog.String("source", l.src.Name()),
		slog.Duration("interval", l.interval))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-l.trigger:
		}
		_, _ = l.Poll(ctx)
	}
}

// Detector runs a set of loops together.
type Detector struct {
	loops []*Loop
}

// New groups loops; nil loops are skipped.
func New(loops ...*Loop) *Detector {
	d := &Detector{}
	for _, l := range loops {
		if l != nil {
			d.loops = append(d.loops, l)
		}
	}
	return d
}

// Run runs every loop until ctx is done.
func (d *Detector) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range d.loops {
		g.Go(func() error { return l.Run(gctx) })
	}
	return g.Wait()
}

// Stats returns the counters of every loop.
func (d *Detector) Stats() []Stats {
	out := make([]Stats, 0, len(d.loops))
	for _, l := range d.loops {
		out = append(out, l.Stats())
	}
	return out
}
