// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/Traejpg/mission-control-sub000/internal/api"
	"github.com/Traejpg/mission-control-sub000/internal/detector"
	"github.com/Traejpg/mission-control-sub000/internal/docstore"
	"github.com/Traejpg/mission-control-sub000/internal/fileservice"
	"github.com/Traejpg/mission-control-sub000/internal/hub"
	"github.com/Traejpg/mission-control-sub000/internal/index"
	"github.com/Traejpg/mission-control-sub000/internal/logbuf"
	"github.com/Traejpg/mission-control-sub000/internal/mcpserver"
	"github.com/Traejpg/mission-control-sub000/internal/models"
	"github.com/Traejpg/mission-control-sub000/internal/sse"
	"github.com/Traejpg/mission-control-sub000/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{
		version:   "dev",
		logOutput: os.Stdout,
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger; the ring buffer backs the logs channel.
	logs := logbuf.NewBuffer(cfg.App.LogBuffer)
	logger := slog.New(logs.Handler(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	})))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("index_dsn", cfg.Index.DSN),
		slog.Duration("heartbeat_interval", cfg.Sync.HeartbeatInterval),
		slog.Duration("fast_interval", cfg.Poll.FastInterval),
		slog.Duration("slow_interval", cfg.Poll.SlowInterval),
		slog.Bool("gateway", cfg.Gateway.Enabled()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	// Initialize storage.
	vault, err := storage.NewFS(cfg.Vault.Path, cfg.Vault.Pattern)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// Initialize SQLite index.
	db, err := index.Open(cfg.Index.DSN)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	store := docstore.New()
	svc := fileservice.NewService(store, db)

	var (
		sessions *detector.SessionSource
		det      *detector.Detector
	)

	// Read-only change feed at /api/events.
	feed := sse.NewFeed(2 * time.Second)
	defer feed.Close()

	h := hub.New(svc,
		hub.WithLogger(logger),
		hub.WithHeartbeatInterval(cfg.Sync.HeartbeatInterval),
		hub.WithSendTimeout(cfg.Sync.SendTimeout),
		hub.WithQueueSize(cfg.Sync.SendQueue),
		hub.WithMaxMessageBytes(cfg.Sync.MaxMessageBytes),
		hub.WithLogs(logs.Entries),
		hub.WithSessions(func() []models.Session {
			if sessions == nil {
				return []models.Session{}
			}
			return sessions.Sessions()
		}),
		hub.WithDetectorStats(func() any {
			if det == nil {
				return nil
			}
			return det.Stats()
		}),
		hub.WithEventStreams(feed.Subscribers),
	)
	defer h.Close()

	// The index is updated before the hub fans the change out, so a search
	// issued after a file_change already sees the new content.
	listeners := docstore.Listeners{index.NewUpdater(db, logger)}
	if cfg.Vault.WriteThrough {
		listeners = append(listeners, storage.NewMirror(vault, logger))
	}
	listeners = append(listeners, h, feed)
	store.SetListener(listeners)

	logs.SetSink(func(e logbuf.Entry) {
		h.TryPublish(hub.ChannelLogs, hub.TypeLogs, hub.LogsPayload{Entries: []logbuf.Entry{e}})
	})
	defer logs.SetSink(nil)

	filesLoop := detector.NewLoop(detector.NewFileSource(vault, store, db, logger), cfg.Poll.SlowInterval, logger)
	var sessionsLoop *detector.Loop
	if cfg.Gateway.Enabled() {
		sessions = detector.NewSessionSource(cfg.Gateway.URL, cfg.Gateway.Timeout, h, logger)
		sessionsLoop = detector.NewLoop(sessions, cfg.Poll.FastInterval, logger)
	}
	det = detector.New(filesLoop, sessionsLoop)

	// Seed the store from the vault before accepting connections.
	if _, err := filesLoop.Poll(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	logger.Info("Initial sync complete", slog.Int("files", store.Len()))

	mcpSrv := mcpserver.New(svc, app.version)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// WebSocket sync endpoint.
	r.Get("/ws", h.ServeHTTP)

	// Mount API routes under /api.
	apiRouter := api.NewRouter(svc, h.Status)
	apiRouter.Get("/events", feed.ServeHTTP)
	r.Mount("/api", apiRouter)

	// MCP streamable HTTP endpoint.
	r.Handle("/mcp", mcpSrv.Handler())

	ln, err := net.Listen("tcp", cfg.App.HTTP.Address())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if n := cfg.App.HTTP.MaxConnections; n > 0 {
		ln = netutil.LimitListener(ln, n)
	}

	httpServer := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	loopCtx, stopLoops := context.WithCancel(ctx)
	defer stopLoops()

	g, gCtx := errgroup.WithContext(loopCtx)

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Heartbeat sweep.
	g.Go(func() error {
		return h.Run(gCtx)
	})

	// Change detector loops.
	g.Go(func() error {
		return det.Run(gCtx)
	})

	// Filesystem watcher accelerates the files loop; polling still covers misses.
	if cfg.Vault.Watch {
		g.Go(func() error {
			if err := detector.Watch(gCtx, vault.Root(), vault, filesLoop, detector.DefaultDebounce, logger); err != nil {
				logger.Warn("file watcher unavailable, polling only", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		stopLoops()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		logs.SetSink(nil)
		feed.Close()
		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Error("hub shutdown error", slog.String("error", err.Error()))
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
