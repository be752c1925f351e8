// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notesync/internal/api"
	"github.com/starford/notesync/internal/index"
	"github.com/starford/notesync/internal/metrics"
	"github.com/starford/notesync/internal/notes"
	"github.com/starford/notesync/internal/noteservice"
	"github.com/starford/notesync/internal/reconcile"
	"github.com/starford/notesync/internal/remote"
	"github.com/starford/notesync/internal/sse"
	"github.com/starford/notesync/internal/storage"
)

const sseKeepAlive = 15 * time.Second

// runtime is the wired set of components shared by every command.
type runtime struct {
	cfg     *Config
	logger  *slog.Logger
	store   *storage.FS
	idx     *notes.Index
	db      *index.DB
	engine  *reconcile.Engine
	svc     *noteservice.Service
	metrics *metrics.SyncMetrics

	mu        sync.RWMutex
	listeners []notes.ChangeFunc
}

type bootstrapOptions struct {
	mirror  bool
	metrics *prometheus.Registry
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// bootstrap loads the local store into the note index and wires the sync
// engine and service around it. The search mirror is opened only when
// requested.
func (app *application) bootstrap(bo bootstrapOptions) (*runtime, error) {
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("store_path", cfg.Store.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("remote_api", cfg.Remote.APIURL),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Store.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger, store: store}

	idx, err := notes.Load(store, notes.OnChange(rt.dispatch))
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	rt.idx = idx
	logger.Info("Notes loaded", slog.Int("count", idx.Len()))

	svc := app.remote
	if svc == nil {
		svc = remote.NewClient(cfg.Remote.ClientConfig())
	}

	if bo.metrics != nil {
		m, err := metrics.NewSyncMetrics(bo.metrics)
		if err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
		rt.metrics = m
		m.SetNotes(idx.Len())
	}

	rt.engine = reconcile.New(idx, svc,
		reconcile.WithLogger(logger),
		reconcile.WithMetrics(rt.metrics))

	if bo.mirror {
		db, err := index.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("init index: %w", err)
		}
		rt.db = db
	}

	rt.svc = noteservice.NewService(idx, rt.db, rt.engine, logger)
	if rt.db != nil {
		rt.listen(func(_, key string) { rt.svc.Mirror(key) })
		if err := rt.svc.RebuildMirror(); err != nil {
			logger.Warn("initial mirror rebuild failed", slog.String("error", err.Error()))
		}
	}
	return rt, nil
}

// listen registers fn for note index changes.
func (rt *runtime) listen(fn notes.ChangeFunc) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.listeners = append(rt.listeners, fn)
}

func (rt *runtime) dispatch(kind, key string) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	for _, fn := range rt.listeners {
		fn(kind, key)
	}
}

func (rt *runtime) close() {
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.logger.Warn("close index", slog.String("error", err.Error()))
		}
	}
}

// Run starts the long-running server: HTTP API with SSE, the store watcher
// and the sync scheduler.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt, err := app.bootstrap(bootstrapOptions{mirror: true, metrics: registry})
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger

	broker := sse.NewBroker(sseKeepAlive)
	defer broker.Close()
	rt.listen(broker.PublishNoteEvent)

	scheduler := reconcile.NewScheduler(rt.engine, cfg.Sync.Interval, logger)
	var lastSync lastResult
	scheduler.OnResult(func(r reconcile.Result) {
		lastSync.set(r)
		broker.PublishSyncResult(r)
	})
	if cfg.Sync.OnStart {
		scheduler.Trigger()
	}

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health and metrics endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"status": "ok", "notes": rt.idx.Len()}
		if res, ok := lastSync.get(); ok {
			body["last_sync"] = res.At.UTC().Format(time.RFC3339)
			if res.Err != nil {
				body["last_sync_error"] = res.Err.Error()
			}
		}
		writeHealth(w, http.StatusOK, body)
	})
	r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := index.Watch(gCtx, rt.idx, rt.store.Root(), logger); err != nil {
			// Sync and the API keep working without external-edit pickup.
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		return scheduler.Run(gCtx)
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Stop the watcher and scheduler when shutdown came from a signal.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

type lastResult struct {
	mu  sync.Mutex
	res reconcile.Result
	ok  bool
}

func (l *lastResult) set(r reconcile.Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.res, l.ok = r, true
}

func (l *lastResult) get() (reconcile.Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.res, l.ok
}

func writeHealth(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
