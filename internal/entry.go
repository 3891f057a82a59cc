// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/starford/recall/internal/api"
	"github.com/starford/recall/internal/index"
	"github.com/starford/recall/internal/mcpserver"
	"github.com/starford/recall/internal/reviewservice"
	"github.com/starford/recall/internal/sse"
	"github.com/starford/recall/internal/storage"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	store  *storage.FS
	db     *index.DB
	svc    *reviewservice.Service
}

func (rt *runtime) Close() {
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close index failed", slog.String("error", err.Error()))
	}
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

// open initializes logging, storage, the index and the review service.
func open(app *application, svcOpts ...reviewservice.Option) (*runtime, error) {
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()),
		slog.Any("tags_to_review", cfg.Review.TagsToReview),
		slog.String("flashcards_tag", cfg.Review.FlashcardsTag))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	svc, err := reviewservice.New(store, db, cfg.Review.ServiceOptions(), logger, svcOpts...)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init review service: %w", err)
	}

	return &runtime{cfg: cfg, logger: logger, store: store, db: db, svc: svc}, nil
}

// Sync indexes the vault once and reports the resulting queue sizes.
func Sync(ctx context.Context, opts ...Option) (*reviewservice.SyncReport, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	rt, err := open(app)
	if err != nil {
		return nil, err
	}
	defer rt.Close()
	return rt.svc.Sync(ctx)
}

// Run starts the HTTP server, the vault watcher and the periodic resync.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	// SSE broker.
	broker := sse.NewBroker(app.config.App.EventThrottle)
	defer broker.Close()

	rt, err := open(app, reviewservice.WithNotifier(broker))
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, logger := rt.cfg, rt.logger

	// Run initial sync.
	if _, err := rt.svc.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.App.HTTP.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if rt.svc.Queue(req.Context()).BuiltAt.IsZero() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"syncing"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	startBackground(gCtx, g, rt, func(kind index.ChangeKind, path string) {
		broker.VaultChanged(kind, path)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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
		// Stops the watcher, resync loop and cron.
		cancel()

		logger.Info("Shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
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

// ServeMCP serves the review tools over stdio until the client disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	rt, err := open(app)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.svc.Sync(ctx); err != nil {
		rt.logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)
	startBackground(gCtx, g, rt, nil)

	srv := mcpserver.New(rt.svc, app.version)
	serveErr := srv.ServeStdio()
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	return serveErr
}

// startBackground runs the vault watcher, the coalescing resync loop and,
// when configured, the cron-driven resync. onChange is called for every
// file the watcher indexes or removes.
func startBackground(ctx context.Context, g *errgroup.Group, rt *runtime, onChange index.EventCallback) {
	logger := rt.logger
	resync := make(chan struct{}, 1)
	request := func() {
		select {
		case resync <- struct{}{}:
		default:
		}
	}

	g.Go(func() error {
		err := index.Watch(ctx, rt.db, rt.store, rt.store.Root(), logger, func(kind index.ChangeKind, path string) {
			if onChange != nil {
				onChange(kind, path)
			}
			request()
		})
		if err != nil {
			logger.Error("watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-resync:
				if _, err := rt.svc.Sync(ctx); err != nil && ctx.Err() == nil {
					logger.Warn("resync failed", slog.String("error", err.Error()))
				}
			}
		}
	})

	spec := rt.cfg.Review.SyncSchedule
	if spec == "" {
		return
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, request); err != nil {
		logger.Error("invalid sync schedule", slog.String("spec", spec), slog.String("error", err.Error()))
		return
	}
	g.Go(func() error {
		c.Start()
		logger.Info("periodic resync scheduled", slog.String("spec", spec))
		<-ctx.Done()
		<-c.Stop().Done()
		return nil
	})
}
