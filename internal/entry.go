// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/starford/mindforge/internal/diag"
	"github.com/starford/mindforge/internal/mcpserver"
	"github.com/starford/mindforge/internal/memory"
	"github.com/starford/mindforge/internal/search"
	"github.com/starford/mindforge/internal/storage"
)

// components are the wired pieces shared by every command.
type components struct {
	root   string
	store  *storage.FS
	diag   *diag.Log
	engine *search.Engine
	svc    *memory.Service
}

func newApplication(opts []Option) (*application, error) {
	app := &application{in: os.Stdin, out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := app.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return app, nil
}

// setupLogger installs the JSON logger on stderr. Stdout carries the
// protocol and nothing else.
func setupLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

func (a *application) open(logger *slog.Logger) (*components, error) {
	cfg := a.config

	root, err := storage.Locate(cfg.Store.ProjectDir, a.workDir, cfg.Store.DirName, cfg.Store.MaxWalkUp)
	if err != nil {
		return nil, fmt.Errorf("locate store: %w", err)
	}
	store, err := storage.NewFS(root,
		storage.WithLockTTL(cfg.Store.LockTTL),
		storage.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	dlog := diag.Open(root, cfg.Diagnostics.MaxBytes)
	engine := search.NewEngine(store, cfg.Search.Options(), logger)
	svc := memory.NewService(store, engine, dlog, logger,
		memory.WithDefaultLimit(cfg.Search.DefaultLimit))

	return &components{root: root, store: store, diag: dlog, engine: engine, svc: svc}, nil
}

// Run serves the memory tools on the configured streams until input ends,
// ctx is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := setupLogger(cfg)

	c, err := app.open(logger)
	if err != nil {
		return err
	}

	logger.Info("Configuration loaded",
		slog.String("store_root", c.root),
		slog.String("log_level", cfg.App.LogLevel.String()),
		slog.Bool("watch", cfg.Search.Watch))

	srv := mcpserver.New(c.svc, c.diag, logger,
		mcpserver.WithLimits(mcpserver.Limits{
			MaxPayloadBytes: cfg.Limits.MaxPayloadBytes,
			MaxFieldBytes:   cfg.Limits.MaxFieldBytes,
		}),
		mcpserver.WithMaxMessage(cfg.Limits.MaxMessageBytes))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		logger.Info("Serving on stdio", slog.String("server", mcpserver.ServerName))
		return srv.Serve(gCtx, app.in, app.out)
	})

	if cfg.Search.Watch {
		g.Go(func() error {
			if err := c.engine.Watch(gCtx, nil); err != nil {
				logger.Warn("watcher disabled", slog.String("error", err.Error()))
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
			cancel()
		case <-gCtx.Done():
		}

		if closer, ok := app.in.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped")
	return nil
}

// Search runs one hybrid query against the located store.
func Search(_ context.Context, query string, limit int, opts ...Option) ([]search.Result, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	c, err := app.open(setupLogger(app.config))
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = app.config.Search.DefaultLimit
	}
	return c.engine.Hybrid(query, limit)
}

// IndexStats describes a freshly built index.
type IndexStats struct {
	Documents int    `json:"documents"`
	Root      string `json:"root"`
}

// Index builds the search index of the located store and reports its size.
func Index(_ context.Context, opts ...Option) (IndexStats, error) {
	app, err := newApplication(opts)
	if err != nil {
		return IndexStats{}, err
	}
	c, err := app.open(setupLogger(app.config))
	if err != nil {
		return IndexStats{}, err
	}
	idx, err := c.engine.Index()
	if err != nil {
		return IndexStats{}, fmt.Errorf("build index: %w", err)
	}
	return IndexStats{Documents: idx.Len(), Root: c.root}, nil
}
