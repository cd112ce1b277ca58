// Package main is the entry point for the SiteKit sync server.
// It loads configuration, connects to services, sets up routing, and serves
// editor sessions over websockets with graceful shutdown support.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"sitekit/internal/cache"
	"sitekit/internal/config"
	"sitekit/internal/database"
	"sitekit/internal/hub"
	"sitekit/internal/middleware"
	"sitekit/internal/models"
	"sitekit/internal/router"
	"sitekit/internal/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"store", cfg.Store,
		"valkey", cfg.ValkeyEnabled,
	)

	for _, t := range cfg.ComponentTypes {
		models.RegisterComponentType(models.ComponentType(t))
	}

	var (
		syncLog *store.SyncLogStore
		repo    store.Repository
		opts = []hub.Option{hub.WithCommandTimeout(cfg.CommandTimeout)}
	)

	switch cfg.Store {
	case config.StoreMemory:
		slog.Warn("using in-memory store, components are lost on restart")
		repo = store.NewMemoryStore()
	default:
		db, err := database.Connect(cfg.DSN())
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := database.Migrate(db); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		// No-op if components already exist.
		if cfg.Seed {
			if err := database.Seed(db); err != nil {
				slog.Error("failed to seed database", "error", err)
				os.Exit(1)
			}
		}

		repo = store.NewComponentStore(db)
		syncLog = store.NewSyncLogStore(db)
		opts = append(opts, hub.WithSyncLog(syncLog))
	}

	// Valkey caches lists and relays broadcasts between server instances.
	if cfg.ValkeyEnabled {
		valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
		if err != nil {
			slog.Error("failed to connect to valkey", "error", err)
			os.Exit(1)
		}
		defer valkeyClient.Close()

		// Lists cached by a previous run may predate migrations or the seed.
		componentCache := cache.NewComponentCache(valkeyClient, cache.DefaultComponentTTL)
		componentCache.InvalidateAll(context.Background())

		relay := hub.NewRelay(valkeyClient, cfg.SyncChannel)
		opts = append(opts,
			hub.WithComponentCache(componentCache),
			hub.WithRelay(relay),
		)
		slog.Info("valkey relay enabled", "channel", cfg.SyncChannel, "origin", relay.Origin())
	}

	h := hub.New(repo, opts...)

	limiter := middleware.NewRateLimiter(cfg.HandshakeLimit, time.Minute)
	defer limiter.Stop()

	// A nil *SyncLogStore must not become a non-nil interface.
	var logRoute router.SyncLog
	if syncLog != nil {
		logRoute = syncLog
	}
	r := router.New(h, h, logRoute, limiter)

	// WriteTimeout does not apply to hijacked websocket connections.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return h.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		// Give active requests up to 30 seconds to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		h.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}
