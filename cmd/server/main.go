package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/refinery/internal/api"
	"github.com/Harshitk-cp/refinery/internal/buildconfig"
	"github.com/Harshitk-cp/refinery/internal/config"
	"github.com/Harshitk-cp/refinery/internal/notify"
	"github.com/Harshitk-cp/refinery/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()

	if err := config.Load(); err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if l, err := config.NewLogger(); err != nil {
		logger.Warn("invalid log level, keeping info", zap.Error(err))
	} else {
		logger = l
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting refinery", zap.String("version", buildconfig.Version()), zap.String("commit", buildconfig.Commit()))

	ctx := context.Background()

	var err error
	var pool *pgxpool.Pool
	if dbURL := config.DatabaseURL(); dbURL != "" {
		pool, err = pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("failed to ping database", zap.Error(err))
		}
		if err := store.Migrate(ctx, pool); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
		logger.Info("connected to database")
	}

	var nc *nats.Conn
	if natsURL := config.NATSURL(); natsURL != "" {
		nc, err = notify.Connect(natsURL)
		if err != nil {
			logger.Fatal("failed to connect to nats", zap.Error(err))
		}
		defer nc.Close()
		logger.Info("connected to nats", zap.String("url", natsURL))
	}

	app, err := api.NewApp(pool, nc, logger)
	if err != nil {
		logger.Fatal("failed to build app", zap.Error(err))
	}

	warmCtx, cancelWarm := context.WithTimeout(ctx, 30*time.Second)
	if n, err := app.AnchorSync.Warm(warmCtx); err != nil {
		logger.Warn("anchor warm-up failed", zap.Error(err))
	} else {
		logger.Info("anchor set warmed", zap.Int("anchors", n))
	}
	cancelWarm()

	// Start background services
	app.Expirer.Start()
	app.AnchorSync.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Stop background services; AnchorSync flushes what is still buffered.
	app.Expirer.Stop()
	app.AnchorSync.Stop()

	logger.Info("server stopped")
}
