package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"report-scheduler/internal/app"
	"report-scheduler/internal/config"
	"report-scheduler/internal/logging"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Fatal("init", zap.Error(err))
	}
	defer a.Close()

	if err := a.Migrate(ctx); err != nil {
		logger.Fatal("migrations", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           a.Server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("admin listening", zap.String("addr", cfg.AdminAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server stopped", zap.Error(err))
			cancel()
		}
	}()

	logger.Info("scheduler started",
		zap.String("store", cfg.StoreDriver),
		zap.String("claims", cfg.ClaimBackend),
		zap.Int("jobs", len(a.Scheduler.Jobs())),
	)
	if err := a.Scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler stopped", zap.Error(err))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
	logger.Info("worker stopped")
}
