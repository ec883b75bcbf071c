// ====================================
// File: cmd/server/main.go
// ====================================
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/app"
	"github.com/rovshanmuradov/yieldscope/internal/config"
	"github.com/rovshanmuradov/yieldscope/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (yaml or json)")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.New(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() {
		_ = appLogger.Sync()
	}()
	lg := appLogger.WithComponent("server")
	lg.Info("Starting yieldscope", zap.String("addr", cfg.HTTPAddr))

	a, err := app.New(rootCtx, cfg, appLogger.Logger)
	if err != nil {
		lg.Fatal("Failed to build application", zap.Error(err))
	}

	shutdown := app.NewShutdownHandler(appLogger.Logger, app.DefaultShutdownTimeout)
	shutdown.AddFunc("app", func() error {
		a.Close()
		return nil
	})

	if err := a.Scheduler.Start(); err != nil {
		lg.Fatal("Failed to start scheduler", zap.Error(err))
	}
	shutdown.AddFunc("scheduler", func() error {
		a.Scheduler.Stop()
		return nil
	})

	go func() {
		done := appLogger.TrackPerformance("initial_refresh")
		defer done()
		if _, err := a.Scheduler.RunNow(rootCtx); err != nil {
			lg.Warn("Initial refresh failed", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      a.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	shutdown.AddFunc("http", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})

	serveErr := make(chan error, 1)
	go func() {
		lg.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		lg.Info("Shutdown signal received")
	case err := <-serveErr:
		lg.Error("HTTP server failed", zap.Error(err))
	}

	if err := shutdown.Shutdown(context.Background()); err != nil {
		lg.Error("Shutdown completed with errors", zap.Error(err))
	}
}
