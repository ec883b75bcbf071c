package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/yieldscope/internal/app"
	"github.com/rovshanmuradov/yieldscope/internal/config"
	"github.com/rovshanmuradov/yieldscope/internal/logger"
	"github.com/rovshanmuradov/yieldscope/internal/ui"
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

	// The dashboard owns the terminal; logs go to the file and the log pane.
	logBuffer := logger.NewLogBuffer(logger.DefaultBufferSize)
	appLogger, err := logger.NewWithBuffer(&cfg.Log, logBuffer)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() {
		_ = appLogger.Sync()
	}()

	a, err := app.New(rootCtx, cfg, appLogger.Logger)
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}
	defer a.Close()

	if err := a.Scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer a.Scheduler.Stop()

	lg := appLogger.WithComponent("dashboard")
	lg.Info("Starting yieldscope dashboard")

	dashboard := ui.NewDashboard(a.Scheduler, logBuffer, ui.Options{
		RefreshTimeout: cfg.RequestTimeout * 3,
	})
	program := tea.NewProgram(dashboard, tea.WithAltScreen(), tea.WithContext(rootCtx))
	if _, err := program.Run(); err != nil && rootCtx.Err() == nil {
		lg.Error("Dashboard failed", zap.Error(err))
	}
}
