package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hl-spread-bot/internal/app"
	"hl-spread-bot/internal/config"
	"hl-spread-bot/internal/logging"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	live := flag.Bool("live", false, "submit real orders; without this flag orders are simulated")
	testConn := flag.Bool("test", false, "probe connectivity and exit")
	clearError := flag.Bool("clear-error", false, "clear a persisted error state and exit")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if !*live {
		cfg.Strategy.DryRun = true
	}
	log := logging.New(cfg.Log)
	log.Info("config loaded", zap.String("path", *configPath), zap.Bool("dry_run", cfg.Strategy.DryRun))

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize app", zap.Error(err))
		os.Exit(1)
	}

	if *clearError {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.ResetError(ctx); err != nil {
			log.Error("failed to clear error state", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	if *testConn {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.TestConnection(ctx); err != nil {
			log.Error("connectivity test failed", zap.Error(err))
			os.Exit(1)
		}
		log.Info("connectivity test passed")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && err != context.Canceled {
		log.Error("app terminated", zap.Error(err))
		os.Exit(1)
	}
}
