package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"tradeloop/internal/app"
	"tradeloop/internal/config"
	"tradeloop/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config")
	flag.Parse()

	// .env is optional; real deployments inject TRADELOOP_* directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger.SetLevel(cfg.App.LogLevel)
	if cfg.App.LogPath != "" {
		f, err := openLogFile(cfg.App.LogPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logger.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	runtime, err := app.Build(cfg)
	if err != nil {
		logger.Errorf("startup failed: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runtime.Run(ctx); err != nil {
		logger.Errorf("runtime exited: %v", err)
		os.Exit(1)
	}
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
