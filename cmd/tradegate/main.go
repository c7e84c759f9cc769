// Command tradegate is the control-plane gateway for the autonomous
// trading platform. It loads configuration, wires dependencies, sets up
// signal handling, and serves operator sessions until shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/openclaw/tradegate/internal/app"
	"github.com/openclaw/tradegate/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to JSONC configuration file (defaults apply when empty)")
	flag.Parse()

	// .env values feed the ${VAR} references inside the config file.
	_ = godotenv.Load()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config",
				slog.String("path", *configPath),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("tradegate starting",
		slog.String("host", cfg.Gateway.Host),
		slog.Int("port", cfg.Gateway.Port),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if err == context.Canceled {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("tradegate stopped")
}
