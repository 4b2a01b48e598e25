// Command tokova-server puts a token bucket in front of an HTTP endpoint.
//
// Every request to / consumes limiter.cost tokens; when the bucket cannot
// cover it the server answers 429. /status reports the bucket, /clear empties
// it and /metrics exposes Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vnykmshr/tokova/internal/config"
	"github.com/vnykmshr/tokova/internal/logger"
	"github.com/vnykmshr/tokova/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("TOKOVA_CONFIG"), "path to YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "tokova-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	srv, err := server.New(cfg, log)
	if err != nil {
		return err
	}

	log.Info("starting tokova server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("limiter", cfg.Limiter.Name),
		zap.Int("limit", cfg.Limiter.Limit),
		zap.Duration("interval", cfg.Limiter.Interval),
		zap.Int("tokens_per_interval", cfg.Limiter.TokensPerInterval),
		zap.String("persistence", cfg.Persistence.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		return err
	}
	log.Info("server stopped")
	return nil
}
