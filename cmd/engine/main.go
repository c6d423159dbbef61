package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Youmanvi/bookingengine/internal/infrastructure/config"
	"github.com/Youmanvi/bookingengine/internal/infrastructure/observability"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("APP_CONFIG"), "path to the YAML config file")
	flag.Parse()

	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		observability.GetGlobalLogger().Fatal().Err(err).Msg("failed to load config")
	}
	logger := observability.NewLogger(&cfg.Observability)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to assemble engine")
	}

	logger.Info().Str("name", cfg.App.Name).Int("port", cfg.App.Port).Msg("starting booking engine")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to start engine")
		stop()
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to stop cleanly")
		os.Exit(1)
	}
	logger.Info().Msg("engine stopped")
}
