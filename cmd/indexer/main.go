package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dusaprotocol/pump-backend/internal/analytics"
	"github.com/dusaprotocol/pump-backend/internal/config"
	"github.com/dusaprotocol/pump-backend/internal/database"
	"github.com/dusaprotocol/pump-backend/internal/dusa"
	"github.com/dusaprotocol/pump-backend/internal/migration"
	"github.com/dusaprotocol/pump-backend/internal/node"
	"github.com/dusaprotocol/pump-backend/internal/observability"
	"github.com/dusaprotocol/pump-backend/internal/oracle"
	"github.com/dusaprotocol/pump-backend/internal/processor"
	"github.com/dusaprotocol/pump-backend/internal/realtime"
	"github.com/dusaprotocol/pump-backend/internal/scheduler"
	"github.com/dusaprotocol/pump-backend/internal/valuation"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)

	logger.Info().
		Str("version", "0.1.0").
		Str("config", configPath).
		Msg("Starting Pump Indexer")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Indexer failed")
	}
	logger.Info().Msg("Indexer shutdown complete")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.RunMigrations(ctx, &cfg.Database, logger); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	// The signer is only needed for migrations; an indexer without the key
	// still indexes, it just cannot move pools to Dusa.
	var signer *node.Signer
	if cfg.Migration.SecretKey != "" {
		signer, err = node.NewSigner(cfg.Migration.SecretKey, cfg.Migration.AccountAddress)
		if err != nil {
			return fmt.Errorf("migration signer: %w", err)
		}
	} else {
		logger.Warn().Msg("No migration key configured, pool migration disabled")
	}

	chain := node.NewClient(cfg.Node, signer, logger)

	metrics := observability.NewMetrics()
	metricsServer := observability.NewServer(fmt.Sprintf(":%d", cfg.Metrics.Port), metrics, logger)
	metricsServer.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Stop(shutdownCtx)
	}()

	poolOracle := oracle.New(chain, logger)
	valuer := valuation.New(poolOracle, logger)
	candles := analytics.New(db, logger)
	migrator := migration.New(dusa.New(chain, logger), cfg.Migration, logger)

	hub := realtime.NewHub(cfg.Realtime, logger)
	defer hub.Close()

	proc := processor.New(
		chain, db, poolOracle, valuer, candles, migrator, hub,
		metrics, cfg.Processor, logger,
	)
	consumer := processor.NewConsumer(chain, proc, metrics, cfg.Processor, logger)

	ticks, err := scheduler.NewTickScheduler(db, candles, logger)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := ticks.Start(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	defer ticks.Stop()

	return consumer.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05.000",
		}
		logger = zerolog.New(output).Level(level).With().Timestamp().Caller().Logger()
	} else {
		logger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Caller().Logger()
	}

	return logger
}
