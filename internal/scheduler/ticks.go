// Package scheduler runs the periodic jobs that keep charts continuous
// between swaps.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/dusaprotocol/pump-backend/internal/analytics"
	"github.com/dusaprotocol/pump-backend/internal/database"
)

// PoolLister enumerates the pools to seed.
type PoolLister interface {
	ListPools(ctx context.Context) ([]database.Pool, error)
}

// TickScheduler writes empty candles on every 5 minute tick for pools that
// saw no swaps, carrying the last close forward.
type TickScheduler struct {
	pools     PoolLister
	candles   *analytics.Aggregator
	scheduler gocron.Scheduler
	logger    zerolog.Logger
}

func NewTickScheduler(pools PoolLister, candles *analytics.Aggregator, logger zerolog.Logger) (*TickScheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	return &TickScheduler{
		pools:     pools,
		candles:   candles,
		scheduler: s,
		logger:    logger.With().Str("component", "tick-scheduler").Logger(),
	}, nil
}

func (s *TickScheduler) Start(ctx context.Context) error {
	// Aligned to tick boundaries so candles land at exact 5 minute marks.
	_, err := s.scheduler.NewJob(
		gocron.CronJob("*/5 * * * *", false),
		gocron.NewTask(s.seedAllPools, ctx),
		gocron.WithName("seed-analytics-ticks"),
	)
	if err != nil {
		return err
	}

	s.logger.Info().Msg("Tick scheduler started (runs every 5 minutes)")
	s.scheduler.Start()
	return nil
}

func (s *TickScheduler) Stop() {
	s.logger.Info().Msg("Stopping tick scheduler")
	if err := s.scheduler.Shutdown(); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down scheduler")
	}
}

func (s *TickScheduler) seedAllPools(ctx context.Context) {
	start := time.Now()

	pools, err := s.pools.ListPools(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list pools")
		return
	}

	seeded := 0
	for _, pool := range pools {
		if err := s.candles.SeedTick(ctx, pool.Address, pool.TokenAddress); err != nil {
			s.logger.Error().Err(err).Str("pool", pool.Address).Msg("Failed to seed tick")
			continue
		}
		seeded++
	}

	s.logger.Debug().
		Int("pools", seeded).
		Dur("duration", time.Since(start)).
		Msg("Analytics ticks seeded")
}
