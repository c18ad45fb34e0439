// Package analytics maintains per-pool OHLCV candles on 5 minute ticks.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dusaprotocol/pump-backend/internal/config"
	"github.com/dusaprotocol/pump-backend/internal/database"
)

// Store is the slice of the database the aggregator needs.
type Store interface {
	GetAnalytics(ctx context.Context, poolAddress string, date time.Time) (*database.Analytics, error)
	LatestAnalytics(ctx context.Context, poolAddress string) (*database.Analytics, error)
	InsertAnalytics(ctx context.Context, tokenAddress string, a *database.Analytics) error
	UpdateAnalytics(ctx context.Context, poolAddress string, date time.Time, volume, fees, price float64) error
}

// Aggregator folds swaps into candles.
type Aggregator struct {
	store  Store
	logger zerolog.Logger

	// now is the clock candles are bucketed on; swaps land in the tick they
	// are processed in, not the tick of their slot.
	now func() time.Time
}

func New(store Store, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		store:  store,
		logger: logger.With().Str("component", "analytics").Logger(),
		now:    time.Now,
	}
}

// ClosestTick floors a timestamp to its 5 minute tick start.
func ClosestTick(t time.Time) time.Time {
	return t.Truncate(config.OneTick)
}

// SwapTotals is one swap's contribution to a candle.
type SwapTotals struct {
	TokenAddress string
	Volume0      string
	Volume1      string
	Volume       float64
	Fees         float64
	Price        float64
}

// RecordSwap folds one swap into the current tick's candle, creating the
// candle if this is the first swap of the tick. A freshly created candle
// opens at the previous candle's close, or at the swap price for a pool with
// no history.
func (a *Aggregator) RecordSwap(ctx context.Context, poolAddress string, s SwapTotals) error {
	date := ClosestTick(a.now())

	_, err := a.store.GetAnalytics(ctx, poolAddress, date)
	if errors.Is(err, database.ErrNotFound) {
		open := s.Price
		last, err := a.store.LatestAnalytics(ctx, poolAddress)
		if err == nil {
			open = last.Close
		} else if !errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("latest candle for %s: %w", poolAddress, err)
		}

		candle := &database.Analytics{
			PoolAddress: poolAddress,
			Date:        date,
			Open:        open,
			Close:       s.Price,
			High:        max(open, s.Price),
			Low:         min(open, s.Price),
			Volume:      s.Volume,
			Fees:        s.Fees,
			Volume0:     s.Volume0,
			Volume1:     s.Volume1,
		}
		err = a.store.InsertAnalytics(ctx, s.TokenAddress, candle)
		if err == nil {
			return nil
		}
		if !errors.Is(err, database.ErrDuplicate) {
			return fmt.Errorf("create candle for %s: %w", poolAddress, err)
		}
		// Another swap created the candle first; fold into it below.
	} else if err != nil {
		return fmt.Errorf("candle for %s: %w", poolAddress, err)
	}

	if err := a.store.UpdateAnalytics(ctx, poolAddress, date, s.Volume, s.Fees, s.Price); err != nil {
		return fmt.Errorf("update candle for %s: %w", poolAddress, err)
	}
	return nil
}

// SeedPool writes a pool's very first candle at the launch price.
func (a *Aggregator) SeedPool(ctx context.Context, poolAddress, tokenAddress string, price float64) error {
	candle := &database.Analytics{
		PoolAddress: poolAddress,
		Date:        ClosestTick(a.now()),
		Open:        price,
		Close:       price,
		High:        price,
		Low:         price,
		Volume0:     "0",
		Volume1:     "0",
	}
	if err := a.store.InsertAnalytics(ctx, tokenAddress, candle); err != nil {
		return fmt.Errorf("seed candle for %s: %w", poolAddress, err)
	}
	return nil
}

// SeedTick carries a pool's last close into the current tick as an empty
// candle, so charts show flat candles through quiet periods. Pools with no
// history, and ticks that already have a candle, are left alone.
func (a *Aggregator) SeedTick(ctx context.Context, poolAddress, tokenAddress string) error {
	date := ClosestTick(a.now())

	last, err := a.store.LatestAnalytics(ctx, poolAddress)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("latest candle for %s: %w", poolAddress, err)
	}
	if !last.Date.Before(date) {
		return nil
	}

	candle := &database.Analytics{
		PoolAddress: poolAddress,
		Date:        date,
		Open:        last.Close,
		Close:       last.Close,
		High:        last.Close,
		Low:         last.Close,
		Volume0:     "0",
		Volume1:     "0",
	}
	err = a.store.InsertAnalytics(ctx, tokenAddress, candle)
	if err != nil && !errors.Is(err, database.ErrDuplicate) {
		return fmt.Errorf("seed tick for %s: %w", poolAddress, err)
	}
	return nil
}
