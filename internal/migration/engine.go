// Package migration moves a fully bought launch pool into a Dusa
// liquidity-book pair. The locked token supply and the pool's WMAS balance
// (minus the platform fee) are spread over 700 bins in ten addLiquidity
// batches around a fixed listing price.
package migration

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dusaprotocol/pump-backend/internal/config"
	"github.com/dusaprotocol/pump-backend/internal/dusa"
)

// ErrInProgress means another worker is already migrating the pool.
var ErrInProgress = errors.New("migration already in progress")

const (
	// migrateFee is the platform's cut of the migrated WMAS, base 100.
	migrateFee = 7

	// Listing geometry. activeID prices the token at 0.002107 MAS.
	binStep      = 100
	activeID     = 8385906
	batchCount   = 10
	binsPerBatch = 70
	firstDelta   = 416

	// amountSlippage is the allowed amount slippage in bips. Price slippage
	// is zero: the pair is fresh, nobody should have moved the active bin.
	amountSlippage = 50

	// Total shares the WMAS and token amounts are split into across batches.
	wmasShares  = 215
	tokenShares = 485

	deadlineWindow = time.Hour

	pairCreationDelay = 5 * time.Second
	defaultBatchDelay = 2 * time.Second
)

// Fixed-point distribution shares, scaled by 1e18.
const (
	evenShare    = 14_285_700_000_000_000  // 1/70 of a batch
	activeShareX = 15_151_500_000_000_000  // 1/66 of the active batch's token side
	activeShareY = 200_000_000_000_000_000 // 1/5 of the active batch's WMAS side
)

// Chain is the contract surface the engine drives. *dusa.Client satisfies it.
type Chain interface {
	FindPair(ctx context.Context, tokenA, tokenB string, binStep uint32) (string, error)
	CreatePair(ctx context.Context, tokenA, tokenB string, activeID, binStep uint32) (string, error)
	BalanceOf(ctx context.Context, token, owner string) (*big.Int, error)
	Approve(ctx context.Context, token, spender string, amount *big.Int) (string, error)
	BinSupplies(ctx context.Context, pair string, ids []uint64) ([]*big.Int, error)
	AddLiquidity(ctx context.Context, p dusa.AddLiquidityParams) (string, error)
	AwaitFinal(ctx context.Context, opID string) error
}

type Engine struct {
	chain   Chain
	account string
	logger  zerolog.Logger

	batchDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(chain Chain, cfg config.MigrationConfig, logger zerolog.Logger) *Engine {
	batchDelay := cfg.BatchDelay
	if batchDelay <= 0 {
		batchDelay = defaultBatchDelay
	}
	return &Engine{
		chain:      chain,
		account:    cfg.AccountAddress,
		logger:     logger.With().Str("component", "migration").Logger(),
		batchDelay: batchDelay,
		sleep:      sleepCtx,
		now:        time.Now,
		inflight:   make(map[string]struct{}),
	}
}

// MigratePool migrates one completed launch pool and returns the Dusa pair
// address the liquidity landed in. Batches whose bins already hold liquidity
// are skipped, so a crashed migration can be re-run and picks up where it
// stopped. Only one migration per pool runs at a time in this process.
func (e *Engine) MigratePool(ctx context.Context, pumpPool, tokenAddress string) (string, error) {
	if !e.acquire(pumpPool) {
		return "", fmt.Errorf("pool %s: %w", pumpPool, ErrInProgress)
	}
	defer e.release(pumpPool)

	logger := e.logger.With().Str("pool", pumpPool).Str("token", tokenAddress).Logger()

	pair, err := e.ensurePair(ctx, tokenAddress, logger)
	if err != nil {
		return "", err
	}
	logger = logger.With().Str("pair", pair).Logger()

	// The platform keeps 7% of the WMAS the curve collected; the rest and
	// the locked token supply become Dusa liquidity.
	balance, err := e.chain.BalanceOf(ctx, config.WMASAddress, e.account)
	if err != nil {
		return "", err
	}
	fee := new(big.Int).Mul(balance, big.NewInt(migrateFee))
	fee.Quo(fee, big.NewInt(100))
	wmasTotal := new(big.Int).Sub(balance, fee)
	tokenTotal := new(big.Int).Set(config.LockedSupply)

	if _, err := e.chain.Approve(ctx, tokenAddress, config.DusaRouterAddress, tokenTotal); err != nil {
		return "", err
	}
	if _, err := e.chain.Approve(ctx, config.WMASAddress, config.DusaRouterAddress, wmasTotal); err != nil {
		return "", err
	}

	deadline := uint64(e.now().Add(deadlineWindow).UnixMilli())

	for i := 0; i < batchCount; i++ {
		batch := makeBatch(i, tokenAddress, wmasTotal, tokenTotal)
		batch.To = e.account
		batch.Deadline = deadline

		done, err := e.batchPlaced(ctx, pair, batch.DeltaIDs)
		if err != nil {
			return "", err
		}
		if done {
			logger.Info().Int("batch", i).Msg("Batch already placed, skipping")
			continue
		}

		opID, err := e.chain.AddLiquidity(ctx, batch)
		if err != nil {
			return "", fmt.Errorf("batch %d: %w", i, err)
		}
		logger.Info().Int("batch", i).Str("operation", opID).Msg("Liquidity batch submitted")

		if err := e.sleep(ctx, e.batchDelay); err != nil {
			return "", err
		}
	}

	logger.Info().Msg("Pool migrated")
	return pair, nil
}

// ensurePair finds the token/WMAS pair at the listing bin step, creating it
// if the factory has none yet.
func (e *Engine) ensurePair(ctx context.Context, tokenAddress string, logger zerolog.Logger) (string, error) {
	pair, err := e.chain.FindPair(ctx, tokenAddress, config.WMASAddress, binStep)
	if err == nil {
		return pair, nil
	}
	if !errors.Is(err, dusa.ErrPairNotFound) {
		return "", err
	}

	opID, err := e.chain.CreatePair(ctx, tokenAddress, config.WMASAddress, activeID, binStep)
	if err != nil {
		return "", err
	}
	if err := e.chain.AwaitFinal(ctx, opID); err != nil {
		return "", fmt.Errorf("pair creation %s: %w", opID, err)
	}
	// Give the factory a moment to index the new pair before reading it back.
	if err := e.sleep(ctx, pairCreationDelay); err != nil {
		return "", err
	}

	pair, err = e.chain.FindPair(ctx, tokenAddress, config.WMASAddress, binStep)
	if err != nil {
		return "", fmt.Errorf("pair not resolvable after creation: %w", err)
	}
	logger.Info().Str("pair", pair).Msg("Created Dusa pair")
	return pair, nil
}

// batchPlaced reports whether any bin of the batch already holds liquidity.
func (e *Engine) batchPlaced(ctx context.Context, pair string, deltaIDs []int64) (bool, error) {
	ids := make([]uint64, len(deltaIDs))
	for i, delta := range deltaIDs {
		ids[i] = uint64(int64(activeID) + delta)
	}

	supplies, err := e.chain.BinSupplies(ctx, pair, ids)
	if err != nil {
		return false, err
	}
	for _, s := range supplies {
		if s.Sign() > 0 {
			return true, nil
		}
	}
	return false, nil
}

// makeBatch builds batch i of the listing. Batches 0-5 place tokens above
// the active bin, batch 6 straddles it with both assets, batches 7-9 place
// WMAS below it.
func makeBatch(i int, tokenAddress string, wmasTotal, tokenTotal *big.Int) dusa.AddLiquidityParams {
	deltaIDs := make([]int64, binsPerBatch)
	for j := range deltaIDs {
		deltaIDs[j] = int64(j + firstDelta - i*binsPerBatch)
	}

	var amountX, amountY *big.Int
	var distX, distY []uint64
	switch {
	case i < 6:
		amountX = share(tokenTotal, binsPerBatch, tokenShares)
		amountY = big.NewInt(0)
		distX = flatDistribution(evenShare)
		distY = flatDistribution(0)
	case i == 6:
		amountX = share(tokenTotal, 65, tokenShares)
		amountY = share(wmasTotal, 5, wmasShares)
		distX, distY = activeBatchDistributions()
	default:
		amountX = big.NewInt(0)
		amountY = share(wmasTotal, binsPerBatch, wmasShares)
		distX = flatDistribution(0)
		distY = flatDistribution(evenShare)
	}

	return dusa.AddLiquidityParams{
		TokenX:          tokenAddress,
		TokenY:          config.WMASAddress,
		BinStep:         binStep,
		AmountX:         amountX,
		AmountY:         amountY,
		AmountXMin:      withSlippage(amountX),
		AmountYMin:      withSlippage(amountY),
		ActiveIDDesired: activeID,
		IDSlippage:      0,
		DeltaIDs:        deltaIDs,
		DistributionX:   distX,
		DistributionY:   distY,
	}
}

// share returns total*parts/shares, floored.
func share(total *big.Int, parts, shares int64) *big.Int {
	v := new(big.Int).Mul(total, big.NewInt(parts))
	return v.Quo(v, big.NewInt(shares))
}

// withSlippage discounts an amount by the allowed slippage, floored.
func withSlippage(amount *big.Int) *big.Int {
	v := new(big.Int).Mul(amount, big.NewInt(10_000-amountSlippage))
	return v.Quo(v, big.NewInt(10_000))
}

func flatDistribution(value uint64) []uint64 {
	dist := make([]uint64, binsPerBatch)
	for i := range dist {
		dist[i] = value
	}
	return dist
}

// activeBatchDistributions covers the batch straddling the active bin: the
// first five bins (four below active plus active itself) take the WMAS side,
// the active bin and the 65 above take the token side.
func activeBatchDistributions() (distX, distY []uint64) {
	distX = make([]uint64, binsPerBatch)
	distY = make([]uint64, binsPerBatch)
	for i := 4; i < binsPerBatch; i++ {
		distX[i] = activeShareX
	}
	for i := 0; i < 5; i++ {
		distY[i] = activeShareY
	}
	return distX, distY
}

func (e *Engine) acquire(pool string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inflight[pool]; ok {
		return false
	}
	e.inflight[pool] = struct{}{}
	return true
}

func (e *Engine) release(pool string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, pool)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
