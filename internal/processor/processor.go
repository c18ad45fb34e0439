// Package processor consumes filled blocks from the node, filters the
// operations that belong to the launch platform and turns their confirmed
// events into database rows, candles, migrations and realtime alerts.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dusaprotocol/pump-backend/internal/analytics"
	"github.com/dusaprotocol/pump-backend/internal/config"
	"github.com/dusaprotocol/pump-backend/internal/database"
	"github.com/dusaprotocol/pump-backend/internal/decoder"
	"github.com/dusaprotocol/pump-backend/internal/fraction"
	"github.com/dusaprotocol/pump-backend/internal/migration"
	"github.com/dusaprotocol/pump-backend/internal/node"
	"github.com/dusaprotocol/pump-backend/internal/observability"
	"github.com/dusaprotocol/pump-backend/internal/oracle"
	"github.com/dusaprotocol/pump-backend/internal/valuation"
)

// Chain is the node surface the processor consumes.
type Chain interface {
	FetchEvents(ctx context.Context, txID string) node.FetchResult
	SubscribeFilledBlocks(ctx context.Context) (<-chan node.FilledBlock, error)
	GenesisTimestamp() int64
}

// Store is the slice of the database the processor writes.
type Store interface {
	UpdateTokenAddress(ctx context.Context, oldAddress, newAddress string) (*database.Token, error)
	DeleteToken(ctx context.Context, address string) error
	MarkTokenCompleted(ctx context.Context, address string, completedAt time.Time, dusaPoolAddress string) error
	CreateSwap(ctx context.Context, swap *database.Swap) error
	InsertLog(ctx context.Context, data, message []byte) error
}

// PoolReader reads launch-pool contract state.
type PoolReader interface {
	GetReserves(ctx context.Context, pool string) (oracle.Reserves, error)
	PoolToken(ctx context.Context, pool string) (string, error)
}

// Valuer prices tokens in USD.
type Valuer interface {
	TokenValue(ctx context.Context, token string, reserves *oracle.Reserves) (float64, error)
}

// Candles folds swaps into OHLCV candles.
type Candles interface {
	RecordSwap(ctx context.Context, poolAddress string, s analytics.SwapTotals) error
	SeedPool(ctx context.Context, poolAddress, tokenAddress string, price float64) error
}

// Migrator moves completed pools to Dusa.
type Migrator interface {
	MigratePool(ctx context.Context, pumpPool, tokenAddress string) (string, error)
}

// Alerter pushes realtime notifications. Implementations must not block.
type Alerter interface {
	NewSwap(txHash string)
	NewToken(token *database.Token)
}

type Processor struct {
	chain    Chain
	store    Store
	pools    PoolReader
	valuer   Valuer
	candles  Candles
	migrator Migrator
	alerter  Alerter
	metrics  *observability.Metrics
	logger   zerolog.Logger

	// graceDelay gives the node time to confirm an operation's events
	// before the first fetch.
	graceDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func New(
	chain Chain,
	store Store,
	pools PoolReader,
	valuer Valuer,
	candles Candles,
	migrator Migrator,
	alerter Alerter,
	metrics *observability.Metrics,
	cfg config.ProcessorConfig,
	logger zerolog.Logger,
) *Processor {
	return &Processor{
		chain:      chain,
		store:      store,
		pools:      pools,
		valuer:     valuer,
		candles:    candles,
		migrator:   migrator,
		alerter:    alerter,
		metrics:    metrics,
		logger:     logger.With().Str("component", "processor").Logger(),
		graceDelay: cfg.EventGraceDelay,
		sleep:      sleepCtx,
	}
}

// ProcessOperation handles one operation from a filled block. Operations that
// do not belong to the platform are skipped. Processing failures on a
// relevant operation land in the dead-letter log and do not stop the
// consumer.
func (p *Processor) ProcessOperation(ctx context.Context, op node.SignedOperation, indexInSlot int) {
	if op.CallSC == nil {
		return
	}

	target := op.CallSC.TargetAddress
	function := op.CallSC.TargetFunction
	if !isCoreContract(target) && !decoder.IsSwapMethod(function) {
		p.metrics.Operations.WithLabelValues(observability.OutcomeSkipped).Inc()
		return
	}

	logger := p.logger.With().Str("tx", op.Hash).Str("function", function).Logger()

	// Events trail the block stream slightly; give them a moment.
	if err := p.sleep(ctx, p.graceDelay); err != nil {
		return
	}

	result := p.chain.FetchEvents(ctx, op.Hash)

	if function == "deploy" && target == config.DeployerAddress {
		p.handleDeploy(ctx, op, result, indexInSlot, logger)
		return
	}

	if result.IsError {
		logger.Debug().Msg("Operation failed on-chain, skipping")
		p.metrics.Operations.WithLabelValues(observability.OutcomeSkipped).Inc()
		return
	}

	if decoder.IsSwapMethod(function) {
		swapEvent, ok := findEvent(result.Events, decoder.SwapEventName)
		if !ok {
			logger.Warn().Msg("Swap operation emitted no swap event")
			p.metrics.Operations.WithLabelValues(observability.OutcomeSkipped).Inc()
			return
		}
		if err := p.handleSwap(ctx, op.Hash, function, swapEvent, op.CreatorAddress, indexInSlot); err != nil {
			logger.Error().Err(err).Msg("Swap processing failed")
			p.deadLetter(ctx, result.Events, err)
			p.metrics.Operations.WithLabelValues(observability.OutcomeFailed).Inc()
			return
		}
		p.metrics.Operations.WithLabelValues(observability.OutcomeProcessed).Inc()
		return
	}

	// A core-contract call with a function we do not know about.
	err := fmt.Errorf("unknown function %s on %s", function, target)
	logger.Error().Err(err).Msg("Unhandled operation")
	p.deadLetter(ctx, result.Events, err)
	p.metrics.Operations.WithLabelValues(observability.OutcomeFailed).Inc()
}

// handleDeploy finalizes a token launch. The frontend pre-creates the token
// row keyed by the deploy transaction hash; a failed deploy deletes it, a
// successful one rewrites it to the on-chain token address and seeds the
// pool's first candle.
func (p *Processor) handleDeploy(ctx context.Context, op node.SignedOperation, result node.FetchResult, indexInSlot int, logger zerolog.Logger) {
	if result.IsError {
		if err := p.store.DeleteToken(ctx, op.Hash); err != nil {
			logger.Error().Err(err).Msg("Failed to delete token of failed deploy")
		}
		p.metrics.Operations.WithLabelValues(observability.OutcomeSkipped).Inc()
		return
	}

	pairEvent, ok := findEvent(result.Events, decoder.NewPairEventName)
	if !ok {
		p.metrics.Operations.WithLabelValues(observability.OutcomeSkipped).Inc()
		return
	}

	decoded, err := decoder.DecodeNewPairEvent(pairEvent.Data)
	if err != nil {
		logger.Error().Err(err).Msg("Malformed NEW_PAIR event")
		p.deadLetter(ctx, result.Events, err)
		p.metrics.Operations.WithLabelValues(observability.OutcomeFailed).Inc()
		return
	}

	tokenAddress := decoded.Token0
	if tokenAddress == config.WMASAddress {
		tokenAddress = decoded.Token1
	}

	token, err := p.store.UpdateTokenAddress(ctx, op.Hash, tokenAddress)
	if err != nil {
		// The row may be gone or already rewritten; either way there is
		// nothing to finalize.
		logger.Warn().Err(err).Str("token", tokenAddress).Msg("Token address rewrite failed")
		p.metrics.Operations.WithLabelValues(observability.OutcomeSkipped).Inc()
		return
	}

	if err := p.candles.SeedPool(ctx, decoded.PairAddress, tokenAddress, launchPrice()); err != nil {
		logger.Warn().Err(err).Msg("Launch candle seed failed")
		p.metrics.Operations.WithLabelValues(observability.OutcomeSkipped).Inc()
		return
	}

	// Launches can buy in the same operation that deploys.
	if swapEvent, ok := findEvent(result.Events, decoder.SwapEventName); ok {
		if err := p.handleSwap(ctx, op.Hash, "buy", swapEvent, op.CreatorAddress, indexInSlot); err != nil {
			logger.Error().Err(err).Msg("Launch buy processing failed")
			p.deadLetter(ctx, result.Events, err)
		}
	}

	p.alerter.NewToken(token)
	p.metrics.TokensLaunched.Inc()
	p.metrics.Operations.WithLabelValues(observability.OutcomeProcessed).Inc()
	logger.Info().Str("token", tokenAddress).Str("pool", decoded.PairAddress).Msg("Token launched")
}

func (p *Processor) handleSwap(ctx context.Context, txHash, method string, event node.Event, userAddress string, indexInSlot int) error {
	timestamp := event.Slot.Time(p.chain.GenesisTimestamp())
	poolAddress := event.Callee()

	tokenAddress, err := p.pools.PoolToken(ctx, poolAddress)
	if err != nil {
		return fmt.Errorf("pool token: %w", err)
	}

	decoded, err := decoder.DecodeSwapEvent(event.Data)
	if err != nil {
		return fmt.Errorf("decode swap: %w", err)
	}

	// A sell moves the token (asset X) into the pool, a buy moves WMAS
	// (asset Y) in. The emitted input amounts are net of the 1% fee.
	swapForY := method == "sell"
	net := decoded.Amount1In
	amountOut := decoded.Amount0Out
	if swapForY {
		net = decoded.Amount0In
		amountOut = decoded.Amount1Out
	}
	amountIn, feesIn := valuation.GrossUp(net)

	amountMas, amountToken := amountIn, amountOut
	if swapForY {
		amountMas, amountToken = amountOut, amountIn
	}
	executionPrice, err := valuation.ExecutionPrice(amountMas, amountToken)
	if err != nil {
		return fmt.Errorf("execution price: %w", err)
	}

	reserves, err := p.pools.GetReserves(ctx, poolAddress)
	if err != nil {
		return fmt.Errorf("reserves: %w", err)
	}

	if reserves[0].Cmp(config.CompletionThreshold) == 0 {
		if err := p.completePool(ctx, poolAddress, tokenAddress, timestamp); err != nil {
			return err
		}
	}

	afterPrice, err := valuation.AfterPrice(reserves)
	if err != nil {
		return fmt.Errorf("after price: %w", err)
	}

	tokenIn, decimalsIn := config.WMASAddress, int64(config.MasDecimals)
	if swapForY {
		tokenIn, decimalsIn = tokenAddress, config.TokenDecimals
	}
	valueIn, err := p.valuer.TokenValue(ctx, tokenIn, &reserves)
	if err != nil {
		return fmt.Errorf("input value: %w", err)
	}
	volume, fees := valuation.SwapValue(valuation.Swap{
		ValueIn:  valueIn,
		Decimals: decimalsIn,
		AmountIn: amountIn,
		FeesIn:   feesIn,
	})

	swap := &database.Swap{
		TxHash:         txHash,
		PoolAddress:    poolAddress,
		TokenAddress:   tokenAddress,
		UserAddress:    userAddress,
		IndexInSlot:    int32(indexInSlot),
		SwapForY:       swapForY,
		AmountIn:       amountIn.String(),
		AmountOut:      amountOut.String(),
		FeesIn:         feesIn.String(),
		USDValue:       volume,
		FeesUSDValue:   fees,
		ExecutionPrice: executionPrice,
		AfterPrice:     afterPrice,
		AfterReserve0:  reserves[0].String(),
		AfterReserve1:  reserves[1].String(),
		Timestamp:      timestamp,
	}
	if err := p.store.CreateSwap(ctx, swap); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			// Replayed operation; the candle already counted it.
			return nil
		}
		return fmt.Errorf("store swap: %w", err)
	}
	p.metrics.SwapsIndexed.Inc()

	if err := p.candles.RecordSwap(ctx, poolAddress, analytics.SwapTotals{
		TokenAddress: tokenAddress,
		Volume0:      decoded.Amount0In.String(),
		Volume1:      decoded.Amount1In.String(),
		Volume:       volume,
		Fees:         fees,
		Price:        afterPrice,
	}); err != nil {
		return fmt.Errorf("record candle: %w", err)
	}

	p.alerter.NewSwap(txHash)
	return nil
}

// completePool migrates a fully bought pool to Dusa and marks its token
// completed. A migration already running in another worker is not an error.
func (p *Processor) completePool(ctx context.Context, poolAddress, tokenAddress string, at time.Time) error {
	dusaPool, err := p.migrator.MigratePool(ctx, poolAddress, tokenAddress)
	if err != nil {
		if errors.Is(err, migration.ErrInProgress) {
			p.logger.Info().Str("pool", poolAddress).Msg("Migration already running")
			return nil
		}
		return fmt.Errorf("migrate pool: %w", err)
	}

	if err := p.store.MarkTokenCompleted(ctx, tokenAddress, at, dusaPool); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	p.metrics.MigrationsCompleted.Inc()
	p.logger.Info().Str("token", tokenAddress).Str("dusaPool", dusaPool).Msg("Token completed")
	return nil
}

// deadLetter preserves the events of an operation that could not be
// processed.
func (p *Processor) deadLetter(ctx context.Context, events []node.Event, cause error) {
	payload, err := json.Marshal(events)
	if err != nil {
		payload = []byte(fmt.Sprintf("%+v", events))
	}
	if err := p.store.InsertLog(ctx, payload, []byte(cause.Error())); err != nil {
		p.logger.Error().Err(err).Msg("Dead-letter write failed")
		return
	}
	p.metrics.DeadLetters.Inc()
}

// launchPrice is the price every pool opens at: the virtual WMAS liquidity
// against the full token supply plus the virtual liquidity.
func launchPrice() float64 {
	supply := new(big.Int).Add(config.TotalSupply, config.VirtualLiquidity)
	f, _ := fraction.New(config.VirtualLiquidity, supply)
	return fraction.AdjustPrice(f.ToSignificant(6), config.TokenDecimals, config.MasDecimals)
}

func isCoreContract(address string) bool {
	for _, core := range config.CoreContracts {
		if address == core {
			return true
		}
	}
	return false
}

func findEvent(events []node.Event, prefix string) (node.Event, bool) {
	for _, e := range events {
		if strings.HasPrefix(e.Data, prefix) {
			return e, true
		}
	}
	return node.Event{}, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
