package migration

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusaprotocol/pump-backend/internal/config"
	"github.com/dusaprotocol/pump-backend/internal/dusa"
)

type fakeChain struct {
	mu sync.Mutex

	pair    string
	exists  bool
	balance *big.Int

	supplies map[uint64]*big.Int

	created   int
	awaited   []string
	approvals map[string]*big.Int
	batches   []dusa.AddLiquidityParams

	release chan struct{}
}

func newFakeChain(balance *big.Int) *fakeChain {
	return &fakeChain{
		pair:      "AS1dusaPair",
		balance:   balance,
		supplies:  map[uint64]*big.Int{},
		approvals: map[string]*big.Int{},
	}
}

func (f *fakeChain) FindPair(ctx context.Context, a, b string, binStep uint32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exists {
		return "", dusa.ErrPairNotFound
	}
	return f.pair, nil
}

func (f *fakeChain) CreatePair(ctx context.Context, a, b string, activeID, binStep uint32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	f.exists = true
	return "O1createPair", nil
}

func (f *fakeChain) BalanceOf(ctx context.Context, token, owner string) (*big.Int, error) {
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeChain) Approve(ctx context.Context, token, spender string, amount *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvals[token] = new(big.Int).Set(amount)
	return "O1approve", nil
}

func (f *fakeChain) BinSupplies(ctx context.Context, pair string, ids []uint64) ([]*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*big.Int, len(ids))
	for i, id := range ids {
		if s, ok := f.supplies[id]; ok {
			out[i] = s
		} else {
			out[i] = big.NewInt(0)
		}
	}
	return out, nil
}

func (f *fakeChain) AddLiquidity(ctx context.Context, p dusa.AddLiquidityParams) (string, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, p)
	return "O1addLiquidity", nil
}

func (f *fakeChain) AwaitFinal(ctx context.Context, opID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awaited = append(f.awaited, opID)
	return nil
}

func newEngine(chain Chain) *Engine {
	e := New(chain, config.MigrationConfig{AccountAddress: "AU1migrator"}, zerolog.Nop())
	e.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	e.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func mas(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), config.OneMas)
}

func sumDist(dist []uint64) uint64 {
	var total uint64
	for _, v := range dist {
		total += v
	}
	return total
}

func TestMigratePool(t *testing.T) {
	chain := newFakeChain(mas(100_000))
	engine := newEngine(chain)

	pair, err := engine.MigratePool(context.Background(), "AS1pump", "AS1token")
	require.NoError(t, err)
	assert.Equal(t, "AS1dusaPair", pair)

	// The pair did not exist: it is created, finalized and re-resolved.
	assert.Equal(t, 1, chain.created)
	assert.Equal(t, []string{"O1createPair"}, chain.awaited)

	// 7% platform fee on the WMAS side, full locked supply on the token side.
	wmasTotal := mas(93_000)
	assert.Zero(t, chain.approvals[config.WMASAddress].Cmp(wmasTotal))
	assert.Zero(t, chain.approvals["AS1token"].Cmp(config.LockedSupply))

	require.Len(t, chain.batches, 10)

	tokenBatch := share(config.LockedSupply, 70, tokenShares)
	wmasBatch := share(wmasTotal, 70, wmasShares)

	var placedX, placedY big.Int
	for i, batch := range chain.batches {
		assert.Equal(t, "AS1token", batch.TokenX)
		assert.Equal(t, config.WMASAddress, batch.TokenY)
		assert.Equal(t, uint32(binStep), batch.BinStep)
		assert.Equal(t, uint64(activeID), batch.ActiveIDDesired)
		assert.Zero(t, batch.IDSlippage)
		assert.Equal(t, "AU1migrator", batch.To)

		// Deadline is one hour out, in unix milliseconds.
		assert.Equal(t, uint64(time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC).UnixMilli()), batch.Deadline)

		// 70 consecutive bins, shifted down one batch width at a time.
		require.Len(t, batch.DeltaIDs, 70)
		assert.Equal(t, int64(firstDelta-i*70), batch.DeltaIDs[0])
		assert.Equal(t, int64(firstDelta-i*70+69), batch.DeltaIDs[69])

		// No distribution may exceed 100%.
		assert.LessOrEqual(t, sumDist(batch.DistributionX), uint64(1e18))
		assert.LessOrEqual(t, sumDist(batch.DistributionY), uint64(1e18))

		switch {
		case i < 6:
			assert.Zero(t, batch.AmountX.Cmp(tokenBatch))
			assert.Zero(t, batch.AmountY.Sign())
			assert.Zero(t, sumDist(batch.DistributionY))
		case i == 6:
			assert.Zero(t, batch.AmountX.Cmp(share(config.LockedSupply, 65, tokenShares)))
			assert.Zero(t, batch.AmountY.Cmp(share(wmasTotal, 5, wmasShares)))
			// Four empty bins below active on the token side, WMAS up to and
			// including the active bin.
			assert.Zero(t, sumDist(batch.DistributionX[:4]))
			assert.Equal(t, uint64(activeShareX), batch.DistributionX[4])
			assert.Equal(t, uint64(activeShareY), batch.DistributionY[4])
			assert.Zero(t, sumDist(batch.DistributionY[5:]))
		default:
			assert.Zero(t, batch.AmountX.Sign())
			assert.Zero(t, batch.AmountY.Cmp(wmasBatch))
			assert.Zero(t, sumDist(batch.DistributionX))
		}

		// Slippage floor at 0.5%.
		wantXMin := withSlippage(batch.AmountX)
		assert.Zero(t, batch.AmountXMin.Cmp(wantXMin))

		placedX.Add(&placedX, batch.AmountX)
		placedY.Add(&placedY, batch.AmountY)
	}

	// Everything placed stays within what was approved.
	assert.LessOrEqual(t, placedX.Cmp(config.LockedSupply), 0)
	assert.LessOrEqual(t, placedY.Cmp(wmasTotal), 0)
}

func TestMigratePoolReusesExistingPair(t *testing.T) {
	chain := newFakeChain(mas(1000))
	chain.exists = true
	engine := newEngine(chain)

	pair, err := engine.MigratePool(context.Background(), "AS1pump", "AS1token")
	require.NoError(t, err)
	assert.Equal(t, "AS1dusaPair", pair)
	assert.Zero(t, chain.created)
}

func TestMigratePoolSkipsPlacedBatches(t *testing.T) {
	chain := newFakeChain(mas(1000))
	chain.exists = true

	// Batch 3 already holds liquidity in one of its bins, as after a crash
	// halfway through a previous run.
	batch3First := int64(activeID) + int64(firstDelta-3*70)
	chain.supplies[uint64(batch3First+12)] = big.NewInt(1)

	engine := newEngine(chain)
	_, err := engine.MigratePool(context.Background(), "AS1pump", "AS1token")
	require.NoError(t, err)

	require.Len(t, chain.batches, 9)
	for _, batch := range chain.batches {
		assert.NotEqual(t, int64(firstDelta-3*70), batch.DeltaIDs[0])
	}
}

func TestMigratePoolSingleFlight(t *testing.T) {
	chain := newFakeChain(mas(1000))
	chain.exists = true
	chain.release = make(chan struct{})
	engine := newEngine(chain)

	var wg sync.WaitGroup
	wg.Add(1)
	started := make(chan struct{})
	go func() {
		defer wg.Done()
		close(started)
		_, err := engine.MigratePool(context.Background(), "AS1pump", "AS1token")
		assert.NoError(t, err)
	}()

	<-started
	// Wait until the first migration is inside the batch loop.
	for {
		engine.mu.Lock()
		_, running := engine.inflight["AS1pump"]
		engine.mu.Unlock()
		if running {
			break
		}
		time.Sleep(time.Millisecond)
	}

	_, err := engine.MigratePool(context.Background(), "AS1pump", "AS1token")
	assert.ErrorIs(t, err, ErrInProgress)

	close(chain.release)
	wg.Wait()

	// Once the first run finished the pool can be migrated again.
	_, err = engine.MigratePool(context.Background(), "AS1pump", "AS1token")
	assert.NoError(t, err)
}
