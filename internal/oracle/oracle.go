// Package oracle reads pool reserves and the reference-asset price from
// on-chain state. Reads are deliberately uncached: valuation must see the
// chain as-of the swap being priced, not a stale snapshot.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dusaprotocol/pump-backend/internal/config"
	"github.com/dusaprotocol/pump-backend/internal/node"
)

// ErrReserveUnavailable reports a pool whose reserve slots are absent.
var ErrReserveUnavailable = errors.New("reserves unavailable")

// Reserves is the ordered [token, reference asset] pair of a launch pool.
type Reserves [2]*big.Int

// binMidpoint is the bin id whose price is exactly 1 in the concentrated
// liquidity bin geometry.
const binMidpoint = 1 << 23

// referenceBinStep is the bin step of the USDC/WMAS pool.
const referenceBinStep = 20

// DatastoreReader is the single node capability the oracle needs.
type DatastoreReader interface {
	DatastoreEntries(ctx context.Context, address string, keys []string) ([][]byte, error)
}

type Oracle struct {
	node   DatastoreReader
	logger zerolog.Logger
}

func New(n DatastoreReader, logger zerolog.Logger) *Oracle {
	return &Oracle{
		node:   n,
		logger: logger.With().Str("component", "oracle").Logger(),
	}
}

// GetReserves reads a launch pool's current reserves.
func (o *Oracle) GetReserves(ctx context.Context, pool string) (Reserves, error) {
	values, err := o.node.DatastoreEntries(ctx, pool, []string{"reserve0", "reserve1"})
	if err != nil {
		return Reserves{}, fmt.Errorf("read reserves of %s: %w", pool, err)
	}
	if len(values) != 2 || len(values[0]) == 0 || len(values[1]) == 0 {
		return Reserves{}, fmt.Errorf("%w: pool %s", ErrReserveUnavailable, pool)
	}
	return Reserves{node.U256FromBytes(values[0]), node.U256FromBytes(values[1])}, nil
}

// PoolToken resolves the launched token a pool trades against the
// reference asset.
func (o *Oracle) PoolToken(ctx context.Context, pool string) (string, error) {
	values, err := o.node.DatastoreEntries(ctx, pool, []string{"token0"})
	if err != nil {
		return "", fmt.Errorf("read token of %s: %w", pool, err)
	}
	if len(values) != 1 || len(values[0]) == 0 {
		return "", fmt.Errorf("token not found for pool %s", pool)
	}
	return string(values[0]), nil
}

// PairAddress resolves the launch pool of a token/reference pair from the
// factory's pair mapping.
func (o *Oracle) PairAddress(ctx context.Context, token string) (string, error) {
	key := fmt.Sprintf("pairMapping::%s:%s", token, config.WMASAddress)
	values, err := o.node.DatastoreEntries(ctx, config.FactoryAddress, []string{key})
	if err != nil {
		return "", fmt.Errorf("resolve pair of %s: %w", token, err)
	}
	if len(values) != 1 || len(values[0]) == 0 {
		return "", fmt.Errorf("pair not found for token %s", token)
	}
	return string(values[0]), nil
}

// ReferencePrice returns the reference asset's USD price, derived from the
// USDC/WMAS pool's active bin id: price = (1 + binStep/10000)^(id - 2^23),
// adjusted for the WMAS/USDC decimal gap.
func (o *Oracle) ReferencePrice(ctx context.Context) (float64, error) {
	values, err := o.node.DatastoreEntries(ctx, config.USDCWMASPoolAddress, []string{"PAIR_INFORMATION"})
	if err != nil {
		return 0, fmt.Errorf("read reference pair information: %w", err)
	}
	if len(values) != 1 || len(values[0]) == 0 {
		return 0, fmt.Errorf("reference pair information not found")
	}
	activeID, ok := node.U32FromBytes(values[0])
	if !ok {
		return 0, fmt.Errorf("reference pair information too short")
	}
	return PriceFromBinID(activeID, referenceBinStep, config.MasDecimals, config.USDCDecimals)
}

// PriceFromBinID converts a bin id into a price via the fixed bin-step
// geometric formula, decimal-adjusted between the two assets.
func PriceFromBinID(binID uint32, binStep uint32, decimalsBase, decimalsQuote int) (float64, error) {
	base := decimal.New(1, 0).Add(decimal.New(int64(binStep), -4))
	exponent := decimal.NewFromInt(int64(binID) - binMidpoint)

	price, err := base.PowWithPrecision(exponent, 24)
	if err != nil {
		return 0, fmt.Errorf("bin price for id %d: %w", binID, err)
	}

	v, _ := price.Shift(int32(decimalsBase - decimalsQuote)).Float64()
	return v, nil
}
