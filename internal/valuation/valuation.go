// Package valuation prices tokens and swaps in USD. Token prices derive from
// bonding-pool reserves quoted in WMAS, converted through the reference
// WMAS/USDC price. All intermediate math is exact rational arithmetic; floats
// appear only in the final rounded figures.
package valuation

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/dusaprotocol/pump-backend/internal/config"
	"github.com/dusaprotocol/pump-backend/internal/fraction"
	"github.com/dusaprotocol/pump-backend/internal/oracle"
)

// The pool keeps 990/1000 of every input amount; the remaining 1% is the
// protocol fee.
const (
	feeBase = 1000
	feeKeep = 990
)

// PriceSource is the subset of the datastore oracle the engine reads.
type PriceSource interface {
	GetReserves(ctx context.Context, pool string) (oracle.Reserves, error)
	PairAddress(ctx context.Context, token string) (string, error)
	ReferencePrice(ctx context.Context) (float64, error)
}

// Engine converts on-chain amounts into USD figures.
type Engine struct {
	oracle PriceSource
	logger zerolog.Logger
}

func New(o PriceSource, logger zerolog.Logger) *Engine {
	return &Engine{
		oracle: o,
		logger: logger.With().Str("component", "valuation").Logger(),
	}
}

// TokenValue returns the USD value of one whole unit of token. WMAS itself is
// priced directly off the reference pool. For any other token the price comes
// from its bonding-pool reserves; pass reserves already read for the current
// swap to avoid a second datastore round trip, or nil to have them fetched.
func (e *Engine) TokenValue(ctx context.Context, token string, reserves *oracle.Reserves) (float64, error) {
	wmasValue, err := e.oracle.ReferencePrice(ctx)
	if err != nil {
		return 0, fmt.Errorf("reference price: %w", err)
	}
	if token == config.WMASAddress {
		return wmasValue, nil
	}

	r := reserves
	if r == nil {
		pair, err := e.oracle.PairAddress(ctx, token)
		if err != nil {
			return 0, fmt.Errorf("pair for %s: %w", token, err)
		}
		fetched, err := e.oracle.GetReserves(ctx, pair)
		if err != nil {
			return 0, fmt.Errorf("reserves for %s: %w", pair, err)
		}
		r = &fetched
	}

	priceInMas, err := priceInMas(*r)
	if err != nil {
		return 0, err
	}
	return priceInMas * wmasValue, nil
}

// priceInMas prices the pool token in WMAS from [token, WMAS] reserves. The
// raw ratio is truncated below WMAS resolution before rounding to 6
// significant digits, so dust below 1e-9 MAS reads as zero.
func priceInMas(r oracle.Reserves) (float64, error) {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(config.TokenDecimals-config.MasDecimals), nil)
	f, err := fraction.New(new(big.Int).Mul(r[1], scale), r[0])
	if err != nil {
		return 0, fmt.Errorf("price from reserves: %w", err)
	}
	truncated := f.Decimal(18).Truncate(config.MasDecimals)
	v, _ := fraction.RoundSignificant(truncated, 6).Float64()
	return v, nil
}

// Swap describes one swap input for USD conversion.
type Swap struct {
	ValueIn  float64  // USD value of one whole unit of the input token
	Decimals int64    // input token decimals
	AmountIn *big.Int // raw input amount, fee included
	FeesIn   *big.Int // raw fee portion of AmountIn
}

// SwapValue converts a swap's input amount and fee into USD. Volume and fees
// are rounded to 6 significant digits independently, so they do not sum
// exactly.
func SwapValue(s Swap) (volume, fees float64) {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(s.Decimals), nil)
	value := fraction.FromFloat(s.ValueIn)
	for i, raw := range []*big.Int{s.AmountIn, s.FeesIn} {
		f, _ := fraction.New(raw, unit)
		usd := f.Mul(value).ToSignificant(6)
		if i == 0 {
			volume = usd
		} else {
			fees = usd
		}
	}
	return volume, fees
}

// GrossUp recovers the pre-fee input amount from the net amount emitted in a
// swap event and splits out the fee portion. The division floors, so
// amountIn-feesIn always equals the net amount exactly.
func GrossUp(net *big.Int) (amountIn, feesIn *big.Int) {
	amountIn = new(big.Int).Mul(net, big.NewInt(feeBase))
	amountIn.Quo(amountIn, big.NewInt(feeKeep))
	feesIn = new(big.Int).Sub(amountIn, net)
	return amountIn, feesIn
}

// ExecutionPrice quotes a swap's realized token price from the WMAS and token
// legs of the trade, normalized for the decimal gap between the two assets.
func ExecutionPrice(amountMas, amountToken *big.Int) (float64, error) {
	return ratioPrice(amountMas, amountToken)
}

// AfterPrice quotes the pool's spot price from its post-swap reserves.
func AfterPrice(r oracle.Reserves) (float64, error) {
	return ratioPrice(r[1], r[0])
}

func ratioPrice(mas, token *big.Int) (float64, error) {
	f, err := fraction.New(mas, token)
	if err != nil {
		return 0, fmt.Errorf("price ratio: %w", err)
	}
	return fraction.AdjustPrice(f.ToSignificant(6), config.TokenDecimals, config.MasDecimals), nil
}
