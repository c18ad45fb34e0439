package valuation

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusaprotocol/pump-backend/internal/config"
	"github.com/dusaprotocol/pump-backend/internal/oracle"
)

type fakeSource struct {
	reference    float64
	referenceErr error
	pairs        map[string]string
	reserves     map[string]oracle.Reserves
}

func (f *fakeSource) ReferencePrice(ctx context.Context) (float64, error) {
	return f.reference, f.referenceErr
}

func (f *fakeSource) PairAddress(ctx context.Context, token string) (string, error) {
	pair, ok := f.pairs[token]
	if !ok {
		return "", errors.New("pair not found")
	}
	return pair, nil
}

func (f *fakeSource) GetReserves(ctx context.Context, pool string) (oracle.Reserves, error) {
	r, ok := f.reserves[pool]
	if !ok {
		return oracle.Reserves{}, oracle.ErrReserveUnavailable
	}
	return r, nil
}

func mas(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), config.OneMas)
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), config.OneToken)
}

func TestTokenValueFromReserves(t *testing.T) {
	src := &fakeSource{reference: 4}
	engine := New(src, zerolog.Nop())

	// 1000 tokens against 50 WMAS prices the token at 0.05 MAS, 0.2 USD.
	r := oracle.Reserves{tokens(1000), mas(50)}
	value, err := engine.TokenValue(context.Background(), "AS1token", &r)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, value, 1e-12)
}

func TestTokenValueWmasShortcut(t *testing.T) {
	src := &fakeSource{reference: 4.2}
	engine := New(src, zerolog.Nop())

	value, err := engine.TokenValue(context.Background(), config.WMASAddress, nil)
	require.NoError(t, err)
	assert.Equal(t, 4.2, value)
}

func TestTokenValueFetchesReserves(t *testing.T) {
	src := &fakeSource{
		reference: 2,
		pairs:     map[string]string{"AS1token": "AS1pool"},
		reserves: map[string]oracle.Reserves{
			"AS1pool": {tokens(100), mas(10)},
		},
	}
	engine := New(src, zerolog.Nop())

	value, err := engine.TokenValue(context.Background(), "AS1token", nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, value, 1e-12)

	_, err = engine.TokenValue(context.Background(), "AS1unknown", nil)
	assert.ErrorContains(t, err, "pair not found")
}

func TestTokenValueReferenceError(t *testing.T) {
	src := &fakeSource{referenceErr: oracle.ErrReserveUnavailable}
	engine := New(src, zerolog.Nop())

	_, err := engine.TokenValue(context.Background(), config.WMASAddress, nil)
	assert.ErrorIs(t, err, oracle.ErrReserveUnavailable)
}

func TestTokenValueEmptyPool(t *testing.T) {
	engine := New(&fakeSource{reference: 1}, zerolog.Nop())

	r := oracle.Reserves{big.NewInt(0), mas(1)}
	_, err := engine.TokenValue(context.Background(), "AS1token", &r)
	assert.Error(t, err)
}

func TestTokenValueTruncatesDust(t *testing.T) {
	engine := New(&fakeSource{reference: 1000}, zerolog.Nop())

	// Price below 1e-9 MAS truncates to zero before the USD conversion.
	r := oracle.Reserves{tokens(1_000_000_000_000), big.NewInt(1)}
	value, err := engine.TokenValue(context.Background(), "AS1token", &r)
	require.NoError(t, err)
	assert.Zero(t, value)
}

func TestSwapValue(t *testing.T) {
	volume, fees := SwapValue(Swap{
		ValueIn:  2,
		Decimals: config.TokenDecimals,
		AmountIn: tokens(5),
		FeesIn:   new(big.Int).Quo(tokens(5), big.NewInt(100)),
	})
	assert.InDelta(t, 10.0, volume, 1e-12)
	assert.InDelta(t, 0.1, fees, 1e-12)
}

func TestSwapValueRoundsIndependently(t *testing.T) {
	amount, ok := new(big.Int).SetString("1234567890123456789", 10)
	require.True(t, ok)
	fee, ok := new(big.Int).SetString("12345678901234567", 10)
	require.True(t, ok)

	volume, fees := SwapValue(Swap{
		ValueIn:  1,
		Decimals: config.TokenDecimals,
		AmountIn: amount,
		FeesIn:   fee,
	})
	assert.InDelta(t, 1.23457, volume, 1e-12)
	assert.InDelta(t, 0.0123457, fees, 1e-15)
}

func TestGrossUp(t *testing.T) {
	twoPow128 := new(big.Int).Lsh(big.NewInt(1), 128)
	maxU256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	cases := []struct {
		name string
		net  *big.Int
	}{
		{"zero", big.NewInt(0)},
		{"one", big.NewInt(1)},
		{"below fee unit", big.NewInt(989)},
		{"fee unit", big.NewInt(990)},
		{"round", big.NewInt(1000)},
		{"one mas", mas(1)},
		{"one token", tokens(1)},
		{"2^128", twoPow128},
		{"2^128-1", new(big.Int).Sub(twoPow128, big.NewInt(1))},
		{"max u256", maxU256},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amountIn, feesIn := GrossUp(tc.net)

			// amountIn = floor(net*1000/990), fee is the difference.
			want := new(big.Int).Mul(tc.net, big.NewInt(1000))
			want.Quo(want, big.NewInt(990))
			assert.Zero(t, amountIn.Cmp(want))
			assert.Zero(t, new(big.Int).Sub(amountIn, feesIn).Cmp(tc.net))
		})
	}

	amountIn, feesIn := GrossUp(big.NewInt(990))
	assert.Equal(t, int64(1000), amountIn.Int64())
	assert.Equal(t, int64(10), feesIn.Int64())
}

func TestExecutionPrice(t *testing.T) {
	price, err := ExecutionPrice(mas(2), tokens(1))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, price, 1e-12)

	_, err = ExecutionPrice(mas(1), big.NewInt(0))
	assert.Error(t, err)
}

func TestAfterPrice(t *testing.T) {
	price, err := AfterPrice(oracle.Reserves{tokens(1000), mas(50)})
	require.NoError(t, err)
	assert.InDelta(t, 0.05, price, 1e-12)
}
