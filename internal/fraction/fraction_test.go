package fraction

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoByZero(t *testing.T) {
	f := FromUint64(10)
	_, err := f.Quo(FromUint64(0))
	assert.ErrorIs(t, err, ErrDivisionByZero)

	_, err = New(big.NewInt(1), big.NewInt(0))
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestExactArithmetic(t *testing.T) {
	third, err := New(big.NewInt(1), big.NewInt(3))
	require.NoError(t, err)

	// 1/3 + 1/3 + 1/3 == 1 exactly, no float drift
	sum := third.Add(third).Add(third)
	assert.Equal(t, "1", sum.Quotient().String())
	assert.Equal(t, 0, sum.Num().Cmp(sum.Den()))

	// (2/3 - 1/3) * 6 == 2
	twoThirds := third.Add(third)
	got := twoThirds.Sub(third).Mul(FromUint64(6))
	assert.Equal(t, "2", got.Quotient().String())
}

func TestQuotientTruncates(t *testing.T) {
	f, err := New(big.NewInt(7), big.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, "3", f.Quotient().String())
}

func TestToSignificant(t *testing.T) {
	tests := []struct {
		num, den string
		want     float64
	}{
		{"1", "3", 0.333333},
		{"2", "3", 0.666667},
		{"123456789", "1", 1.23457e8},
		{"1", "1000000", 1e-6},
		{"1999999", "1000000", 2.0},
		{"0", "1", 0},
	}
	for _, tt := range tests {
		num, _ := new(big.Int).SetString(tt.num, 10)
		den, _ := new(big.Int).SetString(tt.den, 10)
		f, err := New(num, den)
		require.NoError(t, err)
		assert.InDelta(t, tt.want, f.ToSignificant(6), tt.want*1e-12+1e-15, "%s/%s", tt.num, tt.den)
	}
}

func TestAdjustPrice(t *testing.T) {
	// token has 18 decimals, WMAS has 9: raw ratio scales up by 1e9
	assert.InDelta(t, 2.107e-3, AdjustPrice(2.107e-12, 18, 9), 1e-18)
	assert.InDelta(t, 0.5, AdjustPrice(500, 6, 9), 1e-12)
	assert.Equal(t, 1.5, AdjustPrice(1.5, 9, 9))
}

func TestParseU256(t *testing.T) {
	maxStr := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)).String()

	n, err := ParseU256(maxStr)
	require.NoError(t, err)
	assert.Equal(t, maxStr, n.String())

	_, err = ParseU256("")
	assert.Error(t, err)
	_, err = ParseU256("-1")
	assert.Error(t, err)
	_, err = ParseU256("+5")
	assert.Error(t, err)
	_, err = ParseU256("12abc")
	assert.Error(t, err)

	over := new(big.Int).Lsh(big.NewInt(1), 256).String()
	_, err = ParseU256(over)
	assert.Error(t, err)
}

func TestFromFloatRoundTrip(t *testing.T) {
	f := FromFloat(0.123456)
	assert.InDelta(t, 0.123456, f.ToSignificant(6), 1e-18)

	zero := FromFloat(0)
	assert.Equal(t, "0", zero.Quotient().String())
}
