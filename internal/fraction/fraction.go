// Package fraction implements exact rational arithmetic for prices, fees and
// token amounts. No floating point is involved until a value crosses the
// display boundary via ToSignificant or String.
package fraction

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrDivisionByZero = errors.New("division by zero")

	one = big.NewInt(1)

	// maxU256 = 2^256 - 1
	maxU256 = new(big.Int).Sub(new(big.Int).Lsh(one, 256), one)
)

// Fraction is an exact numerator/denominator pair. The zero value is 0/1.
type Fraction struct {
	num *big.Int
	den *big.Int
}

// New builds a fraction from a numerator and denominator.
func New(num, den *big.Int) (Fraction, error) {
	if den == nil || den.Sign() == 0 {
		return Fraction{}, ErrDivisionByZero
	}
	return Fraction{num: cp(num), den: cp(den)}, nil
}

// FromInt builds the fraction n/1.
func FromInt(n *big.Int) Fraction {
	return Fraction{num: cp(n), den: big.NewInt(1)}
}

// FromUint64 builds the fraction n/1.
func FromUint64(n uint64) Fraction {
	return FromInt(new(big.Int).SetUint64(n))
}

// FromFloat folds a float back into exact math as round(v*1e18)/1e18,
// the same scaling the valuation boundary uses for USD prices.
func FromFloat(v float64) Fraction {
	if v == 0 {
		return Fraction{num: big.NewInt(0), den: big.NewInt(1)}
	}
	scaled := decimal.NewFromFloat(v).Shift(18).Round(0).BigInt()
	den, _ := new(big.Int).SetString("1000000000000000000", 10)
	return Fraction{num: scaled, den: den}
}

func (f Fraction) Num() *big.Int { return cp(f.norm().num) }
func (f Fraction) Den() *big.Int { return cp(f.norm().den) }

// Add returns f+g exactly.
func (f Fraction) Add(g Fraction) Fraction {
	f, g = f.norm(), g.norm()
	num := new(big.Int).Add(
		new(big.Int).Mul(f.num, g.den),
		new(big.Int).Mul(g.num, f.den),
	)
	return Fraction{num: num, den: new(big.Int).Mul(f.den, g.den)}
}

// Sub returns f-g exactly.
func (f Fraction) Sub(g Fraction) Fraction {
	f, g = f.norm(), g.norm()
	num := new(big.Int).Sub(
		new(big.Int).Mul(f.num, g.den),
		new(big.Int).Mul(g.num, f.den),
	)
	return Fraction{num: num, den: new(big.Int).Mul(f.den, g.den)}
}

// Mul returns f*g exactly.
func (f Fraction) Mul(g Fraction) Fraction {
	f, g = f.norm(), g.norm()
	return Fraction{
		num: new(big.Int).Mul(f.num, g.num),
		den: new(big.Int).Mul(f.den, g.den),
	}
}

// Quo returns f/g exactly, failing if g is zero.
func (f Fraction) Quo(g Fraction) (Fraction, error) {
	f, g = f.norm(), g.norm()
	if g.num.Sign() == 0 {
		return Fraction{}, ErrDivisionByZero
	}
	return Fraction{
		num: new(big.Int).Mul(f.num, g.den),
		den: new(big.Int).Mul(f.den, g.num),
	}, nil
}

// Quotient returns the integer part of the fraction, truncated toward zero.
func (f Fraction) Quotient() *big.Int {
	f = f.norm()
	return new(big.Int).Quo(f.num, f.den)
}

// Decimal renders the fraction as a decimal rounded to prec places. This is
// the only place precision is lost.
func (f Fraction) Decimal(prec int32) decimal.Decimal {
	f = f.norm()
	return decimal.NewFromBigInt(f.num, 0).DivRound(decimal.NewFromBigInt(f.den, 0), prec)
}

// ToSignificant rounds the fraction to the given number of significant
// digits and crosses the float boundary.
func (f Fraction) ToSignificant(digits int32) float64 {
	d := RoundSignificant(f.Decimal(40), digits)
	v, _ := d.Float64()
	return v
}

// String renders the fraction with 18 decimal places.
func (f Fraction) String() string {
	return f.Decimal(18).String()
}

func (f Fraction) norm() Fraction {
	if f.num == nil {
		f.num = big.NewInt(0)
	}
	if f.den == nil {
		f.den = big.NewInt(1)
	}
	return f
}

// RoundSignificant rounds d to the given number of significant digits.
func RoundSignificant(d decimal.Decimal, digits int32) decimal.Decimal {
	if d.IsZero() {
		return d
	}
	// Exponent of the leading digit: coefficient digits + exponent - 1.
	order := int32(d.NumDigits()) + d.Exponent() - 1
	return d.Round(digits - 1 - order)
}

// AdjustPrice rescales a price by 10^(decimalsA-decimalsB) to normalize
// differing token decimal counts.
func AdjustPrice(price float64, decimalsA, decimalsB int) float64 {
	d := decimal.NewFromFloat(price).Shift(int32(decimalsA - decimalsB))
	v, _ := d.Float64()
	return v
}

// ParseU256 parses a decimal string as an unsigned 256-bit integer.
func ParseU256(s string) (*big.Int, error) {
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("invalid u256 %q", s)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid u256 %q", s)
	}
	if n.Cmp(maxU256) > 0 {
		return nil, fmt.Errorf("u256 overflow %q", s)
	}
	return n, nil
}

func cp(n *big.Int) *big.Int {
	if n == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(n)
}
