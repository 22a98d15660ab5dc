// Package exp implements unsigned fixed-point arithmetic over 256-bit
// mantissas. An Exp value carries 18 decimals, a Double carries 36.
// Every operation is checked: overflow, underflow and division by zero
// surface as ErrMathOverflow instead of wrapping.
package exp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

var (
	ErrMathOverflow   = errors.New("exp: math overflow")
	ErrMathUnderflow  = fmt.Errorf("%w: subtraction underflow", ErrMathOverflow)
	ErrDivisionByZero = fmt.Errorf("%w: division by zero", ErrMathOverflow)
)

const (
	ScaleDecimals       = 18
	DoubleScaleDecimals = 36
)

var (
	scale       = uint256.NewInt(1_000_000_000_000_000_000)
	doubleScale = new(uint256.Int).Mul(scale, scale)
	maxUint256  = new(uint256.Int).SetAllOne()
)

// Scale returns a fresh copy of 1e18.
func Scale() *uint256.Int { return new(uint256.Int).Set(scale) }

// DoubleScale returns a fresh copy of 1e36.
func DoubleScale() *uint256.Int { return new(uint256.Int).Set(doubleScale) }

// Max returns 2^256-1.
func Max() *uint256.Int { return new(uint256.Int).Set(maxUint256) }

// Zero returns a fresh zero value.
func Zero() *uint256.Int { return new(uint256.Int) }

// IsMax reports whether v is the max sentinel.
func IsMax(v *uint256.Int) bool { return v != nil && v.Eq(maxUint256) }

// New returns v as a 256-bit integer.
func New(v uint64) *uint256.Int { return uint256.NewInt(v) }

// Clone copies v, treating nil as zero.
func Clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func Add(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrMathOverflow
	}
	return out, nil
}

func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	if a.Lt(b) {
		return nil, ErrMathUnderflow
	}
	return new(uint256.Int).Sub(a, b), nil
}

func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrMathOverflow
	}
	return out, nil
}

func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(a, b), nil
}

// mulDiv computes a*b/d, truncating.
func mulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	product, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	return Div(product, d)
}

// MulExp multiplies two Exp mantissas.
func MulExp(a, b *uint256.Int) (*uint256.Int, error) { return mulDiv(a, b, scale) }

// MulExp3 multiplies three Exp mantissas left to right.
func MulExp3(a, b, c *uint256.Int) (*uint256.Int, error) {
	ab, err := MulExp(a, b)
	if err != nil {
		return nil, err
	}
	return MulExp(ab, c)
}

// DivExp divides two Exp mantissas.
func DivExp(a, b *uint256.Int) (*uint256.Int, error) { return mulDiv(a, scale, b) }

// MulScalar scales an Exp by an integer, keeping the Exp form.
func MulScalar(e, s *uint256.Int) (*uint256.Int, error) { return Mul(e, s) }

// MulScalarTruncate returns truncate(e * s).
func MulScalarTruncate(e, s *uint256.Int) (*uint256.Int, error) { return mulDiv(e, s, scale) }

// MulScalarTruncateAdd returns truncate(e * s) + addend.
func MulScalarTruncateAdd(e, s, addend *uint256.Int) (*uint256.Int, error) {
	product, err := MulScalarTruncate(e, s)
	if err != nil {
		return nil, err
	}
	return Add(product, addend)
}

// DivScalarByExpTruncate returns truncate(s / e), with s an integer.
func DivScalarByExpTruncate(s, e *uint256.Int) (*uint256.Int, error) { return mulDiv(s, scale, e) }

// Fraction returns a/b as an Exp mantissa.
func Fraction(a, b *uint256.Int) (*uint256.Int, error) { return mulDiv(a, scale, b) }

// Truncate drops the fractional digits of an Exp mantissa.
func Truncate(e *uint256.Int) *uint256.Int { return new(uint256.Int).Div(e, scale) }

// FractionDouble returns a/b as a Double mantissa.
func FractionDouble(a, b *uint256.Int) (*uint256.Int, error) { return mulDiv(a, doubleScale, b) }

// MulDoubleTruncate returns truncate(s * d) for a Double d.
func MulDoubleTruncate(s, d *uint256.Int) (*uint256.Int, error) { return mulDiv(s, d, doubleScale) }

// Min returns the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

// ParseDecimal converts a base-10 string with an optional fractional part
// into a mantissa with the given number of decimals. "0.75" with 18
// decimals yields 75e16. Digits beyond the precision are rejected.
func ParseDecimal(s string, decimals int) (*uint256.Int, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", ""))
	if s == "" {
		return nil, fmt.Errorf("exp: empty decimal")
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac && frac == "" {
		return nil, fmt.Errorf("exp: invalid decimal %q", s)
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("exp: %q exceeds %d decimals", s, decimals)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("exp: invalid decimal %q", s)
		}
	}
	out, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("exp: %q: %w", s, ErrMathOverflow)
	}
	return out, nil
}

// MustParseDecimal panics on malformed input.
func MustParseDecimal(s string, decimals int) *uint256.Int {
	v, err := ParseDecimal(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// Mantissa parses s as an 18 decimal Exp.
func Mantissa(s string) (*uint256.Int, error) { return ParseDecimal(s, ScaleDecimals) }

// MustMantissa is Mantissa that panics on error.
func MustMantissa(s string) *uint256.Int { return MustParseDecimal(s, ScaleDecimals) }

// FormatMantissa renders an 18 decimal Exp as a trimmed decimal string.
func FormatMantissa(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	whole := new(uint256.Int).Div(v, scale)
	rem := new(uint256.Int).Mod(v, scale)
	if rem.IsZero() {
		return whole.Dec()
	}
	frac := rem.Dec()
	frac = strings.Repeat("0", ScaleDecimals-len(frac)) + frac
	return whole.Dec() + "." + strings.TrimRight(frac, "0")
}
