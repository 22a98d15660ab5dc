// Package interest provides the borrow and supply rate curves consulted by
// lending markets on every accrual. Rates are per-second Exp mantissas.
package interest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"moneymarket/core/exp"
)

// SecondsPerYear converts annual parameters into per-second rates.
const SecondsPerYear = 31_536_000

const (
	KindJumpRate   = "jump"
	KindWhitePaper = "whitepaper"
)

var ErrInvalidParams = errors.New("interest: invalid model parameters")

// Model prices credit for a market given its balances. Implementations
// must tolerate zero cash and zero borrows.
type Model interface {
	// BorrowRate returns the per-second borrow rate.
	BorrowRate(cash, borrows, reserves *uint256.Int) (*uint256.Int, error)
	// SupplyRate returns the per-second rate earned by suppliers after the
	// reserve factor cut.
	SupplyRate(cash, borrows, reserves, reserveFactor *uint256.Int) (*uint256.Int, error)
	// Params reports the annual parameters the model was built from.
	Params() Params
}

// Params is the persisted description of a model. Annual values are Exp
// mantissas, so a 2% base rate is 0.02e18.
type Params struct {
	Kind                  string
	BaseRatePerYear       *uint256.Int
	MultiplierPerYear     *uint256.Int
	JumpMultiplierPerYear *uint256.Int
	Kink                  *uint256.Int
}

// Clone returns a deep copy with nil values replaced by zero.
func (p Params) Clone() Params {
	return Params{
		Kind:                  p.Kind,
		BaseRatePerYear:       exp.Clone(p.BaseRatePerYear),
		MultiplierPerYear:     exp.Clone(p.MultiplierPerYear),
		JumpMultiplierPerYear: exp.Clone(p.JumpMultiplierPerYear),
		Kink:                  exp.Clone(p.Kink),
	}
}

// Validate checks the parameters describe a model New can build.
func (p Params) Validate() error {
	p = p.Clone()
	switch strings.ToLower(strings.TrimSpace(p.Kind)) {
	case KindJumpRate:
		if p.Kink.Gt(exp.Scale()) {
			return fmt.Errorf("%w: kink above 100%%", ErrInvalidParams)
		}
	case KindWhitePaper:
		if !p.JumpMultiplierPerYear.IsZero() || !p.Kink.IsZero() {
			return fmt.Errorf("%w: whitepaper model has no kink", ErrInvalidParams)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidParams, p.Kind)
	}
	return nil
}

// New builds the model described by p.
func New(p Params) (Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p = p.Clone()
	p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
	if p.Kind == KindWhitePaper {
		return NewWhitePaperModel(p.BaseRatePerYear, p.MultiplierPerYear), nil
	}
	return NewJumpRateModel(p.BaseRatePerYear, p.MultiplierPerYear, p.JumpMultiplierPerYear, p.Kink), nil
}

// DefaultParams is a kinked curve with a 2% base, 15% slope to an 80%
// kink and a 300% jump slope beyond it.
func DefaultParams() Params {
	return Params{
		Kind:                  KindJumpRate,
		BaseRatePerYear:       exp.MustMantissa("0.02"),
		MultiplierPerYear:     exp.MustMantissa("0.15"),
		JumpMultiplierPerYear: exp.MustMantissa("3"),
		Kink:                  exp.MustMantissa("0.8"),
	}
}

// Utilization returns borrows / (cash + borrows - reserves). It is zero
// when nothing is borrowed and capped at 100% when the denominator
// vanishes.
func Utilization(cash, borrows, reserves *uint256.Int) (*uint256.Int, error) {
	if borrows == nil || borrows.IsZero() {
		return new(uint256.Int), nil
	}
	gross, err := exp.Add(exp.Clone(cash), borrows)
	if err != nil {
		return nil, err
	}
	denom, err := exp.Sub(gross, exp.Clone(reserves))
	if err != nil {
		return nil, err
	}
	if denom.IsZero() {
		return exp.Scale(), nil
	}
	return exp.Fraction(borrows, denom)
}

func perSecond(annual *uint256.Int) *uint256.Int {
	return new(uint256.Int).Div(exp.Clone(annual), uint256.NewInt(SecondsPerYear))
}

// supplyRate applies the shared supply formula:
// utilization * borrowRate * (1 - reserveFactor).
func supplyRate(m Model, cash, borrows, reserves, reserveFactor *uint256.Int) (*uint256.Int, error) {
	rf := exp.Clone(reserveFactor)
	oneMinusReserve, err := exp.Sub(exp.Scale(), rf)
	if err != nil {
		return nil, err
	}
	borrowRate, err := m.BorrowRate(cash, borrows, reserves)
	if err != nil {
		return nil, err
	}
	rateToPool, err := exp.MulExp(borrowRate, oneMinusReserve)
	if err != nil {
		return nil, err
	}
	util, err := Utilization(cash, borrows, reserves)
	if err != nil {
		return nil, err
	}
	return exp.MulExp(util, rateToPool)
}
