package interest

import (
	"github.com/holiman/uint256"

	"moneymarket/core/exp"
)

// JumpRateModel is linear in utilization up to the kink and switches to
// a steeper slope above it.
type JumpRateModel struct {
	params Params

	basePerSecond       *uint256.Int
	multiplierPerSecond *uint256.Int
	jumpPerSecond       *uint256.Int
	kink                *uint256.Int
}

// NewJumpRateModel takes annual Exp mantissas.
func NewJumpRateModel(baseRatePerYear, multiplierPerYear, jumpMultiplierPerYear, kink *uint256.Int) *JumpRateModel {
	return &JumpRateModel{
		params: Params{
			Kind:                  KindJumpRate,
			BaseRatePerYear:       exp.Clone(baseRatePerYear),
			MultiplierPerYear:     exp.Clone(multiplierPerYear),
			JumpMultiplierPerYear: exp.Clone(jumpMultiplierPerYear),
			Kink:                  exp.Clone(kink),
		},
		basePerSecond:       perSecond(baseRatePerYear),
		multiplierPerSecond: perSecond(multiplierPerYear),
		jumpPerSecond:       perSecond(jumpMultiplierPerYear),
		kink:                exp.Clone(kink),
	}
}

func (m *JumpRateModel) Params() Params { return m.params.Clone() }

func (m *JumpRateModel) BorrowRate(cash, borrows, reserves *uint256.Int) (*uint256.Int, error) {
	util, err := Utilization(cash, borrows, reserves)
	if err != nil {
		return nil, err
	}
	if !util.Gt(m.kink) {
		return exp.MulScalarTruncateAdd(util, m.multiplierPerSecond, m.basePerSecond)
	}
	normal, err := exp.MulScalarTruncateAdd(m.kink, m.multiplierPerSecond, m.basePerSecond)
	if err != nil {
		return nil, err
	}
	excess := new(uint256.Int).Sub(util, m.kink)
	return exp.MulScalarTruncateAdd(excess, m.jumpPerSecond, normal)
}

func (m *JumpRateModel) SupplyRate(cash, borrows, reserves, reserveFactor *uint256.Int) (*uint256.Int, error) {
	return supplyRate(m, cash, borrows, reserves, reserveFactor)
}
