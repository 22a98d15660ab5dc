package interest

import (
	"github.com/holiman/uint256"

	"moneymarket/core/exp"
)

// WhitePaperModel is the single-slope curve: base + utilization * multiplier.
type WhitePaperModel struct {
	params Params

	basePerSecond       *uint256.Int
	multiplierPerSecond *uint256.Int
}

func NewWhitePaperModel(baseRatePerYear, multiplierPerYear *uint256.Int) *WhitePaperModel {
	return &WhitePaperModel{
		params: Params{
			Kind:                  KindWhitePaper,
			BaseRatePerYear:       exp.Clone(baseRatePerYear),
			MultiplierPerYear:     exp.Clone(multiplierPerYear),
			JumpMultiplierPerYear: new(uint256.Int),
			Kink:                  new(uint256.Int),
		},
		basePerSecond:       perSecond(baseRatePerYear),
		multiplierPerSecond: perSecond(multiplierPerYear),
	}
}

func (m *WhitePaperModel) Params() Params { return m.params.Clone() }

func (m *WhitePaperModel) BorrowRate(cash, borrows, reserves *uint256.Int) (*uint256.Int, error) {
	util, err := Utilization(cash, borrows, reserves)
	if err != nil {
		return nil, err
	}
	return exp.MulScalarTruncateAdd(util, m.multiplierPerSecond, m.basePerSecond)
}

func (m *WhitePaperModel) SupplyRate(cash, borrows, reserves, reserveFactor *uint256.Int) (*uint256.Int, error) {
	return supplyRate(m, cash, borrows, reserves, reserveFactor)
}
