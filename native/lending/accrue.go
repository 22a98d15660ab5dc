package lending

import (
	"fmt"

	"github.com/holiman/uint256"

	"moneymarket/core/events"
	"moneymarket/core/exp"
	"moneymarket/crypto"
	"moneymarket/native/interest"
)

// AccrueInterest brings the market's borrow index and totals up to the
// current timestamp. Calling it twice at the same timestamp is a no-op.
func (e *Engine) AccrueInterest(market crypto.Address) error {
	leave, err := e.enter()
	if err != nil {
		return err
	}
	defer leave()
	_, err = e.accrue(market)
	return err
}

// accrue loads, accrues and stores the market.
func (e *Engine) accrue(addr crypto.Address) (*Market, error) {
	m, err := e.market(addr)
	if err != nil {
		return nil, err
	}
	changed, err := e.accrueMarket(m)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := e.state.PutLendingMarket(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (e *Engine) accrueMarket(m *Market) (bool, error) {
	now := e.blockTime
	if m.AccrualTimestamp >= now {
		return false, nil
	}
	cash, err := e.cash(m)
	if err != nil {
		return false, err
	}
	model, err := e.model(m)
	if err != nil {
		return false, err
	}
	borrowRate, err := model.BorrowRate(cash, m.TotalBorrows, m.TotalReserves)
	if err != nil {
		return false, err
	}
	if borrowRate.Gt(maxBorrowRatePerSecond) {
		return false, fmt.Errorf("%w: borrow rate %s is absurdly high", ErrInvalidParameter, borrowRate.Dec())
	}
	delta := uint256.NewInt(now - m.AccrualTimestamp)
	simpleInterestFactor, err := exp.MulScalar(borrowRate, delta)
	if err != nil {
		return false, err
	}
	interestAccumulated, err := exp.MulScalarTruncate(simpleInterestFactor, m.TotalBorrows)
	if err != nil {
		return false, err
	}
	totalBorrows, err := exp.Add(interestAccumulated, m.TotalBorrows)
	if err != nil {
		return false, err
	}
	totalReserves, err := exp.MulScalarTruncateAdd(m.ReserveFactor, interestAccumulated, m.TotalReserves)
	if err != nil {
		return false, err
	}
	borrowIndex, err := exp.MulScalarTruncateAdd(simpleInterestFactor, m.BorrowIndex, m.BorrowIndex)
	if err != nil {
		return false, err
	}

	m.AccrualTimestamp = now
	m.BorrowIndex = borrowIndex
	m.TotalBorrows = totalBorrows
	m.TotalReserves = totalReserves

	e.metrics.ObserveAccrual(m.Symbol, interestAccumulated)
	if util, err := interest.Utilization(cash, totalBorrows, totalReserves); err == nil {
		e.markets.ObserveAccrual(m.Symbol, util, borrowIndex)
	}
	e.emit(events.AccrueInterest{
		Market:              m.Address,
		CashPrior:           cash,
		InterestAccumulated: interestAccumulated,
		BorrowIndex:         exp.Clone(borrowIndex),
		TotalBorrows:        exp.Clone(totalBorrows),
		Timestamp:           now,
	})
	return true, nil
}

// exchangeRate returns (cash + borrows - reserves) / supply, or the
// initial rate while no shares exist.
func (e *Engine) exchangeRate(m *Market) (*uint256.Int, error) {
	if m.TotalSupply.IsZero() {
		return exp.Clone(m.InitialExchangeRate), nil
	}
	cash, err := e.cash(m)
	if err != nil {
		return nil, err
	}
	gross, err := exp.Add(cash, m.TotalBorrows)
	if err != nil {
		return nil, err
	}
	net, err := exp.Sub(gross, m.TotalReserves)
	if err != nil {
		return nil, err
	}
	return exp.Fraction(net, m.TotalSupply)
}

// borrowBalance returns principal * marketIndex / accountIndex.
func borrowBalance(m *Market, p *Position) (*uint256.Int, error) {
	if p.BorrowPrincipal.IsZero() || p.InterestIndex.IsZero() {
		return new(uint256.Int), nil
	}
	product, err := exp.Mul(p.BorrowPrincipal, m.BorrowIndex)
	if err != nil {
		return nil, err
	}
	return exp.Div(product, p.InterestIndex)
}
