package lending

import (
	"fmt"

	"github.com/holiman/uint256"

	"moneymarket/core/events"
	"moneymarket/core/exp"
	"moneymarket/crypto"
)

// EnterMarkets adds each market to the account's collateral and
// liquidity set. Entering a market twice is a no-op.
func (e *Engine) EnterMarkets(account crypto.Address, markets []crypto.Address) error {
	leave, err := e.enter()
	if err != nil {
		return err
	}
	defer leave()
	for _, addr := range markets {
		m, err := e.market(addr)
		if err != nil {
			return e.reject("enter_market", err)
		}
		if err := e.addToMarket(m, account); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) addToMarket(m *Market, account crypto.Address) error {
	assets, err := e.state.LendingAccountAssets(account)
	if err != nil {
		return err
	}
	for _, a := range assets {
		if a == m.Address {
			return nil
		}
	}
	assets = append(assets, m.Address)
	if err := e.state.PutLendingAccountAssets(account, assets); err != nil {
		return err
	}
	e.emit(events.MarketMembership{Market: m.Address, Account: account, Entered: true})
	return nil
}

// ExitMarket removes a market from the account's set. The account must
// hold no debt there and must stay solvent without the collateral.
func (e *Engine) ExitMarket(account, market crypto.Address) error {
	leave, err := e.enter()
	if err != nil {
		return err
	}
	defer leave()
	m, err := e.accrue(market)
	if err != nil {
		return e.reject("exit_market", err)
	}
	pos, err := e.position(m.Address, account)
	if err != nil {
		return err
	}
	debt, err := borrowBalance(m, pos)
	if err != nil {
		return err
	}
	if !debt.IsZero() {
		return e.reject("exit_market", ErrNonzeroBorrowBalance)
	}
	if err := e.redeemAllowedInternal(m, account, pos.Shares); err != nil {
		return e.reject("exit_market", err)
	}
	assets, err := e.state.LendingAccountAssets(account)
	if err != nil {
		return err
	}
	idx := -1
	for i, a := range assets {
		if a == m.Address {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	assets = append(assets[:idx], assets[idx+1:]...)
	if err := e.state.PutLendingAccountAssets(account, assets); err != nil {
		return err
	}
	e.emit(events.MarketMembership{Market: m.Address, Account: account, Entered: false})
	return nil
}

func (e *Engine) isMember(market, account crypto.Address) (bool, error) {
	assets, err := e.state.LendingAccountAssets(account)
	if err != nil {
		return false, err
	}
	for _, a := range assets {
		if a == market {
			return true, nil
		}
	}
	return false, nil
}

// hypotheticalLiquidity values the account's entered markets as if it
// redeemed redeemShares and borrowed borrowAmount in modify. Each market
// is accrued first. Unpriced markets contribute nothing.
func (e *Engine) hypotheticalLiquidity(account, modify crypto.Address, redeemShares, borrowAmount *uint256.Int) (*Liquidity, error) {
	assets, err := e.state.LendingAccountAssets(account)
	if err != nil {
		return nil, err
	}
	sumCollateral := new(uint256.Int)
	sumBorrowPlusEffects := new(uint256.Int)
	for _, addr := range assets {
		m, err := e.accrue(addr)
		if err != nil {
			return nil, err
		}
		pos, err := e.position(m.Address, account)
		if err != nil {
			return nil, err
		}
		debt, err := borrowBalance(m, pos)
		if err != nil {
			return nil, err
		}
		rate, err := e.exchangeRate(m)
		if err != nil {
			return nil, err
		}
		price := e.price(m.Underlying)
		tokensToDenom, err := exp.MulExp3(m.CollateralFactor, rate, price)
		if err != nil {
			return nil, err
		}
		if sumCollateral, err = exp.MulScalarTruncateAdd(tokensToDenom, pos.Shares, sumCollateral); err != nil {
			return nil, err
		}
		if sumBorrowPlusEffects, err = exp.MulScalarTruncateAdd(price, debt, sumBorrowPlusEffects); err != nil {
			return nil, err
		}
		if addr != modify {
			continue
		}
		// Redeeming collateral is charged on the borrow side so the
		// collateral sum never underflows.
		if sumBorrowPlusEffects, err = exp.MulScalarTruncateAdd(tokensToDenom, exp.Clone(redeemShares), sumBorrowPlusEffects); err != nil {
			return nil, err
		}
		if sumBorrowPlusEffects, err = exp.MulScalarTruncateAdd(price, exp.Clone(borrowAmount), sumBorrowPlusEffects); err != nil {
			return nil, err
		}
	}
	if sumCollateral.Gt(sumBorrowPlusEffects) {
		return &Liquidity{Liquidity: new(uint256.Int).Sub(sumCollateral, sumBorrowPlusEffects), Shortfall: new(uint256.Int)}, nil
	}
	return &Liquidity{Liquidity: new(uint256.Int), Shortfall: new(uint256.Int).Sub(sumBorrowPlusEffects, sumCollateral)}, nil
}

func (e *Engine) mintAllowed(m *Market, minter crypto.Address) error {
	if m.MintPaused {
		return ErrMintPaused
	}
	return e.settleSupplier(m, minter)
}

func (e *Engine) redeemAllowed(m *Market, redeemer crypto.Address, shares *uint256.Int) error {
	if err := e.redeemAllowedInternal(m, redeemer, shares); err != nil {
		return err
	}
	return e.settleSupplier(m, redeemer)
}

func (e *Engine) redeemAllowedInternal(m *Market, account crypto.Address, shares *uint256.Int) error {
	member, err := e.isMember(m.Address, account)
	if err != nil {
		return err
	}
	if !member {
		return nil
	}
	liq, err := e.hypotheticalLiquidity(account, m.Address, shares, new(uint256.Int))
	if err != nil {
		return err
	}
	if !liq.Shortfall.IsZero() {
		return fmt.Errorf("%w: shortfall %s", ErrInsufficientLiquidity, liq.Shortfall.Dec())
	}
	return nil
}

func (e *Engine) borrowAllowed(m *Market, borrower crypto.Address, amount *uint256.Int) error {
	if m.BorrowPaused {
		return ErrBorrowPaused
	}
	if err := e.addToMarket(m, borrower); err != nil {
		return err
	}
	if e.price(m.Underlying).IsZero() {
		return fmt.Errorf("%w: %s", ErrPriceUnavailable, m.Underlying)
	}
	if !m.BorrowCap.IsZero() {
		next, err := exp.Add(m.TotalBorrows, amount)
		if err != nil {
			return err
		}
		if !next.Lt(m.BorrowCap) {
			return ErrBorrowCapExceeded
		}
	}
	liq, err := e.hypotheticalLiquidity(borrower, m.Address, new(uint256.Int), amount)
	if err != nil {
		return err
	}
	if !liq.Shortfall.IsZero() {
		return fmt.Errorf("%w: shortfall %s", ErrInsufficientLiquidity, liq.Shortfall.Dec())
	}
	return e.settleBorrower(m, borrower)
}

func (e *Engine) repayAllowed(m *Market, borrower crypto.Address) error {
	return e.settleBorrower(m, borrower)
}

func (e *Engine) liquidateAllowed(borrowed *Market, borrower crypto.Address, repayAmount *uint256.Int) error {
	liq, err := e.hypotheticalLiquidity(borrower, crypto.ZeroAddress, new(uint256.Int), new(uint256.Int))
	if err != nil {
		return err
	}
	if liq.Shortfall.IsZero() {
		return ErrNoShortfall
	}
	pos, err := e.position(borrowed.Address, borrower)
	if err != nil {
		return err
	}
	debt, err := borrowBalance(borrowed, pos)
	if err != nil {
		return err
	}
	params, err := e.params()
	if err != nil {
		return err
	}
	maxClose, err := exp.MulScalarTruncate(params.CloseFactor, debt)
	if err != nil {
		return err
	}
	if repayAmount.Gt(maxClose) {
		return fmt.Errorf("%w: max %s", ErrTooMuchRepay, maxClose.Dec())
	}
	return nil
}

func (e *Engine) seizeAllowed(collateral *Market, liquidator, borrower crypto.Address) error {
	params, err := e.params()
	if err != nil {
		return err
	}
	if params.SeizePaused {
		return ErrSeizePaused
	}
	if err := e.settleSupplier(collateral, borrower); err != nil {
		return err
	}
	return e.settleSupplier(collateral, liquidator)
}

func (e *Engine) transferAllowed(m *Market, src, dst crypto.Address, shares *uint256.Int) error {
	params, err := e.params()
	if err != nil {
		return err
	}
	if params.TransferPaused {
		return ErrTransferPaused
	}
	if err := e.redeemAllowedInternal(m, src, shares); err != nil {
		return err
	}
	if err := e.settleSupplier(m, src); err != nil {
		return err
	}
	return e.settleSupplier(m, dst)
}

// seizeShares converts a repay amount in the borrowed asset into
// collateral shares including the liquidation incentive.
func (e *Engine) seizeShares(borrowed, collateral *Market, repayAmount *uint256.Int) (*uint256.Int, error) {
	priceBorrowed := e.price(borrowed.Underlying)
	priceCollateral := e.price(collateral.Underlying)
	if priceBorrowed.IsZero() || priceCollateral.IsZero() {
		return nil, ErrPriceUnavailable
	}
	params, err := e.params()
	if err != nil {
		return nil, err
	}
	rate, err := e.exchangeRate(collateral)
	if err != nil {
		return nil, err
	}
	numerator, err := exp.MulExp(params.LiquidationIncentive, priceBorrowed)
	if err != nil {
		return nil, err
	}
	denominator, err := exp.MulExp(priceCollateral, rate)
	if err != nil {
		return nil, err
	}
	ratio, err := exp.DivExp(numerator, denominator)
	if err != nil {
		return nil, err
	}
	return exp.MulScalarTruncate(ratio, repayAmount)
}
