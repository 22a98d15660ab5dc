package lending

import (
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"moneymarket/core/events"
	"moneymarket/core/exp"
	"moneymarket/crypto"
)

// Mint supplies amount of the underlying and issues shares at the
// current exchange rate. It returns the shares minted.
func (e *Engine) Mint(minter, market crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	leave, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer leave()
	amount = exp.Clone(amount)

	m, err := e.accrue(market)
	if err != nil {
		return nil, e.reject("mint", err)
	}
	if err := e.mintAllowed(m, minter); err != nil {
		return nil, e.reject("mint", err)
	}
	rate, err := e.exchangeRate(m)
	if err != nil {
		return nil, err
	}
	shares, err := exp.DivScalarByExpTruncate(amount, rate)
	if err != nil {
		return nil, err
	}
	pos, err := e.position(m.Address, minter)
	if err != nil {
		return nil, err
	}
	totalSupply, err := exp.Add(m.TotalSupply, shares)
	if err != nil {
		return nil, err
	}
	balance, err := exp.Add(pos.Shares, shares)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(m.Underlying, minter, m.Address, amount); err != nil {
		return nil, e.reject("mint", fmt.Errorf("%w: %v", ErrInsufficientBalance, err))
	}
	m.TotalSupply = totalSupply
	pos.Shares = balance
	if err := e.storeMarketAndPosition(m, pos); err != nil {
		return nil, err
	}
	e.metrics.ObserveAction("mint", m.Symbol)
	e.emit(events.Mint{Market: m.Address, Minter: minter, Amount: amount, Shares: exp.Clone(shares)})
	e.emit(events.ShareTransfer{Market: m.Address, From: m.Address, To: minter, Shares: exp.Clone(shares)})
	return shares, nil
}

// Redeem burns shares for underlying. It returns the amount paid out.
func (e *Engine) Redeem(redeemer, market crypto.Address, shares *uint256.Int) (*uint256.Int, error) {
	leave, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer leave()
	m, err := e.accrue(market)
	if err != nil {
		return nil, e.reject("redeem", err)
	}
	rate, err := e.exchangeRate(m)
	if err != nil {
		return nil, err
	}
	shares = exp.Clone(shares)
	amount, err := exp.MulScalarTruncate(rate, shares)
	if err != nil {
		return nil, err
	}
	if err := e.redeemFresh(m, redeemer, shares, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// RedeemUnderlying burns however many shares are worth amount of the
// underlying. It returns the shares burned.
func (e *Engine) RedeemUnderlying(redeemer, market crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	leave, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer leave()
	m, err := e.accrue(market)
	if err != nil {
		return nil, e.reject("redeem", err)
	}
	rate, err := e.exchangeRate(m)
	if err != nil {
		return nil, err
	}
	amount = exp.Clone(amount)
	shares, err := exp.DivScalarByExpTruncate(amount, rate)
	if err != nil {
		return nil, err
	}
	if err := e.redeemFresh(m, redeemer, shares, amount); err != nil {
		return nil, err
	}
	return shares, nil
}

func (e *Engine) redeemFresh(m *Market, redeemer crypto.Address, shares, amount *uint256.Int) error {
	if err := e.redeemAllowed(m, redeemer, shares); err != nil {
		return e.reject("redeem", err)
	}
	if shares.IsZero() && !amount.IsZero() {
		return e.reject("redeem", fmt.Errorf("%w: redeem rounds to zero shares", ErrInvalidParameter))
	}
	pos, err := e.position(m.Address, redeemer)
	if err != nil {
		return err
	}
	if pos.Shares.Lt(shares) {
		return e.reject("redeem", fmt.Errorf("%w: holds %s shares, needs %s", ErrInsufficientBalance, pos.Shares.Dec(), shares.Dec()))
	}
	totalSupply, err := exp.Sub(m.TotalSupply, shares)
	if err != nil {
		return err
	}
	cash, err := e.cash(m)
	if err != nil {
		return err
	}
	if cash.Lt(amount) {
		return e.reject("redeem", ErrInsufficientCash)
	}
	m.TotalSupply = totalSupply
	pos.Shares = new(uint256.Int).Sub(pos.Shares, shares)
	if err := e.storeMarketAndPosition(m, pos); err != nil {
		return err
	}
	if err := e.ledger.Transfer(m.Underlying, m.Address, redeemer, amount); err != nil {
		return err
	}
	e.metrics.ObserveAction("redeem", m.Symbol)
	e.emit(events.ShareTransfer{Market: m.Address, From: redeemer, To: m.Address, Shares: exp.Clone(shares)})
	e.emit(events.Redeem{Market: m.Address, Redeemer: redeemer, Amount: exp.Clone(amount), Shares: exp.Clone(shares)})
	return nil
}

// Borrow lends amount of the underlying against the borrower's
// collateral.
func (e *Engine) Borrow(borrower, market crypto.Address, amount *uint256.Int) error {
	leave, err := e.enter()
	if err != nil {
		return err
	}
	defer leave()
	amount = exp.Clone(amount)
	m, err := e.accrue(market)
	if err != nil {
		return e.reject("borrow", err)
	}
	if err := e.borrowAllowed(m, borrower, amount); err != nil {
		return e.reject("borrow", err)
	}
	cash, err := e.cash(m)
	if err != nil {
		return err
	}
	if cash.Lt(amount) {
		return e.reject("borrow", ErrInsufficientCash)
	}
	pos, err := e.position(m.Address, borrower)
	if err != nil {
		return err
	}
	debt, err := borrowBalance(m, pos)
	if err != nil {
		return err
	}
	accountBorrows, err := exp.Add(debt, amount)
	if err != nil {
		return err
	}
	totalBorrows, err := exp.Add(m.TotalBorrows, amount)
	if err != nil {
		return err
	}
	pos.BorrowPrincipal = accountBorrows
	pos.InterestIndex = exp.Clone(m.BorrowIndex)
	m.TotalBorrows = totalBorrows
	if err := e.storeMarketAndPosition(m, pos); err != nil {
		return err
	}
	if err := e.ledger.Transfer(m.Underlying, m.Address, borrower, amount); err != nil {
		return err
	}
	e.metrics.ObserveAction("borrow", m.Symbol)
	e.emit(events.Borrow{
		Market:         m.Address,
		Borrower:       borrower,
		Amount:         amount,
		AccountBorrows: exp.Clone(accountBorrows),
		TotalBorrows:   exp.Clone(totalBorrows),
	})
	return nil
}

// RepayBorrow repays the payer's own debt. The max uint256 amount repays
// everything; any other amount is capped at the outstanding debt.
func (e *Engine) RepayBorrow(payer, market crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	return e.RepayBorrowBehalf(payer, payer, market, amount)
}

// RepayBorrowBehalf repays borrower's debt with the payer's funds.
func (e *Engine) RepayBorrowBehalf(payer, borrower, market crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	leave, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer leave()
	m, err := e.accrue(market)
	if err != nil {
		return nil, e.reject("repay", err)
	}
	repaid, err := e.repayFresh(m, payer, borrower, exp.Clone(amount))
	if err != nil {
		return nil, e.reject("repay", err)
	}
	return repaid, nil
}

func (e *Engine) repayFresh(m *Market, payer, borrower crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := e.repayAllowed(m, borrower); err != nil {
		return nil, err
	}
	pos, err := e.position(m.Address, borrower)
	if err != nil {
		return nil, err
	}
	debt, err := borrowBalance(m, pos)
	if err != nil {
		return nil, err
	}
	repay := exp.Min(amount, debt)
	if err := e.ledger.Transfer(m.Underlying, payer, m.Address, repay); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	}
	accountBorrows := new(uint256.Int).Sub(debt, repay)
	totalBorrows := new(uint256.Int)
	if m.TotalBorrows.Gt(repay) {
		totalBorrows.Sub(m.TotalBorrows, repay)
	}
	pos.BorrowPrincipal = accountBorrows
	pos.InterestIndex = exp.Clone(m.BorrowIndex)
	m.TotalBorrows = totalBorrows
	if err := e.storeMarketAndPosition(m, pos); err != nil {
		return nil, err
	}
	e.metrics.ObserveAction("repay", m.Symbol)
	e.emit(events.RepayBorrow{
		Market:         m.Address,
		Payer:          payer,
		Borrower:       borrower,
		Amount:         exp.Clone(repay),
		AccountBorrows: exp.Clone(accountBorrows),
		TotalBorrows:   exp.Clone(totalBorrows),
	})
	return repay, nil
}

// LiquidateBorrow repays part of an underwater borrower's debt in
// market and seizes discounted collateral shares in collateralMarket.
// It returns the amount repaid and the shares seized.
func (e *Engine) LiquidateBorrow(liquidator, borrower, market, collateralMarket crypto.Address, repayAmount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	leave, err := e.enter()
	if err != nil {
		return nil, nil, err
	}
	defer leave()
	repayAmount = exp.Clone(repayAmount)
	borrowed, err := e.accrue(market)
	if err != nil {
		return nil, nil, e.reject("liquidate", err)
	}
	if _, err := e.accrue(collateralMarket); err != nil {
		return nil, nil, e.reject("liquidate", err)
	}
	if liquidator == borrower {
		return nil, nil, e.reject("liquidate", fmt.Errorf("%w: liquidator is borrower", ErrInvalidParameter))
	}
	if repayAmount.IsZero() || exp.IsMax(repayAmount) {
		return nil, nil, e.reject("liquidate", fmt.Errorf("%w: repay amount", ErrInvalidParameter))
	}
	if err := e.liquidateAllowed(borrowed, borrower, repayAmount); err != nil {
		return nil, nil, e.reject("liquidate", err)
	}
	repaid, err := e.repayFresh(borrowed, liquidator, borrower, repayAmount)
	if err != nil {
		return nil, nil, e.reject("liquidate", err)
	}
	// Reload after the repay leg so a same-market liquidation sees it.
	collateral, err := e.market(collateralMarket)
	if err != nil {
		return nil, nil, err
	}
	seize, err := e.seizeShares(borrowed, collateral, repaid)
	if err != nil {
		return nil, nil, e.reject("liquidate", err)
	}
	borrowerPos, err := e.position(collateral.Address, borrower)
	if err != nil {
		return nil, nil, err
	}
	if seize.Gt(borrowerPos.Shares) {
		return nil, nil, e.reject("liquidate", ErrTooMuchSeize)
	}
	if err := e.seizeInternal(collateral, liquidator, borrower, seize); err != nil {
		return nil, nil, e.reject("liquidate", err)
	}
	e.logger.Info("borrow liquidated",
		slog.String("borrower", borrower.String()),
		slog.String("liquidator", liquidator.String()),
		slog.String("market", borrowed.Symbol),
		slog.String("collateral", collateral.Symbol),
		slog.String("repaid", repaid.Dec()),
		slog.String("seized", seize.Dec()))
	e.metrics.ObserveAction("liquidate", borrowed.Symbol)
	e.emit(events.LiquidateBorrow{
		Market:           borrowed.Address,
		Liquidator:       liquidator,
		Borrower:         borrower,
		RepayAmount:      exp.Clone(repaid),
		CollateralMarket: collateral.Address,
		SeizeShares:      exp.Clone(seize),
	})
	return repaid, seize, nil
}

// seizeInternal is the collateral leg of a liquidation. It has no public
// entry point of its own.
func (e *Engine) seizeInternal(collateral *Market, liquidator, borrower crypto.Address, shares *uint256.Int) error {
	if err := e.seizeAllowed(collateral, liquidator, borrower); err != nil {
		return err
	}
	return e.moveShares(collateral, borrower, liquidator, shares)
}

// Transfer moves market shares between accounts. The sender must stay
// solvent without them.
func (e *Engine) Transfer(from, to, market crypto.Address, shares *uint256.Int) error {
	leave, err := e.enter()
	if err != nil {
		return err
	}
	defer leave()
	shares = exp.Clone(shares)
	if from == to {
		return e.reject("transfer", fmt.Errorf("%w: self transfer", ErrInvalidParameter))
	}
	m, err := e.accrue(market)
	if err != nil {
		return e.reject("transfer", err)
	}
	if err := e.transferAllowed(m, from, to, shares); err != nil {
		return e.reject("transfer", err)
	}
	if err := e.moveShares(m, from, to, shares); err != nil {
		return e.reject("transfer", err)
	}
	e.metrics.ObserveAction("transfer", m.Symbol)
	return nil
}

func (e *Engine) moveShares(m *Market, from, to crypto.Address, shares *uint256.Int) error {
	src, err := e.position(m.Address, from)
	if err != nil {
		return err
	}
	if src.Shares.Lt(shares) {
		return fmt.Errorf("%w: holds %s shares, needs %s", ErrInsufficientBalance, src.Shares.Dec(), shares.Dec())
	}
	dst, err := e.position(m.Address, to)
	if err != nil {
		return err
	}
	dstShares, err := exp.Add(dst.Shares, shares)
	if err != nil {
		return err
	}
	src.Shares = new(uint256.Int).Sub(src.Shares, shares)
	dst.Shares = dstShares
	if err := e.state.PutLendingPosition(src); err != nil {
		return err
	}
	if err := e.state.PutLendingPosition(dst); err != nil {
		return err
	}
	e.emit(events.ShareTransfer{Market: m.Address, From: from, To: to, Shares: exp.Clone(shares)})
	return nil
}

func (e *Engine) storeMarketAndPosition(m *Market, pos *Position) error {
	if err := e.state.PutLendingMarket(m); err != nil {
		return err
	}
	if err := e.state.PutLendingPosition(pos); err != nil {
		return err
	}
	e.metrics.SetMarketTotals(m.Symbol, m.TotalSupply, m.TotalBorrows, m.TotalReserves)
	if rate, err := e.exchangeRate(m); err == nil {
		e.markets.SetExchangeRate(m.Symbol, rate)
	}
	return nil
}
