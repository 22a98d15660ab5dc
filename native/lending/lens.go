package lending

import (
	"github.com/holiman/uint256"

	"moneymarket/core/exp"
	"moneymarket/crypto"
	"moneymarket/native/interest"
)

// AccountLiquidity values the account's entered markets at current
// prices after accruing each of them.
func (e *Engine) AccountLiquidity(account crypto.Address) (*Liquidity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.hypotheticalLiquidity(account, crypto.ZeroAddress, new(uint256.Int), new(uint256.Int))
}

// HypotheticalAccountLiquidity values the account as if it redeemed
// redeemShares and borrowed borrowAmount in market.
func (e *Engine) HypotheticalAccountLiquidity(account, market crypto.Address, redeemShares, borrowAmount *uint256.Int) (*Liquidity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.hypotheticalLiquidity(account, market, exp.Clone(redeemShares), exp.Clone(borrowAmount))
}

// Params returns the controller parameters.
func (e *Engine) Params() (*ControllerParams, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.params()
}

// Market returns the stored market record.
func (e *Engine) Market(market crypto.Address) (*Market, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.market(market)
}

// AllMarkets lists every listed market in listing order.
func (e *Engine) AllMarkets() ([]crypto.Address, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.LendingMarketList()
}

// AssetsIn lists the markets the account has entered.
func (e *Engine) AssetsIn(account crypto.Address) ([]crypto.Address, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.LendingAccountAssets(account)
}

func (e *Engine) CheckMembership(account, market crypto.Address) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.isMember(market, account)
}

// AccountSnapshot reports stored balances without accruing.
func (e *Engine) AccountSnapshot(account, market crypto.Address) (*AccountSnapshot, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	m, err := e.market(market)
	if err != nil {
		return nil, err
	}
	return e.snapshot(m, account)
}

func (e *Engine) snapshot(m *Market, account crypto.Address) (*AccountSnapshot, error) {
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
	underlying, err := exp.MulScalarTruncate(rate, pos.Shares)
	if err != nil {
		return nil, err
	}
	member, err := e.isMember(m.Address, account)
	if err != nil {
		return nil, err
	}
	return &AccountSnapshot{
		Market:        m.Address,
		Shares:        pos.Shares,
		BorrowBalance: debt,
		ExchangeRate:  rate,
		Underlying:    underlying,
		Entered:       member,
	}, nil
}

// AccountSnapshots reports the account in every market where it holds
// shares, owes debt or has entered.
func (e *Engine) AccountSnapshots(account crypto.Address) ([]AccountSnapshot, error) {
	markets, err := e.AllMarkets()
	if err != nil {
		return nil, err
	}
	var out []AccountSnapshot
	for _, addr := range markets {
		m, err := e.market(addr)
		if err != nil {
			return nil, err
		}
		snap, err := e.snapshot(m, account)
		if err != nil {
			return nil, err
		}
		if snap.Shares.IsZero() && snap.BorrowBalance.IsZero() && !snap.Entered {
			continue
		}
		out = append(out, *snap)
	}
	return out, nil
}

// MarketSnapshot reports stored totals and current rates.
func (e *Engine) MarketSnapshot(market crypto.Address) (*MarketSnapshot, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	m, err := e.market(market)
	if err != nil {
		return nil, err
	}
	cash, err := e.cash(m)
	if err != nil {
		return nil, err
	}
	rate, err := e.exchangeRate(m)
	if err != nil {
		return nil, err
	}
	model, err := e.model(m)
	if err != nil {
		return nil, err
	}
	borrowRate, err := model.BorrowRate(cash, m.TotalBorrows, m.TotalReserves)
	if err != nil {
		return nil, err
	}
	supplyRate, err := model.SupplyRate(cash, m.TotalBorrows, m.TotalReserves, m.ReserveFactor)
	if err != nil {
		return nil, err
	}
	util, err := interest.Utilization(cash, m.TotalBorrows, m.TotalReserves)
	if err != nil {
		return nil, err
	}
	return &MarketSnapshot{
		Market:              *m,
		Cash:                cash,
		ExchangeRate:        rate,
		BorrowRatePerSecond: borrowRate,
		SupplyRatePerSecond: supplyRate,
		Utilization:         util,
		Price:               e.price(m.Underlying),
	}, nil
}

func (e *Engine) BorrowBalanceStored(account, market crypto.Address) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	m, err := e.market(market)
	if err != nil {
		return nil, err
	}
	pos, err := e.position(m.Address, account)
	if err != nil {
		return nil, err
	}
	return borrowBalance(m, pos)
}

// BorrowBalanceCurrent accrues the market before reading the balance.
func (e *Engine) BorrowBalanceCurrent(account, market crypto.Address) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	m, err := e.accrue(market)
	if err != nil {
		return nil, err
	}
	pos, err := e.position(m.Address, account)
	if err != nil {
		return nil, err
	}
	return borrowBalance(m, pos)
}

func (e *Engine) ExchangeRateStored(market crypto.Address) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	m, err := e.market(market)
	if err != nil {
		return nil, err
	}
	return e.exchangeRate(m)
}

// ExchangeRateCurrent accrues the market before computing the rate.
func (e *Engine) ExchangeRateCurrent(market crypto.Address) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	m, err := e.accrue(market)
	if err != nil {
		return nil, err
	}
	return e.exchangeRate(m)
}

func (e *Engine) BorrowRatePerSecond(market crypto.Address) (*uint256.Int, error) {
	snap, err := e.MarketSnapshot(market)
	if err != nil {
		return nil, err
	}
	return snap.BorrowRatePerSecond, nil
}

func (e *Engine) SupplyRatePerSecond(market crypto.Address) (*uint256.Int, error) {
	snap, err := e.MarketSnapshot(market)
	if err != nil {
		return nil, err
	}
	return snap.SupplyRatePerSecond, nil
}

// LiquidateCalculateSeizeShares previews the collateral shares a repay
// would seize.
func (e *Engine) LiquidateCalculateSeizeShares(market, collateralMarket crypto.Address, repayAmount *uint256.Int) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	borrowed, err := e.market(market)
	if err != nil {
		return nil, err
	}
	collateral, err := e.market(collateralMarket)
	if err != nil {
		return nil, err
	}
	return e.seizeShares(borrowed, collateral, exp.Clone(repayAmount))
}
