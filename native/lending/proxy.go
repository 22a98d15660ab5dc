package lending

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"moneymarket/core/events"
	"moneymarket/crypto"
	"moneymarket/native/interest"
	"moneymarket/native/oracle"
)

// Protocol is the stable public surface of the money market. The Proxy
// forwards to an implementation that can be swapped by the admin.
type Protocol interface {
	SetBlock(height, timestamp uint64)
	Initialize(params ControllerParams) error

	AccrueInterest(market crypto.Address) error
	Mint(minter, market crypto.Address, amount *uint256.Int) (*uint256.Int, error)
	Redeem(redeemer, market crypto.Address, shares *uint256.Int) (*uint256.Int, error)
	RedeemUnderlying(redeemer, market crypto.Address, amount *uint256.Int) (*uint256.Int, error)
	Borrow(borrower, market crypto.Address, amount *uint256.Int) error
	RepayBorrow(payer, market crypto.Address, amount *uint256.Int) (*uint256.Int, error)
	RepayBorrowBehalf(payer, borrower, market crypto.Address, amount *uint256.Int) (*uint256.Int, error)
	LiquidateBorrow(liquidator, borrower, market, collateralMarket crypto.Address, repayAmount *uint256.Int) (*uint256.Int, *uint256.Int, error)
	Transfer(from, to, market crypto.Address, shares *uint256.Int) error
	EnterMarkets(account crypto.Address, markets []crypto.Address) error
	ExitMarket(account, market crypto.Address) error
	ClaimReward(rt RewardType, holder crypto.Address) error
	ClaimRewardFor(rt RewardType, holders, markets []crypto.Address, borrowers, suppliers bool) error
	UpdateContributorRewards(contributor crypto.Address, rt RewardType) error

	SetPendingAdmin(caller, pending crypto.Address) error
	AcceptAdmin(caller crypto.Address) error
	SetPriceOracle(caller crypto.Address, o oracle.PriceOracle) error
	SetCloseFactor(caller crypto.Address, closeFactor *uint256.Int) error
	SetLiquidationIncentive(caller crypto.Address, incentive *uint256.Int) error
	SetCollateralFactor(caller, market crypto.Address, factor *uint256.Int) error
	SupportMarket(caller crypto.Address, cfg MarketConfig) (crypto.Address, error)
	SetMarketBorrowCaps(caller crypto.Address, markets []crypto.Address, caps []*uint256.Int) error
	SetBorrowCapGuardian(caller, guardian crypto.Address) error
	SetPauseGuardian(caller, guardian crypto.Address) error
	SetMintPaused(caller, market crypto.Address, paused bool) error
	SetBorrowPaused(caller, market crypto.Address, paused bool) error
	SetTransferPaused(caller crypto.Address, paused bool) error
	SetSeizePaused(caller crypto.Address, paused bool) error
	SetRewardSpeed(caller crypto.Address, rt RewardType, market crypto.Address, supplySpeed, borrowSpeed *uint256.Int) error
	SetContributorRewardSpeed(caller crypto.Address, rt RewardType, contributor crypto.Address, speed *uint256.Int) error
	GrantReward(caller crypto.Address, rt RewardType, recipient crypto.Address, amount *uint256.Int) error
	SetReserveFactor(caller, market crypto.Address, factor *uint256.Int) error
	SetInterestRateModel(caller, market crypto.Address, params interest.Params) error
	AddReserves(caller, market crypto.Address, amount *uint256.Int) error
	ReduceReserves(caller, market crypto.Address, amount *uint256.Int) error

	AccountLiquidity(account crypto.Address) (*Liquidity, error)
	HypotheticalAccountLiquidity(account, market crypto.Address, redeemShares, borrowAmount *uint256.Int) (*Liquidity, error)
	Params() (*ControllerParams, error)
	Market(market crypto.Address) (*Market, error)
	AllMarkets() ([]crypto.Address, error)
	AssetsIn(account crypto.Address) ([]crypto.Address, error)
	CheckMembership(account, market crypto.Address) (bool, error)
	AccountSnapshot(account, market crypto.Address) (*AccountSnapshot, error)
	AccountSnapshots(account crypto.Address) ([]AccountSnapshot, error)
	MarketSnapshot(market crypto.Address) (*MarketSnapshot, error)
	BorrowBalanceStored(account, market crypto.Address) (*uint256.Int, error)
	BorrowBalanceCurrent(account, market crypto.Address) (*uint256.Int, error)
	ExchangeRateStored(market crypto.Address) (*uint256.Int, error)
	ExchangeRateCurrent(market crypto.Address) (*uint256.Int, error)
	BorrowRatePerSecond(market crypto.Address) (*uint256.Int, error)
	SupplyRatePerSecond(market crypto.Address) (*uint256.Int, error)
	LiquidateCalculateSeizeShares(market, collateralMarket crypto.Address, repayAmount *uint256.Int) (*uint256.Int, error)
	RewardAccrued(rt RewardType, account crypto.Address) (*uint256.Int, error)
	RewardMarketState(rt RewardType, market crypto.Address) (*RewardMarketState, error)
	ContributorReward(rt RewardType, contributor crypto.Address) (*ContributorReward, error)
}

var _ Protocol = (*Engine)(nil)
var _ Protocol = (*Proxy)(nil)

// Journal scopes state writes so a failed action leaves no trace.
type Journal interface {
	Begin()
	Commit() error
	Rollback()
}

// Proxy serialises calls into the implementation and runs each one in a
// journal scope. Mutations commit on success and roll back on error;
// queries always roll back so accrual done for a read is not persisted.
type Proxy struct {
	mu      sync.Mutex
	journal Journal
	impl    Protocol
	pending Protocol
	emitter events.Emitter

	height    uint64
	timestamp uint64
}

func NewProxy(journal Journal, impl Protocol) *Proxy {
	return &Proxy{journal: journal, impl: impl, emitter: events.NoopEmitter{}}
}

func (p *Proxy) SetEmitter(emitter events.Emitter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	p.emitter = emitter
}

// Implementation returns the active implementation.
func (p *Proxy) Implementation() Protocol {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.impl
}

// PendingImplementation returns the implementation awaiting acceptance.
func (p *Proxy) PendingImplementation() Protocol {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

func (p *Proxy) requireAdminLocked(caller crypto.Address) error {
	if p.impl == nil {
		return ErrNoImplementation
	}
	params, err := p.impl.Params()
	if err != nil {
		return err
	}
	if params.Admin.IsZero() || caller != params.Admin {
		return ErrUnauthorized
	}
	return nil
}

// SetPendingImplementation stages next for a later AcceptImplementation.
func (p *Proxy) SetPendingImplementation(caller crypto.Address, next Protocol) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireAdminLocked(caller); err != nil {
		return err
	}
	previous := describe(p.pending)
	p.pending = next
	p.emitter.Emit(events.ImplementationUpdated{Pending: true, Previous: previous, Next: describe(next)})
	return nil
}

// AcceptImplementation activates the pending implementation.
func (p *Proxy) AcceptImplementation(caller crypto.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireAdminLocked(caller); err != nil {
		return err
	}
	if p.pending == nil {
		return fmt.Errorf("%w: no pending implementation", ErrNoImplementation)
	}
	previous := describe(p.impl)
	p.impl = p.pending
	p.pending = nil
	p.impl.SetBlock(p.height, p.timestamp)
	p.emitter.Emit(events.ImplementationUpdated{Previous: previous, Next: describe(p.impl)})
	return nil
}

func describe(impl Protocol) string {
	if impl == nil {
		return ""
	}
	return fmt.Sprintf("%T@%p", impl, impl)
}

func (p *Proxy) run(commit bool, fn func(Protocol) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.impl == nil {
		return ErrNoImplementation
	}
	if p.journal == nil {
		return fn(p.impl)
	}
	p.journal.Begin()
	if err := fn(p.impl); err != nil {
		p.journal.Rollback()
		return err
	}
	if !commit {
		p.journal.Rollback()
		return nil
	}
	return p.journal.Commit()
}

func mutate[T any](p *Proxy, fn func(Protocol) (T, error)) (T, error) {
	var out T
	err := p.run(true, func(impl Protocol) error {
		var err error
		out, err = fn(impl)
		return err
	})
	return out, err
}

func query[T any](p *Proxy, fn func(Protocol) (T, error)) (T, error) {
	var out T
	err := p.run(false, func(impl Protocol) error {
		var err error
		out, err = fn(impl)
		return err
	})
	return out, err
}

func (p *Proxy) SetBlock(height, timestamp uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.height, p.timestamp = height, timestamp
	if p.impl != nil {
		p.impl.SetBlock(height, timestamp)
	}
}

func (p *Proxy) Initialize(params ControllerParams) error {
	return p.run(true, func(impl Protocol) error { return impl.Initialize(params) })
}

func (p *Proxy) AccrueInterest(market crypto.Address) error {
	return p.run(true, func(impl Protocol) error { return impl.AccrueInterest(market) })
}

func (p *Proxy) Mint(minter, market crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	return mutate(p, func(impl Protocol) (*uint256.Int, error) { return impl.Mint(minter, market, amount) })
}

func (p *Proxy) Redeem(redeemer, market crypto.Address, shares *uint256.Int) (*uint256.Int, error) {
	return mutate(p, func(impl Protocol) (*uint256.Int, error) { return impl.Redeem(redeemer, market, shares) })
}

func (p *Proxy) RedeemUnderlying(redeemer, market crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	return mutate(p, func(impl Protocol) (*uint256.Int, error) { return impl.RedeemUnderlying(redeemer, market, amount) })
}

func (p *Proxy) Borrow(borrower, market crypto.Address, amount *uint256.Int) error {
	return p.run(true, func(impl Protocol) error { return impl.Borrow(borrower, market, amount) })
}

func (p *Proxy) RepayBorrow(payer, market crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	return mutate(p, func(impl Protocol) (*uint256.Int, error) { return impl.RepayBorrow(payer, market, amount) })
}

func (p *Proxy) RepayBorrowBehalf(payer, borrower, market crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	return mutate(p, func(impl Protocol) (*uint256.Int, error) {
		return impl.RepayBorrowBehalf(payer, borrower, market, amount)
	})
}

func (p *Proxy) LiquidateBorrow(liquidator, borrower, market, collateralMarket crypto.Address, repayAmount *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	var repaid, seized *uint256.Int
	err := p.run(true, func(impl Protocol) error {
		var err error
		repaid, seized, err = impl.LiquidateBorrow(liquidator, borrower, market, collateralMarket, repayAmount)
		return err
	})
	return repaid, seized, err
}

func (p *Proxy) Transfer(from, to, market crypto.Address, shares *uint256.Int) error {
	return p.run(true, func(impl Protocol) error { return impl.Transfer(from, to, market, shares) })
}

func (p *Proxy) EnterMarkets(account crypto.Address, markets []crypto.Address) error {
	return p.run(true, func(impl Protocol) error { return impl.EnterMarkets(account, markets) })
}

func (p *Proxy) ExitMarket(account, market crypto.Address) error {
	return p.run(true, func(impl Protocol) error { return impl.ExitMarket(account, market) })
}

func (p *Proxy) ClaimReward(rt RewardType, holder crypto.Address) error {
	return p.run(true, func(impl Protocol) error { return impl.ClaimReward(rt, holder) })
}

func (p *Proxy) ClaimRewardFor(rt RewardType, holders, markets []crypto.Address, borrowers, suppliers bool) error {
	return p.run(true, func(impl Protocol) error {
		return impl.ClaimRewardFor(rt, holders, markets, borrowers, suppliers)
	})
}

func (p *Proxy) SetPendingAdmin(caller, pending crypto.Address) error {
	return p.run(true, func(impl Protocol) error { return impl.SetPendingAdmin(caller, pending) })
}

func (p *Proxy) AcceptAdmin(caller crypto.Address) error {
	return p.run(true, func(impl Protocol) error { return impl.AcceptAdmin(caller) })
}

func (p *Proxy) SetPriceOracle(caller crypto.Address, o oracle.PriceOracle) error {
	return p.run(true, func(impl Protocol) error { return impl.SetPriceOracle(caller, o) })
}

func (p *Proxy) SetCloseFactor(caller crypto.Address, closeFactor *uint256.Int) error {
	return p.run(true, func(impl Protocol) error { return impl.SetCloseFactor(caller, closeFactor) })
}

func (p *Proxy) SetLiquidationIncentive(caller crypto.Address, incentive *uint256.Int) error {
	return p.run(true, func(impl Protocol) error { return impl.SetLiquidationIncentive(caller, incentive) })
}

func (p *Proxy) SetCollateralFactor(caller, market crypto.Address, factor *uint256.Int) error {
	return p.run(true, func(impl Protocol) error { return impl.SetCollateralFactor(caller, market, factor) })
}

func (p *Proxy) SupportMarket(caller crypto.Address, cfg MarketConfig) (crypto.Address, error) {
	return mutate(p, func(impl Protocol) (crypto.Address, error) { return impl.SupportMarket(caller, cfg) })
}

func (p *Proxy) SetMarketBorrowCaps(caller crypto.Address, markets []crypto.Address, caps []*uint256.Int) error {
	return p.run(true, func(impl Protocol) error { return impl.SetMarketBorrowCaps(caller, markets, caps) })
}

func (p *Proxy) SetBorrowCapGuardian(caller, guardian crypto.Address) error {
	return p.run(true, func(impl Protocol) error { return impl.SetBorrowCapGuardian(caller, guardian) })
}

func (p *Proxy) SetPauseGuardian(caller, guardian crypto.Address) error {
	return p.run(true, func(impl Protocol) error { return impl.SetPauseGuardian(caller, guardian) })
}

func (p *Proxy) SetMintPaused(caller, market crypto.Address, paused bool) error {
	return p.run(true, func(impl Protocol) error { return impl.SetMintPaused(caller, market, paused) })
}

func (p *Proxy) SetBorrowPaused(caller, market crypto.Address, paused bool) error {
	return p.run(true, func(impl Protocol) error { return impl.SetBorrowPaused(caller, market, paused) })
}

func (p *Proxy) SetTransferPaused(caller crypto.Address, paused bool) error {
	return p.run(true, func(impl Protocol) error { return impl.SetTransferPaused(caller, paused) })
}

func (p *Proxy) SetSeizePaused(caller crypto.Address, paused bool) error {
	return p.run(true, func(impl Protocol) error { return impl.SetSeizePaused(caller, paused) })
}

func (p *Proxy) SetRewardSpeed(caller crypto.Address, rt RewardType, market crypto.Address, supplySpeed, borrowSpeed *uint256.Int) error {
	return p.run(true, func(impl Protocol) error {
		return impl.SetRewardSpeed(caller, rt, market, supplySpeed, borrowSpeed)
	})
}

func (p *Proxy) UpdateContributorRewards(contributor crypto.Address, rt RewardType) error {
	return p.run(true, func(impl Protocol) error { return impl.UpdateContributorRewards(contributor, rt) })
}

func (p *Proxy) SetContributorRewardSpeed(caller crypto.Address, rt RewardType, contributor crypto.Address, speed *uint256.Int) error {
	return p.run(true, func(impl Protocol) error {
		return impl.SetContributorRewardSpeed(caller, rt, contributor, speed)
	})
}

func (p *Proxy) GrantReward(caller crypto.Address, rt RewardType, recipient crypto.Address, amount *uint256.Int) error {
	return p.run(true, func(impl Protocol) error { return impl.GrantReward(caller, rt, recipient, amount) })
}

func (p *Proxy) SetReserveFactor(caller, market crypto.Address, factor *uint256.Int) error {
	return p.run(true, func(impl Protocol) error { return impl.SetReserveFactor(caller, market, factor) })
}

func (p *Proxy) SetInterestRateModel(caller, market crypto.Address, params interest.Params) error {
	return p.run(true, func(impl Protocol) error { return impl.SetInterestRateModel(caller, market, params) })
}

func (p *Proxy) AddReserves(caller, market crypto.Address, amount *uint256.Int) error {
	return p.run(true, func(impl Protocol) error { return impl.AddReserves(caller, market, amount) })
}

func (p *Proxy) ReduceReserves(caller, market crypto.Address, amount *uint256.Int) error {
	return p.run(true, func(impl Protocol) error { return impl.ReduceReserves(caller, market, amount) })
}

func (p *Proxy) AccountLiquidity(account crypto.Address) (*Liquidity, error) {
	return query(p, func(impl Protocol) (*Liquidity, error) { return impl.AccountLiquidity(account) })
}

func (p *Proxy) HypotheticalAccountLiquidity(account, market crypto.Address, redeemShares, borrowAmount *uint256.Int) (*Liquidity, error) {
	return query(p, func(impl Protocol) (*Liquidity, error) {
		return impl.HypotheticalAccountLiquidity(account, market, redeemShares, borrowAmount)
	})
}

func (p *Proxy) Params() (*ControllerParams, error) {
	return query(p, func(impl Protocol) (*ControllerParams, error) { return impl.Params() })
}

func (p *Proxy) Market(market crypto.Address) (*Market, error) {
	return query(p, func(impl Protocol) (*Market, error) { return impl.Market(market) })
}

func (p *Proxy) AllMarkets() ([]crypto.Address, error) {
	return query(p, func(impl Protocol) ([]crypto.Address, error) { return impl.AllMarkets() })
}

func (p *Proxy) AssetsIn(account crypto.Address) ([]crypto.Address, error) {
	return query(p, func(impl Protocol) ([]crypto.Address, error) { return impl.AssetsIn(account) })
}

func (p *Proxy) CheckMembership(account, market crypto.Address) (bool, error) {
	return query(p, func(impl Protocol) (bool, error) { return impl.CheckMembership(account, market) })
}

func (p *Proxy) AccountSnapshot(account, market crypto.Address) (*AccountSnapshot, error) {
	return query(p, func(impl Protocol) (*AccountSnapshot, error) { return impl.AccountSnapshot(account, market) })
}

func (p *Proxy) AccountSnapshots(account crypto.Address) ([]AccountSnapshot, error) {
	return query(p, func(impl Protocol) ([]AccountSnapshot, error) { return impl.AccountSnapshots(account) })
}

func (p *Proxy) MarketSnapshot(market crypto.Address) (*MarketSnapshot, error) {
	return query(p, func(impl Protocol) (*MarketSnapshot, error) { return impl.MarketSnapshot(market) })
}

func (p *Proxy) BorrowBalanceStored(account, market crypto.Address) (*uint256.Int, error) {
	return query(p, func(impl Protocol) (*uint256.Int, error) { return impl.BorrowBalanceStored(account, market) })
}

// BorrowBalanceCurrent commits the accrual it performs.
func (p *Proxy) BorrowBalanceCurrent(account, market crypto.Address) (*uint256.Int, error) {
	return mutate(p, func(impl Protocol) (*uint256.Int, error) { return impl.BorrowBalanceCurrent(account, market) })
}

func (p *Proxy) ExchangeRateStored(market crypto.Address) (*uint256.Int, error) {
	return query(p, func(impl Protocol) (*uint256.Int, error) { return impl.ExchangeRateStored(market) })
}

// ExchangeRateCurrent commits the accrual it performs.
func (p *Proxy) ExchangeRateCurrent(market crypto.Address) (*uint256.Int, error) {
	return mutate(p, func(impl Protocol) (*uint256.Int, error) { return impl.ExchangeRateCurrent(market) })
}

func (p *Proxy) BorrowRatePerSecond(market crypto.Address) (*uint256.Int, error) {
	return query(p, func(impl Protocol) (*uint256.Int, error) { return impl.BorrowRatePerSecond(market) })
}

func (p *Proxy) SupplyRatePerSecond(market crypto.Address) (*uint256.Int, error) {
	return query(p, func(impl Protocol) (*uint256.Int, error) { return impl.SupplyRatePerSecond(market) })
}

func (p *Proxy) LiquidateCalculateSeizeShares(market, collateralMarket crypto.Address, repayAmount *uint256.Int) (*uint256.Int, error) {
	return query(p, func(impl Protocol) (*uint256.Int, error) {
		return impl.LiquidateCalculateSeizeShares(market, collateralMarket, repayAmount)
	})
}

func (p *Proxy) RewardAccrued(rt RewardType, account crypto.Address) (*uint256.Int, error) {
	return query(p, func(impl Protocol) (*uint256.Int, error) { return impl.RewardAccrued(rt, account) })
}

func (p *Proxy) RewardMarketState(rt RewardType, market crypto.Address) (*RewardMarketState, error) {
	return query(p, func(impl Protocol) (*RewardMarketState, error) { return impl.RewardMarketState(rt, market) })
}

func (p *Proxy) ContributorReward(rt RewardType, contributor crypto.Address) (*ContributorReward, error) {
	return query(p, func(impl Protocol) (*ContributorReward, error) { return impl.ContributorReward(rt, contributor) })
}

// Journals combines several journals into one scope. Commit stops at the
// first failure and rolls back the journals after it.
type Journals []Journal

func (js Journals) Begin() {
	for _, j := range js {
		j.Begin()
	}
}

func (js Journals) Commit() error {
	for i, j := range js {
		if err := j.Commit(); err != nil {
			for _, rest := range js[i+1:] {
				rest.Rollback()
			}
			return err
		}
	}
	return nil
}

func (js Journals) Rollback() {
	for _, j := range js {
		j.Rollback()
	}
}
