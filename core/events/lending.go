package events

import (
	"strconv"

	"github.com/holiman/uint256"

	"moneymarket/core/types"
	"moneymarket/crypto"
)

const (
	TypeLendingMarketListed      = "lending.market_listed"
	TypeLendingAccrueInterest    = "lending.accrue_interest"
	TypeLendingMint              = "lending.mint"
	TypeLendingRedeem            = "lending.redeem"
	TypeLendingBorrow            = "lending.borrow"
	TypeLendingRepayBorrow       = "lending.repay_borrow"
	TypeLendingLiquidateBorrow   = "lending.liquidate_borrow"
	TypeLendingTransfer          = "lending.transfer"
	TypeLendingMarketEntered     = "lending.market_entered"
	TypeLendingMarketExited      = "lending.market_exited"
	TypeLendingReservesAdded     = "lending.reserves_added"
	TypeLendingReservesReduced   = "lending.reserves_reduced"
	TypeLendingParamUpdated      = "lending.param_updated"
	TypeLendingActionPaused      = "lending.action_paused"
	TypeLendingRewardSpeed       = "lending.reward_speed_updated"
	TypeLendingRewardDistributed = "lending.reward_distributed"
	TypeLendingRewardGranted     = "lending.reward_granted"
	TypeLendingContributorSpeed  = "lending.contributor_speed_updated"
	TypeLendingImplementation    = "lending.implementation_updated"
)

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

// MarketListed is emitted when the admin supports a new market.
type MarketListed struct {
	Market     crypto.Address
	Underlying string
	Symbol     string
}

func (MarketListed) EventType() string { return TypeLendingMarketListed }

func (e MarketListed) Event() *types.Event {
	return &types.Event{Type: TypeLendingMarketListed, Attributes: map[string]string{
		"market":     formatAddress(e.Market),
		"underlying": normalizeAsset(e.Underlying),
		"symbol":     e.Symbol,
	}}
}

// AccrueInterest captures the totals after an accrual advanced the index.
type AccrueInterest struct {
	Market              crypto.Address
	CashPrior           *uint256.Int
	InterestAccumulated *uint256.Int
	BorrowIndex         *uint256.Int
	TotalBorrows        *uint256.Int
	Timestamp           uint64
}

func (AccrueInterest) EventType() string { return TypeLendingAccrueInterest }

func (e AccrueInterest) Event() *types.Event {
	return &types.Event{Type: TypeLendingAccrueInterest, Attributes: map[string]string{
		"market":              formatAddress(e.Market),
		"cashPrior":           formatAmount(e.CashPrior),
		"interestAccumulated": formatAmount(e.InterestAccumulated),
		"borrowIndex":         formatAmount(e.BorrowIndex),
		"totalBorrows":        formatAmount(e.TotalBorrows),
		"timestamp":           formatUint(e.Timestamp),
	}}
}

// Mint records underlying supplied and shares issued.
type Mint struct {
	Market crypto.Address
	Minter crypto.Address
	Amount *uint256.Int
	Shares *uint256.Int
}

func (Mint) EventType() string { return TypeLendingMint }

func (e Mint) Event() *types.Event {
	return &types.Event{Type: TypeLendingMint, Attributes: map[string]string{
		"market": formatAddress(e.Market),
		"minter": formatAddress(e.Minter),
		"amount": formatAmount(e.Amount),
		"shares": formatAmount(e.Shares),
	}}
}

// Redeem records shares burned and underlying paid out.
type Redeem struct {
	Market   crypto.Address
	Redeemer crypto.Address
	Amount   *uint256.Int
	Shares   *uint256.Int
}

func (Redeem) EventType() string { return TypeLendingRedeem }

func (e Redeem) Event() *types.Event {
	return &types.Event{Type: TypeLendingRedeem, Attributes: map[string]string{
		"market":   formatAddress(e.Market),
		"redeemer": formatAddress(e.Redeemer),
		"amount":   formatAmount(e.Amount),
		"shares":   formatAmount(e.Shares),
	}}
}

type Borrow struct {
	Market         crypto.Address
	Borrower       crypto.Address
	Amount         *uint256.Int
	AccountBorrows *uint256.Int
	TotalBorrows   *uint256.Int
}

func (Borrow) EventType() string { return TypeLendingBorrow }

func (e Borrow) Event() *types.Event {
	return &types.Event{Type: TypeLendingBorrow, Attributes: map[string]string{
		"market":         formatAddress(e.Market),
		"borrower":       formatAddress(e.Borrower),
		"amount":         formatAmount(e.Amount),
		"accountBorrows": formatAmount(e.AccountBorrows),
		"totalBorrows":   formatAmount(e.TotalBorrows),
	}}
}

type RepayBorrow struct {
	Market         crypto.Address
	Payer          crypto.Address
	Borrower       crypto.Address
	Amount         *uint256.Int
	AccountBorrows *uint256.Int
	TotalBorrows   *uint256.Int
}

func (RepayBorrow) EventType() string { return TypeLendingRepayBorrow }

func (e RepayBorrow) Event() *types.Event {
	return &types.Event{Type: TypeLendingRepayBorrow, Attributes: map[string]string{
		"market":         formatAddress(e.Market),
		"payer":          formatAddress(e.Payer),
		"borrower":       formatAddress(e.Borrower),
		"amount":         formatAmount(e.Amount),
		"accountBorrows": formatAmount(e.AccountBorrows),
		"totalBorrows":   formatAmount(e.TotalBorrows),
	}}
}

type LiquidateBorrow struct {
	Market           crypto.Address
	Liquidator       crypto.Address
	Borrower         crypto.Address
	RepayAmount      *uint256.Int
	CollateralMarket crypto.Address
	SeizeShares      *uint256.Int
}

func (LiquidateBorrow) EventType() string { return TypeLendingLiquidateBorrow }

func (e LiquidateBorrow) Event() *types.Event {
	return &types.Event{Type: TypeLendingLiquidateBorrow, Attributes: map[string]string{
		"market":           formatAddress(e.Market),
		"liquidator":       formatAddress(e.Liquidator),
		"borrower":         formatAddress(e.Borrower),
		"repayAmount":      formatAmount(e.RepayAmount),
		"collateralMarket": formatAddress(e.CollateralMarket),
		"seizeShares":      formatAmount(e.SeizeShares),
	}}
}

// ShareTransfer records a movement of market shares between accounts,
// including the seize leg of a liquidation.
type ShareTransfer struct {
	Market crypto.Address
	From   crypto.Address
	To     crypto.Address
	Shares *uint256.Int
}

func (ShareTransfer) EventType() string { return TypeLendingTransfer }

func (e ShareTransfer) Event() *types.Event {
	return &types.Event{Type: TypeLendingTransfer, Attributes: map[string]string{
		"market": formatAddress(e.Market),
		"from":   formatAddress(e.From),
		"to":     formatAddress(e.To),
		"shares": formatAmount(e.Shares),
	}}
}

// MarketMembership covers both entering and exiting a market.
type MarketMembership struct {
	Market  crypto.Address
	Account crypto.Address
	Entered bool
}

func (e MarketMembership) EventType() string {
	if e.Entered {
		return TypeLendingMarketEntered
	}
	return TypeLendingMarketExited
}

func (e MarketMembership) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"market":  formatAddress(e.Market),
		"account": formatAddress(e.Account),
	}}
}

// ReservesChanged covers reserve additions and reductions.
type ReservesChanged struct {
	Market        crypto.Address
	Actor         crypto.Address
	Amount        *uint256.Int
	TotalReserves *uint256.Int
	Added         bool
}

func (e ReservesChanged) EventType() string {
	if e.Added {
		return TypeLendingReservesAdded
	}
	return TypeLendingReservesReduced
}

func (e ReservesChanged) Event() *types.Event {
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{
		"market":        formatAddress(e.Market),
		"actor":         formatAddress(e.Actor),
		"amount":        formatAmount(e.Amount),
		"totalReserves": formatAmount(e.TotalReserves),
	}}
}

// ParamUpdated is emitted by every admin setter. Market is zero for
// protocol-wide parameters.
type ParamUpdated struct {
	Param  string
	Market crypto.Address
	Old    string
	New    string
}

func (ParamUpdated) EventType() string { return TypeLendingParamUpdated }

func (e ParamUpdated) Event() *types.Event {
	attrs := map[string]string{
		"param": e.Param,
		"old":   e.Old,
		"new":   e.New,
	}
	if !e.Market.IsZero() {
		attrs["market"] = e.Market.String()
	}
	return &types.Event{Type: TypeLendingParamUpdated, Attributes: attrs}
}

// ActionPaused records a guardian or admin pause toggle.
type ActionPaused struct {
	Action string
	Market crypto.Address
	Paused bool
}

func (ActionPaused) EventType() string { return TypeLendingActionPaused }

func (e ActionPaused) Event() *types.Event {
	attrs := map[string]string{
		"action": e.Action,
		"paused": formatBool(e.Paused),
	}
	if !e.Market.IsZero() {
		attrs["market"] = e.Market.String()
	}
	return &types.Event{Type: TypeLendingActionPaused, Attributes: attrs}
}

type RewardSpeedUpdated struct {
	RewardType  uint8
	Market      crypto.Address
	SupplySpeed *uint256.Int
	BorrowSpeed *uint256.Int
}

func (RewardSpeedUpdated) EventType() string { return TypeLendingRewardSpeed }

func (e RewardSpeedUpdated) Event() *types.Event {
	return &types.Event{Type: TypeLendingRewardSpeed, Attributes: map[string]string{
		"rewardType":  formatUint(uint64(e.RewardType)),
		"market":      formatAddress(e.Market),
		"supplySpeed": formatAmount(e.SupplySpeed),
		"borrowSpeed": formatAmount(e.BorrowSpeed),
	}}
}

// ContributorSpeedUpdated records a new contributor reward rate.
type ContributorSpeedUpdated struct {
	RewardType  uint8
	Contributor crypto.Address
	Speed       *uint256.Int
}

func (ContributorSpeedUpdated) EventType() string { return TypeLendingContributorSpeed }

func (e ContributorSpeedUpdated) Event() *types.Event {
	return &types.Event{Type: TypeLendingContributorSpeed, Attributes: map[string]string{
		"rewardType":  formatUint(uint64(e.RewardType)),
		"contributor": formatAddress(e.Contributor),
		"speed":       formatAmount(e.Speed),
	}}
}

// RewardDistributed records rewards accrued to a supplier or borrower.
type RewardDistributed struct {
	RewardType uint8
	Market     crypto.Address
	Account    crypto.Address
	Side       string
	Delta      *uint256.Int
	Index      *uint256.Int
}

func (RewardDistributed) EventType() string { return TypeLendingRewardDistributed }

func (e RewardDistributed) Event() *types.Event {
	return &types.Event{Type: TypeLendingRewardDistributed, Attributes: map[string]string{
		"rewardType": formatUint(uint64(e.RewardType)),
		"market":     formatAddress(e.Market),
		"account":    formatAddress(e.Account),
		"side":       e.Side,
		"delta":      formatAmount(e.Delta),
		"index":      formatAmount(e.Index),
	}}
}

// RewardGranted records a reward payout from the controller account.
type RewardGranted struct {
	RewardType uint8
	Recipient  crypto.Address
	Amount     *uint256.Int
}

func (RewardGranted) EventType() string { return TypeLendingRewardGranted }

func (e RewardGranted) Event() *types.Event {
	return &types.Event{Type: TypeLendingRewardGranted, Attributes: map[string]string{
		"rewardType": formatUint(uint64(e.RewardType)),
		"recipient":  formatAddress(e.Recipient),
		"amount":     formatAmount(e.Amount),
	}}
}

// ImplementationUpdated tracks both steps of a proxy upgrade.
type ImplementationUpdated struct {
	Pending  bool
	Previous string
	Next     string
}

func (ImplementationUpdated) EventType() string { return TypeLendingImplementation }

func (e ImplementationUpdated) Event() *types.Event {
	return &types.Event{Type: TypeLendingImplementation, Attributes: map[string]string{
		"pending":  formatBool(e.Pending),
		"previous": e.Previous,
		"next":     e.Next,
	}}
}
