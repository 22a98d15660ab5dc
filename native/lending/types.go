package lending

import (
	"strings"

	"github.com/holiman/uint256"

	"moneymarket/core/exp"
	"moneymarket/crypto"
	"moneymarket/native/interest"
	"moneymarket/native/oracle"
)

const moduleName = "lending"

// ControllerAddress holds reward inventory paid out by claims and grants.
var ControllerAddress = crypto.ModuleAddress("lending/controller")

// MarketAddress derives the market identifier and cash account for an
// underlying asset.
func MarketAddress(underlying string) crypto.Address {
	return crypto.ModuleAddress("lending/market/" + oracle.Normalize(underlying))
}

// Market captures the accounting state of one listed asset. Amounts are
// in underlying base units, rates and factors are Exp mantissas.
type Market struct {
	// Address identifies the market and holds its cash.
	Address crypto.Address
	// Underlying is the asset symbol supplied and borrowed.
	Underlying string
	// Symbol names the market share token.
	Symbol string
	// TotalSupply is the number of outstanding market shares.
	TotalSupply *uint256.Int
	// TotalBorrows is the aggregate debt including accrued interest.
	TotalBorrows *uint256.Int
	// TotalReserves is the portion of cash owned by the protocol.
	TotalReserves *uint256.Int
	// BorrowIndex compounds the borrow rate since listing. Starts at 1e18.
	BorrowIndex *uint256.Int
	// AccrualTimestamp records when interest was last accrued.
	AccrualTimestamp uint64
	// ReserveFactor is the share of interest routed to reserves.
	ReserveFactor *uint256.Int
	// InitialExchangeRate prices shares while the supply is zero.
	InitialExchangeRate *uint256.Int
	// CollateralFactor is the borrowing power granted per unit of value.
	CollateralFactor *uint256.Int
	// BorrowCap bounds TotalBorrows. Zero means uncapped.
	BorrowCap *uint256.Int
	// IsListed is set once the admin supports the market.
	IsListed bool
	// MintPaused blocks new supply.
	MintPaused bool
	// BorrowPaused blocks new borrows.
	BorrowPaused bool
	// RateModel describes the interest curve.
	RateModel interest.Params
}

// Position is an account's standing in one market.
type Position struct {
	Account crypto.Address
	Market  crypto.Address
	// Shares is the market share balance.
	Shares *uint256.Int
	// BorrowPrincipal is the debt as of the last borrow-side action.
	BorrowPrincipal *uint256.Int
	// InterestIndex is the market borrow index when BorrowPrincipal was set.
	InterestIndex *uint256.Int
}

// ControllerParams groups the protocol-wide risk configuration.
type ControllerParams struct {
	Admin                crypto.Address
	PendingAdmin         crypto.Address
	PauseGuardian        crypto.Address
	BorrowCapGuardian    crypto.Address
	CloseFactor          *uint256.Int
	LiquidationIncentive *uint256.Int
	TransferPaused       bool
	SeizePaused          bool
}

// RewardType selects the reward asset.
type RewardType uint8

const (
	// RewardProtocol pays the governance token.
	RewardProtocol RewardType = 0
	// RewardNative pays the native asset.
	RewardNative RewardType = 1
)

// RewardTypes lists every supported reward type.
var RewardTypes = []RewardType{RewardProtocol, RewardNative}

func (rt RewardType) Valid() bool { return rt == RewardProtocol || rt == RewardNative }

func (rt RewardType) String() string {
	switch rt {
	case RewardProtocol:
		return "protocol"
	case RewardNative:
		return "native"
	default:
		return "unknown"
	}
}

// RewardMarketState tracks reward indices for one market and reward type.
// Indices are Double mantissas starting at 1e36.
type RewardMarketState struct {
	SupplySpeed     *uint256.Int
	BorrowSpeed     *uint256.Int
	SupplyIndex     *uint256.Int
	SupplyTimestamp uint64
	BorrowIndex     *uint256.Int
	BorrowTimestamp uint64
}

// RewardAccountState remembers the market indices an account was last
// settled at.
type RewardAccountState struct {
	SupplierIndex *uint256.Int
	BorrowerIndex *uint256.Int
}

// ContributorReward streams a fixed reward rate to one account
// independent of any market position.
type ContributorReward struct {
	Speed     *uint256.Int
	Timestamp uint64
}

// MarketConfig lists a new market.
type MarketConfig struct {
	Underlying          string
	Symbol              string
	InitialExchangeRate *uint256.Int
	CollateralFactor    *uint256.Int
	ReserveFactor       *uint256.Int
	BorrowCap           *uint256.Int
	RateModel           interest.Params
}

// AccountSnapshot is an account's view of one market.
type AccountSnapshot struct {
	Market        crypto.Address
	Shares        *uint256.Int
	BorrowBalance *uint256.Int
	ExchangeRate  *uint256.Int
	Underlying    *uint256.Int
	Entered       bool
}

// MarketSnapshot summarises a market for readers.
type MarketSnapshot struct {
	Market              Market
	Cash                *uint256.Int
	ExchangeRate        *uint256.Int
	BorrowRatePerSecond *uint256.Int
	SupplyRatePerSecond *uint256.Int
	Utilization         *uint256.Int
	Price               *uint256.Int
}

// Liquidity is the outcome of a liquidity computation. At most one of
// Liquidity and Shortfall is non-zero.
type Liquidity struct {
	Liquidity *uint256.Int
	Shortfall *uint256.Int
}

func ensureMarket(m *Market) {
	if m == nil {
		return
	}
	m.Underlying = oracle.Normalize(m.Underlying)
	m.Symbol = strings.TrimSpace(m.Symbol)
	m.TotalSupply = exp.Clone(m.TotalSupply)
	m.TotalBorrows = exp.Clone(m.TotalBorrows)
	m.TotalReserves = exp.Clone(m.TotalReserves)
	m.BorrowIndex = exp.Clone(m.BorrowIndex)
	if m.BorrowIndex.IsZero() {
		m.BorrowIndex = exp.Scale()
	}
	m.ReserveFactor = exp.Clone(m.ReserveFactor)
	m.InitialExchangeRate = exp.Clone(m.InitialExchangeRate)
	m.CollateralFactor = exp.Clone(m.CollateralFactor)
	m.BorrowCap = exp.Clone(m.BorrowCap)
	m.RateModel = m.RateModel.Clone()
}

func ensurePosition(p *Position, market, account crypto.Address) *Position {
	if p == nil {
		p = &Position{}
	}
	p.Market = market
	p.Account = account
	p.Shares = exp.Clone(p.Shares)
	p.BorrowPrincipal = exp.Clone(p.BorrowPrincipal)
	p.InterestIndex = exp.Clone(p.InterestIndex)
	return p
}

func ensureParams(p *ControllerParams) *ControllerParams {
	if p == nil {
		p = &ControllerParams{}
	}
	p.CloseFactor = exp.Clone(p.CloseFactor)
	p.LiquidationIncentive = exp.Clone(p.LiquidationIncentive)
	return p
}

func ensureRewardMarket(s *RewardMarketState) *RewardMarketState {
	if s == nil {
		s = &RewardMarketState{}
	}
	s.SupplySpeed = exp.Clone(s.SupplySpeed)
	s.BorrowSpeed = exp.Clone(s.BorrowSpeed)
	s.SupplyIndex = exp.Clone(s.SupplyIndex)
	s.BorrowIndex = exp.Clone(s.BorrowIndex)
	return s
}

func ensureContributor(s *ContributorReward) *ContributorReward {
	if s == nil {
		s = &ContributorReward{}
	}
	s.Speed = exp.Clone(s.Speed)
	return s
}

func ensureRewardAccount(s *RewardAccountState) *RewardAccountState {
	if s == nil {
		s = &RewardAccountState{}
	}
	s.SupplierIndex = exp.Clone(s.SupplierIndex)
	s.BorrowerIndex = exp.Clone(s.BorrowerIndex)
	return s
}

// Clone returns a deep copy of m.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	out := *m
	ensureMarket(&out)
	return &out
}
