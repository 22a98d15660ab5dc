package rpc

import (
	"github.com/holiman/uint256"

	"moneymarket/core/exp"
	"moneymarket/crypto"
	"moneymarket/integrations/eventlog"
	"moneymarket/native/lending"
)

// Amounts render as base unit integers, mantissas as decimals.

func amount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func mantissa(v *uint256.Int) string { return exp.FormatMantissa(v) }

func address(a crypto.Address) string {
	if a.IsZero() {
		return ""
	}
	return a.String()
}

type marketView struct {
	Address             string `json:"address"`
	Underlying          string `json:"underlying"`
	Symbol              string `json:"symbol"`
	TotalSupply         string `json:"totalSupply"`
	TotalBorrows        string `json:"totalBorrows"`
	TotalReserves       string `json:"totalReserves"`
	Cash                string `json:"cash"`
	BorrowIndex         string `json:"borrowIndex"`
	AccrualTimestamp    uint64 `json:"accrualTimestamp"`
	ExchangeRate        string `json:"exchangeRate"`
	CollateralFactor    string `json:"collateralFactor"`
	ReserveFactor       string `json:"reserveFactor"`
	BorrowCap           string `json:"borrowCap"`
	BorrowRatePerSecond string `json:"borrowRatePerSecond"`
	SupplyRatePerSecond string `json:"supplyRatePerSecond"`
	Utilization         string `json:"utilization"`
	Price               string `json:"price"`
	RateModel           string `json:"rateModel"`
	MintPaused          bool   `json:"mintPaused"`
	BorrowPaused        bool   `json:"borrowPaused"`
}

func newMarketView(s *lending.MarketSnapshot) marketView {
	m := s.Market
	return marketView{
		Address:             m.Address.String(),
		Underlying:          m.Underlying,
		Symbol:              m.Symbol,
		TotalSupply:         amount(m.TotalSupply),
		TotalBorrows:        amount(m.TotalBorrows),
		TotalReserves:       amount(m.TotalReserves),
		Cash:                amount(s.Cash),
		BorrowIndex:         mantissa(m.BorrowIndex),
		AccrualTimestamp:    m.AccrualTimestamp,
		ExchangeRate:        mantissa(s.ExchangeRate),
		CollateralFactor:    mantissa(m.CollateralFactor),
		ReserveFactor:       mantissa(m.ReserveFactor),
		BorrowCap:           amount(m.BorrowCap),
		BorrowRatePerSecond: mantissa(s.BorrowRatePerSecond),
		SupplyRatePerSecond: mantissa(s.SupplyRatePerSecond),
		Utilization:         mantissa(s.Utilization),
		Price:               mantissa(s.Price),
		RateModel:           m.RateModel.Kind,
		MintPaused:          m.MintPaused,
		BorrowPaused:        m.BorrowPaused,
	}
}

type paramsView struct {
	Admin                string `json:"admin"`
	PendingAdmin         string `json:"pendingAdmin,omitempty"`
	PauseGuardian        string `json:"pauseGuardian,omitempty"`
	BorrowCapGuardian    string `json:"borrowCapGuardian,omitempty"`
	CloseFactor          string `json:"closeFactor"`
	LiquidationIncentive string `json:"liquidationIncentive"`
	TransferPaused       bool   `json:"transferPaused"`
	SeizePaused          bool   `json:"seizePaused"`
}

func newParamsView(p *lending.ControllerParams) paramsView {
	return paramsView{
		Admin:                address(p.Admin),
		PendingAdmin:         address(p.PendingAdmin),
		PauseGuardian:        address(p.PauseGuardian),
		BorrowCapGuardian:    address(p.BorrowCapGuardian),
		CloseFactor:          mantissa(p.CloseFactor),
		LiquidationIncentive: mantissa(p.LiquidationIncentive),
		TransferPaused:       p.TransferPaused,
		SeizePaused:          p.SeizePaused,
	}
}

type liquidityView struct {
	Account   string `json:"account"`
	Liquidity string `json:"liquidity"`
	Shortfall string `json:"shortfall"`
}

type positionView struct {
	Market        string `json:"market"`
	Shares        string `json:"shares"`
	Underlying    string `json:"underlying"`
	BorrowBalance string `json:"borrowBalance"`
	ExchangeRate  string `json:"exchangeRate"`
	Entered       bool   `json:"entered"`
}

func newPositionView(s lending.AccountSnapshot) positionView {
	return positionView{
		Market:        s.Market.String(),
		Shares:        amount(s.Shares),
		Underlying:    amount(s.Underlying),
		BorrowBalance: amount(s.BorrowBalance),
		ExchangeRate:  mantissa(s.ExchangeRate),
		Entered:       s.Entered,
	}
}

type rewardView struct {
	Type    string `json:"type"`
	Accrued string `json:"accrued"`
}

type votesView struct {
	Account        string `json:"account"`
	Delegate       string `json:"delegate"`
	CurrentVotes   string `json:"currentVotes"`
	Nonce          uint64 `json:"nonce"`
	NumCheckpoints uint64 `json:"numCheckpoints"`
}

type priorVotesView struct {
	Account string `json:"account"`
	Block   uint64 `json:"block"`
	Votes   string `json:"votes"`
}

type statusView struct {
	Height          uint64 `json:"height"`
	Timestamp       uint64 `json:"timestamp"`
	GovernanceAsset string `json:"governanceAsset"`
}

type eventView struct {
	ID         uint64            `json:"id"`
	Type       string            `json:"type"`
	Height     uint64            `json:"height"`
	Timestamp  uint64            `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}

func newEventView(r eventlog.Record) (eventView, error) {
	decoded, err := r.Decoded()
	if err != nil {
		return eventView{}, err
	}
	return eventView{ID: r.ID, Type: r.Type, Height: r.Height, Timestamp: r.Timestamp, Attributes: decoded.Attributes}, nil
}
