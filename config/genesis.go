package config

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"moneymarket/core/exp"
	"moneymarket/crypto"
	"moneymarket/native/interest"
	"moneymarket/native/lending"
	"moneymarket/native/oracle"
)

// Genesis describes the protocol state applied to an empty database.
// Factors, prices and amounts are decimal strings with 18 decimals.
type Genesis struct {
	Admin                string          `toml:"Admin" yaml:"admin"`
	PauseGuardian        string          `toml:"PauseGuardian" yaml:"pauseGuardian"`
	BorrowCapGuardian    string          `toml:"BorrowCapGuardian" yaml:"borrowCapGuardian"`
	CloseFactor          string          `toml:"CloseFactor" yaml:"closeFactor"`
	LiquidationIncentive string          `toml:"LiquidationIncentive" yaml:"liquidationIncentive"`
	GovernanceAsset      string          `toml:"GovernanceAsset" yaml:"governanceAsset"`
	Markets              []MarketGenesis `toml:"Markets" yaml:"markets"`
	Allocations          []Allocation    `toml:"Allocations" yaml:"allocations"`
	RewardReserves       []Allocation    `toml:"RewardReserves" yaml:"rewardReserves"`
}

// MarketGenesis lists one market.
type MarketGenesis struct {
	Underlying          string        `toml:"Underlying" yaml:"underlying"`
	Symbol              string        `toml:"Symbol" yaml:"symbol"`
	Price               string        `toml:"Price" yaml:"price"`
	InitialExchangeRate string        `toml:"InitialExchangeRate" yaml:"initialExchangeRate"`
	CollateralFactor    string        `toml:"CollateralFactor" yaml:"collateralFactor"`
	ReserveFactor       string        `toml:"ReserveFactor" yaml:"reserveFactor"`
	BorrowCap           string        `toml:"BorrowCap" yaml:"borrowCap"`
	RateModel           RateModel     `toml:"RateModel" yaml:"rateModel"`
	Rewards             []RewardSpeed `toml:"Rewards" yaml:"rewards"`
}

// RateModel selects an interest curve. Empty fields fall back to the
// default jump rate curve.
type RateModel struct {
	Kind                  string `toml:"Kind" yaml:"kind"`
	BaseRatePerYear       string `toml:"BaseRatePerYear" yaml:"baseRatePerYear"`
	MultiplierPerYear     string `toml:"MultiplierPerYear" yaml:"multiplierPerYear"`
	JumpMultiplierPerYear string `toml:"JumpMultiplierPerYear" yaml:"jumpMultiplierPerYear"`
	Kink                  string `toml:"Kink" yaml:"kink"`
}

// RewardSpeed sets per second reward emission for one reward type.
type RewardSpeed struct {
	Type        string `toml:"Type" yaml:"type"`
	SupplySpeed string `toml:"SupplySpeed" yaml:"supplySpeed"`
	BorrowSpeed string `toml:"BorrowSpeed" yaml:"borrowSpeed"`
}

// Allocation credits an asset balance at genesis. RewardReserves ignore
// Address and fund the controller.
type Allocation struct {
	Address string `toml:"Address" yaml:"address"`
	Asset   string `toml:"Asset" yaml:"asset"`
	Amount  string `toml:"Amount" yaml:"amount"`
}

const defaultInitialExchangeRate = "0.02"

// parseAmount reads an optional decimal; empty means zero.
func parseAmount(field, value string) (*uint256.Int, error) {
	if strings.TrimSpace(value) == "" {
		return new(uint256.Int), nil
	}
	v, err := exp.Mantissa(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

func parseOptionalAddress(field, value string) (crypto.Address, error) {
	if strings.TrimSpace(value) == "" {
		return crypto.ZeroAddress, nil
	}
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return crypto.ZeroAddress, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

// ControllerParams converts the risk section into engine parameters.
func (g Genesis) ControllerParams() (lending.ControllerParams, error) {
	var params lending.ControllerParams
	admin, err := parseOptionalAddress("genesis.Admin", g.Admin)
	if err != nil {
		return params, err
	}
	if admin.IsZero() {
		return params, fmt.Errorf("genesis.Admin is required")
	}
	params.Admin = admin
	if params.PauseGuardian, err = parseOptionalAddress("genesis.PauseGuardian", g.PauseGuardian); err != nil {
		return params, err
	}
	if params.BorrowCapGuardian, err = parseOptionalAddress("genesis.BorrowCapGuardian", g.BorrowCapGuardian); err != nil {
		return params, err
	}
	if params.CloseFactor, err = parseAmount("genesis.CloseFactor", g.CloseFactor); err != nil {
		return params, err
	}
	if params.LiquidationIncentive, err = parseAmount("genesis.LiquidationIncentive", g.LiquidationIncentive); err != nil {
		return params, err
	}
	return params, nil
}

// Params converts the model section. An empty kind selects the default
// curve.
func (r RateModel) Params() (interest.Params, error) {
	if strings.TrimSpace(r.Kind) == "" {
		return interest.DefaultParams(), nil
	}
	var (
		p   = interest.Params{Kind: strings.ToLower(strings.TrimSpace(r.Kind))}
		err error
	)
	if p.BaseRatePerYear, err = parseAmount("BaseRatePerYear", r.BaseRatePerYear); err != nil {
		return p, err
	}
	if p.MultiplierPerYear, err = parseAmount("MultiplierPerYear", r.MultiplierPerYear); err != nil {
		return p, err
	}
	if p.JumpMultiplierPerYear, err = parseAmount("JumpMultiplierPerYear", r.JumpMultiplierPerYear); err != nil {
		return p, err
	}
	if p.Kink, err = parseAmount("Kink", r.Kink); err != nil {
		return p, err
	}
	return p, p.Validate()
}

// MarketConfig converts the listing section.
func (m MarketGenesis) MarketConfig() (lending.MarketConfig, error) {
	cfg := lending.MarketConfig{Underlying: oracle.Normalize(m.Underlying), Symbol: strings.TrimSpace(m.Symbol)}
	if cfg.Underlying == "" {
		return cfg, fmt.Errorf("market underlying is required")
	}
	prefix := "market " + cfg.Underlying
	rate := m.InitialExchangeRate
	if strings.TrimSpace(rate) == "" {
		rate = defaultInitialExchangeRate
	}
	var err error
	if cfg.InitialExchangeRate, err = parseAmount(prefix+".InitialExchangeRate", rate); err != nil {
		return cfg, err
	}
	if cfg.CollateralFactor, err = parseAmount(prefix+".CollateralFactor", m.CollateralFactor); err != nil {
		return cfg, err
	}
	if cfg.ReserveFactor, err = parseAmount(prefix+".ReserveFactor", m.ReserveFactor); err != nil {
		return cfg, err
	}
	if cfg.BorrowCap, err = parseAmount(prefix+".BorrowCap", m.BorrowCap); err != nil {
		return cfg, err
	}
	if cfg.RateModel, err = m.RateModel.Params(); err != nil {
		return cfg, fmt.Errorf("%s.RateModel: %w", prefix, err)
	}
	return cfg, nil
}

// PriceMantissa returns the posted price, zero when unpriced.
func (m MarketGenesis) PriceMantissa() (*uint256.Int, error) {
	return parseAmount("market "+oracle.Normalize(m.Underlying)+".Price", m.Price)
}

// Parse resolves the reward type and speeds.
func (r RewardSpeed) Parse() (lending.RewardType, *uint256.Int, *uint256.Int, error) {
	rt, err := ParseRewardType(r.Type)
	if err != nil {
		return 0, nil, nil, err
	}
	supply, err := parseAmount("SupplySpeed", r.SupplySpeed)
	if err != nil {
		return 0, nil, nil, err
	}
	borrow, err := parseAmount("BorrowSpeed", r.BorrowSpeed)
	if err != nil {
		return 0, nil, nil, err
	}
	return rt, supply, borrow, nil
}

// ParseRewardType accepts the reward type name or its number.
func ParseRewardType(s string) (lending.RewardType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "protocol", "":
		return lending.RewardProtocol, nil
	case "1", "native":
		return lending.RewardNative, nil
	default:
		return 0, fmt.Errorf("unknown reward type %q", s)
	}
}

// Parse resolves the allocation. The address is optional for reward
// reserves.
func (a Allocation) Parse() (crypto.Address, string, *uint256.Int, error) {
	asset := oracle.Normalize(a.Asset)
	if asset == "" {
		return crypto.ZeroAddress, "", nil, fmt.Errorf("allocation asset is required")
	}
	addr, err := parseOptionalAddress("allocation address", a.Address)
	if err != nil {
		return crypto.ZeroAddress, "", nil, err
	}
	amount, err := parseAmount("allocation "+asset, a.Amount)
	if err != nil {
		return crypto.ZeroAddress, "", nil, err
	}
	return addr, asset, amount, nil
}
