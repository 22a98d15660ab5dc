package config

import (
	"errors"
	"fmt"
	"strings"

	"moneymarket/core/exp"
	"moneymarket/native/oracle"
)

var (
	maxCollateralFactor = exp.MustMantissa("0.9")
	minCloseFactor      = exp.MustMantissa("0.05")
	maxCloseFactor      = exp.MustMantissa("0.9")
)

// Validate checks the node settings and the genesis against the protocol
// bounds so a bad file fails before any state is written.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return errors.New("ListenAddress is required")
	}
	switch c.Database {
	case DatabaseLevelDB:
		if strings.TrimSpace(c.DataDir) == "" {
			return errors.New("DataDir is required for the leveldb database")
		}
	case DatabaseMemory:
	default:
		return fmt.Errorf("Database: unsupported backend %q", c.Database)
	}
	switch strings.ToLower(strings.TrimSpace(c.EventLog.Driver)) {
	case "", "sqlite":
	case "postgres":
		if strings.TrimSpace(c.EventLog.DSN) == "" {
			return errors.New("eventlog: postgres requires a DSN")
		}
	default:
		return fmt.Errorf("eventlog: unsupported driver %q", c.EventLog.Driver)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return errors.New("telemetry: SampleRatio must be within [0, 1]")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return errors.New("ratelimit: limits must not be negative")
	}
	return c.Genesis.Validate()
}

// Validate checks the genesis section.
func (g Genesis) Validate() error {
	params, err := g.ControllerParams()
	if err != nil {
		return err
	}
	if !params.CloseFactor.IsZero() && (params.CloseFactor.Lt(minCloseFactor) || params.CloseFactor.Gt(maxCloseFactor)) {
		return fmt.Errorf("genesis.CloseFactor %s outside [0.05, 0.9]", g.CloseFactor)
	}
	if !params.LiquidationIncentive.IsZero() && params.LiquidationIncentive.Lt(exp.Scale()) {
		return fmt.Errorf("genesis.LiquidationIncentive %s below 1", g.LiquidationIncentive)
	}

	seenUnderlying := make(map[string]struct{}, len(g.Markets))
	seenSymbol := make(map[string]struct{}, len(g.Markets))
	for _, m := range g.Markets {
		cfg, err := m.MarketConfig()
		if err != nil {
			return err
		}
		if _, dup := seenUnderlying[cfg.Underlying]; dup {
			return fmt.Errorf("market %s listed twice", cfg.Underlying)
		}
		seenUnderlying[cfg.Underlying] = struct{}{}
		if cfg.Symbol != "" {
			key := strings.ToUpper(cfg.Symbol)
			if _, dup := seenSymbol[key]; dup {
				return fmt.Errorf("market symbol %s used twice", cfg.Symbol)
			}
			seenSymbol[key] = struct{}{}
		}
		if cfg.InitialExchangeRate.IsZero() {
			return fmt.Errorf("market %s: InitialExchangeRate must be positive", cfg.Underlying)
		}
		if cfg.CollateralFactor.Gt(maxCollateralFactor) {
			return fmt.Errorf("market %s: CollateralFactor above 0.9", cfg.Underlying)
		}
		if cfg.ReserveFactor.Gt(exp.Scale()) {
			return fmt.Errorf("market %s: ReserveFactor above 1", cfg.Underlying)
		}
		price, err := m.PriceMantissa()
		if err != nil {
			return err
		}
		if !cfg.CollateralFactor.IsZero() && price.IsZero() && cfg.Underlying != oracle.NativeAsset {
			return fmt.Errorf("market %s: collateral requires a price", cfg.Underlying)
		}
		for _, speed := range m.Rewards {
			if _, _, _, err := speed.Parse(); err != nil {
				return fmt.Errorf("market %s rewards: %w", cfg.Underlying, err)
			}
		}
	}
	for _, alloc := range g.Allocations {
		addr, _, _, err := alloc.Parse()
		if err != nil {
			return err
		}
		if addr.IsZero() {
			return errors.New("allocation address is required")
		}
	}
	for _, reserve := range g.RewardReserves {
		if _, _, _, err := reserve.Parse(); err != nil {
			return fmt.Errorf("reward reserve: %w", err)
		}
	}
	return nil
}
