package core

import (
	"fmt"
	"log/slog"

	"moneymarket/config"
	"moneymarket/crypto"
	"moneymarket/native/lending"
)

// ApplyGenesis posts the configured prices and, on an empty database,
// writes the controller, markets, reward speeds and balances in one
// scope. It reports whether state was written.
func (n *Node) ApplyGenesis(g config.Genesis) (bool, error) {
	params, err := g.ControllerParams()
	if err != nil {
		return false, err
	}
	if params.Admin != n.oracle.Admin() {
		return false, fmt.Errorf("genesis admin %s does not match oracle admin %s", params.Admin, n.oracle.Admin())
	}
	for _, m := range g.Markets {
		cfg, err := m.MarketConfig()
		if err != nil {
			return false, err
		}
		price, err := m.PriceMantissa()
		if err != nil {
			return false, err
		}
		if price.IsZero() {
			continue
		}
		if err := n.oracle.SetPrice(params.Admin, cfg.Underlying, price); err != nil {
			return false, err
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	_, initialized, err := n.state.LendingParams()
	if err != nil {
		return false, err
	}
	if initialized {
		return false, nil
	}
	err = n.atomic(func() error {
		if err := n.engine.Initialize(params); err != nil {
			return fmt.Errorf("initialize controller: %w", err)
		}
		for _, m := range g.Markets {
			if err := n.listMarket(params.Admin, m); err != nil {
				return err
			}
		}
		for _, alloc := range g.Allocations {
			addr, asset, amount, err := alloc.Parse()
			if err != nil {
				return err
			}
			if err := n.ledger.Mint(asset, addr, amount); err != nil {
				return fmt.Errorf("allocate %s to %s: %w", asset, addr, err)
			}
		}
		for _, reserve := range g.RewardReserves {
			_, asset, amount, err := reserve.Parse()
			if err != nil {
				return err
			}
			if err := n.ledger.Mint(asset, lending.ControllerAddress, amount); err != nil {
				return fmt.Errorf("fund reward reserve %s: %w", asset, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	n.logger.Info("genesis applied",
		slog.Int("markets", len(g.Markets)),
		slog.Int("allocations", len(g.Allocations)),
		slog.Uint64("height", n.height))
	return true, nil
}

func (n *Node) listMarket(admin crypto.Address, m config.MarketGenesis) error {
	cfg, err := m.MarketConfig()
	if err != nil {
		return err
	}
	market, err := n.engine.SupportMarket(admin, cfg)
	if err != nil {
		return fmt.Errorf("list %s: %w", cfg.Underlying, err)
	}
	for _, speed := range m.Rewards {
		rt, supply, borrow, err := speed.Parse()
		if err != nil {
			return err
		}
		if err := n.engine.SetRewardSpeed(admin, rt, market, supply, borrow); err != nil {
			return fmt.Errorf("reward speed %s/%s: %w", cfg.Underlying, rt, err)
		}
	}
	return nil
}
