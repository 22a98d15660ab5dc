package state

import (
	"fmt"

	"github.com/holiman/uint256"

	"moneymarket/crypto"
	"moneymarket/native/lending"
)

// LendingParams loads the controller configuration.
func (m *Manager) LendingParams() (*lending.ControllerParams, bool, error) {
	var params lending.ControllerParams
	ok, err := m.KVGet([]byte(lendingParamsKey), &params)
	if err != nil {
		return nil, false, fmt.Errorf("state: lending params: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &params, true, nil
}

func (m *Manager) PutLendingParams(params *lending.ControllerParams) error {
	if params == nil {
		return fmt.Errorf("state: nil lending params")
	}
	return m.KVPut([]byte(lendingParamsKey), params)
}

// LendingMarket loads a market record by its address.
func (m *Manager) LendingMarket(addr crypto.Address) (*lending.Market, bool, error) {
	var market lending.Market
	ok, err := m.KVGet(lendingMarketKey(addr), &market)
	if err != nil {
		return nil, false, fmt.Errorf("state: lending market %s: %w", addr.Hex(), err)
	}
	if !ok {
		return nil, false, nil
	}
	return &market, true, nil
}

func (m *Manager) PutLendingMarket(market *lending.Market) error {
	if market == nil {
		return fmt.Errorf("state: nil lending market")
	}
	return m.KVPut(lendingMarketKey(market.Address), market)
}

// LendingMarketList returns the listed markets in listing order.
func (m *Manager) LendingMarketList() ([]crypto.Address, error) {
	var list []crypto.Address
	if err := m.KVGetList([]byte(lendingMarketListKey), &list); err != nil {
		return nil, fmt.Errorf("state: lending market list: %w", err)
	}
	return list, nil
}

func (m *Manager) PutLendingMarketList(list []crypto.Address) error {
	return m.KVPut([]byte(lendingMarketListKey), list)
}

// LendingPosition returns nil when the account never touched the market.
func (m *Manager) LendingPosition(market, account crypto.Address) (*lending.Position, error) {
	var pos lending.Position
	ok, err := m.KVGet(lendingPositionKey(market, account), &pos)
	if err != nil {
		return nil, fmt.Errorf("state: lending position: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &pos, nil
}

func (m *Manager) PutLendingPosition(pos *lending.Position) error {
	if pos == nil {
		return fmt.Errorf("state: nil lending position")
	}
	return m.KVPut(lendingPositionKey(pos.Market, pos.Account), pos)
}

func (m *Manager) LendingAccountAssets(account crypto.Address) ([]crypto.Address, error) {
	var list []crypto.Address
	if err := m.KVGetList(lendingAssetsKey(account), &list); err != nil {
		return nil, fmt.Errorf("state: lending account assets: %w", err)
	}
	return list, nil
}

func (m *Manager) PutLendingAccountAssets(account crypto.Address, markets []crypto.Address) error {
	if len(markets) == 0 {
		return m.KVDelete(lendingAssetsKey(account))
	}
	return m.KVPut(lendingAssetsKey(account), markets)
}

func (m *Manager) LendingRewardMarket(rt lending.RewardType, market crypto.Address) (*lending.RewardMarketState, error) {
	var s lending.RewardMarketState
	ok, err := m.KVGet(lendingRewardMarketKey(uint8(rt), market), &s)
	if err != nil {
		return nil, fmt.Errorf("state: reward market: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Manager) PutLendingRewardMarket(rt lending.RewardType, market crypto.Address, s *lending.RewardMarketState) error {
	if s == nil {
		return fmt.Errorf("state: nil reward market state")
	}
	return m.KVPut(lendingRewardMarketKey(uint8(rt), market), s)
}

func (m *Manager) LendingRewardAccount(rt lending.RewardType, market, account crypto.Address) (*lending.RewardAccountState, error) {
	var s lending.RewardAccountState
	ok, err := m.KVGet(lendingRewardAccountKey(uint8(rt), market, account), &s)
	if err != nil {
		return nil, fmt.Errorf("state: reward account: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Manager) PutLendingRewardAccount(rt lending.RewardType, market, account crypto.Address, s *lending.RewardAccountState) error {
	if s == nil {
		return fmt.Errorf("state: nil reward account state")
	}
	return m.KVPut(lendingRewardAccountKey(uint8(rt), market, account), s)
}

func (m *Manager) LendingContributorReward(rt lending.RewardType, contributor crypto.Address) (*lending.ContributorReward, error) {
	var s lending.ContributorReward
	ok, err := m.KVGet(lendingContributorKey(uint8(rt), contributor), &s)
	if err != nil {
		return nil, fmt.Errorf("state: contributor reward: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Manager) PutLendingContributorReward(rt lending.RewardType, contributor crypto.Address, s *lending.ContributorReward) error {
	if s == nil || s.Speed == nil || s.Speed.IsZero() {
		return m.KVDelete(lendingContributorKey(uint8(rt), contributor))
	}
	return m.KVPut(lendingContributorKey(uint8(rt), contributor), s)
}

// LendingRewardAccrued returns the unpaid reward balance, zero when absent.
func (m *Manager) LendingRewardAccrued(rt lending.RewardType, account crypto.Address) (*uint256.Int, error) {
	return m.loadAmount(lendingRewardAccruedKey(uint8(rt), account))
}

func (m *Manager) PutLendingRewardAccrued(rt lending.RewardType, account crypto.Address, amount *uint256.Int) error {
	return m.putAmount(lendingRewardAccruedKey(uint8(rt), account), amount)
}

func (m *Manager) loadAmount(key []byte) (*uint256.Int, error) {
	value := new(uint256.Int)
	if _, err := m.KVGet(key, value); err != nil {
		return nil, err
	}
	return value, nil
}

// putAmount deletes the key for zero amounts so empty balances leave no
// residue in the database.
func (m *Manager) putAmount(key []byte, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return m.KVDelete(key)
	}
	return m.KVPut(key, amount)
}
