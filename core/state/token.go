package state

import (
	"github.com/holiman/uint256"

	"moneymarket/crypto"
)

func (m *Manager) TokenBalance(asset string, addr crypto.Address) (*uint256.Int, error) {
	return m.loadAmount(tokenBalanceKey(asset, addr))
}

func (m *Manager) PutTokenBalance(asset string, addr crypto.Address, balance *uint256.Int) error {
	return m.putAmount(tokenBalanceKey(asset, addr), balance)
}

func (m *Manager) TokenSupply(asset string) (*uint256.Int, error) {
	return m.loadAmount(tokenSupplyKey(asset))
}

func (m *Manager) PutTokenSupply(asset string, supply *uint256.Int) error {
	return m.putAmount(tokenSupplyKey(asset), supply)
}
