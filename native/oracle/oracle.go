// Package oracle supplies underlying asset prices to the risk engine.
package oracle

import (
	"errors"
	"strings"
	"sync"

	"github.com/holiman/uint256"

	"moneymarket/core/exp"
	"moneymarket/crypto"
)

// NativeAsset identifies the chain's native asset. Its price is pinned
// at 1e18.
const NativeAsset = "native"

var ErrUnauthorized = errors.New("oracle: unauthorized")

// PriceOracle returns scaled prices. A zero price means the asset is not
// priced; callers degrade instead of failing.
type PriceOracle interface {
	UnderlyingPrice(asset string) (*uint256.Int, error)
}

// Normalize canonicalises an asset symbol.
func Normalize(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if strings.EqualFold(trimmed, NativeAsset) {
		return NativeAsset
	}
	return strings.ToUpper(trimmed)
}

// StaticOracle is an admin-posted price table.
type StaticOracle struct {
	mu     sync.RWMutex
	admin  crypto.Address
	prices map[string]*uint256.Int
}

func NewStaticOracle(admin crypto.Address) *StaticOracle {
	return &StaticOracle{admin: admin, prices: make(map[string]*uint256.Int)}
}

func (o *StaticOracle) Admin() crypto.Address {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.admin
}

// SetPrice posts a price. Only the admin may post.
func (o *StaticOracle) SetPrice(caller crypto.Address, asset string, price *uint256.Int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if caller != o.admin {
		return ErrUnauthorized
	}
	o.prices[Normalize(asset)] = exp.Clone(price)
	return nil
}

func (o *StaticOracle) UnderlyingPrice(asset string) (*uint256.Int, error) {
	key := Normalize(asset)
	if key == NativeAsset {
		return exp.Scale(), nil
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return exp.Clone(o.prices[key]), nil
}

// Prices returns a copy of the posted table.
func (o *StaticOracle) Prices() map[string]*uint256.Int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]*uint256.Int, len(o.prices)+1)
	for k, v := range o.prices {
		out[k] = exp.Clone(v)
	}
	out[NativeAsset] = exp.Scale()
	return out
}
