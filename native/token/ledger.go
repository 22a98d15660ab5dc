// Package token keeps underlying asset balances, including the
// governance token whose movements drive vote checkpoints.
package token

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"moneymarket/core/events"
	"moneymarket/core/exp"
	"moneymarket/crypto"
	"moneymarket/native/oracle"
)

var (
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrInvalidAsset        = errors.New("token: asset must not be empty")
	errNilState            = errors.New("token: state not configured")
)

type ledgerState interface {
	TokenBalance(asset string, addr crypto.Address) (*uint256.Int, error)
	PutTokenBalance(asset string, addr crypto.Address, balance *uint256.Int) error
	TokenSupply(asset string) (*uint256.Int, error)
	PutTokenSupply(asset string, supply *uint256.Int) error
}

// TransferHook observes balance movements of one asset. Issuance reports
// a zero from address and burns a zero to address.
type TransferHook interface {
	OnTransfer(from, to crypto.Address, amount *uint256.Int) error
}

// Ledger moves asset balances held in state.
type Ledger struct {
	state   ledgerState
	hooks   map[string]TransferHook
	emitter events.Emitter
}

func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state, hooks: make(map[string]TransferHook), emitter: events.NoopEmitter{}}
}

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// RegisterHook attaches hook to asset, replacing any existing hook.
func (l *Ledger) RegisterHook(asset string, hook TransferHook) {
	key := oracle.Normalize(asset)
	if hook == nil {
		delete(l.hooks, key)
		return
	}
	l.hooks[key] = hook
}

func (l *Ledger) BalanceOf(asset string, addr crypto.Address) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	key := oracle.Normalize(asset)
	if key == "" {
		return nil, ErrInvalidAsset
	}
	bal, err := l.state.TokenBalance(key, addr)
	if err != nil {
		return nil, err
	}
	return exp.Clone(bal), nil
}

func (l *Ledger) TotalSupply(asset string) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	supply, err := l.state.TokenSupply(oracle.Normalize(asset))
	if err != nil {
		return nil, err
	}
	return exp.Clone(supply), nil
}

// Transfer moves amount of asset from one account to another. Zero
// amounts and self transfers succeed without touching state.
func (l *Ledger) Transfer(asset string, from, to crypto.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	key := oracle.Normalize(asset)
	if key == "" {
		return ErrInvalidAsset
	}
	amount = exp.Clone(amount)
	if amount.IsZero() || from == to {
		return nil
	}
	fromBal, err := l.state.TokenBalance(key, from)
	if err != nil {
		return err
	}
	fromBal = exp.Clone(fromBal)
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, from, fromBal.Dec(), key, amount.Dec())
	}
	toBal, err := l.state.TokenBalance(key, to)
	if err != nil {
		return err
	}
	newTo, err := exp.Add(exp.Clone(toBal), amount)
	if err != nil {
		return err
	}
	if err := l.state.PutTokenBalance(key, from, new(uint256.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := l.state.PutTokenBalance(key, to, newTo); err != nil {
		return err
	}
	return l.afterTransfer(key, from, to, amount)
}

// Mint issues new units of asset to the recipient.
func (l *Ledger) Mint(asset string, to crypto.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	key := oracle.Normalize(asset)
	if key == "" {
		return ErrInvalidAsset
	}
	amount = exp.Clone(amount)
	if amount.IsZero() {
		return nil
	}
	supply, err := l.state.TokenSupply(key)
	if err != nil {
		return err
	}
	newSupply, err := exp.Add(exp.Clone(supply), amount)
	if err != nil {
		return err
	}
	bal, err := l.state.TokenBalance(key, to)
	if err != nil {
		return err
	}
	newBal, err := exp.Add(exp.Clone(bal), amount)
	if err != nil {
		return err
	}
	if err := l.state.PutTokenSupply(key, newSupply); err != nil {
		return err
	}
	if err := l.state.PutTokenBalance(key, to, newBal); err != nil {
		return err
	}
	return l.afterTransfer(key, crypto.ZeroAddress, to, amount)
}

// Burn destroys units of asset held by from.
func (l *Ledger) Burn(asset string, from crypto.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	key := oracle.Normalize(asset)
	if key == "" {
		return ErrInvalidAsset
	}
	amount = exp.Clone(amount)
	if amount.IsZero() {
		return nil
	}
	bal, err := l.state.TokenBalance(key, from)
	if err != nil {
		return err
	}
	bal = exp.Clone(bal)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, from, bal.Dec(), key, amount.Dec())
	}
	supply, err := l.state.TokenSupply(key)
	if err != nil {
		return err
	}
	newSupply, err := exp.Sub(exp.Clone(supply), amount)
	if err != nil {
		return err
	}
	if err := l.state.PutTokenSupply(key, newSupply); err != nil {
		return err
	}
	if err := l.state.PutTokenBalance(key, from, new(uint256.Int).Sub(bal, amount)); err != nil {
		return err
	}
	return l.afterTransfer(key, from, crypto.ZeroAddress, amount)
}

func (l *Ledger) afterTransfer(asset string, from, to crypto.Address, amount *uint256.Int) error {
	if hook := l.hooks[asset]; hook != nil {
		if err := hook.OnTransfer(from, to, amount); err != nil {
			return err
		}
	}
	l.emitter.Emit(events.TokenTransfer{Asset: asset, From: from, To: to, Amount: exp.Clone(amount)})
	return nil
}

// AssetView exposes one asset's balances through a single-asset interface.
type AssetView struct {
	Ledger *Ledger
	Asset  string
}

func (v AssetView) BalanceOf(addr crypto.Address) (*uint256.Int, error) {
	return v.Ledger.BalanceOf(v.Asset, addr)
}
