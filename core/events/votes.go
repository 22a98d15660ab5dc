package events

import (
	"github.com/holiman/uint256"

	"moneymarket/core/types"
	"moneymarket/crypto"
)

const (
	// TypeDelegateChanged is emitted when an account changes its delegate.
	TypeDelegateChanged = "votes.delegate_changed"
	// TypeDelegateVotesChanged is emitted whenever a checkpoint is written.
	TypeDelegateVotesChanged = "votes.delegate_votes_changed"
)

type DelegateChanged struct {
	Delegator    crypto.Address
	FromDelegate crypto.Address
	ToDelegate   crypto.Address
}

func (DelegateChanged) EventType() string { return TypeDelegateChanged }

func (e DelegateChanged) Event() *types.Event {
	return &types.Event{Type: TypeDelegateChanged, Attributes: map[string]string{
		"delegator":    formatAddress(e.Delegator),
		"fromDelegate": formatAddress(e.FromDelegate),
		"toDelegate":   formatAddress(e.ToDelegate),
	}}
}

type DelegateVotesChanged struct {
	Delegate        crypto.Address
	PreviousBalance *uint256.Int
	NewBalance      *uint256.Int
	Block           uint64
}

func (DelegateVotesChanged) EventType() string { return TypeDelegateVotesChanged }

func (e DelegateVotesChanged) Event() *types.Event {
	return &types.Event{Type: TypeDelegateVotesChanged, Attributes: map[string]string{
		"delegate":        formatAddress(e.Delegate),
		"previousBalance": formatAmount(e.PreviousBalance),
		"newBalance":      formatAmount(e.NewBalance),
		"block":           formatUint(e.Block),
	}}
}
