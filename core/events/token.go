package events

import (
	"github.com/holiman/uint256"

	"moneymarket/core/types"
	"moneymarket/crypto"
)

const (
	// TypeTokenTransfer is emitted for every underlying asset balance movement.
	TypeTokenTransfer = "token.transfer"
)

// TokenTransfer records a ledger movement. Issuance has a zero From and
// burns a zero To.
type TokenTransfer struct {
	Asset  string
	From   crypto.Address
	To     crypto.Address
	Amount *uint256.Int
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	attrs := map[string]string{
		"from":   formatAddress(e.From),
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
	}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	return &types.Event{Type: TypeTokenTransfer, Attributes: attrs}
}
