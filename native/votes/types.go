package votes

import (
	"github.com/holiman/uint256"

	"moneymarket/crypto"
)

// Checkpoint marks the votes held by a delegate from a given block on.
type Checkpoint struct {
	// FromBlock is the first block height at which Votes applies.
	FromBlock uint64
	// Votes is the delegated balance from FromBlock until the next
	// checkpoint.
	Votes *uint256.Int
}

type votesState interface {
	VotesDelegate(account crypto.Address) (crypto.Address, error)
	PutVotesDelegate(account, delegatee crypto.Address) error
	VotesCheckpointCount(account crypto.Address) (uint64, error)
	PutVotesCheckpointCount(account crypto.Address, n uint64) error
	VotesCheckpoint(account crypto.Address, index uint64) (*Checkpoint, error)
	PutVotesCheckpoint(account crypto.Address, index uint64, cp *Checkpoint) error
	VotesNonce(account crypto.Address) (uint64, error)
	PutVotesNonce(account crypto.Address, nonce uint64) error
}

// BalanceSource reports the governance token balance of an account.
type BalanceSource interface {
	BalanceOf(account crypto.Address) (*uint256.Int, error)
}

// SignatureVerifier recovers the signer of a 32 byte digest.
type SignatureVerifier interface {
	Recover(digest, sig []byte) (crypto.Address, error)
}

// Secp256k1Verifier recovers signers of recoverable secp256k1 signatures.
type Secp256k1Verifier struct{}

func (Secp256k1Verifier) Recover(digest, sig []byte) (crypto.Address, error) {
	return crypto.RecoverAddress(digest, sig)
}
