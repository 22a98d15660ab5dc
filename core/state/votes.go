package state

import (
	"fmt"

	"moneymarket/crypto"
	"moneymarket/native/votes"
)

// VotesDelegate returns the zero address for accounts that never delegated.
func (m *Manager) VotesDelegate(account crypto.Address) (crypto.Address, error) {
	var delegatee crypto.Address
	if _, err := m.KVGet(votesDelegateKey(account), &delegatee); err != nil {
		return crypto.Address{}, fmt.Errorf("state: delegate: %w", err)
	}
	return delegatee, nil
}

func (m *Manager) PutVotesDelegate(account, delegatee crypto.Address) error {
	if delegatee.IsZero() {
		return m.KVDelete(votesDelegateKey(account))
	}
	return m.KVPut(votesDelegateKey(account), delegatee)
}

func (m *Manager) VotesCheckpointCount(account crypto.Address) (uint64, error) {
	var n uint64
	if _, err := m.KVGet(votesCheckpointCountKey(account), &n); err != nil {
		return 0, fmt.Errorf("state: checkpoint count: %w", err)
	}
	return n, nil
}

func (m *Manager) PutVotesCheckpointCount(account crypto.Address, n uint64) error {
	return m.KVPut(votesCheckpointCountKey(account), n)
}

func (m *Manager) VotesCheckpoint(account crypto.Address, index uint64) (*votes.Checkpoint, error) {
	var cp votes.Checkpoint
	ok, err := m.KVGet(votesCheckpointKey(account, index), &cp)
	if err != nil {
		return nil, fmt.Errorf("state: checkpoint %d: %w", index, err)
	}
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

func (m *Manager) PutVotesCheckpoint(account crypto.Address, index uint64, cp *votes.Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("state: nil checkpoint")
	}
	return m.KVPut(votesCheckpointKey(account, index), cp)
}

func (m *Manager) VotesNonce(account crypto.Address) (uint64, error) {
	var nonce uint64
	if _, err := m.KVGet(votesNonceKey(account), &nonce); err != nil {
		return 0, fmt.Errorf("state: nonce: %w", err)
	}
	return nonce, nil
}

func (m *Manager) PutVotesNonce(account crypto.Address, nonce uint64) error {
	return m.KVPut(votesNonceKey(account), nonce)
}
