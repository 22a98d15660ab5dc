// Package votes tracks delegated governance voting power with per-block
// checkpoints. Undelegated balances carry no votes; an account must
// delegate, possibly to itself, before its balance counts.
package votes

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"moneymarket/core/events"
	"moneymarket/core/exp"
	"moneymarket/crypto"
	nativecommon "moneymarket/native/common"
)

const moduleName = "votes"

var (
	ErrInvalidSignature = errors.New("votes: invalid signature")
	ErrNonceMismatch    = errors.New("votes: invalid nonce")
	ErrSignatureExpired = errors.New("votes: signature expired")
	ErrNotYetDetermined = errors.New("votes: block not yet determined")

	errNilState = errors.New("votes: state not configured")
)

// Ledger owns delegation, checkpoints and delegation nonces.
type Ledger struct {
	state    votesState
	balances BalanceSource
	verifier SignatureVerifier
	domain   Domain
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	logger   *slog.Logger

	blockHeight uint64
	blockTime   uint64
}

func NewLedger(state votesState, balances BalanceSource, domain Domain) *Ledger {
	return &Ledger{
		state:    state,
		balances: balances,
		verifier: Secp256k1Verifier{},
		domain:   domain,
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
	}
}

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) SetVerifier(v SignatureVerifier) {
	if v == nil {
		v = Secp256k1Verifier{}
	}
	l.verifier = v
}

func (l *Ledger) SetPauses(p nativecommon.PauseView) { l.pauses = p }

func (l *Ledger) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	l.logger = logger
}

// SetBlock sets the height used for checkpoints and the timestamp used
// for signature expiry.
func (l *Ledger) SetBlock(height, timestamp uint64) {
	l.blockHeight = height
	l.blockTime = timestamp
}

func (l *Ledger) Domain() Domain { return l.domain }

func (l *Ledger) ready() error {
	if l == nil || l.state == nil || l.balances == nil {
		return errNilState
	}
	return nil
}

// Delegates returns the current delegate of account. The zero address
// means the account has not delegated.
func (l *Ledger) Delegates(account crypto.Address) (crypto.Address, error) {
	if err := l.ready(); err != nil {
		return crypto.Address{}, err
	}
	return l.state.VotesDelegate(account)
}

// Delegate points the delegator's full balance at delegatee.
func (l *Ledger) Delegate(delegator, delegatee crypto.Address) error {
	if err := l.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	return l.delegate(delegator, delegatee)
}

// DelegateBySig delegates on behalf of the signer of the delegation
// digest. Checks run in order: signature, nonce, expiry.
func (l *Ledger) DelegateBySig(delegatee crypto.Address, nonce, expiry uint64, sig []byte) error {
	if err := l.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	digest := l.domain.DelegationDigest(delegatee, nonce, expiry)
	signer, err := l.verifier.Recover(digest, sig)
	if err != nil || signer.IsZero() {
		return ErrInvalidSignature
	}
	current, err := l.state.VotesNonce(signer)
	if err != nil {
		return err
	}
	if nonce != current {
		return fmt.Errorf("%w: got %d want %d", ErrNonceMismatch, nonce, current)
	}
	if err := l.state.PutVotesNonce(signer, current+1); err != nil {
		return err
	}
	if l.blockTime > expiry {
		return ErrSignatureExpired
	}
	return l.delegate(signer, delegatee)
}

// Nonce returns the next delegation nonce expected from account.
func (l *Ledger) Nonce(account crypto.Address) (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	return l.state.VotesNonce(account)
}

func (l *Ledger) delegate(delegator, delegatee crypto.Address) error {
	current, err := l.state.VotesDelegate(delegator)
	if err != nil {
		return err
	}
	balance, err := l.balances.BalanceOf(delegator)
	if err != nil {
		return err
	}
	if err := l.state.PutVotesDelegate(delegator, delegatee); err != nil {
		return err
	}
	l.emitter.Emit(events.DelegateChanged{Delegator: delegator, FromDelegate: current, ToDelegate: delegatee})
	return l.moveDelegates(current, delegatee, balance)
}

// OnTransfer moves votes between the delegates of the two parties of a
// governance token movement.
func (l *Ledger) OnTransfer(from, to crypto.Address, amount *uint256.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	var srcRep, dstRep crypto.Address
	var err error
	if !from.IsZero() {
		if srcRep, err = l.state.VotesDelegate(from); err != nil {
			return err
		}
	}
	if !to.IsZero() {
		if dstRep, err = l.state.VotesDelegate(to); err != nil {
			return err
		}
	}
	return l.moveDelegates(srcRep, dstRep, amount)
}

func (l *Ledger) moveDelegates(srcRep, dstRep crypto.Address, amount *uint256.Int) error {
	amount = exp.Clone(amount)
	if srcRep == dstRep || amount.IsZero() {
		return nil
	}
	if !srcRep.IsZero() {
		old, err := l.CurrentVotes(srcRep)
		if err != nil {
			return err
		}
		updated, err := exp.Sub(old, amount)
		if err != nil {
			return fmt.Errorf("votes: vote amount underflows: %w", err)
		}
		if err := l.writeCheckpoint(srcRep, old, updated); err != nil {
			return err
		}
	}
	if !dstRep.IsZero() {
		old, err := l.CurrentVotes(dstRep)
		if err != nil {
			return err
		}
		updated, err := exp.Add(old, amount)
		if err != nil {
			return fmt.Errorf("votes: vote amount overflows: %w", err)
		}
		if err := l.writeCheckpoint(dstRep, old, updated); err != nil {
			return err
		}
	}
	return nil
}

// writeCheckpoint keeps at most one checkpoint per block for a delegate.
func (l *Ledger) writeCheckpoint(delegatee crypto.Address, old, updated *uint256.Int) error {
	n, err := l.state.VotesCheckpointCount(delegatee)
	if err != nil {
		return err
	}
	if n > 0 {
		last, err := l.state.VotesCheckpoint(delegatee, n-1)
		if err != nil {
			return err
		}
		if last != nil && last.FromBlock == l.blockHeight {
			last.Votes = exp.Clone(updated)
			if err := l.state.PutVotesCheckpoint(delegatee, n-1, last); err != nil {
				return err
			}
			l.emitVotesChanged(delegatee, old, updated)
			return nil
		}
	}
	cp := &Checkpoint{FromBlock: l.blockHeight, Votes: exp.Clone(updated)}
	if err := l.state.PutVotesCheckpoint(delegatee, n, cp); err != nil {
		return err
	}
	if err := l.state.PutVotesCheckpointCount(delegatee, n+1); err != nil {
		return err
	}
	l.emitVotesChanged(delegatee, old, updated)
	return nil
}

func (l *Ledger) emitVotesChanged(delegatee crypto.Address, old, updated *uint256.Int) {
	l.logger.Debug("delegate votes changed",
		slog.String("delegate", delegatee.String()),
		slog.String("previous", old.Dec()),
		slog.String("new", updated.Dec()),
		slog.Uint64("block", l.blockHeight))
	l.emitter.Emit(events.DelegateVotesChanged{
		Delegate:        delegatee,
		PreviousBalance: exp.Clone(old),
		NewBalance:      exp.Clone(updated),
		Block:           l.blockHeight,
	})
}

// NumCheckpoints returns how many checkpoints account has.
func (l *Ledger) NumCheckpoints(account crypto.Address) (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	return l.state.VotesCheckpointCount(account)
}

// Checkpoint returns the checkpoint at index.
func (l *Ledger) Checkpoint(account crypto.Address, index uint64) (*Checkpoint, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	n, err := l.state.VotesCheckpointCount(account)
	if err != nil {
		return nil, err
	}
	if index >= n {
		return nil, fmt.Errorf("votes: checkpoint %d out of range", index)
	}
	return l.state.VotesCheckpoint(account, index)
}

// CurrentVotes returns the votes held by account at the latest checkpoint.
func (l *Ledger) CurrentVotes(account crypto.Address) (*uint256.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	n, err := l.state.VotesCheckpointCount(account)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return new(uint256.Int), nil
	}
	cp, err := l.state.VotesCheckpoint(account, n-1)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return new(uint256.Int), nil
	}
	return exp.Clone(cp.Votes), nil
}

// PriorVotes returns the votes account held as of block, which must be
// strictly below the current height.
func (l *Ledger) PriorVotes(account crypto.Address, block uint64) (*uint256.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if block >= l.blockHeight {
		return nil, ErrNotYetDetermined
	}
	n, err := l.state.VotesCheckpointCount(account)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return new(uint256.Int), nil
	}
	last, err := l.state.VotesCheckpoint(account, n-1)
	if err != nil {
		return nil, err
	}
	if last.FromBlock <= block {
		return exp.Clone(last.Votes), nil
	}
	first, err := l.state.VotesCheckpoint(account, 0)
	if err != nil {
		return nil, err
	}
	if first.FromBlock > block {
		return new(uint256.Int), nil
	}
	lower, upper := uint64(0), n-1
	for upper > lower {
		center := upper - (upper-lower)/2
		cp, err := l.state.VotesCheckpoint(account, center)
		if err != nil {
			return nil, err
		}
		switch {
		case cp.FromBlock == block:
			return exp.Clone(cp.Votes), nil
		case cp.FromBlock < block:
			lower = center
		default:
			upper = center - 1
		}
	}
	cp, err := l.state.VotesCheckpoint(account, lower)
	if err != nil {
		return nil, err
	}
	return exp.Clone(cp.Votes), nil
}
