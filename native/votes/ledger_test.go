package votes

import (
	"errors"
	"fmt"
	"testing"

	"github.com/holiman/uint256"

	"moneymarket/core/events"
	"moneymarket/core/exp"
	"moneymarket/crypto"
	nativecommon "moneymarket/native/common"
)

type mockVotesState struct {
	delegates   map[crypto.Address]crypto.Address
	counts      map[crypto.Address]uint64
	checkpoints map[string]*Checkpoint
	nonces      map[crypto.Address]uint64
}

func newMockVotesState() *mockVotesState {
	return &mockVotesState{
		delegates:   make(map[crypto.Address]crypto.Address),
		counts:      make(map[crypto.Address]uint64),
		checkpoints: make(map[string]*Checkpoint),
		nonces:      make(map[crypto.Address]uint64),
	}
}

func cpKey(a crypto.Address, i uint64) string { return fmt.Sprintf("%s/%d", a.Hex(), i) }

func (m *mockVotesState) VotesDelegate(a crypto.Address) (crypto.Address, error) {
	return m.delegates[a], nil
}
func (m *mockVotesState) PutVotesDelegate(a, d crypto.Address) error {
	m.delegates[a] = d
	return nil
}
func (m *mockVotesState) VotesCheckpointCount(a crypto.Address) (uint64, error) {
	return m.counts[a], nil
}
func (m *mockVotesState) PutVotesCheckpointCount(a crypto.Address, n uint64) error {
	m.counts[a] = n
	return nil
}
func (m *mockVotesState) VotesCheckpoint(a crypto.Address, i uint64) (*Checkpoint, error) {
	cp, ok := m.checkpoints[cpKey(a, i)]
	if !ok {
		return nil, nil
	}
	return &Checkpoint{FromBlock: cp.FromBlock, Votes: exp.Clone(cp.Votes)}, nil
}
func (m *mockVotesState) PutVotesCheckpoint(a crypto.Address, i uint64, cp *Checkpoint) error {
	m.checkpoints[cpKey(a, i)] = &Checkpoint{FromBlock: cp.FromBlock, Votes: exp.Clone(cp.Votes)}
	return nil
}
func (m *mockVotesState) VotesNonce(a crypto.Address) (uint64, error) { return m.nonces[a], nil }
func (m *mockVotesState) PutVotesNonce(a crypto.Address, n uint64) error {
	m.nonces[a] = n
	return nil
}

type mockBalances map[crypto.Address]*uint256.Int

func (m mockBalances) BalanceOf(a crypto.Address) (*uint256.Int, error) {
	return exp.Clone(m[a]), nil
}

// transfer mimics the token ledger: move the balance, then notify.
func transfer(t *testing.T, l *Ledger, bals mockBalances, from, to crypto.Address, amount uint64) {
	t.Helper()
	bals[from] = new(uint256.Int).Sub(exp.Clone(bals[from]), exp.New(amount))
	bals[to] = new(uint256.Int).Add(exp.Clone(bals[to]), exp.New(amount))
	if err := l.OnTransfer(from, to, exp.New(amount)); err != nil {
		t.Fatalf("transfer hook: %v", err)
	}
}

func makeAddress(b byte) crypto.Address { return crypto.BytesToAddress([]byte{0xaa, b}) }

func newTestLedger() (*Ledger, mockBalances, *events.Recorder) {
	bals := mockBalances{}
	l := NewLedger(newMockVotesState(), bals, Domain{Name: "Governance", ChainID: 43114, VerifyingContract: makeAddress(0xff)})
	rec := &events.Recorder{}
	l.SetEmitter(rec)
	return l, bals, rec
}

func votesAt(t *testing.T, l *Ledger, a crypto.Address, block uint64) uint64 {
	t.Helper()
	v, err := l.PriorVotes(a, block)
	if err != nil {
		t.Fatalf("prior votes at %d: %v", block, err)
	}
	return v.Uint64()
}

func TestUndelegatedBalanceHasNoVotes(t *testing.T) {
	l, bals, _ := newTestLedger()
	alice := makeAddress(1)
	bals[alice] = exp.New(100)
	votes, err := l.CurrentVotes(alice)
	if err != nil {
		t.Fatalf("current votes: %v", err)
	}
	if !votes.IsZero() {
		t.Fatalf("expected no votes before delegating, got %s", votes.Dec())
	}
}

func TestPriorVotesAcrossCheckpoints(t *testing.T) {
	l, bals, rec := newTestLedger()
	alice, bob := makeAddress(1), makeAddress(2)
	bals[alice] = exp.New(100)

	l.SetBlock(10, 1000)
	if err := l.Delegate(alice, alice); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	l.SetBlock(12, 1024)
	transfer(t, l, bals, alice, bob, 10)
	l.SetBlock(13, 1036)

	if got := votesAt(t, l, alice, 9); got != 0 {
		t.Fatalf("unexpected votes at 9: %d", got)
	}
	if got := votesAt(t, l, alice, 10); got != 100 {
		t.Fatalf("unexpected votes at 10: %d", got)
	}
	if got := votesAt(t, l, alice, 11); got != 100 {
		t.Fatalf("unexpected votes at 11: %d", got)
	}
	if got := votesAt(t, l, alice, 12); got != 90 {
		t.Fatalf("unexpected votes at 12: %d", got)
	}
	if got := votesAt(t, l, bob, 12); got != 0 {
		t.Fatalf("undelegated receiver must have no votes, got %d", got)
	}
	if _, err := l.PriorVotes(alice, 13); !errors.Is(err, ErrNotYetDetermined) {
		t.Fatalf("expected not yet determined, got %v", err)
	}
	if rec.Last(events.TypeDelegateChanged) == nil {
		t.Fatalf("expected delegate changed event")
	}
}

func TestOneCheckpointPerBlock(t *testing.T) {
	l, bals, _ := newTestLedger()
	alice, bob, carol := makeAddress(1), makeAddress(2), makeAddress(3)
	bals[alice] = exp.New(100)
	bals[bob] = exp.New(50)

	l.SetBlock(5, 500)
	if err := l.Delegate(alice, carol); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	if err := l.Delegate(bob, carol); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	transfer(t, l, bals, alice, bob, 0)
	n, _ := l.NumCheckpoints(carol)
	if n != 1 {
		t.Fatalf("expected a single checkpoint, got %d", n)
	}
	votes, _ := l.CurrentVotes(carol)
	if votes.Uint64() != 150 {
		t.Fatalf("unexpected votes: %s", votes.Dec())
	}

	// Redelegating moves the whole balance.
	l.SetBlock(6, 512)
	if err := l.Delegate(alice, alice); err != nil {
		t.Fatalf("redelegate: %v", err)
	}
	carolVotes, _ := l.CurrentVotes(carol)
	aliceVotes, _ := l.CurrentVotes(alice)
	if carolVotes.Uint64() != 50 || aliceVotes.Uint64() != 100 {
		t.Fatalf("unexpected votes after redelegation: carol=%s alice=%s", carolVotes.Dec(), aliceVotes.Dec())
	}
	cp, err := l.Checkpoint(carol, 1)
	if err != nil || cp.FromBlock != 6 {
		t.Fatalf("unexpected checkpoint: %+v %v", cp, err)
	}
	if _, err := l.Checkpoint(carol, 2); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestPriorVotesBinarySearch(t *testing.T) {
	l, bals, _ := newTestLedger()
	alice, bob := makeAddress(1), makeAddress(2)
	bals[alice] = exp.New(1_000)
	l.SetBlock(1, 100)
	if err := l.Delegate(alice, alice); err != nil {
		t.Fatalf("delegate: %v", err)
	}
	for block := uint64(3); block <= 21; block += 2 {
		l.SetBlock(block, block*10)
		transfer(t, l, bals, alice, bob, 10)
	}
	l.SetBlock(30, 300)
	for block := uint64(1); block <= 22; block++ {
		want := uint64(1_000)
		for b := uint64(3); b <= 21 && b <= block; b += 2 {
			want -= 10
		}
		if got := votesAt(t, l, alice, block); got != want {
			t.Fatalf("block %d: got %d want %d", block, got, want)
		}
	}
}

func TestDelegateBySig(t *testing.T) {
	l, bals, _ := newTestLedger()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := key.PubKey().Address()
	delegatee := makeAddress(9)
	bals[signer] = exp.New(42)
	l.SetBlock(3, 1_000)

	sign := func(nonce, expiry uint64) []byte {
		sig, err := key.Sign(l.Domain().DelegationDigest(delegatee, nonce, expiry))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return sig
	}

	if err := l.DelegateBySig(delegatee, 0, 2_000, []byte{0x01}); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	if err := l.DelegateBySig(delegatee, 1, 2_000, sign(1, 2_000)); !errors.Is(err, ErrNonceMismatch) {
		t.Fatalf("expected nonce mismatch, got %v", err)
	}
	if err := l.DelegateBySig(delegatee, 0, 2_000, sign(0, 2_000)); err != nil {
		t.Fatalf("delegate by sig: %v", err)
	}
	got, _ := l.Delegates(signer)
	if got != delegatee {
		t.Fatalf("unexpected delegate: %s", got)
	}
	votes, _ := l.CurrentVotes(delegatee)
	if votes.Uint64() != 42 {
		t.Fatalf("unexpected votes: %s", votes.Dec())
	}
	if err := l.DelegateBySig(delegatee, 0, 2_000, sign(0, 2_000)); !errors.Is(err, ErrNonceMismatch) {
		t.Fatalf("expected replay to fail, got %v", err)
	}
	if err := l.DelegateBySig(delegatee, 1, 999, sign(1, 999)); !errors.Is(err, ErrSignatureExpired) {
		t.Fatalf("expected expired signature, got %v", err)
	}
}

func TestDelegateBlockedWhenPaused(t *testing.T) {
	l, _, _ := newTestLedger()
	l.SetPauses(nativecommon.NewPauses("votes"))
	if err := l.Delegate(makeAddress(1), makeAddress(2)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected module paused, got %v", err)
	}
}
