package lending

import (
	"errors"
	"reflect"
	"testing"

	"github.com/holiman/uint256"

	"moneymarket/core/events"
	"moneymarket/crypto"
)

func newProxyEnv(t *testing.T) (*testEnv, *Proxy) {
	t.Helper()
	env := newTestEnv(t)
	proxy := NewProxy(env.state, env.engine)
	proxy.SetBlock(1, env.now)
	return env, proxy
}

func TestProxyRollsBackFailedLiquidation(t *testing.T) {
	env, coll, dai := underwater(t)
	proxy := NewProxy(env.state, env.engine)
	proxy.SetBlock(1, env.now)
	if err := proxy.SetSeizePaused(adminAddr, true); err != nil {
		t.Fatalf("pause seize: %v", err)
	}
	before := env.state.fingerprint()

	// The repay leg succeeds before seize is rejected; none of it may stick.
	if _, _, err := proxy.LiquidateBorrow(liquidatorAddr, aliceAddr, dai, coll, units(1_000)); !errors.Is(err, ErrSeizePaused) {
		t.Fatalf("expected seize paused, got %v", err)
	}
	if !reflect.DeepEqual(before, env.state.fingerprint()) {
		t.Fatalf("failed liquidation mutated state")
	}
	if bal := env.balance("DAI", liquidatorAddr); !bal.Eq(units(300_000)) {
		t.Fatalf("liquidator charged %s", bal)
	}
}

func TestProxyQueriesDoNotPersistAccrual(t *testing.T) {
	env, proxy := newProxyEnv(t)
	_, dai := env.borrowSetup()
	if err := proxy.Borrow(aliceAddr, dai, units(100_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	env.advance(3_600)
	proxy.SetBlock(env.now/10, env.now)

	current, err := proxy.BorrowBalanceCurrent(aliceAddr, dai)
	if err != nil {
		t.Fatalf("borrow balance current: %v", err)
	}
	if !current.Gt(units(100_000)) {
		t.Fatalf("no interest in current balance: %s", current)
	}
	if _, err := proxy.AccountLiquidity(aliceAddr); err != nil {
		t.Fatalf("account liquidity: %v", err)
	}
	m, err := proxy.Market(dai)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if m.AccrualTimestamp != env.now {
		t.Fatalf("BorrowBalanceCurrent should persist accrual, timestamp %d", m.AccrualTimestamp)
	}

	env.advance(3_600)
	proxy.SetBlock(env.now/10, env.now)
	if _, err := proxy.AccountLiquidity(aliceAddr); err != nil {
		t.Fatalf("account liquidity: %v", err)
	}
	m, _ = proxy.Market(dai)
	if m.AccrualTimestamp == env.now {
		t.Fatalf("query persisted accrual")
	}
}

func TestProxyUpgrade(t *testing.T) {
	env, proxy := newProxyEnv(t)
	coll := env.list("COLL", "0.5", "1")

	next := NewEngine(env.state, env.ledger, env.oracle)
	if err := proxy.SetPendingImplementation(aliceAddr, next); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := proxy.AcceptImplementation(adminAddr); !errors.Is(err, ErrNoImplementation) {
		t.Fatalf("expected no pending implementation, got %v", err)
	}
	if err := proxy.SetPendingImplementation(adminAddr, next); err != nil {
		t.Fatalf("set pending: %v", err)
	}
	if proxy.PendingImplementation() != Protocol(next) {
		t.Fatalf("pending not staged")
	}
	if err := proxy.AcceptImplementation(adminAddr); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if proxy.Implementation() != Protocol(next) || proxy.PendingImplementation() != nil {
		t.Fatalf("implementation not swapped")
	}
	if next.BlockTimestamp() != env.now {
		t.Fatalf("new implementation missed the block clock")
	}
	// Storage outlives the swap.
	m, err := proxy.Market(coll)
	if err != nil || m.Symbol == "" {
		t.Fatalf("market lost across upgrade: %v", err)
	}
	env.fund("COLL", aliceAddr, units(5))
	shares, err := proxy.Mint(aliceAddr, coll, units(5))
	if err != nil || !shares.Eq(units(5)) {
		t.Fatalf("mint through new implementation: %v", err)
	}
}

func TestProxyBuffersEventsUntilCommit(t *testing.T) {
	env := newTestEnv(t)
	coll := env.list("COLL", "0.5", "1")
	sink := &events.Recorder{}
	buffer := events.NewBuffer(sink)
	env.engine.SetEmitter(buffer)
	proxy := NewProxy(Journals{env.state, buffer}, env.engine)
	proxy.SetBlock(1, env.now)

	if _, err := proxy.Mint(aliceAddr, coll, units(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if len(sink.Events) != 0 {
		t.Fatalf("failed action leaked events: %v", sink.Types())
	}
	env.fund("COLL", aliceAddr, units(1))
	if _, err := proxy.Mint(aliceAddr, coll, units(1)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if sink.Last(events.TypeLendingMint) == nil {
		t.Fatalf("committed mint not forwarded: %v", sink.Types())
	}
}

type reentrantHook struct {
	engine *Engine
	market crypto.Address
	err    error
}

func (h *reentrantHook) OnTransfer(from, to crypto.Address, amount *uint256.Int) error {
	_, h.err = h.engine.Mint(from, h.market, amount)
	return nil
}

func TestEngineRejectsReentry(t *testing.T) {
	env := newTestEnv(t)
	coll := env.list("COLL", "0.5", "1")
	hook := &reentrantHook{engine: env.engine, market: coll}
	env.ledger.RegisterHook("COLL", hook)
	env.fund("COLL", aliceAddr, units(2))
	hook.err = nil

	if _, err := env.engine.Mint(aliceAddr, coll, units(1)); err != nil {
		t.Fatalf("outer mint: %v", err)
	}
	if !errors.Is(hook.err, ErrReentrant) {
		t.Fatalf("expected reentrant rejection, got %v", hook.err)
	}
}
