package lending

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"moneymarket/core/events"
	"moneymarket/core/exp"
	"moneymarket/crypto"
	"moneymarket/native/oracle"
)

func TestSupplierRewardsAccrueAndPayWhenFunded(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetRewardAsset(RewardProtocol, "GOV")
	coll := env.list("COLL", "0.5", "1")
	if err := env.engine.SetRewardSpeed(adminAddr, RewardProtocol, coll, exp.Scale(), exp.Zero()); err != nil {
		t.Fatalf("set reward speed: %v", err)
	}
	env.supply(aliceAddr, coll, "COLL", units(1_000_000))
	env.fund("GOV", ControllerAddress, units(50))

	env.advance(100)
	if err := env.engine.ClaimReward(RewardProtocol, aliceAddr); err != nil {
		t.Fatalf("claim: %v", err)
	}
	accrued, err := env.engine.RewardAccrued(RewardProtocol, aliceAddr)
	if err != nil {
		t.Fatalf("reward accrued: %v", err)
	}
	// The controller only holds 50, so the full 100 stays owed.
	if !accrued.Eq(units(100)) {
		t.Fatalf("accrued %s, want 100", accrued)
	}
	if bal := env.balance("GOV", aliceAddr); !bal.IsZero() {
		t.Fatalf("unexpected payout %s", bal)
	}
	state, err := env.engine.RewardMarketState(RewardProtocol, coll)
	if err != nil {
		t.Fatalf("reward market state: %v", err)
	}
	wantIndex := new(uint256.Int).Add(exp.DoubleScale(), new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(32)))
	if !state.SupplyIndex.Eq(wantIndex) {
		t.Fatalf("supply index %s, want %s", state.SupplyIndex, wantIndex)
	}

	env.fund("GOV", ControllerAddress, units(100))
	if err := env.engine.ClaimReward(RewardProtocol, aliceAddr); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if bal := env.balance("GOV", aliceAddr); !bal.Eq(units(100)) {
		t.Fatalf("paid %s, want 100", bal)
	}
	accrued, _ = env.engine.RewardAccrued(RewardProtocol, aliceAddr)
	if !accrued.IsZero() {
		t.Fatalf("accrued %s after payout", accrued)
	}
	if _, ok := env.recorder.Last(events.TypeLendingRewardGranted).(events.RewardGranted); !ok {
		t.Fatalf("missing reward granted event")
	}
}

func TestBorrowerRewardsInNativeAsset(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetRewardAsset(RewardNative, oracle.NativeAsset)
	_, dai := env.borrowSetup()
	if err := env.engine.SetRewardSpeed(adminAddr, RewardNative, dai, exp.Zero(), units(2)); err != nil {
		t.Fatalf("set reward speed: %v", err)
	}
	if err := env.engine.Borrow(aliceAddr, dai, units(400_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	env.fund(oracle.NativeAsset, ControllerAddress, units(1_000))

	env.advance(50)
	if err := env.engine.ClaimRewardFor(RewardNative, []crypto.Address{aliceAddr}, []crypto.Address{dai}, true, false); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if bal := env.balance(oracle.NativeAsset, aliceAddr); !bal.Eq(units(100)) {
		t.Fatalf("borrower reward %s, want 100", bal)
	}
	gov, _ := env.engine.RewardAccrued(RewardProtocol, aliceAddr)
	if !gov.IsZero() {
		t.Fatalf("protocol rewards accrued without a speed: %s", gov)
	}
}

func TestRewardAdminChecks(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetRewardAsset(RewardProtocol, "GOV")
	coll := env.list("COLL", "0.5", "1")

	if err := env.engine.SetRewardSpeed(aliceAddr, RewardProtocol, coll, exp.Scale(), exp.Scale()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := env.engine.SetRewardSpeed(adminAddr, RewardType(7), coll, exp.Scale(), exp.Scale()); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected invalid reward type, got %v", err)
	}
	if err := env.engine.ClaimReward(RewardType(7), aliceAddr); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected invalid reward type on claim, got %v", err)
	}

	env.fund("GOV", ControllerAddress, units(10))
	if err := env.engine.GrantReward(adminAddr, RewardProtocol, bobAddr, units(11)); !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("expected insufficient cash, got %v", err)
	}
	if err := env.engine.GrantReward(adminAddr, RewardProtocol, bobAddr, units(10)); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if bal := env.balance("GOV", bobAddr); !bal.Eq(units(10)) {
		t.Fatalf("granted %s", bal)
	}
}

func TestTransferSettlesSenderAndReceiver(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetRewardAsset(RewardProtocol, "GOV")
	coll := env.list("COLL", "0.5", "1")
	if err := env.engine.SetRewardSpeed(adminAddr, RewardProtocol, coll, exp.Scale(), exp.Zero()); err != nil {
		t.Fatalf("set reward speed: %v", err)
	}
	env.supply(aliceAddr, coll, "COLL", units(1_000_000))

	env.advance(100)
	if err := env.engine.Transfer(aliceAddr, bobAddr, coll, units(400_000)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	alice, _ := env.engine.RewardAccrued(RewardProtocol, aliceAddr)
	if !alice.Eq(units(100)) {
		t.Fatalf("sender accrued %s, want 100", alice)
	}
	bob, _ := env.engine.RewardAccrued(RewardProtocol, bobAddr)
	if !bob.IsZero() {
		t.Fatalf("receiver accrued %s for time before holding shares", bob)
	}

	env.advance(100)
	if err := env.engine.Transfer(bobAddr, aliceAddr, coll, units(1)); err != nil {
		t.Fatalf("transfer back: %v", err)
	}
	alice, _ = env.engine.RewardAccrued(RewardProtocol, aliceAddr)
	if !alice.Eq(units(160)) {
		t.Fatalf("receiver accrued %s, want 160", alice)
	}
	bob, _ = env.engine.RewardAccrued(RewardProtocol, bobAddr)
	if !bob.Eq(units(40)) {
		t.Fatalf("sender accrued %s, want 40", bob)
	}
}

func TestContributorRewards(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetRewardAsset(RewardProtocol, "GOV")
	speed := uint256.NewInt(2_000)

	if err := env.engine.UpdateContributorRewards(aliceAddr, RewardProtocol); err != nil {
		t.Fatalf("update non-contributor: %v", err)
	}
	if accrued, _ := env.engine.RewardAccrued(RewardProtocol, aliceAddr); !accrued.IsZero() {
		t.Fatalf("non-contributor accrued %s", accrued)
	}

	if err := env.engine.SetContributorRewardSpeed(adminAddr, RewardProtocol, bobAddr, speed); err != nil {
		t.Fatalf("set contributor speed: %v", err)
	}
	if _, ok := env.recorder.Last(events.TypeLendingContributorSpeed).(events.ContributorSpeedUpdated); !ok {
		t.Fatalf("missing contributor speed event")
	}
	env.advance(50)
	if accrued, _ := env.engine.RewardAccrued(RewardProtocol, bobAddr); !accrued.IsZero() {
		t.Fatalf("accrued %s before update", accrued)
	}
	if err := env.engine.UpdateContributorRewards(bobAddr, RewardProtocol); err != nil {
		t.Fatalf("update: %v", err)
	}
	if accrued, _ := env.engine.RewardAccrued(RewardProtocol, bobAddr); !accrued.Eq(uint256.NewInt(100_000)) {
		t.Fatalf("accrued %s, want 100000", accrued)
	}

	// Lowering the speed settles the old rate first.
	env.advance(10)
	if err := env.engine.SetContributorRewardSpeed(adminAddr, RewardProtocol, bobAddr, exp.Zero()); err != nil {
		t.Fatalf("clear contributor speed: %v", err)
	}
	env.advance(100)
	if err := env.engine.UpdateContributorRewards(bobAddr, RewardProtocol); err != nil {
		t.Fatalf("update: %v", err)
	}
	if accrued, _ := env.engine.RewardAccrued(RewardProtocol, bobAddr); !accrued.Eq(uint256.NewInt(120_000)) {
		t.Fatalf("accrued %s, want 120000", accrued)
	}
}

func TestContributorSpeedCountsFromWhenSet(t *testing.T) {
	env := newTestEnv(t)
	env.advance(1_000)
	if err := env.engine.SetContributorRewardSpeed(adminAddr, RewardNative, aliceAddr, uint256.NewInt(2_000)); err != nil {
		t.Fatalf("set contributor speed: %v", err)
	}
	env.advance(10)
	if err := env.engine.UpdateContributorRewards(aliceAddr, RewardNative); err != nil {
		t.Fatalf("update: %v", err)
	}
	if accrued, _ := env.engine.RewardAccrued(RewardNative, aliceAddr); !accrued.Eq(uint256.NewInt(20_000)) {
		t.Fatalf("accrued %s, want 20000", accrued)
	}
	st, err := env.engine.ContributorReward(RewardNative, aliceAddr)
	if err != nil {
		t.Fatalf("contributor reward: %v", err)
	}
	if st.Timestamp != env.now {
		t.Fatalf("timestamp %d, want %d", st.Timestamp, env.now)
	}

	if err := env.engine.SetContributorRewardSpeed(aliceAddr, RewardNative, aliceAddr, uint256.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := env.engine.UpdateContributorRewards(aliceAddr, RewardType(7)); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected invalid reward type, got %v", err)
	}
}
