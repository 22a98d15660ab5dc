package lending

import (
	"errors"
	"testing"

	"moneymarket/core/events"
	"moneymarket/core/exp"
	"moneymarket/crypto"
)

// underwater borrows 400,000 DAI against 1,000,000 COLL and halves the
// COLL price, leaving a 150,000 shortfall.
func underwater(t *testing.T) (*testEnv, crypto.Address, crypto.Address) {
	t.Helper()
	env := newTestEnv(t)
	coll, dai := env.borrowSetup()
	if err := env.engine.Borrow(aliceAddr, dai, units(400_000)); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, _, err := env.engine.LiquidateBorrow(liquidatorAddr, aliceAddr, dai, coll, units(1)); !errors.Is(err, ErrNoShortfall) {
		t.Fatalf("expected healthy account rejection, got %v", err)
	}
	if err := env.oracle.SetPrice(adminAddr, "COLL", exp.MustMantissa("0.5")); err != nil {
		t.Fatalf("set price: %v", err)
	}
	liq, err := env.engine.AccountLiquidity(aliceAddr)
	if err != nil {
		t.Fatalf("account liquidity: %v", err)
	}
	if !liq.Shortfall.Eq(units(150_000)) {
		t.Fatalf("unexpected shortfall %s", liq.Shortfall)
	}
	env.fund("DAI", liquidatorAddr, units(300_000))
	return env, coll, dai
}

func TestLiquidateBorrowSeizesDiscountedCollateral(t *testing.T) {
	env, coll, dai := underwater(t)

	preview, err := env.engine.LiquidateCalculateSeizeShares(dai, coll, units(100_000))
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	// 100,000 * 1.08 incentive / (0.5 price * 1.0 exchange rate)
	if !preview.Eq(units(216_000)) {
		t.Fatalf("unexpected seize preview %s", preview)
	}

	repaid, seized, err := env.engine.LiquidateBorrow(liquidatorAddr, aliceAddr, dai, coll, units(100_000))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if !repaid.Eq(units(100_000)) || !seized.Eq(preview) {
		t.Fatalf("repaid %s seized %s", repaid, seized)
	}
	debt, _ := env.engine.BorrowBalanceStored(aliceAddr, dai)
	if !debt.Eq(units(300_000)) {
		t.Fatalf("borrower debt %s", debt)
	}
	borrower, _ := env.engine.AccountSnapshot(aliceAddr, coll)
	if !borrower.Shares.Eq(units(784_000)) {
		t.Fatalf("borrower shares %s", borrower.Shares)
	}
	liquidator, _ := env.engine.AccountSnapshot(liquidatorAddr, coll)
	if !liquidator.Shares.Eq(units(216_000)) {
		t.Fatalf("liquidator shares %s", liquidator.Shares)
	}
	if bal := env.balance("DAI", liquidatorAddr); !bal.Eq(units(200_000)) {
		t.Fatalf("liquidator DAI %s", bal)
	}
	evt, ok := env.recorder.Last(events.TypeLendingLiquidateBorrow).(events.LiquidateBorrow)
	if !ok || evt.Borrower != aliceAddr || evt.CollateralMarket != coll {
		t.Fatalf("missing liquidation event")
	}
}

func TestLiquidateBorrowRespectsCloseFactor(t *testing.T) {
	env, coll, dai := underwater(t)
	if _, _, err := env.engine.LiquidateBorrow(liquidatorAddr, aliceAddr, dai, coll, units(200_001)); !errors.Is(err, ErrTooMuchRepay) {
		t.Fatalf("expected close factor rejection, got %v", err)
	}
	if _, _, err := env.engine.LiquidateBorrow(liquidatorAddr, aliceAddr, dai, coll, units(200_000)); err != nil {
		t.Fatalf("liquidate at close factor: %v", err)
	}
}

func TestLiquidateBorrowRejectsBadInput(t *testing.T) {
	env, coll, dai := underwater(t)
	if _, _, err := env.engine.LiquidateBorrow(aliceAddr, aliceAddr, dai, coll, units(1)); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected self liquidation rejection, got %v", err)
	}
	if _, _, err := env.engine.LiquidateBorrow(liquidatorAddr, aliceAddr, dai, coll, exp.Zero()); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected zero repay rejection, got %v", err)
	}
	if _, _, err := env.engine.LiquidateBorrow(liquidatorAddr, aliceAddr, dai, coll, exp.Max()); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected max repay rejection, got %v", err)
	}
}

func TestLiquidateBorrowWhileSeizePaused(t *testing.T) {
	env, coll, dai := underwater(t)
	if err := env.engine.SetSeizePaused(adminAddr, true); err != nil {
		t.Fatalf("pause seize: %v", err)
	}
	_, _, err := env.engine.LiquidateBorrow(liquidatorAddr, aliceAddr, dai, coll, units(1_000))
	if !errors.Is(err, ErrSeizePaused) || !errors.Is(err, ErrActionPaused) {
		t.Fatalf("expected seize paused, got %v", err)
	}
}

func TestHealthyCollateralCannotBeSeized(t *testing.T) {
	env := newTestEnv(t)
	coll, dai := env.borrowSetup()
	env.fund("DAI", liquidatorAddr, units(300_000))

	// A market address is public, so acting as one grants nothing.
	for _, liquidator := range []crypto.Address{liquidatorAddr, dai} {
		_, _, err := env.engine.LiquidateBorrow(liquidator, aliceAddr, dai, coll, units(1_000))
		if !errors.Is(err, ErrNoShortfall) {
			t.Fatalf("liquidator %s: expected no shortfall, got %v", liquidator, err)
		}
	}
	snap, err := env.engine.AccountSnapshot(aliceAddr, coll)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.Shares.Eq(units(1_000_000)) {
		t.Fatalf("collateral moved: %s", snap.Shares)
	}
	for _, holder := range []crypto.Address{liquidatorAddr, dai} {
		got, err := env.engine.AccountSnapshot(holder, coll)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if !got.Shares.IsZero() {
			t.Fatalf("%s received %s collateral shares", holder, got.Shares)
		}
	}
}
