package lending

import (
	"errors"
	"testing"

	"moneymarket/core/events"
	"moneymarket/core/exp"
	nativecommon "moneymarket/native/common"
	"moneymarket/native/interest"
)

func TestInitializeOnce(t *testing.T) {
	env := newTestEnv(t)
	params, err := env.engine.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if !params.CloseFactor.Eq(exp.MustMantissa("0.5")) || !params.LiquidationIncentive.Eq(exp.MustMantissa("1.08")) {
		t.Fatalf("unexpected defaults: close %s incentive %s", params.CloseFactor, params.LiquidationIncentive)
	}
	if err := env.engine.Initialize(ControllerParams{Admin: bobAddr}); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected already initialised, got %v", err)
	}
}

func TestRiskParameterBounds(t *testing.T) {
	env := newTestEnv(t)
	coll := env.list("COLL", "0.5", "1")

	cases := []struct {
		name string
		run  func() error
		err  error
	}{
		{"close factor below min", func() error { return env.engine.SetCloseFactor(adminAddr, exp.MustMantissa("0.04")) }, ErrInvalidParameter},
		{"close factor above max", func() error { return env.engine.SetCloseFactor(adminAddr, exp.MustMantissa("0.91")) }, ErrInvalidParameter},
		{"close factor at max", func() error { return env.engine.SetCloseFactor(adminAddr, exp.MustMantissa("0.9")) }, nil},
		{"close factor by non admin", func() error { return env.engine.SetCloseFactor(aliceAddr, exp.MustMantissa("0.5")) }, ErrUnauthorized},
		{"incentive below one", func() error { return env.engine.SetLiquidationIncentive(adminAddr, exp.MustMantissa("0.99")) }, ErrInvalidParameter},
		{"incentive of one", func() error { return env.engine.SetLiquidationIncentive(adminAddr, exp.Scale()) }, nil},
		{"collateral factor above max", func() error { return env.engine.SetCollateralFactor(adminAddr, coll, exp.MustMantissa("0.91")) }, ErrInvalidParameter},
		{"collateral factor at max", func() error { return env.engine.SetCollateralFactor(adminAddr, coll, exp.MustMantissa("0.9")) }, nil},
		{"reserve factor above one", func() error { return env.engine.SetReserveFactor(adminAddr, coll, exp.MustMantissa("1.01")) }, ErrInvalidParameter},
		{"unlisted market", func() error { return env.engine.SetCollateralFactor(adminAddr, MarketAddress("NOPE"), exp.Zero()) }, ErrMarketNotListed},
	}
	for _, tc := range cases {
		err := tc.run()
		if tc.err == nil && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if tc.err != nil && !errors.Is(err, tc.err) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.err, err)
		}
	}
}

func TestCollateralFactorNeedsPrice(t *testing.T) {
	env := newTestEnv(t)
	coll := env.list("COLL", "0", "1")
	if err := env.oracle.SetPrice(adminAddr, "COLL", exp.Zero()); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if err := env.engine.SetCollateralFactor(adminAddr, coll, exp.MustMantissa("0.5")); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected price unavailable, got %v", err)
	}
	if err := env.engine.SetCollateralFactor(adminAddr, coll, exp.Zero()); err != nil {
		t.Fatalf("clearing factor without price: %v", err)
	}
}

func TestSupportMarketValidation(t *testing.T) {
	env := newTestEnv(t)
	env.list("COLL", "0.5", "1")
	if _, err := env.engine.SupportMarket(adminAddr, MarketConfig{Underlying: "coll", InitialExchangeRate: exp.Scale(), RateModel: interest.DefaultParams()}); !errors.Is(err, ErrMarketAlreadyListed) {
		t.Fatalf("expected already listed, got %v", err)
	}
	if _, err := env.engine.SupportMarket(adminAddr, MarketConfig{Underlying: "X", RateModel: interest.DefaultParams()}); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected missing exchange rate rejection, got %v", err)
	}
	if _, err := env.engine.SupportMarket(aliceAddr, MarketConfig{Underlying: "X", InitialExchangeRate: exp.Scale(), RateModel: interest.DefaultParams()}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	markets, err := env.engine.AllMarkets()
	if err != nil || len(markets) != 1 {
		t.Fatalf("unexpected markets %v: %v", markets, err)
	}
}

func TestAdminHandover(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.SetPendingAdmin(aliceAddr, aliceAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := env.engine.SetPendingAdmin(adminAddr, bobAddr); err != nil {
		t.Fatalf("set pending admin: %v", err)
	}
	if err := env.engine.AcceptAdmin(aliceAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized accept, got %v", err)
	}
	if err := env.engine.AcceptAdmin(bobAddr); err != nil {
		t.Fatalf("accept admin: %v", err)
	}
	params, _ := env.engine.Params()
	if params.Admin != bobAddr || !params.PendingAdmin.IsZero() {
		t.Fatalf("handover incomplete: %+v", params)
	}
	if err := env.engine.SetCloseFactor(adminAddr, exp.MustMantissa("0.5")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old admin kept rights: %v", err)
	}
}

func TestPauseGuardianCanOnlyPause(t *testing.T) {
	env := newTestEnv(t)
	coll := env.list("COLL", "0.5", "1")
	env.fund("COLL", aliceAddr, units(10))

	if err := env.engine.SetMintPaused(guardianAddr, coll, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized before guardian is set, got %v", err)
	}
	if err := env.engine.SetPauseGuardian(adminAddr, guardianAddr); err != nil {
		t.Fatalf("set guardian: %v", err)
	}
	if err := env.engine.SetMintPaused(guardianAddr, coll, true); err != nil {
		t.Fatalf("guardian pause: %v", err)
	}
	evt, ok := env.recorder.Last(events.TypeLendingActionPaused).(events.ActionPaused)
	if !ok || evt.Action != "mint" || !evt.Paused {
		t.Fatalf("missing pause event")
	}
	_, err := env.engine.Mint(aliceAddr, coll, units(1))
	if !errors.Is(err, ErrMintPaused) || !errors.Is(err, ErrActionPaused) {
		t.Fatalf("expected mint paused, got %v", err)
	}
	if err := env.engine.SetMintPaused(guardianAddr, coll, false); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("guardian must not unpause, got %v", err)
	}
	if err := env.engine.SetMintPaused(adminAddr, coll, false); err != nil {
		t.Fatalf("admin unpause: %v", err)
	}
	if _, err := env.engine.Mint(aliceAddr, coll, units(1)); err != nil {
		t.Fatalf("mint after unpause: %v", err)
	}
}

func TestBorrowAndTransferPauses(t *testing.T) {
	env := newTestEnv(t)
	coll, dai := env.borrowSetup()
	if err := env.engine.SetPauseGuardian(adminAddr, guardianAddr); err != nil {
		t.Fatalf("set guardian: %v", err)
	}
	if err := env.engine.SetBorrowPaused(guardianAddr, dai, true); err != nil {
		t.Fatalf("pause borrow: %v", err)
	}
	if err := env.engine.Borrow(aliceAddr, dai, units(1)); !errors.Is(err, ErrBorrowPaused) {
		t.Fatalf("expected borrow paused, got %v", err)
	}
	if err := env.engine.SetTransferPaused(guardianAddr, true); err != nil {
		t.Fatalf("pause transfer: %v", err)
	}
	if err := env.engine.Transfer(aliceAddr, bobAddr, coll, units(1)); !errors.Is(err, ErrTransferPaused) {
		t.Fatalf("expected transfer paused, got %v", err)
	}
	if err := env.engine.SetTransferPaused(aliceAddr, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestModuleHaltBlocksActions(t *testing.T) {
	env := newTestEnv(t)
	coll := env.list("COLL", "0.5", "1")
	env.fund("COLL", aliceAddr, units(1))
	pauses := nativecommon.NewPauses("lending")
	env.engine.SetPauses(pauses)

	if _, err := env.engine.Mint(aliceAddr, coll, units(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected module paused, got %v", err)
	}
	pauses.Set("lending", false)
	if _, err := env.engine.Mint(aliceAddr, coll, units(1)); err != nil {
		t.Fatalf("mint after resume: %v", err)
	}
}

func TestReserves(t *testing.T) {
	env := newTestEnv(t)
	coll := env.list("COLL", "0.5", "1")
	env.fund("COLL", bobAddr, units(1_000))

	if err := env.engine.AddReserves(bobAddr, coll, units(1_000)); err != nil {
		t.Fatalf("add reserves: %v", err)
	}
	m, _ := env.engine.Market(coll)
	if !m.TotalReserves.Eq(units(1_000)) {
		t.Fatalf("reserves %s", m.TotalReserves)
	}
	if err := env.engine.ReduceReserves(aliceAddr, coll, units(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := env.engine.ReduceReserves(adminAddr, coll, units(1_001)); !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("expected insufficient cash, got %v", err)
	}
	if err := env.engine.ReduceReserves(adminAddr, coll, units(400)); err != nil {
		t.Fatalf("reduce reserves: %v", err)
	}
	if bal := env.balance("COLL", adminAddr); !bal.Eq(units(400)) {
		t.Fatalf("admin received %s", bal)
	}
	evt, ok := env.recorder.Last(events.TypeLendingReservesReduced).(events.ReservesChanged)
	if !ok || !evt.TotalReserves.Eq(units(600)) {
		t.Fatalf("missing reserves event")
	}
}

func TestReduceReservesBeyondReserves(t *testing.T) {
	env := newTestEnv(t)
	coll := env.list("COLL", "0.5", "1")
	env.supply(aliceAddr, coll, "COLL", units(1_000))
	env.fund("COLL", bobAddr, units(10))
	if err := env.engine.AddReserves(bobAddr, coll, units(10)); err != nil {
		t.Fatalf("add reserves: %v", err)
	}
	if err := env.engine.ReduceReserves(adminAddr, coll, units(11)); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected reserves bound, got %v", err)
	}
}

func TestSetInterestRateModel(t *testing.T) {
	env := newTestEnv(t)
	coll := env.list("COLL", "0.5", "1")
	params := interest.Params{
		Kind:              interest.KindWhitePaper,
		BaseRatePerYear:   exp.MustMantissa("0.05"),
		MultiplierPerYear: exp.MustMantissa("0.2"),
	}
	if err := env.engine.SetInterestRateModel(adminAddr, coll, params); err != nil {
		t.Fatalf("set model: %v", err)
	}
	m, _ := env.engine.Market(coll)
	if m.RateModel.Kind != interest.KindWhitePaper {
		t.Fatalf("model not switched: %s", m.RateModel.Kind)
	}
	if err := env.engine.SetInterestRateModel(adminAddr, coll, interest.Params{Kind: "bogus"}); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected invalid model, got %v", err)
	}
}
