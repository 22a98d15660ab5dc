package lending

import (
	"fmt"

	"github.com/holiman/uint256"

	"moneymarket/core/events"
	"moneymarket/core/exp"
	"moneymarket/crypto"
	"moneymarket/native/interest"
	"moneymarket/native/oracle"
)

func validateCloseFactor(v *uint256.Int) error {
	if v.Lt(closeFactorMin) || v.Gt(closeFactorMax) {
		return fmt.Errorf("%w: close factor %s outside [0.05, 0.9]", ErrInvalidParameter, exp.FormatMantissa(v))
	}
	return nil
}

func validateLiquidationIncentive(v *uint256.Int) error {
	if v.Lt(exp.Scale()) {
		return fmt.Errorf("%w: liquidation incentive %s below 1", ErrInvalidParameter, exp.FormatMantissa(v))
	}
	return nil
}

func validateCollateralFactor(v *uint256.Int) error {
	if v.Gt(collateralFactorMax) {
		return fmt.Errorf("%w: collateral factor %s above 0.9", ErrInvalidParameter, exp.FormatMantissa(v))
	}
	return nil
}

func validateReserveFactor(v *uint256.Int) error {
	if v.Gt(exp.Scale()) {
		return fmt.Errorf("%w: reserve factor %s above 1", ErrInvalidParameter, exp.FormatMantissa(v))
	}
	return nil
}

func (e *Engine) adminAction(caller crypto.Address) (*ControllerParams, func(), error) {
	leave, err := e.enter()
	if err != nil {
		return nil, nil, err
	}
	p, err := e.requireAdmin(caller)
	if err != nil {
		leave()
		return nil, nil, err
	}
	return p, leave, nil
}

func (e *Engine) paramUpdated(param string, market crypto.Address, old, updated string) {
	e.emit(events.ParamUpdated{Param: param, Market: market, Old: old, New: updated})
}

// SetPendingAdmin starts an admin handover. The new admin must accept.
func (e *Engine) SetPendingAdmin(caller, pending crypto.Address) error {
	p, leave, err := e.adminAction(caller)
	if err != nil {
		return err
	}
	defer leave()
	old := p.PendingAdmin
	p.PendingAdmin = pending
	if err := e.state.PutLendingParams(p); err != nil {
		return err
	}
	e.paramUpdated("pendingAdmin", crypto.ZeroAddress, old.String(), pending.String())
	return nil
}

// AcceptAdmin completes a handover started by SetPendingAdmin.
func (e *Engine) AcceptAdmin(caller crypto.Address) error {
	leave, err := e.enter()
	if err != nil {
		return err
	}
	defer leave()
	p, err := e.params()
	if err != nil {
		return err
	}
	if p.PendingAdmin.IsZero() || caller != p.PendingAdmin {
		return ErrUnauthorized
	}
	old := p.Admin
	p.Admin = p.PendingAdmin
	p.PendingAdmin = crypto.ZeroAddress
	if err := e.state.PutLendingParams(p); err != nil {
		return err
	}
	e.paramUpdated("admin", crypto.ZeroAddress, old.String(), p.Admin.String())
	return nil
}

// SetPriceOracle swaps the oracle consulted for valuations.
func (e *Engine) SetPriceOracle(caller crypto.Address, o oracle.PriceOracle) error {
	_, leave, err := e.adminAction(caller)
	if err != nil {
		return err
	}
	defer leave()
	if o == nil {
		return errNilOracle
	}
	e.oracle = o
	e.paramUpdated("oracle", crypto.ZeroAddress, "", fmt.Sprintf("%T", o))
	return nil
}

func (e *Engine) SetCloseFactor(caller crypto.Address, closeFactor *uint256.Int) error {
	p, leave, err := e.adminAction(caller)
	if err != nil {
		return err
	}
	defer leave()
	closeFactor = exp.Clone(closeFactor)
	if err := validateCloseFactor(closeFactor); err != nil {
		return e.reject("admin", err)
	}
	old := p.CloseFactor
	p.CloseFactor = closeFactor
	if err := e.state.PutLendingParams(p); err != nil {
		return err
	}
	e.paramUpdated("closeFactor", crypto.ZeroAddress, exp.FormatMantissa(old), exp.FormatMantissa(closeFactor))
	return nil
}

func (e *Engine) SetLiquidationIncentive(caller crypto.Address, incentive *uint256.Int) error {
	p, leave, err := e.adminAction(caller)
	if err != nil {
		return err
	}
	defer leave()
	incentive = exp.Clone(incentive)
	if err := validateLiquidationIncentive(incentive); err != nil {
		return e.reject("admin", err)
	}
	old := p.LiquidationIncentive
	p.LiquidationIncentive = incentive
	if err := e.state.PutLendingParams(p); err != nil {
		return err
	}
	e.paramUpdated("liquidationIncentive", crypto.ZeroAddress, exp.FormatMantissa(old), exp.FormatMantissa(incentive))
	return nil
}

// SetCollateralFactor requires a price for the market unless the factor
// is being cleared.
func (e *Engine) SetCollateralFactor(caller, market crypto.Address, factor *uint256.Int) error {
	_, leave, err := e.adminAction(caller)
	if err != nil {
		return err
	}
	defer leave()
	factor = exp.Clone(factor)
	m, err := e.market(market)
	if err != nil {
		return e.reject("admin", err)
	}
	if err := validateCollateralFactor(factor); err != nil {
		return e.reject("admin", err)
	}
	if !factor.IsZero() && e.price(m.Underlying).IsZero() {
		return e.reject("admin", fmt.Errorf("%w: %s", ErrPriceUnavailable, m.Underlying))
	}
	old := m.CollateralFactor
	m.CollateralFactor = factor
	if err := e.state.PutLendingMarket(m); err != nil {
		return err
	}
	e.paramUpdated("collateralFactor", m.Address, exp.FormatMantissa(old), exp.FormatMantissa(factor))
	return nil
}

// SupportMarket lists a new market and seeds its reward indices.
func (e *Engine) SupportMarket(caller crypto.Address, cfg MarketConfig) (crypto.Address, error) {
	_, leave, err := e.adminAction(caller)
	if err != nil {
		return crypto.Address{}, err
	}
	defer leave()
	underlying := oracle.Normalize(cfg.Underlying)
	if underlying == "" {
		return crypto.Address{}, fmt.Errorf("%w: underlying must be set", ErrInvalidParameter)
	}
	addr := MarketAddress(underlying)
	if _, ok, err := e.state.LendingMarket(addr); err != nil {
		return crypto.Address{}, err
	} else if ok {
		return crypto.Address{}, fmt.Errorf("%w: %s", ErrMarketAlreadyListed, underlying)
	}
	if cfg.InitialExchangeRate == nil || cfg.InitialExchangeRate.IsZero() {
		return crypto.Address{}, fmt.Errorf("%w: initial exchange rate must be positive", ErrInvalidParameter)
	}
	if err := validateCollateralFactor(exp.Clone(cfg.CollateralFactor)); err != nil {
		return crypto.Address{}, err
	}
	if err := validateReserveFactor(exp.Clone(cfg.ReserveFactor)); err != nil {
		return crypto.Address{}, err
	}
	if err := cfg.RateModel.Validate(); err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	symbol := cfg.Symbol
	if symbol == "" {
		symbol = "mm" + underlying
	}
	m := &Market{
		Address:             addr,
		Underlying:          underlying,
		Symbol:              symbol,
		BorrowIndex:         exp.Scale(),
		AccrualTimestamp:    e.blockTime,
		ReserveFactor:       exp.Clone(cfg.ReserveFactor),
		InitialExchangeRate: exp.Clone(cfg.InitialExchangeRate),
		CollateralFactor:    exp.Clone(cfg.CollateralFactor),
		BorrowCap:           exp.Clone(cfg.BorrowCap),
		IsListed:            true,
		RateModel:           cfg.RateModel.Clone(),
	}
	ensureMarket(m)
	if err := e.state.PutLendingMarket(m); err != nil {
		return crypto.Address{}, err
	}
	list, err := e.state.LendingMarketList()
	if err != nil {
		return crypto.Address{}, err
	}
	if err := e.state.PutLendingMarketList(append(list, addr)); err != nil {
		return crypto.Address{}, err
	}
	if err := e.initRewardState(addr); err != nil {
		return crypto.Address{}, err
	}
	e.emit(events.MarketListed{Market: addr, Underlying: underlying, Symbol: symbol})
	return addr, nil
}

// SetMarketBorrowCaps may be called by the admin or the borrow cap
// guardian. A zero cap removes the limit.
func (e *Engine) SetMarketBorrowCaps(caller crypto.Address, markets []crypto.Address, caps []*uint256.Int) error {
	leave, err := e.enter()
	if err != nil {
		return err
	}
	defer leave()
	p, err := e.params()
	if err != nil {
		return err
	}
	if caller != p.Admin && (p.BorrowCapGuardian.IsZero() || caller != p.BorrowCapGuardian) {
		return ErrUnauthorized
	}
	if len(markets) == 0 || len(markets) != len(caps) {
		return fmt.Errorf("%w: markets and caps must match", ErrInvalidParameter)
	}
	for i, addr := range markets {
		m, err := e.market(addr)
		if err != nil {
			return err
		}
		old := m.BorrowCap
		m.BorrowCap = exp.Clone(caps[i])
		if err := e.state.PutLendingMarket(m); err != nil {
			return err
		}
		e.paramUpdated("borrowCap", m.Address, old.Dec(), m.BorrowCap.Dec())
	}
	return nil
}

func (e *Engine) SetBorrowCapGuardian(caller, guardian crypto.Address) error {
	p, leave, err := e.adminAction(caller)
	if err != nil {
		return err
	}
	defer leave()
	old := p.BorrowCapGuardian
	p.BorrowCapGuardian = guardian
	if err := e.state.PutLendingParams(p); err != nil {
		return err
	}
	e.paramUpdated("borrowCapGuardian", crypto.ZeroAddress, old.String(), guardian.String())
	return nil
}

func (e *Engine) SetPauseGuardian(caller, guardian crypto.Address) error {
	p, leave, err := e.adminAction(caller)
	if err != nil {
		return err
	}
	defer leave()
	old := p.PauseGuardian
	p.PauseGuardian = guardian
	if err := e.state.PutLendingParams(p); err != nil {
		return err
	}
	e.paramUpdated("pauseGuardian", crypto.ZeroAddress, old.String(), guardian.String())
	return nil
}

// pauseAuthorized lets the admin toggle freely while the guardian may
// only pause.
func (e *Engine) pauseAuthorized(caller crypto.Address, paused bool) (*ControllerParams, error) {
	p, err := e.params()
	if err != nil {
		return nil, err
	}
	isAdmin := caller == p.Admin
	isGuardian := !p.PauseGuardian.IsZero() && caller == p.PauseGuardian
	if !isAdmin && !isGuardian {
		return nil, ErrUnauthorized
	}
	if !paused && !isAdmin {
		return nil, fmt.Errorf("%w: only admin can unpause", ErrUnauthorized)
	}
	return p, nil
}

func (e *Engine) SetMintPaused(caller, market crypto.Address, paused bool) error {
	return e.setMarketPaused(caller, market, "mint", paused)
}

func (e *Engine) SetBorrowPaused(caller, market crypto.Address, paused bool) error {
	return e.setMarketPaused(caller, market, "borrow", paused)
}

func (e *Engine) setMarketPaused(caller, market crypto.Address, action string, paused bool) error {
	leave, err := e.enter()
	if err != nil {
		return err
	}
	defer leave()
	m, err := e.market(market)
	if err != nil {
		return err
	}
	if _, err := e.pauseAuthorized(caller, paused); err != nil {
		return err
	}
	switch action {
	case "mint":
		m.MintPaused = paused
	case "borrow":
		m.BorrowPaused = paused
	}
	if err := e.state.PutLendingMarket(m); err != nil {
		return err
	}
	e.emit(events.ActionPaused{Action: action, Market: m.Address, Paused: paused})
	return nil
}

func (e *Engine) SetTransferPaused(caller crypto.Address, paused bool) error {
	return e.setGlobalPaused(caller, "transfer", paused)
}

func (e *Engine) SetSeizePaused(caller crypto.Address, paused bool) error {
	return e.setGlobalPaused(caller, "seize", paused)
}

func (e *Engine) setGlobalPaused(caller crypto.Address, action string, paused bool) error {
	leave, err := e.enter()
	if err != nil {
		return err
	}
	defer leave()
	p, err := e.pauseAuthorized(caller, paused)
	if err != nil {
		return err
	}
	switch action {
	case "transfer":
		p.TransferPaused = paused
	case "seize":
		p.SeizePaused = paused
	}
	if err := e.state.PutLendingParams(p); err != nil {
		return err
	}
	e.emit(events.ActionPaused{Action: action, Paused: paused})
	return nil
}

// SetRewardSpeed settles both indices at the old speeds before applying
// the new ones.
func (e *Engine) SetRewardSpeed(caller crypto.Address, rt RewardType, market crypto.Address, supplySpeed, borrowSpeed *uint256.Int) error {
	_, leave, err := e.adminAction(caller)
	if err != nil {
		return err
	}
	defer leave()
	if !rt.Valid() {
		return fmt.Errorf("%w: reward type %d", ErrInvalidParameter, rt)
	}
	m, err := e.market(market)
	if err != nil {
		return err
	}
	if err := e.updateSupplyIndex(rt, m); err != nil {
		return err
	}
	if err := e.updateBorrowIndex(rt, m); err != nil {
		return err
	}
	s, err := e.rewardMarket(rt, m.Address)
	if err != nil {
		return err
	}
	s.SupplySpeed = exp.Clone(supplySpeed)
	s.BorrowSpeed = exp.Clone(borrowSpeed)
	if err := e.state.PutLendingRewardMarket(rt, m.Address, s); err != nil {
		return err
	}
	e.emit(events.RewardSpeedUpdated{
		RewardType:  uint8(rt),
		Market:      m.Address,
		SupplySpeed: exp.Clone(s.SupplySpeed),
		BorrowSpeed: exp.Clone(s.BorrowSpeed),
	})
	return nil
}

// SetContributorRewardSpeed settles the contributor at its old speed and
// restarts the stream from the current block time.
func (e *Engine) SetContributorRewardSpeed(caller crypto.Address, rt RewardType, contributor crypto.Address, speed *uint256.Int) error {
	_, leave, err := e.adminAction(caller)
	if err != nil {
		return err
	}
	defer leave()
	if !rt.Valid() {
		return fmt.Errorf("%w: reward type %d", ErrInvalidParameter, rt)
	}
	if err := e.updateContributor(rt, contributor); err != nil {
		return err
	}
	s := &ContributorReward{Speed: exp.Clone(speed), Timestamp: e.blockTime}
	if err := e.state.PutLendingContributorReward(rt, contributor, s); err != nil {
		return err
	}
	e.emit(events.ContributorSpeedUpdated{
		RewardType:  uint8(rt),
		Contributor: contributor,
		Speed:       exp.Clone(s.Speed),
	})
	return nil
}

// GrantReward pays rewards from the controller outside the accrual
// flow. It fails when the controller cannot cover the amount.
func (e *Engine) GrantReward(caller crypto.Address, rt RewardType, recipient crypto.Address, amount *uint256.Int) error {
	_, leave, err := e.adminAction(caller)
	if err != nil {
		return err
	}
	defer leave()
	if !rt.Valid() {
		return fmt.Errorf("%w: reward type %d", ErrInvalidParameter, rt)
	}
	remaining, err := e.grantReward(rt, recipient, exp.Clone(amount))
	if err != nil {
		return err
	}
	if !remaining.IsZero() {
		return fmt.Errorf("%w: controller cannot cover grant", ErrInsufficientCash)
	}
	return nil
}

func (e *Engine) SetReserveFactor(caller, market crypto.Address, factor *uint256.Int) error {
	_, leave, err := e.adminAction(caller)
	if err != nil {
		return err
	}
	defer leave()
	factor = exp.Clone(factor)
	if err := validateReserveFactor(factor); err != nil {
		return err
	}
	m, err := e.accrue(market)
	if err != nil {
		return err
	}
	old := m.ReserveFactor
	m.ReserveFactor = factor
	if err := e.state.PutLendingMarket(m); err != nil {
		return err
	}
	e.paramUpdated("reserveFactor", m.Address, exp.FormatMantissa(old), exp.FormatMantissa(factor))
	return nil
}

// SetInterestRateModel accrues at the old model before switching.
func (e *Engine) SetInterestRateModel(caller, market crypto.Address, params interest.Params) error {
	_, leave, err := e.adminAction(caller)
	if err != nil {
		return err
	}
	defer leave()
	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	m, err := e.accrue(market)
	if err != nil {
		return err
	}
	old := m.RateModel.Kind
	m.RateModel = params.Clone()
	if err := e.state.PutLendingMarket(m); err != nil {
		return err
	}
	e.paramUpdated("interestRateModel", m.Address, old, params.Kind)
	return nil
}

// AddReserves moves the caller's underlying into the market as reserves.
// Anyone may add.
func (e *Engine) AddReserves(caller, market crypto.Address, amount *uint256.Int) error {
	leave, err := e.enter()
	if err != nil {
		return err
	}
	defer leave()
	amount = exp.Clone(amount)
	m, err := e.accrue(market)
	if err != nil {
		return err
	}
	reserves, err := exp.Add(m.TotalReserves, amount)
	if err != nil {
		return err
	}
	if err := e.ledger.Transfer(m.Underlying, caller, m.Address, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	}
	m.TotalReserves = reserves
	if err := e.state.PutLendingMarket(m); err != nil {
		return err
	}
	e.emit(events.ReservesChanged{Market: m.Address, Actor: caller, Amount: amount, TotalReserves: exp.Clone(reserves), Added: true})
	return nil
}

// ReduceReserves pays reserves out to the admin.
func (e *Engine) ReduceReserves(caller, market crypto.Address, amount *uint256.Int) error {
	p, leave, err := e.adminAction(caller)
	if err != nil {
		return err
	}
	defer leave()
	amount = exp.Clone(amount)
	m, err := e.accrue(market)
	if err != nil {
		return err
	}
	cash, err := e.cash(m)
	if err != nil {
		return err
	}
	if cash.Lt(amount) {
		return ErrInsufficientCash
	}
	if m.TotalReserves.Lt(amount) {
		return fmt.Errorf("%w: reduce exceeds reserves", ErrInvalidParameter)
	}
	m.TotalReserves = new(uint256.Int).Sub(m.TotalReserves, amount)
	if err := e.state.PutLendingMarket(m); err != nil {
		return err
	}
	if err := e.ledger.Transfer(m.Underlying, m.Address, p.Admin, amount); err != nil {
		return err
	}
	e.emit(events.ReservesChanged{Market: m.Address, Actor: p.Admin, Amount: amount, TotalReserves: exp.Clone(m.TotalReserves)})
	return nil
}
