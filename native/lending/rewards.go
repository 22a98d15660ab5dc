package lending

import (
	"fmt"

	"github.com/holiman/uint256"

	"moneymarket/core/events"
	"moneymarket/core/exp"
	"moneymarket/crypto"
)

func (e *Engine) rewardMarket(rt RewardType, market crypto.Address) (*RewardMarketState, error) {
	s, err := e.state.LendingRewardMarket(rt, market)
	if err != nil {
		return nil, err
	}
	return ensureRewardMarket(s), nil
}

func (e *Engine) rewardAccount(rt RewardType, market, account crypto.Address) (*RewardAccountState, error) {
	s, err := e.state.LendingRewardAccount(rt, market, account)
	if err != nil {
		return nil, err
	}
	return ensureRewardAccount(s), nil
}

func (e *Engine) rewardAccrued(rt RewardType, account crypto.Address) (*uint256.Int, error) {
	v, err := e.state.LendingRewardAccrued(rt, account)
	if err != nil {
		return nil, err
	}
	return exp.Clone(v), nil
}

// initRewardState seeds both indices of a freshly listed market.
func (e *Engine) initRewardState(market crypto.Address) error {
	for _, rt := range RewardTypes {
		s := &RewardMarketState{
			SupplyIndex:     exp.Clone(initialRewardIndex),
			SupplyTimestamp: e.blockTime,
			BorrowIndex:     exp.Clone(initialRewardIndex),
			BorrowTimestamp: e.blockTime,
		}
		if err := e.state.PutLendingRewardMarket(rt, market, ensureRewardMarket(s)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) settleSupplier(m *Market, account crypto.Address) error {
	for _, rt := range RewardTypes {
		if err := e.updateSupplyIndex(rt, m); err != nil {
			return err
		}
		if err := e.distributeSupplier(rt, m, account); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) settleBorrower(m *Market, account crypto.Address) error {
	for _, rt := range RewardTypes {
		if err := e.updateBorrowIndex(rt, m); err != nil {
			return err
		}
		if err := e.distributeBorrower(rt, m, account); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) updateSupplyIndex(rt RewardType, m *Market) error {
	s, err := e.rewardMarket(rt, m.Address)
	if err != nil {
		return err
	}
	now := e.blockTime
	if now <= s.SupplyTimestamp {
		return nil
	}
	if !s.SupplySpeed.IsZero() && !m.TotalSupply.IsZero() {
		accrued, err := exp.Mul(s.SupplySpeed, uint256.NewInt(now-s.SupplyTimestamp))
		if err != nil {
			return err
		}
		ratio, err := exp.FractionDouble(accrued, m.TotalSupply)
		if err != nil {
			return err
		}
		if s.SupplyIndex, err = exp.Add(s.SupplyIndex, ratio); err != nil {
			return err
		}
	}
	s.SupplyTimestamp = now
	return e.state.PutLendingRewardMarket(rt, m.Address, s)
}

func (e *Engine) updateBorrowIndex(rt RewardType, m *Market) error {
	s, err := e.rewardMarket(rt, m.Address)
	if err != nil {
		return err
	}
	now := e.blockTime
	if now <= s.BorrowTimestamp {
		return nil
	}
	if !s.BorrowSpeed.IsZero() {
		borrowAmount, err := exp.DivScalarByExpTruncate(m.TotalBorrows, m.BorrowIndex)
		if err != nil {
			return err
		}
		if !borrowAmount.IsZero() {
			accrued, err := exp.Mul(s.BorrowSpeed, uint256.NewInt(now-s.BorrowTimestamp))
			if err != nil {
				return err
			}
			ratio, err := exp.FractionDouble(accrued, borrowAmount)
			if err != nil {
				return err
			}
			if s.BorrowIndex, err = exp.Add(s.BorrowIndex, ratio); err != nil {
				return err
			}
		}
	}
	s.BorrowTimestamp = now
	return e.state.PutLendingRewardMarket(rt, m.Address, s)
}

func (e *Engine) distributeSupplier(rt RewardType, m *Market, supplier crypto.Address) error {
	s, err := e.rewardMarket(rt, m.Address)
	if err != nil {
		return err
	}
	a, err := e.rewardAccount(rt, m.Address, supplier)
	if err != nil {
		return err
	}
	supplierIndex := a.SupplierIndex
	a.SupplierIndex = exp.Clone(s.SupplyIndex)
	if supplierIndex.IsZero() && !s.SupplyIndex.IsZero() {
		supplierIndex = exp.Clone(initialRewardIndex)
	}
	deltaIndex, err := exp.Sub(s.SupplyIndex, supplierIndex)
	if err != nil {
		return err
	}
	pos, err := e.position(m.Address, supplier)
	if err != nil {
		return err
	}
	delta, err := exp.MulDoubleTruncate(pos.Shares, deltaIndex)
	if err != nil {
		return err
	}
	if err := e.state.PutLendingRewardAccount(rt, m.Address, supplier, a); err != nil {
		return err
	}
	return e.creditReward(rt, m.Address, supplier, "supply", delta, s.SupplyIndex)
}

func (e *Engine) distributeBorrower(rt RewardType, m *Market, borrower crypto.Address) error {
	s, err := e.rewardMarket(rt, m.Address)
	if err != nil {
		return err
	}
	a, err := e.rewardAccount(rt, m.Address, borrower)
	if err != nil {
		return err
	}
	borrowerIndex := a.BorrowerIndex
	a.BorrowerIndex = exp.Clone(s.BorrowIndex)
	if borrowerIndex.IsZero() && !s.BorrowIndex.IsZero() {
		borrowerIndex = exp.Clone(initialRewardIndex)
	}
	deltaIndex, err := exp.Sub(s.BorrowIndex, borrowerIndex)
	if err != nil {
		return err
	}
	pos, err := e.position(m.Address, borrower)
	if err != nil {
		return err
	}
	debt, err := borrowBalance(m, pos)
	if err != nil {
		return err
	}
	borrowerAmount, err := exp.DivScalarByExpTruncate(debt, m.BorrowIndex)
	if err != nil {
		return err
	}
	delta, err := exp.MulDoubleTruncate(borrowerAmount, deltaIndex)
	if err != nil {
		return err
	}
	if err := e.state.PutLendingRewardAccount(rt, m.Address, borrower, a); err != nil {
		return err
	}
	return e.creditReward(rt, m.Address, borrower, "borrow", delta, s.BorrowIndex)
}

func (e *Engine) creditReward(rt RewardType, market, account crypto.Address, side string, delta, index *uint256.Int) error {
	if delta.IsZero() {
		return nil
	}
	accrued, err := e.rewardAccrued(rt, account)
	if err != nil {
		return err
	}
	total, err := exp.Add(accrued, delta)
	if err != nil {
		return err
	}
	if err := e.state.PutLendingRewardAccrued(rt, account, total); err != nil {
		return err
	}
	e.emit(events.RewardDistributed{
		RewardType: uint8(rt),
		Market:     market,
		Account:    account,
		Side:       side,
		Delta:      exp.Clone(delta),
		Index:      exp.Clone(index),
	})
	return nil
}

// contributorSide labels contributor credits; they carry no market.
const contributorSide = "contributor"

func (e *Engine) updateContributor(rt RewardType, contributor crypto.Address) error {
	s, err := e.state.LendingContributorReward(rt, contributor)
	if err != nil {
		return err
	}
	s = ensureContributor(s)
	now := e.blockTime
	if s.Speed.IsZero() || now <= s.Timestamp {
		return nil
	}
	delta, err := exp.Mul(s.Speed, uint256.NewInt(now-s.Timestamp))
	if err != nil {
		return err
	}
	if err := e.creditReward(rt, crypto.ZeroAddress, contributor, contributorSide, delta, exp.Zero()); err != nil {
		return err
	}
	s.Timestamp = now
	return e.state.PutLendingContributorReward(rt, contributor, s)
}

// UpdateContributorRewards credits the contributor with speed times the
// seconds elapsed since its last update. Accounts without a speed are
// left untouched.
func (e *Engine) UpdateContributorRewards(contributor crypto.Address, rt RewardType) error {
	leave, err := e.enter()
	if err != nil {
		return e.reject("update_contributor", err)
	}
	defer leave()
	if !rt.Valid() {
		return e.reject("update_contributor", fmt.Errorf("%w: reward type %d", ErrInvalidParameter, rt))
	}
	return e.updateContributor(rt, contributor)
}

// ContributorReward returns the stored contributor stream, zero valued
// when none is set.
func (e *Engine) ContributorReward(rt RewardType, contributor crypto.Address) (*ContributorReward, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !rt.Valid() {
		return nil, fmt.Errorf("%w: reward type %d", ErrInvalidParameter, rt)
	}
	s, err := e.state.LendingContributorReward(rt, contributor)
	if err != nil {
		return nil, err
	}
	return ensureContributor(s), nil
}

// grantReward pays amount from the controller account if it holds
// enough. It returns the unpaid remainder.
func (e *Engine) grantReward(rt RewardType, recipient crypto.Address, amount *uint256.Int) (*uint256.Int, error) {
	asset := e.rewardAssets[rt]
	if asset == "" || amount.IsZero() {
		return exp.Clone(amount), nil
	}
	balance, err := e.ledger.BalanceOf(asset, ControllerAddress)
	if err != nil {
		return nil, err
	}
	if amount.Gt(balance) {
		return exp.Clone(amount), nil
	}
	if err := e.ledger.Transfer(asset, ControllerAddress, recipient, amount); err != nil {
		return nil, err
	}
	e.metrics.ObserveRewardPaid(rt.String(), amount)
	e.emit(events.RewardGranted{RewardType: uint8(rt), Recipient: recipient, Amount: exp.Clone(amount)})
	return new(uint256.Int), nil
}

// ClaimReward settles holder in every market on both sides and pays out
// what the controller can cover.
func (e *Engine) ClaimReward(rt RewardType, holder crypto.Address) error {
	if err := e.ready(); err != nil {
		return err
	}
	markets, err := e.state.LendingMarketList()
	if err != nil {
		return err
	}
	return e.ClaimRewardFor(rt, []crypto.Address{holder}, markets, true, true)
}

// ClaimRewardFor settles the holders in the given markets and pays out.
// Unpaid amounts stay accrued.
func (e *Engine) ClaimRewardFor(rt RewardType, holders, markets []crypto.Address, borrowers, suppliers bool) error {
	leave, err := e.enter()
	if err != nil {
		return err
	}
	defer leave()
	if !rt.Valid() {
		return e.reject("claim_reward", fmt.Errorf("%w: reward type %d", ErrInvalidParameter, rt))
	}
	for _, addr := range markets {
		m, err := e.market(addr)
		if err != nil {
			return e.reject("claim_reward", err)
		}
		if borrowers {
			if err := e.updateBorrowIndex(rt, m); err != nil {
				return err
			}
			for _, h := range holders {
				if err := e.distributeBorrower(rt, m, h); err != nil {
					return err
				}
			}
		}
		if suppliers {
			if err := e.updateSupplyIndex(rt, m); err != nil {
				return err
			}
			for _, h := range holders {
				if err := e.distributeSupplier(rt, m, h); err != nil {
					return err
				}
			}
		}
	}
	for _, h := range holders {
		accrued, err := e.rewardAccrued(rt, h)
		if err != nil {
			return err
		}
		remaining, err := e.grantReward(rt, h, accrued)
		if err != nil {
			return err
		}
		if err := e.state.PutLendingRewardAccrued(rt, h, remaining); err != nil {
			return err
		}
	}
	return nil
}

// RewardAccrued returns rewards earned by account but not yet paid.
func (e *Engine) RewardAccrued(rt RewardType, account crypto.Address) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.rewardAccrued(rt, account)
}

// RewardMarketState returns the reward indices of a market.
func (e *Engine) RewardMarketState(rt RewardType, market crypto.Address) (*RewardMarketState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := e.market(market); err != nil {
		return nil, err
	}
	return e.rewardMarket(rt, market)
}
