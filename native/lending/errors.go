package lending

import (
	"errors"

	nativecommon "moneymarket/native/common"
)

var (
	ErrUnauthorized          = errors.New("lending: unauthorized")
	ErrMarketNotListed       = errors.New("lending: market not listed")
	ErrMarketAlreadyListed   = errors.New("lending: market already listed")
	ErrActionPaused          = errors.New("lending: action paused")
	ErrMintPaused            = fmtPaused("mint")
	ErrBorrowPaused          = fmtPaused("borrow")
	ErrTransferPaused        = fmtPaused("transfer")
	ErrSeizePaused           = fmtPaused("seize")
	ErrInsufficientBalance   = errors.New("lending: insufficient balance")
	ErrInsufficientLiquidity = errors.New("lending: insufficient liquidity")
	ErrInsufficientCash      = errors.New("lending: insufficient cash")
	ErrNoShortfall           = errors.New("lending: account has no shortfall")
	ErrInvalidParameter      = errors.New("lending: invalid parameter")
	ErrBorrowCapExceeded     = errors.New("lending: market borrow cap reached")
	ErrPriceUnavailable      = errors.New("lending: price unavailable")
	ErrNonzeroBorrowBalance  = errors.New("lending: nonzero borrow balance")
	ErrTooMuchRepay          = errors.New("lending: repay exceeds close factor")
	ErrTooMuchSeize          = errors.New("lending: seize exceeds collateral")
	ErrReentrant             = errors.New("lending: reentrant call")
	ErrAlreadyInitialized    = errors.New("lending: controller already initialised")
	ErrNoImplementation      = errors.New("lending: implementation not set")

	errNilState  = errors.New("lending: state not configured")
	errNilLedger = errors.New("lending: asset ledger not configured")
	errNilOracle = errors.New("lending: price oracle not configured")
)

type pausedError struct{ action string }

func (e pausedError) Error() string { return "lending: " + e.action + " paused" }

func (e pausedError) Is(target error) bool { return target == ErrActionPaused }

func fmtPaused(action string) error { return pausedError{action: action} }

var rejectReasons = []struct {
	err    error
	reason string
}{
	{nativecommon.ErrModulePaused, "module_paused"},
	{ErrUnauthorized, "unauthorized"},
	{ErrMarketNotListed, "market_not_listed"},
	{ErrActionPaused, "paused"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrInsufficientLiquidity, "insufficient_liquidity"},
	{ErrInsufficientCash, "insufficient_cash"},
	{ErrNoShortfall, "no_shortfall"},
	{ErrBorrowCapExceeded, "borrow_cap"},
	{ErrPriceUnavailable, "price_unavailable"},
	{ErrNonzeroBorrowBalance, "nonzero_borrow"},
	{ErrTooMuchRepay, "too_much_repay"},
	{ErrTooMuchSeize, "too_much_seize"},
	{ErrReentrant, "reentrant"},
	{ErrInvalidParameter, "invalid_parameter"},
}

// rejectReason maps err onto a stable metrics label.
func rejectReason(err error) string {
	for _, r := range rejectReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}
