package lending

import (
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"moneymarket/core/events"
	"moneymarket/core/exp"
	"moneymarket/crypto"
	"moneymarket/native/interest"
	"moneymarket/native/oracle"
	nativecommon "moneymarket/native/common"
	"moneymarket/observability"
	"moneymarket/observability/metrics"
)

// maxBorrowRatePerSecond bounds the rate a model may return during accrual.
var maxBorrowRatePerSecond = exp.MustMantissa("0.000005")

var (
	collateralFactorMax = exp.MustMantissa("0.9")
	closeFactorMin      = exp.MustMantissa("0.05")
	closeFactorMax      = exp.MustMantissa("0.9")
)

// initialRewardIndex seeds every reward index.
var initialRewardIndex = exp.DoubleScale()

type engineState interface {
	LendingParams() (*ControllerParams, bool, error)
	PutLendingParams(params *ControllerParams) error
	LendingMarket(addr crypto.Address) (*Market, bool, error)
	PutLendingMarket(market *Market) error
	LendingMarketList() ([]crypto.Address, error)
	PutLendingMarketList(list []crypto.Address) error
	LendingPosition(market, account crypto.Address) (*Position, error)
	PutLendingPosition(position *Position) error
	LendingAccountAssets(account crypto.Address) ([]crypto.Address, error)
	PutLendingAccountAssets(account crypto.Address, markets []crypto.Address) error
	LendingRewardMarket(rt RewardType, market crypto.Address) (*RewardMarketState, error)
	PutLendingRewardMarket(rt RewardType, market crypto.Address, s *RewardMarketState) error
	LendingRewardAccount(rt RewardType, market, account crypto.Address) (*RewardAccountState, error)
	PutLendingRewardAccount(rt RewardType, market, account crypto.Address, s *RewardAccountState) error
	LendingRewardAccrued(rt RewardType, account crypto.Address) (*uint256.Int, error)
	PutLendingRewardAccrued(rt RewardType, account crypto.Address, amount *uint256.Int) error
	LendingContributorReward(rt RewardType, contributor crypto.Address) (*ContributorReward, error)
	PutLendingContributorReward(rt RewardType, contributor crypto.Address, s *ContributorReward) error
}

// AssetLedger moves underlying balances. Market cash is the ledger
// balance of the market address.
type AssetLedger interface {
	BalanceOf(asset string, addr crypto.Address) (*uint256.Int, error)
	Transfer(asset string, from, to crypto.Address, amount *uint256.Int) error
}

// Engine implements market accounting and the risk controller. It holds
// no persistent data of its own: markets, positions, parameters and
// reward indices live in state.
type Engine struct {
	state   engineState
	ledger  AssetLedger
	oracle  oracle.PriceOracle
	emitter events.Emitter
	pauses  nativecommon.PauseView
	logger  *slog.Logger
	metrics *metrics.LendingMetrics
	markets *observability.MarketMetrics

	rewardAssets map[RewardType]string
	blockHeight  uint64
	blockTime    uint64
	entered      bool
}

// NewEngine constructs an engine over the supplied state and ledger.
func NewEngine(state engineState, ledger AssetLedger, priceOracle oracle.PriceOracle) *Engine {
	return &Engine{
		state:   state,
		ledger:  ledger,
		oracle:  priceOracle,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		metrics: metrics.Lending(),
		markets: observability.Markets(),
		rewardAssets: map[RewardType]string{
			RewardNative: oracle.NativeAsset,
		},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetLedger(ledger AssetLedger) { e.ledger = ledger }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetRewardAsset configures the asset paid for a reward type.
func (e *Engine) SetRewardAsset(rt RewardType, asset string) {
	if e == nil {
		return
	}
	e.rewardAssets[rt] = oracle.Normalize(asset)
}

// SetBlock records the block height and timestamp. Interest and rewards
// accrue per second of timestamp.
func (e *Engine) SetBlock(height, timestamp uint64) {
	if e == nil {
		return
	}
	e.blockHeight = height
	e.blockTime = timestamp
}

func (e *Engine) BlockTimestamp() uint64 { return e.blockTime }

// Oracle returns the active price oracle.
func (e *Engine) Oracle() oracle.PriceOracle { return e.oracle }

// Initialize writes the initial controller parameters. It fails once
// parameters exist.
func (e *Engine) Initialize(params ControllerParams) error {
	if err := e.ready(); err != nil {
		return err
	}
	_, ok, err := e.state.LendingParams()
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyInitialized
	}
	if params.Admin.IsZero() {
		return fmt.Errorf("%w: admin must be set", ErrInvalidParameter)
	}
	p := ensureParams(&params)
	if p.CloseFactor.IsZero() {
		p.CloseFactor = exp.MustMantissa("0.5")
	}
	if p.LiquidationIncentive.IsZero() {
		p.LiquidationIncentive = exp.MustMantissa("1.08")
	}
	if err := validateCloseFactor(p.CloseFactor); err != nil {
		return err
	}
	if err := validateLiquidationIncentive(p.LiquidationIncentive); err != nil {
		return err
	}
	return e.state.PutLendingParams(p)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

// enter guards a user action against reentry and module halts.
func (e *Engine) enter() (func(), error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.entered {
		return nil, ErrReentrant
	}
	e.entered = true
	return func() { e.entered = false }, nil
}

func (e *Engine) params() (*ControllerParams, error) {
	p, _, err := e.state.LendingParams()
	if err != nil {
		return nil, err
	}
	return ensureParams(p), nil
}

func (e *Engine) requireAdmin(caller crypto.Address) (*ControllerParams, error) {
	p, err := e.params()
	if err != nil {
		return nil, err
	}
	if p.Admin.IsZero() || caller != p.Admin {
		return nil, ErrUnauthorized
	}
	return p, nil
}

func (e *Engine) market(addr crypto.Address) (*Market, error) {
	m, ok, err := e.state.LendingMarket(addr)
	if err != nil {
		return nil, err
	}
	if !ok || m == nil || !m.IsListed {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotListed, addr)
	}
	ensureMarket(m)
	return m, nil
}

func (e *Engine) position(market, account crypto.Address) (*Position, error) {
	p, err := e.state.LendingPosition(market, account)
	if err != nil {
		return nil, err
	}
	return ensurePosition(p, market, account), nil
}

func (e *Engine) cash(m *Market) (*uint256.Int, error) {
	bal, err := e.ledger.BalanceOf(m.Underlying, m.Address)
	if err != nil {
		return nil, err
	}
	return exp.Clone(bal), nil
}

func (e *Engine) price(asset string) *uint256.Int {
	if e.oracle == nil {
		return new(uint256.Int)
	}
	p, err := e.oracle.UnderlyingPrice(asset)
	if err != nil {
		e.logger.Warn("price lookup failed", slog.String("asset", asset), slog.Any("error", err))
		return new(uint256.Int)
	}
	return exp.Clone(p)
}

func (e *Engine) model(m *Market) (interest.Model, error) {
	return interest.New(m.RateModel)
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) reject(action string, err error) error {
	if err != nil {
		e.metrics.ObserveRejection(action, rejectReason(err))
	}
	return err
}
