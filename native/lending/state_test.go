package lending

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"moneymarket/core/events"
	"moneymarket/core/exp"
	"moneymarket/crypto"
	"moneymarket/native/interest"
	"moneymarket/native/oracle"
	"moneymarket/native/token"
)

// mockState stores RLP encoded records like the state manager does so the
// engine never shares pointers with storage. Begin/Commit/Rollback snapshot
// the whole map.
type mockState struct {
	kv    map[string][]byte
	snaps []map[string][]byte
}

func newMockState() *mockState {
	return &mockState{kv: make(map[string][]byte)}
}

func (s *mockState) Begin() {
	cp := make(map[string][]byte, len(s.kv))
	for k, v := range s.kv {
		cp[k] = v
	}
	s.snaps = append(s.snaps, cp)
}

func (s *mockState) Commit() error {
	if len(s.snaps) == 0 {
		return fmt.Errorf("no open scope")
	}
	s.snaps = s.snaps[:len(s.snaps)-1]
	return nil
}

func (s *mockState) Rollback() {
	if len(s.snaps) == 0 {
		return
	}
	s.kv = s.snaps[len(s.snaps)-1]
	s.snaps = s.snaps[:len(s.snaps)-1]
}

func (s *mockState) put(key string, v interface{}) error {
	data, err := rlp.EncodeToBytes(v)
	if err != nil {
		return err
	}
	s.kv[key] = data
	return nil
}

func (s *mockState) get(key string, out interface{}) (bool, error) {
	data, ok := s.kv[key]
	if !ok {
		return false, nil
	}
	return true, rlp.DecodeBytes(data, out)
}

func (s *mockState) amount(key string) (*uint256.Int, error) {
	v := new(uint256.Int)
	if _, err := s.get(key, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *mockState) LendingParams() (*ControllerParams, bool, error) {
	var p ControllerParams
	ok, err := s.get("params", &p)
	if err != nil || !ok {
		return nil, false, err
	}
	return &p, true, nil
}

func (s *mockState) PutLendingParams(p *ControllerParams) error { return s.put("params", p) }

func (s *mockState) LendingMarket(addr crypto.Address) (*Market, bool, error) {
	var m Market
	ok, err := s.get("market/"+addr.Hex(), &m)
	if err != nil || !ok {
		return nil, false, err
	}
	return &m, true, nil
}

func (s *mockState) PutLendingMarket(m *Market) error { return s.put("market/"+m.Address.Hex(), m) }

func (s *mockState) LendingMarketList() ([]crypto.Address, error) {
	var list []crypto.Address
	_, err := s.get("markets", &list)
	return list, err
}

func (s *mockState) PutLendingMarketList(list []crypto.Address) error { return s.put("markets", list) }

func (s *mockState) LendingPosition(market, account crypto.Address) (*Position, error) {
	var p Position
	ok, err := s.get("position/"+market.Hex()+"/"+account.Hex(), &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

func (s *mockState) PutLendingPosition(p *Position) error {
	return s.put("position/"+p.Market.Hex()+"/"+p.Account.Hex(), p)
}

func (s *mockState) LendingAccountAssets(account crypto.Address) ([]crypto.Address, error) {
	var list []crypto.Address
	_, err := s.get("assets/"+account.Hex(), &list)
	return list, err
}

func (s *mockState) PutLendingAccountAssets(account crypto.Address, markets []crypto.Address) error {
	return s.put("assets/"+account.Hex(), markets)
}

func (s *mockState) LendingRewardMarket(rt RewardType, market crypto.Address) (*RewardMarketState, error) {
	var st RewardMarketState
	ok, err := s.get(fmt.Sprintf("reward/%d/%s", rt, market.Hex()), &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

func (s *mockState) PutLendingRewardMarket(rt RewardType, market crypto.Address, st *RewardMarketState) error {
	return s.put(fmt.Sprintf("reward/%d/%s", rt, market.Hex()), st)
}

func (s *mockState) LendingRewardAccount(rt RewardType, market, account crypto.Address) (*RewardAccountState, error) {
	var st RewardAccountState
	ok, err := s.get(fmt.Sprintf("reward/%d/%s/%s", rt, market.Hex(), account.Hex()), &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

func (s *mockState) PutLendingRewardAccount(rt RewardType, market, account crypto.Address, st *RewardAccountState) error {
	return s.put(fmt.Sprintf("reward/%d/%s/%s", rt, market.Hex(), account.Hex()), st)
}

func (s *mockState) LendingContributorReward(rt RewardType, contributor crypto.Address) (*ContributorReward, error) {
	var st ContributorReward
	ok, err := s.get(fmt.Sprintf("contributor/%d/%s", rt, contributor.Hex()), &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

func (s *mockState) PutLendingContributorReward(rt RewardType, contributor crypto.Address, st *ContributorReward) error {
	return s.put(fmt.Sprintf("contributor/%d/%s", rt, contributor.Hex()), st)
}

func (s *mockState) LendingRewardAccrued(rt RewardType, account crypto.Address) (*uint256.Int, error) {
	return s.amount(fmt.Sprintf("accrued/%d/%s", rt, account.Hex()))
}

func (s *mockState) PutLendingRewardAccrued(rt RewardType, account crypto.Address, amount *uint256.Int) error {
	return s.put(fmt.Sprintf("accrued/%d/%s", rt, account.Hex()), exp.Clone(amount))
}

func (s *mockState) TokenBalance(asset string, addr crypto.Address) (*uint256.Int, error) {
	return s.amount("balance/" + asset + "/" + addr.Hex())
}

func (s *mockState) PutTokenBalance(asset string, addr crypto.Address, balance *uint256.Int) error {
	return s.put("balance/"+asset+"/"+addr.Hex(), exp.Clone(balance))
}

func (s *mockState) TokenSupply(asset string) (*uint256.Int, error) {
	return s.amount("supply/" + asset)
}

func (s *mockState) PutTokenSupply(asset string, supply *uint256.Int) error {
	return s.put("supply/"+asset, exp.Clone(supply))
}

func (s *mockState) fingerprint() map[string]string {
	out := make(map[string]string, len(s.kv))
	for k, v := range s.kv {
		out[k] = string(v)
	}
	return out
}

const startTime = 1_000

var (
	adminAddr      = crypto.ModuleAddress("test/admin")
	guardianAddr   = crypto.ModuleAddress("test/guardian")
	aliceAddr      = crypto.ModuleAddress("test/alice")
	bobAddr        = crypto.ModuleAddress("test/bob")
	liquidatorAddr = crypto.ModuleAddress("test/liquidator")
)

type testEnv struct {
	t        *testing.T
	state    *mockState
	ledger   *token.Ledger
	oracle   *oracle.StaticOracle
	engine   *Engine
	recorder *events.Recorder
	now      uint64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := newMockState()
	ledger := token.NewLedger(st)
	prices := oracle.NewStaticOracle(adminAddr)
	engine := NewEngine(st, ledger, prices)
	recorder := &events.Recorder{}
	engine.SetEmitter(recorder)
	engine.SetBlock(1, startTime)
	if err := engine.Initialize(ControllerParams{Admin: adminAddr}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return &testEnv{t: t, state: st, ledger: ledger, oracle: prices, engine: engine, recorder: recorder, now: startTime}
}

// units converts whole tokens into 18 decimal base units.
func units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), exp.Scale())
}

func (env *testEnv) list(asset, collateralFactor, price string) crypto.Address {
	env.t.Helper()
	if err := env.oracle.SetPrice(adminAddr, asset, exp.MustMantissa(price)); err != nil {
		env.t.Fatalf("set price: %v", err)
	}
	addr, err := env.engine.SupportMarket(adminAddr, MarketConfig{
		Underlying:          asset,
		InitialExchangeRate: exp.Scale(),
		CollateralFactor:    exp.MustMantissa(collateralFactor),
		RateModel:           interest.DefaultParams(),
	})
	if err != nil {
		env.t.Fatalf("support market %s: %v", asset, err)
	}
	return addr
}

func (env *testEnv) fund(asset string, to crypto.Address, amount *uint256.Int) {
	env.t.Helper()
	if err := env.ledger.Mint(asset, to, amount); err != nil {
		env.t.Fatalf("fund %s: %v", asset, err)
	}
}

func (env *testEnv) supply(account, market crypto.Address, asset string, amount *uint256.Int) {
	env.t.Helper()
	env.fund(asset, account, amount)
	if _, err := env.engine.Mint(account, market, amount); err != nil {
		env.t.Fatalf("mint: %v", err)
	}
}

func (env *testEnv) advance(seconds uint64) {
	env.now += seconds
	env.engine.SetBlock(env.now/10, env.now)
}

func (env *testEnv) balance(asset string, addr crypto.Address) *uint256.Int {
	env.t.Helper()
	bal, err := env.ledger.BalanceOf(asset, addr)
	if err != nil {
		env.t.Fatalf("balance: %v", err)
	}
	return bal
}

// borrowSetup lists COLL (collateral factor 0.5) and DAI, supplies DAI
// liquidity from bob and 1,000,000 COLL from alice, and enters COLL for
// alice.
func (env *testEnv) borrowSetup() (coll, dai crypto.Address) {
	env.t.Helper()
	coll = env.list("COLL", "0.5", "1")
	dai = env.list("DAI", "0.5", "1")
	env.supply(bobAddr, dai, "DAI", units(2_000_000))
	env.supply(aliceAddr, coll, "COLL", units(1_000_000))
	if err := env.engine.EnterMarkets(aliceAddr, []crypto.Address{coll}); err != nil {
		env.t.Fatalf("enter markets: %v", err)
	}
	return coll, dai
}
