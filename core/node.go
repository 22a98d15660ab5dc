package core

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/holiman/uint256"

	"moneymarket/core/events"
	"moneymarket/core/state"
	"moneymarket/crypto"
	nativecommon "moneymarket/native/common"
	"moneymarket/native/lending"
	"moneymarket/native/oracle"
	"moneymarket/native/token"
	"moneymarket/native/votes"
	"moneymarket/storage"
)

const (
	ModuleLending = "lending"
	ModuleVotes   = "votes"

	defaultGovernanceAsset = "GOV"
	domainName             = "moneymarket"
)

var (
	errNilDatabase = errors.New("core: nil database")

	lastBlockKey = []byte("core/last-block")
)

type blockRecord struct {
	Height    uint64
	Timestamp uint64
}

// Options configures NewNode.
type Options struct {
	// Admin posts oracle prices.
	Admin           crypto.Address
	ChainID         uint64
	GovernanceAsset string
	// Emitter receives events after their action commits.
	Emitter events.Emitter
	Logger  *slog.Logger
}

// blockAware is implemented by emitters that stamp events with the block.
type blockAware interface {
	SetBlock(height, timestamp uint64)
}

// Node is the central controller, wiring all components together. Every
// state access goes through the node lock so write scopes never
// interleave.
type Node struct {
	mu sync.Mutex

	db      storage.Database
	state   *state.Manager
	buffer  *events.Buffer
	journal lending.Journals
	sink    events.Emitter
	logger  *slog.Logger

	ledger  *token.Ledger
	votes   *votes.Ledger
	engine  *lending.Engine
	lending *lending.Proxy
	oracle  *oracle.StaticOracle
	pauses  *nativecommon.Pauses

	governanceAsset string
	height          uint64
	timestamp       uint64
}

func NewNode(db storage.Database, opts Options) (*Node, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gov := oracle.Normalize(opts.GovernanceAsset)
	if gov == "" {
		gov = defaultGovernanceAsset
	}

	manager := state.NewManager(db)
	buffer := events.NewBuffer(events.Fanout{metricsEmitter{}, opts.Emitter})
	pauses := nativecommon.NewPauses()

	ledger := token.NewLedger(manager)
	ledger.SetEmitter(buffer)

	votesLedger := votes.NewLedger(manager, token.AssetView{Ledger: ledger, Asset: gov}, votes.Domain{
		Name:              domainName,
		ChainID:           opts.ChainID,
		VerifyingContract: crypto.ModuleAddress("votes/" + gov),
	})
	votesLedger.SetEmitter(buffer)
	votesLedger.SetPauses(pauses)
	votesLedger.SetLogger(logger.With(slog.String("module", ModuleVotes)))
	ledger.RegisterHook(gov, votesLedger)

	prices := oracle.NewStaticOracle(opts.Admin)
	engine := lending.NewEngine(manager, ledger, prices)
	engine.SetEmitter(buffer)
	engine.SetPauses(pauses)
	engine.SetLogger(logger.With(slog.String("module", ModuleLending)))
	engine.SetRewardAsset(lending.RewardProtocol, gov)

	journal := lending.Journals{manager, buffer}
	proxy := lending.NewProxy(journal, engine)
	proxy.SetEmitter(buffer)

	return &Node{
		db:              db,
		state:           manager,
		buffer:          buffer,
		journal:         journal,
		sink:            opts.Emitter,
		logger:          logger,
		ledger:          ledger,
		votes:           votesLedger,
		engine:          engine,
		lending:         proxy,
		oracle:          prices,
		pauses:          pauses,
		governanceAsset: gov,
	}, nil
}

// SetBlock advances the clock seen by every module.
func (n *Node) SetBlock(height, timestamp uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.height, n.timestamp = height, timestamp
	if err := n.state.KVPut(lastBlockKey, blockRecord{Height: height, Timestamp: timestamp}); err != nil {
		n.logger.Warn("persist block", slog.Uint64("height", height), slog.Any("error", err))
	}
	n.lending.SetBlock(height, timestamp)
	n.votes.SetBlock(height, timestamp)
	if aware, ok := n.sink.(blockAware); ok {
		aware.SetBlock(height, timestamp)
	}
}

// Block returns the current height and timestamp.
func (n *Node) Block() (uint64, uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.height, n.timestamp
}

// LastBlock returns the most recent height recorded by SetBlock, including
// heights set before a restart.
func (n *Node) LastBlock() (uint64, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var rec blockRecord
	ok, err := n.state.KVGet(lastBlockKey, &rec)
	if err != nil || !ok {
		return 0, false, err
	}
	return rec.Height, true, nil
}

func (n *Node) GovernanceAsset() string { return n.governanceAsset }

func (n *Node) Oracle() *oracle.StaticOracle { return n.oracle }

// SetModulePaused halts or resumes a whole module.
func (n *Node) SetModulePaused(module string, paused bool) {
	n.pauses.Set(module, paused)
	n.logger.Info("module pause updated", slog.String("module", module), slog.Bool("paused", paused))
}

func (n *Node) ModulePaused(module string) bool { return n.pauses.IsPaused(module) }

// WithLending runs fn against the protocol proxy under the node lock.
func (n *Node) WithLending(fn func(*lending.Proxy) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn(n.lending)
}

// atomic runs fn inside one write scope spanning state and events.
func (n *Node) atomic(fn func() error) error {
	n.journal.Begin()
	if err := fn(); err != nil {
		n.journal.Rollback()
		return err
	}
	return n.journal.Commit()
}

// Transfer moves an underlying asset between accounts.
func (n *Node) Transfer(asset string, from, to crypto.Address, amount *uint256.Int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.atomic(func() error { return n.ledger.Transfer(asset, from, to, amount) })
}

// Balance returns the underlying balance held by addr.
func (n *Node) Balance(asset string, addr crypto.Address) (*uint256.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.BalanceOf(asset, addr)
}

func (n *Node) Delegate(delegator, delegatee crypto.Address) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.atomic(func() error { return n.votes.Delegate(delegator, delegatee) })
}

// DelegateBySig applies a signed delegation. A rejected signature leaves
// the signer's nonce untouched.
func (n *Node) DelegateBySig(delegatee crypto.Address, nonce, expiry uint64, sig []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.atomic(func() error { return n.votes.DelegateBySig(delegatee, nonce, expiry, sig) })
}

// VotesDomain returns the domain delegation signatures are bound to.
func (n *Node) VotesDomain() votes.Domain { return n.votes.Domain() }

// VoteSummary is the delegation view of one account.
type VoteSummary struct {
	Delegate       crypto.Address
	CurrentVotes   *uint256.Int
	Nonce          uint64
	NumCheckpoints uint64
}

func (n *Node) Votes(account crypto.Address) (*VoteSummary, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delegate, err := n.votes.Delegates(account)
	if err != nil {
		return nil, err
	}
	current, err := n.votes.CurrentVotes(account)
	if err != nil {
		return nil, err
	}
	nonce, err := n.votes.Nonce(account)
	if err != nil {
		return nil, err
	}
	count, err := n.votes.NumCheckpoints(account)
	if err != nil {
		return nil, err
	}
	return &VoteSummary{Delegate: delegate, CurrentVotes: current, Nonce: nonce, NumCheckpoints: count}, nil
}

func (n *Node) PriorVotes(account crypto.Address, block uint64) (*uint256.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.votes.PriorVotes(account, block)
}

// Close releases the database.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.db.Close()
}
