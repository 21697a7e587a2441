// Package ledger is the single entry point to a running ledger: it owns
// the chain, the UTXO set, the user registry and the pending pool, and
// keeps them consistent across payments and mining.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Klingon-tech/powledger/internal/chain"
	"github.com/Klingon-tech/powledger/internal/consensus"
	"github.com/Klingon-tech/powledger/internal/log"
	"github.com/Klingon-tech/powledger/internal/mempool"
	"github.com/Klingon-tech/powledger/internal/miner"
	"github.com/Klingon-tech/powledger/internal/storage"
	"github.com/Klingon-tech/powledger/internal/utxo"
	"github.com/Klingon-tech/powledger/internal/wallet"
	"github.com/Klingon-tech/powledger/pkg/block"
	"github.com/Klingon-tech/powledger/pkg/tx"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// Ledger errors.
var (
	ErrNothingToMine     = errors.New("nothing to mine")
	ErrMiningInProgress  = errors.New("mining already in progress")
	ErrRejected          = errors.New("transaction rejected")
	ErrSignatureInvalid  = errors.New("signature self-check failed")
	ErrInvalidRequest    = errors.New("invalid payment request")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrUnknownTx         = errors.New("unknown transaction")
	ErrUnknownRecipient  = errors.New("unknown recipient")
	ErrInsufficientFunds = wallet.ErrInsufficientFunds
	ErrUnknownUser       = wallet.ErrUnknownUser
	ErrUserExists        = wallet.ErrUserExists
)

// Options configures a ledger.
type Options struct {
	Difficulty    string
	Threads       int
	BaseReward    types.Amount
	MinerAddress  string
	Genesis       chain.Genesis
	CoinSelection wallet.Strategy
	MaxPending    int
}

// DefaultOptions returns the options of a fresh development ledger.
func DefaultOptions() Options {
	return Options{
		Difficulty:    consensus.DefaultDifficulty,
		Threads:       1,
		BaseReward:    miner.DefaultBaseReward,
		MinerAddress:  types.MinerAddress,
		Genesis:       chain.DefaultGenesis(),
		CoinSelection: wallet.FirstFit,
		MaxPending:    mempool.DefaultMaxSize,
	}
}

// Ledger is safe for concurrent use. State changes are serialized by mu;
// the proof-of-work search itself runs outside it so payments can be
// queued while a block is being sealed.
type Ledger struct {
	mu     sync.Mutex
	saveMu sync.Mutex // held from snapshot to commit
	mining atomic.Bool

	opts     Options
	engine   *consensus.PoW
	chain    *chain.Chain
	utxos    *utxo.Set
	users    *wallet.Registry
	pool     *mempool.Pool
	miner    *miner.Miner
	validate *validator.Validate
}

// New creates a ledger with a freshly mined genesis block whose credit is
// already settled into the UTXO set.
func New(ctx context.Context, opts Options) (*Ledger, error) {
	engine, err := newEngine(opts.Difficulty, opts.Threads)
	if err != nil {
		return nil, err
	}
	c, err := chain.New(ctx, engine, opts.Genesis)
	if err != nil {
		return nil, fmt.Errorf("create chain: %w", err)
	}
	l := assemble(engine, c, opts)
	if err := miner.Settle(l.utxos, c.Last()); err != nil {
		return nil, fmt.Errorf("settle genesis: %w", err)
	}
	log.Ledger.Info().
		Str("difficulty", engine.Difficulty()).
		Str("genesis", c.Last().Hash).
		Msg("Ledger created")
	return l, nil
}

func newEngine(difficulty string, threads int) (*consensus.PoW, error) {
	engine, err := consensus.NewPoW(difficulty)
	if err != nil {
		return nil, fmt.Errorf("consensus engine: %w", err)
	}
	engine.Threads = threads
	return engine, nil
}

func assemble(engine *consensus.PoW, c *chain.Chain, opts Options) *Ledger {
	l := &Ledger{
		opts:     opts,
		engine:   engine,
		chain:    c,
		utxos:    utxo.NewSet(storage.NewMemory()),
		users:    wallet.NewRegistry(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	l.pool = mempool.New(l.utxos, l.users, opts.MaxPending)
	l.miner = miner.New(c, l.pool, opts.MinerAddress, opts.BaseReward)
	return l
}

// Chain returns the underlying chain.
func (l *Ledger) Chain() *chain.Chain {
	return l.chain
}

// UTXOs returns the underlying UTXO set.
func (l *Ledger) UTXOs() *utxo.Set {
	return l.utxos
}

// MinerAddress returns the address that collects block rewards.
func (l *Ledger) MinerAddress() string {
	return l.miner.RewardAddress()
}

// ValidateChain checks every block's hash, link and proof of work.
func (l *Ledger) ValidateChain() error {
	return l.chain.Validate()
}

// --- users ---

// CreateUser registers name with a random key pair.
func (l *Ledger) CreateUser(name string) (*wallet.Account, error) {
	return l.users.Create(name)
}

// CreateUserWithMnemonic registers name with a key derived from a fresh
// recovery phrase, which is returned alongside the account.
func (l *Ledger) CreateUserWithMnemonic(name string) (*wallet.Account, string, error) {
	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		return nil, "", err
	}
	acct, err := l.users.Recover(name, mnemonic, "")
	if err != nil {
		return nil, "", err
	}
	return acct, mnemonic, nil
}

// RecoverUser registers name with the key derived from mnemonic.
func (l *Ledger) RecoverUser(name, mnemonic, passphrase string) (*wallet.Account, error) {
	return l.users.Recover(name, mnemonic, passphrase)
}

// ImportUser registers an existing account, as read from a key file.
func (l *Ledger) ImportUser(acct *wallet.Account) (*wallet.Account, error) {
	return l.users.Add(acct.Name, acct.Key, acct.CreatedAt)
}

// Users returns every registered account sorted by name.
func (l *Ledger) Users() []*wallet.Account {
	return l.users.Accounts()
}

// User returns the account registered under name.
func (l *Ledger) User(name string) (*wallet.Account, error) {
	return l.users.Get(name)
}

// --- balances ---

// Fund credits amount to name outside the chain. The credit is a UTXO
// whose txid is "fund-<uuid>"; it is a development convenience with no
// block behind it.
func (l *Ledger) Fund(name string, amount types.Amount) (types.Outpoint, error) {
	if amount == 0 {
		return types.Outpoint{}, ErrInvalidAmount
	}
	acct, err := l.users.Get(name)
	if err != nil {
		return types.Outpoint{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	op := types.Outpoint{TxID: "fund-" + uuid.NewString(), Index: 0}
	if err := l.utxos.Add(op, acct.Address(), amount); err != nil {
		return types.Outpoint{}, fmt.Errorf("fund %s: %w", name, err)
	}
	log.Ledger.Info().Str("user", name).Str("amount", amount.String()).Str("outpoint", op.String()).Msg("Funded")
	return op, nil
}

// Balance returns the unspent total held by address.
func (l *Ledger) Balance(address string) (types.Amount, error) {
	return l.utxos.Balance(address)
}

// BalanceOf returns the unspent total held by the named user.
func (l *Ledger) BalanceOf(name string) (types.Amount, error) {
	acct, err := l.users.Get(name)
	if err != nil {
		return 0, err
	}
	return l.utxos.Balance(acct.Address())
}

// --- pending pool ---

// Pending returns queued transactions in arrival order.
func (l *Ledger) Pending() []*tx.Transaction {
	return l.pool.Pending()
}

// Discard drops a queued transaction and releases the outputs it had
// reserved.
func (l *Ledger) Discard(txid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.pool.Remove(txid) {
		return fmt.Errorf("%w: %s", ErrUnknownTx, txid)
	}
	log.Ledger.Info().Str("tx", txid).Msg("Pending transaction discarded")
	return nil
}

// TxLocation tells where Transaction found a record.
type TxLocation struct {
	Pending bool
	Height  uint64 // Block index when confirmed.
}

// Transaction finds a record by txid, checking the pending pool before the
// chain.
func (l *Ledger) Transaction(txid string) (*tx.Transaction, TxLocation, error) {
	if t := l.pool.Get(txid); t != nil {
		return t, TxLocation{Pending: true}, nil
	}
	for _, blk := range l.chain.Blocks() {
		for _, t := range blk.Transactions {
			if t.TxID == txid {
				return t, TxLocation{Height: blk.Index}, nil
			}
		}
	}
	return nil, TxLocation{}, fmt.Errorf("%w: %s", ErrUnknownTx, txid)
}

// --- mining ---

// Mine seals every pending transaction, oldest first, into a new block.
func (l *Ledger) Mine(ctx context.Context) (*block.Block, error) {
	return l.mine(ctx, l.pool.SelectForBlock(0))
}

// MineTransactions seals exactly txs into a new block. They need not be
// in the pending pool.
func (l *Ledger) MineTransactions(ctx context.Context, txs []*tx.Transaction) (*block.Block, error) {
	return l.mine(ctx, txs)
}

func (l *Ledger) mine(ctx context.Context, txs []*tx.Transaction) (*block.Block, error) {
	if len(txs) == 0 {
		return nil, ErrNothingToMine
	}
	if !l.mining.CompareAndSwap(false, true) {
		return nil, ErrMiningInProgress
	}
	defer l.mining.Store(false)

	l.mu.Lock()
	err := l.checkInclusion(txs)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	blk, err := l.miner.Mine(ctx, txs)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := miner.Settle(l.utxos, blk); err != nil {
		return nil, fmt.Errorf("settle block %d: %w", blk.Index, err)
	}
	l.pool.RemoveConfirmed(blk.Payments())
	l.evictStale()
	return blk, nil
}

// checkInclusion rejects any record that fails validation against the
// current UTXO set or spends an output another record in txs spends.
func (l *Ledger) checkInclusion(txs []*tx.Transaction) error {
	spent := make(map[types.Outpoint]string)
	for _, t := range txs {
		if t == nil {
			return fmt.Errorf("%w: nil transaction", ErrRejected)
		}
		if t.IsCoinbase() {
			return fmt.Errorf("%w: %s is a reward record", ErrRejected, t.TxID)
		}
		if err := t.ValidateWithUTXOs(l.utxos, l.users); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrRejected, t.TxID, err)
		}
		for _, op := range t.Spends() {
			if other, ok := spent[op]; ok {
				return fmt.Errorf("%w: %s and %s both spend %s", ErrRejected, other, t.TxID, op)
			}
			spent[op] = t.TxID
		}
	}
	return nil
}

// evictStale drops pending transactions whose inputs a block has spent.
func (l *Ledger) evictStale() {
	for _, t := range l.pool.Pending() {
		for _, op := range t.Spends() {
			if _, _, ok := l.utxos.Lookup(op); !ok {
				l.pool.Remove(t.TxID)
				log.Ledger.Warn().Str("tx", t.TxID).Str("outpoint", op.String()).Msg("Evicted pending transaction with spent input")
				break
			}
		}
	}
}
