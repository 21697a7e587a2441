// Package mempool manages pending transactions waiting for block inclusion.
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Klingon-tech/powledger/internal/log"
	"github.com/Klingon-tech/powledger/pkg/tx"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// Mempool errors.
var (
	ErrAlreadyExists = errors.New("transaction already in mempool")
	ErrConflict      = errors.New("transaction conflicts with existing mempool entry")
	ErrPoolFull      = errors.New("mempool is full")
	ErrValidation    = errors.New("transaction failed validation")
	ErrCoinbase      = errors.New("coinbase records are not accepted into the mempool")
	ErrPolicy        = errors.New("transaction violates mempool policy")
)

// DefaultMaxSize is the pool capacity used when New is given zero.
const DefaultMaxSize = 5000

// entry wraps a transaction with its fee and metadata.
type entry struct {
	tx    *tx.Transaction
	fee   types.Amount
	seq   uint64
	added time.Time
}

// Pool holds unconfirmed transactions in arrival order. Every outpoint a
// pending transaction spends is reserved: coin selection skips it and a
// second transaction spending it is rejected with ErrConflict.
type Pool struct {
	mu      sync.RWMutex
	txs     map[string]*entry         // txid -> entry
	spends  map[types.Outpoint]string // outpoint -> txid (reservation index)
	nextSeq uint64
	maxSize int
	policy  *Policy

	utxos tx.UTXOProvider
	keys  tx.KeyResolver
}

// New creates a mempool that validates against utxos and keys.
func New(utxos tx.UTXOProvider, keys tx.KeyResolver, maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Pool{
		txs:     make(map[string]*entry),
		spends:  make(map[types.Outpoint]string),
		maxSize: maxSize,
		policy:  DefaultPolicy(),
		utxos:   utxos,
		keys:    keys,
	}
}

// SetPolicy replaces the acceptance policy. nil disables policy checks.
func (p *Pool) SetPolicy(policy *Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = policy
}

// Add validates and adds a transaction to the mempool and returns its
// fee. Rejects coinbase records, duplicates and transactions spending an
// already-reserved outpoint.
func (p *Pool) Add(transaction *tx.Transaction) (types.Amount, error) {
	if transaction.IsCoinbase() {
		return 0, ErrCoinbase
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	txid := transaction.TxID
	if _, exists := p.txs[txid]; exists {
		return 0, ErrAlreadyExists
	}

	for _, in := range transaction.Inputs {
		if owner, exists := p.spends[in.PrevOut]; exists {
			return 0, fmt.Errorf("%w: input %s already spent by %s", ErrConflict, in.PrevOut, owner)
		}
	}

	if p.policy != nil {
		if err := p.policy.Check(transaction); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrPolicy, err)
		}
	}

	if err := transaction.ValidateWithUTXOs(p.utxos, p.keys); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if len(p.txs) >= p.maxSize {
		return 0, ErrPoolFull
	}

	p.txs[txid] = &entry{
		tx:    transaction,
		fee:   transaction.Fee,
		seq:   p.nextSeq,
		added: time.Now(),
	}
	p.nextSeq++
	for _, in := range transaction.Inputs {
		p.spends[in.PrevOut] = txid
	}

	log.Mempool.Debug().
		Str("txid", txid).
		Str("fee", transaction.Fee.String()).
		Int("pending", len(p.txs)).
		Msg("Transaction accepted")
	return transaction.Fee, nil
}

// Remove removes a transaction from the mempool by txid and releases its
// reservations. Reports whether it was present.
func (p *Pool) Remove(txid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(txid)
}

func (p *Pool) removeLocked(txid string) bool {
	e, exists := p.txs[txid]
	if !exists {
		return false
	}
	for _, in := range e.tx.Inputs {
		if p.spends[in.PrevOut] == txid {
			delete(p.spends, in.PrevOut)
		}
	}
	delete(p.txs, txid)
	return true
}

// RemoveConfirmed removes all transactions that were included in a block.
func (p *Pool) RemoveConfirmed(transactions []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range transactions {
		p.removeLocked(t.TxID)
	}
}

// Clear empties the pool.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txs = make(map[string]*entry)
	p.spends = make(map[types.Outpoint]string)
}

// Has checks if a transaction exists in the mempool.
func (p *Pool) Has(txid string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.txs[txid]
	return exists
}

// Get retrieves a transaction from the mempool, or nil.
func (p *Pool) Get(txid string) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[txid]
	if !exists {
		return nil
	}
	return e.tx
}

// GetFee returns the fee for a transaction in the mempool (0 if not found).
func (p *Pool) GetFee(txid string) types.Amount {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[txid]
	if !exists {
		return 0
	}
	return e.fee
}

// IsReserved reports whether a pending transaction spends op.
func (p *Pool) IsReserved(op types.Outpoint) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.spends[op]
	return ok
}

// Count returns the number of transactions in the mempool.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// Pending returns every pending transaction in arrival order.
func (p *Pool) Pending() []*tx.Transaction {
	return p.SelectForBlock(0)
}

// SelectForBlock returns up to limit transactions in arrival order.
// limit <= 0 means all.
func (p *Pool) SelectForBlock(limit int) []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]*entry, 0, len(p.txs))
	for _, e := range p.txs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	result := make([]*tx.Transaction, limit)
	for i := 0; i < limit; i++ {
		result[i] = entries[i].tx
	}
	return result
}

// TotalFees sums the fees of txs.
func TotalFees(txs []*tx.Transaction) (types.Amount, error) {
	var total types.Amount
	for _, t := range txs {
		var err error
		if total, err = total.Add(t.Fee); err != nil {
			return 0, err
		}
	}
	return total, nil
}
