// Package block defines blocks, their hashing and proof-of-work search.
package block

import (
	"encoding/binary"
	"time"

	"github.com/Klingon-tech/powledger/pkg/crypto"
	"github.com/Klingon-tech/powledger/pkg/tx"
)

// GenesisPrevHash is the prev_hash sentinel of the first block.
const GenesisPrevHash = "0"

// Block is one link of the chain. Hash is the hex SHA-256 of the block's
// canonical bytes once a nonce satisfying the difficulty has been found.
type Block struct {
	Index        uint64            `json:"index"`
	Timestamp    int64             `json:"timestamp"`
	Transactions []*tx.Transaction `json:"transactions"`
	PrevHash     string            `json:"prev_hash"`
	Nonce        uint64            `json:"nonce"`
	Hash         string            `json:"hash"`
}

// New creates an unmined block at the given index with nonce 0 and the
// current time. Its hash is computed but will not yet meet any difficulty.
func New(index uint64, txs []*tx.Transaction, prevHash string) *Block {
	return NewAt(index, txs, prevHash, time.Now().Unix())
}

// NewAt is New with an explicit unix timestamp.
func NewAt(index uint64, txs []*tx.Transaction, prevHash string, timestamp int64) *Block {
	if txs == nil {
		txs = []*tx.Transaction{}
	}
	b := &Block{
		Index:        index,
		Timestamp:    timestamp,
		Transactions: txs,
		PrevHash:     prevHash,
	}
	b.Hash = b.ComputeHash()
	return b
}

// Restore rebuilds a block from stored fields. The hash is taken as given,
// not recomputed, so validation can later detect tampering.
func Restore(index uint64, timestamp int64, txs []*tx.Transaction, prevHash string, nonce uint64, hash string) *Block {
	if txs == nil {
		txs = []*tx.Transaction{}
	}
	return &Block{
		Index:        index,
		Timestamp:    timestamp,
		Transactions: txs,
		PrevHash:     prevHash,
		Nonce:        nonce,
		Hash:         hash,
	}
}

// Bytes returns the canonical serialization that the hash commits to.
// Format: index(8) | timestamp(8) | tx_count(4) | [tx_len(4) tx]... |
// prev_hash_len(4) prev_hash | nonce(8)
func (b *Block) Bytes() []byte {
	return binary.LittleEndian.AppendUint64(b.SealingPrefix(), b.Nonce)
}

// SealingPrefix returns Bytes without the trailing nonce. Miners hash
// prefix||nonce without reserializing the block on every attempt.
func (b *Block) SealingPrefix() []byte {
	buf := binary.LittleEndian.AppendUint64(nil, b.Index)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(b.Timestamp))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b.Transactions)))
	for _, t := range b.Transactions {
		raw := t.Bytes()
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(raw)))
		buf = append(buf, raw...)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b.PrevHash)))
	buf = append(buf, b.PrevHash...)
	return buf
}

// ComputeHash hashes the block's current contents.
func (b *Block) ComputeHash() string {
	return crypto.HashHex(b.Bytes())
}

// IsGenesis reports whether b is the first block of a chain.
func (b *Block) IsGenesis() bool {
	return b.Index == 0
}

// Coinbase returns the block's coinbase record, if it has one.
func (b *Block) Coinbase() (*tx.Transaction, bool) {
	if len(b.Transactions) == 0 || !b.Transactions[0].IsCoinbase() {
		return nil, false
	}
	return b.Transactions[0], true
}

// Payments returns the block's transactions without the coinbase.
func (b *Block) Payments() []*tx.Transaction {
	if _, ok := b.Coinbase(); ok {
		return b.Transactions[1:]
	}
	return b.Transactions
}
