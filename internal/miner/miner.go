// Package miner builds reward records and produces blocks.
package miner

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/powledger/internal/log"
	"github.com/Klingon-tech/powledger/pkg/block"
	"github.com/Klingon-tech/powledger/pkg/tx"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// DefaultBaseReward is the fixed part of every block reward.
var DefaultBaseReward = types.Coins(3)

// ErrRewardOverflow is returned when base reward plus fees overflows.
var ErrRewardOverflow = errors.New("block reward overflows")

// Appender is the chain as seen by the miner.
type Appender interface {
	Height() uint64
	Append(ctx context.Context, txs []*tx.Transaction) (*block.Block, error)
}

// MempoolSelector selects transactions for block inclusion.
type MempoolSelector interface {
	SelectForBlock(limit int) []*tx.Transaction
}

// Miner produces new blocks.
type Miner struct {
	chain       Appender
	pool        MempoolSelector
	rewardAddr  string
	baseReward  types.Amount
	maxBlockTxs int
}

// New creates a block producer paying rewards to rewardAddr. pool may be
// nil when callers always pass transactions to Mine.
func New(chain Appender, pool MempoolSelector, rewardAddr string, baseReward types.Amount) *Miner {
	if rewardAddr == "" {
		rewardAddr = types.MinerAddress
	}
	return &Miner{
		chain:      chain,
		pool:       pool,
		rewardAddr: rewardAddr,
		baseReward: baseReward,
	}
}

// SetMaxBlockTxs caps how many pending transactions ProduceBlock takes.
// Zero means no cap.
func (m *Miner) SetMaxBlockTxs(n int) {
	m.maxBlockTxs = n
}

// RewardAddress returns the address credited by reward records.
func (m *Miner) RewardAddress() string {
	return m.rewardAddr
}

// ProduceBlock mines a block from the pool's pending transactions.
func (m *Miner) ProduceBlock(ctx context.Context) (*block.Block, error) {
	var selected []*tx.Transaction
	if m.pool != nil {
		selected = m.pool.SelectForBlock(m.maxBlockTxs)
	}
	return m.Mine(ctx, selected)
}

// Mine builds the reward record for txs, places it first, and appends the
// block to the chain. The block is not settled into the UTXO set; see
// Settle.
func (m *Miner) Mine(ctx context.Context, txs []*tx.Transaction) (*block.Block, error) {
	height := m.chain.Height() + 1
	reward, err := BuildReward(height, m.rewardAddr, m.baseReward, txs)
	if err != nil {
		return nil, err
	}

	all := make([]*tx.Transaction, 0, 1+len(txs))
	all = append(all, reward)
	all = append(all, txs...)

	blk, err := m.chain.Append(ctx, all)
	if err != nil {
		return nil, err
	}
	log.Miner.Info().
		Uint64("height", blk.Index).
		Str("hash", blk.Hash).
		Int("payments", len(txs)).
		Str("reward", reward.Outputs[0].Amount.String()).
		Msg("Block mined")
	return blk, nil
}

// BuildReward creates the coinbase record for a block at height that
// pays base plus the fees of txs to addr.
func BuildReward(height uint64, addr string, base types.Amount, txs []*tx.Transaction) (*tx.Transaction, error) {
	total := base
	for _, t := range txs {
		var err error
		if total, err = total.Add(t.Fee); err != nil {
			return nil, fmt.Errorf("%w: at tx %s", ErrRewardOverflow, t.TxID)
		}
	}
	return tx.NewCoinbase(height, tx.Output{Address: addr, Amount: total}), nil
}
