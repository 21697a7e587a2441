// Package chain implements the append-only block sequence and its
// validation.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/powledger/internal/consensus"
	"github.com/Klingon-tech/powledger/internal/log"
	"github.com/Klingon-tech/powledger/pkg/block"
	"github.com/Klingon-tech/powledger/pkg/tx"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// Chain errors.
var (
	ErrEmptyChain   = errors.New("chain has no blocks")
	ErrNilEngine    = errors.New("consensus engine is nil")
	ErrOutOfRange   = errors.New("block index out of range")
	ErrInvalidBlock = errors.New("invalid block")
)

// Chain is an ordered list of blocks where every block after the first
// links to its predecessor's hash and every hash meets the engine's
// difficulty. Append and Restore are the only mutators.
type Chain struct {
	mu     sync.RWMutex
	engine consensus.Engine
	blocks []*block.Block
	state  State
}

// New creates a chain and mines its genesis block.
func New(ctx context.Context, engine consensus.Engine, gen Genesis) (*Chain, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	genesis, err := CreateGenesisBlock(gen)
	if err != nil {
		return nil, fmt.Errorf("create genesis: %w", err)
	}
	if err := engine.Seal(ctx, genesis); err != nil {
		return nil, fmt.Errorf("mine genesis: %w", err)
	}

	c := &Chain{engine: engine}
	c.push(genesis)
	log.Chain.Info().
		Str("hash", genesis.Hash).
		Uint64("nonce", genesis.Nonce).
		Str("difficulty", engine.Difficulty()).
		Msg("Genesis block mined")
	return c, nil
}

// Restore rebuilds a chain from stored blocks. Blocks are adopted as
// given, hashes included; call Validate to check them.
func Restore(engine consensus.Engine, blocks []*block.Block) (*Chain, error) {
	if engine == nil {
		return nil, ErrNilEngine
	}
	if len(blocks) == 0 {
		return nil, ErrEmptyChain
	}
	c := &Chain{engine: engine}
	for _, b := range blocks {
		if b == nil {
			return nil, fmt.Errorf("%w: nil block at position %d", ErrInvalidBlock, len(c.blocks))
		}
		c.push(b)
	}
	return c, nil
}

// push appends blk and advances the tip state. Caller holds mu or owns c.
func (c *Chain) push(blk *block.Block) {
	c.blocks = append(c.blocks, blk)
	c.state.Height = blk.Index
	c.state.TipHash = blk.Hash
	c.state.TipTimestamp = blk.Timestamp
	if cb, ok := blk.Coinbase(); ok {
		if minted, err := cb.TotalOutput(); err == nil {
			if supply, err := c.state.Supply.Add(minted); err == nil {
				c.state.Supply = supply
			}
		}
	}
}

// Append builds the next block from txs, seals it at the chain's
// difficulty and appends it. The block is not appended if sealing fails
// or is cancelled.
func (c *Chain) Append(ctx context.Context, txs []*tx.Transaction) (*block.Block, error) {
	c.mu.RLock()
	last := c.blocks[len(c.blocks)-1]
	index, prevHash := last.Index+1, last.Hash
	c.mu.RUnlock()

	blk := block.New(index, txs, prevHash)
	if err := blk.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}
	if err := c.engine.Seal(ctx, blk); err != nil {
		return nil, fmt.Errorf("mine block %d: %w", index, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tip := c.blocks[len(c.blocks)-1]; tip.Hash != prevHash {
		return nil, fmt.Errorf("tip moved while mining block %d", index)
	}
	c.push(blk)

	log.Chain.Info().
		Uint64("index", blk.Index).
		Str("hash", blk.Hash).
		Int("txs", len(blk.Transactions)).
		Uint64("nonce", blk.Nonce).
		Msg("Block appended")
	return blk, nil
}

// Blocks returns a copy of the block list.
func (c *Chain) Blocks() []*block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*block.Block(nil), c.blocks...)
}

// Len returns the number of blocks.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Last returns the tip block.
func (c *Chain) Last() *block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// BlockAt returns the block at position i.
func (c *Chain) BlockAt(i int) (*block.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.blocks) {
		return nil, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(c.blocks))
	}
	return c.blocks[i], nil
}

// Height returns the index of the tip block.
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Height
}

// State returns a snapshot of the tip state.
func (c *Chain) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Supply returns the total value minted by coinbase records.
func (c *Chain) Supply() types.Amount {
	return c.State().Supply
}

// Difficulty returns the hex prefix every block hash must carry.
func (c *Chain) Difficulty() string {
	return c.engine.Difficulty()
}

// Engine returns the consensus engine.
func (c *Chain) Engine() consensus.Engine {
	return c.engine
}
