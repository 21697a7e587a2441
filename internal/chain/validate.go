package chain

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/powledger/internal/consensus"
	"github.com/Klingon-tech/powledger/pkg/block"
)

// Validation errors. ErrHashMismatch and ErrDifficultyNotMet are the
// consensus package's errors, so errors.Is works with either name.
var (
	ErrHashMismatch     = consensus.ErrHashMismatch
	ErrDifficultyNotMet = consensus.ErrDifficultyNotMet
	ErrChainLinkBroken  = errors.New("prev_hash does not match previous block hash")
)

// ValidationError reports the first invalid block found by Validate.
type ValidationError struct {
	Index int
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("block %d: %v", e.Index, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate scans the chain in order and returns the first failure as a
// *ValidationError. Every block, genesis included, must have a stored
// hash equal to its recomputed hash, carry transactions whose txids match
// their contents, and meet the difficulty; every later block must also
// link to its predecessor's stored hash. Checks run in that order per
// block: hash, txids, link, difficulty. The block hash does not commit to
// txids, so a rewritten txid is reported as ErrHashMismatch.
func (c *Chain) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.blocks) == 0 {
		return ErrEmptyChain
	}
	prefix := c.engine.Difficulty()
	for i, blk := range c.blocks {
		if computed := blk.ComputeHash(); computed != blk.Hash {
			return &ValidationError{Index: i, Err: fmt.Errorf("%w: stored %s, computed %s", ErrHashMismatch, blk.Hash, computed)}
		}
		for j, t := range blk.Transactions {
			if t == nil {
				continue
			}
			if computed := t.ComputeID(); t.TxID != computed {
				return &ValidationError{Index: i, Err: fmt.Errorf("%w: tx %d txid %s, computed %s", ErrHashMismatch, j, t.TxID, computed)}
			}
		}
		if i > 0 && blk.PrevHash != c.blocks[i-1].Hash {
			return &ValidationError{Index: i, Err: fmt.Errorf("%w: prev_hash %s, previous hash %s", ErrChainLinkBroken, blk.PrevHash, c.blocks[i-1].Hash)}
		}
		if !block.MeetsDifficulty(blk.Hash, prefix) {
			return &ValidationError{Index: i, Err: fmt.Errorf("%w: %s lacks prefix %q", ErrDifficultyNotMet, blk.Hash, prefix)}
		}
	}
	return nil
}

// IsValid reports whether Validate finds no failure.
func (c *Chain) IsValid() bool {
	return c.Validate() == nil
}
