// Package consensus implements the proof-of-work rule that orders blocks.
package consensus

import (
	"context"

	"github.com/Klingon-tech/powledger/pkg/block"
)

// Engine seals new blocks and checks sealed ones.
type Engine interface {
	// Seal searches for a nonce that makes blk's hash meet the rule and
	// sets blk.Nonce and blk.Hash.
	Seal(ctx context.Context, blk *block.Block) error
	// VerifyBlock checks blk's stored hash against its contents and the rule.
	VerifyBlock(blk *block.Block) error
	// Difficulty returns the hex prefix every block hash must start with.
	Difficulty() string
}
