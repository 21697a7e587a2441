package consensus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/powledger/internal/log"
	"github.com/Klingon-tech/powledger/pkg/block"
)

// PoW errors.
var (
	ErrHashMismatch     = errors.New("stored hash does not match block contents")
	ErrDifficultyNotMet = errors.New("hash does not meet difficulty prefix")
	ErrNilBlock         = errors.New("nil block")
)

// DefaultDifficulty is three leading hex zeros, a few thousand hashes per
// block on average.
const DefaultDifficulty = "000"

// PoW implements prefix proof-of-work: a block hash, in lowercase hex,
// must start with Prefix.
type PoW struct {
	Prefix string

	// Threads controls the number of parallel mining goroutines.
	// 0 or 1 = single-threaded. Each goroutine searches a strided
	// partition of the nonce space.
	Threads int
}

// NewPoW creates a PoW engine for the given difficulty prefix.
func NewPoW(prefix string) (*PoW, error) {
	if err := block.ValidateDifficulty(prefix); err != nil {
		return nil, err
	}
	return &PoW{Prefix: prefix}, nil
}

// Difficulty returns the hex prefix.
func (p *PoW) Difficulty() string {
	return p.Prefix
}

// VerifyBlock checks that the stored hash equals the recomputed hash and
// that it meets the difficulty.
func (p *PoW) VerifyBlock(blk *block.Block) error {
	if blk == nil {
		return ErrNilBlock
	}
	if computed := blk.ComputeHash(); computed != blk.Hash {
		return fmt.Errorf("%w: stored %s, computed %s", ErrHashMismatch, blk.Hash, computed)
	}
	if !block.MeetsDifficulty(blk.Hash, p.Prefix) {
		return fmt.Errorf("%w: %s lacks prefix %q", ErrDifficultyNotMet, blk.Hash, p.Prefix)
	}
	return nil
}

// Seal mines the block. When the context is cancelled, mining stops, the
// block is left unchanged and ctx.Err() is returned.
func (p *PoW) Seal(ctx context.Context, blk *block.Block) error {
	if blk == nil {
		return ErrNilBlock
	}
	if err := block.ValidateDifficulty(p.Prefix); err != nil {
		return err
	}
	done := log.Benchmark("seal")
	defer done()

	var err error
	if p.Threads <= 1 {
		err = blk.MineContext(ctx, p.Prefix)
	} else {
		err = p.sealParallel(ctx, blk, p.Threads)
	}
	if err != nil {
		return err
	}
	log.Consensus.Debug().
		Uint64("index", blk.Index).
		Uint64("nonce", blk.Nonce).
		Int("threads", max(p.Threads, 1)).
		Msg("Block sealed")
	return nil
}

// sealParallel mines with multiple goroutines; goroutine i starts at
// nonce i and steps by threads.
func (p *PoW) sealParallel(ctx context.Context, blk *block.Block, threads int) error {
	sealing := blk.SealingPrefix()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		nonce uint64
		hash  string
		err   error
	}
	found := make(chan result, threads)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func(start uint64) {
			defer wg.Done()
			nonce, hash, err := block.SearchNonce(ctx, sealing, p.Prefix, start, uint64(threads))
			if err != nil && ctx.Err() != nil {
				return
			}
			found <- result{nonce: nonce, hash: hash, err: err}
			cancel()
		}(uint64(i))
	}

	go func() {
		wg.Wait()
		close(found)
	}()

	r, ok := <-found
	if !ok {
		return ctx.Err()
	}
	if r.err != nil {
		return r.err
	}
	blk.Nonce = r.nonce
	blk.Hash = r.hash
	return nil
}
