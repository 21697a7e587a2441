package block

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/powledger/pkg/types"
)

// Validation errors.
var (
	ErrNilTransaction      = errors.New("block contains nil transaction")
	ErrMisplacedCoinbase   = errors.New("coinbase must be the first transaction")
	ErrCoinbaseHeight      = errors.New("coinbase height does not match block index")
	ErrDuplicateBlockInput = errors.New("duplicate input across transactions in block")
	ErrEmptyPrevHash       = errors.New("block has empty prev_hash")
)

// Validate checks block structure and internal consistency: every
// transaction is well formed, a coinbase may only appear first and must
// carry the block's index, and no outpoint is spent twice. It does not
// check the hash or proof of work.
func (b *Block) Validate() error {
	if b.PrevHash == "" {
		return ErrEmptyPrevHash
	}

	spent := make(map[types.Outpoint]int)
	for i, t := range b.Transactions {
		if t == nil {
			return fmt.Errorf("tx %d: %w", i, ErrNilTransaction)
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
		if t.IsCoinbase() {
			if i != 0 {
				return fmt.Errorf("tx %d: %w", i, ErrMisplacedCoinbase)
			}
			if h, _ := t.CoinbaseHeight(); h != b.Index {
				return fmt.Errorf("%w: coinbase %d, block %d", ErrCoinbaseHeight, h, b.Index)
			}
			continue
		}
		for _, op := range t.Spends() {
			if prev, ok := spent[op]; ok {
				return fmt.Errorf("tx %d: %w: outpoint %s also spent in tx %d",
					i, ErrDuplicateBlockInput, op, prev)
			}
			spent[op] = i
		}
	}
	return nil
}
