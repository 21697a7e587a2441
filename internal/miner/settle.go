package miner

import (
	"fmt"

	"github.com/Klingon-tech/powledger/pkg/block"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// UTXOWriter is the mutating half of the UTXO set.
type UTXOWriter interface {
	Add(op types.Outpoint, address string, amount types.Amount) error
	Remove(op types.Outpoint) error
}

// Settle applies a mined block to the UTXO set: every output of every
// record is credited first, then every spent input is removed. Coinbase
// records have no inputs and only credit.
func Settle(set UTXOWriter, blk *block.Block) error {
	for _, t := range blk.Transactions {
		for i, out := range t.Outputs {
			op := types.Outpoint{TxID: t.TxID, Index: uint32(i)}
			if err := set.Add(op, out.Address, out.Amount); err != nil {
				return fmt.Errorf("credit %s: %w", op, err)
			}
		}
	}
	for _, t := range blk.Transactions {
		for _, op := range t.Spends() {
			if err := set.Remove(op); err != nil {
				return fmt.Errorf("debit %s: %w", op, err)
			}
		}
	}
	return nil
}
