package chain

import (
	"fmt"

	"github.com/Klingon-tech/powledger/pkg/block"
	"github.com/Klingon-tech/powledger/pkg/tx"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// Genesis describes the first block: a single coinbase credit.
type Genesis struct {
	Address   string
	Amount    types.Amount
	Timestamp int64 // 0 means the time of creation.
}

// DefaultGenesis credits 1000 coins to the reserved GENESIS address.
func DefaultGenesis() Genesis {
	return Genesis{
		Address: types.GenesisAddress,
		Amount:  types.Coins(1000),
	}
}

// CreateGenesisBlock builds the unmined genesis block: index 0,
// prev_hash "0", and one coinbase record paying the genesis credit.
func CreateGenesisBlock(gen Genesis) (*block.Block, error) {
	if gen.Address == "" {
		return nil, fmt.Errorf("genesis address is empty")
	}
	if gen.Amount == 0 {
		return nil, fmt.Errorf("genesis amount is zero")
	}

	coinbase := tx.NewCoinbase(0, tx.Output{Address: gen.Address, Amount: gen.Amount})
	txs := []*tx.Transaction{coinbase}
	if gen.Timestamp != 0 {
		return block.NewAt(0, txs, block.GenesisPrevHash, gen.Timestamp), nil
	}
	return block.New(0, txs, block.GenesisPrevHash), nil
}
