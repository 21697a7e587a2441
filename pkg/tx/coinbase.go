package tx

import (
	"encoding/binary"

	"github.com/Klingon-tech/powledger/pkg/types"
)

// NewCoinbase creates the output-only record that mints value at a block
// height: the genesis credit or a block reward. Its single input is the
// zero outpoint carrying the height, which keeps every coinbase txid
// unique.
func NewCoinbase(height uint64, outputs ...Output) *Transaction {
	tag := binary.LittleEndian.AppendUint64(nil, height)
	tx := &Transaction{
		Inputs:  []Input{{PrevOut: types.Outpoint{}, Signature: tag}},
		Outputs: append([]Output(nil), outputs...),
	}
	tx.TxID = tx.ComputeID()
	return tx
}

// IsCoinbase reports whether the transaction is a coinbase record.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].PrevOut.IsZero()
}

// CoinbaseHeight returns the height encoded in a coinbase record.
func (tx *Transaction) CoinbaseHeight() (uint64, bool) {
	if !tx.IsCoinbase() || len(tx.Inputs[0].Signature) != 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(tx.Inputs[0].Signature), true
}
