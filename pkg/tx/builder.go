package tx

import (
	"fmt"

	"github.com/Klingon-tech/powledger/pkg/crypto"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{tx: &Transaction{}}
}

// AddInput adds an unsigned input spending prevOut.
func (b *Builder) AddInput(prevOut types.Outpoint) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, Input{PrevOut: prevOut})
	return b
}

// AddOutput pays amount to address.
func (b *Builder) AddOutput(address string, amount types.Amount) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, Output{Address: address, Amount: amount})
	return b
}

// SetFee sets the fee the transaction leaves for the miner.
func (b *Builder) SetFee(fee types.Amount) *Builder {
	b.tx.Fee = fee
	return b
}

// Sign signs every input with key. All inputs must belong to the key's
// address.
func (b *Builder) Sign(key crypto.Signer) error {
	if err := b.tx.SignAll(key); err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	return nil
}

// Build returns the transaction with its txid computed.
func (b *Builder) Build() *Transaction {
	b.tx.TxID = b.tx.ComputeID()
	return b.tx
}
