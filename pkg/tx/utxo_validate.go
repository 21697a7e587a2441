package tx

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/powledger/pkg/types"
)

// UTXO-aware validation errors.
var (
	ErrInputNotFound = errors.New("input UTXO not found")
	ErrInputOverflow = errors.New("input values overflow")
	ErrUnbalanced    = errors.New("inputs do not equal outputs plus fee")
	ErrUnknownOwner  = errors.New("no public key for input owner")
)

// UTXOProvider gives read access to unspent outputs.
type UTXOProvider interface {
	Lookup(op types.Outpoint) (address string, amount types.Amount, ok bool)
}

// KeyResolver returns the public key that controls an address.
type KeyResolver interface {
	PublicKeyFor(address string) ([]byte, bool)
}

// ValidateWithUTXOs validates tx structurally and against the UTXO set:
// every input must be unspent, signed by the owner of the spent output,
// and the inputs must exactly cover outputs plus fee. Coinbase records
// only get the structural check.
func (tx *Transaction) ValidateWithUTXOs(utxos UTXOProvider, keys KeyResolver) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.IsCoinbase() {
		return nil
	}

	var totalIn types.Amount
	owners := make([]string, len(tx.Inputs))
	for i, in := range tx.Inputs {
		addr, amount, ok := utxos.Lookup(in.PrevOut)
		if !ok {
			return fmt.Errorf("input %d (%s): %w", i, in.PrevOut, ErrInputNotFound)
		}
		owners[i] = addr
		var err error
		if totalIn, err = totalIn.Add(amount); err != nil {
			return fmt.Errorf("input %d: %w", i, ErrInputOverflow)
		}
	}

	err := tx.VerifySignatures(func(i int, _ Input) ([]byte, error) {
		pub, ok := keys.PublicKeyFor(owners[i])
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownOwner, owners[i])
		}
		return pub, nil
	})
	if err != nil {
		return err
	}

	totalOut, err := tx.TotalOutput()
	if err != nil {
		return err
	}
	needed, err := totalOut.Add(tx.Fee)
	if err != nil {
		return ErrOutputOverflow
	}
	if totalIn != needed {
		return fmt.Errorf("%w: inputs=%s outputs+fee=%s", ErrUnbalanced, totalIn, needed)
	}
	return nil
}
