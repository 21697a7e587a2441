package tx

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/powledger/pkg/types"
)

// Validation errors.
var (
	ErrNoInputs       = errors.New("transaction has no inputs")
	ErrNoOutputs      = errors.New("transaction has no outputs")
	ErrDuplicateInput = errors.New("duplicate input")
	ErrZeroInput      = errors.New("zero outpoint outside coinbase")
	ErrOutputOverflow = errors.New("output values overflow")
	ErrZeroOutput     = errors.New("output amount is zero")
	ErrEmptyAddress   = errors.New("output address is empty")
	ErrMissingSig     = errors.New("input missing signature")
	ErrInvalidSig     = errors.New("invalid signature")
	ErrCoinbaseFee    = errors.New("coinbase must not carry a fee")
	ErrCoinbaseTag    = errors.New("coinbase height tag malformed")
	ErrTxIDMismatch   = errors.New("txid does not match contents")
)

// Validate checks that the transaction is fit for chain inclusion. It
// does not consult the UTXO set; see ValidateWithUTXOs.
func (tx *Transaction) Validate() error {
	if len(tx.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(tx.Outputs) == 0 {
		return ErrNoOutputs
	}

	if tx.IsCoinbase() {
		if tx.Fee != 0 {
			return ErrCoinbaseFee
		}
		if _, ok := tx.CoinbaseHeight(); !ok {
			return ErrCoinbaseTag
		}
	} else {
		seen := make(map[types.Outpoint]bool, len(tx.Inputs))
		for i, in := range tx.Inputs {
			if in.PrevOut.IsZero() {
				return fmt.Errorf("input %d: %w", i, ErrZeroInput)
			}
			if seen[in.PrevOut] {
				return fmt.Errorf("input %d (%s): %w", i, in.PrevOut, ErrDuplicateInput)
			}
			seen[in.PrevOut] = true
			if !in.IsSigned() {
				return fmt.Errorf("input %d: %w", i, ErrMissingSig)
			}
		}
	}

	for i, out := range tx.Outputs {
		if out.Address == "" {
			return fmt.Errorf("output %d: %w", i, ErrEmptyAddress)
		}
		if out.Amount == 0 {
			return fmt.Errorf("output %d: %w", i, ErrZeroOutput)
		}
	}
	total, err := tx.TotalOutput()
	if err != nil {
		return err
	}
	if _, err := total.Add(tx.Fee); err != nil {
		return fmt.Errorf("fee: %w", ErrOutputOverflow)
	}

	if tx.TxID != tx.ComputeID() {
		return ErrTxIDMismatch
	}
	return nil
}
