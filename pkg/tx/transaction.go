// Package tx defines transaction types, signing and validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/powledger/pkg/crypto"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// ErrInvalidIndex is returned when an input index is out of range.
var ErrInvalidIndex = errors.New("input index out of range")

// Transaction transfers value from spent outputs to new outputs.
type Transaction struct {
	Inputs  []Input      `json:"inputs"`
	Outputs []Output     `json:"outputs"`
	Fee     types.Amount `json:"fee"`
	TxID    string       `json:"txid"`
}

// Input references a UTXO being spent. Signature is empty until signed.
type Input struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature []byte         `json:"signature"`
}

type inputJSON struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature string         `json:"signature"`
}

// MarshalJSON encodes the input with a hex-encoded signature.
func (in Input) MarshalJSON() ([]byte, error) {
	return json.Marshal(inputJSON{
		PrevOut:   in.PrevOut,
		Signature: hex.EncodeToString(in.Signature),
	})
}

// UnmarshalJSON decodes an input with a hex-encoded signature.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PrevOut = j.PrevOut
	in.Signature = nil
	if j.Signature != "" {
		b, err := hex.DecodeString(j.Signature)
		if err != nil {
			return fmt.Errorf("input signature: %w", err)
		}
		in.Signature = b
	}
	return nil
}

// IsSigned reports whether the input carries a signature.
func (in Input) IsSigned() bool {
	return len(in.Signature) > 0
}

// Output assigns an amount to an address.
type Output struct {
	Address string       `json:"address"`
	Amount  types.Amount `json:"amount"`
}

// New creates a transaction from the given inputs, outputs and fee and
// computes its txid.
func New(inputs []Input, outputs []Output, fee types.Amount) *Transaction {
	tx := &Transaction{
		Inputs:  append([]Input(nil), inputs...),
		Outputs: append([]Output(nil), outputs...),
		Fee:     fee,
	}
	tx.TxID = tx.ComputeID()
	return tx
}

// Bytes returns the canonical serialization used for the txid.
// Format: input_count(4) | [txid_len(4) txid index(4) sig_len(4) sig]... |
// output_count(4) | [addr_len(4) addr amount(8)]... | fee(8)
func (tx *Transaction) Bytes() []byte {
	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = appendInput(buf, in.PrevOut, in.Signature)
	}
	return tx.appendOutputsAndFee(buf)
}

func appendInput(buf []byte, op types.Outpoint, sig []byte) []byte {
	buf = appendString(buf, op.TxID)
	buf = binary.LittleEndian.AppendUint32(buf, op.Index)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(sig)))
	return append(buf, sig...)
}

func (tx *Transaction) appendOutputsAndFee(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = appendString(buf, out.Address)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(out.Amount))
	}
	return binary.LittleEndian.AppendUint64(buf, uint64(tx.Fee))
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// ComputeID hashes the transaction as it stands, signatures included.
func (tx *Transaction) ComputeID() string {
	return crypto.HashHex(tx.Bytes())
}

// UnsignedID returns the txid the transaction has before any input is
// signed. It does not depend on signing progress.
func (tx *Transaction) UnsignedID() string {
	bare := &Transaction{Outputs: tx.Outputs, Fee: tx.Fee}
	bare.Inputs = make([]Input, len(tx.Inputs))
	for i, in := range tx.Inputs {
		bare.Inputs[i] = Input{PrevOut: in.PrevOut}
		if in.PrevOut.IsZero() {
			bare.Inputs[i].Signature = in.Signature
		}
	}
	return bare.ComputeID()
}

// FinalID returns the txid over the fully signed transaction.
func (tx *Transaction) FinalID() (string, error) {
	for i, in := range tx.Inputs {
		if !in.PrevOut.IsZero() && !in.IsSigned() {
			return "", fmt.Errorf("input %d: %w", i, ErrMissingSig)
		}
	}
	return tx.ComputeID(), nil
}

// IsFullySigned reports whether every non-coinbase input carries a
// signature.
func (tx *Transaction) IsFullySigned() bool {
	_, err := tx.FinalID()
	return err == nil
}

// TotalOutput returns the sum of all output amounts.
func (tx *Transaction) TotalOutput() (types.Amount, error) {
	var total types.Amount
	for i, out := range tx.Outputs {
		var err error
		total, err = total.Add(out.Amount)
		if err != nil {
			return 0, fmt.Errorf("output %d: %w", i, ErrOutputOverflow)
		}
	}
	return total, nil
}

// Spends returns the outpoints consumed by the transaction. Coinbase
// records spend nothing.
func (tx *Transaction) Spends() []types.Outpoint {
	if tx.IsCoinbase() {
		return nil
	}
	ops := make([]types.Outpoint, len(tx.Inputs))
	for i, in := range tx.Inputs {
		ops[i] = in.PrevOut
	}
	return ops
}

// Clone returns a deep copy of the transaction.
func (tx *Transaction) Clone() *Transaction {
	c := &Transaction{
		Inputs:  make([]Input, len(tx.Inputs)),
		Outputs: append([]Output(nil), tx.Outputs...),
		Fee:     tx.Fee,
		TxID:    tx.TxID,
	}
	for i, in := range tx.Inputs {
		c.Inputs[i] = Input{PrevOut: in.PrevOut, Signature: append([]byte(nil), in.Signature...)}
	}
	return c
}
