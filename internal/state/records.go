package state

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Klingon-tech/powledger/internal/utxo"
	"github.com/Klingon-tech/powledger/pkg/tx"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// Meta describes a saved snapshot.
type Meta struct {
	Version        int       `json:"version"`
	Difficulty     string    `json:"difficulty"`
	Height         uint64    `json:"height"`
	TipHash        string    `json:"tip_hash"`
	UTXOCommitment string    `json:"utxo_commitment"`
	SavedAt        time.Time `json:"saved_at"`
}

// UserRecord is a persisted account. PrivateKey is hex; when Encrypted
// it is the hex of the sealed key.
type UserRecord struct {
	Name       string    `json:"name"`
	PrivateKey string    `json:"private_key"`
	PublicKey  string    `json:"public_key"`
	Address    string    `json:"address"`
	Encrypted  bool      `json:"encrypted"`
	CreatedAt  time.Time `json:"created_at"`
}

// UTXORecord is one persisted unspent output.
type UTXORecord struct {
	TxID    string       `json:"txid"`
	Index   uint32       `json:"index"`
	Address string       `json:"address"`
	Amount  types.Amount `json:"amount"`
}

func newUTXORecord(u *utxo.UTXO) UTXORecord {
	return UTXORecord{TxID: u.Outpoint.TxID, Index: u.Outpoint.Index, Address: u.Address, Amount: u.Amount}
}

// UTXO converts the record back to a set entry.
func (r UTXORecord) UTXO() *utxo.UTXO {
	return &utxo.UTXO{
		Outpoint: types.Outpoint{TxID: r.TxID, Index: r.Index},
		Address:  r.Address,
		Amount:   r.Amount,
	}
}

// InputRecord is a persisted input; Signature is hex.
type InputRecord struct {
	TxID      string `json:"txid"`
	Index     uint32 `json:"index"`
	Signature string `json:"signature"`
}

// OutputRecord is a persisted output.
type OutputRecord struct {
	Address string       `json:"address"`
	Amount  types.Amount `json:"amount"`
}

// TxRecord is a persisted pending transaction.
type TxRecord struct {
	TxID    string         `json:"txid"`
	Inputs  []InputRecord  `json:"inputs"`
	Outputs []OutputRecord `json:"outputs"`
	Fee     types.Amount   `json:"fee"`
}

func newTxRecord(t *tx.Transaction) TxRecord {
	rec := TxRecord{
		TxID:    t.TxID,
		Inputs:  make([]InputRecord, len(t.Inputs)),
		Outputs: make([]OutputRecord, len(t.Outputs)),
		Fee:     t.Fee,
	}
	for i, in := range t.Inputs {
		rec.Inputs[i] = InputRecord{TxID: in.PrevOut.TxID, Index: in.PrevOut.Index, Signature: hex.EncodeToString(in.Signature)}
	}
	for i, out := range t.Outputs {
		rec.Outputs[i] = OutputRecord{Address: out.Address, Amount: out.Amount}
	}
	return rec
}

// Transaction rebuilds the transaction. The txid is taken from the
// record, not recomputed.
func (r TxRecord) Transaction() (*tx.Transaction, error) {
	t := &tx.Transaction{
		Inputs:  make([]tx.Input, len(r.Inputs)),
		Outputs: make([]tx.Output, len(r.Outputs)),
		Fee:     r.Fee,
		TxID:    r.TxID,
	}
	for i, in := range r.Inputs {
		sig, err := hex.DecodeString(in.Signature)
		if err != nil {
			return nil, fmt.Errorf("tx %s input %d: signature: %w", r.TxID, i, err)
		}
		if len(sig) == 0 {
			sig = nil
		}
		t.Inputs[i] = tx.Input{PrevOut: types.Outpoint{TxID: in.TxID, Index: in.Index}, Signature: sig}
	}
	for i, out := range r.Outputs {
		t.Outputs[i] = tx.Output{Address: out.Address, Amount: out.Amount}
	}
	return t, nil
}
