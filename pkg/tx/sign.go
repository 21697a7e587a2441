package tx

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/powledger/pkg/crypto"
)

// SigningMessage returns the bytes signed for input i: the same layout as
// Bytes with only inputs[i], its signature cleared, followed by every
// output and the fee. Other inputs are not committed to.
func (tx *Transaction) SigningMessage(i int) ([]byte, error) {
	if i < 0 || i >= len(tx.Inputs) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidIndex, i, len(tx.Inputs))
	}
	buf := binary.LittleEndian.AppendUint32(nil, 1)
	buf = appendInput(buf, tx.Inputs[i].PrevOut, nil)
	return tx.appendOutputsAndFee(buf), nil
}

// SigningDigest returns the SHA-256 digest of SigningMessage(i).
func (tx *Transaction) SigningDigest(i int) ([crypto.HashSize]byte, error) {
	msg, err := tx.SigningMessage(i)
	if err != nil {
		return [crypto.HashSize]byte{}, err
	}
	return crypto.Hash(msg), nil
}

// SignInput signs input i with key, stores the signature and recomputes
// the txid.
func (tx *Transaction) SignInput(i int, key crypto.Signer) error {
	digest, err := tx.SigningDigest(i)
	if err != nil {
		return err
	}
	sig, err := key.Sign(digest[:])
	if err != nil {
		return fmt.Errorf("sign input %d: %w", i, err)
	}
	tx.Inputs[i].Signature = sig
	tx.TxID = tx.ComputeID()
	return nil
}

// SignAll signs every input with the same key.
func (tx *Transaction) SignAll(key crypto.Signer) error {
	for i := range tx.Inputs {
		if err := tx.SignInput(i, key); err != nil {
			return err
		}
	}
	return nil
}

// VerifyInput checks the signature on input i against pubKey. It never
// fails loudly: a missing or malformed signature, a bad key, or an
// out-of-range index all yield false.
func (tx *Transaction) VerifyInput(i int, pubKey []byte) bool {
	if i < 0 || i >= len(tx.Inputs) || !tx.Inputs[i].IsSigned() {
		return false
	}
	digest, err := tx.SigningDigest(i)
	if err != nil {
		return false
	}
	return crypto.VerifySignature(digest[:], tx.Inputs[i].Signature, pubKey)
}

// VerifySignatures checks every input against the key returned by
// resolve for the input's index.
func (tx *Transaction) VerifySignatures(resolve func(i int, in Input) ([]byte, error)) error {
	for i, in := range tx.Inputs {
		if !in.IsSigned() {
			return fmt.Errorf("input %d: %w", i, ErrMissingSig)
		}
		pub, err := resolve(i, in)
		if err != nil {
			return fmt.Errorf("input %d: %w", i, err)
		}
		if !tx.VerifyInput(i, pub) {
			return fmt.Errorf("input %d: %w", i, ErrInvalidSig)
		}
	}
	return nil
}
