package utxo

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Commitment computes a BLAKE3 digest over every entry in key order.
// It changes whenever any outpoint, owner or amount changes and is used
// to detect a stored UTXO set that no longer matches its snapshot
// metadata. An empty set commits to the empty string.
func Commitment(s *Set) (string, error) {
	h := blake3.New()
	n := 0
	err := s.ForEach(func(u *UTXO) error {
		_, err := h.Write(hashInput(u))
		n++
		return err
	})
	if err != nil {
		return "", fmt.Errorf("utxo commitment: %w", err)
	}
	if n == 0 {
		return "", nil
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashInput is the canonical encoding of one entry:
// len(txid)(4) | txid | index(4) | len(address)(4) | address | amount(8).
func hashInput(u *UTXO) []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(u.Outpoint.TxID)))
	buf = append(buf, u.Outpoint.TxID...)
	buf = binary.LittleEndian.AppendUint32(buf, u.Outpoint.Index)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(u.Address)))
	buf = append(buf, u.Address...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(u.Amount))
	return buf
}
