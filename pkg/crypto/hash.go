// Package crypto provides the hashing and signature primitives of the ledger.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashSize is the length of a SHA-256 digest in bytes.
const HashSize = sha256.Size

// Hash computes the SHA-256 digest of data.
func Hash(data []byte) [HashSize]byte {
	return sha256.Sum256(data)
}

// HashHex returns the lowercase hex SHA-256 digest of data. Block hashes,
// txids and addresses all use this form.
func HashHex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
