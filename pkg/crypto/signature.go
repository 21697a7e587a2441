package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// ErrInvalidKey is returned for private or public key material that is not
// a valid secp256k1 key.
var ErrInvalidKey = errors.New("invalid key")

// PrivateKeySize is the length of a private key scalar in bytes.
const PrivateKeySize = 32

// PublicKeySize is the length of the raw X||Y public key encoding.
const PublicKeySize = 64

// Signer signs 32-byte digests with ECDSA/secp256k1.
type Signer interface {
	// Sign produces a DER-encoded ECDSA signature over a 32-byte digest.
	Sign(digest []byte) ([]byte, error)
	// PublicKey returns the 64-byte X||Y public key.
	PublicKey() []byte
}

// KeyPair is a secp256k1 private key and its public point.
type KeyPair struct {
	key *secp256k1.PrivateKey
}

// KeyExport is the textual form of a key pair.
type KeyExport struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
	Address    string `json:"address"`
}

// GenerateKeyPair creates a new random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &KeyPair{key: key}, nil
}

// KeyPairFromPrivate rebuilds a key pair from a 32-byte scalar. The scalar
// must lie in [1, n-1].
func KeyPairFromPrivate(b []byte) (*KeyPair, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrInvalidKey, PrivateKeySize, len(b))
	}
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(b); overflow {
		return nil, fmt.Errorf("%w: scalar exceeds curve order", ErrInvalidKey)
	}
	if s.IsZero() {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidKey)
	}
	return &KeyPair{key: secp256k1.NewPrivateKey(&s)}, nil
}

// KeyPairFromHex rebuilds a key pair from a hex-encoded scalar.
func KeyPairFromHex(s string) (*KeyPair, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return KeyPairFromPrivate(b)
}

// Sign produces a deterministic (RFC 6979) ECDSA signature over a 32-byte
// digest, DER encoded.
func (kp *KeyPair) Sign(digest []byte) ([]byte, error) {
	if len(digest) != HashSize {
		return nil, fmt.Errorf("digest must be %d bytes, got %d", HashSize, len(digest))
	}
	return ecdsa.Sign(kp.key, digest).Serialize(), nil
}

// PublicKey returns the 64-byte X||Y public key.
func (kp *KeyPair) PublicKey() []byte {
	return kp.key.PubKey().SerializeUncompressed()[1:]
}

// PublicKeyHex returns the hex form of PublicKey.
func (kp *KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(kp.PublicKey())
}

// PrivateKey returns the 32-byte private scalar.
func (kp *KeyPair) PrivateKey() []byte {
	return kp.key.Serialize()
}

// PrivateKeyHex returns the hex form of PrivateKey.
func (kp *KeyPair) PrivateKeyHex() string {
	return hex.EncodeToString(kp.PrivateKey())
}

// Address returns the address owned by this key pair.
func (kp *KeyPair) Address() string {
	return HashHex(kp.PublicKey())
}

// Export returns the textual form of the key pair.
func (kp *KeyPair) Export() KeyExport {
	return KeyExport{
		PrivateKey: kp.PrivateKeyHex(),
		PublicKey:  kp.PublicKeyHex(),
		Address:    kp.Address(),
	}
}

// Zero clears the private key from memory.
func (kp *KeyPair) Zero() {
	kp.key.Zero()
}

// ParsePublicKey parses a public key in raw 64-byte, uncompressed 65-byte
// or compressed 33-byte form.
func ParsePublicKey(b []byte) (*secp256k1.PublicKey, error) {
	if len(b) == PublicKeySize {
		full := make([]byte, 0, PublicKeySize+1)
		full = append(full, 0x04)
		b = append(full, b...)
	}
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pub, nil
}

// DeriveAddress computes the address of a public key given in any form
// accepted by ParsePublicKey.
func DeriveAddress(pubKey []byte) (string, error) {
	pub, err := ParsePublicKey(pubKey)
	if err != nil {
		return "", err
	}
	return HashHex(pub.SerializeUncompressed()[1:]), nil
}

// VerifySignature checks a DER ECDSA signature over a 32-byte digest.
// It returns false on any error.
func VerifySignature(digest, signature, pubKey []byte) bool {
	if len(digest) != HashSize {
		return false
	}
	pub, err := ParsePublicKey(pubKey)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(digest, pub)
}
