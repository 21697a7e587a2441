package wallet

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Encryption errors.
var (
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted ciphertext")
	ErrCiphertextShort = errors.New("ciphertext too short")
	ErrCipherVersion   = errors.New("unsupported ciphertext version")
)

const (
	// SaltSize is the Argon2id salt length.
	SaltSize = 16

	cipherVersion = 1
	// Sealed layout: version(1) | salt(16) | memory(4) | iterations(4) | threads(1) | nonce(24) | ciphertext
	headerSize = 1 + SaltSize + 4 + 4 + 1
)

// EncryptionParams holds Argon2id cost parameters. They travel with each
// ciphertext so the cost can be raised without breaking old records.
type EncryptionParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultParams returns the interactive Argon2id parameters.
func DefaultParams() EncryptionParams {
	return EncryptionParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

func deriveKey(passphrase, salt []byte, params EncryptionParams) []byte {
	return argon2.IDKey(passphrase, salt, params.Iterations, params.Memory, params.Parallelism, chacha20poly1305.KeySize)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Encrypt seals data under passphrase with Argon2id and
// XChaCha20-Poly1305. The header is authenticated as associated data.
func Encrypt(data, passphrase []byte, params EncryptionParams) ([]byte, error) {
	out := make([]byte, headerSize, headerSize+chacha20poly1305.NonceSizeX+len(data)+chacha20poly1305.Overhead)
	out[0] = cipherVersion
	salt := out[1 : 1+SaltSize]
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	binary.LittleEndian.PutUint32(out[1+SaltSize:], params.Memory)
	binary.LittleEndian.PutUint32(out[5+SaltSize:], params.Iterations)
	out[9+SaltSize] = params.Parallelism

	key := deriveKey(passphrase, salt, params)
	defer wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	header := out[:headerSize]
	out = append(out, nonce...)
	return aead.Seal(out, nonce, data, header), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func Decrypt(sealed, passphrase []byte) ([]byte, error) {
	if len(sealed) < headerSize+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: %d bytes", ErrCiphertextShort, len(sealed))
	}
	if sealed[0] != cipherVersion {
		return nil, fmt.Errorf("%w: %d", ErrCipherVersion, sealed[0])
	}

	header := sealed[:headerSize]
	salt := header[1 : 1+SaltSize]
	params := EncryptionParams{
		Memory:      binary.LittleEndian.Uint32(header[1+SaltSize:]),
		Iterations:  binary.LittleEndian.Uint32(header[5+SaltSize:]),
		Parallelism: header[9+SaltSize],
	}
	if params.Iterations == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("%w: invalid cost parameters", ErrWrongPassphrase)
	}
	nonce := sealed[headerSize : headerSize+chacha20poly1305.NonceSizeX]

	key := deriveKey(passphrase, salt, params)
	defer wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plain, err := aead.Open(nil, nonce, sealed[headerSize+chacha20poly1305.NonceSizeX:], header)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}
