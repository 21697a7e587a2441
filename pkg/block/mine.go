package block

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Klingon-tech/powledger/pkg/crypto"
)

// Mining errors.
var (
	ErrInvalidDifficulty = errors.New("invalid difficulty prefix")
	ErrNonceExhausted    = errors.New("nonce space exhausted")
)

// CheckInterval is how many nonces are tried between context checks.
const CheckInterval = 1 << 16

const hexDigits = "0123456789abcdef"

// ValidateDifficulty checks that prefix is a usable difficulty: lowercase
// hex digits only, at most the length of a hash.
func ValidateDifficulty(prefix string) error {
	if len(prefix) > 2*crypto.HashSize {
		return fmt.Errorf("%w: %d characters, max %d", ErrInvalidDifficulty, len(prefix), 2*crypto.HashSize)
	}
	for i := 0; i < len(prefix); i++ {
		if strings.IndexByte(hexDigits, prefix[i]) < 0 {
			return fmt.Errorf("%w: %q is not lowercase hex", ErrInvalidDifficulty, prefix)
		}
	}
	return nil
}

// MeetsDifficulty reports whether a hex hash starts with the difficulty
// prefix.
func MeetsDifficulty(hash, prefix string) bool {
	return strings.HasPrefix(hash, prefix)
}

// digestHasPrefix is MeetsDifficulty on a raw digest, without hex encoding.
func digestHasPrefix(digest []byte, prefix string) bool {
	for i := 0; i < len(prefix); i++ {
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if hexDigits[nibble] != prefix[i] {
			return false
		}
	}
	return true
}

// Mine searches nonces from zero until the hash meets prefix, then sets
// Nonce and Hash. The search is unbounded; keep difficulty low.
func (b *Block) Mine(prefix string) error {
	return b.MineContext(context.Background(), prefix)
}

// MineContext is Mine with cancellation. On cancellation the block keeps
// its previous nonce and hash and ctx.Err() is returned.
func (b *Block) MineContext(ctx context.Context, prefix string) error {
	if err := ValidateDifficulty(prefix); err != nil {
		return err
	}
	nonce, hash, err := SearchNonce(ctx, b.SealingPrefix(), prefix, 0, 1)
	if err != nil {
		return err
	}
	b.Nonce = nonce
	b.Hash = hash
	return nil
}

// SearchNonce tries nonces start, start+stride, ... against the sealing
// prefix and returns the first that meets difficulty. Several searches
// with distinct starts and a shared stride partition the nonce space.
func SearchNonce(ctx context.Context, sealing []byte, difficulty string, start, stride uint64) (uint64, string, error) {
	if stride == 0 {
		stride = 1
	}
	buf := make([]byte, len(sealing)+8)
	copy(buf, sealing)
	tail := buf[len(sealing):]

	for nonce, n := start, uint64(0); ; nonce, n = nonce+stride, n+1 {
		if n%CheckInterval == 0 {
			select {
			case <-ctx.Done():
				return 0, "", ctx.Err()
			default:
			}
		}

		binary.LittleEndian.PutUint64(tail, nonce)
		digest := crypto.Hash(buf)
		if digestHasPrefix(digest[:], difficulty) {
			return nonce, hex.EncodeToString(digest[:]), nil
		}

		if nonce > math.MaxUint64-stride {
			return 0, "", ErrNonceExhausted
		}
	}
}
