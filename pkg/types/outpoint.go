package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidOutpoint is returned by ParseOutpoint for malformed input.
var ErrInvalidOutpoint = errors.New("invalid outpoint")

// Outpoint references a specific output in a transaction. TxID is an
// opaque string: normally a hex txid, but dev-mode credits use other forms.
type Outpoint struct {
	TxID  string `json:"txid"`
	Index uint32 `json:"index"`
}

// IsZero returns true if the outpoint has an empty TxID and zero index.
// The zero outpoint marks a coinbase input.
func (o Outpoint) IsZero() bool {
	return o.TxID == "" && o.Index == 0
}

// String returns "txid:index".
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Index)
}

// ParseOutpoint parses the "txid:index" form. The split happens at the
// last colon so txids may contain colons.
func ParseOutpoint(s string) (Outpoint, error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return Outpoint{}, fmt.Errorf("%w: %q", ErrInvalidOutpoint, s)
	}
	idx, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil {
		return Outpoint{}, fmt.Errorf("%w: %q", ErrInvalidOutpoint, s)
	}
	return Outpoint{TxID: s[:i], Index: uint32(idx)}, nil
}
