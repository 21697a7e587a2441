package mempool

import (
	"fmt"

	"github.com/Klingon-tech/powledger/pkg/tx"
)

// Default policy limits.
const (
	DefaultMaxTxSize  = 100_000
	DefaultMaxInputs  = 1000
	DefaultMaxOutputs = 1000
)

// Policy defines transaction acceptance rules. Zero fields are unlimited.
type Policy struct {
	MaxTxSize  int // Maximum size of the canonical encoding in bytes.
	MaxInputs  int
	MaxOutputs int
}

// DefaultPolicy returns a policy with sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxTxSize:  DefaultMaxTxSize,
		MaxInputs:  DefaultMaxInputs,
		MaxOutputs: DefaultMaxOutputs,
	}
}

// Check validates a transaction against policy rules. These limits are
// local to the pool; blocks themselves carry no size limit.
func (p *Policy) Check(transaction *tx.Transaction) error {
	if size := len(transaction.Bytes()); p.MaxTxSize > 0 && size > p.MaxTxSize {
		return fmt.Errorf("transaction too large: %d bytes, max %d", size, p.MaxTxSize)
	}
	if p.MaxInputs > 0 && len(transaction.Inputs) > p.MaxInputs {
		return fmt.Errorf("too many inputs: %d, max %d", len(transaction.Inputs), p.MaxInputs)
	}
	if p.MaxOutputs > 0 && len(transaction.Outputs) > p.MaxOutputs {
		return fmt.Errorf("too many outputs: %d, max %d", len(transaction.Outputs), p.MaxOutputs)
	}
	return nil
}
