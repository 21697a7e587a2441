package chain

import "github.com/Klingon-tech/powledger/pkg/types"

// State holds the current chain tip state.
type State struct {
	Height       uint64
	TipHash      string
	Supply       types.Amount // Value minted by coinbase records (genesis credit + rewards).
	TipTimestamp int64
}
