package wallet

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Klingon-tech/powledger/internal/utxo"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// Coin selection errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoUTXOs           = errors.New("no UTXOs available")
	ErrZeroTarget        = errors.New("target must be positive")
	ErrUnknownStrategy   = errors.New("unknown coin selection strategy")
)

// Strategy names a coin selection policy.
type Strategy string

// Coin selection strategies.
const (
	// FirstFit accumulates outputs in the given order until the target is
	// covered.
	FirstFit Strategy = "first-fit"
	// MinChange picks whichever of "smallest single output that covers
	// the target" and "largest-first accumulation" leaves less change.
	MinChange Strategy = "min-change"
)

// ParseStrategy maps a config value to a Strategy. Empty means FirstFit.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", FirstFit:
		return FirstFit, nil
	case MinChange:
		return MinChange, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// CoinSelection holds the result of coin selection.
type CoinSelection struct {
	Inputs []*utxo.UTXO
	Total  types.Amount // Sum of selected amounts.
	Change types.Amount // Total - target.
}

// SelectCoins chooses outputs covering target. Outputs for which skip
// returns true (reserved by a pending transaction) are ignored; skip may
// be nil.
func SelectCoins(strategy Strategy, utxos []*utxo.UTXO, target types.Amount, skip func(types.Outpoint) bool) (*CoinSelection, error) {
	if target == 0 {
		return nil, ErrZeroTarget
	}
	candidates := make([]*utxo.UTXO, 0, len(utxos))
	var available types.Amount
	for _, u := range utxos {
		if u.Amount == 0 || (skip != nil && skip(u.Outpoint)) {
			continue
		}
		candidates = append(candidates, u)
		available, _ = available.Add(u.Amount)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: need %s", ErrNoUTXOs, target)
	}

	var sel *CoinSelection
	switch strategy {
	case FirstFit, "":
		sel = accumulate(candidates, target)
	case MinChange:
		sel = minChange(candidates, target)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	if sel == nil {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, available, target)
	}
	return sel, nil
}

// accumulate adds outputs in order until target is met, or returns nil.
func accumulate(candidates []*utxo.UTXO, target types.Amount) *CoinSelection {
	var selected []*utxo.UTXO
	var total types.Amount
	for _, u := range candidates {
		next, err := total.Add(u.Amount)
		if err != nil {
			return nil
		}
		selected = append(selected, u)
		total = next
		if total >= target {
			return &CoinSelection{Inputs: selected, Total: total, Change: total - target}
		}
	}
	return nil
}

func minChange(candidates []*utxo.UTXO, target types.Amount) *CoinSelection {
	sorted := append([]*utxo.UTXO(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount < sorted[j].Amount
	})

	var single *CoinSelection
	for _, u := range sorted {
		if u.Amount >= target {
			single = &CoinSelection{Inputs: []*utxo.UTXO{u}, Total: u.Amount, Change: u.Amount - target}
			break
		}
	}

	for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
		sorted[i], sorted[j] = sorted[j], sorted[i]
	}
	accum := accumulate(sorted, target)

	switch {
	case single != nil && accum != nil:
		if single.Change <= accum.Change {
			return single
		}
		return accum
	case single != nil:
		return single
	default:
		return accum
	}
}
