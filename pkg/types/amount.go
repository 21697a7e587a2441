// Package types defines the primitive value types shared across the ledger.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// Decimals is the number of fractional digits an Amount carries.
const Decimals = 8

// Coin is one whole unit expressed in base units.
const Coin Amount = 100_000_000

// Amount is a non-negative quantity of value in base units (1e-8 coin).
type Amount uint64

// Amount parse errors.
var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrAmountOverflow = errors.New("amount overflow")
)

// Coins returns n whole coins as an Amount.
func Coins(n uint64) Amount {
	return Amount(n) * Coin
}

// ParseAmount parses a decimal string such as "7", "0.5" or "12.00000001".
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if hasDot && frac == "" && whole == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if len(frac) > Decimals {
		return 0, fmt.Errorf("%w: more than %d decimals in %q", ErrInvalidAmount, Decimals, s)
	}

	var w uint64
	if whole != "" {
		var err error
		w, err = strconv.ParseUint(whole, 10, 64)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return 0, fmt.Errorf("%w: %q", ErrAmountOverflow, s)
			}
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}

	var f uint64
	if frac != "" {
		padded := frac + strings.Repeat("0", Decimals-len(frac))
		var err error
		f, err = strconv.ParseUint(padded, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
	}

	hi, lo := bits.Mul64(w, uint64(Coin))
	if hi != 0 {
		return 0, fmt.Errorf("%w: %q", ErrAmountOverflow, s)
	}
	total, carry := bits.Add64(lo, f, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %q", ErrAmountOverflow, s)
	}
	return Amount(total), nil
}

// MustParseAmount is ParseAmount for constants; it panics on error.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String formats the amount as a decimal without trailing fractional zeros.
func (a Amount) String() string {
	whole := uint64(a) / uint64(Coin)
	frac := uint64(a) % uint64(Coin)
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	fs := fmt.Sprintf("%08d", frac)
	return strconv.FormatUint(whole, 10) + "." + strings.TrimRight(fs, "0")
}

// Add returns a+b, or ErrAmountOverflow.
func (a Amount) Add(b Amount) (Amount, error) {
	if uint64(a) > math.MaxUint64-uint64(b) {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

// MarshalJSON encodes the amount as a decimal string so large values
// survive JSON number handling.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a decimal string or a base-unit integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := ParseAmount(s)
		if err != nil {
			return err
		}
		*a = v
		return nil
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, data)
	}
	*a = Amount(n)
	return nil
}

// SumAmounts adds amounts, failing on overflow.
func SumAmounts(amounts ...Amount) (Amount, error) {
	var total Amount
	for _, v := range amounts {
		var err error
		total, err = total.Add(v)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
