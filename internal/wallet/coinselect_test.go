package wallet

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Klingon-tech/powledger/internal/utxo"
	"github.com/Klingon-tech/powledger/pkg/types"
)

func makeUTXOs(amounts ...types.Amount) []*utxo.UTXO {
	utxos := make([]*utxo.UTXO, len(amounts))
	for i, a := range amounts {
		utxos[i] = &utxo.UTXO{
			Outpoint: types.Outpoint{TxID: fmt.Sprintf("tx%d", i), Index: 0},
			Address:  "alice",
			Amount:   a,
		}
	}
	return utxos
}

func inputIDs(sel *CoinSelection) []string {
	ids := make([]string, len(sel.Inputs))
	for i, u := range sel.Inputs {
		ids[i] = u.Outpoint.TxID
	}
	return ids
}

func TestSelectCoins_FirstFit(t *testing.T) {
	tests := []struct {
		name    string
		amounts []types.Amount
		target  types.Amount
		want    []string
		change  types.Amount
	}{
		{"first covers", []types.Amount{50, 10, 100}, 40, []string{"tx0"}, 10},
		{"accumulates in order", []types.Amount{10, 20, 30, 100}, 55, []string{"tx0", "tx1", "tx2"}, 5},
		{"exact", []types.Amount{10, 20}, 30, []string{"tx0", "tx1"}, 0},
		{"skips zero", []types.Amount{0, 30}, 30, []string{"tx1"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := SelectCoins(FirstFit, makeUTXOs(tt.amounts...), tt.target, nil)
			if err != nil {
				t.Fatalf("SelectCoins() error: %v", err)
			}
			if got := inputIDs(sel); fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("inputs = %v, want %v", got, tt.want)
			}
			if sel.Change != tt.change || sel.Total != tt.target+tt.change {
				t.Errorf("total=%d change=%d", sel.Total, sel.Change)
			}
		})
	}
}

func TestSelectCoins_SkipsReserved(t *testing.T) {
	utxos := makeUTXOs(100, 100, 100)
	reserved := map[types.Outpoint]bool{utxos[0].Outpoint: true}
	skip := func(op types.Outpoint) bool { return reserved[op] }

	sel, err := SelectCoins(FirstFit, utxos, 50, skip)
	if err != nil {
		t.Fatalf("SelectCoins() error: %v", err)
	}
	if sel.Inputs[0].Outpoint.TxID != "tx1" {
		t.Errorf("selected %s, want tx1", sel.Inputs[0].Outpoint.TxID)
	}

	reserved[utxos[1].Outpoint] = true
	reserved[utxos[2].Outpoint] = true
	if _, err := SelectCoins(FirstFit, utxos, 50, skip); !errors.Is(err, ErrNoUTXOs) {
		t.Errorf("all reserved: error = %v, want ErrNoUTXOs", err)
	}
}

func TestSelectCoins_MinChange(t *testing.T) {
	tests := []struct {
		name    string
		amounts []types.Amount
		target  types.Amount
		total   types.Amount
	}{
		{"exact single", []types.Amount{1000, 2000, 3000}, 2000, 2000},
		{"smallest covering single", []types.Amount{9000, 2500, 3000}, 2400, 2500},
		{"largest first", []types.Amount{1000, 2000, 1500}, 3400, 3500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := SelectCoins(MinChange, makeUTXOs(tt.amounts...), tt.target, nil)
			if err != nil {
				t.Fatalf("SelectCoins() error: %v", err)
			}
			if sel.Total != tt.total {
				t.Errorf("total = %d, want %d", sel.Total, tt.total)
			}
		})
	}
}

func TestSelectCoins_Errors(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		utxos    []*utxo.UTXO
		target   types.Amount
		want     error
	}{
		{"insufficient", FirstFit, makeUTXOs(10, 20), 31, ErrInsufficientFunds},
		{"insufficient min-change", MinChange, makeUTXOs(10, 20), 31, ErrInsufficientFunds},
		{"none", FirstFit, nil, 1, ErrNoUTXOs},
		{"zero target", FirstFit, makeUTXOs(10), 0, ErrZeroTarget},
		{"bad strategy", Strategy("random"), makeUTXOs(10), 5, ErrUnknownStrategy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SelectCoins(tt.strategy, tt.utxos, tt.target, nil); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{"": FirstFit, "first-fit": FirstFit, "min-change": MinChange} {
		if got, err := ParseStrategy(in); err != nil || got != want {
			t.Errorf("ParseStrategy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseStrategy("lifo"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("ParseStrategy(lifo) error = %v", err)
	}
}
