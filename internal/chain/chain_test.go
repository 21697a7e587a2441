package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Klingon-tech/powledger/internal/consensus"
	"github.com/Klingon-tech/powledger/internal/storage"
	"github.com/Klingon-tech/powledger/pkg/block"
	"github.com/Klingon-tech/powledger/pkg/tx"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// testEngine uses a single-digit prefix so tests mine in microseconds.
func testEngine(t *testing.T) *consensus.PoW {
	t.Helper()
	pow, err := consensus.NewPoW("0")
	if err != nil {
		t.Fatalf("NewPoW: %v", err)
	}
	return pow
}

func testChain(t *testing.T) *Chain {
	t.Helper()
	c, err := New(context.Background(), testEngine(t), DefaultGenesis())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func payment(from, to string, amount types.Amount) *tx.Transaction {
	return tx.New(
		[]tx.Input{{PrevOut: types.Outpoint{TxID: from, Index: 0}, Signature: []byte{1}}},
		[]tx.Output{{Address: to, Amount: amount}},
		0,
	)
}

func TestNew_Genesis(t *testing.T) {
	c := testChain(t)
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
	g := c.Last()
	if g.Index != 0 || g.PrevHash != block.GenesisPrevHash {
		t.Errorf("genesis index=%d prev=%q", g.Index, g.PrevHash)
	}
	if !block.MeetsDifficulty(g.Hash, "0") {
		t.Errorf("genesis hash %s does not meet difficulty", g.Hash)
	}
	cb, ok := g.Coinbase()
	if !ok {
		t.Fatal("genesis should carry a coinbase record")
	}
	if cb.Outputs[0].Address != types.GenesisAddress || cb.Outputs[0].Amount != types.Coins(1000) {
		t.Errorf("genesis credit = %+v", cb.Outputs[0])
	}
	if c.Supply() != types.Coins(1000) {
		t.Errorf("Supply = %s, want 1000", c.Supply())
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(context.Background(), nil, DefaultGenesis()); !errors.Is(err, ErrNilEngine) {
		t.Errorf("nil engine: err = %v", err)
	}
	if _, err := New(context.Background(), testEngine(t), Genesis{Address: "x"}); err == nil {
		t.Error("zero genesis amount should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hard, _ := consensus.NewPoW("000000000000")
	if _, err := New(ctx, hard, DefaultGenesis()); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled genesis: err = %v", err)
	}
}

func TestGenesis_FixedTimestamp(t *testing.T) {
	gen := DefaultGenesis()
	gen.Timestamp = 1700000000
	a, err := CreateGenesisBlock(gen)
	if err != nil {
		t.Fatalf("CreateGenesisBlock: %v", err)
	}
	b, _ := CreateGenesisBlock(gen)
	if a.ComputeHash() != b.ComputeHash() {
		t.Error("genesis with a fixed timestamp should be deterministic")
	}
}

func TestAppend(t *testing.T) {
	c := testChain(t)
	genesis := c.Last()

	blk, err := c.Append(context.Background(), []*tx.Transaction{payment("g", "bob", types.Coins(5))})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if blk.Index != 1 || blk.PrevHash != genesis.Hash {
		t.Errorf("block index=%d prev=%s", blk.Index, blk.PrevHash)
	}
	if c.Height() != 1 || c.State().TipHash != blk.Hash {
		t.Errorf("state = %+v", c.State())
	}

	empty, err := c.Append(context.Background(), nil)
	if err != nil {
		t.Fatalf("Append(empty): %v", err)
	}
	if empty.Index != 2 || len(empty.Transactions) != 0 {
		t.Errorf("empty block index=%d txs=%d", empty.Index, len(empty.Transactions))
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestAppend_Reward(t *testing.T) {
	c := testChain(t)
	reward := tx.NewCoinbase(1, tx.Output{Address: types.MinerAddress, Amount: types.Coins(3)})
	if _, err := c.Append(context.Background(), []*tx.Transaction{reward}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if c.Supply() != types.Coins(1003) {
		t.Errorf("Supply = %s, want 1003", c.Supply())
	}
}

func TestAppend_InvalidBlock(t *testing.T) {
	c := testChain(t)
	p := payment("g", "bob", 1)
	if _, err := c.Append(context.Background(), []*tx.Transaction{p, nil}); !errors.Is(err, ErrInvalidBlock) {
		t.Errorf("err = %v, want ErrInvalidBlock", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d after rejected append", c.Len())
	}
}

func TestAppend_Cancelled(t *testing.T) {
	hard, _ := consensus.NewPoW("0")
	c, err := New(context.Background(), hard, DefaultGenesis())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	hard.Prefix = "000000000000"

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Append(ctx, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d after cancelled append", c.Len())
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(blocks []*block.Block)
		index  int
		want   error
	}{
		{
			name: "tampered transaction",
			mutate: func(blocks []*block.Block) {
				blocks[1].Transactions[0].Outputs[0].Amount = types.Coins(500)
			},
			index: 1,
			want:  ErrHashMismatch,
		},
		{
			name: "forged txid",
			mutate: func(blocks []*block.Block) {
				blocks[2].Transactions[0].TxID = "forged"
			},
			index: 2,
			want:  ErrHashMismatch,
		},
		{
			name: "txid borrowed from genesis",
			mutate: func(blocks []*block.Block) {
				blocks[1].Transactions[0].TxID = blocks[0].Transactions[0].TxID
			},
			index: 1,
			want:  ErrHashMismatch,
		},
		{
			name: "tampered genesis",
			mutate: func(blocks []*block.Block) {
				blocks[0].Timestamp++
			},
			index: 0,
			want:  ErrHashMismatch,
		},
		{
			name: "broken link",
			mutate: func(blocks []*block.Block) {
				blocks[2].PrevHash = "deadbeef"
				blocks[2].Hash = blocks[2].ComputeHash()
			},
			index: 2,
			want:  ErrChainLinkBroken,
		},
		{
			name: "difficulty not met",
			mutate: func(blocks []*block.Block) {
				for n := uint64(0); ; n++ {
					blocks[2].Nonce = n
					if h := blocks[2].ComputeHash(); h[0] != '0' {
						blocks[2].Hash = h
						return
					}
				}
			},
			index: 2,
			want:  ErrDifficultyNotMet,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testChain(t)
			for i := 0; i < 2; i++ {
				if _, err := c.Append(context.Background(), []*tx.Transaction{payment("g", "bob", types.Coins(5))}); err != nil {
					t.Fatalf("Append: %v", err)
				}
			}
			tt.mutate(c.blocks)

			err := c.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() = %v, want *ValidationError", err)
			}
			if verr.Index != tt.index {
				t.Errorf("Index = %d, want %d", verr.Index, tt.index)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if c.IsValid() {
				t.Error("IsValid() should be false")
			}
		})
	}
}

func TestValidate_GenesisOnly(t *testing.T) {
	tests := []string{"", "0", "00"}
	for _, prefix := range tests {
		t.Run("prefix "+prefix, func(t *testing.T) {
			pow, err := consensus.NewPoW(prefix)
			if err != nil {
				t.Fatalf("NewPoW: %v", err)
			}
			c, err := New(context.Background(), pow, DefaultGenesis())
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if !block.MeetsDifficulty(c.Last().Hash, prefix) {
				t.Errorf("genesis hash %s lacks prefix %q", c.Last().Hash, prefix)
			}
			if err := c.Validate(); err != nil {
				t.Fatalf("Validate() error: %v", err)
			}

			blk, err := c.Append(context.Background(), nil)
			if err != nil {
				t.Fatalf("Append: %v", err)
			}
			if blk.Index != 1 || blk.PrevHash != c.blocks[0].Hash {
				t.Errorf("appended index=%d prev=%s", blk.Index, blk.PrevHash)
			}
			if err := c.Validate(); err != nil {
				t.Errorf("Validate() after empty append error: %v", err)
			}
		})
	}
}

func TestValidate_ReportsFirstFailure(t *testing.T) {
	c := testChain(t)
	for i := 0; i < 3; i++ {
		if _, err := c.Append(context.Background(), nil); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	c.blocks[3].Timestamp++
	c.blocks[1].Timestamp++

	var verr *ValidationError
	if err := c.Validate(); !errors.As(err, &verr) || verr.Index != 1 {
		t.Errorf("Validate() = %v, want failure at block 1", err)
	}
}

func TestBlockAt(t *testing.T) {
	c := testChain(t)
	if _, err := c.BlockAt(0); err != nil {
		t.Errorf("BlockAt(0): %v", err)
	}
	for _, i := range []int{-1, 1} {
		if _, err := c.BlockAt(i); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("BlockAt(%d) err = %v", i, err)
		}
	}
}

func TestRestore(t *testing.T) {
	if _, err := Restore(testEngine(t), nil); !errors.Is(err, ErrEmptyChain) {
		t.Errorf("Restore(nil) err = %v", err)
	}
	if _, err := Restore(testEngine(t), []*block.Block{nil}); !errors.Is(err, ErrInvalidBlock) {
		t.Errorf("Restore(nil block) err = %v", err)
	}
}

func TestBlockStore_RoundTrip(t *testing.T) {
	c := testChain(t)
	reward := tx.NewCoinbase(1, tx.Output{Address: types.MinerAddress, Amount: types.Coins(3)})
	p := payment("g", "bob", types.Coins(2))
	if _, err := c.Append(context.Background(), []*tx.Transaction{reward, p}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	bs := NewBlockStore(storage.NewMemory())
	if _, _, _, err := bs.GetTip(); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetTip on empty store err = %v", err)
	}
	if err := bs.SaveChain(c); err != nil {
		t.Fatalf("SaveChain: %v", err)
	}

	hash, height, supply, err := bs.GetTip()
	if err != nil {
		t.Fatalf("GetTip: %v", err)
	}
	if hash != c.Last().Hash || height != 1 || supply != types.Coins(1003) {
		t.Errorf("tip = %s/%d/%s", hash, height, supply)
	}
	if h, err := bs.GetTxHeight(p.TxID); err != nil || h != 1 {
		t.Errorf("GetTxHeight = %d, %v", h, err)
	}

	restored, err := bs.LoadChain(testEngine(t))
	if err != nil {
		t.Fatalf("LoadChain: %v", err)
	}
	if restored.Len() != 2 || restored.Last().Hash != c.Last().Hash {
		t.Errorf("restored len=%d tip=%s", restored.Len(), restored.Last().Hash)
	}
	if err := restored.Validate(); err != nil {
		t.Errorf("restored Validate: %v", err)
	}
}

func TestBlockStore_PreservesTamperedHash(t *testing.T) {
	c := testChain(t)
	if _, err := c.Append(context.Background(), []*tx.Transaction{payment("g", "bob", types.Coins(5))}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	c.blocks[1].Transactions[0].Outputs[0].Amount = types.Coins(9)

	bs := NewBlockStore(storage.NewMemory())
	if err := bs.SaveChain(c); err != nil {
		t.Fatalf("SaveChain: %v", err)
	}
	restored, err := bs.LoadChain(testEngine(t))
	if err != nil {
		t.Fatalf("LoadChain: %v", err)
	}
	var verr *ValidationError
	if err := restored.Validate(); !errors.As(err, &verr) || verr.Index != 1 || !errors.Is(err, ErrHashMismatch) {
		t.Errorf("restored Validate() = %v, want hash mismatch at 1", err)
	}
}
