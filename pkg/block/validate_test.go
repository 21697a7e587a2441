package block

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Klingon-tech/powledger/pkg/crypto"
	"github.com/Klingon-tech/powledger/pkg/tx"
	"github.com/Klingon-tech/powledger/pkg/types"
)

func testCoinbase(height uint64) *tx.Transaction {
	return tx.NewCoinbase(height, tx.Output{Address: types.GenesisAddress, Amount: types.Coins(1000)})
}

func testPayment(t *testing.T, ops ...types.Outpoint) *tx.Transaction {
	t.Helper()
	key, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error: %v", err)
	}
	b := tx.NewBuilder().AddOutput("bob", types.Coins(1))
	for _, op := range ops {
		b.AddInput(op)
	}
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return b.Build()
}

func TestComputeHash_CoversEveryField(t *testing.T) {
	base := NewAt(1, []*tx.Transaction{testCoinbase(1)}, "00aa", 1700000000)
	if base.Hash != base.ComputeHash() || len(base.Hash) != 64 {
		t.Fatalf("NewAt() hash = %q", base.Hash)
	}

	tests := []struct {
		name   string
		mutate func(*Block)
	}{
		{"index", func(b *Block) { b.Index = 2 }},
		{"timestamp", func(b *Block) { b.Timestamp++ }},
		{"prev hash", func(b *Block) { b.PrevHash = "00ab" }},
		{"nonce", func(b *Block) { b.Nonce = 1 }},
		{"transactions", func(b *Block) { b.Transactions = nil }},
		{"transaction content", func(b *Block) { b.Transactions[0].Outputs[0].Amount++ }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewAt(1, []*tx.Transaction{testCoinbase(1)}, "00aa", 1700000000)
			tt.mutate(b)
			if b.ComputeHash() == base.Hash {
				t.Error("hash should change with block content")
			}
		})
	}
}

func TestMine(t *testing.T) {
	b := NewAt(0, []*tx.Transaction{testCoinbase(0)}, GenesisPrevHash, 1700000000)
	if err := b.Mine("00"); err != nil {
		t.Fatalf("Mine() error: %v", err)
	}
	if !strings.HasPrefix(b.Hash, "00") {
		t.Errorf("mined hash %s does not meet difficulty", b.Hash)
	}
	if b.Hash != b.ComputeHash() {
		t.Error("mined hash should equal ComputeHash()")
	}

	// Mining is deterministic for fixed contents.
	again := NewAt(0, []*tx.Transaction{testCoinbase(0)}, GenesisPrevHash, 1700000000)
	if err := again.Mine("00"); err != nil {
		t.Fatalf("Mine() error: %v", err)
	}
	if again.Nonce != b.Nonce || again.Hash != b.Hash {
		t.Error("mining the same block twice should find the same nonce")
	}
}

func TestMine_EmptyDifficulty(t *testing.T) {
	b := NewAt(3, nil, "x", 1)
	if err := b.Mine(""); err != nil {
		t.Fatalf("Mine(\"\") error: %v", err)
	}
	if b.Nonce != 0 {
		t.Errorf("Nonce = %d, want 0 for empty difficulty", b.Nonce)
	}
}

func TestMine_InvalidDifficulty(t *testing.T) {
	b := NewAt(1, nil, "x", 1)
	for _, d := range []string{"0g", "ZZ", "00A", strings.Repeat("0", 65)} {
		if err := b.Mine(d); !errors.Is(err, ErrInvalidDifficulty) {
			t.Errorf("Mine(%q) error = %v, want ErrInvalidDifficulty", d, err)
		}
	}
}

func TestMineContext_Cancel(t *testing.T) {
	b := NewAt(1, nil, "x", 1)
	before := b.Hash
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// 64 zero nibbles is unreachable.
	err := b.MineContext(ctx, strings.Repeat("0", 64))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("MineContext() error = %v, want DeadlineExceeded", err)
	}
	if b.Hash != before || b.Nonce != 0 {
		t.Error("cancelled mining should leave the block untouched")
	}
}

func TestSearchNonce_Stride(t *testing.T) {
	b := NewAt(1, nil, "x", 1)
	nonce, hash, err := SearchNonce(context.Background(), b.SealingPrefix(), "0", 3, 4)
	if err != nil {
		t.Fatalf("SearchNonce() error: %v", err)
	}
	if nonce%4 != 3 {
		t.Errorf("nonce %d not in stride class 3 mod 4", nonce)
	}
	b.Nonce = nonce
	if b.ComputeHash() != hash {
		t.Error("returned hash should match block hashed with the nonce")
	}
}

func TestMeetsDifficulty(t *testing.T) {
	if !MeetsDifficulty("000abc", "000") {
		t.Error("000abc should meet 000")
	}
	if MeetsDifficulty("00abc", "000") {
		t.Error("00abc should not meet 000")
	}
	if !MeetsDifficulty("abc", "") {
		t.Error("every hash meets the empty difficulty")
	}
}

func TestRestore_KeepsStoredHash(t *testing.T) {
	b := Restore(2, 5, nil, "prev", 9, "stored")
	if b.Hash != "stored" {
		t.Errorf("Restore() hash = %q, want stored value", b.Hash)
	}
	if b.Transactions == nil {
		t.Error("Restore() should normalize nil transactions")
	}
}

func TestValidate(t *testing.T) {
	a := types.Outpoint{TxID: "a", Index: 0}
	b := types.Outpoint{TxID: "b", Index: 0}

	tests := []struct {
		name string
		blk  func() *Block
		want error
	}{
		{"genesis", func() *Block {
			return NewAt(0, []*tx.Transaction{testCoinbase(0)}, GenesisPrevHash, 1)
		}, nil},
		{"empty", func() *Block {
			return NewAt(4, nil, "p", 1)
		}, nil},
		{"coinbase and payments", func() *Block {
			return NewAt(1, []*tx.Transaction{testCoinbase(1), testPayment(t, a), testPayment(t, b)}, "p", 1)
		}, nil},
		{"empty prev hash", func() *Block {
			return NewAt(1, nil, "", 1)
		}, ErrEmptyPrevHash},
		{"misplaced coinbase", func() *Block {
			return NewAt(1, []*tx.Transaction{testPayment(t, a), testCoinbase(1)}, "p", 1)
		}, ErrMisplacedCoinbase},
		{"coinbase height", func() *Block {
			return NewAt(2, []*tx.Transaction{testCoinbase(1)}, "p", 1)
		}, ErrCoinbaseHeight},
		{"double spend across txs", func() *Block {
			return NewAt(1, []*tx.Transaction{testPayment(t, a), testPayment(t, a)}, "p", 1)
		}, ErrDuplicateBlockInput},
		{"nil tx", func() *Block {
			return NewAt(1, []*tx.Transaction{nil}, "p", 1)
		}, ErrNilTransaction},
		{"invalid tx", func() *Block {
			return NewAt(1, []*tx.Transaction{tx.New([]tx.Input{{PrevOut: a}}, []tx.Output{{Address: "x", Amount: 1}}, 0)}, "p", 1)
		}, tx.ErrMissingSig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.blk().Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCoinbaseAndPayments(t *testing.T) {
	cb := testCoinbase(1)
	pay := testPayment(t, types.Outpoint{TxID: "a"})
	b := NewAt(1, []*tx.Transaction{cb, pay}, "p", 1)

	got, ok := b.Coinbase()
	if !ok || got != cb {
		t.Error("Coinbase() should return the first transaction")
	}
	if p := b.Payments(); len(p) != 1 || p[0] != pay {
		t.Errorf("Payments() = %v, want [pay]", p)
	}

	empty := NewAt(2, nil, "p", 1)
	if _, ok := empty.Coinbase(); ok {
		t.Error("empty block has no coinbase")
	}
}
