package chain

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/powledger/internal/consensus"
	"github.com/Klingon-tech/powledger/internal/storage"
	"github.com/Klingon-tech/powledger/pkg/block"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// Key prefixes and state keys for the block store.
var (
	prefixHeight = []byte("h/") // h/<height(8)> -> block JSON
	prefixTx     = []byte("x/") // x/<txid> -> height(8)
	keyTipHash   = []byte("s/tip")
	keyHeight    = []byte("s/height")
	keySupply    = []byte("s/supply")
)

// BlockStore persists blocks and chain metadata to a storage.DB. Blocks
// are stored with their hash as recorded, so a tampered block stays
// tampered across a restart and Validate reports it.
type BlockStore struct {
	db storage.DB
}

// NewBlockStore creates a block store backed by the given database.
func NewBlockStore(db storage.DB) *BlockStore {
	return &BlockStore{db: db}
}

// PutBlock stores a block by height and indexes its transactions.
func (bs *BlockStore) PutBlock(blk *block.Block) error {
	return bs.putBlock(bs.db, blk)
}

type putter interface {
	Put(key, value []byte) error
}

func (bs *BlockStore) putBlock(w putter, blk *block.Block) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("block marshal: %w", err)
	}
	if err := w.Put(heightKey(blk.Index), data); err != nil {
		return fmt.Errorf("block put: %w", err)
	}

	height := make([]byte, 8)
	binary.BigEndian.PutUint64(height, blk.Index)
	for _, t := range blk.Transactions {
		if err := w.Put(txKey(t.TxID), height); err != nil {
			return fmt.Errorf("tx index put %s: %w", t.TxID, err)
		}
	}
	return nil
}

// GetBlockByHeight retrieves the block at the given height.
func (bs *BlockStore) GetBlockByHeight(height uint64) (*block.Block, error) {
	data, err := bs.db.Get(heightKey(height))
	if err != nil {
		return nil, fmt.Errorf("block at height %d: %w", height, err)
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("block unmarshal: %w", err)
	}
	return &blk, nil
}

// Blocks returns every stored block in height order.
func (bs *BlockStore) Blocks() ([]*block.Block, error) {
	var blocks []*block.Block
	err := bs.db.ForEach(prefixHeight, func(key, value []byte) error {
		var blk block.Block
		if err := json.Unmarshal(value, &blk); err != nil {
			return fmt.Errorf("block unmarshal: %w", err)
		}
		if want := uint64(len(blocks)); blk.Index != want {
			return fmt.Errorf("block store gap: found index %d at position %d", blk.Index, want)
		}
		blocks = append(blocks, &blk)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// GetTxHeight returns the height of the block that contains txid.
func (bs *BlockStore) GetTxHeight(txid string) (uint64, error) {
	data, err := bs.db.Get(txKey(txid))
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid tx index entry for %s", txid)
	}
	return binary.BigEndian.Uint64(data), nil
}

// SetTip records the tip hash, height and minted supply.
func (bs *BlockStore) SetTip(hash string, height uint64, supply types.Amount) error {
	return setTip(bs.db, hash, height, supply)
}

func setTip(w putter, hash string, height uint64, supply types.Amount) error {
	if err := w.Put(keyTipHash, []byte(hash)); err != nil {
		return fmt.Errorf("tip put: %w", err)
	}
	if err := w.Put(keyHeight, binary.BigEndian.AppendUint64(nil, height)); err != nil {
		return fmt.Errorf("height put: %w", err)
	}
	if err := w.Put(keySupply, binary.BigEndian.AppendUint64(nil, uint64(supply))); err != nil {
		return fmt.Errorf("supply put: %w", err)
	}
	return nil
}

// GetTip returns the recorded tip. storage.ErrNotFound means no tip has
// been written.
func (bs *BlockStore) GetTip() (string, uint64, types.Amount, error) {
	hash, err := bs.db.Get(keyTipHash)
	if err != nil {
		return "", 0, 0, err
	}
	hdata, err := bs.db.Get(keyHeight)
	if err != nil {
		return "", 0, 0, fmt.Errorf("height get: %w", err)
	}
	var supply types.Amount
	sdata, err := bs.db.Get(keySupply)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return "", 0, 0, fmt.Errorf("supply get: %w", err)
	case len(sdata) == 8:
		supply = types.Amount(binary.BigEndian.Uint64(sdata))
	}
	if len(hdata) != 8 {
		return "", 0, 0, fmt.Errorf("invalid height entry")
	}
	return string(hash), binary.BigEndian.Uint64(hdata), supply, nil
}

// SaveChain writes every block of c and its tip.
func (bs *BlockStore) SaveChain(c *Chain) error {
	return bs.saveChain(bs.db, c)
}

// SaveChainBatch queues SaveChain's writes on b.
func (bs *BlockStore) SaveChainBatch(b storage.Batch, c *Chain) error {
	return bs.saveChain(b, c)
}

func (bs *BlockStore) saveChain(w putter, c *Chain) error {
	for _, blk := range c.Blocks() {
		if err := bs.putBlock(w, blk); err != nil {
			return err
		}
	}
	st := c.State()
	return setTip(w, st.TipHash, st.Height, st.Supply)
}

// LoadChain restores a chain from the stored blocks. Stored hashes are
// kept as-is; the caller decides whether to Validate.
func (bs *BlockStore) LoadChain(engine consensus.Engine) (*Chain, error) {
	blocks, err := bs.Blocks()
	if err != nil {
		return nil, err
	}
	return Restore(engine, blocks)
}

func heightKey(height uint64) []byte {
	key := make([]byte, len(prefixHeight)+8)
	copy(key, prefixHeight)
	binary.BigEndian.PutUint64(key[len(prefixHeight):], height)
	return key
}

func txKey(txid string) []byte {
	return append(append([]byte{}, prefixTx...), txid...)
}
