package rpc

import (
	"github.com/Klingon-tech/powledger/internal/utxo"
	"github.com/Klingon-tech/powledger/pkg/block"
	"github.com/Klingon-tech/powledger/pkg/tx"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
	CodeRejected       = -32001 // Request understood but refused by the ledger.
	CodeBusy           = -32002 // Another block is being mined.
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// HashParam is used by chain_getBlockByHash.
type HashParam struct {
	Hash string `json:"hash"`
}

// HeightParam is used by chain_getBlockByHeight.
type HeightParam struct {
	Height uint64 `json:"height"`
}

// TxIDParam is used by chain_getTransaction and mempool_drop.
type TxIDParam struct {
	TxID string `json:"txid"`
}

// AddressParam is used by utxo_getByAddress and utxo_getBalance. Address
// may also be a user name.
type AddressParam struct {
	Address string `json:"address"`
}

// UserCreateParam is used by user_create.
type UserCreateParam struct {
	Name     string `json:"name"`
	Mnemonic bool   `json:"mnemonic,omitempty"` // Derive the key from a new recovery phrase.
}

// UserRecoverParam is used by user_recover.
type UserRecoverParam struct {
	Name       string `json:"name"`
	Mnemonic   string `json:"mnemonic"`
	Passphrase string `json:"passphrase,omitempty"`
}

// FundParam is used by ledger_fund.
type FundParam struct {
	Name   string       `json:"name"`
	Amount types.Amount `json:"amount"`
}

// SendParam is used by tx_send.
type SendParam struct {
	From   string       `json:"from"`
	To     string       `json:"to"`
	Amount types.Amount `json:"amount"`
	Fee    types.Amount `json:"fee,omitempty"`
}

// TxSubmitParam is used by mining_mineTransactions.
type TxSubmitParam struct {
	Transactions []*tx.Transaction `json:"transactions"`
}

// ── Result types ────────────────────────────────────────────────────────

// ChainInfoResult is returned by chain_getInfo.
type ChainInfoResult struct {
	Height       uint64       `json:"height"`
	TipHash      string       `json:"tip_hash"`
	TipTimestamp int64        `json:"tip_timestamp"`
	Difficulty   string       `json:"difficulty"`
	Supply       types.Amount `json:"supply"`
	Pending      int          `json:"pending"`
	Miner        string       `json:"miner"`
}

// ValidateResult is returned by chain_validate.
type ValidateResult struct {
	Valid bool   `json:"valid"`
	Index *int   `json:"index,omitempty"` // First failing block.
	Error string `json:"error,omitempty"`
}

// BlockResult is a block as returned over RPC.
type BlockResult struct {
	Index        uint64            `json:"index"`
	Timestamp    int64             `json:"timestamp"`
	Transactions []*tx.Transaction `json:"transactions"`
	PrevHash     string            `json:"prev_hash"`
	Nonce        uint64            `json:"nonce"`
	Hash         string            `json:"hash"`
	Reward       types.Amount      `json:"reward"`
}

// NewBlockResult converts a block to its RPC form.
func NewBlockResult(blk *block.Block) *BlockResult {
	r := &BlockResult{
		Index:        blk.Index,
		Timestamp:    blk.Timestamp,
		Transactions: blk.Transactions,
		PrevHash:     blk.PrevHash,
		Nonce:        blk.Nonce,
		Hash:         blk.Hash,
	}
	if cb, ok := blk.Coinbase(); ok {
		r.Reward, _ = cb.TotalOutput()
	}
	return r
}

// TxResult is a transaction with its location.
type TxResult struct {
	Transaction *tx.Transaction `json:"transaction"`
	Pending     bool            `json:"pending"`
	BlockIndex  *uint64         `json:"block_index,omitempty"`
}

// UTXOListResult is returned by utxo_getByAddress.
type UTXOListResult struct {
	Address string       `json:"address"`
	UTXOs   []*utxo.UTXO `json:"utxos"`
}

// BalanceResult is returned by utxo_getBalance.
type BalanceResult struct {
	Address string       `json:"address"`
	Balance types.Amount `json:"balance"`
}

// UserResult describes a registered user. Mnemonic is only set by
// user_create with mnemonic=true.
type UserResult struct {
	Name      string       `json:"name"`
	Address   string       `json:"address"`
	PublicKey string       `json:"public_key"`
	Balance   types.Amount `json:"balance"`
	CreatedAt int64        `json:"created_at"`
	Mnemonic  string       `json:"mnemonic,omitempty"`
}

// FundResult is returned by ledger_fund.
type FundResult struct {
	Outpoint types.Outpoint `json:"outpoint"`
}

// MempoolInfoResult is returned by mempool_getInfo.
type MempoolInfoResult struct {
	Count     int          `json:"count"`
	TotalFees types.Amount `json:"total_fees"`
}

// MempoolContentResult is returned by mempool_getContent, oldest first.
type MempoolContentResult struct {
	Transactions []*tx.Transaction `json:"transactions"`
}
