package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/powledger/internal/chain"
	"github.com/Klingon-tech/powledger/internal/ledger"
	"github.com/Klingon-tech/powledger/internal/mempool"
	"github.com/Klingon-tech/powledger/internal/wallet"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// ledgerError maps a ledger error to a JSON-RPC error.
func ledgerError(err error) *Error {
	switch {
	case errors.Is(err, ledger.ErrUnknownUser),
		errors.Is(err, ledger.ErrUnknownTx),
		errors.Is(err, ledger.ErrUnknownRecipient):
		return &Error{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, ledger.ErrInvalidRequest),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, wallet.ErrEmptyName),
		errors.Is(err, wallet.ErrReservedName),
		errors.Is(err, wallet.ErrInvalidMnemonic):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, ledger.ErrMiningInProgress):
		return &Error{Code: CodeBusy, Message: err.Error()}
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrUserExists),
		errors.Is(err, wallet.ErrKeyExists),
		errors.Is(err, ledger.ErrNothingToMine),
		errors.Is(err, ledger.ErrRejected),
		errors.Is(err, mempool.ErrPoolFull),
		errors.Is(err, context.Canceled):
		return &Error{Code: CodeRejected, Message: err.Error()}
	default:
		return &Error{Code: CodeInternalError, Message: err.Error()}
	}
}

// ── Chain endpoints ─────────────────────────────────────────────────────

func (s *Server) handleChainGetInfo(_ *Request) (interface{}, *Error) {
	c := s.ledger.Chain()
	st := c.State()
	return &ChainInfoResult{
		Height:       st.Height,
		TipHash:      st.TipHash,
		TipTimestamp: st.TipTimestamp,
		Difficulty:   c.Difficulty(),
		Supply:       st.Supply,
		Pending:      len(s.ledger.Pending()),
		Miner:        s.ledger.MinerAddress(),
	}, nil
}

func (s *Server) handleChainGetBlockByHash(req *Request) (interface{}, *Error) {
	var params HashParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Hash == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "hash is required"}
	}
	for _, blk := range s.ledger.Chain().Blocks() {
		if blk.Hash == params.Hash {
			return NewBlockResult(blk), nil
		}
	}
	return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("block not found: %s", params.Hash)}
}

func (s *Server) handleChainGetBlockByHeight(req *Request) (interface{}, *Error) {
	var params HeightParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	c := s.ledger.Chain()
	if params.Height >= uint64(c.Len()) {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("block not found at height %d", params.Height)}
	}
	blk, err := c.BlockAt(int(params.Height))
	if err != nil {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("block not found at height %d: %v", params.Height, err)}
	}
	return NewBlockResult(blk), nil
}

func (s *Server) handleChainGetTransaction(req *Request) (interface{}, *Error) {
	var params TxIDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.TxID == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "txid is required"}
	}
	t, loc, err := s.ledger.Transaction(params.TxID)
	if err != nil {
		return nil, ledgerError(err)
	}
	res := &TxResult{Transaction: t, Pending: loc.Pending}
	if !loc.Pending {
		h := loc.Height
		res.BlockIndex = &h
	}
	return res, nil
}

func (s *Server) handleChainValidate(_ *Request) (interface{}, *Error) {
	err := s.ledger.ValidateChain()
	if err == nil {
		return &ValidateResult{Valid: true}, nil
	}
	res := &ValidateResult{Error: err.Error()}
	var verr *chain.ValidationError
	if errors.As(err, &verr) {
		idx := verr.Index
		res.Index = &idx
	}
	return res, nil
}

// ── UTXO endpoints ──────────────────────────────────────────────────────

// resolveAddress accepts a user name or an address.
func (s *Server) resolveAddress(req *Request) (string, *Error) {
	var params AddressParam
	if err := parseParams(req, &params); err != nil {
		return "", err
	}
	if params.Address == "" {
		return "", &Error{Code: CodeInvalidParams, Message: "address is required"}
	}
	if acct, err := s.ledger.User(params.Address); err == nil {
		return acct.Address(), nil
	}
	if !types.IsReservedAddress(params.Address) && !types.IsKeyAddress(params.Address) {
		return "", &Error{Code: CodeInvalidParams, Message: "invalid address: not a user name, reserved or 64-char hex address"}
	}
	return params.Address, nil
}

func (s *Server) handleUTXOGetByAddress(req *Request) (interface{}, *Error) {
	addr, rpcErr := s.resolveAddress(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	utxos, err := s.ledger.UTXOs().ForAddress(addr)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &UTXOListResult{Address: addr, UTXOs: utxos}, nil
}

func (s *Server) handleUTXOGetBalance(req *Request) (interface{}, *Error) {
	addr, rpcErr := s.resolveAddress(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	bal, err := s.ledger.Balance(addr)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &BalanceResult{Address: addr, Balance: bal}, nil
}

// ── Transaction endpoints ───────────────────────────────────────────────

func (s *Server) handleLedgerFund(req *Request) (interface{}, *Error) {
	var params FundParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	op, err := s.ledger.Fund(params.Name, params.Amount)
	if err != nil {
		return nil, ledgerError(err)
	}
	return &FundResult{Outpoint: op}, nil
}

func (s *Server) handleTxSend(req *Request) (interface{}, *Error) {
	var params SendParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	payment, err := s.ledger.SendPayment(ledger.PaymentRequest{
		From:   params.From,
		To:     params.To,
		Amount: params.Amount,
		Fee:    params.Fee,
	})
	if err != nil {
		return nil, ledgerError(err)
	}
	return &TxResult{Transaction: payment, Pending: true}, nil
}

// ── Mempool endpoints ───────────────────────────────────────────────────

func (s *Server) handleMempoolGetInfo(_ *Request) (interface{}, *Error) {
	pending := s.ledger.Pending()
	fees, err := mempool.TotalFees(pending)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &MempoolInfoResult{Count: len(pending), TotalFees: fees}, nil
}

func (s *Server) handleMempoolGetContent(_ *Request) (interface{}, *Error) {
	return &MempoolContentResult{Transactions: s.ledger.Pending()}, nil
}

func (s *Server) handleMempoolDrop(req *Request) (interface{}, *Error) {
	var params TxIDParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if err := s.ledger.Discard(params.TxID); err != nil {
		return nil, ledgerError(err)
	}
	return true, nil
}

// ── Mining endpoints ────────────────────────────────────────────────────

func (s *Server) handleMiningMine(ctx context.Context, _ *Request) (interface{}, *Error) {
	blk, err := s.ledger.Mine(ctx)
	if err != nil {
		return nil, ledgerError(err)
	}
	return NewBlockResult(blk), nil
}

func (s *Server) handleMiningMineTransactions(ctx context.Context, req *Request) (interface{}, *Error) {
	var params TxSubmitParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	blk, err := s.ledger.MineTransactions(ctx, params.Transactions)
	if err != nil {
		return nil, ledgerError(err)
	}
	return NewBlockResult(blk), nil
}
