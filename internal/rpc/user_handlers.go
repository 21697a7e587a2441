package rpc

import (
	"github.com/Klingon-tech/powledger/internal/wallet"
)

// ── User endpoints ──────────────────────────────────────────────────────

func (s *Server) userResult(acct *wallet.Account) (*UserResult, *Error) {
	bal, err := s.ledger.Balance(acct.Address())
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &UserResult{
		Name:      acct.Name,
		Address:   acct.Address(),
		PublicKey: acct.Key.PublicKeyHex(),
		Balance:   bal,
		CreatedAt: acct.CreatedAt.Unix(),
	}, nil
}

func (s *Server) handleUserCreate(req *Request) (interface{}, *Error) {
	var params UserCreateParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name is required"}
	}

	var (
		acct     *wallet.Account
		mnemonic string
		err      error
	)
	if params.Mnemonic {
		acct, mnemonic, err = s.ledger.CreateUserWithMnemonic(params.Name)
	} else {
		acct, err = s.ledger.CreateUser(params.Name)
	}
	if err != nil {
		return nil, ledgerError(err)
	}
	res, rpcErr := s.userResult(acct)
	if rpcErr != nil {
		return nil, rpcErr
	}
	res.Mnemonic = mnemonic
	return res, nil
}

func (s *Server) handleUserRecover(req *Request) (interface{}, *Error) {
	var params UserRecoverParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.Name == "" || params.Mnemonic == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "name and mnemonic are required"}
	}
	acct, err := s.ledger.RecoverUser(params.Name, params.Mnemonic, params.Passphrase)
	if err != nil {
		return nil, ledgerError(err)
	}
	return s.userResult(acct)
}

func (s *Server) handleUserList(_ *Request) (interface{}, *Error) {
	accts := s.ledger.Users()
	out := make([]*UserResult, 0, len(accts))
	for _, acct := range accts {
		res, rpcErr := s.userResult(acct)
		if rpcErr != nil {
			return nil, rpcErr
		}
		out = append(out, res)
	}
	return out, nil
}
