package ledger

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/Klingon-tech/powledger/internal/log"
	"github.com/Klingon-tech/powledger/internal/wallet"
	"github.com/Klingon-tech/powledger/pkg/tx"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// PaymentRequest asks to move Amount from one user to another. To may be
// a registered user name or a key address. Fee is left for the miner.
type PaymentRequest struct {
	From   string       `validate:"required"`
	To     string       `validate:"required,nefield=From"`
	Amount types.Amount `validate:"gt=0"`
	Fee    types.Amount
}

// SendPayment builds, signs and queues a payment. Inputs come from the
// sender's unspent outputs that no pending transaction has reserved; any
// remainder returns to the sender as a change output.
func (l *Ledger) SendPayment(req PaymentRequest) (*tx.Transaction, error) {
	if err := l.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("%w: %s failed %q", ErrInvalidRequest, verrs[0].Field(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	target, err := req.Amount.Add(req.Fee)
	if err != nil {
		return nil, fmt.Errorf("%w: amount plus fee: %v", ErrInvalidRequest, err)
	}

	from, err := l.users.Get(req.From)
	if err != nil {
		return nil, err
	}
	to, err := l.recipient(req.To)
	if err != nil {
		return nil, err
	}
	if to == from.Address() {
		return nil, fmt.Errorf("%w: sender and recipient are the same account", ErrInvalidRequest)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	owned, err := l.utxos.ForAddress(from.Address())
	if err != nil {
		return nil, fmt.Errorf("list outputs of %s: %w", req.From, err)
	}
	sel, err := wallet.SelectCoins(l.opts.CoinSelection, owned, target, l.pool.IsReserved)
	if errors.Is(err, wallet.ErrNoUTXOs) {
		return nil, fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	}
	if err != nil {
		return nil, err
	}

	b := tx.NewBuilder().SetFee(req.Fee)
	for _, u := range sel.Inputs {
		b.AddInput(u.Outpoint)
	}
	b.AddOutput(to, req.Amount)
	if sel.Change > 0 {
		b.AddOutput(from.Address(), sel.Change)
	}
	if err := b.Sign(from.Key); err != nil {
		return nil, err
	}
	payment := b.Build()

	pub := from.Key.PublicKey()
	for i := range payment.Inputs {
		if !payment.VerifyInput(i, pub) {
			return nil, fmt.Errorf("%w: input %d", ErrSignatureInvalid, i)
		}
	}

	if _, err := l.pool.Add(payment); err != nil {
		return nil, err
	}
	log.Ledger.Info().
		Str("tx", payment.TxID).
		Str("from", req.From).
		Str("to", req.To).
		Str("amount", req.Amount.String()).
		Str("fee", req.Fee.String()).
		Int("inputs", len(payment.Inputs)).
		Msg("Payment queued")
	return payment, nil
}

// recipient resolves a user name or key address to an address.
func (l *Ledger) recipient(to string) (string, error) {
	if acct, err := l.users.Get(to); err == nil {
		return acct.Address(), nil
	}
	if types.IsKeyAddress(to) {
		return to, nil
	}
	return "", fmt.Errorf("%w: %w: %s", ErrUnknownRecipient, ErrUnknownUser, to)
}
