package wallet

import (
	"time"

	"github.com/Klingon-tech/powledger/pkg/crypto"
)

// Account is a named user and the key pair controlling its address.
type Account struct {
	Name      string
	Key       *crypto.KeyPair
	CreatedAt time.Time
}

// Address returns the account's address.
func (a *Account) Address() string {
	return a.Key.Address()
}
