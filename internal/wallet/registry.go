package wallet

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Klingon-tech/powledger/internal/log"
	"github.com/Klingon-tech/powledger/pkg/crypto"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// Registry errors.
var (
	ErrUserExists   = errors.New("user already exists")
	ErrUnknownUser  = errors.New("unknown user")
	ErrKeyExists    = errors.New("key already registered under another name")
	ErrEmptyName    = errors.New("user name is empty")
	ErrReservedName = errors.New("user name is reserved")
)

// Registry maps user names to accounts and addresses back to accounts.
// It satisfies tx.KeyResolver.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Account
	byAddr map[string]*Account
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Account),
		byAddr: make(map[string]*Account),
	}
}

// Create registers name with a freshly generated key pair.
func (r *Registry) Create(name string) (*Account, error) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return r.add(name, kp, time.Now().UTC())
}

// Recover registers name with the key derived from a BIP-39 mnemonic at
// m/44'/7777'/0'/0/0.
func (r *Registry) Recover(name, mnemonic, passphrase string) (*Account, error) {
	kp, err := KeyFromMnemonic(mnemonic, passphrase, 0, 0)
	if err != nil {
		return nil, err
	}
	return r.add(name, kp, time.Now().UTC())
}

// Add registers an existing key pair, as when restoring saved state.
func (r *Registry) Add(name string, kp *crypto.KeyPair, createdAt time.Time) (*Account, error) {
	return r.add(name, kp, createdAt)
}

func (r *Registry) add(name string, kp *crypto.KeyPair, createdAt time.Time) (*Account, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if types.IsReservedAddress(name) {
		return nil, fmt.Errorf("%w: %s", ErrReservedName, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, name)
	}
	addr := kp.Address()
	if other, ok := r.byAddr[addr]; ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyExists, other.Name)
	}

	acct := &Account{Name: name, Key: kp, CreatedAt: createdAt}
	r.byName[name] = acct
	r.byAddr[addr] = acct
	log.Wallet.Debug().Str("user", name).Str("address", addr).Msg("User registered")
	return acct, nil
}

// Get returns the account registered under name.
func (r *Registry) Get(name string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, name)
	}
	return acct, nil
}

// ByAddress returns the account owning addr.
func (r *Registry) ByAddress(addr string) (*Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.byAddr[addr]
	return acct, ok
}

// PublicKeyFor returns the public key controlling addr.
func (r *Registry) PublicKeyFor(addr string) ([]byte, bool) {
	acct, ok := r.ByAddress(addr)
	if !ok {
		return nil, false
	}
	return acct.Key.PublicKey(), true
}

// Accounts returns every account sorted by name.
func (r *Registry) Accounts() []*Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	accts := make([]*Account, 0, len(r.byName))
	for _, a := range r.byName {
		accts = append(accts, a)
	}
	sort.Slice(accts, func(i, j int) bool { return accts[i].Name < accts[j].Name })
	return accts
}

// Len returns the number of registered accounts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Clear removes every account and wipes its private key.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byName {
		a.Key.Zero()
	}
	r.byName = make(map[string]*Account)
	r.byAddr = make(map[string]*Account)
}
