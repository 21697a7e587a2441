// Package utxo manages the UTXO set.
package utxo

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/powledger/internal/storage"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// UTXO represents an unspent transaction output.
type UTXO struct {
	Outpoint types.Outpoint `json:"outpoint"`
	Address  string         `json:"address"`
	Amount   types.Amount   `json:"amount"`
}

// Key prefixes for the UTXO set.
var (
	prefixUTXO = []byte("u/") // u/<txid>\x00<index(4)> -> UTXO JSON
	prefixAddr = []byte("a/") // a/<address>\x00<txid>\x00<index(4)> -> empty (index)
)

// Set is the UTXO set backed by a storage.DB. Entries are keyed by
// outpoint with a secondary index by address. Mutations hold a lock so
// the primary entry and its index entry move together.
type Set struct {
	mu sync.RWMutex
	db storage.DB
}

// NewSet creates a UTXO set backed by the given database.
func NewSet(db storage.DB) *Set {
	return &Set{db: db}
}

// utxoKey builds a storage key for an outpoint: "u/" + txid + 0x00 + index(4).
func utxoKey(op types.Outpoint) []byte {
	key := make([]byte, 0, len(prefixUTXO)+len(op.TxID)+5)
	key = append(key, prefixUTXO...)
	key = append(key, op.TxID...)
	key = append(key, 0)
	return binary.BigEndian.AppendUint32(key, op.Index)
}

func addrPrefix(addr string) []byte {
	key := make([]byte, 0, len(prefixAddr)+len(addr)+1)
	key = append(key, prefixAddr...)
	key = append(key, addr...)
	return append(key, 0)
}

// addrKey builds an address index key: addrPrefix(addr) + txid + 0x00 + index(4).
func addrKey(addr string, op types.Outpoint) []byte {
	key := addrPrefix(addr)
	key = append(key, op.TxID...)
	key = append(key, 0)
	return binary.BigEndian.AppendUint32(key, op.Index)
}

// parseIndexSuffix decodes the txid + 0x00 + index(4) tail of an index key.
func parseIndexSuffix(rest []byte) (types.Outpoint, bool) {
	if len(rest) < 5 || rest[len(rest)-5] != 0 {
		return types.Outpoint{}, false
	}
	return types.Outpoint{
		TxID:  string(rest[:len(rest)-5]),
		Index: binary.BigEndian.Uint32(rest[len(rest)-4:]),
	}, true
}

// Add inserts or overwrites the entry for op. No prior-existence check
// is made; this serves both fresh outputs and reconstruction from storage.
func (s *Set) Add(op types.Outpoint, address string, amount types.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, err := s.get(op); err == nil && prev.Address != address {
		if err := s.db.Delete(addrKey(prev.Address, op)); err != nil {
			return fmt.Errorf("utxo index delete: %w", err)
		}
	}

	data, err := json.Marshal(&UTXO{Outpoint: op, Address: address, Amount: amount})
	if err != nil {
		return fmt.Errorf("utxo marshal: %w", err)
	}
	if err := s.db.Put(utxoKey(op), data); err != nil {
		return fmt.Errorf("utxo put: %w", err)
	}
	if err := s.db.Put(addrKey(address, op), []byte{}); err != nil {
		return fmt.Errorf("utxo index put: %w", err)
	}
	return nil
}

// Remove deletes the entry for op and its index entry. Removing an absent
// outpoint is a no-op.
func (s *Set) Remove(op types.Outpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.get(op)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.db.Delete(addrKey(u.Address, op)); err != nil {
		return fmt.Errorf("utxo index delete: %w", err)
	}
	if err := s.db.Delete(utxoKey(op)); err != nil {
		return fmt.Errorf("utxo delete: %w", err)
	}
	return nil
}

// Get retrieves the entry for op. Missing entries return an error
// wrapping storage.ErrNotFound.
func (s *Set) Get(op types.Outpoint) (*UTXO, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(op)
}

func (s *Set) get(op types.Outpoint) (*UTXO, error) {
	data, err := s.db.Get(utxoKey(op))
	if err != nil {
		return nil, fmt.Errorf("utxo get %s: %w", op, err)
	}
	var u UTXO
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("utxo unmarshal: %w", err)
	}
	return &u, nil
}

// Lookup returns the owner and amount of op. It satisfies
// tx.UTXOProvider.
func (s *Set) Lookup(op types.Outpoint) (string, types.Amount, bool) {
	u, err := s.Get(op)
	if err != nil {
		return "", 0, false
	}
	return u.Address, u.Amount, true
}

// Has checks if an entry exists for op.
func (s *Set) Has(op types.Outpoint) (bool, error) {
	return s.db.Has(utxoKey(op))
}

// ForAddress returns every entry owned by address, ordered by outpoint
// key. The order is stable for a given set contents.
func (s *Set) ForAddress(address string) ([]*UTXO, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := addrPrefix(address)
	var ops []types.Outpoint
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		op, ok := parseIndexSuffix(key[len(prefix):])
		if !ok {
			return nil // Malformed key, skip.
		}
		ops = append(ops, op)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan address index: %w", err)
	}

	utxos := make([]*UTXO, 0, len(ops))
	for _, op := range ops {
		u, err := s.get(op)
		if err != nil {
			continue // Index entry without a primary entry.
		}
		utxos = append(utxos, u)
	}
	return utxos, nil
}

// Balance sums the amounts of every entry owned by address.
func (s *Set) Balance(address string) (types.Amount, error) {
	utxos, err := s.ForAddress(address)
	if err != nil {
		return 0, err
	}
	var total types.Amount
	for _, u := range utxos {
		if total, err = total.Add(u.Amount); err != nil {
			return 0, fmt.Errorf("balance of %s: %w", address, err)
		}
	}
	return total, nil
}

// ForEach iterates over all entries in outpoint key order.
func (s *Set) ForEach(fn func(*UTXO) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.ForEach(prefixUTXO, func(_, value []byte) error {
		var u UTXO
		if err := json.Unmarshal(value, &u); err != nil {
			return fmt.Errorf("utxo unmarshal: %w", err)
		}
		return fn(&u)
	})
}

// All returns every entry in outpoint key order.
func (s *Set) All() ([]*UTXO, error) {
	var all []*UTXO
	err := s.ForEach(func(u *UTXO) error {
		all = append(all, u)
		return nil
	})
	return all, err
}

// Len returns the number of entries.
func (s *Set) Len() (int, error) {
	n := 0
	err := s.ForEach(func(*UTXO) error {
		n++
		return nil
	})
	return n, err
}

// Clear removes all entries and their index entries.
func (s *Set) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys [][]byte
	for _, prefix := range [][]byte{prefixUTXO, prefixAddr} {
		if err := s.db.ForEach(prefix, func(key, _ []byte) error {
			keys = append(keys, bytes.Clone(key))
			return nil
		}); err != nil {
			return fmt.Errorf("scan prefix %s: %w", prefix, err)
		}
	}
	for _, key := range keys {
		if err := s.db.Delete(key); err != nil {
			return fmt.Errorf("delete utxo key: %w", err)
		}
	}
	return nil
}
