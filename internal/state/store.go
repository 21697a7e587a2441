// Package state persists and restores ledger snapshots: users, the UTXO
// set, the block list and pending transactions.
package state

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/powledger/internal/chain"
	"github.com/Klingon-tech/powledger/internal/consensus"
	"github.com/Klingon-tech/powledger/internal/log"
	"github.com/Klingon-tech/powledger/internal/storage"
	"github.com/Klingon-tech/powledger/internal/utxo"
	"github.com/Klingon-tech/powledger/internal/wallet"
	"github.com/Klingon-tech/powledger/pkg/crypto"
	"github.com/Klingon-tech/powledger/pkg/tx"
)

// Store errors.
var (
	ErrNoState            = errors.New("no saved state")
	ErrCorruptState       = errors.New("saved state is corrupt")
	ErrPassphraseRequired = errors.New("saved keys are encrypted; passphrase required")
	ErrUnsupportedVersion = errors.New("unsupported state version")
)

// Version is the snapshot format version.
const Version = 1

var keyMeta = []byte("meta")

// Snapshot is everything a ledger needs to resume.
type Snapshot struct {
	Meta    Meta
	Users   []*wallet.Account
	UTXOs   []*utxo.UTXO
	Chain   *chain.Chain
	Pending []*tx.Transaction
}

// Store reads and writes snapshots in namespaces of one storage.DB.
type Store struct {
	db         storage.DB
	meta       *storage.PrefixDB
	users      *storage.PrefixDB
	utxos      *storage.PrefixDB
	blocks     *storage.PrefixDB
	pending    *storage.PrefixDB
	passphrase []byte
	params     wallet.EncryptionParams
}

// Option configures a Store.
type Option func(*Store)

// WithPassphrase encrypts private keys on Save and decrypts them on Load.
func WithPassphrase(passphrase []byte) Option {
	return func(s *Store) { s.passphrase = passphrase }
}

// WithEncryptionParams overrides the Argon2id cost parameters.
func WithEncryptionParams(p wallet.EncryptionParams) Option {
	return func(s *Store) { s.params = p }
}

// New creates a store over db.
func New(db storage.DB, opts ...Option) *Store {
	s := &Store{
		db:      db,
		meta:    storage.NewPrefixDB(db, []byte("m/")),
		users:   storage.NewPrefixDB(db, []byte("k/")),
		utxos:   storage.NewPrefixDB(db, []byte("o/")),
		blocks:  storage.NewPrefixDB(db, []byte("b/")),
		pending: storage.NewPrefixDB(db, []byte("p/")),
		params:  wallet.DefaultParams(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) namespaces() []*storage.PrefixDB {
	return []*storage.PrefixDB{s.meta, s.users, s.utxos, s.blocks, s.pending}
}

// Encrypted reports whether Save will encrypt private keys.
func (s *Store) Encrypted() bool {
	return len(s.passphrase) > 0
}

// Exists reports whether a snapshot has been saved.
func (s *Store) Exists() (bool, error) {
	return s.meta.Has(keyMeta)
}

// Meta returns the saved snapshot's metadata.
func (s *Store) Meta() (*Meta, error) {
	data, err := s.meta.Get(keyMeta)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: meta: %v", ErrCorruptState, err)
	}
	if m.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, m.Version)
	}
	return &m, nil
}

// recordingBatch notes every key written through it.
type recordingBatch struct {
	storage.Batch
	written map[string]struct{}
}

func (r *recordingBatch) Put(key, value []byte) error {
	r.written[string(key)] = struct{}{}
	return r.Batch.Put(key, value)
}

// Save replaces the stored snapshot with snap in a single batch. Keys of
// the previous snapshot that snap no longer has are deleted in the same
// batch.
func (s *Store) Save(snap *Snapshot) error {
	done := log.Benchmark("state save")
	defer done()

	root := storage.NewBatchOn(s.db)
	rec := &recordingBatch{Batch: root, written: make(map[string]struct{})}

	commitment, err := commitmentOf(snap.UTXOs)
	if err != nil {
		return err
	}
	st := snap.Chain.State()
	meta := Meta{
		Version:        Version,
		Difficulty:     snap.Chain.Difficulty(),
		Height:         st.Height,
		TipHash:        st.TipHash,
		UTXOCommitment: commitment,
		SavedAt:        time.Now().UTC(),
	}
	if err := putJSON(s.meta.Wrap(rec), keyMeta, &meta); err != nil {
		return err
	}

	users := s.users.Wrap(rec)
	for _, acct := range snap.Users {
		r, err := s.userRecord(acct)
		if err != nil {
			return err
		}
		if err := putJSON(users, []byte(acct.Name), r); err != nil {
			return err
		}
	}

	utxos := s.utxos.Wrap(rec)
	for _, u := range snap.UTXOs {
		if err := putJSON(utxos, []byte(u.Outpoint.String()), newUTXORecord(u)); err != nil {
			return err
		}
	}

	if err := chain.NewBlockStore(s.blocks).SaveChainBatch(s.blocks.Wrap(rec), snap.Chain); err != nil {
		return fmt.Errorf("save blocks: %w", err)
	}

	pending := s.pending.Wrap(rec)
	for i, t := range snap.Pending {
		if err := putJSON(pending, binary.BigEndian.AppendUint64(nil, uint64(i)), newTxRecord(t)); err != nil {
			return err
		}
	}

	for _, ns := range s.namespaces() {
		err := s.db.ForEach(ns.Prefix(), func(key, _ []byte) error {
			if _, ok := rec.written[string(key)]; !ok {
				return root.Delete(append([]byte(nil), key...))
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("scan stale keys: %w", err)
		}
	}

	if err := root.Commit(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	log.Storage.Info().
		Int("users", len(snap.Users)).
		Int("utxos", len(snap.UTXOs)).
		Int("blocks", snap.Chain.Len()).
		Int("pending", len(snap.Pending)).
		Bool("encrypted", s.Encrypted()).
		Msg("State saved")
	return nil
}

func (s *Store) userRecord(acct *wallet.Account) (*UserRecord, error) {
	r := &UserRecord{
		Name:      acct.Name,
		PublicKey: acct.Key.PublicKeyHex(),
		Address:   acct.Address(),
		CreatedAt: acct.CreatedAt,
	}
	if !s.Encrypted() {
		r.PrivateKey = acct.Key.PrivateKeyHex()
		return r, nil
	}
	sealed, err := wallet.Encrypt(acct.Key.PrivateKey(), s.passphrase, s.params)
	if err != nil {
		return nil, fmt.Errorf("encrypt key for %s: %w", acct.Name, err)
	}
	r.PrivateKey = hex.EncodeToString(sealed)
	r.Encrypted = true
	return r, nil
}

// Load reads the saved snapshot. Blocks keep their stored hashes; the
// chain is not validated here. The UTXO entries must match the commitment
// recorded at save time.
func (s *Store) Load(engine consensus.Engine) (*Snapshot, error) {
	meta, err := s.Meta()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Meta: *meta}

	err = s.users.ForEach(nil, func(_, value []byte) error {
		var r UserRecord
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("%w: user record: %v", ErrCorruptState, err)
		}
		acct, err := s.account(&r)
		if err != nil {
			return err
		}
		snap.Users = append(snap.Users, acct)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.utxos.ForEach(nil, func(_, value []byte) error {
		var r UTXORecord
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("%w: utxo record: %v", ErrCorruptState, err)
		}
		snap.UTXOs = append(snap.UTXOs, r.UTXO())
		return nil
	})
	if err != nil {
		return nil, err
	}
	commitment, err := commitmentOf(snap.UTXOs)
	if err != nil {
		return nil, err
	}
	if commitment != meta.UTXOCommitment {
		return nil, fmt.Errorf("%w: utxo commitment %s, recorded %s", ErrCorruptState, commitment, meta.UTXOCommitment)
	}

	snap.Chain, err = chain.NewBlockStore(s.blocks).LoadChain(engine)
	if err != nil {
		return nil, fmt.Errorf("%w: blocks: %v", ErrCorruptState, err)
	}

	err = s.pending.ForEach(nil, func(_, value []byte) error {
		var r TxRecord
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("%w: pending record: %v", ErrCorruptState, err)
		}
		t, err := r.Transaction()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		snap.Pending = append(snap.Pending, t)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Storage.Debug().
		Int("users", len(snap.Users)).
		Int("utxos", len(snap.UTXOs)).
		Int("blocks", snap.Chain.Len()).
		Msg("State loaded")
	return snap, nil
}

func (s *Store) account(r *UserRecord) (*wallet.Account, error) {
	raw, err := hex.DecodeString(r.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: user %s: private key: %v", ErrCorruptState, r.Name, err)
	}
	if r.Encrypted {
		if !s.Encrypted() {
			return nil, ErrPassphraseRequired
		}
		if raw, err = wallet.Decrypt(raw, s.passphrase); err != nil {
			return nil, fmt.Errorf("user %s: %w", r.Name, err)
		}
	}
	kp, err := crypto.KeyPairFromPrivate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: user %s: %v", ErrCorruptState, r.Name, err)
	}
	if kp.Address() != r.Address {
		return nil, fmt.Errorf("%w: user %s: address does not match key", ErrCorruptState, r.Name)
	}
	return &wallet.Account{Name: r.Name, Key: kp, CreatedAt: r.CreatedAt}, nil
}

// Reset deletes every saved record.
func (s *Store) Reset() error {
	for _, ns := range s.namespaces() {
		if err := ns.DeleteAll(); err != nil {
			return fmt.Errorf("reset %s: %w", ns.Prefix(), err)
		}
	}
	log.Storage.Info().Msg("State reset")
	return nil
}

func putJSON(b storage.Batch, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return b.Put(key, data)
}

// commitmentOf computes utxo.Commitment over a detached set of entries.
func commitmentOf(entries []*utxo.UTXO) (string, error) {
	set := utxo.NewSet(storage.NewMemory())
	for _, u := range entries {
		if err := set.Add(u.Outpoint, u.Address, u.Amount); err != nil {
			return "", err
		}
	}
	return utxo.Commitment(set)
}
