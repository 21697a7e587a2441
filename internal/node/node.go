// Package node wires configuration, storage and the ledger together so
// that any front end (the CLI, tests) can open a ledger from a Config.
package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/powledger/config"
	"github.com/Klingon-tech/powledger/internal/ledger"
	klog "github.com/Klingon-tech/powledger/internal/log"
	"github.com/Klingon-tech/powledger/internal/state"
	"github.com/Klingon-tech/powledger/internal/storage"
	"github.com/Klingon-tech/powledger/internal/wallet"
)

// ErrPassphraseRequired is returned when keys.encrypt is set but no
// passphrase was supplied.
var ErrPassphraseRequired = errors.New("keys.encrypt is set; a passphrase is required")

// Node is an opened ledger with its backing storage.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	db       storage.DB
	store    *state.Store
	ledger   *ledger.Ledger
	keystore *wallet.Keystore
}

// New opens the saved ledger described by cfg, creating a fresh one when
// nothing has been saved yet. passphrase is used only when cfg.Keys.Encrypt
// is set. Call Save to persist changes and Close when done.
func New(ctx context.Context, cfg *config.Config, passphrase []byte) (*Node, error) {
	// ── 1. Logger ───────────────────────────────────────────────────
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, expandHome(cfg.Log.File)); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	// ── 2. Storage ──────────────────────────────────────────────────
	path := expandHome(cfg.StateDir())
	if cfg.Storage.Backend == storage.BackendBolt {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("creating state dir: %w", err)
		}
		path = filepath.Join(path, "state.db")
	}
	db, err := storage.Open(cfg.Storage.Backend, path)
	if err != nil {
		return nil, fmt.Errorf("open %s storage at %s: %w", cfg.Storage.Backend, path, err)
	}

	var opts []state.Option
	if cfg.Keys.Encrypt {
		if len(passphrase) == 0 {
			db.Close()
			return nil, ErrPassphraseRequired
		}
		opts = append(opts, state.WithPassphrase(passphrase))
	}
	store := state.New(db, opts...)

	// ── 3. Ledger ───────────────────────────────────────────────────
	lopts, err := LedgerOptions(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	l, err := ledger.Open(ctx, store, lopts)
	if err != nil {
		db.Close()
		return nil, err
	}

	// ── 4. Keystore ─────────────────────────────────────────────────
	ks, err := wallet.NewKeystore(expandHome(cfg.KeystoreDir()), wallet.DefaultParams())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open keystore: %w", err)
	}

	logger.Debug().
		Str("backend", cfg.Storage.Backend).
		Str("path", path).
		Uint64("height", l.Chain().Height()).
		Msg("Ledger opened")

	return &Node{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		store:    store,
		ledger:   l,
		keystore: ks,
	}, nil
}

// Config returns the configuration the node was opened with.
func (n *Node) Config() *config.Config { return n.cfg }

// Ledger returns the opened ledger.
func (n *Node) Ledger() *ledger.Ledger { return n.ledger }

// Keystore returns the key file directory.
func (n *Node) Keystore() *wallet.Keystore { return n.keystore }

// Save persists the ledger.
func (n *Node) Save() error {
	if err := n.ledger.Save(n.store); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

// Reset wipes saved state and replaces the in-memory ledger with a fresh
// one.
func (n *Node) Reset(ctx context.Context) error {
	if err := n.store.Reset(); err != nil {
		return err
	}
	lopts, err := LedgerOptions(n.cfg)
	if err != nil {
		return err
	}
	l, err := ledger.New(ctx, lopts)
	if err != nil {
		return err
	}
	n.ledger = l
	n.logger.Info().Msg("Ledger reset")
	return nil
}

// Close releases the storage.
func (n *Node) Close() error {
	return n.db.Close()
}
