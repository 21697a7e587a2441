package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/Klingon-tech/powledger/internal/consensus"
	"github.com/Klingon-tech/powledger/internal/log"
	"github.com/Klingon-tech/powledger/internal/state"
)

// Snapshot captures the ledger for persistence.
func (l *Ledger) Snapshot() (*state.Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	utxos, err := l.utxos.All()
	if err != nil {
		return nil, fmt.Errorf("snapshot utxos: %w", err)
	}
	return &state.Snapshot{
		Users:   l.users.Accounts(),
		UTXOs:   utxos,
		Chain:   l.chain,
		Pending: l.pool.Pending(),
	}, nil
}

// Save writes the ledger to store, replacing whatever it held. Saves are
// serialized, so the last one to return has committed the newest snapshot.
func (l *Ledger) Save(store *state.Store) error {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()
	snap, err := l.Snapshot()
	if err != nil {
		return err
	}
	return store.Save(snap)
}

// Open loads the ledger saved in store, or creates a new one from opts
// when the store is empty. A loaded ledger keeps the difficulty it was
// saved with. Its chain is adopted as stored and not validated; call
// ValidateChain to check it.
func Open(ctx context.Context, store *state.Store, opts Options) (*Ledger, error) {
	meta, err := store.Meta()
	if errors.Is(err, state.ErrNoState) {
		return New(ctx, opts)
	}
	if err != nil {
		return nil, err
	}
	if meta.Difficulty != opts.Difficulty {
		log.Ledger.Warn().
			Str("saved", meta.Difficulty).
			Str("configured", opts.Difficulty).
			Msg("Using saved difficulty")
		opts.Difficulty = meta.Difficulty
	}
	engine, err := newEngine(opts.Difficulty, opts.Threads)
	if err != nil {
		return nil, err
	}
	snap, err := store.Load(engine)
	if err != nil {
		return nil, err
	}
	return FromSnapshot(snap, opts)
}

// FromSnapshot rebuilds a ledger from a loaded snapshot. Pending
// transactions that no longer validate against the restored UTXO set are
// dropped with a warning.
func FromSnapshot(snap *state.Snapshot, opts Options) (*Ledger, error) {
	if snap.Chain == nil {
		return nil, fmt.Errorf("%w: snapshot has no chain", state.ErrCorruptState)
	}
	engine, ok := snap.Chain.Engine().(*consensus.PoW)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported consensus engine %T", state.ErrCorruptState, snap.Chain.Engine())
	}
	l := assemble(engine, snap.Chain, opts)

	for _, acct := range snap.Users {
		if _, err := l.users.Add(acct.Name, acct.Key, acct.CreatedAt); err != nil {
			return nil, fmt.Errorf("restore user %s: %w", acct.Name, err)
		}
	}
	for _, u := range snap.UTXOs {
		if err := l.utxos.Add(u.Outpoint, u.Address, u.Amount); err != nil {
			return nil, fmt.Errorf("restore utxo %s: %w", u.Outpoint, err)
		}
	}
	for _, t := range snap.Pending {
		if _, err := l.pool.Add(t); err != nil {
			log.Ledger.Warn().Err(err).Str("tx", t.TxID).Msg("Dropped saved pending transaction")
		}
	}

	log.Ledger.Info().
		Uint64("height", snap.Chain.Height()).
		Int("users", len(snap.Users)).
		Int("utxos", len(snap.UTXOs)).
		Int("pending", l.pool.Count()).
		Msg("Ledger restored")
	return l, nil
}
