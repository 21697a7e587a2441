package node

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/powledger/config"
	"github.com/Klingon-tech/powledger/internal/ledger"
	"github.com/Klingon-tech/powledger/internal/wallet"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// LedgerOptions maps configuration onto ledger options.
func LedgerOptions(cfg *config.Config) (ledger.Options, error) {
	strategy, err := wallet.ParseStrategy(cfg.Chain.CoinSelection)
	if err != nil {
		return ledger.Options{}, err
	}
	return ledger.Options{
		Difficulty:    cfg.Chain.Difficulty,
		Threads:       cfg.Mining.Threads,
		BaseReward:    cfg.Chain.Reward,
		MinerAddress:  cfg.Chain.MinerAddress,
		Genesis:       cfg.Genesis(),
		CoinSelection: strategy,
		MaxPending:    cfg.Chain.MaxPending,
	}, nil
}
