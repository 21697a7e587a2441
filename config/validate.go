package config

import (
	"fmt"

	"github.com/Klingon-tech/powledger/internal/storage"
	"github.com/Klingon-tech/powledger/internal/wallet"
	"github.com/Klingon-tech/powledger/pkg/block"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// Validate checks the configuration for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir must not be empty")
	}
	switch cfg.Storage.Backend {
	case storage.BackendBadger, storage.BackendBolt, storage.BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be %s, %s or %s",
			storage.BackendBadger, storage.BackendBolt, storage.BackendMemory)
	}
	if err := block.ValidateDifficulty(cfg.Chain.Difficulty); err != nil {
		return fmt.Errorf("chain.difficulty: %w", err)
	}
	if err := validateAddress(cfg.Chain.MinerAddress, "chain.miner"); err != nil {
		return err
	}
	if err := validateAddress(cfg.Chain.GenesisAddress, "chain.genesis_address"); err != nil {
		return err
	}
	if cfg.Chain.GenesisAmount == 0 {
		return fmt.Errorf("chain.genesis_amount must be positive")
	}
	if _, err := wallet.ParseStrategy(cfg.Chain.CoinSelection); err != nil {
		return fmt.Errorf("chain.coinselect: %w", err)
	}
	if cfg.Chain.MaxPending < 0 {
		return fmt.Errorf("chain.maxpending must not be negative")
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be between 0 and 65535")
	}
	if cfg.Mining.Threads < 1 {
		return fmt.Errorf("mining.threads must be at least 1")
	}
	return nil
}

func validateAddress(addr, field string) error {
	if types.IsReservedAddress(addr) || types.IsKeyAddress(addr) {
		return nil
	}
	return fmt.Errorf("%s must be GENESIS, MINER or a 64-char hex address", field)
}
