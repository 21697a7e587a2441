package config

import (
	"github.com/Klingon-tech/powledger/internal/consensus"
	"github.com/Klingon-tech/powledger/internal/mempool"
	"github.com/Klingon-tech/powledger/internal/miner"
	"github.com/Klingon-tech/powledger/internal/storage"
	"github.com/Klingon-tech/powledger/internal/wallet"
	"github.com/Klingon-tech/powledger/pkg/types"
)

// DefaultRPCPort is the JSON-RPC port used when none is configured.
const DefaultRPCPort = 8645

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Storage: StorageConfig{
			Backend: storage.BackendBadger,
		},
		Chain: ChainConfig{
			Difficulty:     consensus.DefaultDifficulty,
			Reward:         miner.DefaultBaseReward,
			MinerAddress:   types.MinerAddress,
			GenesisAddress: types.GenesisAddress,
			GenesisAmount:  types.Coins(1000),
			CoinSelection:  string(wallet.FirstFit),
			MaxPending:     mempool.DefaultMaxSize,
		},
		Mining: MiningConfig{
			Threads: 1,
		},
		RPC: RPCConfig{
			Addr:       "127.0.0.1",
			Port:       DefaultRPCPort,
			AllowedIPs: []string{"127.0.0.1"},
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
