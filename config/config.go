// Package config handles application configuration.
//
// Settings are resolved in order: built-in defaults, the key = value
// config file in the data directory, then command-line flags.
package config

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/Klingon-tech/powledger/pkg/types"
)

// Config holds the ledger's runtime configuration.
type Config struct {
	DataDir string `conf:"datadir"`

	Storage StorageConfig
	Chain   ChainConfig
	Mining  MiningConfig
	Keys    KeysConfig
	RPC     RPCConfig
	Log     LogConfig
}

// StorageConfig selects where saved state lives.
type StorageConfig struct {
	Backend string `conf:"storage.backend"` // badger, bolt or memory
	Path    string `conf:"storage.path"`    // Defaults to <datadir>/state
}

// ChainConfig holds the rules a new ledger is created with. Difficulty
// only applies to a fresh ledger; a saved ledger keeps its own.
type ChainConfig struct {
	Difficulty     string       `conf:"chain.difficulty"`
	Reward         types.Amount `conf:"chain.reward"`
	MinerAddress   string       `conf:"chain.miner"`
	GenesisAddress string       `conf:"chain.genesis_address"`
	GenesisAmount  types.Amount `conf:"chain.genesis_amount"`
	CoinSelection  string       `conf:"chain.coinselect"`
	MaxPending     int          `conf:"chain.maxpending"`
}

// MiningConfig holds block production settings.
type MiningConfig struct {
	Threads int `conf:"mining.threads"`
}

// KeysConfig controls how private keys are stored.
type KeysConfig struct {
	Encrypt bool `conf:"keys.encrypt"` // Encrypt saved keys with a passphrase
}

// RPCConfig holds JSON-RPC server settings.
type RPCConfig struct {
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.powledger
//	macOS:   ~/Library/Application Support/Powledger
//	Windows: %APPDATA%\Powledger
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".powledger"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Powledger")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Powledger")
		}
		return filepath.Join(home, "AppData", "Roaming", "Powledger")
	default:
		return filepath.Join(home, ".powledger")
	}
}

// StateDir returns the saved-state database directory.
func (c *Config) StateDir() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(c.DataDir, "state")
}

// KeystoreDir returns the directory for exported key files.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.DataDir, "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "powledger.conf")
}

// RPCListenAddr returns the host:port the RPC server binds.
func (c *Config) RPCListenAddr() string {
	return net.JoinHostPort(c.RPC.Addr, strconv.Itoa(c.RPC.Port))
}

// RPCEndpoint returns the URL clients use to reach the RPC server.
func (c *Config) RPCEndpoint() string {
	return "http://" + c.RPCListenAddr()
}
