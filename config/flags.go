package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// Flags holds the command-line overrides shared by every command.
type Flags struct {
	DataDir string
	Config  string

	Backend    string
	Difficulty string
	Miner      string
	Threads    int
	Encrypt    bool

	RPCAddr    string
	RPCPort    int
	RPCAllowed string
	RPCCORS    string

	LogLevel string
	LogFile  string
	LogJSON  bool

	fs *pflag.FlagSet
}

// Bind registers the flags on fs, typically a root command's persistent
// flag set.
func (f *Flags) Bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory (default: ~/.powledger)")
	fs.StringVarP(&f.Config, "config", "c", "", "Config file path (default: <datadir>/powledger.conf)")

	fs.StringVar(&f.Backend, "backend", "", "State backend: badger, bolt or memory")
	fs.StringVar(&f.Difficulty, "difficulty", "", "Hex hash prefix for a new ledger")
	fs.StringVar(&f.Miner, "miner", "", "Address credited with block rewards")
	fs.IntVar(&f.Threads, "threads", 0, "Mining threads")
	fs.BoolVar(&f.Encrypt, "encrypt", false, "Encrypt saved private keys with a passphrase")

	fs.StringVar(&f.RPCAddr, "rpc-addr", "", "RPC listen address")
	fs.IntVar(&f.RPCPort, "rpc-port", 0, "RPC listen port")
	fs.StringVar(&f.RPCAllowed, "rpc-allowed", "", "Allowed IPs for RPC (comma-separated)")
	fs.StringVar(&f.RPCCORS, "rpc-cors", "", "Allowed CORS origins for RPC (comma-separated)")

	fs.StringVar(&f.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	f.fs = fs
}

// changed reports whether a bool flag was set explicitly, so that
// --flag=false can override a true config file value.
func (f *Flags) changed(name string) bool {
	return f.fs != nil && f.fs.Changed(name)
}

// ApplyFlags applies command-line flags to cfg.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.Backend != "" {
		cfg.Storage.Backend = f.Backend
	}
	if f.Difficulty != "" {
		cfg.Chain.Difficulty = f.Difficulty
	}
	if f.Miner != "" {
		cfg.Chain.MinerAddress = f.Miner
	}
	if f.Threads != 0 {
		cfg.Mining.Threads = f.Threads
	}
	if f.changed("encrypt") {
		cfg.Keys.Encrypt = f.Encrypt
	}
	if f.RPCAddr != "" {
		cfg.RPC.Addr = f.RPCAddr
	}
	if f.RPCPort != 0 {
		cfg.RPC.Port = f.RPCPort
	}
	if f.RPCAllowed != "" {
		cfg.RPC.AllowedIPs = parseStringList(f.RPCAllowed)
	}
	if f.RPCCORS != "" {
		cfg.RPC.CORSOrigins = parseStringList(f.RPCCORS)
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.changed("log-json") {
		cfg.Log.JSON = f.LogJSON
	}
}

// Load resolves the configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load(f *Flags) (*Config, error) {
	cfg := Default()
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := f.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}

	ApplyFlags(cfg, f)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	for _, dir := range []string{cfg.DataDir, cfg.KeystoreDir(), cfg.LogsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}
