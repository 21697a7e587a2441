package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Klingon-tech/powledger/pkg/types"
)

// LoadFile loads configuration values from a .conf file.
// Format: key = value (one per line, # for comments). A missing file
// yields no values.
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file values to cfg.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "datadir":
		cfg.DataDir = value

	// Storage
	case "storage.backend":
		cfg.Storage.Backend = strings.ToLower(value)
	case "storage.path":
		cfg.Storage.Path = value

	// Chain
	case "chain.difficulty":
		cfg.Chain.Difficulty = strings.ToLower(value)
	case "chain.reward":
		a, err := types.ParseAmount(value)
		if err != nil {
			return err
		}
		cfg.Chain.Reward = a
	case "chain.miner":
		cfg.Chain.MinerAddress = value
	case "chain.genesis_address":
		cfg.Chain.GenesisAddress = value
	case "chain.genesis_amount":
		a, err := types.ParseAmount(value)
		if err != nil {
			return err
		}
		cfg.Chain.GenesisAmount = a
	case "chain.coinselect":
		cfg.Chain.CoinSelection = value
	case "chain.maxpending":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Chain.MaxPending = n

	// Mining
	case "mining.threads":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Mining.Threads = n

	// Keys
	case "keys.encrypt":
		cfg.Keys.Encrypt = parseBool(value)

	// RPC
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.RPC.Port = port
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a commented default configuration file.
func WriteDefaultConfig(path string) error {
	d := Default()
	content := `# powledger configuration
#
# Chain settings apply when a new ledger is created. A saved ledger keeps
# the difficulty it was created with.

# Data directory (default: ~/.powledger)
# datadir = ~/.powledger

# ============================================================================
# Storage
# ============================================================================

# Backend for saved state: badger, bolt or memory
storage.backend = ` + d.Storage.Backend + `
# storage.path = <datadir>/state

# ============================================================================
# Chain
# ============================================================================

# Hex prefix every block hash must start with
chain.difficulty = ` + d.Chain.Difficulty + `

# Fixed part of the block reward, in coins
chain.reward = ` + d.Chain.Reward.String() + `

# Address credited with block rewards (MINER or a key address)
chain.miner = ` + d.Chain.MinerAddress + `

# Genesis credit
chain.genesis_address = ` + d.Chain.GenesisAddress + `
chain.genesis_amount = ` + d.Chain.GenesisAmount.String() + `

# Coin selection for payments: first-fit or min-change
chain.coinselect = ` + d.Chain.CoinSelection + `

# Maximum number of pending transactions
# chain.maxpending = ` + strconv.Itoa(d.Chain.MaxPending) + `

# ============================================================================
# Mining
# ============================================================================

mining.threads = ` + strconv.Itoa(d.Mining.Threads) + `

# ============================================================================
# Keys
# ============================================================================

# Encrypt saved private keys (prompts for a passphrase)
keys.encrypt = false

# ============================================================================
# RPC Server (powledger serve)
# ============================================================================

rpc.addr = ` + d.RPC.Addr + `
rpc.port = ` + strconv.Itoa(d.RPC.Port) + `
rpc.allowed = ` + strings.Join(d.RPC.AllowedIPs, ",") + `
# rpc.cors = http://localhost:3000

# ============================================================================
# Logging
# ============================================================================

log.level = ` + d.Log.Level + `
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
