package config

import "github.com/Klingon-tech/powledger/internal/chain"

// Genesis returns the genesis credit a new ledger is created with.
func (c *Config) Genesis() chain.Genesis {
	return chain.Genesis{
		Address: c.Chain.GenesisAddress,
		Amount:  c.Chain.GenesisAmount,
	}
}
