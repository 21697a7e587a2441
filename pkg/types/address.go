package types

// Reserved addresses that are not derived from a key pair.
const (
	// GenesisAddress receives the genesis credit.
	GenesisAddress = "GENESIS"
	// MinerAddress is the default recipient of block rewards.
	MinerAddress = "MINER"
)

// AddressLen is the length of a key-derived address: hex SHA-256.
const AddressLen = 64

// IsReservedAddress reports whether addr is one of the non-key addresses.
func IsReservedAddress(addr string) bool {
	return addr == GenesisAddress || addr == MinerAddress
}

// IsKeyAddress reports whether addr has the shape of a key-derived address.
func IsKeyAddress(addr string) bool {
	if len(addr) != AddressLen {
		return false
	}
	for i := 0; i < len(addr); i++ {
		c := addr[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
