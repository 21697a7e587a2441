package types

import (
	"strings"
	"testing"
)

func TestIsKeyAddress(t *testing.T) {
	valid := strings.Repeat("ab", 32)
	tests := []struct {
		name string
		addr string
		want bool
	}{
		{"lower hex", valid, true},
		{"digits", strings.Repeat("0", 64), true},
		{"upper hex", strings.ToUpper(valid), false},
		{"short", valid[:63], false},
		{"long", valid + "a", false},
		{"non-hex", strings.Repeat("g", 64), false},
		{"reserved", GenesisAddress, false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsKeyAddress(tt.addr); got != tt.want {
				t.Errorf("IsKeyAddress(%q) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestIsReservedAddress(t *testing.T) {
	for _, addr := range []string{GenesisAddress, MinerAddress} {
		if !IsReservedAddress(addr) {
			t.Errorf("IsReservedAddress(%q) = false", addr)
		}
	}
	for _, addr := range []string{"genesis", "miner", "", strings.Repeat("0", 64)} {
		if IsReservedAddress(addr) {
			t.Errorf("IsReservedAddress(%q) = true", addr)
		}
	}
}
