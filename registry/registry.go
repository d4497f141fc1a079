// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry catalogs the addresses of the confidential launchpad
// suite. Registered precompiles live at fixed addresses inside the
// reserved ranges; service custody addresses are conventions the suite
// settles balances against and are listed here so embedding chains and
// clients share one source of truth.
package registry

import (
	"github.com/luxfi/geth/common"
)

// Precompile addresses. The high byte pair selects the reserved range,
// the trailing byte the slot within it.
const (
	// FHEAddress hosts the encrypted-arithmetic coprocessor precompile:
	// ciphertext import, homomorphic ops, access grants.
	FHEAddress = "0x0700000000000000000000000000000000000001"

	// LaunchpadAddress hosts the confidential presale precompile.
	LaunchpadAddress = "0x0A00000000000000000000000000000000000001"
)

// Service custody addresses. These are not callable precompiles; they
// are the accounts the suite's in-state services settle against.
const (
	// ConfidentialWETHCustody holds the plaintext underlying of the
	// wrapped-native confidential ledger.
	ConfidentialWETHCustody = "0x0700000000000000000000000000000000000002"

	// DexSettlement is the pool manager account liquidity deployments
	// settle token balances against.
	DexSettlement = "0x0400000000000000000000000000000000000001"
)

// PrecompileInfo contains metadata about a precompile
type PrecompileInfo struct {
	Address     string
	Name        string
	Description string
	// GasBase is the representative cost of the precompile's primary
	// operation; per-selector costs live with each contract.
	GasBase uint64
	// ConfigKey is the chain-config key the precompile activates under.
	ConfigKey string
}

// AllPrecompiles lists the suite's precompiles with their metadata
var AllPrecompiles = []PrecompileInfo{
	{FHEAddress, "FHE", "Encrypted-arithmetic coprocessor (TFHE handles, ACL grants)", 50000, "fheConfig"},
	{LaunchpadAddress, "LAUNCHPAD", "Confidential token presale engine", 600000, "privacypadConfig"},
}

// GetPrecompileAddress returns the address for a precompile by name
func GetPrecompileAddress(name string) common.Address {
	for _, p := range AllPrecompiles {
		if p.Name == name {
			return common.HexToAddress(p.Address)
		}
	}
	return common.Address{}
}

// Addresses returns every registered precompile address in catalog
// order.
func Addresses() []common.Address {
	result := make([]common.Address, len(AllPrecompiles))
	for i, p := range AllPrecompiles {
		result[i] = common.HexToAddress(p.Address)
	}
	return result
}

// IsSuitePrecompile reports whether [addr] is one of the suite's
// callable precompiles.
func IsSuitePrecompile(addr common.Address) bool {
	for _, p := range AllPrecompiles {
		if common.HexToAddress(p.Address) == addr {
			return true
		}
	}
	return false
}
