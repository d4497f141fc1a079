// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package precompileconfig defines the configuration interface shared by all
// stateful precompile modules. Each precompile provides a concrete Config
// carrying an Upgrade that schedules its activation by block timestamp.
package precompileconfig

import "math/big"

// Config is implemented by every precompile configuration. Configs are
// unmarshalled from the chain config JSON under the precompile's ConfigKey.
type Config interface {
	// Key returns the unique JSON key used to identify this config.
	Key() string
	// Timestamp returns the block timestamp at which the precompile
	// activates, or nil if never.
	Timestamp() *uint64
	// IsDisabled returns true if the upgrade deactivates the precompile.
	IsDisabled() bool
	// Equal returns true if the provided config equals this one.
	Equal(Config) bool
	// Verify checks the config is well formed at chain-config load time.
	Verify(ChainConfig) error
}

// ChainConfig is the subset of the chain configuration precompiles consult.
type ChainConfig interface {
	// ChainID returns the configured chain ID.
	ChainID() *big.Int
}

// Upgrade schedules the activation (or deactivation) of a precompile.
// Embed it in a concrete Config to inherit the scheduling fields.
type Upgrade struct {
	BlockTimestamp *uint64 `json:"blockTimestamp"`
	Disable        bool    `json:"disable,omitempty"`
}

// Timestamp returns the scheduled activation timestamp.
func (u *Upgrade) Timestamp() *uint64 {
	return u.BlockTimestamp
}

// IsDisabled returns true if this upgrade deactivates the precompile.
func (u *Upgrade) IsDisabled() bool {
	return u.Disable
}

// Equal returns true if [other] schedules the same upgrade.
func (u *Upgrade) Equal(other *Upgrade) bool {
	if other == nil {
		return false
	}
	if u.Disable != other.Disable {
		return false
	}
	return equalPtr(u.BlockTimestamp, other.BlockTimestamp)
}

func equalPtr(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
