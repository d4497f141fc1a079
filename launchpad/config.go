// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package launchpad

import (
	"encoding/hex"
	"fmt"

	"github.com/luxfi/crypto"
	"github.com/luxfi/crypto/bls"

	"github.com/PrivacyPad/PrivacyPad/precompileconfig"
)

// Config activates the launchpad precompile and carries the decryption
// committee: secp256k1 signer keys, their optional BLS aggregate
// counterparts and the optional Ringtail group key. Keys are
// hex-encoded in the chain config JSON.
type Config struct {
	Upgrade precompileconfig.Upgrade `json:"upgrade,omitempty"`

	// Signers are uncompressed (65-byte) or compressed (33-byte)
	// secp256k1 public keys of the decryption committee.
	Signers []string `json:"signers,omitempty"`
	// BLSKeys are 48-byte compressed BLS public keys, index-aligned
	// with Signers when present.
	BLSKeys []string `json:"blsKeys,omitempty"`
	// RingtailKey is the lattice group verification key.
	RingtailKey string `json:"ringtailKey,omitempty"`
}

// NewConfig returns a config activating the precompile at
// [blockTimestamp] with the given signer committee.
func NewConfig(blockTimestamp *uint64, signers []string) *Config {
	return &Config{
		Upgrade: precompileconfig.Upgrade{BlockTimestamp: blockTimestamp},
		Signers: signers,
	}
}

// NewDisableConfig returns a config deactivating the precompile at
// [blockTimestamp].
func NewDisableConfig(blockTimestamp *uint64) *Config {
	return &Config{
		Upgrade: precompileconfig.Upgrade{
			BlockTimestamp: blockTimestamp,
			Disable:        true,
		},
	}
}

func (c *Config) Key() string {
	return ConfigKey
}

func (c *Config) Timestamp() *uint64 {
	return c.Upgrade.Timestamp()
}

func (c *Config) IsDisabled() bool {
	return c.Upgrade.Disable
}

func (c *Config) Equal(cfg precompileconfig.Config) bool {
	other, ok := cfg.(*Config)
	if !ok {
		return false
	}
	if !c.Upgrade.Equal(&other.Upgrade) {
		return false
	}
	if len(c.Signers) != len(other.Signers) || len(c.BLSKeys) != len(other.BLSKeys) {
		return false
	}
	for i := range c.Signers {
		if c.Signers[i] != other.Signers[i] {
			return false
		}
	}
	for i := range c.BLSKeys {
		if c.BLSKeys[i] != other.BLSKeys[i] {
			return false
		}
	}
	return c.RingtailKey == other.RingtailKey
}

// Verify checks every committee key parses. Running a sale against a
// committee with a malformed key would strand it at finalization, so
// bad keys are rejected at chain-config load.
func (c *Config) Verify(chainConfig precompileconfig.ChainConfig) error {
	for i, s := range c.Signers {
		raw, err := hex.DecodeString(stripHexPrefix(s))
		if err != nil {
			return fmt.Errorf("signer %d: %w", i, err)
		}
		if err := checkSignerKey(raw); err != nil {
			return fmt.Errorf("signer %d: %w", i, err)
		}
	}
	for i, s := range c.BLSKeys {
		raw, err := hex.DecodeString(stripHexPrefix(s))
		if err != nil {
			return fmt.Errorf("bls key %d: %w", i, err)
		}
		if _, err := bls.PublicKeyFromCompressedBytes(raw); err != nil {
			return fmt.Errorf("bls key %d: %w", i, err)
		}
	}
	if c.RingtailKey != "" {
		if _, err := hex.DecodeString(stripHexPrefix(c.RingtailKey)); err != nil {
			return fmt.Errorf("ringtail key: %w", err)
		}
	}
	return nil
}

func checkSignerKey(raw []byte) error {
	switch len(raw) {
	case 65:
		_, err := crypto.UnmarshalPubkey(raw)
		return err
	case 33:
		_, err := crypto.DecompressPubkey(raw)
		return err
	default:
		return fmt.Errorf("public key must be 33 or 65 bytes, got %d", len(raw))
	}
}

func stripHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
