// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package launchpad

import (
	"encoding/hex"
	"fmt"

	"github.com/luxfi/geth/common"

	"github.com/PrivacyPad/PrivacyPad/contract"
	"github.com/PrivacyPad/PrivacyPad/modules"
	"github.com/PrivacyPad/PrivacyPad/precompileconfig"
)

var _ contract.Configurator = (*configurator)(nil)

// ConfigKey is the key used in json config files to specify this
// precompile's config.
const ConfigKey = "privacypadConfig"

// ContractAddress hosts the launchpad dispatch surface.
var ContractAddress = common.HexToAddress("0x0A00000000000000000000000000000000000001")

// LaunchpadPrecompile is the shared precompile instance; it resolves
// the default environment at call time.
var LaunchpadPrecompile = &LaunchpadContract{}

var Module = modules.Module{
	ConfigKey:    ConfigKey,
	Address:      ContractAddress,
	Contract:     LaunchpadPrecompile,
	Configurator: &configurator{},
}

type configurator struct{}

func init() {
	if err := modules.RegisterModule(Module); err != nil {
		panic(err)
	}
}

func (*configurator) MakeConfig() precompileconfig.Config {
	return new(Config)
}

// Configure installs the committee keys from the chain config into the
// node's oracle. A node that has not wired a launchpad environment has
// nothing to configure.
func (*configurator) Configure(
	chainConfig precompileconfig.ChainConfig,
	cfg precompileconfig.Config,
	state contract.StateDB,
	blockContext contract.ConfigurationBlockContext,
) error {
	config, ok := cfg.(*Config)
	if !ok {
		return fmt.Errorf("unexpected config type %T", cfg)
	}
	env := DefaultLaunchpad()
	if env == nil || env.Oracle == nil {
		return nil
	}
	for i, s := range config.Signers {
		raw, err := hex.DecodeString(stripHexPrefix(s))
		if err != nil {
			return fmt.Errorf("signer %d: %w", i, err)
		}
		if _, err := env.Oracle.RegisterSigner(raw); err != nil {
			return fmt.Errorf("signer %d: %w", i, err)
		}
	}
	for i, s := range config.BLSKeys {
		raw, err := hex.DecodeString(stripHexPrefix(s))
		if err != nil {
			return fmt.Errorf("bls key %d: %w", i, err)
		}
		if err := env.Oracle.RegisterBLSKey(raw); err != nil {
			return fmt.Errorf("bls key %d: %w", i, err)
		}
	}
	if config.RingtailKey != "" {
		raw, err := hex.DecodeString(stripHexPrefix(config.RingtailKey))
		if err != nil {
			return fmt.Errorf("ringtail key: %w", err)
		}
		env.Oracle.SetRingtailKey(raw)
	}
	return nil
}
