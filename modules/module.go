// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"bytes"

	"github.com/luxfi/geth/common"

	"github.com/PrivacyPad/PrivacyPad/contract"
)

// Module is the loadable unit of a stateful precompile: the config key
// it is activated under, the address it is callable at, the contract
// itself, and the configurator run at its activation boundary.
type Module struct {
	// ConfigKey is the key used in the chain config JSON.
	ConfigKey string
	// Address is the address where the precompile is accessible.
	Address common.Address
	// Contract is the precompile contract to run at Address.
	Contract contract.StatefulPrecompiledContract
	// Configurator applies the module's config to the state when the
	// activating upgrade executes.
	contract.Configurator
}

type moduleArray []Module

func (m moduleArray) Len() int {
	return len(m)
}

func (m moduleArray) Swap(i, j int) {
	m[i], m[j] = m[j], m[i]
}

func (m moduleArray) Less(i, j int) bool {
	return bytes.Compare(m[i].Address.Bytes(), m[j].Address.Bytes()) < 0
}
