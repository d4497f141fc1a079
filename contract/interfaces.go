// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package contract defines the execution interface between the EVM and
// stateful precompiles. Precompile implementations receive an
// AccessibleState scoped to the current call and must account gas
// against the supplied allowance before touching state.
package contract

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	ethtypes "github.com/luxfi/geth/core/types"

	"github.com/PrivacyPad/PrivacyPad/precompileconfig"
)

// StateDB is the view of the EVM state exposed to stateful precompiles.
type StateDB interface {
	GetState(common.Address, common.Hash) common.Hash
	SetState(common.Address, common.Hash, common.Hash) common.Hash

	GetBalance(common.Address) *uint256.Int
	AddBalance(common.Address, *uint256.Int, tracing.BalanceChangeReason) uint256.Int
	SubBalance(common.Address, *uint256.Int, tracing.BalanceChangeReason) uint256.Int

	GetBalanceMultiCoin(common.Address, common.Hash) *big.Int
	AddBalanceMultiCoin(common.Address, common.Hash, *big.Int)
	SubBalanceMultiCoin(common.Address, common.Hash, *big.Int)

	GetNonce(common.Address) uint64
	SetNonce(common.Address, uint64, tracing.NonceChangeReason)

	CreateAccount(common.Address)
	Exist(common.Address) bool

	AddLog(*ethtypes.Log)
	GetPredicateStorageSlots(addr common.Address, index int) ([]byte, bool)

	TxHash() common.Hash
	Snapshot() int
	RevertToSnapshot(int)
}

// AccessibleState exposes the state an individual precompile call may
// read and mutate.
type AccessibleState interface {
	GetStateDB() StateDB
	GetBlockContext() BlockContext
	GetChainConfig() precompileconfig.ChainConfig
}

// ConfigurationBlockContext is the block information available while a
// precompile is being configured at its activation boundary.
type ConfigurationBlockContext interface {
	Number() *big.Int
	Timestamp() uint64
}

// BlockContext is the block information available during precompile
// execution.
type BlockContext interface {
	ConfigurationBlockContext

	// GetPredicateResults returns the serialized predicate results for
	// [txHash] at [precompileAddress], if any.
	GetPredicateResults(txHash common.Hash, precompileAddress common.Address) []byte
}

// Configurator updates the state of a precompile when its config is
// activated or deactivated by a network upgrade.
type Configurator interface {
	MakeConfig() precompileconfig.Config
	Configure(
		chainConfig precompileconfig.ChainConfig,
		precompileConfig precompileconfig.Config,
		state StateDB,
		blockContext ConfigurationBlockContext,
	) error
}
