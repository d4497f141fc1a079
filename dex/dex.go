// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dex implements the constant-product liquidity pools the
// launchpad deploys raised funds into after a successful sale. Pools
// are identified by the blake3 digest of their canonically ordered
// token pair; the manager does plain bookkeeping over reserves the
// caller has already moved into the manager's custody address.
package dex

import (
	"errors"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

var (
	ErrSameToken    = errors.New("pool tokens must differ")
	ErrPoolExists   = errors.New("pool already exists")
	ErrPoolNotFound = errors.New("pool not found")
	ErrInvalidFee   = errors.New("invalid fee")
	ErrNoLiquidity  = errors.New("no liquidity provided")
	ErrZeroShares   = errors.New("liquidity below minimum")
	ErrBadToken     = errors.New("token not in pool")
)

// FeeMaxBps caps the swap fee a pool may charge.
const FeeMaxBps uint16 = 1000

// PoolKey identifies a pool by its canonically ordered token pair.
type PoolKey struct {
	Token0 common.Address
	Token1 common.Address
}

// NewPoolKey orders the pair so the lower address is Token0.
func NewPoolKey(a, b common.Address) PoolKey {
	if b.Cmp(a) < 0 {
		a, b = b, a
	}
	return PoolKey{Token0: a, Token1: b}
}

// ID computes the unique pool identifier.
func (pk PoolKey) ID() [32]byte {
	h := blake3.New()
	h.Write(pk.Token0.Bytes())
	h.Write(pk.Token1.Bytes())

	var id [32]byte
	h.Digest().Read(id[:])
	return id
}

// LiquidityPool is one constant-product market.
type LiquidityPool struct {
	ID     [32]byte
	Key    PoolKey
	FeeBps uint16

	Reserve0 *uint256.Int
	Reserve1 *uint256.Int

	TotalShares *uint256.Int
	Shares      map[common.Address]*uint256.Int
}

// PoolManager tracks every pool. Reserve accounting assumes callers
// settle the matching token balances against the manager's address.
type PoolManager struct {
	Address common.Address
	Pools   map[[32]byte]*LiquidityPool

	mu sync.RWMutex
}

// NewPoolManager creates an empty pool manager settling at [address].
func NewPoolManager(address common.Address) *PoolManager {
	return &PoolManager{
		Address: address,
		Pools:   make(map[[32]byte]*LiquidityPool),
	}
}

// CreatePool registers an empty pool for the pair.
func (pm *PoolManager) CreatePool(a, b common.Address, feeBps uint16) ([32]byte, error) {
	if a == b {
		return [32]byte{}, ErrSameToken
	}
	if feeBps > FeeMaxBps {
		return [32]byte{}, ErrInvalidFee
	}

	key := NewPoolKey(a, b)
	id := key.ID()

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.Pools[id]; exists {
		return [32]byte{}, ErrPoolExists
	}
	pm.Pools[id] = &LiquidityPool{
		ID:          id,
		Key:         key,
		FeeBps:      feeBps,
		Reserve0:    uint256.NewInt(0),
		Reserve1:    uint256.NewInt(0),
		TotalShares: uint256.NewInt(0),
		Shares:      make(map[common.Address]*uint256.Int),
	}
	return id, nil
}

// GetPool returns the pool behind [id].
func (pm *PoolManager) GetPool(id [32]byte) (*LiquidityPool, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	pool, exists := pm.Pools[id]
	if !exists {
		return nil, ErrPoolNotFound
	}
	return pool, nil
}

// AddLiquidity credits [provider] with pool shares for the deposited
// amounts, given in the key's canonical token order. The first deposit
// mints the geometric mean of the amounts; later deposits mint in
// proportion to reserves, taking the smaller ratio.
func (pm *PoolManager) AddLiquidity(id [32]byte, provider common.Address, amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	if amount0 == nil || amount1 == nil || amount0.IsZero() || amount1.IsZero() {
		return nil, ErrNoLiquidity
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, exists := pm.Pools[id]
	if !exists {
		return nil, ErrPoolNotFound
	}

	var minted *uint256.Int
	if pool.TotalShares.IsZero() {
		product := new(big.Int).Mul(amount0.ToBig(), amount1.ToBig())
		root := new(big.Int).Sqrt(product)
		minted, _ = uint256.FromBig(root)
		if minted.IsZero() {
			return nil, ErrZeroShares
		}
	} else {
		by0 := new(uint256.Int).Mul(pool.TotalShares, amount0)
		by0.Div(by0, pool.Reserve0)
		by1 := new(uint256.Int).Mul(pool.TotalShares, amount1)
		by1.Div(by1, pool.Reserve1)
		minted = by0
		if by1.Lt(by0) {
			minted = by1
		}
		if minted.IsZero() {
			return nil, ErrZeroShares
		}
	}

	pool.Reserve0.Add(pool.Reserve0, amount0)
	pool.Reserve1.Add(pool.Reserve1, amount1)
	pool.TotalShares.Add(pool.TotalShares, minted)

	held, ok := pool.Shares[provider]
	if !ok {
		held = uint256.NewInt(0)
		pool.Shares[provider] = held
	}
	held.Add(held, minted)

	return new(uint256.Int).Set(minted), nil
}

// Swap trades [amountIn] of [tokenIn] against the pool and returns the
// output amount, keeping the constant product net of the fee.
func (pm *PoolManager) Swap(id [32]byte, tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	if amountIn == nil || amountIn.IsZero() {
		return nil, ErrNoLiquidity
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pool, exists := pm.Pools[id]
	if !exists {
		return nil, ErrPoolNotFound
	}
	if pool.Reserve0.IsZero() || pool.Reserve1.IsZero() {
		return nil, ErrNoLiquidity
	}

	var reserveIn, reserveOut *uint256.Int
	switch tokenIn {
	case pool.Key.Token0:
		reserveIn, reserveOut = pool.Reserve0, pool.Reserve1
	case pool.Key.Token1:
		reserveIn, reserveOut = pool.Reserve1, pool.Reserve0
	default:
		return nil, ErrBadToken
	}

	// out = reserveOut * inAfterFee / (reserveIn*10000 + inAfterFee)
	inAfterFee := new(uint256.Int).Mul(amountIn, uint256.NewInt(uint64(10000-pool.FeeBps)))
	numerator := new(uint256.Int).Mul(reserveOut, inAfterFee)
	denominator := new(uint256.Int).Mul(reserveIn, uint256.NewInt(10000))
	denominator.Add(denominator, inAfterFee)
	out := numerator.Div(numerator, denominator)

	reserveIn.Add(reserveIn, amountIn)
	reserveOut.Sub(reserveOut, out)

	return new(uint256.Int).Set(out), nil
}

// SharesOf returns a copy of the provider's share balance.
func (pm *PoolManager) SharesOf(id [32]byte, provider common.Address) (*uint256.Int, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	pool, exists := pm.Pools[id]
	if !exists {
		return nil, ErrPoolNotFound
	}
	if held, ok := pool.Shares[provider]; ok {
		return new(uint256.Int).Set(held), nil
	}
	return uint256.NewInt(0), nil
}
