// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var (
	dexAddr  = common.HexToAddress("0x0400000000000000000000000000000000000001")
	wethAddr = common.HexToAddress("0x0100000000000000000000000000000000000010")
	saleAddr = common.HexToAddress("0x0100000000000000000000000000000000000020")
	lpAddr   = common.HexToAddress("0x5555555555555555555555555555555555555555")
)

func TestPoolKeyCanonicalOrder(t *testing.T) {
	k1 := NewPoolKey(wethAddr, saleAddr)
	k2 := NewPoolKey(saleAddr, wethAddr)
	require.Equal(t, k1, k2)
	require.Equal(t, k1.ID(), k2.ID())
	require.True(t, k1.Token0.Cmp(k1.Token1) < 0)
}

func TestCreatePool(t *testing.T) {
	pm := NewPoolManager(dexAddr)

	id, err := pm.CreatePool(wethAddr, saleAddr, 30)
	require.NoError(t, err)
	require.Equal(t, NewPoolKey(wethAddr, saleAddr).ID(), id)

	pool, err := pm.GetPool(id)
	require.NoError(t, err)
	require.Equal(t, uint16(30), pool.FeeBps)
	require.True(t, pool.Reserve0.IsZero())
	require.True(t, pool.TotalShares.IsZero())

	// Same pair in either order collides.
	_, err = pm.CreatePool(saleAddr, wethAddr, 30)
	require.ErrorIs(t, err, ErrPoolExists)

	_, err = pm.CreatePool(wethAddr, wethAddr, 30)
	require.ErrorIs(t, err, ErrSameToken)

	_, err = pm.CreatePool(wethAddr, lpAddr, FeeMaxBps+1)
	require.ErrorIs(t, err, ErrInvalidFee)

	_, err = pm.GetPool([32]byte{0xff})
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func TestAddLiquidity(t *testing.T) {
	pm := NewPoolManager(dexAddr)
	id, err := pm.CreatePool(wethAddr, saleAddr, 30)
	require.NoError(t, err)

	// First deposit mints the geometric mean: sqrt(4e6 * 1e6) = 2e6.
	minted, err := pm.AddLiquidity(id, lpAddr, uint256.NewInt(4_000_000), uint256.NewInt(1_000_000))
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(2_000_000), minted)

	pool, err := pm.GetPool(id)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(4_000_000), pool.Reserve0)
	require.Equal(t, uint256.NewInt(1_000_000), pool.Reserve1)
	require.Equal(t, uint256.NewInt(2_000_000), pool.TotalShares)

	held, err := pm.SharesOf(id, lpAddr)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(2_000_000), held)

	// Proportional second deposit: half of each reserve mints half the shares.
	minted, err = pm.AddLiquidity(id, lpAddr, uint256.NewInt(2_000_000), uint256.NewInt(500_000))
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1_000_000), minted)

	// Lopsided deposit mints by the smaller ratio.
	minted, err = pm.AddLiquidity(id, lpAddr, uint256.NewInt(6_000_000), uint256.NewInt(150_000))
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(300_000), minted)

	_, err = pm.AddLiquidity(id, lpAddr, uint256.NewInt(0), uint256.NewInt(1))
	require.ErrorIs(t, err, ErrNoLiquidity)

	_, err = pm.AddLiquidity([32]byte{0x01}, lpAddr, uint256.NewInt(1), uint256.NewInt(1))
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func TestSwapKeepsConstantProduct(t *testing.T) {
	pm := NewPoolManager(dexAddr)
	id, err := pm.CreatePool(wethAddr, saleAddr, 0)
	require.NoError(t, err)
	_, err = pm.AddLiquidity(id, lpAddr, uint256.NewInt(1_000_000), uint256.NewInt(1_000_000))
	require.NoError(t, err)

	pool, err := pm.GetPool(id)
	require.NoError(t, err)
	k := new(uint256.Int).Mul(pool.Reserve0, pool.Reserve1)

	token0 := pool.Key.Token0
	out, err := pm.Swap(id, token0, uint256.NewInt(100_000))
	require.NoError(t, err)
	// 1e6*1e5/(1e6+1e5) floored
	require.Equal(t, uint256.NewInt(90_909), out)

	after := new(uint256.Int).Mul(pool.Reserve0, pool.Reserve1)
	require.True(t, after.Cmp(k) >= 0, "constant product must not shrink")

	_, err = pm.Swap(id, lpAddr, uint256.NewInt(1))
	require.ErrorIs(t, err, ErrBadToken)

	_, err = pm.Swap(id, token0, nil)
	require.ErrorIs(t, err, ErrNoLiquidity)
}

func TestSwapFee(t *testing.T) {
	pm := NewPoolManager(dexAddr)
	id, err := pm.CreatePool(wethAddr, saleAddr, 30)
	require.NoError(t, err)
	_, err = pm.AddLiquidity(id, lpAddr, uint256.NewInt(1_000_000), uint256.NewInt(1_000_000))
	require.NoError(t, err)

	pool, err := pm.GetPool(id)
	require.NoError(t, err)

	out, err := pm.Swap(id, pool.Key.Token0, uint256.NewInt(100_000))
	require.NoError(t, err)
	// The fee keeps the output below the no-fee quote of 1e5/1.1.
	require.True(t, out.Lt(uint256.NewInt(90_909)))
	require.Equal(t, uint256.NewInt(90_661), out)
}
