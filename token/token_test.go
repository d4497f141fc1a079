// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package token

import (
	"math/big"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var (
	tokenAddr = common.HexToAddress("0x0100000000000000000000000000000000000099")
	alice     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob       = common.HexToAddress("0x2222222222222222222222222222222222222222")
	carol     = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func TestMintAndSupply(t *testing.T) {
	tok := NewToken(tokenAddr, "Test Token", "TST", 18)

	require.NoError(t, tok.Mint(alice, big.NewInt(1000)))
	require.NoError(t, tok.Mint(bob, big.NewInt(500)))
	require.NoError(t, tok.Mint(alice, big.NewInt(1)))

	require.Equal(t, int64(1001), tok.BalanceOf(alice).Int64())
	require.Equal(t, int64(500), tok.BalanceOf(bob).Int64())
	require.Equal(t, int64(1501), tok.TotalSupply().Int64())

	require.ErrorIs(t, tok.Mint(alice, big.NewInt(-1)), ErrInvalidAmount)
	require.ErrorIs(t, tok.Mint(alice, nil), ErrInvalidAmount)
}

func TestTransfer(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		wantErr error
		wantA   int64
		wantB   int64
	}{
		{name: "partial", amount: 300, wantA: 700, wantB: 300},
		{name: "exact balance", amount: 1000, wantA: 0, wantB: 1000},
		{name: "zero is a no-op", amount: 0, wantA: 1000, wantB: 0},
		{name: "over balance", amount: 1001, wantErr: ErrInsufficientBalance, wantA: 1000, wantB: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := NewToken(tokenAddr, "Test Token", "TST", 18)
			require.NoError(t, tok.Mint(alice, big.NewInt(1000)))

			err := tok.Transfer(alice, bob, big.NewInt(tt.amount))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.wantA, tok.BalanceOf(alice).Int64())
			require.Equal(t, tt.wantB, tok.BalanceOf(bob).Int64())
		})
	}
}

func TestTransferFromRequiresAllowance(t *testing.T) {
	tok := NewToken(tokenAddr, "Test Token", "TST", 18)
	require.NoError(t, tok.Mint(alice, big.NewInt(1000)))

	// No approval yet.
	err := tok.TransferFrom(bob, alice, carol, big.NewInt(10))
	require.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, tok.Approve(alice, bob, big.NewInt(100)))
	require.Equal(t, int64(100), tok.Allowance(alice, bob).Int64())

	require.NoError(t, tok.TransferFrom(bob, alice, carol, big.NewInt(60)))
	require.Equal(t, int64(40), tok.Allowance(alice, bob).Int64())
	require.Equal(t, int64(940), tok.BalanceOf(alice).Int64())
	require.Equal(t, int64(60), tok.BalanceOf(carol).Int64())

	// Spending past the remaining approval fails.
	err = tok.TransferFrom(bob, alice, carol, big.NewInt(41))
	require.ErrorIs(t, err, ErrInsufficientAllowance)

	// Owners move their own balance without an approval.
	require.NoError(t, tok.TransferFrom(alice, alice, bob, big.NewInt(40)))
	require.Equal(t, int64(900), tok.BalanceOf(alice).Int64())
}

func TestBalanceCopiesAreDetached(t *testing.T) {
	tok := NewToken(tokenAddr, "Test Token", "TST", 18)
	require.NoError(t, tok.Mint(alice, big.NewInt(77)))

	bal := tok.BalanceOf(alice)
	bal.SetInt64(0)
	require.Equal(t, int64(77), tok.BalanceOf(alice).Int64())

	supply := tok.TotalSupply()
	supply.SetInt64(0)
	require.Equal(t, int64(77), tok.TotalSupply().Int64())
}
