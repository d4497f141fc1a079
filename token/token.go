// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package token implements the minimal plaintext ERC-20 style asset the
// launchpad suite settles in: the sale token distributed to buyers and
// the underlying of each wrapped confidential asset. Callers are
// in-process precompiles that have already authenticated the acting
// account, so transfers take an explicit from address.
package token

import (
	"errors"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Token is an in-state fungible asset. Balance and allowance maps hold
// owned big.Int values; accessors return copies so callers cannot
// mutate ledger state through a returned pointer.
type Token struct {
	Address  common.Address
	Name     string
	Symbol   string
	Decimals uint8

	Supply     *big.Int
	Balances   map[common.Address]*big.Int
	Allowances map[common.Address]map[common.Address]*big.Int

	mu sync.RWMutex
}

// NewToken creates an empty token ledger identified by address.
func NewToken(address common.Address, name, symbol string, decimals uint8) *Token {
	return &Token{
		Address:    address,
		Name:       name,
		Symbol:     symbol,
		Decimals:   decimals,
		Supply:     new(big.Int),
		Balances:   make(map[common.Address]*big.Int),
		Allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Mint credits amount to recipient and grows the total supply.
func (t *Token) Mint(to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.credit(to, amount)
	t.Supply.Add(t.Supply, amount)
	return nil
}

// BalanceOf returns a copy of the holder's balance, zero if unknown.
func (t *Token) BalanceOf(holder common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if bal, ok := t.Balances[holder]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// TotalSupply returns a copy of the minted supply.
func (t *Token) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return new(big.Int).Set(t.Supply)
}

// Transfer moves amount from one holder to another. A zero amount is a
// valid no-op; moving more than the sender holds fails without any
// mutation.
func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.credit(to, amount)
	return nil
}

// Approve lets spender move up to amount of owner's balance.
func (t *Token) Approve(owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	grants, ok := t.Allowances[owner]
	if !ok {
		grants = make(map[common.Address]*big.Int)
		t.Allowances[owner] = grants
	}
	grants[spender] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns a copy of the remaining approval, zero if none.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if grants, ok := t.Allowances[owner]; ok {
		if remaining, ok := grants[spender]; ok {
			return new(big.Int).Set(remaining)
		}
	}
	return new(big.Int)
}

// TransferFrom moves amount from owner to recipient on spender's
// authority. Owners spend their own balance without an approval.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if spender != from {
		grants := t.Allowances[from]
		remaining := grants[spender]
		if remaining == nil || remaining.Cmp(amount) < 0 {
			return ErrInsufficientAllowance
		}
		if err := t.debit(from, amount); err != nil {
			return err
		}
		remaining.Sub(remaining, amount)
	} else if err := t.debit(from, amount); err != nil {
		return err
	}

	t.credit(to, amount)
	return nil
}

// debit and credit assume the write lock is held.

func (t *Token) debit(from common.Address, amount *big.Int) error {
	bal := t.Balances[from]
	if bal == nil || bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	bal.Sub(bal, amount)
	return nil
}

func (t *Token) credit(to common.Address, amount *big.Int) {
	if bal, ok := t.Balances[to]; ok {
		bal.Add(bal, amount)
		return
	}
	t.Balances[to] = new(big.Int).Set(amount)
}
