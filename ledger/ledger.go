// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger implements the encrypted ledger service backing the
// launchpad: per-account balances held as TFHE ciphertext handles, with
// confidential transfers, operator approvals, and wrap/withdraw
// conversion between plaintext asset amounts and fixed-point
// confidential units. One instance wraps the payment asset (cWETH) and
// one wraps each sale token.
package ledger

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/PrivacyPad/PrivacyPad/fhe"
)

var (
	ErrInvalidRate         = errors.New("rate must be positive")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrIndivisibleAmount   = errors.New("amount not a multiple of rate")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotOperator         = errors.New("not an authorized operator")
	ErrNoUnderlying        = errors.New("no underlying asset")
)

// Underlying is the plaintext side of a wrapped asset: Pull moves value
// from a holder into ledger custody, Push moves it back out.
type Underlying interface {
	Pull(from common.Address, amount *big.Int) error
	Push(to common.Address, amount *big.Int) error
}

// ConfidentialToken keeps encrypted balances for one wrapped asset.
// Balances map holders to ciphertext handles; every balance write
// re-grants the holder on the fresh handle so the holder can always
// decrypt or reuse its own balance. The only plaintext the ledger
// itself ever learns is the sufficiency guard bit of a transfer and the
// amount crossing the wrap/withdraw boundary.
type ConfidentialToken struct {
	Address common.Address
	Name    string
	Symbol  string

	// RateScale is the plaintext value of one confidential unit.
	RateScale *big.Int

	Balances  map[common.Address]fhe.Handle
	Operators map[common.Address]map[common.Address]uint64

	underlying Underlying
	cop        *fhe.Coprocessor
	log        log.Logger

	mu sync.Mutex
}

// NewConfidentialToken creates an empty confidential ledger over
// [underlying] at the given fixed-point rate.
func NewConfidentialToken(
	address common.Address,
	name, symbol string,
	rate *big.Int,
	underlying Underlying,
	cop *fhe.Coprocessor,
	logger log.Logger,
) (*ConfidentialToken, error) {
	if rate == nil || rate.Sign() <= 0 {
		return nil, ErrInvalidRate
	}
	if underlying == nil {
		return nil, ErrNoUnderlying
	}
	if cop == nil {
		cop = fhe.Default()
	}
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &ConfidentialToken{
		Address:    address,
		Name:       name,
		Symbol:     symbol,
		RateScale:  new(big.Int).Set(rate),
		Balances:   make(map[common.Address]fhe.Handle),
		Operators:  make(map[common.Address]map[common.Address]uint64),
		underlying: underlying,
		cop:        cop,
		log:        logger,
	}, nil
}

// Rate returns a copy of the fixed-point scale between plaintext and
// confidential precision.
func (ct *ConfidentialToken) Rate() *big.Int {
	return new(big.Int).Set(ct.RateScale)
}

// BalanceOf returns the holder's balance handle, or the zero handle if
// the holder has never held units.
func (ct *ConfidentialToken) BalanceOf(holder common.Address) fhe.Handle {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.Balances[holder]
}

// SetOperator authorizes spender to move owner's balance until expiry
// (Unix seconds). An expiry in the past revokes the authorization.
func (ct *ConfidentialToken) SetOperator(owner, spender common.Address, expiry uint64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	grants, ok := ct.Operators[owner]
	if !ok {
		grants = make(map[common.Address]uint64)
		ct.Operators[owner] = grants
	}
	grants[spender] = expiry
}

// IsOperator reports whether spender currently may move owner's balance.
func (ct *ConfidentialToken) IsOperator(owner, spender common.Address) bool {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.isOperator(owner, spender)
}

func (ct *ConfidentialToken) isOperator(owner, spender common.Address) bool {
	if owner == spender {
		return true
	}
	return ct.Operators[owner][spender] >= uint64(time.Now().Unix())
}

// Wrap pulls plainAmount of the underlying from [from] into custody and
// credits [to] with the corresponding confidential units. The amount
// must be an exact multiple of the rate.
func (ct *ConfidentialToken) Wrap(from, to common.Address, plainAmount *big.Int) error {
	if plainAmount == nil || plainAmount.Sign() < 0 {
		return ErrInvalidAmount
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	units, rem := new(big.Int).QuoRem(plainAmount, ct.RateScale, new(big.Int))
	if rem.Sign() != 0 {
		return ErrIndivisibleAmount
	}
	if !units.IsUint64() {
		return ErrInvalidAmount
	}

	if err := ct.underlying.Pull(from, plainAmount); err != nil {
		return err
	}

	minted, err := ct.cop.TrivialEncrypt(ct.Address, units.Uint64(), fhe.TypeEuint64)
	if err != nil {
		return err
	}
	bal, err := ct.balanceHandle(to)
	if err != nil {
		return err
	}
	next, err := ct.cop.Add(ct.Address, bal, minted)
	if err != nil {
		return err
	}
	if err := ct.setBalance(to, next); err != nil {
		return err
	}

	ct.log.Debug("wrapped",
		log.String("asset", ct.Symbol),
		log.String("to", to.Hex()),
		log.Uint64("units", units.Uint64()),
	)
	return nil
}

// Withdraw burns the confidential amount behind [amount] from [from]'s
// balance and pushes the corresponding plaintext out of custody to
// [to]. Unwrapping reveals the withdrawn amount; that is the point of
// the operation, so the decrypt here is the trusted boundary.
func (ct *ConfidentialToken) Withdraw(spender, from, to common.Address, amount fhe.Handle) error {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if !ct.isOperator(from, spender) {
		return ErrNotOperator
	}

	bal, err := ct.balanceHandle(from)
	if err != nil {
		return err
	}
	if err := ct.requireSufficient(bal, amount); err != nil {
		return err
	}

	next, err := ct.cop.Sub(ct.Address, bal, amount)
	if err != nil {
		return err
	}
	if err := ct.setBalance(from, next); err != nil {
		return err
	}

	units, err := ct.cop.Decrypt(amount)
	if err != nil {
		return err
	}
	plain := new(big.Int).Mul(new(big.Int).SetUint64(units), ct.RateScale)
	if err := ct.underlying.Push(to, plain); err != nil {
		return err
	}

	ct.log.Debug("withdrew",
		log.String("asset", ct.Symbol),
		log.String("from", from.Hex()),
		log.String("to", to.Hex()),
		log.Uint64("units", units),
	)
	return nil
}

// ConfidentialTransfer moves the encrypted amount from [from] to [to].
// A zero amount is a valid no-op; moving more than the sender holds
// aborts the call with no mutation.
func (ct *ConfidentialToken) ConfidentialTransfer(from, to common.Address, amount fhe.Handle) error {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.transfer(from, to, amount)
}

// ConfidentialTransferFrom moves the encrypted amount from [from] to
// [to] on [spender]'s authority and returns the handle of the
// transferred amount. The sufficiency check aborts the whole call when
// the sender's balance is short, so the returned amount always equals
// the requested one.
func (ct *ConfidentialToken) ConfidentialTransferFrom(spender, from, to common.Address, amount fhe.Handle) (fhe.Handle, error) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if !ct.isOperator(from, spender) {
		return fhe.Handle{}, ErrNotOperator
	}
	if err := ct.transfer(from, to, amount); err != nil {
		return fhe.Handle{}, err
	}
	return amount, nil
}

// transfer assumes the lock is held.
func (ct *ConfidentialToken) transfer(from, to common.Address, amount fhe.Handle) error {
	fromBal, err := ct.balanceHandle(from)
	if err != nil {
		return err
	}
	if err := ct.requireSufficient(fromBal, amount); err != nil {
		return err
	}
	if from == to {
		return nil
	}

	toBal, err := ct.balanceHandle(to)
	if err != nil {
		return err
	}

	nextFrom, err := ct.cop.Sub(ct.Address, fromBal, amount)
	if err != nil {
		return err
	}
	nextTo, err := ct.cop.Add(ct.Address, toBal, amount)
	if err != nil {
		return err
	}

	if err := ct.setBalance(from, nextFrom); err != nil {
		return err
	}
	return ct.setBalance(to, nextTo)
}

// requireSufficient decrypts only the guard bit of balance >= amount.
func (ct *ConfidentialToken) requireSufficient(balance, amount fhe.Handle) error {
	ok, err := ct.cop.Ge(ct.Address, balance, amount)
	if err != nil {
		return err
	}
	bit, err := ct.cop.Decrypt(ok)
	if err != nil {
		return err
	}
	if bit == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// balanceHandle returns the holder's balance handle, materializing an
// encrypted zero on first touch. Assumes the lock is held.
func (ct *ConfidentialToken) balanceHandle(holder common.Address) (fhe.Handle, error) {
	if h, ok := ct.Balances[holder]; ok {
		return h, nil
	}
	zero, err := ct.cop.TrivialEncrypt(ct.Address, 0, fhe.TypeEuint64)
	if err != nil {
		return fhe.Handle{}, err
	}
	if err := ct.setBalance(holder, zero); err != nil {
		return fhe.Handle{}, err
	}
	return zero, nil
}

// setBalance records the holder's new balance handle and re-grants the
// holder on it. Assumes the lock is held.
func (ct *ConfidentialToken) setBalance(holder common.Address, h fhe.Handle) error {
	if err := ct.cop.Allow(ct.Address, h, holder); err != nil {
		return err
	}
	ct.Balances[holder] = h
	return nil
}
