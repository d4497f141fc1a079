// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package launchpad implements the confidential presale protocol: pools
// collect wrapped-payment contributions as ciphertext handles, clamp
// them obliviously against per-purchase bounds and the hard cap, and
// settle through a threshold-verified decryption of the two aggregate
// totals. Until that single reveal, no party (the pool owner included)
// can read an individual contribution or the running raise.
package launchpad

import (
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/PrivacyPad/PrivacyPad/fhe"
)

// PoolState is the lifecycle phase of a presale pool.
type PoolState uint8

const (
	// StateActive accepts purchases inside the sale window.
	StateActive PoolState = iota + 1
	// StateWaitingFinalize has requested decryption of the totals and
	// awaits the threshold result.
	StateWaitingFinalize
	// StateCancelled failed the soft cap; contributions are refundable.
	StateCancelled
	// StateFinalized met the soft cap; tokens are claimable.
	StateFinalized
)

func (s PoolState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateWaitingFinalize:
		return "waiting-finalize"
	case StateCancelled:
		return "cancelled"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidState          = errors.New("invalid state")
	ErrNotInPurchasePeriod   = errors.New("not in purchase period")
	ErrPresaleNotEnded       = errors.New("presale not ended")
	ErrAlreadyClaimed        = errors.New("already claimed")
	ErrAlreadyRefunded       = errors.New("already refunded")
	ErrNotOwner              = errors.New("not pool owner")
	ErrUnexpectedRequest     = errors.New("unexpected decryption request")
	ErrEmergencyDisabled     = errors.New("emergency refund disabled")
	ErrRefundDelayActive     = errors.New("refund delay not elapsed")
	ErrZeroHardCap           = errors.New("zero hard cap")
	ErrSoftCapExceedsHardCap = errors.New("soft cap exceeds hard cap")
	ErrEndBeforeStart        = errors.New("end before start")
	ErrInvalidOptions        = errors.New("invalid presale options")
	ErrBadTokenRate          = errors.New("token rate out of range")
	ErrNilToken              = errors.New("nil token binding")
	ErrUnknownPool           = errors.New("unknown pool")
)

// Pool is the full recorded state of one presale. Aggregate totals stay
// encrypted until finalization writes their decrypted mirrors into
// WeiRaised and TokensSold.
type Pool struct {
	ID     [32]byte
	Owner  common.Address
	Engine common.Address

	// Token, Cweth and Ctoken record the asset addresses the pool
	// settles across.
	Token  common.Address
	Cweth  common.Address
	Ctoken common.Address

	Options PresaleOptions

	// TokenPerEth is the sale rate in confidential token units per
	// confidential payment unit, fixed at creation.
	TokenPerEth uint64

	State PoolState

	// RaisedEnc and SoldEnc are the encrypted aggregate totals, in
	// payment units and token units respectively.
	RaisedEnc fhe.Handle
	SoldEnc   fhe.Handle

	// WeiRaised and TokensSold are the decrypted totals scaled back to
	// base units. Zero until finalization.
	WeiRaised  *big.Int
	TokensSold *big.Int

	// Contributions and Claimable hold per-buyer encrypted balances in
	// payment units and token units.
	Contributions map[common.Address]fhe.Handle
	Claimable     map[common.Address]fhe.Handle

	Claimed  map[common.Address]bool
	Refunded map[common.Address]bool

	// PendingRequest is the outstanding decryption request ID while
	// HasPending is set.
	PendingRequest [32]byte
	HasPending     bool

	// EmergencyDrained blocks finalization once an emergency refund
	// has moved escrowed funds out.
	EmergencyDrained bool

	// DexPool records the settlement pool created by addLiquidity.
	DexPool [32]byte
	HasDex  bool
}

// advance moves the pool to [next] if the transition is legal. Legal
// transitions are active -> waiting-finalize and waiting-finalize ->
// {cancelled, finalized}; the terminal states absorb.
func (p *Pool) advance(next PoolState) error {
	legal := false
	switch p.State {
	case StateActive:
		legal = next == StateWaitingFinalize
	case StateWaitingFinalize:
		legal = next == StateCancelled || next == StateFinalized
	}
	if !legal {
		return ErrInvalidState
	}
	p.State = next
	return nil
}
