// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package launchpad

import "math/big"

// BpsDenominator is the basis-point scale used for the liquidity split.
const BpsDenominator = 10_000

// PresaleOptions fixes the public parameters of a presale at creation.
// Caps and contribution bounds are denominated in confidential payment
// units; token allocations are denominated in plaintext sale-token
// base units.
type PresaleOptions struct {
	// TokenPresale is the sale-token allocation sold to contributors.
	TokenPresale *big.Int
	// TokenAddLiquidity is the sale-token allocation reserved for the
	// settlement pool.
	TokenAddLiquidity *big.Int

	// HardCap is the maximum total raise in payment units.
	HardCap uint64
	// SoftCap is the minimum raise for the sale to succeed. Zero means
	// any outcome finalizes.
	SoftCap uint64

	// MinContribution gates a buyer's first qualifying purchase. Zero
	// disables the check.
	MinContribution uint64
	// MaxContribution bounds a single purchase. Zero disables the
	// check.
	MaxContribution uint64

	// Start and End bound the purchase window, inclusive, in Unix
	// seconds.
	Start uint64
	End   uint64

	// LiquidityBps is the share of the raise routed into the
	// settlement pool at addLiquidity, in basis points.
	LiquidityBps uint64

	// RefundDelay is the grace period after End before emergency
	// refunds open, in seconds. Zero disables emergency refunds.
	RefundDelay uint64
}

// Validate checks the options are internally consistent.
func (o *PresaleOptions) Validate() error {
	if o.TokenPresale == nil || o.TokenPresale.Sign() <= 0 {
		return ErrInvalidOptions
	}
	if o.TokenAddLiquidity == nil || o.TokenAddLiquidity.Sign() < 0 {
		return ErrInvalidOptions
	}
	if o.HardCap == 0 {
		return ErrZeroHardCap
	}
	if o.SoftCap > o.HardCap {
		return ErrSoftCapExceedsHardCap
	}
	if o.End < o.Start {
		return ErrEndBeforeStart
	}
	if o.MaxContribution > 0 && o.MinContribution > o.MaxContribution {
		return ErrInvalidOptions
	}
	if o.LiquidityBps > BpsDenominator {
		return ErrInvalidOptions
	}
	return nil
}

// clone deep-copies the options so a pool's parameters cannot be
// mutated through the caller's big.Int pointers.
func (o *PresaleOptions) clone() PresaleOptions {
	out := *o
	out.TokenPresale = new(big.Int).Set(o.TokenPresale)
	out.TokenAddLiquidity = new(big.Int).Set(o.TokenAddLiquidity)
	return out
}
