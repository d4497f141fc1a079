// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package launchpad

import (
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/PrivacyPad/PrivacyPad/dex"
	"github.com/PrivacyPad/PrivacyPad/fhe"
	"github.com/PrivacyPad/PrivacyPad/ledger"
	"github.com/PrivacyPad/PrivacyPad/oracle"
	"github.com/PrivacyPad/PrivacyPad/token"
)

// DefaultPoolFeeBps is the swap fee of the settlement pool created at
// addLiquidity.
const DefaultPoolFeeBps uint16 = 30

// Engine drives one presale pool. All encrypted arithmetic runs with
// the pool's engine address as the coprocessor actor, so aggregate
// handles never become readable by buyers or the owner. Callers pass
// the block timestamp explicitly; the engine itself never reads a
// clock.
type Engine struct {
	pool *Pool

	weth   *token.Token
	sale   *token.Token
	cweth  *ledger.ConfidentialToken
	ctoken *ledger.ConfidentialToken
	amm    *dex.PoolManager
	oracle *oracle.Oracle
	cop    *fhe.Coprocessor
	store  *Store
	log    log.Logger

	mu sync.Mutex
}

func newEngine(
	pool *Pool,
	weth, sale *token.Token,
	cweth, ctoken *ledger.ConfidentialToken,
	amm *dex.PoolManager,
	orc *oracle.Oracle,
	cop *fhe.Coprocessor,
	store *Store,
	logger log.Logger,
) *Engine {
	if cop == nil {
		cop = fhe.Default()
	}
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Engine{
		pool:   pool,
		weth:   weth,
		sale:   sale,
		cweth:  cweth,
		ctoken: ctoken,
		amm:    amm,
		oracle: orc,
		cop:    cop,
		store:  store,
		log:    logger,
	}
}

// Pool returns the live pool state.
func (e *Engine) Pool() *Pool {
	return e.pool
}

// ContributionOf returns the buyer's encrypted contribution handle.
func (e *Engine) ContributionOf(buyer common.Address) (fhe.Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.pool.Contributions[buyer]
	return h, ok
}

// ClaimableOf returns the buyer's encrypted claimable-token handle.
func (e *Engine) ClaimableOf(buyer common.Address) (fhe.Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.pool.Claimable[buyer]
	return h, ok
}

// PendingRequestID returns the outstanding decryption request, if any.
func (e *Engine) PendingRequestID() ([32]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.PendingRequest, e.pool.HasPending
}

func (e *Engine) trivial(value uint64) (fhe.Handle, error) {
	return e.cop.TrivialEncrypt(e.pool.Engine, value, fhe.TypeEuint64)
}

// Purchase escrows [amount] from [beneficiary] and credits the clamped
// remainder. The full requested amount is pulled first and the
// clamped-away part pushed back, so the ledger trace never reveals how
// much of a purchase was accepted. Clamping is oblivious: per-purchase
// maximum, then hard-cap overflow, then the first-purchase minimum.
func (e *Engine) Purchase(beneficiary common.Address, amount fhe.Handle, now uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.pool
	if p.State != StateActive {
		return ErrInvalidState
	}
	if now < p.Options.Start || now > p.Options.End {
		return ErrNotInPurchasePeriod
	}

	engine := p.Engine

	// Escrow the full requested amount. The ledger aborts the whole
	// purchase if the buyer's balance cannot cover it.
	if err := e.cop.Allow(engine, amount, e.cweth.Address); err != nil {
		return err
	}
	requested, err := e.cweth.ConfidentialTransferFrom(engine, beneficiary, engine, amount)
	if err != nil {
		return err
	}

	zero, err := e.trivial(0)
	if err != nil {
		return err
	}

	prior, hasPrior := p.Contributions[beneficiary]
	if !hasPrior {
		prior = zero
	}

	accepted := requested

	// Per-purchase maximum.
	if p.Options.MaxContribution > 0 {
		maxCt, err := e.trivial(p.Options.MaxContribution)
		if err != nil {
			return err
		}
		over, err := e.cop.Gt(engine, accepted, maxCt)
		if err != nil {
			return err
		}
		accepted, err = e.cop.Select(engine, over, maxCt, accepted)
		if err != nil {
			return err
		}
	}

	// Hard-cap overflow. The subtraction wraps when the cap is not
	// exceeded; the select discards that branch.
	hard, err := e.trivial(p.Options.HardCap)
	if err != nil {
		return err
	}
	newTotal, err := e.cop.Add(engine, p.RaisedEnc, accepted)
	if err != nil {
		return err
	}
	overCap, err := e.cop.Gt(engine, newTotal, hard)
	if err != nil {
		return err
	}
	excess, err := e.cop.Sub(engine, newTotal, hard)
	if err != nil {
		return err
	}
	capped, err := e.cop.Select(engine, overCap, excess, zero)
	if err != nil {
		return err
	}
	accepted, err = e.cop.Sub(engine, accepted, capped)
	if err != nil {
		return err
	}

	// First-purchase minimum: rejects the whole purchase only when the
	// buyer has no qualifying contribution yet.
	if p.Options.MinContribution > 0 {
		minCt, err := e.trivial(p.Options.MinContribution)
		if err != nil {
			return err
		}
		below, err := e.cop.Lt(engine, accepted, minCt)
		if err != nil {
			return err
		}
		first, err := e.cop.Eq(engine, prior, zero)
		if err != nil {
			return err
		}
		reject, err := e.cop.And(engine, below, first)
		if err != nil {
			return err
		}
		accepted, err = e.cop.Select(engine, reject, zero, accepted)
		if err != nil {
			return err
		}
	}

	// Push back whatever the clamps removed.
	refund, err := e.cop.Sub(engine, requested, accepted)
	if err != nil {
		return err
	}
	if err := e.cop.Allow(engine, refund, e.cweth.Address); err != nil {
		return err
	}
	if err := e.cweth.ConfidentialTransfer(engine, beneficiary, refund); err != nil {
		return err
	}

	// Accumulate aggregates and per-buyer balances.
	raised, err := e.cop.Add(engine, p.RaisedEnc, accepted)
	if err != nil {
		return err
	}
	tokens, err := e.cop.ScalarMul(engine, accepted, p.TokenPerEth)
	if err != nil {
		return err
	}
	sold, err := e.cop.Add(engine, p.SoldEnc, tokens)
	if err != nil {
		return err
	}

	contrib, err := e.cop.Add(engine, prior, accepted)
	if err != nil {
		return err
	}
	if err := e.cop.Allow(engine, contrib, beneficiary); err != nil {
		return err
	}
	if err := e.cop.Allow(engine, contrib, e.cweth.Address); err != nil {
		return err
	}

	priorClaim, ok := p.Claimable[beneficiary]
	if !ok {
		priorClaim = zero
	}
	claim, err := e.cop.Add(engine, priorClaim, tokens)
	if err != nil {
		return err
	}
	if err := e.cop.Allow(engine, claim, beneficiary); err != nil {
		return err
	}
	if err := e.cop.Allow(engine, claim, e.ctoken.Address); err != nil {
		return err
	}

	p.RaisedEnc = raised
	p.SoldEnc = sold
	p.Contributions[beneficiary] = contrib
	p.Claimable[beneficiary] = claim
	e.persist()

	e.log.Debug("purchase processed",
		log.String("pool", common.Hash(p.ID).Hex()),
		log.String("beneficiary", beneficiary.Hex()),
	)
	return nil
}

// RequestFinalize asks the oracle to decrypt the aggregate totals once
// the sale window has closed. Anyone may call it; repeat calls while a
// request is outstanding return the same request ID.
func (e *Engine) RequestFinalize(now uint64) ([32]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.pool
	if p.State != StateActive && p.State != StateWaitingFinalize {
		return [32]byte{}, ErrInvalidState
	}
	if now < p.Options.End {
		return [32]byte{}, ErrPresaleNotEnded
	}
	if p.HasPending {
		return p.PendingRequest, nil
	}

	id, err := e.oracle.RequestDecryption(p.Engine, []fhe.Handle{p.RaisedEnc, p.SoldEnc}, p.Engine)
	if err != nil {
		return [32]byte{}, err
	}
	if p.State == StateActive {
		if err := p.advance(StateWaitingFinalize); err != nil {
			return [32]byte{}, err
		}
	}
	p.PendingRequest = id
	p.HasPending = true
	e.persist()

	e.log.Info("finalization requested",
		log.String("pool", common.Hash(p.ID).Hex()),
		log.String("request", common.Hash(id).Hex()),
	)
	return id, nil
}

// Finalize consumes a threshold-verified decryption of the aggregate
// totals and settles the pool: below the soft cap the sale cancels and
// the full token custody returns to the owner; otherwise unsold tokens
// return, sold tokens are wrapped for claims, and the raise is unwrapped
// into plain payment tokens held by the engine.
func (e *Engine) Finalize(id [32]byte, plaintexts []uint64, sigs [][]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.pool
	if p.State != StateWaitingFinalize || p.EmergencyDrained {
		return ErrInvalidState
	}
	if !p.HasPending || id != p.PendingRequest {
		return ErrUnexpectedRequest
	}
	if len(plaintexts) != 2 {
		return oracle.ErrResultMismatch
	}
	if err := e.oracle.VerifyDecryption(p.Engine, id, plaintexts, sigs); err != nil {
		return err
	}
	p.HasPending = false

	ethUnits, soldUnits := plaintexts[0], plaintexts[1]
	p.WeiRaised = new(big.Int).Mul(new(big.Int).SetUint64(ethUnits), e.cweth.Rate())
	p.TokensSold = new(big.Int).Mul(new(big.Int).SetUint64(soldUnits), e.ctoken.Rate())

	if ethUnits < p.Options.SoftCap {
		if err := p.advance(StateCancelled); err != nil {
			return err
		}
		returned := new(big.Int).Add(p.Options.TokenPresale, p.Options.TokenAddLiquidity)
		if returned.Sign() > 0 {
			if err := e.sale.Transfer(p.Engine, p.Owner, returned); err != nil {
				return err
			}
		}
		e.persist()
		e.log.Info("presale cancelled",
			log.String("pool", common.Hash(p.ID).Hex()),
			log.Uint64("raisedUnits", ethUnits),
		)
		return nil
	}

	if err := p.advance(StateFinalized); err != nil {
		return err
	}

	// Return the unsold allocation plus the unused share of the
	// liquidity allocation.
	liqUsed := new(big.Int).Mul(p.Options.TokenAddLiquidity, p.TokensSold)
	liqUsed.Div(liqUsed, p.Options.TokenPresale)
	leftover := new(big.Int).Sub(p.Options.TokenPresale, p.TokensSold)
	leftover.Add(leftover, new(big.Int).Sub(p.Options.TokenAddLiquidity, liqUsed))
	if leftover.Sign() > 0 {
		if err := e.sale.Transfer(p.Engine, p.Owner, leftover); err != nil {
			return err
		}
	}

	// Back sold tokens with confidential units so claims can transfer
	// them, then unwrap the raise into plain payment tokens.
	if err := e.ctoken.Wrap(p.Engine, p.Engine, p.TokensSold); err != nil {
		return err
	}
	if raisedBal := e.cweth.BalanceOf(p.Engine); raisedBal != (fhe.Handle{}) {
		if err := e.cweth.Withdraw(p.Engine, p.Engine, p.Engine, raisedBal); err != nil {
			return err
		}
	}

	e.persist()
	e.log.Info("presale finalized",
		log.String("pool", common.Hash(p.ID).Hex()),
		log.Uint64("raisedUnits", ethUnits),
		log.Uint64("soldUnits", soldUnits),
	)
	return nil
}

// ClaimTokens sends a buyer their encrypted token allocation after a
// successful sale. A buyer with no recorded purchase receives an
// encrypted zero, so claim traffic reveals nothing about who bought.
func (e *Engine) ClaimTokens(buyer common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.pool
	if p.State != StateFinalized {
		return ErrInvalidState
	}
	if p.Claimed[buyer] {
		return ErrAlreadyClaimed
	}

	h, ok := p.Claimable[buyer]
	if !ok {
		var err error
		if h, err = e.trivial(0); err != nil {
			return err
		}
		if err = e.cop.Allow(p.Engine, h, e.ctoken.Address); err != nil {
			return err
		}
	}
	if err := e.ctoken.ConfidentialTransfer(p.Engine, buyer, h); err != nil {
		return err
	}
	p.Claimed[buyer] = true
	e.persist()

	e.log.Debug("tokens claimed",
		log.String("pool", common.Hash(p.ID).Hex()),
		log.String("buyer", buyer.Hex()),
	)
	return nil
}

// Refund returns a buyer's encrypted contribution after a cancelled
// sale. Like ClaimTokens, unknown buyers receive an encrypted zero.
func (e *Engine) Refund(buyer common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.pool
	if p.State != StateCancelled {
		return ErrInvalidState
	}
	if p.Refunded[buyer] {
		return ErrAlreadyRefunded
	}

	h, ok := p.Contributions[buyer]
	if !ok {
		var err error
		if h, err = e.trivial(0); err != nil {
			return err
		}
		if err = e.cop.Allow(p.Engine, h, e.cweth.Address); err != nil {
			return err
		}
	}
	if err := e.cweth.ConfidentialTransfer(p.Engine, buyer, h); err != nil {
		return err
	}
	p.Refunded[buyer] = true
	e.persist()

	e.log.Debug("contribution refunded",
		log.String("pool", common.Hash(p.ID).Hex()),
		log.String("buyer", buyer.Hex()),
	)
	return nil
}

// EmergencyRefund returns a buyer's contribution when finalization has
// stalled past the configured delay. A drained pool can no longer
// finalize; remaining buyers exit the same way.
func (e *Engine) EmergencyRefund(buyer common.Address, now uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.pool
	if p.Options.RefundDelay == 0 {
		return ErrEmergencyDisabled
	}
	if p.State != StateWaitingFinalize {
		return ErrInvalidState
	}
	if now < p.Options.End+p.Options.RefundDelay {
		return ErrRefundDelayActive
	}
	if p.Refunded[buyer] {
		return ErrAlreadyRefunded
	}

	h, contributed := p.Contributions[buyer]
	if !contributed {
		var err error
		if h, err = e.trivial(0); err != nil {
			return err
		}
		if err = e.cop.Allow(p.Engine, h, e.cweth.Address); err != nil {
			return err
		}
	}
	if err := e.cweth.ConfidentialTransfer(p.Engine, buyer, h); err != nil {
		return err
	}
	p.Refunded[buyer] = true
	if contributed {
		p.EmergencyDrained = true
	}
	e.persist()

	e.log.Info("emergency refund",
		log.String("pool", common.Hash(p.ID).Hex()),
		log.String("buyer", buyer.Hex()),
	)
	return nil
}

// AddLiquidity splits the finalized raise between the owner and a new
// settlement pool seeded at the sale price. Only the owner may trigger
// it, and only once: the transfers drain the engine's balances, so a
// second call fails on funds.
func (e *Engine) AddLiquidity(caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.pool
	if caller != p.Owner {
		return ErrNotOwner
	}
	if p.State != StateFinalized {
		return ErrInvalidState
	}

	wei, overflow := uint256.FromBig(p.WeiRaised)
	if overflow {
		return ErrBadTokenRate
	}
	lpWei := new(uint256.Int).Mul(wei, uint256.NewInt(p.Options.LiquidityBps))
	lpWei.Div(lpWei, uint256.NewInt(BpsDenominator))
	ownerWei := new(uint256.Int).Sub(wei, lpWei)

	if ownerWei.Sign() > 0 {
		if err := e.weth.Transfer(p.Engine, p.Owner, ownerWei.ToBig()); err != nil {
			return err
		}
	}
	if lpWei.Sign() == 0 {
		e.persist()
		return nil
	}

	liqTokens := new(big.Int).Mul(p.Options.TokenAddLiquidity, p.TokensSold)
	liqTokens.Div(liqTokens, p.Options.TokenPresale)
	liq, overflow := uint256.FromBig(liqTokens)
	if overflow {
		return ErrBadTokenRate
	}

	if err := e.weth.Transfer(p.Engine, e.amm.Address, lpWei.ToBig()); err != nil {
		return err
	}
	if err := e.sale.Transfer(p.Engine, e.amm.Address, liqTokens); err != nil {
		return err
	}

	id, err := e.amm.CreatePool(e.weth.Address, e.sale.Address, DefaultPoolFeeBps)
	if err != nil {
		return err
	}
	key := dex.NewPoolKey(e.weth.Address, e.sale.Address)
	amount0, amount1 := lpWei, liq
	if key.Token0 != e.weth.Address {
		amount0, amount1 = liq, lpWei
	}
	if _, err := e.amm.AddLiquidity(id, p.Owner, amount0, amount1); err != nil {
		return err
	}

	p.DexPool = id
	p.HasDex = true
	e.persist()

	e.log.Info("liquidity deployed",
		log.String("pool", common.Hash(p.ID).Hex()),
		log.String("dexPool", common.Hash(id).Hex()),
	)
	return nil
}

// persist journals the pool snapshot. Journal failures are logged and
// do not fail the operation; the in-memory pool remains authoritative.
func (e *Engine) persist() {
	if e.store == nil {
		return
	}
	if err := e.store.PutPool(e.pool); err != nil {
		e.log.Warn("pool journal write failed",
			log.String("pool", common.Hash(e.pool.ID).Hex()),
			log.String("error", err.Error()),
		)
	}
}
