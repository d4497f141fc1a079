// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package launchpad

import (
	"crypto/ecdsa"
	"crypto/rand"
	"math/big"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/PrivacyPad/PrivacyPad/dex"
	"github.com/PrivacyPad/PrivacyPad/fhe"
	"github.com/PrivacyPad/PrivacyPad/ledger"
	"github.com/PrivacyPad/PrivacyPad/oracle"
	"github.com/PrivacyPad/PrivacyPad/token"
)

var (
	ownerAddr = common.HexToAddress("0xaa00000000000000000000000000000000000001")
	aliceAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bobAddr   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	carolAddr = common.HexToAddress("0x3333333333333333333333333333333333333333")

	wethAddr  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	saleAddr  = common.HexToAddress("0x2000000000000000000000000000000000000001")
	cwethAddr = common.HexToAddress("0x0700000000000000000000000000000000000002")
	ctokAddr  = common.HexToAddress("0x0700000000000000000000000000000000000003")
	ammAddr   = common.HexToAddress("0x0400000000000000000000000000000000000001")
)

// gwei precision: one confidential unit is 1e9 base units.
var unitRate = big.NewInt(1_000_000_000)

const (
	optStart uint64 = 1_000
	optEnd   uint64 = 2_000
	midSale  uint64 = 1_500
)

type launchpadFixture struct {
	cop     *fhe.Coprocessor
	weth    *token.Token
	sale    *token.Token
	cweth   *ledger.ConfidentialToken
	ctoken  *ledger.ConfidentialToken
	orc     *oracle.Oracle
	amm     *dex.PoolManager
	store   *Store
	factory *Factory
}

func newLaunchpadFixture(t *testing.T) *launchpadFixture {
	t.Helper()

	cop := fhe.NewCoprocessor(log.NewNoOpLogger())
	weth := token.NewToken(wethAddr, "Wrapped ETH", "WETH", 18)
	sale := token.NewToken(saleAddr, "Launch Token", "LNCH", 18)

	cweth, err := ledger.NewConfidentialToken(
		cwethAddr, "Confidential WETH", "cWETH", unitRate,
		ledger.TokenCustody{Token: weth, Custody: cwethAddr}, cop, nil,
	)
	require.NoError(t, err)
	ctoken, err := ledger.NewConfidentialToken(
		ctokAddr, "Confidential LNCH", "cLNCH", unitRate,
		ledger.TokenCustody{Token: sale, Custody: ctokAddr}, cop, nil,
	)
	require.NoError(t, err)

	orc := oracle.NewOracle(cop, log.NewNoOpLogger())
	for i := 0; i < 4; i++ {
		orc.AddSigner(genKey(t))
	}

	amm := dex.NewPoolManager(ammAddr)
	store := NewStore(memdb.New(), nil)

	return &launchpadFixture{
		cop:     cop,
		weth:    weth,
		sale:    sale,
		cweth:   cweth,
		ctoken:  ctoken,
		orc:     orc,
		amm:     amm,
		store:   store,
		factory: NewFactory(cop, orc, amm, store, nil),
	}
}

func genKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	require.NoError(t, err)
	return key
}

// defaultOptions sells 1e15 base units at hard cap 10, giving a rate of
// 100000 token units per payment unit.
func defaultOptions() PresaleOptions {
	return PresaleOptions{
		TokenPresale:      big.NewInt(1_000_000_000_000_000),
		TokenAddLiquidity: big.NewInt(500_000_000_000_000),
		HardCap:           10,
		SoftCap:           5,
		Start:             optStart,
		End:               optEnd,
		LiquidityBps:      5_000,
	}
}

// createPool mints the owner's allocation and opens a presale.
func (f *launchpadFixture) createPool(t *testing.T, opts PresaleOptions) *Engine {
	t.Helper()

	total := new(big.Int).Add(opts.TokenPresale, opts.TokenAddLiquidity)
	require.NoError(t, f.sale.Mint(ownerAddr, total))

	engine, err := f.factory.CreatePresale(ownerAddr, f.weth, f.sale, f.cweth, f.ctoken, opts)
	require.NoError(t, err)
	return engine
}

// fundBuyer wraps [units] payment units for [buyer] and authorizes the
// pool engine to pull from them.
func (f *launchpadFixture) fundBuyer(t *testing.T, buyer, engineAddr common.Address, units uint64) {
	t.Helper()

	plain := new(big.Int).Mul(new(big.Int).SetUint64(units), unitRate)
	require.NoError(t, f.weth.Mint(buyer, plain))
	require.NoError(t, f.cweth.Wrap(buyer, buyer, plain))
	f.cweth.SetOperator(buyer, engineAddr, uint64(time.Now().Unix())+3_600)
}

// purchase submits an encrypted purchase the way verified inputs arrive:
// the buyer owns the handle and has granted the engine.
func (f *launchpadFixture) purchase(t *testing.T, e *Engine, buyer common.Address, units, now uint64) error {
	t.Helper()

	h, err := f.cop.Encrypt(buyer, units, fhe.TypeEuint64)
	require.NoError(t, err)
	require.NoError(t, f.cop.Allow(buyer, h, e.Pool().Engine))
	return e.Purchase(buyer, h, now)
}

func (f *launchpadFixture) decrypt(t *testing.T, h fhe.Handle) uint64 {
	t.Helper()

	v, err := f.cop.Decrypt(h)
	require.NoError(t, err)
	return v
}

// cwethUnits returns the decrypted confidential payment balance.
func (f *launchpadFixture) cwethUnits(t *testing.T, holder common.Address) uint64 {
	t.Helper()

	h := f.cweth.BalanceOf(holder)
	if h == (fhe.Handle{}) {
		return 0
	}
	return f.decrypt(t, h)
}

func (f *launchpadFixture) ctokenUnits(t *testing.T, holder common.Address) uint64 {
	t.Helper()

	h := f.ctoken.BalanceOf(holder)
	if h == (fhe.Handle{}) {
		return 0
	}
	return f.decrypt(t, h)
}

func (f *launchpadFixture) contribution(t *testing.T, e *Engine, buyer common.Address) uint64 {
	t.Helper()

	h, ok := e.ContributionOf(buyer)
	if !ok {
		return 0
	}
	return f.decrypt(t, h)
}

func (f *launchpadFixture) claimable(t *testing.T, e *Engine, buyer common.Address) uint64 {
	t.Helper()

	h, ok := e.ClaimableOf(buyer)
	if !ok {
		return 0
	}
	return f.decrypt(t, h)
}

// settle requests finalization, fulfills it through the oracle and
// feeds the signed result back.
func (f *launchpadFixture) settle(t *testing.T, e *Engine, now uint64) {
	t.Helper()

	id, err := e.RequestFinalize(now)
	require.NoError(t, err)
	pts, sigs, err := f.orc.Fulfill(id)
	require.NoError(t, err)
	require.NoError(t, e.Finalize(id, pts, sigs))
}

func TestOptionsValidate(t *testing.T) {
	base := defaultOptions()

	tests := []struct {
		name   string
		mutate func(*PresaleOptions)
		want   error
	}{
		{"valid", func(o *PresaleOptions) {}, nil},
		{"nil presale allocation", func(o *PresaleOptions) { o.TokenPresale = nil }, ErrInvalidOptions},
		{"zero presale allocation", func(o *PresaleOptions) { o.TokenPresale = big.NewInt(0) }, ErrInvalidOptions},
		{"negative liquidity allocation", func(o *PresaleOptions) { o.TokenAddLiquidity = big.NewInt(-1) }, ErrInvalidOptions},
		{"zero hard cap", func(o *PresaleOptions) { o.HardCap = 0 }, ErrZeroHardCap},
		{"soft cap exceeds hard cap", func(o *PresaleOptions) { o.SoftCap = o.HardCap + 1 }, ErrSoftCapExceedsHardCap},
		{"end before start", func(o *PresaleOptions) { o.Start = o.End + 1 }, ErrEndBeforeStart},
		{"min above max", func(o *PresaleOptions) { o.MinContribution = 5; o.MaxContribution = 4 }, ErrInvalidOptions},
		{"bps above denominator", func(o *PresaleOptions) { o.LiquidityBps = BpsDenominator + 1 }, ErrInvalidOptions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := base.clone()
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreatePresale(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping TFHE launchpad test in short mode")
	}
	f := newLaunchpadFixture(t)

	engine := f.createPool(t, defaultOptions())
	p := engine.Pool()

	require.Equal(t, StateActive, p.State)
	require.Equal(t, uint64(100_000), p.TokenPerEth)
	require.Equal(t, ownerAddr, p.Owner)
	require.NotEqual(t, common.Address{}, p.Engine)

	// Full allocation moved into engine custody.
	total := new(big.Int).Add(p.Options.TokenPresale, p.Options.TokenAddLiquidity)
	require.Equal(t, total, f.sale.BalanceOf(p.Engine))
	require.Equal(t, int64(0), f.sale.BalanceOf(ownerAddr).Int64())

	// Aggregates start as encrypted zeros.
	require.Equal(t, uint64(0), f.decrypt(t, p.RaisedEnc))
	require.Equal(t, uint64(0), f.decrypt(t, p.SoldEnc))

	if _, ok := f.factory.Engine(p.ID); !ok {
		t.Fatalf("pool %x not registered", p.ID)
	}

	t.Run("allocation below rate", func(t *testing.T) {
		opts := defaultOptions()
		opts.TokenPresale = big.NewInt(5_000_000_000) // 5 units at hard cap 10
		_, err := f.factory.CreatePresale(ownerAddr, f.weth, f.sale, f.cweth, f.ctoken, opts)
		require.ErrorIs(t, err, ErrBadTokenRate)
	})

	t.Run("invalid options rejected", func(t *testing.T) {
		opts := defaultOptions()
		opts.SoftCap = opts.HardCap + 1
		_, err := f.factory.CreatePresale(ownerAddr, f.weth, f.sale, f.cweth, f.ctoken, opts)
		require.ErrorIs(t, err, ErrSoftCapExceedsHardCap)
	})

	t.Run("missing token binding", func(t *testing.T) {
		_, err := f.factory.CreatePresale(ownerAddr, f.weth, f.sale, f.cweth, nil, defaultOptions())
		require.ErrorIs(t, err, ErrNilToken)
	})

	t.Run("owner without allocation", func(t *testing.T) {
		_, err := f.factory.CreatePresale(carolAddr, f.weth, f.sale, f.cweth, f.ctoken, defaultOptions())
		require.ErrorIs(t, err, token.ErrInsufficientBalance)
	})
}

func TestPurchaseAccounting(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping TFHE launchpad test in short mode")
	}
	f := newLaunchpadFixture(t)
	engine := f.createPool(t, defaultOptions())
	p := engine.Pool()

	f.fundBuyer(t, aliceAddr, p.Engine, 5)
	require.NoError(t, f.purchase(t, engine, aliceAddr, 5, midSale))

	require.Equal(t, uint64(5), f.contribution(t, engine, aliceAddr))
	require.Equal(t, uint64(500_000), f.claimable(t, engine, aliceAddr))
	require.Equal(t, uint64(5), f.decrypt(t, p.RaisedEnc))
	require.Equal(t, uint64(500_000), f.decrypt(t, p.SoldEnc))

	// Full amount escrowed, nothing refunded.
	require.Equal(t, uint64(0), f.cwethUnits(t, aliceAddr))
	require.Equal(t, uint64(5), f.cwethUnits(t, p.Engine))
}

func TestPurchaseHardCapClamp(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping TFHE launchpad test in short mode")
	}
	f := newLaunchpadFixture(t)
	engine := f.createPool(t, defaultOptions())
	p := engine.Pool()

	f.fundBuyer(t, aliceAddr, p.Engine, 7)
	f.fundBuyer(t, bobAddr, p.Engine, 7)

	require.NoError(t, f.purchase(t, engine, aliceAddr, 7, midSale))
	require.NoError(t, f.purchase(t, engine, bobAddr, 7, midSale))

	// Bob's purchase only fits up to the cap; the rest bounced back.
	require.Equal(t, uint64(7), f.contribution(t, engine, aliceAddr))
	require.Equal(t, uint64(3), f.contribution(t, engine, bobAddr))
	require.Equal(t, uint64(4), f.cwethUnits(t, bobAddr))
	require.Equal(t, uint64(10), f.decrypt(t, p.RaisedEnc))

	// At the cap every further purchase nets to zero.
	f.fundBuyer(t, aliceAddr, p.Engine, 1)
	require.NoError(t, f.purchase(t, engine, aliceAddr, 1, midSale))
	require.Equal(t, uint64(7), f.contribution(t, engine, aliceAddr))
	require.Equal(t, uint64(1), f.cwethUnits(t, aliceAddr))
	require.Equal(t, uint64(10), f.decrypt(t, p.RaisedEnc))
}

func TestPurchaseMaxClamp(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping TFHE launchpad test in short mode")
	}
	f := newLaunchpadFixture(t)
	opts := defaultOptions()
	opts.MaxContribution = 3
	engine := f.createPool(t, opts)
	p := engine.Pool()

	f.fundBuyer(t, aliceAddr, p.Engine, 5)
	require.NoError(t, f.purchase(t, engine, aliceAddr, 5, midSale))

	require.Equal(t, uint64(3), f.contribution(t, engine, aliceAddr))
	require.Equal(t, uint64(300_000), f.claimable(t, engine, aliceAddr))
	require.Equal(t, uint64(2), f.cwethUnits(t, aliceAddr))
}

func TestPurchaseMinGate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping TFHE launchpad test in short mode")
	}
	f := newLaunchpadFixture(t)
	opts := defaultOptions()
	opts.MinContribution = 2
	engine := f.createPool(t, opts)
	p := engine.Pool()

	f.fundBuyer(t, aliceAddr, p.Engine, 4)

	// Below the minimum with no prior contribution: fully bounced.
	require.NoError(t, f.purchase(t, engine, aliceAddr, 1, midSale))
	require.Equal(t, uint64(0), f.contribution(t, engine, aliceAddr))
	require.Equal(t, uint64(4), f.cwethUnits(t, aliceAddr))

	// Qualifying purchase establishes the contribution.
	require.NoError(t, f.purchase(t, engine, aliceAddr, 2, midSale))
	require.Equal(t, uint64(2), f.contribution(t, engine, aliceAddr))

	// Top-ups below the minimum are fine once qualified.
	require.NoError(t, f.purchase(t, engine, aliceAddr, 1, midSale))
	require.Equal(t, uint64(3), f.contribution(t, engine, aliceAddr))
	require.Equal(t, uint64(300_000), f.claimable(t, engine, aliceAddr))
	require.Equal(t, uint64(1), f.cwethUnits(t, aliceAddr))
}

// TestPurchaseClampSequence runs one buyer through every clamp in
// order: min gate, qualifying buy, top-up, max clamp.
func TestPurchaseClampSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping TFHE launchpad test in short mode")
	}
	f := newLaunchpadFixture(t)
	opts := defaultOptions()
	opts.HardCap = 100
	opts.SoftCap = 50
	opts.MinContribution = 5
	opts.MaxContribution = 20
	engine := f.createPool(t, opts)
	p := engine.Pool()

	f.fundBuyer(t, aliceAddr, p.Engine, 37)

	steps := []struct {
		buy            uint64
		wantCumulative uint64
	}{
		{1, 0},   // below min, first purchase
		{5, 5},   // qualifies
		{1, 6},   // top-up under min accepted
		{30, 26}, // clamped to per-purchase max
	}
	for _, step := range steps {
		require.NoError(t, f.purchase(t, engine, aliceAddr, step.buy, midSale))
		require.Equal(t, step.wantCumulative, f.contribution(t, engine, aliceAddr))
	}

	require.Equal(t, uint64(26), f.decrypt(t, p.RaisedEnc))
	require.Equal(t, uint64(260_000), f.claimable(t, engine, aliceAddr))
	require.Equal(t, uint64(11), f.cwethUnits(t, aliceAddr))
}

func TestPurchaseWindowAndState(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping TFHE launchpad test in short mode")
	}
	f := newLaunchpadFixture(t)
	engine := f.createPool(t, defaultOptions())
	p := engine.Pool()

	f.fundBuyer(t, aliceAddr, p.Engine, 6)

	require.ErrorIs(t, f.purchase(t, engine, aliceAddr, 1, optStart-1), ErrNotInPurchasePeriod)
	require.ErrorIs(t, f.purchase(t, engine, aliceAddr, 1, optEnd+1), ErrNotInPurchasePeriod)

	// Window bounds are inclusive.
	require.NoError(t, f.purchase(t, engine, aliceAddr, 1, optStart))
	require.NoError(t, f.purchase(t, engine, aliceAddr, 1, optEnd))

	// Without operator authorization the pull aborts.
	plain := new(big.Int).Mul(big.NewInt(3), unitRate)
	require.NoError(t, f.weth.Mint(bobAddr, plain))
	require.NoError(t, f.cweth.Wrap(bobAddr, bobAddr, plain))
	require.ErrorIs(t, f.purchase(t, engine, bobAddr, 1, midSale), ledger.ErrNotOperator)

	// Purchases above the escrowed balance abort before any clamping.
	require.ErrorIs(t, f.purchase(t, engine, aliceAddr, 10, midSale), ledger.ErrInsufficientBalance)

	// Once finalization starts, purchases are over.
	_, err := engine.RequestFinalize(optEnd)
	require.NoError(t, err)
	require.ErrorIs(t, f.purchase(t, engine, aliceAddr, 1, optEnd), ErrInvalidState)
}

func TestFinalizeSuccess(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping TFHE launchpad test in short mode")
	}
	f := newLaunchpadFixture(t)
	engine := f.createPool(t, defaultOptions())
	p := engine.Pool()

	f.fundBuyer(t, aliceAddr, p.Engine, 7)
	f.fundBuyer(t, bobAddr, p.Engine, 3)
	require.NoError(t, f.purchase(t, engine, aliceAddr, 7, midSale))
	require.NoError(t, f.purchase(t, engine, bobAddr, 3, midSale))

	// The window must be over before finalization can start.
	_, err := engine.RequestFinalize(optEnd - 1)
	require.ErrorIs(t, err, ErrPresaleNotEnded)

	id, err := engine.RequestFinalize(optEnd)
	require.NoError(t, err)
	require.Equal(t, StateWaitingFinalize, p.State)

	// Retry while pending returns the same request.
	again, err := engine.RequestFinalize(optEnd + 10)
	require.NoError(t, err)
	require.Equal(t, id, again)

	pending, has := engine.PendingRequestID()
	require.True(t, has)
	require.Equal(t, id, pending)

	// Finalizing against a different request is rejected.
	pts, sigs, err := f.orc.Fulfill(id)
	require.NoError(t, err)
	require.Equal(t, []uint64{10, 1_000_000}, pts)
	require.ErrorIs(t, engine.Finalize([32]byte{0xff}, pts, sigs), ErrUnexpectedRequest)

	require.NoError(t, engine.Finalize(id, pts, sigs))
	require.Equal(t, StateFinalized, p.State)

	// Decrypted totals scale back to base units.
	require.Equal(t, new(big.Int).Mul(big.NewInt(10), unitRate), p.WeiRaised)
	require.Equal(t, big.NewInt(1_000_000_000_000_000), p.TokensSold)

	// Sold out exactly: nothing returned to the owner, raise unwrapped
	// into plain payment tokens, sold tokens backed for claims.
	require.Equal(t, int64(0), f.sale.BalanceOf(ownerAddr).Int64())
	require.Equal(t, p.WeiRaised, f.weth.BalanceOf(p.Engine))
	require.Equal(t, uint64(1_000_000), f.ctokenUnits(t, p.Engine))
	require.Equal(t, uint64(0), f.cwethUnits(t, p.Engine))

	_, has = engine.PendingRequestID()
	require.False(t, has)

	// Terminal state: no more finalization rounds.
	require.ErrorIs(t, engine.Finalize(id, pts, sigs), ErrInvalidState)
	_, err = engine.RequestFinalize(optEnd + 20)
	require.ErrorIs(t, err, ErrInvalidState)

	// Claims pay out encrypted allocations; strangers get zero.
	require.NoError(t, engine.ClaimTokens(aliceAddr))
	require.NoError(t, engine.ClaimTokens(bobAddr))
	require.NoError(t, engine.ClaimTokens(carolAddr))
	require.Equal(t, uint64(700_000), f.ctokenUnits(t, aliceAddr))
	require.Equal(t, uint64(300_000), f.ctokenUnits(t, bobAddr))
	require.Equal(t, uint64(0), f.ctokenUnits(t, carolAddr))
	require.ErrorIs(t, engine.ClaimTokens(aliceAddr), ErrAlreadyClaimed)

	// Refunds belong to cancelled sales only.
	require.ErrorIs(t, engine.Refund(aliceAddr), ErrInvalidState)
}

// TestOversubscribedLifecycle runs a full oversubscribed sale. The
// purchase that crosses the cap takes a partial fill and later buyers
// bounce entirely; settlement then pays claims for what was accepted.
func TestOversubscribedLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping TFHE launchpad test in short mode")
	}
	f := newLaunchpadFixture(t)
	opts := defaultOptions()
	opts.SoftCap = 6
	engine := f.createPool(t, opts)
	p := engine.Pool()

	f.fundBuyer(t, aliceAddr, p.Engine, 1)
	f.fundBuyer(t, bobAddr, p.Engine, 10)
	f.fundBuyer(t, carolAddr, p.Engine, 6)

	// Bob crosses the cap and keeps only the headroom of 9. Carol
	// arrives at the cap and gets everything back.
	require.NoError(t, f.purchase(t, engine, aliceAddr, 1, midSale))
	require.NoError(t, f.purchase(t, engine, bobAddr, 10, midSale))
	require.NoError(t, f.purchase(t, engine, carolAddr, 6, midSale))

	require.Equal(t, uint64(1), f.contribution(t, engine, aliceAddr))
	require.Equal(t, uint64(9), f.contribution(t, engine, bobAddr))
	require.Equal(t, uint64(0), f.contribution(t, engine, carolAddr))
	require.Equal(t, uint64(0), f.cwethUnits(t, aliceAddr))
	require.Equal(t, uint64(1), f.cwethUnits(t, bobAddr))
	require.Equal(t, uint64(6), f.cwethUnits(t, carolAddr))
	require.Equal(t, uint64(10), f.decrypt(t, p.RaisedEnc))
	require.Equal(t, uint64(1_000_000), f.decrypt(t, p.SoldEnc))

	f.settle(t, engine, optEnd)
	require.Equal(t, StateFinalized, p.State)
	require.Equal(t, new(big.Int).Mul(big.NewInt(10), unitRate), p.WeiRaised)
	require.Equal(t, big.NewInt(1_000_000_000_000_000), p.TokensSold)

	// Sold out: the owner gets no tokens back and the full raise sits
	// unwrapped with the engine.
	require.Equal(t, int64(0), f.sale.BalanceOf(ownerAddr).Int64())
	require.Equal(t, p.WeiRaised, f.weth.BalanceOf(p.Engine))

	require.NoError(t, engine.ClaimTokens(aliceAddr))
	require.NoError(t, engine.ClaimTokens(bobAddr))
	require.NoError(t, engine.ClaimTokens(carolAddr))
	require.Equal(t, uint64(100_000), f.ctokenUnits(t, aliceAddr))
	require.Equal(t, uint64(900_000), f.ctokenUnits(t, bobAddr))
	require.Equal(t, uint64(0), f.ctokenUnits(t, carolAddr))
	require.ErrorIs(t, engine.ClaimTokens(aliceAddr), ErrAlreadyClaimed)
}

// TestFinalizeAtSoftCapBoundary pins the cancel condition to strictly
// below the soft cap: an exact-cap raise settles and the unsold and
// unused-liquidity allocations flow back to the owner.
func TestFinalizeAtSoftCapBoundary(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping TFHE launchpad test in short mode")
	}
	f := newLaunchpadFixture(t)
	engine := f.createPool(t, defaultOptions())
	p := engine.Pool()

	f.fundBuyer(t, aliceAddr, p.Engine, 5)
	require.NoError(t, f.purchase(t, engine, aliceAddr, 5, midSale))

	f.settle(t, engine, optEnd)
	require.Equal(t, StateFinalized, p.State)

	// Sold half: 5e14 unsold plus the unused half of the 5e14
	// liquidity allocation returns to the owner.
	require.Equal(t, big.NewInt(750_000_000_000_000), f.sale.BalanceOf(ownerAddr))
	require.Equal(t, uint64(500_000), f.ctokenUnits(t, p.Engine))
	require.Equal(t, big.NewInt(250_000_000_000_000), f.sale.BalanceOf(p.Engine))
}

func TestFinalizeCancelAndRefund(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping TFHE launchpad test in short mode")
	}
	f := newLaunchpadFixture(t)
	engine := f.createPool(t, defaultOptions())
	p := engine.Pool()

	f.fundBuyer(t, aliceAddr, p.Engine, 3)
	require.NoError(t, f.purchase(t, engine, aliceAddr, 3, midSale))

	f.settle(t, engine, optEnd)
	require.Equal(t, StateCancelled, p.State)
	require.Equal(t, new(big.Int).Mul(big.NewInt(3), unitRate), p.WeiRaised)

	// The whole token custody went back to the owner.
	total := new(big.Int).Add(p.Options.TokenPresale, p.Options.TokenAddLiquidity)
	require.Equal(t, total, f.sale.BalanceOf(ownerAddr))
	require.Equal(t, int64(0), f.sale.BalanceOf(p.Engine).Int64())

	// Contributions come back encrypted; claims are off the table.
	require.ErrorIs(t, engine.ClaimTokens(aliceAddr), ErrInvalidState)
	require.NoError(t, engine.Refund(aliceAddr))
	require.Equal(t, uint64(3), f.cwethUnits(t, aliceAddr))
	require.ErrorIs(t, engine.Refund(aliceAddr), ErrAlreadyRefunded)

	// A stranger's refund is a zero transfer, not an error.
	require.NoError(t, engine.Refund(bobAddr))
	require.Equal(t, uint64(0), f.cwethUnits(t, bobAddr))
}

func TestFinalizeRejectsForgedResult(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping TFHE launchpad test in short mode")
	}
	f := newLaunchpadFixture(t)
	engine := f.createPool(t, defaultOptions())
	p := engine.Pool()

	f.fundBuyer(t, aliceAddr, p.Engine, 6)
	require.NoError(t, f.purchase(t, engine, aliceAddr, 6, midSale))

	id, err := engine.RequestFinalize(optEnd)
	require.NoError(t, err)
	pts, sigs, err := f.orc.Fulfill(id)
	require.NoError(t, err)

	// Tampered totals break the signed digest.
	forged := []uint64{pts[0] + 1, pts[1]}
	require.ErrorIs(t, engine.Finalize(id, forged, sigs), oracle.ErrInvalidSignatureSet)

	// Too few signatures fail the threshold.
	require.ErrorIs(t, engine.Finalize(id, pts, sigs[:2]), oracle.ErrInvalidSignatureSet)

	// Wrong result arity is rejected before verification.
	require.ErrorIs(t, engine.Finalize(id, []uint64{6}, sigs), oracle.ErrResultMismatch)

	// Nothing consumed: the honest result still settles the pool.
	require.Equal(t, StateWaitingFinalize, p.State)
	require.NoError(t, engine.Finalize(id, pts, sigs))
	require.Equal(t, StateFinalized, p.State)
}

func TestEmergencyRefund(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping TFHE launchpad test in short mode")
	}
	f := newLaunchpadFixture(t)

	t.Run("disabled by default", func(t *testing.T) {
		engine := f.createPool(t, defaultOptions())
		require.ErrorIs(t, engine.EmergencyRefund(aliceAddr, optEnd+1_000_000), ErrEmergencyDisabled)
	})

	opts := defaultOptions()
	opts.RefundDelay = 100
	engine := f.createPool(t, opts)
	p := engine.Pool()

	f.fundBuyer(t, aliceAddr, p.Engine, 3)
	require.NoError(t, f.purchase(t, engine, aliceAddr, 3, midSale))

	// Only a stalled finalization opens the escape hatch.
	require.ErrorIs(t, engine.EmergencyRefund(aliceAddr, optEnd+200), ErrInvalidState)

	_, err := engine.RequestFinalize(optEnd)
	require.NoError(t, err)

	require.ErrorIs(t, engine.EmergencyRefund(aliceAddr, optEnd+50), ErrRefundDelayActive)

	// A zero refund does not drain the pool.
	require.NoError(t, engine.EmergencyRefund(bobAddr, optEnd+100))
	require.False(t, p.EmergencyDrained)

	require.NoError(t, engine.EmergencyRefund(aliceAddr, optEnd+100))
	require.Equal(t, uint64(3), f.cwethUnits(t, aliceAddr))
	require.True(t, p.EmergencyDrained)
	require.ErrorIs(t, engine.EmergencyRefund(aliceAddr, optEnd+200), ErrAlreadyRefunded)

	// Drained pools cannot settle anymore.
	id, has := engine.PendingRequestID()
	require.True(t, has)
	pts, sigs, err := f.orc.Fulfill(id)
	require.NoError(t, err)
	require.ErrorIs(t, engine.Finalize(id, pts, sigs), ErrInvalidState)
}

func TestAddLiquidity(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping TFHE launchpad test in short mode")
	}
	f := newLaunchpadFixture(t)
	engine := f.createPool(t, defaultOptions())
	p := engine.Pool()

	f.fundBuyer(t, aliceAddr, p.Engine, 10)
	require.NoError(t, f.purchase(t, engine, aliceAddr, 10, midSale))

	require.ErrorIs(t, engine.AddLiquidity(ownerAddr), ErrInvalidState)

	f.settle(t, engine, optEnd)
	require.ErrorIs(t, engine.AddLiquidity(aliceAddr), ErrNotOwner)
	require.NoError(t, engine.AddLiquidity(ownerAddr))

	// Half of the 1e10 wei raise to the owner, half into the pool.
	require.Equal(t, big.NewInt(5_000_000_000), f.weth.BalanceOf(ownerAddr))
	require.True(t, p.HasDex)

	pool, err := engine.amm.GetPool(p.DexPool)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(5_000_000_000), pool.Reserve0)
	require.Equal(t, uint256.NewInt(500_000_000_000_000), pool.Reserve1)

	shares, err := engine.amm.SharesOf(p.DexPool, ownerAddr)
	require.NoError(t, err)
	require.True(t, shares.Sign() > 0)

	// The engine is drained; a second deployment has nothing to move.
	require.Error(t, engine.AddLiquidity(ownerAddr))
}

func TestPoolJournalRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping TFHE launchpad test in short mode")
	}
	f := newLaunchpadFixture(t)
	engine := f.createPool(t, defaultOptions())
	p := engine.Pool()

	f.fundBuyer(t, aliceAddr, p.Engine, 7)
	require.NoError(t, f.purchase(t, engine, aliceAddr, 7, midSale))
	f.settle(t, engine, optEnd)

	rec, err := f.store.GetPool(p.ID)
	require.NoError(t, err)
	require.Equal(t, StateFinalized, rec.State)
	require.Equal(t, common.Hash(p.ID), rec.ID)

	restored := rec.Restore()
	require.Equal(t, p.State, restored.State)
	require.Equal(t, p.Owner, restored.Owner)
	require.Equal(t, p.Engine, restored.Engine)
	require.Equal(t, p.TokenPerEth, restored.TokenPerEth)
	require.Equal(t, p.WeiRaised, restored.WeiRaised)
	require.Equal(t, p.TokensSold, restored.TokensSold)
	require.Equal(t, p.RaisedEnc, restored.RaisedEnc)
	require.Equal(t, p.Contributions[aliceAddr], restored.Contributions[aliceAddr])
	require.Equal(t, p.Claimable[aliceAddr], restored.Claimable[aliceAddr])
	require.False(t, restored.HasPending)

	_, err = f.store.GetPool([32]byte{0xde, 0xad})
	require.ErrorIs(t, err, database.ErrNotFound)
}
