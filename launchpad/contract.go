// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package launchpad

import (
	"errors"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/PrivacyPad/PrivacyPad/contract"
	"github.com/PrivacyPad/PrivacyPad/dex"
	"github.com/PrivacyPad/PrivacyPad/fhe"
	"github.com/PrivacyPad/PrivacyPad/ledger"
	"github.com/PrivacyPad/PrivacyPad/oracle"
	"github.com/PrivacyPad/PrivacyPad/token"
)

// Function selectors (first 4 bytes of keccak256 of function signature)
var (
	// Mutating functions
	SelectorCreatePresale   = [4]byte{0x1f, 0x7f, 0xb5, 0x4a} // createPresale(address,address,uint64,uint64,uint64,uint64,uint64,uint64,uint64,uint64,uint256,uint256)
	SelectorPurchase        = [4]byte{0xd6, 0xbd, 0x60, 0x3c} // purchase(bytes32,bytes32)
	SelectorRequestFinalize = [4]byte{0x83, 0x5e, 0x1b, 0x94} // requestFinalize(bytes32)
	SelectorFinalize        = [4]byte{0x4b, 0xb2, 0x78, 0xf3} // finalize(bytes32,bytes32,uint64,uint64,bytes[])
	SelectorClaimTokens     = [4]byte{0x48, 0xc5, 0x4a, 0xa0} // claimTokens(bytes32)
	SelectorRefund          = [4]byte{0x59, 0x0e, 0x1a, 0xe3} // refund(bytes32)
	SelectorEmergencyRefund = [4]byte{0x75, 0x24, 0x0f, 0x96} // emergencyRefund(bytes32)
	SelectorAddLiquidity    = [4]byte{0x9c, 0x8f, 0x9f, 0x23} // addLiquidity(bytes32)

	// View functions
	SelectorGetPool           = [4]byte{0x06, 0x8b, 0xcd, 0x8d} // getPool(bytes32)
	SelectorGetContribution   = [4]byte{0x8a, 0x0e, 0x8e, 0x79} // getContribution(bytes32,address)
	SelectorGetClaimable      = [4]byte{0x2f, 0x13, 0xb6, 0x0f} // getClaimable(bytes32,address)
	SelectorGetPendingRequest = [4]byte{0xb8, 0x70, 0x2a, 0xc4} // getPendingRequest(bytes32)
)

// Gas costs. Purchase dominates: it runs the full oblivious clamp
// pipeline over TFHE ciphertexts.
const (
	GasCreatePresale   uint64 = 100_000
	GasPurchase        uint64 = 600_000
	GasRequestFinalize uint64 = 60_000
	GasFinalize        uint64 = 250_000
	GasClaim           uint64 = 120_000
	GasRefund          uint64 = 120_000
	GasEmergencyRefund uint64 = 120_000
	GasAddLiquidity    uint64 = 80_000
	GasQuery           uint64 = 5_000
)

const wordLen = 32

// Errors
var (
	ErrInsufficientGas = errors.New("insufficient gas")
	ErrInvalidInput    = errors.New("invalid input")
	ErrWriteProtection = errors.New("write protection")
	ErrNotConfigured   = errors.New("launchpad not configured")
	ErrUnknownToken    = errors.New("unknown token")
	ErrUnknownLedger   = errors.New("unknown confidential token")
)

// Launchpad bundles the services one node exposes through the
// precompile: the pool factory, the shared payment pair, the settlement
// AMM, the decryption oracle and the coprocessor. Sale tokens and their
// confidential wrappers are registered here so createPresale can
// resolve them by address.
type Launchpad struct {
	Factory *Factory
	Weth    *token.Token
	Cweth   *ledger.ConfidentialToken
	Amm     *dex.PoolManager
	Oracle  *oracle.Oracle
	Cop     *fhe.Coprocessor

	tokens  map[common.Address]*token.Token
	ledgers map[common.Address]*ledger.ConfidentialToken
	mu      sync.RWMutex
}

// NewLaunchpad wires the service set and its factory. The payment pair
// is registered implicitly.
func NewLaunchpad(
	weth *token.Token,
	cweth *ledger.ConfidentialToken,
	amm *dex.PoolManager,
	orc *oracle.Oracle,
	cop *fhe.Coprocessor,
	store *Store,
	logger log.Logger,
) *Launchpad {
	if cop == nil {
		cop = fhe.Default()
	}
	l := &Launchpad{
		Factory: NewFactory(cop, orc, amm, store, logger),
		Weth:    weth,
		Cweth:   cweth,
		Amm:     amm,
		Oracle:  orc,
		Cop:     cop,
		tokens:  make(map[common.Address]*token.Token),
		ledgers: make(map[common.Address]*ledger.ConfidentialToken),
	}
	if weth != nil {
		l.RegisterToken(weth)
	}
	if cweth != nil {
		l.RegisterLedger(cweth)
	}
	return l
}

// RegisterToken makes [t] resolvable by createPresale.
func (l *Launchpad) RegisterToken(t *token.Token) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens[t.Address] = t
}

// RegisterLedger makes [ct] resolvable by createPresale.
func (l *Launchpad) RegisterLedger(ct *ledger.ConfidentialToken) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ledgers[ct.Address] = ct
}

// Token resolves a registered plaintext token.
func (l *Launchpad) Token(addr common.Address) (*token.Token, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.tokens[addr]
	return t, ok
}

// Ledger resolves a registered confidential token.
func (l *Launchpad) Ledger(addr common.Address) (*ledger.ConfidentialToken, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ct, ok := l.ledgers[addr]
	return ct, ok
}

var (
	defaultLaunchpad   *Launchpad
	defaultLaunchpadMu sync.RWMutex
)

// SetDefault installs the process-wide launchpad environment the
// precompile dispatches against.
func SetDefault(l *Launchpad) {
	defaultLaunchpadMu.Lock()
	defer defaultLaunchpadMu.Unlock()
	defaultLaunchpad = l
}

// DefaultLaunchpad returns the installed environment, or nil.
func DefaultLaunchpad() *Launchpad {
	defaultLaunchpadMu.RLock()
	defer defaultLaunchpadMu.RUnlock()
	return defaultLaunchpad
}

// LaunchpadContract implements the launchpad precompile.
type LaunchpadContract struct {
	env *Launchpad
}

// NewLaunchpadContract returns a precompile bound to [env]; a nil env
// falls through to the default environment at call time.
func NewLaunchpadContract(env *Launchpad) *LaunchpadContract {
	return &LaunchpadContract{env: env}
}

func (c *LaunchpadContract) environment() *Launchpad {
	if c.env != nil {
		return c.env
	}
	return DefaultLaunchpad()
}

// Run dispatches a launchpad call by its selector.
func (c *LaunchpadContract) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if len(input) < contract.SelectorLen {
		return nil, suppliedGas, ErrInvalidInput
	}
	env := c.environment()
	if env == nil {
		return nil, suppliedGas, ErrNotConfigured
	}

	var selector [4]byte
	copy(selector[:], input[:contract.SelectorLen])
	args := input[contract.SelectorLen:]
	now := accessibleState.GetBlockContext().Timestamp()

	switch selector {
	case SelectorCreatePresale:
		return c.createPresale(env, caller, args, suppliedGas, readOnly)
	case SelectorPurchase:
		return c.purchase(env, caller, args, suppliedGas, readOnly, now)
	case SelectorRequestFinalize:
		return c.requestFinalize(env, args, suppliedGas, readOnly, now)
	case SelectorFinalize:
		return c.finalize(env, args, suppliedGas, readOnly)
	case SelectorClaimTokens:
		return c.claimTokens(env, caller, args, suppliedGas, readOnly)
	case SelectorRefund:
		return c.refund(env, caller, args, suppliedGas, readOnly)
	case SelectorEmergencyRefund:
		return c.emergencyRefund(env, caller, args, suppliedGas, readOnly, now)
	case SelectorAddLiquidity:
		return c.addLiquidity(env, caller, args, suppliedGas, readOnly)
	case SelectorGetPool:
		return c.getPool(env, args, suppliedGas)
	case SelectorGetContribution:
		return c.getContribution(env, args, suppliedGas)
	case SelectorGetClaimable:
		return c.getClaimable(env, args, suppliedGas)
	case SelectorGetPendingRequest:
		return c.getPendingRequest(env, args, suppliedGas)
	default:
		return nil, suppliedGas, ErrInvalidInput
	}
}

// word returns 32-byte argument word [i].
func word(args []byte, i int) ([]byte, bool) {
	start := i * wordLen
	if len(args) < start+wordLen {
		return nil, false
	}
	return args[start : start+wordLen], true
}

func wordUint64(args []byte, i int) (uint64, bool) {
	w, ok := word(args, i)
	if !ok {
		return 0, false
	}
	return new(big.Int).SetBytes(w).Uint64(), true
}

func wordBig(args []byte, i int) (*big.Int, bool) {
	w, ok := word(args, i)
	if !ok {
		return nil, false
	}
	return new(big.Int).SetBytes(w), true
}

func wordAddress(args []byte, i int) (common.Address, bool) {
	w, ok := word(args, i)
	if !ok {
		return common.Address{}, false
	}
	return common.BytesToAddress(w[12:]), true
}

func wordHash(args []byte, i int) ([32]byte, bool) {
	w, ok := word(args, i)
	if !ok {
		return [32]byte{}, false
	}
	var h [32]byte
	copy(h[:], w)
	return h, true
}

// putWord right-aligns [b] into output word [i].
func putWord(out []byte, i int, b []byte) {
	if len(b) > wordLen {
		b = b[len(b)-wordLen:]
	}
	copy(out[(i+1)*wordLen-len(b):(i+1)*wordLen], b)
}

func (c *LaunchpadContract) createPresale(env *Launchpad, caller common.Address, args []byte, gas uint64, readOnly bool) ([]byte, uint64, error) {
	if readOnly {
		return nil, gas, ErrWriteProtection
	}
	if gas < GasCreatePresale {
		return nil, 0, ErrInsufficientGas
	}
	remaining := gas - GasCreatePresale

	if len(args) < 12*wordLen {
		return nil, remaining, ErrInvalidInput
	}
	tokenAddr, _ := wordAddress(args, 0)
	ctokenAddr, _ := wordAddress(args, 1)
	hardCap, _ := wordUint64(args, 2)
	softCap, _ := wordUint64(args, 3)
	minC, _ := wordUint64(args, 4)
	maxC, _ := wordUint64(args, 5)
	start, _ := wordUint64(args, 6)
	end, _ := wordUint64(args, 7)
	liqBps, _ := wordUint64(args, 8)
	delay, _ := wordUint64(args, 9)
	tokenPresale, _ := wordBig(args, 10)
	tokenAddLiq, _ := wordBig(args, 11)

	sale, ok := env.Token(tokenAddr)
	if !ok {
		return nil, remaining, ErrUnknownToken
	}
	ctoken, ok := env.Ledger(ctokenAddr)
	if !ok {
		return nil, remaining, ErrUnknownLedger
	}

	engine, err := env.Factory.CreatePresale(caller, env.Weth, sale, env.Cweth, ctoken, PresaleOptions{
		TokenPresale:      tokenPresale,
		TokenAddLiquidity: tokenAddLiq,
		HardCap:           hardCap,
		SoftCap:           softCap,
		MinContribution:   minC,
		MaxContribution:   maxC,
		Start:             start,
		End:               end,
		LiquidityBps:      liqBps,
		RefundDelay:       delay,
	})
	if err != nil {
		return nil, remaining, err
	}
	id := engine.Pool().ID
	return id[:], remaining, nil
}

func (c *LaunchpadContract) purchase(env *Launchpad, caller common.Address, args []byte, gas uint64, readOnly bool, now uint64) ([]byte, uint64, error) {
	if readOnly {
		return nil, gas, ErrWriteProtection
	}
	if gas < GasPurchase {
		return nil, 0, ErrInsufficientGas
	}
	remaining := gas - GasPurchase

	id, ok := wordHash(args, 0)
	if !ok {
		return nil, remaining, ErrInvalidInput
	}
	amount, ok := wordHash(args, 1)
	if !ok {
		return nil, remaining, ErrInvalidInput
	}
	engine, ok := env.Factory.Engine(id)
	if !ok {
		return nil, remaining, ErrUnknownPool
	}
	if err := engine.Purchase(caller, fhe.Handle(amount), now); err != nil {
		return nil, remaining, err
	}
	return []byte{1}, remaining, nil
}

func (c *LaunchpadContract) requestFinalize(env *Launchpad, args []byte, gas uint64, readOnly bool, now uint64) ([]byte, uint64, error) {
	if readOnly {
		return nil, gas, ErrWriteProtection
	}
	if gas < GasRequestFinalize {
		return nil, 0, ErrInsufficientGas
	}
	remaining := gas - GasRequestFinalize

	id, ok := wordHash(args, 0)
	if !ok {
		return nil, remaining, ErrInvalidInput
	}
	engine, ok := env.Factory.Engine(id)
	if !ok {
		return nil, remaining, ErrUnknownPool
	}
	reqID, err := engine.RequestFinalize(now)
	if err != nil {
		return nil, remaining, err
	}
	return reqID[:], remaining, nil
}

// finalize input: poolID, requestID, ethRaised, tokensSold, signature
// count, then count 64-byte signatures.
func (c *LaunchpadContract) finalize(env *Launchpad, args []byte, gas uint64, readOnly bool) ([]byte, uint64, error) {
	if readOnly {
		return nil, gas, ErrWriteProtection
	}
	if gas < GasFinalize {
		return nil, 0, ErrInsufficientGas
	}
	remaining := gas - GasFinalize

	id, ok := wordHash(args, 0)
	if !ok {
		return nil, remaining, ErrInvalidInput
	}
	reqID, ok := wordHash(args, 1)
	if !ok {
		return nil, remaining, ErrInvalidInput
	}
	ethRaised, ok := wordUint64(args, 2)
	if !ok {
		return nil, remaining, ErrInvalidInput
	}
	tokensSold, ok := wordUint64(args, 3)
	if !ok {
		return nil, remaining, ErrInvalidInput
	}
	count, ok := wordUint64(args, 4)
	if !ok || count > 256 {
		return nil, remaining, ErrInvalidInput
	}
	sigBytes := args[5*wordLen:]
	if uint64(len(sigBytes)) < count*64 {
		return nil, remaining, ErrInvalidInput
	}
	sigs := make([][]byte, count)
	for i := uint64(0); i < count; i++ {
		sigs[i] = sigBytes[i*64 : (i+1)*64]
	}

	engine, ok := env.Factory.Engine(id)
	if !ok {
		return nil, remaining, ErrUnknownPool
	}
	if err := engine.Finalize(reqID, []uint64{ethRaised, tokensSold}, sigs); err != nil {
		return nil, remaining, err
	}
	return []byte{1}, remaining, nil
}

func (c *LaunchpadContract) claimTokens(env *Launchpad, caller common.Address, args []byte, gas uint64, readOnly bool) ([]byte, uint64, error) {
	if readOnly {
		return nil, gas, ErrWriteProtection
	}
	if gas < GasClaim {
		return nil, 0, ErrInsufficientGas
	}
	remaining := gas - GasClaim

	id, ok := wordHash(args, 0)
	if !ok {
		return nil, remaining, ErrInvalidInput
	}
	engine, ok := env.Factory.Engine(id)
	if !ok {
		return nil, remaining, ErrUnknownPool
	}
	if err := engine.ClaimTokens(caller); err != nil {
		return nil, remaining, err
	}
	return []byte{1}, remaining, nil
}

func (c *LaunchpadContract) refund(env *Launchpad, caller common.Address, args []byte, gas uint64, readOnly bool) ([]byte, uint64, error) {
	if readOnly {
		return nil, gas, ErrWriteProtection
	}
	if gas < GasRefund {
		return nil, 0, ErrInsufficientGas
	}
	remaining := gas - GasRefund

	id, ok := wordHash(args, 0)
	if !ok {
		return nil, remaining, ErrInvalidInput
	}
	engine, ok := env.Factory.Engine(id)
	if !ok {
		return nil, remaining, ErrUnknownPool
	}
	if err := engine.Refund(caller); err != nil {
		return nil, remaining, err
	}
	return []byte{1}, remaining, nil
}

func (c *LaunchpadContract) emergencyRefund(env *Launchpad, caller common.Address, args []byte, gas uint64, readOnly bool, now uint64) ([]byte, uint64, error) {
	if readOnly {
		return nil, gas, ErrWriteProtection
	}
	if gas < GasEmergencyRefund {
		return nil, 0, ErrInsufficientGas
	}
	remaining := gas - GasEmergencyRefund

	id, ok := wordHash(args, 0)
	if !ok {
		return nil, remaining, ErrInvalidInput
	}
	engine, ok := env.Factory.Engine(id)
	if !ok {
		return nil, remaining, ErrUnknownPool
	}
	if err := engine.EmergencyRefund(caller, now); err != nil {
		return nil, remaining, err
	}
	return []byte{1}, remaining, nil
}

func (c *LaunchpadContract) addLiquidity(env *Launchpad, caller common.Address, args []byte, gas uint64, readOnly bool) ([]byte, uint64, error) {
	if readOnly {
		return nil, gas, ErrWriteProtection
	}
	if gas < GasAddLiquidity {
		return nil, 0, ErrInsufficientGas
	}
	remaining := gas - GasAddLiquidity

	id, ok := wordHash(args, 0)
	if !ok {
		return nil, remaining, ErrInvalidInput
	}
	engine, ok := env.Factory.Engine(id)
	if !ok {
		return nil, remaining, ErrUnknownPool
	}
	if err := engine.AddLiquidity(caller); err != nil {
		return nil, remaining, err
	}
	return []byte{1}, remaining, nil
}

// getPool output words: state, weiRaised, tokensSold, raisedEnc,
// soldEnc, hasDex, dexPool.
func (c *LaunchpadContract) getPool(env *Launchpad, args []byte, gas uint64) ([]byte, uint64, error) {
	if gas < GasQuery {
		return nil, 0, ErrInsufficientGas
	}
	remaining := gas - GasQuery

	id, ok := wordHash(args, 0)
	if !ok {
		return nil, remaining, ErrInvalidInput
	}
	engine, ok := env.Factory.Engine(id)
	if !ok {
		return nil, remaining, ErrUnknownPool
	}
	p := engine.Pool()

	out := make([]byte, 7*wordLen)
	putWord(out, 0, []byte{byte(p.State)})
	putWord(out, 1, p.WeiRaised.Bytes())
	putWord(out, 2, p.TokensSold.Bytes())
	putWord(out, 3, p.RaisedEnc.Bytes())
	putWord(out, 4, p.SoldEnc.Bytes())
	if p.HasDex {
		putWord(out, 5, []byte{1})
		putWord(out, 6, p.DexPool[:])
	}
	return out, remaining, nil
}

func (c *LaunchpadContract) getContribution(env *Launchpad, args []byte, gas uint64) ([]byte, uint64, error) {
	if gas < GasQuery {
		return nil, 0, ErrInsufficientGas
	}
	remaining := gas - GasQuery

	id, ok := wordHash(args, 0)
	if !ok {
		return nil, remaining, ErrInvalidInput
	}
	buyer, ok := wordAddress(args, 1)
	if !ok {
		return nil, remaining, ErrInvalidInput
	}
	engine, ok := env.Factory.Engine(id)
	if !ok {
		return nil, remaining, ErrUnknownPool
	}
	h, _ := engine.ContributionOf(buyer)
	return h.Bytes(), remaining, nil
}

func (c *LaunchpadContract) getClaimable(env *Launchpad, args []byte, gas uint64) ([]byte, uint64, error) {
	if gas < GasQuery {
		return nil, 0, ErrInsufficientGas
	}
	remaining := gas - GasQuery

	id, ok := wordHash(args, 0)
	if !ok {
		return nil, remaining, ErrInvalidInput
	}
	buyer, ok := wordAddress(args, 1)
	if !ok {
		return nil, remaining, ErrInvalidInput
	}
	engine, ok := env.Factory.Engine(id)
	if !ok {
		return nil, remaining, ErrUnknownPool
	}
	h, _ := engine.ClaimableOf(buyer)
	return h.Bytes(), remaining, nil
}

func (c *LaunchpadContract) getPendingRequest(env *Launchpad, args []byte, gas uint64) ([]byte, uint64, error) {
	if gas < GasQuery {
		return nil, 0, ErrInsufficientGas
	}
	remaining := gas - GasQuery

	id, ok := wordHash(args, 0)
	if !ok {
		return nil, remaining, ErrInvalidInput
	}
	engine, ok := env.Factory.Engine(id)
	if !ok {
		return nil, remaining, ErrUnknownPool
	}
	reqID, has := engine.PendingRequestID()
	if !has {
		return make([]byte, wordLen), remaining, nil
	}
	return reqID[:], remaining, nil
}
