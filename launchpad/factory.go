// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package launchpad

import (
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	"github.com/zeebo/blake3"

	"github.com/PrivacyPad/PrivacyPad/dex"
	"github.com/PrivacyPad/PrivacyPad/fhe"
	"github.com/PrivacyPad/PrivacyPad/ledger"
	"github.com/PrivacyPad/PrivacyPad/oracle"
	"github.com/PrivacyPad/PrivacyPad/token"
)

// Factory creates presale pools and tracks their engines.
type Factory struct {
	Engines map[[32]byte]*Engine

	cop    *fhe.Coprocessor
	oracle *oracle.Oracle
	amm    *dex.PoolManager
	store  *Store
	log    log.Logger

	counter uint64
	mu      sync.Mutex
}

// NewFactory returns a factory wired to the shared services. A nil
// coprocessor selects the default instance; a nil store disables
// journaling.
func NewFactory(cop *fhe.Coprocessor, orc *oracle.Oracle, amm *dex.PoolManager, store *Store, logger log.Logger) *Factory {
	if cop == nil {
		cop = fhe.Default()
	}
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Factory{
		Engines: make(map[[32]byte]*Engine),
		cop:     cop,
		oracle:  orc,
		amm:     amm,
		store:   store,
		log:     logger,
	}
}

// Engine returns the engine for [id], if the pool exists.
func (f *Factory) Engine(id [32]byte) (*Engine, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.Engines[id]
	return e, ok
}

// CreatePresale validates [opts], takes custody of the owner's full
// token allocation and opens a pool in the active state. The sale rate
// is fixed here: confidential token units per payment unit, floored, so
// selling the entire presale allocation at the hard cap is exact.
func (f *Factory) CreatePresale(
	owner common.Address,
	weth, sale *token.Token,
	cweth, ctoken *ledger.ConfidentialToken,
	opts PresaleOptions,
) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if weth == nil || sale == nil || cweth == nil || ctoken == nil {
		return nil, ErrNilToken
	}

	perEth := new(big.Int).Quo(opts.TokenPresale, ctoken.Rate())
	perEth.Quo(perEth, new(big.Int).SetUint64(opts.HardCap))
	if perEth.Sign() == 0 || !perEth.IsUint64() {
		return nil, ErrBadTokenRate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.poolID(owner, sale.Address)
	engineAddr := common.BytesToAddress(id[12:])

	total := new(big.Int).Add(opts.TokenPresale, opts.TokenAddLiquidity)
	if err := sale.Transfer(owner, engineAddr, total); err != nil {
		return nil, err
	}

	raised, err := f.cop.TrivialEncrypt(engineAddr, 0, fhe.TypeEuint64)
	if err != nil {
		return nil, err
	}
	sold, err := f.cop.TrivialEncrypt(engineAddr, 0, fhe.TypeEuint64)
	if err != nil {
		return nil, err
	}

	pool := &Pool{
		ID:            id,
		Owner:         owner,
		Engine:        engineAddr,
		Token:         sale.Address,
		Cweth:         cweth.Address,
		Ctoken:        ctoken.Address,
		Options:       opts.clone(),
		TokenPerEth:   perEth.Uint64(),
		State:         StateActive,
		RaisedEnc:     raised,
		SoldEnc:       sold,
		WeiRaised:     new(big.Int),
		TokensSold:    new(big.Int),
		Contributions: make(map[common.Address]fhe.Handle),
		Claimable:     make(map[common.Address]fhe.Handle),
		Claimed:       make(map[common.Address]bool),
		Refunded:      make(map[common.Address]bool),
	}

	engine := newEngine(pool, weth, sale, cweth, ctoken, f.amm, f.oracle, f.cop, f.store, f.log)
	f.Engines[id] = engine
	engine.persist()

	f.log.Info("presale created",
		log.String("pool", common.Hash(id).Hex()),
		log.String("owner", owner.Hex()),
		log.String("token", sale.Address.Hex()),
		log.Uint64("tokenPerEth", pool.TokenPerEth),
	)
	return engine, nil
}

// poolID derives a unique pool identifier from the creator, the sale
// token and a creation counter. The engine address is the low 20 bytes,
// matching contract-address derivation from a digest.
func (f *Factory) poolID(owner, saleToken common.Address) [32]byte {
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], f.counter)
	f.counter++

	h := blake3.New()
	h.Write(owner.Bytes())
	h.Write(saleToken.Bytes())
	h.Write(ctr[:])

	var id [32]byte
	h.Digest().Read(id[:])
	return id
}
