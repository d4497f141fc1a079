// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package launchpad

import (
	"encoding/json"
	"math/big"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"

	"github.com/PrivacyPad/PrivacyPad/fhe"
)

var poolPrefix = []byte("pool")

// Store journals pool snapshots so a restarted node can rebuild its
// presale state. Ciphertext handles are journaled as-is; the backing
// ciphertexts live in the coprocessor.
type Store struct {
	db  database.Database
	log log.Logger
}

// NewStore wraps [db] under the pool prefix.
func NewStore(db database.Database, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Store{
		db:  prefixdb.New(poolPrefix, db),
		log: logger,
	}
}

// PoolRecord is the journaled form of a pool.
type PoolRecord struct {
	ID     common.Hash    `json:"id"`
	Owner  common.Address `json:"owner"`
	Engine common.Address `json:"engine"`
	Token  common.Address `json:"token"`
	Cweth  common.Address `json:"cweth"`
	Ctoken common.Address `json:"ctoken"`

	Options     PresaleOptions `json:"options"`
	TokenPerEth uint64         `json:"tokenPerEth"`
	State       PoolState      `json:"state"`

	RaisedEnc common.Hash `json:"raisedEnc"`
	SoldEnc   common.Hash `json:"soldEnc"`

	WeiRaised  *big.Int `json:"weiRaised"`
	TokensSold *big.Int `json:"tokensSold"`

	Contributions map[common.Address]common.Hash `json:"contributions,omitempty"`
	Claimable     map[common.Address]common.Hash `json:"claimable,omitempty"`
	Claimed       map[common.Address]bool        `json:"claimed,omitempty"`
	Refunded      map[common.Address]bool        `json:"refunded,omitempty"`

	PendingRequest   common.Hash `json:"pendingRequest"`
	HasPending       bool        `json:"hasPending"`
	EmergencyDrained bool        `json:"emergencyDrained"`

	DexPool common.Hash `json:"dexPool"`
	HasDex  bool        `json:"hasDex"`
}

func recordOf(p *Pool) *PoolRecord {
	r := &PoolRecord{
		ID:               common.Hash(p.ID),
		Owner:            p.Owner,
		Engine:           p.Engine,
		Token:            p.Token,
		Cweth:            p.Cweth,
		Ctoken:           p.Ctoken,
		Options:          p.Options.clone(),
		TokenPerEth:      p.TokenPerEth,
		State:            p.State,
		RaisedEnc:        common.Hash(p.RaisedEnc),
		SoldEnc:          common.Hash(p.SoldEnc),
		WeiRaised:        new(big.Int).Set(p.WeiRaised),
		TokensSold:       new(big.Int).Set(p.TokensSold),
		PendingRequest:   common.Hash(p.PendingRequest),
		HasPending:       p.HasPending,
		EmergencyDrained: p.EmergencyDrained,
		DexPool:          common.Hash(p.DexPool),
		HasDex:           p.HasDex,
	}
	if len(p.Contributions) > 0 {
		r.Contributions = make(map[common.Address]common.Hash, len(p.Contributions))
		for addr, h := range p.Contributions {
			r.Contributions[addr] = common.Hash(h)
		}
	}
	if len(p.Claimable) > 0 {
		r.Claimable = make(map[common.Address]common.Hash, len(p.Claimable))
		for addr, h := range p.Claimable {
			r.Claimable[addr] = common.Hash(h)
		}
	}
	if len(p.Claimed) > 0 {
		r.Claimed = make(map[common.Address]bool, len(p.Claimed))
		for addr, v := range p.Claimed {
			r.Claimed[addr] = v
		}
	}
	if len(p.Refunded) > 0 {
		r.Refunded = make(map[common.Address]bool, len(p.Refunded))
		for addr, v := range p.Refunded {
			r.Refunded[addr] = v
		}
	}
	return r
}

// Restore rebuilds the in-memory pool from a journaled record.
func (r *PoolRecord) Restore() *Pool {
	p := &Pool{
		ID:               [32]byte(r.ID),
		Owner:            r.Owner,
		Engine:           r.Engine,
		Token:            r.Token,
		Cweth:            r.Cweth,
		Ctoken:           r.Ctoken,
		Options:          r.Options.clone(),
		TokenPerEth:      r.TokenPerEth,
		State:            r.State,
		RaisedEnc:        fhe.Handle(r.RaisedEnc),
		SoldEnc:          fhe.Handle(r.SoldEnc),
		WeiRaised:        new(big.Int).Set(r.WeiRaised),
		TokensSold:       new(big.Int).Set(r.TokensSold),
		Contributions:    make(map[common.Address]fhe.Handle, len(r.Contributions)),
		Claimable:        make(map[common.Address]fhe.Handle, len(r.Claimable)),
		Claimed:          make(map[common.Address]bool, len(r.Claimed)),
		Refunded:         make(map[common.Address]bool, len(r.Refunded)),
		PendingRequest:   [32]byte(r.PendingRequest),
		HasPending:       r.HasPending,
		EmergencyDrained: r.EmergencyDrained,
		DexPool:          [32]byte(r.DexPool),
		HasDex:           r.HasDex,
	}
	for addr, h := range r.Contributions {
		p.Contributions[addr] = fhe.Handle(h)
	}
	for addr, h := range r.Claimable {
		p.Claimable[addr] = fhe.Handle(h)
	}
	for addr, v := range r.Claimed {
		p.Claimed[addr] = v
	}
	for addr, v := range r.Refunded {
		p.Refunded[addr] = v
	}
	return p
}

// PutPool journals the current snapshot of [p].
func (s *Store) PutPool(p *Pool) error {
	raw, err := json.Marshal(recordOf(p))
	if err != nil {
		return err
	}
	return s.db.Put(p.ID[:], raw)
}

// GetPool loads the journaled record for [id]. Returns
// database.ErrNotFound if the pool was never journaled.
func (s *Store) GetPool(id [32]byte) (*PoolRecord, error) {
	raw, err := s.db.Get(id[:])
	if err != nil {
		return nil, err
	}
	r := new(PoolRecord)
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, err
	}
	return r, nil
}
