// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package oracle implements the decryption oracle the launchpad trusts
// at settlement: a pending-request manager binding ciphertext handles
// to an authorized consumer, a local decrypt-and-sign fulfillment path
// for devnets and tests, and threshold verification of delivered
// results. ECDSA over secp256k1 is the primary scheme; BLS aggregate
// and Ringtail lattice verification are available for signer sets that
// publish those keys.
package oracle

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/luxfi/crypto"
	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	ringtailConfig "github.com/luxfi/threshold/protocols/ringtail/config"

	"github.com/PrivacyPad/PrivacyPad/fhe"
)

var (
	ErrNoHandles           = errors.New("no ciphertext handles")
	ErrHandleNotAllowed    = errors.New("requester not allowed on handle")
	ErrUnknownRequest      = errors.New("unknown decryption request")
	ErrRequestConsumed     = errors.New("decryption request already consumed")
	ErrNotConsumer         = errors.New("not the authorized consumer")
	ErrResultMismatch      = errors.New("result length mismatch")
	ErrNoSigners           = errors.New("no registered signers")
	ErrInvalidPublicKey    = errors.New("invalid signer public key")
	ErrInvalidSignatureSet = errors.New("invalid signature set")
)

// RequestStatus tracks a decryption request through its lifecycle.
type RequestStatus uint8

const (
	RequestPending RequestStatus = iota
	RequestFulfilled
	RequestConsumed
)

// DecryptionRequest records one batch of handles awaiting decryption
// and, once fulfilled, the signed plaintext results.
type DecryptionRequest struct {
	ID          [32]byte
	Requester   common.Address
	Consumer    common.Address
	Handles     []fhe.Handle
	RequestedAt uint64
	Status      RequestStatus
	Plaintexts  []uint64
	Signatures  [][]byte
}

// Signer is one member of the oracle's attestation set.
type Signer struct {
	Address   common.Address
	PublicKey *ecdsa.PublicKey
}

// Oracle manages decryption requests and the signer set whose threshold
// attestations make results trustworthy. Results are consumed exactly
// once: after a successful verification the request is closed and
// replayed signature sets are rejected.
type Oracle struct {
	Requests map[[32]byte]*DecryptionRequest
	Signers  []*Signer

	blsKeys     []*bls.PublicKey
	ringtailKey []byte

	// keys are the local signing keys of the devnet fulfillment path.
	keys []*ecdsa.PrivateKey

	nonce uint64
	cop   *fhe.Coprocessor
	log   log.Logger

	mu sync.Mutex
}

// NewOracle creates an oracle over [cop] with an empty signer set.
func NewOracle(cop *fhe.Coprocessor, logger log.Logger) *Oracle {
	if cop == nil {
		cop = fhe.Default()
	}
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Oracle{
		Requests: make(map[[32]byte]*DecryptionRequest),
		cop:      cop,
		log:      logger,
	}
}

// RegisterSigner adds a verification-only member from its serialized
// secp256k1 public key, uncompressed or compressed.
func (o *Oracle) RegisterSigner(pubkey []byte) (common.Address, error) {
	pk, err := crypto.UnmarshalPubkey(pubkey)
	if err != nil {
		pk, err = crypto.DecompressPubkey(pubkey)
		if err != nil {
			return common.Address{}, ErrInvalidPublicKey
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.addSigner(pk), nil
}

// AddSigner adds a local signing member: its address joins the signer
// set and its key participates in Fulfill. Returns the signer address.
func (o *Oracle) AddSigner(key *ecdsa.PrivateKey) common.Address {
	o.mu.Lock()
	defer o.mu.Unlock()

	addr := o.addSigner(&key.PublicKey)
	o.keys = append(o.keys, key)
	return addr
}

// addSigner assumes the lock is held.
func (o *Oracle) addSigner(pk *ecdsa.PublicKey) common.Address {
	addr := SignerAddress(pk)
	o.Signers = append(o.Signers, &Signer{Address: addr, PublicKey: pk})
	return addr
}

// SignerAddress derives the EVM address of a secp256k1 public key.
func SignerAddress(pk *ecdsa.PublicKey) common.Address {
	raw := make([]byte, 64)
	pk.X.FillBytes(raw[:32])
	pk.Y.FillBytes(raw[32:])
	return common.BytesToAddress(crypto.Keccak256(raw)[12:])
}

// RegisterBLSKey adds a compressed BLS public key to the aggregate
// verification set.
func (o *Oracle) RegisterBLSKey(compressed []byte) error {
	pk, err := bls.PublicKeyFromCompressedBytes(compressed)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.blsKeys = append(o.blsKeys, pk)
	return nil
}

// SetRingtailKey installs the lattice group public key for post-quantum
// result verification.
func (o *Oracle) SetRingtailKey(pk []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ringtailKey = pk
}

// Threshold returns the number of distinct signers a result needs:
// 2/3 of the registered set plus one, at least one.
func (o *Oracle) Threshold() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.threshold()
}

func (o *Oracle) threshold() int {
	if len(o.Signers) == 0 {
		return 1
	}
	return len(o.Signers)*2/3 + 1
}

// RequestDecryption opens a request to decrypt [handles] on behalf of
// [requester]. Only [consumer] may later consume the verified result.
// The requester must hold access on every handle; the oracle does not
// decrypt ciphertexts its requester could not use.
func (o *Oracle) RequestDecryption(requester common.Address, handles []fhe.Handle, consumer common.Address) ([32]byte, error) {
	if len(handles) == 0 {
		return [32]byte{}, ErrNoHandles
	}
	for _, h := range handles {
		if !o.cop.IsAllowed(requester, h) {
			return [32]byte{}, ErrHandleNotAllowed
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.nonce++
	now := uint64(time.Now().Unix())

	var buf [8]byte
	data := append(requester.Bytes(), consumer.Bytes()...)
	for _, h := range handles {
		data = append(data, h.Bytes()...)
	}
	binary.BigEndian.PutUint64(buf[:], now)
	data = append(data, buf[:]...)
	binary.BigEndian.PutUint64(buf[:], o.nonce)
	data = append(data, buf[:]...)
	id := sha256.Sum256(data)

	o.Requests[id] = &DecryptionRequest{
		ID:          id,
		Requester:   requester,
		Consumer:    consumer,
		Handles:     append([]fhe.Handle(nil), handles...),
		RequestedAt: now,
		Status:      RequestPending,
	}

	o.log.Info("decryption requested",
		log.String("id", common.Hash(id).Hex()),
		log.String("requester", requester.Hex()),
		log.Int("handles", len(handles)),
	)
	return id, nil
}

// Request returns the request record for [id].
func (o *Oracle) Request(id [32]byte) (*DecryptionRequest, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	req, ok := o.Requests[id]
	if !ok {
		return nil, ErrUnknownRequest
	}
	return req, nil
}

// ResultDigest is the message the signer set attests to: the request ID
// followed by each plaintext as a big-endian word.
func ResultDigest(id [32]byte, plaintexts []uint64) [32]byte {
	data := make([]byte, 0, 32+8*len(plaintexts))
	data = append(data, id[:]...)
	var buf [8]byte
	for _, v := range plaintexts {
		binary.BigEndian.PutUint64(buf[:], v)
		data = append(data, buf[:]...)
	}

	var digest [32]byte
	copy(digest[:], crypto.Keccak256(data))
	return digest
}

// Fulfill decrypts the request's handles and signs the result digest
// with every local key, producing 64-byte r||s signatures. Repeated
// calls return the cached result. In production fulfillment happens in
// the oracle network; this path serves devnets and tests.
func (o *Oracle) Fulfill(id [32]byte) ([]uint64, [][]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	req, ok := o.Requests[id]
	if !ok {
		return nil, nil, ErrUnknownRequest
	}
	if req.Status != RequestPending {
		return req.Plaintexts, req.Signatures, nil
	}
	if len(o.keys) == 0 {
		return nil, nil, ErrNoSigners
	}

	values := make([]uint64, len(req.Handles))
	for i, h := range req.Handles {
		v, err := o.cop.Decrypt(h)
		if err != nil {
			return nil, nil, err
		}
		values[i] = v
	}

	digest := ResultDigest(id, values)
	sigs := make([][]byte, 0, len(o.keys))
	for _, key := range o.keys {
		r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
		if err != nil {
			return nil, nil, err
		}
		sig := make([]byte, 64)
		r.FillBytes(sig[:32])
		s.FillBytes(sig[32:])
		sigs = append(sigs, sig)
	}

	req.Plaintexts = values
	req.Signatures = sigs
	req.Status = RequestFulfilled

	o.log.Info("decryption fulfilled",
		log.String("id", common.Hash(id).Hex()),
		log.Int("signatures", len(sigs)),
	)
	return values, sigs, nil
}

// VerifyDecryption checks a delivered result against the registered
// ECDSA signer set and consumes the request. At least Threshold
// distinct signers must have signed the result digest; duplicate
// signatures count once.
func (o *Oracle) VerifyDecryption(consumer common.Address, id [32]byte, plaintexts []uint64, sigs [][]byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	req, err := o.checkConsumable(consumer, id, plaintexts)
	if err != nil {
		return err
	}
	if len(o.Signers) == 0 {
		return ErrNoSigners
	}

	digest := ResultDigest(id, plaintexts)
	seen := make(map[common.Address]struct{})
	for _, sig := range sigs {
		if len(sig) < 64 {
			continue
		}
		r := new(big.Int).SetBytes(sig[:32])
		s := new(big.Int).SetBytes(sig[32:64])
		for _, signer := range o.Signers {
			if _, ok := seen[signer.Address]; ok {
				continue
			}
			if ecdsa.Verify(signer.PublicKey, digest[:], r, s) {
				seen[signer.Address] = struct{}{}
				break
			}
		}
	}
	if len(seen) < o.threshold() {
		return ErrInvalidSignatureSet
	}

	o.consume(req, plaintexts)
	return nil
}

// VerifyBLSDecryption checks a delivered result against an aggregate
// BLS signature of the full registered BLS key set and consumes the
// request.
func (o *Oracle) VerifyBLSDecryption(consumer common.Address, id [32]byte, plaintexts []uint64, aggSig []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	req, err := o.checkConsumable(consumer, id, plaintexts)
	if err != nil {
		return err
	}
	if len(o.blsKeys) == 0 {
		return ErrNoSigners
	}

	aggPk, err := bls.AggregatePublicKeys(o.blsKeys)
	if err != nil {
		return ErrInvalidSignatureSet
	}
	sig, err := bls.SignatureFromBytes(aggSig)
	if err != nil {
		return ErrInvalidSignatureSet
	}
	digest := ResultDigest(id, plaintexts)
	if !bls.Verify(aggPk, sig, digest[:]) {
		return ErrInvalidSignatureSet
	}

	o.consume(req, plaintexts)
	return nil
}

// VerifyRingtailDecryption checks a delivered result against the
// lattice group key and consumes the request.
func (o *Oracle) VerifyRingtailDecryption(consumer common.Address, id [32]byte, plaintexts []uint64, sig []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	req, err := o.checkConsumable(consumer, id, plaintexts)
	if err != nil {
		return err
	}
	if len(o.ringtailKey) == 0 {
		return ErrNoSigners
	}
	if len(sig) == 0 {
		return ErrInvalidSignatureSet
	}

	digest := ResultDigest(id, plaintexts)
	if !ringtailConfig.VerifySignature(o.ringtailKey, digest[:], sig) {
		return ErrInvalidSignatureSet
	}

	o.consume(req, plaintexts)
	return nil
}

// checkConsumable assumes the lock is held.
func (o *Oracle) checkConsumable(consumer common.Address, id [32]byte, plaintexts []uint64) (*DecryptionRequest, error) {
	req, ok := o.Requests[id]
	if !ok {
		return nil, ErrUnknownRequest
	}
	if req.Consumer != consumer {
		return nil, ErrNotConsumer
	}
	if req.Status == RequestConsumed {
		return nil, ErrRequestConsumed
	}
	if len(plaintexts) != len(req.Handles) {
		return nil, ErrResultMismatch
	}
	return req, nil
}

// consume assumes the lock is held.
func (o *Oracle) consume(req *DecryptionRequest, plaintexts []uint64) {
	req.Plaintexts = append([]uint64(nil), plaintexts...)
	req.Status = RequestConsumed

	o.log.Info("decryption consumed",
		log.String("id", common.Hash(req.ID).Hex()),
		log.String("consumer", req.Consumer.Hex()),
	)
}
