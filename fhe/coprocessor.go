// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/luxfi/fhe"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	"github.com/zeebo/blake3"
)

// Handle identifies a stored ciphertext. Handles are opaque 32-byte
// references; the ciphertext bytes never leave the coprocessor.
type Handle = common.Hash

// Coprocessor stores ciphertexts behind handles and evaluates TFHE
// operations on them. Every handle carries an access list: an operation
// succeeds only if the acting address is allowed on all of its operand
// handles, and the result handle is granted to the actor.
type Coprocessor struct {
	mu sync.RWMutex

	cts   map[Handle][]byte
	types map[Handle]uint8
	// bits retains the raw control bit of comparison results so a later
	// Select can consume it without a serialization roundtrip.
	bits map[Handle]*fhe.Ciphertext
	acl  map[Handle]map[common.Address]struct{}

	counter uint64
	log     log.Logger
}

// NewCoprocessor creates an empty coprocessor.
func NewCoprocessor(logger log.Logger) *Coprocessor {
	return &Coprocessor{
		cts:   make(map[Handle][]byte),
		types: make(map[Handle]uint8),
		bits:  make(map[Handle]*fhe.Ciphertext),
		acl:   make(map[Handle]map[common.Address]struct{}),
		log:   logger,
	}
}

var (
	defaultCoprocessor *Coprocessor
	defaultOnce        sync.Once
)

// Default returns the process-wide coprocessor shared by the precompile
// suite.
func Default() *Coprocessor {
	defaultOnce.Do(func() {
		defaultCoprocessor = NewCoprocessor(log.NewNoOpLogger())
	})
	return defaultCoprocessor
}

// insert stores [ct] under a fresh handle and grants [actor] access.
func (c *Coprocessor) insert(actor common.Address, ct []byte, fheType uint8) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counter++
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], c.counter)

	h := blake3.New()
	h.Write(ct)
	h.Write([]byte{fheType})
	h.Write(ctr[:])
	var handle Handle
	h.Digest().Read(handle[:])

	c.cts[handle] = ct
	c.types[handle] = fheType
	c.acl[handle] = map[common.Address]struct{}{actor: {}}
	return handle
}

// operand fetches the ciphertext behind [h], checking that [actor] is
// allowed to use it.
func (c *Coprocessor) operand(actor common.Address, h Handle) ([]byte, uint8, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ct, ok := c.cts[h]
	if !ok {
		return nil, 0, ErrInvalidCiphertext
	}
	if _, ok := c.acl[h][actor]; !ok {
		return nil, 0, ErrNotAllowed
	}
	return ct, c.types[h], nil
}

// Allow grants [grantee] access to [h]. The actor must itself be
// allowed on the handle.
func (c *Coprocessor) Allow(actor common.Address, h Handle, grantee common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	accounts, ok := c.acl[h]
	if !ok {
		return ErrInvalidCiphertext
	}
	if _, ok := accounts[actor]; !ok {
		return ErrNotAllowed
	}
	accounts[grantee] = struct{}{}
	return nil
}

// IsAllowed reports whether [account] may use [h] as an operand.
func (c *Coprocessor) IsAllowed(account common.Address, h Handle) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.acl[h][account]
	return ok
}

// Exists reports whether [h] references a stored ciphertext.
func (c *Coprocessor) Exists(h Handle) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.cts[h]
	return ok
}

// TypeOf returns the FHE type of the ciphertext behind [h].
func (c *Coprocessor) TypeOf(h Handle) (uint8, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[h]
	if !ok {
		return 0, ErrInvalidCiphertext
	}
	return t, nil
}

// CiphertextOf returns the serialized ciphertext behind [h]. Used by
// the decryption oracle and by reencryption endpoints; regular callers
// operate on handles only.
func (c *Coprocessor) CiphertextOf(h Handle) ([]byte, uint8, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ct, ok := c.cts[h]
	if !ok {
		return nil, 0, ErrInvalidCiphertext
	}
	return ct, c.types[h], nil
}

// Encrypt encrypts [value] under the network key and stores it for
// [actor]. This is the path user-supplied inputs take after proof
// verification; contracts producing public constants use
// TrivialEncrypt.
func (c *Coprocessor) Encrypt(actor common.Address, value uint64, fheType uint8) (Handle, error) {
	ct := tfheEncrypt(new(big.Int).SetUint64(value), fheType)
	if ct == nil {
		return Handle{}, ErrOperationFailed
	}
	return c.insert(actor, ct, fheType), nil
}

// TrivialEncrypt encrypts a public constant for [actor].
func (c *Coprocessor) TrivialEncrypt(actor common.Address, value uint64, fheType uint8) (Handle, error) {
	ct := tfheEncrypt(new(big.Int).SetUint64(value), fheType)
	if ct == nil {
		return Handle{}, ErrOperationFailed
	}
	return c.insert(actor, ct, fheType), nil
}

// Decrypt returns the plaintext behind [h]. Only the decryption oracle
// and ledger-internal guard bits take this path; it is not reachable
// from the precompile dispatch.
func (c *Coprocessor) Decrypt(h Handle) (uint64, error) {
	c.mu.RLock()
	ct, ok := c.cts[h]
	fheType := c.types[h]
	c.mu.RUnlock()
	if !ok {
		return 0, ErrInvalidCiphertext
	}
	v := tfheDecrypt(ct, fheType)
	if v == nil {
		return 0, ErrOperationFailed
	}
	return v.Uint64(), nil
}

// NetworkPublicKey returns the TFHE public key users encrypt against.
func (c *Coprocessor) NetworkPublicKey() []byte {
	return tfheGetNetworkPublicKey()
}

// binaryOp runs [op] on two operands of the same type.
func (c *Coprocessor) binaryOp(actor common.Address, a, b Handle, op func(lhs, rhs []byte, fheType uint8) []byte) (Handle, error) {
	ctA, typA, err := c.operand(actor, a)
	if err != nil {
		return Handle{}, err
	}
	ctB, typB, err := c.operand(actor, b)
	if err != nil {
		return Handle{}, err
	}
	if typA != typB {
		return Handle{}, ErrTypeMismatch
	}
	out := op(ctA, ctB, typA)
	if out == nil {
		return Handle{}, ErrOperationFailed
	}
	return c.insert(actor, out, typA), nil
}

// Add returns a handle to a+b.
func (c *Coprocessor) Add(actor common.Address, a, b Handle) (Handle, error) {
	return c.binaryOp(actor, a, b, tfheAdd)
}

// Sub returns a handle to a-b (two's complement wrap on underflow).
func (c *Coprocessor) Sub(actor common.Address, a, b Handle) (Handle, error) {
	return c.binaryOp(actor, a, b, tfheSub)
}

// Mul returns a handle to a*b.
func (c *Coprocessor) Mul(actor common.Address, a, b Handle) (Handle, error) {
	return c.binaryOp(actor, a, b, tfheMul)
}

// And returns a handle to a&b.
func (c *Coprocessor) And(actor common.Address, a, b Handle) (Handle, error) {
	return c.binaryOp(actor, a, b, tfheAnd)
}

// Or returns a handle to a|b.
func (c *Coprocessor) Or(actor common.Address, a, b Handle) (Handle, error) {
	return c.binaryOp(actor, a, b, tfheOr)
}

// Min returns a handle to min(a,b).
func (c *Coprocessor) Min(actor common.Address, a, b Handle) (Handle, error) {
	return c.binaryOp(actor, a, b, tfheMin)
}

// Max returns a handle to max(a,b).
func (c *Coprocessor) Max(actor common.Address, a, b Handle) (Handle, error) {
	return c.binaryOp(actor, a, b, tfheMax)
}

// Not returns a handle to the bitwise complement of a.
func (c *Coprocessor) Not(actor common.Address, a Handle) (Handle, error) {
	ct, typ, err := c.operand(actor, a)
	if err != nil {
		return Handle{}, err
	}
	out := tfheNot(ct, typ)
	if out == nil {
		return Handle{}, ErrOperationFailed
	}
	return c.insert(actor, out, typ), nil
}

// scalarOp runs [op] with a plaintext right operand.
func (c *Coprocessor) scalarOp(actor common.Address, a Handle, scalar uint64, op func(ct []byte, scalar uint64, fheType uint8) []byte) (Handle, error) {
	ct, typ, err := c.operand(actor, a)
	if err != nil {
		return Handle{}, err
	}
	out := op(ct, scalar, typ)
	if out == nil {
		return Handle{}, ErrOperationFailed
	}
	return c.insert(actor, out, typ), nil
}

// ScalarAdd returns a handle to a+scalar.
func (c *Coprocessor) ScalarAdd(actor common.Address, a Handle, scalar uint64) (Handle, error) {
	return c.scalarOp(actor, a, scalar, tfheScalarAdd)
}

// ScalarSub returns a handle to a-scalar.
func (c *Coprocessor) ScalarSub(actor common.Address, a Handle, scalar uint64) (Handle, error) {
	return c.scalarOp(actor, a, scalar, tfheScalarSub)
}

// ScalarMul returns a handle to a*scalar.
func (c *Coprocessor) ScalarMul(actor common.Address, a Handle, scalar uint64) (Handle, error) {
	return c.scalarOp(actor, a, scalar, tfheScalarMul)
}

// compareOp evaluates a comparison, storing the wrapped boolean result
// and retaining the raw control bit for Select.
func (c *Coprocessor) compareOp(actor common.Address, a, b Handle, op func(lhs, rhs *fhe.BitCiphertext) (*fhe.Ciphertext, error)) (Handle, error) {
	if err := initTFHE(); err != nil {
		return Handle{}, err
	}

	ctA, typA, err := c.operand(actor, a)
	if err != nil {
		return Handle{}, err
	}
	ctB, typB, err := c.operand(actor, b)
	if err != nil {
		return Handle{}, err
	}
	if typA != typB {
		return Handle{}, ErrTypeMismatch
	}

	bcA := deserializeBitCiphertext(ctA)
	bcB := deserializeBitCiphertext(ctB)
	if bcA == nil || bcB == nil {
		return Handle{}, ErrInvalidCiphertext
	}

	bit, err := op(bcA, bcB)
	if err != nil {
		return Handle{}, ErrOperationFailed
	}

	wrapped := serializeBitCiphertext(fhe.WrapBoolCiphertext(bit))
	if wrapped == nil {
		return Handle{}, ErrOperationFailed
	}

	h := c.insert(actor, wrapped, TypeEbool)
	c.mu.Lock()
	c.bits[h] = bit
	c.mu.Unlock()
	return h, nil
}

// Lt returns an ebool handle to a<b.
func (c *Coprocessor) Lt(actor common.Address, a, b Handle) (Handle, error) {
	if err := initTFHE(); err != nil {
		return Handle{}, err
	}
	return c.compareOp(actor, a, b, evaluator.Lt)
}

// Le returns an ebool handle to a<=b.
func (c *Coprocessor) Le(actor common.Address, a, b Handle) (Handle, error) {
	if err := initTFHE(); err != nil {
		return Handle{}, err
	}
	return c.compareOp(actor, a, b, evaluator.Le)
}

// Gt returns an ebool handle to a>b.
func (c *Coprocessor) Gt(actor common.Address, a, b Handle) (Handle, error) {
	if err := initTFHE(); err != nil {
		return Handle{}, err
	}
	return c.compareOp(actor, a, b, evaluator.Gt)
}

// Ge returns an ebool handle to a>=b.
func (c *Coprocessor) Ge(actor common.Address, a, b Handle) (Handle, error) {
	if err := initTFHE(); err != nil {
		return Handle{}, err
	}
	return c.compareOp(actor, a, b, evaluator.Ge)
}

// Eq returns an ebool handle to a==b.
func (c *Coprocessor) Eq(actor common.Address, a, b Handle) (Handle, error) {
	if err := initTFHE(); err != nil {
		return Handle{}, err
	}
	return c.compareOp(actor, a, b, evaluator.Eq)
}

// asControlBit recovers the raw control bit from a stored ebool by
// comparing it against an encrypted one. Comparison results keep their
// bit in the coprocessor; this path covers ebools that were encrypted
// directly or combined with boolean operators.
func asControlBit(ct []byte) *fhe.Ciphertext {
	bc := deserializeBitCiphertext(ct)
	if bc == nil {
		return nil
	}
	one := deserializeBitCiphertext(tfheEncrypt(big.NewInt(1), TypeEbool))
	if one == nil {
		return nil
	}
	bit, err := evaluator.Eq(bc, one)
	if err != nil {
		return nil
	}
	return bit
}

// Select returns a handle to (cond ? ifTrue : ifFalse). The condition
// must be an ebool; the branches never influence which ciphertexts are
// touched, so the selection leaks nothing about cond.
func (c *Coprocessor) Select(actor common.Address, cond, ifTrue, ifFalse Handle) (Handle, error) {
	if err := initTFHE(); err != nil {
		return Handle{}, err
	}

	condCt, condType, err := c.operand(actor, cond)
	if err != nil {
		return Handle{}, err
	}
	if condType != TypeEbool {
		return Handle{}, ErrTypeMismatch
	}
	ctT, typT, err := c.operand(actor, ifTrue)
	if err != nil {
		return Handle{}, err
	}
	ctF, typF, err := c.operand(actor, ifFalse)
	if err != nil {
		return Handle{}, err
	}
	if typT != typF {
		return Handle{}, ErrTypeMismatch
	}

	c.mu.RLock()
	bit := c.bits[cond]
	c.mu.RUnlock()
	if bit == nil {
		// ebool produced by encryption rather than comparison
		bit = asControlBit(condCt)
		if bit == nil {
			return Handle{}, ErrInvalidCiphertext
		}
	}

	bcT := deserializeBitCiphertext(ctT)
	bcF := deserializeBitCiphertext(ctF)
	if bcT == nil || bcF == nil {
		return Handle{}, ErrInvalidCiphertext
	}

	result, err := evaluator.Select(bit, bcT, bcF)
	if err != nil {
		return Handle{}, ErrOperationFailed
	}

	out := serializeBitCiphertext(result)
	if out == nil {
		return Handle{}, ErrOperationFailed
	}
	return c.insert(actor, out, typT), nil
}

// Cast returns a handle to a converted to [toType].
func (c *Coprocessor) Cast(actor common.Address, a Handle, toType uint8) (Handle, error) {
	ct, fromType, err := c.operand(actor, a)
	if err != nil {
		return Handle{}, err
	}
	out := tfheCast(ct, fromType, toType)
	if out == nil {
		return Handle{}, ErrOperationFailed
	}
	return c.insert(actor, out, toType), nil
}

// MaxValue returns a handle to the all-ones value of [fheType].
func (c *Coprocessor) MaxValue(actor common.Address, fheType uint8) (Handle, error) {
	out := tfheMaxValue(fheType)
	if out == nil {
		return Handle{}, ErrOperationFailed
	}
	return c.insert(actor, out, fheType), nil
}

// Random returns a handle to a pseudorandom value of [fheType] derived
// from [seed].
func (c *Coprocessor) Random(actor common.Address, fheType uint8, seed uint64) (Handle, error) {
	out := tfheRandom(fheType, seed)
	if out == nil {
		return Handle{}, ErrOperationFailed
	}
	return c.insert(actor, out, fheType), nil
}
