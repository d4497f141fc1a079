// Copyright (C) 2019-2024, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fhe implements the encrypted-arithmetic precompile backing
// the confidential launchpad suite. Ciphertexts live in the
// coprocessor and are addressed by 32-byte handles; the precompile
// exposes homomorphic arithmetic, comparisons and oblivious selection
// over those handles. Plaintext decryption is not part of the dispatch
// surface: values leave the encrypted domain only through the
// decryption oracle.
package fhe

import (
	"errors"
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/PrivacyPad/PrivacyPad/contract"
)

// Ciphertext type constants - must match github.com/luxfi/fhe FheUintType
const (
	TypeEbool    uint8 = 0 // FheBool - 1 bit
	TypeEuint4   uint8 = 1 // FheUint4 - 4 bits
	TypeEuint8   uint8 = 2 // FheUint8 - 8 bits
	TypeEuint16  uint8 = 3 // FheUint16 - 16 bits
	TypeEuint32  uint8 = 4 // FheUint32 - 32 bits
	TypeEuint64  uint8 = 5 // FheUint64 - 64 bits
	TypeEuint128 uint8 = 6 // FheUint128 - 128 bits
	TypeEuint160 uint8 = 7 // FheUint160 - 160 bits (Ethereum addresses)
	TypeEuint256 uint8 = 8 // FheUint256 - 256 bits
	TypeEaddress uint8 = 7 // Alias for TypeEuint160
)

// Gas costs for FHE operations
const (
	GasEncrypt     uint64 = 50000
	GasVerifyInput uint64 = 80000
	GasAdd         uint64 = 65000
	GasSub         uint64 = 65000
	GasMul         uint64 = 150000
	GasAnd         uint64 = 50000
	GasOr          uint64 = 50000
	GasNot         uint64 = 30000
	GasEq          uint64 = 60000
	GasGt          uint64 = 60000
	GasGe          uint64 = 60000
	GasLt          uint64 = 60000
	GasLe          uint64 = 60000
	GasMin         uint64 = 120000
	GasMax         uint64 = 120000
	GasSelect      uint64 = 100000
	GasRand        uint64 = 100000
	GasCast        uint64 = 30000
	GasAllow       uint64 = 20000
	GasIsAllowed   uint64 = 5000
	GasPublicKey   uint64 = 3000
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrTypeMismatch      = errors.New("ciphertext type mismatch")
	ErrOperationFailed   = errors.New("FHE operation failed")
	ErrNotImplemented    = errors.New("operation not implemented")
	ErrInsufficientGas   = errors.New("insufficient gas for FHE operation")
	ErrInvalidCiphertext = errors.New("invalid ciphertext handle")
	ErrNotAllowed        = errors.New("account not allowed on ciphertext handle")
	ErrInvalidProof      = errors.New("invalid input proof")
)

// FHEContract implements the encrypted-arithmetic precompile.
type FHEContract struct {
	cop *Coprocessor
}

// NewFHEContract returns a precompile bound to [cop].
func NewFHEContract(cop *Coprocessor) *FHEContract {
	return &FHEContract{cop: cop}
}

func (c *FHEContract) coprocessor() *Coprocessor {
	if c.cop != nil {
		return c.cop
	}
	return Default()
}

// Run executes the FHE precompile
func (c *FHEContract) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) (ret []byte, remainingGas uint64, err error) {
	if len(input) < 4 {
		return nil, suppliedGas, ErrInvalidInput
	}

	// Extract function selector (first 4 bytes)
	selector := input[:4]
	data := input[4:]

	// Route to appropriate handler based on selector
	switch string(selector) {
	// Arithmetic operations
	case "\x23\xb8\x72\xdd": // add(bytes32,bytes32)
		return c.handleBinaryOp(c.coprocessor().Add, GasAdd, caller, data, suppliedGas)
	case "\x51\xca\xb0\x91": // sub(bytes32,bytes32)
		return c.handleBinaryOp(c.coprocessor().Sub, GasSub, caller, data, suppliedGas)
	case "\xc8\xa4\xac\x9c": // mul(bytes32,bytes32)
		return c.handleBinaryOp(c.coprocessor().Mul, GasMul, caller, data, suppliedGas)

	// Scalar arithmetic
	case "\xf5\xa7\x96\xfb": // scalarAdd(bytes32,uint256)
		return c.handleScalarOp(c.coprocessor().ScalarAdd, GasAdd, caller, data, suppliedGas)
	case "\xb6\x3a\x9e\x11": // scalarSub(bytes32,uint256)
		return c.handleScalarOp(c.coprocessor().ScalarSub, GasSub, caller, data, suppliedGas)
	case "\x3c\x96\x47\x95": // scalarMul(bytes32,uint256)
		return c.handleScalarOp(c.coprocessor().ScalarMul, GasMul, caller, data, suppliedGas)

	// Comparison operations
	case "\xa9\x05\x9c\xbb": // lt(bytes32,bytes32)
		return c.handleBinaryOp(c.coprocessor().Lt, GasLt, caller, data, suppliedGas)
	case "\x26\xa3\x31\x9e": // le(bytes32,bytes32)
		return c.handleBinaryOp(c.coprocessor().Le, GasLe, caller, data, suppliedGas)
	case "\x4b\x64\xe4\x92": // gt(bytes32,bytes32)
		return c.handleBinaryOp(c.coprocessor().Gt, GasGt, caller, data, suppliedGas)
	case "\x53\x1c\x19\xea": // ge(bytes32,bytes32)
		return c.handleBinaryOp(c.coprocessor().Ge, GasGe, caller, data, suppliedGas)
	case "\x1c\xf4\x86\x63": // eq(bytes32,bytes32)
		return c.handleBinaryOp(c.coprocessor().Eq, GasEq, caller, data, suppliedGas)
	case "\x7a\x8f\x63\xb8": // min(bytes32,bytes32)
		return c.handleBinaryOp(c.coprocessor().Min, GasMin, caller, data, suppliedGas)
	case "\x6e\x32\x91\x28": // max(bytes32,bytes32)
		return c.handleBinaryOp(c.coprocessor().Max, GasMax, caller, data, suppliedGas)

	// Boolean operations
	case "\xcd\x30\x32\x00": // and(bytes32,bytes32)
		return c.handleBinaryOp(c.coprocessor().And, GasAnd, caller, data, suppliedGas)
	case "\x5a\x6b\x26\xba": // or(bytes32,bytes32)
		return c.handleBinaryOp(c.coprocessor().Or, GasOr, caller, data, suppliedGas)
	case "\x6b\x3a\x00\x11": // not(bytes32)
		return c.handleNot(caller, data, suppliedGas)

	// Selection and casting
	case "\x2e\x17\xde\x78": // select(bytes32,bytes32,bytes32)
		return c.handleSelect(caller, data, suppliedGas)
	case "\xae\xd2\x44\x6b": // cast(bytes32,uint8)
		return c.handleCast(caller, data, suppliedGas)

	// Encryption operations
	case "\xa5\x17\x5c\x89": // asEuint64(uint64)
		return c.handleAsEuint64(caller, data, suppliedGas)
	case "\x8c\x3f\x5a\x42": // asEbool(bool)
		return c.handleAsEbool(caller, data, suppliedGas)
	case "\x45\xa9\x32\x18": // verifyInput(uint8,bytes32,bytes)
		return c.handleVerifyInput(caller, addr, data, suppliedGas)

	// Access control
	case "\x30\x6b\x9d\x37": // allow(bytes32,address)
		return c.handleAllow(caller, data, suppliedGas)
	case "\x77\x24\x1b\x5c": // isAllowed(bytes32,address)
		return c.handleIsAllowed(data, suppliedGas)

	// Utility operations
	case "\x71\x5a\xd3\x11": // rand(uint8)
		return c.handleRand(accessibleState, caller, data, suppliedGas)
	case "\xd9\xd4\x7f\x40": // getPublicKey()
		return c.handlePublicKey(suppliedGas)

	default:
		return nil, suppliedGas, ErrNotImplemented
	}
}

// Gas returns the gas required for the FHE operation
func (c *FHEContract) Gas(input []byte) uint64 {
	if len(input) < 4 {
		return 0
	}
	selector := string(input[:4])
	switch selector {
	case "\x23\xb8\x72\xdd", "\x51\xca\xb0\x91", "\xf5\xa7\x96\xfb", "\xb6\x3a\x9e\x11": // add, sub, scalarAdd, scalarSub
		return GasAdd
	case "\xc8\xa4\xac\x9c", "\x3c\x96\x47\x95": // mul, scalarMul
		return GasMul
	case "\xa9\x05\x9c\xbb", "\x26\xa3\x31\x9e", "\x4b\x64\xe4\x92", "\x53\x1c\x19\xea": // lt, le, gt, ge
		return GasLt
	case "\x1c\xf4\x86\x63": // eq
		return GasEq
	case "\x2e\x17\xde\x78": // select
		return GasSelect
	case "\xa5\x17\x5c\x89", "\x8c\x3f\x5a\x42": // asEuint64, asEbool
		return GasEncrypt
	case "\x45\xa9\x32\x18": // verifyInput
		return GasVerifyInput
	case "\x6e\x32\x91\x28", "\x7a\x8f\x63\xb8": // max, min
		return GasMax
	case "\xcd\x30\x32\x00", "\x5a\x6b\x26\xba": // and, or
		return GasAnd
	case "\x6b\x3a\x00\x11": // not
		return GasNot
	case "\xae\xd2\x44\x6b": // cast
		return GasCast
	case "\x30\x6b\x9d\x37": // allow
		return GasAllow
	case "\x77\x24\x1b\x5c": // isAllowed
		return GasIsAllowed
	case "\x71\x5a\xd3\x11": // rand
		return GasRand
	case "\xd9\xd4\x7f\x40": // getPublicKey
		return GasPublicKey
	default:
		return 100000 // Default high gas for unknown operations
	}
}

// Handler implementations

func (c *FHEContract) handleBinaryOp(op func(common.Address, Handle, Handle) (Handle, error), gasCost uint64, caller common.Address, data []byte, gas uint64) ([]byte, uint64, error) {
	if len(data) < 64 {
		return nil, gas, ErrInvalidInput
	}
	if gas < gasCost {
		return nil, gas, ErrInsufficientGas
	}

	handle1 := common.BytesToHash(data[:32])
	handle2 := common.BytesToHash(data[32:64])

	result, err := op(caller, handle1, handle2)
	if err != nil {
		return nil, gas - gasCost, err
	}

	return result.Bytes(), gas - gasCost, nil
}

func (c *FHEContract) handleScalarOp(op func(common.Address, Handle, uint64) (Handle, error), gasCost uint64, caller common.Address, data []byte, gas uint64) ([]byte, uint64, error) {
	if len(data) < 64 {
		return nil, gas, ErrInvalidInput
	}
	if gas < gasCost {
		return nil, gas, ErrInsufficientGas
	}

	handle := common.BytesToHash(data[:32])
	scalar := new(big.Int).SetBytes(data[32:64])

	result, err := op(caller, handle, scalar.Uint64())
	if err != nil {
		return nil, gas - gasCost, err
	}

	return result.Bytes(), gas - gasCost, nil
}

func (c *FHEContract) handleNot(caller common.Address, data []byte, gas uint64) ([]byte, uint64, error) {
	if len(data) < 32 {
		return nil, gas, ErrInvalidInput
	}
	if gas < GasNot {
		return nil, gas, ErrInsufficientGas
	}

	handle := common.BytesToHash(data[:32])

	result, err := c.coprocessor().Not(caller, handle)
	if err != nil {
		return nil, gas - GasNot, err
	}

	return result.Bytes(), gas - GasNot, nil
}

func (c *FHEContract) handleSelect(caller common.Address, data []byte, gas uint64) ([]byte, uint64, error) {
	if len(data) < 96 {
		return nil, gas, ErrInvalidInput
	}
	if gas < GasSelect {
		return nil, gas, ErrInsufficientGas
	}

	condition := common.BytesToHash(data[:32])
	ifTrue := common.BytesToHash(data[32:64])
	ifFalse := common.BytesToHash(data[64:96])

	result, err := c.coprocessor().Select(caller, condition, ifTrue, ifFalse)
	if err != nil {
		return nil, gas - GasSelect, err
	}

	return result.Bytes(), gas - GasSelect, nil
}

func (c *FHEContract) handleCast(caller common.Address, data []byte, gas uint64) ([]byte, uint64, error) {
	if len(data) < 33 {
		return nil, gas, ErrInvalidInput
	}
	if gas < GasCast {
		return nil, gas, ErrInsufficientGas
	}

	handle := common.BytesToHash(data[:32])
	toType := data[32]

	result, err := c.coprocessor().Cast(caller, handle, toType)
	if err != nil {
		return nil, gas - GasCast, err
	}

	return result.Bytes(), gas - GasCast, nil
}

func (c *FHEContract) handleAsEuint64(caller common.Address, data []byte, gas uint64) ([]byte, uint64, error) {
	if len(data) < 32 {
		return nil, gas, ErrInvalidInput
	}
	if gas < GasEncrypt {
		return nil, gas, ErrInsufficientGas
	}

	value := new(big.Int).SetBytes(data[:32])

	result, err := c.coprocessor().TrivialEncrypt(caller, value.Uint64(), TypeEuint64)
	if err != nil {
		return nil, gas - GasEncrypt, err
	}

	return result.Bytes(), gas - GasEncrypt, nil
}

func (c *FHEContract) handleAsEbool(caller common.Address, data []byte, gas uint64) ([]byte, uint64, error) {
	if len(data) < 32 {
		return nil, gas, ErrInvalidInput
	}
	if gas < GasEncrypt {
		return nil, gas, ErrInsufficientGas
	}

	value := new(big.Int).SetBytes(data[:32])
	var boolVal uint64
	if value.Sign() != 0 {
		boolVal = 1
	}

	result, err := c.coprocessor().TrivialEncrypt(caller, boolVal, TypeEbool)
	if err != nil {
		return nil, gas - GasEncrypt, err
	}

	return result.Bytes(), gas - GasEncrypt, nil
}

// handleVerifyInput imports a user ciphertext: data is the type byte,
// the 32-byte proof, then the raw ciphertext.
func (c *FHEContract) handleVerifyInput(caller, addr common.Address, data []byte, gas uint64) ([]byte, uint64, error) {
	if len(data) < 1+ProofLen+1 {
		return nil, gas, ErrInvalidInput
	}
	if gas < GasVerifyInput {
		return nil, gas, ErrInsufficientGas
	}

	ctType := data[0]
	proof := data[1 : 1+ProofLen]
	ct := data[1+ProofLen:]

	result, err := c.coprocessor().VerifyInput(ct, proof, caller, addr, ctType)
	if err != nil {
		return nil, gas - GasVerifyInput, err
	}

	return result.Bytes(), gas - GasVerifyInput, nil
}

func (c *FHEContract) handleAllow(caller common.Address, data []byte, gas uint64) ([]byte, uint64, error) {
	if len(data) < 64 {
		return nil, gas, ErrInvalidInput
	}
	if gas < GasAllow {
		return nil, gas, ErrInsufficientGas
	}

	handle := common.BytesToHash(data[:32])
	grantee := common.BytesToAddress(data[44:64])

	if err := c.coprocessor().Allow(caller, handle, grantee); err != nil {
		return nil, gas - GasAllow, err
	}

	return []byte{1}, gas - GasAllow, nil
}

func (c *FHEContract) handleIsAllowed(data []byte, gas uint64) ([]byte, uint64, error) {
	if len(data) < 64 {
		return nil, gas, ErrInvalidInput
	}
	if gas < GasIsAllowed {
		return nil, gas, ErrInsufficientGas
	}

	handle := common.BytesToHash(data[:32])
	account := common.BytesToAddress(data[44:64])

	if c.coprocessor().IsAllowed(account, handle) {
		return []byte{1}, gas - GasIsAllowed, nil
	}
	return []byte{0}, gas - GasIsAllowed, nil
}

func (c *FHEContract) handleRand(accessibleState contract.AccessibleState, caller common.Address, data []byte, gas uint64) ([]byte, uint64, error) {
	if len(data) < 1 {
		return nil, gas, ErrInvalidInput
	}
	if gas < GasRand {
		return nil, gas, ErrInsufficientGas
	}

	fheType := data[0]
	// Seed from block height and caller so repeated calls differ per
	// block and per account
	seed := accessibleState.GetBlockContext().Number().Uint64()
	seed ^= new(big.Int).SetBytes(caller.Bytes()).Uint64()

	result, err := c.coprocessor().Random(caller, fheType, seed)
	if err != nil {
		return nil, gas - GasRand, err
	}

	return result.Bytes(), gas - GasRand, nil
}

func (c *FHEContract) handlePublicKey(gas uint64) ([]byte, uint64, error) {
	if gas < GasPublicKey {
		return nil, gas, ErrInsufficientGas
	}

	pk := c.coprocessor().NetworkPublicKey()
	if pk == nil {
		return nil, gas - GasPublicKey, ErrOperationFailed
	}

	return pk, gas - GasPublicKey, nil
}
