// Copyright (C) 2019-2024, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/luxfi/fhe"
)

var (
	// Singleton TFHE components
	tfheOnce  sync.Once
	evaluator *fhe.BitwiseEvaluator
	encryptor *fhe.BitwiseEncryptor
	decryptor *fhe.BitwiseDecryptor
	secretKey *fhe.SecretKey
	publicKey *fhe.PublicKey
	params    fhe.Parameters
	initErr   error
)

// Initialize TFHE components
func initTFHE() error {
	tfheOnce.Do(func() {
		var err error

		// Create parameters
		params, err = fhe.NewParametersFromLiteral(fhe.PN10QP27)
		if err != nil {
			initErr = err
			return
		}

		// Generate keys
		kg := fhe.NewKeyGenerator(params)
		secretKey, publicKey = kg.GenKeyPair()
		bsk := kg.GenBootstrapKey(secretKey)

		// Create operators
		encryptor = fhe.NewBitwiseEncryptor(params, secretKey)
		decryptor = fhe.NewBitwiseDecryptor(params, secretKey)
		evaluator = fhe.NewBitwiseEvaluator(params, bsk, secretKey)
	})

	return initErr
}

// fheTypeToTFHEType converts FHE type constant to TFHE FheUintType
func fheTypeToTFHEType(fheType uint8) fhe.FheUintType {
	switch fheType {
	case TypeEbool:
		return fhe.FheBool
	case TypeEuint8:
		return fhe.FheUint8
	case TypeEuint16:
		return fhe.FheUint16
	case TypeEuint32:
		return fhe.FheUint32
	case TypeEuint64:
		return fhe.FheUint64
	case TypeEuint128:
		return fhe.FheUint128
	case TypeEuint256:
		return fhe.FheUint256
	case TypeEaddress:
		return fhe.FheUint160
	default:
		return fhe.FheUint64
	}
}

// serializeBitCiphertext converts BitCiphertext to bytes
func serializeBitCiphertext(ct *fhe.BitCiphertext) []byte {
	if ct == nil {
		return nil
	}
	data, err := ct.MarshalBinary()
	if err != nil {
		return nil
	}
	return data
}

// deserializeBitCiphertext converts bytes to BitCiphertext
func deserializeBitCiphertext(data []byte) *fhe.BitCiphertext {
	if len(data) == 0 {
		return nil
	}
	ct := new(fhe.BitCiphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil
	}
	return ct
}

// FHE Operations - Binary Arithmetic

func tfheAdd(lhs, rhs []byte, fheType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctLhs := deserializeBitCiphertext(lhs)
	ctRhs := deserializeBitCiphertext(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}

	result, err := evaluator.Add(ctLhs, ctRhs)
	if err != nil {
		return nil
	}

	return serializeBitCiphertext(result)
}

func tfheSub(lhs, rhs []byte, fheType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctLhs := deserializeBitCiphertext(lhs)
	ctRhs := deserializeBitCiphertext(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}

	result, err := evaluator.Sub(ctLhs, ctRhs)
	if err != nil {
		return nil
	}

	return serializeBitCiphertext(result)
}

func tfheMul(lhs, rhs []byte, fheType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctLhs := deserializeBitCiphertext(lhs)
	ctRhs := deserializeBitCiphertext(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}

	result, err := evaluator.Mul(ctLhs, ctRhs)
	if err != nil {
		return nil
	}

	return serializeBitCiphertext(result)
}

// FHE Operations - Comparison
// These return encrypted boolean (single encrypted bit)

func tfheLt(lhs, rhs []byte, fheType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctLhs := deserializeBitCiphertext(lhs)
	ctRhs := deserializeBitCiphertext(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}

	result, err := evaluator.Lt(ctLhs, ctRhs)
	if err != nil {
		return nil
	}

	// Wrap single bit as FheBool BitCiphertext for consistent serialization
	boolCt := fhe.WrapBoolCiphertext(result)
	return serializeBitCiphertext(boolCt)
}

func tfheLe(lhs, rhs []byte, fheType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctLhs := deserializeBitCiphertext(lhs)
	ctRhs := deserializeBitCiphertext(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}

	result, err := evaluator.Le(ctLhs, ctRhs)
	if err != nil {
		return nil
	}

	boolCt := fhe.WrapBoolCiphertext(result)
	return serializeBitCiphertext(boolCt)
}

func tfheGt(lhs, rhs []byte, fheType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctLhs := deserializeBitCiphertext(lhs)
	ctRhs := deserializeBitCiphertext(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}

	result, err := evaluator.Gt(ctLhs, ctRhs)
	if err != nil {
		return nil
	}

	boolCt := fhe.WrapBoolCiphertext(result)
	return serializeBitCiphertext(boolCt)
}

func tfheGe(lhs, rhs []byte, fheType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctLhs := deserializeBitCiphertext(lhs)
	ctRhs := deserializeBitCiphertext(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}

	result, err := evaluator.Ge(ctLhs, ctRhs)
	if err != nil {
		return nil
	}

	boolCt := fhe.WrapBoolCiphertext(result)
	return serializeBitCiphertext(boolCt)
}

func tfheEq(lhs, rhs []byte, fheType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctLhs := deserializeBitCiphertext(lhs)
	ctRhs := deserializeBitCiphertext(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}

	result, err := evaluator.Eq(ctLhs, ctRhs)
	if err != nil {
		return nil
	}

	boolCt := fhe.WrapBoolCiphertext(result)
	return serializeBitCiphertext(boolCt)
}

// FHE Operations - Boolean

func tfheAnd(lhs, rhs []byte, fheType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctLhs := deserializeBitCiphertext(lhs)
	ctRhs := deserializeBitCiphertext(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}

	result, err := evaluator.And(ctLhs, ctRhs)
	if err != nil {
		return nil
	}

	return serializeBitCiphertext(result)
}

func tfheOr(lhs, rhs []byte, fheType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctLhs := deserializeBitCiphertext(lhs)
	ctRhs := deserializeBitCiphertext(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}

	result, err := evaluator.Or(ctLhs, ctRhs)
	if err != nil {
		return nil
	}

	return serializeBitCiphertext(result)
}

func tfheNot(ct []byte, fheType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctIn := deserializeBitCiphertext(ct)
	if ctIn == nil {
		return nil
	}

	// Not returns *BitCiphertext directly (no error)
	result := evaluator.Not(ctIn)
	return serializeBitCiphertext(result)
}

// FHE Operations - Cast

func tfheCast(ct []byte, fromType, toType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctIn := deserializeBitCiphertext(ct)
	if ctIn == nil {
		return nil
	}

	targetType := fheTypeToTFHEType(toType)
	// CastTo returns *BitCiphertext directly (no error)
	result := evaluator.CastTo(ctIn, targetType)

	return serializeBitCiphertext(result)
}

// FHE Operations - Min/Max

func tfheMin(lhs, rhs []byte, fheType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctLhs := deserializeBitCiphertext(lhs)
	ctRhs := deserializeBitCiphertext(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}

	// Min = (lhs < rhs) ? lhs : rhs
	ltResult, err := evaluator.Lt(ctLhs, ctRhs)
	if err != nil {
		return nil
	}

	result, err := evaluator.Select(ltResult, ctLhs, ctRhs)
	if err != nil {
		return nil
	}

	return serializeBitCiphertext(result)
}

func tfheMax(lhs, rhs []byte, fheType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctLhs := deserializeBitCiphertext(lhs)
	ctRhs := deserializeBitCiphertext(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}

	// Max = (lhs > rhs) ? lhs : rhs
	gtResult, err := evaluator.Gt(ctLhs, ctRhs)
	if err != nil {
		return nil
	}

	result, err := evaluator.Select(gtResult, ctLhs, ctRhs)
	if err != nil {
		return nil
	}

	return serializeBitCiphertext(result)
}

// FHE Operations - Encryption/Decryption

func tfheVerify(ct []byte, fheType uint8) bool {
	// Basic validation - check ciphertext can be deserialized
	return deserializeBitCiphertext(ct) != nil
}

func tfheDecrypt(ct []byte, fheType uint8) *big.Int {
	if err := initTFHE(); err != nil {
		return big.NewInt(0)
	}

	ctIn := deserializeBitCiphertext(ct)
	if ctIn == nil {
		return big.NewInt(0)
	}

	plaintext := decryptor.DecryptUint64(ctIn)
	return new(big.Int).SetUint64(plaintext)
}

func tfheEncrypt(plaintext *big.Int, toType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	targetType := fheTypeToTFHEType(toType)
	ct := encryptor.EncryptUint64(plaintext.Uint64(), targetType)

	return serializeBitCiphertext(ct)
}

func tfheRandom(fheType uint8, seed uint64) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	targetType := fheTypeToTFHEType(fheType)

	// Create deterministic seed bytes
	seedBytes := make([]byte, 32)
	binary.BigEndian.PutUint64(seedBytes[24:], seed)

	rng := fhe.NewFheRNG(params, secretKey, seedBytes)
	ct := rng.RandomUint(targetType)

	return serializeBitCiphertext(ct)
}

func tfheGetNetworkPublicKey() []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	if publicKey == nil {
		return nil
	}

	data, err := publicKey.MarshalBinary()
	if err != nil {
		return nil
	}

	return data
}

// === Scalar Operations ===

func tfheScalarAdd(ct []byte, scalar uint64, fheType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctIn := deserializeBitCiphertext(ct)
	if ctIn == nil {
		return nil
	}

	result, err := evaluator.ScalarAdd(ctIn, scalar)
	if err != nil {
		return nil
	}

	return serializeBitCiphertext(result)
}

func tfheScalarSub(ct []byte, scalar uint64, fheType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctIn := deserializeBitCiphertext(ct)
	if ctIn == nil {
		return nil
	}

	// ScalarSub: a - scalar = a + (-scalar) = a + (2^n - scalar)
	// Use two's complement for subtraction
	numBits := ctIn.NumBits()
	mask := uint64((1 << numBits) - 1)
	negScalar := (^scalar + 1) & mask

	result, err := evaluator.ScalarAdd(ctIn, negScalar)
	if err != nil {
		return nil
	}

	return serializeBitCiphertext(result)
}

func tfheScalarMul(ct []byte, scalar uint64, fheType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	ctIn := deserializeBitCiphertext(ct)
	if ctIn == nil {
		return nil
	}

	result, err := evaluator.ScalarMul(ctIn, scalar)
	if err != nil {
		return nil
	}

	return serializeBitCiphertext(result)
}

// tfheMaxValue returns an encrypted max value (all bits set)
func tfheMaxValue(fheType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}

	targetType := fheTypeToTFHEType(fheType)
	maxVal := evaluator.MaxValue(targetType)
	return serializeBitCiphertext(maxVal)
}
