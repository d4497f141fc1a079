// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"crypto/subtle"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// Input proofs bind a user-supplied ciphertext to the submitting
// account and the consuming contract, so a ciphertext observed on the
// wire cannot be replayed by another account or against another
// contract. The binding is a Poseidon2 hash over field elements:
//
//	proof = Poseidon2(blake3(ct), pad32(sender), pad32(target))

// ProofLen is the length of a serialized input proof.
const ProofLen = 32

// inputDigest compresses the ciphertext to one field element.
func inputDigest(ct []byte) [32]byte {
	h := blake3.New()
	h.Write(ct)
	var digest [32]byte
	h.Digest().Read(digest[:])
	return digest
}

// ComputeInputProof returns the proof a client submits alongside [ct]
// destined for [target] from [sender].
func ComputeInputProof(ct []byte, sender, target common.Address) ([32]byte, error) {
	if len(ct) == 0 {
		return [32]byte{}, ErrInvalidInput
	}

	digest := inputDigest(ct)

	var senderWord, targetWord [32]byte
	copy(senderWord[12:], sender[:])
	copy(targetWord[12:], target[:])

	// gnark-crypto reduces inputs into the BN254 scalar field
	elements := make([]fr.Element, 3)
	elements[0].SetBytes(digest[:])
	elements[1].SetBytes(senderWord[:])
	elements[2].SetBytes(targetWord[:])

	hasher := poseidon2.NewMerkleDamgardHasher()
	for _, elem := range elements {
		elemBytes := elem.Bytes()
		hasher.Write(elemBytes[:])
	}

	var proof [32]byte
	copy(proof[:], hasher.Sum(nil))
	return proof, nil
}

// VerifyInput checks that [proof] binds [ct] to [sender] and [target],
// then stores the ciphertext. Both the sender and the target contract
// are granted access to the resulting handle.
func (c *Coprocessor) VerifyInput(ct []byte, proof []byte, sender, target common.Address, fheType uint8) (Handle, error) {
	if len(proof) != ProofLen {
		return Handle{}, ErrInvalidProof
	}
	if !tfheVerify(ct, fheType) {
		return Handle{}, ErrInvalidCiphertext
	}

	expected, err := ComputeInputProof(ct, sender, target)
	if err != nil {
		return Handle{}, err
	}
	if subtle.ConstantTimeCompare(expected[:], proof) != 1 {
		return Handle{}, ErrInvalidProof
	}

	h := c.insert(sender, ct, fheType)
	c.mu.Lock()
	c.acl[h][target] = struct{}{}
	c.mu.Unlock()
	return h, nil
}
