// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contract

import (
	"errors"
	"fmt"

	"github.com/luxfi/crypto"
)

var ErrOutOfGas = errors.New("out of gas")

// CalculateFunctionSelector returns the first 4 bytes of the keccak256
// hash of [functionSignature], e.g. "endPresale(uint256)".
func CalculateFunctionSelector(functionSignature string) []byte {
	hash := crypto.Keccak256([]byte(functionSignature))
	return hash[:SelectorLen]
}

// DeductGas subtracts [requiredGas] from [suppliedGas], returning
// ErrOutOfGas if the allowance does not cover it.
func DeductGas(suppliedGas uint64, requiredGas uint64) (uint64, error) {
	if suppliedGas < requiredGas {
		return 0, ErrOutOfGas
	}
	return suppliedGas - requiredGas, nil
}

// PackedHash returns the 32-byte word at [index] of [input], treating
// the input as ABI-packed words.
func PackedHash(input []byte, index int) ([]byte, error) {
	start := index * 32
	end := start + 32
	if len(input) < end {
		return nil, fmt.Errorf("input %d short of word %d", len(input), index)
	}
	return input[start:end], nil
}
