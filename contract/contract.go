// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contract

import (
	"fmt"

	"github.com/luxfi/geth/common"
)

const (
	// SelectorLen is the length of the function selector prefixing a
	// precompile call's input.
	SelectorLen = 4
)

// RunStatefulPrecompileFunc executes one function of a stateful
// precompile. Implementations must check [suppliedGas] covers their
// cost before consuming it and must not mutate state when [readOnly]
// is set.
type RunStatefulPrecompileFunc func(
	accessibleState AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) (ret []byte, remainingGas uint64, err error)

// StatefulPrecompiledContract is the interface for executing a
// precompiled contract with access to the EVM state.
type StatefulPrecompiledContract interface {
	Run(
		accessibleState AccessibleState,
		caller common.Address,
		addr common.Address,
		input []byte,
		suppliedGas uint64,
		readOnly bool,
	) (ret []byte, remainingGas uint64, err error)
}

// StatefulPrecompileFunction wires a 4-byte selector to its execution
// function.
type StatefulPrecompileFunction struct {
	selector []byte
	execute  RunStatefulPrecompileFunc
}

// NewStatefulPrecompileFunction returns a function selectable by
// [selector] within a statefulPrecompileWithFunctionSelectors.
func NewStatefulPrecompileFunction(selector []byte, execute RunStatefulPrecompileFunc) *StatefulPrecompileFunction {
	return &StatefulPrecompileFunction{
		selector: selector,
		execute:  execute,
	}
}

// statefulPrecompileWithFunctionSelectors dispatches calls to member
// functions by the selector prefixing the input.
type statefulPrecompileWithFunctionSelectors struct {
	fallback  RunStatefulPrecompileFunc
	functions map[string]*StatefulPrecompileFunction
}

// NewStatefulPrecompileContract builds a stateful precompile from
// [functions], dispatched by selector, with an optional [fallback] for
// empty input.
func NewStatefulPrecompileContract(fallback RunStatefulPrecompileFunc, functions []*StatefulPrecompileFunction) (StatefulPrecompiledContract, error) {
	functionsMap := make(map[string]*StatefulPrecompileFunction, len(functions))
	for _, function := range functions {
		if len(function.selector) != SelectorLen {
			return nil, fmt.Errorf("invalid length of function selector %#x", function.selector)
		}
		key := string(function.selector)
		if _, exists := functionsMap[key]; exists {
			return nil, fmt.Errorf("cannot create stateful precompile with duplicated function selector %#x", function.selector)
		}
		functionsMap[key] = function
	}

	return &statefulPrecompileWithFunctionSelectors{
		fallback:  fallback,
		functions: functionsMap,
	}, nil
}

// Run dispatches [input] to the function matching its selector.
func (s *statefulPrecompileWithFunctionSelectors) Run(
	accessibleState AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if len(input) == 0 && s.fallback != nil {
		return s.fallback(accessibleState, caller, addr, nil, suppliedGas, readOnly)
	}
	if len(input) < SelectorLen {
		return nil, suppliedGas, fmt.Errorf("missing function selector to precompile - input length (%d)", len(input))
	}

	selector := input[:SelectorLen]
	functionInput := input[SelectorLen:]
	function, ok := s.functions[string(selector)]
	if !ok {
		return nil, suppliedGas, fmt.Errorf("invalid function selector %#x", selector)
	}

	return function.execute(accessibleState, caller, addr, functionInput, suppliedGas, readOnly)
}
