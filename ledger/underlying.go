// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/PrivacyPad/PrivacyPad/token"
)

// TokenCustody adapts a plaintext token to the Underlying interface.
// Pulled value sits under the custody address until pushed back out.
type TokenCustody struct {
	Token   *token.Token
	Custody common.Address
}

func (tc TokenCustody) Pull(from common.Address, amount *big.Int) error {
	return tc.Token.Transfer(from, tc.Custody, amount)
}

func (tc TokenCustody) Push(to common.Address, amount *big.Int) error {
	return tc.Token.Transfer(tc.Custody, to, amount)
}
