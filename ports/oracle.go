package ports

import (
	"context"
	"math/big"

	"github.com/layer-3/tokengate/core"
)

// OwnershipOracle answers how many units of a token a wallet holds. The
// issuer only cares whether the balance is zero; no decimal semantics are
// interpreted.
type OwnershipOracle interface {
	// BalanceOf returns the wallet's balance for the requirement's
	// (contract, token id). Returns core.ErrInvalidAddress for malformed
	// inputs and core.ErrOracleUnavailable when the check could not be
	// performed; a zero balance is a successful call.
	BalanceOf(ctx context.Context, requirement core.Requirement, wallet string) (*big.Int, error)
}
