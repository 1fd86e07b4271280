// Package ledger adapts the external value ledger the engine pulls
// contributions from and pushes payouts to. Any error aborts the enclosing
// engine operation.
package ledger

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrInvalidAmount       = errors.New("ledger: amount must be positive")
	ErrReadOnly            = errors.New("ledger: no custody key")
)

// Ledger moves value between accounts and the engine's custody.
type Ledger interface {
	// Pull moves amount from `from` into custody.
	Pull(ctx context.Context, from common.Address, amount *big.Int) error
	// Push moves amount from custody to `to`.
	Push(ctx context.Context, to common.Address, amount *big.Int) error
}

func validAmount(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}
