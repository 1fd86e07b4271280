package pot

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-rosca/internal/types"
)

type pull struct {
	from   common.Address
	amount *big.Int
}

// journal records ledger pulls of one operation so they can be refunded if
// a later step fails.
type journal struct {
	e     *Engine
	pulls []pull
}

func (e *Engine) newJournal() *journal {
	return &journal{e: e}
}

func (j *journal) pull(ctx context.Context, from common.Address, amount *big.Int) error {
	if err := j.e.ledger.Pull(ctx, from, amount); err != nil {
		return fmt.Errorf("%w: %w", types.ErrTransferFailed, err)
	}
	j.pulls = append(j.pulls, pull{from: from, amount: amount})
	return nil
}

// rollback refunds recorded pulls in reverse order. Refund failures are
// logged; the operation's own error is what the caller sees.
func (j *journal) rollback(ctx context.Context) {
	for i := len(j.pulls) - 1; i >= 0; i-- {
		p := j.pulls[i]
		if err := j.e.ledger.Push(ctx, p.from, p.amount); err != nil {
			j.e.log.Error("refund failed",
				zap.String("to", p.from.Hex()),
				zap.String("amount", p.amount.String()),
				zap.Error(err),
			)
		}
	}
	j.pulls = nil
}
