// Package airdrop implements the Merkle claim registry: the administrator
// publishes a root committing to cumulative per-address entitlements, and
// each address claims the difference between its entitlement and what it has
// already been paid.
package airdrop

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-rosca/internal/ledger"
	"github.com/0gfoundation/0g-rosca/internal/merkle"
	"github.com/0gfoundation/0g-rosca/internal/metrics"
	"github.com/0gfoundation/0g-rosca/internal/store"
	"github.com/0gfoundation/0g-rosca/internal/types"
)

type Registry struct {
	mu     sync.Mutex
	store  *store.Store
	ledger ledger.Ledger
	admin  common.Address
	clock  clockwork.Clock
	log    *zap.Logger
}

func NewRegistry(st *store.Store, l ledger.Ledger, admin common.Address, clock clockwork.Clock, log *zap.Logger) *Registry {
	return &Registry{store: st, ledger: l, admin: admin, clock: clock, log: log}
}

// SetRoot replaces the published root. Claimed amounts carry over, so a new
// root must commit to cumulative entitlements.
func (r *Registry) SetRoot(ctx context.Context, caller common.Address, root common.Hash) (err error) {
	defer observe("set_root", &err)
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.admin {
		return types.ErrNotAdministrator
	}
	err = r.store.Commit(ctx, func(tx *store.Tx) error {
		tx.SetRoot(root)
		tx.AppendEvent(types.Event{
			Type:  types.EventTypeRootUpdated,
			Actor: caller,
			Root:  &root,
			Time:  r.clock.Now().Unix(),
		})
		return nil
	})
	if err != nil {
		return err
	}
	r.log.Info("airdrop root updated", zap.String("root", root.Hex()))
	return nil
}

// Claim pays caller totalEntitlement minus what it has already claimed.
func (r *Registry) Claim(ctx context.Context, caller common.Address, totalEntitlement *big.Int, proof []common.Hash) (_ *big.Int, err error) {
	defer observe("airdrop_claim", &err)
	r.mu.Lock()
	defer r.mu.Unlock()

	if totalEntitlement == nil || totalEntitlement.Sign() < 0 || totalEntitlement.BitLen() > 256 {
		return nil, types.ErrInvalidParameters
	}
	root, err := r.store.Root(ctx)
	if err != nil {
		return nil, err
	}
	if !merkle.Verify(proof, root, merkle.Leaf(caller, totalEntitlement)) {
		return nil, types.ErrInvalidProof
	}
	claimed, err := r.store.Claimed(ctx, caller)
	if err != nil {
		return nil, err
	}
	if claimed.Cmp(totalEntitlement) >= 0 {
		return nil, types.ErrNothingLeftToClaim
	}
	delta := new(big.Int).Sub(totalEntitlement, claimed)

	if err := r.store.Commit(ctx, func(tx *store.Tx) error {
		tx.SetClaimed(caller, totalEntitlement)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := r.ledger.Push(ctx, caller, delta); err != nil {
		if rerr := r.store.Commit(ctx, func(tx *store.Tx) error {
			tx.SetClaimed(caller, claimed)
			return nil
		}); rerr != nil {
			r.log.Error("airdrop: restore claimed after failed push", zap.String("claimant", caller.Hex()), zap.Error(rerr))
		}
		return nil, fmt.Errorf("%w: %w", types.ErrTransferFailed, err)
	}
	if err := r.store.Commit(ctx, func(tx *store.Tx) error {
		tx.AppendEvent(types.Event{
			Type:   types.EventTypeAirdropClaimed,
			Actor:  caller,
			Amount: delta,
			Root:   &root,
			Time:   r.clock.Now().Unix(),
		})
		return nil
	}); err != nil {
		r.log.Warn("airdrop: record event", zap.Error(err))
	}

	r.log.Info("airdrop claimed",
		zap.String("claimant", caller.Hex()),
		zap.String("amount", delta.String()),
		zap.String("entitlement", totalEntitlement.String()),
	)
	return delta, nil
}

func (r *Registry) Root(ctx context.Context) (common.Hash, error) {
	return r.store.Root(ctx)
}

func (r *Registry) Claimed(ctx context.Context, addr common.Address) (*big.Int, error) {
	return r.store.Claimed(ctx, addr)
}

func observe(op string, err *error) {
	status := "ok"
	if *err != nil {
		status = types.CodeOf(*err)
	}
	metrics.OperationsTotal.WithLabelValues(op, status).Inc()
}
