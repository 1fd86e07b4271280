package airdrop

import (
	"context"
	"math/big"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-rosca/internal/ledger"
	"github.com/0gfoundation/0g-rosca/internal/merkle"
	"github.com/0gfoundation/0g-rosca/internal/store"
	"github.com/0gfoundation/0g-rosca/internal/types"
)

var (
	testCustody = common.HexToAddress("0xC0C0C0C0C0C0C0C0C0C0C0C0C0C0C0C0C0C0C0C0")
	testAdmin   = common.HexToAddress("0xADADADADADADADADADADADADADADADADADADADAD")
	testAlice   = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	testBob     = common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
)

type entitlement struct {
	addr   common.Address
	amount int64
}

// publish builds a tree over es, sets it as the root and returns per-address proofs.
func publish(t *testing.T, r *Registry, es ...entitlement) map[common.Address][]common.Hash {
	t.Helper()
	leaves := make([]common.Hash, len(es))
	for i, e := range es {
		leaves[i] = merkle.Leaf(e.addr, big.NewInt(e.amount))
	}
	tree := merkle.Build(leaves)
	require.NoError(t, r.SetRoot(context.Background(), testAdmin, tree.Root()))

	proofs := make(map[common.Address][]common.Hash, len(es))
	for i, e := range es {
		proof, err := tree.Proof(i)
		require.NoError(t, err)
		proofs[e.addr] = proof
	}
	return proofs
}

func newTestRegistry(t *testing.T, custodyFunds int64) (*Registry, *ledger.Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bank := ledger.NewRedis(rdb, testCustody)
	if custodyFunds > 0 {
		require.NoError(t, bank.Deposit(context.Background(), testCustody, big.NewInt(custodyFunds)))
	}
	return NewRegistry(store.New(rdb), bank, testAdmin, clockwork.NewFakeClock(), zap.NewNop()), bank
}

func balance(t *testing.T, bank *ledger.Redis, addr common.Address) int64 {
	t.Helper()
	b, err := bank.Balance(context.Background(), addr)
	require.NoError(t, err)
	return b.Int64()
}

func TestSetRoot_AdminOnly(t *testing.T) {
	r, _ := newTestRegistry(t, 0)
	ctx := context.Background()
	root := common.HexToHash("0x01")

	err := r.SetRoot(ctx, testAlice, root)
	assert.ErrorIs(t, err, types.ErrNotAdministrator)

	require.NoError(t, r.SetRoot(ctx, testAdmin, root))
	got, err := r.Root(ctx)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestClaim_CumulativeEntitlements(t *testing.T) {
	r, bank := newTestRegistry(t, 1000)
	ctx := context.Background()

	proofs := publish(t, r, entitlement{testAlice, 50}, entitlement{testBob, 20})
	paid, err := r.Claim(ctx, testAlice, big.NewInt(50), proofs[testAlice])
	require.NoError(t, err)
	assert.Equal(t, int64(50), paid.Int64())
	assert.Equal(t, int64(50), balance(t, bank, testAlice))

	_, err = r.Claim(ctx, testAlice, big.NewInt(50), proofs[testAlice])
	assert.ErrorIs(t, err, types.ErrNothingLeftToClaim)

	proofs = publish(t, r, entitlement{testAlice, 80}, entitlement{testBob, 20})
	paid, err = r.Claim(ctx, testAlice, big.NewInt(80), proofs[testAlice])
	require.NoError(t, err)
	assert.Equal(t, int64(30), paid.Int64())
	assert.Equal(t, int64(80), balance(t, bank, testAlice))

	claimed, err := r.Claimed(ctx, testAlice)
	require.NoError(t, err)
	assert.Equal(t, int64(80), claimed.Int64())
}

func TestClaim_InvalidProof(t *testing.T) {
	r, _ := newTestRegistry(t, 1000)
	ctx := context.Background()
	proofs := publish(t, r, entitlement{testAlice, 50}, entitlement{testBob, 20})

	// inflated amount
	_, err := r.Claim(ctx, testAlice, big.NewInt(51), proofs[testAlice])
	assert.ErrorIs(t, err, types.ErrInvalidProof)

	// someone else's proof
	_, err = r.Claim(ctx, testBob, big.NewInt(50), proofs[testAlice])
	assert.ErrorIs(t, err, types.ErrInvalidProof)
}

func TestClaim_NoRootPublished(t *testing.T) {
	r, _ := newTestRegistry(t, 1000)
	_, err := r.Claim(context.Background(), testAlice, big.NewInt(10), nil)
	assert.ErrorIs(t, err, types.ErrInvalidProof)
}

func TestClaim_LowerEntitlementUnderNewRoot(t *testing.T) {
	r, _ := newTestRegistry(t, 1000)
	ctx := context.Background()

	proofs := publish(t, r, entitlement{testAlice, 50})
	_, err := r.Claim(ctx, testAlice, big.NewInt(50), proofs[testAlice])
	require.NoError(t, err)

	proofs = publish(t, r, entitlement{testAlice, 40}, entitlement{testBob, 5})
	_, err = r.Claim(ctx, testAlice, big.NewInt(40), proofs[testAlice])
	assert.ErrorIs(t, err, types.ErrNothingLeftToClaim)
}

func TestClaim_PushFailureRestoresClaimed(t *testing.T) {
	// custody is empty so the payout push fails
	r, _ := newTestRegistry(t, 0)
	ctx := context.Background()
	proofs := publish(t, r, entitlement{testAlice, 50})

	_, err := r.Claim(ctx, testAlice, big.NewInt(50), proofs[testAlice])
	assert.ErrorIs(t, err, types.ErrTransferFailed)

	claimed, err := r.Claimed(ctx, testAlice)
	require.NoError(t, err)
	assert.Zero(t, claimed.Sign(), "claimed must roll back after a failed payout")
}

func TestClaim_RejectsNegativeEntitlement(t *testing.T) {
	r, _ := newTestRegistry(t, 0)
	_, err := r.Claim(context.Background(), testAlice, big.NewInt(-1), nil)
	assert.ErrorIs(t, err, types.ErrInvalidParameters)
}
